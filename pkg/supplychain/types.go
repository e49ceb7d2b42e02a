// Package supplychain builds a dependency graph from an SBOM, computes
// structural risk signals over it and folds them into a supply-chain score.
package supplychain

import (
	"errors"
	"time"

	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

var (
	// ErrMalformedSBOM is returned when the input is not an SBOM document at all.
	ErrMalformedSBOM = errors.New("malformed sbom")
	// ErrDanglingReference is returned in strict mode when a relationship
	// names a component that is not in the document.
	ErrDanglingReference = errors.New("dangling component reference")
)

// PackageManager identifies the ecosystem of a component.
type PackageManager = sbom.PackageManager

// DependencyType classifies how a component enters the dependency tree.
type DependencyType string

const (
	DependencyDirect     DependencyType = "direct"
	DependencyTransitive DependencyType = "transitive"
	DependencyDev        DependencyType = "dev"
	DependencyPeer       DependencyType = "peer"
	DependencyOptional   DependencyType = "optional"
)

// TrustLevel grades the provenance of a component.
type TrustLevel string

const (
	TrustVerified   TrustLevel = "verified"
	TrustTrusted    TrustLevel = "trusted"
	TrustNeutral    TrustLevel = "neutral"
	TrustSuspicious TrustLevel = "suspicious"
	TrustUntrusted  TrustLevel = "untrusted"
)

// TrustLevels lists every trust level, most trusted first.
var TrustLevels = []TrustLevel{TrustVerified, TrustTrusted, TrustNeutral, TrustSuspicious, TrustUntrusted}

// RiskLevel is the bucket a node risk score falls into.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists every risk bucket, least risky first.
var RiskLevels = []RiskLevel{RiskMinimal, RiskLow, RiskMedium, RiskHigh, RiskCritical}

// RiskLevelFor returns the bucket of a 0-10 risk score.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 2:
		return RiskMinimal
	case score < 4:
		return RiskLow
	case score < 6:
		return RiskMedium
	case score < 8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// MaintainerInfo summarises who maintains a component.
type MaintainerInfo struct {
	Count             int      `json:"count"`
	Maintainers       []string `json:"maintainers,omitempty"`
	Reputation        float64  `json:"reputation"`
	SecurityIncidents int      `json:"security_incidents"`
}

// RepositoryInfo summarises registry metadata for a component.
type RepositoryInfo struct {
	URL       string `json:"url,omitempty"`
	AgeDays   int    `json:"age_days"`
	Downloads int    `json:"downloads"`
	License   string `json:"license,omitempty"`
}

// SecurityMetrics are the vulnerability counts of a component.
type SecurityMetrics struct {
	VulnerabilityCount      int      `json:"vulnerability_count"`
	CriticalVulnerabilities int      `json:"critical_vulnerabilities"`
	Advisories              []string `json:"advisories,omitempty"`
	Signed                  bool     `json:"signed"`
}

// Centrality holds the auxiliary structural signals of a node.
type Centrality struct {
	Betweenness float64 `json:"betweenness"`
	Closeness   float64 `json:"closeness"`
	PageRank    float64 `json:"pagerank"`
}

// Node is one component of the dependency graph.
type Node struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	PURL            string          `json:"purl,omitempty"`
	PackageManager  PackageManager  `json:"package_manager"`
	DependencyType  DependencyType  `json:"dependency_type"`
	TrustLevel      TrustLevel      `json:"trust_level"`
	RiskScore       float64         `json:"risk_score"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	Depth           int             `json:"depth"`
	Enriched        bool            `json:"enriched"`
	MaintainerInfo  MaintainerInfo  `json:"maintainer_info"`
	RepositoryInfo  RepositoryInfo  `json:"repository_info"`
	SecurityMetrics SecurityMetrics `json:"security_metrics"`
	Centrality      Centrality      `json:"centrality"`
	Metadata        map[string]any  `json:"metadata"`
}

// DisplayName is the name used in recommendations; it falls back to the ID.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Edge is a source-depends-on-target relationship.
type Edge struct {
	SourceID          string         `json:"source_id"`
	TargetID          string         `json:"target_id"`
	DependencyType    DependencyType `json:"dependency_type"`
	VersionConstraint string         `json:"version_constraint"`
	IntroducedBy      *string        `json:"introduced_by"`
	RiskContribution  float64        `json:"risk_contribution"`
}

// Analysis is the result of one analysis run.
type Analysis struct {
	ID                    string             `json:"analysis_id"`
	Timestamp             time.Time          `json:"timestamp"`
	SBOMName              string             `json:"sbom_name,omitempty"`
	TotalNodes            int                `json:"total_nodes"`
	TotalEdges            int                `json:"total_edges"`
	MaxDepth              int                `json:"max_depth"`
	AverageDegree         float64            `json:"average_degree"`
	RiskDistribution      map[RiskLevel]int  `json:"risk_distribution"`
	TrustDistribution     map[TrustLevel]int `json:"trust_distribution"`
	CriticalPaths         [][]string         `json:"critical_paths"`
	VulnerablePaths       [][]string         `json:"vulnerable_paths"`
	OrphanedDependencies  []string           `json:"orphaned_dependencies"`
	CircularDependencies  [][]string         `json:"circular_dependencies"`
	SinglePointsOfFailure []string           `json:"single_points_of_failure"`
	SupplyChainScore      float64            `json:"supply_chain_score"`
	Recommendations       []string           `json:"recommendations"`
	Nodes                 []Node             `json:"nodes"`
	Edges                 []Edge             `json:"edges"`
	DroppedRelationships  int                `json:"dropped_relationships"`
	EnrichmentErrors      int                `json:"enrichment_errors"`
	Partial               bool               `json:"partial"`
}

// Node returns the node with id, or nil.
func (a *Analysis) Node(id string) *Node {
	for i := range a.Nodes {
		if a.Nodes[i].ID == id {
			return &a.Nodes[i]
		}
	}
	return nil
}
