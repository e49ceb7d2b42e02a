package supplychain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantumlayerhq/ql-supplychain/pkg/enrichment"
	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
	"github.com/quantumlayerhq/ql-supplychain/pkg/telemetry"
)

// Options tune the analysis. Zero values fall back to DefaultOptions.
type Options struct {
	// BatchSize is the number of nodes enriched concurrently.
	BatchSize int
	// LookupTimeout bounds every single collaborator call.
	LookupTimeout time.Duration
	// StrictReferences rejects documents with dangling relationships.
	StrictReferences bool

	MaxPathLength         int
	MaxPathSearch         int
	MaxReportedPaths      int
	CriticalPathThreshold float64

	MaxCycles      int
	MaxCycleLength int
	// MaxCycleSearch caps the steps of the cycle search.
	MaxCycleSearch int

	SPOFMinDependents int

	// HighRiskThreshold is the node risk above which a node is penalised
	// and named in recommendations.
	HighRiskThreshold float64
	// ComplexityDepth is the max depth above which flattening is recommended.
	ComplexityDepth int
}

// DefaultOptions returns the standard analysis settings.
func DefaultOptions() Options {
	return Options{
		BatchSize:             10,
		LookupTimeout:         10 * time.Second,
		MaxPathLength:         50,
		MaxPathSearch:         10000,
		MaxReportedPaths:      10,
		CriticalPathThreshold: 6.0,
		MaxCycles:             100,
		MaxCycleLength:        25,
		MaxCycleSearch:        100000,
		SPOFMinDependents:     2,
		HighRiskThreshold:     7.0,
		ComplexityDepth:       10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = d.LookupTimeout
	}
	if o.MaxPathLength <= 0 {
		o.MaxPathLength = d.MaxPathLength
	}
	if o.MaxPathSearch <= 0 {
		o.MaxPathSearch = d.MaxPathSearch
	}
	if o.MaxReportedPaths <= 0 {
		o.MaxReportedPaths = d.MaxReportedPaths
	}
	if o.CriticalPathThreshold <= 0 {
		o.CriticalPathThreshold = d.CriticalPathThreshold
	}
	if o.MaxCycles <= 0 {
		o.MaxCycles = d.MaxCycles
	}
	if o.MaxCycleLength <= 0 {
		o.MaxCycleLength = d.MaxCycleLength
	}
	if o.MaxCycleSearch <= 0 {
		o.MaxCycleSearch = d.MaxCycleSearch
	}
	if o.SPOFMinDependents <= 0 {
		o.SPOFMinDependents = d.SPOFMinDependents
	}
	if o.HighRiskThreshold <= 0 {
		o.HighRiskThreshold = d.HighRiskThreshold
	}
	if o.ComplexityDepth <= 0 {
		o.ComplexityDepth = d.ComplexityDepth
	}
	return o
}

// Clients are the enrichment collaborators. Any of them may be nil.
type Clients = enrichment.Stack

// Analyzer runs supply-chain analyses. It is safe for concurrent use.
type Analyzer struct {
	opts    Options
	clients Clients
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(opts Options, clients Clients, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		opts:    opts.withDefaults(),
		clients: clients,
		logger:  logger.With("component", "supplychain-analyzer"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// Analyze builds the dependency graph of doc, enriches it, and computes the
// structural findings and score. Enrichment failures and cancellation never
// fail the analysis; a cancelled run is marked Partial.
func (a *Analyzer) Analyze(ctx context.Context, doc *sbom.Document) (*Analysis, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrMalformedSBOM)
	}

	id := a.newID()
	ctx, span := telemetry.AnalysisSpan(ctx, id, len(doc.Components), len(doc.Relationships))
	defer span.End()
	logger := a.logger.With("analysis_id", id)

	b, err := a.build(doc)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	g := b.g
	depths := computeDepths(g)

	failures, partial := a.enrich(ctx, g)

	for v, n := range g.nodes {
		project(n)
		n.Depth = depths.depth(v)
		n.RiskScore = NodeRisk(infoOf(n, MetaRegistryInfo), infoOf(n, MetaSecurityInfo), n.Depth)
		n.RiskLevel = RiskLevelFor(n.RiskScore)
		n.TrustLevel = Trust(infoOf(n, MetaTrustInfo))
		n.DependencyType = classify(g, v, b.scopes[v], depths)
	}

	edges := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		from, to := e[0], e[1]
		edge := Edge{
			SourceID:          g.nodes[from].ID,
			TargetID:          g.nodes[to].ID,
			DependencyType:    edgeDependencyType(b.scopes[to], depths.dist[from] == 0),
			VersionConstraint: "*",
			RiskContribution:  edgeRisk(g.nodes[from], g.nodes[to]),
		}
		if o := depths.origin[from]; o >= 0 {
			introducer := g.nodes[o].ID
			edge.IntroducedBy = &introducer
		}
		edges = append(edges, edge)
	}

	betweenness := computeCentrality(g, logger)

	paths := findPaths(g, pathLimits{
		maxLength:   a.opts.MaxPathLength,
		maxSearch:   a.opts.MaxPathSearch,
		maxReported: a.opts.MaxReportedPaths,
		threshold:   a.opts.CriticalPathThreshold,
	})
	cycles := findCycles(g, cycleLimits{
		maxCycles: a.opts.MaxCycles,
		maxLength: a.opts.MaxCycleLength,
		maxSearch: a.opts.MaxCycleSearch,
	})
	orphaned := findOrphans(g)
	spofs := singlePointsOfFailure(g, a.opts.SPOFMinDependents, betweenness)

	nodes := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		nodes[i] = *n
	}

	analysis := &Analysis{
		ID:                    id,
		Timestamp:             a.now(),
		SBOMName:              doc.Name,
		TotalNodes:            len(nodes),
		TotalEdges:            len(edges),
		MaxDepth:              depths.max,
		RiskDistribution:      riskDistribution(nodes),
		TrustDistribution:     trustDistribution(nodes),
		CriticalPaths:         idPaths(g, paths.critical),
		VulnerablePaths:       idPaths(g, paths.vulnerable),
		OrphanedDependencies:  g.ids(orphaned),
		CircularDependencies:  idPaths(g, cycles),
		SinglePointsOfFailure: g.ids(spofs),
		Nodes:                 nodes,
		Edges:                 edges,
		DroppedRelationships:  b.dropped,
		EnrichmentErrors:      failures,
		Partial:               partial,
	}
	if len(nodes) > 0 {
		analysis.AverageDegree = 2 * float64(len(edges)) / float64(len(nodes))
	}
	analysis.SupplyChainScore = Score(nodes,
		len(analysis.CircularDependencies),
		len(analysis.SinglePointsOfFailure),
		len(analysis.OrphanedDependencies),
		a.opts.HighRiskThreshold,
	)
	analysis.Recommendations = recommendations(findings{
		nodes:        nodes,
		index:        g.index,
		vulnerable:   analysis.VulnerablePaths,
		cycles:       analysis.CircularDependencies,
		spofs:        analysis.SinglePointsOfFailure,
		orphans:      analysis.OrphanedDependencies,
		maxDepth:     analysis.MaxDepth,
		highRisk:     a.opts.HighRiskThreshold,
		complexDepth: a.opts.ComplexityDepth,
	})

	span.SetAttribute("analysis.nodes", analysis.TotalNodes)
	span.SetAttribute("analysis.edges", analysis.TotalEdges)
	span.SetAttribute("analysis.score", analysis.SupplyChainScore)
	span.SetAttribute("analysis.partial", analysis.Partial)
	span.SetOK()

	logger.Info("supply chain analysis complete",
		"nodes", analysis.TotalNodes,
		"edges", analysis.TotalEdges,
		"cycles", len(analysis.CircularDependencies),
		"single_points_of_failure", len(analysis.SinglePointsOfFailure),
		"dropped_relationships", analysis.DroppedRelationships,
		"enrichment_errors", analysis.EnrichmentErrors,
		"partial", analysis.Partial,
		"score", analysis.SupplyChainScore,
	)

	return analysis, nil
}

func edgeDependencyType(targetScope string, sourceIsRoot bool) DependencyType {
	if t, ok := scopeDependencyType(targetScope); ok {
		return t
	}
	if sourceIsRoot {
		return DependencyDirect
	}
	return DependencyTransitive
}

func idPaths(g *graph, paths [][]int) [][]string {
	out := make([][]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, g.ids(p))
	}
	return out
}
