package supplychain

import (
	"github.com/quantumlayerhq/ql-supplychain/pkg/enrichment"
	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

// Defaults applied when registry or trust data is unknown.
const (
	defaultAgeDays    = 365
	defaultDownloads  = 0
	defaultReputation = 0.5

	newPackageDays = 30
	oldPackageDays = 5 * 365

	maxRisk = 10.0
)

// Metadata keys holding the raw enrichment results of a node.
const (
	MetaRegistryInfo = "registry_info"
	MetaSecurityInfo = "security_info"
	MetaTrustInfo    = "trust_info"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func infoOf(n *Node, key string) enrichment.Info {
	if info, ok := n.Metadata[key].(enrichment.Info); ok {
		return info
	}
	return enrichment.Info{}
}

// NodeRisk scores a node from its enrichment data and depth. Unknown data
// uses the registry defaults, so an unenriched node is not risk free.
func NodeRisk(registry, security enrichment.Info, depth int) float64 {
	risk := 0.0

	risk += float64(security.Int(enrichment.KeyCriticalVulnerabilities, 0)) * 2.0
	risk += float64(security.Int(enrichment.KeyVulnerabilityCount, 0)) * 0.5

	age := registry.Int(enrichment.KeyAgeDays, defaultAgeDays)
	switch {
	case age < newPackageDays:
		risk += 1.0
	case age > oldPackageDays:
		risk += 0.5
	}

	downloads := registry.Int(enrichment.KeyDownloads, defaultDownloads)
	switch {
	case downloads < 1000:
		risk += 1.0
	case downloads < 10000:
		risk += 0.5
	}

	switch registry.Count(enrichment.KeyMaintainers) {
	case 0:
		risk += 1.0
	case 1:
		risk += 0.5
	}

	risk += float64(depth) * 0.1

	return clamp(risk, 0, maxRisk)
}

// Trust grades a node from its trust data.
func Trust(trust enrichment.Info) TrustLevel {
	if trust.Bool(enrichment.KeySigned, false) {
		return TrustVerified
	}

	reputation := trust.Float(enrichment.KeyMaintainerReputation, defaultReputation)
	if reputation > 0.8 {
		return TrustTrusted
	}
	if reputation < 0.3 {
		return TrustSuspicious
	}

	if trust.Int(enrichment.KeySecurityIncidents, 0) > 3 {
		return TrustUntrusted
	}
	return TrustNeutral
}

func scopeDependencyType(scope string) (DependencyType, bool) {
	switch scope {
	case sbom.ScopeOptional:
		return DependencyOptional, true
	case sbom.ScopeDev, sbom.ScopeExcluded:
		return DependencyDev, true
	case sbom.ScopePeer:
		return DependencyPeer, true
	}
	return "", false
}

// classify returns the dependency type of node v. Scope wins; otherwise a
// node without predecessors or with a root predecessor is direct.
func classify(g *graph, v int, scope string, depths depthInfo) DependencyType {
	if t, ok := scopeDependencyType(scope); ok {
		return t
	}
	if g.inDegree(v) == 0 {
		return DependencyDirect
	}
	for _, p := range g.pred[v] {
		if p != v && depths.dist[p] == 0 {
			return DependencyDirect
		}
	}
	return DependencyTransitive
}

// edgeRisk is the mean of the endpoint risks.
func edgeRisk(source, target *Node) float64 {
	return (source.RiskScore + target.RiskScore) / 2
}

// project fills the typed views of the enrichment data.
func project(n *Node) {
	registry := infoOf(n, MetaRegistryInfo)
	security := infoOf(n, MetaSecurityInfo)
	trust := infoOf(n, MetaTrustInfo)

	n.MaintainerInfo = MaintainerInfo{
		Count:             registry.Count(enrichment.KeyMaintainers),
		Maintainers:       registry.Strings(enrichment.KeyMaintainers),
		Reputation:        trust.Float(enrichment.KeyMaintainerReputation, defaultReputation),
		SecurityIncidents: trust.Int(enrichment.KeySecurityIncidents, 0),
	}
	n.RepositoryInfo = RepositoryInfo{
		URL:       registry.String(enrichment.KeyRepository),
		AgeDays:   registry.Int(enrichment.KeyAgeDays, defaultAgeDays),
		Downloads: registry.Int(enrichment.KeyDownloads, defaultDownloads),
		License:   registry.String(enrichment.KeyLicense),
	}
	n.SecurityMetrics = SecurityMetrics{
		VulnerabilityCount:      security.Int(enrichment.KeyVulnerabilityCount, 0),
		CriticalVulnerabilities: security.Int(enrichment.KeyCriticalVulnerabilities, 0),
		Advisories:              security.Strings(enrichment.KeySecurityAdvisories),
		Signed:                  trust.Bool(enrichment.KeySigned, false),
	}
}
