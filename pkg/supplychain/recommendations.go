package supplychain

import (
	"fmt"
	"strings"
)

// bestPractices are appended to every set of recommendations.
var bestPractices = []string{
	"Implement dependency pinning with exact versions for critical components",
	"Set up automated dependency scanning and vulnerability monitoring",
	"Establish a software bill of materials (SBOM) generation process",
	"Create a dependency approval process for new packages",
	"Implement package signature verification where available",
	"Regular audit and cleanup of unused dependencies",
}

const namedInRecommendation = 3

// findings is what the recommendation rules look at.
type findings struct {
	nodes        []Node
	index        map[string]int
	vulnerable   [][]string
	cycles       [][]string
	spofs        []string
	orphans      []string
	maxDepth     int
	highRisk     float64
	complexDepth int
}

func (f *findings) name(id string) string {
	if i, ok := f.index[id]; ok {
		return f.nodes[i].DisplayName()
	}
	return id
}

// firstNames returns up to three distinct display names for ids. Versions
// of one package are named once.
func (f *findings) firstNames(ids []string) string {
	seen := make(map[string]struct{}, namedInRecommendation)
	names := make([]string, 0, namedInRecommendation)
	for _, id := range ids {
		if len(names) == namedInRecommendation {
			break
		}
		name := f.name(id)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func recommendations(f findings) []string {
	var recs []string

	var highRisk, untrusted []string
	for i := range f.nodes {
		if f.nodes[i].RiskScore > f.highRisk {
			highRisk = append(highRisk, f.nodes[i].ID)
		}
		if f.nodes[i].TrustLevel == TrustUntrusted {
			untrusted = append(untrusted, f.nodes[i].ID)
		}
	}

	if len(highRisk) > 0 {
		recs = append(recs, fmt.Sprintf(
			"CRITICAL: %d components have high supply chain risk. Review and consider alternatives for: %s",
			len(highRisk), f.firstNames(highRisk)))
	}

	if len(untrusted) > 0 {
		recs = append(recs, fmt.Sprintf(
			"SECURITY: %d components are untrusted. Verify authenticity and consider removal: %s",
			len(untrusted), f.firstNames(untrusted)))
	}

	if len(f.vulnerable) > 0 {
		var vulnerable []string
		for _, path := range f.vulnerable {
			for _, id := range path {
				if i, ok := f.index[id]; ok && f.nodes[i].SecurityMetrics.VulnerabilityCount > 0 {
					vulnerable = append(vulnerable, id)
				}
			}
		}
		recs = append(recs, fmt.Sprintf(
			"VULNERABILITY: %d dependency paths reach vulnerable components. Upgrade or replace: %s",
			len(f.vulnerable), f.firstNames(vulnerable)))
	}

	if len(f.cycles) > 0 {
		var members []string
		for _, cycle := range f.cycles {
			members = append(members, cycle...)
		}
		recs = append(recs, fmt.Sprintf(
			"ARCHITECTURE: %d circular dependencies detected. Refactor to eliminate circular references and reduce complexity: %s",
			len(f.cycles), f.firstNames(members)))
	}

	if len(f.spofs) > 0 {
		recs = append(recs, fmt.Sprintf(
			"RESILIENCE: %d single points of failure identified. Consider alternative packages or implement redundancy for: %s",
			len(f.spofs), f.firstNames(f.spofs)))
	}

	if len(f.orphans) > 0 {
		recs = append(recs, fmt.Sprintf(
			"CLEANUP: %d orphaned dependencies found. Remove unused dependencies to reduce attack surface: %s",
			len(f.orphans), f.firstNames(f.orphans)))
	}

	if f.maxDepth > f.complexDepth {
		recs = append(recs, fmt.Sprintf(
			"COMPLEXITY: Dependency chain depth is %d. Consider flattening dependencies to reduce supply chain complexity.",
			f.maxDepth))
	}

	return append(recs, bestPractices...)
}
