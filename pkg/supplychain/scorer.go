package supplychain

// Structural penalty weights.
const (
	penaltyCycle     = 0.5
	penaltySPOF      = 0.3
	penaltyOrphan    = 0.2
	penaltyHighRisk  = 0.4
	penaltyUntrusted = 0.6
)

// Score folds node risks and structural findings into a 0-10 score where
// higher is safer. Penalties are only clamped as a whole.
func Score(nodes []Node, cycles, spofs, orphans int, highRiskThreshold float64) float64 {
	if len(nodes) == 0 {
		return 0
	}

	total := 0.0
	for i := range nodes {
		total += maxRisk - nodes[i].RiskScore
	}
	base := total / float64(len(nodes))

	penalties := float64(cycles)*penaltyCycle +
		float64(spofs)*penaltySPOF +
		float64(orphans)*penaltyOrphan
	for i := range nodes {
		if nodes[i].RiskScore > highRiskThreshold {
			penalties += penaltyHighRisk
		}
		if nodes[i].TrustLevel == TrustUntrusted {
			penalties += penaltyUntrusted
		}
	}

	return clamp(base-penalties, 0, maxRisk)
}

func riskDistribution(nodes []Node) map[RiskLevel]int {
	dist := make(map[RiskLevel]int, len(RiskLevels))
	for _, level := range RiskLevels {
		dist[level] = 0
	}
	for i := range nodes {
		dist[RiskLevelFor(nodes[i].RiskScore)]++
	}
	return dist
}

func trustDistribution(nodes []Node) map[TrustLevel]int {
	dist := make(map[TrustLevel]int, len(TrustLevels))
	for _, level := range TrustLevels {
		dist[level] = 0
	}
	for i := range nodes {
		dist[nodes[i].TrustLevel]++
	}
	return dist
}

func findOrphans(g *graph) []int {
	var out []int
	for v := range g.nodes {
		if len(g.pred[v]) == 0 && len(g.succ[v]) == 0 {
			out = append(out, v)
		}
	}
	return out
}
