package supplychain

// pathLimits bound the path enumeration.
type pathLimits struct {
	maxLength   int
	maxSearch   int
	maxReported int
	threshold   float64
}

// pathReport holds the critical and vulnerable paths found.
type pathReport struct {
	critical   [][]int
	vulnerable [][]int
	searched   int
}

// findPaths enumerates maximal simple paths from the graph entries with a bounded
// DFS. A path ends at a node whose successors are all already on the path,
// or when it reaches the length bound.
func findPaths(g *graph, limits pathLimits) pathReport {
	var report pathReport
	n := g.len()
	if n == 0 {
		return report
	}

	onPath := make([]bool, n)
	path := make([]int, 0, limits.maxLength)

	full := func() bool {
		return len(report.critical) >= limits.maxReported && len(report.vulnerable) >= limits.maxReported
	}
	done := func() bool {
		return report.searched >= limits.maxSearch || full()
	}

	record := func() {
		report.searched++
		risk := pathRisk(g, path)
		if risk >= limits.threshold && len(report.critical) < limits.maxReported {
			report.critical = append(report.critical, append([]int(nil), path...))
		}
		if len(report.vulnerable) < limits.maxReported && pathVulnerable(g, path) {
			report.vulnerable = append(report.vulnerable, append([]int(nil), path...))
		}
	}

	var walk func(v int)
	walk = func(v int) {
		path = append(path, v)
		onPath[v] = true

		extended := false
		if len(path) < limits.maxLength {
			for _, w := range g.succ[v] {
				if done() {
					break
				}
				if onPath[w] {
					continue
				}
				extended = true
				walk(w)
			}
		}
		if !extended && !done() {
			record()
		}

		onPath[v] = false
		path = path[:len(path)-1]
	}

	for _, r := range g.entries() {
		if done() {
			break
		}
		walk(r)
	}
	return report
}

// pathRisk is the largest edge risk contribution along the path, or the
// node risk for a single-node path.
func pathRisk(g *graph, path []int) float64 {
	if len(path) == 1 {
		return g.nodes[path[0]].RiskScore
	}
	worst := 0.0
	for i := 0; i+1 < len(path); i++ {
		if c := edgeRisk(g.nodes[path[i]], g.nodes[path[i+1]]); c > worst {
			worst = c
		}
	}
	return worst
}

func pathVulnerable(g *graph, path []int) bool {
	for _, v := range path {
		if g.nodes[v].SecurityMetrics.VulnerabilityCount > 0 {
			return true
		}
	}
	return false
}
