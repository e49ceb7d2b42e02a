package supplychain

// depthInfo is the result of a multi-source BFS from the graph entries.
type depthInfo struct {
	// dist is the shortest distance from any entry.
	dist []int
	// origin is the depth-1 ancestor on the BFS tree, -1 for entries.
	origin []int
	max    int
}

func computeDepths(g *graph) depthInfo {
	n := g.len()
	info := depthInfo{dist: make([]int, n), origin: make([]int, n)}
	for v := range info.dist {
		info.dist[v] = -1
		info.origin[v] = -1
	}

	queue := make([]int, 0, n)
	for _, r := range g.entries() {
		info.dist[r] = 0
		queue = append(queue, r)
	}

	for head := 0; head < len(queue); head++ {
		v := queue[head]
		for _, w := range g.succ[v] {
			if info.dist[w] != -1 {
				continue
			}
			info.dist[w] = info.dist[v] + 1
			if info.dist[v] == 0 {
				info.origin[w] = w
			} else {
				info.origin[w] = info.origin[v]
			}
			if info.dist[w] > info.max {
				info.max = info.dist[w]
			}
			queue = append(queue, w)
		}
	}
	return info
}

// depth returns the BFS depth of v, 0 when unreachable.
func (d depthInfo) depth(v int) int {
	if d.dist[v] < 0 {
		return 0
	}
	return d.dist[v]
}
