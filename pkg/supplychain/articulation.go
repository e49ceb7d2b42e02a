package supplychain

import "sort"

// articulationPoints marks the cut vertices of an undirected graph given as
// adjacency lists, using an iterative Hopcroft-Tarjan traversal.
func articulationPoints(adj [][]int) []bool {
	n := len(adj)
	disc := make([]int, n)
	low := make([]int, n)
	parent := make([]int, n)
	cut := make([]bool, n)
	for i := range parent {
		parent[i] = -1
	}

	type frame struct{ v, next, children int }
	timer := 0

	for s := 0; s < n; s++ {
		if disc[s] != 0 {
			continue
		}
		timer++
		disc[s], low[s] = timer, timer
		stack := []frame{{v: s}}

		for len(stack) > 0 {
			top := len(stack) - 1
			v := stack[top].v
			if stack[top].next < len(adj[v]) {
				w := adj[v][stack[top].next]
				stack[top].next++
				if disc[w] == 0 {
					parent[w] = v
					stack[top].children++
					timer++
					disc[w], low[w] = timer, timer
					stack = append(stack, frame{v: w})
				} else if w != parent[v] && disc[w] < low[v] {
					low[v] = disc[w]
				}
				continue
			}

			children := stack[top].children
			stack = stack[:top]
			if top == 0 {
				if children > 1 {
					cut[v] = true
				}
				continue
			}
			u := stack[top-1].v
			if low[v] < low[u] {
				low[u] = low[v]
			}
			if parent[u] != -1 && low[v] >= disc[u] {
				cut[u] = true
			}
		}
	}
	return cut
}

// singlePointsOfFailure returns the cut vertices of the undirected
// projection that have at least minDependents distinct direct dependents,
// ordered by betweenness (highest first) and then by ID.
func singlePointsOfFailure(g *graph, minDependents int, betweenness []float64) []int {
	cut := articulationPoints(g.neighbors())

	var spofs []int
	for v, isCut := range cut {
		if isCut && g.inDegree(v) >= minDependents {
			spofs = append(spofs, v)
		}
	}

	sort.SliceStable(spofs, func(i, j int) bool {
		a, b := spofs[i], spofs[j]
		if betweenness[a] != betweenness[b] {
			return betweenness[a] > betweenness[b]
		}
		return g.nodes[a].ID < g.nodes[b].ID
	})
	return spofs
}
