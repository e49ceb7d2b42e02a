package supplychain

import "sort"

// graph is the in-memory dependency graph. Nodes are addressed by their
// insertion index so that every traversal is deterministic.
type graph struct {
	nodes []*Node
	index map[string]int

	// succ and pred hold distinct neighbours in first-seen order. A self-loop
	// appears in both lists of its node.
	succ [][]int
	pred [][]int
	pair map[[2]int]struct{}

	// edges are the depends_on relationships exactly as declared.
	edges [][2]int
}

func newGraph() *graph {
	return &graph{
		index: make(map[string]int),
		pair:  make(map[[2]int]struct{}),
	}
}

func (g *graph) len() int {
	return len(g.nodes)
}

func (g *graph) addNode(n *Node) int {
	if i, ok := g.index[n.ID]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[n.ID] = i
	g.succ = append(g.succ, nil)
	g.pred = append(g.pred, nil)
	return i
}

func (g *graph) addEdge(from, to int) {
	g.edges = append(g.edges, [2]int{from, to})
	key := [2]int{from, to}
	if _, ok := g.pair[key]; ok {
		return
	}
	g.pair[key] = struct{}{}
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
}

func (g *graph) hasSelfLoop(v int) bool {
	_, ok := g.pair[[2]int{v, v}]
	return ok
}

// inDegree counts distinct predecessors other than v itself.
func (g *graph) inDegree(v int) int {
	d := len(g.pred[v])
	if g.hasSelfLoop(v) {
		d--
	}
	return d
}

// roots are nodes without predecessors (self-loops ignored). A non-empty
// graph in which every node has a predecessor falls back to its first node.
func (g *graph) roots() []int {
	var roots []int
	for v := range g.nodes {
		if g.inDegree(v) == 0 {
			roots = append(roots, v)
		}
	}
	if len(roots) == 0 && g.len() > 0 {
		roots = []int{0}
	}
	return roots
}

// entries are the roots followed by the lowest-index node of every source
// component that no root reaches, so that every node is reachable from at
// least one entry.
func (g *graph) entries() []int {
	n := g.len()
	roots := g.roots()

	reached := make([]bool, n)
	queue := make([]int, 0, n)
	for _, r := range roots {
		reached[r] = true
		queue = append(queue, r)
	}
	for head := 0; head < len(queue); head++ {
		for _, w := range g.succ[queue[head]] {
			if !reached[w] {
				reached[w] = true
				queue = append(queue, w)
			}
		}
	}
	if len(queue) == n {
		return roots
	}

	rest := make([]bool, n)
	for v := range rest {
		rest[v] = !reached[v]
	}
	comps := stronglyConnected(g, rest)
	compOf := make([]int, n)
	for i, comp := range comps {
		for _, v := range comp {
			compOf[v] = i
		}
	}

	// Every predecessor of an unreached node is unreached too, so a
	// component without predecessors outside itself is a source.
	fed := make([]bool, len(comps))
	for v := 0; v < n; v++ {
		if !rest[v] {
			continue
		}
		for _, w := range g.succ[v] {
			if compOf[w] != compOf[v] {
				fed[compOf[w]] = true
			}
		}
	}

	entries := append([]int(nil), roots...)
	var seeds []int
	for i, comp := range comps {
		if fed[i] {
			continue
		}
		seed := comp[0]
		for _, v := range comp {
			if v < seed {
				seed = v
			}
		}
		seeds = append(seeds, seed)
	}
	sort.Ints(seeds)
	return append(entries, seeds...)
}

// neighbors returns the undirected projection without self-loops.
func (g *graph) neighbors() [][]int {
	adj := make([][]int, g.len())
	seen := make(map[[2]int]struct{}, len(g.pair)*2)
	link := func(a, b int) {
		if a == b {
			return
		}
		if _, ok := seen[[2]int{a, b}]; ok {
			return
		}
		seen[[2]int{a, b}] = struct{}{}
		seen[[2]int{b, a}] = struct{}{}
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for v := range g.nodes {
		for _, w := range g.succ[v] {
			link(v, w)
		}
	}
	return adj
}

func (g *graph) ids(vs []int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = g.nodes[v].ID
	}
	return out
}
