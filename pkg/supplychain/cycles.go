package supplychain

import "sort"

// stronglyConnected returns the strongly connected components of the
// subgraph induced by member, using an iterative Tarjan traversal.
func stronglyConnected(g *graph, member []bool) [][]int {
	n := g.len()
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	type frame struct{ v, next int }
	var (
		stack []int
		comps [][]int
		count int
	)

	for s := 0; s < n; s++ {
		if !member[s] || index[s] != -1 {
			continue
		}
		index[s], low[s] = count, count
		count++
		stack = append(stack, s)
		onStack[s] = true
		call := []frame{{v: s}}

		for len(call) > 0 {
			top := len(call) - 1
			v := call[top].v
			if call[top].next < len(g.succ[v]) {
				w := g.succ[v][call[top].next]
				call[top].next++
				if !member[w] {
					continue
				}
				if index[w] == -1 {
					index[w], low[w] = count, count
					count++
					stack = append(stack, w)
					onStack[w] = true
					call = append(call, frame{v: w})
				} else if onStack[w] && index[w] < low[v] {
					low[v] = index[w]
				}
				continue
			}

			if low[v] == index[v] {
				var comp []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				comps = append(comps, comp)
			}
			call = call[:top]
			if top > 0 {
				if u := call[top-1].v; low[v] < low[u] {
					low[u] = low[v]
				}
			}
		}
	}
	return comps
}

// cycleLimits bound the cycle search. maxSearch caps the number of circuit
// calls. Zero means unbounded.
type cycleLimits struct {
	maxCycles int
	maxLength int
	maxSearch int
}

// cycleSearch enumerates simple cycles with Johnson's algorithm. Every bound
// stops the search itself.
type cycleSearch struct {
	g         *graph
	maxCycles int
	maxLength int
	maxSearch int
	steps     int

	inComp   []bool
	blocked  []bool
	blockMap []map[int]struct{}
	path     []int
	cycles   [][]int
	stopped  bool
}

// findCycles returns every simple cycle, each starting at its node with the
// lowest insertion index. Self-loops are cycles of length one.
func findCycles(g *graph, limits cycleLimits) [][]int {
	n := g.len()
	unbounded := int(^uint(0) >> 1)
	maxLength := limits.maxLength
	if maxLength <= 0 || maxLength > n {
		maxLength = n
	}
	maxCycles := limits.maxCycles
	if maxCycles <= 0 {
		maxCycles = unbounded
	}
	maxSearch := limits.maxSearch
	if maxSearch <= 0 {
		maxSearch = unbounded
	}

	s := &cycleSearch{
		g:         g,
		maxCycles: maxCycles,
		maxLength: maxLength,
		maxSearch: maxSearch,
		inComp:    make([]bool, n),
		blocked:   make([]bool, n),
		blockMap:  make([]map[int]struct{}, n),
	}

	for v := 0; v < n && !s.stopped; v++ {
		if g.hasSelfLoop(v) {
			s.emit([]int{v})
		}
	}

	all := make([]bool, n)
	for v := range all {
		all[v] = true
	}
	pending := nonTrivial(stronglyConnected(g, all))

	for len(pending) > 0 && !s.stopped {
		comp := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		start := comp[0]
		for _, v := range comp {
			if v < start {
				start = v
			}
		}
		for _, v := range comp {
			s.inComp[v] = true
			s.blocked[v] = false
			s.blockMap[v] = nil
		}

		s.circuit(start, start)

		rest := make([]bool, n)
		for _, v := range comp {
			s.inComp[v] = false
			if v != start {
				rest[v] = true
			}
		}
		pending = append(pending, nonTrivial(stronglyConnected(g, rest))...)
	}

	cycles := s.cycles
	sort.SliceStable(cycles, func(i, j int) bool {
		a, b := cycles[i], cycles[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return cycles
}

func nonTrivial(comps [][]int) [][]int {
	out := comps[:0]
	for _, c := range comps {
		if len(c) > 1 {
			out = append(out, c)
		}
	}
	return out
}

func (s *cycleSearch) emit(cycle []int) {
	s.cycles = append(s.cycles, cycle)
	if len(s.cycles) >= s.maxCycles {
		s.stopped = true
	}
}

// circuit explores paths from v back to start. It reports whether v can
// reach start, in which case v must not stay blocked. A path cut short by
// the length bound counts as reaching start so that v is released.
func (s *cycleSearch) circuit(v, start int) bool {
	found := false
	s.path = append(s.path, v)
	s.blocked[v] = true

	s.steps++
	if s.steps >= s.maxSearch {
		s.stopped = true
	}

	for _, w := range s.g.succ[v] {
		if s.stopped {
			found = true
			break
		}
		if !s.inComp[w] || w == v {
			continue
		}
		if w == start {
			s.emit(append([]int(nil), s.path...))
			found = true
			continue
		}
		if len(s.path) >= s.maxLength {
			found = true
			continue
		}
		if !s.blocked[w] && s.circuit(w, start) {
			found = true
		}
	}

	if found {
		s.unblock(v)
	} else {
		for _, w := range s.g.succ[v] {
			if !s.inComp[w] || w == v {
				continue
			}
			if s.blockMap[w] == nil {
				s.blockMap[w] = make(map[int]struct{})
			}
			s.blockMap[w][v] = struct{}{}
		}
	}

	s.path = s.path[:len(s.path)-1]
	return found
}

func (s *cycleSearch) unblock(v int) {
	work := []int{v}
	for len(work) > 0 {
		u := work[len(work)-1]
		work = work[:len(work)-1]
		if !s.blocked[u] {
			continue
		}
		s.blocked[u] = false
		for w := range s.blockMap[u] {
			work = append(work, w)
		}
		s.blockMap[u] = nil
	}
}
