package supplychain

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

const (
	pageRankDamping   = 0.85
	pageRankTolerance = 1e-6
	pageRankMaxIter   = 100
)

var errPageRankNoConvergence = errors.New("pagerank did not converge")

// computeCentrality fills the Centrality of every node. A metric that fails
// is logged and left at zero for all nodes.
func computeCentrality(g *graph, logger *slog.Logger) (betweenness []float64) {
	n := g.len()
	if n == 0 {
		return nil
	}

	betweenness = guardMetric(logger, "betweenness", n, func() ([]float64, error) {
		return betweennessCentrality(g), nil
	})
	closeness := guardMetric(logger, "closeness", n, func() ([]float64, error) {
		return closenessCentrality(g), nil
	})
	pagerank := guardMetric(logger, "pagerank", n, func() ([]float64, error) {
		return pageRank(g, pageRankDamping, pageRankTolerance, pageRankMaxIter)
	})

	for v, node := range g.nodes {
		node.Centrality = Centrality{
			Betweenness: betweenness[v],
			Closeness:   closeness[v],
			PageRank:    pagerank[v],
		}
	}
	return betweenness
}

func guardMetric(logger *slog.Logger, name string, n int, compute func() ([]float64, error)) (values []float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("centrality computation failed",
				"metric", name,
				"error", fmt.Sprint(r),
			)
			values = make([]float64, n)
		}
	}()

	values, err := compute()
	if err != nil {
		logger.Warn("centrality computation failed",
			"metric", name,
			"error", err,
		)
		return make([]float64, n)
	}
	return values
}

// betweennessCentrality is Brandes' algorithm for unweighted directed graphs,
// normalised by 1/((n-1)(n-2)).
func betweennessCentrality(g *graph) []float64 {
	n := g.len()
	cb := make([]float64, n)

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	order := make([]int, 0, n)

	for s := 0; s < n; s++ {
		for v := 0; v < n; v++ {
			sigma[v] = 0
			dist[v] = -1
			delta[v] = 0
			preds[v] = preds[v][:0]
		}
		order = order[:0]
		sigma[s] = 1
		dist[s] = 0

		queue := []int{s}
		for head := 0; head < len(queue); head++ {
			v := queue[head]
			order = append(order, v)
			for _, w := range g.succ[v] {
				if w == v {
					continue
				}
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}

	if n > 2 {
		scale := 1 / float64((n-1)*(n-2))
		for v := range cb {
			cb[v] *= scale
		}
	}
	return cb
}

// closenessCentrality uses incoming distances with the Wasserman-Faust
// correction for graphs that are not strongly connected.
func closenessCentrality(g *graph) []float64 {
	n := g.len()
	cc := make([]float64, n)
	if n <= 1 {
		return cc
	}

	dist := make([]int, n)
	for u := 0; u < n; u++ {
		for v := range dist {
			dist[v] = -1
		}
		dist[u] = 0
		total, reached := 0, 1

		queue := []int{u}
		for head := 0; head < len(queue); head++ {
			v := queue[head]
			for _, w := range g.pred[v] {
				if dist[w] >= 0 {
					continue
				}
				dist[w] = dist[v] + 1
				total += dist[w]
				reached++
				queue = append(queue, w)
			}
		}

		if total > 0 {
			r := float64(reached - 1)
			cc[u] = (r / float64(total)) * (r / float64(n-1))
		}
	}
	return cc
}

// pageRank runs the power iteration with uniform teleport and dangling mass
// redistributed uniformly.
func pageRank(g *graph, alpha, tol float64, maxIter int) ([]float64, error) {
	n := g.len()
	if n == 0 {
		return nil, nil
	}

	uniform := 1 / float64(n)
	x := make([]float64, n)
	for v := range x {
		x[v] = uniform
	}

	next := make([]float64, n)
	for iter := 0; iter < maxIter; iter++ {
		dangling := 0.0
		for v := range x {
			if len(g.succ[v]) == 0 {
				dangling += x[v]
			}
		}
		base := alpha*dangling*uniform + (1-alpha)*uniform
		for v := range next {
			next[v] = base
		}
		for v := range x {
			out := len(g.succ[v])
			if out == 0 {
				continue
			}
			share := alpha * x[v] / float64(out)
			for _, w := range g.succ[v] {
				next[w] += share
			}
		}

		diff := 0.0
		for v := range x {
			diff += math.Abs(next[v] - x[v])
		}
		x, next = next, x
		if diff < float64(n)*tol {
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w after %d iterations", errPageRankNoConvergence, maxIter)
}
