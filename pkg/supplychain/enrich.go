package supplychain

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quantumlayerhq/ql-supplychain/pkg/enrichment"
	"github.com/quantumlayerhq/ql-supplychain/pkg/telemetry"
)

// enrichResult is the pure outcome of enriching one node. It is merged into
// the graph by the coordinating goroutine once the whole batch is done.
type enrichResult struct {
	registry enrichment.Info
	security enrichment.Info
	trust    enrichment.Info

	attempted int
	failed    int
}

// enrich looks up registry, security and trust data for every node in
// sequential batches. It returns the number of failed lookups and whether
// the context was cancelled before every node was enriched.
func (a *Analyzer) enrich(ctx context.Context, g *graph) (failures int, partial bool) {
	if a.clients.Security == nil && a.clients.Trust == nil && len(a.clients.Registries) == 0 {
		return 0, false
	}

	size := a.opts.BatchSize
	for batch, start := 0, 0; start < g.len(); batch, start = batch+1, start+size {
		if ctx.Err() != nil {
			a.logger.Warn("enrichment cancelled",
				"enriched", start,
				"total", g.len(),
			)
			return failures, true
		}

		end := min(start+size, g.len())
		nodes := g.nodes[start:end]
		results := make([]enrichResult, len(nodes))

		batchCtx, span := telemetry.EnrichmentSpan(ctx, batch, len(nodes))
		var eg errgroup.Group
		for i, n := range nodes {
			eg.Go(func() error {
				results[i] = a.enrichNode(batchCtx, n)
				return nil
			})
		}
		_ = eg.Wait()

		batchFailures := 0
		for i, n := range nodes {
			r := results[i]
			if r.registry != nil {
				n.Metadata[MetaRegistryInfo] = r.registry
			}
			if r.security != nil {
				n.Metadata[MetaSecurityInfo] = r.security
			}
			if r.trust != nil {
				n.Metadata[MetaTrustInfo] = r.trust
			}
			n.Enriched = r.attempted > 0 && r.failed == 0
			batchFailures += r.failed
		}
		failures += batchFailures
		span.SetAttribute("enrichment.failures", batchFailures)
		span.End()
	}

	if ctx.Err() != nil {
		return failures, true
	}
	return failures, false
}

func (a *Analyzer) enrichNode(ctx context.Context, n *Node) enrichResult {
	var r enrichResult

	if client := a.clients.Registries[n.PackageManager]; client != nil {
		r.registry = a.lookup(ctx, n, "registry", &r, func(ctx context.Context) (enrichment.Info, error) {
			return client.GetPackageInfo(ctx, n.Name, n.Version)
		})
	}
	if client := a.clients.Security; client != nil {
		r.security = a.lookup(ctx, n, "security", &r, func(ctx context.Context) (enrichment.Info, error) {
			return client.GetSecurityInfo(ctx, n.Name, n.Version, n.PackageManager)
		})
	}
	if client := a.clients.Trust; client != nil {
		r.trust = a.lookup(ctx, n, "trust", &r, func(ctx context.Context) (enrichment.Info, error) {
			return client.GetTrustInfo(ctx, n.Name, n.Version, n.PackageManager)
		})
	}
	return r
}

// lookup runs one collaborator call bounded by the lookup timeout. A client
// that ignores its context is abandoned when the timeout fires. Failures are
// logged and yield nil.
func (a *Analyzer) lookup(ctx context.Context, n *Node, source string, r *enrichResult,
	call func(context.Context) (enrichment.Info, error)) enrichment.Info {
	r.attempted++

	lctx, cancel := context.WithTimeout(ctx, a.opts.LookupTimeout)
	defer cancel()

	type outcome struct {
		info enrichment.Info
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("lookup panicked: %v", p)}
			}
		}()
		info, err := call(lctx)
		done <- outcome{info: info, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-lctx.Done():
		res.err = lctx.Err()
	}

	if res.err != nil {
		r.failed++
		if ctx.Err() == nil {
			a.logger.Warn("enrichment lookup failed",
				"node", n.ID,
				"source", source,
				"error", res.err,
			)
		}
		return nil
	}
	if res.info == nil {
		return enrichment.Info{}
	}
	return res.info.Clone()
}
