// Package pipeline wires the analyzer to its collaborators: enrichment
// sources from configuration, persistence and event publication. The CLI
// and the Kafka worker both run analyses through it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quantumlayerhq/ql-supplychain/pkg/config"
	"github.com/quantumlayerhq/ql-supplychain/pkg/enrichment"
	"github.com/quantumlayerhq/ql-supplychain/pkg/kafka"
	"github.com/quantumlayerhq/ql-supplychain/pkg/logger"
	"github.com/quantumlayerhq/ql-supplychain/pkg/resilience"
	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
	"github.com/quantumlayerhq/ql-supplychain/pkg/supplychain"
)

// Store persists analyses.
type Store interface {
	Save(ctx context.Context, a *supplychain.Analysis) error
}

// Publisher publishes events.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.Event) error
}

// AnalyzerOptions maps the analyzer configuration section to analyzer options.
func AnalyzerOptions(cfg config.AnalyzerConfig) supplychain.Options {
	return supplychain.Options{
		BatchSize:             cfg.BatchSize,
		LookupTimeout:         cfg.LookupTimeout,
		StrictReferences:      cfg.StrictReferences,
		MaxPathLength:         cfg.MaxPathLength,
		MaxPathSearch:         cfg.MaxPathSearch,
		MaxReportedPaths:      cfg.MaxReportedPaths,
		CriticalPathThreshold: cfg.CriticalPathThreshold,
		MaxCycles:             cfg.MaxCycles,
		MaxCycleLength:        cfg.MaxCycleLength,
		MaxCycleSearch:        cfg.MaxCycleSearch,
		SPOFMinDependents:     cfg.SPOFMinDependents,
		HighRiskThreshold:     cfg.HighRiskThreshold,
		ComplexityDepth:       cfg.ComplexityDepth,
	}
}

// Clients builds the enrichment collaborators described by cfg. Every
// source is guarded by a circuit breaker and fronted by a shared cache.
// The returned registry exposes the breakers for logging. A disabled
// configuration yields no clients, so every node keeps the default risk.
func Clients(cfg config.EnrichmentConfig, log *slog.Logger) (supplychain.Clients, *resilience.Registry) {
	if !cfg.Enabled {
		return supplychain.Clients{}, nil
	}
	if log == nil {
		log = slog.Default()
	}

	stack := enrichment.Stack{
		Registries: enrichment.DefaultRegistries(),
		Security:   enrichment.PlaceholderSecurity{},
		Trust:      enrichment.PlaceholderTrust{},
	}
	if cfg.OSVEnabled {
		stack.Security = enrichment.NewOSVClient(cfg.OSVEndpoint, &http.Client{Timeout: cfg.HTTPTimeout}, log)
	}

	template := resilience.DefaultConfig("")
	if cfg.BreakerMaxFailures > 0 {
		template.MaxFailures = cfg.BreakerMaxFailures
	}
	if cfg.BreakerOpenTimeout > 0 {
		template.OpenTimeout = cfg.BreakerOpenTimeout
	}
	template.OnStateChange = func(name string, from, to resilience.State) {
		log.Warn("enrichment source state changed",
			"source", name,
			"from", from.String(),
			"to", to.String(),
		)
	}
	breakers := resilience.NewRegistry(template)

	var cache *enrichment.Cache
	if cfg.CacheSize > 0 {
		cache = enrichment.NewCache(cfg.CacheSize, cfg.CacheTTL)
	}

	return stack.Wrap(breakers, cache), breakers
}

// Pipeline analyzes documents and hands the results on. Store and
// publisher are optional.
type Pipeline struct {
	analyzer  *supplychain.Analyzer
	store     Store
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore persists every analysis.
func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithPublisher publishes an analysis-completed event for every analysis
// to topic.
func WithPublisher(pub Publisher, topic string) Option {
	return func(p *Pipeline) {
		p.publisher = pub
		p.topic = topic
	}
}

// New creates a pipeline around analyzer.
func New(analyzer *supplychain.Analyzer, log *slog.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		analyzer: analyzer,
		topic:    kafka.TopicAnalysisCompleted,
		logger:   log.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run analyzes doc, then persists and publishes the result. When a
// downstream step fails the analysis is still returned with the error.
func (p *Pipeline) Run(ctx context.Context, doc *sbom.Document) (*supplychain.Analysis, error) {
	analysis, err := p.analyzer.Analyze(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	ctx = logger.SetContextValue(ctx, logger.AnalysisIDKey, analysis.ID)

	if p.store != nil {
		if err := p.store.Save(ctx, analysis); err != nil {
			return analysis, fmt.Errorf("failed to persist analysis %s: %w", analysis.ID, err)
		}
	}

	if p.publisher != nil {
		event := kafka.NewEvent(kafka.EventAnalysisCompleted, Completed(analysis))
		if err := p.publisher.PublishEvent(ctx, p.topic, event); err != nil {
			return analysis, fmt.Errorf("failed to publish analysis %s: %w", analysis.ID, err)
		}
	}

	return analysis, nil
}

// HandleMessage decodes an sbom.submitted message and runs it. The message
// key, when set, identifies the SBOM in logs.
func (p *Pipeline) HandleMessage(ctx context.Context, msg kafka.Message) error {
	if msg.Key != "" {
		ctx = logger.SetContextValue(ctx, logger.SBOMIDKey, msg.Key)
	}
	log := p.logger.With("sbom_id", msg.Key, "offset", msg.Offset)

	doc, err := sbom.Decode(msg.Value)
	if err != nil {
		log.Error("rejected sbom", "error", err)
		return fmt.Errorf("failed to decode sbom %q: %w", msg.Key, err)
	}
	if doc.Name == "" {
		doc.Name = msg.Key
	}

	analysis, err := p.Run(ctx, doc)
	if err != nil {
		log.Error("sbom processing failed", "error", err)
		return err
	}

	log.Info("sbom processed",
		"analysis_id", analysis.ID,
		"score", analysis.SupplyChainScore,
		"partial", analysis.Partial,
	)
	return nil
}

// Completed summarises an analysis as an event payload.
func Completed(a *supplychain.Analysis) kafka.AnalysisCompleted {
	highRisk := a.RiskDistribution[supplychain.RiskHigh] + a.RiskDistribution[supplychain.RiskCritical]
	return kafka.AnalysisCompleted{
		AnalysisID:            a.ID,
		SBOMName:              a.SBOMName,
		SupplyChainScore:      a.SupplyChainScore,
		TotalNodes:            a.TotalNodes,
		TotalEdges:            a.TotalEdges,
		CircularDependencies:  len(a.CircularDependencies),
		SinglePointsOfFailure: len(a.SinglePointsOfFailure),
		HighRiskComponents:    highRisk,
		Partial:               a.Partial,
	}
}
