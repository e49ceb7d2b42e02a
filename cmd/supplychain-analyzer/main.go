// Package main is the entry point for the supply chain analyzer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantumlayerhq/ql-supplychain/pkg/config"
	"github.com/quantumlayerhq/ql-supplychain/pkg/database"
	"github.com/quantumlayerhq/ql-supplychain/pkg/logger"
	"github.com/quantumlayerhq/ql-supplychain/pkg/pipeline"
	"github.com/quantumlayerhq/ql-supplychain/pkg/resilience"
	"github.com/quantumlayerhq/ql-supplychain/pkg/secrets"
	"github.com/quantumlayerhq/ql-supplychain/pkg/store"
	"github.com/quantumlayerhq/ql-supplychain/pkg/supplychain"
	"github.com/quantumlayerhq/ql-supplychain/pkg/telemetry"
)

const serviceName = "supplychain-analyzer"

// Build information (set via ldflags).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Supply chain security analyzer",
		Long:          "Builds the dependency graph of an SBOM, detects structural risks and scores the supply chain.",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (YAML)")

	root.AddCommand(newAnalyzeCmd(&configPath))
	root.AddCommand(newWorkerCmd(&configPath))
	return root
}

// app holds what every command needs after configuration is loaded.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	tracing *telemetry.Provider
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).WithService(serviceName)
	log.Info("starting supply chain analyzer",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
		"env", cfg.Env,
	)

	resolver, err := secrets.NewResolver(cfg.Vault, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets resolver: %w", err)
	}
	if err := resolver.Apply(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}
	if resolver.Enabled() {
		log.Info("resolved credentials from vault", "path", cfg.Vault.Path)
	}

	tracing, err := telemetry.NewProvider(&telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.Telemetry.Enabled,
		ExporterType:   telemetry.ExporterType(cfg.Telemetry.Exporter),
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return &app{cfg: cfg, log: log, tracing: tracing}, nil
}

func (a *app) analyzer() (*supplychain.Analyzer, *resilience.Registry) {
	clients, breakers := pipeline.Clients(a.cfg.Enrichment, a.log.Logger)
	a.log.Info("initialized enrichment",
		"enabled", a.cfg.Enrichment.Enabled,
		"osv_enabled", a.cfg.Enrichment.OSVEnabled,
		"cache_size", a.cfg.Enrichment.CacheSize,
	)
	return supplychain.NewAnalyzer(pipeline.AnalyzerOptions(a.cfg.Analyzer), clients, a.log.Logger), breakers
}

// openStore connects to PostgreSQL, checks the connection and applies the
// schema. The caller closes the returned DB.
func (a *app) openStore(ctx context.Context, log *logger.Logger) (*database.DB, *store.Store, error) {
	db, err := database.New(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Health(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	st := store.New(db, log.Logger)
	if err := st.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	var attrs []any
	if stats := db.Stats(); stats != nil {
		attrs = append(attrs, "max_conns", stats.MaxConns(), "total_conns", stats.TotalConns())
	}
	log.Info("connected to database", attrs...)
	return db, st, nil
}

func (a *app) logBreakers(breakers *resilience.Registry) {
	if breakers == nil {
		return
	}
	for _, s := range breakers.Stats() {
		if s.Failures == 0 && s.Rejected == 0 {
			continue
		}
		a.log.Warn("enrichment source degraded",
			"source", s.Name,
			"state", s.State,
			"failures", s.Failures,
			"rejected", s.Rejected,
		)
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.log.Error("failed to shutdown telemetry", "error", err)
	}
}
