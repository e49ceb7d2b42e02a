package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantumlayerhq/ql-supplychain/pkg/kafka"
	"github.com/quantumlayerhq/ql-supplychain/pkg/pipeline"
	"github.com/quantumlayerhq/ql-supplychain/pkg/report"
	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

type analyzeOptions struct {
	sbomFile      string
	outputDir     string
	format        string
	visualization bool
	persist       bool
	publish       bool
	quiet         bool
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	opts := analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze an SBOM and write a supply chain report",
		Example: `  supplychain-analyzer analyze --sbom-file bom.json
  supplychain-analyzer analyze --sbom-file bom.json --format html --visualization
  supplychain-analyzer analyze --config config.yaml --sbom-file bom.json --persist --publish`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, *configPath, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sbomFile, "sbom-file", "", "SBOM file to analyze (CycloneDX JSON/XML or SPDX JSON)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "security/reports", "Output directory")
	cmd.Flags().StringVar(&opts.format, "format", string(report.FormatJSON), "Report format: json, csv, html or markdown")
	cmd.Flags().BoolVar(&opts.visualization, "visualization", false, "Also write a Graphviz DOT graph")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "Store the analysis in PostgreSQL")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish an analysis-completed event to Kafka")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the summary table")
	_ = cmd.MarkFlagRequired("sbom-file")

	return cmd
}

func runAnalyze(cmd *cobra.Command, configPath string, opts analyzeOptions) error {
	ctx := cmd.Context()

	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log.WithComponent("analyze")

	doc, err := sbom.ReadFile(opts.sbomFile)
	if err != nil {
		return err
	}
	log.Info("loaded sbom",
		"file", opts.sbomFile,
		"format", doc.Format.String(),
		"components", len(doc.Components),
		"relationships", len(doc.Relationships),
	)

	analyzer, breakers := a.analyzer()
	var pipelineOpts []pipeline.Option

	if opts.persist {
		db, st, err := a.openStore(ctx, log)
		if err != nil {
			return err
		}
		defer db.Close()
		pipelineOpts = append(pipelineOpts, pipeline.WithStore(st))
	}

	if opts.publish {
		producer, err := kafka.NewProducer(a.cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(producer, a.cfg.Kafka.Topics.AnalysisCompleted))
		log.Info("connected to kafka", "brokers", a.cfg.Kafka.Brokers)
	}

	analysis, runErr := pipeline.New(analyzer, log.Logger, pipelineOpts...).Run(ctx, doc)
	if analysis == nil {
		return runErr
	}
	a.logBreakers(breakers)

	paths, err := report.Export(opts.outputDir, analysis, format, opts.visualization)
	if err != nil {
		return err
	}
	for _, p := range paths {
		log.Info("report written", "path", p)
	}

	if !opts.quiet {
		report.Summary(cmd.OutOrStdout(), analysis)
	}

	log.Info("supply chain analysis completed",
		"analysis_id", analysis.ID,
		"score", fmt.Sprintf("%.2f", analysis.SupplyChainScore),
	)
	return runErr
}
