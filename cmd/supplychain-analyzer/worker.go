package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/quantumlayerhq/ql-supplychain/pkg/kafka"
	"github.com/quantumlayerhq/ql-supplychain/pkg/pipeline"
)

func newWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Analyze SBOMs submitted over Kafka",
		Long: `Consumes sbom.submitted events whose payload is a raw SBOM document,
analyzes each one, stores the result and publishes supplychain.analysis.completed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), *configPath)
		},
	}
}

func runWorker(ctx context.Context, configPath string) error {
	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log.WithComponent("worker")

	db, st, err := a.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer db.Close()

	producer, err := kafka.NewProducer(a.cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	consumer, err := kafka.NewConsumer(a.cfg.Kafka)
	if err != nil {
		return err
	}
	defer consumer.Close()

	analyzer, breakers := a.analyzer()
	defer a.logBreakers(breakers)

	p := pipeline.New(analyzer, log.Logger,
		pipeline.WithStore(st),
		pipeline.WithPublisher(producer, a.cfg.Kafka.Topics.AnalysisCompleted),
	)

	topic := a.cfg.Kafka.Topics.SBOMSubmitted
	log.Info("worker started",
		"topic", topic,
		"consumer_group", a.cfg.Kafka.ConsumerGroup,
		"brokers", a.cfg.Kafka.Brokers,
	)

	err = consumer.Subscribe(ctx, []string{topic}, p.HandleMessage)
	if errors.Is(err, context.Canceled) {
		log.Info("worker stopped")
		return nil
	}
	return err
}
