// Package kafka provides Kafka producer and consumer functionality.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantumlayerhq/ql-supplychain/pkg/config"
	"github.com/quantumlayerhq/ql-supplychain/pkg/telemetry"
)

// Default topics.
const (
	TopicSBOMSubmitted     = "sbom.submitted"
	TopicAnalysisCompleted = "supplychain.analysis.completed"
)

// Event types.
const (
	EventAnalysisCompleted = "supplychain.analysis.completed"
)

// EventSource identifies this service in published events.
const EventSource = "supplychain-analyzer"

// Producer is a Kafka message producer.
type Producer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// Consumer is a Kafka message consumer.
type Consumer struct {
	consumer sarama.ConsumerGroup
	logger   *slog.Logger
}

// Message represents a Kafka message.
type Message struct {
	Key       string
	Value     []byte
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
}

// Event is the base structure for all events.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// AnalysisCompleted is the payload of a supplychain.analysis.completed event.
type AnalysisCompleted struct {
	AnalysisID            string  `json:"analysis_id"`
	SBOMName              string  `json:"sbom_name,omitempty"`
	SupplyChainScore      float64 `json:"supply_chain_score"`
	TotalNodes            int     `json:"total_nodes"`
	TotalEdges            int     `json:"total_edges"`
	CircularDependencies  int     `json:"circular_dependencies"`
	SinglePointsOfFailure int     `json:"single_points_of_failure"`
	HighRiskComponents    int     `json:"high_risk_components"`
	Partial               bool    `json:"partial"`
}

// NewEvent wraps data in an event with a fresh ID.
func NewEvent(eventType string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    EventSource,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func saramaConfig(cfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = EventSource
	if cfg.SASLUser != "" {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = cfg.SASLUser
		c.Net.SASL.Password = cfg.SASLPassword
	}
	return c
}

// NewProducer creates a new Kafka producer.
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	saramaConfig := saramaConfig(cfg)
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewProducerWith(producer, nil), nil
}

// NewProducerWith wraps an existing sync producer.
func NewProducerWith(producer sarama.SyncProducer, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		producer: producer,
		logger:   logger.With("component", "kafka-producer"),
	}
}

// Publish publishes a message to the given topic. The trace context of ctx
// travels in the message headers.
func (p *Producer) Publish(ctx context.Context, topic string, key string, value any) error {
	ctx, span := telemetry.MessagingSpan(ctx, "publish", topic, trace.SpanKindProducer)
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	carrier := make(map[string]string)
	telemetry.Inject(ctx, carrier)
	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(data),
		Headers: headers,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("message published",
		"topic", topic,
		"key", key,
		"partition", partition,
		"offset", offset,
	)

	return nil
}

// PublishEvent publishes an event to the given topic.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event Event) error {
	return p.Publish(ctx, topic, event.ID, event)
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// MessageHandler handles incoming Kafka messages.
type MessageHandler func(ctx context.Context, msg Message) error

// ConsumerGroupHandler implements sarama.ConsumerGroupHandler.
type ConsumerGroupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
}

// NewConsumerGroupHandler creates a handler that passes every claimed
// message to handler.
func NewConsumerGroupHandler(handler MessageHandler, logger *slog.Logger) *ConsumerGroupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerGroupHandler{handler: handler, logger: logger}
}

// Setup is called at the beginning of a new session.
func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is called at the end of a session.
func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a partition. A message whose handler
// fails is logged and left unmarked.
func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consume(session, msg)
		}
	}
}

func (h *ConsumerGroupHandler) consume(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[string(header.Key)] = string(header.Value)
	}

	ctx := telemetry.Extract(session.Context(), headers)
	ctx, span := telemetry.MessagingSpan(ctx, "process", msg.Topic, trace.SpanKindConsumer)
	defer span.End()

	message := Message{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Timestamp,
		Headers:   headers,
	}

	if err := h.handler(ctx, message); err != nil {
		span.SetError(err)
		h.logger.Error("failed to process message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}

	session.MarkMessage(msg, "")
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(cfg config.KafkaConfig) (*Consumer, error) {
	saramaConfig := saramaConfig(cfg)
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	consumer, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &Consumer{
		consumer: consumer,
		logger:   slog.Default().With("component", "kafka-consumer"),
	}, nil
}

// Subscribe subscribes to the given topics and processes messages with the
// handler until ctx is done.
func (c *Consumer) Subscribe(ctx context.Context, topics []string, handler MessageHandler) error {
	groupHandler := NewConsumerGroupHandler(handler, c.logger)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumer.Consume(ctx, topics, groupHandler); err != nil {
				c.logger.Error("consumer error", "error", err)
				return fmt.Errorf("consumer error: %w", err)
			}
		}
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	if c.consumer != nil {
		return c.consumer.Close()
	}
	return nil
}
