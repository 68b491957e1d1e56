package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ghost-254/escrow-engine/internal/config"
	"github.com/segmentio/kafka-go"
)

// EventStreamProducer publishes escrow domain events to the events topic.
// Downstream consumers (notification service, reporting) subscribe to it.
type EventStreamProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// Creates a new event stream producer and ensures the topic exists
func NewEventStreamProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*EventStreamProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for event stream producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.EventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure events topic %s exists for event stream producer: %w", cfg.EventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false, // Outbox poller marks messages processed only after a confirmed write
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write event messages", "topic", cfg.EventsTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote event messages", "topic", cfg.EventsTopic, "count", len(messages))
			}
		},
	}

	return &EventStreamProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventsTopic,
	}, nil
}

func (p *EventStreamProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for event stream producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message via event stream producer",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s via event stream producer: %w", p.topic, err)
	}

	p.logger.Debug("Published message via event stream producer",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *EventStreamProducer) Close() error {
	p.logger.Info("Closing event stream Kafka message producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event stream kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
