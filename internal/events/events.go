// Package events emits task lifecycle notifications to an external broker.
// The broker is optional; when disabled the publisher is a no-op so callers
// never branch on configuration.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"mediapress/internal/config"
	"mediapress/internal/logging"
)

const (
	TypeQueued    = "task.queued"
	TypeCompleted = "task.completed"
	TypeFailed    = "task.failed"
)

// Event is the wire payload for one lifecycle notification.
type Event struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers lifecycle events. Delivery is best-effort; pipeline
// progress never blocks on the broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New returns a Kafka-backed publisher, or a no-op one when the broker is
// not configured.
func New(cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.Kafka.Enabled {
		return NopPublisher{}, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka brokers %v: %w", cfg.Kafka.Brokers, err)
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    cfg.Kafka.Topic,
		logger:   logger,
	}, nil
}

// KafkaPublisher sends events as JSON keyed by task ID, so all events for
// one task land on the same partition in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TaskID),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s for task %s: %w", event.Type, event.TaskID, err)
	}
	p.logger.Debug("event published",
		"type", event.Type, "task_id", event.TaskID,
		"partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

func (NopPublisher) Close() error { return nil }
