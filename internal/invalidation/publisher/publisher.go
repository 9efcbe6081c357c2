// Package publisher sends tile-change events to Kafka after a write
// succeeds so other replicas can drop their cached copies.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/mbtiles-store/internal/core/observability"
	"github.com/mohammed-shakir/mbtiles-store/internal/invalidation"
)

type Publisher interface {
	Publish(ctx context.Context, ev invalidation.Event) error
	Close() error
}

// Noop drops every event; used when invalidation is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, invalidation.Event) error { return nil }
func (Noop) Close() error                                      { return nil }

type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

var _ Publisher = (*Kafka)(nil)

// NewKafka dials brokers and returns a publisher writing to topic.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("publisher: brokers and topic are required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return New(prod, topic, logger), nil
}

// New wraps an existing producer.
func New(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Kafka{producer: producer, topic: topic, logger: logger.With("component", "tile_event_publisher")}
}

func (k *Kafka) Publish(ctx context.Context, ev invalidation.Event) error {
	if err := ev.Validate(); err != nil {
		observability.IncTileEvent("published", err)
		return fmt.Errorf("publish: %w", err)
	}
	if err := ctx.Err(); err != nil {
		observability.IncTileEvent("published", err)
		return fmt.Errorf("publish: %w", err)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		observability.IncTileEvent("published", err)
		return fmt.Errorf("encode event: %w", err)
	}

	start := time.Now()
	part, off, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(ev.PartitionKey()),
		Value:     sarama.ByteEncoder(body),
		Timestamp: ev.TS,
	})
	observability.IncTileEvent("published", err)
	if err != nil {
		k.logger.ErrorContext(ctx, "tile event publish failed", "op", string(ev.Op), "id", ev.ID, "err", err)
		return fmt.Errorf("send event %s: %w", ev.ID, err)
	}
	k.logger.DebugContext(ctx, "tile event published",
		"op", string(ev.Op), "id", ev.ID, "partition", part, "offset", off,
		"took", time.Since(start))
	return nil
}

func (k *Kafka) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("producer close: %w", err)
	}
	return nil
}
