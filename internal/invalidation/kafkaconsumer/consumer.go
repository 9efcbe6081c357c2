// Package kafkaconsumer applies tile-change events from Kafka to the local
// tile cache.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/mbtiles-store/internal/core/observability"
	"github.com/mohammed-shakir/mbtiles-store/internal/invalidation"
	mylog "github.com/mohammed-shakir/mbtiles-store/internal/logger"
)

// TileCache is the part of the tile cache events act on.
type TileCache interface {
	Key(x, y, z int) string
	Evict(ctx context.Context, keys ...string) error
	Purge(ctx context.Context) error
}

type HotnessResetter interface {
	Reset(keys ...string)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  TileCache
	hot    HotnessResetter
	dedupe *idDedupe
	ms     *metricSet
}

func New(cfg Config, logger *slog.Logger, c TileCache, hot HotnessResetter) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		hot:    hot,
		dedupe: newIDDedupe(cfg.DedupeSize),
		ms:     newMetricSet(cfg.Register),
	}
}

// Start joins the consumer group and applies events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing tile cache")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	handler := &groupHandler{process: c.ProcessOne}

	c.logger.InfoContext(ctx, "tile event consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID, "store", c.cfg.Store)

	backoff := c.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "kafka consumer error",
				"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
		}
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "tile event consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies a single event. Malformed events are logged and
// skipped so they cannot block the partition; a failed eviction returns an
// error and the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	ev, err := invalidation.Decode(msg.Value)
	if err != nil {
		c.ms.msgs.WithLabelValues("decode_error").Inc()
		obs.IncTileEvent("consumed", err)
		c.logger.ErrorContext(ctx, "tile event rejected",
			"kind", "decode", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if c.cfg.Store != "" && ev.Store != c.cfg.Store {
		c.ms.msgs.WithLabelValues("other_store").Inc()
		c.logger.DebugContext(ctx, "tile event for another store", "store", ev.Store)
		return nil
	}
	if c.dedupe.seen(ev.ID) {
		c.ms.msgs.WithLabelValues("duplicate").Inc()
		c.logger.DebugContext(ctx, "duplicate tile event", "id", ev.ID)
		return nil
	}

	ctx = mylog.WithTile(ctx, fmt.Sprintf("%d/%d/%d", ev.Z, ev.X, ev.Y))
	switch ev.Op {
	case invalidation.OpPurge:
		err = c.cache.Purge(ctx)
	default:
		key := c.cache.Key(ev.X, ev.Y, ev.Z)
		err = c.cache.Evict(ctx, key)
		if err == nil && c.hot != nil {
			c.hot.Reset(key)
		}
	}
	obs.IncTileEvent("consumed", err)
	c.ms.proc.WithLabelValues(string(ev.Op)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.ms.msgs.WithLabelValues("apply_error").Inc()
		c.logger.ErrorContext(ctx, "tile event apply failed",
			"kind", "evict", "op", string(ev.Op), "id", ev.ID, "err", err)
		return fmt.Errorf("apply %s event %s: %w", ev.Op, ev.ID, err)
	}

	c.dedupe.mark(ev.ID)
	c.ms.msgs.WithLabelValues("applied").Inc()
	c.ms.lagGauge.Set(time.Since(ev.TS).Seconds())
	c.logger.DebugContext(ctx, "tile event applied", "op", string(ev.Op), "id", ev.ID)
	return nil
}
