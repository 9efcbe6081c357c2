package kafkaconsumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/mbtiles-store/internal/core/config"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// Store is the tile set this consumer evicts for; events about other
	// stores on the same topic are skipped.
	Store               string
	DedupeSize          int
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	RetryBackoff        time.Duration
	InitialOffsetOldest bool
	// Register receives the consumer's collectors; nil leaves them
	// unregistered.
	Register prometheus.Registerer
}

func FromConfig(c config.InvalidationCfg, store string) Config {
	return Config{
		Brokers:          c.Brokers,
		Topic:            c.Topic,
		GroupID:          c.GroupID,
		Store:            store,
		DedupeSize:       c.DedupeSize,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		RetryBackoff:     2 * time.Second,
		// a replica that starts late only needs changes from now on; its
		// cache starts empty
		InitialOffsetOldest: false,
	}
}
