// Package hitevents streams served tile reads to Kafka so tile popularity
// can be analyzed offline. Publishing never blocks the request path.
package hitevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/mbtiles-store/internal/core/observability"
)

type Event struct {
	Store string    `json:"store"`
	Z     int       `json:"z"`
	X     int       `json:"x"`
	Y     int       `json:"y"`
	Bytes int       `json:"bytes"`
	TS    time.Time `json:"ts"`
}

func (e Event) key() string { return fmt.Sprintf("%s:%d/%d/%d", e.Store, e.Z, e.X, e.Y) }

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	stopped chan struct{}
	errDone chan struct{}
	once    sync.Once
}

// NewPublisher dials brokers with an async producer. queueSize bounds the
// events buffered ahead of the producer; beyond it events are dropped.
func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("hitevents: create async producer: %w", err)
	}
	return New(prod, topic, queueSize, logger), nil
}

// New wraps an existing producer; it must report errors.
func New(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		logger:  logger.With("component", "hitevents"),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("hit event marshal failed", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.key()),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncTileEvent("hit", nil)
		}
	}()

	go func() {
		defer close(p.errDone)
		for perr := range p.prod.Errors() {
			if perr != nil {
				observability.IncTileEvent("hit", perr.Err)
				p.logger.Warn("hit event produce failed", "err", perr.Err)
			}
		}
	}()

	return p
}

// Publish queues ev; when the queue is full the event is dropped.
func (p *Publisher) Publish(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	select {
	case p.events <- ev:
	default:
		observability.IncHitDropped()
	}
}

// Close flushes queued events and closes the producer. Publish must not be
// called after Close.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.events)
		<-p.stopped
		if cerr := p.prod.Close(); cerr != nil {
			err = fmt.Errorf("hitevents: close producer: %w", cerr)
		}
		<-p.errDone
	})
	return err
}
