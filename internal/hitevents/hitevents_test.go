package hitevents

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublisher_SendsKeyedJSON(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		k, _ := m.Key.Encode()
		if string(k) != "world:3/1/2" {
			return fmt.Errorf("key=%q", k)
		}
		v, _ := m.Value.Encode()
		var ev Event
		if err := json.Unmarshal(v, &ev); err != nil {
			return err
		}
		if ev.Store != "world" || ev.Z != 3 || ev.Bytes != 42 || ev.TS.IsZero() {
			return fmt.Errorf("event=%+v", ev)
		}
		return nil
	})

	p := New(mp, "tile-hits", 8, nil)
	p.Publish(Event{Store: "world", Z: 3, X: 1, Y: 2, Bytes: 42})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_ProduceErrorDoesNotBlock(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	mp.ExpectInputAndSucceed()

	p := New(mp, "tile-hits", 8, nil)
	p.Publish(Event{Store: "s", Z: 0})
	p.Publish(Event{Store: "s", Z: 1})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	// no drain loop: the queue fills after one event
	p := &Publisher{events: make(chan Event, 1)}
	p.Publish(Event{Store: "s"})
	p.Publish(Event{Store: "s"})
	if len(p.events) != 1 {
		t.Fatalf("queued=%d want 1", len(p.events))
	}
}
