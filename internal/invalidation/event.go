// Package invalidation defines the tile-change events that keep every
// replica's tile cache in step with writes made through any one of them.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const EventVersion = 1

type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
	// OpPurge drops every cached tile of the store, e.g. after a metadata
	// change moved its bounds.
	OpPurge Op = "purge"
)

const maxZoom = 30

type Event struct {
	Version int       `json:"version"`
	ID      string    `json:"id"`
	Op      Op        `json:"op"`
	Store   string    `json:"store"`
	Z       int       `json:"z"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	TS      time.Time `json:"ts"`
}

// NewTileEvent stamps a fresh id and the current time onto a tile change.
func NewTileEvent(op Op, store string, x, y, z int) Event {
	return Event{
		Version: EventVersion,
		ID:      uuid.NewString(),
		Op:      op,
		Store:   store,
		Z:       z,
		X:       x,
		Y:       y,
		TS:      time.Now().UTC(),
	}
}

func NewPurgeEvent(store string) Event {
	return Event{
		Version: EventVersion,
		ID:      uuid.NewString(),
		Op:      OpPurge,
		Store:   store,
		TS:      time.Now().UTC(),
	}
}

func (e Event) Validate() error {
	if e.Version != EventVersion {
		return fmt.Errorf("version must be %d", EventVersion)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("id must be a uuid: %w", err)
	}
	if strings.TrimSpace(e.Store) == "" {
		return errors.New("store is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	switch e.Op {
	case OpPurge:
		return nil
	case OpPut, OpDelete:
	default:
		return errors.New("op must be put|delete|purge")
	}
	if e.Z < 0 || e.Z > maxZoom {
		return fmt.Errorf("z must be in [0,%d]", maxZoom)
	}
	n := 1 << e.Z
	if e.X < 0 || e.X >= n || e.Y < 0 || e.Y >= n {
		return fmt.Errorf("x,y must be in [0,%d) at z=%d", n, e.Z)
	}
	return nil
}

// PartitionKey keeps every change to one tile on one partition so they
// are applied in order.
func (e Event) PartitionKey() string {
	if e.Op == OpPurge {
		return e.Store
	}
	return fmt.Sprintf("%s:%d/%d/%d", e.Store, e.Z, e.X, e.Y)
}

func Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, fmt.Errorf("invalid event: %w", err)
	}
	return ev, nil
}
