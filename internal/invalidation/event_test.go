package invalidation

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestEvent_Validate_HappyPaths(t *testing.T) {
	put := NewTileEvent(OpPut, "world", 1, 1, 1)
	if err := put.Validate(); err != nil {
		t.Fatalf("put: %v", err)
	}
	del := NewTileEvent(OpDelete, "world", 0, 0, 0)
	if err := del.Validate(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := NewPurgeEvent("world").Validate(); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if put.ID == del.ID {
		t.Fatalf("event ids must be unique")
	}
}

func TestEvent_Validate_Rejects(t *testing.T) {
	base := Event{Version: 1, ID: "2f1c7c9e-6a0b-4f0e-9a55-0d7b1f2f5c11", Op: OpPut, Store: "world", Z: 2, X: 3, Y: 1, TS: mustTS()}
	cases := map[string]func(e *Event){
		"version":    func(e *Event) { e.Version = 2 },
		"id":         func(e *Event) { e.ID = "not-a-uuid" },
		"op":         func(e *Event) { e.Op = "update" },
		"store":      func(e *Event) { e.Store = "  " },
		"ts":         func(e *Event) { e.TS = time.Time{} },
		"zoom":       func(e *Event) { e.Z = 31 },
		"x range":    func(e *Event) { e.X = 4 },
		"y negative": func(e *Event) { e.Y = -1 },
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base event invalid: %v", err)
	}
	for name, mut := range cases {
		ev := base
		mut(&ev)
		if err := ev.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDecode_WireFormat(t *testing.T) {
	raw := `{"version":1,"id":"2f1c7c9e-6a0b-4f0e-9a55-0d7b1f2f5c11","op":"delete","store":"world","z":3,"x":1,"y":2,"ts":"2025-10-26T12:30:45Z"}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Op != OpDelete || ev.Z != 3 || ev.X != 1 || ev.Y != 2 || !ev.TS.Equal(mustTS()) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.PartitionKey() != "world:3/1/2" {
		t.Fatalf("PartitionKey=%q", ev.PartitionKey())
	}

	b, _ := json.Marshal(ev)
	if !strings.Contains(string(b), `"op":"delete"`) {
		t.Fatalf("unexpected encoding: %s", b)
	}

	if _, err := Decode([]byte(`{"version":1`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Decode([]byte(`{"version":1,"op":"put"}`)); err == nil {
		t.Fatalf("expected validation error")
	}
}
