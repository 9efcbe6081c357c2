package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// idDedupe remembers recently applied event ids so redeliveries after a
// rebalance are not applied twice.
type idDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, struct{}]
}

func newIDDedupe(size int) *idDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, struct{}](size)
	return &idDedupe{lru: c}
}

func (d *idDedupe) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lru.Contains(id)
}

func (d *idDedupe) mark(id string) {
	d.mu.Lock()
	d.lru.Add(id, struct{}{})
	d.mu.Unlock()
}
