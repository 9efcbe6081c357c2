// Package cache defines the shared cache tier that sits behind the
// in-process tile cache.
package cache

import (
	"context"
	"time"
)

type Interface interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// PrefixDeleter is implemented by tiers that can drop every key of a store
// at once.
type PrefixDeleter interface {
	DelPrefix(ctx context.Context, prefix string) (int, error)
}
