// Package tilecache puts a two-tier cache in front of a tile store: an
// in-process LRU for hot tiles and an optional shared tier (Redis) for
// everything that was read at least once.
package tilecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/mbtiles-store/internal/cache"
	"github.com/mohammed-shakir/mbtiles-store/internal/cache/keys"
	"github.com/mohammed-shakir/mbtiles-store/internal/core/observability"
	"github.com/mohammed-shakir/mbtiles-store/internal/hotness"
	"github.com/mohammed-shakir/mbtiles-store/pkg/adaptive"
	"github.com/mohammed-shakir/mbtiles-store/pkg/adaptive/simple"
)

// Loader is the source of truth behind the cache; *store.Store satisfies it.
type Loader interface {
	GetTile(ctx context.Context, x, y, z int) ([]byte, bool, error)
}

type Config struct {
	// Store names the tile set in cache keys.
	Store     string
	L1Size    int
	TTL       func(z int) time.Duration
	OpTimeout time.Duration
	// LoadTimeout bounds a loader call shared by concurrent readers of one
	// tile; it does not follow any single caller's cancellation.
	LoadTimeout time.Duration
	// HotThreshold is the hotness score a tile needs before it is admitted
	// to the in-process tier. Zero admits every tile.
	HotThreshold float64
	// Fill decides which loaded tiles reach the shared tier and their TTL.
	// Nil fills every tile with TTL(z).
	Fill adaptive.Decider
}

type Cache struct {
	cfg    Config
	loader Loader
	l1     *lru.Cache[string, []byte]
	l2     cache.Interface
	hot    hotness.Interface
	group  singleflight.Group
	logger *slog.Logger

	// gens are bumped by Evict for the keys hashing to each stripe and
	// epoch by Purge. A load that saw either change while it ran does not
	// store its result.
	fillMu sync.Mutex
	gens   [genStripes]atomic.Uint64
	epoch  atomic.Uint64
}

const genStripes = 256

type generation struct{ stripe, epoch uint64 }

// New builds a cache over loader. l2 and hot may be nil.
func New(cfg Config, loader Loader, l2 cache.Interface, hot hotness.Interface, logger *slog.Logger) (*Cache, error) {
	if loader == nil {
		return nil, errors.New("tilecache: loader is required")
	}
	if cfg.L1Size <= 0 {
		cfg.L1Size = 1024
	}
	if cfg.TTL == nil {
		cfg.TTL = func(int) time.Duration { return 5 * time.Minute }
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 10 * time.Second
	}
	if cfg.Fill == nil {
		cfg.Fill = simple.New(simple.Config{BaseTTL: cfg.TTL})
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l1, err := lru.New[string, []byte](cfg.L1Size)
	if err != nil {
		return nil, fmt.Errorf("tilecache: l1: %w", err)
	}
	return &Cache{
		cfg:    cfg,
		loader: loader,
		l1:     l1,
		l2:     l2,
		hot:    hot,
		logger: logger.With("component", "tilecache"),
	}, nil
}

func (c *Cache) Key(x, y, z int) string { return keys.Tile(c.cfg.Store, z, x, y) }

// GetTile returns the tile at (x, y, z), reading through both tiers. Shared
// tier failures are logged and fall back to the loader. Misses are not
// cached.
func (c *Cache) GetTile(ctx context.Context, x, y, z int) ([]byte, bool, error) {
	key := c.Key(x, y, z)
	if c.hot != nil {
		c.hot.Inc(key)
	}

	if b, ok := c.l1.Get(key); ok {
		observability.IncCacheHit("l1")
		return b, true, nil
	}
	observability.IncCacheMiss("l1")

	gen := c.generation(key)
	if b, ok := c.getL2(ctx, key); ok {
		c.admitIfCurrent(key, b, gen)
		return b, true, nil
	}

	type loaded struct {
		data  []byte
		found bool
	}
	ch := c.group.DoChan(key, func() (any, error) {
		gen := c.generation(key)
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LoadTimeout)
		defer cancel()

		b, found, err := c.loader.GetTile(lctx, x, y, z)
		if err != nil || !found {
			return loaded{}, err
		}
		c.fill(lctx, key, b, z, gen)
		return loaded{data: b, found: true}, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		l := res.Val.(loaded)
		return l.data, l.found, nil
	}
}

func (c *Cache) generation(key string) generation {
	return generation{
		stripe: c.gens[keys.Hash(key)%genStripes].Load(),
		epoch:  c.epoch.Load(),
	}
}

// fill stores a freshly loaded tile in both tiers unless the key was
// evicted while it loaded. The L2 write is undone when an eviction lands
// between the check and the write.
func (c *Cache) fill(ctx context.Context, key string, b []byte, z int, gen generation) {
	if !c.admitIfCurrent(key, b, gen) {
		c.logger.DebugContext(ctx, "stale load not cached", "key", key)
		return
	}

	if !c.setL2(ctx, key, b, z) || c.generation(key) == gen {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.l2.Del(cctx, key); err != nil {
		c.logger.WarnContext(ctx, "stale shared cache entry not removed", "key", key, "err", err)
	}
}

func (c *Cache) getL2(ctx context.Context, key string) ([]byte, bool) {
	if c.l2 == nil {
		return nil, false
	}
	cctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	m, err := c.l2.MGet(cctx, []string{key})
	if err != nil {
		c.logger.WarnContext(ctx, "shared cache read failed", "key", key, "err", err)
		return nil, false
	}
	b, ok := m[key]
	return b, ok
}

// setL2 reports whether the tile was written.
func (c *Cache) setL2(ctx context.Context, key string, b []byte, z int) bool {
	if c.l2 == nil {
		return false
	}
	var view adaptive.HotnessView
	if c.hot != nil {
		view = c.hot
	}
	d, reason := c.cfg.Fill.Decide(adaptive.Query{Key: key, Z: z}, view)
	if d.Type != adaptive.DecisionFill {
		c.logger.DebugContext(ctx, "shared cache fill skipped", "key", key, "reason", string(reason))
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.l2.Set(cctx, key, b, d.TTL); err != nil {
		c.logger.WarnContext(ctx, "shared cache write failed", "key", key, "err", err)
		return false
	}
	return true
}

func (c *Cache) admitIfCurrent(key string, b []byte, gen generation) bool {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	if c.generation(key) != gen {
		return false
	}
	c.admit(key, b)
	return true
}

func (c *Cache) admit(key string, b []byte) {
	if c.cfg.HotThreshold > 0 && c.hot != nil && c.hot.Score(key) < c.cfg.HotThreshold {
		return
	}
	c.l1.Add(key, b)
}

// Invalidate drops the tile at (x, y, z) from both tiers.
func (c *Cache) Invalidate(ctx context.Context, x, y, z int) error {
	return c.Evict(ctx, c.Key(x, y, z))
}

// Evict drops the given keys from both tiers.
func (c *Cache) Evict(ctx context.Context, ks ...string) error {
	if len(ks) == 0 {
		return nil
	}
	c.fillMu.Lock()
	for _, k := range ks {
		c.gens[keys.Hash(k)%genStripes].Add(1)
		c.group.Forget(k)
		c.l1.Remove(k)
	}
	c.fillMu.Unlock()
	if c.l2 == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	return c.l2.Del(cctx, ks...)
}

// Purge empties the in-process tier and, when the shared tier supports it,
// every shared key of this store.
func (c *Cache) Purge(ctx context.Context) error {
	c.fillMu.Lock()
	c.epoch.Add(1)
	c.l1.Purge()
	c.fillMu.Unlock()
	pd, ok := c.l2.(cache.PrefixDeleter)
	if !ok {
		return nil
	}
	n, err := pd.DelPrefix(ctx, keys.StorePrefix(c.cfg.Store))
	c.logger.InfoContext(ctx, "tile cache purged", "shared_deleted", n)
	return err
}

func (c *Cache) Len() int { return c.l1.Len() }
