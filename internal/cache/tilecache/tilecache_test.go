package tilecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/mbtiles-store/internal/cache/keys"
	"github.com/mohammed-shakir/mbtiles-store/internal/cache/redisstore"
	"github.com/mohammed-shakir/mbtiles-store/internal/hotness/expdecay"
	"github.com/mohammed-shakir/mbtiles-store/pkg/adaptive/simple"
)

type fakeLoader struct {
	mu    sync.Mutex
	calls int
	tiles map[[3]int][]byte
	err   error
}

func (f *fakeLoader) GetTile(_ context.Context, x, y, z int) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	b, ok := f.tiles[[3]int{x, y, z}]
	return b, ok, nil
}

func (f *fakeLoader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newLoader() *fakeLoader {
	return &fakeLoader{tiles: map[[3]int][]byte{{1, 1, 1}: []byte("tile-111")}}
}

func newRedis(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestGetTile_HitAfterFirstRead(t *testing.T) {
	ld := newLoader()
	c, err := New(Config{Store: "a.mbtiles"}, ld, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	for range 3 {
		b, found, err := c.GetTile(ctx, 1, 1, 1)
		if err != nil || !found || string(b) != "tile-111" {
			t.Fatalf("GetTile: %q %v %v", b, found, err)
		}
	}
	if ld.Calls() != 1 {
		t.Fatalf("loader calls=%d want 1", ld.Calls())
	}
	if c.Len() != 1 {
		t.Fatalf("l1 len=%d want 1", c.Len())
	}
}

func TestGetTile_MissesAreNotCached(t *testing.T) {
	ld := newLoader()
	c, _ := New(Config{Store: "a.mbtiles"}, ld, nil, nil, nil)
	ctx := context.Background()

	for range 2 {
		if _, found, err := c.GetTile(ctx, 0, 0, 0); err != nil || found {
			t.Fatalf("expected miss, found=%v err=%v", found, err)
		}
	}
	if ld.Calls() != 2 {
		t.Fatalf("loader calls=%d want 2", ld.Calls())
	}
}

func TestGetTile_LoaderErrorPropagates(t *testing.T) {
	ld := newLoader()
	ld.err = errors.New("disk on fire")
	c, _ := New(Config{Store: "a.mbtiles"}, ld, nil, nil, nil)
	if _, _, err := c.GetTile(context.Background(), 1, 1, 1); !errors.Is(err, ld.err) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestGetTile_ColdTilesSkipL1ButHitRedis(t *testing.T) {
	rc, mr := newRedis(t)
	ld := newLoader()
	c, _ := New(Config{Store: "a.mbtiles", HotThreshold: 100, TTL: func(int) time.Duration { return time.Minute }},
		ld, rc, expdecay.New(time.Minute), nil)
	ctx := context.Background()

	if _, found, _ := c.GetTile(ctx, 1, 1, 1); !found {
		t.Fatalf("first read should find the tile")
	}
	if c.Len() != 0 {
		t.Fatalf("cold tile must not be admitted to l1")
	}
	if !mr.Exists(keys.Tile("a.mbtiles", 1, 1, 1)) {
		t.Fatalf("tile should be in redis after first read")
	}
	if ttl := mr.TTL(keys.Tile("a.mbtiles", 1, 1, 1)); ttl != time.Minute {
		t.Fatalf("redis ttl=%v want 1m", ttl)
	}

	if b, found, _ := c.GetTile(ctx, 1, 1, 1); !found || string(b) != "tile-111" {
		t.Fatalf("second read: %q %v", b, found)
	}
	if ld.Calls() != 1 {
		t.Fatalf("second read should come from redis, loader calls=%d", ld.Calls())
	}
}

func TestGetTile_HotTilesPromotedToL1(t *testing.T) {
	rc, mr := newRedis(t)
	ld := newLoader()
	c, _ := New(Config{Store: "a.mbtiles", HotThreshold: 1.5}, ld, rc, expdecay.New(time.Hour), nil)
	ctx := context.Background()

	_, _, _ = c.GetTile(ctx, 1, 1, 1)
	if c.Len() != 0 {
		t.Fatalf("one read is not hot yet")
	}
	_, _, _ = c.GetTile(ctx, 1, 1, 1)
	if c.Len() != 1 {
		t.Fatalf("second read should promote to l1")
	}

	// served from l1 even with redis gone
	mr.FlushAll()
	if b, found, _ := c.GetTile(ctx, 1, 1, 1); !found || string(b) != "tile-111" {
		t.Fatalf("l1 read: %q %v", b, found)
	}
	if ld.Calls() != 1 {
		t.Fatalf("loader calls=%d want 1", ld.Calls())
	}
}

func TestGetTile_RedisDownFallsBackToLoader(t *testing.T) {
	rc, mr := newRedis(t)
	ld := newLoader()
	c, _ := New(Config{Store: "a.mbtiles", HotThreshold: 100}, ld, rc, expdecay.New(time.Minute), nil)
	mr.Close()

	b, found, err := c.GetTile(context.Background(), 1, 1, 1)
	if err != nil || !found || string(b) != "tile-111" {
		t.Fatalf("expected loader fallback, got %q %v %v", b, found, err)
	}
}

func TestInvalidate_DropsBothTiers(t *testing.T) {
	rc, mr := newRedis(t)
	ld := newLoader()
	c, _ := New(Config{Store: "a.mbtiles"}, ld, rc, nil, nil)
	ctx := context.Background()

	_, _, _ = c.GetTile(ctx, 1, 1, 1)
	if err := c.Invalidate(ctx, 1, 1, 1); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if c.Len() != 0 || mr.Exists(c.Key(1, 1, 1)) {
		t.Fatalf("tile still cached after invalidate")
	}
	_, _, _ = c.GetTile(ctx, 1, 1, 1)
	if ld.Calls() != 2 {
		t.Fatalf("loader calls=%d want 2", ld.Calls())
	}
}

func TestPurge_OnlyThisStore(t *testing.T) {
	rc, mr := newRedis(t)
	ld := newLoader()
	c, _ := New(Config{Store: "a.mbtiles"}, ld, rc, nil, nil)
	ctx := context.Background()

	_, _, _ = c.GetTile(ctx, 1, 1, 1)
	other := keys.Tile("b.mbtiles", 1, 1, 1)
	_ = mr.Set(other, "x")

	if err := c.Purge(ctx); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if c.Len() != 0 || mr.Exists(c.Key(1, 1, 1)) {
		t.Fatalf("store keys survived purge")
	}
	if !mr.Exists(other) {
		t.Fatalf("other store's key was purged")
	}
}

func TestGetTile_FillPolicySkipsColdTiles(t *testing.T) {
	rc, mr := newRedis(t)
	ld := newLoader()
	fill := simple.New(simple.Config{
		Threshold: 1.5,
		BaseTTL:   func(int) time.Duration { return time.Minute },
		HotTTL:    time.Hour,
	})
	c, _ := New(Config{Store: "a.mbtiles", HotThreshold: 100, Fill: fill}, ld, rc, expdecay.New(time.Hour), nil)
	ctx := context.Background()
	key := c.Key(1, 1, 1)

	_, _, _ = c.GetTile(ctx, 1, 1, 1)
	if mr.Exists(key) {
		t.Fatalf("tile read once should not reach redis")
	}
	_, _, _ = c.GetTile(ctx, 1, 1, 1)
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Fatalf("warm tile ttl=%v want 1m", ttl)
	}
}

// gatedLoader blocks every read until release is closed.
type gatedLoader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedLoader) GetTile(ctx context.Context, _, _, _ int) ([]byte, bool, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return []byte("old"), true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func TestGetTile_InvalidateDuringLoadIsNotCached(t *testing.T) {
	rc, mr := newRedis(t)
	ld := newGatedLoader()
	c, err := New(Config{Store: "a.mbtiles"}, ld, rc, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, _, err := c.GetTile(ctx, 1, 1, 1)
		done <- err
	}()
	<-ld.started

	if err := c.Invalidate(ctx, 1, 1, 1); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	close(ld.release)
	if err := <-done; err != nil {
		t.Fatalf("GetTile: %v", err)
	}

	if c.Len() != 0 {
		t.Fatalf("stale tile admitted to l1")
	}
	if mr.Exists(keys.Tile("a.mbtiles", 1, 1, 1)) {
		t.Fatalf("stale tile written to redis")
	}
}

func TestGetTile_PurgeDuringLoadIsNotCached(t *testing.T) {
	ld := newGatedLoader()
	c, _ := New(Config{Store: "a.mbtiles"}, ld, nil, nil, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, _, err := c.GetTile(ctx, 1, 1, 1)
		done <- err
	}()
	<-ld.started

	if err := c.Purge(ctx); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	close(ld.release)
	if err := <-done; err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("stale tile admitted to l1 after purge")
	}
}

func TestGetTile_CancelledCallerDoesNotFailJoinedCaller(t *testing.T) {
	ld := newGatedLoader()
	c, _ := New(Config{Store: "a.mbtiles"}, ld, nil, nil, nil)

	actx, cancel := context.WithCancel(context.Background())
	aerr := make(chan error, 1)
	go func() {
		_, _, err := c.GetTile(actx, 1, 1, 1)
		aerr <- err
	}()
	<-ld.started

	type result struct {
		b     []byte
		found bool
		err   error
	}
	bres := make(chan result, 1)
	go func() {
		b, found, err := c.GetTile(context.Background(), 1, 1, 1)
		bres <- result{b, found, err}
	}()

	cancel()
	if err := <-aerr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: got %v want context.Canceled", err)
	}

	close(ld.release)
	select {
	case r := <-bres:
		if r.err != nil || !r.found || string(r.b) != "old" {
			t.Fatalf("joined caller: %q %v %v", r.b, r.found, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("joined caller did not return")
	}
}

func TestGetTile_LoadTimeoutBoundsSharedLoad(t *testing.T) {
	ld := newGatedLoader()
	c, _ := New(Config{Store: "a.mbtiles", LoadTimeout: 20 * time.Millisecond}, ld, nil, nil, nil)

	_, _, err := c.GetTile(context.Background(), 1, 1, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v want context.DeadlineExceeded", err)
	}
	close(ld.release)
}
