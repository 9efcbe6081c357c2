package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "MBTILES_VERSION", "KAFKA_BROKERS", "CACHE_TTL_DEFAULT", "WRITES_ENABLED"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Addr != ":8090" || c.StoreVersion != schema.V1_1 || c.WritesEnabled {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Cache.TTL != 5*time.Minute {
		t.Fatalf("TTL=%v", c.Cache.TTL)
	}
	if diff := cmp.Diff([]string{"localhost:9092"}, c.Invalidation.Brokers); diff != "" {
		t.Fatalf("brokers (-want +got):\n%s", diff)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MBTILES_PATH", "/data/world.mbtiles")
	t.Setenv("MBTILES_VERSION", "1.0")
	t.Setenv("WRITES_ENABLED", "yes")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("CACHE_TTL_OVERRIDES", "0=1h, 14=30s, bad, =5s, 3=nope")
	t.Setenv("HOT_THRESHOLD", "2.5")
	t.Setenv("CACHE_FILL_THRESHOLD", "1")
	t.Setenv("CACHE_TTL_HOT", "15m")

	c := FromEnv()
	if c.StorePath != "/data/world.mbtiles" || c.StoreVersion != schema.V1_0 || !c.WritesEnabled {
		t.Fatalf("unexpected: %+v", c)
	}
	if diff := cmp.Diff([]string{"a:9092", "b:9092"}, c.Invalidation.Brokers); diff != "" {
		t.Fatalf("brokers (-want +got):\n%s", diff)
	}
	want := map[string]time.Duration{"0": time.Hour, "14": 30 * time.Second}
	if diff := cmp.Diff(want, c.Cache.TTLOverrides); diff != "" {
		t.Fatalf("overrides (-want +got):\n%s", diff)
	}
	if c.Cache.TTLFor(0) != time.Hour || c.Cache.TTLFor(5) != c.Cache.TTL {
		t.Fatalf("TTLFor mismatch")
	}
	if c.Cache.HotThreshold != 2.5 {
		t.Fatalf("HotThreshold=%v", c.Cache.HotThreshold)
	}
	if c.Cache.FillThreshold != 1 || c.Cache.HotTTL != 15*time.Minute {
		t.Fatalf("fill=%v hotTTL=%v", c.Cache.FillThreshold, c.Cache.HotTTL)
	}
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("MBTILES_VERSION", "2.0")
	t.Setenv("CACHE_L1_SIZE", "many")
	t.Setenv("WRITES_ENABLED", "maybe")
	c := FromEnv()
	if c.StoreVersion != schema.V1_1 || c.Cache.L1Size != 4096 || c.WritesEnabled {
		t.Fatalf("bad values should fall back to defaults: %+v", c)
	}
}
