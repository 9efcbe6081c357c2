// Package config reads the tile server's settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers []string
	GroupID string
	// DedupeSize bounds the LRU of already applied event ids.
	DedupeSize int
}

// HitsCfg controls the stream of served tile reads.
type HitsCfg struct {
	Enabled   bool
	Topic     string
	QueueSize int
}

type CacheCfg struct {
	Enabled      bool
	L1Size       int
	RedisAddr    string
	TTL          time.Duration
	TTLOverrides map[string]time.Duration
	OpTimeout    time.Duration
	LoadTimeout  time.Duration
	HotThreshold float64
	HotHalfLife  time.Duration
	// FillThreshold is the hotness score a tile needs before it is written
	// to Redis; HotTTL is used for tiles four times past it.
	FillThreshold float64
	HotTTL        time.Duration
}

type Config struct {
	Addr          string
	LogLevel      string
	LogConsole    bool
	LogSampleN    int
	StorePath     string
	StoreVersion  schema.Version
	WritesEnabled bool
	BuildVersion  string
	Cache         CacheCfg
	Invalidation  InvalidationCfg
	Hits          HitsCfg
}

func FromEnv() Config {
	return Config{
		Addr:          getenv("ADDR", ":8090"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogConsole:    getbool("LOG_CONSOLE", false),
		LogSampleN:    getint("LOG_SAMPLE_N", 0),
		StorePath:     getenv("MBTILES_PATH", ""),
		StoreVersion:  getversion("MBTILES_VERSION", schema.V1_1),
		WritesEnabled: getbool("WRITES_ENABLED", false),
		BuildVersion:  getenv("BUILD_VERSION", "dev"),
		Cache: CacheCfg{
			Enabled:      getbool("CACHE_ENABLED", true),
			L1Size:       getint("CACHE_L1_SIZE", 4096),
			RedisAddr:    getenv("REDIS_ADDR", ""),
			TTL:          getduration("CACHE_TTL_DEFAULT", 5*time.Minute),
			TTLOverrides: parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
			OpTimeout:    getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			LoadTimeout:  getduration("CACHE_LOAD_TIMEOUT", 10*time.Second),
			HotThreshold: getfloat("HOT_THRESHOLD", 10.0),
			HotHalfLife:  getduration("HOT_HALF_LIFE", time.Minute),

			FillThreshold: getfloat("CACHE_FILL_THRESHOLD", 0),
			HotTTL:        getduration("CACHE_TTL_HOT", 0),
		},
		Invalidation: InvalidationCfg{
			Enabled:    getbool("INVALIDATION_ENABLED", false),
			Topic:      getenv("KAFKA_TOPIC", "mbtiles-tile-events"),
			Brokers:    getlist("KAFKA_BROKERS", "localhost:9092"),
			GroupID:    getenv("KAFKA_GROUP_ID", "mbtiles-cache-invalidator"),
			DedupeSize: getint("INVALIDATION_DEDUPE_SIZE", 8192),
		},
		Hits: HitsCfg{
			Enabled:   getbool("HITS_ENABLED", false),
			Topic:     getenv("HITS_TOPIC", "mbtiles-tile-hits"),
			QueueSize: getint("HITS_QUEUE_SIZE", 1024),
		},
	}
}

// TTLFor returns the cache TTL for tiles at zoom z. Overrides are keyed by
// zoom level, e.g. "0=1h,14=30s".
func (c CacheCfg) TTLFor(z int) time.Duration {
	if d, ok := c.TTLOverrides[strconv.Itoa(z)]; ok && d > 0 {
		return d
	}
	return c.TTL
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getversion(k string, def schema.Version) schema.Version {
	if v := os.Getenv(k); v != "" {
		if ver, err := schema.ParseVersion(v); err == nil {
			return ver
		}
	}
	return def
}

func getlist(k, def string) []string {
	var out []string
	for p := range strings.SplitSeq(getenv(k, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parse "0=1h,14=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			out[k] = d
		}
	}
	return out
}
