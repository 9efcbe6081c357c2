package simple

import (
	"time"

	"github.com/mohammed-shakir/mbtiles-store/pkg/adaptive"
)

type Config struct {
	// Threshold is the score a tile needs before it is written to the
	// shared tier. Zero fills every tile.
	Threshold float64
	// BaseTTL gives the TTL for a tile at zoom z.
	BaseTTL func(z int) time.Duration
	// HotTTL replaces BaseTTL for tiles scoring at least HotFactor times
	// the threshold, when it is longer.
	HotTTL    time.Duration
	HotFactor float64
}

type SimpleDecider struct {
	cfg Config
}

func New(cfg Config) *SimpleDecider {
	if cfg.BaseTTL == nil {
		cfg.BaseTTL = func(int) time.Duration { return 5 * time.Minute }
	}
	if cfg.HotFactor <= 0 {
		cfg.HotFactor = 4
	}
	return &SimpleDecider{cfg: cfg}
}

func (d *SimpleDecider) Decide(q adaptive.Query, view adaptive.HotnessView) (adaptive.Decision, adaptive.Reason) {
	score := 0.0
	if view != nil {
		score = view.Score(q.Key)
	}
	if d.cfg.Threshold > 0 && score < d.cfg.Threshold {
		return adaptive.Decision{Type: adaptive.DecisionBypass}, adaptive.ReasonCold
	}

	ttl := d.cfg.BaseTTL(q.Z)
	hotAt := d.cfg.HotFactor * d.cfg.Threshold
	if d.cfg.HotTTL > ttl && hotAt > 0 && score >= hotAt {
		return adaptive.Decision{Type: adaptive.DecisionFill, TTL: d.cfg.HotTTL}, adaptive.ReasonHot
	}
	return adaptive.Decision{Type: adaptive.DecisionFill, TTL: ttl}, adaptive.ReasonDefaultFill
}
