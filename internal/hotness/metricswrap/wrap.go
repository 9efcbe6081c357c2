// Package metricswrap decorates a hotness tracker with a tracked-keys gauge
// and sampled logging of tiles that cross the hot threshold.
package metricswrap

import (
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/mbtiles-store/internal/cache/keys"
	"github.com/mohammed-shakir/mbtiles-store/internal/core/observability"
	"github.com/mohammed-shakir/mbtiles-store/internal/hotness"
)

type Sizer interface{ Size() int }

type Options struct {
	Tier      string
	Threshold float64
	// LogSample is the fraction of hot keys logged, chosen by key hash so
	// a given tile is either always or never logged.
	LogSample float64
	Logger    *slog.Logger
}

type WithMetrics struct {
	inner hotness.Interface
	opts  Options
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, opts Options) *WithMetrics {
	if opts.Tier == "" {
		opts.Tier = "tiles"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &WithMetrics{inner: inner, opts: opts}
}

func (w *WithMetrics) Inc(key string) {
	w.inner.Inc(key)
	if w.opts.Threshold > 0 {
		score := w.inner.Score(key)
		if score >= w.opts.Threshold && shouldLog(w.opts.LogSample, key) {
			w.opts.Logger.Info("hot tile above threshold",
				"event", "hotness_threshold",
				"score", score,
				"tier", w.opts.Tier,
				"key_hash", fmt.Sprintf("%08x", keys.Hash(key)),
			)
		}
	}
	w.updateGauge()
}

func (w *WithMetrics) Score(key string) float64 {
	return w.inner.Score(key)
}

func (w *WithMetrics) Reset(ks ...string) {
	w.inner.Reset(ks...)
	w.updateGauge()
}

func (w *WithMetrics) updateGauge() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeysGauge(w.opts.Tier, s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	return (keys.Hash(key) % denom) < threshold
}
