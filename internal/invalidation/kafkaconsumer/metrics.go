package kafkaconsumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricSet is per consumer so tests can register it on a private registry.
type metricSet struct {
	msgs     *prometheus.CounterVec
	proc     *prometheus.HistogramVec
	lagGauge prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tile_event_msgs_total",
				Help: "Consumed tile event messages by result.",
			},
			[]string{"result"},
		),
		proc: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tile_event_processing_seconds",
				Help:    "Time to apply one tile event to the cache.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		lagGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tile_event_lag_seconds",
				Help: "Approximate lag: now - event timestamp.",
			},
		),
	}
	if r != nil {
		r.MustRegister(m.msgs, m.proc, m.lagGauge)
	}
	return m
}
