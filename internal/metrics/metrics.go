// Package metrics exposes Prometheus metrics for the tile server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Enabled bool
	Addr    string
	Path    string
	Build   BuildInfo
}

// Provider owns the per-process registry for build info and store gauges.
// Its handler also serves the default registry, where the go/process
// collectors and the observability package's counters live.
type Provider struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	return &Provider{reg: reg, buildInfo: build}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{p.reg, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// ZoomSource is the part of a tile store the zoom gauges read from.
type ZoomSource interface {
	MinZoomLevel() int
	MaxZoomLevel() int
}

// RegisterZoomExtent exports a store's cached zoom range as gauges.
func (p *Provider) RegisterZoomExtent(store string, src ZoomSource) {
	labels := prometheus.Labels{"store": store}
	p.Register(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "mbtiles_min_zoom_level",
			Help:        "Lowest zoom level present in the store (-1 when empty).",
			ConstLabels: labels,
		}, func() float64 { return float64(src.MinZoomLevel()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "mbtiles_max_zoom_level",
			Help:        "Highest zoom level present in the store (-1 when empty).",
			ConstLabels: labels,
		}, func() float64 { return float64(src.MaxZoomLevel()) }),
	)
}
