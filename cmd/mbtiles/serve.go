package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/mbtiles-store/internal/cache"
	"github.com/mohammed-shakir/mbtiles-store/internal/cache/redisstore"
	"github.com/mohammed-shakir/mbtiles-store/internal/cache/tilecache"
	"github.com/mohammed-shakir/mbtiles-store/internal/core/config"
	"github.com/mohammed-shakir/mbtiles-store/internal/core/health"
	"github.com/mohammed-shakir/mbtiles-store/internal/core/router"
	"github.com/mohammed-shakir/mbtiles-store/internal/core/server"
	"github.com/mohammed-shakir/mbtiles-store/internal/hitevents"
	"github.com/mohammed-shakir/mbtiles-store/internal/hotness/expdecay"
	"github.com/mohammed-shakir/mbtiles-store/internal/hotness/metricswrap"
	"github.com/mohammed-shakir/mbtiles-store/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/mbtiles-store/internal/invalidation/publisher"
	"github.com/mohammed-shakir/mbtiles-store/internal/logger"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/store"
	"github.com/mohammed-shakir/mbtiles-store/internal/metrics"
	"github.com/mohammed-shakir/mbtiles-store/pkg/adaptive/simple"
)

// ServeCmd serves one MBTiles file over HTTP. Settings come from the
// environment; flags override them.
type ServeCmd struct {
	Path      string `arg:"" optional:"" help:"MBTiles file (default $MBTILES_PATH)." type:"existingfile"`
	Addr      string `help:"Listen address (default $ADDR)."`
	Writes    bool   `help:"Enable PUT and DELETE on tiles."`
	StoreName string `name:"store-name" help:"Store name used in cache keys and events (default: file name)."`
}

const prunePeriod = time.Minute

func (c *ServeCmd) settings() (config.Config, string, error) {
	cfg := config.FromEnv()
	if c.Path != "" {
		cfg.StorePath = c.Path
	}
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.Writes {
		cfg.WritesEnabled = true
	}
	if cfg.StorePath == "" {
		return cfg, "", errors.New("no MBTiles file given (argument or MBTILES_PATH)")
	}
	name := c.StoreName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(cfg.StorePath), filepath.Ext(cfg.StorePath))
	}
	return cfg, name, nil
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, name, err := c.settings()
	if err != nil {
		return err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole || g.LogConsole,
		SampleN:   cfg.LogSampleN,
		Store:     name,
		Component: "serve",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting mbtiles server", "version", Version, "path", cfg.StorePath, "schema", cfg.StoreVersion.String(), "writes", cfg.WritesEnabled)
	return serve(ctx, cfg, name, log)
}

func serve(ctx context.Context, cfg config.Config, name string, log *slog.Logger) error {
	st, err := store.OpenValidated(ctx, cfg.StorePath, cfg.StoreVersion, store.WithLogger(log))
	if err != nil {
		return err
	}
	defer st.Close()

	prov := metrics.Init(metrics.Config{Enabled: true, Build: metrics.BuildInfo{Version: cfg.BuildVersion}})
	prov.RegisterZoomExtent(name, zoomGauges{st})

	checks := map[string]health.Check{"store": st.Ping}
	deps := router.Deps{
		Store:         st,
		StoreName:     name,
		WritesEnabled: cfg.WritesEnabled,
		Logger:        log,
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Cache.Enabled {
		var l2 cache.Interface
		if cfg.Cache.RedisAddr != "" {
			rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
			if err != nil {
				return err
			}
			defer rc.Close()
			l2 = rc
			checks["redis"] = rc.Ping
		}

		tracker := expdecay.New(cfg.Cache.HotHalfLife)
		hot := metricswrap.New(tracker, metricswrap.Options{
			Tier:      "tiles",
			Threshold: cfg.Cache.HotThreshold,
			LogSample: 0.01,
			Logger:    log,
		})
		tc, err := tilecache.New(tilecache.Config{
			Store:        name,
			L1Size:       cfg.Cache.L1Size,
			TTL:          cfg.Cache.TTLFor,
			OpTimeout:    cfg.Cache.OpTimeout,
			LoadTimeout:  cfg.Cache.LoadTimeout,
			HotThreshold: cfg.Cache.HotThreshold,
			Fill: simple.New(simple.Config{
				Threshold: cfg.Cache.FillThreshold,
				BaseTTL:   cfg.Cache.TTLFor,
				HotTTL:    cfg.Cache.HotTTL,
			}),
		}, st, l2, hot, log)
		if err != nil {
			return err
		}
		deps.Reader = tc
		deps.Cache = tc

		g.Go(func() error {
			t := time.NewTicker(prunePeriod)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if n := tracker.Prune(0.01); n > 0 {
						log.Debug("hotness pruned", "keys", n)
					}
				}
			}
		})

		if cfg.Invalidation.Enabled {
			kc := kafkaconsumer.FromConfig(cfg.Invalidation, name)
			kc.Register = prov.Registerer()
			cons := kafkaconsumer.New(kc, log, tc, hot)
			g.Go(func() error { return cons.Start(ctx) })
		}
	}

	var pub publisher.Publisher = publisher.Noop{}
	if cfg.Invalidation.Enabled && cfg.WritesEnabled {
		kp, err := publisher.NewKafka(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, log)
		if err != nil {
			return fmt.Errorf("event publisher: %w", err)
		}
		pub = kp
	}
	defer pub.Close()
	deps.Events = pub

	if cfg.Hits.Enabled {
		hp, err := hitevents.NewPublisher(cfg.Invalidation.Brokers, cfg.Hits.Topic, cfg.Hits.QueueSize, log)
		if err != nil {
			return err
		}
		defer hp.Close()
		deps.Hits = hp
	}

	h := server.Handler(log, server.Options{
		Metrics: prov.Handler(),
		Ready:   health.Readiness(2*time.Second, checks),
	}, func(r chi.Router) { router.Mount(r, deps) })

	g.Go(func() error { return server.Run(ctx, cfg.Addr, log, h) })
	return g.Wait()
}

// zoomGauges reads the store's cached zoom range for the metrics gauges.
type zoomGauges struct{ s *store.Store }

func (z zoomGauges) MinZoomLevel() int {
	n, err := z.s.MinZoom(context.Background())
	if err != nil {
		return -1
	}
	return n
}

func (z zoomGauges) MaxZoomLevel() int {
	n, err := z.s.MaxZoom(context.Background())
	if err != nil {
		return -1
	}
	return n
}
