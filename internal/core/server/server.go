// Package server wires the HTTP router and runs it until the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/mbtiles-store/internal/core/health"
	middleware "github.com/mohammed-shakir/mbtiles-store/internal/core/middleware"
)

type Options struct {
	// Metrics defaults to the default Prometheus registry.
	Metrics http.Handler
	// Ready defaults to always ready.
	Ready http.HandlerFunc
}

// Handler builds the router with the probe and metrics endpoints plus
// whatever mount registers.
func Handler(logger *slog.Logger, opts Options, mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	if opts.Ready == nil {
		opts.Ready = health.Readiness(0, nil)
	}
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", opts.Ready)
	r.Method(http.MethodGet, "/metrics", opts.Metrics)
	if mount != nil {
		mount(r)
	}
	return r
}

// Run serves handler on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, logger *slog.Logger, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, logger, handler)
}

func Serve(ctx context.Context, ln net.Listener, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("http serve: %w", err)
	}
}
