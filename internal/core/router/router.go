// Package router maps the tile HTTP API onto a tile store.
package router

import (
	"context"
	"image"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/mbtiles-store/internal/hitevents"
	"github.com/mohammed-shakir/mbtiles-store/internal/invalidation"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/codec"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
)

// TileReader serves tile bytes; the tile cache and the store both satisfy it.
type TileReader interface {
	GetTile(ctx context.Context, x, y, z int) ([]byte, bool, error)
}

// TileStore is the part of *store.Store the handlers write through.
type TileStore interface {
	SetTile(ctx context.Context, img image.Image, x, y, z int) (bool, error)
	DeleteTile(ctx context.Context, x, y, z int) (bool, error)
	Metadata() *metadata.Record
	TileFormat() metadata.Format
	MinZoom(ctx context.Context) (int, error)
	MaxZoom(ctx context.Context) (int, error)
}

// Invalidator drops a tile from the local cache after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, x, y, z int) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev invalidation.Event) error
}

// HitRecorder receives every served tile read; it must not block.
type HitRecorder interface {
	Publish(ev hitevents.Event)
}

type Deps struct {
	Store  TileStore
	Reader TileReader
	// StoreName tags published events; it must match the cache key store
	// name replicas use.
	StoreName     string
	Cache         Invalidator
	Events        EventPublisher
	Hits          HitRecorder
	Codec         codec.Codec
	WritesEnabled bool
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

type handlers struct {
	Deps
}

// Mount registers the tile and metadata routes on r.
func Mount(r chi.Router, d Deps) {
	if d.Reader == nil {
		d.Reader = readerOf(d.Store)
	}
	if d.Codec == nil {
		d.Codec = codec.Image{}
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 8 << 20
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{Deps: d}

	r.Get("/tiles/{z}/{x}/{y}", h.getTile)
	r.Get("/metadata", h.getMetadata)
	if d.WritesEnabled {
		r.Put("/tiles/{z}/{x}/{y}", h.putTile)
		r.Delete("/tiles/{z}/{x}/{y}", h.deleteTile)
	}
}

func readerOf(s TileStore) TileReader {
	if r, ok := s.(TileReader); ok {
		return r
	}
	return nil
}
