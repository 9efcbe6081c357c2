// Package store reads and writes tiles in an MBTiles SQLite file.
//
// A Store is either opened from an existing file, which is validated against
// a schema revision first, or created from scratch from a trusted metadata
// record. One caller owns each Store; there is no registry of open stores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/mbtiles-store/internal/core/observability"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/codec"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/validator"
	"github.com/mohammed-shakir/mbtiles-store/internal/sqlite"
)

var (
	ErrClosed   = errors.New("mbtiles: store is closed")
	ErrExists   = errors.New("mbtiles: file already exists")
	ErrNotExist = errors.New("mbtiles: file does not exist")
)

// MaxZoom is the deepest zoom level a tile address may use.
const MaxZoom = 30

type InvalidTileError struct {
	X, Y, Z int
}

func (e *InvalidTileError) Error() string {
	return fmt.Sprintf("invalid tile address z=%d x=%d y=%d", e.Z, e.X, e.Y)
}

type Option func(*options)

type options struct {
	codec  codec.Codec
	logger *slog.Logger
}

func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{codec: codec.Image{}, logger: slog.New(slog.DiscardHandler)}
	for _, f := range opts {
		f(&o)
	}
	return o
}

type Store struct {
	path   string
	db     *sql.DB
	codec  codec.Codec
	logger *slog.Logger
	closed atomic.Bool

	mu   sync.RWMutex
	meta *metadata.Record

	zoomMu  sync.Mutex
	minZoom int
	maxZoom int
}

func newStore(path string, db *sql.DB, meta *metadata.Record, o options) *Store {
	return &Store{
		path:    path,
		db:      db,
		codec:   o.codec,
		logger:  o.logger.With("store", path, "schema", meta.Schema.String()),
		meta:    meta,
		minZoom: -1,
		maxZoom: -1,
	}
}

// OpenValidated opens an existing file and checks it against version v:
// metadata first, then the tiles table. On any failure the handle is
// released and the file is left as it was.
func OpenValidated(ctx context.Context, path string, v schema.Version, opts ...Option) (*Store, error) {
	o := buildOptions(opts)

	mv, err := validator.MetadataFor(v)
	if err != nil {
		return nil, err
	}
	tv, err := validator.TilesFor(v)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	meta, err := validate(ctx, db, mv, tv)
	observability.ObserveValidation(v.String(), err)
	if err != nil {
		_ = db.Close()
		o.logger.Warn("mbtiles validation failed", "path", path, "version", v.String(), "err", err)
		return nil, err
	}

	s := newStore(path, db, meta, o)
	s.logger.Debug("mbtiles opened", "name", meta.Name, "format", string(meta.Format))
	return s, nil
}

func validate(ctx context.Context, db *sql.DB, mv *validator.Metadata, tv *validator.Tiles) (*metadata.Record, error) {
	rows, err := readMetadataRows(ctx, db)
	if err != nil {
		return nil, err
	}
	meta, err := mv.Validate(rows)
	if err != nil {
		return nil, err
	}

	cols, err := tileColumns(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := tv.Validate(cols); err != nil {
		return nil, err
	}
	return meta, nil
}

// Create makes a new file at path with the tables and indexes for
// rec.Schema, writes rec as metadata rows and returns the open store. The
// record is trusted and not validated.
func Create(ctx context.Context, path string, rec *metadata.Record, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	if rec == nil {
		return nil, errors.New("mbtiles: nil metadata record")
	}
	stmts, err := schema.DDL(rec.Schema)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return insertMetadata(ctx, tx, rec.Rows())
	})
	if err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := newStore(path, db, rec.Clone(), o)
	s.logger.Info("mbtiles created", "name", rec.Name)
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Version() schema.Version { return s.record().Schema }

// Metadata returns a copy of the current metadata record.
func (s *Store) Metadata() *metadata.Record { return s.record().Clone() }

func (s *Store) record() *metadata.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// GetTile returns the tile at (x, y, z). A missing row and an address
// outside the store's bounds both report found=false without error.
func (s *Store) GetTile(ctx context.Context, x, y, z int) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	meta := s.record()
	if meta.Schema == schema.V1_1 && !meta.EffectiveBounds().Contains(x, y, z) {
		observability.IncTileRead("out_of_bounds")
		return nil, false, nil
	}

	start := time.Now()
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT "+schema.ColTileData+" FROM "+schema.TilesTable+
			" WHERE "+schema.ColTileColumn+" = ? AND "+schema.ColTileRow+" = ? AND "+schema.ColZoomLevel+" = ? LIMIT 1",
		x, y, z,
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		observability.ObserveStoreOp("get_tile", nil, time.Since(start).Seconds())
		observability.IncTileRead("miss")
		return nil, false, nil
	case err != nil:
		observability.ObserveStoreOp("get_tile", err, time.Since(start).Seconds())
		observability.IncTileRead("error")
		return nil, false, fmt.Errorf("get tile z=%d x=%d y=%d: %w", z, x, y, err)
	}
	observability.ObserveStoreOp("get_tile", nil, time.Since(start).Seconds())
	observability.IncTileRead("hit")
	return data, true, nil
}

// SetTile encodes img in the store's tile format and writes it at (x, y, z),
// replacing any existing tile there. Revision 1.0 always encodes JPEG. When
// the record carries no usable format the write is skipped and SetTile
// returns false with a nil error.
func (s *Store) SetTile(ctx context.Context, img image.Image, x, y, z int) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	if err := validAddress(x, y, z); err != nil {
		return false, err
	}

	f := s.TileFormat()
	data, err := s.codec.Encode(img, f, codec.MaxQuality)
	if errors.Is(err, codec.ErrUnsupportedFormat) {
		observability.IncTileWrite("unsupported_format")
		s.logger.Debug("tile write skipped: no usable format", "format", string(f))
		return false, nil
	}
	if err != nil {
		observability.IncTileWrite("error")
		return false, fmt.Errorf("encode tile z=%d x=%d y=%d: %w", z, x, y, err)
	}
	return s.PutTileData(ctx, data, x, y, z)
}

// TileFormat is the encoding SetTile uses: JPEG for revision 1.0, the
// recorded format for 1.1.
func (s *Store) TileFormat() metadata.Format {
	meta := s.record()
	if meta.Schema == schema.V1_0 {
		return metadata.JPEG
	}
	return meta.Format
}

// PutTileData writes already encoded bytes at (x, y, z). Conflicts on the
// unique tile index replace the old row, so a coordinate never holds more
// than one tile.
func (s *Store) PutTileData(ctx context.Context, data []byte, x, y, z int) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	if err := validAddress(x, y, z); err != nil {
		return false, err
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+schema.TilesTable+" ("+
			schema.ColZoomLevel+", "+schema.ColTileColumn+", "+schema.ColTileRow+", "+schema.ColTileData+
			") VALUES (?, ?, ?, ?)",
		z, x, y, data,
	)
	observability.ObserveStoreOp("put_tile", err, time.Since(start).Seconds())
	if err != nil {
		observability.IncTileWrite("error")
		return false, fmt.Errorf("put tile z=%d x=%d y=%d: %w", z, x, y, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		observability.IncTileWrite("error")
		return false, fmt.Errorf("put tile z=%d x=%d y=%d: rows affected: %w", z, x, y, err)
	}
	observability.IncTileWrite("ok")
	return n > 0, nil
}

// DeleteTile removes the tile at (x, y, z) and reports whether one existed.
func (s *Store) DeleteTile(ctx context.Context, x, y, z int) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+schema.TilesTable+
			" WHERE "+schema.ColTileColumn+" = ? AND "+schema.ColTileRow+" = ? AND "+schema.ColZoomLevel+" = ?",
		x, y, z,
	)
	observability.ObserveStoreOp("delete_tile", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("delete tile z=%d x=%d y=%d: %w", z, x, y, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tile z=%d x=%d y=%d: rows affected: %w", z, x, y, err)
	}
	return n > 0, nil
}

func (s *Store) TileCount(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.TilesTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tiles: %w", err)
	}
	return n, nil
}

// MinZoom returns the lowest zoom level in the tiles table, or -1 when the
// table is empty. The first non-empty answer is cached for the life of the
// store and is not refreshed by later writes.
func (s *Store) MinZoom(ctx context.Context) (int, error) {
	return s.zoomExtent(ctx, "MIN", &s.minZoom)
}

// MaxZoom is MinZoom's counterpart; the same caching applies.
func (s *Store) MaxZoom(ctx context.Context) (int, error) {
	return s.zoomExtent(ctx, "MAX", &s.maxZoom)
}

func (s *Store) zoomExtent(ctx context.Context, agg string, cached *int) (int, error) {
	if s.closed.Load() {
		return -1, ErrClosed
	}
	s.zoomMu.Lock()
	v := *cached
	s.zoomMu.Unlock()
	if v >= 0 {
		return v, nil
	}

	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT "+agg+"("+schema.ColZoomLevel+") FROM "+schema.TilesTable,
	).Scan(&n)
	if err != nil {
		return -1, fmt.Errorf("%s zoom level: %w", agg, err)
	}
	if !n.Valid {
		return -1, nil
	}

	s.zoomMu.Lock()
	defer s.zoomMu.Unlock()
	if *cached < 0 {
		*cached = int(n.Int64)
	}
	return *cached, nil
}

// SaveMetadata replaces every metadata row with rec in one transaction. If
// anything fails the previous rows are kept. The schema revision of a store
// never changes.
func (s *Store) SaveMetadata(ctx context.Context, rec *metadata.Record) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if rec == nil {
		return errors.New("mbtiles: nil metadata record")
	}
	if cur := s.Version(); rec.Schema != cur {
		return fmt.Errorf("mbtiles: cannot save %s metadata into a %s store", rec.Schema, cur)
	}

	start := time.Now()
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+schema.MetadataTable); err != nil {
			return fmt.Errorf("clear metadata: %w", err)
		}
		return insertMetadata(ctx, tx, rec.Rows())
	})
	observability.ObserveStoreOp("save_metadata", err, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.meta = rec.Clone()
	s.mu.Unlock()
	s.logger.Info("mbtiles metadata saved", "rows", len(rec.Rows()))
	return nil
}

// Ping checks that the database handle still answers.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.path, err)
	}
	return nil
}

// Close releases the database handle. Later calls on the store return
// ErrClosed; closing twice is a no-op.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

func validAddress(x, y, z int) error {
	if z < 0 || z > MaxZoom {
		return &InvalidTileError{X: x, Y: y, Z: z}
	}
	n := 1 << z
	if x < 0 || y < 0 || x >= n || y >= n {
		return &InvalidTileError{X: x, Y: y, Z: z}
	}
	return nil
}
