// Package sqlite opens the SQLite files that back tile stores.
//
// The default build uses the pure Go modernc.org/sqlite driver. Building with
// -tags cgo_sqlite switches to github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

func DriverName() string { return driverName }

// DriverType is "purego" or "cgo".
func DriverType() string { return driverType }

// Open opens path read-write. SQLite serialises writers anyway, so the pool
// is held to a single connection to keep transactions and reads on the same
// handle.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	return open(ctx, fileURI(path, "rwc"))
}

// OpenReadOnly opens path in read-only mode.
func OpenReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	return open(ctx, fileURI(path, "ro"))
}

// fileURI builds a SQLite URI filename. The path is percent-encoded so that
// '?', '#' and '%' in file names are not read as URI syntax.
func fileURI(path, mode string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=" + mode}
	return u.String()
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping %q: %w", dsn, err)
	}
	return db, nil
}
