package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
)

// withTx runs fn in a transaction, committing on success and rolling back
// on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func insertMetadata(ctx context.Context, tx *sql.Tx, rows []metadata.Pair) error {
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+schema.MetadataTable+" ("+schema.MetadataColName+", "+schema.MetadataColVal+") VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare metadata insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Key, r.Value); err != nil {
			return fmt.Errorf("insert metadata %q: %w", r.Key, err)
		}
	}
	return nil
}

// readMetadataRows returns the metadata table in insertion order. Rows with
// a NULL name are skipped and a NULL value counts as absent. A file without
// a metadata table reads as having no rows.
func readMetadataRows(ctx context.Context, db *sql.DB) ([]metadata.Pair, error) {
	ok, err := hasTable(ctx, db, schema.MetadataTable)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+schema.MetadataColName+", "+schema.MetadataColVal+" FROM "+schema.MetadataTable+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	defer rows.Close()

	var out []metadata.Pair
	for rows.Next() {
		var k, v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		if !k.Valid || !v.Valid {
			continue
		}
		out = append(out, metadata.Pair{Key: k.String, Value: v.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return out, nil
}

func hasTable(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up table %s: %w", name, err)
	}
	return n > 0, nil
}

// tileColumns lists the columns of the tiles table; a missing table yields
// no columns.
func tileColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", schema.TilesTable)
	if err != nil {
		return nil, fmt.Errorf("read tiles columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tiles column: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tiles columns: %w", err)
	}
	return cols, nil
}
