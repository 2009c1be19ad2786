// Package export writes frozen tables to SQLite snapshot files.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arkilian/csvreduce/internal/table"
	"github.com/arkilian/csvreduce/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// metaTable records which dataset and layout version a snapshot holds.
const metaTable = "_csvreduce_meta"

// batchSize bounds the rows inserted per transaction.
const batchSize = 10000

// SnapshotInfo describes a written snapshot.
type SnapshotInfo struct {
	Path          string
	Table         string
	RowCount      int64
	SizeBytes     int64
	SchemaVersion int
	CreatedAt     time.Time
}

// Write stores rows in a new SQLite file at path, replacing any existing
// file. The table is named after schema.Name and laid out as schema.Layout;
// schema.Values supplies each row's column values.
func Write[R any](ctx context.Context, path string, schema table.Schema[R], rows []R) (*SnapshotInfo, error) {
	layout := schema.Layout
	if layout.Name == "" {
		layout.Name = schema.Name
	}
	if err := validateLayout(layout); err != nil {
		return nil, err
	}
	if schema.Values == nil {
		return nil, fmt.Errorf("export: schema %q has no value extractor", layout.Name)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("export: failed to create output directory: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("export: failed to remove existing snapshot: %w", err)
	}

	createdAt := time.Now()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("export: failed to create SQLite database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("export: failed to set journal mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, createTableSQL(layout)); err != nil {
		return nil, fmt.Errorf("export: failed to create table: %w", err)
	}

	if err := insertRows(ctx, db, layout, schema.Values, rows); err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE %s (table_name TEXT NOT NULL, schema_version INTEGER NOT NULL, row_count INTEGER NOT NULL, created_at INTEGER NOT NULL)",
		metaTable)); err != nil {
		return nil, fmt.Errorf("export: failed to create meta table: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", metaTable),
		layout.Name, layout.Version, len(rows), createdAt.Unix()); err != nil {
		return nil, fmt.Errorf("export: failed to write meta row: %w", err)
	}

	// Fold the WAL back into the main file so the snapshot is a single file.
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("export: failed to checkpoint WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return nil, fmt.Errorf("export: failed to set journal mode to DELETE: %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("export: failed to close database: %w", err)
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("export: failed to stat snapshot: %w", err)
	}

	info := &SnapshotInfo{
		Path:          path,
		Table:         layout.Name,
		RowCount:      int64(len(rows)),
		SizeBytes:     fileInfo.Size(),
		SchemaVersion: layout.Version,
		CreatedAt:     createdAt,
	}
	zerolog.Ctx(ctx).Info().
		Str("path", path).
		Str("table", info.Table).
		Int64("rows", info.RowCount).
		Int64("bytes", info.SizeBytes).
		Msg("snapshot written")
	return info, nil
}

// WriteTable snapshots a frozen table.
func WriteTable[R any](ctx context.Context, path string, schema table.Schema[R], tbl *table.Table[R]) (*SnapshotInfo, error) {
	if !tbl.Frozen() {
		return nil, fmt.Errorf("export: table %q is not frozen", schema.Name)
	}
	return Write(ctx, path, schema, tbl.Rows())
}

func insertRows[R any](ctx context.Context, db *sql.DB, layout types.Schema, values func(R) []interface{}, rows []R) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(layout.Columns)), ", ")
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(layout.Name), joinIdents(layout.ColumnNames()), placeholders)

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := insertBatch(ctx, db, insertSQL, len(layout.Columns), values, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertBatch[R any](ctx context.Context, db *sql.DB, insertSQL string, width int, values func(R) []interface{}, rows []R) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("export: failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		vals := values(row)
		if len(vals) != width {
			return fmt.Errorf("export: row has %d values, layout has %d columns", len(vals), width)
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return fmt.Errorf("export: failed to insert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: failed to commit batch: %w", err)
	}
	return nil
}

func validateLayout(layout types.Schema) error {
	if layout.Name == "" {
		return fmt.Errorf("export: layout has no table name")
	}
	if len(layout.Columns) == 0 {
		return fmt.Errorf("export: layout %q has no columns", layout.Name)
	}
	seen := make(map[string]bool, len(layout.Columns))
	for _, c := range layout.Columns {
		if c.Name == "" {
			return fmt.Errorf("export: layout %q has an unnamed column", layout.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("export: layout %q has duplicate column %q", layout.Name, c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case "TEXT", "INTEGER", "REAL":
		default:
			return fmt.Errorf("export: column %q has unsupported type %q", c.Name, c.Type)
		}
	}
	return nil
}

func createTableSQL(layout types.Schema) string {
	cols := make([]string, len(layout.Columns))
	for i, c := range layout.Columns {
		def := quoteIdent(c.Name) + " " + c.Type
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(layout.Name), strings.Join(cols, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
