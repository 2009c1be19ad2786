package export

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/arkilian/csvreduce/internal/table"
	"github.com/arkilian/csvreduce/pkg/types"
)

type city struct {
	Name       string
	Population int64
	Area       float64
	Founded    *int64
}

func citySchema() table.Schema[city] {
	return table.Schema[city]{
		Name: "cities",
		Layout: types.Schema{
			Name:    "cities",
			Version: 2,
			Columns: []types.ColumnDef{
				{Name: "name", Type: "TEXT"},
				{Name: "population", Type: "INTEGER"},
				{Name: "area", Type: "REAL"},
				{Name: "founded", Type: "INTEGER", Nullable: true},
			},
		},
		Values: func(c city) []interface{} {
			var founded interface{}
			if c.Founded != nil {
				founded = *c.Founded
			}
			return []interface{}{c.Name, c.Population, c.Area, founded}
		},
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	year := int64(1624)
	rows := []city{
		{Name: "Lagos", Population: 15000000, Area: 1171.28},
		{Name: "New York", Population: 8300000, Area: 783.8, Founded: &year},
	}
	path := filepath.Join(t.TempDir(), "out", "snap.sqlite")

	info, err := Write(context.Background(), path, citySchema(), rows)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if info.RowCount != 2 || info.Table != "cities" || info.SchemaVersion != 2 || info.SizeBytes == 0 {
		t.Errorf("unexpected info %+v", info)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cities`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	var founded sql.NullInt64
	if err := db.QueryRow(`SELECT founded FROM cities WHERE name = 'Lagos'`).Scan(&founded); err != nil {
		t.Fatalf("select: %v", err)
	}
	if founded.Valid {
		t.Error("nil value should be stored as NULL")
	}

	var version, metaRows int
	if err := db.QueryRow(`SELECT schema_version, row_count FROM _csvreduce_meta WHERE table_name = 'cities'`).Scan(&version, &metaRows); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if version != 2 || metaRows != 2 {
		t.Errorf("meta = (%d, %d)", version, metaRows)
	}
}

func TestWrite_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.sqlite")
	ctx := context.Background()

	if _, err := Write(ctx, path, citySchema(), []city{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	info, err := Write(ctx, path, citySchema(), []city{{Name: "c"}})
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if info.RowCount != 1 {
		t.Errorf("RowCount = %d", info.RowCount)
	}
}

func TestWrite_InvalidLayout(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*table.Schema[city])
	}{
		{"no columns", func(s *table.Schema[city]) { s.Layout.Columns = nil }},
		{"bad type", func(s *table.Schema[city]) { s.Layout.Columns[0].Type = "BLOB" }},
		{"duplicate column", func(s *table.Schema[city]) { s.Layout.Columns[1].Name = "name" }},
		{"no values", func(s *table.Schema[city]) { s.Values = nil }},
		{"width mismatch", func(s *table.Schema[city]) {
			s.Values = func(city) []interface{} { return []interface{}{"x"} }
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := citySchema()
			s.Layout.Columns = append([]types.ColumnDef(nil), s.Layout.Columns...)
			tt.modify(&s)
			path := filepath.Join(t.TempDir(), "snap.sqlite")
			if _, err := Write(context.Background(), path, s, []city{{Name: "x"}}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteTable_RequiresFrozen(t *testing.T) {
	tbl := table.New[city]()
	if err := tbl.Append(city{Name: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	path := filepath.Join(t.TempDir(), "snap.sqlite")

	if _, err := WriteTable(context.Background(), path, citySchema(), tbl); err == nil {
		t.Error("expected error for unfrozen table")
	}

	tbl.Freeze()
	info, err := WriteTable(context.Background(), path, citySchema(), tbl)
	if err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if info.RowCount != 1 {
		t.Errorf("RowCount = %d", info.RowCount)
	}
}
