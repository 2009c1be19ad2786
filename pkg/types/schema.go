// Package types provides the value types shared between csvreduce packages
// and the programs built on top of them.
package types

// Schema describes the flat column layout of a dataset's rows when they
// leave the process, e.g. in a snapshot file.
type Schema struct {
	// Name identifies the dataset (e.g. "airquality")
	Name string `json:"name"`

	// Version tracks layout changes for snapshot readers
	Version int `json:"version"`

	// Columns defines the columns in order
	Columns []ColumnDef `json:"columns"`
}

// ColumnDef defines a single column in the schema.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the SQLite type: TEXT, INTEGER, REAL
	Type string `json:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable"`
}

// ColumnNames returns the column names in order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
