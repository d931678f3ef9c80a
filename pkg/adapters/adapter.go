// Package adapters loads and persists the tabular inputs and outputs of the
// forecasting batch.
//
// Each adapter reads one table from an external location (a delimited file,
// a spreadsheet, ...) and returns it as a DataFrame: an ordered header plus
// string cells. Parsing of individual columns into dates or numbers is left
// to the features package so that the original cell text can be written back
// untouched for every column the batch does not own.
package adapters

import (
	"context"
	"fmt"
)

// DataFrame is a lightweight in-memory table. Every row has exactly
// len(Columns) cells.
type DataFrame struct {
	Columns []string
	Rows    [][]string
}

// Adapter is the interface that all table sources implement.
//
// Collect is synchronous and should respect context cancellation. A source
// that is missing or malformed must return a *LoadError.
type Adapter interface {
	Collect(ctx context.Context) (*DataFrame, error)

	// Name returns a short identifier, e.g. "csv" or "xlsx".
	Name() string
}

// ColumnIndex returns the position of the named column, or -1.
func (df *DataFrame) ColumnIndex(name string) int {
	for i, c := range df.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (df *DataFrame) HasColumn(name string) bool {
	return df.ColumnIndex(name) >= 0
}

// RenameColumn renames a column in place. Renaming a column to itself is a
// no-op; renaming onto an existing different column is an error.
func (df *DataFrame) RenameColumn(from, to string) error {
	idx := df.ColumnIndex(from)
	if idx < 0 {
		return fmt.Errorf("column %q not found", from)
	}
	if from == to {
		return nil
	}
	if df.HasColumn(to) {
		return fmt.Errorf("column %q already exists", to)
	}
	df.Columns[idx] = to
	return nil
}

// EnsureColumn returns the index of the named column, appending it with the
// given fill value on every row when it does not exist yet.
func (df *DataFrame) EnsureColumn(name, fill string) int {
	if idx := df.ColumnIndex(name); idx >= 0 {
		return idx
	}
	df.Columns = append(df.Columns, name)
	for i := range df.Rows {
		df.Rows[i] = append(df.Rows[i], fill)
	}
	return len(df.Columns) - 1
}

// Fill sets every cell of the column at idx to value.
func (df *DataFrame) Fill(idx int, value string) {
	for i := range df.Rows {
		df.Rows[i][idx] = value
	}
}

// Clone returns a deep copy of the frame.
func (df *DataFrame) Clone() *DataFrame {
	out := &DataFrame{
		Columns: append([]string(nil), df.Columns...),
		Rows:    make([][]string, len(df.Rows)),
	}
	for i, row := range df.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}
