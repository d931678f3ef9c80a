// Package features turns raw loaded tables into per-entity model inputs.
//
// It owns column parsing (dates, numbers, entity codes), the canonical
// renaming of the time and target columns, partitioning by entity and the
// generation of the monthly forecast horizon.
package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pramodhsway/microcast/pkg/adapters"
	"github.com/pramodhsway/microcast/pkg/models"
)

const (
	// DateLayout is the layout of the source time column (%Y-%m-%d).
	DateLayout = "2006-01-02"

	// TimeColumn and ValueColumn are the canonical names the historical
	// time and target columns are renamed to.
	TimeColumn  = "ds"
	ValueColumn = "y"

	// EntityWidth is the fixed width of a county code.
	EntityWidth = 5
)

// Record is one parsed historical observation.
type Record struct {
	EntityID string
	Time     time.Time
	Value    float64
}

// Builder parses and reshapes loaded tables.
type Builder struct {
	// Layout is the time layout of the source time column.
	Layout string
}

// NewBuilder creates a builder that parses dates with DateLayout.
func NewBuilder() *Builder {
	return &Builder{Layout: DateLayout}
}

// Normalize parses the historical table and renames its time and target
// columns to TimeColumn and ValueColumn. The rename is destructive: df keeps
// the canonical names afterwards.
//
// Errors are *adapters.LoadError values: missing columns, unparsable dates,
// missing or non-numeric targets, and negative targets.
func (b *Builder) Normalize(source string, df *adapters.DataFrame, entityCol, timeCol, targetCol string) ([]Record, error) {
	entityIdx := df.ColumnIndex(entityCol)
	timeIdx := df.ColumnIndex(timeCol)
	targetIdx := df.ColumnIndex(targetCol)
	for _, c := range []struct {
		name string
		idx  int
	}{{entityCol, entityIdx}, {timeCol, timeIdx}, {targetCol, targetIdx}} {
		if c.idx < 0 {
			return nil, adapters.NewLoadError(source, fmt.Sprintf("missing column %q", c.name), nil)
		}
	}

	records := make([]Record, 0, len(df.Rows))
	for i, row := range df.Rows {
		line := i + 2

		ts, err := b.ParseTime(row[timeIdx])
		if err != nil {
			return nil, adapters.NewLoadError(source, fmt.Sprintf("line %d: unparsable date %q", line, row[timeIdx]), err)
		}

		raw := strings.TrimSpace(row[targetIdx])
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, adapters.NewLoadError(source, fmt.Sprintf("line %d: non-numeric %s %q", line, targetCol, raw), err)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return nil, adapters.NewLoadError(source, fmt.Sprintf("line %d: %s must be a finite non-negative number, got %q", line, targetCol, raw), nil)
		}

		entity := NormalizeEntityID(row[entityIdx])
		if entity == "" {
			return nil, adapters.NewLoadError(source, fmt.Sprintf("line %d: empty %s", line, entityCol), nil)
		}

		records = append(records, Record{EntityID: entity, Time: ts, Value: value})
	}

	if err := df.RenameColumn(timeCol, TimeColumn); err != nil {
		return nil, adapters.NewLoadError(source, "rename time column", err)
	}
	if err := df.RenameColumn(targetCol, ValueColumn); err != nil {
		return nil, adapters.NewLoadError(source, "rename target column", err)
	}

	return records, nil
}

// ParseTime parses a cell of the time column.
func (b *Builder) ParseTime(cell string) (time.Time, error) {
	layout := b.Layout
	if layout == "" {
		layout = DateLayout
	}
	return time.Parse(layout, strings.TrimSpace(cell))
}

// NormalizeEntityID left-pads numeric codes with zeros to EntityWidth
// digits ("1001" -> "01001"). Non-numeric ids are only trimmed.
func NormalizeEntityID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return id
		}
	}
	if len(id) < EntityWidth {
		id = strings.Repeat("0", EntityWidth-len(id)) + id
	}
	return id
}

// Partition groups records by entity. Entities keep the order of their first
// appearance; each series is sorted by time.
func Partition(records []Record) []models.Series {
	index := make(map[string]int)
	var out []models.Series

	for _, r := range records {
		i, ok := index[r.EntityID]
		if !ok {
			i = len(out)
			index[r.EntityID] = i
			out = append(out, models.Series{EntityID: r.EntityID})
		}
		out[i].Points = append(out[i].Points, models.Point{Time: r.Time, Value: r.Value})
	}

	for i := range out {
		out[i] = out[i].Sorted()
	}
	return out
}

// Values returns the value of every record, in record order.
func Values(records []Record) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Value
	}
	return out
}

// WithValues returns a copy of records carrying the given values.
func WithValues(records []Record, values []float64) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Value = values[i]
		out[i] = r
	}
	return out
}

// LastTime returns the latest timestamp among records.
func LastTime(records []Record) time.Time {
	var last time.Time
	for _, r := range records {
		if r.Time.After(last) {
			last = r.Time
		}
	}
	return last
}

// MonthStart truncates ts to the first day of its month.
func MonthStart(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, ts.Location())
}

// MonthKey identifies the calendar month of ts.
func MonthKey(ts time.Time) string {
	return ts.Format("2006-01")
}

// Horizon returns n month starts following the month of last.
func Horizon(last time.Time, n int) []time.Time {
	start := MonthStart(last)
	out := make([]time.Time, n)
	for i := range n {
		out[i] = start.AddDate(0, i+1, 0)
	}
	return out
}
