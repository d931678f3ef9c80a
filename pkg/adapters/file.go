package adapters

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FileAdapter reads a table from the local filesystem. The format is chosen
// from the file extension:
//
//	.csv           comma separated, first row is the header
//	.tsv           tab separated, first row is the header
//	.xlsx          first sheet of a spreadsheet, first row is the header
//
// Rows shorter than the header are padded with empty cells; longer rows are
// rejected.
type FileAdapter struct {
	Path string
}

func (a *FileAdapter) Name() string {
	switch formatOf(a.Path) {
	case formatXLSX:
		return "xlsx"
	case formatTSV:
		return "tsv"
	default:
		return "csv"
	}
}

// Collect implements Adapter.
func (a *FileAdapter) Collect(ctx context.Context) (*DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(a.Path)
	if err != nil {
		return nil, NewLoadError(a.Path, "cannot open file", err)
	}
	if info.IsDir() {
		return nil, NewLoadError(a.Path, "path is a directory", nil)
	}

	var records [][]string
	switch formatOf(a.Path) {
	case formatXLSX:
		records, err = readXLSX(a.Path)
	case formatTSV:
		records, err = readDelimited(a.Path, '\t')
	default:
		records, err = readDelimited(a.Path, ',')
	}
	if err != nil {
		return nil, NewLoadError(a.Path, "malformed table", err)
	}

	return buildFrame(a.Path, records)
}

func buildFrame(path string, records [][]string) (*DataFrame, error) {
	if len(records) == 0 {
		return nil, NewLoadError(path, "file has no header row", nil)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if h == "" {
			return nil, NewLoadError(path, "empty column name in header", nil)
		}
		if seen[h] {
			return nil, NewLoadError(path, fmt.Sprintf("duplicate column %q", h), nil)
		}
		seen[h] = true
	}

	df := &DataFrame{Columns: header, Rows: make([][]string, 0, len(records)-1)}
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, NewLoadError(path, fmt.Sprintf("row %d has %d cells, header has %d", i+2, len(rec), len(header)), nil)
		}
		row := make([]string, len(header))
		copy(row, rec)
		df.Rows = append(df.Rows, row)
	}

	return df, nil
}

func readDelimited(path string, comma rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// WriteFile persists df to path, choosing the format from the extension
// (.csv, .tsv, .json or .xlsx). The file is written to a temporary sibling
// and renamed into place so readers never observe a partial table.
func WriteFile(path string, df *DataFrame) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	switch formatOf(path) {
	case formatXLSX:
		err = writeXLSX(tmp, df)
	case formatJSON:
		err = writeJSON(tmp, df)
	case formatTSV:
		err = writeDelimited(tmp, df, '\t')
	default:
		err = writeDelimited(tmp, df, ',')
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return os.Rename(tmp.Name(), path)
}

func writeDelimited(w io.Writer, df *DataFrame, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(df.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(df.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func writeJSON(w io.Writer, df *DataFrame) error {
	records := make([]map[string]string, len(df.Rows))
	for i, row := range df.Rows {
		rec := make(map[string]string, len(df.Columns))
		for j, col := range df.Columns {
			rec[col] = row[j]
		}
		records[i] = rec
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeXLSX(w io.Writer, df *DataFrame) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range append([][]string{df.Columns}, df.Rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

type fileFormat int

const (
	formatCSV fileFormat = iota
	formatTSV
	formatJSON
	formatXLSX
)

func formatOf(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv":
		return formatTSV
	case ".json":
		return formatJSON
	case ".xlsx":
		return formatXLSX
	default:
		return formatCSV
	}
}
