package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestFileAdapter_CollectCSV(t *testing.T) {
	path := writeTemp(t, "train.csv", "row_id,cfips,first_day_of_month,microbusiness_density\n"+
		"1001_2019-08-01,1001,2019-08-01,3.007682\n"+
		"1001_2019-09-01,1001,2019-09-01,2.88487\n")

	a := &FileAdapter{Path: path}
	df, err := a.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if a.Name() != "csv" {
		t.Errorf("Name() = %q, want %q", a.Name(), "csv")
	}
	if len(df.Columns) != 4 {
		t.Fatalf("columns = %v, want 4 columns", df.Columns)
	}
	if len(df.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(df.Rows))
	}
	if got := df.Rows[1][df.ColumnIndex("microbusiness_density")]; got != "2.88487" {
		t.Errorf("density = %q, want %q", got, "2.88487")
	}
}

func TestFileAdapter_CollectTSVPadsShortRows(t *testing.T) {
	path := writeTemp(t, "test.tsv", "cfips\tfirst_day_of_month\tmicrobusiness_density\n01001\t2022-11-01\n")

	df, err := (&FileAdapter{Path: path}).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(df.Rows[0]) != 3 {
		t.Fatalf("row has %d cells, want 3", len(df.Rows[0]))
	}
	if df.Rows[0][2] != "" {
		t.Errorf("padded cell = %q, want empty", df.Rows[0][2])
	}
}

func TestFileAdapter_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantMsg string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.csv") },
			wantMsg: "cannot open file",
		},
		{
			name:    "directory",
			path:    func(t *testing.T) string { return t.TempDir() },
			wantMsg: "path is a directory",
		},
		{
			name:    "empty file",
			path:    func(t *testing.T) string { return writeTemp(t, "empty.csv", "") },
			wantMsg: "no header row",
		},
		{
			name:    "duplicate header",
			path:    func(t *testing.T) string { return writeTemp(t, "dup.csv", "a,a\n1,2\n") },
			wantMsg: "duplicate column",
		},
		{
			name:    "row wider than header",
			path:    func(t *testing.T) string { return writeTemp(t, "wide.csv", "a,b\n1,2,3\n") },
			wantMsg: "row 2 has 3 cells",
		},
		{
			name:    "unterminated quote",
			path:    func(t *testing.T) string { return writeTemp(t, "bad.csv", "a,b\n\"1,2\n") },
			wantMsg: "malformed table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&FileAdapter{Path: tt.path(t)}).Collect(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrDataLoad) {
				t.Errorf("error %v does not match ErrDataLoad", err)
			}
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("error %T is not *LoadError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestFileAdapter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&FileAdapter{Path: "whatever.csv"}).Collect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDataFrame_RenameColumn(t *testing.T) {
	df := &DataFrame{Columns: []string{"cfips", "first_day_of_month", "microbusiness_density"}}

	if err := df.RenameColumn("first_day_of_month", "ds"); err != nil {
		t.Fatalf("RenameColumn() error = %v", err)
	}
	if df.Columns[1] != "ds" {
		t.Errorf("Columns[1] = %q, want %q", df.Columns[1], "ds")
	}
	if err := df.RenameColumn("ds", "ds"); err != nil {
		t.Errorf("self rename error = %v", err)
	}
	if err := df.RenameColumn("missing", "y"); err == nil {
		t.Error("expected error renaming missing column")
	}
	if err := df.RenameColumn("microbusiness_density", "cfips"); err == nil {
		t.Error("expected error renaming onto an existing column")
	}
}

func TestDataFrame_EnsureColumn(t *testing.T) {
	df := &DataFrame{
		Columns: []string{"cfips"},
		Rows:    [][]string{{"01001"}, {"01003"}},
	}

	idx := df.EnsureColumn("microbusiness_density", "0")
	if idx != 1 {
		t.Fatalf("EnsureColumn() = %d, want 1", idx)
	}
	for i, row := range df.Rows {
		if row[1] != "0" {
			t.Errorf("row %d fill = %q, want %q", i, row[1], "0")
		}
	}
	if again := df.EnsureColumn("microbusiness_density", "x"); again != 1 {
		t.Errorf("second EnsureColumn() = %d, want 1", again)
	}
	if df.Rows[0][1] != "0" {
		t.Error("existing column must not be refilled")
	}
}

func TestWriteFile_Formats(t *testing.T) {
	df := &DataFrame{
		Columns: []string{"row_id", "cfips", "microbusiness_density"},
		Rows: [][]string{
			{"1001_2022-11-01", "01001", "3.46"},
			{"1003_2022-11-01", "01003", "8.25"},
		},
	}

	for _, ext := range []string{".csv", ".tsv", ".xlsx"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "forecast"+ext)
			if err := WriteFile(path, df); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			got, err := (&FileAdapter{Path: path}).Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			if strings.Join(got.Columns, ",") != strings.Join(df.Columns, ",") {
				t.Errorf("columns = %v, want %v", got.Columns, df.Columns)
			}
			if len(got.Rows) != len(df.Rows) {
				t.Fatalf("rows = %d, want %d", len(got.Rows), len(df.Rows))
			}
			if got.Rows[1][1] != "01003" {
				t.Errorf("zero padded id = %q, want %q", got.Rows[1][1], "01003")
			}
		})
	}
}

func TestWriteFile_JSON(t *testing.T) {
	df := &DataFrame{
		Columns: []string{"cfips", "microbusiness_density"},
		Rows:    [][]string{{"01001", "3.46"}},
	}
	path := filepath.Join(t.TempDir(), "forecast.json")
	if err := WriteFile(path, df); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"cfips": "01001"`) {
		t.Errorf("json output missing cfips: %s", b)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
