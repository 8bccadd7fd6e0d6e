package sink

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/pipeline"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestFileSinkSwapsDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "books_website")

	s, err := NewFileSink(dir, pipeline.FormatCSV)
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stale.csv"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	if err := s.Load(context.Background(), testTables("a", "b")); err != nil {
		t.Fatalf("load: %v", err)
	}

	if diff := cmp.Diff([]string{"books.csv", "genres.csv", "in_stock.csv"}, listDir(t, dir)); diff != "" {
		t.Fatalf("sink dir mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"books_website"}, listDir(t, root)); diff != "" {
		t.Fatalf("staging left behind (-want +got):\n%s", diff)
	}
}

func TestFileSinkXLSX(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	s, err := NewFileSink(dir, pipeline.FormatXLSX)
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	if err := s.Load(context.Background(), testTables("a")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"out.xlsx"}, listDir(t, dir)); diff != "" {
		t.Fatalf("sink dir mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFileSinkValidation(t *testing.T) {
	if _, err := NewFileSink("", pipeline.FormatCSV); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	if _, err := NewFileSink(t.TempDir(), "parquet"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.SinkDriver = "files"
	cfg.SinkDSN = filepath.Join(t.TempDir(), "tables")
	cfg.CheckpointFormat = pipeline.FormatJSON
	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open files sink: %v", err)
	}
	if fs, ok := s.(*FileSink); !ok || fs.format != pipeline.FormatJSON {
		t.Fatalf("unexpected sink %#v", s)
	}

	cfg = config.DefaultConfig()
	cfg.SinkDSN = filepath.Join(t.TempDir(), "nested", "books.db")
	s, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open sqlite sink: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLSink); !ok {
		t.Fatalf("unexpected sink %#v", s)
	}

	cfg.SinkDriver = "oracle"
	if _, err := Open(ctx, cfg); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestSQLitePath(t *testing.T) {
	tests := map[string]string{
		"data/books.db":                   "data/books.db",
		"file:data/books.db?cache=shared": "data/books.db",
		":memory:":                        ":memory:",
	}
	for dsn, want := range tests {
		if got := sqlitePath(dsn); got != want {
			t.Fatalf("sqlitePath(%q) = %q, want %q", dsn, got, want)
		}
	}
}
