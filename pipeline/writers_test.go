package pipeline

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-books-etl/models"
)

func sampleTables() []models.Table {
	tables := &models.Tables{
		Genres: []models.GenreRow{{ID: 1, Genre: "Poetry"}},
		Stock:  []models.StockRow{{UPC: "a897fe39b1053632", InStock: 22}},
		Books: []models.BookRow{{
			UPC:          "a897fe39b1053632",
			Title:        "A Light in the Attic",
			GenreID:      1,
			Rating:       3,
			ProductType:  "Books",
			PriceExclTax: 51.77,
			PriceInclTax: 51.77,
			Tax:          0,
			NumReviews:   0,
		}},
	}
	return tables.Batches()
}

func TestCSVWriterWriteTable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	for _, table := range sampleTables() {
		if err := writer.WriteTable(table); err != nil {
			t.Fatalf("write %s: %v", table.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	books := readCSV(t, filepath.Join(dir, "books.csv"))
	want := [][]string{
		models.BookColumns,
		{"a897fe39b1053632", "A Light in the Attic", "1", "3", "Books", "51.77", "51.77", "0.00", "0"},
	}
	if diff := cmp.Diff(want, books); diff != "" {
		t.Fatalf("books.csv mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVWriterValidateWithoutTables(t *testing.T) {
	writer, err := NewCSVWriter(t.TempDir())
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("expected validation error for writer with no tables")
	}
}

func TestJSONWriterKeepsColumnOrder(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewJSONWriter(dir)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	tables := sampleTables()
	if err := writer.WriteTable(tables[2]); err != nil {
		t.Fatalf("write books: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "books.jsonl"))
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan jsonl: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines=%d, want 1", len(lines))
	}
	if !strings.HasPrefix(lines[0], `{"upc":"a897fe39b1053632","titles":"A Light in the Attic","genre_id":1`) {
		t.Fatalf("unexpected line: %s", lines[0])
	}

	var row models.BookRow
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if row.PriceInclTax != 51.77 || row.Rating != 3 {
		t.Fatalf("unexpected decoded row: %+v", row)
	}
}

func TestXLSXWriterOneSheetPerTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.xlsx")

	writer, err := NewXLSXWriter(path)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	for _, table := range sampleTables() {
		if err := writer.WriteTable(table); err != nil {
			t.Fatalf("write %s: %v", table.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate xlsx: %v", err)
	}

	book, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()

	if diff := cmp.Diff([]string{"genres", "in_stock", "books"}, book.GetSheetList()); diff != "" {
		t.Fatalf("sheet mismatch (-want +got):\n%s", diff)
	}
	rows, err := book.GetRows("genres")
	if err != nil {
		t.Fatalf("read genres sheet: %v", err)
	}
	if diff := cmp.Diff([][]string{{"id", "genre"}, {"1", "Poetry"}}, rows); diff != "" {
		t.Fatalf("genres sheet mismatch (-want +got):\n%s", diff)
	}
}

func TestDualWriterWritesBothFormats(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewTableWriter(FormatDual, dir)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.WriteTable(sampleTables()[0]); err != nil {
		t.Fatalf("write genres: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual writer: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual writer: %v", err)
	}

	for _, name := range []string{"genres.csv", "genres.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestNewTableWriterUnknownFormat(t *testing.T) {
	if _, err := NewTableWriter("parquet", t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
