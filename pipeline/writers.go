package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-books-etl/models"
)

// Checkpoint formats accepted by NewTableWriter.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
	FormatDual = "dual"
)

// TableWriter materializes ordered-column tables.
type TableWriter interface {
	WriteTable(table models.Table) error
	Close() error
	Validate() error
}

// NewTableWriter returns a writer for format that stores its tables under dir.
func NewTableWriter(format, dir string) (TableWriter, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(dir)
	case FormatJSON:
		return NewJSONWriter(dir)
	case FormatXLSX:
		return NewXLSXWriter(filepath.Join(dir, filepath.Base(dir)+".xlsx"))
	case FormatDual:
		return NewDualWriter(dir)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format %q", format)
	}
}

// CSVWriter writes each table to <dir>/<table>.csv with a header row.
type CSVWriter struct {
	dir   string
	files []string
	mu    sync.Mutex
}

// NewCSVWriter creates dir if needed.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &CSVWriter{dir: dir}, nil
}

// WriteTable replaces <dir>/<table>.csv with the table contents.
func (cw *CSVWriter) WriteTable(table models.Table) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	filename := filepath.Join(cw.dir, table.Name+".csv")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, v := range row {
			record[i] = models.FormatValue(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv file: %w", err)
	}

	cw.files = append(cw.files, filename)
	return nil
}

// Close is a no-op; every table file is closed once written.
func (cw *CSVWriter) Close() error {
	return nil
}

// Validate ensures at least one table was written and no file is empty.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return validateFiles("csv", cw.files)
}

// JSONWriter writes each table to <dir>/<table>.jsonl, one object per row.
type JSONWriter struct {
	dir   string
	files []string
	mu    sync.Mutex
}

// NewJSONWriter creates dir if needed.
func NewJSONWriter(dir string) (*JSONWriter, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &JSONWriter{dir: dir}, nil
}

// WriteTable replaces <dir>/<table>.jsonl with the table contents.
func (jw *JSONWriter) WriteTable(table models.Table) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	filename := filepath.Join(jw.dir, table.Name+".jsonl")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	buffer := bufio.NewWriter(f)
	for _, row := range table.Rows {
		line, err := encodeRow(table.Columns, row)
		if err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		if _, err := buffer.Write(line); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close json file: %w", err)
	}

	jw.files = append(jw.files, filename)
	return nil
}

// Close is a no-op; every table file is closed once written.
func (jw *JSONWriter) Close() error {
	return nil
}

// Validate ensures at least one table was written. An empty table yields an empty file.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if len(jw.files) == 0 {
		return fmt.Errorf("json writer: no tables written")
	}
	for _, name := range jw.files {
		if _, err := os.Stat(name); err != nil {
			return fmt.Errorf("stat json file: %w", err)
		}
	}
	return nil
}

// encodeRow renders one row as a JSON object keeping column order.
func encodeRow(columns []string, row []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, column := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(row[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// XLSXWriter collects tables as sheets of one workbook, saved on Close.
type XLSXWriter struct {
	filename string
	file     *excelize.File
	sheets   []string
	saved    bool
	mu       sync.Mutex
}

// NewXLSXWriter starts an empty workbook that will be saved to filename.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filepath.Dir(filename)); err != nil {
		return nil, err
	}
	return &XLSXWriter{filename: filename, file: excelize.NewFile()}, nil
}

// WriteTable adds the table as a sheet named after it.
func (xw *XLSXWriter) WriteTable(table models.Table) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if len(xw.sheets) == 0 {
		if err := xw.file.SetSheetName(xw.file.GetSheetName(0), table.Name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else {
		index, err := xw.file.NewSheet(table.Name)
		if err != nil {
			return fmt.Errorf("create sheet %q: %w", table.Name, err)
		}
		xw.file.SetActiveSheet(index)
	}

	for col, header := range table.Columns {
		if err := xw.setCell(table.Name, col+1, 1, header); err != nil {
			return err
		}
	}
	for r, row := range table.Rows {
		for col, v := range row {
			if err := xw.setCell(table.Name, col+1, r+2, v); err != nil {
				return err
			}
		}
	}

	xw.sheets = append(xw.sheets, table.Name)
	return nil
}

func (xw *XLSXWriter) setCell(sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := xw.file.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// Close saves the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.saved {
		return nil
	}
	if err := xw.file.SaveAs(xw.filename); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	xw.saved = true
	return xw.file.Close()
}

// Validate ensures at least one sheet was written, and the file once saved.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if len(xw.sheets) == 0 {
		return fmt.Errorf("xlsx writer: no tables written")
	}
	if xw.saved {
		return validateFiles("xlsx", []string{xw.filename})
	}
	return nil
}

func validateFiles(kind string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("%s writer: no tables written", kind)
	}
	for _, name := range files {
		info, err := os.Stat(name)
		if err != nil {
			return fmt.Errorf("stat %s file: %w", kind, err)
		}
		if info.Size() <= 0 {
			return fmt.Errorf("%s file %s is empty", kind, filepath.Base(name))
		}
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
