package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-books-etl/models"
	"github.com/aluiziolira/go-books-etl/pipeline"
)

// FileSink writes the tables into dir using a checkpoint format.
type FileSink struct {
	dir    string
	format string
}

// NewFileSink validates format and returns a sink rooted at dir.
func NewFileSink(dir, format string) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("file sink needs a directory")
	}
	switch format {
	case pipeline.FormatCSV, pipeline.FormatJSON, pipeline.FormatXLSX, pipeline.FormatDual:
	default:
		return nil, fmt.Errorf("unsupported file sink format %q", format)
	}
	return &FileSink{dir: filepath.Clean(dir), format: format}, nil
}

// Load writes every table into a staging directory, then swaps it in place of dir.
func (f *FileSink) Load(ctx context.Context, tables []models.Table) error {
	parent, base := filepath.Dir(f.dir), filepath.Base(f.dir)
	stagingRoot := filepath.Join(parent, "."+base+".staging")
	staging := filepath.Join(stagingRoot, base)
	previous := filepath.Join(stagingRoot, base+".previous")

	if err := os.RemoveAll(stagingRoot); err != nil {
		return fmt.Errorf("reset staging: %w", err)
	}
	defer os.RemoveAll(stagingRoot)

	writer, err := pipeline.NewTableWriter(f.format, staging)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			writer.Close()
			return err
		}
		if err := writer.WriteTable(table); err != nil {
			writer.Close()
			return fmt.Errorf("write %s: %w", table.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close staging writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("validate staging: %w", err)
	}

	if _, err := os.Stat(f.dir); err == nil {
		if err := os.Rename(f.dir, previous); err != nil {
			return fmt.Errorf("move previous tables aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", f.dir, err)
	}

	if err := os.Rename(staging, f.dir); err != nil {
		if _, statErr := os.Stat(previous); statErr == nil {
			os.Rename(previous, f.dir)
		}
		return fmt.Errorf("swap in new tables: %w", err)
	}
	return nil
}

// Close is a no-op.
func (f *FileSink) Close() error {
	return nil
}
