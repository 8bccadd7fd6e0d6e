// Package sink persists normalized tables with full-replace semantics.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/pipeline"
)

// Open returns the sink selected by cfg.SinkDriver.
func Open(ctx context.Context, cfg *config.Config) (pipeline.Sink, error) {
	switch cfg.SinkDriver {
	case "sqlite":
		if path := sqlitePath(cfg.SinkDSN); path != "" && path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return NewSQLSink(ctx, cfg.SinkDriver, cfg.SinkDSN)
	case "postgres", "mysql":
		return NewSQLSink(ctx, cfg.SinkDriver, cfg.SinkDSN)
	case "mongo":
		return NewMongoSink(ctx, cfg.SinkDSN, cfg.SinkDatabase, cfg.Timeout)
	case "files":
		format := cfg.CheckpointFormat
		if format == "" {
			format = pipeline.FormatCSV
		}
		return NewFileSink(cfg.SinkDSN, format)
	default:
		return nil, fmt.Errorf("unsupported sink driver %q", cfg.SinkDriver)
	}
}

// sqlitePath strips the file: scheme and query parameters from a sqlite DSN.
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}
