// Package pipeline runs the extract, clean, normalize and load stages in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/go-books-etl/models"
)

// ErrEmptyResult is returned when a run has no records to load.
var ErrEmptyResult = errors.New("pipeline: empty result")

// Checkpoint stage directories and table names.
const (
	StageRaw        = "1_extract_raw_data"
	StageCleaned    = "2_transform_data"
	StageNormalized = "3_normalized_data"

	RawTableName     = "books_raw_data"
	CleanedTableName = "books_cleaned_data"
)

// Extractor produces the raw records of one crawl.
type Extractor interface {
	Run(ctx context.Context) ([]models.RawRecord, *models.CrawlResult, error)
}

// Sink durably replaces the stored tables with the given batches.
type Sink interface {
	Load(ctx context.Context, tables []models.Table) error
	Close() error
}

// Recorder receives per-run counters. *scraper.Metrics satisfies it.
type Recorder interface {
	AddDropped(reason string, n int)
	SetTableRows(table string, n int)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCheckpoints materializes every stage's output under dir in format.
func WithCheckpoints(dir, format string) Option {
	return func(p *Pipeline) {
		p.checkpointDir = dir
		p.checkpointFormat = format
	}
}

// WithRecorder forwards drop and row counts to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// Pipeline wires an extractor to a sink.
type Pipeline struct {
	extractor Extractor
	sink      Sink
	recorder  Recorder

	checkpointDir    string
	checkpointFormat string

	metrics metrics
}

// NewPipeline builds a pipeline. The sink is owned by the caller.
func NewPipeline(extractor Extractor, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:        extractor,
		sink:             sink,
		checkpointFormat: FormatCSV,
		metrics:          newMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full refresh. The report is returned even when a later stage fails.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{StartTime: time.Now(), TableRows: make(map[string]int)}
	defer func() { report.EndTime = time.Now() }()

	raw, crawl, err := p.extractor.Run(ctx)
	report.Crawl = crawl
	if err != nil {
		return report, fmt.Errorf("extract: %w", err)
	}
	p.metrics.add(stageExtracted, len(raw))
	if len(raw) == 0 {
		return report, fmt.Errorf("%w: no records extracted", ErrEmptyResult)
	}
	if err := p.checkpoint(StageRaw, models.RawTable(RawTableName, raw)); err != nil {
		return report, err
	}

	cleaned, cleanReport := Clean(raw)
	report.Clean = cleanReport
	p.metrics.add(stageCleaned, len(cleaned))
	for reason, n := range cleanReport.Dropped {
		p.metrics.addDropped(reason, n)
		if p.recorder != nil {
			p.recorder.AddDropped(reason, n)
		}
	}
	slog.Info("records cleaned",
		slog.Int("input", cleanReport.Input),
		slog.Int("output", cleanReport.Output),
		slog.Any("dropped", cleanReport.Dropped),
	)
	if len(cleaned) == 0 {
		return report, fmt.Errorf("%w: every record was dropped by cleaning", ErrEmptyResult)
	}
	if err := p.checkpoint(StageCleaned, models.CleanedTable(CleanedTableName, cleaned)); err != nil {
		return report, err
	}

	tables, err := Normalize(cleaned)
	if err != nil {
		return report, fmt.Errorf("normalize: %w", err)
	}
	batches := tables.Batches()
	for _, t := range batches {
		report.TableRows[t.Name] = len(t.Rows)
		if p.recorder != nil {
			p.recorder.SetTableRows(t.Name, len(t.Rows))
		}
	}
	if err := p.checkpoint(StageNormalized, batches...); err != nil {
		return report, err
	}

	if err := p.sink.Load(ctx, batches); err != nil {
		return report, fmt.Errorf("load: %w", err)
	}
	p.metrics.add(stageLoaded, len(tables.Books))
	slog.Info("tables loaded",
		slog.Int("books", len(tables.Books)),
		slog.Int("genres", len(tables.Genres)),
		slog.Int("in_stock", len(tables.Stock)),
	)
	return report, nil
}

// checkpoint writes tables under the stage directory when checkpoints are enabled.
func (p *Pipeline) checkpoint(stage string, tables ...models.Table) error {
	if p.checkpointDir == "" {
		return nil
	}

	dir := filepath.Join(p.checkpointDir, stage)
	writer, err := NewTableWriter(p.checkpointFormat, dir)
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", stage, err)
	}
	for _, t := range tables {
		if err := writer.WriteTable(t); err != nil {
			writer.Close()
			return fmt.Errorf("checkpoint %s: %w", stage, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("checkpoint %s: %w", stage, err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("checkpoint %s: %w", stage, err)
	}

	slog.Debug("checkpoint written", slog.String("dir", dir), slog.String("format", p.checkpointFormat))
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

const (
	stageExtracted = "extracted_records"
	stageCleaned   = "cleaned_records"
	stageLoaded    = "loaded_books"
)

type metrics struct {
	mu      *sync.Mutex
	records map[string]int
	dropped map[string]int
}

func newMetrics() metrics {
	return metrics{
		mu:      &sync.Mutex{},
		records: make(map[string]int),
		dropped: make(map[string]int),
	}
}

func (m *metrics) add(stage string, n int) {
	m.mu.Lock()
	m.records[stage] += n
	m.mu.Unlock()
}

func (m *metrics) addDropped(reason string, n int) {
	m.mu.Lock()
	m.dropped[reason] += n
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyDropped := make(map[string]int, len(m.dropped))
	for k, v := range m.dropped {
		copyDropped[k] = v
	}

	snapshot := map[string]interface{}{
		"dropped_records": copyDropped,
	}
	for _, stage := range []string{stageExtracted, stageCleaned, stageLoaded} {
		snapshot[stage] = m.records[stage]
	}
	return snapshot
}
