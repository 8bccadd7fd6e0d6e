package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/models"
	"github.com/aluiziolira/go-books-etl/pipeline"
	"github.com/aluiziolira/go-books-etl/scraper"
	"github.com/aluiziolira/go-books-etl/sink"
)

type cliFlags struct {
	configFile       string
	baseURL          string
	maxPages         int
	pageDelay        time.Duration
	requestDelay     time.Duration
	randomDelay      time.Duration
	timeout          time.Duration
	endPolicy        string
	maxRetries       int
	retryBackoff     time.Duration
	retryBackoffMax  time.Duration
	respectRobots    bool
	checkpointDir    string
	checkpointFormat string
	sinkDriver       string
	sinkDSN          string
	sinkDatabase     string
	verbose          bool
	metricsAddr      string
}

func registerFlags(fs *flag.FlagSet, defaults *config.Config) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configFile, "config", os.Getenv("BOOKSETL_CONFIG"), "YAML config file applied before environment and flags")
	fs.StringVar(&f.baseURL, "base-url", defaults.BaseURL, "Catalog root URL")
	fs.IntVar(&f.maxPages, "pages", defaults.MaxPages, "Maximum catalog pages to crawl (0 = until the catalog ends)")
	fs.DurationVar(&f.pageDelay, "page-delay", defaults.PageDelay, "Pause between catalog index pages")
	fs.DurationVar(&f.requestDelay, "delay", defaults.RequestDelay, "Delay between every request")
	fs.DurationVar(&f.randomDelay, "random-delay", defaults.RandomDelay, "Random jitter added to the request delay")
	fs.DurationVar(&f.timeout, "timeout", defaults.Timeout, "HTTP request timeout")
	fs.StringVar(&f.endPolicy, "end-policy", defaults.EndPolicy, "What a failed index page means: stop or retry")
	fs.IntVar(&f.maxRetries, "max-retries", defaults.MaxRetries, "Index page retries under the retry end policy")
	fs.DurationVar(&f.retryBackoff, "retry-backoff", defaults.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&f.retryBackoffMax, "retry-backoff-max", defaults.RetryBackoffMax, "Maximum retry backoff")
	fs.BoolVar(&f.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	fs.StringVar(&f.checkpointDir, "checkpoint-dir", defaults.CheckpointDir, "Directory for stage checkpoints (empty disables them)")
	fs.StringVar(&f.checkpointFormat, "format", defaults.CheckpointFormat, "Checkpoint format: csv, json, dual, or xlsx")
	fs.StringVar(&f.sinkDriver, "sink", defaults.SinkDriver, "Sink driver: sqlite, postgres, mysql, mongo, or files")
	fs.StringVar(&f.sinkDSN, "dsn", defaults.SinkDSN, "Sink connection string, or directory for the files sink")
	fs.StringVar(&f.sinkDatabase, "database", defaults.SinkDatabase, "Database name for the mongo sink")
	fs.BoolVar(&f.verbose, "v", defaults.Verbose, "Enable verbose logging")
	fs.StringVar(&f.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	return f
}

// buildConfig layers defaults, the YAML file, BOOKSETL_* variables, then explicitly set flags.
func buildConfig(fs *flag.FlagSet, f *cliFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configFile != "" {
		if err := config.LoadFile(f.configFile, cfg); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "base-url":
			cfg.BaseURL = f.baseURL
		case "pages":
			cfg.MaxPages = f.maxPages
		case "page-delay":
			cfg.PageDelay = f.pageDelay
		case "delay":
			cfg.RequestDelay = f.requestDelay
		case "random-delay":
			cfg.RandomDelay = f.randomDelay
		case "timeout":
			cfg.Timeout = f.timeout
		case "end-policy":
			cfg.EndPolicy = strings.ToLower(f.endPolicy)
		case "max-retries":
			cfg.MaxRetries = f.maxRetries
		case "retry-backoff":
			cfg.RetryBackoff = f.retryBackoff
		case "retry-backoff-max":
			cfg.RetryBackoffMax = f.retryBackoffMax
		case "respect-robots":
			cfg.RespectRobotsTxt = f.respectRobots
		case "checkpoint-dir":
			cfg.CheckpointDir = f.checkpointDir
		case "format":
			cfg.CheckpointFormat = strings.ToLower(f.checkpointFormat)
		case "sink":
			cfg.SinkDriver = strings.ToLower(f.sinkDriver)
		case "dsn":
			cfg.SinkDSN = f.sinkDSN
		case "database":
			cfg.SinkDatabase = f.sinkDatabase
		case "v":
			cfg.Verbose = f.verbose
		case "metrics-addr":
			cfg.MetricsAddr = f.metricsAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flags := registerFlags(flag.CommandLine, config.DefaultConfig())
	flag.Parse()

	cfg, err := buildConfig(flag.CommandLine, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	slog.Info("starting etl run",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("max_pages", cfg.MaxPages),
		slog.String("end_policy", cfg.EndPolicy),
		slog.String("sink", cfg.SinkDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current request")
	}()

	crawler, err := scraper.NewCrawler(cfg)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := sink.Open(ctx, cfg)
	if err != nil {
		slog.Error("opening sink", slog.String("driver", cfg.SinkDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("close sink", slog.Any("error", err))
		}
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, crawler.Metrics)

	opts := []pipeline.Option{pipeline.WithRecorder(crawler.Metrics)}
	if cfg.CheckpointDir != "" {
		opts = append(opts, pipeline.WithCheckpoints(cfg.CheckpointDir, cfg.CheckpointFormat))
	}
	p := pipeline.NewPipeline(crawler, store, opts...)

	report, runErr := p.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if report != nil {
		printSummary(report, cfg)
	}
	if runErr != nil {
		if errors.Is(runErr, pipeline.ErrEmptyResult) {
			slog.Error("nothing to load", slog.Any("error", runErr))
		} else {
			slog.Error("etl run failed", slog.Any("error", runErr))
		}
		// Deferred Close calls do not run after os.Exit.
		store.Close()
		os.Exit(1)
	}
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(report *models.RunReport, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("ETL run complete")

	if result := report.Crawl; result != nil {
		successRate := 0.0
		if result.RequestCount > 0 {
			successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
		}
		fmt.Printf("  Pages:         %d (ended: %s)\n", result.PageCount, result.EndReason)
		fmt.Printf("  Extracted:     %d\n", result.RecordCount)
		fmt.Printf("  Success rate:  %.2f%%\n", successRate)
		fmt.Printf("  Errors:        %d\n", result.ErrorCount)
		fmt.Printf("  Retries:       %d\n", result.RetryCount)
		fmt.Printf("  Skipped:       %d\n", result.SkippedProducts)
		if len(result.ErrorsByType) > 0 {
			fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
		}
	}
	fmt.Printf("  Cleaned:       %d of %d\n", report.Clean.Output, report.Clean.Input)
	if len(report.Clean.Dropped) > 0 {
		fmt.Printf("  Dropped:       %v\n", report.Clean.Dropped)
	}
	for _, table := range []string{models.TableGenres, models.TableStock, models.TableBooks} {
		if n, ok := report.TableRows[table]; ok {
			fmt.Printf("  %-14s %d rows\n", table+":", n)
		}
	}
	fmt.Printf("  Duration:      %v\n", report.EndTime.Sub(report.StartTime).Round(time.Millisecond))
	fmt.Printf("  Sink:          %s %s\n", cfg.SinkDriver, redactDSN(cfg.SinkDSN))
	fmt.Println(separator)
}

// redactDSN hides the password of URL-style and user:pass@ connection strings.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	creds := dsn[:at]
	prefix := ""
	if i := strings.Index(creds, "://"); i >= 0 {
		prefix, creds = creds[:i+3], creds[i+3:]
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return prefix + user + ":***" + dsn[at:]
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
