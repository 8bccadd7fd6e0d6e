// Package scraper crawls the paginated catalog and extracts one raw record per product.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/models"
	"github.com/aluiziolira/go-books-etl/parser"
)

// End reasons recorded on the crawl result.
const (
	EndNotFound = "not_found"
	EndFailure  = "fetch_failed"
	EndMaxPages = "max_pages"
)

// PageFetcher retrieves one page by URL.
type PageFetcher interface {
	Fetch(ctx context.Context, phase, rawURL string) ([]byte, error)
}

// Crawler walks catalog pages from 1 upward, one request at a time.
type Crawler struct {
	cfg     *config.Config
	fetcher PageFetcher
	limiter *rate.Limiter
	seen    *lru.Cache[string, struct{}]
	retry   *retryPolicy
	Metrics *Metrics

	requestCount int
	errorCount   int
	skipped      int
	failedURLs   []string
	errorsByType map[string]int
}

// NewCrawler builds a crawler backed by a colly fetcher.
func NewCrawler(cfg *config.Config) (*Crawler, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	return NewCrawlerWithFetcher(cfg, fetcher, metrics)
}

// NewCrawlerWithFetcher builds a crawler around an existing fetcher.
func NewCrawlerWithFetcher(cfg *config.Config, fetcher PageFetcher, metrics *Metrics) (*Crawler, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}

	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}

	return &Crawler{
		cfg:          cfg,
		fetcher:      fetcher,
		limiter:      rate.NewLimiter(limit, 1),
		seen:         seen,
		retry:        newRetryPolicy(cfg, metrics),
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// Run crawls until the first index page that cannot be fetched.
// Product failures are logged and skipped. Only context cancellation is returned as an error.
func (c *Crawler) Run(ctx context.Context) ([]models.RawRecord, *models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.reset()

	result := &models.CrawlResult{StartTime: time.Now()}
	var records []models.RawRecord

	finish := func(reason string) *models.CrawlResult {
		result.EndTime = time.Now()
		result.EndReason = reason
		result.RecordCount = len(records)
		result.RequestCount = c.requestCount
		result.ErrorCount = c.errorCount
		result.RetryCount = c.retry.totalRetries
		result.SkippedProducts = c.skipped
		result.FailedURLs = append([]string(nil), c.failedURLs...)
		result.ErrorsByType = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			result.ErrorsByType[k] = v
		}
		return result
	}

	reason := EndMaxPages
	for page := 1; c.cfg.MaxPages == 0 || page <= c.cfg.MaxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return records, finish(""), err
		}

		pageURL := c.cfg.PageURL(page)
		body, err := c.fetchIndex(ctx, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return records, finish(""), ctxErr
			}
			reason = EndFailure
			if IsNotFound(err) {
				reason = EndNotFound
			}
			slog.Info("pagination ended",
				slog.Int("page", page),
				slog.String("reason", reason),
				slog.Any("error", err),
			)
			break
		}
		result.PageCount++
		c.Metrics.IncPages()

		links, err := parser.ExtractProductLinks(pageURL, bytes.NewReader(body))
		if err != nil {
			slog.Error("index page unreadable", slog.String("url", pageURL), slog.Any("error", err))
			continue
		}
		slog.Info("scraping page", slog.Int("page", page), slog.Int("products", len(links)))

		for _, link := range links {
			if err := ctx.Err(); err != nil {
				return records, finish(""), err
			}
			if c.seen.Contains(link) {
				slog.Debug("product already visited", slog.String("url", link))
				continue
			}
			c.seen.Add(link, struct{}{})

			record, err := c.scrapeProduct(ctx, link)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return records, finish(""), ctxErr
				}
				c.skipped++
				c.recordError(link, err)
				continue
			}
			records = append(records, *record)
			c.Metrics.IncRecords()
		}
	}

	return records, finish(reason), nil
}

// reset clears what a previous run left behind, so every run starts from page 1 with no history.
func (c *Crawler) reset() {
	c.seen.Purge()
	c.retry.totalRetries = 0
	c.requestCount = 0
	c.errorCount = 0
	c.skipped = 0
	c.failedURLs = nil
	c.errorsByType = make(map[string]int)
}

func (c *Crawler) fetchIndex(ctx context.Context, pageURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		c.requestCount++
		body, err := c.fetcher.Fetch(ctx, PhaseIndex, pageURL)
		if err == nil {
			return body, nil
		}
		if !c.retry.allow(err, attempt) {
			if !IsNotFound(err) {
				c.recordError(pageURL, err)
			}
			return nil, err
		}
		slog.Warn("index page failed, retrying",
			slog.String("url", pageURL),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
		if err := c.retry.wait(ctx, attempt+1); err != nil {
			return nil, err
		}
	}
}

func (c *Crawler) scrapeProduct(ctx context.Context, link string) (*models.RawRecord, error) {
	c.requestCount++
	body, err := c.fetcher.Fetch(ctx, PhaseDetail, link)
	if err != nil {
		return nil, err
	}
	record, err := parser.ExtractRecord(bytes.NewReader(body))
	if err != nil {
		return nil, &extractError{URL: link, Err: err}
	}
	record.URL = link
	return record, nil
}

func (c *Crawler) recordError(url string, err error) {
	category := errorTypeLabel(err)
	c.errorCount++
	c.errorsByType[category]++
	c.failedURLs = append(c.failedURLs, url)
	c.Metrics.IncError(category)
	slog.Error("request error",
		slog.String("url", url),
		slog.String("category", category),
		slog.Any("error", err),
	)
}
