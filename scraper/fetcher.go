package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-books-etl/config"
)

// Request phases, used as metric labels.
const (
	PhaseIndex  = "index"
	PhaseDetail = "detail"
)

const (
	ctxPhase  = "phase"
	ctxStart  = "start"
	ctxBody   = "body"
	ctxStatus = "status"
)

// Fetcher issues one GET at a time through a synchronous colly collector.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	// Pages are fetched again on retry, and de-duplication of product links happens in the crawler.
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.RequestDelay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{collector: collector, metrics: metrics}
	f.configureHandlers()
	return f, nil
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		f.metrics.IncRequest(r.Ctx.Get(ctxPhase))
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Request.Ctx.Put(ctxBody, r.Body)
		r.Request.Ctx.Put(ctxStatus, r.StatusCode)
		f.observe(r.Request)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Request == nil {
			return
		}
		r.Request.Ctx.Put(ctxStatus, r.StatusCode)
		f.observe(r.Request)
	})
}

func (f *Fetcher) observe(r *colly.Request) {
	if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
		f.metrics.ObserveDuration(time.Since(start))
	}
}

// Fetch returns the body of a 2xx response, or a classified error.
func (f *Fetcher) Fetch(ctx context.Context, phase, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := colly.NewContext()
	reqCtx.Put(ctxPhase, phase)
	err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil)
	status, _ := reqCtx.GetAny(ctxStatus).(int)
	if err != nil {
		return nil, classifyError(err, status)
	}

	body, ok := reqCtx.GetAny(ctxBody).([]byte)
	if !ok {
		return nil, fmt.Errorf("no response body for %s", rawURL)
	}
	return body, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode < 200 || statusCode >= 300 {
			return ErrStatus{Code: statusCode, Err: wrapped}
		}
	}

	return err
}
