package scraper

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/aluiziolira/go-books-etl/config"
)

// retryPolicy decides whether a failed index page fetch is retried before pagination ends.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics

	totalRetries int
}

func newRetryPolicy(cfg *config.Config, metrics *Metrics) *retryPolicy {
	maxRetries := 0
	if cfg.EndPolicy == config.EndPolicyRetry {
		maxRetries = cfg.MaxRetries
	}
	return &retryPolicy{
		maxRetries: maxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
		metrics:    metrics,
	}
}

// allow reports whether a retry may follow the given failed attempt (0-based).
// A 404 is the catalog's end marker and is never retried.
func (rp *retryPolicy) allow(err error, attempt int) bool {
	if rp.maxRetries == 0 || attempt >= rp.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || IsNotFound(err) {
		return false
	}
	return true
}

// wait sleeps for the backoff of the given retry attempt (1-based).
func (rp *retryPolicy) wait(ctx context.Context, attempt int) error {
	rp.totalRetries++
	rp.metrics.IncRetries()

	timer := time.NewTimer(rp.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (rp *retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if rp.max > 0 && delay >= rp.max {
			break
		}
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}
	if rp.max > 0 && delay > rp.max {
		delay = rp.max
	}
	return delay
}
