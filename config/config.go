package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// End-of-catalog policies for failed index page fetches.
const (
	EndPolicyStop  = "stop"
	EndPolicyRetry = "retry"
)

// Config holds pipeline configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	PagePattern      string        `yaml:"page_pattern"`
	MaxPages         int           `yaml:"max_pages"`
	PageDelay        time.Duration `yaml:"page_delay"`
	RequestDelay     time.Duration `yaml:"request_delay"`
	RandomDelay      time.Duration `yaml:"random_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	EndPolicy        string        `yaml:"end_policy"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	DedupeMaxSize    int           `yaml:"dedupe_max_size"`
	UserAgent        string        `yaml:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
	CheckpointDir    string        `yaml:"checkpoint_dir"`
	CheckpointFormat string        `yaml:"checkpoint_format"` // csv, json, dual, or xlsx
	SinkDriver       string        `yaml:"sink_driver"`       // sqlite, postgres, mysql, mongo, or files
	SinkDSN          string        `yaml:"sink_dsn"`
	SinkDatabase     string        `yaml:"sink_database"`
	Verbose          bool          `yaml:"verbose"`
	MetricsAddr      string        `yaml:"metrics_addr"`
}

// DefaultConfig returns polite defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://books.toscrape.com",
		PagePattern:      "catalogue/page-%d.html",
		MaxPages:         0,
		PageDelay:        500 * time.Millisecond,
		RequestDelay:     0,
		RandomDelay:      0,
		Timeout:          10 * time.Second,
		EndPolicy:        EndPolicyStop,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		DedupeMaxSize:    10000,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		CheckpointDir:    "data",
		CheckpointFormat: "csv",
		SinkDriver:       "sqlite",
		SinkDSN:          "data/books_website.db",
		SinkDatabase:     "books_website",
		Verbose:          false,
		MetricsAddr:      "",
	}
}

// PageURL returns the absolute URL of catalog index page n.
func (c *Config) PageURL(n int) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(fmt.Sprintf(c.PagePattern, n), "/")
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if !strings.Contains(c.PagePattern, "%d") {
		return fmt.Errorf("page pattern must contain %%d")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.EndPolicy != EndPolicyStop && c.EndPolicy != EndPolicyRetry {
		return fmt.Errorf("end policy must be %s or %s", EndPolicyStop, EndPolicyRetry)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.CheckpointDir != "" {
		switch c.CheckpointFormat {
		case "csv", "json", "dual", "xlsx":
		default:
			return fmt.Errorf("checkpoint format must be csv, json, dual, or xlsx")
		}
	}
	switch c.SinkDriver {
	case "sqlite", "postgres", "mysql", "mongo", "files":
	default:
		return fmt.Errorf("sink driver must be sqlite, postgres, mysql, mongo, or files")
	}
	if c.SinkDSN == "" {
		return fmt.Errorf("sink dsn cannot be empty")
	}
	if c.SinkDriver == "mongo" && c.SinkDatabase == "" {
		return fmt.Errorf("sink database cannot be empty for mongo")
	}

	return nil
}
