package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key as a Go duration ("500ms", "2s").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, true, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// ApplyEnv overrides cfg fields from BOOKSETL_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v, ok := EnvString("BOOKSETL_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok, err := EnvInt("BOOKSETL_MAX_PAGES"); err != nil {
		return err
	} else if ok {
		cfg.MaxPages = v
	}
	if v, ok, err := EnvDuration("BOOKSETL_PAGE_DELAY"); err != nil {
		return err
	} else if ok {
		cfg.PageDelay = v
	}
	if v, ok := EnvString("BOOKSETL_END_POLICY"); ok {
		cfg.EndPolicy = strings.ToLower(v)
	}
	if v, ok, err := EnvInt("BOOKSETL_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		cfg.MaxRetries = v
	}
	if v, ok := EnvString("BOOKSETL_CHECKPOINT_DIR"); ok {
		cfg.CheckpointDir = v
	}
	if v, ok := EnvString("BOOKSETL_CHECKPOINT_FORMAT"); ok {
		cfg.CheckpointFormat = strings.ToLower(v)
	}
	if v, ok := EnvString("BOOKSETL_SINK_DRIVER"); ok {
		cfg.SinkDriver = strings.ToLower(v)
	}
	if v, ok := EnvString("BOOKSETL_SINK_DSN"); ok {
		cfg.SinkDSN = v
	}
	if v, ok := EnvString("BOOKSETL_SINK_DATABASE"); ok {
		cfg.SinkDatabase = v
	}
	if v, ok := EnvString("BOOKSETL_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok, err := EnvBool("BOOKSETL_VERBOSE"); err != nil {
		return err
	} else if ok {
		cfg.Verbose = v
	}
	return nil
}
