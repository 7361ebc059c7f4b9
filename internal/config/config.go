// Package config defines service configuration and its defaults.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/finishline/internal/adapters/schedule"
	"github.com/okian/finishline/internal/domain/fusion"
	"github.com/okian/finishline/pkg/logger"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `koanf:"shutdown_timeout_seconds"`

	// StoreDriver selects the persistence backend: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	// SQLiteBusyTimeoutMS is how long a writer waits on a locked database.
	SQLiteBusyTimeoutMS int `koanf:"sqlite_busy_timeout_ms"`

	// Fusion thresholds, all on the 0-100 scale.
	AutoApproveThreshold float64 `koanf:"auto_approve_threshold"`
	ReviewThreshold      float64 `koanf:"review_threshold"`
	FaceMatchThreshold   float64 `koanf:"face_match_threshold"`

	// ClaimLeaseSeconds is how long a claim holds an item.
	ClaimLeaseSeconds int `koanf:"claim_lease_seconds"`
	// ClaimSweepSchedule releases lapsed claims; empty disables.
	ClaimSweepSchedule string `koanf:"claim_sweep_schedule"`
	// RetentionDays purges resolved items older than this; 0 keeps them.
	RetentionDays     int    `koanf:"retention_days"`
	RetentionSchedule string `koanf:"retention_schedule"`

	// WorkerCount sets the number of fusion workers.
	WorkerCount int `koanf:"worker_count"`
	// JobQueueSize bounds the in-memory fusion job queue.
	JobQueueSize int `koanf:"job_queue_size"`
	// DedupeSize sets how many job ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`
	// RetryAttempts and RetryBackoffMS control per-job retries.
	RetryAttempts  int `koanf:"retry_attempts"`
	RetryBackoffMS int `koanf:"retry_backoff_ms"`

	// DetectionURL is the detection service base URL. DetectionFixtures, when
	// set, replaces the service with canned YAML results.
	DetectionURL       string `koanf:"detection_url"`
	DetectionTimeoutMS int    `koanf:"detection_timeout_ms"`
	DetectionAPIKey    string `koanf:"detection_api_key"`
	DetectionFixtures  string `koanf:"detection_fixtures"`
	// FaceCollection is the default face gallery.
	FaceCollection string `koanf:"face_collection"`

	// Slack broadcasting is enabled when both are set.
	SlackToken   string `koanf:"slack_token"`
	SlackChannel string `koanf:"slack_channel"`
	// NotifyBuffer bounds undelivered broadcasts.
	NotifyBuffer int `koanf:"notify_buffer"`

	// StartListFile seeds the start list at startup.
	StartListFile string `koanf:"start_list_file"`

	// DefaultPageLimit and MaxPageLimit shape GET /queue paging.
	DefaultPageLimit int `koanf:"default_page_limit"`
	MaxPageLimit     int `koanf:"max_page_limit"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		ShutdownTimeoutSeconds: 30,
		StoreDriver:            StoreSQLite,
		SQLitePath:             "data/finishline.db",
		SQLiteBusyTimeoutMS:    5000,
		AutoApproveThreshold:   fusion.DefaultAutoApprove,
		ReviewThreshold:        fusion.DefaultReview,
		FaceMatchThreshold:     fusion.DefaultFaceMatch,
		ClaimLeaseSeconds:      300,
		ClaimSweepSchedule:     "@every 1m",
		RetentionDays:          0,
		RetentionSchedule:      "0 3 * * *",
		WorkerCount:            runtime.NumCPU() * 2,
		JobQueueSize:           10_000,
		DedupeSize:             100_000,
		RetryAttempts:          3,
		RetryBackoffMS:         200,
		DetectionURL:           "http://127.0.0.1:8090",
		DetectionTimeoutMS:     10_000,
		FaceCollection:         "athletes",
		NotifyBuffer:           256,
		DefaultPageLimit:       20,
		MaxPageLimit:           100,
	}
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("unknown log_level %q", c.LogLevel)
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		add("%v", err)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			add("sqlite_path must be set for the sqlite driver")
		}
	default:
		add("%v %q", ErrUnknownStoreDriver, c.StoreDriver)
	}
	if err := c.Thresholds().Validate(); err != nil {
		add("%v", err)
	}
	if c.ClaimLeaseSeconds < 1 {
		add("claim_lease_seconds must be positive")
	}
	if err := schedule.ValidateSchedule(c.ClaimSweepSchedule); err != nil {
		add("claim_sweep_schedule: %v", err)
	}
	if err := schedule.ValidateSchedule(c.RetentionSchedule); err != nil {
		add("retention_schedule: %v", err)
	}
	if c.RetentionDays < 0 {
		add("retention_days must not be negative")
	}
	if c.JobQueueSize < 1 {
		add("job_queue_size must be positive")
	}
	if c.DetectionURL == "" && c.DetectionFixtures == "" {
		add("one of detection_url or detection_fixtures is required")
	}
	if (c.SlackToken == "") != (c.SlackChannel == "") {
		add("slack_token and slack_channel must be set together")
	}
	if c.DefaultPageLimit < 1 || c.MaxPageLimit < c.DefaultPageLimit {
		add("page limits must satisfy 1 <= default_page_limit <= max_page_limit")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Thresholds returns the fusion thresholds.
func (c *Config) Thresholds() fusion.Thresholds {
	return fusion.Thresholds{
		AutoApprove: c.AutoApproveThreshold,
		Review:      c.ReviewThreshold,
		FaceMatch:   c.FaceMatchThreshold,
	}
}

// ClaimLease returns the claim lease as a duration.
func (c *Config) ClaimLease() time.Duration {
	return time.Duration(c.ClaimLeaseSeconds) * time.Second
}

// Maintenance returns the sweeper configuration.
func (c *Config) Maintenance() schedule.Config {
	return schedule.Config{
		ClaimSweep: c.ClaimSweepSchedule,
		Retention:  c.RetentionSchedule,
		RetainFor:  time.Duration(c.RetentionDays) * 24 * time.Hour,
	}
}

// DetectionTimeout returns the per-call detection timeout.
func (c *Config) DetectionTimeout() time.Duration {
	return time.Duration(c.DetectionTimeoutMS) * time.Millisecond
}

// RetryBackoff returns the first retry delay.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// SQLiteBusyTimeout returns the SQLite busy timeout.
func (c *Config) SQLiteBusyTimeout() time.Duration {
	return time.Duration(c.SQLiteBusyTimeoutMS) * time.Millisecond
}
