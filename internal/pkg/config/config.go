// Package config loads and validates the crawler configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingSeedURL     = errors.New("crawler.seed_url is required")
	ErrInvalidPageCount   = errors.New("crawler.page_count must be non-negative")
	ErrMissingSelector    = errors.New("crawler.link_selector is required")
	ErrInvalidMaxAttempts = errors.New("fetch.max_attempts must be at least 1")
	ErrInvalidWorkers     = errors.New("fetch.workers must be at least 1")
	ErrInvalidRate        = errors.New("fetch.requests_per_sec must be positive")
	ErrMissingDatabase    = errors.New("output.database_path is required")
	ErrMissingWorkbook    = errors.New("output.workbook_path is required")
	ErrMissingHTMLDir     = errors.New("output.html_dir is required")
	ErrInvalidLogLevel    = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Config is the full configuration for one crawl session.
type Config struct {
	Crawler CrawlerConfig `yaml:"crawler"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// CrawlerConfig describes the site being crawled.
type CrawlerConfig struct {
	// SeedURL is the first listing page; paginated siblings are derived
	// from it as index_1.html .. index_<page_count>.html.
	SeedURL       string `yaml:"seed_url"`
	PageCount     int    `yaml:"page_count"`
	LinkSelector  string `yaml:"link_selector"`
	AllowedDomain string `yaml:"allowed_domain"`
}

// FetchConfig tunes the HTTP fetcher.
type FetchConfig struct {
	TimeoutSec     int     `yaml:"timeout_sec"`
	MaxAttempts    int     `yaml:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Workers        int     `yaml:"workers"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	BodyLimitKb    int     `yaml:"body_limit_kb"`
	RespectRobots  bool    `yaml:"respect_robots"`
}

// Timeout returns the per-request timeout as a duration.
func (f *FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSec) * time.Second
}

// RetryDelay returns the backoff delay before the given retry attempt,
// doubling from the initial delay and capped at the maximum.
func (f *FetchConfig) RetryDelay(attempt int) time.Duration {
	delay := time.Duration(f.InitialDelayMs) * time.Millisecond
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if max := time.Duration(f.MaxDelayMs) * time.Millisecond; delay > max {
		delay = max
	}
	return delay
}

// OutputConfig names the session's persistent artifacts.
type OutputConfig struct {
	DatabasePath string `yaml:"database_path"`
	WorkbookPath string `yaml:"workbook_path"`
	HTMLDir      string `yaml:"html_dir"`
	// FilterPath persists the visited-URL filter between runs. Empty
	// keeps the filter in memory only.
	FilterPath string `yaml:"filter_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Fetch.TimeoutSec == 0 {
		c.Fetch.TimeoutSec = 15
	}
	if c.Fetch.MaxAttempts == 0 {
		c.Fetch.MaxAttempts = 3
	}
	if c.Fetch.InitialDelayMs == 0 {
		c.Fetch.InitialDelayMs = 500
	}
	if c.Fetch.MaxDelayMs == 0 {
		c.Fetch.MaxDelayMs = 30000
	}
	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = 5
	}
	if c.Fetch.RequestsPerSec == 0 {
		c.Fetch.RequestsPerSec = 4
	}
	if c.Fetch.BodyLimitKb == 0 {
		c.Fetch.BodyLimitKb = 2048
	}
	if c.Output.DatabasePath == "" {
		c.Output.DatabasePath = "news.db"
	}
	if c.Output.WorkbookPath == "" {
		c.Output.WorkbookPath = "news.xlsx"
	}
	if c.Output.HTMLDir == "" {
		c.Output.HTMLDir = "html_files"
	}
	if c.Crawler.LinkSelector == "" {
		c.Crawler.LinkSelector = "a.font06"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Crawler.SeedURL == "" {
		return ErrMissingSeedURL
	}
	if c.Crawler.PageCount < 0 {
		return ErrInvalidPageCount
	}
	if c.Crawler.LinkSelector == "" {
		return ErrMissingSelector
	}
	if c.Fetch.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Fetch.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Fetch.RequestsPerSec <= 0 {
		return ErrInvalidRate
	}
	if c.Output.DatabasePath == "" {
		return ErrMissingDatabase
	}
	if c.Output.WorkbookPath == "" {
		return ErrMissingWorkbook
	}
	if c.Output.HTMLDir == "" {
		return ErrMissingHTMLDir
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}
