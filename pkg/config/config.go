package config

import (
	"fmt"
	"time"
)

// Config is the top-level cachepulse configuration.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Provider ProviderConfig `yaml:"provider"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Journal  JournalConfig  `yaml:"journal"`
}

// MonitorConfig configures the event buffer, polling loop, and
// alerting thresholds.
type MonitorConfig struct {
	MaxEvents      int           `yaml:"max_events"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ErrorBackoff   time.Duration `yaml:"error_backoff"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	SlowThreshold  time.Duration `yaml:"slow_threshold"`
	WarnThreshold  time.Duration `yaml:"warn_threshold"`
	AnalysisWindow time.Duration `yaml:"analysis_window"`
}

// ProviderConfig points at the cache health endpoint to poll.
// An empty addr disables background polling.
type ProviderConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig configures the Prometheus metrics and health endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // pointer to distinguish unset from false; default true
	Addr    string `yaml:"addr"`    // listen address; default ":9090"
}

// MetricsEnabled returns whether the metrics server should run.
func (m MetricsConfig) MetricsEnabled() bool {
	if m.Enabled == nil {
		return true // default: enabled
	}
	return *m.Enabled
}

// JournalConfig configures the optional persistent event journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

func (c *Config) applyDefaults() {
	if c.Monitor.MaxEvents == 0 {
		c.Monitor.MaxEvents = 50000
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = 60 * time.Second
	}
	if c.Monitor.ErrorBackoff == 0 {
		c.Monitor.ErrorBackoff = 120 * time.Second
	}
	if c.Monitor.PollTimeout == 0 {
		c.Monitor.PollTimeout = 10 * time.Second
	}
	if c.Monitor.SlowThreshold == 0 {
		c.Monitor.SlowThreshold = time.Second
	}
	if c.Monitor.WarnThreshold == 0 {
		c.Monitor.WarnThreshold = 500 * time.Millisecond
	}
	if c.Monitor.AnalysisWindow == 0 {
		c.Monitor.AnalysisWindow = 3600 * time.Second
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "/var/lib/cachepulse/journal"
	}
	if c.Journal.Retention == 0 {
		c.Journal.Retention = 24 * time.Hour
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks the configuration for logical errors. It expects
// defaults to have been applied, so zero values are rejected too.
func (c *Config) Validate() error {
	if c.Monitor.MaxEvents <= 0 {
		return fmt.Errorf("config: monitor.max_events must be positive, got %d", c.Monitor.MaxEvents)
	}
	if c.Monitor.PollInterval <= 0 || c.Monitor.ErrorBackoff <= 0 {
		return fmt.Errorf("config: poll intervals must be positive")
	}
	if c.Monitor.WarnThreshold >= c.Monitor.SlowThreshold {
		return fmt.Errorf("config: monitor.warn_threshold (%v) must be below monitor.slow_threshold (%v)",
			c.Monitor.WarnThreshold, c.Monitor.SlowThreshold)
	}
	if c.Journal.Enabled && c.Journal.Retention <= 0 {
		return fmt.Errorf("config: journal.retention must be positive when the journal is enabled")
	}
	return nil
}
