package monitor

import (
	"sync"
	"time"

	"github.com/cachepulse/cachepulse/pkg/event"
	"github.com/cachepulse/cachepulse/pkg/stats"
)

// DefaultAnalysisWindow is the default trailing window for stats
// queries when neither the caller nor the configuration sets one.
const DefaultAnalysisWindow = 3600 * time.Second

// Report is a comprehensive point-in-time statistics snapshot.
type Report struct {
	GeneratedAt     time.Time                        `json:"generated_at"`
	Window          time.Duration                    `json:"window"`
	Layers          map[event.Layer]stats.LayerStats `json:"layers"`
	OverallHitRate  float64                          `json:"overall_hit_rate"`
	TotalOperations int64                            `json:"total_operations"`
	KeyPatterns     map[string]stats.KeyPatternStats `json:"key_patterns"`
}

// Health is a liveness snapshot of the monitor itself. It never fails.
type Health struct {
	Status                string  `json:"status"`
	TotalEvents           int     `json:"total_events"`
	MaxEvents             int     `json:"max_events"`
	MonitoringEnabled     bool    `json:"monitoring_enabled"`
	OldestEventAgeSeconds float64 `json:"oldest_event_age_seconds"`
}

// Monitor is the single entry point composing event recording, stats
// computation, recommendations, and lifecycle management.
type Monitor struct {
	*Service
}

// New creates a monitor. provider, sink, and journal may be nil.
func New(cfg Config, provider HealthProvider, sink Sink, journal EventWriter) *Monitor {
	return &Monitor{Service: NewService(cfg, provider, sink, journal)}
}

// GetComprehensiveStats computes per-layer statistics over the trailing
// window, an overall hit rate across layers, and the key-pattern
// breakdown. Each event is counted once, under the layer it carries.
// window <= 0 uses the configured analysis window.
func (m *Monitor) GetComprehensiveStats(window time.Duration) Report {
	if window <= 0 {
		window = m.cfg.AnalysisWindow
	}
	events := m.GetEvents()

	report := Report{
		GeneratedAt: time.Now(),
		Window:      window,
		Layers:      make(map[event.Layer]stats.LayerStats, len(event.Layers)),
		KeyPatterns: stats.KeyPatterns(events, window),
	}

	var hits, gets, total int64
	for _, layer := range event.Layers {
		ls := stats.Layer(events, layer, window)
		report.Layers[layer] = ls
		hits += ls.HitCount
		gets += ls.HitCount + ls.MissCount
		total += ls.TotalOperations
	}
	report.TotalOperations = total
	if gets > 0 {
		report.OverallHitRate = float64(hits) / float64(gets) * 100
	}
	return report
}

// GetPerformanceTrends buckets the last `hours` hours of events by hour
// and classifies the overall direction of latency and hit rate.
func (m *Monitor) GetPerformanceTrends(hours int) stats.Trends {
	return stats.PerformanceTrends(m.GetEvents(), hours)
}

// GetMonitorHealth returns a diagnostic snapshot of the monitor itself.
func (m *Monitor) GetMonitorHealth() Health {
	status := "idle"
	if m.MonitoringEnabled() {
		status = "ok"
	}
	return Health{
		Status:                status,
		TotalEvents:           m.EventCount(),
		MaxEvents:             m.MaxEvents(),
		MonitoringEnabled:     m.MonitoringEnabled(),
		OldestEventAgeSeconds: m.OldestEventAge().Seconds(),
	}
}

// Process-wide default instance, constructed once on first access.
var (
	defaultMu      sync.Mutex
	defaultMonitor *Monitor
)

// Default returns the process-wide monitor, creating it with default
// configuration on first access. Concurrent first callers observe the
// same instance.
func Default() *Monitor {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultMonitor == nil {
		defaultMonitor = New(Config{}, nil, nil, nil)
	}
	return defaultMonitor
}

// SetDefault installs a configured monitor as the process-wide default,
// replacing (and shutting down) any existing one.
func SetDefault(m *Monitor) {
	defaultMu.Lock()
	old := defaultMonitor
	defaultMonitor = m
	defaultMu.Unlock()
	if old != nil && old != m {
		old.Shutdown()
	}
}

// ShutdownDefault tears down the process-wide monitor. It is idempotent
// and safe to call without a prior Default.
func ShutdownDefault() {
	defaultMu.Lock()
	m := defaultMonitor
	defaultMonitor = nil
	defaultMu.Unlock()
	if m != nil {
		m.Shutdown()
	}
}
