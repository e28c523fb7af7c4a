// Package monitor records cache operations into a bounded, concurrency-safe
// event buffer, samples a cache health provider in the background, and
// serves windowed statistics and efficiency recommendations derived from
// the buffered events.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cachepulse/cachepulse/pkg/event"
)

// Sink receives a fire-and-forget copy of every recorded operation and
// of every failed health poll, typically backed by Prometheus counters.
// Implementations must not block.
type Sink interface {
	ObserveOperation(op event.Operation, layer event.Layer, result event.Result, duration time.Duration, dataSize int64)
	ObservePollFailure()
}

// EventWriter persists recorded events for offline analysis. Write
// failures are logged and never affect the live buffer.
type EventWriter interface {
	Append(e event.Event) error
}

// Config configures the monitoring service. Zero values fall back to
// the defaults below.
type Config struct {
	MaxEvents     int           `yaml:"max_events"`     // buffer capacity; default 50000
	PollInterval  time.Duration `yaml:"poll_interval"`  // health poll cadence; default 60s
	ErrorBackoff  time.Duration `yaml:"error_backoff"`  // sleep after a failed poll; default 120s
	PollTimeout   time.Duration `yaml:"poll_timeout"`   // per-poll deadline; default 10s
	SlowThreshold time.Duration `yaml:"slow_threshold"` // warn above this latency; default 1s
	WarnThreshold time.Duration `yaml:"warn_threshold"` // info above this latency; default 500ms

	// AnalysisWindow is the trailing window stats queries fall back to
	// when the caller passes a non-positive window; default 1h.
	AnalysisWindow time.Duration `yaml:"analysis_window"`
}

func (c *Config) applyDefaults() {
	if c.MaxEvents <= 0 {
		c.MaxEvents = 50000
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 120 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = time.Second
	}
	if c.WarnThreshold <= 0 {
		c.WarnThreshold = 500 * time.Millisecond
	}
	if c.AnalysisWindow <= 0 {
		c.AnalysisWindow = DefaultAnalysisWindow
	}
}

// Service ingests cache operation events and runs the background health
// polling loop. All methods are safe for concurrent use.
type Service struct {
	cfg      Config
	buffer   *eventBuffer
	provider HealthProvider
	sink     Sink
	journal  EventWriter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a monitoring service. provider, sink, and journal
// may each be nil; the corresponding behavior is skipped.
func NewService(cfg Config, provider HealthProvider, sink Sink, journal EventWriter) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:      cfg,
		buffer:   newEventBuffer(cfg.MaxEvents),
		provider: provider,
		sink:     sink,
		journal:  journal,
	}
}

// RecordOperation validates, buffers, and threshold-checks one cache
// operation, returning its assigned operation ID. It is non-blocking
// and O(1) amortized; the only error condition is a malformed event,
// which is a programmer error at the call site and never enters the
// buffer.
func (s *Service) RecordOperation(op event.Operation, layer event.Layer, keyPattern string, start, end time.Time, result event.Result, dataSize int64, metadata map[string]string) (uuid.UUID, error) {
	e, err := event.New(op, layer, keyPattern, start, end, result, dataSize, metadata)
	if err != nil {
		slog.Error("rejecting malformed cache event",
			"operation", op,
			"layer", layer,
			"key_pattern", keyPattern,
			"error", err)
		return uuid.Nil, err
	}

	s.buffer.Append(e)
	s.checkThresholds(e)

	if s.sink != nil {
		s.sink.ObserveOperation(e.Operation, e.Layer, e.Result, e.Duration, e.DataSize)
	}
	if s.journal != nil {
		if err := s.journal.Append(e); err != nil {
			slog.Warn("event journal write failed", "operation_id", e.OperationID, "error", err)
		}
	}
	return e.OperationID, nil
}

// checkThresholds classifies a single event's latency and result against
// fixed cutoffs and emits the matching log severity. This runs at record
// time, independent of later aggregation.
func (s *Service) checkThresholds(e event.Event) {
	switch {
	case e.Duration > s.cfg.SlowThreshold:
		slog.Warn("slow cache operation",
			"operation_id", e.OperationID,
			"operation", e.Operation,
			"layer", e.Layer,
			"key_pattern", e.KeyPattern,
			"duration_ms", e.DurationMs())
	case e.Duration > s.cfg.WarnThreshold:
		slog.Info("borderline cache latency",
			"operation_id", e.OperationID,
			"operation", e.Operation,
			"layer", e.Layer,
			"key_pattern", e.KeyPattern,
			"duration_ms", e.DurationMs())
	}

	if e.Result == event.ResultError || e.Result == event.ResultTimeout {
		slog.Error("cache operation failed",
			"operation_id", e.OperationID,
			"operation", e.Operation,
			"layer", e.Layer,
			"key_pattern", e.KeyPattern,
			"result", e.Result,
			"metadata", e.Metadata)
	}
}

// StartBackgroundMonitoring starts the health polling loop. It is
// idempotent and a no-op when no provider is configured.
func (s *Service) StartBackgroundMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.provider == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.pollLoop(ctx)

	slog.Info("background cache monitoring started",
		"poll_interval", s.cfg.PollInterval,
		"error_backoff", s.cfg.ErrorBackoff)
}

// pollLoop sleeps for the poll interval, collects health metrics, and
// repeats. A failed poll stretches the next sleep to the error backoff;
// the loop only ever exits on cancellation.
func (s *Service) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		err := s.CollectHealthMetrics(pollCtx)
		cancel()

		next := s.cfg.PollInterval
		if err != nil {
			next = s.cfg.ErrorBackoff
		}
		timer.Reset(next)
	}
}

// CollectHealthMetrics polls the health provider once and records one
// synthetic HealthCheck event per reported layer. Provider failures are
// logged and returned; the background loop contains them and callers
// outside the loop may ignore them.
func (s *Service) CollectHealthMetrics(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}

	start := time.Now()
	snap, err := s.provider.GetHealthSnapshot(ctx)
	if err != nil {
		slog.Warn("cache health poll failed", "error", err)
		if s.sink != nil {
			s.sink.ObservePollFailure()
		}
		return err
	}
	end := time.Now()

	for name, lh := range snap {
		result := event.ResultSuccess
		if !lh.Connected {
			result = event.ResultError
		}
		if _, err := s.RecordOperation(event.OpHealthCheck, event.ParseLayer(name), "health:"+name, start, end, result, 0, lh.Stats); err != nil {
			slog.Warn("failed to record health check event", "layer", name, "error", err)
		}
	}
	return nil
}

// CleanupOldEvents removes every buffered event older than maxAgeHours
// and returns how many were removed. Fractional hours are accepted;
// zero removes everything that started before now.
func (s *Service) CleanupOldEvents(maxAgeHours float64) int {
	cutoff := time.Now().Add(-time.Duration(maxAgeHours * float64(time.Hour)))
	removed := s.buffer.RemoveOlderThan(cutoff)
	if removed > 0 {
		slog.Info("cleaned up old cache events", "removed", removed, "max_age_hours", maxAgeHours)
	}
	return removed
}

// GetEvents returns an ordered point-in-time copy of the buffer. The
// returned slice never aliases the live ring.
func (s *Service) GetEvents() []event.Event {
	return s.buffer.Snapshot()
}

// EventCount returns the current number of buffered events.
func (s *Service) EventCount() int {
	return s.buffer.Len()
}

// MaxEvents returns the configured buffer capacity.
func (s *Service) MaxEvents() int {
	return s.cfg.MaxEvents
}

// MonitoringEnabled reports whether the polling loop is running.
func (s *Service) MonitoringEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// OldestEventAge returns how long ago the oldest buffered event started,
// or zero when the buffer is empty.
func (s *Service) OldestEventAge() time.Duration {
	oldest, ok := s.buffer.Oldest()
	if !ok {
		return 0
	}
	return time.Since(oldest)
}

// Shutdown stops the polling loop and waits for in-flight polling work
// to drain. The sleeping loop observes cancellation immediately, so
// shutdown latency is bounded by the poll timeout, not the interval.
// Shutdown is idempotent and safe without a prior Start.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	slog.Info("background cache monitoring stopped")
}
