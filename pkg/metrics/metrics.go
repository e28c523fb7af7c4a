package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cachepulse/cachepulse/pkg/event"
)

var (
	// Cache operation metrics
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachepulse_operations_total",
		Help: "Cache operations by type, layer, and result",
	}, []string{"operation", "layer", "result"})

	HitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepulse_hits_total",
		Help: "Total cache hits",
	})
	MissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepulse_misses_total",
		Help: "Total cache misses",
	})
	FailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachepulse_failures_total",
		Help: "Failed cache operations by layer",
	}, []string{"layer"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cachepulse_operation_duration_seconds",
		Help:    "Cache operation latency",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"operation", "layer"})

	BytesObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachepulse_data_bytes_total",
		Help: "Total payload bytes observed per layer",
	}, []string{"layer"})

	// Monitor self metrics
	EventsBuffered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachepulse_events_buffered",
		Help: "Events currently held in the monitor buffer",
	})
	BufferUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachepulse_buffer_utilization_ratio",
		Help: "Buffer fill ratio (0-1)",
	})
	HealthPollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachepulse_health_poll_failures_total",
		Help: "Failed cache health provider polls",
	})
)

func init() {
	// Pre-initialize Vec metrics so they appear in /metrics output before first use.
	OperationsTotal.WithLabelValues("get", string(event.LayerRemoteShared), "hit")
	OperationLatency.WithLabelValues("get", string(event.LayerRemoteShared))
	FailuresTotal.WithLabelValues(string(event.LayerRemoteShared))
	BytesObserved.WithLabelValues(string(event.LayerRemoteShared))
}

// Sink forwards recorded cache operations to the Prometheus collectors.
// It satisfies the monitor's Sink interface and never blocks.
type Sink struct{}

// NewSink creates a Prometheus-backed metrics sink.
func NewSink() *Sink {
	return &Sink{}
}

// ObserveOperation records one cache operation in the Prometheus collectors.
func (s *Sink) ObserveOperation(op event.Operation, layer event.Layer, result event.Result, duration time.Duration, dataSize int64) {
	OperationsTotal.WithLabelValues(string(op), string(layer), string(result)).Inc()
	OperationLatency.WithLabelValues(string(op), string(layer)).Observe(duration.Seconds())
	if dataSize > 0 {
		BytesObserved.WithLabelValues(string(layer)).Add(float64(dataSize))
	}

	switch {
	case result == event.ResultHit:
		HitsTotal.Inc()
	case result == event.ResultMiss:
		MissesTotal.Inc()
	case result.IsFailure():
		FailuresTotal.WithLabelValues(string(layer)).Inc()
	}
}

// ObservePollFailure counts one failed health provider poll.
func (s *Sink) ObservePollFailure() {
	HealthPollFailures.Inc()
}

// SetBufferGauges updates the monitor self metrics from a buffer reading.
func SetBufferGauges(buffered, capacity int) {
	EventsBuffered.Set(float64(buffered))
	if capacity > 0 {
		BufferUtilization.Set(float64(buffered) / float64(capacity))
	}
}

// HealthCheck holds a single health check function.
type HealthCheck struct {
	Name  string
	Check func() error
}

// HealthStatus represents the health response.
type HealthStatus struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks"`
}

// healthChecker holds registered health checks.
type healthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

var defaultHealthChecker = &healthChecker{}

// RegisterHealthCheck adds a health check.
func RegisterHealthCheck(name string, check func() error) {
	defaultHealthChecker.mu.Lock()
	defer defaultHealthChecker.mu.Unlock()
	defaultHealthChecker.checks = append(defaultHealthChecker.checks, HealthCheck{
		Name:  name,
		Check: check,
	})
}

// runChecks runs all registered health checks.
func runChecks() HealthStatus {
	defaultHealthChecker.mu.RLock()
	checks := make([]HealthCheck, len(defaultHealthChecker.checks))
	copy(checks, defaultHealthChecker.checks)
	defaultHealthChecker.mu.RUnlock()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]string),
	}

	for _, hc := range checks {
		if err := hc.Check(); err != nil {
			status.Status = "degraded"
			status.Checks[hc.Name] = err.Error()
		} else {
			status.Checks[hc.Name] = "ok"
		}
	}
	return status
}

// HealthzHandler handles GET /healthz requests.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	status := runChecks()
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// MetricsServer starts an HTTP server for /metrics and /healthz on the given addr.
// It blocks until the provided stop channel is closed, then shuts down gracefully.
func MetricsServer(addr string, stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", HealthzHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
