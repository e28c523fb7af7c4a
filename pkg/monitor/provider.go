package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProviderUnavailable wraps health-provider failures. Poll errors are
// contained in the background loop; they never terminate it.
var ErrProviderUnavailable = errors.New("monitor: health provider unavailable")

// LayerHealth is one cache layer's health snapshot as reported by the
// provider. Stats carries raw driver counters verbatim; the monitor
// passes them through as event metadata without interpreting them.
type LayerHealth struct {
	Connected bool              `json:"connected"`
	Stats     map[string]string `json:"stats,omitempty"`
}

// HealthSnapshot maps provider layer names to their health.
type HealthSnapshot map[string]LayerHealth

// HealthProvider is polled periodically for layer-level cache health.
type HealthProvider interface {
	GetHealthSnapshot(ctx context.Context) (HealthSnapshot, error)
}

// retryableStatusCodes are HTTP status codes that trigger a retry.
var retryableStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusServiceUnavailable:  true, // 503
}

// defaultBackoffs is the production retry schedule.
var defaultBackoffs = []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}

// HTTPProvider polls a remote cache's health endpoint over HTTP.
type HTTPProvider struct {
	addr     string
	client   *http.Client
	backoffs []time.Duration
}

// NewHTTPProvider creates a provider that GETs addr + /api/v1/cache/health.
func NewHTTPProvider(addr string) *HTTPProvider {
	return &HTTPProvider{
		addr: addr,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoffs: defaultBackoffs,
	}
}

// GetHealthSnapshot fetches the per-layer health snapshot, retrying on
// HTTP 429, 500, and 503 with the configured backoff schedule.
func (p *HTTPProvider) GetHealthSnapshot(ctx context.Context) (HealthSnapshot, error) {
	url := p.addr + "/api/v1/cache/health"

	var lastErr error
	for attempt := 0; attempt < len(p.backoffs); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
			case <-time.After(p.backoffs[attempt-1]):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", ErrProviderUnavailable, err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if retryableStatusCodes[resp.StatusCode] {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
		}

		var snap HealthSnapshot
		err = json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrProviderUnavailable, err)
		}
		return snap, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}
