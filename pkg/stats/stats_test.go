package stats

import (
	"math"
	"testing"
	"time"

	"github.com/cachepulse/cachepulse/pkg/event"
)

func mkEvent(t *testing.T, op event.Operation, layer event.Layer, pattern string, start time.Time, dur time.Duration, result event.Result, size int64) event.Event {
	t.Helper()
	e, err := event.New(op, layer, pattern, start, start.Add(dur), result, size, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestLayerStatsHitRate(t *testing.T) {
	now := time.Now()
	events := []event.Event{
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "user:{id}", now, 5*time.Millisecond, event.ResultHit, 100),
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "user:{id}", now, 5*time.Millisecond, event.ResultHit, 100),
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "user:{id}", now, 5*time.Millisecond, event.ResultMiss, 0),
	}

	s := layerAt(events, event.LayerRemoteShared, now, 0)
	if s.TotalOperations != 3 {
		t.Fatalf("expected 3 operations, got %d", s.TotalOperations)
	}
	if math.Abs(s.HitRate-66.67) > 0.01 {
		t.Errorf("expected hit rate 66.67, got %.4f", s.HitRate)
	}
	if s.AvgResponseTimeMs != 5.0 {
		t.Errorf("expected avg response 5ms, got %f", s.AvgResponseTimeMs)
	}
	if s.TotalDataSizeBytes != 200 {
		t.Errorf("expected 200 bytes, got %d", s.TotalDataSizeBytes)
	}
}

func TestLayerStatsEmptySnapshot(t *testing.T) {
	s := Layer(nil, event.LayerRemoteShared, 0)
	if s.HitRate != 0 || s.ErrorRate != 0 || s.AvgResponseTimeMs != 0 {
		t.Errorf("expected zeroed ratios on empty snapshot, got %+v", s)
	}
	if s.TotalOperations != 0 {
		t.Errorf("expected 0 operations, got %d", s.TotalOperations)
	}
}

func TestLayerStatsConservation(t *testing.T) {
	now := time.Now()
	events := []event.Event{
		mkEvent(t, event.OpGet, event.LayerLocalInProcess, "a", now, time.Millisecond, event.ResultHit, 0),
		mkEvent(t, event.OpGet, event.LayerLocalInProcess, "a", now, time.Millisecond, event.ResultMiss, 0),
		mkEvent(t, event.OpGet, event.LayerLocalInProcess, "a", now, time.Millisecond, event.ResultError, 0),
		mkEvent(t, event.OpSet, event.LayerLocalInProcess, "a", now, time.Millisecond, event.ResultSuccess, 0),
		mkEvent(t, event.OpDelete, event.LayerLocalInProcess, "a", now, time.Millisecond, event.ResultTimeout, 0),
	}

	s := layerAt(events, event.LayerLocalInProcess, now, 0)
	counted := s.HitCount + s.MissCount + s.ErrorCount
	if counted > s.TotalOperations {
		t.Fatalf("conservation violated: %d counted > %d total", counted, s.TotalOperations)
	}

	// Only Get operations with hit/miss/error results: equality must hold.
	gets := events[:3]
	s = layerAt(gets, event.LayerLocalInProcess, now, 0)
	if s.HitCount+s.MissCount+s.ErrorCount != s.TotalOperations {
		t.Errorf("expected equality for pure get snapshot, got %+v", s)
	}
}

func TestLayerStatsWindowFilter(t *testing.T) {
	now := time.Now()
	events := []event.Event{
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", now.Add(-2*time.Hour), time.Millisecond, event.ResultHit, 0),
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", now.Add(-time.Minute), time.Millisecond, event.ResultMiss, 0),
	}

	s := layerAt(events, event.LayerRemoteShared, now, time.Hour)
	if s.TotalOperations != 1 {
		t.Fatalf("expected 1 windowed operation, got %d", s.TotalOperations)
	}
	if s.MissCount != 1 || s.HitCount != 0 {
		t.Errorf("window kept the wrong event: %+v", s)
	}
}

func TestLayerStatsExcludesHealthChecks(t *testing.T) {
	now := time.Now()
	events := []event.Event{
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", now, time.Millisecond, event.ResultHit, 0),
		mkEvent(t, event.OpHealthCheck, event.LayerRemoteShared, "health:remote", now, time.Millisecond, event.ResultSuccess, 0),
		mkEvent(t, event.OpHealthCheck, event.LayerRemoteShared, "health:remote", now, time.Millisecond, event.ResultError, 0),
	}

	s := layerAt(events, event.LayerRemoteShared, now, 0)
	if s.TotalOperations != 1 {
		t.Errorf("health checks must not count toward layer stats, got %d operations", s.TotalOperations)
	}
	if s.ErrorCount != 0 {
		t.Errorf("health check errors must not count, got %d", s.ErrorCount)
	}
}

func TestKeyPatterns(t *testing.T) {
	now := time.Now()
	events := []event.Event{
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "user:{id}", now, 10*time.Millisecond, event.ResultHit, 100),
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "user:{id}", now, 20*time.Millisecond, event.ResultMiss, 0),
		mkEvent(t, event.OpGet, event.LayerLocalInProcess, "session:{token}", now, 2*time.Millisecond, event.ResultError, 0),
	}

	patterns := keyPatternsAt(events, now, 0)
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}

	user := patterns["user:{id}"]
	if user.Count != 2 {
		t.Errorf("expected count 2, got %d", user.Count)
	}
	if user.HitRate != 50.0 {
		t.Errorf("expected hit rate 50, got %f", user.HitRate)
	}
	if user.AvgResponseTimeMs != 15.0 {
		t.Errorf("expected avg 15ms, got %f", user.AvgResponseTimeMs)
	}
	if user.TotalBytes != 100 {
		t.Errorf("expected 100 bytes, got %d", user.TotalBytes)
	}

	session := patterns["session:{token}"]
	if session.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", session.ErrorCount)
	}
}

func TestPerformanceTrendsInsufficientData(t *testing.T) {
	now := time.Now()
	events := []event.Event{
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", now, time.Millisecond, event.ResultHit, 0),
	}

	tr := performanceTrendsAt(events, now, 24)
	if tr.ResponseTimeTrend != TrendInsufficientData {
		t.Errorf("expected insufficient_data for single bucket, got %s", tr.ResponseTimeTrend)
	}
	if tr.HitRateTrend != TrendInsufficientData {
		t.Errorf("expected insufficient_data for single bucket, got %s", tr.HitRateTrend)
	}
}

func TestPerformanceTrendsDirections(t *testing.T) {
	base := time.Now().Truncate(time.Hour)
	now := base.Add(4 * time.Hour)

	var events []event.Event
	// First two hours: 100ms misses. Last two hours: 10ms hits.
	for i := 0; i < 2; i++ {
		start := base.Add(time.Duration(i) * time.Hour).Add(time.Minute)
		events = append(events, mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", start, 100*time.Millisecond, event.ResultMiss, 0))
	}
	for i := 2; i < 4; i++ {
		start := base.Add(time.Duration(i) * time.Hour).Add(time.Minute)
		events = append(events, mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", start, 10*time.Millisecond, event.ResultHit, 0))
	}

	tr := performanceTrendsAt(events, now, 24)
	if len(tr.Points) != 4 {
		t.Fatalf("expected 4 hour buckets, got %d", len(tr.Points))
	}
	if tr.ResponseTimeTrend != TrendImproving {
		t.Errorf("expected improving response trend, got %s", tr.ResponseTimeTrend)
	}
	if tr.HitRateTrend != TrendImproving {
		t.Errorf("expected improving hit rate trend, got %s", tr.HitRateTrend)
	}
}

func TestPerformanceTrendsStable(t *testing.T) {
	base := time.Now().Truncate(time.Hour)
	now := base.Add(2 * time.Hour)

	events := []event.Event{
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", base.Add(time.Minute), 50*time.Millisecond, event.ResultHit, 0),
		mkEvent(t, event.OpGet, event.LayerRemoteShared, "a", base.Add(time.Hour+time.Minute), 51*time.Millisecond, event.ResultHit, 0),
	}

	tr := performanceTrendsAt(events, now, 24)
	if tr.ResponseTimeTrend != TrendStable {
		t.Errorf("expected stable response trend for 2%% change, got %s", tr.ResponseTimeTrend)
	}
	if tr.HitRateTrend != TrendStable {
		t.Errorf("expected stable hit rate trend, got %s", tr.HitRateTrend)
	}
}

func TestUtilizationGuardsZeroDenominators(t *testing.T) {
	u := Utilization(0, 0, 0, 0, 0, 0, 0)
	if u.SizePercent != 0 || u.ItemPercent != 0 {
		t.Errorf("expected zeroed percentages, got %+v", u)
	}

	u = Utilization(512, 1024, 30, 100, 5, 2, 1.1)
	if u.SizePercent != 50.0 {
		t.Errorf("expected 50%% size utilization, got %f", u.SizePercent)
	}
	if u.ItemPercent != 30.0 {
		t.Errorf("expected 30%% item utilization, got %f", u.ItemPercent)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		first, second  float64
		higherIsBetter bool
		want           string
	}{
		{"big drop lower-better", 100, 50, false, TrendImproving},
		{"big rise lower-better", 50, 100, false, TrendDeclining},
		{"big rise higher-better", 50, 100, true, TrendImproving},
		{"big drop higher-better", 100, 50, true, TrendDeclining},
		{"small change", 100, 103, true, TrendStable},
		{"both zero", 0, 0, true, TrendStable},
		{"from zero higher-better", 0, 10, true, TrendImproving},
		{"from zero lower-better", 0, 10, false, TrendDeclining},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.first, tt.second, tt.higherIsBetter); got != tt.want {
				t.Errorf("classify(%v, %v, %v) = %s, want %s", tt.first, tt.second, tt.higherIsBetter, got, tt.want)
			}
		})
	}
}
