// Package stats computes derived cache statistics from immutable event
// snapshots. All functions are pure over their inputs: they never retain
// or mutate the snapshot, and they are total — an empty or unmatched
// snapshot yields zeroed results, never an error.
package stats

import (
	"sort"
	"time"

	"github.com/cachepulse/cachepulse/pkg/event"
)

// Trend direction classifications.
const (
	TrendImproving        = "improving"
	TrendDeclining        = "declining"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// LayerStats aggregates operations observed against a single cache layer.
// Ratios are computed at build time with division-by-zero guarded to 0.
type LayerStats struct {
	Layer               event.Layer `json:"layer"`
	TotalOperations     int64       `json:"total_operations"`
	HitCount            int64       `json:"hit_count"`
	MissCount           int64       `json:"miss_count"`
	ErrorCount          int64       `json:"error_count"`
	TotalResponseTimeMs float64     `json:"total_response_time_ms"`
	TotalDataSizeBytes  int64       `json:"total_data_size_bytes"`
	LastOperation       time.Time   `json:"last_operation"`
	HitRate             float64     `json:"hit_rate"`
	ErrorRate           float64     `json:"error_rate"`
	AvgResponseTimeMs   float64     `json:"average_response_time_ms"`
}

// KeyPatternStats aggregates operations sharing a normalized key pattern.
type KeyPatternStats struct {
	Count             int64   `json:"count"`
	HitRate           float64 `json:"hit_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	TotalBytes        int64   `json:"total_bytes"`
	ErrorCount        int64   `json:"error_count"`
}

// TrendPoint is one hour bucket of a performance trend series.
type TrendPoint struct {
	Hour              time.Time `json:"hour"`
	Operations        int64     `json:"operations"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	HitRate           float64   `json:"hit_rate"`
}

// Trends classifies overall performance direction over hour buckets.
type Trends struct {
	ResponseTimeTrend string       `json:"response_time_trend"`
	HitRateTrend      string       `json:"hit_rate_trend"`
	Points            []TrendPoint `json:"points"`
}

// UtilizationStats describes cache capacity utilization as reported by
// the health provider. Derived percentages are guarded against zero
// denominators.
type UtilizationStats struct {
	CurrentSizeBytes   int64   `json:"current_size_bytes"`
	MaxSizeBytes       int64   `json:"max_size_bytes"`
	ItemCount          int64   `json:"item_count"`
	MaxItems           int64   `json:"max_items"`
	Evictions          int64   `json:"evictions"`
	Expirations        int64   `json:"expirations"`
	FragmentationRatio float64 `json:"fragmentation_ratio"`
	SizePercent        float64 `json:"size_percent"`
	ItemPercent        float64 `json:"item_percent"`
}

// Utilization builds utilization stats with guarded derived percentages.
func Utilization(currentSize, maxSize, items, maxItems, evictions, expirations int64, fragmentation float64) UtilizationStats {
	u := UtilizationStats{
		CurrentSizeBytes:   currentSize,
		MaxSizeBytes:       maxSize,
		ItemCount:          items,
		MaxItems:           maxItems,
		Evictions:          evictions,
		Expirations:        expirations,
		FragmentationRatio: fragmentation,
	}
	if maxSize > 0 {
		u.SizePercent = float64(currentSize) / float64(maxSize) * 100
	}
	if maxItems > 0 {
		u.ItemPercent = float64(items) / float64(maxItems) * 100
	}
	return u
}

// inWindow reports whether an event started within the trailing window.
// A non-positive window disables the filter.
func inWindow(e event.Event, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	return !e.StartTime.Before(now.Add(-window))
}

// countable reports whether an event participates in operation-facing
// statistics. Synthetic health-check samples are tracked separately and
// must not skew hit rates or latency averages.
func countable(e event.Event) bool {
	return e.Operation != event.OpHealthCheck
}

// Layer computes aggregate statistics for one cache layer over the
// trailing window. window <= 0 means the whole snapshot.
func Layer(events []event.Event, layer event.Layer, window time.Duration) LayerStats {
	return layerAt(events, layer, time.Now(), window)
}

func layerAt(events []event.Event, layer event.Layer, now time.Time, window time.Duration) LayerStats {
	s := LayerStats{Layer: layer}
	for _, e := range events {
		if e.Layer != layer || !countable(e) || !inWindow(e, now, window) {
			continue
		}
		s.TotalOperations++
		s.TotalResponseTimeMs += e.DurationMs()
		s.TotalDataSizeBytes += e.DataSize
		if e.StartTime.After(s.LastOperation) {
			s.LastOperation = e.StartTime
		}
		switch {
		case e.Result == event.ResultHit:
			s.HitCount++
		case e.Result == event.ResultMiss:
			s.MissCount++
		case e.Result.IsFailure():
			s.ErrorCount++
		}
	}
	if gets := s.HitCount + s.MissCount; gets > 0 {
		s.HitRate = float64(s.HitCount) / float64(gets) * 100
	}
	if s.TotalOperations > 0 {
		s.ErrorRate = float64(s.ErrorCount) / float64(s.TotalOperations) * 100
		s.AvgResponseTimeMs = s.TotalResponseTimeMs / float64(s.TotalOperations)
	}
	return s
}

// KeyPatterns groups windowed events by normalized key pattern.
func KeyPatterns(events []event.Event, window time.Duration) map[string]KeyPatternStats {
	return keyPatternsAt(events, time.Now(), window)
}

type patternAcc struct {
	count      int64
	hits       int64
	misses     int64
	errors     int64
	totalMs    float64
	totalBytes int64
}

func keyPatternsAt(events []event.Event, now time.Time, window time.Duration) map[string]KeyPatternStats {
	accs := make(map[string]*patternAcc)
	for _, e := range events {
		if !countable(e) || !inWindow(e, now, window) {
			continue
		}
		acc := accs[e.KeyPattern]
		if acc == nil {
			acc = &patternAcc{}
			accs[e.KeyPattern] = acc
		}
		acc.count++
		acc.totalMs += e.DurationMs()
		acc.totalBytes += e.DataSize
		switch {
		case e.Result == event.ResultHit:
			acc.hits++
		case e.Result == event.ResultMiss:
			acc.misses++
		case e.Result.IsFailure():
			acc.errors++
		}
	}

	out := make(map[string]KeyPatternStats, len(accs))
	for pattern, acc := range accs {
		ps := KeyPatternStats{
			Count:      acc.count,
			TotalBytes: acc.totalBytes,
			ErrorCount: acc.errors,
		}
		if gets := acc.hits + acc.misses; gets > 0 {
			ps.HitRate = float64(acc.hits) / float64(gets) * 100
		}
		if acc.count > 0 {
			ps.AvgResponseTimeMs = acc.totalMs / float64(acc.count)
		}
		out[pattern] = ps
	}
	return out
}

// PerformanceTrends buckets the last `hours` hours of events by hour and
// classifies the overall direction of response time and hit rate by
// comparing first-half and second-half bucket means. A relative change
// over 5% in either direction is significant; fewer than two buckets
// yields insufficient_data.
func PerformanceTrends(events []event.Event, hours int) Trends {
	return performanceTrendsAt(events, time.Now(), hours)
}

func performanceTrendsAt(events []event.Event, now time.Time, hours int) Trends {
	window := time.Duration(hours) * time.Hour

	type bucketAcc struct {
		ops     int64
		hits    int64
		misses  int64
		totalMs float64
	}
	buckets := make(map[time.Time]*bucketAcc)
	for _, e := range events {
		if !countable(e) || !inWindow(e, now, window) {
			continue
		}
		hour := e.StartTime.Truncate(time.Hour)
		acc := buckets[hour]
		if acc == nil {
			acc = &bucketAcc{}
			buckets[hour] = acc
		}
		acc.ops++
		acc.totalMs += e.DurationMs()
		switch e.Result {
		case event.ResultHit:
			acc.hits++
		case event.ResultMiss:
			acc.misses++
		}
	}

	hoursSorted := make([]time.Time, 0, len(buckets))
	for h := range buckets {
		hoursSorted = append(hoursSorted, h)
	}
	sort.Slice(hoursSorted, func(i, j int) bool { return hoursSorted[i].Before(hoursSorted[j]) })

	points := make([]TrendPoint, 0, len(hoursSorted))
	for _, h := range hoursSorted {
		acc := buckets[h]
		p := TrendPoint{Hour: h, Operations: acc.ops}
		if acc.ops > 0 {
			p.AvgResponseTimeMs = acc.totalMs / float64(acc.ops)
		}
		if gets := acc.hits + acc.misses; gets > 0 {
			p.HitRate = float64(acc.hits) / float64(gets) * 100
		}
		points = append(points, p)
	}

	t := Trends{
		ResponseTimeTrend: TrendInsufficientData,
		HitRateTrend:      TrendInsufficientData,
		Points:            points,
	}
	if len(points) < 2 {
		return t
	}

	mid := len(points) / 2
	respFirst, respSecond := meanBy(points[:mid], respOf), meanBy(points[mid:], respOf)
	hitFirst, hitSecond := meanBy(points[:mid], hitOf), meanBy(points[mid:], hitOf)

	// Lower response time in the second half means improving;
	// higher hit rate in the second half means improving.
	t.ResponseTimeTrend = classify(respFirst, respSecond, false)
	t.HitRateTrend = classify(hitFirst, hitSecond, true)
	return t
}

func respOf(p TrendPoint) float64 { return p.AvgResponseTimeMs }
func hitOf(p TrendPoint) float64  { return p.HitRate }

func meanBy(points []TrendPoint, f func(TrendPoint) float64) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += f(p)
	}
	return sum / float64(len(points))
}

// classify compares half means: a relative change over 5% is significant.
// higherIsBetter flips which direction counts as improving.
func classify(first, second float64, higherIsBetter bool) string {
	if first == 0 {
		if second == 0 {
			return TrendStable
		}
		if higherIsBetter {
			return TrendImproving
		}
		return TrendDeclining
	}
	change := (second - first) / first
	switch {
	case change > 0.05:
		if higherIsBetter {
			return TrendImproving
		}
		return TrendDeclining
	case change < -0.05:
		if higherIsBetter {
			return TrendDeclining
		}
		return TrendImproving
	default:
		return TrendStable
	}
}
