package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/cachepulse/cachepulse/pkg/event"
)

// Recommendation priorities, most severe first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityInfo     = "info"
)

var priorityRank = map[string]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityInfo:     3,
}

// Recommendation is one actionable cache efficiency finding.
type Recommendation struct {
	Priority   string      `json:"priority"`
	Layer      event.Layer `json:"layer,omitempty"`
	Issue      string      `json:"issue"`
	Suggestion string      `json:"suggestion"`
}

// Rule cutoffs for efficiency recommendations.
const (
	minHitRate       = 70.0  // percent
	maxAvgResponseMs = 100.0 // milliseconds
	maxErrorRate     = 5.0   // percent
	maxFallbackRatio = 0.10  // local ops relative to remote ops
)

// GetCacheEfficiencyRecommendations evaluates a deterministic rule table
// against current layer statistics over the default analysis window and
// returns findings ordered most severe first. When nothing fires, a
// single informational "optimal" entry is returned.
func (m *Monitor) GetCacheEfficiencyRecommendations() []Recommendation {
	return m.recommendationsOver(m.cfg.AnalysisWindow)
}

func (m *Monitor) recommendationsOver(window time.Duration) []Recommendation {
	report := m.GetComprehensiveStats(window)

	var recs []Recommendation
	for _, layer := range event.Layers {
		ls := report.Layers[layer]
		if ls.TotalOperations == 0 {
			continue
		}

		if ls.HitCount+ls.MissCount > 0 && ls.HitRate < minHitRate {
			recs = append(recs, Recommendation{
				Priority:   PriorityHigh,
				Layer:      layer,
				Issue:      fmt.Sprintf("low hit rate: %.1f%%", ls.HitRate),
				Suggestion: "review key TTLs and cache warming coverage for frequently missed patterns",
			})
		}
		if ls.AvgResponseTimeMs > maxAvgResponseMs {
			recs = append(recs, Recommendation{
				Priority:   PriorityMedium,
				Layer:      layer,
				Issue:      fmt.Sprintf("slow responses: avg %.1fms", ls.AvgResponseTimeMs),
				Suggestion: "check cache connectivity and payload sizes; consider pipelining or smaller values",
			})
		}
		if ls.ErrorRate > maxErrorRate {
			recs = append(recs, Recommendation{
				Priority:   PriorityCritical,
				Layer:      layer,
				Issue:      fmt.Sprintf("high error rate: %.1f%%", ls.ErrorRate),
				Suggestion: "inspect cache server health, connection pool limits, and timeout settings",
			})
		}
	}

	remote := report.Layers[event.LayerRemoteShared]
	local := report.Layers[event.LayerLocalInProcess]
	if remote.TotalOperations > 0 &&
		float64(local.TotalOperations) > float64(remote.TotalOperations)*maxFallbackRatio {
		recs = append(recs, Recommendation{
			Priority:   PriorityMedium,
			Layer:      event.LayerLocalInProcess,
			Issue:      fmt.Sprintf("excessive local fallback: %d local vs %d remote operations", local.TotalOperations, remote.TotalOperations),
			Suggestion: "the remote layer may be degraded or unreachable; verify its availability",
		})
	}

	if len(recs) == 0 {
		return []Recommendation{{
			Priority:   PriorityInfo,
			Issue:      "cache performance is optimal",
			Suggestion: "no action needed",
		}}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
	})
	return recs
}
