package engine

import (
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// TraceEventKind names one step of a traced query.
type TraceEventKind string

// A traced query emits search_started, then one dimension_searched or
// dimension_dropped per dimension, then scored_candidate and filtered_out
// for the fused candidates, and finally results_returned.
const (
	KindSearchStarted     TraceEventKind = "search_started"
	KindDimensionSearched TraceEventKind = "dimension_searched"
	KindDimensionDropped  TraceEventKind = "dimension_dropped"
	KindScoredCandidate   TraceEventKind = "scored_candidate"
	KindFilteredOut       TraceEventKind = "filtered_out"
	KindResultsReturned   TraceEventKind = "results_returned"
)

// TraceEvent is one step of a traced query. Only the fields relevant to
// Kind are set.
type TraceEvent struct {
	Kind      TraceEventKind              `json:"kind"`
	At        time.Time                   `json:"at"`
	MemoryID  string                      `json:"memory_id,omitempty"`
	Dimension types.Dimension             `json:"dimension,omitempty"`
	Count     int                         `json:"count,omitempty"`
	Scores    map[types.Dimension]float64 `json:"scores,omitempty"`
	Total     float64                     `json:"total_score,omitempty"`
	Reason    string                      `json:"reason,omitempty"`
	Scopes    []string                    `json:"scopes,omitempty"`
	Weights   map[types.Dimension]float64 `json:"weights,omitempty"`
	MemoryIDs []string                    `json:"memory_ids,omitempty"`
}

func traced(kind TraceEventKind, fill func(*TraceEvent)) TraceEvent {
	ev := TraceEvent{Kind: kind, At: time.Now()}
	fill(&ev)
	return ev
}

// EventSearchStarted records the scope keys the caller may read and the
// requested fusion weights.
func EventSearchStarted(scopes []string, weights map[types.Dimension]float64) TraceEvent {
	return traced(KindSearchStarted, func(ev *TraceEvent) {
		ev.Scopes, ev.Weights = scopes, weights
	})
}

// EventDimensionSearched records how many hits one dimension returned.
func EventDimensionSearched(dim types.Dimension, hits int) TraceEvent {
	return traced(KindDimensionSearched, func(ev *TraceEvent) {
		ev.Dimension, ev.Count = dim, hits
	})
}

// EventDimensionDropped records a dimension left out of fusion.
func EventDimensionDropped(dim types.Dimension, reason string) TraceEvent {
	return traced(KindDimensionDropped, func(ev *TraceEvent) {
		ev.Dimension, ev.Reason = dim, reason
	})
}

// EventScoredCandidate records a fused candidate and its raw similarities.
func EventScoredCandidate(memoryID string, scores map[types.Dimension]float64, total float64) TraceEvent {
	return traced(KindScoredCandidate, func(ev *TraceEvent) {
		ev.MemoryID, ev.Scores, ev.Total = memoryID, scores, total
	})
}

// EventFilteredOut records a discarded candidate.
func EventFilteredOut(memoryID, reason string) TraceEvent {
	return traced(KindFilteredOut, func(ev *TraceEvent) {
		ev.MemoryID, ev.Reason = memoryID, reason
	})
}

// EventResultsReturned records the final result IDs in rank order.
func EventResultsReturned(memoryIDs []string) TraceEvent {
	return traced(KindResultsReturned, func(ev *TraceEvent) {
		ev.MemoryIDs, ev.Count = memoryIDs, len(memoryIDs)
	})
}
