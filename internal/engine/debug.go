package engine

import (
	"context"
	"sync"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// contextKey is an unexported type for context keys owned by this package.
type contextKey string

const traceKey contextKey = "query_trace"

// TraceCollector accumulates TraceEvents for a single query. Dimension
// searches emit concurrently, so Emit is safe for concurrent use.
type TraceCollector struct {
	mu        sync.Mutex
	events    []TraceEvent
	startedAt time.Time
}

// NewTraceCollector returns a fresh collector.
func NewTraceCollector() *TraceCollector {
	return &TraceCollector{startedAt: time.Now()}
}

// Emit appends an event to the collector.
func (tc *TraceCollector) Emit(e TraceEvent) {
	tc.mu.Lock()
	tc.events = append(tc.events, e)
	tc.mu.Unlock()
}

// Events returns the collected events in emission order.
func (tc *TraceCollector) Events() []TraceEvent {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]TraceEvent(nil), tc.events...)
}

// ElapsedMS returns the elapsed time since the collector was created, in milliseconds.
func (tc *TraceCollector) ElapsedMS() int64 {
	return time.Since(tc.startedAt).Milliseconds()
}

// WithTraceCollector stores a collector in the context.
func WithTraceCollector(ctx context.Context, tc *TraceCollector) context.Context {
	return context.WithValue(ctx, traceKey, tc)
}

// TraceCollectorFromContext retrieves the collector from the context.
// Returns (nil, false) if none is present.
func TraceCollectorFromContext(ctx context.Context) (*TraceCollector, bool) {
	tc, ok := ctx.Value(traceKey).(*TraceCollector)
	return tc, ok
}

// emitToContext emits an event only when a collector is present in ctx.
func emitToContext(ctx context.Context, e TraceEvent) {
	if tc, ok := TraceCollectorFromContext(ctx); ok {
		tc.Emit(e)
	}
}

// DebugQueryResult is the structured explanation of one query.
type DebugQueryResult struct {
	// Scopes are the scope keys the store search was restricted to.
	Scopes []string `json:"scopes"`

	// Weights are the requested weights as traced. MemoryEngine.DebugQuery
	// replaces them with the renormalized weights actually applied.
	Weights map[types.Dimension]float64 `json:"weights"`

	// Hits counts the raw hits of every dimension that was searched.
	Hits map[types.Dimension]int `json:"hits"`

	// Dropped lists the dimensions left out of fusion and why.
	Dropped map[types.Dimension]string `json:"dropped"`

	ScoredResults []ScoredEntry   `json:"scored_results"`
	FilteredOut   []FilteredEntry `json:"filtered_out"`
	Returned      []string        `json:"returned"`
	TimingMS      int64           `json:"timing_ms"`
}

// ScoredEntry represents a fused candidate.
type ScoredEntry struct {
	MemoryID string                      `json:"memory_id"`
	Scores   map[types.Dimension]float64 `json:"scores"`
	Total    float64                     `json:"total"`
}

// FilteredEntry represents a candidate that was discarded.
type FilteredEntry struct {
	MemoryID string `json:"memory_id"`
	Reason   string `json:"reason"`
}

// BuildDebugResult converts collected trace events into a DebugQueryResult.
func BuildDebugResult(events []TraceEvent, elapsedMS int64) *DebugQueryResult {
	result := &DebugQueryResult{
		Weights:  make(map[types.Dimension]float64),
		Hits:     make(map[types.Dimension]int),
		Dropped:  make(map[types.Dimension]string),
		TimingMS: elapsedMS,
	}

	for _, e := range events {
		switch e.Kind {
		case KindSearchStarted:
			result.Scopes = e.Scopes
			for dim, w := range e.Weights {
				result.Weights[dim] = w
			}
		case KindDimensionSearched:
			result.Hits[e.Dimension] = e.Count
		case KindDimensionDropped:
			result.Dropped[e.Dimension] = e.Reason
		case KindScoredCandidate:
			result.ScoredResults = append(result.ScoredResults, ScoredEntry{
				MemoryID: e.MemoryID,
				Scores:   e.Scores,
				Total:    e.Total,
			})
		case KindFilteredOut:
			result.FilteredOut = append(result.FilteredOut, FilteredEntry{
				MemoryID: e.MemoryID,
				Reason:   e.Reason,
			})
		case KindResultsReturned:
			result.Returned = e.MemoryIDs
		}
	}

	// Guarantee non-nil slices for clean JSON output.
	if result.Scopes == nil {
		result.Scopes = []string{}
	}
	if result.ScoredResults == nil {
		result.ScoredResults = []ScoredEntry{}
	}
	if result.FilteredOut == nil {
		result.FilteredOut = []FilteredEntry{}
	}
	if result.Returned == nil {
		result.Returned = []string{}
	}

	return result
}
