package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/security"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/workpool"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// weightSumTolerance bounds how far renormalized weights may drift from 1.
const weightSumTolerance = 1e-6

// Query is the text side of a search: what to look for and whose memories
// to look in. Tags are derived from the text exactly as on write.
type Query struct {
	OwnerID string
	Text    string
	Tags    types.DimensionTags
}

// SearchResult is the fused, filtered answer to one query.
type SearchResult struct {
	Records []ScoredRecord `json:"records"`

	// Weights are the renormalized weights actually applied.
	Weights map[types.Dimension]float64 `json:"weights"`

	// Dropped maps every dimension left out of fusion to the reason.
	Dropped map[types.Dimension]string `json:"dropped,omitempty"`
}

// SearchOrchestrator runs the six-way search for a query and fuses the
// per-dimension hits into one ranked list the caller may see.
type SearchOrchestrator struct {
	store      storage.VectorStore
	fanout     *embedding.FanOut
	filter     *security.Filter
	pool       *workpool.Pool
	timeout    time.Duration
	multiplier int
}

// NewSearchOrchestrator returns an orchestrator over store. Query vectors
// come from fanout and the store searches share pool.
func NewSearchOrchestrator(store storage.VectorStore, fanout *embedding.FanOut, filter *security.Filter, pool *workpool.Pool, cfg Config) *SearchOrchestrator {
	multiplier := cfg.CandidateMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return &SearchOrchestrator{
		store:      store,
		fanout:     fanout,
		filter:     filter,
		pool:       pool,
		timeout:    cfg.SearchTimeout,
		multiplier: multiplier,
	}
}

// EffectiveWeights renormalizes weights over the dimensions in searched.
// Dimensions with no weight are left out. The result sums to 1 unless every
// searched dimension has zero weight, in which case it is empty.
func EffectiveWeights(weights map[types.Dimension]float64, searched []types.Dimension) map[types.Dimension]float64 {
	total := 0.0
	for _, dim := range searched {
		if w := weights[dim]; w > 0 {
			total += w
		}
	}
	out := make(map[types.Dimension]float64, len(searched))
	if total == 0 {
		return out
	}
	for _, dim := range searched {
		if w := weights[dim]; w > 0 {
			out[dim] = w / total
		}
	}
	return out
}

// validateWeights requires non-negative finite weights and a positive
// content weight.
func validateWeights(weights map[types.Dimension]float64) error {
	for dim, w := range weights {
		if !dim.IsValid() {
			return fmt.Errorf("%w: unknown weight dimension %q", storage.ErrInvalidInput, dim)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight for %s must be a finite value >= 0", storage.ErrInvalidInput, dim)
		}
	}
	if weights[types.DimensionContent] <= 0 {
		return fmt.Errorf("%w: content weight must be > 0", storage.ErrInvalidInput)
	}
	return nil
}

// Search embeds the query under all six dimensions, searches every weighted
// dimension concurrently under one shared deadline and fuses the hits.
//
// A dimension whose embedding or search fails is dropped and the remaining
// weights are renormalized. Failure of the content dimension fails the whole
// query. Results are ordered by fused score, then most recent access, then
// ID, and contain only records visible to caller.
func (s *SearchOrchestrator) Search(ctx context.Context, q Query, caller types.MemoryContext, weights map[types.Dimension]float64, limit int) (*SearchResult, error) {
	if q.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", storage.ErrInvalidInput)
	}
	if err := validateWeights(weights); err != nil {
		return nil, err
	}

	result := &SearchResult{
		Records: []ScoredRecord{},
		Weights: map[types.Dimension]float64{},
		Dropped: map[types.Dimension]string{},
	}

	scopes := s.filter.AllowedScopes(caller)
	if len(scopes) == 0 {
		log.Printf("engine: caller level %q grants no scopes, returning nothing", caller.SecurityLevel)
		emitToContext(ctx, EventResultsReturned(nil))
		return result, nil
	}
	emitToContext(ctx, EventSearchStarted(scopes, weights))

	vectors, err := s.fanout.EmbedAll(ctx, q.Text, q.Tags)
	if err != nil {
		var pf *embedding.PartialFailure
		if !errors.As(err, &pf) || pf.ContentFailed() {
			return nil, fmt.Errorf("engine: query embedding: %w", err)
		}
		for dim, derr := range pf.Failed {
			result.Dropped[dim] = "embedding: " + derr.Error()
		}
	}

	var dims []types.Dimension
	for _, dim := range types.AllDimensions {
		if weights[dim] <= 0 {
			continue
		}
		if len(vectors[dim]) == 0 {
			if _, ok := result.Dropped[dim]; !ok {
				result.Dropped[dim] = "no query vector"
			}
			continue
		}
		dims = append(dims, dim)
	}

	hits, searchErrs := s.searchAll(ctx, q.OwnerID, scopes, vectors, dims, limit*s.multiplier)

	var searched []types.Dimension
	for i, dim := range dims {
		if searchErrs[i] == nil {
			searched = append(searched, dim)
			emitToContext(ctx, EventDimensionSearched(dim, len(hits[i])))
			continue
		}
		if dim == types.DimensionContent {
			if errors.Is(searchErrs[i], storage.ErrStoreQuery) {
				return nil, fmt.Errorf("engine: content search: %w", searchErrs[i])
			}
			return nil, fmt.Errorf("engine: content search: %w: %v", storage.ErrStoreQuery, searchErrs[i])
		}
		result.Dropped[dim] = "search: " + searchErrs[i].Error()
	}
	for dim, reason := range result.Dropped {
		log.Printf("engine: dropping %s dimension from query: %s", dim, reason)
		emitToContext(ctx, EventDimensionDropped(dim, reason))
	}

	result.Weights = EffectiveWeights(weights, searched)
	if err := checkWeightSum(result.Weights); err != nil {
		return nil, err
	}

	// Fuse: a record missing from a dimension's hits contributes zero there.
	perRecord := make(map[string]map[types.Dimension]float64)
	for i, dim := range dims {
		if searchErrs[i] != nil {
			continue
		}
		for _, h := range hits[i] {
			scores, ok := perRecord[h.ID]
			if !ok {
				scores = make(map[types.Dimension]float64, len(searched))
				perRecord[h.ID] = scores
			}
			scores[dim] = h.Score
		}
	}
	if len(perRecord) == 0 {
		emitToContext(ctx, EventResultsReturned(nil))
		return result, nil
	}

	ids := make([]string, 0, len(perRecord))
	for id := range perRecord {
		ids = append(ids, id)
	}
	recs, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: load candidates: %w", err)
	}

	candidates := make([]ScoredRecord, 0, len(recs))
	visible := make([]*types.MemoryRecord, 0, len(recs))
	for _, id := range ids {
		r, ok := recs[id]
		if !ok {
			emitToContext(ctx, EventFilteredOut(id, "deleted during query"))
			continue
		}
		if r.OwnerID != q.OwnerID {
			log.Printf("engine: store returned record %s of another owner, withholding results", id)
			emitToContext(ctx, EventFilteredOut(id, "owner mismatch"))
			return result, nil
		}
		total := 0.0
		for dim, score := range perRecord[id] {
			total += result.Weights[dim] * score
		}
		emitToContext(ctx, EventScoredCandidate(id, perRecord[id], total))
		candidates = append(candidates, ScoredRecord{Record: r, Score: total, Dimensions: perRecord[id]})
		visible = append(visible, r)
	}

	if len(visible) > 0 && len(s.filter.Apply(visible, caller)) != len(visible) {
		for _, r := range visible {
			emitToContext(ctx, EventFilteredOut(r.ID, "visibility check failed"))
		}
		emitToContext(ctx, EventResultsReturned(nil))
		return result, nil
	}

	sortScored(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	result.Records = candidates

	returned := make([]string, len(candidates))
	for i, c := range candidates {
		returned[i] = c.Record.ID
	}
	emitToContext(ctx, EventResultsReturned(returned))
	return result, nil
}

// searchAll runs one store search per dimension on the pool under the shared
// search deadline. Results and errors are indexed like dims.
func (s *SearchOrchestrator) searchAll(ctx context.Context, ownerID string, scopes []string, vectors types.Vectors, dims []types.Dimension, depth int) ([][]storage.SearchHit, []error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	hits := make([][]storage.SearchHit, len(dims))
	tasks := make([]workpool.Task, len(dims))
	for i, dim := range dims {
		i, req := i, storage.SearchRequest{
			Dimension: dim,
			Vector:    vectors[dim],
			OwnerID:   ownerID,
			Scopes:    scopes,
			Limit:     depth,
		}
		tasks[i] = func(ctx context.Context) error {
			h, err := s.store.Search(ctx, req)
			if err != nil {
				return err
			}
			hits[i] = h
			return nil
		}
	}
	return hits, s.pool.Run(ctx, tasks...)
}

func checkWeightSum(weights map[types.Dimension]float64) error {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: effective weights sum to %.9f", storage.ErrInvalidInput, sum)
	}
	return nil
}

// sortScored orders by fused score, then most recent access, then ID.
func sortScored(rs []ScoredRecord) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.LastAccessedAt.Equal(b.Record.LastAccessedAt) {
			return a.Record.LastAccessedAt.After(b.Record.LastAccessedAt)
		}
		return a.Record.ID < b.Record.ID
	})
}
