// Package embedding produces the six named vectors of a memory record. The
// content vector embeds the raw text; each tagged vector embeds the text
// prefixed with its dimension's tag, so identical text lands in different
// regions of the embedding space per dimension.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/llm"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/workpool"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

var (
	// ErrEmbedding is wrapped by every fan-out failure.
	ErrEmbedding = errors.New("embedding failed")

	// ErrContentEmbedding is additionally wrapped when the content dimension
	// failed. Without a content vector a record cannot be stored or searched.
	ErrContentEmbedding = errors.New("content embedding failed")
)

// prefixes holds the template prefix of each tagged dimension.
var prefixes = map[types.Dimension]string{
	types.DimensionEmotion:      "emotion",
	types.DimensionSemantic:     "concept",
	types.DimensionRelationship: "relationship",
	types.DimensionSituational:  "context",
	types.DimensionPersonality:  "personality",
}

// PartialFailure reports which dimensions could not be embedded. The vectors
// of the dimensions that succeeded are returned alongside it.
type PartialFailure struct {
	Failed map[types.Dimension]error
}

// Error lists the failed dimensions in storage column order.
func (p *PartialFailure) Error() string {
	parts := make([]string, 0, len(p.Failed))
	for _, dim := range p.dimensions() {
		parts = append(parts, fmt.Sprintf("%s: %v", dim, p.Failed[dim]))
	}
	return fmt.Sprintf("%v for %d of %d dimensions (%s)",
		ErrEmbedding, len(p.Failed), len(types.AllDimensions), strings.Join(parts, "; "))
}

// Unwrap exposes ErrEmbedding, ErrContentEmbedding when content failed, and
// each dimension's own error.
func (p *PartialFailure) Unwrap() []error {
	errs := []error{ErrEmbedding}
	if p.ContentFailed() {
		errs = append(errs, ErrContentEmbedding)
	}
	for _, dim := range p.dimensions() {
		errs = append(errs, p.Failed[dim])
	}
	return errs
}

// ContentFailed reports whether the content dimension is among the failures.
func (p *PartialFailure) ContentFailed() bool {
	_, ok := p.Failed[types.DimensionContent]
	return ok
}

func (p *PartialFailure) dimensions() []types.Dimension {
	dims := make([]types.Dimension, 0, len(p.Failed))
	for dim := range p.Failed {
		dims = append(dims, dim)
	}
	sort.Slice(dims, func(i, j int) bool {
		return columnIndex(dims[i]) < columnIndex(dims[j])
	})
	return dims
}

func columnIndex(d types.Dimension) int {
	for i, known := range types.AllDimensions {
		if d == known {
			return i
		}
	}
	return len(types.AllDimensions)
}

// Texts returns the exact string embedded for every dimension.
func Texts(text string, tags types.DimensionTags) map[types.Dimension]string {
	out := make(map[types.Dimension]string, len(types.AllDimensions))
	for _, dim := range types.AllDimensions {
		if dim == types.DimensionContent {
			out[dim] = text
			continue
		}
		out[dim] = fmt.Sprintf("%s %s: %s", prefixes[dim], tags.For(dim), text)
	}
	return out
}

// FanOut embeds the six dimension texts concurrently on a shared pool.
type FanOut struct {
	gen     llm.EmbeddingGenerator
	pool    *workpool.Pool
	timeout time.Duration
}

// NewFanOut returns a fan-out over gen. timeout is the one deadline shared by
// all six calls; zero leaves only the caller's deadline.
func NewFanOut(gen llm.EmbeddingGenerator, pool *workpool.Pool, timeout time.Duration) *FanOut {
	return &FanOut{gen: gen, pool: pool, timeout: timeout}
}

// EmbedAll embeds text under all six dimensions. When every call succeeds it
// returns the six vectors and nil. Otherwise it returns the vectors that did
// succeed together with a *PartialFailure; callers decide whether a partial
// map is usable. There are no retries.
func (f *FanOut) EmbedAll(ctx context.Context, text string, tags types.DimensionTags) (types.Vectors, error) {
	return f.Embed(ctx, Texts(text, tags))
}

// Embed runs one embedding call per entry of texts under the shared deadline.
func (f *FanOut) Embed(ctx context.Context, texts map[types.Dimension]string) (types.Vectors, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	dims := make([]types.Dimension, 0, len(texts))
	for _, dim := range types.AllDimensions {
		if _, ok := texts[dim]; ok {
			dims = append(dims, dim)
		}
	}

	results := make([][]float32, len(dims))
	tasks := make([]workpool.Task, len(dims))
	for i, dim := range dims {
		i, input := i, texts[dim]
		tasks[i] = func(ctx context.Context) error {
			vec, err := f.gen.Embed(ctx, input)
			if err != nil {
				return err
			}
			if len(vec) == 0 {
				return llm.ErrEmptyEmbedding
			}
			results[i] = vec
			return nil
		}
	}
	errs := f.pool.Run(ctx, tasks...)

	vectors := make(types.Vectors, len(dims))
	var failed map[types.Dimension]error
	for i, dim := range dims {
		if errs[i] != nil {
			if failed == nil {
				failed = make(map[types.Dimension]error)
			}
			failed[dim] = errs[i]
			continue
		}
		vectors[dim] = results[i]
	}
	if failed != nil {
		pf := &PartialFailure{Failed: failed}
		log.Printf("embedding: %v", pf)
		return vectors, pf
	}
	return vectors, nil
}
