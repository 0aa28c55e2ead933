package llm

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes embeddings by model and exact input text.
//
// Query text is embedded under the same six prefixed templates as stored
// text, and the prefixed strings for frequent tags repeat often, so hits are
// common on chat workloads. Costs are accounted in bytes of vector payload.
type CachedEmbedder struct {
	next  EmbeddingGenerator
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps next with a cache bounded to maxCost bytes.
func NewCachedEmbedder(next EmbeddingGenerator, maxCost int64) (*CachedEmbedder, error) {
	// Ristretto recommends ten counters per expected item; an item is one
	// 768-wide vector of about 3 KiB.
	counters := maxCost / 3072 * 10
	if counters < 1000 {
		counters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// Embed returns a cached vector when present, else delegates and caches the
// result. Callers receive their own copy.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.next.GetModel() + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		return cloneVector(v.([]float32)), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, cloneVector(vec), int64(len(vec)*4))
	return vec, nil
}

// GetModel returns the wrapped generator's model.
func (c *CachedEmbedder) GetModel() string {
	return c.next.GetModel()
}

// Wait blocks until buffered cache writes have been applied.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache's background goroutines.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// HealthCheck probes the wrapped generator when it supports it.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.next.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

var (
	_ EmbeddingGenerator = (*CachedEmbedder)(nil)
	_ HealthChecker      = (*CachedEmbedder)(nil)
)
