package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder bounds the request rate an EmbeddingGenerator sees.
// One stored memory costs six embedding calls, so a burst of writes would
// otherwise arrive at the embedding service six-fold.
type RateLimitedEmbedder struct {
	next    EmbeddingGenerator
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows rps calls per second with the given burst.
func NewRateLimitedEmbedder(next EmbeddingGenerator, rps float64, burst int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for a token and then delegates. A wait that would outlast the
// context deadline fails immediately.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return r.next.Embed(ctx, text)
}

// GetModel returns the wrapped generator's model.
func (r *RateLimitedEmbedder) GetModel() string {
	return r.next.GetModel()
}

// HealthCheck probes the wrapped generator when it supports it.
func (r *RateLimitedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.next.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

var (
	_ EmbeddingGenerator = (*RateLimitedEmbedder)(nil)
	_ HealthChecker      = (*RateLimitedEmbedder)(nil)
)
