// Package llm holds the model clients used by the memory engine: embedding
// generators for the six dimension vectors and text generators for the
// model-backed emotion classifier. Every client is wrapped in a circuit
// breaker; embedders may additionally be rate limited and cached.
package llm

import "context"

// Named is implemented by every client; the model name keys caches and
// appears in logs.
type Named interface {
	GetModel() string
}

// TextGenerator returns a single completion for a prompt.
type TextGenerator interface {
	Named
	Complete(ctx context.Context, prompt string) (string, error)
}

// EmbeddingGenerator turns text into a vector. All dimensions of a record
// are embedded by one generator, so every vector has the same width.
type EmbeddingGenerator interface {
	Named
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
