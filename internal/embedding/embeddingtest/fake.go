// Package embeddingtest provides a deterministic in-process embedding
// generator for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Fake embeds text as a normalized bag of hashed words, so texts sharing
// words are similar. Hook, when set, runs before every call and may delay or
// fail it.
type Fake struct {
	Width int
	Hook  func(text string) (time.Duration, error)

	mu    sync.Mutex
	calls []string
}

// New returns a Fake producing vectors of the given width.
func New(width int) *Fake {
	return &Fake{Width: width}
}

// Embed implements llm.EmbeddingGenerator.
func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		delay, err := hook(text)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return Vector(text, f.Width), nil
}

// GetModel implements llm.EmbeddingGenerator.
func (f *Fake) GetModel() string { return "fake" }

// Calls returns every text embedded so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Vector is the embedding Fake returns for text.
func Vector(text string, width int) []float32 {
	vec := make([]float32, width)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(width)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
