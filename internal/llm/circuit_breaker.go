package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without contacting the backend while its
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker thresholds. One store or query fans out six calls at once, so
// five consecutive failures usually means one request saw a dead backend.
const (
	breakerTripAfter  = 5
	breakerCooldown   = 30 * time.Second
	breakerProbeLimit = 2
)

// CircuitBreaker guards one model backend. Calls abandoned by the caller
// (context.Canceled) count neither for nor against the backend.
type CircuitBreaker struct {
	cb       *gobreaker.CircuitBreaker
	rejected atomic.Uint64
}

// NewCircuitBreaker creates a breaker identified in logs by name.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerProbeLimit,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("llm: %s breaker %s -> %s", name, from, to)
		},
	})}
}

// State reports "closed", "open" or "half-open".
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}

// Rejected counts calls refused while the breaker was open or probing.
func (b *CircuitBreaker) Rejected() uint64 {
	return b.rejected.Load()
}

// guarded runs fn through b. label prefixes the error when b refuses the
// call.
func guarded[T any](ctx context.Context, b *CircuitBreaker, label string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.rejected.Add(1)
		return zero, fmt.Errorf("%s: %w", label, ErrCircuitOpen)
	case err != nil:
		return zero, err
	}
	return out.(T), nil
}
