// Package engine provides the memory engine: it writes conversational turns
// as six-vector records, answers weighted multi-dimension queries under the
// caller's visibility, and ages records through retention tiers on a
// background ticker.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

var (
	// ErrNotStarted is returned by operations that need the engine running.
	ErrNotStarted = errors.New("engine not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrSweepInProgress is returned when a sweep is requested while one runs.
	ErrSweepInProgress = errors.New("sweep already in progress")
)

// Config holds configuration for the memory engine.
type Config struct {
	// PoolSize bounds concurrent embedding and search calls across the
	// process (default: 24).
	PoolSize int

	// EmbedTimeout is the shared deadline of one six-way embedding fan-out (default: 10s).
	EmbedTimeout time.Duration

	// SearchTimeout is the shared deadline of one six-way search fan-out (default: 5s).
	SearchTimeout time.Duration

	// SweepInterval is the aging period; zero disables the ticker (default: 1h).
	SweepInterval time.Duration

	// SweepTimeout bounds one aging sweep (default: 5m).
	SweepTimeout time.Duration

	// SweepBatchSize is the number of records read per sweep page (default: 500).
	SweepBatchSize int

	// SweepOnStart runs one sweep as soon as the engine starts.
	SweepOnStart bool

	// CandidateMultiplier scales the per-dimension search depth relative to
	// the requested limit (default: 4).
	CandidateMultiplier int

	// DefaultLimit applies when a query asks for zero results (default: 10).
	DefaultLimit int

	// MaxLimit caps the results of one query (default: 50).
	MaxLimit int

	// HistorySize is how many recent memories feed factor estimation (default: 20).
	HistorySize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:            24,
		EmbedTimeout:        10 * time.Second,
		SearchTimeout:       5 * time.Second,
		SweepInterval:       time.Hour,
		SweepTimeout:        5 * time.Minute,
		SweepBatchSize:      500,
		CandidateMultiplier: 4,
		DefaultLimit:        10,
		MaxLimit:            50,
		HistorySize:         20,
	}
}

// ConfigFromSettings overlays the environment-derived engine settings on
// the defaults.
func ConfigFromSettings(s config.EngineConfig) Config {
	c := DefaultConfig()
	c.PoolSize = s.PoolSize
	c.EmbedTimeout = s.EmbedTimeout
	c.SearchTimeout = s.SearchTimeout
	c.SweepInterval = s.SweepInterval
	c.SweepTimeout = s.SweepTimeout
	c.SweepBatchSize = s.SweepBatchSize
	c.SweepOnStart = s.SweepOnStart
	return c
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("PoolSize must be >= 1, got %d", c.PoolSize)
	}
	if c.EmbedTimeout <= 0 {
		return fmt.Errorf("EmbedTimeout must be > 0, got %v", c.EmbedTimeout)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("SearchTimeout must be > 0, got %v", c.SearchTimeout)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("SweepInterval must be >= 0, got %v", c.SweepInterval)
	}
	if c.SweepTimeout <= 0 {
		return fmt.Errorf("SweepTimeout must be > 0, got %v", c.SweepTimeout)
	}
	if c.SweepBatchSize < 1 {
		return fmt.Errorf("SweepBatchSize must be >= 1, got %d", c.SweepBatchSize)
	}
	if c.CandidateMultiplier < 1 {
		return fmt.Errorf("CandidateMultiplier must be >= 1, got %d", c.CandidateMultiplier)
	}
	if c.DefaultLimit < 1 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("limits must satisfy 1 <= DefaultLimit (%d) <= MaxLimit (%d)", c.DefaultLimit, c.MaxLimit)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("HistorySize must be >= 0, got %d", c.HistorySize)
	}
	return nil
}

// ScoredRecord is one fused query result.
type ScoredRecord struct {
	Record *types.MemoryRecord `json:"record"`

	// Score is the weighted sum over the dimensions that were searched.
	Score float64 `json:"score"`

	// Dimensions holds the raw per-dimension similarity of the record. A
	// dimension is absent when the record was not among its top hits.
	Dimensions map[types.Dimension]float64 `json:"dimensions"`
}

// EventType names a record lifecycle event.
type EventType string

const (
	EventStored   EventType = "memory.stored"
	EventPromoted EventType = "memory.promoted"
	EventDemoted  EventType = "memory.demoted"
	EventEvicted  EventType = "memory.evicted"
)

// Event is published for every lifecycle change of a record.
type Event struct {
	Type     EventType  `json:"type"`
	MemoryID string     `json:"memory_id"`
	OwnerID  string     `json:"owner_id"`
	Tier     types.Tier `json:"tier,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	At       time.Time  `json:"at"`
}
