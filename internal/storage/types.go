package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIncompleteVectors indicates a write without all six vectors of a
	// single width.
	ErrIncompleteVectors = errors.New("incomplete vectors")

	// ErrStoreWrite wraps backend failures during a write. No partial
	// record persists when it is returned.
	ErrStoreWrite = errors.New("store write failed")

	// ErrStoreQuery wraps backend failures during a read.
	ErrStoreQuery = errors.New("store query failed")

	// ErrStale indicates that a sweep decision was based on a record that
	// has been accessed since it was read.
	ErrStale = errors.New("record changed since read")
)

// SearchRequest is one named-vector nearest-neighbour query.
type SearchRequest struct {
	Dimension types.Dimension
	Vector    []float32
	OwnerID   string
	Scopes    []string // Allowed scope keys; empty means nothing is visible
	Limit     int
}

// Validate checks the request shape.
func (r SearchRequest) Validate() error {
	if !r.Dimension.IsValid() {
		return fmt.Errorf("%w: unknown dimension %q", ErrInvalidInput, r.Dimension)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: query vector is empty", ErrInvalidInput)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0", ErrInvalidInput)
	}
	return nil
}

// SearchHit is a record ID with its raw similarity in one dimension.
type SearchHit struct {
	ID    string
	Score float64
}

// SweepUpdate is the outcome of aging one record.
type SweepUpdate struct {
	ID              string
	Evict           bool
	Tier            types.Tier
	DecayResistance float64
	TierUpdatedAt   time.Time
	SweptAt         time.Time

	// SeenAccessedAt is the record's last_accessed_at when the decision was
	// made. The update is refused with ErrStale if it has moved.
	SeenAccessedAt time.Time
}

// ValidateRecord checks everything a store requires before writing.
func ValidateRecord(r *types.MemoryRecord) error {
	if r == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidInput)
	}
	if r.ID == "" || r.OwnerID == "" {
		return fmt.Errorf("%w: id and owner id are required", ErrInvalidInput)
	}
	if !r.SecurityLevel.IsValid() {
		return fmt.Errorf("%w: unknown security level %q", ErrInvalidInput, r.SecurityLevel)
	}
	if !r.Tier.IsValid() {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, r.Tier)
	}
	if want := types.ScopeKeyFor(r.SecurityLevel, r.ServerID, r.ChannelID); r.ScopeKey != want {
		return fmt.Errorf("%w: scope key %q does not match context (want %q)", ErrInvalidInput, r.ScopeKey, want)
	}
	if !r.Vectors.Complete() {
		if missing := r.Vectors.Missing(); len(missing) > 0 {
			return fmt.Errorf("%w: missing %v", ErrIncompleteVectors, missing)
		}
		return fmt.Errorf("%w: vector widths disagree", ErrIncompleteVectors)
	}
	return nil
}

// Width returns the common vector width of a complete record.
func Width(r *types.MemoryRecord) int {
	return len(r.Vectors[types.DimensionContent])
}

// SortHits orders hits by descending score, breaking ties by ID.
func SortHits(hits []SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
