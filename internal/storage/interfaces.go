// Package storage defines the vector store contract used by the memory
// engine.
//
// A store keeps each memory record together with its six named vectors and
// answers single-dimension nearest-neighbour queries that are pre-filtered by
// owner and scope inside the backend query. Weighting and fusion happen in
// the engine, never here.
package storage

import (
	"context"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// VectorStore persists memory records and their named vectors.
type VectorStore interface {
	// Write inserts or replaces a record with all six vectors in one atomic
	// operation. Returns ErrIncompleteVectors when any vector is missing or
	// the widths disagree, and wraps ErrStoreWrite on backend failure. An
	// existing record keeps its owner, security level and scope.
	Write(ctx context.Context, record *types.MemoryRecord) error

	// Search returns the nearest records in one dimension, ordered by
	// descending score. Only records owned by req.OwnerID whose scope key is
	// in req.Scopes are considered. Empty Scopes yields no hits.
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)

	// Get retrieves one record including its vectors.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)

	// GetMany retrieves records without their vectors. Missing IDs are
	// absent from the result map.
	GetMany(ctx context.Context, ids []string) (map[string]*types.MemoryRecord, error)

	// Touch advances last_accessed_at to at for the given records. A later
	// existing value is kept.
	Touch(ctx context.Context, ids []string, at time.Time) error

	// Delete removes a record and all its vectors. The record must belong
	// to ownerID. Returns ErrNotFound otherwise.
	Delete(ctx context.Context, ownerID, id string) error

	// ListForSweep pages through all records in ID order, starting after
	// afterID. Vectors are not loaded.
	ListForSweep(ctx context.Context, afterID string, limit int) ([]*types.MemoryRecord, error)

	// ApplySweep atomically applies one aging decision. Returns ErrStale if
	// the record was accessed since it was read, and ErrNotFound if it no
	// longer exists.
	ApplySweep(ctx context.Context, update SweepUpdate) error

	// RecentContents returns the content of the owner's most recent records,
	// newest first.
	RecentContents(ctx context.Context, ownerID string, limit int) ([]string, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
