// Package chromem provides an in-process storage.VectorStore on top of
// chromem-go. Each dimension has its own collection; owner and scope are
// document metadata so that the where-clause filters before similarity is
// computed. Record payloads are kept in a map next to the collections.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

var _ storage.VectorStore = (*VectorStore)(nil)

const (
	metaOwner = "owner_id"
	metaScope = "scope_key"
)

// VectorStore wraps chromem-go for named-vector storage.
type VectorStore struct {
	db          *chromem.DB
	collections map[types.Dimension]*chromem.Collection

	mu      sync.RWMutex
	records map[string]*types.MemoryRecord
}

// NewVectorStore creates an empty in-memory store with one collection per
// dimension.
func NewVectorStore() (*VectorStore, error) {
	db := chromem.NewDB()
	s := &VectorStore{
		db:          db,
		collections: make(map[types.Dimension]*chromem.Collection, len(types.AllDimensions)),
		records:     make(map[string]*types.MemoryRecord),
	}
	for _, dim := range types.AllDimensions {
		col, err := db.CreateCollection(
			"memory_"+string(dim),
			nil, // No custom metadata
			nil, // Embeddings are always supplied
		)
		if err != nil {
			return nil, fmt.Errorf("create collection %s: %w", dim, err)
		}
		s.collections[dim] = col
	}
	log.Printf("[CHROMEM] Created %d dimension collections", len(s.collections))
	return s, nil
}

// Write adds the record's six documents. If any add fails, the documents
// already written are rolled back to their previous state.
func (s *VectorStore) Write(ctx context.Context, r *types.MemoryRecord) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.records[r.ID]
	if exists && (prev.OwnerID != r.OwnerID || prev.ScopeKey != r.ScopeKey) {
		return fmt.Errorf("%w: record %s exists with a different owner or scope", storage.ErrInvalidInput, r.ID)
	}

	metadata := map[string]string{metaOwner: r.OwnerID, metaScope: r.ScopeKey}
	var written []types.Dimension
	for _, dim := range types.AllDimensions {
		doc := chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: append([]float32(nil), r.Vectors[dim]...),
			Metadata:  metadata,
		}
		if err := s.collections[dim].AddDocument(ctx, doc); err != nil {
			s.rollback(ctx, r.ID, prev, written)
			return fmt.Errorf("%w: add %s document: %v", storage.ErrStoreWrite, dim, err)
		}
		written = append(written, dim)
	}

	stored := clone(r, true)
	if exists {
		// Identity and context are fixed at first write.
		stored.CreatedAt = prev.CreatedAt
		stored.ContextType = prev.ContextType
		stored.SecurityLevel = prev.SecurityLevel
		stored.ServerID = prev.ServerID
		stored.ChannelID = prev.ChannelID
		stored.IsPrivate = prev.IsPrivate
	}
	s.records[r.ID] = stored
	return nil
}

// rollback restores the documents of dims to prev, or removes them when the
// record is new. Caller holds s.mu.
func (s *VectorStore) rollback(ctx context.Context, id string, prev *types.MemoryRecord, dims []types.Dimension) {
	for _, dim := range dims {
		col := s.collections[dim]
		var err error
		if prev != nil {
			err = col.AddDocument(ctx, chromem.Document{
				ID:        id,
				Content:   prev.Content,
				Embedding: append([]float32(nil), prev.Vectors[dim]...),
				Metadata:  map[string]string{metaOwner: prev.OwnerID, metaScope: prev.ScopeKey},
			})
		} else {
			err = col.Delete(ctx, nil, nil, id)
		}
		if err != nil {
			log.Printf("[CHROMEM] Rollback of %s in %s failed: %v", id, dim, err)
		}
	}
}

// Search runs one filtered query per allowed scope and merges the hits.
func (s *VectorStore) Search(ctx context.Context, req storage.SearchRequest) ([]storage.SearchHit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Scopes) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[req.Dimension]
	// chromem-go requires nResults <= collection size.
	n := req.Limit
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var hits []storage.SearchHit
	for _, scope := range dedupe(req.Scopes) {
		where := map[string]string{metaOwner: req.OwnerID, metaScope: scope}
		results, err := col.QueryEmbedding(ctx, req.Vector, n, where, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: chromem %s query: %v", storage.ErrStoreQuery, req.Dimension, err)
		}
		for _, res := range results {
			if seen[res.ID] {
				continue
			}
			seen[res.ID] = true
			hits = append(hits, storage.SearchHit{ID: res.ID, Score: float64(res.Similarity)})
		}
	}

	storage.SortHits(hits)
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// Get returns a copy of the record including its vectors.
func (s *VectorStore) Get(_ context.Context, id string) (*types.MemoryRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(r, true), nil
}

// GetMany returns copies of the records without vectors.
func (s *VectorStore) GetMany(_ context.Context, ids []string) (map[string]*types.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*types.MemoryRecord, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = clone(r, false)
		}
	}
	return out, nil
}

// Touch advances last access times.
func (s *VectorStore) Touch(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if r, ok := s.records[id]; ok && at.After(r.LastAccessedAt) {
			r.LastAccessedAt = at
		}
	}
	return nil
}

// Delete removes a record owned by ownerID from every collection.
func (s *VectorStore) Delete(ctx context.Context, ownerID, id string) error {
	if id == "" || ownerID == "" {
		return fmt.Errorf("%w: record ID and owner ID are required", storage.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	return s.remove(ctx, id)
}

// remove deletes id from the collections and the record map. Caller holds s.mu.
func (s *VectorStore) remove(ctx context.Context, id string) error {
	for _, dim := range types.AllDimensions {
		if err := s.collections[dim].Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("%w: delete %s document: %v", storage.ErrStoreWrite, dim, err)
		}
	}
	delete(s.records, id)
	log.Printf("[CHROMEM] Deleted record %s", id)
	return nil
}

// ListForSweep pages through records in ID order.
func (s *VectorStore) ListForSweep(_ context.Context, afterID string, limit int) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", storage.ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*types.MemoryRecord, len(ids))
	for i, id := range ids {
		out[i] = clone(s.records[id], false)
	}
	return out, nil
}

// ApplySweep applies one aging decision under the store lock.
func (s *VectorStore) ApplySweep(ctx context.Context, u storage.SweepUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[u.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if !r.LastAccessedAt.Equal(u.SeenAccessedAt) {
		return storage.ErrStale
	}
	if u.Evict {
		return s.remove(ctx, u.ID)
	}
	if !u.Tier.IsValid() {
		return fmt.Errorf("%w: unknown tier %q", storage.ErrInvalidInput, u.Tier)
	}
	r.Tier = u.Tier
	r.DecayResistance = u.DecayResistance
	r.TierUpdatedAt = u.TierUpdatedAt
	swept := u.SweptAt
	r.LastSweepAt = &swept
	return nil
}

// RecentContents returns the owner's newest record contents.
func (s *VectorStore) RecentContents(_ context.Context, ownerID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*types.MemoryRecord
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			owned = append(owned, r)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID < owned[j].ID
	})
	if len(owned) > limit {
		owned = owned[:limit]
	}
	out := make([]string, len(owned))
	for i, r := range owned {
		out[i] = r.Content
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *VectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close releases resources. chromem-go keeps everything in memory.
func (s *VectorStore) Close() error {
	return nil
}

func clone(r *types.MemoryRecord, withVectors bool) *types.MemoryRecord {
	c := *r
	c.SecondaryEmotions = append([]string(nil), r.SecondaryEmotions...)
	if r.LastSweepAt != nil {
		t := *r.LastSweepAt
		c.LastSweepAt = &t
	}
	c.Vectors = nil
	if withVectors {
		c.Vectors = make(types.Vectors, len(r.Vectors))
		for dim, vec := range r.Vectors {
			c.Vectors[dim] = append([]float32(nil), vec...)
		}
	}
	return &c
}

func dedupe(scopes []string) []string {
	seen := make(map[string]bool, len(scopes))
	out := scopes[:0:0]
	for _, s := range scopes {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
