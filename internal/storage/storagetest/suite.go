// Package storagetest provides record builders and a behavioural test suite
// shared by every storage.VectorStore backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// Width is the vector width used by Record.
const Width = 4

// Base is the fixed creation time of records built by Record.
var Base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Record builds a complete record in the given context. Every dimension
// carries the same unit vector along axis.
func Record(id, owner string, level types.SecurityLevel, server, channel string, axis int) *types.MemoryRecord {
	vec := make([]float32, Width)
	vec[axis%Width] = 1
	vectors := make(types.Vectors, len(types.AllDimensions))
	for _, dim := range types.AllDimensions {
		vectors[dim] = append([]float32(nil), vec...)
	}
	ctxType := types.ContextPublicChannel
	switch level {
	case types.SecurityPrivateDM:
		ctxType = types.ContextDM
	case types.SecurityPrivateChannel:
		ctxType = types.ContextPrivateChannel
	}
	return &types.MemoryRecord{
		ID:                 id,
		OwnerID:            owner,
		CreatedAt:          Base,
		Content:            "content of " + id,
		Vectors:            vectors,
		Tags:               types.DimensionTags{Emotion: "neutral_calm", Semantic: "general_conversation"},
		PrimaryEmotion:     "neutral",
		EmotionConfidence:  0.5,
		EmotionalIntensity: 0.1,
		SecondaryEmotions:  []string{"joy"},
		Tier:               types.TierShort,
		Significance:       0.3,
		DecayResistance:    0.35,
		Factors:            types.SignificanceFactors{EmotionalIntensity: 0.1, Uniqueness: 1},
		LastAccessedAt:     Base,
		TierUpdatedAt:      Base,
		ContextType:        ctxType,
		SecurityLevel:      level,
		ServerID:           server,
		ChannelID:          channel,
		IsPrivate:          level == types.SecurityPrivateDM || level == types.SecurityPrivateChannel,
		ScopeKey:           types.ScopeKeyFor(level, server, channel),
	}
}

// Axis returns a unit query vector along axis.
func Axis(axis int) []float32 {
	vec := make([]float32, Width)
	vec[axis%Width] = 1
	return vec
}

// Run exercises a backend against the storage.VectorStore contract. open
// must return an empty store; Run closes it.
func Run(t *testing.T, open func(t *testing.T) storage.VectorStore) {
	t.Run("WriteAndGet", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		rec := Record("r1", "alice", types.SecurityPrivateDM, "", "dm-1", 0)
		sweptAt := Base.Add(time.Hour)
		rec.LastSweepAt = &sweptAt
		require.NoError(t, s.Write(ctx, rec))

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, rec.Content, got.Content)
		assert.Equal(t, rec.Tags, got.Tags)
		assert.Equal(t, rec.SecondaryEmotions, got.SecondaryEmotions)
		assert.Equal(t, rec.Factors, got.Factors)
		assert.Equal(t, rec.ScopeKey, got.ScopeKey)
		assert.Equal(t, types.SecurityPrivateDM, got.SecurityLevel)
		assert.True(t, got.IsPrivate)
		assert.True(t, got.CreatedAt.Equal(Base))
		require.NotNil(t, got.LastSweepAt)
		assert.True(t, got.LastSweepAt.Equal(sweptAt))
		assert.True(t, got.Vectors.Complete())
		assert.InDeltaSlice(t, rec.Vectors[types.DimensionEmotion], got.Vectors[types.DimensionEmotion], 1e-6)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("IncompleteVectorsNeverPersist", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		rec := Record("r1", "alice", types.SecurityPublicChannel, "srv", "general", 0)
		delete(rec.Vectors, types.DimensionSemantic)
		assert.ErrorIs(t, s.Write(ctx, rec), storage.ErrIncompleteVectors)

		ragged := Record("r2", "alice", types.SecurityPublicChannel, "srv", "general", 0)
		ragged.Vectors[types.DimensionPersonality] = []float32{1, 0}
		assert.ErrorIs(t, s.Write(ctx, ragged), storage.ErrIncompleteVectors)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		hits, err := s.Search(ctx, storage.SearchRequest{
			Dimension: types.DimensionContent, Vector: Axis(0), OwnerID: "alice",
			Scopes: []string{"server:srv"}, Limit: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("UpsertKeepsIdentityAndScope", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		rec := Record("r1", "alice", types.SecurityPrivateDM, "", "dm-1", 0)
		require.NoError(t, s.Write(ctx, rec))

		rec.Tier = types.TierLong
		require.NoError(t, s.Write(ctx, rec))
		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, types.TierLong, got.Tier)

		hijack := Record("r1", "mallory", types.SecurityPrivateDM, "", "dm-1", 0)
		assert.ErrorIs(t, s.Write(ctx, hijack), storage.ErrInvalidInput)

		widened := Record("r1", "alice", types.SecurityCrossServer, "", "", 0)
		assert.ErrorIs(t, s.Write(ctx, widened), storage.ErrInvalidInput)

		got, err = s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Equal(t, types.SecurityPrivateDM, got.SecurityLevel)
	})

	t.Run("RejectsMismatchedScopeKey", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		rec := Record("r1", "alice", types.SecurityPrivateDM, "", "dm-1", 0)
		rec.ScopeKey = "global"
		assert.ErrorIs(t, s.Write(context.Background(), rec), storage.ErrInvalidInput)
	})

	t.Run("SearchFiltersByOwnerAndScope", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		for _, rec := range []*types.MemoryRecord{
			Record("dm", "alice", types.SecurityPrivateDM, "", "dm-1", 0),
			Record("pub", "alice", types.SecurityPublicChannel, "srv", "general", 0),
			Record("other-server", "alice", types.SecurityPublicChannel, "srv2", "general", 0),
			Record("global", "alice", types.SecurityCrossServer, "", "", 0),
			Record("bob", "bob", types.SecurityPublicChannel, "srv", "general", 0),
		} {
			require.NoError(t, s.Write(ctx, rec))
		}

		hits, err := s.Search(ctx, storage.SearchRequest{
			Dimension: types.DimensionContent, Vector: Axis(0), OwnerID: "alice",
			Scopes: []string{"server:srv", "global"}, Limit: 10,
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"pub", "global"}, hitIDs(hits))

		hits, err = s.Search(ctx, storage.SearchRequest{
			Dimension: types.DimensionContent, Vector: Axis(0), OwnerID: "alice",
			Scopes: nil, Limit: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("SearchOrdersByScore", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		near := Record("near", "alice", types.SecurityCrossServer, "", "", 0)
		far := Record("far", "alice", types.SecurityCrossServer, "", "", 1)
		mid := Record("mid", "alice", types.SecurityCrossServer, "", "", 0)
		mid.Vectors[types.DimensionEmotion] = []float32{1, 1, 0, 0}
		for _, rec := range []*types.MemoryRecord{near, far, mid} {
			require.NoError(t, s.Write(ctx, rec))
		}

		hits, err := s.Search(ctx, storage.SearchRequest{
			Dimension: types.DimensionEmotion, Vector: Axis(0), OwnerID: "alice",
			Scopes: []string{"global"}, Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "near", hits[0].ID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
		assert.Equal(t, "mid", hits[1].ID)
		assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
	})

	t.Run("GetManyTouchAndRecent", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			rec := Record(fmt.Sprintf("r%d", i), "alice", types.SecurityCrossServer, "", "", i)
			rec.CreatedAt = Base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.Write(ctx, rec))
		}

		got, err := s.GetMany(ctx, []string{"r0", "r2", "missing"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Empty(t, got["r0"].Vectors)

		later := Base.Add(48 * time.Hour)
		require.NoError(t, s.Touch(ctx, []string{"r0"}, later))
		require.NoError(t, s.Touch(ctx, []string{"r0"}, Base))
		r0, err := s.Get(ctx, "r0")
		require.NoError(t, err)
		assert.True(t, r0.LastAccessedAt.Equal(later), "touch must never move the access time backwards")

		recent, err := s.RecentContents(ctx, "alice", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"content of r2", "content of r1"}, recent)

		recent, err = s.RecentContents(ctx, "nobody", 5)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("DeleteRequiresOwner", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Write(ctx, Record("r1", "alice", types.SecurityCrossServer, "", "", 0)))
		assert.ErrorIs(t, s.Delete(ctx, "bob", "r1"), storage.ErrNotFound)
		require.NoError(t, s.Delete(ctx, "alice", "r1"))
		assert.ErrorIs(t, s.Delete(ctx, "alice", "r1"), storage.ErrNotFound)

		_, err := s.Get(ctx, "r1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		hits, err := s.Search(ctx, storage.SearchRequest{
			Dimension: types.DimensionPersonality, Vector: Axis(0), OwnerID: "alice",
			Scopes: []string{"global"}, Limit: 5,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("ListForSweepPages", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		for _, id := range []string{"c", "a", "e", "b", "d"} {
			require.NoError(t, s.Write(ctx, Record(id, "alice", types.SecurityCrossServer, "", "", 0)))
		}
		var seen []string
		after := ""
		for {
			page, err := s.ListForSweep(ctx, after, 2)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			for _, r := range page {
				seen = append(seen, r.ID)
			}
			after = page[len(page)-1].ID
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
	})

	t.Run("ApplySweep", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Write(ctx, Record("keep", "alice", types.SecurityCrossServer, "", "", 0)))
		require.NoError(t, s.Write(ctx, Record("drop", "alice", types.SecurityCrossServer, "", "", 0)))

		now := Base.Add(30 * 24 * time.Hour)
		require.NoError(t, s.ApplySweep(ctx, storage.SweepUpdate{
			ID: "keep", Tier: types.TierMedium, DecayResistance: 0.42,
			TierUpdatedAt: now, SweptAt: now, SeenAccessedAt: Base,
		}))
		got, err := s.Get(ctx, "keep")
		require.NoError(t, err)
		assert.Equal(t, types.TierMedium, got.Tier)
		assert.InDelta(t, 0.42, got.DecayResistance, 1e-9)
		assert.True(t, got.TierUpdatedAt.Equal(now))
		require.NotNil(t, got.LastSweepAt)

		require.NoError(t, s.Touch(ctx, []string{"drop"}, now))
		err = s.ApplySweep(ctx, storage.SweepUpdate{ID: "drop", Evict: true, SeenAccessedAt: Base})
		assert.ErrorIs(t, err, storage.ErrStale)
		_, err = s.Get(ctx, "drop")
		require.NoError(t, err, "a stale eviction must not delete the record")

		require.NoError(t, s.ApplySweep(ctx, storage.SweepUpdate{ID: "drop", Evict: true, SeenAccessedAt: now}))
		_, err = s.Get(ctx, "drop")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = s.ApplySweep(ctx, storage.SweepUpdate{ID: "drop", Evict: true, SeenAccessedAt: now})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func hitIDs(hits []storage.SearchHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}
