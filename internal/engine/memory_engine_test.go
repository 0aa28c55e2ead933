package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

func TestStoreAssignsTierAndContext(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	id, err := te.Store(ctx, "owner-1", "remember to water the plants", publicContext("g1", "general"))
	require.NoError(t, err)

	r := te.get(t, id)
	require.NotNil(t, r)
	assert.Equal(t, "owner-1", r.OwnerID)
	assert.Equal(t, types.SecurityPublicChannel, r.SecurityLevel)
	assert.Equal(t, "server:g1", r.ScopeKey)
	assert.True(t, r.Vectors.Complete())
	assert.True(t, r.Tier.IsValid())
	assert.Equal(t, te.clock, r.CreatedAt)
	assert.Equal(t, te.clock, r.TierUpdatedAt)
	assert.NotEmpty(t, r.Tags.Semantic)
	assert.InDelta(t, 1.0, r.Factors.TemporalImportance, 1e-9)
}

func TestStoreRejectsEmptyInput(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.Store(context.Background(), "", "text", dmContext("dm-1"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	_, err = te.Store(context.Background(), "owner-1", "   ", dmContext("dm-1"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStoreIsAtomicWhenOneDimensionFails(t *testing.T) {
	te := newTestEngine(t)
	te.embedder.Hook = func(text string) (time.Duration, error) {
		if strings.HasPrefix(text, "relationship ") {
			return 0, errors.New("model unavailable")
		}
		return 0, nil
	}

	_, err := te.Store(context.Background(), "owner-1", "we met at the harbor", dmContext("dm-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrEmbedding)

	n, err := te.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "no partial record may persist")
}

func TestCoralReefMemorySurvivesSweeps(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	id, err := te.Store(ctx, "owner-1", "I finally dove the coral reef I dreamed about since childhood",
		dmContext("dm-1"),
		WithEmotion(types.EmotionResult{PrimaryEmotion: "joy", Confidence: 0.9, Intensity: 0.85}))
	require.NoError(t, err)

	r := te.get(t, id)
	require.NotNil(t, r)
	assert.Equal(t, types.TierLong, r.Tier)

	for i := 0; i < 10; i++ {
		te.advance(120 * day)
		_, err := te.Sweep(ctx)
		require.NoError(t, err)

		r := te.get(t, id)
		require.NotNil(t, r, "sweep %d evicted the memory", i+1)
		assert.Equal(t, types.TierLong, r.Tier, "sweep %d", i+1)
	}
}

func TestHardFloorIgnoresCallerSuppliedIntensity(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	id, err := te.Store(ctx, "owner-1", "the day my daughter was born",
		dmContext("dm-1"),
		WithEmotion(types.EmotionResult{PrimaryEmotion: "joy", Confidence: 0.9, Intensity: 0.85}),
		WithFactors(types.SignificanceFactors{PersonalRelevance: 0.1}))
	require.NoError(t, err)

	r := te.get(t, id)
	require.NotNil(t, r)
	assert.Equal(t, types.TierLong, r.Tier)
	assert.InDelta(t, 0.85, r.Factors.EmotionalIntensity, 1e-9)
	assert.InDelta(t, 0.1, r.Factors.PersonalRelevance, 1e-9)

	for i := 0; i < 10; i++ {
		te.advance(30 * day)
		_, err := te.Sweep(ctx)
		require.NoError(t, err)

		r := te.get(t, id)
		require.NotNil(t, r, "sweep %d evicted the memory", i+1)
		assert.Equal(t, types.TierLong, r.Tier, "sweep %d", i+1)
	}
}

func TestEscapedChannelIDsDoNotShareScope(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	text := "my secret diagnosis"

	id, err := te.Store(ctx, "owner-1", text, types.RawContext{Platform: "api", ChannelID: "a:b"})
	require.NoError(t, err)

	for _, channel := range []string{"a%3Ab", "a%253Ab", "a+b", "a b"} {
		results, err := te.Query(ctx, "owner-1", text, types.RawContext{Platform: "api", ChannelID: channel}, 10)
		require.NoError(t, err)
		assert.Empty(t, results, "channel %q", channel)
	}

	results, err := te.Query(ctx, "owner-1", text, types.RawContext{Platform: "api", ChannelID: "a:b"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Record.ID)
}

func TestUnidentifiedContextsAreUnreadable(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	text := "the password hint is my first dog"
	noChannel := types.RawContext{Platform: "discord", ChannelType: "text", ServerID: "s1"}

	first, err := te.Store(ctx, "owner-1", text, noChannel)
	require.NoError(t, err)
	second, err := te.Store(ctx, "owner-1", text, types.RawContext{Platform: "telegram"})
	require.NoError(t, err)

	a, b := te.get(t, first), te.get(t, second)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, types.SecurityPrivateDM, a.SecurityLevel)
	assert.True(t, strings.HasPrefix(a.ScopeKey, "dm:unclassified"), a.ScopeKey)
	assert.NotEqual(t, a.ScopeKey, b.ScopeKey, "each unidentified write is sealed on its own")

	for _, caller := range []types.RawContext{
		noChannel,
		{Platform: "telegram"},
		{Platform: "api"},
		{Platform: "api", ChannelID: a.ChannelID},
	} {
		results, err := te.Query(ctx, "owner-1", text, caller, 10)
		require.NoError(t, err)
		assert.Empty(t, results, "caller %+v", caller)
	}
}

func TestCrossServerSafeOnlyMarksWrites(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	text := "the reef cleanup is on sunday"

	local, err := te.Store(ctx, "owner-1", text, publicContext("g1", "general"))
	require.NoError(t, err)
	shared := publicContext("g1", "general")
	shared.CrossServerSafe = true
	global, err := te.Store(ctx, "owner-1", text, shared)
	require.NoError(t, err)
	require.Equal(t, types.SecurityCrossServer, te.get(t, global).SecurityLevel)

	results, err := te.Query(ctx, "owner-1", text, shared, 10)
	require.NoError(t, err)
	var ids []string
	for _, r := range results {
		ids = append(ids, r.Record.ID)
	}
	assert.ElementsMatch(t, []string{local, global}, ids)

	results, err = te.Query(ctx, "owner-1", text, publicContext("g2", "general"), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, global, results[0].Record.ID)
}

func TestOceanConservationPublicQueryNeverReturnsDM(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	dmID, err := te.Store(ctx, "owner-1", "my private ocean conservation donation plans", dmContext("dm-1"))
	require.NoError(t, err)
	pubID, err := te.Store(ctx, "owner-1", "ocean conservation meetup this saturday", publicContext("g1", "general"))
	require.NoError(t, err)

	results, err := te.Query(ctx, "owner-1", "ocean conservation", publicContext("g1", "general"), 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, dmID, r.Record.ID)
		assert.NotEqual(t, types.SecurityPrivateDM, r.Record.SecurityLevel)
	}
	assert.Equal(t, pubID, results[0].Record.ID)

	// Another server sees neither.
	results, err = te.Query(ctx, "owner-1", "ocean conservation", publicContext("g2", "general"), 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// The DM itself sees its own record but not the public one.
	results, err = te.Query(ctx, "owner-1", "ocean conservation", dmContext("dm-1"), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, dmID, results[0].Record.ID)

	// Another DM channel sees nothing.
	results, err = te.Query(ctx, "owner-1", "ocean conservation", dmContext("dm-2"), 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryIsScopedToOwner(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, err := te.Store(ctx, "owner-1", "the lighthouse at dawn", publicContext("g1", "general"))
	require.NoError(t, err)

	results, err := te.Query(ctx, "owner-2", "the lighthouse at dawn", publicContext("g1", "general"), 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuerySemanticTimeoutDropsDimension(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.EmbedTimeout = 50 * time.Millisecond })
	ctx := context.Background()

	_, err := te.Store(ctx, "owner-1", "hiking the ridge trail with my sister", publicContext("g1", "general"))
	require.NoError(t, err)

	te.embedder.Hook = func(text string) (time.Duration, error) {
		if strings.HasPrefix(text, "concept ") {
			return 5 * time.Second, nil
		}
		return 0, nil
	}

	res, debug, err := te.DebugQuery(ctx, "owner-1", "hiking the ridge trail", publicContext("g1", "general"), 5)
	require.NoError(t, err)
	require.NotEmpty(t, res.Records)

	assert.Contains(t, res.Dropped, types.DimensionSemantic)
	assert.Len(t, res.Weights, 5)
	assert.NotContains(t, res.Weights, types.DimensionSemantic)
	sum := 0.0
	for _, w := range res.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	assert.Contains(t, debug.Dropped, types.DimensionSemantic)
	assert.Equal(t, res.Records[0].Record.ID, debug.Returned[0])
}

func TestQueryFailsWhenContentEmbeddingFails(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	_, err := te.Store(ctx, "owner-1", "a note", dmContext("dm-1"))
	require.NoError(t, err)

	te.embedder.Hook = func(text string) (time.Duration, error) {
		if text == "a note" {
			return 0, errors.New("boom")
		}
		return 0, nil
	}
	_, err = te.Query(ctx, "owner-1", "a note", dmContext("dm-1"), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrContentEmbedding)
}

func TestQueryRanksExactMatchFirstAndBumpsAccess(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, err := te.Store(ctx, "owner-1", "baking sourdough bread on sunday", dmContext("dm-1"))
	require.NoError(t, err)
	want, err := te.Store(ctx, "owner-1", "planting tomatoes in the garden", dmContext("dm-1"))
	require.NoError(t, err)

	te.advance(time.Hour)
	results, err := te.Query(ctx, "owner-1", "planting tomatoes in the garden", dmContext("dm-1"), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, want, results[0].Record.ID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Contains(t, results[0].Dimensions, types.DimensionContent)

	r := te.get(t, want)
	require.NotNil(t, r)
	assert.Equal(t, te.clock, r.LastAccessedAt)
}

func TestQueryWithCustomWeights(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	_, err := te.Store(ctx, "owner-1", "learning to play the cello", dmContext("dm-1"))
	require.NoError(t, err)

	_, err = te.Query(ctx, "owner-1", "cello", dmContext("dm-1"), 5,
		WithWeights(map[types.Dimension]float64{types.DimensionEmotion: 1}))
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "content weight is required")

	res, _, err := te.DebugQuery(ctx, "owner-1", "cello", dmContext("dm-1"), 5,
		WithWeights(map[types.Dimension]float64{types.DimensionContent: 3, types.DimensionEmotion: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, res.Weights[types.DimensionContent], 1e-9)
	assert.InDelta(t, 0.25, res.Weights[types.DimensionEmotion], 1e-9)
}

func TestDeleteEmitsEvictedEvent(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	var mu sync.Mutex
	var events []Event
	te.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	id, err := te.Store(ctx, "owner-1", "a fleeting thought", dmContext("dm-1"))
	require.NoError(t, err)

	assert.ErrorIs(t, te.Delete(ctx, "owner-2", id), storage.ErrNotFound)
	require.NoError(t, te.Delete(ctx, "owner-1", id))
	assert.Nil(t, te.get(t, id))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventStored, events[0].Type)
	assert.Equal(t, EventEvicted, events[1].Type)
	assert.Equal(t, id, events[1].MemoryID)
}

func TestSweepRejectsConcurrentRun(t *testing.T) {
	te := newTestEngine(t)
	te.sweepMu.Lock()
	_, err := te.Sweep(context.Background())
	te.sweepMu.Unlock()
	assert.ErrorIs(t, err, ErrSweepInProgress)
}

func TestEngineLifecycle(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.SweepInterval = 10 * time.Millisecond
		c.SweepOnStart = true
	})
	ctx := context.Background()

	require.NoError(t, te.Start(ctx))
	assert.ErrorIs(t, te.Start(ctx), ErrAlreadyStarted)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, te.Shutdown(shutdownCtx))
	assert.ErrorIs(t, te.Shutdown(shutdownCtx), ErrNotStarted)
}

func TestHealthReportsStore(t *testing.T) {
	te := newTestEngine(t)
	status := te.Health(context.Background())
	assert.Equal(t, "ok", status["store"])
	assert.Equal(t, "ok", status["embedder"])
}

func TestEffectiveWeightsAlwaysSumToOne(t *testing.T) {
	weights := map[types.Dimension]float64{
		types.DimensionContent:      0.25,
		types.DimensionEmotion:      0.20,
		types.DimensionPersonality:  0.20,
		types.DimensionRelationship: 0.15,
		types.DimensionSituational:  0.15,
		types.DimensionSemantic:     0.05,
	}
	all := types.AllDimensions
	for mask := 1; mask < 1<<len(all); mask++ {
		var subset []types.Dimension
		for i, dim := range all {
			if mask&(1<<i) != 0 {
				subset = append(subset, dim)
			}
		}
		got := EffectiveWeights(weights, subset)
		sum := 0.0
		for _, w := range got {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "subset %v", subset)
		assert.Len(t, got, len(subset))

		// Relative proportions are preserved.
		for _, a := range subset {
			for _, b := range subset {
				assert.InDelta(t, weights[a]/weights[b], got[a]/got[b], 1e-9)
			}
		}
	}

	assert.Empty(t, EffectiveWeights(map[types.Dimension]float64{types.DimensionEmotion: 0}, []types.Dimension{types.DimensionEmotion}))
	assert.False(t, math.IsNaN(EffectiveWeights(weights, nil)[types.DimensionContent]))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero pool", func(c *Config) { c.PoolSize = 0 }, false},
		{"no embed timeout", func(c *Config) { c.EmbedTimeout = 0 }, false},
		{"no search timeout", func(c *Config) { c.SearchTimeout = 0 }, false},
		{"ticker disabled", func(c *Config) { c.SweepInterval = 0 }, true},
		{"negative interval", func(c *Config) { c.SweepInterval = -time.Second }, false},
		{"zero batch", func(c *Config) { c.SweepBatchSize = 0 }, false},
		{"limit order", func(c *Config) { c.MaxLimit = 5; c.DefaultLimit = 10 }, false},
		{"zero multiplier", func(c *Config) { c.CandidateMultiplier = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			if tt.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}
