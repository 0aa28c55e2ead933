package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding/embeddingtest"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/sqlite"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/storagetest"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// testEngine bundles an engine with its store, fake embedder and a
// settable clock.
type testEngine struct {
	*MemoryEngine
	store    storage.VectorStore
	embedder *embeddingtest.Fake
	clock    time.Time
}

func (te *testEngine) advance(d time.Duration) {
	te.clock = te.clock.Add(d)
}

// newTestEngine creates an engine over an in-memory SQLite store.
func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEngine {
	t.Helper()

	store, err := sqlite.NewVectorStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.SweepInterval = 0
	for _, m := range mutate {
		m(&cfg)
	}

	fake := embeddingtest.New(16)
	e, err := NewMemoryEngine(Dependencies{
		Store:    store,
		Embedder: fake,
		Policy:   config.DefaultPolicy(),
	}, cfg)
	require.NoError(t, err)

	te := &testEngine{MemoryEngine: e, store: store, embedder: fake, clock: storagetest.Base}
	e.now = func() time.Time { return te.clock }
	return te
}

// seed writes a record directly, bypassing classification and embedding.
func (te *testEngine) seed(t *testing.T, r *types.MemoryRecord) {
	t.Helper()
	require.NoError(t, te.store.Write(context.Background(), r))
}

// get reads a record back, or nil if it is gone.
func (te *testEngine) get(t *testing.T, id string) *types.MemoryRecord {
	t.Helper()
	r, err := te.store.Get(context.Background(), id)
	if err != nil {
		require.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}
	return r
}

// agedRecord builds a record in tier with the given significance and
// intensity whose last access lies idle before storagetest.Base.
func agedRecord(id string, tier types.Tier, significance, intensity float64, idle time.Duration) *types.MemoryRecord {
	r := storagetest.Record(id, "owner-1", types.SecurityPrivateDM, "", "dm-1", 0)
	at := storagetest.Base.Add(-idle)
	r.CreatedAt = at
	r.LastAccessedAt = at
	r.TierUpdatedAt = at
	r.Tier = tier
	r.Significance = significance
	r.EmotionalIntensity = intensity
	r.Factors = types.SignificanceFactors{EmotionalIntensity: intensity, Uniqueness: 0.1}
	r.DecayResistance = significance + intensity*0.2 + 0.1*0.15
	return r
}

func dmContext(channel string) types.RawContext {
	return types.RawContext{Platform: "discord", ChannelType: "dm", ChannelID: channel}
}

func publicContext(server, channel string) types.RawContext {
	everyone := true
	return types.RawContext{Platform: "discord", ChannelType: "text", ServerID: server, ChannelID: channel, EveryoneCanRead: &everyone}
}

const day = 24 * time.Hour
