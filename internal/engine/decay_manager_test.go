package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

func TestSweepDemotesOneStepAndIsIdempotent(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seed(t, agedRecord("m-medium", types.TierMedium, 0.1, 0.1, 30*day))

	res, err := te.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Demoted)
	assert.Zero(t, res.Evicted, "demotion and eviction never happen in one sweep")

	r := te.get(t, "m-medium")
	require.NotNil(t, r)
	assert.Equal(t, types.TierShort, r.Tier)
	assert.Equal(t, te.clock, r.TierUpdatedAt)
	require.NotNil(t, r.LastSweepAt)

	// Same instant, no access: nothing changes.
	res, err = te.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1}, res)
	again := te.get(t, "m-medium")
	require.NotNil(t, again)
	assert.Equal(t, r.Tier, again.Tier)
	assert.Equal(t, r.TierUpdatedAt, again.TierUpdatedAt)

	// Once the short-term window has passed as well, it is evicted.
	te.advance(8 * day)
	res, err = te.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evicted)
	assert.Nil(t, te.get(t, "m-medium"))
}

func TestSweepTransitionsAreSingleSteps(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seed(t, agedRecord("m-long", types.TierLong, 0.1, 0.3, 400*day))

	prev := types.TierLong
	for i := 0; i < 4; i++ {
		te.advance(400 * day)
		_, err := te.Sweep(ctx)
		require.NoError(t, err)
		r := te.get(t, "m-long")
		if r == nil {
			assert.Equal(t, types.TierShort, prev, "only short-term records are evicted")
			return
		}
		assert.True(t, types.IsValidTierTransition(prev, r.Tier), "%s -> %s", prev, r.Tier)
		assert.NotEqual(t, prev, r.Tier)
		prev = r.Tier
	}
	t.Fatal("record was never evicted")
}

func TestSweepHardFloorAndExemption(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.seed(t, agedRecord("long-intense", types.TierLong, 0.1, 0.85, 365*day))
	te.seed(t, agedRecord("long-mild", types.TierLong, 0.1, 0.5, 365*day))
	te.seed(t, agedRecord("short-exempt", types.TierShort, 0.05, 0.75, 365*day))
	te.seed(t, agedRecord("short-plain", types.TierShort, 0.05, 0.1, 365*day))

	// Exempt intensity also qualifies short-term records for promotion, so
	// promotion is switched off to observe the exemption alone.
	policy := config.DefaultPolicy()
	policy.Decay.Promotion = nil
	d := NewDecayManager(te.store, policy, 10, nil)

	res, err := d.Sweep(ctx, te.clock)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Scanned)

	r := te.get(t, "long-intense")
	require.NotNil(t, r)
	assert.Equal(t, types.TierLong, r.Tier, "intensity at the long-term override never leaves long-term")

	r = te.get(t, "long-mild")
	require.NotNil(t, r)
	assert.Equal(t, types.TierMedium, r.Tier)

	r = te.get(t, "short-exempt")
	require.NotNil(t, r, "exempt records are never evicted")
	assert.Equal(t, types.TierShort, r.Tier)

	assert.Nil(t, te.get(t, "short-plain"))
}

func TestSweepKeepsRecentlyAccessedAndResistantRecords(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	fresh := agedRecord("fresh", types.TierShort, 0.05, 0.1, 30*day)
	fresh.LastAccessedAt = te.clock.Add(-time.Hour)
	te.seed(t, fresh)
	te.seed(t, agedRecord("resistant", types.TierShort, 0.4, 0.1, 30*day))

	res, err := te.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Evicted)
	assert.NotNil(t, te.get(t, "fresh"))
	assert.NotNil(t, te.get(t, "resistant"))
}

func TestSweepPromotes(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	r := agedRecord("promising", types.TierShort, 0.65, 0.3, 4*day)
	r.LastAccessedAt = te.clock.Add(-time.Hour)
	te.seed(t, r)
	young := agedRecord("young", types.TierShort, 0.65, 0.3, 2*day)
	te.seed(t, young)

	res, err := te.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)

	got := te.get(t, "promising")
	require.NotNil(t, got)
	assert.Equal(t, types.TierMedium, got.Tier)
	assert.Equal(t, te.clock, got.TierUpdatedAt)
	assert.Equal(t, types.TierShort, te.get(t, "young").Tier)

	// The promotion clock restarted, so a repeat sweep does nothing.
	res, err = te.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Promoted)
}

func TestDecidePrefersPromotionOverDemotion(t *testing.T) {
	d := NewDecayManager(nil, config.DefaultPolicy(), 10, nil)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Idle past the short window with low resistance, but intense enough
	// to be promoted.
	r := agedRecord("both", types.TierShort, 0.0, 0.72, 0)
	r.CreatedAt = now.Add(-10 * day)
	r.LastAccessedAt = r.CreatedAt
	r.TierUpdatedAt = r.CreatedAt
	r.Factors.Uniqueness = 0

	dec := d.Decide(r, now)
	assert.Equal(t, ActionPromote, dec.Action)
	assert.Equal(t, types.TierMedium, dec.Tier)
}

func TestDecideRefreshesStaleResistance(t *testing.T) {
	d := NewDecayManager(nil, config.DefaultPolicy(), 10, nil)
	r := agedRecord("r", types.TierMedium, 0.5, 0.2, time.Hour)
	r.DecayResistance = 0.1

	dec := d.Decide(r, r.CreatedAt.Add(2*time.Hour))
	assert.Equal(t, ActionRefresh, dec.Action)
	assert.Equal(t, types.TierMedium, dec.Tier)
	assert.InDelta(t, 0.5+0.2*0.2+0.1*0.15, dec.Resistance, 1e-9)
}

// staleStore refuses every sweep update as if each record had just been read.
type staleStore struct {
	storage.VectorStore
}

func (staleStore) ApplySweep(context.Context, storage.SweepUpdate) error {
	return storage.ErrStale
}

func TestSweepSkipsStaleRecords(t *testing.T) {
	te := newTestEngine(t)
	te.seed(t, agedRecord("old", types.TierShort, 0.05, 0.1, 30*day))

	var events []Event
	d := NewDecayManager(staleStore{te.store}, config.DefaultPolicy(), 1, func(ev Event) { events = append(events, ev) })
	res, err := d.Sweep(context.Background(), te.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stale)
	assert.Zero(t, res.Evicted)
	assert.Empty(t, events)
	assert.NotNil(t, te.get(t, "old"))
}

func TestSweepPagesThroughAllRecords(t *testing.T) {
	te := newTestEngine(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		te.seed(t, agedRecord(id, types.TierShort, 0.05, 0.1, 30*day))
	}

	var events []Event
	d := NewDecayManager(te.store, config.DefaultPolicy(), 2, func(ev Event) { events = append(events, ev) })
	res, err := d.Sweep(context.Background(), te.clock)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 5, res.Evicted)
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, EventEvicted, ev.Type)
		assert.Equal(t, "owner-1", ev.OwnerID)
	}
}

func TestSweepStopsOnCanceledContext(t *testing.T) {
	te := newTestEngine(t)
	te.seed(t, agedRecord("x", types.TierShort, 0.05, 0.1, 30*day))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := te.decay.Sweep(ctx, te.clock)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, te.get(t, "x"))
}
