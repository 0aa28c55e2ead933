package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// resistanceThreshold is the minimum change required to write back a new
// decay resistance on a record whose tier did not move.
const resistanceThreshold = 0.001

// Action is the outcome of aging one record.
type Action string

const (
	ActionKeep    Action = "keep"
	ActionRefresh Action = "refresh" // resistance changed, tier did not
	ActionPromote Action = "promote"
	ActionDemote  Action = "demote"
	ActionEvict   Action = "evict"
)

// Decision is what one sweep does to one record.
type Decision struct {
	Action     Action
	Tier       types.Tier
	Resistance float64
	Reason     string
}

// SweepResult summarizes one aging pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Promoted  int `json:"promoted"`
	Demoted   int `json:"demoted"`
	Evicted   int `json:"evicted"`
	Refreshed int `json:"refreshed"`

	// Stale counts records accessed or deleted between read and write;
	// they are left for the next sweep.
	Stale int `json:"stale"`

	// Failed counts records whose update hit a store error.
	Failed int `json:"failed"`
}

// DecayManager ages stored records through the retention tiers.
//
// A record is promoted one tier when it has spent the promotion delay in its
// tier and meets either promotion threshold. Otherwise, once its age since
// last access or tier change exceeds the tier's retention window and its
// decay resistance is below the tier's minimum, it moves down one tier, or
// is evicted from SHORT_TERM. Intensity at or above the eviction exemption
// keeps a record from being evicted; intensity at the long-term override
// keeps it in LONG_TERM.
type DecayManager struct {
	store     storage.VectorStore
	scorer    *SignificanceScorer
	retention map[types.Tier]config.RetentionRule
	promotion map[types.Tier]config.PromotionRule
	batchSize int
	emit      func(Event)
}

// NewDecayManager returns a DecayManager reading and writing store. emit
// receives one event per tier change or eviction and may be nil.
func NewDecayManager(store storage.VectorStore, p *config.Policy, batchSize int, emit func(Event)) *DecayManager {
	if batchSize < 1 {
		batchSize = DefaultConfig().SweepBatchSize
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &DecayManager{
		store:     store,
		scorer:    NewSignificanceScorer(p),
		retention: p.Decay.Retention,
		promotion: p.Decay.Promotion,
		batchSize: batchSize,
		emit:      emit,
	}
}

// Decide computes the aging decision for r at now without touching the store.
func (d *DecayManager) Decide(r *types.MemoryRecord, now time.Time) Decision {
	intensity := r.EmotionalIntensity
	resistance := d.scorer.DecayResistance(r.Significance, intensity, r.Factors.Uniqueness)
	keep := Decision{Action: ActionKeep, Tier: r.Tier, Resistance: resistance}
	if math.Abs(resistance-r.DecayResistance) > resistanceThreshold {
		keep.Action = ActionRefresh
	}

	if rule, ok := d.promotion[r.Tier]; ok && r.Tier != types.TierLong {
		inTier := now.Sub(tierSince(r))
		if inTier >= rule.After && (r.Significance >= rule.MinSignificance || intensity >= rule.MinIntensity) {
			return Decision{
				Action:     ActionPromote,
				Tier:       d.scorer.Promote(r.Tier, r.Tier.Up()),
				Resistance: resistance,
				Reason:     fmt.Sprintf("in %s for %s", r.Tier, inTier.Round(time.Minute)),
			}
		}
	}

	rule, ok := d.retention[r.Tier]
	if !ok {
		return keep
	}
	age := now.Sub(r.RetentionAnchor())
	if age <= rule.Window || resistance >= rule.MinResistance {
		return keep
	}

	reason := fmt.Sprintf("idle %s, resistance %.3f below %.3f", age.Round(time.Minute), resistance, rule.MinResistance)
	switch {
	case r.Tier == types.TierLong && d.scorer.HardFloor(intensity):
		return keep
	case r.Tier == types.TierShort && d.scorer.EvictionExempt(intensity):
		return keep
	case r.Tier == types.TierShort:
		return Decision{Action: ActionEvict, Tier: r.Tier, Resistance: resistance, Reason: reason}
	default:
		return Decision{Action: ActionDemote, Tier: r.Tier.Down(), Resistance: resistance, Reason: reason}
	}
}

// tierSince returns when r entered its current tier.
func tierSince(r *types.MemoryRecord) time.Time {
	if r.TierUpdatedAt.After(r.CreatedAt) {
		return r.TierUpdatedAt
	}
	return r.CreatedAt
}

// Sweep pages through every stored record and applies its decision. Each
// record is updated atomically on its own; a record accessed while the sweep
// runs is skipped. The sweep stops early only when ctx ends.
func (d *DecayManager) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := d.store.ListForSweep(ctx, after, d.batchSize)
		if err != nil {
			return res, fmt.Errorf("engine: sweep list after %q: %w", after, err)
		}
		for _, r := range page {
			res.Scanned++
			d.apply(ctx, r, now, &res)
		}
		if len(page) < d.batchSize {
			break
		}
		after = page[len(page)-1].ID
	}
	if res.Promoted+res.Demoted+res.Evicted+res.Failed > 0 {
		log.Printf("engine: sweep scanned %d, promoted %d, demoted %d, evicted %d, stale %d, failed %d",
			res.Scanned, res.Promoted, res.Demoted, res.Evicted, res.Stale, res.Failed)
	}
	return res, nil
}

func (d *DecayManager) apply(ctx context.Context, r *types.MemoryRecord, now time.Time, res *SweepResult) {
	dec := d.Decide(r, now)
	if dec.Action == ActionKeep {
		return
	}

	u := storage.SweepUpdate{
		ID:              r.ID,
		Evict:           dec.Action == ActionEvict,
		Tier:            dec.Tier,
		DecayResistance: dec.Resistance,
		TierUpdatedAt:   r.TierUpdatedAt,
		SweptAt:         now,
		SeenAccessedAt:  r.LastAccessedAt,
	}
	if dec.Tier != r.Tier {
		u.TierUpdatedAt = now
	}

	if err := d.store.ApplySweep(ctx, u); err != nil {
		if errors.Is(err, storage.ErrStale) || errors.Is(err, storage.ErrNotFound) {
			res.Stale++
			return
		}
		log.Printf("engine: sweep %s on %s failed: %v", dec.Action, r.ID, err)
		res.Failed++
		return
	}

	ev := Event{MemoryID: r.ID, OwnerID: r.OwnerID, Tier: dec.Tier, Reason: dec.Reason, At: now}
	switch dec.Action {
	case ActionPromote:
		res.Promoted++
		ev.Type = EventPromoted
	case ActionDemote:
		res.Demoted++
		ev.Type = EventDemoted
	case ActionEvict:
		res.Evicted++
		ev.Type = EventEvicted
	default:
		res.Refreshed++
		return
	}
	d.emit(ev)
}
