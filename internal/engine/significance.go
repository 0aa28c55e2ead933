package engine

import (
	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// SignificanceScorer turns significance factors into a score, a retention
// tier and a decay resistance. It is stateless apart from its policy.
type SignificanceScorer struct {
	weights types.SignificanceFactors
	tiers   config.TierThresholds
	decay   config.DecayPolicy
}

// NewSignificanceScorer returns a scorer using p's significance weights,
// tier thresholds and decay constants.
func NewSignificanceScorer(p *config.Policy) *SignificanceScorer {
	return &SignificanceScorer{
		weights: p.SignificanceWeights,
		tiers:   p.Tiers,
		decay:   p.Decay,
	}
}

// Score returns the weighted sum of the clamped factors, clamped to [0,1].
func (s *SignificanceScorer) Score(f types.SignificanceFactors) float64 {
	f = f.Clamp()
	w := s.weights
	sum := f.EmotionalIntensity*w.EmotionalIntensity +
		f.PersonalRelevance*w.PersonalRelevance +
		f.Uniqueness*w.Uniqueness +
		f.TemporalImportance*w.TemporalImportance +
		f.InteractionValue*w.InteractionValue +
		f.PatternSignificance*w.PatternSignificance
	return types.Clamp01(sum)
}

// TierFor assigns the write-time tier. Intensity at or above the long-term
// threshold always yields LONG_TERM regardless of significance.
func (s *SignificanceScorer) TierFor(significance, intensity float64) types.Tier {
	switch {
	case intensity >= s.tiers.LongTermIntensity:
		return types.TierLong
	case significance >= s.tiers.LongTermSignificance:
		return types.TierLong
	case significance >= s.tiers.MediumTermSignificance || intensity >= s.tiers.MediumTermIntensity:
		return types.TierMedium
	default:
		return types.TierShort
	}
}

// DecayResistance returns significance boosted by intensity and uniqueness,
// clamped to [0,1].
func (s *SignificanceScorer) DecayResistance(significance, intensity, uniqueness float64) float64 {
	return types.Clamp01(significance +
		types.Clamp01(intensity)*s.decay.IntensityBoost +
		types.Clamp01(uniqueness)*s.decay.UniquenessBoost)
}

// Promote returns the higher of the two tiers; it never lowers current.
func (s *SignificanceScorer) Promote(current, candidate types.Tier) types.Tier {
	return types.MaxTier(current, candidate)
}

// HardFloor reports whether a record of this intensity may never leave
// LONG_TERM.
func (s *SignificanceScorer) HardFloor(intensity float64) bool {
	return intensity >= s.tiers.LongTermIntensity
}

// EvictionExempt reports whether a record of this intensity may never be
// evicted.
func (s *SignificanceScorer) EvictionExempt(intensity float64) bool {
	return intensity >= s.decay.EvictionExemptIntensity
}
