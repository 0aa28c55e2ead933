package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

func TestSignificanceScore(t *testing.T) {
	s := NewSignificanceScorer(config.DefaultPolicy())

	all := types.SignificanceFactors{
		EmotionalIntensity: 1, PersonalRelevance: 1, Uniqueness: 1,
		TemporalImportance: 1, InteractionValue: 1, PatternSignificance: 1,
	}
	assert.InDelta(t, 1.0, s.Score(all), 1e-9)
	assert.InDelta(t, 0.0, s.Score(types.SignificanceFactors{}), 1e-9)
	assert.InDelta(t, 0.25, s.Score(types.SignificanceFactors{EmotionalIntensity: 1}), 1e-9)
	assert.InDelta(t, 0.25, s.Score(types.SignificanceFactors{EmotionalIntensity: 7}), 1e-9, "factors are clamped")
	assert.InDelta(t, 0.0, s.Score(types.SignificanceFactors{Uniqueness: -3}), 1e-9)
}

func TestTierFor(t *testing.T) {
	s := NewSignificanceScorer(config.DefaultPolicy())
	tests := []struct {
		significance, intensity float64
		want                    types.Tier
	}{
		{0.0, 0.85, types.TierLong},
		{0.1, 0.80, types.TierLong},
		{0.75, 0.0, types.TierLong},
		{0.74, 0.79, types.TierMedium},
		{0.45, 0.0, types.TierMedium},
		{0.0, 0.5, types.TierMedium},
		{0.44, 0.49, types.TierShort},
		{0.0, 0.0, types.TierShort},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.TierFor(tt.significance, tt.intensity), "sig=%.2f int=%.2f", tt.significance, tt.intensity)
	}
}

func TestDecayResistance(t *testing.T) {
	s := NewSignificanceScorer(config.DefaultPolicy())
	assert.InDelta(t, 0.5+0.2*0.5+0.15*0.4, s.DecayResistance(0.5, 0.5, 0.4), 1e-9)
	assert.InDelta(t, 1.0, s.DecayResistance(0.9, 1, 1), 1e-9)
	assert.InDelta(t, 0.0, s.DecayResistance(0, 0, 0), 1e-9)
}

func TestPromoteNeverLowers(t *testing.T) {
	s := NewSignificanceScorer(config.DefaultPolicy())
	for _, current := range types.ValidTiers {
		for _, candidate := range types.ValidTiers {
			got := s.Promote(current, candidate)
			assert.GreaterOrEqual(t, got.Rank(), current.Rank())
			assert.GreaterOrEqual(t, got.Rank(), candidate.Rank())
		}
	}
}

func TestEstimateFactors(t *testing.T) {
	f := EstimateFactors("I love my garden", 0.4, nil)
	assert.InDelta(t, 0.4, f.EmotionalIntensity, 1e-9)
	assert.InDelta(t, 0.5, f.PersonalRelevance, 1e-9)
	assert.InDelta(t, 1.0, f.Uniqueness, 1e-9)
	assert.InDelta(t, 1.0, f.TemporalImportance, 1e-9)
	assert.InDelta(t, 0.5, f.PatternSignificance, 1e-9)
	assert.InDelta(t, 0.6, f.InteractionValue, 1e-9, "two personal pronouns")

	history := []string{"the garden needs water", "my garden is blooming", "garden party tomorrow"}
	f = EstimateFactors("I love my garden", 0.4, history)
	assert.InDelta(t, 3.0/5.0, f.PersonalRelevance, 1e-9)
	assert.Less(t, f.Uniqueness, 1.0)

	f = EstimateFactors("quantum chromodynamics", 0, history)
	assert.InDelta(t, 0.3, f.PersonalRelevance, 1e-9)

	same := []string{"exactly the same words", "exactly the same words"}
	f = EstimateFactors("exactly the same words", 0, same)
	assert.InDelta(t, 0.1, f.Uniqueness, 1e-9)
}

func TestInteractionValue(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"the weather report", 0.5},
		{"what should we build next?", 0.75},
		{"hello?", 0.3},
		{"how are you?", 0.35},
		{"do you know the answer?", 0.75},
		{"i me my myself you your", 0.7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, interactionValue(tt.text), 1e-9, tt.text)
	}
}
