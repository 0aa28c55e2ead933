// Package extract derives the short canonical tag strings that condition the
// five tagged embeddings of a memory record. Every function here is a pure
// mapping from text (plus caller-supplied conversation state) to tags; the
// keyword tables are data, loaded from YAML.
package extract

import (
	"sort"
	"strings"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// Fallback tags used when no pattern matches.
const (
	FallbackEmotion      = "neutral_calm"
	FallbackSemantic     = "general_conversation"
	FallbackSituational  = "mode_casual_chat_time_general"
	FallbackPersonality  = "traits_balanced"
	defaultIntimacy      = "casual"
	defaultTrust         = "neutral"
	defaultMode          = "casual_chat"
	defaultTime          = "general"
	maxPersonalityTraits = 2
)

// PriorContext is lightweight conversation state supplied by the caller.
type PriorContext struct {
	// Emotion is the cascade result for the same text. Nil yields the
	// neutral emotion tag.
	Emotion *types.EmotionResult

	// RelationshipDepth is the intimacy level already established with the
	// owner (one of the intimacy table names). A message never lowers it.
	RelationshipDepth string
}

// Extractor maps text to DimensionTags using a fixed set of pattern tables.
// It is safe for concurrent use.
type Extractor struct {
	patterns *Patterns
}

// New returns an Extractor over p.
func New(p *Patterns) *Extractor {
	return &Extractor{patterns: p}
}

// Patterns returns the tables the extractor was built with.
func (e *Extractor) Patterns() *Patterns {
	return e.patterns
}

// Extract derives all five tags for text. ownerID identifies whose
// conversation prior describes. The same inputs always produce the same tags
// and no tag is ever empty.
func (e *Extractor) Extract(text, ownerID string, prior PriorContext) types.DimensionTags {
	t := Prepare(text)
	return types.DimensionTags{
		Emotion:      EmotionTag(prior.Emotion),
		Semantic:     e.semanticTag(t),
		Relationship: e.relationshipTag(t, prior.RelationshipDepth),
		Situational:  e.situationalTag(t),
		Personality:  e.personalityTag(t),
	}
}

// EmotionTag renders a classifier result as "<emotion>_<qualifier>", where
// the qualifier buckets intensity.
func EmotionTag(res *types.EmotionResult) string {
	if res == nil || res.PrimaryEmotion == "" || res.PrimaryEmotion == "neutral" {
		return FallbackEmotion
	}
	name := strings.ReplaceAll(Normalize(res.PrimaryEmotion), " ", "_")
	if name == "" {
		return FallbackEmotion
	}
	return name + "_" + intensityQualifier(res.Intensity)
}

func intensityQualifier(intensity float64) string {
	switch {
	case intensity >= 0.8:
		return "intense"
	case intensity >= 0.6:
		return "strong"
	case intensity >= 0.3:
		return "moderate"
	default:
		return "calm"
	}
}

func (e *Extractor) semanticTag(t Text) string {
	if fact, ok := FirstMatch(e.patterns.Facts, t); ok {
		return fact
	}
	if topic, ok := FirstMatch(e.patterns.Topics, t); ok {
		return "topic_" + topic
	}
	return FallbackSemantic
}

func (e *Extractor) relationshipTag(t Text, priorDepth string) string {
	intimacy, ok := FirstMatch(e.patterns.Intimacy, t)
	if !ok {
		intimacy = defaultIntimacy
	}
	if priorDepth != "" {
		priorRank := rank(e.patterns.Intimacy, priorDepth)
		current := rank(e.patterns.Intimacy, intimacy)
		if current < 0 {
			current = len(e.patterns.Intimacy)
		}
		// Deeper levels come first in the table.
		if priorRank >= 0 && priorRank < current {
			intimacy = priorDepth
		}
	}

	trust, ok := FirstMatch(e.patterns.Trust, t)
	if !ok {
		trust = defaultTrust
	}
	return "intimacy_" + intimacy + "_trust_" + trust
}

func (e *Extractor) situationalTag(t Text) string {
	mode, ok := FirstMatch(e.patterns.Modes, t)
	if !ok {
		mode = defaultMode
	}
	when, ok := FirstMatch(e.patterns.Times, t)
	if !ok {
		when = defaultTime
	}
	return "mode_" + mode + "_time_" + when
}

func (e *Extractor) personalityTag(t Text) string {
	type hit struct {
		name  string
		order int
		count int
	}
	var hits []hit
	for i, c := range e.patterns.Traits {
		if n := c.Count(t); n > 0 {
			hits = append(hits, hit{c.Name, i, n})
		}
	}
	if len(hits) == 0 {
		return FallbackPersonality
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].order < hits[j].order
	})
	if len(hits) > maxPersonalityTraits {
		hits = hits[:maxPersonalityTraits]
	}
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.name
	}
	return "traits_" + strings.Join(names, "_")
}
