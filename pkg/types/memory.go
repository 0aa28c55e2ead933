package types

import "time"

// MemoryRecord is one stored conversational turn together with its six
// named embeddings and the lifecycle metadata the engine maintains for it.
//
// ID, OwnerID and CreatedAt never change after the first write. Content is
// never edited; corrections are stored as new records.
type MemoryRecord struct {
	// Identity
	ID        string    `json:"id"`         // UUID v4
	OwnerID   string    `json:"owner_id"`   // User that owns the memory
	CreatedAt time.Time `json:"created_at"` // First storage time

	// Payload
	Content string        `json:"content"`           // Original message text
	Vectors Vectors       `json:"vectors,omitempty"` // Exactly six named vectors once written
	Tags    DimensionTags `json:"tags"`              // Tags used to build the tagged embeddings

	// Emotion metadata
	PrimaryEmotion     string   `json:"primary_emotion"`
	EmotionConfidence  float64  `json:"emotion_confidence"`           // Classifier certainty [0,1]
	EmotionalIntensity float64  `json:"emotional_intensity"`          // Magnitude [0,1]
	SecondaryEmotions  []string `json:"secondary_emotions,omitempty"` // Ordered, at most three

	// Lifecycle
	Tier            Tier                `json:"tier"`
	Significance    float64             `json:"significance"`
	DecayResistance float64             `json:"decay_resistance"`
	Factors         SignificanceFactors `json:"factors"`
	LastAccessedAt  time.Time           `json:"last_accessed_at"`
	TierUpdatedAt   time.Time           `json:"tier_updated_at"`         // Restarts the retention clock
	LastSweepAt     *time.Time          `json:"last_sweep_at,omitempty"` // Last aging pass that looked at the record

	// Context (fixed at write time)
	ContextType   ContextType   `json:"context_type"`
	SecurityLevel SecurityLevel `json:"security_level"`
	ServerID      string        `json:"server_id,omitempty"`
	ChannelID     string        `json:"channel_id"`
	IsPrivate     bool          `json:"is_private"`
	ScopeKey      string        `json:"scope_key"` // Storage partition derived from the context
}

// RetentionAnchor returns the time from which a record's age is measured by
// the aging policy: the latest of its last access and its last tier change.
func (r *MemoryRecord) RetentionAnchor() time.Time {
	anchor := r.CreatedAt
	if r.LastAccessedAt.After(anchor) {
		anchor = r.LastAccessedAt
	}
	if r.TierUpdatedAt.After(anchor) {
		anchor = r.TierUpdatedAt
	}
	return anchor
}

// SignificanceFactors are the normalized [0,1] inputs to the significance
// score. Only EmotionalIntensity is interpreted by the engine; the others are
// opaque signals supplied by the caller or estimated at write time.
type SignificanceFactors struct {
	EmotionalIntensity  float64 `json:"emotional_intensity" yaml:"emotional_intensity"`
	PersonalRelevance   float64 `json:"personal_relevance" yaml:"personal_relevance"`
	Uniqueness          float64 `json:"uniqueness" yaml:"uniqueness"`
	TemporalImportance  float64 `json:"temporal_importance" yaml:"temporal_importance"`
	InteractionValue    float64 `json:"interaction_value" yaml:"interaction_value"`
	PatternSignificance float64 `json:"pattern_significance" yaml:"pattern_significance"`
}

// Clamp returns a copy with every factor bounded to [0,1].
func (f SignificanceFactors) Clamp() SignificanceFactors {
	return SignificanceFactors{
		EmotionalIntensity:  Clamp01(f.EmotionalIntensity),
		PersonalRelevance:   Clamp01(f.PersonalRelevance),
		Uniqueness:          Clamp01(f.Uniqueness),
		TemporalImportance:  Clamp01(f.TemporalImportance),
		InteractionValue:    Clamp01(f.InteractionValue),
		PatternSignificance: Clamp01(f.PatternSignificance),
	}
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
