package types

import "sort"

// Dimension names one of the six independently embedded facets of a record.
type Dimension string

const (
	DimensionContent      Dimension = "content"
	DimensionEmotion      Dimension = "emotion"
	DimensionSemantic     Dimension = "semantic"
	DimensionRelationship Dimension = "relationship"
	DimensionSituational  Dimension = "situational"
	DimensionPersonality  Dimension = "personality"
)

// AllDimensions lists every dimension in storage column order.
var AllDimensions = []Dimension{
	DimensionContent,
	DimensionEmotion,
	DimensionSemantic,
	DimensionRelationship,
	DimensionSituational,
	DimensionPersonality,
}

// IsValid reports whether d is one of the six known dimensions.
func (d Dimension) IsValid() bool {
	for _, known := range AllDimensions {
		if d == known {
			return true
		}
	}
	return false
}

// Vectors maps each dimension to its embedding.
type Vectors map[Dimension][]float32

// Complete reports whether all six dimensions are present, non-empty and of
// equal length.
func (v Vectors) Complete() bool {
	width := -1
	for _, dim := range AllDimensions {
		vec := v[dim]
		if len(vec) == 0 {
			return false
		}
		if width == -1 {
			width = len(vec)
		} else if len(vec) != width {
			return false
		}
	}
	return true
}

// Missing returns the dimensions that have no vector, in AllDimensions order.
func (v Vectors) Missing() []Dimension {
	var missing []Dimension
	for _, dim := range AllDimensions {
		if len(v[dim]) == 0 {
			missing = append(missing, dim)
		}
	}
	return missing
}

// DimensionTags is the extractor output: one short canonical tag per tagged
// dimension. Content has no tag; its embedding uses the raw text.
type DimensionTags struct {
	Emotion      string `json:"emotion"`
	Semantic     string `json:"semantic"`
	Relationship string `json:"relationship"`
	Situational  string `json:"situational"`
	Personality  string `json:"personality"`
}

// For returns the tag for dim, or "" for the content dimension.
func (t DimensionTags) For(dim Dimension) string {
	switch dim {
	case DimensionEmotion:
		return t.Emotion
	case DimensionSemantic:
		return t.Semantic
	case DimensionRelationship:
		return t.Relationship
	case DimensionSituational:
		return t.Situational
	case DimensionPersonality:
		return t.Personality
	default:
		return ""
	}
}

// EmotionResult is the output of the emotion classifier cascade.
type EmotionResult struct {
	PrimaryEmotion string             `json:"primary_emotion"`
	Confidence     float64            `json:"confidence"` // Certainty of the classifier
	Intensity      float64            `json:"intensity"`  // Magnitude of the emotion
	Scores         map[string]float64 `json:"scores,omitempty"`
	Source         string             `json:"source"` // Name of the classifier that answered
}

// Secondary returns up to n emotions after the primary one, ordered by score
// descending and then by name.
func (r EmotionResult) Secondary(n int) []string {
	type scored struct {
		name  string
		score float64
	}
	var all []scored
	for name, score := range r.Scores {
		if name == r.PrimaryEmotion || score <= 0 {
			continue
		}
		all = append(all, scored{name, score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].name < all[j].name
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, s.name)
	}
	return out
}
