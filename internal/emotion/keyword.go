package emotion

import (
	"context"
	"math"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/extract"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

const (
	keywordIntensityPerMatch = 0.3
	keywordSource            = "keyword"
)

// KeywordClassifier scores each emotion in the pattern table by how many of
// its keywords occur in the text. It never fails: text without any keyword
// classifies as neutral with intensity 0.1.
type KeywordClassifier struct {
	emotions []extract.Category
}

// NewKeywordClassifier builds a classifier over the emotion table of p.
func NewKeywordClassifier(p *extract.Patterns) *KeywordClassifier {
	return &KeywordClassifier{emotions: p.Emotions}
}

// Name implements Classifier.
func (k *KeywordClassifier) Name() string { return keywordSource }

// Classify implements Classifier. The emotion with the most matching keywords
// wins, ties going to the earlier table entry. Intensity grows by 0.3 per
// match up to 1 and confidence is the winner's share of all matches.
func (k *KeywordClassifier) Classify(_ context.Context, text string) (types.EmotionResult, error) {
	t := extract.Prepare(text)

	counts := make(map[string]int)
	best, bestCount, total := "", 0, 0
	for _, c := range k.emotions {
		n := c.Count(t)
		if n == 0 {
			continue
		}
		counts[c.Name] = n
		total += n
		if n > bestCount {
			best, bestCount = c.Name, n
		}
	}
	if bestCount == 0 {
		return NeutralResult(keywordSource), nil
	}

	scores := make(map[string]float64, len(counts))
	for name, n := range counts {
		scores[name] = float64(n) / float64(total)
	}
	return types.EmotionResult{
		PrimaryEmotion: best,
		Confidence:     scores[best],
		Intensity:      math.Min(float64(bestCount)*keywordIntensityPerMatch, 1),
		Scores:         scores,
		Source:         keywordSource,
	}, nil
}

var _ Classifier = (*KeywordClassifier)(nil)
