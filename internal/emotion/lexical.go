package emotion

import (
	"context"
	"math"
	"strings"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/extract"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// Constants of the valence model.
const (
	negationScale    = -0.74
	normalizeAlpha   = 15.0
	neutralThreshold = 0.05
	lookback         = 3
	lexicalSource    = "lexical"

	// Lexical polarity is a weaker signal than a model or an exact emotion
	// keyword, so its confidence never exceeds this.
	maxLexicalConfidence = 0.8
)

// LexicalClassifier is a rule-based sentiment analyzer in the style of
// VADER: word valences from a lexicon, scaled by preceding intensifiers and
// flipped by preceding negations, summed and squashed into [-1,1].
//
// Positive text classifies as joy, negative as sadness, balanced as neutral.
// Text with no lexicon word returns ErrNoSignal so the keyword stage runs.
type LexicalClassifier struct {
	lexicon      map[string]float64
	negations    map[string]bool
	intensifiers map[string]float64
}

// NewLexicalClassifier builds an analyzer from the lexicon, negation and
// intensifier tables of p.
func NewLexicalClassifier(p *extract.Patterns) *LexicalClassifier {
	neg := make(map[string]bool, len(p.Negations))
	for _, w := range p.Negations {
		neg[w] = true
	}
	return &LexicalClassifier{
		lexicon:      p.Lexicon,
		negations:    neg,
		intensifiers: p.Intensifiers,
	}
}

// Name implements Classifier.
func (l *LexicalClassifier) Name() string { return lexicalSource }

// Classify implements Classifier.
func (l *LexicalClassifier) Classify(_ context.Context, text string) (types.EmotionResult, error) {
	tokens := extract.Prepare(text).Tokens()

	var pos, neg float64
	hits := 0
	for i, tok := range tokens {
		v, ok := l.lexicon[tok]
		if !ok || v == 0 {
			continue
		}
		hits++
		for j := i - 1; j >= 0 && j >= i-lookback; j-- {
			prev := tokens[j]
			if boost, ok := l.intensifiers[prev]; ok {
				v *= 1 + boost
			}
			if l.isNegation(prev) {
				v *= negationScale
			}
		}
		if v > 0 {
			pos += v
		} else {
			neg -= v
		}
	}
	if hits == 0 {
		return types.EmotionResult{}, ErrNoSignal
	}

	sum := pos - neg
	compound := sum / math.Sqrt(sum*sum+normalizeAlpha)

	scores := map[string]float64{}
	if pos+neg > 0 {
		scores["joy"] = pos / (pos + neg)
		scores["sadness"] = neg / (pos + neg)
	}

	primary := Neutral
	switch {
	case compound >= neutralThreshold:
		primary = "joy"
	case compound <= -neutralThreshold:
		primary = "sadness"
	default:
		scores[Neutral] = 1 - math.Abs(compound)
	}

	// Agreement among the hits raises confidence; mixed polarity lowers it.
	agreement := math.Abs(pos-neg) / math.Max(pos+neg, 1e-9)
	confidence := maxLexicalConfidence * (0.5 + 0.5*agreement) * math.Min(1, 0.5+0.25*float64(hits))
	if primary == Neutral {
		confidence = maxLexicalConfidence * (1 - math.Abs(compound)) * 0.5
	}

	return types.EmotionResult{
		PrimaryEmotion: primary,
		Confidence:     confidence,
		Intensity:      math.Abs(compound),
		Scores:         scores,
		Source:         lexicalSource,
	}, nil
}

func (l *LexicalClassifier) isNegation(tok string) bool {
	return l.negations[tok] || strings.HasSuffix(tok, "n't")
}

var _ Classifier = (*LexicalClassifier)(nil)
