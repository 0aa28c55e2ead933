// Package emotion classifies the emotional content of a message through an
// ordered cascade of classifiers. The cascade degrades in quality rather than
// availability: a model-backed classifier is tried first, then a lexical
// sentiment analyzer, then keyword patterns, and a neutral result is returned
// if everything else declines.
package emotion

import (
	"context"
	"errors"
	"log"
	"math"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// ErrNoSignal is returned by a classifier that found nothing to classify.
// The cascade moves on to the next classifier.
var ErrNoSignal = errors.New("no emotional signal")

// Neutral is the label used when no classifier finds an emotion.
const Neutral = "neutral"

// Classifier is one stage of the cascade.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) (types.EmotionResult, error)
}

// Cascade tries its classifiers in order and returns the first result.
// It is safe for concurrent use when its classifiers are.
type Cascade struct {
	classifiers []Classifier
}

// NewCascade returns a cascade over classifiers. Nil entries are skipped so
// optional stages can be passed unconditionally.
func NewCascade(classifiers ...Classifier) *Cascade {
	c := &Cascade{}
	for _, cl := range classifiers {
		if cl != nil {
			c.classifiers = append(c.classifiers, cl)
		}
	}
	return c
}

// Stages returns the names of the configured classifiers in order.
func (c *Cascade) Stages() []string {
	names := make([]string, len(c.classifiers))
	for i, cl := range c.classifiers {
		names[i] = cl.Name()
	}
	return names
}

// Classify returns the first successful classification. It never fails: if
// every stage declines, the result is neutral with intensity 0.1. Confidence
// and intensity are clamped to [0,1] and Scores always names the primary
// emotion.
func (c *Cascade) Classify(ctx context.Context, text string) types.EmotionResult {
	for _, cl := range c.classifiers {
		res, err := cl.Classify(ctx, text)
		if err != nil {
			if !errors.Is(err, ErrNoSignal) {
				log.Printf("emotion: classifier %s failed, falling back: %v", cl.Name(), err)
			}
			continue
		}
		if res.Source == "" {
			res.Source = cl.Name()
		}
		return normalize(res)
	}
	return NeutralResult("fallback")
}

// NeutralResult is the last-resort classification.
func NeutralResult(source string) types.EmotionResult {
	return types.EmotionResult{
		PrimaryEmotion: Neutral,
		Confidence:     0.1,
		Intensity:      0.1,
		Scores:         map[string]float64{Neutral: 1},
		Source:         source,
	}
}

func normalize(res types.EmotionResult) types.EmotionResult {
	if res.PrimaryEmotion == "" {
		res.PrimaryEmotion = Neutral
	}
	res.Confidence = clampFinite(res.Confidence)
	res.Intensity = clampFinite(res.Intensity)
	scores := make(map[string]float64, len(res.Scores)+1)
	for k, v := range res.Scores {
		scores[k] = clampFinite(v)
	}
	if _, ok := scores[res.PrimaryEmotion]; !ok {
		scores[res.PrimaryEmotion] = res.Confidence
	}
	res.Scores = scores
	return res
}

func clampFinite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return types.Clamp01(v)
}
