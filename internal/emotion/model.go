package emotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/extract"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/llm"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

const modelPrompt = `You classify the emotion expressed in a chat message.

Allowed emotions: %s, neutral.

Respond with ONLY a JSON object, no prose:
{"primary_emotion": "<one allowed emotion>", "confidence": <0.0-1.0>, "intensity": <0.0-1.0>, "emotions": {"<emotion>": <0.0-1.0>}}

"confidence" is how certain you are of the label. "intensity" is how strongly the emotion is expressed.
List up to four emotions in "emotions", including the primary one.

Message:
%s`

// ModelClassifier asks a language model for a structured classification.
// Any transport or parse failure is returned so the cascade falls back.
type ModelClassifier struct {
	gen    llm.TextGenerator
	labels []string
}

// NewModelClassifier returns a classifier over gen constrained to the emotion
// names of p. It returns a nil Classifier when gen is nil, which NewCascade
// skips.
func NewModelClassifier(gen llm.TextGenerator, p *extract.Patterns) Classifier {
	if gen == nil {
		return nil
	}
	labels := make([]string, len(p.Emotions))
	for i, c := range p.Emotions {
		labels[i] = c.Name
	}
	return &ModelClassifier{gen: gen, labels: labels}
}

// Name implements Classifier.
func (m *ModelClassifier) Name() string { return "model:" + m.gen.GetModel() }

// Classify implements Classifier.
func (m *ModelClassifier) Classify(ctx context.Context, text string) (types.EmotionResult, error) {
	if strings.TrimSpace(text) == "" {
		return types.EmotionResult{}, ErrNoSignal
	}

	reply, err := m.gen.Complete(ctx, fmt.Sprintf(modelPrompt, strings.Join(m.labels, ", "), text))
	if err != nil {
		return types.EmotionResult{}, fmt.Errorf("model classification failed: %w", err)
	}
	resp, err := llm.ParseEmotionResponse(reply)
	if err != nil {
		return types.EmotionResult{}, err
	}
	return types.EmotionResult{
		PrimaryEmotion: resp.PrimaryEmotion,
		Confidence:     resp.Confidence,
		Intensity:      resp.Intensity,
		Scores:         resp.Emotions,
		Source:         m.Name(),
	}, nil
}
