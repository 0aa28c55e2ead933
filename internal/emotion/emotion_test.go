package emotion_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/emotion"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/extract"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// MockTextGenerator implements llm.TextGenerator for testing.
type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockTextGenerator) GetModel() string { return "test-model" }

type stubClassifier struct {
	name string
	res  types.EmotionResult
	err  error
}

func (s stubClassifier) Name() string { return s.name }

func (s stubClassifier) Classify(context.Context, string) (types.EmotionResult, error) {
	return s.res, s.err
}

func patterns() *extract.Patterns { return extract.DefaultPatterns() }

func TestKeywordClassifier(t *testing.T) {
	k := emotion.NewKeywordClassifier(patterns())

	res, err := k.Classify(context.Background(), "I'm so happy and thrilled, this is amazing!")
	require.NoError(t, err)
	assert.Equal(t, "joy", res.PrimaryEmotion)
	assert.InDelta(t, 0.9, res.Intensity, 1e-9)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
	assert.Equal(t, []string{"excitement"}, res.Secondary(3))
	assert.Equal(t, "keyword", res.Source)
}

func TestKeywordClassifier_TiesFollowTableOrder(t *testing.T) {
	k := emotion.NewKeywordClassifier(patterns())

	res, err := k.Classify(context.Background(), "I'm worried about the coral reefs dying")
	require.NoError(t, err)
	assert.Equal(t, "sadness", res.PrimaryEmotion)
	assert.InDelta(t, 0.3, res.Intensity, 1e-9)
	assert.InDelta(t, 1.0/3, res.Confidence, 1e-9)
	assert.Equal(t, []string{"anxiety", "fear"}, res.Secondary(3))
}

func TestKeywordClassifier_NeverFails(t *testing.T) {
	k := emotion.NewKeywordClassifier(patterns())

	for _, text := range []string{"", "the table is wooden", "12345"} {
		res, err := k.Classify(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, emotion.Neutral, res.PrimaryEmotion)
		assert.Equal(t, 0.1, res.Intensity)
		assert.Equal(t, 0.1, res.Confidence)
	}
}

func TestKeywordClassifier_IntensityCapped(t *testing.T) {
	k := emotion.NewKeywordClassifier(patterns())

	res, err := k.Classify(context.Background(), "angry furious livid enraged seething")
	require.NoError(t, err)
	assert.Equal(t, "anger", res.PrimaryEmotion)
	assert.Equal(t, 1.0, res.Intensity)
}

func TestLexicalClassifier(t *testing.T) {
	l := emotion.NewLexicalClassifier(patterns())
	ctx := context.Background()

	pos, err := l.Classify(ctx, "I love this, it is great")
	require.NoError(t, err)
	assert.Equal(t, "joy", pos.PrimaryEmotion)
	assert.InDelta(t, 6.3/math.Sqrt(6.3*6.3+15), pos.Intensity, 1e-9)
	assert.LessOrEqual(t, pos.Confidence, 0.8)
	assert.Greater(t, pos.Confidence, 0.0)

	negated, err := l.Classify(ctx, "I am not happy")
	require.NoError(t, err)
	assert.Equal(t, "sadness", negated.PrimaryEmotion)

	contraction, err := l.Classify(ctx, "I don't feel good")
	require.NoError(t, err)
	assert.Equal(t, "sadness", contraction.PrimaryEmotion)

	plain, err := l.Classify(ctx, "that was bad")
	require.NoError(t, err)
	boosted, err := l.Classify(ctx, "that was very bad")
	require.NoError(t, err)
	assert.Greater(t, boosted.Intensity, plain.Intensity)
}

func TestLexicalClassifier_NoSignal(t *testing.T) {
	l := emotion.NewLexicalClassifier(patterns())

	_, err := l.Classify(context.Background(), "the table is wooden")
	assert.ErrorIs(t, err, emotion.ErrNoSignal)
}

func TestModelClassifier(t *testing.T) {
	gen := new(MockTextGenerator)
	gen.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "coral reefs") && assert.Contains(t, p, "loneliness")
	})).Return("```json\n{\"primary_emotion\": \"Fear\", \"confidence\": 0.9, \"intensity\": 0.85, \"emotions\": {\"fear\": 0.9, \"sadness\": 0.5}}\n```", nil)

	c := emotion.NewModelClassifier(gen, patterns())
	require.NotNil(t, c)
	res, err := c.Classify(context.Background(), "I'm worried about the coral reefs dying")
	require.NoError(t, err)
	assert.Equal(t, "fear", res.PrimaryEmotion)
	assert.Equal(t, 0.85, res.Intensity)
	assert.Equal(t, "model:test-model", res.Source)
	assert.Equal(t, []string{"sadness"}, res.Secondary(3))
	gen.AssertExpectations(t)
}

func TestModelClassifier_NilGenerator(t *testing.T) {
	assert.Nil(t, emotion.NewModelClassifier(nil, patterns()))
}

func TestCascade_FallsBackOnModelFailure(t *testing.T) {
	gen := new(MockTextGenerator)
	gen.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	p := patterns()
	c := emotion.NewCascade(
		emotion.NewModelClassifier(gen, p),
		emotion.NewLexicalClassifier(p),
		emotion.NewKeywordClassifier(p),
	)
	assert.Equal(t, []string{"model:test-model", "lexical", "keyword"}, c.Stages())

	res := c.Classify(context.Background(), "I love this, it is great")
	assert.Equal(t, "lexical", res.Source)
	assert.Equal(t, "joy", res.PrimaryEmotion)
}

func TestCascade_FallsBackOnUnparseableReply(t *testing.T) {
	gen := new(MockTextGenerator)
	gen.On("Complete", mock.Anything, mock.Anything).Return("The user seems lonely.", nil)

	p := patterns()
	c := emotion.NewCascade(
		emotion.NewModelClassifier(gen, p),
		emotion.NewLexicalClassifier(p),
		emotion.NewKeywordClassifier(p),
	)

	// No lexicon word, so the keyword stage answers.
	res := c.Classify(context.Background(), "I feel so isolated lately")
	assert.Equal(t, "keyword", res.Source)
	assert.Equal(t, "loneliness", res.PrimaryEmotion)
}

func TestCascade_NilModelStageSkipped(t *testing.T) {
	p := patterns()
	c := emotion.NewCascade(emotion.NewModelClassifier(nil, p), emotion.NewKeywordClassifier(p))
	assert.Equal(t, []string{"keyword"}, c.Stages())
}

func TestCascade_AlwaysReturnsAResult(t *testing.T) {
	c := emotion.NewCascade(stubClassifier{name: "down", err: errors.New("unavailable")})

	res := c.Classify(context.Background(), "anything")
	assert.Equal(t, emotion.Neutral, res.PrimaryEmotion)
	assert.Equal(t, 0.1, res.Intensity)
	assert.Equal(t, 0.1, res.Confidence)
	assert.Equal(t, "fallback", res.Source)

	res = emotion.NewCascade().Classify(context.Background(), "")
	assert.Equal(t, emotion.Neutral, res.PrimaryEmotion)
}

func TestCascade_ClampsScores(t *testing.T) {
	c := emotion.NewCascade(stubClassifier{name: "wild", res: types.EmotionResult{
		PrimaryEmotion: "joy",
		Confidence:     math.NaN(),
		Intensity:      1.7,
		Scores:         map[string]float64{"pride": -2},
	}})

	res := c.Classify(context.Background(), "x")
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, 1.0, res.Intensity)
	assert.Equal(t, 0.0, res.Scores["pride"])
	assert.Contains(t, res.Scores, "joy")
	assert.Equal(t, "wild", res.Source)
}
