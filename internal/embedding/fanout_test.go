package embedding_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding/embeddingtest"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/workpool"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

var reefTags = types.DimensionTags{
	Emotion:      "fear_intense",
	Semantic:     "topic_environment",
	Relationship: "intimacy_deep_trust_neutral",
	Situational:  "mode_emotional_support_time_general",
	Personality:  "traits_balanced",
}

const reefText = "I'm worried about the coral reefs dying"

func TestTexts(t *testing.T) {
	texts := embedding.Texts(reefText, reefTags)

	assert.Equal(t, map[types.Dimension]string{
		types.DimensionContent:      reefText,
		types.DimensionEmotion:      "emotion fear_intense: " + reefText,
		types.DimensionSemantic:     "concept topic_environment: " + reefText,
		types.DimensionRelationship: "relationship intimacy_deep_trust_neutral: " + reefText,
		types.DimensionSituational:  "context mode_emotional_support_time_general: " + reefText,
		types.DimensionPersonality:  "personality traits_balanced: " + reefText,
	}, texts)
}

func TestEmbedAll_AllSucceed(t *testing.T) {
	fake := embeddingtest.New(16)
	f := embedding.NewFanOut(fake, workpool.New(6), time.Second)

	vecs, err := f.EmbedAll(context.Background(), reefText, reefTags)
	require.NoError(t, err)
	assert.True(t, vecs.Complete())
	assert.Len(t, fake.Calls(), 6)
	assert.NotEqual(t, vecs[types.DimensionContent], vecs[types.DimensionEmotion])
}

func TestEmbedAll_SemanticTimeout(t *testing.T) {
	fake := embeddingtest.New(16)
	fake.Hook = func(text string) (time.Duration, error) {
		if strings.HasPrefix(text, "concept ") {
			return time.Second, nil
		}
		return 0, nil
	}
	f := embedding.NewFanOut(fake, workpool.New(6), 50*time.Millisecond)

	start := time.Now()
	vecs, err := f.EmbedAll(context.Background(), reefText, reefTags)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var pf *embedding.PartialFailure
	require.ErrorAs(t, err, &pf)
	assert.False(t, pf.ContentFailed())
	assert.Len(t, pf.Failed, 1)
	assert.ErrorIs(t, pf.Failed[types.DimensionSemantic], context.DeadlineExceeded)
	assert.ErrorIs(t, err, embedding.ErrEmbedding)
	assert.NotErrorIs(t, err, embedding.ErrContentEmbedding)

	assert.Len(t, vecs, 5)
	assert.Equal(t, []types.Dimension{types.DimensionSemantic}, vecs.Missing())
}

func TestEmbedAll_ContentFailure(t *testing.T) {
	fake := embeddingtest.New(16)
	down := errors.New("embedding service unavailable")
	fake.Hook = func(text string) (time.Duration, error) {
		if text == reefText {
			return 0, down
		}
		return 0, nil
	}
	f := embedding.NewFanOut(fake, workpool.New(6), time.Second)

	vecs, err := f.EmbedAll(context.Background(), reefText, reefTags)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrContentEmbedding)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "content: embedding service unavailable")
	assert.Len(t, vecs, 5)
}

func TestEmbedAll_SmallPoolStillCompletes(t *testing.T) {
	fake := embeddingtest.New(8)
	f := embedding.NewFanOut(fake, workpool.New(1), time.Second)

	vecs, err := f.EmbedAll(context.Background(), "hello", types.DimensionTags{
		Emotion: "neutral_calm", Semantic: "general_conversation", Relationship: "intimacy_casual_trust_neutral",
		Situational: "mode_casual_chat_time_general", Personality: "traits_balanced",
	})
	require.NoError(t, err)
	assert.True(t, vecs.Complete())
}

func TestPartialFailure_ErrorOrder(t *testing.T) {
	pf := &embedding.PartialFailure{Failed: map[types.Dimension]error{
		types.DimensionPersonality: errors.New("p"),
		types.DimensionEmotion:     errors.New("e"),
	}}
	assert.Equal(t, "embedding failed for 2 of 6 dimensions (emotion: e; personality: p)", pf.Error())
}
