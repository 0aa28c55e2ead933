package llm

import (
	"fmt"
	"log"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
)

// NewEmbeddingGenerator builds the embedding client selected by cfg, wrapped
// in the configured rate limiter and cache. The cache sits outermost so hits
// do not consume rate tokens.
func NewEmbeddingGenerator(cfg config.EmbeddingConfig) (EmbeddingGenerator, error) {
	var gen EmbeddingGenerator
	switch cfg.Provider {
	case "ollama", "":
		gen = NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.Model})
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("embedding provider openai requires WHISPER_OPENAI_API_KEY")
		}
		gen = NewOpenAIEmbeddingClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.Model, BaseURL: cfg.OpenAIBaseURL})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}

	if cfg.RequestsPerSecond > 0 {
		gen = NewRateLimitedEmbedder(gen, cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.CacheMaxCost > 0 {
		cached, err := NewCachedEmbedder(gen, cfg.CacheMaxCost)
		if err != nil {
			return nil, err
		}
		gen = cached
	}
	log.Printf("llm: embedding provider %s, model %s", providerName(cfg.Provider), gen.GetModel())
	return gen, nil
}

// NewTextGenerator builds the completion client used for model-based emotion
// classification. It returns (nil, nil) when the provider is "none".
func NewTextGenerator(cfg config.EmotionConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "qwen2.5:7b"
		}
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: model}), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("emotion provider openai requires WHISPER_OPENAI_API_KEY")
		}
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.Model}), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("emotion provider anthropic requires WHISPER_ANTHROPIC_API_KEY")
		}
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported emotion provider: %q", cfg.Provider)
	}
}

func providerName(p string) string {
	if p == "" {
		return "ollama"
	}
	return p
}
