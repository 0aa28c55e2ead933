// Package config provides configuration management for the memory engine.
// Process settings come from environment variables with the WHISPER_ prefix,
// optionally seeded from a .env file. Scoring and visibility policy lives in
// a separate YAML document (see Policy).
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level settings.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Emotion   EmotionConfig
	Security  SecurityConfig
	Engine    EngineConfig
	Policy    PolicyConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 7373)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig selects and configures the vector store backend.
type StorageConfig struct {
	Engine      string // sqlite, postgres or memory (default: sqlite)
	DataPath    string // Directory for the SQLite database (default: ./data)
	PostgresDSN string // Connection string when Engine is postgres
	Dimensions  int    // Embedding width, required by the postgres vector columns (default: 768)
}

// EmbeddingConfig configures the embedding service client.
type EmbeddingConfig struct {
	Provider          string  // ollama or openai (default: ollama)
	OllamaURL         string  // default: http://localhost:11434
	Model             string  // default: nomic-embed-text
	OpenAIAPIKey      string  // OpenAI API key
	OpenAIBaseURL     string  // Optional OpenAI-compatible endpoint
	RequestsPerSecond float64 // Client-side rate limit, 0 disables (default: 50)
	Burst             int     // Rate limit burst (default: 12)
	CacheMaxCost      int64   // Ristretto cache budget in bytes, 0 disables (default: 64 MiB)
}

// EmotionConfig configures the primary (model-backed) emotion classifier.
// The lexical and keyword fallbacks are always enabled.
type EmotionConfig struct {
	Provider        string // ollama, openai, anthropic or none (default: none)
	Model           string // Model used for classification prompts
	OllamaURL       string // default: http://localhost:11434
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// SecurityConfig contains HTTP authentication settings.
type SecurityConfig struct {
	Mode              string  // development or production (default: development)
	APIToken          string  // Bearer token required in production mode
	RequestsPerSecond float64 // HTTP rate limit (default: 20)
	Burst             int     // HTTP rate limit burst (default: 40)
}

// EngineConfig carries the engine tuning knobs that are read from the
// environment. See engine.Config for validation.
type EngineConfig struct {
	PoolSize       int           // Concurrent fan-out calls across the process (default: 24)
	EmbedTimeout   time.Duration // Shared deadline for one six-way embedding fan-out (default: 10s)
	SearchTimeout  time.Duration // Shared deadline for one six-way search fan-out (default: 5s)
	SweepInterval  time.Duration // Aging sweep period, 0 disables the ticker (default: 1h)
	SweepTimeout   time.Duration // Deadline for one aging sweep (default: 5m)
	SweepBatchSize int           // Records loaded per sweep page (default: 500)
	SweepOnStart   bool          // Run one sweep immediately at startup (default: false)
}

// PolicyConfig points at the externally supplied policy documents.
type PolicyConfig struct {
	PolicyPath   string // YAML scoring/visibility policy; empty uses the built-in default
	PatternsPath string // YAML extractor pattern tables; empty uses the built-in default
}

// Load reads an optional .env file and then builds the configuration from
// environment variables. Variables already set in the environment win over
// values from the file.
func Load() (*Config, error) {
	envFile := getEnv("WHISPER_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("config: ignoring unreadable env file %s: %v", envFile, err)
		}
	}
	return buildConfig(), nil
}

// buildConfig constructs a Config from environment variables and defaults.
func buildConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("WHISPER_PORT", 7373),
			Host: getEnv("WHISPER_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("WHISPER_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("WHISPER_DATA_PATH", "./data"),
			PostgresDSN: getEnv("WHISPER_POSTGRES_DSN", ""),
			Dimensions:  getEnvInt("WHISPER_EMBEDDING_DIMENSIONS", 768),
		},
		Embedding: EmbeddingConfig{
			Provider:          getEnv("WHISPER_EMBEDDING_PROVIDER", "ollama"),
			OllamaURL:         getEnv("WHISPER_OLLAMA_URL", "http://localhost:11434"),
			Model:             getEnv("WHISPER_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:      getEnv("WHISPER_OPENAI_API_KEY", ""),
			OpenAIBaseURL:     getEnv("WHISPER_OPENAI_BASE_URL", ""),
			RequestsPerSecond: getEnvFloat("WHISPER_EMBEDDING_RPS", 50),
			Burst:             getEnvInt("WHISPER_EMBEDDING_BURST", 12),
			CacheMaxCost:      int64(getEnvInt("WHISPER_EMBEDDING_CACHE_BYTES", 64<<20)),
		},
		Emotion: EmotionConfig{
			Provider:        getEnv("WHISPER_EMOTION_PROVIDER", "none"),
			Model:           getEnv("WHISPER_EMOTION_MODEL", ""),
			OllamaURL:       getEnv("WHISPER_OLLAMA_URL", "http://localhost:11434"),
			OpenAIAPIKey:    getEnv("WHISPER_OPENAI_API_KEY", ""),
			AnthropicAPIKey: getEnv("WHISPER_ANTHROPIC_API_KEY", ""),
		},
		Security: SecurityConfig{
			Mode:              getEnv("WHISPER_SECURITY_MODE", "development"),
			APIToken:          getEnv("WHISPER_API_TOKEN", ""),
			RequestsPerSecond: getEnvFloat("WHISPER_HTTP_RPS", 20),
			Burst:             getEnvInt("WHISPER_HTTP_BURST", 40),
		},
		Engine: EngineConfig{
			PoolSize:       getEnvInt("WHISPER_POOL_SIZE", 24),
			EmbedTimeout:   getEnvDuration("WHISPER_EMBED_TIMEOUT", 10*time.Second),
			SearchTimeout:  getEnvDuration("WHISPER_SEARCH_TIMEOUT", 5*time.Second),
			SweepInterval:  getEnvDuration("WHISPER_SWEEP_INTERVAL", time.Hour),
			SweepTimeout:   getEnvDuration("WHISPER_SWEEP_TIMEOUT", 5*time.Minute),
			SweepBatchSize: getEnvInt("WHISPER_SWEEP_BATCH", 500),
			SweepOnStart:   getEnvBool("WHISPER_SWEEP_ON_START", false),
		},
		Policy: PolicyConfig{
			PolicyPath:   getEnv("WHISPER_POLICY_PATH", ""),
			PatternsPath: getEnv("WHISPER_PATTERNS_PATH", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// Unparseable values fall back to the default with a warning.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("config: %s=%q is not an integer, using %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("config: %s=%q is not a number, using %g", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("90s", "1h") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("config: %s=%q is not a duration, using %s", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		switch value {
		case "yes", "Yes", "YES":
			return true
		case "no", "No", "NO":
			return false
		}
	}
	return defaultValue
}
