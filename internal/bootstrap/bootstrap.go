// Package bootstrap assembles a MemoryEngine and its collaborators from
// process configuration. It is shared by the server and the CLI.
package bootstrap

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/emotion"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/extract"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/llm"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/security"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/chromem"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/postgres"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/sqlite"
)

// Runtime is a wired engine plus the resources that must be released with it.
type Runtime struct {
	Engine *engine.MemoryEngine
	Store  storage.VectorStore
	Policy *config.Policy

	closers []func()
}

// Close releases the store and the embedding cache.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// OpenStore opens the vector store backend selected by cfg.
func OpenStore(cfg config.StorageConfig) (storage.VectorStore, error) {
	switch cfg.Engine {
	case "sqlite", "":
		if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewVectorStore(SQLitePath(cfg))
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("storage engine postgres requires WHISPER_POSTGRES_DSN")
		}
		return postgres.NewVectorStore(cfg.PostgresDSN, cfg.Dimensions)
	case "memory":
		return chromem.NewVectorStore()
	default:
		return nil, fmt.Errorf("unsupported storage engine: %q", cfg.Engine)
	}
}

// SQLitePath is the database file of the sqlite engine under cfg.DataPath.
func SQLitePath(cfg config.StorageConfig) string {
	return filepath.Join(cfg.DataPath, "memory.db")
}

// LoadDocuments reads the policy and pattern documents named by cfg,
// falling back to the built-in defaults for empty paths.
func LoadDocuments(cfg config.PolicyConfig) (*config.Policy, *extract.Patterns, error) {
	policy := config.DefaultPolicy()
	if cfg.PolicyPath != "" {
		p, err := config.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, nil, err
		}
		policy = p
	}

	patterns := extract.DefaultPatterns()
	if cfg.PatternsPath != "" {
		p, err := extract.LoadPatterns(cfg.PatternsPath)
		if err != nil {
			return nil, nil, err
		}
		patterns = p
	}
	return policy, patterns, nil
}

// New builds the full runtime: store, embedding client, emotion cascade,
// extractor and engine. The engine is not started.
func New(cfg *config.Config) (*Runtime, error) {
	policy, patterns, err := LoadDocuments(cfg.Policy)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbeddingGenerator(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	rt := &Runtime{Policy: policy}
	if cached, ok := embedder.(*llm.CachedEmbedder); ok {
		rt.closers = append(rt.closers, cached.Close)
	}

	textGen, err := llm.NewTextGenerator(cfg.Emotion)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create emotion client: %w", err)
	}
	cascade := emotion.NewCascade(
		emotion.NewModelClassifier(textGen, patterns),
		emotion.NewLexicalClassifier(patterns),
		emotion.NewKeywordClassifier(patterns),
	)
	log.Printf("bootstrap: emotion stages %v", cascade.Stages())

	store, err := OpenStore(cfg.Storage)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Engine, err)
	}
	rt.Store = store
	rt.closers = append(rt.closers, func() {
		if err := store.Close(); err != nil {
			log.Printf("bootstrap: error closing store: %v", err)
		}
	})

	eng, err := engine.NewMemoryEngine(engine.Dependencies{
		Store:      store,
		Embedder:   embedder,
		Emotions:   cascade,
		Extractor:  extract.New(patterns),
		Classifier: security.NewClassifier(),
		Policy:     policy,
	}, engine.ConfigFromSettings(cfg.Engine))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Engine = eng
	return rt, nil
}
