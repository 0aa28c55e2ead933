package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
)

func noEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv("WHISPER_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_DefaultHostIsLocalhost(t *testing.T) {
	noEnvFile(t)
	_ = os.Unsetenv("WHISPER_HOST")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
	assert.Equal(t, 7373, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "none", cfg.Emotion.Provider)
	assert.Equal(t, time.Hour, cfg.Engine.SweepInterval)
	assert.False(t, cfg.Engine.SweepOnStart)
}

func TestLoad_EnvOverrides(t *testing.T) {
	noEnvFile(t)
	t.Setenv("WHISPER_HOST", "0.0.0.0")
	t.Setenv("WHISPER_POOL_SIZE", "6")
	t.Setenv("WHISPER_EMBED_TIMEOUT", "750ms")
	t.Setenv("WHISPER_EMBEDDING_RPS", "2.5")
	t.Setenv("WHISPER_SWEEP_ON_START", "yes")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 6, cfg.Engine.PoolSize)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.EmbedTimeout)
	assert.InDelta(t, 2.5, cfg.Embedding.RequestsPerSecond, 1e-9)
	assert.True(t, cfg.Engine.SweepOnStart)
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	noEnvFile(t)
	t.Setenv("WHISPER_PORT", "not-a-port")
	t.Setenv("WHISPER_SWEEP_INTERVAL", "soon")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 7373, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Engine.SweepInterval)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("WHISPER_STORAGE_ENGINE=memory\n"), 0o600))
	t.Setenv("WHISPER_ENV_FILE", path)
	_ = os.Unsetenv("WHISPER_STORAGE_ENGINE")
	t.Cleanup(func() { _ = os.Unsetenv("WHISPER_STORAGE_ENGINE") })

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Engine)
}

func TestLoad_EnvironmentWinsOverEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("WHISPER_STORAGE_ENGINE=memory\n"), 0o600))
	t.Setenv("WHISPER_ENV_FILE", path)
	t.Setenv("WHISPER_STORAGE_ENGINE", "postgres")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
}
