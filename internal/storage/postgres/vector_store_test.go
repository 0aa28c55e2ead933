package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/postgres"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/storagetest"
)

// postgresTestDSN returns the DSN for the test database.
// If WHISPER_TEST_POSTGRES_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("WHISPER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WHISPER_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database and empties the records table.
func newTestStore(t *testing.T) *postgres.VectorStore {
	t.Helper()
	store, err := postgres.NewVectorStore(postgresTestDSN(t), storagetest.Width)
	require.NoError(t, err, "NewVectorStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))
	return store
}

func TestVectorStoreContract(t *testing.T) {
	postgresTestDSN(t)
	storagetest.Run(t, func(t *testing.T) storage.VectorStore {
		return newTestStore(t)
	})
}

func TestNewVectorStoreRejectsZeroWidth(t *testing.T) {
	_, err := postgres.NewVectorStore("postgres://unused", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
