package sqlite

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/storagetest"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *VectorStore {
	t.Helper()
	store, err := NewVectorStore(":memory:")
	require.NoError(t, err)
	return store
}

func TestVectorStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.VectorStore {
		return newTestStore(t)
	})
}

func TestVectorStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	store, err := NewVectorStore(path)
	require.NoError(t, err)
	rec := storagetest.Record("r1", "alice", types.SecurityPrivateChannel, "srv", "mods", 2)
	require.NoError(t, store.Write(ctx, rec))
	require.NoError(t, store.Close())

	store, err = NewVectorStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "channel:srv:mods", got.ScopeKey)
	assert.Equal(t, rec.Vectors[types.DimensionRelationship], got.Vectors[types.DimensionRelationship])
}

func TestSerializeVectorRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := deserializeVector(serializeVector(in), len(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = deserializeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
	_, err = deserializeVector(nil, 0)
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestDBPathFromDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"", ""},
		{"/tmp/memory.db", "/tmp/memory.db"},
		{"file:/tmp/memory.db?mode=rwc", "/tmp/memory.db"},
		{"file::memory:?cache=shared", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dbPathFromDSN(tt.dsn), tt.dsn)
	}
}

func TestIsRecoverableWALError(t *testing.T) {
	assert.False(t, isRecoverableWALError(nil))
	assert.True(t, isRecoverableWALError(errors.New("disk I/O error")))
	assert.True(t, isRecoverableWALError(errors.New("database is locked (5)")))
	assert.False(t, isRecoverableWALError(errors.New("no such table")))
}

func TestSearchLogsWhenCandidateCapIsHit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved := vectorSearchMaxCandidates
	vectorSearchMaxCandidates = 2
	t.Cleanup(func() { vectorSearchMaxCandidates = saved })

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	for i, id := range []string{"old", "mid", "new"} {
		r := storagetest.Record(id, "alice", types.SecurityPrivateDM, "", "dm-1", 0)
		r.CreatedAt = storagetest.Base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Write(ctx, r))
	}

	req := storage.SearchRequest{
		Dimension: types.DimensionContent,
		Vector:    []float32{1, 0, 0, 0},
		OwnerID:   "alice",
		Scopes:    []string{types.ScopeKeyFor(types.SecurityPrivateDM, "", "dm-1")},
		Limit:     10,
	}
	hits, err := store.Search(ctx, req)
	require.NoError(t, err)
	var ids []string
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.ElementsMatch(t, []string{"mid", "new"}, ids, "the newest rows are scored")
	assert.Contains(t, buf.String(), "candidate cap")

	buf.Reset()
	req.Scopes = []string{"dm:other"}
	_, err = store.Search(ctx, req)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "candidate cap")
}
