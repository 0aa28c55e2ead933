package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding/embeddingtest"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage/sqlite"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
	"github.com/whisperengine-ai/whisperengine-sub002/web/handlers"
)

// newTestRouter wires the handlers to an engine over an in-memory store.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := sqlite.NewVectorStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := engine.DefaultConfig()
	cfg.SweepInterval = 0
	eng, err := engine.NewMemoryEngine(engine.Dependencies{
		Store:    store,
		Embedder: embeddingtest.New(16),
		Policy:   config.DefaultPolicy(),
	}, cfg)
	require.NoError(t, err)

	api := handlers.NewAPIHandlers(eng)
	r := chi.NewRouter()
	r.Post("/api/memories", api.StoreMemory)
	r.Post("/api/memories/query", api.QueryMemories)
	r.Delete("/api/memories/{id}", api.DeleteMemory)
	r.Get("/api/health", api.Health)
	r.Post("/api/maintenance/sweep", handlers.NewMaintenanceHandler(eng).RunSweep)
	r.Post("/api/debug/query-trace", handlers.NewDebugHandler(eng).QueryTrace)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func dm(channel string) types.RawContext {
	return types.RawContext{Platform: "discord", ChannelType: "dm", ChannelID: channel}
}

func storeMemory(t *testing.T, h http.Handler, owner, content string, raw types.RawContext) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/memories", handlers.StoreRequest{OwnerID: owner, Content: content, Context: raw})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp handlers.StoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestStoreAndQuery(t *testing.T) {
	h := newTestRouter(t)
	id := storeMemory(t, h, "u1", "I went diving at the coral reef today", dm("dm-1"))
	storeMemory(t, h, "u1", "my cat knocked a glass off the table", dm("dm-1"))

	rec := do(t, h, http.MethodPost, "/api/memories/query", handlers.QueryRequest{
		OwnerID: "u1",
		Text:    "I went diving at the coral reef today",
		Context: dm("dm-1"),
		Limit:   5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, id, resp.Results[0].Record.ID)
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestQuery_OtherOwnerSeesNothing(t *testing.T) {
	h := newTestRouter(t)
	storeMemory(t, h, "u1", "a secret about my family", dm("dm-1"))

	rec := do(t, h, http.MethodPost, "/api/memories/query", handlers.QueryRequest{
		OwnerID: "u2",
		Text:    "a secret about my family",
		Context: dm("dm-1"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestStoreMemory_BadRequests(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"owner_id":`},
		{"unknown field", `{"owner_id":"u1","content":"x","colour":"red"}`},
		{"missing owner", `{"content":"hello"}`},
		{"missing content", `{"owner_id":"u1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/memories", bytes.NewBufferString(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestQuery_InvalidWeights(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/memories/query", handlers.QueryRequest{
		OwnerID: "u1",
		Text:    "anything",
		Context: dm("dm-1"),
		Weights: map[types.Dimension]float64{types.DimensionContent: 0, types.DimensionEmotion: 1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestDeleteMemory(t *testing.T) {
	h := newTestRouter(t)
	id := storeMemory(t, h, "u1", "remember to water the plants", dm("dm-1"))

	rec := do(t, h, http.MethodDelete, "/api/memories/"+id+"?owner_id=u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/memories/"+id, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/memories/"+id+"?owner_id=u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/memories/"+id+"?owner_id=u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunSweep(t *testing.T) {
	h := newTestRouter(t)
	storeMemory(t, h, "u1", "just had lunch", dm("dm-1"))

	rec := do(t, h, http.MethodPost, "/api/maintenance/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res engine.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Scanned)
}

func TestQueryTrace(t *testing.T) {
	h := newTestRouter(t)
	storeMemory(t, h, "u1", "the ocean is beautiful at night", dm("dm-1"))

	rec := do(t, h, http.MethodPost, "/api/debug/query-trace", handlers.QueryRequest{
		OwnerID: "u1",
		Text:    "ocean at night",
		Context: dm("dm-1"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.DebugQueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Trace)
	assert.Len(t, resp.Trace.Returned, len(resp.Results))
	assert.InDelta(t, 1.0, sum(resp.Trace.Weights), 1e-9)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Components["store"])
}

func sum(m map[types.Dimension]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}
