// Package handlers provides the HTTP handlers, middleware and event stream
// of the memory service.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// APIHandlers contains HTTP handlers for the memory REST API.
type APIHandlers struct {
	engine *engine.MemoryEngine
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(eng *engine.MemoryEngine) *APIHandlers {
	return &APIHandlers{engine: eng}
}

// StoreMemory handles POST /api/memories.
func (h *APIHandlers) StoreMemory(w http.ResponseWriter, r *http.Request) {
	var req StoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OwnerID == "" || req.Content == "" {
		respondError(w, http.StatusBadRequest, "owner_id and content are required", nil)
		return
	}

	var opts []engine.StoreOption
	if req.Emotion != nil {
		opts = append(opts, engine.WithEmotion(*req.Emotion))
	}
	if req.Factors != nil {
		opts = append(opts, engine.WithFactors(*req.Factors))
	}
	if req.RelationshipDepth != "" {
		opts = append(opts, engine.WithRelationshipDepth(req.RelationshipDepth))
	}

	id, err := h.engine.Store(r.Context(), req.OwnerID, req.Content, req.Context, opts...)
	if err != nil {
		respondEngineError(w, "failed to store memory", err)
		return
	}
	respondJSON(w, http.StatusCreated, StoreResponse{ID: id})
}

// QueryMemories handles POST /api/memories/query.
func (h *APIHandlers) QueryMemories(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OwnerID == "" || req.Text == "" {
		respondError(w, http.StatusBadRequest, "owner_id and text are required", nil)
		return
	}

	results, err := h.engine.Query(r.Context(), req.OwnerID, req.Text, req.Context, req.Limit, queryOptions(req)...)
	if err != nil {
		respondEngineError(w, "query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, QueryResponse{Results: results, Count: len(results)})
}

// DeleteMemory handles DELETE /api/memories/{id}?owner_id=.
func (h *APIHandlers) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ownerID := r.URL.Query().Get("owner_id")
	if id == "" || ownerID == "" {
		respondError(w, http.StatusBadRequest, "memory id and owner_id are required", nil)
		return
	}
	if err := h.engine.Delete(r.Context(), ownerID, id); err != nil {
		respondEngineError(w, "failed to delete memory", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /api/health.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	components := h.engine.Health(r.Context())
	resp := HealthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	for _, v := range components {
		if v != "ok" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, resp)
}

func queryOptions(req QueryRequest) []engine.QueryOption {
	var opts []engine.QueryOption
	if len(req.Weights) > 0 {
		opts = append(opts, engine.WithWeights(req.Weights))
	}
	if req.RelationshipDepth != "" {
		opts = append(opts, engine.WithQueryRelationshipDepth(req.RelationshipDepth))
	}
	return opts
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondEngineError maps engine and store sentinels to HTTP status codes.
func respondEngineError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrSweepInProgress):
		status = http.StatusConflict
	case errors.Is(err, embedding.ErrEmbedding):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Printf("handlers: %s: %v", message, err)
	}
	respondError(w, status, message, err)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
