package handlers

import (
	"net/http"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
)

// DebugHandler exposes query explanation endpoints.
type DebugHandler struct {
	engine *engine.MemoryEngine
}

// NewDebugHandler creates a DebugHandler.
func NewDebugHandler(eng *engine.MemoryEngine) *DebugHandler {
	return &DebugHandler{engine: eng}
}

// QueryTrace handles POST /api/debug/query-trace. It accepts a QueryRequest
// and returns the results together with the per-dimension fusion trace.
// Returned records count as accessed, exactly as for a normal query.
func (h *DebugHandler) QueryTrace(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OwnerID == "" || req.Text == "" {
		respondError(w, http.StatusBadRequest, "owner_id and text are required", nil)
		return
	}

	res, trace, err := h.engine.DebugQuery(r.Context(), req.OwnerID, req.Text, req.Context, req.Limit, queryOptions(req)...)
	if err != nil {
		respondEngineError(w, "debug query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, DebugQueryResponse{Results: res.Records, Trace: trace})
}
