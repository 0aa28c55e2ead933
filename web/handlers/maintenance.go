package handlers

import (
	"net/http"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
)

// MaintenanceHandler exposes operator actions on the memory engine.
type MaintenanceHandler struct {
	engine *engine.MemoryEngine
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(eng *engine.MemoryEngine) *MaintenanceHandler {
	return &MaintenanceHandler{engine: eng}
}

// RunSweep handles POST /api/maintenance/sweep. It runs one aging pass
// synchronously and returns its counts; 409 if a sweep is already running.
func (h *MaintenanceHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Sweep(r.Context())
	if err != nil {
		respondEngineError(w, "sweep failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
