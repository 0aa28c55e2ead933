package handlers

import (
	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StoreRequest is the request body for POST /api/memories.
type StoreRequest struct {
	OwnerID string           `json:"owner_id"`
	Content string           `json:"content"`
	Context types.RawContext `json:"context"`

	// Optional overrides of the classifier and the factor estimate.
	Emotion           *types.EmotionResult       `json:"emotion,omitempty"`
	Factors           *types.SignificanceFactors `json:"factors,omitempty"`
	RelationshipDepth string                     `json:"relationship_depth,omitempty"`
}

// StoreResponse is the response for POST /api/memories.
type StoreResponse struct {
	ID string `json:"id"`
}

// QueryRequest is the request body for POST /api/memories/query.
type QueryRequest struct {
	OwnerID           string                      `json:"owner_id"`
	Text              string                      `json:"text"`
	Context           types.RawContext            `json:"context"`
	Limit             int                         `json:"limit,omitempty"`
	Weights           map[types.Dimension]float64 `json:"weights,omitempty"`
	RelationshipDepth string                      `json:"relationship_depth,omitempty"`
}

// QueryResponse is the response for POST /api/memories/query.
type QueryResponse struct {
	Results []engine.ScoredRecord `json:"results"`
	Count   int                   `json:"count"`
}

// DebugQueryResponse is the response for POST /api/debug/query-trace.
type DebugQueryResponse struct {
	Results []engine.ScoredRecord    `json:"results"`
	Trace   *engine.DebugQueryResult `json:"trace"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}
