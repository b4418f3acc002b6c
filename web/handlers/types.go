package handlers

import "github.com/praptisharma28/consciousness-oracle/pkg/types"

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ChatRequest is the request body for POST /api/tokens/{id}/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// TokenResponse wraps the entity returned by chat and action.
type TokenResponse struct {
	Token *types.EntitySnapshot `json:"token"`
}

// AttentionResponse is the response format for GET /api/attention.
type AttentionResponse struct {
	TotalAttention int `json:"totalAttention"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Breaker   string `json:"breaker,omitempty"`
	Observers int    `json:"observers"`
}
