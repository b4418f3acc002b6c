package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/praptisharma28/consciousness-oracle/internal/engine"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// maxChatBody caps the size of a chat request body.
const maxChatBody = 64 << 10

// Mutator changes entities on behalf of HTTP callers.
type Mutator interface {
	ChatReply(ctx context.Context, id, text string) (*types.EntitySnapshot, error)
	AutonomousAction(ctx context.Context, id string) (*types.EntitySnapshot, error)
}

// Querier serves the read-only views.
type Querier interface {
	ListEntities(ctx context.Context) ([]*types.EntitySnapshot, error)
	TotalAttention(ctx context.Context) (int, error)
}

// TokenHandlers serves the /api/tokens and /api/attention routes.
type TokenHandlers struct {
	mutator Mutator
	query   Querier
	logger  *slog.Logger
}

// NewTokenHandlers creates the token handlers. A nil logger uses slog.Default().
func NewTokenHandlers(mutator Mutator, query Querier, logger *slog.Logger) *TokenHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandlers{mutator: mutator, query: query, logger: logger}
}

// ListTokens handles GET /api/tokens.
// Returns every entity with its history, highest awareness first.
func (h *TokenHandlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.query.ListEntities(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tokens)
}

// GetAttention handles GET /api/attention.
func (h *TokenHandlers) GetAttention(w http.ResponseWriter, r *http.Request) {
	total, err := h.query.TotalAttention(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, AttentionResponse{TotalAttention: total})
}

// Chat handles POST /api/tokens/{id}/chat.
func (h *TokenHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "token id is required", nil)
		return
	}

	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	token, err := h.mutator.ChatReply(r.Context(), id, req.Message)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Action handles POST /api/tokens/{id}/action.
func (h *TokenHandlers) Action(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "token id is required", nil)
		return
	}

	token, err := h.mutator.AutonomousAction(r.Context(), id)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// respondFailure maps engine and storage errors onto status codes. Only
// client errors carry details; everything else gets a generic body.
func (h *TokenHandlers) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "token not found", nil)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, engine.ErrConfiguration):
		h.logger.Error("request failed", "kind", "configuration", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error", nil)
	case errors.Is(err, storage.ErrTransient):
		h.logger.Error("request failed", "kind", "transient", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error", nil)
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

// BreakerState is implemented by stores guarded by a circuit breaker.
type BreakerState interface {
	State() string
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	store   storage.Pinger
	breaker BreakerState
	hub     *WebSocketHub
	version string
}

// NewHealthHandler creates the health handler. store and breaker may be nil.
func NewHealthHandler(store storage.Pinger, breaker BreakerState, hub *WebSocketHub, version string) *HealthHandler {
	return &HealthHandler{store: store, breaker: breaker, hub: hub, version: version}
}

// ServeHTTP reports store reachability. It answers 503 when the store
// cannot be reached so load balancers can act on it.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Version: h.version, Store: "ok"}
	if h.hub != nil {
		resp.Observers = h.hub.Count()
	}
	if h.breaker != nil {
		resp.Breaker = h.breaker.State()
	}

	status := http.StatusOK
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Store = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, resp)
}
