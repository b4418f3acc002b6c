package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praptisharma28/consciousness-oracle/internal/engine"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/pkg/types"
	"github.com/praptisharma28/consciousness-oracle/web/handlers"
)

type fakeEngine struct {
	err      error
	lastID   string
	lastText string
}

func (f *fakeEngine) ChatReply(_ context.Context, id, text string) (*types.EntitySnapshot, error) {
	f.lastID, f.lastText = id, text
	if f.err != nil {
		return nil, f.err
	}
	return types.NewEntitySnapshot(&types.Entity{ID: id, Symbol: "AURA", Awareness: 2852}, []*types.Message{
		{ID: "m1", EntityID: id, Sender: types.SenderUser, Text: text},
	}), nil
}

func (f *fakeEngine) AutonomousAction(_ context.Context, id string) (*types.EntitySnapshot, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return types.NewEntitySnapshot(&types.Entity{ID: id, AutonomousActionCount: 3}, nil), nil
}

func (f *fakeEngine) ListEntities(context.Context) ([]*types.EntitySnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*types.EntitySnapshot{
		types.NewEntitySnapshot(&types.Entity{ID: "a", Symbol: "AURA"}, nil),
	}, nil
}

func (f *fakeEngine) TotalAttention(context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 312, nil
}

func newMux(f *fakeEngine) *http.ServeMux {
	h := handlers.NewTokenHandlers(f, f, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tokens", h.ListTokens)
	mux.HandleFunc("GET /api/attention", h.GetAttention)
	mux.HandleFunc("POST /api/tokens/{id}/chat", h.Chat)
	mux.HandleFunc("POST /api/tokens/{id}/action", h.Action)
	return mux
}

func TestListTokens(t *testing.T) {
	w := httptest.NewRecorder()
	newMux(&fakeEngine{}).ServeHTTP(w, httptest.NewRequest("GET", "/api/tokens", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "AURA", got[0]["symbol"])
	assert.Equal(t, []any{}, got[0]["messages"])
}

func TestGetAttention(t *testing.T) {
	w := httptest.NewRecorder()
	newMux(&fakeEngine{}).ServeHTTP(w, httptest.NewRequest("GET", "/api/attention", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalAttention":312}`, w.Body.String())
}

func TestChat(t *testing.T) {
	f := &fakeEngine{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/tokens/abc/chat", strings.NewReader(`{"message":"Hello AURA"}`))
	newMux(f).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", f.lastID)
	assert.Equal(t, "Hello AURA", f.lastText)

	var got struct {
		Token struct {
			ID            string `json:"id"`
			Consciousness int    `json:"consciousness"`
			Messages      []struct {
				Sender string `json:"sender"`
				Text   string `json:"text"`
			} `json:"messages"`
		} `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.Token.ID)
	assert.Equal(t, 2852, got.Token.Consciousness)
	require.Len(t, got.Token.Messages, 1)
	assert.Equal(t, "user", got.Token.Messages[0].Sender)
}

func TestChat_InvalidBody(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/tokens/abc/chat", strings.NewReader(`{"message":`))
	newMux(&fakeEngine{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAction(t *testing.T) {
	f := &fakeEngine{}
	w := httptest.NewRecorder()
	newMux(f).ServeHTTP(w, httptest.NewRequest("POST", "/api/tokens/void-id/action", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "void-id", f.lastID)
	assert.Contains(t, w.Body.String(), `"autonomous_actions":3`)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
		leaks      string
	}{
		{"not found", storage.ErrNotFound, http.StatusNotFound, "token not found", ""},
		{"invalid input", fmt.Errorf("%w: message text is required", storage.ErrInvalidInput), http.StatusBadRequest, "message text is required", ""},
		{"configuration", fmt.Errorf("%w: no replies configured for NOVA", engine.ErrConfiguration), http.StatusInternalServerError, "internal server error", "NOVA"},
		{"transient", fmt.Errorf("%w: dial tcp: connection refused", storage.ErrTransient), http.StatusInternalServerError, "internal server error", "connection refused"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/tokens/x/chat", "/api/tokens/x/action"} {
				w := httptest.NewRecorder()
				req := httptest.NewRequest("POST", path, strings.NewReader(`{"message":"hi"}`))
				newMux(&fakeEngine{err: tt.err}).ServeHTTP(w, req)

				assert.Equal(t, tt.wantStatus, w.Code, path)
				assert.Contains(t, w.Body.String(), tt.wantBody, path)
				if tt.leaks != "" {
					assert.NotContains(t, w.Body.String(), tt.leaks, "server errors must not leak details")
				}
			}
		})
	}
}

func TestReadErrorsAreGeneric(t *testing.T) {
	f := &fakeEngine{err: fmt.Errorf("%w: circuit open", storage.ErrTransient)}
	for _, path := range []string{"/api/tokens", "/api/attention"} {
		w := httptest.NewRecorder()
		newMux(f).ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "circuit")
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeBreaker string

func (b fakeBreaker) State() string { return string(b) }

func TestHealthHandler(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	defer hub.Stop()

	w := httptest.NewRecorder()
	handlers.NewHealthHandler(fakePinger{}, fakeBreaker("closed"), hub, "test").
		ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"test","store":"ok","breaker":"closed","observers":0}`, w.Body.String())

	w = httptest.NewRecorder()
	handlers.NewHealthHandler(fakePinger{err: errors.New("down")}, fakeBreaker("open"), nil, "test").
		ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"unreachable"`)
}
