// Package server provides HTTP server initialization and lifecycle management
// for the oracle's REST API and websocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/praptisharma28/consciousness-oracle/internal/config"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/web/handlers"
)

const shutdownTimeout = 5 * time.Second

// Deps are the collaborators the routes are served from. Mutator, Query and
// Hub are required.
type Deps struct {
	Mutator handlers.Mutator
	Query   handlers.Querier
	Hub     *handlers.WebSocketHub

	// Store and Breaker feed /api/health. Either may be nil.
	Store   storage.Pinger
	Breaker handlers.BreakerState

	Version string
	Logger  *slog.Logger
}

// NewHandler builds the full middleware-wrapped route tree.
func NewHandler(cfg *config.Config, deps Deps) http.Handler {
	tokens := handlers.NewTokenHandlers(deps.Mutator, deps.Query, deps.Logger)
	health := handlers.NewHealthHandler(deps.Store, deps.Breaker, deps.Hub, deps.Version)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tokens", tokens.ListTokens)
	mux.HandleFunc("GET /api/attention", tokens.GetAttention)
	mux.HandleFunc("POST /api/tokens/{id}/chat", tokens.Chat)
	mux.HandleFunc("POST /api/tokens/{id}/action", tokens.Action)
	mux.Handle("GET /api/health", health)

	// Observers connect on /ws; older clients open the socket on the root.
	mux.Handle("/ws", deps.Hub)
	mux.Handle("/", handlers.UpgradeOr(deps.Hub, http.NotFoundHandler()))

	var limiter *handlers.RateLimiter
	if cfg.Security.RateLimit > 0 {
		limiter = handlers.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst)
	}

	// Wrap with rate limiting, CORS, then security headers
	handler := handlers.RateLimitMiddleware(mux, limiter)
	handler = handlers.CORSMiddleware(handler, cfg.Security.AllowedOrigins)
	handler = handlers.SecurityHeadersMiddleware(handler)
	return handler
}

// Start binds the configured address and serves until ctx is cancelled,
// then shuts the server down and disconnects every observer.
// Returns the actual address being listened on (useful for testing with port 0)
// and a channel that is closed once shutdown has finished draining requests.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, <-chan struct{}, error) {
	if deps.Mutator == nil || deps.Query == nil || deps.Hub == nil {
		return "", nil, errors.New("server: mutator, query and hub are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr := cfg.Server.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      NewHandler(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deps.Hub.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown error", "error", err)
		}
	}()

	logger.Info("oracle listening", "addr", actualAddr)
	return actualAddr, done, nil
}
