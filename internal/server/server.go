// Package server provides HTTP server initialization and lifecycle management
// for the memory service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
	"github.com/whisperengine-ai/whisperengine-sub002/web/handlers"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 5 * time.Second

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the chi router for the memory API. hub receives the
// engine's lifecycle events and serves /ws/events.
func NewRouter(cfg *config.Config, eng *engine.MemoryEngine, hub *handlers.WebSocketHub) http.Handler {
	apiHandlers := handlers.NewAPIHandlers(eng)
	maintenanceHandler := handlers.NewMaintenanceHandler(eng)
	debugHandler := handlers.NewDebugHandler(eng)
	limiter := handlers.NewRateLimiter(cfg.Security.RequestsPerSecond, cfg.Security.Burst)

	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /api/health)
	r.Use(handlers.RequestID)
	r.Use(handlers.RequestLogger)
	r.Use(handlers.Recovery)
	r.Use(securityHeadersMiddleware)
	r.Use(limiter.Middleware)

	// Health is public for monitoring
	r.Get("/api/health", apiHandlers.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(handlers.RequireAuth(cfg.Security))

		r.Route("/api/memories", func(r chi.Router) {
			r.Post("/", apiHandlers.StoreMemory)
			r.Post("/query", apiHandlers.QueryMemories)
			r.Delete("/{id}", apiHandlers.DeleteMemory)
		})
		r.Post("/api/maintenance/sweep", maintenanceHandler.RunSweep)
		r.Post("/api/debug/query-trace", debugHandler.QueryTrace)
		r.Handle("/ws/events", hub)
	})

	return r
}

// Start listens on the configured address and serves the API until ctx is
// canceled, then shuts down gracefully. It returns the actual address being
// listened on (useful for testing with port 0) and the WebSocketHub
// subscribed to eng's events.
func Start(ctx context.Context, cfg *config.Config, eng *engine.MemoryEngine) (string, *handlers.WebSocketHub, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	hub := handlers.NewWebSocketHub([]string{
		fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
		fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
	})
	eng.OnEvent(hub.Publish)

	// Create server with security timeouts
	server := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(cfg, eng, hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}
