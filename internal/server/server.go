// Package server hosts the HTTP + WebSocket API for the vault.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gasvaultlabs/gasvault/internal/domain"
	"github.com/gasvaultlabs/gasvault/internal/server/handler"
	"github.com/gasvaultlabs/gasvault/internal/server/middleware"
	"github.com/gasvaultlabs/gasvault/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	RoleKeys    middleware.RoleKeys

	// RateLimit requests per client IP within RateWindow. Zero disables
	// rate limiting even when a limiter is provided.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Vault     *handler.VaultHandler
	Positions *handler.PositionHandler
	Admin     *handler.AdminHandler
}

// Server is the headless HTTP + WebSocket API server for the vault.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be
// nil to run without rate limiting.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Lifecycle flows. Claim authenticates via signature recovery, not an
	// API key, so none of these require a token at the HTTP layer.
	mux.HandleFunc("POST /api/purchase", handlers.Vault.Purchase)
	mux.HandleFunc("POST /api/redeem", handlers.Vault.Redeem)
	mux.HandleFunc("POST /api/claim", handlers.Vault.Claim)

	// Position lookups.
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.Get)

	// Administrative subtree: requires any valid API key; the service
	// layer enforces the exact role on mutating operations.
	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/admin/destinations", handlers.Admin.RegisterDestination)
	admin.HandleFunc("GET /api/admin/destinations", handlers.Admin.ListDestinations)
	admin.HandleFunc("PUT /api/admin/operator", handlers.Admin.SetOperator)
	admin.HandleFunc("PUT /api/admin/venue", handlers.Admin.SetVenue)
	admin.HandleFunc("PUT /api/admin/bridge", handlers.Admin.SetBridge)
	admin.HandleFunc("POST /api/admin/fees/sweep", handlers.Admin.SweepFees)
	admin.HandleFunc("GET /api/admin/fees", handlers.Admin.GetFees)
	admin.HandleFunc("GET /api/admin/deliveries", handlers.Admin.ListDeliveries)
	admin.HandleFunc("POST /api/admin/deliveries/{id}/retry", handlers.Admin.RetryDelivery)
	admin.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)
	mux.Handle("/api/admin/", middleware.RequireAuth(admin))

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.RoleAuth(cfg.RoleKeys)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
