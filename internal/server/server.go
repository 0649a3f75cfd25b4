// Package server assembles the HTTP and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/server/handler"
	"github.com/alanyoungcy/wagerloo/internal/server/middleware"
	"github.com/alanyoungcy/wagerloo/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// VoteRateLimit votes per VoteRateWindow per caller; zero disables.
	VoteRateLimit  int
	VoteRateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Profiles *handler.ProfileHandler
	Markets  *handler.MarketHandler
	Votes    *handler.VoteHandler
}

// Deps are cross-cutting collaborators. Limiter and Hub may be nil.
type Deps struct {
	Tokens  middleware.TokenVerifier
	Limiter domain.RateLimiter
	Hub     *ws.Hub
}

// Server is the WagerLoo API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, deps, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("POST /api/auth/register", handlers.Auth.Register)
	mux.HandleFunc("GET /api/auth/verify", handlers.Auth.VerifyLink)
	mux.HandleFunc("POST /api/auth/verify", handlers.Auth.Verify)
	mux.HandleFunc("POST /api/auth/login", handlers.Auth.Login)

	mux.HandleFunc("GET /api/profile", handlers.Profiles.GetProfile)
	mux.HandleFunc("POST /api/profile", handlers.Profiles.CreateProfile)
	mux.HandleFunc("PUT /api/profile", handlers.Profiles.UpdateProfile)
	mux.HandleFunc("GET /api/profiles/{id}/{kind}", handlers.Profiles.Asset)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/leaderboard", handlers.Markets.Leaderboard)

	var vote http.Handler = http.HandlerFunc(handlers.Votes.Cast)
	if deps.Limiter != nil && cfg.VoteRateLimit > 0 {
		vote = middleware.RateLimit(deps.Limiter, "vote", cfg.VoteRateLimit, cfg.VoteRateWindow, handler.WriteError, logger)(vote)
	}
	mux.Handle("POST /api/vote", vote)

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	// Identity runs first so logging and rate limiting see the caller.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.Identity(deps.Tokens)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
