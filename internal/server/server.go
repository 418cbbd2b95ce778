package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/server/handler"
	"github.com/prophezy/oracle-resolver/internal/server/middleware"
	"github.com/prophezy/oracle-resolver/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // guards mutating oracle routes; empty disables auth
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Oracle    *handler.OracleHandler
	Markets   *handler.MarketHandler
	Directory *handler.DirectoryHandler
	Users     *handler.UserHandler
	Metrics   http.Handler // optional Prometheus endpoint
}

// Options carries optional server collaborators.
type Options struct {
	Hub      *ws.Hub
	Limiter  domain.RateLimiter
	Observer middleware.HTTPObserver
}

// Server is the HTTP + WebSocket API of the oracle service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, metrics, rate limit, auth) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, opts Options, logger *slog.Logger) *Server {
	mux := Routes(cfg, handlers, opts.Hub)

	var h http.Handler = mux
	if opts.Limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(opts.Limiter, cfg.RateLimit, window, logger)(h)
	}
	if opts.Observer != nil {
		h = middleware.Metrics(opts.Observer)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Routes registers every endpoint on a new ServeMux. Mutating oracle routes
// require the API key.
func Routes(cfg Config, handlers Handlers, hub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireKey(cfg.APIKey)

	// Health check (no auth required).
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	// Oracle endpoints.
	mux.Handle("POST /api/oracle/resolve/{marketId}", auth(http.HandlerFunc(handlers.Oracle.Resolve)))
	mux.Handle("POST /api/oracle/challenge/{marketId}", auth(http.HandlerFunc(handlers.Oracle.Challenge)))
	mux.HandleFunc("GET /api/oracle/status", handlers.Oracle.Status)
	mux.HandleFunc("GET /api/oracle/metrics", handlers.Oracle.Metrics)
	mux.HandleFunc("GET /api/oracle/recent-resolutions", handlers.Oracle.RecentResolutions)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/positions", handlers.Markets.ListPositions)
	mux.HandleFunc("POST /api/markets/{id}/positions", handlers.Markets.RecordPosition)
	mux.HandleFunc("GET /api/markets/{id}/chat", handlers.Markets.ListChat)
	mux.HandleFunc("POST /api/markets/{id}/chat", handlers.Markets.PostChat)
	mux.HandleFunc("GET /api/markets/{id}/notes", handlers.Markets.ListNotes)
	mux.HandleFunc("POST /api/markets/{id}/notes", handlers.Markets.PostNote)

	// Directory and user endpoints.
	mux.HandleFunc("GET /api/directory", handlers.Directory.List)
	mux.HandleFunc("GET /api/users/{address}/positions", handlers.Users.Positions)
	mux.HandleFunc("GET /api/users/{address}/stats", handlers.Users.Stats)
	mux.HandleFunc("GET /api/leaderboard", handlers.Users.Leaderboard)

	// WebSocket endpoint.
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
	return mux
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
