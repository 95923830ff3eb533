package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/server/handler"
	"github.com/alanyoungcy/marketfund/internal/server/middleware"
	"github.com/alanyoungcy/marketfund/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AuthToken   string // if empty, authentication is disabled
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Markets *handler.MarketHandler
	Fund    *handler.FundHandler
}

// Server is the headless HTTP + WebSocket API of the market panels.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// hub, metrics and limiter are optional.
func NewServer(
	cfg Config,
	handlers Handlers,
	hub *ws.Hub,
	metrics http.Handler,
	limiter domain.RateLimiter,
	observe middleware.RequestObserver,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Market view panel.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{address}", handlers.Markets.GetMarket)
	mux.HandleFunc("PUT /api/markets/{address}", handlers.Markets.SyncMarket)
	mux.HandleFunc("POST /api/markets/{address}/navigate", handlers.Markets.Navigate)

	// Funding panel.
	mux.HandleFunc("GET /api/markets/{address}/fund", handlers.Fund.GetFund)
	mux.HandleFunc("PUT /api/markets/{address}/fund/amount", handlers.Fund.SetAmount)
	mux.HandleFunc("POST /api/markets/{address}/fund/max", handlers.Fund.UseMax)
	mux.HandleFunc("POST /api/markets/{address}/fund/add", handlers.Fund.AddFunding)
	mux.HandleFunc("POST /api/markets/{address}/fund/remove", handlers.Fund.RemoveFunding)
	mux.HandleFunc("GET /api/markets/{address}/fund/history", handlers.Fund.History)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.AuthToken)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger, observe)(h)
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
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
