// Package server exposes the swap engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/server/middleware"
	"github.com/alanyoungcy/swapbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // empty disables authentication
	StaticDir       string // optional web UI
	RateLimit       int    // requests per window per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Events is nil
// without a SignalBus.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Wallet     *handler.WalletHandler
	Trade      *handler.TradeHandler
	Positions  *handler.PositionHandler
	Monitoring *handler.MonitoringHandler
	Signing    *handler.SigningHandler
	Events     *handler.EventsHandler
	Records    *handler.RecordsHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in CORS, logging, optional
// rate limiting and auth. wsHub and limiter may be nil.
func NewServer(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("POST /api/connect-wallet", h.Wallet.ConnectWallet)
	mux.HandleFunc("GET /api/wallet", h.Wallet.GetWallet)

	mux.HandleFunc("POST /api/buy-token", h.Trade.BuyToken)
	mux.HandleFunc("POST /api/sell-token", h.Trade.SellToken)

	mux.HandleFunc("GET /api/positions", h.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/history", h.Positions.ListHistory)

	mux.HandleFunc("POST /api/monitoring/start", h.Monitoring.StartMonitoring)
	mux.HandleFunc("GET /api/monitoring", h.Monitoring.GetMonitoring)

	mux.HandleFunc("GET /api/signing-requests", h.Signing.ListRequests)
	mux.HandleFunc("POST /api/signing-requests/{id}", h.Signing.CompleteRequest)

	if h.Records != nil {
		mux.HandleFunc("GET /api/trades", h.Records.ListTrades)
		mux.HandleFunc("GET /api/audit", h.Records.ListAudit)
	}
	if h.Events != nil {
		mux.HandleFunc("GET /api/events", h.Events.ListEvents)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	if cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	var hdl http.Handler = mux
	hdl = middleware.Auth(cfg.APIKey, "/api/health")(hdl)
	if limiter != nil && cfg.RateLimit > 0 {
		hdl = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(hdl)
	}
	hdl = middleware.Logging(logger)(hdl)
	hdl = middleware.CORS(cfg.CORSOrigins)(hdl)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           hdl,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Trades wait for on-chain confirmation.
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
