package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapbot/internal/crypto"
	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/server"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/server/middleware"
	"github.com/alanyoungcy/swapbot/internal/server/ws"
)

// ServerMode serves the HTTP API and WebSocket feed, runs the take-profit /
// stop-loss monitor, and drains in-flight trades on shutdown.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	if err := a.useConfiguredKey(ctx, deps); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Executor.Run(ctx)
	})
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "redis disabled, websocket feed not available")
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		StaticDir:       a.cfg.Server.StaticDir,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, a.handlers(deps), hub, a.rateLimiter(deps), a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		a.drain(deps)

		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MonitorMode runs the take-profit / stop-loss loop headless for the wallet
// configured in [wallet]. No HTTP server is started.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if err := a.useConfiguredKey(ctx, deps); err != nil {
		return err
	}
	if _, ok := deps.Wallets.Info(); !ok {
		return fmt.Errorf("app: monitor mode: %w", domain.ErrNoWallet)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Executor.Run(ctx)
	})
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.drain(deps)
		return nil
	})

	return g.Wait()
}

// ArchiveMode uploads closed positions older than s3.retention_days to object
// storage, deletes them from postgres, and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode: archiver not configured (requires postgres and s3)")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive mode", slog.Time("cutoff", cutoff))

	n, err := deps.Archiver.ArchiveClosedPositions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete", slog.Int64("positions", n))
	return nil
}

// useConfiguredKey installs the held key from [wallet], if any, and starts
// monitoring as a wallet connection would.
func (a *App) useConfiguredKey(ctx context.Context, deps *Dependencies) error {
	if a.cfg.Wallet.PrivateKey == "" && a.cfg.Wallet.EncryptedKeyPath == "" {
		return nil
	}
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load wallet key: %w", err)
	}
	signer := crypto.NewHeldKeySigner(key)
	deps.Wallets.Use(signer)
	deps.Monitor.Start(a.cfg.Monitor.Interval.Duration)

	a.logger.InfoContext(ctx, "wallet loaded from configuration",
		slog.String("public_key", signer.PublicKey()),
	)
	return nil
}

// drain stops new trades and waits for in-flight ones, bounded by
// trading.drain_timeout.
func (a *App) drain(deps *Dependencies) {
	drainCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Trading.DrainTimeout.Duration)
	defer cancel()

	a.logger.Info("draining in-flight trades",
		slog.Duration("timeout", a.cfg.Trading.DrainTimeout.Duration),
	)
	if err := deps.Executor.Drain(drainCtx); err != nil {
		a.logger.Warn("drain incomplete", slog.String("error", err.Error()))
	}
}

func (a *App) handlers(deps *Dependencies) server.Handlers {
	// Typed nil pointers must not reach the handlers' optional interfaces.
	var (
		history handler.HistoryLister
		fills   handler.FillLister
		audit   handler.AuditLister
	)
	if deps.History != nil {
		history = deps.History
	}
	if deps.Trades != nil {
		fills = deps.Trades
		audit = deps.Audit
	}

	h := server.Handlers{
		Health:     handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:     handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), deps.Wallets, deps.Monitor, deps.Positions),
		Wallet:     handler.NewWalletHandler(deps.Wallets, a.logger),
		Trade:      handler.NewTradeHandler(deps.Executor, deps.Wallets, a.logger),
		Positions:  handler.NewPositionHandler(deps.Positions, history, deps.Wallets, a.logger),
		Monitoring: handler.NewMonitoringHandler(deps.Monitor, a.logger),
		Signing:    handler.NewSigningHandler(deps.Wallets, a.logger),
		Records:    handler.NewRecordsHandler(fills, audit, deps.Wallets, a.logger),
	}
	if deps.SignalBus != nil {
		h.Events = handler.NewEventsHandler(deps.SignalBus, a.logger)
	}
	return h
}

// rateLimiter prefers the shared Redis limiter so limits hold across
// replicas, and falls back to a per-process one.
func (a *App) rateLimiter(deps *Dependencies) domain.RateLimiter {
	if deps.RateLimiter != nil {
		return deps.RateLimiter
	}
	return middleware.NewLocalLimiter()
}
