package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/swapbot/internal/blob/s3"
	"github.com/alanyoungcy/swapbot/internal/cache/redis"
	"github.com/alanyoungcy/swapbot/internal/config"
	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/executor"
	"github.com/alanyoungcy/swapbot/internal/notify"
	"github.com/alanyoungcy/swapbot/internal/platform/jupiter"
	"github.com/alanyoungcy/swapbot/internal/platform/solana"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/service"
	"github.com/alanyoungcy/swapbot/internal/store/memory"
	"github.com/alanyoungcy/swapbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core trading path
	Positions  *memory.PositionStore
	Ledger     *solana.Client
	Aggregator *jupiter.Client
	Quotes     *service.QuoteService
	Submitter  *service.Submitter
	Wallets    *service.WalletService
	Monitor    *service.Monitor
	Executor   *executor.Executor

	// PostgreSQL, nil unless postgres.enabled
	Trades  domain.TradeStore
	History *postgres.PositionHistoryStore
	Audit   domain.AuditStore

	// Redis, nil unless redis.enabled
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// S3, nil unless s3.enabled and postgres is available
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// HealthChecks are probed by GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}
	mode := strings.ToLower(cfg.Mode)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Trades = postgres.NewTradeStore(pool)
		deps.History = postgres.NewPositionHistoryStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// Archiving reads closed positions from postgres; nothing else is needed
	// for it.
	if mode == "archive" {
		if err := wireArchiver(ctx, cfg, deps, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
		return deps, cleanup, nil
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Chain and aggregator ---
	deps.Ledger = solana.New(solana.Config{
		RPCURL:      cfg.Solana.RPCURL,
		Commitment:  cfg.Solana.Commitment,
		ConfirmPoll: cfg.Submit.ConfirmPoll.Duration,
	}, logger)
	deps.HealthChecks["solana"] = func(ctx context.Context) error {
		_, err := deps.Ledger.LatestCheckpoint(ctx)
		return err
	}

	deps.Aggregator = jupiter.New(jupiter.Config{
		QuoteURL:          cfg.Jupiter.QuoteURL,
		SwapURL:           cfg.Jupiter.SwapURL,
		RequestsPerSecond: cfg.Jupiter.RequestsPerSecond,
		BreakerFailures:   uint32(max(cfg.Jupiter.BreakerFailures, 0)),
		BreakerCooldown:   cfg.Jupiter.BreakerCooldown.Duration,
	})

	// --- Services ---
	deps.Positions = memory.NewPositionStore()
	deps.Quotes = service.NewQuoteService(deps.Aggregator, deps.PriceCache, service.QuoteConfig{
		Timeout:     cfg.Jupiter.QuoteTimeout.Duration,
		ProbeAmount: cfg.Monitor.ProbeAmount,
		SlippageBps: cfg.Trading.DefaultSlippageBps,
	}, logger)
	deps.Submitter = service.NewSubmitter(deps.Aggregator, deps.Ledger, service.SubmitConfig{
		Fee: domain.FeeOptions{
			MaxLamports:   cfg.Jupiter.MaxFeeLamports,
			PriorityLevel: cfg.Jupiter.PriorityLevel,
		},
		MaxRetries:     cfg.Submit.MaxRetries,
		RetryDelay:     cfg.Submit.RetryDelay.Duration,
		ConfirmTimeout: cfg.Submit.ConfirmTimeout.Duration,
	}, logger)
	deps.Wallets = service.NewWalletService(
		deps.Ledger,
		nil, // attached below, once the monitor exists
		cfg.Monitor.Interval.Duration,
		cfg.Wallet.ClientSignTimeout.Duration,
		logger,
	)

	execDeps := executor.Deps{
		Positions: deps.Positions,
		Quotes:    deps.Quotes,
		Submitter: deps.Submitter,
		Ledger:    deps.Ledger,
		Wallets:   deps.Wallets,
		Notifier:  deps.Notifier,
	}
	// Typed nils must not reach the executor's optional interfaces.
	if deps.Trades != nil {
		execDeps.Trades = deps.Trades
		execDeps.History = deps.History
		execDeps.Audit = deps.Audit
	}
	if deps.SignalBus != nil {
		execDeps.Bus = deps.SignalBus
		execDeps.Locks = deps.LockManager
	}
	deps.Executor = executor.NewExecutor(execDeps, executor.Config{
		DefaultSlippageBps: cfg.Trading.DefaultSlippageBps,
		TradeTimeout:       cfg.Trading.TradeTimeout.Duration,
		LockTTL:            cfg.Redis.LockTTL.Duration,
		DedupWindow:        cfg.Trading.DedupWindow.Duration,
		PendingExpiry:      cfg.Trading.PendingExpiry.Duration,
	}, logger)

	deps.Monitor = service.NewMonitor(deps.Positions, deps.Quotes, deps.Executor, deps.Executor, service.MonitorConfig{
		Interval:     cfg.Monitor.Interval.Duration,
		Workers:      cfg.Monitor.Workers,
		ProbeTimeout: cfg.Monitor.ProbeTimeout.Duration,
		SellTimeout:  cfg.Monitor.SellTimeout.Duration,
		AutoStart:    cfg.Monitor.AutoStart,
	}, logger)
	deps.Wallets.AttachMonitor(deps.Monitor)

	if cfg.S3.Enabled {
		if err := wireArchiver(ctx, cfg, deps, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return deps, cleanup, nil
}

// wireArchiver connects object storage and builds the closed-position
// archiver on top of the postgres history store.
func wireArchiver(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	if !cfg.S3.Enabled || deps.History == nil {
		return nil
	}
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return fmt.Errorf("wire: s3: %w", err)
	}
	deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.History, deps.Audit, logger)
	deps.HealthChecks["s3"] = s3Client.Health
	return nil
}
