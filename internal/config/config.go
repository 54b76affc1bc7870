// Package config defines the top-level configuration for the swap bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SWAPBOT_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Solana   SolanaConfig   `toml:"solana"`
	Jupiter  JupiterConfig  `toml:"jupiter"`
	Trading  TradingConfig  `toml:"trading"`
	Submit   SubmitConfig   `toml:"submit"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds Solana wallet credentials. When neither PrivateKey nor
// EncryptedKeyPath is set, a wallet must be connected at runtime over HTTP.
type WalletConfig struct {
	PrivateKey        string   `toml:"private_key"` // base58 64-byte secret key
	EncryptedKeyPath  string   `toml:"encrypted_key_path"`
	KeyPassword       string   `toml:"key_password"`
	ClientSignTimeout duration `toml:"client_sign_timeout"`
}

// SolanaConfig holds the JSON-RPC endpoint.
type SolanaConfig struct {
	RPCURL     string `toml:"rpc_url"`
	Commitment string `toml:"commitment"`
}

// JupiterConfig holds the aggregator endpoints and client limits.
type JupiterConfig struct {
	QuoteURL          string   `toml:"quote_url"`
	SwapURL           string   `toml:"swap_url"`
	QuoteTimeout      duration `toml:"quote_timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	BreakerFailures   int      `toml:"breaker_failures"`
	BreakerCooldown   duration `toml:"breaker_cooldown"`
	MaxFeeLamports    uint64   `toml:"max_fee_lamports"`
	PriorityLevel     string   `toml:"priority_level"`
}

// TradingConfig holds defaults applied to buy and sell requests.
type TradingConfig struct {
	DefaultSlippageBps int      `toml:"default_slippage_bps"`
	DedupWindow        duration `toml:"dedup_window"`
	DrainTimeout       duration `toml:"drain_timeout"`
	TradeTimeout       duration `toml:"trade_timeout"`  // whole buy or sell, confirmation included
	PendingExpiry      duration `toml:"pending_expiry"` // unknown signature counts as failed after this
}

// SubmitConfig controls broadcast retries and confirmation.
type SubmitConfig struct {
	MaxRetries     int      `toml:"max_retries"`
	RetryDelay     duration `toml:"retry_delay"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
	ConfirmPoll    duration `toml:"confirm_poll"`
}

// MonitorConfig controls the take-profit / stop-loss loop.
type MonitorConfig struct {
	Interval     duration `toml:"interval"`
	Workers      int      `toml:"workers"`
	ProbeAmount  uint64   `toml:"probe_amount"`
	ProbeTimeout duration `toml:"probe_timeout"`
	SellTimeout  duration `toml:"sell_timeout"`
	AutoStart    bool     `toml:"auto_start"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	PriceTTL     duration `toml:"price_ttl"`
	LockTTL      duration `toml:"lock_ttl"`
	StreamMaxLen int      `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	StaticDir       string   `toml:"static_dir"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Wallet: WalletConfig{
			ClientSignTimeout: duration{2 * time.Minute},
		},
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
		},
		Jupiter: JupiterConfig{
			QuoteURL:          "https://quote-api.jup.ag/v6/quote",
			SwapURL:           "https://quote-api.jup.ag/v6/swap",
			QuoteTimeout:      duration{10 * time.Second},
			RequestsPerSecond: 5,
			BreakerFailures:   5,
			BreakerCooldown:   duration{30 * time.Second},
			MaxFeeLamports:    10_000_000,
			PriorityLevel:     "veryHigh",
		},
		Trading: TradingConfig{
			DefaultSlippageBps: 100,
			DedupWindow:        duration{time.Minute},
			DrainTimeout:       duration{2 * time.Minute},
			TradeTimeout:       duration{3 * time.Minute},
			PendingExpiry:      duration{10 * time.Minute},
		},
		Submit: SubmitConfig{
			MaxRetries:     3,
			RetryDelay:     duration{time.Second},
			ConfirmTimeout: duration{90 * time.Second},
			ConfirmPoll:    duration{2 * time.Second},
		},
		Monitor: MonitorConfig{
			Interval:     duration{30 * time.Second},
			Workers:      4,
			ProbeAmount:  1_000_000,
			ProbeTimeout: duration{15 * time.Second},
			SellTimeout:  duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swapbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			PriceTTL:     duration{10 * time.Minute},
			LockTTL:      duration{3 * time.Minute},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "swapbot-archive",
			ForcePathStyle: true,
			RetentionDays:  30,
		},
		Server: ServerConfig{
			Port:            3000,
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"take_profit", "stop_loss", "position_opened", "position_closed", "trade_failed"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"archive": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPriorityLevels = map[string]bool{
	"medium":   true,
	"high":     true,
	"veryHigh": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Headless monitoring has no way to receive a wallet over HTTP.
	if mode == "monitor" && c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode monitor")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Sprintf("solana: unknown commitment %q", c.Solana.Commitment))
	}

	if c.Jupiter.QuoteURL == "" || c.Jupiter.SwapURL == "" {
		errs = append(errs, "jupiter: quote_url and swap_url must not be empty")
	}
	if c.Jupiter.RequestsPerSecond <= 0 {
		errs = append(errs, "jupiter: requests_per_second must be > 0")
	}
	if !validPriorityLevels[c.Jupiter.PriorityLevel] {
		errs = append(errs, fmt.Sprintf("jupiter: unknown priority_level %q", c.Jupiter.PriorityLevel))
	}

	if c.Trading.DefaultSlippageBps < 0 || c.Trading.DefaultSlippageBps > 10000 {
		errs = append(errs, fmt.Sprintf("trading: default_slippage_bps must be 0-10000, got %d", c.Trading.DefaultSlippageBps))
	}
	if c.Trading.TradeTimeout.Duration < c.Submit.ConfirmTimeout.Duration {
		errs = append(errs, "trading: trade_timeout must not be shorter than submit.confirm_timeout")
	}

	if c.Submit.MaxRetries < 0 {
		errs = append(errs, "submit: max_retries must be >= 0")
	}
	if c.Submit.ConfirmPoll.Duration <= 0 {
		errs = append(errs, "submit: confirm_poll must be > 0")
	}
	if c.Submit.ConfirmTimeout.Duration < c.Submit.ConfirmPoll.Duration {
		errs = append(errs, "submit: confirm_timeout must not be shorter than confirm_poll")
	}

	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.Workers < 1 {
		errs = append(errs, "monitor: workers must be >= 1")
	}
	if c.Monitor.ProbeAmount == 0 {
		errs = append(errs, "monitor: probe_amount must be > 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if mode == "archive" && (!c.S3.Enabled || !c.Postgres.Enabled) {
		errs = append(errs, "archive mode requires postgres.enabled and s3.enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
