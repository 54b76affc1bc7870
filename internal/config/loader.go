package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SWAPBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SWAPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SWAPBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "SWAPBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SWAPBOT_WALLET_KEY_PASSWORD")
	setDuration(&cfg.Wallet.ClientSignTimeout, "SWAPBOT_WALLET_CLIENT_SIGN_TIMEOUT")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "SWAPBOT_SOLANA_RPC_URL")
	setStr(&cfg.Solana.RPCURL, "RPC_URL") // compatibility alias
	setStr(&cfg.Solana.Commitment, "SWAPBOT_SOLANA_COMMITMENT")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.QuoteURL, "SWAPBOT_JUPITER_QUOTE_URL")
	setStr(&cfg.Jupiter.SwapURL, "SWAPBOT_JUPITER_SWAP_URL")
	setDuration(&cfg.Jupiter.QuoteTimeout, "SWAPBOT_JUPITER_QUOTE_TIMEOUT")
	setFloat64(&cfg.Jupiter.RequestsPerSecond, "SWAPBOT_JUPITER_REQUESTS_PER_SECOND")
	setInt(&cfg.Jupiter.BreakerFailures, "SWAPBOT_JUPITER_BREAKER_FAILURES")
	setDuration(&cfg.Jupiter.BreakerCooldown, "SWAPBOT_JUPITER_BREAKER_COOLDOWN")
	setUint64(&cfg.Jupiter.MaxFeeLamports, "SWAPBOT_JUPITER_MAX_FEE_LAMPORTS")
	setStr(&cfg.Jupiter.PriorityLevel, "SWAPBOT_JUPITER_PRIORITY_LEVEL")

	// ── Trading ──
	setInt(&cfg.Trading.DefaultSlippageBps, "SWAPBOT_TRADING_DEFAULT_SLIPPAGE_BPS")
	setDuration(&cfg.Trading.DedupWindow, "SWAPBOT_TRADING_DEDUP_WINDOW")
	setDuration(&cfg.Trading.DrainTimeout, "SWAPBOT_TRADING_DRAIN_TIMEOUT")
	setDuration(&cfg.Trading.TradeTimeout, "SWAPBOT_TRADING_TRADE_TIMEOUT")
	setDuration(&cfg.Trading.PendingExpiry, "SWAPBOT_TRADING_PENDING_EXPIRY")

	// ── Submit ──
	setInt(&cfg.Submit.MaxRetries, "SWAPBOT_SUBMIT_MAX_RETRIES")
	setDuration(&cfg.Submit.RetryDelay, "SWAPBOT_SUBMIT_RETRY_DELAY")
	setDuration(&cfg.Submit.ConfirmTimeout, "SWAPBOT_SUBMIT_CONFIRM_TIMEOUT")
	setDuration(&cfg.Submit.ConfirmPoll, "SWAPBOT_SUBMIT_CONFIRM_POLL")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "SWAPBOT_MONITOR_INTERVAL")
	setInt(&cfg.Monitor.Workers, "SWAPBOT_MONITOR_WORKERS")
	setUint64(&cfg.Monitor.ProbeAmount, "SWAPBOT_MONITOR_PROBE_AMOUNT")
	setDuration(&cfg.Monitor.ProbeTimeout, "SWAPBOT_MONITOR_PROBE_TIMEOUT")
	setDuration(&cfg.Monitor.SellTimeout, "SWAPBOT_MONITOR_SELL_TIMEOUT")
	setBool(&cfg.Monitor.AutoStart, "SWAPBOT_MONITOR_AUTO_START")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SWAPBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SWAPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SWAPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWAPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWAPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWAPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWAPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWAPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SWAPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SWAPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SWAPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SWAPBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SWAPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWAPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWAPBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "SWAPBOT_REDIS_PRICE_TTL")
	setDuration(&cfg.Redis.LockTTL, "SWAPBOT_REDIS_LOCK_TTL")
	setInt(&cfg.Redis.StreamMaxLen, "SWAPBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SWAPBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SWAPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWAPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWAPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SWAPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWAPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SWAPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SWAPBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "SWAPBOT_S3_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "SWAPBOT_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SWAPBOT_SERVER_API_KEY")
	setStr(&cfg.Server.StaticDir, "SWAPBOT_SERVER_STATIC_DIR")
	setInt(&cfg.Server.RateLimit, "SWAPBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "SWAPBOT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWAPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWAPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWAPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWAPBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWAPBOT_MODE")
	setStr(&cfg.LogLevel, "SWAPBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
