package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearAliases(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PRIVATE_KEY", "RPC_URL", "PORT", "DATABASE_URL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Trading.DefaultSlippageBps)
	assert.Equal(t, 3, cfg.Submit.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, uint64(1_000_000), cfg.Monitor.ProbeAmount)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearAliases(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "server"
log_level = "debug"

[monitor]
interval = "45s"
workers = 8

[jupiter]
priority_level = "high"

[redis]
enabled = true
addr = "redis:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("SWAPBOT_SUBMIT_MAX_RETRIES", "5")
	t.Setenv("SWAPBOT_MONITOR_PROBE_AMOUNT", "2500")
	t.Setenv("SWAPBOT_SERVER_CORS_ORIGINS", "http://a.local, http://b.local")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, 8, cfg.Monitor.Workers)
	assert.Equal(t, "high", cfg.Jupiter.PriorityLevel)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Submit.MaxRetries)
	assert.Equal(t, uint64(2500), cfg.Monitor.ProbeAmount)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.Server.CORSOrigins)
	// Unset sections keep their defaults.
	assert.Equal(t, "https://quote-api.jup.ag/v6/quote", cfg.Jupiter.QuoteURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.LogLevel = "loud"
	cfg.Monitor.Workers = 0
	cfg.Trading.DefaultSlippageBps = 20000

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown log_level")
	assert.Contains(t, msg, "private_key or encrypted_key_path")
	assert.Contains(t, msg, "workers must be >= 1")
	assert.Contains(t, msg, "default_slippage_bps")
}

func TestValidateArchiveNeedsStorage(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	assert.ErrorContains(t, cfg.Validate(), "archive mode requires")

	cfg.Postgres.Enabled = true
	cfg.S3.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "secret"
	cfg.Postgres.Password = "pw"
	cfg.Server.CORSOrigins = []string{"x"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "secret", cfg.Wallet.PrivateKey)

	out.Server.CORSOrigins[0] = "y"
	assert.Equal(t, "x", cfg.Server.CORSOrigins[0])
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	clearAliases(t)
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}
