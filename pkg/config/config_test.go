package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFile_Defaults(t *testing.T) {
	cfg, err := loadConfigFile(t.TempDir(), "missing")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.RateLimit.Store)
	assert.Equal(t, int64(5), cfg.RateLimit.Threshold)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 24*time.Hour, cfg.RateLimit.BlockDuration)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.StoreTimeout)
	assert.Equal(t, "open", cfg.RateLimit.FailurePolicy)
	assert.Equal(t, 5*time.Minute, cfg.Identity.VerificationCodeTTL)
	assert.Equal(t, int64(5), cfg.Identity.MaxCodeAttempts)
	assert.Equal(t, 2*time.Hour, cfg.Sweep.RateLimitInterval)
	assert.Equal(t, time.Hour, cfg.Sweep.GuestInterval)
	assert.Equal(t, 30*time.Minute, cfg.Sweep.VerificationCodeInterval)
}

func TestLoadConfigFile_FileAndEnvironment(t *testing.T) {
	dir := writeConfig(t, `
server:
  api_port: 9001
  secret_key: from-file
ratelimit:
  store: postgres
  threshold: 20
  window: 1m
  breaker:
    max_failures: 2
`)
	t.Setenv("RATELIMIT_BLOCK_DURATION", "1h")
	t.Setenv("SERVER_SECRET_KEY", "from-env")

	cfg, err := loadConfigFile(dir, "config")
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.APIPort)
	assert.Equal(t, "from-env", cfg.Server.SecretKey)
	assert.Equal(t, StorePostgres, cfg.RateLimit.Store)
	assert.Equal(t, int64(20), cfg.RateLimit.Threshold)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, time.Hour, cfg.RateLimit.BlockDuration)
	assert.Equal(t, uint32(2), cfg.RateLimit.Breaker.MaxFailures)
	assert.True(t, cfg.RateLimit.Breaker.Enabled)
}

func TestLoadConfigFile_Malformed(t *testing.T) {
	dir := writeConfig(t, "server: [unterminated")
	_, err := loadConfigFile(dir, "config")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := loadConfigFile(t.TempDir(), "missing")
		require.NoError(t, err)
		cfg.Server.SecretKey = "secret"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing secret", func(c *Config) { c.Server.SecretKey = "" }, ErrMissingSecretKey},
		{"bad port", func(c *Config) { c.Server.APIPort = 0 }, ErrInvalidPort},
		{"unknown ratelimit store", func(c *Config) { c.RateLimit.Store = "mongo" }, ErrInvalidStore},
		{"unknown identity store", func(c *Config) { c.Identity.Store = "" }, ErrInvalidStore},
		{"zero ttl", func(c *Config) { c.Identity.GuestTTL = 0 }, ErrInvalidTTL},
		{"zero code attempts", func(c *Config) { c.Identity.MaxCodeAttempts = 0 }, ErrInvalidAttempts},
		{"zero interval", func(c *Config) { c.Sweep.GuestInterval = 0 }, ErrInvalidInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	cfg := valid()
	cfg.Sweep.Enabled = false
	cfg.Sweep.GuestInterval = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoad_SetsGlobalConfig(t *testing.T) {
	dir := writeConfig(t, "server:\n  secret_key: s3cret\n")
	require.NoError(t, Load(dir))
	assert.Equal(t, "s3cret", GetConfig().Server.SecretKey)
}
