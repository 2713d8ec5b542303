package idp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("IDP_STATE_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("IDP_JWT_PRIVATE_KEY", "another-32-byte-hmac-secret-....")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "idp", cfg.Redis.KeyPrefix)
	require.Equal(t, 3*time.Second, cfg.Redis.OpTimeout)
	require.Equal(t, "hs256", cfg.JWT.SigningMethod)
	require.Equal(t, "idp", cfg.JWT.Issuer)
	require.Equal(t, 30*time.Second, cfg.JWT.Leeway)
	require.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	require.Equal(t, 720*time.Hour, cfg.Token.RefreshTTL)
	require.Equal(t, 2, cfg.Token.MaxPerDevice)
	require.Equal(t, 6, cfg.OTP.Digits)
	require.True(t, cfg.Audit.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("IDP_STATE_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("IDP_JWT_PRIVATE_KEY", "another-32-byte-hmac-secret-....")
	t.Setenv("IDP_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("IDP_TOKEN_MAX_PER_DEVICE", "5")
	t.Setenv("IDP_OTP_DIGITS", "8")
	t.Setenv("IDP_AUDIT_ENABLED", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, 5, cfg.Token.MaxPerDevice)
	require.Equal(t, 8, cfg.OTP.Digits)
	require.False(t, cfg.Audit.Enabled)
}

func TestConfigValidate(t *testing.T) {
	base := testConfig()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"short state secret":       func(c *Config) { c.State.Secret = "short" },
		"missing jwt key":          func(c *Config) { c.JWT.PrivateKey = "" },
		"bad signing method":       func(c *Config) { c.JWT.SigningMethod = "rs256" },
		"zero access ttl":          func(c *Config) { c.Token.AccessTTL = 0 },
		"access outlives refresh":  func(c *Config) { c.Token.AccessTTL = c.Token.RefreshTTL * 2 },
		"zero per-device cap":      func(c *Config) { c.Token.MaxPerDevice = 0 },
		"otp digits out of range":  func(c *Config) { c.OTP.Digits = 3 },
		"zero otp ttl":             func(c *Config) { c.OTP.TTL = 0 },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}
