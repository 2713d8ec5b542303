package idp

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration. Every field can come from the
// environment via [FromEnv]; embedders may also fill it directly.
type Config struct {
	Redis RedisConfig `envPrefix:"IDP_REDIS_"`
	State StateConfig `envPrefix:"IDP_STATE_"`
	JWT   JWTConfig   `envPrefix:"IDP_JWT_"`
	Token TokenConfig `envPrefix:"IDP_TOKEN_"`
	OTP   OTPConfig   `envPrefix:"IDP_OTP_"`
	Audit AuditConfig `envPrefix:"IDP_AUDIT_"`
}

// RedisConfig locates the Redis backing store.
type RedisConfig struct {
	Addr      string        `env:"ADDR" envDefault:"localhost:6379"`
	Password  string        `env:"PASSWORD,unset"`
	DB        int           `env:"DB" envDefault:"0"`
	KeyPrefix string        `env:"KEY_PREFIX" envDefault:"idp"`
	OpTimeout time.Duration `env:"OP_TIMEOUT" envDefault:"3s"`
}

// StateConfig holds the continuation-token signing material.
type StateConfig struct {
	// Secret signs continuation tokens. At least 16 bytes.
	Secret string `env:"SECRET,unset"`
}

// JWTConfig holds access-token signing material.
type JWTConfig struct {
	// SigningMethod is "hs256" or "ed25519".
	SigningMethod string `env:"SIGNING_METHOD" envDefault:"hs256"`
	// PrivateKey is the HMAC secret for hs256, or a raw/PEM Ed25519
	// private key.
	PrivateKey string        `env:"PRIVATE_KEY,unset"`
	PublicKey  string        `env:"PUBLIC_KEY"`
	Issuer     string        `env:"ISSUER" envDefault:"idp"`
	Leeway     time.Duration `env:"LEEWAY" envDefault:"30s"`
	KeyID      string        `env:"KEY_ID"`
}

// TokenConfig holds refresh/access lifecycle policy.
type TokenConfig struct {
	AccessTTL             time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL            time.Duration `env:"REFRESH_TTL" envDefault:"720h"`
	MaxPerDevice          int           `env:"MAX_PER_DEVICE" envDefault:"2"`
	EnableAccessBlacklist bool          `env:"ACCESS_BLACKLIST" envDefault:"false"`
}

// OTPConfig holds verification-code policy.
type OTPConfig struct {
	TTL    time.Duration `env:"TTL" envDefault:"5m"`
	Digits int           `env:"DIGITS" envDefault:"6"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED" envDefault:"true"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

// FromEnv reads the configuration from the environment.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config from env: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants a misconfigured deployment would otherwise
// only hit at request time.
func (c Config) Validate() error {
	if len(c.State.Secret) < 16 {
		return errors.New("state secret must be at least 16 bytes")
	}
	if c.JWT.PrivateKey == "" {
		return errors.New("jwt private key required")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return fmt.Errorf("unsupported jwt signing method %q", c.JWT.SigningMethod)
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token ttls must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access ttl must be shorter than refresh ttl")
	}
	if c.Token.MaxPerDevice < 1 {
		return errors.New("max refresh tokens per device must be at least 1")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp ttl must be positive")
	}
	return nil
}
