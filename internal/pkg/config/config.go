package config

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port        string `env:"PORT,         default=8080"`
	Env         string `env:"ENV,          default=development"`
	LogLevel    string `env:"LOG_LEVEL,    default=info"`
	BaseAddress string `env:"BASE_ADDRESS, default=http://localhost:8080"`

	Tokens   TokenConfig
	Identity IdentityConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Events   EventConfig
}

type TokenConfig struct {
	// PrivateKey is a PEM encoded RSA key, either raw or base64 encoded.
	PrivateKey string `env:"PRIVATE_KEY"`
	// Issuer defaults to BASE_ADDRESS.
	Issuer                 string        `env:"TOKEN_ISSUER"`
	AccessTokenTTL         time.Duration `env:"ACCESS_TOKEN_TTL,         default=15m"`
	RefreshTokenTTL        time.Duration `env:"REFRESH_TOKEN_TTL,        default=720h"`
	AuthenticationTokenTTL time.Duration `env:"AUTHENTICATION_TOKEN_TTL, default=5m"`
}

type IdentityConfig struct {
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT, default=10s"`
	JWKSCacheTTL    time.Duration `env:"JWKS_CACHE_TTL,   default=1h"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity_system"`
}

type RedisConfig struct {
	Addr            string        `env:"REDIS_ADDR,        default=localhost:6379"`
	Password        string        `env:"REDIS_PASSWORD"`
	DB              int           `env:"REDIS_DB,          default=0"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX,    default=10"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW, default=1m"`
}

type EventConfig struct {
	Workers int `env:"EVENT_WORKERS, default=4"`
}

// LoadFrom reads configuration from lookuper using go-envconfig. The CLI
// passes envconfig.OsLookuper after loading .env files.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, err
	}
	if cfg.Tokens.AccessTokenTTL <= 0 || cfg.Tokens.RefreshTokenTTL <= 0 || cfg.Tokens.AuthenticationTokenTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.Tokens.Issuer == "" {
		cfg.Tokens.Issuer = strings.TrimRight(cfg.BaseAddress, "/")
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SigningKey parses PRIVATE_KEY. A missing key is not an error here; token
// issuance fails at request time instead.
func (c TokenConfig) SigningKey() (*rsa.PrivateKey, error) {
	raw := strings.TrimSpace(c.PrivateKey)
	if raw == "" {
		return nil, nil
	}
	if !strings.HasPrefix(raw, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode PRIVATE_KEY: %w", err)
		}
		raw = string(decoded)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse PRIVATE_KEY: %w", err)
	}
	return key, nil
}
