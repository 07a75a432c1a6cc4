// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`

	// DatabaseURL is the Postgres DSN. Required when SessionBackend is
	// postgres or when the user store is used (i.e. always in production).
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SessionBackend selects the session store: memory, postgres, or redis.
	SessionBackend string `mapstructure:"SESSION_BACKEND"`
	// RedisAddr is the Redis host:port; required when SessionBackend is redis.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// JWTPrivateKey is the PEM-encoded signing key (RSA or ECDSA), inline or
	// a file path. Paired with JWTPublicKey for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded verification key, inline or a path.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// AccessTokenTTL is the access token lifetime (e.g. "1h").
	AccessTokenTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RefreshTokenTTL is the refresh token lifetime (e.g. "168h").
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// LoginPolicyRego is an optional Rego document (inline or a file path)
	// overriding the default allow-all login policy.
	LoginPolicyRego string `mapstructure:"LOGIN_POLICY_REGO"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables
	// export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated broker list; empty disables the
	// login event producer.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// LoginEventsKafkaTopic is the topic login events are produced to.
	LoginEventsKafkaTopic string `mapstructure:"LOGIN_EVENTS_KAFKA_TOPIC"`
}

// Session backend names accepted in SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_ISSUER", "jjds-auth")
	v.SetDefault("JWT_AUDIENCE", "jjds-api")
	v.SetDefault("ACCESS_TOKEN_TTL", "1h")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_POLICY_REGO", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOGIN_EVENTS_KAFKA_TOPIC", "jjds-login-events")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	switch cfg.SessionBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: SESSION_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: SESSION_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return nil, fmt.Errorf("config: unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses AccessTokenTTL. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.AccessTokenTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RefreshTTL parses RefreshTokenTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshTokenTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// KafkaBrokersList returns the broker addresses from the comma-separated
// config. An empty list means the producer is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
