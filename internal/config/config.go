package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// MaxTokenLeeway bounds the clock-skew window accepted on token expiry.
const MaxTokenLeeway = 2 * time.Minute

var (
	ErrMissingJWTSecret    = errors.New("config: JWT_SECRET is required")
	ErrPartialGoogleConfig = errors.New("config: GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL must be set together")
)

type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	// TokenLeeway is 0 by default: expiry is enforced strictly.
	JWTSecret          string        `env:"JWT_SECRET"`
	TokenIssuer        string        `env:"TOKEN_ISSUER" envDefault:"enhanced-auth-api"`
	PasswordTokenTTL   time.Duration `env:"TOKEN_PASSWORD_TTL" envDefault:"2h"`
	FederationTokenTTL time.Duration `env:"TOKEN_FEDERATION_TTL" envDefault:"1h"`
	TokenLeeway        time.Duration `env:"TOKEN_LEEWAY" envDefault:"0s"`

	HashCost int `env:"HASH_COST" envDefault:"10"`

	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URL"`
	FederationTimeout  time.Duration `env:"FEDERATION_TIMEOUT" envDefault:"10s"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN    string `env:"DATABASE_DSN"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	UploadDir         string        `env:"UPLOAD_DIR" envDefault:"uploads"`
	PhotoFetchTimeout time.Duration `env:"PHOTO_FETCH_TIMEOUT" envDefault:"10s"`
	PhotoMaxBytes     int64         `env:"PHOTO_MAX_BYTES" envDefault:"5242880"`

	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads the environment and validates the result. A missing signing
// secret is an error so the process never starts serving without one.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	if c.PasswordTokenTTL <= 0 || c.FederationTokenTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.TokenLeeway < 0 || c.TokenLeeway > MaxTokenLeeway {
		return fmt.Errorf("config: TOKEN_LEEWAY must be within [0, %s]", MaxTokenLeeway)
	}
	if c.HashCost < bcrypt.MinCost || c.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("config: HASH_COST must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.FederationTimeout <= 0 || c.PhotoFetchTimeout <= 0 {
		return errors.New("config: network timeouts must be positive")
	}
	if c.PhotoMaxBytes <= 0 {
		return errors.New("config: PHOTO_MAX_BYTES must be positive")
	}

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
		if c.DatabaseDSN == "" {
			return errors.New("config: DATABASE_DSN is required")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR is required")
	}

	set := 0
	for _, v := range []string{c.GoogleClientID, c.GoogleClientSecret, c.GoogleRedirectURL} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return ErrPartialGoogleConfig
	}
	return nil
}

// GoogleEnabled reports whether Google federation is fully configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}
