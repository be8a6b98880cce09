package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Peer eviction policies for the relay daemon.
const (
	PeerEvictionNone       = "none"
	PeerEvictionDisconnect = "disconnect"
)

// Config holds all configuration for the gateway and the relay daemon.
type Config struct {
	Port        string `env:"PORT"         envDefault:"8080"`
	Env         string `env:"ENV"          envDefault:"development"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`

	// Shared secret checked against X-API-Key. Empty disables the check.
	APIKey string `env:"API_KEY"`
	// Salt for fingerprint-derived agent ids. Empty means anonymous callers
	// get a fresh random id per request.
	IdentitySecret string `env:"IDENTITY_SECRET"`

	DefaultTTL   int   `env:"DEFAULT_TTL"    envDefault:"3600"`
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"65536"`

	// Rate limiting
	RateLimitWhitelist []string `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `env:"AUTO_BLOCK_ENABLED"   envDefault:"false"`

	Relay RelayConfig
}

// RelayConfig holds the topic relay daemon settings.
type RelayConfig struct {
	Port            string   `env:"RELAY_PORT"`
	LegacyPort      string   `env:"P2P_WS_PORT"             envDefault:"9090"`
	PeerEviction    string   `env:"RELAY_PEER_EVICTION"     envDefault:"none"`
	AllowedOrigins  []string `env:"RELAY_ALLOWED_ORIGINS"   envSeparator:","`
	SendBuffer      int      `env:"RELAY_SEND_BUFFER"       envDefault:"64"`
	MaxMessageBytes int64    `env:"RELAY_MAX_MESSAGE_BYTES" envDefault:"65536"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present. Each binary checks
// the settings it depends on with ValidateGateway or ValidateRelay.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.RateLimitWhitelist = trimEntries(cfg.RateLimitWhitelist)
	cfg.Relay.AllowedOrigins = trimEntries(cfg.Relay.AllowedOrigins)
	if cfg.Relay.Port == "" {
		cfg.Relay.Port = cfg.Relay.LegacyPort
	}
	return cfg, nil
}

// ValidateGateway checks the settings the mailbox gateway cannot default.
func (c *Config) ValidateGateway() error {
	if c.Env == "production" && c.RedisURL == "" {
		return errors.New("REDIS_URL is required in production")
	}
	if c.DatabaseURL != "" && c.SQLitePath != "" {
		return errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive")
	}
	return nil
}

// ValidateRelay checks the relay daemon settings.
func (c *Config) ValidateRelay() error {
	switch c.Relay.PeerEviction {
	case PeerEvictionNone, PeerEvictionDisconnect:
	default:
		return fmt.Errorf("RELAY_PEER_EVICTION must be %q or %q, got %q",
			PeerEvictionNone, PeerEvictionDisconnect, c.Relay.PeerEviction)
	}
	if c.Relay.SendBuffer <= 0 {
		return errors.New("RELAY_SEND_BUFFER must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func trimEntries(entries []string) []string {
	out := entries[:0]
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
