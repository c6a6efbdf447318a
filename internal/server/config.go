package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration. Values load from the environment
// via NewConfigFromEnv; zero or invalid values are replaced by defaults in
// sanitize.
type Config struct {
	// Addr is the listen address.
	Addr string `env:"LANSHARE_ADDR" envDefault:":3000"`
	// DatabasePath is the SQLite file holding artifact records.
	DatabasePath string `env:"LANSHARE_DB" envDefault:"lanshare.db"`
	// UploadDir is the directory uploaded blobs are stored under and
	// served from at /uploads/.
	UploadDir string `env:"LANSHARE_UPLOAD_DIR" envDefault:"uploads"`
	// AllowedOrigins lists origins accepted for WebSocket upgrades.
	// "*" allows any origin.
	AllowedOrigins []string `env:"LANSHARE_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// IdentifierStrategy selects how upload deduplication keys are
	// derived: "content" (BLAKE3 of the bytes) or "name" (generated
	// storage name, matching the original system).
	IdentifierStrategy string `env:"LANSHARE_IDENTIFIER_STRATEGY" envDefault:"content"`
	// MaxMessageSize bounds a single inbound WebSocket message in bytes.
	MaxMessageSize int64 `env:"LANSHARE_MAX_MESSAGE_SIZE" envDefault:"4096"`
	// MaxUploadBytes bounds a single multipart upload request.
	MaxUploadBytes int64 `env:"LANSHARE_MAX_UPLOAD_BYTES" envDefault:"104857600"`
	// RateLimitBurst and RateLimitInterval throttle inbound messages per
	// session: RateLimitBurst messages per RateLimitInterval.
	RateLimitBurst    int           `env:"LANSHARE_RATE_LIMIT_BURST" envDefault:"5"`
	RateLimitInterval time.Duration `env:"LANSHARE_RATE_LIMIT_INTERVAL" envDefault:"1s"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP server and the
	// hub, each.
	ShutdownTimeout time.Duration `env:"LANSHARE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	cfg := &Config{
		Addr:               ":3000",
		DatabasePath:       "lanshare.db",
		UploadDir:          "uploads",
		AllowedOrigins:     []string{"http://localhost:3000"},
		IdentifierStrategy: "content",
		MaxMessageSize:     4096,
		MaxUploadBytes:     100 << 20,
		RateLimitBurst:     5,
		RateLimitInterval:  time.Second,
		ShutdownTimeout:    10 * time.Second,
	}
	cfg.sanitize()
	return cfg
}

// NewConfigFromEnv loads configuration from LANSHARE_* environment
// variables, falling back to defaults for unset values.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.sanitize()
	return cfg, nil
}

func (c *Config) sanitize() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "lanshare.db"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.IdentifierStrategy == "" {
		c.IdentifierStrategy = "content"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 100 << 20
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 5
	}
	if c.RateLimitInterval <= 0 {
		c.RateLimitInterval = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
