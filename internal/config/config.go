// Package config loads the service configuration once at process start.
//
// Values come from the environment (optionally seeded from a .env file).
// The resulting Config is treated as immutable: main builds it, then hands
// it to server.New, and nothing else reads the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting the service needs.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage. DATABASE_URL selects Postgres; otherwise SQLite at DBPath.
	DBPath      string `env:"DB_PATH" envDefault:"data/insignia.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Discord application and bot credentials.
	ClientID     string `env:"DISCORD_CLIENT_ID,required"`
	ClientSecret string `env:"DISCORD_CLIENT_SECRET,required"`
	BotToken     string `env:"DISCORD_BOT_TOKEN,required"`
	RedirectURI  string `env:"REDIRECT_URI,required"`
	APIVersion   string `env:"API_VERSION" envDefault:"v10"`
	APIBaseURL   string `env:"DISCORD_API_BASE_URL" envDefault:"https://discord.com/api"`

	// Per call-class timeouts for outbound Discord requests.
	ReadTimeout  time.Duration `env:"DISCORD_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"DISCORD_WRITE_TIMEOUT" envDefault:"10s"`

	// Shared secret expected in the X-API-KEY header on /api routes.
	APISecret string `env:"API_SECRET,required"`

	// PublicBaseURL is where this service is reachable from a browser.
	// Derived from RedirectURI when unset.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	ExportDir         string        `env:"EXPORT_DIR" envDefault:"/data/exports"`
	ExportTokenSecret string        `env:"EXPORT_TOKEN_SECRET"`
	ExportTokenTTL    time.Duration `env:"EXPORT_TOKEN_TTL" envDefault:"24h"`

	// TokenEncryptionKey is 64 hex chars; empty leaves OAuth tokens unsealed.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	DragWorkers int `env:"DRAG_WORKERS" envDefault:"1"`
}

// Load reads an optional .env file and then parses the environment.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize fills derived defaults and rejects inconsistent values.
func (c *Config) normalize() error {
	if c.PublicBaseURL == "" {
		u, err := url.Parse(c.RedirectURI)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: REDIRECT_URI %q is not an absolute URL", c.RedirectURI)
		}
		c.PublicBaseURL = u.Scheme + "://" + u.Host
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")

	if c.ExportTokenSecret == "" {
		c.ExportTokenSecret = c.APISecret
	}
	if c.DragWorkers < 1 {
		return fmt.Errorf("config: DRAG_WORKERS must be at least 1, got %d", c.DragWorkers)
	}
	if c.ExportTokenTTL <= 0 {
		return fmt.Errorf("config: EXPORT_TOKEN_TTL must be positive")
	}
	return nil
}
