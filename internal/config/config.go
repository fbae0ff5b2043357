package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alexjbarnes/sugarapi/state"
	"github.com/alexjbarnes/sugarapi/sugar"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the sugar CLI.
type Config struct {
	// Sugar instance host or URL, e.g. crm.example.com or https://crm.example.com
	Server string `env:"SUGAR_SERVER"`

	// OAuth2 password grant credentials.
	Username     string `env:"SUGAR_USERNAME"`
	Password     string `env:"SUGAR_PASSWORD"`
	ClientID     string `env:"SUGAR_CLIENT_ID" envDefault:"sugar"`
	ClientSecret string `env:"SUGAR_CLIENT_SECRET"`
	Platform     string `env:"SUGAR_PLATFORM" envDefault:"base"`

	// Token database. Defaults to ~/.sugarapi/tokens.db.
	TokenDB string `env:"SUGAR_TOKEN_DB"`

	// When set, stored tokens are sealed with a key derived from it.
	TokenPassphrase string `env:"SUGAR_TOKEN_PASSPHRASE"`

	// Optional YAML file with extra endpoint definitions.
	Catalog string `env:"SUGAR_CATALOG"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.TokenDB == "" {
		path, err := state.DefaultPath()
		if err != nil {
			return nil, err
		}

		cfg.TokenDB = path
	}

	absDB, err := filepath.Abs(cfg.TokenDB)
	if err != nil {
		return nil, fmt.Errorf("resolving token db to absolute path: %w", err)
	}

	cfg.TokenDB = absDB

	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("SUGAR_SERVER is required")
	}

	if c.ClientID == "" {
		return fmt.Errorf("SUGAR_CLIENT_ID must not be empty")
	}

	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("SUGAR_USERNAME and SUGAR_PASSWORD must be set together")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Credentials builds the OAuth2 credential set. Empty values are left
// out so the server applies its own defaults.
func (c *Config) Credentials() sugar.Credentials {
	creds := sugar.Credentials{
		sugar.KeyClientID: c.ClientID,
	}

	set := func(key, val string) {
		if val != "" {
			creds[key] = val
		}
	}

	set(sugar.KeyClientSecret, c.ClientSecret)
	set(sugar.KeyUsername, c.Username)
	set(sugar.KeyPassword, c.Password)
	set(sugar.KeyPlatform, c.Platform)

	return creds
}
