package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/investblog/cloudflare-images-sync/internal/auth"
	"github.com/joho/godotenv"
)

const secretKeyMinLen = 16

// Config holds all environment-based configuration for cfi-sync.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Path to the bbolt state database. Defaults to ~/.cfi-sync/state.db.
	StatePath string `env:"CFI_STATE_PATH"`

	// Key material for encrypting the stored API token.
	SecretKey string `env:"CFI_SECRET_KEY"`

	// Optional credential overrides written into settings at startup.
	AccountID   string `env:"CFI_ACCOUNT_ID"`
	AccountHash string `env:"CFI_ACCOUNT_HASH"`
	APIToken    string `env:"CFI_API_TOKEN"`

	// Media directory watched for rewritten attachment files. Empty
	// disables the watcher.
	UploadsDir string `env:"CFI_UPLOADS_DIR"`

	// HTTP listener for the hook endpoint and MCP.
	ListenAddr string `env:"CFI_LISTEN_ADDR" envDefault:":8091"`
	APIKeys    string `env:"CFI_API_KEYS"`

	ChunkSize    int           `env:"CFI_CHUNK_SIZE" envDefault:"20"`
	WorkerPoll   time.Duration `env:"CFI_WORKER_POLL" envDefault:"2s"`
	HTTPTimeout  time.Duration `env:"CFI_HTTP_TIMEOUT" envDefault:"60s"`
	ShutdownWait time.Duration `env:"CFI_SHUTDOWN_WAIT" envDefault:"10s"`
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

	if cfg.StatePath != "" {
		abs, err := filepath.Abs(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("resolving state path: %w", err)
		}

		cfg.StatePath = abs
	}

	if cfg.UploadsDir != "" {
		abs, err := filepath.Abs(cfg.UploadsDir)
		if err != nil {
			return nil, fmt.Errorf("resolving uploads dir: %w", err)
		}

		cfg.UploadsDir = abs
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("CFI_SECRET_KEY is required")
	}

	if len(c.SecretKey) < secretKeyMinLen {
		return fmt.Errorf("CFI_SECRET_KEY too short (minimum %d characters)", secretKeyMinLen)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("CFI_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}

	if c.WorkerPoll <= 0 {
		return fmt.Errorf("CFI_WORKER_POLL must be positive, got %s", c.WorkerPoll)
	}

	if _, err := c.ParseAPIKeys(); err != nil {
		return err
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasCredentialOverrides reports whether any CFI_ACCOUNT_* or
// CFI_API_TOKEN variable was set.
func (c *Config) HasCredentialOverrides() bool {
	return c.AccountID != "" || c.AccountHash != "" || c.APIToken != ""
}

// ParseAPIKeys parses the CFI_API_KEYS string.
// Format: "user1:cfi_key1,user2:cfi_key2"
func (c *Config) ParseAPIKeys() ([]auth.APIKey, error) {
	if c.APIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []auth.APIKey

	for _, pair := range strings.Split(c.APIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		key := pair[idx+1:]
		if userID == "" || key == "" {
			return nil, fmt.Errorf("empty user or key in entry %d", len(entries)+1)
		}

		if !strings.HasPrefix(key, auth.APIKeyPrefix) {
			return nil, fmt.Errorf("API key must start with %q prefix in entry %d", auth.APIKeyPrefix, len(entries)+1)
		}

		if len(key) < auth.APIKeyMinLen {
			return nil, fmt.Errorf("API key too short in entry %d (minimum %d characters)", len(entries)+1, auth.APIKeyMinLen)
		}

		suffix := key[len(auth.APIKeyPrefix):]
		if _, err := hex.DecodeString(suffix); err != nil {
			return nil, fmt.Errorf("API key contains non-hex characters after %q prefix in entry %d", auth.APIKeyPrefix, len(entries)+1)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in CFI_API_KEYS", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, auth.APIKey{UserID: userID, Key: key})
	}

	return entries, nil
}
