package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables supplying backend credentials and parameters. Their
// absence routes the application into a configuration-missing state instead
// of crashing.
const (
	EnvGroqAPIKey     = "BURAKAI_GROQ_API_KEY"
	EnvGroqBaseURL    = "BURAKAI_GROQ_BASE_URL"
	EnvModel          = "BURAKAI_MODEL"
	EnvIdentityURL    = "BURAKAI_IDENTITY_URL"
	EnvIdentityAPIKey = "BURAKAI_IDENTITY_API_KEY"
	EnvSyncURL        = "BURAKAI_SYNC_URL"
	EnvSyncAppID      = "BURAKAI_SYNC_APP_ID"
	EnvDBPath         = "BURAKAI_DB_PATH"
	EnvLogLevel       = "BURAKAI_LOG_LEVEL"
)

// Config represents the application configuration, assembled once at startup.
type Config struct {
	Completion CompletionConfig
	Identity   IdentityConfig
	Sync       SyncConfig
	Data       DataConfig
	Log        LogConfig
}

// CompletionConfig represents completion backend configuration
type CompletionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// IdentityConfig represents identity backend configuration
type IdentityConfig struct {
	BaseURL string
	APIKey  string
}

// SyncConfig represents remote realtime channel configuration. Enabled is
// derived from the presence of a sync URL.
type SyncConfig struct {
	Enabled bool
	URL     string
	AppID   string
}

// DataConfig represents data storage configuration
type DataConfig struct {
	DBPath string
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string
}

// MissingConfigError reports required configuration that is absent. It is
// detected before any network call and distinct from an authentication
// failure.
type MissingConfigError struct {
	Vars []string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", strings.Join(e.Vars, ", "))
}

// LoadConfig assembles the configuration from the environment. A .env file in
// the working directory is loaded first if present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	dbPath := os.Getenv(EnvDBPath)
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	return &Config{
		Completion: CompletionConfig{
			APIKey:  os.Getenv(EnvGroqAPIKey),
			BaseURL: os.Getenv(EnvGroqBaseURL),
			Model:   os.Getenv(EnvModel),
		},
		Identity: IdentityConfig{
			BaseURL: os.Getenv(EnvIdentityURL),
			APIKey:  os.Getenv(EnvIdentityAPIKey),
		},
		Sync: SyncConfig{
			Enabled: os.Getenv(EnvSyncURL) != "",
			URL:     os.Getenv(EnvSyncURL),
			AppID:   os.Getenv(EnvSyncAppID),
		},
		Data: DataConfig{
			DBPath: expandPath(dbPath),
		},
		Log: LogConfig{
			Level: os.Getenv(EnvLogLevel),
		},
	}
}

// Validate checks that all required variables are present. It returns a
// *MissingConfigError naming every absent one, or nil.
func (c *Config) Validate() error {
	var missing []string
	if c.Completion.APIKey == "" {
		missing = append(missing, EnvGroqAPIKey)
	}
	if c.Identity.BaseURL == "" {
		missing = append(missing, EnvIdentityURL)
	}
	if c.Identity.APIKey == "" {
		missing = append(missing, EnvIdentityAPIKey)
	}
	if c.Sync.Enabled && c.Sync.AppID == "" {
		missing = append(missing, EnvSyncAppID)
	}
	if len(missing) > 0 {
		return &MissingConfigError{Vars: missing}
	}
	return nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	// Expand ~
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	// Make absolute
	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}
