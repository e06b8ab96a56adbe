package utils

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Completion: CompletionConfig{APIKey: "groq-key"},
		Identity:   IdentityConfig{BaseURL: "https://identity.example", APIKey: "id-key"},
	}
}

func TestValidateComplete(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected a valid config, got %v", err)
	}
}

func TestValidateReportsAllMissingVars(t *testing.T) {
	config := &Config{}
	err := config.Validate()

	var missing *MissingConfigError
	if !errors.As(err, &missing) {
		t.Fatalf("expected a *MissingConfigError, got %T: %v", err, err)
	}

	want := []string{EnvGroqAPIKey, EnvIdentityURL, EnvIdentityAPIKey}
	if len(missing.Vars) != len(want) {
		t.Fatalf("expected %d missing vars, got %v", len(want), missing.Vars)
	}
	for i, name := range want {
		if missing.Vars[i] != name {
			t.Errorf("expected %s at position %d, got %s", name, i, missing.Vars[i])
		}
	}
	for _, name := range want {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error message does not name %s: %q", name, err.Error())
		}
	}
}

func TestValidateSyncRequiresAppID(t *testing.T) {
	config := validConfig()
	config.Sync = SyncConfig{Enabled: true, URL: "wss://sync.example"}

	err := config.Validate()
	var missing *MissingConfigError
	if !errors.As(err, &missing) {
		t.Fatalf("expected a *MissingConfigError, got %T: %v", err, err)
	}
	if len(missing.Vars) != 1 || missing.Vars[0] != EnvSyncAppID {
		t.Errorf("expected only %s, got %v", EnvSyncAppID, missing.Vars)
	}

	config.Sync.AppID = "app-1"
	if err := config.Validate(); err != nil {
		t.Errorf("expected a valid config with the app id set, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(EnvGroqAPIKey, "groq-key")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvSyncURL, "")

	config := LoadConfig()

	if config.Completion.APIKey != "groq-key" {
		t.Errorf("api key not read from the environment: %q", config.Completion.APIKey)
	}
	if config.Sync.Enabled {
		t.Error("sync must be disabled without a sync URL")
	}
	if !strings.HasSuffix(config.Data.DBPath, "chat.db") {
		t.Errorf("unexpected default database path %q", config.Data.DBPath)
	}
}

func TestLoadConfigEnablesSyncFromURL(t *testing.T) {
	t.Setenv(EnvSyncURL, "wss://sync.example")
	t.Setenv(EnvSyncAppID, "app-1")

	config := LoadConfig()
	if !config.Sync.Enabled {
		t.Error("expected sync to be enabled when a sync URL is set")
	}
	if config.Sync.AppID != "app-1" {
		t.Errorf("unexpected app id %q", config.Sync.AppID)
	}
}
