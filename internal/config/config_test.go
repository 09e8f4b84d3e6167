package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_TYPE", "")
	t.Setenv("CODE_EXPIRY_DAYS", "")
	t.Setenv("UPLOAD_BACKEND", "")

	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("DatabaseType = %q, want sqlite", cfg.DatabaseType)
	}
	if cfg.CodeExpiry != 7*24*time.Hour {
		t.Errorf("CodeExpiry = %v, want 7 days", cfg.CodeExpiry)
	}
	if cfg.UploadBackend != "local" {
		t.Errorf("UploadBackend = %q, want local", cfg.UploadBackend)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CODE_EXPIRY_DAYS", "3")
	t.Setenv("APP_BASE_URL", "https://members.example.org/")
	t.Setenv("DEBUG", "true")

	cfg := Load()

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.CodeExpiry != 3*24*time.Hour {
		t.Errorf("CodeExpiry = %v, want 72h", cfg.CodeExpiry)
	}
	if cfg.AppBaseURL != "https://members.example.org" {
		t.Errorf("AppBaseURL = %q, trailing slash should be trimmed", cfg.AppBaseURL)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SESSION_DURATION_HOURS", "many")
	if got := getEnvInt("SESSION_DURATION_HOURS", 24); got != 24 {
		t.Errorf("getEnvInt() = %d, want 24", got)
	}
}

func TestCheckSecrets(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		debug   bool
		wantErr bool
	}{
		{"default secret in production", DefaultSessionSecret, false, true},
		{"default secret in debug", DefaultSessionSecret, true, false},
		{"configured secret", "s3cr3t-from-env", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SessionSecret: tt.secret, Debug: tt.debug}
			err := cfg.CheckSecrets()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckSecrets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrDefaultSessionSecret) {
				t.Errorf("CheckSecrets() error = %v, want ErrDefaultSessionSecret", err)
			}
		})
	}
}

func TestLoadUsesDefaultSecretWhenUnset(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("DEBUG", "")
	if err := Load().CheckSecrets(); !errors.Is(err, ErrDefaultSessionSecret) {
		t.Errorf("CheckSecrets() after Load() = %v, want ErrDefaultSessionSecret", err)
	}
}
