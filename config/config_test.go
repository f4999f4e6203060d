package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "scribe"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug log level, got %q", cfg.Logging.Level)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "scribe", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info log level, got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid development", ServiceConfig{Name: "scribe", Environment: "development"}, ""},
		{"valid production", ServiceConfig{Name: "scribe", Environment: "production"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "scribe", Environment: "qa"}, "config.environment must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected %q in error, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.PublicBaseURL = "https://scribe.example.org/"
	cfg.ApplyDefaults()

	if cfg.Name != "scribe" {
		t.Errorf("expected default name, got %q", cfg.Name)
	}
	if cfg.PublicBaseURL != "https://scribe.example.org" {
		t.Errorf("expected trailing slash stripped, got %q", cfg.PublicBaseURL)
	}
	if cfg.Diarization.Provider != "pyannote" || cfg.Transcription.Provider != "whisper" {
		t.Errorf("unexpected provider defaults %q/%q", cfg.Diarization.Provider, cfg.Transcription.Provider)
	}
	if cfg.Diarization.TimeoutMinutes != 40 {
		t.Errorf("expected 40 minute job timeout, got %d", cfg.Diarization.TimeoutMinutes)
	}
	if cfg.Reconcile.MaxDriftCost != 1.0 {
		t.Errorf("expected drift threshold default 1.0, got %f", cfg.Reconcile.MaxDriftCost)
	}
	if cfg.Scheduler.Version != cfg.Version {
		t.Errorf("expected scheduler version stamp %q, got %q", cfg.Version, cfg.Scheduler.Version)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestAppConfigValidateRequiresBaseURL(t *testing.T) {
	cfg := AppConfig{}
	cfg.ApplyDefaults()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "public_base_url") {
		t.Errorf("expected public_base_url error, got %v", err)
	}

	cfg.PublicBaseURL = "scribe.example.org"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "http") {
		t.Errorf("expected scheme error, got %v", err)
	}
}

func TestLoadConfigFromFiles(t *testing.T) {
	dir := t.TempDir()

	configFile := filepath.Join(dir, "config.yml")
	configYAML := `
name: scribe
environment: production
public_base_url: https://scribe.example.org
scheduler:
  max_parallel: 4
transcription:
  provider: whisper
  max_concurrent: 3
`
	if err := os.WriteFile(configFile, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("SCHEDULER_MAX_PARALLEL=6\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var cfg AppConfig
	if err := LoadConfig("scribe", &cfg, WithConfigFile(configFile), WithEnvFile(envFile)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "scribe" || cfg.Environment != "production" {
		t.Errorf("yaml values not loaded: %+v", cfg.ServiceConfig)
	}
	if cfg.Transcription.MaxConcurrent != 3 {
		t.Errorf("expected transcription.max_concurrent=3, got %d", cfg.Transcription.MaxConcurrent)
	}
	// .env overrides the yaml value.
	if cfg.Scheduler.MaxParallel != 6 {
		t.Errorf("expected env override max_parallel=6, got %d", cfg.Scheduler.MaxParallel)
	}
}
