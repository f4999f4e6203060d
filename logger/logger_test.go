package logger

import (
	"testing"
	"time"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("expected default format console, got %s", cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("expected default output stdout, got %s", cfg.Output)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Level: "verbose", Format: "json"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid level")
	}

	cfg = Config{Level: "debug", Format: "xml"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid format")
	}

	cfg = Config{Level: "debug", Format: "json"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestFields(t *testing.T) {
	m := Fields("job_id", "j-1", "provider", "pyannote")
	if m["job_id"] != "j-1" {
		t.Errorf("expected job_id j-1, got %v", m["job_id"])
	}
	if m["provider"] != "pyannote" {
		t.Errorf("expected provider pyannote, got %v", m["provider"])
	}

	// Odd trailing value is ignored.
	m = Fields("a", 1, "dangling")
	if len(m) != 1 {
		t.Errorf("expected 1 field, got %d", len(m))
	}
}

func TestDurationFields(t *testing.T) {
	m := DurationFields("reconcile", 1500*time.Millisecond)
	if m[FieldDuration] != int64(1500) {
		t.Errorf("expected 1500ms, got %v", m[FieldDuration])
	}
}

func TestWithComponent(t *testing.T) {
	l := Nop().WithComponent("dispatcher")
	if l == nil {
		t.Fatal("expected logger")
	}
	// Must not panic when logging through a derived logger.
	l.Info("test", Fields("k", "v"))
	l.WithError(nil).Debug("test")
}
