package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/opencouncil/scribe/diarization"
	"github.com/opencouncil/scribe/scheduler"
	"github.com/opencouncil/scribe/server"
)

// JobsConfig configures one upstream provider's bounded job dispatcher.
type JobsConfig struct {
	// Provider selects the registered provider factory (e.g. "pyannote").
	Provider string `yaml:"provider" mapstructure:"provider"`
	// MaxConcurrent is the provider's concurrency ceiling.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// QueueSize bounds the number of jobs waiting for a slot.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
	// TimeoutMinutes bounds the wait for the webhook delivery.
	TimeoutMinutes int `yaml:"timeout_minutes" mapstructure:"timeout_minutes"`
	// PollSeconds is the diagnostic status-poll interval. 0 disables polling.
	PollSeconds int `yaml:"poll_seconds" mapstructure:"poll_seconds"`
	// Options holds provider-specific settings (base_url, model, ...).
	Options map[string]any `yaml:"options" mapstructure:"options"`
}

// Timeout returns the job timeout as a duration.
func (c *JobsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// PollInterval returns the poll interval as a duration.
func (c *JobsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c *JobsConfig) applyDefaults(provider string, maxConcurrent, timeoutMinutes int) {
	if c.Provider == "" {
		c.Provider = provider
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = maxConcurrent
	}
	if c.TimeoutMinutes <= 0 {
		c.TimeoutMinutes = timeoutMinutes
	}
}

// ObservabilityConfig configures the OpenTelemetry exporters.
type ObservabilityConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// SummaryConfig configures the summarization collaborator.
type SummaryConfig struct {
	// BaseURL is the summarizer service endpoint. Empty disables summaries.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Model names the generation model requested from the summarizer.
	Model string `yaml:"model" mapstructure:"model"`
	// TimeoutSeconds bounds one summarization call.
	TimeoutSeconds int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// AppConfig is the full configuration of the scribe service.
type AppConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// PublicBaseURL is the externally reachable address providers deliver
	// webhook callbacks to, without a trailing slash.
	PublicBaseURL string `yaml:"public_base_url" mapstructure:"public_base_url"`

	Server        server.Config                `yaml:"server" mapstructure:"server"`
	Scheduler     scheduler.Config             `yaml:"scheduler" mapstructure:"scheduler"`
	Reconcile     diarization.ReconcilerConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Diarization   JobsConfig                   `yaml:"diarization" mapstructure:"diarization"`
	Transcription JobsConfig                   `yaml:"transcription" mapstructure:"transcription"`
	Observability ObservabilityConfig          `yaml:"observability" mapstructure:"observability"`
	Summary       SummaryConfig                `yaml:"summary" mapstructure:"summary"`
}

// ApplyDefaults fills unset fields across all sections.
func (c *AppConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "scribe"
	}
	c.ServiceConfig.ApplyDefaults()
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Scheduler.Version == "" {
		c.Scheduler.Version = c.Version
	}
	c.Server.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Diarization.applyDefaults("pyannote", 2, 40)
	c.Transcription.applyDefaults("whisper", 2, 40)
	if c.Observability.SampleRate == 0 {
		c.Observability.SampleRate = 1.0
	}
	if c.Observability.Endpoint == "" {
		c.Observability.Endpoint = "localhost:4318"
	}
	if c.Summary.TimeoutSeconds <= 0 {
		c.Summary.TimeoutSeconds = 120
	}
	if c.Reconcile.MaxDriftCost == 0 {
		c.Reconcile.MaxDriftCost = 1.0
	}
}

// Validate checks all sections.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("config.public_base_url is required for webhook callbacks")
	}
	if !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("config.public_base_url must be an http(s) URL (got: %s)", c.PublicBaseURL)
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("config.scheduler: %w", err)
	}
	for name, jc := range map[string]*JobsConfig{
		"diarization":   &c.Diarization,
		"transcription": &c.Transcription,
	} {
		if jc.Provider == "" {
			return fmt.Errorf("config.%s.provider is required", name)
		}
		if jc.MaxConcurrent <= 0 {
			return fmt.Errorf("config.%s.max_concurrent must be positive", name)
		}
	}
	return nil
}
