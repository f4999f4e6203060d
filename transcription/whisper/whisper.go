// Package whisper implements the transcription provider against a
// faster-whisper HTTP sidecar running in asynchronous job mode.
package whisper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/opencouncil/scribe/httpclient"
	"github.com/opencouncil/scribe/provider"
	"github.com/opencouncil/scribe/resilience"
	"github.com/opencouncil/scribe/transcription"
)

const (
	// ProviderName is the registered name for the Whisper provider.
	ProviderName = "whisper"

	defaultWhisperURL     = "http://localhost:8387"
	defaultWhisperModel   = "base"
	defaultWhisperTimeout = 60 * time.Second

	// sidecarMaxInFlight caps concurrent calls against the sidecar so a
	// stalled sidecar cannot absorb every dispatcher goroutine.
	sidecarMaxInFlight = 16
)

// Config holds configuration for the Whisper transcription provider.
type Config struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	Model   string        `json:"model" mapstructure:"model"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Provider implements transcription.Provider against the Whisper sidecar's
// job API. Jobs report completion via webhook, not via the submit response.
type Provider struct {
	cfg    Config
	client *httpclient.Client
}

// NewProvider creates a new Whisper transcription provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWhisperURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultWhisperModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultWhisperTimeout
	}
	client, err := httpclient.New(httpclient.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Bulkhead: &resilience.BulkheadConfig{
			Name:          ProviderName,
			MaxConcurrent: sidecarMaxInFlight,
			MaxWait:       cfg.Timeout,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Provider{cfg: cfg, client: client}, nil
}

// Factory returns a provider.Factory that creates Whisper Provider
// instances from a generic config map.
func Factory() provider.Factory[transcription.Provider] {
	return func(cfg map[string]any) (transcription.Provider, error) {
		wc := Config{}
		if v, ok := cfg["base_url"].(string); ok {
			wc.BaseURL = v
		}
		if v, ok := cfg["model"].(string); ok {
			wc.Model = v
		}
		if v, ok := cfg["timeout"].(time.Duration); ok {
			wc.Timeout = v
		}
		return NewProvider(wc)
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the Whisper sidecar is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	resp, err := p.client.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: "/health"})
	return err == nil && resp.IsSuccess()
}

type submitRequest struct {
	AudioURL   string `json:"audio_url"`
	Language   string `json:"language,omitempty"`
	Model      string `json:"model,omitempty"`
	WebhookURL string `json:"webhook_url"`
	WordLevel  bool   `json:"word_timestamps"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Submit starts an asynchronous transcription job. The sidecar delivers a
// transcription.JobPayload to callbackURL on completion.
func (p *Provider) Submit(ctx context.Context, req transcription.Request, callbackURL string) (string, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	resp, err := httpclient.Post[submitResponse](p.client, ctx, "/v1/jobs", submitRequest{
		AudioURL:   req.AudioURL,
		Language:   req.Language,
		Model:      model,
		WebhookURL: callbackURL,
		WordLevel:  true,
	})
	if err != nil {
		return "", fmt.Errorf("whisper submit: %w", err)
	}
	if resp.Data.Error != "" {
		return "", fmt.Errorf("whisper submit: %s", resp.Data.Error)
	}
	if resp.Data.JobID == "" {
		return "", fmt.Errorf("whisper submit: no job id in response")
	}
	return resp.Data.JobID, nil
}

// Status polls the remote job state for diagnostic logging.
func (p *Provider) Status(ctx context.Context, jobID string) (string, error) {
	resp, err := httpclient.Get[statusResponse](p.client, ctx, "/v1/jobs/"+jobID)
	if err != nil {
		return "", fmt.Errorf("whisper status: %w", err)
	}
	return resp.Data.Status, nil
}
