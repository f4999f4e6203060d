// Package pyannote implements the diarization provider against a Pyannote
// HTTP sidecar running in asynchronous job mode.
package pyannote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/opencouncil/scribe/diarization"
	"github.com/opencouncil/scribe/httpclient"
	"github.com/opencouncil/scribe/provider"
	"github.com/opencouncil/scribe/resilience"
)

const (
	// ProviderName is the registered name for the Pyannote provider.
	ProviderName = "pyannote"

	defaultPyannoteURL     = "http://localhost:8388"
	defaultPyannoteTimeout = 60 * time.Second

	// sidecarMaxInFlight caps concurrent calls against the sidecar so a
	// stalled sidecar cannot absorb every dispatcher goroutine.
	sidecarMaxInFlight = 16
)

// Config holds configuration for the Pyannote diarization provider.
type Config struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Provider implements diarization.Provider against the Pyannote sidecar's
// job API. Jobs report completion via webhook, not via the submit response.
type Provider struct {
	cfg    Config
	client *httpclient.Client
}

// NewProvider creates a new Pyannote diarization provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPyannoteURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultPyannoteTimeout
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

// Factory returns a provider.Factory that creates Pyannote Provider
// instances from a generic config map.
func Factory() provider.Factory[diarization.Provider] {
	return func(cfg map[string]any) (diarization.Provider, error) {
		pc := Config{}
		if v, ok := cfg["base_url"].(string); ok {
			pc.BaseURL = v
		}
		if v, ok := cfg["timeout"].(time.Duration); ok {
			pc.Timeout = v
		}
		return NewProvider(pc)
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the Pyannote sidecar is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	resp, err := p.client.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: "/health"})
	return err == nil && resp.IsSuccess()
}

type submitRequest struct {
	AudioURL    string `json:"audio_url"`
	NumSpeakers int    `json:"num_speakers,omitempty"`
	MinSpeakers int    `json:"min_speakers,omitempty"`
	MaxSpeakers int    `json:"max_speakers,omitempty"`
	WebhookURL  string `json:"webhook_url"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Submit starts an asynchronous diarization job. The sidecar delivers a
// diarization.JobPayload to callbackURL on completion.
func (p *Provider) Submit(ctx context.Context, req diarization.Request, callbackURL string) (string, error) {
	resp, err := httpclient.Post[submitResponse](p.client, ctx, "/v1/jobs", submitRequest{
		AudioURL:    req.AudioURL,
		NumSpeakers: req.NumSpeakers,
		MinSpeakers: req.MinSpeakers,
		MaxSpeakers: req.MaxSpeakers,
		WebhookURL:  callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("pyannote submit: %w", err)
	}
	if resp.Data.Error != "" {
		return "", fmt.Errorf("pyannote submit: %s", resp.Data.Error)
	}
	if resp.Data.JobID == "" {
		return "", fmt.Errorf("pyannote submit: no job id in response")
	}
	return resp.Data.JobID, nil
}

// Status polls the remote job state for diagnostic logging.
func (p *Provider) Status(ctx context.Context, jobID string) (string, error) {
	resp, err := httpclient.Get[statusResponse](p.client, ctx, "/v1/jobs/"+jobID)
	if err != nil {
		return "", fmt.Errorf("pyannote status: %w", err)
	}
	return resp.Data.Status, nil
}
