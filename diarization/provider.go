package diarization

import (
	"context"

	"github.com/opencouncil/scribe/provider"
)

// JobPayload is the webhook delivery a diarization provider POSTs to the
// callback address when the job reaches a terminal state.
type JobPayload struct {
	// Status is the terminal job status ("succeeded" or "failed").
	Status string `json:"status"`
	// Error carries the provider's failure message when Status is not
	// "succeeded".
	Error string `json:"error,omitempty"`
	Result
}

// Provider is the interface asynchronous diarization backends implement.
// Submit starts a remote job that later delivers a JobPayload to callbackURL;
// Status is a diagnostic poll only.
type Provider interface {
	provider.Provider

	// Submit starts a diarization job. The provider delivers the result to
	// callbackURL when done.
	Submit(ctx context.Context, req Request, callbackURL string) (jobID string, err error)
	// Status polls the remote job state (pending, running, succeeded, failed).
	Status(ctx context.Context, jobID string) (string, error)
}
