// Package provider defines the common contract for upstream processing
// providers (diarization, transcription) and a registry of named factories
// so deployments can select providers by configuration.
package provider

import (
	"context"
	"fmt"
)

// Provider is the base interface all providers must implement.
type Provider interface {
	// Name returns the provider's unique name.
	Name() string
	// IsAvailable checks if the provider is ready to handle requests.
	IsAvailable(ctx context.Context) bool
}

// Factory creates a provider instance from configuration.
type Factory[T Provider] func(cfg map[string]any) (T, error)

// HealthCheck probes each provider's availability and returns a component
// map suitable for the health endpoint. A nil error means reachable.
func HealthCheck[T Provider](ctx context.Context, providers ...T) map[string]error {
	out := make(map[string]error, len(providers))
	for _, p := range providers {
		if p.IsAvailable(ctx) {
			out[p.Name()] = nil
		} else {
			out[p.Name()] = fmt.Errorf("%s is unreachable", p.Name())
		}
	}
	return out
}
