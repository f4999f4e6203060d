package provider

import (
	"context"
	"strings"
	"testing"
)

type testProvider struct {
	name      string
	available bool
}

func (p *testProvider) Name() string                         { return p.name }
func (p *testProvider) IsAvailable(ctx context.Context) bool { return p.available }

func TestRegistryRegisterAndCreate(t *testing.T) {
	reg := NewRegistry[*testProvider]()
	reg.RegisterFactory("test", func(cfg map[string]any) (*testProvider, error) {
		return &testProvider{name: "test", available: true}, nil
	})

	p, err := reg.Create("test", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Name() != "test" {
		t.Errorf("expected name 'test', got %q", p.Name())
	}
}

func TestRegistryCreateUnregistered(t *testing.T) {
	reg := NewRegistry[*testProvider]()
	_, err := reg.Create("missing", nil)
	if err == nil {
		t.Error("expected error for unregistered factory")
	}
	if !strings.Contains(err.Error(), "not registered") {
		t.Errorf("expected 'not registered' in error, got %q", err.Error())
	}
}

func TestRegistryGetOrCreateCaches(t *testing.T) {
	reg := NewRegistry[*testProvider]()
	created := 0
	reg.RegisterFactory("cached", func(cfg map[string]any) (*testProvider, error) {
		created++
		return &testProvider{name: "cached", available: true}, nil
	})

	first, err := reg.GetOrCreate("cached", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	second, err := reg.GetOrCreate("cached", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if first != second {
		t.Error("expected the same cached instance")
	}
	if created != 1 {
		t.Errorf("factory called %d times, expected 1", created)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry[*testProvider]()
	reg.RegisterFactory("beta", func(cfg map[string]any) (*testProvider, error) {
		return &testProvider{name: "beta"}, nil
	})
	reg.RegisterFactory("alpha", func(cfg map[string]any) (*testProvider, error) {
		return &testProvider{name: "alpha"}, nil
	})

	names := reg.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("expected sorted [alpha, beta], got %v", names)
	}
}

func TestHealthCheck(t *testing.T) {
	up := &testProvider{name: "up", available: true}
	down := &testProvider{name: "down", available: false}

	components := HealthCheck(context.Background(), up, down)
	if components["up"] != nil {
		t.Errorf("expected up to be healthy, got %v", components["up"])
	}
	if components["down"] == nil {
		t.Error("expected down to be unhealthy")
	}
}
