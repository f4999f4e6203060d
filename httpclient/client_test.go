package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencouncil/scribe/resilience"
)

func TestDoJSONBody(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/v1/jobs",
		Body:   map[string]string{"media_url": "http://example/rec.mp3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("expected success, got %d", resp.StatusCode)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected application/json, got %s", gotContentType)
	}
}

func TestDoClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/status"})

	var clientErr *Error
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if clientErr.Code != ErrCodeServer {
		t.Errorf("expected server error code, got %s", clientErr.Code)
	}
	if !clientErr.Retryable {
		t.Error("5xx should be retryable")
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	retryCfg := DefaultRetryConfig()
	retryCfg.InitialBackoff = 0

	c, _ := New(Config{BaseURL: srv.URL, Retry: retryCfg})
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestTypedGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"running","job_id":"j-42"}`))
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})

	type jobStatus struct {
		Status string `json:"status"`
		JobID  string `json:"job_id"`
	}
	resp, err := Get[jobStatus](c, context.Background(), "/v1/jobs/j-42")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Data.Status != "running" || resp.Data.JobID != "j-42" {
		t.Errorf("unexpected decode: %+v", resp.Data)
	}
}

func TestRateLimiterApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rlCfg := resilience.RateLimiterConfig{Name: "test", Rate: 1000, Burst: 1}
	c, _ := New(Config{BaseURL: srv.URL, RateLimiter: &rlCfg})

	// Two immediate requests; the second waits for a token but still succeeds.
	for i := 0; i < 2; i++ {
		if _, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
}

func TestBulkheadRejectsOverflow(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bhCfg := resilience.BulkheadConfig{Name: "test", MaxConcurrent: 1}
	c, _ := New(Config{BaseURL: srv.URL, Bulkhead: &bhCfg})

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
		firstDone <- err
	}()

	// Wait until the first request occupies the only slot.
	for c.bh.InUse() == 0 {
		time.Sleep(time.Millisecond)
	}

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if !errors.Is(err, resilience.ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("in-flight request failed: %v", err)
	}
}
