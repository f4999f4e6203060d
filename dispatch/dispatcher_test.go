package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencouncil/scribe/callback"
	"github.com/opencouncil/scribe/errors"
	"github.com/opencouncil/scribe/logger"
)

type jobPayload struct {
	Status string `json:"status"`
	Value  string `json:"value"`
}

func testRegistry() *callback.Registry {
	return callback.NewRegistry("http://localhost:8085", logger.Nop())
}

func tokenFromURL(url string) string {
	parts := strings.Split(url, "/callback/")
	return parts[len(parts)-1]
}

func deliver(t *testing.T, reg *callback.Registry, token string, p jobPayload) {
	t.Helper()
	body, _ := json.Marshal(p)
	if err := reg.Deliver(token, body); err != nil {
		t.Errorf("deliver %s: %v", token, err)
	}
}

func TestSubmitDeliversResult(t *testing.T) {
	reg := testRegistry()
	tokens := make(chan string, 1)

	d := New[string, jobPayload](Config{Provider: "test", JobTimeout: 5 * time.Second}, reg,
		func(ctx context.Context, req string, callbackURL string) (string, error) {
			tokens <- tokenFromURL(callbackURL)
			return "job-1", nil
		}, logger.Nop())
	d.Start()
	defer d.Stop()

	go func() {
		deliver(t, reg, <-tokens, jobPayload{Status: "succeeded", Value: "hello"})
	}()

	res, err := d.Submit(context.Background(), "input")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Value != "hello" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	reg := testRegistry()
	const ceiling = 3
	const jobs = 12

	var active, peak int32
	tokens := make(chan string, jobs)

	d := New[int, jobPayload](Config{Provider: "test", MaxConcurrent: ceiling, JobTimeout: 5 * time.Second}, reg,
		func(ctx context.Context, req int, callbackURL string) (string, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			tokens <- tokenFromURL(callbackURL)
			return fmt.Sprintf("job-%d", req), nil
		}, logger.Nop())
	d.Start()
	defer d.Stop()

	// Resolve jobs slowly so the queue stays saturated.
	go func() {
		for i := 0; i < jobs; i++ {
			token := <-tokens
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			deliver(t, reg, token, jobPayload{Status: "succeeded"})
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := d.Submit(context.Background(), i); err != nil {
				t.Errorf("job %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p > ceiling {
		t.Errorf("active peaked at %d, ceiling is %d", p, ceiling)
	}
}

func TestFIFODispatchOrder(t *testing.T) {
	reg := testRegistry()

	type submitted struct {
		req   int
		token string
	}
	order := make(chan submitted, 8)

	d := New[int, jobPayload](Config{Provider: "test", MaxConcurrent: 1, JobTimeout: 5 * time.Second}, reg,
		func(ctx context.Context, req int, callbackURL string) (string, error) {
			order <- submitted{req: req, token: tokenFromURL(callbackURL)}
			return "job", nil
		}, logger.Nop())
	d.Start()
	defer d.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := d.Submit(context.Background(), i); err != nil {
				t.Errorf("job %d: %v", i, err)
			}
		}(i)
		// Space out submissions so queue order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	go func() {
		for i := 0; i < 5; i++ {
			s := <-order
			if s.req != i {
				t.Errorf("dispatched job %d at position %d", s.req, i)
			}
			deliver(t, reg, s.token, jobPayload{Status: "succeeded"})
		}
	}()
	wg.Wait()
}

func TestResultRoutedToOriginalCaller(t *testing.T) {
	reg := testRegistry()

	type submitted struct {
		req   string
		token string
	}
	subs := make(chan submitted, 3)

	d := New[string, jobPayload](Config{Provider: "test", MaxConcurrent: 3, JobTimeout: 5 * time.Second}, reg,
		func(ctx context.Context, req string, callbackURL string) (string, error) {
			subs <- submitted{req: req, token: tokenFromURL(callbackURL)}
			return "job", nil
		}, logger.Nop())
	d.Start()
	defer d.Stop()

	// Complete jobs in reverse submission order.
	go func() {
		collected := make([]submitted, 0, 3)
		for i := 0; i < 3; i++ {
			collected = append(collected, <-subs)
		}
		for i := len(collected) - 1; i >= 0; i-- {
			deliver(t, reg, collected[i].token, jobPayload{Status: "succeeded", Value: collected[i].req})
		}
	}()

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res, err := d.Submit(context.Background(), name)
			if err != nil {
				t.Errorf("job %s: %v", name, err)
				return
			}
			if res.Value != name {
				t.Errorf("job %s received result for %s", name, res.Value)
			}
		}(name)
	}
	wg.Wait()
}

func TestJobTimeout(t *testing.T) {
	reg := testRegistry()

	d := New[string, jobPayload](Config{Provider: "whisper", JobTimeout: 50 * time.Millisecond}, reg,
		func(ctx context.Context, req string, callbackURL string) (string, error) {
			return "job-1", nil
		}, logger.Nop())
	d.Start()
	defer d.Stop()

	_, err := d.Submit(context.Background(), "input")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.IsCode(err, errors.ErrCodeJobTimeout) {
		t.Errorf("expected JOB_TIMEOUT, got %v", err)
	}
}

func TestRemoteFailureIsolated(t *testing.T) {
	reg := testRegistry()
	tokens := make(chan string, 2)

	d := New[string, jobPayload](Config{Provider: "test", MaxConcurrent: 2, JobTimeout: 5 * time.Second}, reg,
		func(ctx context.Context, req string, callbackURL string) (string, error) {
			tokens <- tokenFromURL(callbackURL)
			return "job", nil
		}, logger.Nop(),
		WithResultCheck[string, jobPayload](func(res jobPayload) error {
			if res.Status != "succeeded" {
				return errors.RemoteJobFailed("test", res.Status, "job reported failure")
			}
			return nil
		}))
	d.Start()
	defer d.Stop()

	results := make(chan error, 2)
	submitOne := func(name string) {
		go func() {
			_, err := d.Submit(context.Background(), name)
			results <- err
		}()
	}
	submitOne("failing")
	submitOne("passing")

	deliver(t, reg, <-tokens, jobPayload{Status: "failed"})
	deliver(t, reg, <-tokens, jobPayload{Status: "succeeded"})

	var failures, successes int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			if !errors.IsCode(err, errors.ErrCodeRemoteJobFailed) {
				t.Errorf("expected REMOTE_JOB_FAILED, got %v", err)
			}
			failures++
		} else {
			successes++
		}
	}
	if failures != 1 || successes != 1 {
		t.Errorf("expected one failure and one success, got %d/%d", failures, successes)
	}
}

func TestSubmitErrorCancelsWait(t *testing.T) {
	reg := testRegistry()

	d := New[string, jobPayload](Config{Provider: "test", JobTimeout: 5 * time.Second}, reg,
		func(ctx context.Context, req string, callbackURL string) (string, error) {
			return "", errors.ExternalServiceError("test", fmt.Errorf("connection refused"))
		}, logger.Nop())
	d.Start()
	defer d.Stop()

	_, err := d.Submit(context.Background(), "input")
	if err == nil {
		t.Fatal("expected submission error")
	}
	if reg.Pending() != 0 {
		t.Errorf("expected no pending waits, got %d", reg.Pending())
	}
}
