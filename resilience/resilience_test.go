package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	result, err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %s", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0
	_, err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		RetryIf:        func(err error) bool { return false },
	}, func() (int, error) {
		attempts++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, DefaultRetryConfig(), func() (int, error) {
		return 0, errors.New("never reached after cancel")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 1000, Burst: 2})

	if !rl.Allow() {
		t.Error("first request should be allowed")
	}
	if !rl.Allow() {
		t.Error("second request should be allowed (burst)")
	}
	if rl.Allow() {
		t.Error("third immediate request should be limited")
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 100, Burst: 1})
	rl.Allow() // drain the bucket

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("expected wait for token refill")
	}
}

func TestBulkheadCeiling(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 3})

	var peak, current int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func() error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("bulkhead ceiling exceeded: peak %d", peak)
	}
}

func TestBulkheadRejectsWhenFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	close(release)
}
