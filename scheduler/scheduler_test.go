package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/opencouncil/scribe/logger"
)

type deliverySink struct {
	mu         sync.Mutex
	deliveries []Delivery
	srv        *httptest.Server
}

func newDeliverySink(t *testing.T) *deliverySink {
	t.Helper()
	sink := &deliverySink{}
	sink.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var d Delivery
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			t.Errorf("bad delivery body: %v", err)
		}
		sink.mu.Lock()
		sink.deliveries = append(sink.deliveries, d)
		sink.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.srv.Close)
	return sink
}

func (s *deliverySink) waitFor(t *testing.T, match func(Delivery) bool) Delivery {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, d := range s.deliveries {
			if match(d) {
				s.mu.Unlock()
				return d
			}
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("delivery did not arrive")
	return Delivery{}
}

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	notifier, err := NewNotifier(logger.Nop(), nil)
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	return New(cfg, notifier, logger.Nop(), nil)
}

func TestRunTaskDeliversResult(t *testing.T) {
	sink := newDeliverySink(t)
	s := newTestScheduler(t, Config{MaxParallel: 2})

	adm, err := s.RunTask("transcribe", func(ctx context.Context, progress Progress) (any, error) {
		progress("working", 50)
		return map[string]string{"outcome": "done"}, nil
	}, sink.srv.URL)
	if err != nil {
		t.Fatalf("run task: %v", err)
	}
	if !adm.Accepted || adm.Queued {
		t.Errorf("expected immediate dispatch, got %+v", adm)
	}

	final := sink.waitFor(t, func(d Delivery) bool { return d.Status == StatusSuccess })
	if final.TaskID != adm.TaskID {
		t.Errorf("delivery for task %s, expected %s", final.TaskID, adm.TaskID)
	}
	sink.waitFor(t, func(d Delivery) bool {
		return d.Status == StatusProcessing && d.Stage == "working" && d.ProgressPercent == 50
	})
}

func TestRunTaskDeliversError(t *testing.T) {
	sink := newDeliverySink(t)
	s := newTestScheduler(t, Config{MaxParallel: 1})

	if _, err := s.RunTask("transcribe", func(ctx context.Context, progress Progress) (any, error) {
		return nil, context.DeadlineExceeded
	}, sink.srv.URL); err != nil {
		t.Fatalf("run task: %v", err)
	}

	final := sink.waitFor(t, func(d Delivery) bool { return d.Status == StatusError })
	if final.Error == "" {
		t.Error("expected error message in delivery")
	}
}

func TestQueueBeyondCeiling(t *testing.T) {
	sink := newDeliverySink(t)
	s := newTestScheduler(t, Config{MaxParallel: 1})

	release := make(chan struct{})
	blocker := func(ctx context.Context, progress Progress) (any, error) {
		<-release
		return "ok", nil
	}

	first, err := s.RunTask("transcribe", blocker, sink.srv.URL)
	if err != nil {
		t.Fatalf("first task: %v", err)
	}
	if first.Queued {
		t.Fatal("first task should run immediately")
	}

	second, err := s.RunTask("transcribe", blocker, sink.srv.URL)
	if err != nil {
		t.Fatalf("second task: %v", err)
	}
	if !second.Queued {
		t.Fatal("second task should queue")
	}
	if second.RunningCount != 1 || second.QueueSize != 1 {
		t.Errorf("unexpected admission %+v", second)
	}

	// The queued task announces itself before any slot frees.
	queued := sink.waitFor(t, func(d Delivery) bool { return d.Status == StatusQueued })
	if queued.TaskID != second.TaskID {
		t.Errorf("queued delivery for %s, expected %s", queued.TaskID, second.TaskID)
	}

	close(release)
	sink.waitFor(t, func(d Delivery) bool {
		return d.Status == StatusSuccess && d.TaskID == second.TaskID
	})
	if got := s.Running(); got != 0 {
		t.Errorf("expected no running tasks, got %d", got)
	}
}

func TestFIFOPromotion(t *testing.T) {
	sink := newDeliverySink(t)
	s := newTestScheduler(t, Config{MaxParallel: 1})

	var mu sync.Mutex
	var started []string
	release := make(chan struct{})

	makeTask := func(name string) TaskFunc {
		return func(ctx context.Context, progress Progress) (any, error) {
			mu.Lock()
			started = append(started, name)
			mu.Unlock()
			<-release
			return name, nil
		}
	}

	if _, err := s.RunTask("blocker", makeTask("blocker"), sink.srv.URL); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.RunTask(name, makeTask(name), sink.srv.URL); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.QueueSize(); got != 3 {
		t.Fatalf("expected 3 queued, got %d", got)
	}

	close(release)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(started)
		mu.Unlock()
		if n == 4 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"blocker", "a", "b", "c"}
	if len(started) != len(want) {
		t.Fatalf("started %v, want %v", started, want)
	}
	for i := range want {
		if started[i] != want[i] {
			t.Errorf("position %d: started %s, want %s", i, started[i], want[i])
		}
	}
}

func TestDeliveryFailureDoesNotFailTask(t *testing.T) {
	s := newTestScheduler(t, Config{MaxParallel: 1})

	done := make(chan struct{})
	// Unreachable delivery address; the task itself must still finish.
	_, err := s.RunTask("transcribe", func(ctx context.Context, progress Progress) (any, error) {
		defer close(done)
		progress("working", 10)
		return "ok", nil
	}, "http://127.0.0.1:1/delivery")
	if err != nil {
		t.Fatalf("run task: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestTasksSnapshot(t *testing.T) {
	sink := newDeliverySink(t)
	s := newTestScheduler(t, Config{MaxParallel: 1, Version: "v2"})

	release := make(chan struct{})
	defer close(release)
	blocker := func(ctx context.Context, progress Progress) (any, error) {
		<-release
		return "ok", nil
	}

	if _, err := s.RunTask("running-task", blocker, sink.srv.URL); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RunTask("queued-task", blocker, sink.srv.URL); err != nil {
		t.Fatal(err)
	}

	tasks := s.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Status != StatusProcessing || tasks[0].TaskType != "running-task" {
		t.Errorf("unexpected first record %+v", tasks[0])
	}
	if tasks[1].Status != StatusQueued || tasks[1].Stage != "queued" {
		t.Errorf("unexpected second record %+v", tasks[1])
	}
	if tasks[0].Version != "v2" {
		t.Errorf("expected version stamp, got %q", tasks[0].Version)
	}
}

func TestShutdownRejectsNewTasks(t *testing.T) {
	s := newTestScheduler(t, Config{MaxParallel: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := s.RunTask("late", func(ctx context.Context, progress Progress) (any, error) {
		return nil, nil
	}, ""); err == nil {
		t.Error("expected rejection after shutdown")
	}
}
