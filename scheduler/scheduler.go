package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencouncil/scribe/logger"
	"github.com/opencouncil/scribe/observability"
)

// Config configures the Scheduler.
type Config struct {
	// MaxParallel is the global ceiling on concurrently processing tasks.
	MaxParallel int `mapstructure:"max_parallel"`
	// MaxQueued bounds the FIFO wait list. 0 means unbounded.
	MaxQueued int `mapstructure:"max_queued"`
	// Version is stamped onto task records, for callers comparing results
	// across deployments.
	Version string `mapstructure:"version"`
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 2
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.MaxQueued < 0 {
		return fmt.Errorf("max_queued must be >= 0, got %d", c.MaxQueued)
	}
	return nil
}

type queuedTask struct {
	record      *TaskRecord
	run         TaskFunc
	deliveryURL string
}

// Scheduler admits tasks under a global concurrency ceiling and relays their
// lifecycle to caller-supplied delivery addresses. Results are never returned
// synchronously.
type Scheduler struct {
	cfg      Config
	log      *logger.Logger
	notifier *Notifier
	metrics  *observability.Metrics

	mu      sync.Mutex
	running map[string]*queuedTask
	waiting []*queuedTask
	closed  bool

	wg sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config, notifier *Notifier, log *logger.Logger, metrics *observability.Metrics) *Scheduler {
	cfg.ApplyDefaults()
	return &Scheduler{
		cfg:      cfg,
		log:      log.WithComponent("scheduler"),
		notifier: notifier,
		metrics:  metrics,
		running:  make(map[string]*queuedTask),
	}
}

// RunTask accepts a task for execution. If a slot is free the task starts
// immediately; otherwise it joins the FIFO wait list and the caller receives
// a "queued" delivery. The result always arrives out-of-band at deliveryURL.
func (s *Scheduler) RunTask(taskType string, run TaskFunc, deliveryURL string) (Admission, error) {
	now := time.Now()
	q := &queuedTask{
		record: &TaskRecord{
			TaskID:        uuid.NewString(),
			TaskType:      taskType,
			CreatedAt:     now,
			LastUpdatedAt: now,
			Version:       s.cfg.Version,
		},
		run:         run,
		deliveryURL: deliveryURL,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Admission{}, fmt.Errorf("scheduler is shutting down")
	}

	queued := len(s.running) >= s.cfg.MaxParallel
	if queued {
		if s.cfg.MaxQueued > 0 && len(s.waiting) >= s.cfg.MaxQueued {
			s.mu.Unlock()
			return Admission{}, fmt.Errorf("task queue is full (%d waiting)", s.cfg.MaxQueued)
		}
		q.record.Status = StatusQueued
		q.record.Stage = "queued"
		s.waiting = append(s.waiting, q)
	} else {
		s.start(q)
	}
	adm := Admission{
		TaskID:       q.record.TaskID,
		Accepted:     true,
		Queued:       queued,
		QueueSize:    len(s.waiting),
		RunningCount: len(s.running),
		MaxParallel:  s.cfg.MaxParallel,
	}
	s.mu.Unlock()

	if queued {
		s.log.Info("task queued", logger.Fields(
			logger.FieldTaskID, q.record.TaskID,
			logger.FieldTaskType, taskType,
			"queue_size", adm.QueueSize,
		))
		s.deliverAsync(q, Delivery{
			TaskID:          q.record.TaskID,
			Status:          StatusQueued,
			Stage:           "queued",
			ProgressPercent: 0,
		})
	}
	return adm, nil
}

// start moves a task into the running set and launches it. Caller holds s.mu.
func (s *Scheduler) start(q *queuedTask) {
	q.record.Status = StatusProcessing
	q.record.Stage = "starting"
	q.record.LastUpdatedAt = time.Now()
	s.running[q.record.TaskID] = q
	s.wg.Add(1)
	go s.execute(q)
}

func (s *Scheduler) execute(q *queuedTask) {
	defer s.wg.Done()

	taskLog := s.log.WithFields(logger.Fields(
		logger.FieldTaskID, q.record.TaskID,
		logger.FieldTaskType, q.record.TaskType,
	))
	taskLog.Info("task started")
	started := time.Now()

	progress := func(stage string, percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		s.mu.Lock()
		q.record.Stage = stage
		q.record.ProgressPercent = percent
		q.record.LastUpdatedAt = time.Now()
		s.mu.Unlock()

		taskLog.Debug("task progress", logger.Fields(
			logger.FieldStage, stage,
			"percent", percent,
		))
		s.deliverAsync(q, Delivery{
			TaskID:          q.record.TaskID,
			Status:          StatusProcessing,
			Stage:           stage,
			ProgressPercent: percent,
		})
	}

	result, err := q.run(context.Background(), progress)

	final := Delivery{TaskID: q.record.TaskID, ProgressPercent: 100}
	if err != nil {
		final.Status = StatusError
		final.Error = err.Error()
		taskLog.WithError(err).Error("task failed", logger.Fields(
			logger.FieldDuration, time.Since(started).String(),
		))
	} else {
		final.Status = StatusSuccess
		final.Result = result
		taskLog.Info("task completed", logger.Fields(
			logger.FieldDuration, time.Since(started).String(),
		))
	}
	s.metrics.TaskFinished(context.Background(), q.record.TaskType, string(final.Status))
	s.deliverAsync(q, final)

	// Slot release and promotion are atomic so a queued task cannot be
	// stranded between "slot freed" and "queue popped".
	s.mu.Lock()
	delete(s.running, q.record.TaskID)
	for len(s.waiting) > 0 && len(s.running) < s.cfg.MaxParallel {
		next := s.waiting[0]
		s.waiting = s.waiting[1:]
		s.start(next)
	}
	s.mu.Unlock()
}

func (s *Scheduler) deliverAsync(q *queuedTask, d Delivery) {
	if q.deliveryURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.notifier.Send(ctx, q.deliveryURL, d)
	}()
}

// Tasks returns a snapshot of all live task records, running first, then
// queued in promotion order.
func (s *Scheduler) Tasks() []TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskRecord, 0, len(s.running)+len(s.waiting))
	for _, q := range s.running {
		out = append(out, *q.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	for _, q := range s.waiting {
		out = append(out, *q.record)
	}
	return out
}

// Running returns the number of tasks currently processing.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// QueueSize returns the number of tasks waiting for a slot.
func (s *Scheduler) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}

// Shutdown stops admitting tasks and waits for running tasks to finish or
// ctx to expire. Queued tasks that never started receive an error delivery.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	abandoned := s.waiting
	s.waiting = nil
	s.mu.Unlock()

	for _, q := range abandoned {
		s.deliverAsync(q, Delivery{
			TaskID: q.record.TaskID,
			Status: StatusError,
			Error:  "service shutting down before task could start",
		})
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
