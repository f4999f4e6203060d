// Package dispatch provides the concurrency-bounded job dispatcher used to
// run slow webhook-driven provider jobs. Each upstream provider gets its own
// dispatcher with its own ceiling; jobs are dispatched in FIFO submission
// order by a fixed pool of workers.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencouncil/scribe/callback"
	"github.com/opencouncil/scribe/errors"
	"github.com/opencouncil/scribe/logger"
	"github.com/opencouncil/scribe/observability"
)

// SubmitFunc hands a job to the remote provider, passing the callback URL the
// provider must deliver the result to. It returns the provider-side job id.
type SubmitFunc[Req any] func(ctx context.Context, req Req, callbackURL string) (jobID string, err error)

// StatusFunc polls the provider's job-status endpoint. Polling is diagnostic
// only; it never resolves the wait.
type StatusFunc func(ctx context.Context, jobID string) (status string, err error)

// CheckFunc inspects a delivered payload and reports whether the remote job
// actually succeeded. A non-nil error fails the job.
type CheckFunc[Res any] func(res Res) error

// Config configures a Dispatcher.
type Config struct {
	// Provider names the upstream provider, used in logs and errors.
	Provider string
	// MaxConcurrent is the concurrency ceiling. Defaults to 1.
	MaxConcurrent int
	// QueueSize bounds the number of jobs waiting for a worker. Defaults to 256.
	QueueSize int
	// JobTimeout bounds the wait for the webhook delivery. Defaults to 30m.
	JobTimeout time.Duration
	// PollInterval is the diagnostic status-poll interval. 0 disables polling.
	PollInterval time.Duration
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Minute
	}
}

type jobResult[Res any] struct {
	res Res
	err error
}

type job[Req, Res any] struct {
	req        Req
	out        chan jobResult[Res]
	enqueuedAt time.Time
}

// Dispatcher runs jobs against one upstream provider with a fixed concurrency
// ceiling. Submissions beyond the ceiling queue in FIFO order.
type Dispatcher[Req, Res any] struct {
	cfg      Config
	registry *callback.Registry
	submit   SubmitFunc[Req]
	status   StatusFunc
	check    CheckFunc[Res]
	log      *logger.Logger
	metrics  *observability.Metrics

	queue  chan *job[Req, Res]
	active atomic.Int32
	queued atomic.Int32

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// Option configures optional dispatcher behavior.
type Option[Req, Res any] func(*Dispatcher[Req, Res])

// WithStatusPoll enables diagnostic status polling via fn.
func WithStatusPoll[Req, Res any](fn StatusFunc) Option[Req, Res] {
	return func(d *Dispatcher[Req, Res]) { d.status = fn }
}

// WithResultCheck installs a payload check that can fail the job after
// delivery, for providers that report terminal failure inside the payload.
func WithResultCheck[Req, Res any](fn CheckFunc[Res]) Option[Req, Res] {
	return func(d *Dispatcher[Req, Res]) { d.check = fn }
}

// WithMetrics attaches metric instruments.
func WithMetrics[Req, Res any](m *observability.Metrics) Option[Req, Res] {
	return func(d *Dispatcher[Req, Res]) { d.metrics = m }
}

// New creates a dispatcher for one provider. Call Start before submitting.
func New[Req, Res any](cfg Config, registry *callback.Registry, submit SubmitFunc[Req], log *logger.Logger, opts ...Option[Req, Res]) *Dispatcher[Req, Res] {
	cfg.ApplyDefaults()
	d := &Dispatcher[Req, Res]{
		cfg:      cfg,
		registry: registry,
		submit:   submit,
		log:      log.WithComponent("dispatch").WithFields(logger.Fields(logger.FieldProvider, cfg.Provider)),
		queue:    make(chan *job[Req, Res], cfg.QueueSize),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker pool.
func (d *Dispatcher[Req, Res]) Start() {
	for i := 0; i < d.cfg.MaxConcurrent; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info("dispatcher started", logger.Fields(
		"max_concurrent", d.cfg.MaxConcurrent,
		"queue_size", d.cfg.QueueSize,
		"job_timeout", d.cfg.JobTimeout.String(),
	))
}

// Stop drains no further jobs and waits for in-flight workers to finish
// their current job. Queued jobs are rejected.
func (d *Dispatcher[Req, Res]) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
		close(d.queue)
	})
	d.wg.Wait()
}

// Submit enqueues a job and blocks until its result is delivered via webhook,
// the job times out, or ctx is cancelled. Failures affect only this job.
func (d *Dispatcher[Req, Res]) Submit(ctx context.Context, req Req) (Res, error) {
	var zero Res

	select {
	case <-d.stopped:
		return zero, errors.Conflict("dispatcher is stopped")
	default:
	}

	j := &job[Req, Res]{
		req:        req,
		out:        make(chan jobResult[Res], 1),
		enqueuedAt: time.Now(),
	}

	d.queued.Add(1)
	d.metrics.JobQueued(ctx, d.cfg.Provider, 1)
	select {
	case d.queue <- j:
	case <-ctx.Done():
		d.queued.Add(-1)
		d.metrics.JobQueued(ctx, d.cfg.Provider, -1)
		return zero, ctx.Err()
	}

	select {
	case r := <-j.out:
		return r.res, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Active returns the number of jobs currently running against the provider.
func (d *Dispatcher[Req, Res]) Active() int {
	return int(d.active.Load())
}

// Queued returns the number of jobs waiting for a worker.
func (d *Dispatcher[Req, Res]) Queued() int {
	return int(d.queued.Load())
}

func (d *Dispatcher[Req, Res]) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.queued.Add(-1)
		d.metrics.JobQueued(context.Background(), d.cfg.Provider, -1)
		d.run(j)
	}
}

func (d *Dispatcher[Req, Res]) run(j *job[Req, Res]) {
	ctx := context.Background()
	started := time.Now()

	d.active.Add(1)
	d.metrics.JobStarted(ctx, d.cfg.Provider)
	defer func() {
		d.active.Add(-1)
	}()

	callbackURL, wait := callback.Expect[Res](d.registry, d.cfg.JobTimeout)

	submitCtx, cancel := context.WithTimeout(ctx, d.cfg.JobTimeout)
	defer cancel()

	jobID, err := d.submit(submitCtx, j.req, callbackURL)
	if err != nil {
		d.registry.Cancel(wait.Token())
		d.metrics.JobFinished(ctx, d.cfg.Provider, time.Since(started), err)
		j.out <- jobResult[Res]{err: err}
		return
	}
	d.metrics.JobSubmitted(ctx, d.cfg.Provider)

	log := d.log.WithFields(logger.Fields(
		logger.FieldJobID, jobID,
		logger.FieldToken, wait.Token(),
	))
	log.Info("job submitted", logger.Fields(
		"queue_wait", time.Since(j.enqueuedAt).String(),
	))

	pollDone := d.startPolling(jobID, log)

	res, err := wait.Await(submitCtx)
	close(pollDone)

	if err == nil && d.check != nil {
		err = d.check(res)
	}
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeCallbackTimeout) {
			err = errors.JobTimeout(d.cfg.Provider)
		}
		log.WithError(err).Error("job failed", logger.Fields(
			logger.FieldDuration, time.Since(started).String(),
		))
		d.metrics.JobFinished(ctx, d.cfg.Provider, time.Since(started), err)
		j.out <- jobResult[Res]{err: err}
		return
	}

	log.Info("job completed", logger.Fields(
		logger.FieldDuration, time.Since(started).String(),
	))
	d.metrics.JobFinished(ctx, d.cfg.Provider, time.Since(started), nil)
	j.out <- jobResult[Res]{res: res}
}

// startPolling polls the provider's status endpoint for diagnostic logging
// until the returned channel is closed. Poll results never resolve the wait.
func (d *Dispatcher[Req, Res]) startPolling(jobID string, log *logger.Logger) chan struct{} {
	done := make(chan struct{})
	if d.status == nil || d.cfg.PollInterval <= 0 {
		return done
	}

	go func() {
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				pollCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				status, err := d.status(pollCtx, jobID)
				cancel()
				if err != nil {
					log.WithError(err).Warn("status poll failed")
					continue
				}
				log.Debug("status poll", logger.Fields(logger.FieldStatus, status))
			}
		}
	}()
	return done
}
