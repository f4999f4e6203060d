// Package callback implements the webhook correlation registry. It issues
// publicly reachable callback addresses keyed by opaque tokens and resolves
// the in-process waiter when a matching delivery arrives.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/opencouncil/scribe/errors"
	"github.com/opencouncil/scribe/logger"
)

// Common delivery errors.
var (
	// ErrTokenNotFound is returned for unknown, expired, or already-resolved
	// tokens. This is the expected outcome for late or probing deliveries.
	ErrTokenNotFound = errors.New("callback token not found")
	// ErrBadPayload is returned when the delivery body cannot be decoded into
	// the waiter's expected type. The wait stays pending.
	ErrBadPayload = errors.New("callback payload cannot be decoded")
)

// Registry maps opaque tokens to pending waits. At most one pending wait
// exists per token; a wait is resolved exactly once, by delivery or expiry,
// whichever wins.
type Registry struct {
	baseURL string
	log     *logger.Logger

	mu      sync.Mutex
	pending map[string]*pendingWait
}

type outcome struct {
	value any
	err   error
}

type pendingWait struct {
	token    string
	deadline time.Time
	decode   func([]byte) (any, error)
	ch       chan outcome
	timer    *time.Timer
}

// NewRegistry creates a registry issuing callback URLs under baseURL.
func NewRegistry(baseURL string, log *logger.Logger) *Registry {
	return &Registry{
		baseURL: baseURL,
		log:     log.WithComponent("callback"),
		pending: make(map[string]*pendingWait),
	}
}

// Wait is a handle to a pending callback delivery of type T.
type Wait[T any] struct {
	token string
	ch    <-chan outcome
}

// Token returns the correlation token backing this wait.
func (w *Wait[T]) Token() string { return w.token }

// Await blocks until the wait is resolved by a delivery, its deadline, or
// context cancellation. Cancelling the context abandons the wait locally;
// the registry entry is still retired by its own timer.
func (w *Wait[T]) Await(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case o := <-w.ch:
		if o.err != nil {
			return zero, o.err
		}
		v, ok := o.value.(T)
		if !ok {
			return zero, fmt.Errorf("callback: unexpected payload type %T", o.value)
		}
		return v, nil
	}
}

// Expect registers a fresh pending wait and returns its public callback URL
// together with the wait handle. The wait fails with CALLBACK_TIMEOUT after
// timeout elapses unless a delivery resolves it first.
func Expect[T any](r *Registry, timeout time.Duration) (string, *Wait[T]) {
	decode := func(body []byte) (any, error) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	w := &pendingWait{
		deadline: time.Now().Add(timeout),
		decode:   decode,
		ch:       make(chan outcome, 1),
	}

	r.mu.Lock()
	// Regenerate on collision with a live token.
	token := uuid.NewString()
	for {
		if _, exists := r.pending[token]; !exists {
			break
		}
		token = uuid.NewString()
	}
	w.token = token
	r.pending[token] = w
	w.timer = time.AfterFunc(timeout, func() { r.expire(token, timeout) })
	r.mu.Unlock()

	r.log.Debug("callback registered", logger.Fields(
		logger.FieldToken, token,
		"timeout", timeout.String(),
	))

	return r.URL(token), &Wait[T]{token: token, ch: w.ch}
}

// URL returns the public callback address for a token.
func (r *Registry) URL(token string) string {
	return fmt.Sprintf("%s/callback/%s", r.baseURL, token)
}

// Deliver resolves the pending wait for token with the given payload body.
// Unknown tokens return ErrTokenNotFound; undecodable bodies return
// ErrBadPayload and leave the wait pending.
func (r *Registry) Deliver(token string, body []byte) error {
	r.mu.Lock()
	w, ok := r.pending[token]
	if !ok {
		r.mu.Unlock()
		return ErrTokenNotFound
	}

	value, err := w.decode(body)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	delete(r.pending, token)
	w.timer.Stop()
	r.mu.Unlock()

	w.ch <- outcome{value: value}

	r.log.Debug("callback delivered", logger.Fields(logger.FieldToken, token))
	return nil
}

// expire retires the token and fails the wait. A delivery that already won
// the race makes this a no-op.
func (r *Registry) expire(token string, timeout time.Duration) {
	r.mu.Lock()
	w, ok := r.pending[token]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pending, token)
	r.mu.Unlock()

	w.ch <- outcome{err: apperrors.CallbackTimeout(token, timeout.Minutes())}

	r.log.Warn("callback wait expired", logger.Fields(
		logger.FieldToken, token,
		"timeout", timeout.String(),
	))
}

// Cancel retires a pending wait without resolving it, for callers that
// abandon a wait before anything could be delivered (for example when job
// submission itself failed). Unknown tokens are a no-op.
func (r *Registry) Cancel(token string) {
	r.mu.Lock()
	w, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
		w.timer.Stop()
	}
	r.mu.Unlock()
}

// Pending returns the number of outstanding waits.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
