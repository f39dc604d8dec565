// Package lockreg hands out one in-process mutual-exclusion lock per string
// key.
//
// Locks are created lazily on first use and never removed. The key space is
// entity kinds × tenants, which is small and bounded, so the registry does not
// need eviction.
//
// Waiters on the same key are admitted in arrival order. Each wait is bounded
// by the registry timeout; a wait that exceeds it fails with a CONCURRENCY
// error the caller may retry.
package lockreg

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/tableorder/internal/apperr"
)

// DefaultTimeout bounds a lock wait when the registry is built without one.
const DefaultTimeout = 5 * time.Second

// Observer receives lock wait measurements. Implemented by metrics.
type Observer interface {
	ObserveLockWait(key string, wait time.Duration, acquired bool)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver reports every wait to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// Registry maps keys to single-holder locks.
//
// Thread-safety: all methods are safe for concurrent use. The underlying map
// is a sync.Map with LoadOrStore insertion, so concurrent first requests for a
// key agree on one lock.
type Registry struct {
	timeout  time.Duration
	locks    sync.Map // key -> *semaphore.Weighted
	observer Observer
}

// New creates a Registry whose waits are bounded by timeout.
// A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration, opts ...Option) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Registry{timeout: timeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the configured wait bound.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Len returns the number of keys that have been locked at least once.
func (r *Registry) Len() int {
	n := 0
	r.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *Registry) lockFor(key string) *semaphore.Weighted {
	if l, ok := r.locks.Load(key); ok {
		return l.(*semaphore.Weighted)
	}
	l, _ := r.locks.LoadOrStore(key, semaphore.NewWeighted(1))
	return l.(*semaphore.Weighted)
}

// Acquire blocks until the lock for key is held, ctx ends, or the timeout
// elapses.
//
// On success it returns a release function; calling it more than once is a
// no-op. If ctx itself ended, ctx.Err() is returned. If the timeout elapsed
// first, the error is apperr.Concurrency.
func (r *Registry) Acquire(ctx context.Context, key string) (func(), error) {
	sem := r.lockFor(key)

	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := sem.Acquire(waitCtx, 1)
	if r.observer != nil {
		r.observer.ObserveLockWait(key, time.Since(start), err == nil)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Error("lock timeout", "key", key, "timeout", r.timeout)
			return nil, apperr.Concurrency(key, r.timeout)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

// WithLock runs fn while holding the lock for key.
func (r *Registry) WithLock(ctx context.Context, key string, fn func() error) error {
	release, err := r.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
