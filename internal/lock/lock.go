// Package lock serialises work on a single card. Two backends exist: an
// in-process keyed mutex and a Redis (redsync) lock for multi-instance
// deployments. Both give up after a bounded wait with ErrLockTimeout.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baharkarakas/card-ledger/internal/metrics"
)

var (
	ErrLockTimeout = errors.New("lock: timed out waiting for lock")
	ErrEmptyKey    = errors.New("lock: empty key")
	ErrNotHeld     = errors.New("lock: not held or already expired")
)

type Handle interface {
	Release(ctx context.Context) error
}

type Manager interface {
	// Acquire blocks until the key is held, the wait bound passes
	// (ErrLockTimeout) or ctx ends.
	Acquire(ctx context.Context, key string) (Handle, error)
}

// CardKey is the lock key for one card.
func CardKey(cardNo string) string { return "lock:card:" + cardNo }

// WithLock runs fn while holding key and returns fn's result. The lock is
// released on every path, including a panic in fn. A failed release (an
// expired Redis lock, an unreachable server) is logged and counted; by then
// fn's work is already final.
func WithLock(ctx context.Context, m Manager, key string, fn func(ctx context.Context) error) error {
	h, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := h.Release(context.WithoutCancel(ctx)); rerr != nil {
			metrics.LockReleaseFailures.Inc()
			slog.Default().WarnContext(ctx, "lock release failed", "key", key, "err", rerr)
		}
	}()
	return fn(ctx)
}

type instrumented struct {
	next    Manager
	backend string
}

// Instrument records wait time and timeouts of m under the backend label.
func Instrument(m Manager, backend string) Manager {
	return &instrumented{next: m, backend: backend}
}

func (i *instrumented) Acquire(ctx context.Context, key string) (Handle, error) {
	start := time.Now()
	h, err := i.next.Acquire(ctx, key)
	metrics.LockWaitSeconds.WithLabelValues(i.backend).Observe(time.Since(start).Seconds())
	if errors.Is(err, ErrLockTimeout) {
		metrics.LockTimeouts.WithLabelValues(i.backend).Inc()
	}
	return h, err
}
