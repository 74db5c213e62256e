package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	// Timeout bounds how long Acquire keeps retrying.
	Timeout time.Duration
	// Expiry is the lock TTL; a crashed holder frees the card after it.
	Expiry      time.Duration
	RetryDelay  time.Duration
	DriftFactor float64
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Timeout:     5 * time.Second,
		Expiry:      30 * time.Second,
		RetryDelay:  50 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

type Redis struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	def := DefaultRedisOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.DriftFactor <= 0 {
		opts.DriftFactor = def.DriftFactor
	}
	return &Redis{rs: redsync.New(goredis.NewPool(client)), opts: opts}
}

func (r *Redis) tries() int {
	n := int(r.opts.Timeout/r.opts.RetryDelay) + 1
	return min(max(n, 1), 1000)
}

func (r *Redis) Acquire(ctx context.Context, key string) (Handle, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	mutex := r.rs.NewMutex(
		key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.tries()),
		redsync.WithRetryDelay(r.opts.RetryDelay),
		redsync.WithDriftFactor(r.opts.DriftFactor),
	)

	waitCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if err := mutex.LockContext(waitCtx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isContention(err) || waitCtx.Err() != nil {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	return &redisHandle{mutex: mutex}, nil
}

func isContention(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

type redisHandle struct {
	mutex *redsync.Mutex
}

func (h *redisHandle) Release(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil && !ok {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) {
			return ErrNotHeld
		}
		return fmt.Errorf("lock: release: %w", err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
