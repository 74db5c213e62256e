package lock

import (
	"context"
	"sync"
	"time"
)

// Local is a keyed mutex for a single process. Each key owns a one-slot
// channel; entries are reference counted and dropped when nobody holds or
// waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

type entry struct {
	slot chan struct{}
	refs int
}

func NewLocal(timeout time.Duration) *Local {
	return &Local{entries: map[string]*entry{}, timeout: timeout}
}

func (l *Local) Acquire(ctx context.Context, key string) (Handle, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	e := l.ref(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case e.slot <- struct{}{}:
		return &localHandle{l: l, key: key, e: e}, nil
	case <-timer.C:
		l.unref(key, e)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

func (l *Local) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size is the number of live entries.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type localHandle struct {
	l    *Local
	key  string
	e    *entry
	once sync.Once
}

func (h *localHandle) Release(context.Context) error {
	released := false
	h.once.Do(func() {
		<-h.e.slot
		h.l.unref(h.key, h.e)
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
