package worker

import (
	"log/slog"
	"sync"

	"github.com/baharkarakas/card-ledger/internal/metrics"
)

type task func()

// Pool runs submitted tasks on a fixed number of goroutines. A panicking task
// is logged and does not take its worker down.
type Pool struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	jobs    chan task
	stopped bool
	log     *slog.Logger
}

func NewPool(n, queueSize int, log *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if queueSize < 1 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{jobs: make(chan task, queueSize), log: log}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				p.run(job)
			}
		}()
	}
	return p
}

func (p *Pool) run(job task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("worker task panicked", "panic", rec)
		}
	}()
	job()
}

// TrySubmit queues the task only if there is room right now. It reports
// false when the queue is full or the pool is stopped.
func (p *Pool) TrySubmit(f task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Inc()
		return true
	default:
		return false
	}
}

// Stop drains queued tasks and waits for the workers. Safe to call twice.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
