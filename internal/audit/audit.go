// Package audit delivers audit events to one or more sinks in the background.
// Emit never blocks the caller and sink failures never reach it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/baharkarakas/card-ledger/internal/metrics"
	"github.com/baharkarakas/card-ledger/internal/worker"
)

const (
	ActionCardCreateSuccess = "CARD_CREATE_SUCCESS"
	ActionCardCreateFailed  = "CARD_CREATE_FAILED"
	ActionTopUpPending      = "TOPUP_PENDING"
	ActionDirectTopUp       = "DIRECT_TOPUP"
	ActionPurchase          = "PURCHASE"
	ActionSettle            = "UPDATE_BALANCE"
	ActionOperationFailed   = "OPERATION_FAILED"
)

type Event struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	At         time.Time      `json:"at"`
}

type Sink interface {
	Write(ctx context.Context, e Event) error
}

type Emitter interface {
	Emit(e Event)
}

type Dispatcher struct {
	pool    *worker.Pool
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration
}

func NewDispatcher(pool *worker.Pool, log *slog.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{pool: pool, sinks: sinks, log: log, timeout: 5 * time.Second}
}

// Emit queues e for delivery. A full queue drops the event.
func (d *Dispatcher) Emit(e Event) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if !d.pool.TrySubmit(func() { d.deliver(e) }) {
		metrics.AuditEvents.WithLabelValues("dropped").Inc()
		d.log.Warn("audit queue full, event dropped", "action", e.Action, "entity_id", e.EntityID)
	}
}

func (d *Dispatcher) deliver(e Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := s.Write(ctx, e)
		cancel()
		if err != nil {
			metrics.AuditEvents.WithLabelValues("failed").Inc()
			d.log.Warn("audit sink failed", "action", e.Action, "entity_id", e.EntityID, "err", err)
			continue
		}
		metrics.AuditEvents.WithLabelValues("delivered").Inc()
	}
}

type nop struct{}

func (nop) Emit(Event) {}

// Nop discards every event.
func Nop() Emitter { return nop{} }
