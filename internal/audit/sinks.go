package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baharkarakas/card-ledger/internal/models"
	"github.com/baharkarakas/card-ledger/internal/repository"
)

type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Write(ctx context.Context, e Event) error {
	s.log.InfoContext(ctx, "audit",
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"action", e.Action,
		"details", e.Details,
	)
	return nil
}

// RepoSink stores events in the audit_logs table.
type RepoSink struct {
	repo repository.AuditLogs
}

func NewRepoSink(r repository.AuditLogs) *RepoSink { return &RepoSink{repo: r} }

func (s *RepoSink) Write(ctx context.Context, e Event) error {
	var id *string
	if e.EntityID != "" {
		id = &e.EntityID
	}
	return s.repo.Create(ctx, models.AuditLog{
		EntityType: e.EntityType,
		EntityID:   id,
		Action:     e.Action,
		Details:    e.Details,
		CreatedAt:  e.At,
	})
}

// Publisher is the part of *amqp.Channel the AMQP sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as JSON to a topic exchange with routing key
// "audit.<action>".
type AMQPSink struct {
	pub      Publisher
	exchange string
}

func NewAMQPSink(pub Publisher, exchange string) *AMQPSink {
	return &AMQPSink{pub: pub, exchange: exchange}
}

func (s *AMQPSink) Write(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	key := "audit." + strings.ToLower(e.Action)
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Type:         e.Action,
		Body:         body,
	}
	if err := s.pub.PublishWithContext(ctx, s.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("audit: publish %s: %w", key, err)
	}
	return nil
}

// DialAMQP connects, declares the exchange and returns a sink on a fresh
// channel. The returned close func shuts both channel and connection.
func DialAMQP(url, exchange string) (*AMQPSink, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("audit: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("audit: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("audit: declare exchange %s: %w", exchange, err)
	}
	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewAMQPSink(ch, exchange), closeFn, nil
}
