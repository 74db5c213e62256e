package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/card-ledger/internal/models"
)

type auditLogsRepo struct{ pool *pgxpool.Pool }

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	var at *time.Time
	if !l.CreatedAt.IsZero() {
		at = &l.CreatedAt
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs(id, entity_type, entity_id, action, details, created_at)
		 VALUES($1,$2,$3,$4,$5,COALESCE($6, now()))`,
		l.ID, l.EntityType, l.EntityID, l.Action, l.Details, at,
	)
	return mapErr(err)
}
