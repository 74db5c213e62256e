package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/baharkarakas/card-ledger/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repositories struct {
	Users     repo.Users
	Ledger    repo.Ledger
	AuditLogs repo.AuditLogs
}

// NewRepositories wires every store on one pool. lockTimeout bounds row lock
// waits inside a unit of work; zero leaves the server default.
func NewRepositories(pool *pgxpool.Pool, lockTimeout time.Duration) Repositories {
	return Repositories{
		Users:     &usersRepo{pool},
		Ledger:    &ledger{pool: pool, lockTimeout: lockTimeout},
		AuditLogs: &auditLogsRepo{pool},
	}
}
