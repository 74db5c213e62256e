package repository

import (
	"context"
	"errors"

	"github.com/baharkarakas/card-ledger/internal/models"
)

var (
	ErrNotFound    = errors.New("repository: not found")
	ErrDuplicate   = errors.New("repository: duplicate")
	ErrConflict    = errors.New("repository: conflict")
	ErrLockTimeout = errors.New("repository: lock timeout")
)

// Unique keys a card insert can collide with.
const (
	KeyCardNo        = "cards_card_no_key"
	KeyAccountNumber = "cards_account_number_key"
)

// DuplicateError names the unique key a write collided with. It matches
// ErrDuplicate.
type DuplicateError struct {
	Key string
}

func (e *DuplicateError) Error() string { return "repository: duplicate " + e.Key }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// DuplicateKey returns the key behind a duplicate error, or "" when err is
// not one or the key is unknown.
func DuplicateKey(err error) string {
	var de *DuplicateError
	if errors.As(err, &de) {
		return de.Key
	}
	return ""
}

type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

// LedgerTx is the handle of one unit of work. Everything written through it
// commits together or not at all.
type LedgerTx interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	CardNoExists(ctx context.Context, cardNo string) (bool, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
	InsertCard(ctx context.Context, c models.Card) (models.Card, error)

	// LockCard loads the card row and holds it exclusively until the unit of
	// work ends. Returns ErrNotFound for unknown cards.
	LockCard(ctx context.Context, cardNo string) (models.Card, error)
	UpdateBalance(ctx context.Context, cardNo string, balance int64) (models.Card, error)

	InsertTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	PendingTopUps(ctx context.Context, cardNo string) ([]models.Transaction, error)
	// MarkSettled moves PENDING rows to SUCCESS and returns how many moved.
	MarkSettled(ctx context.Context, ids []string) (int, error)
	// SettledEffect sums the balance effect of every SUCCESS row of the card.
	SettledEffect(ctx context.Context, cardNo string) (int64, error)
}

type Ledger interface {
	// WithTx runs fn in one unit of work: commit when fn returns nil,
	// rollback on error or panic.
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error
	GetCard(ctx context.Context, cardNo string) (models.Card, error)
	ListCardsByUser(ctx context.Context, userID string) ([]models.Card, error)
	ListTransactions(ctx context.Context, cardNo string, limit int) ([]models.Transaction, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
