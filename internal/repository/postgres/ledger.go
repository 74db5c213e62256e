package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/card-ledger/internal/models"
	repo "github.com/baharkarakas/card-ledger/internal/repository"
)

const cardCols = `id, user_id, card_no, card_name, card_type, account_number, balance, status, created_at, updated_at`

const txnCols = `id, card_no, card_name, card_type, account_number, type, amount, balance, status, created_at, updated_at`

type ledger struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// 🔐 pgx ile tek transaction çalıştır
func (l *ledger) WithTx(ctx context.Context, fn func(tx repo.LedgerTx) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return mapErr(err)
	}
	rollback := func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if l.lockTimeout > 0 {
		// SET does not accept bind parameters.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockTimeout.Milliseconds())); err != nil {
			rollback()
			return mapErr(err)
		}
	}
	if err := fn(&ledgerTx{q: tx}); err != nil {
		rollback()
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

func (l *ledger) GetCard(ctx context.Context, cardNo string) (models.Card, error) {
	return scanCard(l.pool.QueryRow(ctx, `SELECT `+cardCols+` FROM cards WHERE card_no=$1`, cardNo))
}

// ListCardsByUser returns the user's cards, oldest first.
func (l *ledger) ListCardsByUser(ctx context.Context, userID string) ([]models.Card, error) {
	if uuid.Validate(userID) != nil {
		return nil, nil
	}
	rows, err := l.pool.Query(ctx,
		`SELECT `+cardCols+` FROM cards WHERE user_id=$1 ORDER BY created_at, card_no`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

func (l *ledger) ListTransactions(ctx context.Context, cardNo string, limit int) ([]models.Transaction, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+txnCols+`
		   FROM transactions
		  WHERE card_no=$1
		  ORDER BY seq DESC
		  LIMIT $2`,
		cardNo, limit,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectTxns(rows)
}

type ledgerTx struct {
	q querier
}

func (t *ledgerTx) UserExists(ctx context.Context, userID string) (bool, error) {
	if uuid.Validate(userID) != nil {
		return false, nil
	}
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists)
	return exists, mapErr(err)
}

func (t *ledgerTx) CardNoExists(ctx context.Context, cardNo string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cards WHERE card_no=$1)`, cardNo).Scan(&exists)
	return exists, mapErr(err)
}

func (t *ledgerTx) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cards WHERE account_number=$1)`, accountNumber).Scan(&exists)
	return exists, mapErr(err)
}

func (t *ledgerTx) InsertCard(ctx context.Context, c models.Card) (models.Card, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := t.q.QueryRow(ctx,
		`INSERT INTO cards (id, user_id, card_no, card_name, card_type, account_number, balance, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING created_at, updated_at`,
		c.ID, c.UserID, c.CardNo, c.CardName, nullable(string(c.CardType)), c.AccountNumber, c.Balance, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Card{}, mapErr(err)
	}
	return c, nil
}

func (t *ledgerTx) LockCard(ctx context.Context, cardNo string) (models.Card, error) {
	return scanCard(t.q.QueryRow(ctx, `SELECT `+cardCols+` FROM cards WHERE card_no=$1 FOR UPDATE`, cardNo))
}

func (t *ledgerTx) UpdateBalance(ctx context.Context, cardNo string, balance int64) (models.Card, error) {
	return scanCard(t.q.QueryRow(ctx,
		`UPDATE cards
		    SET balance = $2,
		        updated_at = now()
		  WHERE card_no = $1
		  RETURNING `+cardCols,
		cardNo, balance,
	))
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, tr models.Transaction) (models.Transaction, error) {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	err := t.q.QueryRow(ctx,
		`INSERT INTO transactions (id, card_no, card_name, card_type, account_number, type, amount, balance, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING created_at, updated_at`,
		tr.ID, tr.CardNo, tr.CardName, nullable(string(tr.CardType)), tr.AccountNumber, tr.Type, tr.Amount, tr.Balance, tr.Status,
	).Scan(&tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return models.Transaction{}, mapErr(err)
	}
	return tr, nil
}

func (t *ledgerTx) PendingTopUps(ctx context.Context, cardNo string) ([]models.Transaction, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+txnCols+`
		   FROM transactions
		  WHERE card_no=$1 AND type=$2 AND status=$3
		  ORDER BY seq
		  FOR UPDATE`,
		cardNo, models.TxnTopUp, models.TxnPending,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectTxns(rows)
}

func (t *ledgerTx) MarkSettled(ctx context.Context, ids []string) (int, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE transactions
		    SET status = $2,
		        updated_at = now()
		  WHERE id = ANY($1::uuid[]) AND status = $3`,
		ids, models.TxnSuccess, models.TxnPending,
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *ledgerTx) SettledEffect(ctx context.Context, cardNo string) (int64, error) {
	var sum int64
	err := t.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE
		          WHEN type IN ('TOPUP','DIRECT_TOP') THEN amount
		          WHEN type = 'PURCHASE' THEN -amount
		          ELSE 0 END), 0)::bigint
		   FROM transactions
		  WHERE card_no=$1 AND status='SUCCESS'`,
		cardNo,
	).Scan(&sum)
	return sum, mapErr(err)
}

func scanCard(row pgx.Row) (models.Card, error) {
	var c models.Card
	var cardType *string
	err := row.Scan(&c.ID, &c.UserID, &c.CardNo, &c.CardName, &cardType, &c.AccountNumber, &c.Balance, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Card{}, mapErr(err)
	}
	if cardType != nil {
		c.CardType = models.CardType(*cardType)
	}
	return c, nil
}

func collectTxns(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		var tr models.Transaction
		var cardType *string
		if err := rows.Scan(&tr.ID, &tr.CardNo, &tr.CardName, &cardType, &tr.AccountNumber, &tr.Type, &tr.Amount, &tr.Balance, &tr.Status, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		if cardType != nil {
			tr.CardType = models.CardType(*cardType)
		}
		out = append(out, tr)
	}
	return out, mapErr(rows.Err())
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
