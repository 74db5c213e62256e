package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/baharkarakas/card-ledger/internal/audit"
	"github.com/baharkarakas/card-ledger/internal/lock"
	"github.com/baharkarakas/card-ledger/internal/metrics"
	"github.com/baharkarakas/card-ledger/internal/models"
	repo "github.com/baharkarakas/card-ledger/internal/repository"
)

const (
	opTopUp       = "topup"
	opDirectTopUp = "direct_topup"
	opPurchase    = "purchase"
	opSettle      = "settle"
	opCreateCard  = "create_card"
)

type TransactionResult struct {
	Transaction models.Transaction `json:"transaction"`
	Balance     int64              `json:"balance"`
}

type SettlementResult struct {
	Summary    models.Transaction `json:"summary"`
	Balance    int64              `json:"balance"`
	SettledIDs []string           `json:"settled_ids"`
}

// TransactionService owns every balance mutation. Each operation holds the
// card lock for its whole unit of work and reads the balance only under it.
type TransactionService struct {
	ledger repo.Ledger
	locks  lock.Manager
	audit  audit.Emitter
	log    *slog.Logger
}

func NewTransactionService(l repo.Ledger, lm lock.Manager, a audit.Emitter, log *slog.Logger) *TransactionService {
	if a == nil {
		a = audit.Nop()
	}
	if log == nil {
		log = slog.Default()
	}
	return &TransactionService{ledger: l, locks: lm, audit: a, log: log}
}

// ----------------- Helpers -----------------

// mutate runs fn under the card lock inside one unit of work, with the card
// row already loaded and locked by the store.
func (s *TransactionService) mutate(ctx context.Context, op, cardNo string, fn func(ctx context.Context, tx repo.LedgerTx, card models.Card) error) error {
	if cardNo == "" {
		return invalid("card_no is required")
	}
	err := lock.WithLock(ctx, s.locks, lock.CardKey(cardNo), func(ctx context.Context) error {
		return s.ledger.WithTx(ctx, func(tx repo.LedgerTx) error {
			card, err := tx.LockCard(ctx, cardNo)
			if err != nil {
				return err
			}
			return fn(ctx, tx, card)
		})
	})
	return translate(op, err, ErrCardNotFound)
}

// translate maps store and lock failures onto service errors. Errors that are
// already service errors pass through.
func translate(op string, err error, notFound *Error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, repo.ErrLockTimeout):
		return with(ErrLockTimeout, "", err)
	case errors.Is(err, repo.ErrNotFound) && notFound != nil:
		return notFound
	}
	return internal(op, err)
}

func (s *TransactionService) finish(op, cardNo string, amount int64, err error) {
	if err == nil {
		metrics.LedgerOperations.WithLabelValues(op, "ok").Inc()
		s.log.Info("ledger operation", "op", op, "card_no", cardNo, "amount", amount)
		return
	}
	metrics.LedgerOperations.WithLabelValues(op, CodeOf(err)).Inc()
	if KindOf(err) == KindInternal {
		s.log.Error("ledger operation failed", "op", op, "card_no", cardNo, "amount", amount, "err", errors.Unwrap(err))
	} else {
		s.log.Warn("ledger operation rejected", "op", op, "card_no", cardNo, "amount", amount, "code", CodeOf(err))
	}
	s.audit.Emit(audit.Event{
		EntityType: "card",
		EntityID:   cardNo,
		Action:     audit.ActionOperationFailed,
		Details:    map[string]any{"op": op, "amount": amount, "code": CodeOf(err)},
	})
}

func (s *TransactionService) emit(action string, t models.Transaction, balance int64) {
	s.audit.Emit(audit.Event{
		EntityType: "transaction",
		EntityID:   t.ID,
		Action:     action,
		Details: map[string]any{
			"card_no": t.CardNo,
			"type":    string(t.Type),
			"status":  string(t.Status),
			"amount":  t.Amount,
			"balance": balance,
		},
	})
}

// ----------------- TOPUP (pending) -----------------

// CreateTopUpPending records a top-up that does not touch the balance until
// it is settled.
func (s *TransactionService) CreateTopUpPending(ctx context.Context, cardNo string, amount int64) (res TransactionResult, err error) {
	defer func() { s.finish(opTopUp, cardNo, amount, err) }()
	if amount <= 0 {
		return TransactionResult{}, ErrInvalidAmount
	}

	err = s.mutate(ctx, opTopUp, cardNo, func(ctx context.Context, tx repo.LedgerTx, card models.Card) error {
		t := models.Transaction{
			Type:    models.TxnTopUp,
			Amount:  amount,
			Balance: card.Balance,
			Status:  models.TxnPending,
		}
		card.Snapshot(&t)
		saved, err := tx.InsertTransaction(ctx, t)
		if err != nil {
			return err
		}
		res = TransactionResult{Transaction: saved, Balance: card.Balance}
		return nil
	})
	if err != nil {
		return TransactionResult{}, err
	}
	s.emit(audit.ActionTopUpPending, res.Transaction, res.Balance)
	return res, nil
}

// ----------------- DIRECT TOPUP -----------------

func (s *TransactionService) CreateDirectTopUp(ctx context.Context, cardNo string, amount int64) (res TransactionResult, err error) {
	defer func() { s.finish(opDirectTopUp, cardNo, amount, err) }()
	if amount <= 0 {
		return TransactionResult{}, ErrInvalidAmount
	}

	err = s.mutate(ctx, opDirectTopUp, cardNo, func(ctx context.Context, tx repo.LedgerTx, card models.Card) error {
		balance, err := models.Credit(card.Balance, amount)
		if errors.Is(err, models.ErrBalanceOverflow) {
			return with(ErrInvalidAmount, "amount would overflow card balance", nil)
		}
		if err != nil {
			return err
		}
		if _, err := tx.UpdateBalance(ctx, card.CardNo, balance); err != nil {
			return err
		}
		t := models.Transaction{
			Type:    models.TxnDirectTopUp,
			Amount:  amount,
			Balance: balance,
			Status:  models.TxnSuccess,
		}
		card.Snapshot(&t)
		saved, err := tx.InsertTransaction(ctx, t)
		if err != nil {
			return err
		}
		res = TransactionResult{Transaction: saved, Balance: balance}
		return nil
	})
	if err != nil {
		return TransactionResult{}, err
	}
	s.emit(audit.ActionDirectTopUp, res.Transaction, res.Balance)
	return res, nil
}

// ----------------- PURCHASE -----------------

func (s *TransactionService) CreatePurchase(ctx context.Context, cardNo string, amount int64) (res TransactionResult, err error) {
	defer func() { s.finish(opPurchase, cardNo, amount, err) }()
	if amount <= 0 {
		return TransactionResult{}, ErrInvalidAmount
	}

	err = s.mutate(ctx, opPurchase, cardNo, func(ctx context.Context, tx repo.LedgerTx, card models.Card) error {
		balance, err := models.Debit(card.Balance, amount)
		if err != nil {
			var ib *models.InsufficientBalanceError
			if errors.As(err, &ib) {
				return insufficient(ib.Current, ib.Required)
			}
			return err
		}
		if _, err := tx.UpdateBalance(ctx, card.CardNo, balance); err != nil {
			return err
		}
		t := models.Transaction{
			Type:    models.TxnPurchase,
			Amount:  amount,
			Balance: balance,
			Status:  models.TxnSuccess,
		}
		card.Snapshot(&t)
		saved, err := tx.InsertTransaction(ctx, t)
		if err != nil {
			return err
		}
		res = TransactionResult{Transaction: saved, Balance: balance}
		return nil
	})
	if err != nil {
		return TransactionResult{}, err
	}
	s.emit(audit.ActionPurchase, res.Transaction, res.Balance)
	return res, nil
}

// ----------------- SETTLEMENT -----------------

// SettlePendingTopUps moves every pending top-up of the card to SUCCESS,
// credits their sum once and records an UPDATE_BALANCE summary row.
func (s *TransactionService) SettlePendingTopUps(ctx context.Context, cardNo string) (res SettlementResult, err error) {
	defer func() { s.finish(opSettle, cardNo, res.Summary.Amount, err) }()

	err = s.mutate(ctx, opSettle, cardNo, func(ctx context.Context, tx repo.LedgerTx, card models.Card) error {
		pending, err := tx.PendingTopUps(ctx, card.CardNo)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return ErrNoPendingTopUps
		}

		var sum int64
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			if sum, err = models.Credit(sum, p.Amount); err != nil {
				return fmt.Errorf("sum pending top-ups: %w", err)
			}
			ids = append(ids, p.ID)
		}

		n, err := tx.MarkSettled(ctx, ids)
		if err != nil {
			return err
		}
		if n != len(ids) {
			return fmt.Errorf("settled %d of %d pending rows: %w", n, len(ids), repo.ErrConflict)
		}

		balance, err := models.Credit(card.Balance, sum)
		if err != nil {
			return fmt.Errorf("credit settled sum: %w", err)
		}
		if _, err := tx.UpdateBalance(ctx, card.CardNo, balance); err != nil {
			return err
		}

		summary := models.Transaction{
			Type:    models.TxnUpdateBalance,
			Amount:  sum,
			Balance: balance,
			Status:  models.TxnSuccess,
		}
		card.Snapshot(&summary)
		saved, err := tx.InsertTransaction(ctx, summary)
		if err != nil {
			return err
		}
		res = SettlementResult{Summary: saved, Balance: balance, SettledIDs: ids}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	s.emit(audit.ActionSettle, res.Summary, res.Balance)
	return res, nil
}
