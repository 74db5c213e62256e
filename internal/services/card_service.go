package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/baharkarakas/card-ledger/internal/audit"
	"github.com/baharkarakas/card-ledger/internal/lock"
	"github.com/baharkarakas/card-ledger/internal/metrics"
	"github.com/baharkarakas/card-ledger/internal/models"
	repo "github.com/baharkarakas/card-ledger/internal/repository"
)

const (
	// TransactionListLimit caps ListTransactions.
	TransactionListLimit  = 50
	accountNumberAttempts = 5
)

type CreateCardInput struct {
	UserID   string          `json:"user_id"`
	CardNo   string          `json:"card_no"`
	CardName string          `json:"card_name"`
	CardType models.CardType `json:"card_type,omitempty"`
}

type Reconciliation struct {
	CardNo     string `json:"card_no"`
	Balance    int64  `json:"balance"`
	Computed   int64  `json:"computed"`
	Consistent bool   `json:"consistent"`
}

type CardService struct {
	ledger    repo.Ledger
	locks     lock.Manager
	audit     audit.Emitter
	log       *slog.Logger
	accountNo AccountNumberFunc
}

func NewCardService(l repo.Ledger, lm lock.Manager, a audit.Emitter, log *slog.Logger) *CardService {
	if a == nil {
		a = audit.Nop()
	}
	if log == nil {
		log = slog.Default()
	}
	return &CardService{ledger: l, locks: lm, audit: a, log: log, accountNo: RandomAccountNumber}
}

func (in *CreateCardInput) normalize() error {
	in.UserID = strings.TrimSpace(in.UserID)
	in.CardName = strings.TrimSpace(in.CardName)
	in.CardType = models.CardType(strings.ToUpper(strings.TrimSpace(string(in.CardType))))

	if !models.ValidCardNo(in.CardNo) {
		return ErrInvalidCardNumberLength
	}
	if in.UserID == "" {
		return invalid("user_id is required")
	}
	if !models.ValidCardName(in.CardName) {
		return invalid("card_name is required (max 50 characters)")
	}
	if in.CardType != "" && !in.CardType.Valid() {
		return invalid(fmt.Sprintf("card_type %q is not one of DEBIT, CREDIT, VISA, MASTER_CARD", in.CardType))
	}
	return nil
}

// CreateCard registers a new card with a zero balance. Duplicate card numbers
// are rejected before the owner is looked up.
func (s *CardService) CreateCard(ctx context.Context, in CreateCardInput) (card models.Card, err error) {
	defer func() { s.finishCreate(in, card, err) }()
	if err := in.normalize(); err != nil {
		return models.Card{}, err
	}

	err = lock.WithLock(ctx, s.locks, lock.CardKey(in.CardNo), func(ctx context.Context) error {
		// Account numbers are not covered by the card lock, so another card
		// can claim ours between the check and the commit.
		for attempt := 1; ; attempt++ {
			err := s.ledger.WithTx(ctx, func(tx repo.LedgerTx) error {
				var err error
				card, err = s.insertCard(ctx, tx, in)
				return err
			})
			if repo.DuplicateKey(err) != repo.KeyAccountNumber || attempt >= accountNumberAttempts {
				return err
			}
			s.log.Warn("account number taken at commit, retrying", "card_no", in.CardNo, "attempt", attempt)
		}
	})
	if repo.DuplicateKey(err) == repo.KeyCardNo {
		return models.Card{}, with(ErrDuplicateCardNumber, "", err)
	}
	if err = translate(opCreateCard, err, nil); err != nil {
		return models.Card{}, err
	}
	return card, nil
}

func (s *CardService) insertCard(ctx context.Context, tx repo.LedgerTx, in CreateCardInput) (models.Card, error) {
	exists, err := tx.CardNoExists(ctx, in.CardNo)
	if err != nil {
		return models.Card{}, err
	}
	if exists {
		return models.Card{}, ErrDuplicateCardNumber
	}
	ok, err := tx.UserExists(ctx, in.UserID)
	if err != nil {
		return models.Card{}, err
	}
	if !ok {
		return models.Card{}, ErrUserNotFound
	}
	acct, err := s.newAccountNumber(ctx, tx)
	if err != nil {
		return models.Card{}, err
	}
	return tx.InsertCard(ctx, models.Card{
		UserID:        in.UserID,
		CardNo:        in.CardNo,
		CardName:      in.CardName,
		CardType:      in.CardType,
		AccountNumber: acct,
		Balance:       0,
		Status:        models.CardNotActive,
	})
}

func (s *CardService) newAccountNumber(ctx context.Context, tx repo.LedgerTx) (string, error) {
	for i := 0; i < accountNumberAttempts; i++ {
		acct, err := s.accountNo()
		if err != nil {
			return "", fmt.Errorf("generate account number: %w", err)
		}
		taken, err := tx.AccountNumberExists(ctx, acct)
		if err != nil {
			return "", err
		}
		if !taken {
			return acct, nil
		}
	}
	return "", fmt.Errorf("no free account number after %d attempts", accountNumberAttempts)
}

func (s *CardService) finishCreate(in CreateCardInput, card models.Card, err error) {
	if err == nil {
		metrics.LedgerOperations.WithLabelValues(opCreateCard, "ok").Inc()
		s.log.Info("card created", "card_no", card.CardNo, "user_id", card.UserID)
		s.audit.Emit(audit.Event{
			EntityType: "card",
			EntityID:   card.ID,
			Action:     audit.ActionCardCreateSuccess,
			Details:    map[string]any{"card_no": card.CardNo, "user_id": card.UserID, "account_number": card.AccountNumber},
		})
		return
	}
	metrics.LedgerOperations.WithLabelValues(opCreateCard, CodeOf(err)).Inc()
	if KindOf(err) == KindInternal {
		s.log.Error("card create failed", "card_no", in.CardNo, "err", errors.Unwrap(err))
	} else {
		s.log.Warn("card create rejected", "card_no", in.CardNo, "code", CodeOf(err))
	}
	s.audit.Emit(audit.Event{
		EntityType: "card",
		EntityID:   in.CardNo,
		Action:     audit.ActionCardCreateFailed,
		Details:    map[string]any{"card_no": in.CardNo, "user_id": in.UserID, "code": CodeOf(err)},
	})
}

// ----------------- Queries -----------------

func (s *CardService) GetCard(ctx context.Context, cardNo string) (models.Card, error) {
	c, err := s.ledger.GetCard(ctx, cardNo)
	if err != nil {
		return models.Card{}, translate("get card", err, ErrCardNotFound)
	}
	return c, nil
}

// ListTransactions returns the newest TransactionListLimit rows of the card.
func (s *CardService) ListTransactions(ctx context.Context, cardNo string) ([]models.Transaction, error) {
	if _, err := s.GetCard(ctx, cardNo); err != nil {
		return nil, err
	}
	rows, err := s.ledger.ListTransactions(ctx, cardNo, TransactionListLimit)
	if err != nil {
		return nil, translate("list transactions", err, nil)
	}
	return rows, nil
}

// Reconcile recomputes the balance from SUCCESS rows under the card lock and
// compares it with the stored one.
func (s *CardService) Reconcile(ctx context.Context, cardNo string) (Reconciliation, error) {
	var r Reconciliation
	err := lock.WithLock(ctx, s.locks, lock.CardKey(cardNo), func(ctx context.Context) error {
		return s.ledger.WithTx(ctx, func(tx repo.LedgerTx) error {
			card, err := tx.LockCard(ctx, cardNo)
			if err != nil {
				return err
			}
			sum, err := tx.SettledEffect(ctx, cardNo)
			if err != nil {
				return err
			}
			r = Reconciliation{CardNo: cardNo, Balance: card.Balance, Computed: sum, Consistent: card.Balance == sum}
			return nil
		})
	})
	if err != nil {
		return Reconciliation{}, translate("reconcile", err, ErrCardNotFound)
	}
	if !r.Consistent {
		s.log.Error("card balance drift", "card_no", cardNo, "balance", r.Balance, "computed", r.Computed)
	}
	return r, nil
}
