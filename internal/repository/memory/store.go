// Package memory is an in-process store used for local runs and tests.
// A unit of work stages its writes and applies them under one lock on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/card-ledger/internal/models"
	"github.com/baharkarakas/card-ledger/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	emails   map[string]string
	cards    map[string]models.Card // by card_no
	accounts map[string]string      // account_number -> card_no
	txns     map[string]models.Transaction
	byCard   map[string][]string // insertion order
	audit    []models.AuditLog

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:    map[string]models.User{},
		emails:   map[string]string{},
		cards:    map[string]models.Card{},
		accounts: map[string]string{},
		txns:     map[string]models.Transaction{},
		byCard:   map[string][]string{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() repository.Users         { return usersRepo{s} }
func (s *Store) AuditLogs() repository.AuditLogs { return auditRepo{s} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newLedgerTx(s)
	// A panic in fn unwinds past commit, so staged writes are simply dropped.
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) GetCard(_ context.Context, cardNo string) (models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[cardNo]
	if !ok {
		return models.Card{}, repository.ErrNotFound
	}
	return c, nil
}

// ListCardsByUser returns the user's cards, oldest first.
func (s *Store) ListCardsByUser(_ context.Context, userID string) ([]models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Card
	for _, c := range s.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CardNo < out[j].CardNo
	})
	return out, nil
}

// ListTransactions returns the newest rows first.
func (s *Store) ListTransactions(_ context.Context, cardNo string, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCard[cardNo]
	out := make([]models.Transaction, 0, min(len(ids), max(limit, 0)))
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.txns[ids[i]])
	}
	return out, nil
}

// AuditEntries returns a copy of every stored audit row.
func (s *Store) AuditEntries() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditLog(nil), s.audit...)
}

func (s *Store) commit(tx *ledgerTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for cardNo := range tx.inserted {
		c := tx.cards[cardNo]
		if _, ok := s.cards[cardNo]; ok {
			return &repository.DuplicateError{Key: repository.KeyCardNo}
		}
		if _, ok := s.accounts[c.AccountNumber]; ok {
			return &repository.DuplicateError{Key: repository.KeyAccountNumber}
		}
	}
	for _, c := range tx.cards {
		if c.Balance < 0 {
			return repository.ErrConflict
		}
	}

	for cardNo, c := range tx.cards {
		s.cards[cardNo] = c
		s.accounts[c.AccountNumber] = cardNo
	}
	for _, id := range tx.order {
		t := tx.txns[id]
		s.byCard[t.CardNo] = append(s.byCard[t.CardNo], id)
	}
	for id, t := range tx.txns {
		s.txns[id] = t
	}
	return nil
}

type ledgerTx struct {
	s        *Store
	cards    map[string]models.Card
	inserted map[string]bool
	txns     map[string]models.Transaction
	order    []string
}

func newLedgerTx(s *Store) *ledgerTx {
	return &ledgerTx{
		s:        s,
		cards:    map[string]models.Card{},
		inserted: map[string]bool{},
		txns:     map[string]models.Transaction{},
	}
}

func (tx *ledgerTx) card(cardNo string) (models.Card, bool) {
	if c, ok := tx.cards[cardNo]; ok {
		return c, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	c, ok := tx.s.cards[cardNo]
	return c, ok
}

// rows merges committed and staged rows of one card, oldest first.
func (tx *ledgerTx) rows(cardNo string) []models.Transaction {
	tx.s.mu.RLock()
	ids := append([]string(nil), tx.s.byCard[cardNo]...)
	committed := make(map[string]models.Transaction, len(ids))
	for _, id := range ids {
		committed[id] = tx.s.txns[id]
	}
	tx.s.mu.RUnlock()

	out := make([]models.Transaction, 0, len(ids)+len(tx.order))
	for _, id := range ids {
		if t, ok := tx.txns[id]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, committed[id])
	}
	for _, id := range tx.order {
		if t := tx.txns[id]; t.CardNo == cardNo {
			out = append(out, t)
		}
	}
	return out
}

func (tx *ledgerTx) UserExists(_ context.Context, userID string) (bool, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	_, ok := tx.s.users[userID]
	return ok, nil
}

func (tx *ledgerTx) CardNoExists(_ context.Context, cardNo string) (bool, error) {
	_, ok := tx.card(cardNo)
	return ok, nil
}

func (tx *ledgerTx) AccountNumberExists(_ context.Context, accountNumber string) (bool, error) {
	for _, c := range tx.cards {
		if c.AccountNumber == accountNumber {
			return true, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	_, ok := tx.s.accounts[accountNumber]
	return ok, nil
}

func (tx *ledgerTx) InsertCard(ctx context.Context, c models.Card) (models.Card, error) {
	if _, ok := tx.card(c.CardNo); ok {
		return models.Card{}, &repository.DuplicateError{Key: repository.KeyCardNo}
	}
	if taken, _ := tx.AccountNumberExists(ctx, c.AccountNumber); taken {
		return models.Card{}, &repository.DuplicateError{Key: repository.KeyAccountNumber}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := tx.s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	tx.cards[c.CardNo] = c
	tx.inserted[c.CardNo] = true
	return c, nil
}

func (tx *ledgerTx) LockCard(_ context.Context, cardNo string) (models.Card, error) {
	c, ok := tx.card(cardNo)
	if !ok {
		return models.Card{}, repository.ErrNotFound
	}
	return c, nil
}

func (tx *ledgerTx) UpdateBalance(_ context.Context, cardNo string, balance int64) (models.Card, error) {
	c, ok := tx.card(cardNo)
	if !ok {
		return models.Card{}, repository.ErrNotFound
	}
	if balance < 0 {
		return models.Card{}, repository.ErrConflict
	}
	c.Balance = balance
	c.UpdatedAt = tx.s.now()
	tx.cards[cardNo] = c
	return c, nil
}

func (tx *ledgerTx) InsertTransaction(_ context.Context, t models.Transaction) (models.Transaction, error) {
	if _, ok := tx.card(t.CardNo); !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := tx.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	tx.txns[t.ID] = t
	tx.order = append(tx.order, t.ID)
	return t, nil
}

func (tx *ledgerTx) PendingTopUps(_ context.Context, cardNo string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range tx.rows(cardNo) {
		if t.Type == models.TxnTopUp && t.Status == models.TxnPending {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *ledgerTx) MarkSettled(_ context.Context, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		t, ok := tx.txns[id]
		if !ok {
			tx.s.mu.RLock()
			t, ok = tx.s.txns[id]
			tx.s.mu.RUnlock()
		}
		if !ok || t.Status != models.TxnPending {
			continue
		}
		t.Status = models.TxnSuccess
		t.UpdatedAt = tx.s.now()
		tx.txns[id] = t
		n++
	}
	return n, nil
}

func (tx *ledgerTx) SettledEffect(_ context.Context, cardNo string) (int64, error) {
	var sum int64
	for _, t := range tx.rows(cardNo) {
		sum += t.Effect()
	}
	return sum, nil
}

type usersRepo struct{ s *Store }

func (r usersRepo) Create(_ context.Context, u models.User) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := r.s.emails[email]; ok {
		return models.User{}, repository.ErrDuplicate
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := r.s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = u
	r.s.emails[email] = u.ID
	return u, nil
}

func (r usersRepo) GetByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return u, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(_ context.Context, l models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.s.now()
	}
	r.s.audit = append(r.s.audit, l)
	return nil
}
