package services

import (
	"context"
	"errors"
	"strings"

	"github.com/baharkarakas/card-ledger/internal/models"
	repo "github.com/baharkarakas/card-ledger/internal/repository"
)

type UserService struct {
	r      repo.Users
	ledger repo.Ledger
}

// UserSummary is a user with every card they own.
type UserSummary struct {
	models.User
	Cards []CardSummary `json:"cards"`
}

// CardSummary is a card with its newest TransactionListLimit transactions.
type CardSummary struct {
	models.Card
	Transactions []models.Transaction `json:"transactions"`
}

func NewUserService(r repo.Users, l repo.Ledger) *UserService {
	return &UserService{r: r, ledger: l}
}

func (s *UserService) Create(ctx context.Context, firstName, lastName, email string) (models.User, error) {
	u := models.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Active:    true,
	}
	if err := u.Validate(); err != nil {
		return models.User{}, invalid(err.Error())
	}
	created, err := s.r.Create(ctx, u)
	if errors.Is(err, repo.ErrDuplicate) {
		return models.User{}, ErrDuplicateEmail
	}
	if err != nil {
		return models.User{}, internal("create user", err)
	}
	return created, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	u, err := s.r.GetByID(ctx, id)
	if err != nil {
		return models.User{}, translate("get user", err, ErrUserNotFound)
	}
	return u, nil
}

// Summary returns the user together with their cards and each card's latest
// transactions. Balances are read without the card lock, so a summary taken
// during a write may be one operation behind.
func (s *UserService) Summary(ctx context.Context, id string) (UserSummary, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return UserSummary{}, err
	}
	cards, err := s.ledger.ListCardsByUser(ctx, u.ID)
	if err != nil {
		return UserSummary{}, internal("list user cards", err)
	}
	out := UserSummary{User: u, Cards: make([]CardSummary, 0, len(cards))}
	for _, c := range cards {
		rows, err := s.ledger.ListTransactions(ctx, c.CardNo, TransactionListLimit)
		if err != nil {
			return UserSummary{}, internal("list card transactions", err)
		}
		if rows == nil {
			rows = []models.Transaction{}
		}
		out.Cards = append(out.Cards, CardSummary{Card: c, Transactions: rows})
	}
	return out, nil
}
