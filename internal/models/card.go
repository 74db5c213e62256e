package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	CardNoLength        = 15
	AccountNumberLength = 15
	cardNameMaxLength   = 50
)

type CardStatus string

const (
	CardNotActive CardStatus = "NOT_ACTIVE"
	CardActive    CardStatus = "ACTIVE"
)

type CardType string

const (
	CardDebit      CardType = "DEBIT"
	CardCredit     CardType = "CREDIT"
	CardVisa       CardType = "VISA"
	CardMasterCard CardType = "MASTER_CARD"
)

func (t CardType) Valid() bool {
	switch t {
	case CardDebit, CardCredit, CardVisa, CardMasterCard:
		return true
	}
	return false
}

type Card struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	CardNo        string     `json:"card_no"`
	CardName      string     `json:"card_name"`
	CardType      CardType   `json:"card_type,omitempty"`
	AccountNumber string     `json:"account_number"`
	Balance       int64      `json:"balance"`
	Status        CardStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ValidCardNo reports whether cardNo has exactly CardNoLength characters.
func ValidCardNo(cardNo string) bool {
	return utf8.RuneCountInString(cardNo) == CardNoLength
}

func ValidCardName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && utf8.RuneCountInString(name) <= cardNameMaxLength
}

// Snapshot copies the card identity fields onto a transaction row.
func (c Card) Snapshot(t *Transaction) {
	t.CardNo = c.CardNo
	t.CardName = c.CardName
	t.CardType = c.CardType
	t.AccountNumber = c.AccountNumber
}
