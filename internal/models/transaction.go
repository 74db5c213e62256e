package models

import "time"

type TransactionType string

const (
	TxnTopUp         TransactionType = "TOPUP"
	TxnDirectTopUp   TransactionType = "DIRECT_TOP"
	TxnPurchase      TransactionType = "PURCHASE"
	TxnUpdateBalance TransactionType = "UPDATE_BALANCE"
)

type TransactionStatus string

const (
	TxnPending TransactionStatus = "PENDING"
	TxnSuccess TransactionStatus = "SUCCESS"
	TxnFailed  TransactionStatus = "FAILED"
)

type Transaction struct {
	ID            string            `json:"id"`
	CardNo        string            `json:"card_no"`
	CardName      string            `json:"card_name"`
	CardType      CardType          `json:"card_type,omitempty"`
	AccountNumber string            `json:"account_number"`
	Type          TransactionType   `json:"type"`
	Amount        int64             `json:"amount"`
	Balance       int64             `json:"balance"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Effect returns the signed amount this row contributes to its card balance.
// Pending top-ups and settlement summaries contribute nothing.
func (t Transaction) Effect() int64 {
	if t.Status != TxnSuccess {
		return 0
	}
	switch t.Type {
	case TxnTopUp, TxnDirectTopUp:
		return t.Amount
	case TxnPurchase:
		return -t.Amount
	}
	return 0
}
