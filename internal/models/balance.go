package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	errNonPositiveAmount = errors.New("amount must be > 0")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// InsufficientBalanceError carries the balance seen under lock and the
// amount that was requested.
type InsufficientBalanceError struct {
	Current  int64
	Required int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: current %d, required %d", e.Current, e.Required)
}

func Credit(balance, amount int64) (int64, error) {
	if amount <= 0 {
		return balance, errNonPositiveAmount
	}
	if balance > math.MaxInt64-amount {
		return balance, ErrBalanceOverflow
	}
	return balance + amount, nil
}

func Debit(balance, amount int64) (int64, error) {
	if amount <= 0 {
		return balance, errNonPositiveAmount
	}
	if balance < amount {
		return balance, &InsufficientBalanceError{Current: balance, Required: amount}
	}
	return balance - amount, nil
}
