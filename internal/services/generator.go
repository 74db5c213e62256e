package services

import (
	"crypto/rand"
	"math/big"

	"github.com/baharkarakas/card-ledger/internal/models"
)

// AccountNumberFunc produces a candidate account number.
type AccountNumberFunc func() (string, error)

// RandomAccountNumber returns models.AccountNumberLength decimal digits; the
// first one is never zero.
func RandomAccountNumber() (string, error) {
	buf := make([]byte, models.AccountNumberLength)
	for i := range buf {
		lo, span := int64(0), int64(10)
		if i == 0 {
			lo, span = 1, 9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + lo + n.Int64())
	}
	return string(buf), nil
}
