package services

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation  Kind = "validation"
	KindBusiness    Kind = "business"
	KindNotFound    Kind = "not_found"
	KindConcurrency Kind = "concurrency"
	KindInternal    Kind = "internal"
)

// Error is what every service operation fails with. Two Errors match under
// errors.Is when their codes are equal, so callers compare against the
// sentinels below.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Details is exposed to API clients as is.
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindInternal {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidAmount           = &Error{Kind: KindValidation, Code: "invalid_amount", Message: "amount must be > 0"}
	ErrInvalidCardNumberLength = &Error{Kind: KindValidation, Code: "invalid_card_number_length", Message: "card number must be exactly 15 characters"}
	ErrInvalidRequest          = &Error{Kind: KindValidation, Code: "invalid_request", Message: "invalid request"}
	ErrDuplicateCardNumber     = &Error{Kind: KindBusiness, Code: "duplicate_card_number", Message: "card number already exists"}
	ErrDuplicateEmail          = &Error{Kind: KindBusiness, Code: "duplicate_email", Message: "email already registered"}
	ErrUserNotFound            = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "user not found"}
	ErrCardNotFound            = &Error{Kind: KindNotFound, Code: "card_not_found", Message: "card not found"}
	ErrInsufficientBalance     = &Error{Kind: KindBusiness, Code: "insufficient_balance", Message: "insufficient balance"}
	ErrNoPendingTopUps         = &Error{Kind: KindBusiness, Code: "no_pending_topups", Message: "no pending top-ups for card"}
	ErrLockTimeout             = &Error{Kind: KindConcurrency, Code: "concurrency_conflict", Message: "card is busy, retry later"}
	ErrInternal                = &Error{Kind: KindInternal, Code: "internal", Message: "internal error"}
)

// with returns a copy of sentinel carrying its own message and cause.
func with(sentinel *Error, msg string, cause error) *Error {
	e := *sentinel
	if msg != "" {
		e.Message = msg
	}
	e.Err = cause
	return &e
}

func invalid(msg string) *Error { return with(ErrInvalidRequest, msg, nil) }

func internal(op string, cause error) *Error {
	return with(ErrInternal, "", fmt.Errorf("%s: %w", op, cause))
}

func insufficient(current, required int64) *Error {
	e := with(ErrInsufficientBalance, fmt.Sprintf("insufficient balance: current %d, required %d", current, required), nil)
	e.Details = map[string]int64{"current": current, "required": required}
	return e
}

// KindOf reports the kind of err, or KindInternal for errors that did not
// come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}
