package model

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicatePayment is returned when a payment with the same
	// (external id, method) pair already exists.
	ErrDuplicatePayment = errors.New("duplicate payment")
	// ErrDuplicateAlias is returned when a (method, payer name) alias exists.
	ErrDuplicateAlias = errors.New("duplicate payer alias")
	// ErrInvalidAmount rejects zero, negative or otherwise unusable amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidPeriod rejects malformed billing periods.
	ErrInvalidPeriod = errors.New("invalid period")
)
