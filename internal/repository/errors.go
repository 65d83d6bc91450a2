package repository

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("sender and receiver cannot be the same")
	ErrUsernameTaken       = errors.New("username already exists")

	// ErrDuplicateOperation means the idempotency key was already committed;
	// the operation applied once and must not apply again.
	ErrDuplicateOperation = errors.New("operation already applied")

	// ErrUnavailable wraps connectivity-level storage failures so callers can
	// tell a retryable infrastructure fault from a business rejection.
	ErrUnavailable = errors.New("storage unavailable")
)
