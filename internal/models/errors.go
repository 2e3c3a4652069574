package models

import "errors"

var (
	// ErrInvalidAmount is returned when an entry amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidType is returned for an unrecognized entry type.
	ErrInvalidType = errors.New("invalid entry type")

	// ErrUserNotFound is returned when no account exists for a user id.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientBalance is returned when a debit would take the
	// balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrVersionConflict is returned by a conditional write whose expected
	// version is stale.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrConcurrentModification is returned once conditional-write retries
	// are exhausted.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrGatewayUnavailable is returned when the payment gateway rejects or
	// cannot accept a charge/payout request.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrEntryNotFound is returned when a callback references an unknown
	// ledger entry.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrAmountMismatch is returned when a gateway-settled amount differs
	// from the entry's recorded amount.
	ErrAmountMismatch = errors.New("settled amount mismatch")

	// ErrDuplicateEvent marks an event that was already applied. It is an
	// idempotent no-op, not a failure.
	ErrDuplicateEvent = errors.New("event already processed")
)
