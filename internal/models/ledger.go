package models

import (
	"time"

	"github.com/google/uuid"
)

// Amounts are stored in cents (int64) to avoid floating point drift.

type EntryType string

const (
	EntryTypeDeposit    EntryType = "DEPOSIT"
	EntryTypeWithdrawal EntryType = "WITHDRAWAL"
)

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusFailed    EntryStatus = "FAILED"
	EntryStatusReversed  EntryStatus = "REVERSED"
)

// LedgerEntry records one balance-affecting event. Once it leaves PENDING
// only Status and SettledAt may change, and only once.
type LedgerEntry struct {
	ID                string      `json:"id" db:"id"`
	Type              EntryType   `json:"type" db:"type"`
	Amount            int64       `json:"amount" db:"amount"` // in cents
	Status            EntryStatus `json:"status" db:"status"`
	ExternalReference string      `json:"external_reference,omitempty" db:"external_reference"`
	Description       string      `json:"description,omitempty" db:"description"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	SettledAt         *time.Time  `json:"settled_at,omitempty" db:"settled_at"`
}

// NewLedgerEntry creates a PENDING entry with a fresh id.
func NewLedgerEntry(entryType EntryType, amount int64, description string) (*LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if entryType != EntryTypeDeposit && entryType != EntryTypeWithdrawal {
		return nil, ErrInvalidType
	}
	return &LedgerEntry{
		ID:          uuid.New().String(),
		Type:        entryType,
		Amount:      amount,
		Status:      EntryStatusPending,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Settle moves a PENDING entry to a terminal status. A non-pending entry is
// never touched; the caller treats that as a duplicate delivery.
func (e *LedgerEntry) Settle(status EntryStatus, externalRef string) error {
	if e.Status != EntryStatusPending {
		return ErrDuplicateEvent
	}
	now := time.Now().UTC()
	e.Status = status
	e.SettledAt = &now
	if externalRef != "" {
		e.ExternalReference = externalRef
	}
	return nil
}

// Account is the durable per-user record: balance plus the append-only
// transaction history, versioned for optimistic locking.
type Account struct {
	UserID       string        `json:"user_id" db:"user_id"`
	Balance      int64         `json:"balance" db:"balance"` // in cents
	Version      int64         `json:"version" db:"version"`
	Transactions []LedgerEntry `json:"transactions"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// Entry returns the ledger entry with the given id, or nil.
func (a *Account) Entry(entryID string) *LedgerEntry {
	for i := range a.Transactions {
		if a.Transactions[i].ID == entryID {
			return &a.Transactions[i]
		}
	}
	return nil
}

// Clone deep-copies the account so callers can mutate freely before a
// conditional write.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Transactions = make([]LedgerEntry, len(a.Transactions))
	copy(cp.Transactions, a.Transactions)
	for i := range cp.Transactions {
		if a.Transactions[i].SettledAt != nil {
			t := *a.Transactions[i].SettledAt
			cp.Transactions[i].SettledAt = &t
		}
	}
	return &cp
}

// BankAccount holds the payout destination for a withdrawal.
type BankAccount struct {
	AccountNumber string `json:"account_number" validate:"required,min=6,max=20"`
	AccountType   string `json:"account_type" validate:"required,oneof=cheque savings current"`
	BankName      string `json:"bank_name" validate:"required,max=35"`
	AccountHolder string `json:"account_holder_name,omitempty" validate:"max=140"`
}
