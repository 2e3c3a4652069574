package services

import (
	"context"
	"errors"
	"log"

	"github.com/rezawallet/backend/internal/models"
)

// maxMutationAttempts bounds optimistic-lock retries before the mutation is
// surfaced as a concurrent-modification failure.
const maxMutationAttempts = 5

// UserStore is the durable per-user record the ledger runs on.
type UserStore interface {
	Read(ctx context.Context, userID string) (*models.Account, error)
	ConditionalWrite(ctx context.Context, userID string, expectedVersion int64, account *models.Account) error
}

// LedgerService is the single place balance arithmetic happens. Workflows and
// the reconciler describe their change as a delta plus an entry mutation; the
// service applies both in one conditional write so two concurrent mutations
// can never both commit against the same stale balance.
type LedgerService struct {
	store UserStore
}

func NewLedgerService(store UserStore) *LedgerService {
	return &LedgerService{store: store}
}

// Account returns a snapshot of the user's account.
func (s *LedgerService) Account(ctx context.Context, userID string) (*models.Account, error) {
	return s.store.Read(ctx, userID)
}

// ApplyMutation reads the account, runs mutate against it, applies delta to
// the balance and writes the result back conditioned on the version it read.
// A version conflict rereads and retries; mutate must therefore be safe to
// run more than once and must express idempotency through entry status, not
// through external state. No network call may happen inside mutate.
func (s *LedgerService) ApplyMutation(ctx context.Context, userID string, delta int64, mutate func(*models.Account) error) (*models.Account, error) {
	for attempt := 1; attempt <= maxMutationAttempts; attempt++ {
		account, err := s.store.Read(ctx, userID)
		if err != nil {
			return nil, err
		}

		if mutate != nil {
			if err := mutate(account); err != nil {
				return nil, err
			}
		}

		if account.Balance+delta < 0 {
			return nil, models.ErrInsufficientBalance
		}
		account.Balance += delta

		err = s.store.ConditionalWrite(ctx, userID, account.Version, account)
		if err == nil {
			account.Version++
			return account, nil
		}
		if errors.Is(err, models.ErrVersionConflict) {
			log.Printf("[LEDGER] version conflict for user %s (attempt %d/%d), retrying", userID, attempt, maxMutationAttempts)
			continue
		}
		return nil, err
	}
	return nil, models.ErrConcurrentModification
}
