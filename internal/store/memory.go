package store

import (
	"context"
	"sync"
	"time"

	"github.com/rezawallet/backend/internal/models"
)

// MemoryStore is a mutex-guarded in-memory account store. It implements the
// same conditional-write contract as PostgresStore and backs the workflow and
// concurrency tests as well as local runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*models.Account)}
}

func (s *MemoryStore) Read(_ context.Context, userID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return account.Clone(), nil
}

func (s *MemoryStore) ConditionalWrite(_ context.Context, userID string, expectedVersion int64, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if current.Version != expectedVersion {
		return models.ErrVersionConflict
	}

	next := account.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = next
	return nil
}

// Seed creates an account with the given opening balance.
func (s *MemoryStore) Seed(userID string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = &models.Account{
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: time.Now().UTC(),
	}
}
