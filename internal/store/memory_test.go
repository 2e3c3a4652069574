package store

import (
	"context"
	"testing"

	"github.com/rezawallet/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("read unknown user", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Read(ctx, "nobody")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})

	t.Run("conditional write bumps version", func(t *testing.T) {
		s := NewMemoryStore()
		s.Seed("user1", 1000)

		account, err := s.Read(ctx, "user1")
		assert.NoError(t, err)
		account.Balance = 1500

		assert.NoError(t, s.ConditionalWrite(ctx, "user1", account.Version, account))

		updated, _ := s.Read(ctx, "user1")
		assert.Equal(t, int64(1500), updated.Balance)
		assert.Equal(t, int64(1), updated.Version)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		s := NewMemoryStore()
		s.Seed("user1", 1000)

		first, _ := s.Read(ctx, "user1")
		second, _ := s.Read(ctx, "user1")

		first.Balance = 1100
		assert.NoError(t, s.ConditionalWrite(ctx, "user1", first.Version, first))

		second.Balance = 900
		err := s.ConditionalWrite(ctx, "user1", second.Version, second)
		assert.ErrorIs(t, err, models.ErrVersionConflict)

		current, _ := s.Read(ctx, "user1")
		assert.Equal(t, int64(1100), current.Balance)
	})

	t.Run("reads are isolated snapshots", func(t *testing.T) {
		s := NewMemoryStore()
		s.Seed("user1", 1000)

		snapshot, _ := s.Read(ctx, "user1")
		snapshot.Balance = 0

		fresh, _ := s.Read(ctx, "user1")
		assert.Equal(t, int64(1000), fresh.Balance)
	})
}
