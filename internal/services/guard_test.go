package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestEventKey(t *testing.T) {
	// Settle and fail for the same gateway tx are distinct events.
	assert.Equal(t, "reconcile:event:IK-1:success", EventKey("IK-1", OutcomeSuccess))
	assert.Equal(t, "reconcile:event:IK-1:failure", EventKey("IK-1", OutcomeFailure))
	assert.NotEqual(t, EventKey("IK-1", OutcomeSuccess), EventKey("IK-2", OutcomeSuccess))
}

func TestIdempotencyGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		guard := NewIdempotencyGuard(db, time.Hour)
		key := EventKey("IK-1", OutcomeSuccess)

		mock.ExpectExists(key).SetVal(0)
		assert.False(t, guard.Seen(ctx, key))

		mock.ExpectSet(key, "1", time.Hour).SetVal("OK")
		guard.Record(ctx, key)

		mock.ExpectExists(key).SetVal(1)
		assert.True(t, guard.Seen(ctx, key))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup errors fail open", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		guard := NewIdempotencyGuard(db, time.Hour)
		key := EventKey("IK-2", OutcomeFailure)

		mock.ExpectExists(key).SetErr(errors.New("connection reset"))
		assert.False(t, guard.Seen(ctx, key))
	})

	t.Run("without redis everything is unseen", func(t *testing.T) {
		guard := NewIdempotencyGuard(nil, time.Hour)
		key := EventKey("IK-3", OutcomeSuccess)

		assert.False(t, guard.Seen(ctx, key))
		guard.Record(ctx, key)
		assert.False(t, guard.Seen(ctx, key))
	})
}
