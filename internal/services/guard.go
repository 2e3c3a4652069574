package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// IdempotencyGuard is the fast path for duplicate callback suppression. The
// authoritative admission check is the pending-status test inside the
// conditional write: it is persisted atomically with the effect it protects
// and survives restarts. Redis only shortcuts redeliveries of events that
// already settled, which is why keys are recorded after the effect commits,
// never before. Losing Redis loses nothing but the shortcut.
type IdempotencyGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{redis: client, ttl: ttl}
}

// EventKey derives the idempotency key from the gateway's transaction id and
// the event's logical intent, so a settle and a fail for the same gateway tx
// are admitted independently.
func EventKey(gatewayTxID string, outcome CallbackOutcome) string {
	return fmt.Sprintf("reconcile:event:%s:%s", gatewayTxID, outcome)
}

// Seen reports whether the key was recorded earlier. Errors fail open: a
// missed shortcut just means the durable check runs.
func (g *IdempotencyGuard) Seen(ctx context.Context, key string) bool {
	if g == nil || g.redis == nil {
		return false
	}
	n, err := g.redis.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("[GUARD] redis lookup failed for %s: %v", key, err)
		return false
	}
	return n > 0
}

// Record marks the key as processed. Called only after the settlement
// committed.
func (g *IdempotencyGuard) Record(ctx context.Context, key string) {
	if g == nil || g.redis == nil {
		return
	}
	if err := g.redis.Set(ctx, key, "1", g.ttl).Err(); err != nil {
		log.Printf("[GUARD] failed to record %s: %v", key, err)
	}
}
