package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rezawallet/backend/internal/models"
)

const deadLetterKey = "reconcile:deadletter"

type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeFailure CallbackOutcome = "failure"
)

// CallbackEvent is a gateway notification, already normalized and
// signature-verified by the webhook adapter.
type CallbackEvent struct {
	GatewayTxID string          `json:"gatewayTxId"`
	UserID      string          `json:"userId"`
	EntryID     string          `json:"entryId"`
	Outcome     CallbackOutcome `json:"outcome"`
	// Amount is the settled amount in cents; zero means the gateway did not
	// echo one and the check is skipped.
	Amount int64 `json:"amount"`
}

type ReconcileResult string

const (
	ResultAccepted  ReconcileResult = "accepted"
	ResultDuplicate ReconcileResult = "duplicate"
)

// ReconcilerService turns asynchronous gateway notifications into ledger
// mutations, exactly once per event. Redelivered, late and out-of-order
// events all resolve to Duplicate without touching the balance.
type ReconcilerService struct {
	ledger     *LedgerService
	guard      *IdempotencyGuard
	settlement *SettlementService
	redis      *redis.Client
}

func NewReconcilerService(ledger *LedgerService, guard *IdempotencyGuard, settlement *SettlementService, redisClient *redis.Client) *ReconcilerService {
	return &ReconcilerService{
		ledger:     ledger,
		guard:      guard,
		settlement: settlement,
		redis:      redisClient,
	}
}

// Reconcile applies one callback event. Errors are dead-lettered for
// operator inspection; they never affect other events.
func (s *ReconcilerService) Reconcile(ctx context.Context, event CallbackEvent) (ReconcileResult, error) {
	key := EventKey(event.GatewayTxID, event.Outcome)
	if s.guard.Seen(ctx, key) {
		log.Printf("[RECONCILE] duplicate delivery suppressed: %s", key)
		return ResultDuplicate, nil
	}

	result, entry, err := s.settle(ctx, event.UserID, event.EntryID, event.Outcome, event.Amount, event.GatewayTxID)
	if err != nil {
		log.Printf("[RECONCILE] event %s failed: %v", key, err)
		s.deadLetter(ctx, event, err)
		return "", err
	}

	s.guard.Record(ctx, key)

	if result == ResultAccepted && entry.Type == models.EntryTypeWithdrawal && entry.Status == models.EntryStatusCompleted {
		// Post-commit, best effort: settlement export must not block or fail
		// the reconciling path.
		go s.settlement.QueueWithdrawal(context.Background(), event.UserID, *entry)
	}
	if result == ResultAccepted {
		log.Printf("[RECONCILE] entry %s settled as %s for user %s", event.EntryID, entry.Status, event.UserID)
	}
	return result, nil
}

// ForceFail settles a stuck pending entry with the same semantics as a
// gateway failure callback. Used by the out-of-band timeout sweep.
func (s *ReconcilerService) ForceFail(ctx context.Context, userID, entryID string) (ReconcileResult, error) {
	result, entry, err := s.settle(ctx, userID, entryID, OutcomeFailure, 0, "")
	if err != nil {
		return "", err
	}
	if result == ResultAccepted {
		log.Printf("[RECONCILE] entry %s force-failed for user %s (type %s)", entryID, userID, entry.Type)
	}
	return result, nil
}

// settle performs the single pending→terminal transition. The status check
// runs inside the conditional write, so it is the durable admission decision:
// whichever delivery commits first wins, every later one sees a non-pending
// entry and reports Duplicate.
func (s *ReconcilerService) settle(ctx context.Context, userID, entryID string, outcome CallbackOutcome, settledAmount int64, externalRef string) (ReconcileResult, *models.LedgerEntry, error) {
	account, err := s.ledger.Account(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	entry := account.Entry(entryID)
	if entry == nil {
		return "", nil, models.ErrEntryNotFound
	}
	if entry.Status != models.EntryStatusPending {
		return ResultDuplicate, entry, nil
	}
	if settledAmount != 0 && settledAmount != entry.Amount {
		return "", nil, models.ErrAmountMismatch
	}

	status := models.EntryStatusFailed
	if outcome == OutcomeSuccess {
		status = models.EntryStatusCompleted
	}

	// Type and amount are immutable once created, so the delta derived from
	// this snapshot stays valid across conditional-write retries.
	var delta int64
	switch {
	case entry.Type == models.EntryTypeDeposit && outcome == OutcomeSuccess:
		delta = entry.Amount
	case entry.Type == models.EntryTypeWithdrawal && outcome == OutcomeFailure:
		// Restore the reservation taken at initiation.
		delta = entry.Amount
	}

	var settled models.LedgerEntry
	_, err = s.ledger.ApplyMutation(ctx, userID, delta, func(account *models.Account) error {
		e := account.Entry(entryID)
		if e == nil {
			return models.ErrEntryNotFound
		}
		if err := e.Settle(status, externalRef); err != nil {
			return err
		}
		settled = *e
		return nil
	})
	if errors.Is(err, models.ErrDuplicateEvent) {
		// Another delivery won the race between our read and write.
		return ResultDuplicate, entry, nil
	}
	if err != nil {
		return "", nil, err
	}
	return ResultAccepted, &settled, nil
}

// deadLetter records a failed reconciliation for operator inspection.
func (s *ReconcilerService) deadLetter(ctx context.Context, event CallbackEvent, cause error) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":    event,
		"error":    cause.Error(),
		"failedAt": time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.redis.RPush(ctx, deadLetterKey, payload).Err(); err != nil {
		log.Printf("[RECONCILE] dead-letter push failed: %v", err)
	}
}
