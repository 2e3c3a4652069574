package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rezawallet/backend/internal/models"
)

// ChargeRequest asks the gateway for a hosted card payment.
type ChargeRequest struct {
	Amount      int64 // in cents
	Currency    string
	Reference   string
	Description string
}

type ChargeResponse struct {
	RedirectURL string
	GatewayTxID string
}

// PayoutRequest asks the gateway to pay out to a bank account.
type PayoutRequest struct {
	Amount      int64 // in cents
	Currency    string
	Reference   string
	Description string
	Destination models.BankAccount
}

type PayoutResponse struct {
	GatewayTxID string
}

// PaymentGateway is the external card-payment collaborator. Calls may block
// on the network and are always made outside ApplyMutation.
type PaymentGateway interface {
	RequestCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	RequestPayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error)
}

// DepositIntent is returned to the caller so the user can be redirected to
// the gateway's payment page.
type DepositIntent struct {
	EntryID     string `json:"entryId"`
	RedirectURL string `json:"redirectUrl"`
}

// WalletService runs the deposit and withdrawal workflows. Balances change
// only through the ledger service; the gateway is only ever consulted between
// mutations.
type WalletService struct {
	ledger   *LedgerService
	gateway  PaymentGateway
	currency string
}

func NewWalletService(ledger *LedgerService, gateway PaymentGateway, currency string) *WalletService {
	return &WalletService{
		ledger:   ledger,
		gateway:  gateway,
		currency: currency,
	}
}

// CorrelationRef builds the gateway reference that lets a callback find its
// originating entry.
func CorrelationRef(userID, entryID string) string {
	return userID + "_" + entryID
}

// ParseCorrelationRef splits a gateway reference back into user and entry id.
func ParseCorrelationRef(ref string) (userID, entryID string, err error) {
	parts := strings.SplitN(ref, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed correlation reference %q", ref)
	}
	return parts[0], parts[1], nil
}

// InitiateDeposit creates a pending deposit entry and requests a charge from
// the gateway. The balance is untouched until the callback settles the entry.
func (s *WalletService) InitiateDeposit(ctx context.Context, userID string, amount int64) (*DepositIntent, error) {
	entry, err := models.NewLedgerEntry(models.EntryTypeDeposit, amount, "Deposit via card payment")
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.ApplyMutation(ctx, userID, 0, appendEntry(*entry)); err != nil {
		return nil, err
	}

	charge, err := s.gateway.RequestCharge(ctx, ChargeRequest{
		Amount:      amount,
		Currency:    s.currency,
		Reference:   CorrelationRef(userID, entry.ID),
		Description: "ReZA Wallet Deposit",
	})
	if err != nil {
		// No dangling pending state: void the entry right away.
		if _, ferr := s.ledger.ApplyMutation(ctx, userID, 0, settleEntry(entry.ID, models.EntryStatusFailed, "")); ferr != nil {
			log.Printf("[WALLET] failed to void deposit entry %s for user %s: %v", entry.ID, userID, ferr)
		}
		return nil, fmt.Errorf("%w: charge request: %v", models.ErrGatewayUnavailable, err)
	}

	if _, err := s.ledger.ApplyMutation(ctx, userID, 0, recordExternalRef(entry.ID, charge.GatewayTxID)); err != nil {
		// The callback still correlates via the entry id, so this is not fatal.
		log.Printf("[WALLET] failed to record gateway tx %s on entry %s: %v", charge.GatewayTxID, entry.ID, err)
	}

	log.Printf("[WALLET] deposit initiated: user=%s entry=%s amount=%d", userID, entry.ID, amount)
	return &DepositIntent{EntryID: entry.ID, RedirectURL: charge.RedirectURL}, nil
}

// InitiateWithdrawal reserves funds eagerly, then requests the payout. The
// reservation happens before any external call so two concurrent withdrawals
// cannot both spend the same balance. A synchronous gateway failure reverses
// the reservation in one corrective mutation.
func (s *WalletService) InitiateWithdrawal(ctx context.Context, userID string, amount int64, destination models.BankAccount) (string, error) {
	entry, err := models.NewLedgerEntry(models.EntryTypeWithdrawal, amount,
		fmt.Sprintf("Withdrawal to %s", destination.BankName))
	if err != nil {
		return "", err
	}

	// Step 1: reserve. Fails with ErrInsufficientBalance before the gateway
	// is ever contacted.
	if _, err := s.ledger.ApplyMutation(ctx, userID, -amount, appendEntry(*entry)); err != nil {
		return "", err
	}

	payout, err := s.gateway.RequestPayout(ctx, PayoutRequest{
		Amount:      amount,
		Currency:    s.currency,
		Reference:   CorrelationRef(userID, entry.ID),
		Description: fmt.Sprintf("ReZA Wallet Withdrawal %s%.2f", s.currency, float64(amount)/100),
		Destination: destination,
	})
	if err != nil {
		if _, ferr := s.ledger.ApplyMutation(ctx, userID, amount, settleEntry(entry.ID, models.EntryStatusFailed, "")); ferr != nil {
			log.Printf("[WALLET] failed to reverse reservation for entry %s user %s: %v", entry.ID, userID, ferr)
		}
		return "", fmt.Errorf("%w: payout request: %v", models.ErrGatewayUnavailable, err)
	}

	if _, err := s.ledger.ApplyMutation(ctx, userID, 0, recordExternalRef(entry.ID, payout.GatewayTxID)); err != nil {
		log.Printf("[WALLET] failed to record gateway tx %s on entry %s: %v", payout.GatewayTxID, entry.ID, err)
	}

	log.Printf("[WALLET] withdrawal initiated: user=%s entry=%s amount=%d", userID, entry.ID, amount)
	return entry.ID, nil
}

func appendEntry(entry models.LedgerEntry) func(*models.Account) error {
	return func(account *models.Account) error {
		if account.Entry(entry.ID) != nil {
			return models.ErrDuplicateEvent
		}
		account.Transactions = append(account.Transactions, entry)
		return nil
	}
}

func settleEntry(entryID string, status models.EntryStatus, externalRef string) func(*models.Account) error {
	return func(account *models.Account) error {
		entry := account.Entry(entryID)
		if entry == nil {
			return models.ErrEntryNotFound
		}
		return entry.Settle(status, externalRef)
	}
}

func recordExternalRef(entryID, externalRef string) func(*models.Account) error {
	return func(account *models.Account) error {
		entry := account.Entry(entryID)
		if entry == nil {
			return models.ErrEntryNotFound
		}
		entry.ExternalReference = externalRef
		return nil
	}
}
