package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rezawallet/backend/internal/models"
	"github.com/rezawallet/backend/internal/services"
)

type WalletHandler struct {
	wallet     *services.WalletService
	ledger     *services.LedgerService
	reconciler *services.ReconcilerService
	qr         *services.QRService
	validator  *services.ValidationHelper
	currency   string
}

func NewWalletHandler(wallet *services.WalletService, ledger *services.LedgerService, reconciler *services.ReconcilerService, qr *services.QRService, currency string) *WalletHandler {
	return &WalletHandler{
		wallet:     wallet,
		ledger:     ledger,
		reconciler: reconciler,
		qr:         qr,
		validator:  services.NewValidationHelper(),
		currency:   currency,
	}
}

// InitiateDeposit starts a gateway deposit
// @Summary Initiate a deposit
// @Description Create a pending deposit and a gateway payment link
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "Deposit amount in cents"
// @Success 201 {object} object{success=bool,entryId=string,redirectUrl=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /wallet/deposits [post]
func (h *WalletHandler) InitiateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	intent, err := h.wallet.InitiateDeposit(r.Context(), userID, req.Amount)
	if err != nil {
		h.sendWalletError(w, err)
		return
	}

	if err := h.qr.CachePaymentLink(r.Context(), intent.EntryID, intent.RedirectURL); err != nil {
		log.Printf("[WALLET] failed to cache payment link for entry %s: %v", intent.EntryID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"entryId":     intent.EntryID,
		"redirectUrl": intent.RedirectURL,
	})
}

// DepositQR returns a QR image for a pending deposit's payment link
// @Summary Deposit payment QR
// @Description Render the deposit payment link as a scannable QR code
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Pending deposit entry ID"
// @Success 200 {object} object{qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/deposits/{entryId}/qr [get]
func (h *WalletHandler) DepositQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entryID := chi.URLParam(r, "entryId")
	qrImage, err := h.qr.PaymentLinkQR(r.Context(), entryID)
	if err != nil {
		services.SendErrorResponse(w, "Payment link not found or expired", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"qrImage": qrImage})
}

// InitiateWithdrawal starts a gateway payout
// @Summary Initiate a withdrawal
// @Description Reserve funds and request a payout to a bank account
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,bank_account=models.BankAccount} true "Withdrawal request"
// @Success 201 {object} object{success=bool,entryId=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /wallet/withdrawals [post]
func (h *WalletHandler) InitiateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount      int64              `json:"amount" validate:"required,gt=0"`
		BankAccount models.BankAccount `json:"bank_account" validate:"required"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entryID, err := h.wallet.InitiateWithdrawal(r.Context(), userID, req.Amount, req.BankAccount)
	if err != nil {
		h.sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"entryId": entryID,
	})
}

// GetBalance returns the current wallet balance
// @Summary Wallet balance
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balance=int64,currency=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := h.ledger.Account(r.Context(), userID)
	if err != nil {
		h.sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"balance":  account.Balance,
		"currency": h.currency,
	})
}

// ListTransactions returns the wallet's ledger entries, newest first
// @Summary Transaction history
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries to return (default: 20, max: 100)"
// @Success 200 {object} object{transactions=[]models.LedgerEntry,count=int}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/transactions [get]
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	account, err := h.ledger.Account(r.Context(), userID)
	if err != nil {
		h.sendWalletError(w, err)
		return
	}

	// Newest first.
	entries := []models.LedgerEntry{}
	for i := len(account.Transactions) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, account.Transactions[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": entries,
		"count":        len(entries),
	})
}

// ForceFail settles a stuck pending entry as failed
// @Summary Force-fail a pending entry
// @Description Operator sweep primitive: settles a pending entry with gateway-failure semantics
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Entry ID"
// @Param request body object{userId=string} true "Owner of the entry"
// @Success 200 {object} object{result=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/entries/{entryId}/force-fail [post]
func (h *WalletHandler) ForceFail(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")

	var req struct {
		UserID string `json:"userId" validate:"required"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.reconciler.ForceFail(r.Context(), req.UserID, entryID)
	if err != nil {
		h.sendWalletError(w, err)
		return
	}

	log.Printf("[WALLET] force-fail on entry %s for user %s: %s", entryID, req.UserID, result)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": string(result)})
}

func (h *WalletHandler) sendWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		services.SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrEntryNotFound):
		services.SendErrorResponse(w, "Entry not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrInsufficientBalance):
		services.SendErrorResponse(w, "Insufficient balance", http.StatusBadRequest, nil)
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrInvalidType):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, models.ErrGatewayUnavailable):
		services.SendErrorResponse(w, "Payment service unavailable", http.StatusBadGateway, nil)
	case errors.Is(err, models.ErrConcurrentModification), errors.Is(err, models.ErrAmountMismatch):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	default:
		log.Printf("[WALLET] internal error: %v", err)
		services.SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}

// decodeJSON applies the shared request hygiene: size cap, unknown-field
// rejection and single-object enforcement.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
