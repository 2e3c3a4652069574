package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/rezawallet/backend/internal/models"
	"github.com/rezawallet/backend/internal/services"
)

// WebhookHandler is the protocol adapter between the gateway's webhook and
// the reconciler: it verifies the signature, normalizes the dynamic payload
// into a typed CallbackEvent and maps reconciler outcomes back onto HTTP
// responses the gateway understands (200 stops redelivery).
type WebhookHandler struct {
	reconciler *services.ReconcilerService
	secret     string
}

func NewWebhookHandler(reconciler *services.ReconcilerService, secret string) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, secret: secret}
}

// webhookPayload is the gateway's callback body.
type webhookPayload struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"` // in cents
	Reference string `json:"reference"`
}

// HandleCallback processes a gateway webhook delivery
// @Summary Gateway payment callback
// @Description Receives signed payment/payout notifications from the gateway
// @Tags webhooks
// @Accept json
// @Produce json
// @Param IK-SIGN header string true "HMAC-SHA256 signature of the raw body"
// @Success 200 {object} object{received=bool}
// @Failure 403 {object} services.ErrorResponse
// @Router /webhooks/ikhokha [post]
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if !h.verifySignature(r.Header.Get("IK-SIGN"), body) {
		log.Printf("[WEBHOOK] rejected callback with bad signature from %s", r.RemoteAddr)
		services.SendErrorResponse(w, "Invalid signature", http.StatusForbidden, nil)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	userID, entryID, err := services.ParseCorrelationRef(payload.Reference)
	if err != nil {
		log.Printf("[WEBHOOK] %v", err)
		services.SendErrorResponse(w, "Malformed reference", http.StatusBadRequest, nil)
		return
	}

	outcome, ok := normalizeStatus(payload.Status)
	if !ok {
		log.Printf("[WEBHOOK] unknown gateway status %q for reference %s", payload.Status, payload.Reference)
		services.SendErrorResponse(w, "Unknown status", http.StatusBadRequest, nil)
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), services.CallbackEvent{
		GatewayTxID: payload.PaymentID,
		UserID:      userID,
		EntryID:     entryID,
		Outcome:     outcome,
		Amount:      payload.Amount,
	})
	if err != nil {
		// Correlation and amount problems are recorded for the operator and
		// acknowledged: redelivering the same broken event cannot fix them.
		if errors.Is(err, models.ErrEntryNotFound) ||
			errors.Is(err, models.ErrUserNotFound) ||
			errors.Is(err, models.ErrAmountMismatch) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"received": true})
			return
		}
		services.SendErrorResponse(w, "Callback processing failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"received": true,
		"result":   string(result),
	})
}

func (h *WebhookHandler) verifySignature(signature string, body []byte) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// normalizeStatus collapses the gateway's status vocabulary into the typed
// success/failure union the reconciler consumes.
func normalizeStatus(status string) (services.CallbackOutcome, bool) {
	switch strings.ToLower(status) {
	case "completed", "successful", "success", "paid":
		return services.OutcomeSuccess, true
	case "failed", "cancelled", "declined", "expired":
		return services.OutcomeFailure, true
	default:
		return "", false
	}
}
