package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redismock/v8"
	"github.com/rezawallet/backend/internal/models"
	"github.com/rezawallet/backend/internal/services"
	"github.com/rezawallet/backend/internal/store"
	"github.com/stretchr/testify/assert"
)

type stubGateway struct {
	chargeResp *services.ChargeResponse
	chargeErr  error
	payoutResp *services.PayoutResponse
	payoutErr  error
}

func (g *stubGateway) RequestCharge(ctx context.Context, req services.ChargeRequest) (*services.ChargeResponse, error) {
	return g.chargeResp, g.chargeErr
}

func (g *stubGateway) RequestPayout(ctx context.Context, req services.PayoutRequest) (*services.PayoutResponse, error) {
	return g.payoutResp, g.payoutErr
}

type walletFixture struct {
	handler *WalletHandler
	ledger  *services.LedgerService
	router  http.Handler
}

func newWalletFixture(t *testing.T, balance int64, gateway services.PaymentGateway, qr *services.QRService) *walletFixture {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.Seed("user1", balance)
	ledger := services.NewLedgerService(mem)
	reconciler := services.NewReconcilerService(
		ledger,
		services.NewIdempotencyGuard(nil, 0),
		services.NewSettlementService(nil, "ZAR"),
		nil,
	)
	if qr == nil {
		qr = services.NewQRService(nil)
	}
	wallet := services.NewWalletService(ledger, gateway, "ZAR")
	handler := NewWalletHandler(wallet, ledger, reconciler, qr, "ZAR")

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), "userID", "user1")))
		})
	})
	r.Get("/wallet/balance", handler.GetBalance)
	r.Get("/wallet/transactions", handler.ListTransactions)
	r.Post("/wallet/deposits", handler.InitiateDeposit)
	r.Get("/wallet/deposits/{entryId}/qr", handler.DepositQR)
	r.Post("/wallet/withdrawals", handler.InitiateWithdrawal)
	r.Post("/wallet/entries/{entryId}/force-fail", handler.ForceFail)

	return &walletFixture{handler: handler, ledger: ledger, router: r}
}

func (f *walletFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWalletHandler_GetBalance(t *testing.T) {
	t.Run("returns the balance in cents", func(t *testing.T) {
		f := newWalletFixture(t, 12345, &stubGateway{}, nil)

		w := f.do(t, http.MethodGet, "/wallet/balance", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(12345), resp["balance"])
		assert.Equal(t, "ZAR", resp["currency"])
	})

	t.Run("missing user context", func(t *testing.T) {
		f := newWalletFixture(t, 0, &stubGateway{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
		w := httptest.NewRecorder()
		f.handler.GetBalance(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWalletHandler_InitiateDeposit(t *testing.T) {
	t.Run("returns the payment link", func(t *testing.T) {
		gateway := &stubGateway{chargeResp: &services.ChargeResponse{
			RedirectURL: "https://pay.ikhokha.com/abc",
			GatewayTxID: "IK-1",
		}}
		f := newWalletFixture(t, 0, gateway, nil)

		w := f.do(t, http.MethodPost, "/wallet/deposits", map[string]any{"amount": 10000})
		assert.Equal(t, http.StatusCreated, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.NotEmpty(t, resp["entryId"])
		assert.Equal(t, "https://pay.ikhokha.com/abc", resp["redirectUrl"])

		// Balance stays untouched until the callback settles the entry.
		account, _ := f.ledger.Account(context.Background(), "user1")
		assert.Equal(t, int64(0), account.Balance)
	})

	t.Run("validation failures", func(t *testing.T) {
		f := newWalletFixture(t, 0, &stubGateway{}, nil)

		w := f.do(t, http.MethodPost, "/wallet/deposits", map[string]any{"amount": 0})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.do(t, http.MethodPost, "/wallet/deposits", map[string]any{"amount": 100, "extra": true})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		f := newWalletFixture(t, 0, &stubGateway{chargeErr: errors.New("connection refused")}, nil)

		w := f.do(t, http.MethodPost, "/wallet/deposits", map[string]any{"amount": 10000})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestWalletHandler_DepositQR(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	qr := services.NewQRService(db)
	gateway := &stubGateway{chargeResp: &services.ChargeResponse{
		RedirectURL: "https://pay.ikhokha.com/abc",
		GatewayTxID: "IK-1",
	}}
	f := newWalletFixture(t, 0, gateway, qr)

	redisMock.Regexp().ExpectSet(`paylink:.+`, "https://pay.ikhokha.com/abc", 5*time.Minute).SetVal("OK")
	w := f.do(t, http.MethodPost, "/wallet/deposits", map[string]any{"amount": 10000})
	assert.Equal(t, http.StatusCreated, w.Code)

	var created map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	entryID := created["entryId"].(string)

	redisMock.ExpectGet("paylink:" + entryID).SetVal("https://pay.ikhokha.com/abc")
	w = f.do(t, http.MethodGet, "/wallet/deposits/"+entryID+"/qr", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["qrImage"])

	redisMock.ExpectGet("paylink:expired").RedisNil()
	w = f.do(t, http.MethodGet, "/wallet/deposits/expired/qr", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWalletHandler_InitiateWithdrawal(t *testing.T) {
	bankAccount := map[string]any{
		"account_number":      "1234567890",
		"account_type":        "cheque",
		"bank_name":           "FNB",
		"account_holder_name": "T Mokoena",
	}

	t.Run("reserves and returns the entry", func(t *testing.T) {
		f := newWalletFixture(t, 20000, &stubGateway{payoutResp: &services.PayoutResponse{GatewayTxID: "PO-1"}}, nil)

		w := f.do(t, http.MethodPost, "/wallet/withdrawals", map[string]any{
			"amount":       7500,
			"bank_account": bankAccount,
		})
		assert.Equal(t, http.StatusCreated, w.Code)

		account, _ := f.ledger.Account(context.Background(), "user1")
		assert.Equal(t, int64(12500), account.Balance)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		f := newWalletFixture(t, 5000, &stubGateway{payoutResp: &services.PayoutResponse{GatewayTxID: "PO-2"}}, nil)

		w := f.do(t, http.MethodPost, "/wallet/withdrawals", map[string]any{
			"amount":       7500,
			"bank_account": bankAccount,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		account, _ := f.ledger.Account(context.Background(), "user1")
		assert.Equal(t, int64(5000), account.Balance)
		assert.Empty(t, account.Transactions)
	})

	t.Run("invalid bank account", func(t *testing.T) {
		f := newWalletFixture(t, 20000, &stubGateway{}, nil)

		w := f.do(t, http.MethodPost, "/wallet/withdrawals", map[string]any{
			"amount": 7500,
			"bank_account": map[string]any{
				"account_number": "123",
				"account_type":   "offshore",
				"bank_name":      "FNB",
			},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("payout failure restores the balance", func(t *testing.T) {
		f := newWalletFixture(t, 20000, &stubGateway{payoutErr: errors.New("timeout")}, nil)

		w := f.do(t, http.MethodPost, "/wallet/withdrawals", map[string]any{
			"amount":       7500,
			"bank_account": bankAccount,
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)

		account, _ := f.ledger.Account(context.Background(), "user1")
		assert.Equal(t, int64(20000), account.Balance)
	})
}

func TestWalletHandler_ListTransactions(t *testing.T) {
	f := newWalletFixture(t, 0, &stubGateway{}, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		entry, err := models.NewLedgerEntry(models.EntryTypeDeposit, 1000, "card deposit")
		assert.NoError(t, err)
		ids = append(ids, entry.ID)
		_, err = f.ledger.ApplyMutation(context.Background(), "user1", 0, func(a *models.Account) error {
			a.Transactions = append(a.Transactions, *entry)
			return nil
		})
		assert.NoError(t, err)
	}

	w := f.do(t, http.MethodGet, "/wallet/transactions?limit=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []models.LedgerEntry `json:"transactions"`
		Count        int                  `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	// Newest first.
	assert.Equal(t, ids[2], resp.Transactions[0].ID)
	assert.Equal(t, ids[1], resp.Transactions[1].ID)
}

func TestWalletHandler_ForceFail(t *testing.T) {
	f := newWalletFixture(t, 20000, &stubGateway{}, nil)

	entry, err := models.NewLedgerEntry(models.EntryTypeWithdrawal, 7500, "payout")
	assert.NoError(t, err)
	_, err = f.ledger.ApplyMutation(context.Background(), "user1", -7500, func(a *models.Account) error {
		a.Transactions = append(a.Transactions, *entry)
		return nil
	})
	assert.NoError(t, err)

	w := f.do(t, http.MethodPost, "/wallet/entries/"+entry.ID+"/force-fail", map[string]any{"userId": "user1"})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["result"])

	account, _ := f.ledger.Account(context.Background(), "user1")
	assert.Equal(t, int64(20000), account.Balance)
	assert.Equal(t, models.EntryStatusFailed, account.Entry(entry.ID).Status)

	// Sweeping the same entry again reports a duplicate.
	w = f.do(t, http.MethodPost, "/wallet/entries/"+entry.ID+"/force-fail", map[string]any{"userId": "user1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp["result"])

	w = f.do(t, http.MethodPost, "/wallet/entries/missing/force-fail", map[string]any{"userId": "user1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
