// Package gateway implements the iKhokha payment-gateway adapter: hosted
// payment links for deposits and payouts for withdrawals, both signed with
// the gateway's HMAC scheme. Webhook signature verification lives with the
// webhook handler; this package only issues outbound requests.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rezawallet/backend/internal/services"
)

const (
	defaultBaseURL = "https://api.ikhokha.com"
	paymentPath    = "/public-api/v1/api/payment"
	payoutPath     = "/public-api/v1/api/payout"
)

// Config carries the injected gateway credentials and URLs. The core never
// reads these from the environment itself.
type Config struct {
	AppID        string
	Secret       string
	BaseURL      string
	RequesterURL string
	CallbackURL  string
	SuccessURL   string
	FailureURL   string
	Mode         string // "live" or "test"
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type urlsPayload struct {
	CallbackURL    string `json:"callbackUrl"`
	SuccessPageURL string `json:"successPageUrl"`
	FailurePageURL string `json:"failurePageUrl"`
}

type paymentPayload struct {
	EntityID              string      `json:"entityID"`
	ExternalEntityID      string      `json:"externalEntityID"`
	Amount                int64       `json:"amount"` // in cents
	Currency              string      `json:"currency"`
	RequesterURL          string      `json:"requesterUrl"`
	Mode                  string      `json:"mode"`
	ExternalTransactionID string      `json:"externalTransactionID"`
	Description           string      `json:"description"`
	URLs                  urlsPayload `json:"urls"`
}

type payoutDetailsPayload struct {
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
}

type payoutPayload struct {
	EntityID              string               `json:"entityID"`
	ExternalEntityID      string               `json:"externalEntityID"`
	Amount                int64                `json:"amount"` // in cents
	Currency              string               `json:"currency"`
	RequesterURL          string               `json:"requesterUrl"`
	Mode                  string               `json:"mode"`
	Description           string               `json:"description"`
	ExternalTransactionID string               `json:"externalTransactionID"`
	PayoutDetails         payoutDetailsPayload `json:"payoutDetails"`
	URLs                  urlsPayload          `json:"urls"`
}

// RequestCharge creates a hosted payment link for a deposit.
func (c *Client) RequestCharge(ctx context.Context, req services.ChargeRequest) (*services.ChargeResponse, error) {
	payload := paymentPayload{
		EntityID:              c.cfg.AppID,
		ExternalEntityID:      req.Reference,
		Amount:                req.Amount,
		Currency:              req.Currency,
		RequesterURL:          c.cfg.RequesterURL,
		Mode:                  c.cfg.Mode,
		ExternalTransactionID: req.Reference,
		Description:           req.Description,
		URLs: urlsPayload{
			CallbackURL:    c.cfg.CallbackURL,
			SuccessPageURL: c.cfg.SuccessURL,
			FailurePageURL: c.cfg.FailureURL,
		},
	}

	var out struct {
		PaylinkURL   string `json:"paylinkUrl"`
		PaylinkID    string `json:"paylinkID"`
		ResponseCode string `json:"responseCode"`
		Message      string `json:"message"`
	}
	if err := c.post(ctx, paymentPath, payload, &out); err != nil {
		return nil, err
	}
	if out.PaylinkURL == "" {
		return nil, fmt.Errorf("payment request rejected: %s", out.Message)
	}
	return &services.ChargeResponse{
		RedirectURL: out.PaylinkURL,
		GatewayTxID: out.PaylinkID,
	}, nil
}

// RequestPayout initiates a payout to the given bank account.
func (c *Client) RequestPayout(ctx context.Context, req services.PayoutRequest) (*services.PayoutResponse, error) {
	payload := payoutPayload{
		EntityID:              c.cfg.AppID,
		ExternalEntityID:      req.Reference,
		Amount:                req.Amount,
		Currency:              req.Currency,
		RequesterURL:          c.cfg.RequesterURL,
		Mode:                  c.cfg.Mode,
		Description:           req.Description,
		ExternalTransactionID: req.Reference,
		PayoutDetails: payoutDetailsPayload{
			AccountNumber: req.Destination.AccountNumber,
			AccountType:   req.Destination.AccountType,
			BankName:      req.Destination.BankName,
			AccountHolder: req.Destination.AccountHolder,
		},
		URLs: urlsPayload{
			CallbackURL:    c.cfg.CallbackURL,
			SuccessPageURL: c.cfg.SuccessURL,
			FailurePageURL: c.cfg.FailureURL,
		},
	}

	var out struct {
		PayoutID     string `json:"payoutID"`
		PayoutURL    string `json:"payoutUrl"`
		ResponseCode string `json:"responseCode"`
		Message      string `json:"message"`
	}
	if err := c.post(ctx, payoutPath, payload, &out); err != nil {
		return nil, err
	}
	if out.PayoutID == "" {
		return nil, fmt.Errorf("payout request rejected: %s", out.Message)
	}
	return &services.PayoutResponse{GatewayTxID: out.PayoutID}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("IK-APPID", c.cfg.AppID)
	httpReq.Header.Set("IK-SIGN", c.Sign(path, body))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return json.Unmarshal(respBody, out)
}

// Sign computes the request signature over the path plus the body with its
// quotes escaped, per the gateway's signing scheme.
func (c *Client) Sign(path string, body []byte) string {
	payload := path + strings.ReplaceAll(string(body), `"`, `\"`)
	h := hmac.New(sha256.New, []byte(c.cfg.Secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
