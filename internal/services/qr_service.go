package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

const paymentLinkTTL = 5 * time.Minute

// QRService renders deposit payment links as scannable QR codes. Links are
// cached in Redis so the image can be regenerated until the gateway link
// itself expires.
type QRService struct {
	redis *redis.Client
}

func NewQRService(redisClient *redis.Client) *QRService {
	return &QRService{redis: redisClient}
}

func (s *QRService) CachePaymentLink(ctx context.Context, entryID, redirectURL string) error {
	if s.redis == nil {
		return fmt.Errorf("payment link cache unavailable")
	}
	key := fmt.Sprintf("paylink:%s", entryID)
	return s.redis.Set(ctx, key, redirectURL, paymentLinkTTL).Err()
}

// PaymentLinkQR returns a base64 PNG QR code for a cached payment link.
func (s *QRService) PaymentLinkQR(ctx context.Context, entryID string) (string, error) {
	if s.redis == nil {
		return "", fmt.Errorf("payment link cache unavailable")
	}
	key := fmt.Sprintf("paylink:%s", entryID)

	redirectURL, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("invalid or expired payment link")
	}
	if err != nil {
		return "", err
	}

	qr, err := qrcode.New(redirectURL, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
