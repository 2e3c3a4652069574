package config

import (
	"time"

	"github.com/spf13/viper"
)

// GatewayConfig carries the payment-gateway credentials and URLs. Loaded
// once at startup and injected into the gateway client; no other package
// reads these keys.
type GatewayConfig struct {
	AppID        string
	Secret       string
	BaseURL      string
	RequesterURL string
	CallbackURL  string
	SuccessURL   string
	FailureURL   string
	Mode         string
	Currency     string
}

// LoadGatewayConfig reads the gateway settings with defaults.
func LoadGatewayConfig() *GatewayConfig {
	viper.SetDefault("ikhokha.base_url", "https://api.ikhokha.com")
	viper.SetDefault("ikhokha.requester_url", "https://wallet.example.com")
	viper.SetDefault("ikhokha.callback_url", "https://wallet.example.com/webhooks/ikhokha")
	viper.SetDefault("ikhokha.success_url", "https://wallet.example.com/dashboard?payment=success")
	viper.SetDefault("ikhokha.failure_url", "https://wallet.example.com/deposit?payment=failed")
	viper.SetDefault("ikhokha.mode", "test")
	viper.SetDefault("wallet.currency", "ZAR")

	return &GatewayConfig{
		AppID:        viper.GetString("ikhokha.app_id"),
		Secret:       viper.GetString("ikhokha.secret"),
		BaseURL:      viper.GetString("ikhokha.base_url"),
		RequesterURL: viper.GetString("ikhokha.requester_url"),
		CallbackURL:  viper.GetString("ikhokha.callback_url"),
		SuccessURL:   viper.GetString("ikhokha.success_url"),
		FailureURL:   viper.GetString("ikhokha.failure_url"),
		Mode:         viper.GetString("ikhokha.mode"),
		Currency:     viper.GetString("wallet.currency"),
	}
}

// SettlementConfig controls the settlement-queue drain loop.
type SettlementConfig struct {
	Interval time.Duration
}

func LoadSettlementConfig() *SettlementConfig {
	viper.SetDefault("settlement.interval", time.Minute)
	return &SettlementConfig{
		Interval: viper.GetDuration("settlement.interval"),
	}
}
