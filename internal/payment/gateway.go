package payment

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
	"time"
)

// Gateway abstracts the external payment provider.
type Gateway interface {
	// CreateOrder registers a new order with the provider.
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)

	// VerifySignature checks the checkout callback signature for an
	// order/payment pair.
	VerifySignature(orderID, paymentID, signature string) bool
}

// GatewayConfig holds the provider credentials.
type GatewayConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	KeyID     string `mapstructure:"key_id"`
	KeySecret string `mapstructure:"key_secret"`
}

// razorpayGateway talks to a Razorpay-compatible orders API.
type razorpayGateway struct {
	config GatewayConfig
	client *http.Client
}

// NewGateway creates a gateway client for the configured provider.
func NewGateway(cfg GatewayConfig) Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com/v1"
	}
	return &razorpayGateway{
		config: cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateOrder registers an order with the provider's orders endpoint.
func (g *razorpayGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.config.KeyID, g.config.KeySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("order creation failed with status %d: %s", resp.StatusCode, string(body))
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	return &order, nil
}

// VerifySignature recomputes the checkout HMAC over "orderID|paymentID"
// and compares in constant time.
func (g *razorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.config.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
