package payment

import (
	"errors"
	"time"
)

// Payment statuses
const (
	StatusCreated   = "CREATED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Payment errors
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidSignature   = errors.New("invalid payment signature")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Order is a gateway order awaiting payment.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment is a recorded payment attempt for a tier upgrade.
type Payment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	OrderID   string    `json:"orderId"`
	PaymentID string    `json:"paymentId,omitempty"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Subscription tracks a user's paid pro window.
type Subscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PaymentID string    `json:"paymentId"`
	StartsAt  time.Time `json:"startsAt"`
	EndsAt    time.Time `json:"endsAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// VerifyRequest is the client callback after gateway checkout completes.
type VerifyRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}
