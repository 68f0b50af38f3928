package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Pro plan pricing
const (
	ProPlanAmount   = 899 // smallest currency unit
	ProPlanCurrency = "USD"
	proPlanDuration = 30 * 24 * time.Hour
)

// Upgrader grants the pro tier after a verified payment.
type Upgrader interface {
	GrantPro(ctx context.Context, userID string) error
}

// Manager handles the pro upgrade payment flow
type Manager interface {
	// CreateProOrder opens a gateway order for the pro plan.
	CreateProOrder(ctx context.Context, userID string) (*Order, error)

	// VerifyPayment validates the checkout signature, marks the payment
	// completed and upgrades the user.
	VerifyPayment(ctx context.Context, userID string, req VerifyRequest) (*Payment, error)

	// ActiveSubscription reports the user's current paid window, if any.
	ActiveSubscription(ctx context.Context, userID string) (*Subscription, error)
}

type paymentManager struct {
	store    Store
	gateway  Gateway
	upgrader Upgrader
}

// NewManager creates a new payment manager
func NewManager(store Store, gateway Gateway, upgrader Upgrader) Manager {
	return &paymentManager{store: store, gateway: gateway, upgrader: upgrader}
}

// CreateProOrder opens a gateway order and records it locally
func (m *paymentManager) CreateProOrder(ctx context.Context, userID string) (*Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	receipt := "pro_" + uuid.New().String()
	order, err := m.gateway.CreateOrder(ctx, ProPlanAmount, ProPlanCurrency, receipt)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment := &Payment{
		ID:        uuid.New().String(),
		UserID:    userID,
		OrderID:   order.ID,
		Amount:    ProPlanAmount,
		Currency:  ProPlanCurrency,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"order_id": order.ID,
		"amount":   ProPlanAmount,
	}).Info("Pro upgrade order created")

	return order, nil
}

// VerifyPayment completes the checkout flow for an order
func (m *paymentManager) VerifyPayment(ctx context.Context, userID string, req VerifyRequest) (*Payment, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, fmt.Errorf("orderId, paymentId and signature are required")
	}

	payment, err := m.store.GetPaymentByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if payment.Status == StatusCompleted {
		return nil, ErrAlreadyProcessed
	}

	if !m.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		if err := m.store.UpdatePaymentStatus(ctx, req.OrderID, req.PaymentID, StatusFailed); err != nil {
			logrus.WithError(err).Warn("Failed to record failed payment")
		}
		return nil, ErrInvalidSignature
	}

	if err := m.store.UpdatePaymentStatus(ctx, req.OrderID, req.PaymentID, StatusCompleted); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		PaymentID: payment.ID,
		StartsAt:  now,
		EndsAt:    now.Add(proPlanDuration),
		CreatedAt: now,
	}
	if err := m.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	if err := m.upgrader.GrantPro(ctx, userID); err != nil {
		return nil, fmt.Errorf("payment verified but tier upgrade failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"order_id":   req.OrderID,
		"payment_id": req.PaymentID,
	}).Info("Payment verified, user upgraded to pro")

	return m.store.GetPaymentByOrder(ctx, req.OrderID)
}

// ActiveSubscription returns the user's current paid window
func (m *paymentManager) ActiveSubscription(ctx context.Context, userID string) (*Subscription, error) {
	return m.store.ActiveSubscription(ctx, userID)
}
