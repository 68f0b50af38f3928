package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists payments and subscriptions
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, orderID, paymentID, status string) error
	CreateSubscription(ctx context.Context, s *Subscription) error
	ActiveSubscription(ctx context.Context, userID string) (*Subscription, error)
}

// SQLiteStore implements Store backed by SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the payment store and its schema
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize payment schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id TEXT NOT NULL UNIQUE,
		payment_id TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		starts_at INTEGER NOT NULL,
		ends_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id, ends_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreatePayment inserts a new payment record
func (s *SQLiteStore) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, order_id, payment_id, amount, currency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.OrderID, p.PaymentID, p.Amount, p.Currency, p.Status,
		p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByOrder retrieves a payment by its gateway order ID
func (s *SQLiteStore) GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_id, payment_id, amount, currency, status, created_at, updated_at
		FROM payments WHERE order_id = ?`, orderID)

	var p Payment
	var paymentID sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &paymentID, &p.Amount, &p.Currency, &p.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	p.PaymentID = paymentID.String
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// UpdatePaymentStatus records the gateway payment ID and new status
func (s *SQLiteStore) UpdatePaymentStatus(ctx context.Context, orderID, paymentID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payments SET payment_id = ?, status = ?, updated_at = ?
		WHERE order_id = ?`,
		paymentID, status, time.Now().Unix(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// CreateSubscription inserts a new subscription window
func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, payment_id, starts_at, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.PaymentID, sub.StartsAt.Unix(), sub.EndsAt.Unix(), sub.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// ActiveSubscription returns the user's latest unexpired subscription, or
// nil if there is none
func (s *SQLiteStore) ActiveSubscription(ctx context.Context, userID string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, payment_id, starts_at, ends_at, created_at
		FROM subscriptions
		WHERE user_id = ? AND ends_at > ?
		ORDER BY ends_at DESC LIMIT 1`,
		userID, time.Now().Unix())

	var sub Subscription
	var startsAt, endsAt, createdAt int64
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PaymentID, &startsAt, &endsAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub.StartsAt = time.Unix(startsAt, 0)
	sub.EndsAt = time.Unix(endsAt, 0)
	sub.CreatedAt = time.Unix(createdAt, 0)
	return &sub, nil
}
