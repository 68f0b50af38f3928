package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/candyshare/candyshare/internal/tier"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager handles user accounts and tier membership
type Manager interface {
	// SignIn finds or creates the user for a verified OAuth identity and
	// upserts the provider account link.
	SignIn(ctx context.Context, req SignInRequest) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)

	// UpdateTier changes a caller's own tier. Downgrades are rejected, and
	// pro is only reachable through a completed payment (the payment
	// manager calls GrantPro directly).
	UpdateTier(ctx context.Context, callerID, targetID, tierID string) (*User, error)

	// GrantPro upgrades a user after a verified payment.
	GrantPro(ctx context.Context, userID string) error

	DeleteUser(ctx context.Context, callerID, targetID string) error

	// UserTier implements the file manager's tier resolution.
	UserTier(ctx context.Context, userID string) (string, error)
}

type userManager struct {
	store Store
	tiers tier.Table
}

// NewManager creates a new user manager
func NewManager(store Store, tiers tier.Table) Manager {
	return &userManager{store: store, tiers: tiers}
}

// SignIn resolves a verified OAuth identity to a local user, creating one
// with the free tier on first sign-in.
func (m *userManager) SignIn(ctx context.Context, req SignInRequest) (*User, error) {
	if req.Email == "" || req.Provider == "" || req.ProviderAccountID == "" {
		return nil, fmt.Errorf("email, provider and providerAccountId are required")
	}

	u, err := m.store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, ErrUserNotFound) {
		now := time.Now().UTC()
		u = &User{
			ID:        uuid.New().String(),
			Email:     req.Email,
			Name:      req.Name,
			Image:     req.Image,
			Tier:      tier.Free,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.store.CreateUser(ctx, u); err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"user_id":  u.ID,
			"provider": req.Provider,
		}).Info("New user created")
	} else if err != nil {
		return nil, err
	}

	account := &Account{
		ID:                uuid.New().String(),
		UserID:            u.ID,
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
		AccessToken:       req.AccessToken,
		RefreshToken:      req.RefreshToken,
		ExpiresAt:         req.ExpiresAt,
		TokenType:         req.TokenType,
		Scope:             req.Scope,
		IDToken:           req.IDToken,
	}
	if err := m.store.UpsertAccount(ctx, account); err != nil {
		return nil, err
	}

	return u, nil
}

// GetUser retrieves a user by ID
func (m *userManager) GetUser(ctx context.Context, id string) (*User, error) {
	return m.store.GetUser(ctx, id)
}

// UpdateTier changes a user's tier with upgrade-only semantics
func (m *userManager) UpdateTier(ctx context.Context, callerID, targetID, tierID string) (*User, error) {
	if !m.tiers.Known(tierID) {
		return nil, ErrInvalidTier
	}
	if callerID != targetID {
		return nil, ErrForbidden
	}

	current, err := m.store.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if tier.Rank(tierID) < tier.Rank(current.Tier) {
		return nil, ErrTierDowngrade
	}
	if tierID == tier.Pro && current.Tier != tier.Pro {
		return nil, ErrPaymentRequired
	}

	if err := m.store.UpdateTier(ctx, targetID, tierID); err != nil {
		return nil, err
	}

	return m.store.GetUser(ctx, targetID)
}

// GrantPro upgrades a user to pro after payment verification
func (m *userManager) GrantPro(ctx context.Context, userID string) error {
	if err := m.store.UpdateTier(ctx, userID, tier.Pro); err != nil {
		return err
	}

	logrus.WithField("user_id", userID).Info("User upgraded to pro")
	return nil
}

// DeleteUser removes a user account and its provider links
func (m *userManager) DeleteUser(ctx context.Context, callerID, targetID string) error {
	if callerID != targetID {
		return ErrForbidden
	}
	return m.store.DeleteUser(ctx, targetID)
}

// UserTier resolves a user's stored tier for upload authorization
func (m *userManager) UserTier(ctx context.Context, userID string) (string, error) {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Tier, nil
}
