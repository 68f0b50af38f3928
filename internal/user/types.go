package user

import (
	"errors"
	"time"
)

// Common user errors
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidTier     = errors.New("invalid tier")
	ErrTierDowngrade   = errors.New("cannot downgrade tier")
	ErrPaymentRequired = errors.New("payment required for pro upgrade")
	ErrForbidden       = errors.New("can only modify your own account")
)

// User is an authenticated account created on first OAuth sign-in. The
// tier field determines the default upload tier for authenticated uploads.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Image     string    `json:"image,omitempty"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Account links a user to an OAuth provider identity. One row per
// (provider, providerAccountID) pair, refreshed on every sign-in.
type Account struct {
	ID                string `json:"id"`
	UserID            string `json:"userId"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"providerAccountId"`
	AccessToken       string `json:"-"`
	RefreshToken      string `json:"-"`
	ExpiresAt         int64  `json:"expiresAt,omitempty"`
	TokenType         string `json:"tokenType,omitempty"`
	Scope             string `json:"scope,omitempty"`
	IDToken           string `json:"-"`
}

// SignInRequest carries the verified identity tuple produced by the OAuth
// collaborator plus the provider tokens to persist.
type SignInRequest struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Image             string `json:"image"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"providerAccountId"`
	AccessToken       string `json:"accessToken,omitempty"`
	RefreshToken      string `json:"refreshToken,omitempty"`
	ExpiresAt         int64  `json:"expiresAt,omitempty"`
	TokenType         string `json:"tokenType,omitempty"`
	Scope             string `json:"scope,omitempty"`
	IDToken           string `json:"idToken,omitempty"`
}
