package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const (
	issuer        = "candyshare"
	sessionExpiry = 24 * time.Hour
)

// Claims are the session claims embedded in every bearer token
type Claims struct {
	UserID string `json:"uid"`
	Tier   string `json:"tier"`
	jwt.RegisteredClaims
}

// Sessions issues and validates signed session tokens
type Sessions struct {
	secret []byte
}

// NewSessions creates a session signer with the given secret
func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret)}
}

// Generate issues a session token for a signed-in user
func (s *Sessions) Generate(userID, tierID string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Tier:   tierID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token
func (s *Sessions) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
