package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "caller_identity"

// CallerIdentity is the resolved identity of an authenticated request.
type CallerIdentity struct {
	UserID string
	Tier   string
}

// Middleware resolves the bearer token into a caller identity. The
// identity is optional: anonymous requests pass through with no identity
// in context, and individual handlers decide whether to require one.
func Middleware(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := sessions.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				// Expired or garbage tokens demote the request to anonymous
				// rather than failing it; protected handlers reject later.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, &CallerIdentity{
				UserID: claims.UserID,
				Tier:   claims.Tier,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the caller identity, or nil for anonymous requests.
func FromContext(ctx context.Context) *CallerIdentity {
	id, _ := ctx.Value(identityKey).(*CallerIdentity)
	return id
}
