package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	sessions := NewSessions("test-secret")

	token, err := sessions.Generate("user-1", "pro")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := sessions.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "pro", claims.Tier)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewSessions("secret-a").Generate("user-1", "free")
	require.NoError(t, err)

	_, err = NewSessions("secret-b").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	sessions := NewSessions("test-secret")

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := sessions.Validate(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestMiddlewareResolvesIdentity(t *testing.T) {
	sessions := NewSessions("test-secret")
	token, err := sessions.Generate("user-1", "free")
	require.NoError(t, err)

	var got *CallerIdentity
	handler := Middleware(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/file/list", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "free", got.Tier)
}

func TestMiddlewareAnonymousPassThrough(t *testing.T) {
	sessions := NewSessions("test-secret")

	cases := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic dXNlcjpwYXNz",
		"invalid token": "Bearer bogus",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			handler := Middleware(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				assert.Nil(t, FromContext(r.Context()))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/file/upload-file", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.True(t, called)
		})
	}
}

func TestFromContextEmpty(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}
