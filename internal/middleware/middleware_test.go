package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// Test Logging Middleware

func TestLogging(t *testing.T) {
	handler := Logging()(okHandler())

	req := httptest.NewRequest("GET", "/api/file/list", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestResponseWriterWrapper(t *testing.T) {
	t.Run("WriteHeader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		wrapper := &responseWriterWrapper{ResponseWriter: rec}

		wrapper.WriteHeader(http.StatusNotFound)
		wrapper.WriteHeader(http.StatusOK) // second call is ignored

		assert.Equal(t, http.StatusNotFound, wrapper.statusCode)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Write with implicit 200", func(t *testing.T) {
		rec := httptest.NewRecorder()
		wrapper := &responseWriterWrapper{ResponseWriter: rec}

		n, err := wrapper.Write([]byte("test data"))

		assert.NoError(t, err)
		assert.Equal(t, 9, n)
		assert.Equal(t, 200, wrapper.statusCode)
		assert.Equal(t, int64(9), wrapper.size)
	})
}

// Test Request ID Middleware

func TestRequestID(t *testing.T) {
	t.Run("Generates an ID", func(t *testing.T) {
		var got string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest("GET", "/api/file/list", nil)
		req.RemoteAddr = "203.0.113.10:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.NotEmpty(t, got)
		assert.Equal(t, got, rec.Header().Get("X-Request-ID"))
	})

	t.Run("Reuses ID from trusted proxy", func(t *testing.T) {
		var got string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Request-ID", "upstream-id")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "upstream-id", got)
	})

	t.Run("Ignores ID from public client", func(t *testing.T) {
		var got string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "198.51.100.10:9999"
		req.Header.Set("X-Request-ID", "forged")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.NotEqual(t, "forged", got)
		assert.NotEmpty(t, got)
	})
}

// Test Rate Limit Middleware

func TestRateLimitAllowsWithinLimit(t *testing.T) {
	handler := RateLimit()(okHandler())

	req := httptest.NewRequest("GET", "/api/file/list", nil)
	req.RemoteAddr = "203.0.113.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitBlocksExcess(t *testing.T) {
	handler := RateLimitWithConfig(&RateLimitConfig{
		RequestsPerSecond: 2.0,
		KeyExtractor:      IPKeyExtractor,
	})(okHandler())

	req := httptest.NewRequest("GET", "/api/file/file-url/abc", nil)
	req.RemoteAddr = "203.0.113.2:1234"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimitSkipPaths(t *testing.T) {
	handler := RateLimitWithConfig(&RateLimitConfig{
		RequestsPerSecond: 1.0,
		KeyExtractor:      IPKeyExtractor,
		SkipPaths:         []string{"/health"},
	})(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.3:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitIsolatesKeys(t *testing.T) {
	handler := RateLimitWithConfig(&RateLimitConfig{
		RequestsPerSecond: 1.0,
		KeyExtractor:      IPKeyExtractor,
	})(okHandler())

	first := httptest.NewRequest("GET", "/", nil)
	first.RemoteAddr = "203.0.113.4:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Exhausted for the first IP
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different IP still gets through
	second := httptest.NewRequest("GET", "/", nil)
	second.RemoteAddr = "203.0.113.5:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStrictRateLimitConfigKeysByPath(t *testing.T) {
	config := StrictRateLimitConfig()
	assert.Equal(t, 10.0, config.RequestsPerSecond)

	req := httptest.NewRequest("POST", "/api/file/file-url/abc", nil)
	req.RemoteAddr = "203.0.113.6:1234"
	key := config.KeyExtractor(req)
	assert.Contains(t, key, "203.0.113.6")
	assert.Contains(t, key, "/api/file/file-url/abc")
}

func TestTokenBucket(t *testing.T) {
	t.Run("Consumes available token", func(t *testing.T) {
		bucket := &tokenBucket{tokens: 5.0, capacity: 5.0, refillRate: 1.0, lastRefill: time.Now()}
		assert.True(t, bucket.allow())
		assert.InDelta(t, 4.0, bucket.tokens, 0.01)
	})

	t.Run("Blocks when empty", func(t *testing.T) {
		bucket := &tokenBucket{tokens: 0.0, capacity: 5.0, refillRate: 1.0, lastRefill: time.Now()}
		assert.False(t, bucket.allow())
	})

	t.Run("Refills over time", func(t *testing.T) {
		bucket := &tokenBucket{
			tokens:     0.0,
			capacity:   5.0,
			refillRate: 2.0,
			lastRefill: time.Now().Add(-time.Second),
		}
		assert.True(t, bucket.allow())
		assert.InDelta(t, 1.0, bucket.tokens, 0.1)
	})

	t.Run("Caps at capacity", func(t *testing.T) {
		bucket := &tokenBucket{
			tokens:     3.0,
			capacity:   5.0,
			refillRate: 10.0,
			lastRefill: time.Now().Add(-time.Second),
		}
		bucket.allow()
		assert.LessOrEqual(t, bucket.tokens, 5.0)
	})
}

// Test IP extraction

func TestIPKeyExtractor(t *testing.T) {
	t.Run("Private proxy trusts X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.2")
		req.RemoteAddr = "10.0.0.1:1234"
		assert.Equal(t, "203.0.113.50", IPKeyExtractor(req))
	})

	t.Run("Private proxy trusts X-Real-IP", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Real-IP", "203.0.113.51")
		req.RemoteAddr = "192.168.1.1:8080"
		assert.Equal(t, "203.0.113.51", IPKeyExtractor(req))
	})

	t.Run("Public client cannot forge headers", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "8.8.8.8")
		req.RemoteAddr = "198.51.100.10:9999"
		assert.Equal(t, "198.51.100.10", IPKeyExtractor(req))
	})

	t.Run("No headers uses RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "203.0.113.10:1234"
		assert.Equal(t, "203.0.113.10", IPKeyExtractor(req))
	})

	t.Run("Explicit trusted public proxy", func(t *testing.T) {
		oldProxies := TrustedProxies
		TrustedProxies = []string{"104.16.0.0/12"}
		defer func() { TrustedProxies = oldProxies }()

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.99")
		req.RemoteAddr = "104.16.0.1:443"
		assert.Equal(t, "203.0.113.99", IPKeyExtractor(req))
	})
}

func TestStripPort(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"192.168.1.1:8080", "192.168.1.1"},
		{"192.168.1.1", "192.168.1.1"},
		{"[::1]:8080", "[::1]"},
		{"[::1]", "[::1]"},
		{"localhost:3000", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, stripPort(tt.addr))
	}
}

func TestIsTrustedProxy(t *testing.T) {
	assert.True(t, isTrustedProxy("10.0.0.1"))
	assert.True(t, isTrustedProxy("172.16.0.1"))
	assert.True(t, isTrustedProxy("192.168.0.1"))
	assert.True(t, isTrustedProxy("127.0.0.1"))
	assert.False(t, isTrustedProxy("8.8.8.8"))
	assert.False(t, isTrustedProxy("172.32.0.1"))
	assert.False(t, isTrustedProxy("not-an-ip"))
}

// Test CORS Middleware

func TestCORSAllowedOrigin(t *testing.T) {
	handler := CORS()(okHandler())

	req := httptest.NewRequest("GET", "/api/file/list", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	handler := CORSWithConfig(&CORSConfig{
		AllowedOrigins: []string{"https://candyshare.example.com"},
	})(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardPattern(t *testing.T) {
	handler := CORSWithConfig(&CORSConfig{
		AllowedOrigins: []string{"*.example.com"},
	})(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSWithConfig(&CORSConfig{
		AllowedOrigins: []string{"https://candyshare.example.com"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         "3600",
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for OPTIONS")
	}))

	req := httptest.NewRequest("OPTIONS", "/api/file/upload-file", nil)
	req.Header.Set("Origin", "https://candyshare.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}
