package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerSecond defines the maximum sustained request rate per key
	RequestsPerSecond float64
	// KeyExtractor extracts the key for rate limiting (client IP by default)
	KeyExtractor func(*http.Request) string
	// SkipPaths contains paths that should not be rate limited
	SkipPaths []string
}

// DefaultRateLimitConfig covers the general API surface
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 100.0,
		KeyExtractor:      IPKeyExtractor,
		SkipPaths:         []string{"/health", "/metrics"},
	}
}

// StrictRateLimitConfig throttles endpoints that accept password guesses,
// keyed by client IP and path so one endpoint can't starve the others
func StrictRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 10.0,
		KeyExtractor: func(r *http.Request) string {
			return fmt.Sprintf("%s:%s", IPKeyExtractor(r), r.URL.Path)
		},
	}
}

// tokenBucket implements the classic refill-on-access token bucket
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// RateLimiter tracks per-key token buckets with periodic cleanup
type RateLimiter struct {
	buckets map[string]*tokenBucket
	mu      sync.Mutex
}

// NewRateLimiter creates a limiter and starts its cleanup routine
func NewRateLimiter() *RateLimiter {
	l := &RateLimiter{buckets: make(map[string]*tokenBucket)}
	go l.cleanupRoutine()
	return l
}

// Allow consumes a token for the key, creating the bucket on first use
func (l *RateLimiter) Allow(key string, rate float64) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &tokenBucket{
			tokens:     rate,
			capacity:   rate,
			refillRate: rate,
			lastRefill: time.Now(),
		}
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.allow()
}

func (l *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, bucket := range l.buckets {
			bucket.mu.Lock()
			if now.Sub(bucket.lastRefill) > time.Hour {
				delete(l.buckets, key)
			}
			bucket.mu.Unlock()
		}
		l.mu.Unlock()
	}
}

// RateLimit returns a rate limiting middleware with default configuration
func RateLimit() func(http.Handler) http.Handler {
	return RateLimitWithConfig(DefaultRateLimitConfig())
}

// RateLimitWithConfig returns a rate limiting middleware with custom configuration
func RateLimitWithConfig(config *RateLimitConfig) func(http.Handler) http.Handler {
	limiter := NewRateLimiter()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skipPath := range config.SkipPaths {
				if r.URL.Path == skipPath {
					next.ServeHTTP(w, r)
					return
				}
			}

			key := config.KeyExtractor(r)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", config.RequestsPerSecond))

			if !limiter.Allow(key, config.RequestsPerSecond) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TrustedProxies holds additional trusted proxy IPs/CIDRs beyond private
// networks. RFC 1918 ranges and loopback are always trusted; add entries
// here only for public proxy IPs (e.g. CDN ranges).
var TrustedProxies []string

var privateNetworks []*net.IPNet

func init() {
	privateCIDRs := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"::1/128",
		"fc00::/7",
	}
	for _, cidr := range privateCIDRs {
		_, network, _ := net.ParseCIDR(cidr)
		privateNetworks = append(privateNetworks, network)
	}
}

// IPKeyExtractor extracts the real client IP address as the rate limiting
// key. Forwarding headers are honored only when the direct connection
// comes from a private network or an explicitly trusted proxy.
func IPKeyExtractor(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if isTrustedProxy(remoteIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// X-Forwarded-For is comma-separated: client, proxy1, proxy2
			parts := strings.SplitN(xff, ",", 2)
			if clientIP := strings.TrimSpace(parts[0]); clientIP != "" {
				return clientIP
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	return remoteIP
}

// stripPort removes the port from an address like "192.168.1.1:12345"
func stripPort(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		// Don't strip part of a bare IPv6 address
		if bracketIdx := strings.LastIndex(addr, "]"); bracketIdx != -1 {
			if idx > bracketIdx {
				return addr[:idx]
			}
			return addr
		}
		return addr[:idx]
	}
	return addr
}

// isTrustedProxy checks if the IP is a private network address or in the
// explicit trusted list
func isTrustedProxy(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP != nil {
		for _, network := range privateNetworks {
			if network.Contains(parsedIP) {
				return true
			}
		}
	}

	for _, trusted := range TrustedProxies {
		if strings.Contains(trusted, "/") {
			_, network, err := net.ParseCIDR(trusted)
			if err == nil && parsedIP != nil && network.Contains(parsedIP) {
				return true
			}
		} else if trusted == ip {
			return true
		}
	}
	return false
}
