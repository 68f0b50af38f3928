package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Logging returns a middleware that logs HTTP requests
func Logging() func(http.Handler) http.Handler {
	return LoggingWithSkipPaths([]string{"/health", "/metrics"})
}

// LoggingWithSkipPaths returns a request logging middleware that ignores
// the given paths
func LoggingWithSkipPaths(skipPaths []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range skipPaths {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			wrapped := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			logrus.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.size,
				"remote_ip":   IPKeyExtractor(r),
				"request_id":  GetRequestID(r.Context()),
				"user_agent":  r.UserAgent(),
			}).Info("HTTP request")
		})
	}
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
// and response size
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	size       int64
	written    bool
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += int64(n)
	return n, err
}
