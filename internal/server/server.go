package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/candyshare/candyshare/internal/auth"
	"github.com/candyshare/candyshare/internal/blob"
	"github.com/candyshare/candyshare/internal/config"
	"github.com/candyshare/candyshare/internal/file"
	"github.com/candyshare/candyshare/internal/lifecycle"
	"github.com/candyshare/candyshare/internal/metrics"
	"github.com/candyshare/candyshare/internal/middleware"
	"github.com/candyshare/candyshare/internal/payment"
	"github.com/candyshare/candyshare/internal/tier"
	"github.com/candyshare/candyshare/internal/user"
)

// Server represents the CandyShare server
type Server struct {
	config     *config.Config
	httpServer *http.Server
	db         *sql.DB

	files    file.Manager
	users    user.Manager
	payments payment.Manager

	sessions *auth.Sessions
	oauth    *auth.OAuthProvider

	metrics         *metrics.Registry
	lifecycleWorker *lifecycle.Worker
	startTime       time.Time
}

// New creates a new CandyShare server
func New(cfg *config.Config) (*Server, error) {
	dbPath := filepath.Join(cfg.DataDir, "candyshare.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	fileStore, err := file.NewSQLiteStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create file store: %w", err)
	}
	userStore, err := user.NewSQLiteStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}
	paymentStore, err := payment.NewSQLiteStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment store: %w", err)
	}

	presigner, err := blob.NewS3Presigner(cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob presigner: %w", err)
	}

	tiers := tier.Default()
	userManager := user.NewManager(userStore, tiers)
	fileManager := file.NewManager(fileStore, presigner, tiers, userManager)
	paymentManager := payment.NewManager(paymentStore, payment.NewGateway(cfg.Payment), userManager)

	metricsRegistry := metrics.NewRegistry(cfg.DataDir)

	lifecycleWorker := lifecycle.NewWorker(
		fileStore,
		presigner,
		metricsRegistry.PurgedTotal,
		time.Duration(cfg.Lifecycle.GracePeriodHours)*time.Hour,
	)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := &Server{
		config:          cfg,
		httpServer:      httpServer,
		db:              db,
		files:           fileManager,
		users:           userManager,
		payments:        paymentManager,
		sessions:        auth.NewSessions(cfg.Auth.JWTSecret),
		oauth:           auth.NewOAuthProvider(cfg.Auth.OAuth),
		metrics:         metricsRegistry,
		lifecycleWorker: lifecycleWorker,
		startTime:       time.Now(),
	}

	server.httpServer.Handler = handlers.RecoveryHandler()(server.router())

	return server, nil
}

// Start starts the CandyShare server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"address":  s.config.Listen,
		"data_dir": s.config.DataDir,
	}).Info("Starting CandyShare server")

	interval := time.Duration(s.config.Lifecycle.IntervalMinutes) * time.Minute
	s.lifecycleWorker.Start(ctx, interval)

	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("HTTP server error")
		}
	}()

	<-ctx.Done()

	return s.shutdown()
}

func (s *Server) shutdown() error {
	logrus.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to shutdown HTTP server")
	}

	s.lifecycleWorker.Stop()

	if err := s.db.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close database")
	}

	return nil
}

// instrument records per-route request latency. The mux path template is
// used as the route label so file IDs don't explode cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)

		route := req.URL.Path
		if cur := mux.CurrentRoute(req); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.HTTPDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
	})
}

// router builds the full route table
func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())
	r.Use(middleware.RateLimit())
	r.Use(s.instrument)
	r.Use(auth.Middleware(s.sessions))

	// File sharing
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/file/upload-file", s.handleUpload).Methods("POST", "OPTIONS")
	api.HandleFunc("/file/list", s.handleListFiles).Methods("GET")
	api.HandleFunc("/file/stats", s.handleUserStats).Methods("GET")
	api.HandleFunc("/file/{id}/qr", s.handleQRCode).Methods("GET")
	api.HandleFunc("/file/{id}/unlist", s.handleUnlist).Methods("POST")
	api.HandleFunc("/file/{id}/extend", s.handleExtendExpiry).Methods("POST")
	api.HandleFunc("/file/{id}/password", s.handleSetPassword).Methods("POST")
	api.HandleFunc("/file/{id}/password", s.handleRemovePassword).Methods("DELETE")

	// Download is the password-carrying endpoint, so it gets the strict
	// rate limit on top of the global one
	download := api.PathPrefix("/file/file-url").Subrouter()
	download.Use(middleware.RateLimitWithConfig(middleware.StrictRateLimitConfig()))
	download.HandleFunc("/{id}", s.handleDownload).Methods("POST", "OPTIONS")

	// Auth
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods("GET")
	api.HandleFunc("/auth/callback", s.handleAuthCallback).Methods("GET")
	api.HandleFunc("/auth/me", s.handleCurrentUser).Methods("GET")

	// User account
	api.HandleFunc("/user/tier", s.handleUpdateTier).Methods("PATCH")
	api.HandleFunc("/user", s.handleDeleteUser).Methods("DELETE")

	// Payments
	api.HandleFunc("/payment/order", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/payment/verify", s.handleVerifyPayment).Methods("POST")
	api.HandleFunc("/payment/subscription", s.handleSubscription).Methods("GET")

	// Operational endpoints
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.config.Metrics.Enable {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.metrics.Handler()).Methods("GET")
	}

	return r
}
