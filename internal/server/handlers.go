package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/candyshare/candyshare/internal/auth"
	"github.com/candyshare/candyshare/internal/file"
	"github.com/candyshare/candyshare/internal/payment"
	"github.com/candyshare/candyshare/internal/user"
)

// APIResponse is the envelope for every JSON endpoint
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code alongside the message
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	s.writeErrorDetails(w, statusCode, code, message, nil)
}

func (s *Server) writeErrorDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}})
	logrus.WithFields(logrus.Fields{
		"code":   code,
		"status": statusCode,
	}).Warn("API error")
}

// writeDomainError maps domain errors onto HTTP statuses and codes
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var reqErr *file.RequestError
	if errors.As(err, &reqErr) {
		status := http.StatusBadRequest
		if reqErr.Code == file.CodeFileTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeErrorDetails(w, status, reqErr.Code, reqErr.Message, reqErr.Details)
		return
	}

	switch {
	case errors.Is(err, file.ErrFileNotFound),
		errors.Is(err, file.ErrObjectMissing),
		errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, payment.ErrOrderNotFound):
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	case errors.Is(err, file.ErrFileInactive):
		s.writeError(w, http.StatusGone, "INACTIVE", "File is no longer active")
	case errors.Is(err, file.ErrFileExpired):
		s.writeError(w, http.StatusGone, "EXPIRED", "File has expired")
	case errors.Is(err, file.ErrPasswordRequired):
		s.writeError(w, http.StatusUnauthorized, "PASSWORD_REQUIRED", "This file is password protected")
	case errors.Is(err, file.ErrInvalidPassword):
		s.writeError(w, http.StatusUnauthorized, "INVALID_PASSWORD", "Invalid password")
	case errors.Is(err, file.ErrUnauthenticated):
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
	case errors.Is(err, user.ErrForbidden):
		s.writeError(w, http.StatusForbidden, "FORBIDDEN", "Not allowed")
	case errors.Is(err, user.ErrPaymentRequired):
		s.writeError(w, http.StatusPaymentRequired, "PAYMENT_REQUIRED", "Pro tier requires a completed payment")
	case errors.Is(err, user.ErrTierDowngrade):
		s.writeError(w, http.StatusBadRequest, "TIER_DOWNGRADE", "Tier downgrades are not allowed")
	case errors.Is(err, user.ErrInvalidTier):
		s.writeError(w, http.StatusBadRequest, "INVALID_TIER", "Unknown tier")
	case errors.Is(err, payment.ErrInvalidSignature):
		s.writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Payment signature verification failed")
	case errors.Is(err, payment.ErrAlreadyProcessed):
		s.writeError(w, http.StatusConflict, "ALREADY_PROCESSED", "Payment was already processed")
	default:
		logrus.WithError(err).Error("Internal error")
		s.writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
	}
}

// rejectionReason labels download failures for metrics
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, file.ErrFileNotFound):
		return "not_found"
	case errors.Is(err, file.ErrFileInactive):
		return "inactive"
	case errors.Is(err, file.ErrFileExpired):
		return "expired"
	case errors.Is(err, file.ErrPasswordRequired):
		return "password_required"
	case errors.Is(err, file.ErrInvalidPassword):
		return "invalid_password"
	case errors.Is(err, file.ErrObjectMissing):
		return "object_missing"
	default:
		return "error"
	}
}

// File handlers

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req file.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		req.CallerID = id.UserID
	}

	result, err := s.files.Upload(r.Context(), req)
	if err != nil {
		var reqErr *file.RequestError
		if errors.As(err, &reqErr) {
			s.metrics.UploadRejectedTotal.WithLabelValues(reqErr.Code).Inc()
		} else {
			s.metrics.UploadRejectedTotal.WithLabelValues("error").Inc()
		}
		s.writeDomainError(w, err)
		return
	}

	s.metrics.UploadsTotal.WithLabelValues(result.Tier).Inc()
	s.metrics.UploadBytesTotal.WithLabelValues(result.Tier).Add(float64(req.SizeBytes))
	s.writeJSON(w, result)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	var body struct {
		Password string `json:"password"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
			return
		}
	}

	result, err := s.files.Download(r.Context(), fileID, body.Password)
	if err != nil {
		s.metrics.DownloadRejectedTotal.WithLabelValues(rejectionReason(err)).Inc()
		s.writeDomainError(w, err)
		return
	}

	s.metrics.DownloadsTotal.WithLabelValues(result.Tier).Inc()
	s.writeJSON(w, result)
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	shareURL := s.config.PublicURL + "/f/" + fileID

	png, err := qrcode.Encode(shareURL, qrcode.Medium, 256)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL", "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) handleUnlist(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	if err := s.files.Unlist(r.Context(), mux.Vars(r)["id"], identity.UserID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"message": "File unlisted"})
}

func (s *Server) handleExtendExpiry(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	var body struct {
		Hours int `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	if err := s.files.ExtendExpiry(r.Context(), mux.Vars(r)["id"], identity.UserID, body.Hours); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"message": "Expiry extended"})
}

func (s *Server) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	if err := s.files.SetPassword(r.Context(), mux.Vars(r)["id"], identity.UserID, body.Password); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"message": "Password set"})
}

func (s *Server) handleRemovePassword(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	if err := s.files.RemovePassword(r.Context(), mux.Vars(r)["id"], identity.UserID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"message": "Password removed"})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	files, total, err := s.files.ListUserFiles(r.Context(), identity.UserID, page, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"files": files,
		"total": total,
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	stats, err := s.files.UserStats(r.Context(), identity.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, stats)
}

// Auth handlers

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !s.oauth.Enabled() {
		s.writeError(w, http.StatusServiceUnavailable, "OAUTH_DISABLED", "Sign-in is not configured")
		return
	}

	state := uuid.New().String()
	s.writeJSON(w, map[string]string{
		"url":   s.oauth.GetAuthURL(state),
		"state": state,
	})
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_CODE", "Authorization code is required")
		return
	}

	identity, token, err := s.oauth.ExchangeCode(r.Context(), code)
	if err != nil {
		logrus.WithError(err).Warn("OAuth code exchange failed")
		s.writeError(w, http.StatusUnauthorized, "OAUTH_FAILED", "Sign-in failed")
		return
	}

	signInReq := user.SignInRequest{
		Email:             identity.Email,
		Name:              identity.Name,
		Image:             identity.Image,
		Provider:          identity.Provider,
		ProviderAccountID: identity.ProviderAccountID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		TokenType:         token.TokenType,
	}
	if !token.Expiry.IsZero() {
		signInReq.ExpiresAt = token.Expiry.Unix()
	}

	u, err := s.users.SignIn(r.Context(), signInReq)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	session, err := s.sessions.Generate(u.ID, u.Tier)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.metrics.SignInsTotal.Inc()
	s.writeJSON(w, map[string]interface{}{
		"token": session,
		"user":  u,
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	u, err := s.users.GetUser(r.Context(), identity.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, u)
}

// User handlers

func (s *Server) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	var body struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	u, err := s.users.UpdateTier(r.Context(), identity.UserID, identity.UserID, body.Tier)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	if err := s.users.DeleteUser(r.Context(), identity.UserID, identity.UserID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"message": "Account deleted"})
}

// Payment handlers

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	order, err := s.payments.CreateProOrder(r.Context(), identity.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, order)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	var req payment.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	p, err := s.payments.VerifyPayment(r.Context(), identity.UserID, req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.metrics.UpgradesTotal.Inc()
	s.writeJSON(w, p)
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return
	}

	sub, err := s.payments.ActiveSubscription(r.Context(), identity.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"subscription": sub})
}

// Health

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", "Database unavailable")
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}
