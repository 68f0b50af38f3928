package file

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/candyshare/candyshare/internal/blob"
	"github.com/candyshare/candyshare/internal/tier"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted file password.
const MinPasswordLength = 4

// TierResolver resolves an authenticated caller to their stored tier.
// Implemented by the user manager.
type TierResolver interface {
	UserTier(ctx context.Context, userID string) (string, error)
}

// Manager handles upload/download authorization and file lifecycle
type Manager interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	Download(ctx context.Context, fileID, password string) (*DownloadResult, error)

	Unlist(ctx context.Context, fileID, ownerID string) error
	ExtendExpiry(ctx context.Context, fileID, ownerID string, additionalHours int) error
	SetPassword(ctx context.Context, fileID, ownerID, password string) error
	RemovePassword(ctx context.Context, fileID, ownerID string) error

	ListUserFiles(ctx context.Context, ownerID string, page, limit int) ([]*File, int64, error)
	UserStats(ctx context.Context, ownerID string) (*UserStats, error)
}

// fileManager implements Manager
type fileManager struct {
	store     Store
	presigner blob.Presigner
	tiers     tier.Table
	users     TierResolver
}

// NewManager creates a new file manager. The tier table is constructed
// once at process start and never mutated.
func NewManager(store Store, presigner blob.Presigner, tiers tier.Table, users TierResolver) Manager {
	return &fileManager{
		store:     store,
		presigner: presigner,
		tiers:     tiers,
		users:     users,
	}
}

// Upload validates an upload request against the caller's tier and
// registers the file record. The byte upload itself happens client-side
// against the returned presigned PUT URL.
func (m *fileManager) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Filename == "" || req.SizeBytes <= 0 || req.ContentType == "" {
		return nil, &RequestError{
			Code:    CodeMissingFields,
			Message: "Missing required fields",
		}
	}

	effectiveTier, err := m.resolveEffectiveTier(ctx, req)
	if err != nil {
		return nil, err
	}
	policy := m.tiers.Resolve(effectiveTier)

	if req.SizeBytes > policy.MaxSizeBytes {
		return nil, &RequestError{
			Code: CodeFileTooLarge,
			Message: fmt.Sprintf("File too large. Max size for %s tier: %s",
				policy.ID, humanize.IBytes(uint64(policy.MaxSizeBytes))),
			Details: map[string]interface{}{
				"fileSizeMB": float64(req.SizeBytes) / (1024 * 1024),
				"maxSizeMB":  policy.MaxSizeBytes / (1024 * 1024),
			},
		}
	}

	if req.Password != "" && !policy.PasswordAllowed {
		return nil, &RequestError{
			Code:    CodePasswordNotAllowed,
			Message: fmt.Sprintf("Password protection not available for %s tier", policy.ID),
		}
	}

	expiryHours := policy.DefaultExpiryHours
	if req.CustomExpiryHours != 0 {
		if !policy.CustomExpiryAllowed {
			return nil, &RequestError{
				Code:    CodeInvalidExpiryHours,
				Message: fmt.Sprintf("Custom expiry not available for %s tier", policy.ID),
				Details: map[string]interface{}{
					"provided": req.CustomExpiryHours,
					"min":      policy.MinExpiryHours,
					"max":      policy.MaxExpiryHours,
				},
			}
		}
		if req.CustomExpiryHours < policy.MinExpiryHours || req.CustomExpiryHours > policy.MaxExpiryHours {
			return nil, &RequestError{
				Code: CodeInvalidExpiryHours,
				Message: fmt.Sprintf("Expiry must be between %d and %d hours",
					policy.MinExpiryHours, policy.MaxExpiryHours),
				Details: map[string]interface{}{
					"provided": req.CustomExpiryHours,
					"min":      policy.MinExpiryHours,
					"max":      policy.MaxExpiryHours,
				},
			}
		}
		expiryHours = req.CustomExpiryHours
	}

	now := time.Now().UTC()
	key := storageKey(effectiveTier, req.Filename, now)

	putURL, err := m.presigner.PresignPut(ctx, key, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	var passwordHash string
	if req.Password != "" {
		passwordHash, err = HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	f := &File{
		ID:           uuid.New().String(),
		OriginalName: req.Filename,
		StorageKey:   key,
		MimeType:     req.ContentType,
		SizeBytes:    req.SizeBytes,
		OwnerID:      req.CallerID,
		Tier:         effectiveTier,
		PasswordHash: passwordHash,
		Status:       StatusActive,
		UploadedAt:   now,
		ExpiresAt:    now.Add(time.Duration(expiryHours) * time.Hour),
	}

	if err := m.store.CreateFile(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"file_id": f.ID,
		"tier":    effectiveTier,
		"size":    humanize.IBytes(uint64(req.SizeBytes)),
		"expires": f.ExpiresAt,
	}).Info("Upload authorized")

	return &UploadResult{
		PutURL:     putURL,
		StorageKey: key,
		FileID:     f.ID,
		Tier:       effectiveTier,
	}, nil
}

// resolveEffectiveTier applies the trust boundary: an authenticated
// caller's tier comes from the database and the payload claim is ignored;
// unauthenticated claims are self-declared and fail closed.
func (m *fileManager) resolveEffectiveTier(ctx context.Context, req UploadRequest) (string, error) {
	if req.CallerID == "" {
		if req.Tier == "" {
			return tier.Anonymous, nil
		}
		return m.tiers.Resolve(req.Tier).ID, nil
	}

	userTier, err := m.users.UserTier(ctx, req.CallerID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller tier: %w", err)
	}
	return m.tiers.Resolve(userTier).ID, nil
}

// Download validates download eligibility and returns a presigned GET URL.
// Checks are ordered so each failure mode is distinct: not found, inactive,
// expired, password gate, missing blob.
func (m *fileManager) Download(ctx context.Context, fileID, password string) (*DownloadResult, error) {
	f, err := m.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if f.Status != StatusActive {
		return nil, ErrFileInactive
	}

	if f.IsExpired() {
		return nil, ErrFileExpired
	}

	if f.HasPassword() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if !VerifyPassword(password, f.PasswordHash) {
			return nil, ErrInvalidPassword
		}
	}

	// A record can point at a key that was never populated when the client
	// abandoned the upload after authorization.
	exists, err := m.presigner.Exists(ctx, f.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check object: %w", err)
	}
	if !exists {
		return nil, ErrObjectMissing
	}

	if err := m.store.RecordDownload(ctx, f.ID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to record download: %w", err)
	}

	url, err := m.presigner.PresignGet(ctx, f.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"file_id": f.ID,
		"tier":    f.Tier,
	}).Info("Download authorized")

	return &DownloadResult{URL: url, Tier: f.Tier}, nil
}

// Unlist soft-deletes a file. Irreversible through this API.
func (m *fileManager) Unlist(ctx context.Context, fileID, ownerID string) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	return m.store.MarkDeleted(ctx, fileID, ownerID)
}

// ExtendExpiry pushes the expiry out by additionalHours. The new expiry is
// re-validated against the tier's ceiling measured from now, matching the
// bound enforced at upload time.
func (m *fileManager) ExtendExpiry(ctx context.Context, fileID, ownerID string, additionalHours int) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	if additionalHours <= 0 {
		return &RequestError{
			Code:    CodeInvalidHours,
			Message: "Additional hours must be positive",
			Details: map[string]interface{}{"provided": additionalHours},
		}
	}

	f, err := m.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.OwnerID == "" || f.OwnerID != ownerID {
		return ErrFileNotFound
	}

	policy := m.tiers.Resolve(f.Tier)
	newExpiry := f.ExpiresAt.Add(time.Duration(additionalHours) * time.Hour)
	ceiling := time.Now().UTC().Add(time.Duration(policy.MaxExpiryHours) * time.Hour)
	if newExpiry.After(ceiling) {
		return &RequestError{
			Code: CodeInvalidHours,
			Message: fmt.Sprintf("Expiry cannot exceed %d hours from now for %s tier",
				policy.MaxExpiryHours, policy.ID),
			Details: map[string]interface{}{
				"provided": additionalHours,
				"max":      policy.MaxExpiryHours,
			},
		}
	}

	// The ownership predicate is baked into the update as well, closing the
	// window between the read above and the write.
	return m.store.ExtendExpiry(ctx, fileID, ownerID, newExpiry)
}

// SetPassword hashes and stores a new password, overwriting any existing
// one. The file's tier must allow password protection.
func (m *fileManager) SetPassword(ctx context.Context, fileID, ownerID, password string) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	if len(password) < MinPasswordLength {
		return &RequestError{
			Code:    CodeInvalidPasswordLength,
			Message: fmt.Sprintf("Password must be at least %d characters", MinPasswordLength),
			Details: map[string]interface{}{"minLength": MinPasswordLength},
		}
	}

	f, err := m.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.OwnerID == "" || f.OwnerID != ownerID {
		return ErrFileNotFound
	}
	if !m.tiers.Resolve(f.Tier).PasswordAllowed {
		return &RequestError{
			Code:    CodePasswordNotAllowed,
			Message: fmt.Sprintf("Password protection not available for %s tier", f.Tier),
		}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return m.store.SetPasswordHash(ctx, fileID, ownerID, hash)
}

// RemovePassword clears password protection. Idempotent: removing a
// password that is not set succeeds.
func (m *fileManager) RemovePassword(ctx context.Context, fileID, ownerID string) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	return m.store.ClearPassword(ctx, fileID, ownerID)
}

// ListUserFiles returns one page of a user's files plus the total count
func (m *fileManager) ListUserFiles(ctx context.Context, ownerID string, page, limit int) ([]*File, int64, error) {
	if ownerID == "" {
		return nil, 0, ErrUnauthenticated
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	files, err := m.store.ListByOwner(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	total, err := m.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	return files, total, nil
}

// UserStats returns dashboard aggregates for a user
func (m *fileManager) UserStats(ctx context.Context, ownerID string) (*UserStats, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return m.store.OwnerStats(ctx, ownerID, time.Now().UTC())
}

// HashPassword hashes a file password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifyPassword verifies a password against a bcrypt hash
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// storageKey builds a collision-resistant key namespaced by tier so the
// storage layout stays auditable.
func storageKey(tierID, filename string, now time.Time) string {
	return fmt.Sprintf("uploads/%s/%d_%s", tierID, now.UnixMilli(), sanitizeFilename(filename))
}

// sanitizeFilename strips path separators and whitespace from the original
// name before it becomes part of an object key
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", "#", "_", "?", "_")
	name = replacer.Replace(name)
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	return name
}
