package file

import (
	"errors"
	"time"
)

// File statuses. EXPIRED is never written by request paths: expiry is
// derived from ExpiresAt on read so there is a single expiry model.
const (
	StatusActive  = "ACTIVE"
	StatusExpired = "EXPIRED"
	StatusDeleted = "DELETED"
)

// File is the central record of an upload. Immutable fields are set once
// at creation; only status, expiry, password and the download counter are
// mutated afterwards.
type File struct {
	ID               string     `json:"id"`
	OriginalName     string     `json:"originalName"`
	StorageKey       string     `json:"storageKey"`
	MimeType         string     `json:"mimeType"`
	SizeBytes        int64      `json:"sizeBytes"`
	OwnerID          string     `json:"ownerId,omitempty"` // empty for anonymous uploads
	Tier             string     `json:"tier"`
	PasswordHash     string     `json:"-"` // never expose in JSON
	Status           string     `json:"status"`
	UploadedAt       time.Time  `json:"uploadedAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	DownloadCount    int64      `json:"downloadCount"`
	LastDownloadedAt *time.Time `json:"lastDownloadedAt,omitempty"`
}

// IsExpired reports whether the file's expiry has passed.
func (f *File) IsExpired() bool {
	return time.Now().UTC().After(f.ExpiresAt)
}

// HasPassword reports whether downloads require a password.
func (f *File) HasPassword() bool {
	return f.PasswordHash != ""
}

// Resource-state and authorization errors. Ownership mismatches are
// indistinguishable from missing files so lifecycle calls cannot probe for
// record existence.
var (
	ErrFileNotFound     = errors.New("file not found")
	ErrFileInactive     = errors.New("file is no longer active")
	ErrFileExpired      = errors.New("file has expired")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrObjectMissing    = errors.New("file was never uploaded")
	ErrUnauthenticated  = errors.New("authentication required")
)

// Machine-readable error codes returned to clients.
const (
	CodeMissingFields         = "MISSING_FIELDS"
	CodeFileTooLarge          = "FILE_TOO_LARGE"
	CodePasswordNotAllowed    = "PASSWORD_NOT_ALLOWED"
	CodeInvalidExpiryHours    = "INVALID_EXPIRY_HOURS"
	CodeInvalidPasswordLength = "INVALID_PASSWORD_LENGTH"
	CodeInvalidHours          = "INVALID_HOURS"
	CodeNotFoundOrForbidden   = "NOT_FOUND_OR_FORBIDDEN"
)

// RequestError is a validation failure reported to the caller with a
// machine-readable code and a human message. Never retried.
type RequestError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *RequestError) Error() string {
	return e.Message
}

// UploadRequest is the logical upload-authorization input. CallerID is the
// authenticated user ID resolved by the auth middleware; when present the
// payload Tier claim is ignored.
type UploadRequest struct {
	Filename          string `json:"filename"`
	SizeBytes         int64  `json:"size"`
	ContentType       string `json:"type"`
	Tier              string `json:"tier"`
	Password          string `json:"password,omitempty"`
	CustomExpiryHours int    `json:"customExpiryHours,omitempty"`
	CallerID          string `json:"-"`
}

// UploadResult is returned to the caller, which performs the actual byte
// upload against PutURL.
type UploadResult struct {
	PutURL     string `json:"url"`
	StorageKey string `json:"key"`
	FileID     string `json:"fileId"`
	Tier       string `json:"tier"`
}

// DownloadResult carries the presigned GET URL for an authorized download.
type DownloadResult struct {
	URL  string `json:"url"`
	Tier string `json:"tier"`
}

// UserStats aggregates a user's dashboard analytics. Expiry is derived in
// SQL with the same ExpiresAt comparison the download path uses, so an
// unswept ACTIVE-but-expired row counts as expired here too.
type UserStats struct {
	TotalFiles     int64            `json:"totalFiles"`
	ActiveFiles    int64            `json:"activeFiles"`
	ExpiredFiles   int64            `json:"expiredFiles"`
	TotalBytes     int64            `json:"totalBytes"`
	TotalDownloads int64            `json:"totalDownloads"`
	DailyUploads   []DailyCount     `json:"dailyUploads"`
	TypeBreakdown  map[string]int64 `json:"typeBreakdown"`
}

// DailyCount is one day of upload activity.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD (UTC)
	Count int64  `json:"count"`
}
