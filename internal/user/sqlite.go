package user

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/candyshare/candyshare/internal/tier"
)

// Store is the persistence contract for users and OAuth accounts
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateTier(ctx context.Context, id, tierID string) error
	DeleteUser(ctx context.Context, id string) error

	UpsertAccount(ctx context.Context, a *Account) error
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite user store
func NewSQLiteStore(db *sql.DB) (Store, error) {
	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		image TEXT,
		tier TEXT NOT NULL DEFAULT 'free',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		provider_account_id TEXT NOT NULL,
		access_token TEXT,
		refresh_token TEXT,
		expires_at INTEGER,
		token_type TEXT,
		scope TEXT,
		id_token TEXT,
		UNIQUE(provider, provider_account_id)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateUser inserts a new user
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, image, tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, nullString(u.Name), nullString(u.Image), u.Tier,
		u.CreatedAt.Unix(), u.UpdatedAt.Unix())

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, image, tier, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	return s.scanUser(row)
}

// GetUserByEmail retrieves a user by email
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, image, tier, created_at, updated_at
		FROM users WHERE email = ?
	`, email)
	return s.scanUser(row)
}

// UpdateTier sets a user's tier
func (s *SQLiteStore) UpdateTier(ctx context.Context, id, tierID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET tier = ?, updated_at = ? WHERE id = ?
	`, tierID, time.Now().UTC().Unix(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user; accounts cascade via foreign key
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpsertAccount creates or refreshes a provider account link
func (s *SQLiteStore) UpsertAccount(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, provider, provider_account_id, access_token, refresh_token, expires_at, token_type, scope, id_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, provider_account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			token_type = excluded.token_type,
			scope = excluded.scope,
			id_token = excluded.id_token
	`, a.ID, a.UserID, a.Provider, a.ProviderAccountID,
		nullString(a.AccessToken), nullString(a.RefreshToken), nullInt(a.ExpiresAt),
		nullString(a.TokenType), nullString(a.Scope), nullString(a.IDToken))

	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var name, image sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&u.ID, &u.Email, &name, &image, &u.Tier, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if name.Valid {
		u.Name = name.String
	}
	if image.Valid {
		u.Image = image.String
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	// Legacy rows with an unknown tier fall back to free
	if !tier.Default().Known(u.Tier) {
		u.Tier = tier.Free
	}

	return &u, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int64) interface{} {
	if i == 0 {
		return nil
	}
	return i
}
