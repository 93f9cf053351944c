package postgresrepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	apperrors "github.com/jrsteele09/go-task-auth/internal/errors"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/lib/pq"
)

// Schema creates the users table. Applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id                    UUID PRIMARY KEY,
	email                 TEXT NOT NULL UNIQUE,
	display_name          TEXT NOT NULL DEFAULT '',
	password_hash         TEXT NOT NULL DEFAULT '',
	is_whitelisted        BOOLEAN NOT NULL DEFAULT FALSE,
	encrypted_credential  TEXT NOT NULL DEFAULT '',
	date_joined           TIMESTAMPTZ NOT NULL,
	last_authenticated_at TIMESTAMPTZ
);`

const userColumns = `id, email, display_name, password_hash, is_whitelisted, encrypted_credential, date_joined, last_authenticated_at`

// uniqueViolation is the PostgreSQL error code for a unique constraint failure.
const uniqueViolation = "23505"

var _ users.UserRepo = (*userRepository)(nil)

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sqlx.DB) users.UserRepo {
	return &userRepository{db: db}
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}
	return nil
}

func (r *userRepository) Create(ctx context.Context, user *users.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :display_name, :password_hash, :is_whitelisted, :encrypted_credential, :date_joined, :last_authenticated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		var pqErr *pq.Error
		if apperrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (*users.User, error) {
	var user users.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) UpdateLastAuthenticated(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET last_authenticated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last authenticated: %w", err)
	}
	return requireRow(result)
}

func (r *userRepository) SetEncryptedCredential(ctx context.Context, id uuid.UUID, encrypted string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET encrypted_credential = $2 WHERE id = $1`, id, encrypted)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return users.ErrNotFound
	}
	return nil
}
