package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-task-auth/sessions"
	_ "github.com/lib/pq"
)

// Schema creates the sessions table. Applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           UUID PRIMARY KEY,
	user_id      UUID NOT NULL,
	token_hash   TEXT NOT NULL UNIQUE,
	session_type TEXT NOT NULL CHECK (session_type IN ('web', 'mcp')),
	client_info  TEXT,
	expires_at   TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);`

const sessionColumns = `id, user_id, token_hash, session_type, client_info, expires_at, created_at`

var _ sessions.Repo = (*sessionRepository)(nil)

type sessionRepository struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL using a lib/pq connection string.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) sessions.Repo {
	return &sessionRepository{db: db}
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate sessions table: %w", err)
	}
	return nil
}

// Create inserts a new session into the database
func (r *sessionRepository) Create(ctx context.Context, session *sessions.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (:id, :user_id, :token_hash, :session_type, :client_info, :expires_at, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash regardless of expiry
func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*sessions.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`

	var session sessions.Session
	if err := r.db.GetContext(ctx, &session, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sessions.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session by token hash: %w", err)
	}
	return &session, nil
}

// GetValidByTokenHash retrieves a session by its token hash if it has not expired
func (r *sessionRepository) GetValidByTokenHash(ctx context.Context, tokenHash string) (*sessions.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1 AND expires_at > $2`

	var session sessions.Session
	if err := r.db.GetContext(ctx, &session, query, tokenHash, sessions.NowTimeFunc()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sessions.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get valid session by token hash: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) ExtendExpiry(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET expires_at = $2 WHERE id = $1`, sessionID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return requireRow(result)
}

// Delete removes a session from the database by ID
func (r *sessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireRow(result)
}

// DeleteExpired removes all expired sessions from the database
func (r *sessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, sessions.NowTimeFunc())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sessions.ErrNotFound
	}
	return nil
}
