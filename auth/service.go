package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/token"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/rs/zerolog/log"
)

// IssuedSession is a freshly created session and the bearer credential for it.
// Token is returned to the client once and never stored.
type IssuedSession struct {
	Token   string
	Session *sessions.Session
	Claims  *token.Claims
}

// Service creates and ends sessions.
type Service struct {
	tokens *token.Manager
	repos  Repos
}

func NewService(tokens *token.Manager, repos Repos) *Service {
	return &Service{tokens: tokens, repos: repos}
}

// IssueSession creates a session of kind for user and mints its signed token.
// Only the token's digest is persisted.
func (s *Service) IssueSession(ctx context.Context, user *users.User, kind sessions.Kind, clientInfo *string) (*IssuedSession, error) {
	session := sessions.New(user.ID, kind, clientInfo)
	raw, claims, err := s.tokens.Issue(user.ID, session.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("[IssueSession] %w", err)
	}
	session.TokenHash = sessions.HashToken(raw)
	session.CreatedAt = claims.IssuedAt.Time.UTC()
	session.ExpiresAt = claims.ExpiresAt.Time.UTC()

	if err := s.repos.Sessions.Create(ctx, session); err != nil {
		log.Err(err).Str("user_id", user.ID.String()).Msg("Failed to store session")
		return nil, fmt.Errorf("%w: create session: %v", ErrInternal, err)
	}
	return &IssuedSession{Token: raw, Session: session, Claims: claims}, nil
}

// Login verifies a password and issues a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string, kind sessions.Kind, clientInfo *string) (*IssuedSession, error) {
	user, err := s.repos.Users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		log.Err(err).Msg("Login: user lookup failed")
		return nil, fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}
	if user.PasswordHash == "" || !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrUnauthorized
	}
	if !user.IsWhitelisted {
		return nil, ErrNotWhitelisted
	}

	issued, err := s.IssueSession(ctx, user, kind, clientInfo)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Users.UpdateLastAuthenticated(ctx, user.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Login: failed to update last authenticated time")
	}
	log.Info().Str("user_id", user.ID.String()).Str("session_id", issued.Session.ID.String()).Str("session_type", string(kind)).Msg("Session issued")
	return issued, nil
}

// Logout deletes the session. An already-deleted session is not an error.
func (s *Service) Logout(ctx context.Context, session *sessions.Session) error {
	err := s.repos.Sessions.Delete(ctx, session.ID)
	if err != nil && !errors.Is(err, sessions.ErrNotFound) {
		return fmt.Errorf("%w: delete session: %v", ErrInternal, err)
	}
	return nil
}
