package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/sessions"
)

// Claims is the signed payload. On the wire:
//
//	{"sub":"<user uuid>","session_id":"<session uuid>","session_type":"web|mcp","iat":<unix>,"exp":<unix>}
type Claims struct {
	SessionID   string        `json:"session_id"`
	SessionType sessions.Kind `json:"session_type"`
	jwt.RegisteredClaims
}

// UserID parses the subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed subject: %w", err)
	}
	return id, nil
}

// SessionUUID parses the session id.
func (c *Claims) SessionUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed session id: %w", err)
	}
	return id, nil
}
