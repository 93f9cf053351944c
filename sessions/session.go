package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Kind classifies a session. It controls the default lifetime and which gate accepts it.
type Kind string

const (
	KindWeb            Kind = "web"
	KindToolInvocation Kind = "mcp"
)

const (
	WebLifetime            = 24 * time.Hour
	ToolInvocationLifetime = 30 * 24 * time.Hour
)

// DefaultLifetime is used both at creation and for renewal-on-activity.
func (k Kind) DefaultLifetime() time.Duration {
	if k == KindToolInvocation {
		return ToolInvocationLifetime
	}
	return WebLifetime
}

func (k Kind) Valid() bool {
	return k == KindWeb || k == KindToolInvocation
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown session kind %q", s)
	}
	return k, nil
}

// Session is a stored login. TokenHash is the SHA-256 hex digest of the bearer
// credential and is the only lookup key; the credential itself is never stored.
type Session struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	TokenHash  string    `db:"token_hash" json:"token_hash"`
	Kind       Kind      `db:"session_type" json:"session_type"`
	ClientInfo *string   `db:"client_info" json:"client_info,omitempty"` // Free-text client descriptor, e.g. user agent
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// New returns a session with a fresh id and the kind's default lifetime.
// TokenHash is left empty; it is set once the bearer credential exists.
func New(userID uuid.UUID, kind Kind, clientInfo *string) *Session {
	now := NowTimeFunc().UTC()
	return &Session{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		ClientInfo: clientInfo,
		ExpiresAt:  now.Add(kind.DefaultLifetime()),
		CreatedAt:  now,
	}
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// HashToken returns the lowercase hex SHA-256 digest of a bearer credential.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
