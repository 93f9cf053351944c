package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc is overridable in tests
var NowTimeFunc = time.Now

// EphemeralToken is an in-memory grant of a raw tool token to a user.
type EphemeralToken struct {
	UserID    uuid.UUID
	ExpiresAt time.Time
}

func (e EphemeralToken) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// EphemeralTokens is the process-local tool token table. Lookups share a read
// lock; inserts, deletes and sweeps take the write lock.
type EphemeralTokens struct {
	tokens map[string]EphemeralToken
	mu     sync.RWMutex
}

func NewEphemeralTokens() *EphemeralTokens {
	return &EphemeralTokens{
		tokens: make(map[string]EphemeralToken),
	}
}

func (e *EphemeralTokens) Put(token string, userID uuid.UUID, expiresAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens[token] = EphemeralToken{UserID: userID, ExpiresAt: expiresAt}
}

// Lookup returns the entry for token if present and unexpired. Expired
// entries are left for the sweeper.
func (e *EphemeralTokens) Lookup(token string) (EphemeralToken, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.tokens[token]
	if !ok || entry.expired(NowTimeFunc()) {
		return EphemeralToken{}, false
	}
	return entry, true
}

func (e *EphemeralTokens) Delete(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tokens, token)
}

// Len reports the number of entries, expired ones included.
func (e *EphemeralTokens) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tokens)
}

// Sweep removes expired entries and returns how many were removed.
func (e *EphemeralTokens) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := NowTimeFunc()
	removed := 0
	for token, entry := range e.tokens {
		if entry.expired(now) {
			delete(e.tokens, token)
			removed++
		}
	}
	return removed
}

// StartSweeper sweeps every interval until ctx is done. The returned channel
// is closed once the sweeper has stopped.
func (e *EphemeralTokens) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := e.Sweep(); removed > 0 {
					log.Debug().Int("removed", removed).Msg("Expired tool tokens swept")
				}
			}
		}
	}()
	return done
}
