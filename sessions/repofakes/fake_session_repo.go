package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[uuid.UUID]*sessions.Session
	hashes   map[string]uuid.UUID // token hash to session id
	lock     sync.RWMutex

	// FailWith, when set, is returned from every call to simulate a store outage.
	FailWith error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[uuid.UUID]*sessions.Session),
		hashes:   make(map[string]uuid.UUID),
	}
}

func (sr *FakeSessionRepo) Create(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.FailWith != nil {
		return sr.FailWith
	}

	stored := *session
	sr.sessions[session.ID] = &stored
	sr.hashes[session.TokenHash] = session.ID
	return nil
}

func (sr *FakeSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	if sr.FailWith != nil {
		return nil, sr.FailWith
	}

	id, ok := sr.hashes[tokenHash]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	session, ok := sr.sessions[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (sr *FakeSessionRepo) GetValidByTokenHash(ctx context.Context, tokenHash string) (*sessions.Session, error) {
	session, err := sr.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(sessions.NowTimeFunc()) {
		return nil, sessions.ErrNotFound
	}
	return session, nil
}

func (sr *FakeSessionRepo) ExtendExpiry(_ context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.FailWith != nil {
		return sr.FailWith
	}

	session, ok := sr.sessions[sessionID]
	if !ok {
		return sessions.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	return nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, sessionID uuid.UUID) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.FailWith != nil {
		return sr.FailWith
	}

	session, ok := sr.sessions[sessionID]
	if !ok {
		return sessions.ErrNotFound
	}
	delete(sr.hashes, session.TokenHash)
	delete(sr.sessions, sessionID)
	return nil
}

func (sr *FakeSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.FailWith != nil {
		return 0, sr.FailWith
	}

	now := sessions.NowTimeFunc()
	var removed int64
	for id, session := range sr.sessions {
		if session.IsExpired(now) {
			delete(sr.hashes, session.TokenHash)
			delete(sr.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored sessions.
func (sr *FakeSessionRepo) Count() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.sessions)
}
