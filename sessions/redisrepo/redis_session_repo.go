// Package redisrepo stores sessions in Redis.
//
// Layout, for a key prefix p:
//
//	p:session:<id>   JSON encoded sessions.Session
//	p:hash:<digest>  session id
//	p:expiry         sorted set of session ids scored by expiry (unix seconds)
//
// Keys carry a TTL of the remaining lifetime plus a retention window so that
// expired sessions stay visible to GetByTokenHash until swept.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/redis/go-redis/v9"
)

// DefaultRetention keeps expired sessions readable for a day before Redis evicts them.
const DefaultRetention = 24 * time.Hour

var _ sessions.Repo = (*Repo)(nil)

type Repo struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

func New(rdb redis.UniversalClient, prefix string) *Repo {
	if prefix == "" {
		prefix = "sessions"
	}
	return &Repo{rdb: rdb, prefix: prefix, retention: DefaultRetention}
}

func (r *Repo) sessionKey(id uuid.UUID) string {
	return r.prefix + ":session:" + id.String()
}

func (r *Repo) hashKey(tokenHash string) string {
	return r.prefix + ":hash:" + tokenHash
}

func (r *Repo) expiryKey() string {
	return r.prefix + ":expiry"
}

func (r *Repo) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(sessions.NowTimeFunc()) + r.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (r *Repo) Create(ctx context.Context, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ttl := r.ttl(session.ExpiresAt)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.ID), data, ttl)
		pipe.Set(ctx, r.hashKey(session.TokenHash), session.ID.String(), ttl)
		pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: float64(session.ExpiresAt.Unix()), Member: session.ID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *Repo) GetByTokenHash(ctx context.Context, tokenHash string) (*sessions.Session, error) {
	rawID, err := r.rdb.Get(ctx, r.hashKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token hash: %w", err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt session index for hash: %w", err)
	}
	return r.get(ctx, id)
}

func (r *Repo) GetValidByTokenHash(ctx context.Context, tokenHash string) (*sessions.Session, error) {
	session, err := r.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(sessions.NowTimeFunc()) {
		return nil, sessions.ErrNotFound
	}
	return session, nil
}

func (r *Repo) get(ctx context.Context, id uuid.UUID) (*sessions.Session, error) {
	data, err := r.rdb.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session sessions.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

func (r *Repo) ExtendExpiry(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	session, err := r.get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.ExpiresAt = expiresAt
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ttl := r.ttl(expiresAt)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(sessionID), data, ttl)
		pipe.Expire(ctx, r.hashKey(session.TokenHash), ttl)
		pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: float64(expiresAt.Unix()), Member: sessionID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, sessionID uuid.UUID) error {
	session, err := r.get(ctx, sessionID)
	if err != nil {
		return err
	}
	return r.remove(ctx, session)
}

func (r *Repo) remove(ctx context.Context, session *sessions.Session) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(session.ID), r.hashKey(session.TokenHash))
		pipe.ZRem(ctx, r.expiryKey(), session.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *Repo) DeleteExpired(ctx context.Context) (int64, error) {
	now := sessions.NowTimeFunc()
	ids, err := r.rdb.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	var removed int64
	for _, rawID := range ids {
		id, err := uuid.Parse(rawID)
		if err != nil {
			r.rdb.ZRem(ctx, r.expiryKey(), rawID)
			continue
		}
		session, err := r.get(ctx, id)
		if errors.Is(err, sessions.ErrNotFound) {
			r.rdb.ZRem(ctx, r.expiryKey(), rawID)
			continue
		}
		if err != nil {
			return removed, err
		}
		// Extended between the range query and now.
		if !session.IsExpired(now) {
			continue
		}
		if err := r.remove(ctx, session); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
