package redisrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/sessions/redisrepo"
	"github.com/jrsteele09/go-task-auth/sessions/sessionstest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisRepo_Contract(t *testing.T) {
	sessionstest.RunRepoContract(t, func(t *testing.T) sessions.Repo {
		_, rdb := newTestRedis(t)
		return redisrepo.New(rdb, "test")
	})
}

func TestRedisRepo_KeysCarryTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := redisrepo.New(rdb, "ttl")
	ctx := context.Background()

	s := sessions.New(uuid.New(), sessions.KindWeb, nil)
	s.TokenHash = sessions.HashToken("ttl-token")
	require.NoError(t, repo.Create(ctx, s))

	ttl := mr.TTL("ttl:session:" + s.ID.String())
	require.Greater(t, ttl, sessions.WebLifetime)
	require.LessOrEqual(t, ttl, sessions.WebLifetime+redisrepo.DefaultRetention)
	require.Equal(t, s.ID.String(), mustGet(t, mr, "ttl:hash:"+s.TokenHash))
}

func TestRedisRepo_StoreOutage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := redisrepo.New(rdb, "down")
	mr.Close()

	_, err := repo.GetValidByTokenHash(context.Background(), sessions.HashToken("x"))
	require.Error(t, err)
	require.NotErrorIs(t, err, sessions.ErrNotFound)
}

func TestRedisRepo_DeleteExpiredSkipsExtended(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := redisrepo.New(rdb, "ext")
	ctx := context.Background()

	s := sessions.New(uuid.New(), sessions.KindWeb, nil)
	s.TokenHash = sessions.HashToken("ext-token")
	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, repo.ExtendExpiry(ctx, s.ID, time.Now().Add(time.Hour)))

	removed, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
