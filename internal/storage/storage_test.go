package storage_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/internal/config"
	"github.com/jrsteele09/go-task-auth/internal/storage"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		stores, err := storage.Open(ctx, config.Store{SessionStore: config.StoreMemory})
		require.NoError(t, err)
		defer stores.Close()
		require.NotNil(t, stores.Repos.Users)
		require.NotNil(t, stores.Repos.Sessions)
	})

	t.Run("redis", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		stores, err := storage.Open(ctx, config.Store{SessionStore: config.StoreRedis, RedisAddr: mr.Addr()})
		require.NoError(t, err)
		defer stores.Close()

		s := sessions.New(uuid.New(), sessions.KindWeb, nil)
		s.TokenHash = sessions.HashToken("raw")
		require.NoError(t, stores.Repos.Sessions.Create(ctx, s))
		require.NotEmpty(t, mr.Keys())
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		_, err = storage.Open(ctx, config.Store{SessionStore: config.StoreRedis, RedisAddr: addr})
		require.Error(t, err)
	})

	t.Run("postgres without url", func(t *testing.T) {
		_, err := storage.Open(ctx, config.Store{SessionStore: config.StorePostgres})
		require.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := storage.Open(ctx, config.Store{SessionStore: "etcd"})
		require.ErrorIs(t, err, storage.ErrUnknownStore)
	})
}
