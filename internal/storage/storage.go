// Package storage opens the user and session stores selected by configuration.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/internal/config"
	sessionspg "github.com/jrsteele09/go-task-auth/sessions/postgresrepo"
	"github.com/jrsteele09/go-task-auth/sessions/redisrepo"
	fakesessionrepo "github.com/jrsteele09/go-task-auth/sessions/repofakes"
	userspg "github.com/jrsteele09/go-task-auth/users/postgresrepo"
	fakeuserrepo "github.com/jrsteele09/go-task-auth/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisKeyPrefix namespaces every session key written to Redis.
const RedisKeyPrefix = "task-auth"

var ErrUnknownStore = errors.New("unknown session store")

// Stores holds the opened repositories and the connections behind them.
type Stores struct {
	Repos   auth.Repos
	closers []func() error
}

// Open connects the stores named by cfg. Users live in PostgreSQL whenever a
// database URL is configured and in memory otherwise.
func Open(ctx context.Context, cfg config.StoreConfig) (*Stores, error) {
	s := &Stores{}

	var db *sqlx.DB
	if cfg.GetDatabaseURL() != "" {
		var err error
		if db, err = s.openPostgres(ctx, cfg.GetDatabaseURL()); err != nil {
			return nil, err
		}
		s.Repos.Users = userspg.NewUserRepository(db)
	} else {
		s.Repos.Users = fakeuserrepo.NewFakeUserRepo()
	}

	switch cfg.GetSessionStore() {
	case config.StoreMemory:
		s.Repos.Sessions = fakesessionrepo.NewFakeSessionRepo()
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		s.closers = append(s.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.GetRedisAddr(), err)
		}
		s.Repos.Sessions = redisrepo.New(rdb, RedisKeyPrefix)
	case config.StorePostgres:
		if db == nil {
			_ = s.Close()
			return nil, errors.New("SESSION_STORE=postgres requires DATABASE_URL")
		}
		s.Repos.Sessions = sessionspg.NewSessionRepository(db)
	default:
		_ = s.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.GetSessionStore())
	}

	log.Info().Str("session_store", cfg.GetSessionStore()).Bool("postgres_users", db != nil).Msg("Stores opened")
	return s, nil
}

func (s *Stores) openPostgres(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sessionspg.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)
	if err := userspg.Migrate(ctx, db); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := sessionspg.Migrate(ctx, db); err != nil {
		_ = s.Close()
		return nil, err
	}
	return db, nil
}

// Close releases every connection opened by Open.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
