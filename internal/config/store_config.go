package config

import "time"

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type StoreConfig interface {
	GetSessionStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetDatabaseURL() string
	GetSessionSweepInterval() time.Duration
	GetEphemeralSweepInterval() time.Duration
}

type Store struct {
	SessionStore           string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	DatabaseURL            string
	SessionSweepInterval   time.Duration
	EphemeralSweepInterval time.Duration
}

var _ StoreConfig = Store{}

func loadStore() Store {
	return Store{
		SessionStore:           GetEnv("SESSION_STORE", StoreMemory),
		RedisAddr:              GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          GetEnv("REDIS_PASSWORD", ""),
		RedisDB:                getIntEnv("REDIS_DB", 0),
		DatabaseURL:            GetEnv("DATABASE_URL", ""),
		SessionSweepInterval:   getDurationEnv("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		EphemeralSweepInterval: getDurationEnv("EPHEMERAL_SWEEP_INTERVAL", time.Minute),
	}
}

func (s Store) GetSessionStore() string {
	if s.SessionStore == "" {
		return StoreMemory
	}
	return s.SessionStore
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

func (s Store) GetDatabaseURL() string {
	return s.DatabaseURL
}

func (s Store) GetSessionSweepInterval() time.Duration {
	if s.SessionSweepInterval <= 0 {
		return 10 * time.Minute
	}
	return s.SessionSweepInterval
}

func (s Store) GetEphemeralSweepInterval() time.Duration {
	if s.EphemeralSweepInterval <= 0 {
		return time.Minute
	}
	return s.EphemeralSweepInterval
}
