package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// SessionStore is what the server needs from a call session backend.
type SessionStore interface {
	dialogue.SessionStore
	session.Evictable
}

// BuildRedisClient returns a configured Redis client or nil when sessions are
// kept in memory. When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if !cfg.UsesRedisSessions() || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks Redis when a client is available and falls back to
// process memory otherwise.
func BuildSessionStore(rdb *redis.Client, cfg *appconfig.Config, logger *logging.Logger) SessionStore {
	if logger == nil {
		logger = logging.Default()
	}
	if rdb == nil {
		if cfg.UsesRedisSessions() {
			logger.Warn("redis sessions requested but unavailable; using in-memory sessions")
		}
		return session.NewMemoryStore(logger)
	}
	logger.Info("call sessions stored in redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL.String())
	return session.NewRedisStore(rdb, cfg.SessionTTL, logger)
}

// ConnectPostgres opens a pool for databaseURL. An empty URL returns nil so
// callers fall back to in-memory storage.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// SQLDB exposes pool through database/sql for packages written against it.
// Closing the returned DB does not close the pool.
func SQLDB(pool *pgxpool.Pool) *sql.DB {
	if pool == nil {
		return nil
	}
	return stdlib.OpenDBFromPool(pool)
}
