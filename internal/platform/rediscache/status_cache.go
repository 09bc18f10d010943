// Package rediscache holds a best-effort cache for session status so
// clients polling a preparing session do not hammer Postgres. Cache
// misses and Redis outages fall through to the database.
package rediscache

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vivavoce/defense-backend/internal/pkg/logger"
)

const statusKeyPrefix = "defense:session:status:"

// Keys are owner-scoped so a cache hit can never answer for a session
// the caller does not own.
type StatusCache interface {
	GetStatus(ctx context.Context, ownerUserID, sessionID uuid.UUID) (string, bool)
	SetStatus(ctx context.Context, ownerUserID, sessionID uuid.UUID, status string)
	Invalidate(ctx context.Context, ownerUserID, sessionID uuid.UUID)
}

type statusCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewStatusCache(log *logger.Logger) (StatusCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("REDIS_STATUS_TTL_SECONDS")); v != "" {
		if parsed, err := time.ParseDuration(v + "s"); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	return &statusCache{
		log: log.With("service", "SessionStatusCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func statusKey(ownerUserID, sessionID uuid.UUID) string {
	return statusKeyPrefix + ownerUserID.String() + ":" + sessionID.String()
}

func (c *statusCache) GetStatus(ctx context.Context, ownerUserID, sessionID uuid.UUID) (string, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, statusKey(ownerUserID, sessionID)).Result()
	if err != nil {
		if err != goredis.Nil {
			c.log.Debug("status cache read failed", "session_id", sessionID.String(), "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *statusCache) SetStatus(ctx context.Context, ownerUserID, sessionID uuid.UUID, status string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, statusKey(ownerUserID, sessionID), status, c.ttl).Err(); err != nil {
		c.log.Debug("status cache write failed", "session_id", sessionID.String(), "error", err)
	}
}

func (c *statusCache) Invalidate(ctx context.Context, ownerUserID, sessionID uuid.UUID) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, statusKey(ownerUserID, sessionID)).Err(); err != nil {
		c.log.Debug("status cache invalidate failed", "session_id", sessionID.String(), "error", err)
	}
}

// NoopStatusCache is used when REDIS_ADDR is unset; every lookup misses.
type NoopStatusCache struct{}

func (NoopStatusCache) GetStatus(context.Context, uuid.UUID, uuid.UUID) (string, bool) {
	return "", false
}
func (NoopStatusCache) SetStatus(context.Context, uuid.UUID, uuid.UUID, string) {}
func (NoopStatusCache) Invalidate(context.Context, uuid.UUID, uuid.UUID)       {}
