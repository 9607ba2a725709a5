package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yoockh/yoointerview/internal/models"
)

const DefaultReportTTL = 24 * time.Hour

// CachedReport is a finished report kept after its live session is gone.
type CachedReport struct {
	OwnerID string        `json:"owner_id"`
	Report  models.Report `json:"report"`
}

type ReportCache interface {
	Put(ctx context.Context, sessionID string, r CachedReport) error
	Get(ctx context.Context, sessionID string) (CachedReport, bool, error)
	Del(ctx context.Context, sessionID string) error
}

type RedisReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReportCache(rdb *redis.Client, ttl time.Duration) *RedisReportCache {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &RedisReportCache{rdb: rdb, ttl: ttl}
}

func reportKey(sessionID string) string { return "session:" + sessionID + ":report" }

func (c *RedisReportCache) Put(ctx context.Context, sessionID string, r CachedReport) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, reportKey(sessionID), b, c.ttl).Err()
}

func (c *RedisReportCache) Get(ctx context.Context, sessionID string) (CachedReport, bool, error) {
	var out CachedReport
	s, err := c.rdb.Get(ctx, reportKey(sessionID)).Result()
	if err == redis.Nil {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		// corrupt entry, treat as miss
		_ = c.rdb.Del(ctx, reportKey(sessionID)).Err()
		return CachedReport{}, false, nil
	}
	return out, true, nil
}

func (c *RedisReportCache) Del(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, reportKey(sessionID)).Err()
}
