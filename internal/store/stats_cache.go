// internal/store/stats_cache.go
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

const statsCacheKey = "onboarding:application-stats"

// StatsCache keeps the admin dashboard aggregate in Redis so repeated polls
// do not hammer the GROUP BY query. Misses and transport errors both fall
// through to the database.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewStatsCache(client *redis.Client, ttl time.Duration, log logger.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "stats-cache"}),
	}
}

// Get returns the cached aggregate, or (nil, false) on miss or error.
func (c *StatsCache) Get(ctx context.Context) ([]models.StatusCount, bool) {
	raw, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("stats cache read failed", map[string]interface{}{"error": err})
		return nil, false
	}

	var counts []models.StatusCount
	if err := json.Unmarshal(raw, &counts); err != nil {
		c.logger.Warn("stats cache entry corrupt", map[string]interface{}{"error": err})
		return nil, false
	}
	return counts, true
}

// Set stores the aggregate, best effort.
func (c *StatsCache) Set(ctx context.Context, counts []models.StatusCount) {
	raw, err := json.Marshal(counts)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statsCacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache write failed", map[string]interface{}{"error": err})
	}
}

// Invalidate drops the cached aggregate after a state change.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, statsCacheKey).Err(); err != nil && err != redis.Nil {
		c.logger.Warn("stats cache invalidation failed", map[string]interface{}{"error": err})
	}
}
