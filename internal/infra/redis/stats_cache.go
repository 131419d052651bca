package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/acumba/internal/core/domain"
)

// DefaultStatsTTL is used when the configured TTL is not positive.
const DefaultStatsTTL = 5 * time.Minute

// StatsCache keeps campaign stats for a short while so repeated reports do
// not hit the API.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatsCache creates a cache whose entries expire after ttl.
func NewStatsCache(client *Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{rdb: client.rdb, ttl: ttl}
}

func statsKey(campaignID int) string {
	return fmt.Sprintf("%s:stats:%d", keyPrefix, campaignID)
}

// Get returns the cached stats of a campaign. ok is false on a miss.
func (c *StatsCache) Get(ctx context.Context, campaignID int) (domain.CampaignStats, bool, error) {
	data, err := c.rdb.Get(ctx, statsKey(campaignID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CampaignStats{}, false, nil
	}
	if err != nil {
		return domain.CampaignStats{}, false, fmt.Errorf("get failed: %w", err)
	}

	var stats domain.CampaignStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.CampaignStats{}, false, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return stats, true, nil
}

// Set caches stats under their campaign id.
func (c *StatsCache) Set(ctx context.Context, stats domain.CampaignStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := c.rdb.Set(ctx, statsKey(stats.CampaignID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached stats of a campaign.
func (c *StatsCache) Invalidate(ctx context.Context, campaignID int) error {
	return c.rdb.Del(ctx, statsKey(campaignID)).Err()
}
