package rediscache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/campaign-engine/internal/domain"
)

const activeSetKey = "campaigns:active"

// ActiveCampaignCache caches the active campaign set in Redis with a short
// TTL. Every path fails open: pricing must keep working when Redis is down,
// so errors are logged and reported as cache misses.
type ActiveCampaignCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewActiveCampaignCache creates a Redis-backed active campaign cache.
func NewActiveCampaignCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ActiveCampaignCache {
	return &ActiveCampaignCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached active set, or ok=false on miss or error.
func (c *ActiveCampaignCache) Get(ctx context.Context) ([]domain.Campaign, bool) {
	data, err := c.client.Get(ctx, activeSetKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("active campaign cache read failed", "error", err)
		}
		return nil, false
	}

	var campaigns []domain.Campaign
	if err := json.Unmarshal(data, &campaigns); err != nil {
		c.logger.Warn("active campaign cache entry corrupt, dropping", "error", err)
		c.Invalidate(ctx)
		return nil, false
	}

	// The Discount spec is not serialized; rebuild it after decode.
	for i := range campaigns {
		campaigns[i].Normalize()
	}
	return campaigns, true
}

// Set stores the active set with the configured TTL.
func (c *ActiveCampaignCache) Set(ctx context.Context, campaigns []domain.Campaign) {
	data, err := json.Marshal(campaigns)
	if err != nil {
		c.logger.Warn("marshal active campaign set failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, activeSetKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("active campaign cache write failed", "error", err)
	}
}

// Invalidate drops the cached set. Called after any campaign write so the
// next read repopulates from the database.
func (c *ActiveCampaignCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, activeSetKey).Err(); err != nil {
		c.logger.Warn("active campaign cache invalidate failed", "error", err)
	}
}
