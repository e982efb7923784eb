// Package healthcache serves hierarchy health reports from Redis. The report
// is advisory data, so bounded staleness is acceptable; any cache failure
// falls through to a fresh scan rather than surfacing an error.
package healthcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"custodia/internal/graph"
	id "custodia/pkg/domain"
)

// Computer produces a fresh report on cache miss.
type Computer func(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error)

// Cache wraps health report computation with a per-tenant Redis entry.
// A nil client disables caching entirely.
type Cache struct {
	client  redis.Cmdable
	ttl     time.Duration
	compute Computer
	log     *slog.Logger
}

func New(client redis.Cmdable, ttl time.Duration, compute Computer, log *slog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, compute: compute, log: log}
}

func key(tenantID id.TenantID) string {
	return "custodia:hierarchy-health:" + tenantID.String()
}

// Report returns the cached report when fresh, otherwise computes and caches
// a new one.
func (c *Cache) Report(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, key(tenantID)).Bytes()
		switch {
		case err == nil:
			var report graph.HealthReport
			if err := json.Unmarshal(raw, &report); err == nil {
				return &report, nil
			}
			// Unreadable entry; fall through and overwrite it.
		case !errors.Is(err, redis.Nil):
			c.log.Warn("health cache read failed", "error", err)
		}
	}

	report, err := c.compute(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		if raw, err := json.Marshal(report); err == nil {
			if err := c.client.Set(ctx, key(tenantID), raw, c.ttl).Err(); err != nil {
				c.log.Warn("health cache write failed", "error", err)
			}
		}
	}
	return report, nil
}

// Invalidate drops the tenant's cached report. Called after hierarchy
// mutations so the next read reflects them.
func (c *Cache) Invalidate(ctx context.Context, tenantID id.TenantID) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key(tenantID)).Err(); err != nil {
		c.log.Warn("health cache invalidation failed", "error", err)
	}
}
