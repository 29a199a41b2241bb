package verification

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"guardget/models"
	"guardget/utils"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// LookupCache stores public lookup results for a short time.
type LookupCache interface {
	Get(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.DeviceStatusQuery, bool)
	Set(ctx context.Context, identifier string, kind models.IdentifierKind, result *models.DeviceStatusQuery)
	// Invalidate drops every cached variant of the given identifiers.
	Invalidate(ctx context.Context, identifiers ...string)
}

var cachedKinds = []models.IdentifierKind{models.IdentifierAny, models.IdentifierSerial, models.IdentifierIMEI}

func cacheKey(identifier string, kind models.IdentifierKind) string {
	k := string(kind)
	if k == "" {
		k = "any"
	}
	return utils.LookupCachePrefix + k + ":" + strings.ToUpper(strings.TrimSpace(identifier))
}

// RedisLookupCache keeps results in Redis. Cache failures are logged and
// treated as misses.
type RedisLookupCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func (c *RedisLookupCache) log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *RedisLookupCache) Get(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.DeviceStatusQuery, bool) {
	if c.Client == nil {
		return nil, false
	}
	raw, err := c.Client.Get(ctx, cacheKey(identifier, kind)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log().Warn("lookup cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var result models.DeviceStatusQuery
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *RedisLookupCache) Set(ctx context.Context, identifier string, kind models.IdentifierKind, result *models.DeviceStatusQuery) {
	if c.Client == nil || c.TTL <= 0 {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.Client.Set(ctx, cacheKey(identifier, kind), raw, c.TTL).Err(); err != nil {
		c.log().Warn("lookup cache write failed", zap.Error(err))
	}
}

func (c *RedisLookupCache) Invalidate(ctx context.Context, identifiers ...string) {
	if c.Client == nil || len(identifiers) == 0 {
		return
	}
	keys := make([]string, 0, len(identifiers)*len(cachedKinds))
	for _, id := range identifiers {
		for _, kind := range cachedKinds {
			keys = append(keys, cacheKey(id, kind))
		}
	}
	if err := c.Client.Del(ctx, keys...).Err(); err != nil {
		c.log().Warn("lookup cache invalidation failed", zap.Error(err))
	}
}
