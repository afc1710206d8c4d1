package mappings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

const cachePrefix = "finledger:mappings"

// Cache is a read-through Redis cache for event mappings. Keys carry a
// per-company version; Bump invalidates every mapping of a company.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCache instantiates the cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Wrap decorates a transaction-bound repository with the cache.
func (c *Cache) Wrap(next Repository) Repository {
	if c == nil || c.client == nil {
		return next
	}
	return &CachedRepository{cache: c, next: next}
}

func versionKey(companyID string) string {
	return strings.Join([]string{cachePrefix, companyID, "version"}, ":")
}

// Version returns the company's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, companyID string) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(companyID)).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, versionKey(companyID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(companyID)).Int64()
	}
	return ver, err
}

// Bump invalidates every cached mapping of the company.
func (c *Cache) Bump(ctx context.Context, companyID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(companyID)).Err()
}

func (c *Cache) key(ctx context.Context, companyID, eventType string) (string, error) {
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s:%d", cachePrefix, companyID, shared.NormalizeKey(eventType), ver), nil
}

// CachedRepository serves Get from Redis and falls through to the wrapped
// repository on a miss. Concurrent misses for one key share a single load.
type CachedRepository struct {
	cache *Cache
	next  Repository
}

func (r *CachedRepository) Get(ctx context.Context, companyID, eventType string) (EventMapping, error) {
	key, err := r.cache.key(ctx, companyID, eventType)
	if err != nil {
		r.cache.logger.Warn("mapping cache unavailable", slog.Any("error", err))
		return r.next.Get(ctx, companyID, eventType)
	}
	raw, err := r.cache.client.Get(ctx, key).Bytes()
	if err == nil {
		var m EventMapping
		if err := json.Unmarshal(raw, &m); err == nil {
			return m, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		r.cache.logger.Warn("mapping cache read", slog.String("key", key), slog.Any("error", err))
	}
	v, err, _ := r.cache.group.Do(key, func() (interface{}, error) {
		m, err := r.next.Get(ctx, companyID, eventType)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(m); err == nil {
			if err := r.cache.client.Set(ctx, key, payload, r.cache.ttl).Err(); err != nil {
				r.cache.logger.Warn("mapping cache write", slog.String("key", key), slog.Any("error", err))
			}
		}
		return m, nil
	})
	if err != nil {
		return EventMapping{}, err
	}
	return v.(EventMapping), nil
}

// Upsert writes through and bumps the company version.
func (r *CachedRepository) Upsert(ctx context.Context, m EventMapping) (EventMapping, error) {
	saved, err := r.next.Upsert(ctx, m)
	if err != nil {
		return EventMapping{}, err
	}
	if err := r.cache.Bump(ctx, m.CompanyID); err != nil {
		r.cache.logger.Warn("mapping cache bump", slog.Any("error", err))
	}
	return saved, nil
}
