package redis

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// NameCache stores Telegram display names resolved via getChat.
type NameCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewNameCache creates a new NameCache.
func NewNameCache(cache *Cache) *NameCache {
	return &NameCache{cache: cache, ttl: cache.config.NameTTL}
}

// NameKey returns the cache key of a user's display name.
func NameKey(userID int64) string {
	return PrefixName + strconv.FormatInt(userID, 10)
}

// Get returns the cached name. ok is false on a miss.
func (n *NameCache) Get(ctx context.Context, userID int64) (name string, ok bool, err error) {
	name, err = n.cache.GetString(ctx, NameKey(userID))
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// Set stores a resolved name.
func (n *NameCache) Set(ctx context.Context, userID int64, name string) error {
	if name == "" {
		return nil
	}
	return n.cache.SetString(ctx, NameKey(userID), name, n.ttl)
}
