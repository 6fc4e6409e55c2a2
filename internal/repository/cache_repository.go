package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

const localCacheSize = 256

// CacheRepository caches JSON payloads such as consolidated timetable views.
// Without a Redis client it falls back to a bounded in-process LRU.
type CacheRepository struct {
	client *redis.Client
	local  *expirable.LRU[string, []byte]
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository. ttl bounds local entries.
func NewCacheRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	repo := &CacheRepository{client: client, logger: logger}
	if client == nil {
		repo.local = expirable.NewLRU[string, []byte](localCacheSize, nil, ttl)
		logger.Info("redis unavailable, using in-process view cache", zap.Int("size", localCacheSize))
	}
	return repo
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	var raw []byte
	if r.client == nil {
		cached, ok := r.local.Get(key)
		if !ok {
			return appErrors.ErrCacheMiss
		}
		raw = cached
	} else {
		var err error
		raw, err = r.client.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return appErrors.ErrCacheMiss
			}
			return fmt.Errorf("redis get %s: %w", key, err)
		}
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set marshals the provided value and stores it with the given TTL. The local
// fallback applies its own TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if r.client == nil {
		r.local.Add(key, payload)
		return nil
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes cached entries matching a glob pattern.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		for _, key := range r.local.Keys() {
			if ok, _ := path.Match(pattern, key); ok {
				r.local.Remove(key)
			}
		}
		return nil
	}

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		r.local.Purge()
		return nil
	}
	return r.client.Close()
}
