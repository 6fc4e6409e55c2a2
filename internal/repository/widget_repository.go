package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// WidgetSlotRepository stores the textual widget slots in Redis.
type WidgetSlotRepository struct {
	client *redis.Client
}

// NewWidgetSlotRepository constructs a Redis backed slot store.
func NewWidgetSlotRepository(client *redis.Client) *WidgetSlotRepository {
	return &WidgetSlotRepository{client: client}
}

// Get returns the slot value and whether it was present.
func (r *WidgetSlotRepository) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes a slot without expiry.
func (r *WidgetSlotRepository) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes a slot.
func (r *WidgetSlotRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// MemoryWidgetSlotRepository keeps slots in process memory. It backs the
// widget when Redis is not reachable.
type MemoryWidgetSlotRepository struct {
	mu    sync.RWMutex
	slots map[string]string
}

// NewMemoryWidgetSlotRepository builds an empty in-memory slot store.
func NewMemoryWidgetSlotRepository() *MemoryWidgetSlotRepository {
	return &MemoryWidgetSlotRepository{slots: make(map[string]string)}
}

func (r *MemoryWidgetSlotRepository) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.slots[key]
	return v, ok, nil
}

func (r *MemoryWidgetSlotRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[key] = value
	return nil
}

func (r *MemoryWidgetSlotRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, key)
	return nil
}
