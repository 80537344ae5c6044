package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-tracker/internal/core/cache"
	"order-tracker/internal/features/tracking/ports"
)

const snapshotKeyPrefix = "tracking_snapshot:"

// RedisSnapshotRepository implements ports.SnapshotRepository on the cache
// adaptation. Entries expire on a short TTL and are invalidated on writes,
// so the order document stays the source of truth.
type RedisSnapshotRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRedisSnapshotRepository creates a RedisSnapshotRepository.
func NewRedisSnapshotRepository(c cache.Cache, ttl time.Duration) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{
		cache: c,
		ttl:   ttl,
	}
}

func snapshotKey(orderID string) string {
	return snapshotKeyPrefix + orderID
}

// Get retrieves the cached snapshot, or (nil, nil) on a miss.
func (r *RedisSnapshotRepository) Get(ctx context.Context, orderID string) (*ports.Snapshot, error) {
	data, err := r.cache.Get(ctx, snapshotKey(orderID))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tracking snapshot from cache: %w", err)
	}

	var snap ports.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tracking snapshot: %w", err)
	}
	return &snap, nil
}

// Set stores the snapshot.
func (r *RedisSnapshotRepository) Set(ctx context.Context, orderID string, snap *ports.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking snapshot: %w", err)
	}

	if err := r.cache.Set(ctx, snapshotKey(orderID), data, r.ttl); err != nil {
		return fmt.Errorf("failed to save tracking snapshot to cache: %w", err)
	}
	return nil
}

// Invalidate drops the snapshot after a write.
func (r *RedisSnapshotRepository) Invalidate(ctx context.Context, orderID string) error {
	if err := r.cache.Delete(ctx, snapshotKey(orderID)); err != nil {
		return fmt.Errorf("failed to invalidate tracking snapshot: %w", err)
	}
	return nil
}
