// Package redis implements Redis-backed adapters.
package redis

import (
	"context"
	"fmt"
	"time"

	"calsync_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "calsync:lock:conn:"

// SyncLockAdapter implements out.SyncLock with a Redis lease (SET NX PX).
// One key per connection; the TTL bounds how long a crashed run can hold
// the lease.
type SyncLockAdapter struct {
	client *redis.Client
}

var _ out.SyncLock = (*SyncLockAdapter)(nil)

// NewSyncLockAdapter creates a new SyncLockAdapter.
func NewSyncLockAdapter(client *redis.Client) *SyncLockAdapter {
	return &SyncLockAdapter{client: client}
}

// Acquire attempts to take the lease without blocking. Returns false
// when another run holds it.
func (a *SyncLockAdapter) Acquire(ctx context.Context, connectionID int64, ttl time.Duration) (bool, error) {
	ok, err := a.client.SetNX(ctx, lockKey(connectionID), time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sync lock acquire: %w", err)
	}
	return ok, nil
}

// Release drops the lease. Releasing a lease that already expired is a
// no-op.
func (a *SyncLockAdapter) Release(ctx context.Context, connectionID int64) error {
	if err := a.client.Del(ctx, lockKey(connectionID)).Err(); err != nil {
		return fmt.Errorf("sync lock release: %w", err)
	}
	return nil
}

func lockKey(connectionID int64) string {
	return fmt.Sprintf("%s%d", lockKeyPrefix, connectionID)
}
