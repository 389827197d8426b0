package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis serializes balance-mutating decisions per (user, product type).
// Publish/patch capacity checks are read-modify-write against the ledger, so
// concurrent requests for the same balance key must take this lock first.
type Redis struct {
	Client *redis.Client
	// lockTTL is a liveness bound: a crashed holder frees the key on expiry.
	lockTTL time.Duration
}

func NewRedis(client *redis.Client, lockTTL time.Duration) *Redis {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Redis{Client: client, lockTTL: lockTTL}
}

func balanceKey(userID, productType string) string {
	return fmt.Sprintf("balance_lock:%s:%s", userID, productType)
}

// LockBalance acquires the per-balance lock for holder. Returns false when
// another holder owns it.
func (r *Redis) LockBalance(ctx context.Context, userID, productType, holder string) (bool, error) {
	return r.Client.SetNX(ctx, balanceKey(userID, productType), holder, r.lockTTL).Result()
}

// UnlockBalance releases the lock if holder still owns it. Releasing an
// expired or foreign lock is a no-op.
func (r *Redis) UnlockBalance(ctx context.Context, userID, productType, holder string) error {
	key := balanceKey(userID, productType)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == holder {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
