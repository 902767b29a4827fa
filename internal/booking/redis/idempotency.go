package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	orderKeyPrefix = "payment_order:"
	lockKeyPrefix  = "verify_lock:"
)

// Redis backs two booking-level guards: a payment-order cache so client
// retries reuse one gateway order per booking, and a short verification
// lease so racing verifications don't both round-trip to the gateway.
type Redis struct {
	Client   *redis.Client
	OrderTTL time.Duration
	LockTTL  time.Duration
}

func NewRedis(client *redis.Client, orderTTL, lockTTL time.Duration) *Redis {
	return &Redis{
		Client:   client,
		OrderTTL: orderTTL,
		LockTTL:  lockTTL,
	}
}

// CachedOrderID returns the gateway order already created for this
// booking, or "" when there is none.
func (r *Redis) CachedOrderID(ctx context.Context, bookingID string) (string, error) {
	val, err := r.Client.Get(ctx, orderKeyPrefix+bookingID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// CacheOrderID remembers the gateway order for a booking. The TTL
// matches the checkout window; an expired entry just means a fresh
// gateway order on the next attempt.
func (r *Redis) CacheOrderID(ctx context.Context, bookingID, orderID string) error {
	return r.Client.Set(ctx, orderKeyPrefix+bookingID, orderID, r.OrderTTL).Err()
}

// AcquireVerifyLock takes the per-booking verification lease. False
// means another verification for the same booking is in flight.
func (r *Redis) AcquireVerifyLock(ctx context.Context, bookingID, paymentID string) (bool, error) {
	return r.Client.SetNX(ctx, lockKeyPrefix+bookingID, paymentID, r.LockTTL).Result()
}

// ReleaseVerifyLock drops the lease early. The TTL covers a holder that
// dies without releasing.
func (r *Redis) ReleaseVerifyLock(ctx context.Context, bookingID string) error {
	err := r.Client.Del(ctx, lockKeyPrefix+bookingID).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
