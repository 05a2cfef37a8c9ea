package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/iippk/PersonalWorks/internal/orders"
)

// putOrderScript writes the snapshot only when it is newer than the cached
// one. Status codes rise on every transition, so they order snapshots even
// across skewed clocks; update time breaks ties within one status.
var putOrderScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'v', 's')
if cur[1] then
	local v, s = tonumber(cur[1]), tonumber(cur[2])
	local nv, ns = tonumber(ARGV[1]), tonumber(ARGV[2])
	if s > ns or (s == ns and v >= nv) then
		return 0
	end
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 's', ARGV[2], 'data', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// OrderCache is the Redis-backed read cache and create idempotency ledger for
// the order API. Redis is never the source of truth: every miss or error falls
// back to the order store.
type OrderCache struct {
	RDB redis.Cmdable
}

func (c *OrderCache) GetOrder(ctx context.Context, id int64) (orders.Order, bool) {
	b, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrder, id), "data").Bytes()
	if err != nil {
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false
	}
	return o, true
}

// PutOrder caches o unless a newer snapshot of the same order is already
// cached, so writers finishing out of order cannot roll the cache back.
func (c *OrderCache) PutOrder(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return putOrderScript.Run(ctx, c.RDB, []string{fmt.Sprintf(KeyOrder, o.ID)},
		o.UpdateTime.UnixMicro(), int(o.Status), b, TTLOrderCache.Milliseconds(),
	).Err()
}

// ClaimCreate reserves a buyer's idempotency key before the order is created.
// When the key is already taken it returns the remembered order id, or 0
// while the first request is still in flight.
func (c *OrderCache) ClaimCreate(ctx context.Context, buyerID, key string) (int64, bool, error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, buyerID, key)
	ok, err := c.RDB.SetNX(ctx, k, idemPending, TTLIdempotencyPending).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}

	v, err := c.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) || v == idemPending {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency value %q: %w", v, err)
	}
	return id, false, nil
}

// CompleteCreate records the order created under a claimed key.
func (c *OrderCache) CompleteCreate(ctx context.Context, buyerID, key string, orderID int64) error {
	return c.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyerID, key), orderID, TTLIdempotency).Err()
}

// ReleaseCreate drops a claim whose create failed so the key can be retried.
func (c *OrderCache) ReleaseCreate(ctx context.Context, buyerID, key string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyerID, key)).Err()
}
