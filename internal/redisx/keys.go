package redisx

import "time"

const (
	// Create idempotency: idem:order:create:{buyer_id}:{key} -> "pending" | order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Order snapshot cache: order:{order_id} -> hash {v, s, data}
	KeyOrder = "order:%d"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

// idemPending marks a create that has been claimed but not finished.
const idemPending = "pending"

var (
	TTLIdempotency        = 24 * time.Hour
	TTLIdempotencyPending = 30 * time.Second
	TTLOrderCache         = 5 * time.Minute
	TTLDedup              = 48 * time.Hour
)
