package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Dedup struct {
	RDB     redis.Cmdable
	Service string
}

// Seen reports whether id was already recorded.
func (d *Dedup) Seen(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, d.RDB, fmt.Sprintf(KeyDedup, d.Service, id))
}

// Mark records id as processed. Call it only after the event is durable, so a
// crash in between leads to a redelivery rather than a skipped event.
func (d *Dedup) Mark(ctx context.Context, id string) error {
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Err()
}
