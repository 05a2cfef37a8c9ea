package orderlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Recorder = (*Repo)(nil)

// Record inserts the entry; a replayed event id is a no-op.
func (r *Repo) Record(ctx context.Context, e Entry) error {
	var from *int16
	if e.From != nil {
		v := int16(*e.From)
		from = &v
	}
	var traceID *string
	if e.TraceID != "" {
		traceID = &e.TraceID
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_events(event_id, event_type, order_id, order_no, from_status, to_status,
			actor_id, producer, trace_id, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.EventType, e.OrderID, e.OrderNo, from, int16(e.To),
		e.ActorID, e.Producer, traceID, e.OccurredAt,
	)
	return err
}
