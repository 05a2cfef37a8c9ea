// Package orderlog records order lifecycle events into an append-only
// activity table. It is informational and plays no part in order consistency.
package orderlog

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/iippk/PersonalWorks/internal/kafka"
	"github.com/iippk/PersonalWorks/internal/orders"
)

// Entry is one row of the order activity log.
type Entry struct {
	EventID    string
	EventType  string
	OrderID    int64
	OrderNo    string
	From       *orders.Status
	To         orders.Status
	ActorID    string
	Producer   string
	TraceID    string
	OccurredAt time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Deduper short-cuts redelivered events. Record is idempotent on the event id,
// so the dedup set is an optimisation and may lag behind the table.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type Service struct {
	Repo  Recorder
	Dedup Deduper
	Log   *zap.Logger
}

var lifecycleEvents = map[string]bool{
	orders.EventOrderCreated:         true,
	orders.EventOrderPaid:            true,
	orders.EventOrderCancelled:       true,
	orders.EventOrderShipped:         true,
	orders.EventOrderCompleted:       true,
	orders.EventOrderRefundRequested: true,
	orders.EventOrderRefunded:        true,
}

// HandleOrderEvent is installed as the consumer handler.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// poison message: log and commit so the partition keeps moving
		s.logger().Warn("skipping undecodable order event", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}
	if !lifecycleEvents[env.EventType] {
		return nil
	}

	if s.Dedup != nil {
		seen, err := s.Dedup.Seen(ctx, env.EventID)
		if err != nil {
			// the insert is idempotent on event_id, so carry on without redis
			s.logger().Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		}
		if seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.LifecyclePayload](env.Payload)
	if err != nil {
		s.logger().Warn("skipping order event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	entry := Entry{
		EventID:    env.EventID,
		EventType:  env.EventType,
		OrderID:    p.OrderID,
		OrderNo:    p.OrderNo,
		From:       p.From,
		To:         p.To,
		ActorID:    p.Actor,
		Producer:   env.Producer,
		TraceID:    env.TraceID,
		OccurredAt: env.OccurredAt,
	}
	if err := s.Repo.Record(ctx, entry); err != nil {
		return fmt.Errorf("record event %s: %w", env.EventID, err)
	}
	if s.Dedup != nil {
		if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
			s.logger().Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
		}
	}
	s.logger().Debug("order event recorded",
		zap.String("event_id", env.EventID), zap.String("event_type", env.EventType), zap.Int64("order_id", p.OrderID))
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
