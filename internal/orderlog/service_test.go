package orderlog

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/iippk/PersonalWorks/internal/kafka"
	"github.com/iippk/PersonalWorks/internal/orders"
)

type fakeRecorder struct {
	entries []Entry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, e Entry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

type fakeDedup struct {
	seen map[string]bool
	err  error
}

func (f *fakeDedup) Seen(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.seen[id], nil
}

func (f *fakeDedup) Mark(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.seen[id] = true
	return nil
}

func lifecycleMessage(eventID, eventType string, from *orders.Status, to orders.Status) kafkago.Message {
	payload := orders.LifecyclePayload{
		OrderID: 42, OrderNo: "ORD202605010930001234", ProductID: 7,
		BuyerID: "b1", SellerID: "s1", From: from, To: to, Actor: "b1",
	}
	env := orders.Envelope{
		EventID:      eventID,
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		Producer:     "order-api",
		TraceID:      "abc123",
		Payload:      kafkax.MustMarshal(payload),
	}
	return kafkago.Message{Key: orders.PartitionKey(42), Value: kafkax.MustMarshal(env)}
}

func TestRecordsLifecycleEvent(t *testing.T) {
	rec := &fakeRecorder{}
	svc := &Service{Repo: rec, Dedup: &fakeDedup{seen: map[string]bool{}}}
	from := orders.StatusPendingPayment

	require.NoError(t, svc.HandleOrderEvent(context.Background(), lifecycleMessage("e1", orders.EventOrderPaid, &from, orders.StatusPaid)))

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "e1", e.EventID)
	assert.Equal(t, orders.EventOrderPaid, e.EventType)
	assert.Equal(t, int64(42), e.OrderID)
	require.NotNil(t, e.From)
	assert.Equal(t, orders.StatusPendingPayment, *e.From)
	assert.Equal(t, orders.StatusPaid, e.To)
	assert.Equal(t, "b1", e.ActorID)
	assert.Equal(t, "order-api", e.Producer)
	assert.Equal(t, "abc123", e.TraceID)
}

func TestDuplicateEventRecordedOnce(t *testing.T) {
	rec := &fakeRecorder{}
	svc := &Service{Repo: rec, Dedup: &fakeDedup{seen: map[string]bool{}}}
	m := lifecycleMessage("e1", orders.EventOrderCreated, nil, orders.StatusPendingPayment)

	require.NoError(t, svc.HandleOrderEvent(context.Background(), m))
	require.NoError(t, svc.HandleOrderEvent(context.Background(), m))
	assert.Len(t, rec.entries, 1)
	assert.Nil(t, rec.entries[0].From)
}

func TestDedupOutageStillRecords(t *testing.T) {
	rec := &fakeRecorder{}
	svc := &Service{Repo: rec, Dedup: &fakeDedup{err: errors.New("redis: connection refused")}}

	require.NoError(t, svc.HandleOrderEvent(context.Background(), lifecycleMessage("e1", orders.EventOrderCreated, nil, orders.StatusPendingPayment)))
	assert.Len(t, rec.entries, 1)
}

func TestRecordFailureLeavesEventRetryable(t *testing.T) {
	dedup := &fakeDedup{seen: map[string]bool{}}
	rec := &fakeRecorder{err: errors.New("db down")}
	svc := &Service{Repo: rec, Dedup: dedup}
	m := lifecycleMessage("e1", orders.EventOrderCreated, nil, orders.StatusPendingPayment)

	require.Error(t, svc.HandleOrderEvent(context.Background(), m))
	assert.False(t, dedup.seen["e1"])

	rec.err = nil
	require.NoError(t, svc.HandleOrderEvent(context.Background(), m))
	assert.Len(t, rec.entries, 1)
	assert.True(t, dedup.seen["e1"])
}

func TestSkipsPoisonAndForeignMessages(t *testing.T) {
	rec := &fakeRecorder{}
	svc := &Service{Repo: rec}

	require.NoError(t, svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("{not json")}))
	require.NoError(t, svc.HandleOrderEvent(context.Background(), lifecycleMessage("e2", "ProductRenamed", nil, 0)))
	assert.Empty(t, rec.entries)
}
