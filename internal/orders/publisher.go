package orders

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/iippk/PersonalWorks/internal/kafka"
)

// Publisher receives lifecycle events after they have been persisted.
// Delivery is best effort and never affects the command outcome.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// MessageWriter is satisfied by *kafkax.Producer.
type MessageWriter interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type KafkaPublisher struct {
	Producer MessageWriter
	Service  string
}

func (p *KafkaPublisher) Publish(_ context.Context, e Event) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     e.Type,
		EventVersion:  1,
		OccurredAt:    e.At.UTC(),
		Producer:      p.Service,
		TraceID:       e.TraceID,
		CorrelationID: strconv.FormatInt(e.Order.ID, 10),
		Payload:       kafkax.MustMarshal(e.Payload()),
	}
	p.Producer.Publish(PartitionKey(e.Order.ID), kafkax.MustMarshal(ev), kafkax.EventHeaders(e.Type, ev.EventVersion)...)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}
