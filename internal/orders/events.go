package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderPaid            = "OrderPaid"
	EventOrderCancelled       = "OrderCancelled"
	EventOrderShipped         = "OrderShipped"
	EventOrderCompleted       = "OrderCompleted"
	EventOrderRefundRequested = "OrderRefundRequested"
	EventOrderRefunded        = "OrderRefunded"
)

var eventForStatus = map[Status]string{
	StatusPendingPayment:  EventOrderCreated,
	StatusPaid:            EventOrderPaid,
	StatusCancelled:       EventOrderCancelled,
	StatusShipped:         EventOrderShipped,
	StatusCompleted:       EventOrderCompleted,
	StatusRefundRequested: EventOrderRefundRequested,
	StatusRefunded:        EventOrderRefunded,
}

// EventTypeFor names the lifecycle event emitted on entering s.
func EventTypeFor(s Status) string { return eventForStatus[s] }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// LifecyclePayload is shared by every order lifecycle event. From is nil on creation.
type LifecyclePayload struct {
	OrderID   int64   `json:"order_id"`
	OrderNo   string  `json:"order_no"`
	ProductID int64   `json:"product_id"`
	BuyerID   string  `json:"buyer_id"`
	SellerID  string  `json:"seller_id"`
	From      *Status `json:"from,omitempty"`
	To        Status  `json:"to"`
	Actor     string  `json:"actor"`
}

// Event is what the lifecycle manager hands to a Publisher after a persist.
type Event struct {
	Type    string
	Order   Order
	From    *Status
	ActorID string
	TraceID string
	At      time.Time
}

func (e Event) Payload() LifecyclePayload {
	return LifecyclePayload{
		OrderID:   e.Order.ID,
		OrderNo:   e.Order.OrderNo,
		ProductID: e.Order.ProductID,
		BuyerID:   e.Order.BuyerID,
		SellerID:  e.Order.SellerID,
		From:      e.From,
		To:        e.Order.Status,
		Actor:     e.ActorID,
	}
}
