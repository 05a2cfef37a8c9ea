package orders

import (
	"context"
	"time"
)

// Transition is a compare-and-set on order status: it applies only while the
// stored status is one of From.
type Transition struct {
	OrderID int64
	From    []Status
	To      Status
	At      time.Time
	Stamp   TimeField
}

// Store persists orders. Implementations must apply Transition atomically and
// report ErrInvalidState when the stored status no longer matches From.
type Store interface {
	Insert(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
	Transition(ctx context.Context, t Transition) (Order, error)
}

// ProductDirectory is the remote owner of product records.
type ProductDirectory interface {
	Get(ctx context.Context, id int64) (Product, error)
	SetStatus(ctx context.Context, id int64, status int) error
	SetShipped(ctx context.Context, id int64, shipped int) error
}
