package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process Store used for local runs and tests.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]Order
	orderNo map[string]int64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		byID:    map[int64]Order{},
		orderNo: map[string]int64{},
	}
}

func (m *MemStore) Insert(_ context.Context, o Order) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orderNo[o.OrderNo]; ok {
		return Order{}, fmt.Errorf("%w: %s", ErrDuplicateOrderNo, o.OrderNo)
	}
	m.nextID++
	o.ID = m.nextID
	m.byID[o.ID] = cloneOrder(o)
	m.orderNo[o.OrderNo] = o.ID
	return cloneOrder(o), nil
}

func (m *MemStore) Get(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *MemStore) ListByBuyer(_ context.Context, buyerID string) ([]Order, error) {
	return m.filter(func(o Order) bool { return o.BuyerID == buyerID }), nil
}

func (m *MemStore) ListBySeller(_ context.Context, sellerID string) ([]Order, error) {
	return m.filter(func(o Order) bool { return o.SellerID == sellerID }), nil
}

func (m *MemStore) Transition(_ context.Context, t Transition) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[t.OrderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d", ErrNotFound, t.OrderID)
	}
	if !(rule{From: t.From}).allows(o.Status) {
		return Order{}, fmt.Errorf("%w: order %d is %s", ErrInvalidState, t.OrderID, o.Status)
	}

	at := t.At
	o.Status = t.To
	o.UpdateTime = at
	switch t.Stamp {
	case StampPay:
		o.PayTime = &at
	case StampShip:
		o.ShipTime = &at
	case StampComplete:
		o.CompleteTime = &at
	}
	m.byID[o.ID] = o
	return cloneOrder(o), nil
}

func (m *MemStore) filter(keep func(Order) bool) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Order{}
	for _, o := range m.byID {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].CreateTime.After(out[j].CreateTime)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func cloneOrder(o Order) Order {
	o.PayTime = cloneTime(o.PayTime)
	o.ShipTime = cloneTime(o.ShipTime)
	o.CompleteTime = cloneTime(o.CompleteTime)
	return o
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
