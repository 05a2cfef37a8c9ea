package product

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type MemStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]Product
	now    func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{byID: map[int64]Product{}, now: time.Now}
}

func (m *MemStore) Create(_ context.Context, sellerID string, in CreateInput) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := m.now()
	p := Product{
		ID:          m.nextID,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Images:      in.Images,
		SellerID:    sellerID,
		Status:      StatusListed,
		CreateTime:  now,
		UpdateTime:  now,
	}
	m.byID[p.ID] = p
	return p, nil
}

func (m *MemStore) Get(_ context.Context, id int64) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return p, nil
}

func (m *MemStore) SetStatus(_ context.Context, id int64, status int) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: status %d", ErrInvalidValue, status)
	}
	return m.update(id, func(p *Product) { p.Status = status })
}

func (m *MemStore) SetShipped(_ context.Context, id int64, shipped int) error {
	if !ValidShipped(shipped) {
		return fmt.Errorf("%w: shipped %d", ErrInvalidValue, shipped)
	}
	return m.update(id, func(p *Product) { p.Shipped = shipped })
}

func (m *MemStore) update(id int64, fn func(*Product)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	fn(&p)
	p.UpdateTime = m.now()
	m.byID[id] = p
	return nil
}
