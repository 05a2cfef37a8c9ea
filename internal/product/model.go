package product

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusListed   = 0
	StatusSold     = 1
	StatusDelisted = 2
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrInvalidValue = errors.New("invalid value")
)

type Product struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Images      string          `json:"images"`
	SellerID    string          `json:"sellerId"`
	Status      int             `json:"status"`
	Shipped     int             `json:"shipped"`
	ViewCount   int             `json:"viewCount"`
	CreateTime  time.Time       `json:"createTime"`
	UpdateTime  time.Time       `json:"updateTime"`
}

// CreateInput is a seller's new listing.
type CreateInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Images      string          `json:"images"`
}

// Store owns product records. SetStatus and SetShipped are idempotent.
type Store interface {
	Create(ctx context.Context, sellerID string, in CreateInput) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	SetStatus(ctx context.Context, id int64, status int) error
	SetShipped(ctx context.Context, id int64, shipped int) error
}

func ValidStatus(v int) bool { return v == StatusListed || v == StatusSold || v == StatusDelisted }

func ValidShipped(v int) bool { return v == 0 || v == 1 }
