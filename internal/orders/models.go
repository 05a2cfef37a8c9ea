package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product availability as reported by the product directory.
const (
	ProductListed   = 0
	ProductSold     = 1
	ProductDelisted = 2
)

// Product is the slice of a product record the order lifecycle reads.
type Product struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Images   string          `json:"images"`
	Price    decimal.Decimal `json:"price"`
	SellerID string          `json:"sellerId"`
	Status   int             `json:"status"`
	Shipped  int             `json:"shipped"`
}

type Order struct {
	ID           int64           `json:"id"`
	OrderNo      string          `json:"orderNo"`
	ProductID    int64           `json:"productId"`
	ProductTitle string          `json:"productTitle"`
	ProductImage string          `json:"productImage,omitempty"`
	Price        decimal.Decimal `json:"price"`
	BuyerID      string          `json:"buyerId"`
	BuyerName    string          `json:"buyerName"`
	SellerID     string          `json:"sellerId"`
	Status       Status          `json:"status"`
	Address      string          `json:"address"`
	Phone        string          `json:"phone"`
	Remark       string          `json:"remark,omitempty"`
	CreateTime   time.Time       `json:"createTime"`
	UpdateTime   time.Time       `json:"updateTime"`
	PayTime      *time.Time      `json:"payTime,omitempty"`
	ShipTime     *time.Time      `json:"shipTime,omitempty"`
	CompleteTime *time.Time      `json:"completeTime,omitempty"`
}

// CreateInput is the buyer-supplied part of a new order.
type CreateInput struct {
	ProductID int64  `json:"productId"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Remark    string `json:"remark"`
}

// Principal is the caller identity handed over by the gateway.
type Principal struct {
	ID   string
	Name string
}

func (o Order) party(a Actor) string {
	if a == ActorSeller {
		return o.SellerID
	}
	return o.BuyerID
}
