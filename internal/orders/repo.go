package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const orderColumns = `id, order_no, product_id, product_title, product_image, price,
	buyer_id, buyer_name, seller_id, status, address, phone, remark,
	create_time, update_time, pay_time, ship_time, complete_time`

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

var stampColumns = map[TimeField]string{
	StampPay:      "pay_time",
	StampShip:     "ship_time",
	StampComplete: "complete_time",
}

func (r *Repo) Insert(ctx context.Context, o Order) (Order, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO user_order(order_no, product_id, product_title, product_image, price,
			buyer_id, buyer_name, seller_id, status, address, phone, remark, create_time, update_time)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING `+orderColumns,
		o.OrderNo, o.ProductID, o.ProductTitle, o.ProductImage, o.Price.String(),
		o.BuyerID, o.BuyerName, o.SellerID, int(o.Status), o.Address, o.Phone, o.Remark,
		o.CreateTime, o.UpdateTime,
	)
	out, err := scanOrder(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Order{}, fmt.Errorf("%w: %s", ErrDuplicateOrderNo, o.OrderNo)
		}
		return Order{}, err
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM user_order WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return o, err
}

func (r *Repo) ListByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM user_order
		WHERE buyer_id=$1 ORDER BY create_time DESC, id DESC`, buyerID)
}

func (r *Repo) ListBySeller(ctx context.Context, sellerID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM user_order
		WHERE seller_id=$1 ORDER BY create_time DESC, id DESC`, sellerID)
}

// Transition runs the status compare-and-set in a single UPDATE so concurrent
// commands on the same order cannot both win.
func (r *Repo) Transition(ctx context.Context, t Transition) (Order, error) {
	set := "status=$2, update_time=$3"
	if t.Stamp != StampNone {
		col, ok := stampColumns[t.Stamp]
		if !ok {
			return Order{}, fmt.Errorf("unknown stamp %q", t.Stamp)
		}
		set += ", " + col + "=$3"
	}
	from := make([]int32, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, int32(s))
	}

	o, err := scanOrder(r.DB.QueryRow(ctx,
		`UPDATE user_order SET `+set+` WHERE id=$1 AND status = ANY($4) RETURNING `+orderColumns,
		t.OrderID, int(t.To), t.At, from,
	))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, err
	}

	// no row updated: either the order is gone or its status moved on
	var current int
	err = r.DB.QueryRow(ctx, `SELECT status FROM user_order WHERE id=$1`, t.OrderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order %d", ErrNotFound, t.OrderID)
	}
	if err != nil {
		return Order{}, err
	}
	return Order{}, fmt.Errorf("%w: order %d is %s", ErrInvalidState, t.OrderID, Status(current))
}

func (r *Repo) list(ctx context.Context, q string, arg string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status int
		image  *string
		remark *string
	)
	err := row.Scan(
		&o.ID, &o.OrderNo, &o.ProductID, &o.ProductTitle, &image, &o.Price,
		&o.BuyerID, &o.BuyerName, &o.SellerID, &status, &o.Address, &o.Phone, &remark,
		&o.CreateTime, &o.UpdateTime, &o.PayTime, &o.ShipTime, &o.CompleteTime,
	)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if image != nil {
		o.ProductImage = *image
	}
	if remark != nil {
		o.Remark = *remark
	}
	return o, nil
}
