package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, title, description, price, category, images, seller_id,
	status, shipped, view_count, create_time, update_time`

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, sellerID string, in CreateInput) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO product(title, description, price, category, images, seller_id, status, shipped, view_count)
		VALUES ($1,$2,$3::numeric,$4,$5,$6,0,0,0)
		RETURNING `+productColumns,
		in.Title, in.Description, in.Price.String(), in.Category, in.Images, sellerID,
	))
}

func (r *Repo) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM product WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return p, err
}

func (r *Repo) SetStatus(ctx context.Context, id int64, status int) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: status %d", ErrInvalidValue, status)
	}
	return r.exec(ctx, id, `UPDATE product SET status=$2, update_time=now() WHERE id=$1`, status)
}

func (r *Repo) SetShipped(ctx context.Context, id int64, shipped int) error {
	if !ValidShipped(shipped) {
		return fmt.Errorf("%w: shipped %d", ErrInvalidValue, shipped)
	}
	return r.exec(ctx, id, `UPDATE product SET shipped=$2, update_time=now() WHERE id=$1`, shipped)
}

// exec matches rows even when the value is unchanged, so repeating a set is a success.
func (r *Repo) exec(ctx context.Context, id int64, q string, v int) error {
	ct, err := r.DB.Exec(ctx, q, id, v)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p                     Product
		desc, category, image *string
	)
	err := row.Scan(&p.ID, &p.Title, &desc, &p.Price, &category, &image, &p.SellerID,
		&p.Status, &p.Shipped, &p.ViewCount, &p.CreateTime, &p.UpdateTime)
	if err != nil {
		return Product{}, err
	}
	if desc != nil {
		p.Description = *desc
	}
	if category != nil {
		p.Category = *category
	}
	if image != nil {
		p.Images = *image
	}
	return p, nil
}
