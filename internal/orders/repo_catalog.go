package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-tiered-orders/internal/inventory"
)

// CatalogRepo is the product side of the database: snapshot lookups for
// line items and the raw stock primitives the Guard serializes.
type CatalogRepo struct{ DB *pgxpool.Pool }

var (
	_ Catalog              = (*CatalogRepo)(nil)
	_ inventory.StockStore = (*CatalogRepo)(nil)
)

func (r *CatalogRepo) FindProduct(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, name, image, price_cents, stock, updated_at FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Name, &p.Image, &p.PriceCents, &p.Stock, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return Product{}, persistErr("find product", err)
	}
	return p, nil
}

// FindStock is a plain read. Callers needing read-check-write go through the Guard.
func (r *CatalogRepo) FindStock(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return 0, persistErr("find stock", err)
	}
	return n, nil
}

func (r *CatalogRepo) SetStock(ctx context.Context, productID string, qty int) error {
	tag, err := r.DB.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, productID, qty)
	if err != nil {
		return persistErr("set stock", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return nil
}

func (r *CatalogRepo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, image, price_cents, stock, updated_at FROM products ORDER BY id`)
	if err != nil {
		return nil, persistErr("list products", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Image, &p.PriceCents, &p.Stock, &p.UpdatedAt); err != nil {
			return nil, persistErr("scan product", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list products", err)
	}
	return out, nil
}
