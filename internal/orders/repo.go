package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-tiered-orders/internal/pricing"
)

// querier is what both *pgxpool.Pool and pgx.Tx give us.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderColumns = `
	o.id, COALESCE(o.external_id, ''), o.buyer_id, b.email, o.recipient, o.phone, o.requirement,
	o.status, o.total_cents, o.created_at, o.updated_at, d.id, d.address, d.status`

const orderFrom = `
	FROM orders o
	JOIN buyers b ON b.id = o.buyer_id
	JOIN deliveries d ON d.id = o.delivery_id`

func scanOrder(row pgx.Row, extra ...any) (Order, error) {
	var o Order
	var status, dstatus string
	dest := []any{
		&o.ID, &o.ExternalID, &o.BuyerID, &o.BuyerEmail, &o.Recipient, &o.Phone, &o.Requirement,
		&status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt, &o.Delivery.ID, &o.Delivery.Address, &dstatus,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.Delivery.Status = DeliveryStatus(dstatus)
	return o, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repo) FindBuyerByEmail(ctx context.Context, email string) (Buyer, error) {
	var b Buyer
	var tier string
	err := r.DB.QueryRow(ctx, `SELECT id, email, name, phone, tier FROM buyers WHERE email=$1`, email).
		Scan(&b.ID, &b.Email, &b.Name, &b.Phone, &tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return Buyer{}, fmt.Errorf("%w: %s", ErrBuyerNotFound, email)
	}
	if err != nil {
		return Buyer{}, persistErr("find buyer", err)
	}
	if b.Tier, err = pricing.ParseTier(tier); err != nil {
		return Buyer{}, persistErr("find buyer", err)
	}
	return b, nil
}

func (r *Repo) FindOrderByExternalID(ctx context.Context, externalID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE o.external_id=$1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: external_id %s", ErrOrderNotFound, externalID)
	}
	if err != nil {
		return Order{}, persistErr("find order by external id", err)
	}
	if err := attachItems(ctx, r.DB, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return getOrder(ctx, r.DB, orderID, "")
}

func getOrder(ctx context.Context, q querier, orderID, suffix string) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE o.id=$1`+suffix, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return Order{}, persistErr("get order", err)
	}
	if err := attachItems(ctx, q, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+orderFrom+`
		WHERE o.buyer_id=$1 ORDER BY o.created_at DESC, o.id DESC`, buyerID)
	if err != nil {
		return nil, persistErr("list buyer orders", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, persistErr("scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list buyer orders", err)
	}
	rows.Close()

	ptrs := make([]*Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := attachItems(ctx, r.DB, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOrders expects a normalized query so the ORDER BY comes from the whitelist.
func (r *Repo) ListOrders(ctx context.Context, q ListQuery) ([]AdminRow, int, error) {
	const where = ` WHERE ($1 = '' OR strpos(lower(b.email), lower($1)) > 0)`

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*)`+orderFrom+where, q.Keyword).Scan(&total); err != nil {
		return nil, 0, persistErr("count orders", err)
	}

	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+`, b.name, b.phone, b.tier`+orderFrom+where+
		` ORDER BY `+q.OrderBy()+` LIMIT $2 OFFSET $3`, q.Keyword, q.Size, q.Page*q.Size)
	if err != nil {
		return nil, 0, persistErr("list orders", err)
	}
	defer rows.Close()

	var out []AdminRow
	for rows.Next() {
		var ar AdminRow
		var tier string
		ar.Order, err = scanOrder(rows, &ar.BuyerName, &ar.BuyerPhone, &tier)
		if err != nil {
			return nil, 0, persistErr("scan order", err)
		}
		if ar.BuyerTier, err = pricing.ParseTier(tier); err != nil {
			return nil, 0, persistErr("scan order", err)
		}
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistErr("list orders", err)
	}
	rows.Close()

	ptrs := make([]*Order, len(out))
	for i := range out {
		ptrs[i] = &out[i].Order
	}
	if err := attachItems(ctx, r.DB, ptrs); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// attachItems loads line items for all given orders in one query.
func attachItems(ctx context.Context, q querier, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := q.Query(ctx, `
		SELECT id, order_id, line_no, product_id, product_name, product_image, quantity, unit_price_cents, subtotal_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return persistErr("load line items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.ID, &li.OrderID, &li.LineNo, &li.ProductID, &li.ProductName, &li.ProductImage,
			&li.Quantity, &li.UnitPriceCents, &li.SubtotalCents); err != nil {
			return persistErr("scan line item", err)
		}
		if o, ok := byID[li.OrderID]; ok {
			o.Items = append(o.Items, li)
		}
	}
	if err := rows.Err(); err != nil {
		return persistErr("load line items", err)
	}
	return nil
}

func (r *Repo) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&txRepo{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

type txRepo struct{ tx pgx.Tx }

var _ TxStore = (*txRepo)(nil)

func (t *txRepo) CreateDelivery(ctx context.Context, d *Delivery) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO deliveries(id, address, status) VALUES ($1,$2,$3)`,
		d.ID, d.Address, string(d.Status))
	return persistErr("create delivery", err)
}

func (t *txRepo) CreateOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, buyer_id, delivery_id, recipient, phone, requirement, status, total_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, nullIfEmpty(o.ExternalID), o.BuyerID, o.Delivery.ID, o.Recipient, o.Phone, o.Requirement,
		string(o.Status), o.TotalCents, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: external_id %s", ErrDuplicateOrder, o.ExternalID)
	}
	return persistErr("create order", err)
}

func (t *txRepo) CreateLineItem(ctx context.Context, li *LineItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items(id, order_id, line_no, product_id, product_name, product_image, quantity, unit_price_cents, subtotal_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		li.ID, li.OrderID, li.LineNo, li.ProductID, li.ProductName, li.ProductImage, li.Quantity, li.UnitPriceCents, li.SubtotalCents,
	)
	return persistErr("create line item", err)
}

func (t *txRepo) SumPlacedTotals(ctx context.Context, buyerID string) (int64, error) {
	var sum int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(total_cents), 0) FROM orders WHERE buyer_id=$1 AND status=$2`,
		buyerID, string(StatusPlaced)).Scan(&sum)
	if err != nil {
		return 0, persistErr("sum placed totals", err)
	}
	return sum, nil
}

func (t *txRepo) UpdateBuyerTier(ctx context.Context, buyerID string, tier pricing.Tier) error {
	tag, err := t.tx.Exec(ctx, `UPDATE buyers SET tier=$2, updated_at=now() WHERE id=$1`, buyerID, string(tier))
	if err != nil {
		return persistErr("update buyer tier", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrBuyerNotFound, buyerID)
	}
	return nil
}

func (t *txRepo) LockOrder(ctx context.Context, orderID string) (Order, error) {
	return getOrder(ctx, t.tx, orderID, ` FOR UPDATE OF o, d`)
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, orderID string, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, string(status))
	if err != nil {
		return persistErr("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return nil
}

func (t *txRepo) UpdateDeliveryStatus(ctx context.Context, deliveryID string, status DeliveryStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE deliveries SET status=$2 WHERE id=$1`, deliveryID, string(status))
	return persistErr("update delivery status", err)
}

func (t *txRepo) DeleteOrder(ctx context.Context, orderID string) error {
	var deliveryID string
	err := t.tx.QueryRow(ctx, `DELETE FROM orders WHERE id=$1 RETURNING delivery_id`, orderID).Scan(&deliveryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return persistErr("delete order", err)
	}
	// order_items ikut terhapus lewat ON DELETE CASCADE
	if _, err := t.tx.Exec(ctx, `DELETE FROM deliveries WHERE id=$1`, deliveryID); err != nil {
		return persistErr("delete delivery", err)
	}
	return nil
}
