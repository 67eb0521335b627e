package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, customer_id, sale_id, status, created_at, updated_at, total_price, version, priced_at, discounted_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.SaleID, &o.Status, &o.CreatedAt, &o.UpdatedAt, &o.TotalPrice, &o.Version, &o.PricedAt, &o.DiscountedAt)
	return o, err
}

type CreateOrderParams struct {
	CustomerID pgtype.Int8
	SaleID     int64
	Status     OrderStatus
	CreatedAt  time.Time
	TotalPrice int64
}

const createOrder = `
INSERT INTO orders (customer_id, sale_id, status, created_at, updated_at, total_price, version, priced_at, discounted_at)
VALUES ($1, $2, $3, $4, $4, $5, 1, $4, $4)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder, arg.CustomerID, arg.SaleID, arg.Status, arg.CreatedAt, arg.TotalPrice))
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

type UpdateOrderParams struct {
	ID         int64
	Version    int32
	CustomerID pgtype.Int8
	Status     OrderStatus
	TotalPrice int64
	UpdatedAt  time.Time

	// Zero PricedAt or DiscountedAt keeps the stored value.
	PricedAt     time.Time
	DiscountedAt time.Time
}

// updateOrder bumps the version; a stale version matches no row and yields pgx.ErrNoRows.
const updateOrder = `
UPDATE orders
SET customer_id = $3, status = $4, total_price = $5, updated_at = $6, version = version + 1,
    priced_at = COALESCE($7::timestamptz, priced_at), discounted_at = COALESCE($8::timestamptz, discounted_at)
WHERE id = $1 AND version = $2
RETURNING ` + orderColumns

func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrder, arg.ID, arg.Version, arg.CustomerID, arg.Status, arg.TotalPrice, arg.UpdatedAt,
		optionalTime(arg.PricedAt), optionalTime(arg.DiscountedAt)))
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

const deleteOrder = `DELETE FROM orders WHERE id = $1`

func (q *Queries) DeleteOrder(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteOrder, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type InsertOrderItemParams struct {
	OrderID    int64
	ProductID  int64
	Quantity   int32
	UnitPrice  int64
	TotalPrice int64
}

const insertOrderItem = `
INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, product_id, quantity, unit_price, total_price`

func (q *Queries) InsertOrderItem(ctx context.Context, arg InsertOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, insertOrderItem, arg.OrderID, arg.ProductID, arg.Quantity, arg.UnitPrice, arg.TotalPrice).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice)
	return it, err
}

const listOrderItems = `
SELECT id, order_id, product_id, quantity, unit_price, total_price
FROM order_items WHERE order_id = $1 ORDER BY id`

func (q *Queries) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const deleteOrderItems = `DELETE FROM order_items WHERE order_id = $1`

func (q *Queries) DeleteOrderItems(ctx context.Context, orderID int64) error {
	_, err := q.db.Exec(ctx, deleteOrderItems, orderID)
	return err
}

const insertOrderPromotion = `INSERT INTO order_promotions (order_id, promotion_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

func (q *Queries) InsertOrderPromotion(ctx context.Context, orderID, promotionID int64) error {
	_, err := q.db.Exec(ctx, insertOrderPromotion, orderID, promotionID)
	return err
}

const listOrderPromotionIDs = `SELECT promotion_id FROM order_promotions WHERE order_id = $1 ORDER BY promotion_id`

func (q *Queries) ListOrderPromotionIDs(ctx context.Context, orderID int64) ([]int64, error) {
	return q.collectIDs(ctx, listOrderPromotionIDs, orderID)
}

const deleteOrderPromotions = `DELETE FROM order_promotions WHERE order_id = $1`

func (q *Queries) DeleteOrderPromotions(ctx context.Context, orderID int64) error {
	_, err := q.db.Exec(ctx, deleteOrderPromotions, orderID)
	return err
}

// ListOrdersParams holds the hard filters pushed down to SQL. From is inclusive, To exclusive.
type ListOrdersParams struct {
	CustomerID pgtype.Int8
	SaleID     pgtype.Int8
	Status     pgtype.Text
	From       pgtype.Timestamptz
	To         pgtype.Timestamptz
	Limit      int32
	Offset     int32
}

const orderFilter = `
WHERE ($1::bigint IS NULL OR o.customer_id = $1)
  AND ($2::bigint IS NULL OR o.sale_id = $2)
  AND ($3::text IS NULL OR o.status = $3)
  AND ($4::timestamptz IS NULL OR o.created_at >= $4)
  AND ($5::timestamptz IS NULL OR o.created_at < $5)`

const listOrders = `
SELECT o.id, o.customer_id, o.sale_id, o.status, o.created_at, o.updated_at, o.total_price, o.version,
       o.priced_at, o.discounted_at,
       c.name, u.full_name,
       (SELECT count(*) FROM order_items i WHERE i.order_id = o.id),
       (SELECT COALESCE(sum(i.total_price), 0)::bigint FROM order_items i WHERE i.order_id = o.id)
FROM orders o
JOIN users u ON u.id = o.sale_id
LEFT JOIN customers c ON c.id = o.customer_id` + orderFilter + `
ORDER BY o.created_at DESC, o.id DESC
LIMIT $6 OFFSET $7`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]OrderSummaryRow, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.CustomerID, arg.SaleID, arg.Status, arg.From, arg.To, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderSummaryRow
	for rows.Next() {
		var r OrderSummaryRow
		if err := rows.Scan(
			&r.ID, &r.CustomerID, &r.SaleID, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.TotalPrice, &r.Version,
			&r.PricedAt, &r.DiscountedAt,
			&r.CustomerName, &r.SaleName, &r.ItemsCount, &r.Subtotal,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const countOrders = `SELECT count(*) FROM orders o` + orderFilter

func (q *Queries) CountOrders(ctx context.Context, arg ListOrdersParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrders, arg.CustomerID, arg.SaleID, arg.Status, arg.From, arg.To).Scan(&n)
	return n, err
}

// PaidOrdersParams selects a sale user's paid orders with createdAt in [From, To).
type PaidOrdersParams struct {
	SaleID int64
	From   time.Time
	To     time.Time
}

const listPaidOrdersForSale = `SELECT ` + orderColumns + ` FROM orders
WHERE sale_id = $1 AND status = 'paid' AND created_at >= $2 AND created_at < $3
ORDER BY id`

func (q *Queries) ListPaidOrdersForSale(ctx context.Context, arg PaidOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listPaidOrdersForSale, arg.SaleID, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
