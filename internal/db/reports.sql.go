package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const countProducts = `SELECT count(*) FROM products`

func (q *Queries) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countProducts).Scan(&n)
	return n, err
}

// RangeParams bounds createdAt to [From, To).
type RangeParams struct {
	From time.Time
	To   time.Time
}

type OrdersOverviewRow struct {
	Orders     int64
	PaidOrders int64
	Revenue    int64
}

const getOrdersOverview = `
SELECT count(*),
       count(*) FILTER (WHERE status = 'paid'),
       COALESCE(sum(total_price) FILTER (WHERE status = 'paid'), 0)::bigint
FROM orders
WHERE created_at >= $1 AND created_at < $2`

func (q *Queries) GetOrdersOverview(ctx context.Context, arg RangeParams) (OrdersOverviewRow, error) {
	var r OrdersOverviewRow
	err := q.db.QueryRow(ctx, getOrdersOverview, arg.From, arg.To).Scan(&r.Orders, &r.PaidOrders, &r.Revenue)
	return r, err
}

type DailyRevenueRow struct {
	Day     time.Time
	Orders  int64
	Revenue int64
}

const listDailyRevenue = `
SELECT (created_at AT TIME ZONE 'UTC')::date AS day, count(*), COALESCE(sum(total_price), 0)::bigint
FROM orders
WHERE status = 'paid' AND created_at >= $1 AND created_at < $2
GROUP BY day
ORDER BY day`

func (q *Queries) ListDailyRevenue(ctx context.Context, arg RangeParams) ([]DailyRevenueRow, error) {
	rows, err := q.db.Query(ctx, listDailyRevenue, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DailyRevenueRow
	for rows.Next() {
		var r DailyRevenueRow
		if err := rows.Scan(&r.Day, &r.Orders, &r.Revenue); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// TopProductsParams ranks paid order lines with createdAt in [From, To). Null bounds are open.
type TopProductsParams struct {
	From  pgtype.Timestamptz
	To    pgtype.Timestamptz
	Limit int32
}

type TopProductRow struct {
	ProductID   int64
	ProductName string
	Quantity    int64
	Revenue     int64
}

const listTopProducts = `
SELECT p.id, p.name, sum(i.quantity)::bigint AS qty, sum(i.total_price)::bigint AS revenue
FROM order_items i
JOIN orders o ON o.id = i.order_id
JOIN products p ON p.id = i.product_id
WHERE o.status = 'paid'
  AND ($1::timestamptz IS NULL OR o.created_at >= $1)
  AND ($2::timestamptz IS NULL OR o.created_at < $2)
GROUP BY p.id, p.name
ORDER BY qty DESC, revenue DESC, p.id
LIMIT $3`

func (q *Queries) ListTopProducts(ctx context.Context, arg TopProductsParams) ([]TopProductRow, error) {
	rows, err := q.db.Query(ctx, listTopProducts, arg.From, arg.To, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TopProductRow
	for rows.Next() {
		var r TopProductRow
		if err := rows.Scan(&r.ProductID, &r.ProductName, &r.Quantity, &r.Revenue); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// PaidItemFactsParams selects paid order lines with createdAt in [From, To),
// optionally narrowed to one category.
type PaidItemFactsParams struct {
	From       time.Time
	To         time.Time
	CategoryID pgtype.Int8
}

// PaidItemFact is one paid order line with the product's current import price.
type PaidItemFact struct {
	CreatedAt   time.Time
	ProductID   int64
	ProductName string
	CategoryID  int64
	Quantity    int32
	Revenue     int64
	ImportPrice int64
}

const listPaidItemFacts = `
SELECT o.created_at, p.id, p.name, p.category_id, i.quantity, i.total_price, p.import_price
FROM order_items i
JOIN orders o ON o.id = i.order_id
JOIN products p ON p.id = i.product_id
WHERE o.status = 'paid' AND o.created_at >= $1 AND o.created_at < $2
  AND ($3::bigint IS NULL OR p.category_id = $3)
ORDER BY o.created_at, i.id`

func (q *Queries) ListPaidItemFacts(ctx context.Context, arg PaidItemFactsParams) ([]PaidItemFact, error) {
	rows, err := q.db.Query(ctx, listPaidItemFacts, arg.From, arg.To, arg.CategoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaidItemFact
	for rows.Next() {
		var r PaidItemFact
		if err := rows.Scan(&r.CreatedAt, &r.ProductID, &r.ProductName, &r.CategoryID, &r.Quantity, &r.Revenue, &r.ImportPrice); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
