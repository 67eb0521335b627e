package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const promotionColumns = `id, name, description, discount_percent, start_date, end_date, scope, created_at`

func scanPromotion(row pgx.Row) (Promotion, error) {
	var p Promotion
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DiscountPercent, &p.StartDate, &p.EndDate, &p.Scope, &p.CreatedAt)
	return p, err
}

func collectPromotions(rows pgx.Rows) ([]Promotion, error) {
	defer rows.Close()
	var items []Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func collectTargets(rows pgx.Rows) ([]PromotionTargetRow, error) {
	defer rows.Close()
	var items []PromotionTargetRow
	for rows.Next() {
		var r PromotionTargetRow
		if err := rows.Scan(&r.TargetID, &r.PromotionID, &r.DiscountPercent, &r.Scope, &r.StartDate, &r.EndDate); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// ActivePromotionsParams narrows attached promotions to a target set and instant.
type ActivePromotionsParams struct {
	TargetIDs []int64
	At        time.Time
}

const listActiveProductPromotions = `
SELECT pp.product_id, p.id, p.discount_percent, p.scope, p.start_date, p.end_date
FROM product_promotions pp
JOIN promotions p ON p.id = pp.promotion_id
WHERE pp.product_id = ANY($1::bigint[])
  AND p.start_date <= $2 AND p.end_date >= $2
ORDER BY pp.product_id, p.id`

// ListActiveProductPromotions returns promotions attached to the products and active at At.
func (q *Queries) ListActiveProductPromotions(ctx context.Context, arg ActivePromotionsParams) ([]PromotionTargetRow, error) {
	rows, err := q.db.Query(ctx, listActiveProductPromotions, arg.TargetIDs, arg.At)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

const listActiveCategoryPromotions = `
SELECT cp.category_id, p.id, p.discount_percent, p.scope, p.start_date, p.end_date
FROM category_promotions cp
JOIN promotions p ON p.id = cp.promotion_id
WHERE cp.category_id = ANY($1::bigint[])
  AND p.start_date <= $2 AND p.end_date >= $2
ORDER BY cp.category_id, p.id`

// ListActiveCategoryPromotions returns promotions attached to the categories and active at At.
func (q *Queries) ListActiveCategoryPromotions(ctx context.Context, arg ActivePromotionsParams) ([]PromotionTargetRow, error) {
	rows, err := q.db.Query(ctx, listActiveCategoryPromotions, arg.TargetIDs, arg.At)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

const getPromotionsByIDs = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = ANY($1::bigint[]) ORDER BY id`

func (q *Queries) GetPromotionsByIDs(ctx context.Context, ids []int64) ([]Promotion, error) {
	rows, err := q.db.Query(ctx, getPromotionsByIDs, ids)
	if err != nil {
		return nil, err
	}
	return collectPromotions(rows)
}

const getPromotion = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

func (q *Queries) GetPromotion(ctx context.Context, id int64) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, getPromotion, id))
}

// ListPromotionsParams filters the admin promotion listing.
type ListPromotionsParams struct {
	Scope    pgtype.Text
	ActiveAt pgtype.Timestamptz
	Search   pgtype.Text
	Limit    int32
	Offset   int32
}

const promotionFilter = `
WHERE ($1::text IS NULL OR scope = $1)
  AND ($2::timestamptz IS NULL OR (start_date <= $2 AND end_date >= $2))
  AND ($3::text IS NULL OR name ILIKE '%' || $3 || '%')`

const listPromotions = `SELECT ` + promotionColumns + ` FROM promotions` + promotionFilter + `
ORDER BY start_date DESC, id DESC
LIMIT $4 OFFSET $5`

func (q *Queries) ListPromotions(ctx context.Context, arg ListPromotionsParams) ([]Promotion, error) {
	rows, err := q.db.Query(ctx, listPromotions, arg.Scope, arg.ActiveAt, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectPromotions(rows)
}

const countPromotions = `SELECT count(*) FROM promotions` + promotionFilter

func (q *Queries) CountPromotions(ctx context.Context, arg ListPromotionsParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countPromotions, arg.Scope, arg.ActiveAt, arg.Search).Scan(&n)
	return n, err
}

// PromotionParams carries the writable promotion columns.
type PromotionParams struct {
	ID              int64
	Name            string
	Description     pgtype.Text
	DiscountPercent int32
	StartDate       time.Time
	EndDate         time.Time
	Scope           PromotionScope
}

const createPromotion = `
INSERT INTO promotions (name, description, discount_percent, start_date, end_date, scope)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + promotionColumns

func (q *Queries) CreatePromotion(ctx context.Context, arg PromotionParams) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, createPromotion, arg.Name, arg.Description, arg.DiscountPercent, arg.StartDate, arg.EndDate, arg.Scope))
}

const updatePromotion = `
UPDATE promotions
SET name = $2, description = $3, discount_percent = $4, start_date = $5, end_date = $6, scope = $7
WHERE id = $1
RETURNING ` + promotionColumns

func (q *Queries) UpdatePromotion(ctx context.Context, arg PromotionParams) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, updatePromotion, arg.ID, arg.Name, arg.Description, arg.DiscountPercent, arg.StartDate, arg.EndDate, arg.Scope))
}

const deletePromotion = `DELETE FROM promotions WHERE id = $1`

// DeletePromotion removes the row; target and order links cascade.
func (q *Queries) DeletePromotion(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deletePromotion, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listPromotionProductIDs = `SELECT product_id FROM product_promotions WHERE promotion_id = $1 ORDER BY product_id`

func (q *Queries) ListPromotionProductIDs(ctx context.Context, promotionID int64) ([]int64, error) {
	return q.collectIDs(ctx, listPromotionProductIDs, promotionID)
}

const listPromotionCategoryIDs = `SELECT category_id FROM category_promotions WHERE promotion_id = $1 ORDER BY category_id`

func (q *Queries) ListPromotionCategoryIDs(ctx context.Context, promotionID int64) ([]int64, error) {
	return q.collectIDs(ctx, listPromotionCategoryIDs, promotionID)
}

const insertProductPromotions = `
INSERT INTO product_promotions (product_id, promotion_id)
SELECT unnest($1::bigint[]), $2
ON CONFLICT DO NOTHING`

func (q *Queries) InsertProductPromotions(ctx context.Context, promotionID int64, productIDs []int64) error {
	_, err := q.db.Exec(ctx, insertProductPromotions, productIDs, promotionID)
	return err
}

const insertCategoryPromotions = `
INSERT INTO category_promotions (category_id, promotion_id)
SELECT unnest($1::bigint[]), $2
ON CONFLICT DO NOTHING`

func (q *Queries) InsertCategoryPromotions(ctx context.Context, promotionID int64, categoryIDs []int64) error {
	_, err := q.db.Exec(ctx, insertCategoryPromotions, categoryIDs, promotionID)
	return err
}

const deletePromotionTargets = `
WITH p AS (DELETE FROM product_promotions WHERE promotion_id = $1)
DELETE FROM category_promotions WHERE promotion_id = $1`

func (q *Queries) DeletePromotionTargets(ctx context.Context, promotionID int64) error {
	_, err := q.db.Exec(ctx, deletePromotionTargets, promotionID)
	return err
}

func (q *Queries) collectIDs(ctx context.Context, sql string, args ...any) ([]int64, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
