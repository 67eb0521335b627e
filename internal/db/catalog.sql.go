package db

import "context"

const getProductsByIDs = `SELECT id, name, sale_price, import_price, category_id FROM products WHERE id = ANY($1::bigint[]) ORDER BY id`

func (q *Queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	rows, err := q.db.Query(ctx, getProductsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SalePrice, &p.ImportPrice, &p.CategoryID); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const countProductsByIDs = `SELECT count(*) FROM products WHERE id = ANY($1::bigint[])`

func (q *Queries) CountProductsByIDs(ctx context.Context, ids []int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countProductsByIDs, ids).Scan(&n)
	return n, err
}

const countCategoriesByIDs = `SELECT count(*) FROM categories WHERE id = ANY($1::bigint[])`

func (q *Queries) CountCategoriesByIDs(ctx context.Context, ids []int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countCategoriesByIDs, ids).Scan(&n)
	return n, err
}

const getCategory = `SELECT id, name FROM categories WHERE id = $1`

func (q *Queries) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := q.db.QueryRow(ctx, getCategory, id).Scan(&c.ID, &c.Name)
	return c, err
}

const countProductsInCategory = `SELECT count(*) FROM products WHERE category_id = $1`

func (q *Queries) CountProductsInCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countProductsInCategory, categoryID).Scan(&n)
	return n, err
}

const deleteCategory = `DELETE FROM categories WHERE id = $1`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
