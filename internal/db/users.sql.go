package db

import "context"

const getUser = `SELECT id, username, full_name, roles, created_at FROM users WHERE id = $1`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUser, id).Scan(&u.ID, &u.Username, &u.FullName, &u.Roles, &u.CreatedAt)
	return u, err
}

const listUsersByRole = `SELECT id, username, full_name, roles, created_at FROM users WHERE $1 = ANY(roles) ORDER BY id`

func (q *Queries) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsersByRole, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Roles, &u.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

const customerExists = `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`

func (q *Queries) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, customerExists, id).Scan(&ok)
	return ok, err
}
