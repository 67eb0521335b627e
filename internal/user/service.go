package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
)

var (
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrCustomerNotFound is returned when a referenced customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrNotSale indicates the user does not hold the sale role.
	ErrNotSale = errors.New("user is not a sale")
)

// Querier captures the lookups the directory needs.
type Querier interface {
	GetUser(ctx context.Context, id int64) (db.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]db.User, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
}

// User is a directory entry with its parsed roles.
type User struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	FullName string  `json:"fullName"`
	Roles    RoleSet `json:"-"`
}

// Directory answers existence and role questions about users and customers.
// User and customer management live outside this service.
type Directory struct {
	Q Querier
}

func (d Directory) ready() error {
	if d.Q == nil {
		return errors.New("user directory not configured")
	}
	return nil
}

// Get returns the user or a NotFound error.
func (d Directory) Get(ctx context.Context, id int64) (User, error) {
	if err := d.ready(); err != nil {
		return User{}, err
	}
	row, err := d.Q.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, common.Wrap(common.KindNotFound, ErrUserNotFound, fmt.Sprintf("user %d not found", id))
		}
		return User{}, fmt.Errorf("load user: %w", err)
	}
	return fromRow(row), nil
}

// RequireSale returns the user when it exists and holds the sale role.
func (d Directory) RequireSale(ctx context.Context, id int64) (User, error) {
	u, err := d.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !u.Roles.Has(RoleSale) {
		return User{}, common.Wrap(common.KindValidation, ErrNotSale, fmt.Sprintf("user %d is not a sale", id))
	}
	return u, nil
}

// ListSales returns every user holding the sale role, ordered by id.
func (d Directory) ListSales(ctx context.Context) ([]User, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	rows, err := d.Q.ListUsersByRole(ctx, RoleSale.String())
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	out := make([]User, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// RequireCustomer fails with NotFound when the customer does not exist.
func (d Directory) RequireCustomer(ctx context.Context, id int64) error {
	if err := d.ready(); err != nil {
		return err
	}
	ok, err := d.Q.CustomerExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check customer: %w", err)
	}
	if !ok {
		return common.Wrap(common.KindNotFound, ErrCustomerNotFound, fmt.Sprintf("customer %d not found", id))
	}
	return nil
}

func fromRow(row db.User) User {
	return User{ID: row.ID, Username: row.Username, FullName: row.FullName, Roles: NewRoleSet(row.Roles)}
}
