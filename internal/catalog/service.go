package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
)

var (
	// ErrCategoryNotFound is returned when a category does not exist.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrCategoryInUse is returned when deleting a category that still has products.
	ErrCategoryInUse = errors.New("catalog: category still has products")
)

// Querier captures the store methods the category guard touches.
type Querier interface {
	GetCategory(ctx context.Context, id int64) (db.Category, error)
	CountProductsInCategory(ctx context.Context, categoryID int64) (int64, error)
	DeleteCategory(ctx context.Context, id int64) (int64, error)
}

// Store adds transactional execution to Querier.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(Querier) error) error
}

type pgStore struct{ *db.Store }

// NewStore adapts the postgres store for the catalog service.
func NewStore(s *db.Store) Store { return pgStore{s} }

func (p pgStore) InTx(ctx context.Context, fn func(Querier) error) error {
	return p.ExecTx(ctx, func(q *db.Queries) error { return fn(q) })
}

// Category is the admin view of a category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Service guards category maintenance.
type Service struct {
	Store  Store
	Logger zerolog.Logger
}

func notFound(id int64) error {
	return common.Wrap(common.KindNotFound, ErrCategoryNotFound, fmt.Sprintf("category %d not found", id))
}

func inUse(id int64, products int64) error {
	return common.Wrap(common.KindValidation, ErrCategoryInUse,
		fmt.Sprintf("category %d still has %d product(s)", id, products))
}

// GetCategory returns the category or a NotFound error.
func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	if s == nil || s.Store == nil {
		return Category{}, errors.New("catalog service not configured")
	}
	row, err := s.Store.GetCategory(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, notFound(id)
		}
		return Category{}, fmt.Errorf("load category: %w", err)
	}
	return Category{ID: row.ID, Name: row.Name}, nil
}

// DeleteCategory removes a category that no product belongs to.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if s == nil || s.Store == nil {
		return errors.New("catalog service not configured")
	}
	err := s.Store.InTx(ctx, func(q Querier) error {
		if _, err := q.GetCategory(ctx, id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound(id)
			}
			return fmt.Errorf("load category: %w", err)
		}
		n, err := q.CountProductsInCategory(ctx, id)
		if err != nil {
			return fmt.Errorf("count products: %w", err)
		}
		if n > 0 {
			return inUse(id, n)
		}
		deleted, err := q.DeleteCategory(ctx, id)
		if err != nil {
			// a product may have been attached since the count
			if db.IsForeignKeyViolation(err) {
				return common.Wrap(common.KindValidation, ErrCategoryInUse, fmt.Sprintf("category %d still has products", id))
			}
			return fmt.Errorf("delete category: %w", err)
		}
		if deleted == 0 {
			return notFound(id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Logger.Info().Int64("category_id", id).Msg("category deleted")
	return nil
}
