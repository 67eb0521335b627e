package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
)

var (
	// ErrPromotionActive is returned when editing a promotion inside its active window.
	ErrPromotionActive = errors.New("promotion: active promotions cannot be edited")
	// ErrStartInPast is returned when a new promotion would start before today.
	ErrStartInPast = errors.New("promotion: start date in the past")
	// ErrInvalidTargets indicates the target lists do not fit the scope.
	ErrInvalidTargets = errors.New("promotion: targets do not match scope")
)

// AdminQuerier captures the store methods used by promotion management.
type AdminQuerier interface {
	GetPromotion(ctx context.Context, id int64) (db.Promotion, error)
	ListPromotions(ctx context.Context, arg db.ListPromotionsParams) ([]db.Promotion, error)
	CountPromotions(ctx context.Context, arg db.ListPromotionsParams) (int64, error)
	CreatePromotion(ctx context.Context, arg db.PromotionParams) (db.Promotion, error)
	UpdatePromotion(ctx context.Context, arg db.PromotionParams) (db.Promotion, error)
	DeletePromotion(ctx context.Context, id int64) (int64, error)
	ListPromotionProductIDs(ctx context.Context, promotionID int64) ([]int64, error)
	ListPromotionCategoryIDs(ctx context.Context, promotionID int64) ([]int64, error)
	InsertProductPromotions(ctx context.Context, promotionID int64, productIDs []int64) error
	InsertCategoryPromotions(ctx context.Context, promotionID int64, categoryIDs []int64) error
	DeletePromotionTargets(ctx context.Context, promotionID int64) error
	CountProductsByIDs(ctx context.Context, ids []int64) (int64, error)
	CountCategoriesByIDs(ctx context.Context, ids []int64) (int64, error)
}

// Store adds transactional execution to AdminQuerier.
type Store interface {
	AdminQuerier
	InTx(ctx context.Context, fn func(AdminQuerier) error) error
}

type pgStore struct{ *db.Store }

// NewStore adapts the postgres store for the promotion service.
func NewStore(s *db.Store) Store { return pgStore{s} }

func (p pgStore) InTx(ctx context.Context, fn func(AdminQuerier) error) error {
	return p.ExecTx(ctx, func(q *db.Queries) error { return fn(q) })
}

// Input carries the writable fields of a promotion and its targets.
type Input struct {
	Name            string
	Description     string
	DiscountPercent int
	StartDate       time.Time
	EndDate         time.Time
	Scope           Scope
	ProductIDs      []int64
	CategoryIDs     []int64
}

// Detail is a promotion with its targets.
type Detail struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DiscountPercent int       `json:"discountPercent"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	Scope           Scope     `json:"scope"`
	ProductIDs      []int64   `json:"productIds"`
	CategoryIDs     []int64   `json:"categoryIds"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ListQuery filters the promotion listing.
type ListQuery struct {
	Page       int
	PageSize   int
	Scope      *Scope
	ActiveOnly bool
	Search     string
}

// Service manages promotions and their targets.
type Service struct {
	Store  Store
	Now    func() time.Time
	Logger zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("promotion service not configured")
	}
	return nil
}

// Create validates and stores a promotion with its targets.
func (s *Service) Create(ctx context.Context, in Input) (Detail, error) {
	if err := s.ready(); err != nil {
		return Detail{}, err
	}
	in = normalizeInput(in)
	if err := validateInput(in); err != nil {
		return Detail{}, err
	}
	if startOfDay(in.StartDate).Before(startOfDay(s.now())) {
		return Detail{}, common.Wrap(common.KindValidation, ErrStartInPast, "start date cannot be in the past")
	}
	var detail Detail
	err := s.Store.InTx(ctx, func(q AdminQuerier) error {
		if err := checkTargetsExist(ctx, q, in); err != nil {
			return err
		}
		row, err := q.CreatePromotion(ctx, toParams(0, in))
		if err != nil {
			return fmt.Errorf("create promotion: %w", err)
		}
		if err := writeTargets(ctx, q, row.ID, in); err != nil {
			return err
		}
		detail = s.toDetail(row, in.ProductIDs, in.CategoryIDs)
		return nil
	})
	if err != nil {
		return Detail{}, err
	}
	s.Logger.Info().Int64("promotion_id", detail.ID).Str("scope", detail.Scope.String()).Int("percent", detail.DiscountPercent).Msg("promotion created")
	return detail, nil
}

// Update replaces a promotion and its targets. Promotions currently inside
// their active window are refused.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Detail, error) {
	if err := s.ready(); err != nil {
		return Detail{}, err
	}
	in = normalizeInput(in)
	if err := validateInput(in); err != nil {
		return Detail{}, err
	}
	var detail Detail
	err := s.Store.InTx(ctx, func(q AdminQuerier) error {
		existing, err := q.GetPromotion(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.Wrap(common.KindNotFound, ErrPromotionNotFound, fmt.Sprintf("promotion %d not found", id))
			}
			return fmt.Errorf("load promotion: %w", err)
		}
		if RuleFromModel(existing).ActiveAt(s.now()) {
			return common.Wrap(common.KindInvalidTransition, ErrPromotionActive, "promotion is active and cannot be edited")
		}
		if err := checkTargetsExist(ctx, q, in); err != nil {
			return err
		}
		row, err := q.UpdatePromotion(ctx, toParams(id, in))
		if err != nil {
			return fmt.Errorf("update promotion: %w", err)
		}
		if err := q.DeletePromotionTargets(ctx, id); err != nil {
			return fmt.Errorf("clear promotion targets: %w", err)
		}
		if err := writeTargets(ctx, q, id, in); err != nil {
			return err
		}
		detail = s.toDetail(row, in.ProductIDs, in.CategoryIDs)
		return nil
	})
	if err != nil {
		return Detail{}, err
	}
	s.Logger.Info().Int64("promotion_id", id).Msg("promotion updated")
	return detail, nil
}

// Delete removes the promotion. It reports false when nothing was deleted.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	n, err := s.Store.DeletePromotion(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete promotion: %w", err)
	}
	if n > 0 {
		s.Logger.Info().Int64("promotion_id", id).Msg("promotion deleted")
	}
	return n > 0, nil
}

// Get loads a promotion with its targets; nil when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row, err := s.Store.GetPromotion(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load promotion: %w", err)
	}
	detail, err := s.withTargets(ctx, row)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns a filtered page of promotions.
func (s *Service) List(ctx context.Context, query ListQuery) (common.Paged[Detail], error) {
	if err := s.ready(); err != nil {
		return common.Paged[Detail]{}, err
	}
	page, size := common.NormalizePage(query.Page, query.PageSize, 10, 100)
	params := db.ListPromotionsParams{Limit: int32(size), Offset: int32((page - 1) * size)}
	if query.Scope != nil {
		params.Scope = pgtype.Text{String: query.Scope.String(), Valid: true}
	}
	if query.ActiveOnly {
		params.ActiveAt = pgtype.Timestamptz{Time: s.now(), Valid: true}
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		params.Search = pgtype.Text{String: search, Valid: true}
	}
	total, err := s.Store.CountPromotions(ctx, params)
	if err != nil {
		return common.Paged[Detail]{}, fmt.Errorf("count promotions: %w", err)
	}
	rows, err := s.Store.ListPromotions(ctx, params)
	if err != nil {
		return common.Paged[Detail]{}, fmt.Errorf("list promotions: %w", err)
	}
	items := make([]Detail, 0, len(rows))
	for _, row := range rows {
		detail, err := s.withTargets(ctx, row)
		if err != nil {
			return common.Paged[Detail]{}, err
		}
		items = append(items, detail)
	}
	return common.Paged[Detail]{Items: items, Pagination: common.NewPagination(page, size, total)}, nil
}

func (s *Service) withTargets(ctx context.Context, row db.Promotion) (Detail, error) {
	products, err := s.Store.ListPromotionProductIDs(ctx, row.ID)
	if err != nil {
		return Detail{}, fmt.Errorf("list promotion products: %w", err)
	}
	categories, err := s.Store.ListPromotionCategoryIDs(ctx, row.ID)
	if err != nil {
		return Detail{}, fmt.Errorf("list promotion categories: %w", err)
	}
	return s.toDetail(row, products, categories), nil
}

func (s *Service) toDetail(row db.Promotion, products, categories []int64) Detail {
	rule := RuleFromModel(row)
	if products == nil {
		products = []int64{}
	}
	if categories == nil {
		categories = []int64{}
	}
	return Detail{
		ID:              row.ID,
		Name:            row.Name,
		Description:     row.Description.String,
		DiscountPercent: rule.Percent,
		StartDate:       row.StartDate,
		EndDate:         row.EndDate,
		Scope:           rule.Scope,
		ProductIDs:      products,
		CategoryIDs:     categories,
		Active:          rule.ActiveAt(s.now()),
		CreatedAt:       row.CreatedAt,
	}
}

func normalizeInput(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.StartDate = in.StartDate.UTC()
	in.EndDate = in.EndDate.UTC()
	in.ProductIDs = NormalizeIDs(in.ProductIDs)
	in.CategoryIDs = NormalizeIDs(in.CategoryIDs)
	return in
}

func validateInput(in Input) error {
	if in.Name == "" {
		return common.Errorf(common.KindValidation, "name is required")
	}
	rule := Rule{Percent: in.DiscountPercent, Start: in.StartDate, End: in.EndDate, Scope: in.Scope}
	if err := rule.Validate(); err != nil {
		return common.Wrap(common.KindValidation, err, "invalid promotion")
	}
	switch in.Scope {
	case ScopeProduct:
		if len(in.ProductIDs) == 0 || len(in.CategoryIDs) > 0 {
			return common.Wrap(common.KindValidation, ErrInvalidTargets, "product promotions need product ids and no category ids")
		}
	case ScopeCategory:
		if len(in.CategoryIDs) == 0 || len(in.ProductIDs) > 0 {
			return common.Wrap(common.KindValidation, ErrInvalidTargets, "category promotions need category ids and no product ids")
		}
	case ScopeOrder:
		if len(in.ProductIDs) > 0 || len(in.CategoryIDs) > 0 {
			return common.Wrap(common.KindValidation, ErrInvalidTargets, "order promotions take no targets")
		}
	}
	return nil
}

func checkTargetsExist(ctx context.Context, q AdminQuerier, in Input) error {
	if len(in.ProductIDs) > 0 {
		n, err := q.CountProductsByIDs(ctx, in.ProductIDs)
		if err != nil {
			return fmt.Errorf("count products: %w", err)
		}
		if n != int64(len(in.ProductIDs)) {
			return common.Errorf(common.KindNotFound, "one or more products not found")
		}
	}
	if len(in.CategoryIDs) > 0 {
		n, err := q.CountCategoriesByIDs(ctx, in.CategoryIDs)
		if err != nil {
			return fmt.Errorf("count categories: %w", err)
		}
		if n != int64(len(in.CategoryIDs)) {
			return common.Errorf(common.KindNotFound, "one or more categories not found")
		}
	}
	return nil
}

func writeTargets(ctx context.Context, q AdminQuerier, id int64, in Input) error {
	switch in.Scope {
	case ScopeProduct:
		if err := q.InsertProductPromotions(ctx, id, in.ProductIDs); err != nil {
			return fmt.Errorf("attach products: %w", err)
		}
	case ScopeCategory:
		if err := q.InsertCategoryPromotions(ctx, id, in.CategoryIDs); err != nil {
			return fmt.Errorf("attach categories: %w", err)
		}
	case ScopeOrder:
	}
	return nil
}

func toParams(id int64, in Input) db.PromotionParams {
	return db.PromotionParams{
		ID:              id,
		Name:            in.Name,
		Description:     pgtype.Text{String: in.Description, Valid: in.Description != ""},
		DiscountPercent: int32(in.DiscountPercent),
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		Scope:           in.Scope.column(),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
