package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/pricing"
)

// Querier is the read side the resolver needs from the store.
type Querier interface {
	ListActiveProductPromotions(ctx context.Context, arg db.ActivePromotionsParams) ([]db.PromotionTargetRow, error)
	ListActiveCategoryPromotions(ctx context.Context, arg db.ActivePromotionsParams) ([]db.PromotionTargetRow, error)
	GetPromotionsByIDs(ctx context.Context, ids []int64) ([]db.Promotion, error)
}

// Resolver answers which discounts apply at a given instant.
type Resolver struct {
	Q Querier
}

func (r Resolver) ready() error {
	if r.Q == nil {
		return errors.New("promotion resolver not configured")
	}
	return nil
}

// ResolveBestDiscounts returns, for every product, the strongest active
// product- or category-scope percent. Products without a promotion map to 0.
func (r Resolver) ResolveBestDiscounts(ctx context.Context, products []pricing.Product, at time.Time) (map[int64]int, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(products))
	if len(products) == 0 {
		return out, nil
	}
	byProduct, byCategory, err := r.targetBests(ctx, products, at)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		pct := byProduct[p.ID].Percent
		if c := byCategory[p.CategoryID].Percent; c > pct {
			pct = c
		}
		out[p.ID] = pct
	}
	return out, nil
}

func (r Resolver) targetBests(ctx context.Context, products []pricing.Product, at time.Time) (map[int64]Best, map[int64]Best, error) {
	productIDs := make([]int64, 0, len(products))
	categoryIDs := make([]int64, 0, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.ID)
		categoryIDs = append(categoryIDs, p.CategoryID)
	}
	productIDs = NormalizeIDs(productIDs)
	categoryIDs = NormalizeIDs(categoryIDs)

	prodRows, err := r.Q.ListActiveProductPromotions(ctx, db.ActivePromotionsParams{TargetIDs: productIDs, At: at})
	if err != nil {
		return nil, nil, fmt.Errorf("list product promotions: %w", err)
	}
	var catRows []db.PromotionTargetRow
	if len(categoryIDs) > 0 {
		catRows, err = r.Q.ListActiveCategoryPromotions(ctx, db.ActivePromotionsParams{TargetIDs: categoryIDs, At: at})
		if err != nil {
			return nil, nil, fmt.Errorf("list category promotions: %w", err)
		}
	}
	return bestByTarget(prodRows, ScopeProduct, at), bestByTarget(catRows, ScopeCategory, at), nil
}

// ResolveBestOrderDiscount returns the strongest percent among ids that are
// order-scope and active at at. Unknown or inapplicable ids are ignored.
func (r Resolver) ResolveBestOrderDiscount(ctx context.Context, ids []int64, at time.Time) (int, error) {
	best, err := r.bestOrderPromotion(ctx, ids, at)
	if err != nil {
		return 0, err
	}
	return best.Percent, nil
}

func (r Resolver) bestOrderPromotion(ctx context.Context, ids []int64, at time.Time) (Best, error) {
	if err := r.ready(); err != nil {
		return Best{}, err
	}
	ids = NormalizeIDs(ids)
	if len(ids) == 0 {
		return Best{}, nil
	}
	rows, err := r.Q.GetPromotionsByIDs(ctx, ids)
	if err != nil {
		return Best{}, fmt.Errorf("load order promotions: %w", err)
	}
	var best Best
	for _, row := range rows {
		rule := RuleFromModel(row)
		if rule.applies(ScopeOrder, at) {
			best.Consider(rule)
		}
	}
	return best, nil
}

// ValidateOrderPromotionIDs normalizes ids and checks that each one exists, is
// order-scope and is active at at.
func (r Resolver) ValidateOrderPromotionIDs(ctx context.Context, ids []int64, at time.Time) ([]int64, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ids = NormalizeIDs(ids)
	if len(ids) == 0 {
		return ids, nil
	}
	rows, err := r.Q.GetPromotionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load order promotions: %w", err)
	}
	found := make(map[int64]Rule, len(rows))
	for _, row := range rows {
		found[row.ID] = RuleFromModel(row)
	}
	for _, id := range ids {
		rule, ok := found[id]
		if !ok {
			return nil, common.Wrap(common.KindNotFound, ErrPromotionNotFound, fmt.Sprintf("promotion %d not found", id))
		}
		if rule.Scope != ScopeOrder {
			return nil, common.Wrap(common.KindValidation, ErrScopeMismatch, fmt.Sprintf("promotion %d is not an order promotion", id))
		}
		if err := rule.Validate(); err != nil {
			return nil, common.Wrap(common.KindValidation, err, fmt.Sprintf("promotion %d is invalid", id))
		}
		if !rule.ActiveAt(at) {
			return nil, common.Wrap(common.KindValidation, ErrPromotionInactive, fmt.Sprintf("promotion %d is not active", id))
		}
	}
	return ids, nil
}

// ExplainOrder reconstructs which promotions shaped an order's price: the
// best attached order promotion at discountedAt, and the best product
// promotion per product and best category promotion per category at pricedAt.
// Zero-percent promotions never count. The result is ascending and free of
// duplicates.
func (r Resolver) ExplainOrder(ctx context.Context, orderPromotionIDs []int64, discountedAt time.Time, products []pricing.Product, pricedAt time.Time) ([]int64, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var ids []int64

	orderBest, err := r.bestOrderPromotion(ctx, orderPromotionIDs, discountedAt)
	if err != nil {
		return nil, err
	}
	if orderBest.Percent > 0 {
		ids = append(ids, orderBest.PromotionID)
	}

	if len(products) > 0 {
		byProduct, byCategory, err := r.targetBests(ctx, products, pricedAt)
		if err != nil {
			return nil, err
		}
		for _, group := range []map[int64]Best{byProduct, byCategory} {
			for _, b := range group {
				if b.Percent > 0 {
					ids = append(ids, b.PromotionID)
				}
			}
		}
	}

	return NormalizeIDs(ids), nil
}
