package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/toko-sales/internal/cache"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/obs"
	"github.com/noah-isme/toko-sales/internal/pricing"
	"github.com/noah-isme/toko-sales/internal/user"
)

const maxProgressPercent = 1000

// Dashboard is a sale user's running view of the current month.
type Dashboard struct {
	SaleUserID       int64          `json:"saleUserId"`
	Year             int            `json:"year"`
	Month            int            `json:"month"`
	OrderCount       int            `json:"orderCount"`
	TargetRevenue    *pricing.Money `json:"targetRevenue"`
	ProgressPercent  int            `json:"progressPercent"`
	RemainingRevenue pricing.Money  `json:"remainingRevenue"`
	Estimate
	GeneratedAt time.Time `json:"generatedAt"`
}

// Dashboard returns the current month's progress for a sale user. The role is
// checked on every call; snapshots are served from the cache while fresh.
func (s *Service) Dashboard(ctx context.Context, saleUserID int64) (Dashboard, error) {
	if err := s.ready(); err != nil {
		return Dashboard{}, err
	}
	now := s.now()
	year, month := now.Year(), int(now.Month())
	key := cache.KPIDashboardKey(saleUserID, year, month)

	if _, err := (user.Directory{Q: s.Store}).RequireSale(ctx, saleUserID); err != nil {
		return Dashboard{}, err
	}
	if s.Cache != nil {
		var cached Dashboard
		found, err := s.Cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			obs.CountDashboardCache("error")
			s.Logger.Warn().Err(err).Str("key", key).Msg("read dashboard cache")
		case found:
			obs.CountDashboardCache("hit")
			return cached, nil
		default:
			obs.CountDashboardCache("miss")
		}
	}

	from, to := monthBounds(year, month)
	orders, err := s.Store.ListPaidOrdersForSale(ctx, db.PaidOrdersParams{SaleID: saleUserID, From: from, To: to})
	if err != nil {
		return Dashboard{}, fmt.Errorf("list paid orders: %w", err)
	}
	var revenue pricing.Money
	for _, o := range orders {
		revenue = pricing.SafeAdd(revenue, o.TotalPrice)
	}
	target, hasTarget, err := loadTarget(ctx, s.Store, saleUserID, year, month)
	if err != nil {
		return Dashboard{}, err
	}
	tiers, err := s.loadTiers(ctx, s.Store)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		SaleUserID:  saleUserID,
		Year:        year,
		Month:       month,
		OrderCount:  len(orders),
		Estimate:    Evaluate(revenue, target.TargetRevenue, tiers, s.Config.withDefaults().BaseCommissionPercent),
		GeneratedAt: now,
	}
	if hasTarget {
		goal := target.TargetRevenue
		d.TargetRevenue = &goal
		d.ProgressPercent = min(d.AchievedPercent, maxProgressPercent)
		d.RemainingRevenue = max(goal-revenue, 0)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, d); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("write dashboard cache")
		}
	}
	return d, nil
}

// InvalidateDashboard drops the cached snapshot of a sale user's month.
func (s *Service) InvalidateDashboard(ctx context.Context, saleUserID int64, year, month int) error {
	if s == nil || s.Cache == nil {
		return nil
	}
	return s.Cache.Delete(ctx, cache.KPIDashboardKey(saleUserID, year, month))
}

// InvalidateAllDashboards drops every cached snapshot. Tier changes move the
// estimate of every sale user.
func (s *Service) InvalidateAllDashboards(ctx context.Context) error {
	if s == nil || s.Cache == nil {
		return nil
	}
	return s.Cache.DeletePrefix(ctx, cache.KPIDashboardPrefix)
}

func (s *Service) dropDashboard(ctx context.Context, saleUserID int64, year, month int) {
	if err := s.InvalidateDashboard(ctx, saleUserID, year, month); err != nil {
		s.Logger.Warn().Err(err).Int64("sale_user_id", saleUserID).Msg("invalidate dashboard")
	}
}

func (s *Service) dropAllDashboards(ctx context.Context) {
	if err := s.InvalidateAllDashboards(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("invalidate dashboards")
	}
}
