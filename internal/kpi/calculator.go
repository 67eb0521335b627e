package kpi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/events"
	"github.com/noah-isme/toko-sales/internal/lock"
	"github.com/noah-isme/toko-sales/internal/obs"
	"github.com/noah-isme/toko-sales/internal/pricing"
	"github.com/noah-isme/toko-sales/internal/user"
)

// SelectTier returns the tier with the greatest MinAchievedPercent not above
// achieved. Ties go to the smallest DisplayOrder, then the smallest id.
func SelectTier(tiers []Tier, achieved int) (Tier, bool) {
	var (
		best  Tier
		found bool
	)
	for _, t := range tiers {
		if t.MinAchievedPercent > achieved {
			continue
		}
		if !found || better(t, best) {
			best, found = t, true
		}
	}
	return best, found
}

func better(a, b Tier) bool {
	if a.MinAchievedPercent != b.MinAchievedPercent {
		return a.MinAchievedPercent > b.MinAchievedPercent
	}
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	return a.ID < b.ID
}

// AchievedPercent is floor(revenue*100/target), or 0 without a positive target.
func AchievedPercent(revenue, target pricing.Money) int {
	if target <= 0 || revenue <= 0 {
		return 0
	}
	return int(revenue * 100 / target)
}

// Estimate is the commission a revenue figure earns against a target.
type Estimate struct {
	Revenue         pricing.Money `json:"revenue"`
	AchievedPercent int           `json:"achievedPercent"`
	Tier            *Tier         `json:"tier"`
	Base            pricing.Money `json:"baseCommission"`
	Bonus           pricing.Money `json:"bonusCommission"`
	Total           pricing.Money `json:"totalCommission"`
}

// Evaluate applies the base rate and, when the target is reached, the bonus
// of the matching tier. A missing or non-positive target earns no bonus.
func Evaluate(revenue, target pricing.Money, tiers []Tier, basePercent int) Estimate {
	e := Estimate{Revenue: revenue, Base: pricing.PercentOf(revenue, basePercent)}
	if target > 0 {
		e.AchievedPercent = AchievedPercent(revenue, target)
		if revenue >= target {
			if tier, ok := SelectTier(tiers, e.AchievedPercent); ok {
				e.Tier = &tier
				e.Bonus = pricing.PercentOf(revenue, tier.BonusPercent)
			}
		}
	}
	e.Total = pricing.SafeAdd(e.Base, e.Bonus)
	return e
}

func validatePeriod(cfg Config, year, month int) error {
	if year < cfg.MinYear || year > cfg.MaxYear {
		return common.Wrap(common.KindValidation, ErrInvalidPeriod,
			fmt.Sprintf("year must be between %d and %d", cfg.MinYear, cfg.MaxYear))
	}
	if month < 1 || month > 12 {
		return common.Wrap(common.KindValidation, ErrInvalidPeriod, "month must be between 1 and 12")
	}
	return nil
}

// CalculateMonthly computes and stores commissions for the month, for one
// sale user or every sale user. Users without paid orders are skipped.
// Results are ordered by sale user id.
func (s *Service) CalculateMonthly(ctx context.Context, year, month int, saleUserID *int64) ([]Commission, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	cfg := s.Config.withDefaults()
	if err := validatePeriod(cfg, year, month); err != nil {
		return nil, err
	}
	ctx, span := obs.StartSpan(ctx, "kpi.calculate_monthly",
		attribute.Int("kpi.year", year), attribute.Int("kpi.month", month))
	defer span.End()
	started := time.Now()
	defer func() { obs.ObserveKPIRun(float64(time.Since(started).Microseconds()) / 1000) }()

	dir := user.Directory{Q: s.Store}
	var sales []user.User
	if saleUserID != nil {
		u, err := dir.RequireSale(ctx, *saleUserID)
		if err != nil {
			return nil, err
		}
		sales = []user.User{u}
	} else {
		var err error
		if sales, err = dir.ListSales(ctx); err != nil {
			return nil, err
		}
	}
	tiers, err := s.loadTiers(ctx, s.Store)
	if err != nil {
		return nil, err
	}

	results := make([]*Commission, len(sales))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, sale := range sales {
		g.Go(func() error {
			c, ok, err := s.calculateLocked(gctx, cfg, sale.ID, year, month, tiers, false)
			if err != nil {
				obs.CountKPIRun("error")
				return fmt.Errorf("sale %d: %w", sale.ID, err)
			}
			if ok {
				results[i] = &c
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Commission, 0, len(results))
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b Commission) int {
		switch {
		case a.SaleUserID < b.SaleUserID:
			return -1
		case a.SaleUserID > b.SaleUserID:
			return 1
		}
		return 0
	})
	s.Logger.Info().Int("year", year).Int("month", month).Int("sales", len(sales)).
		Int("commissions", len(out)).Msg("kpi calculation finished")
	return out, nil
}

func (s *Service) loadTiers(ctx context.Context, q Querier) ([]Tier, error) {
	rows, err := q.ListKpiTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list kpi tiers: %w", err)
	}
	tiers := make([]Tier, 0, len(rows))
	for _, row := range rows {
		tiers = append(tiers, tierFromRow(row))
	}
	return tiers, nil
}

// RecalculateUser recomputes one sale user's month after an order change.
// Unlike CalculateMonthly, a month left without paid orders withdraws the
// stored commission and zeroes the target snapshot. It returns nil when no
// commission remains.
func (s *Service) RecalculateUser(ctx context.Context, saleUserID int64, year, month int) (*Commission, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	cfg := s.Config.withDefaults()
	if err := validatePeriod(cfg, year, month); err != nil {
		return nil, err
	}
	ctx, span := obs.StartSpan(ctx, "kpi.recalculate_user",
		attribute.Int64("kpi.sale_user_id", saleUserID), attribute.Int("kpi.year", year), attribute.Int("kpi.month", month))
	defer span.End()

	if _, err := (user.Directory{Q: s.Store}).RequireSale(ctx, saleUserID); err != nil {
		return nil, err
	}
	tiers, err := s.loadTiers(ctx, s.Store)
	if err != nil {
		return nil, err
	}
	c, ok, err := s.calculateLocked(ctx, cfg, saleUserID, year, month, tiers, true)
	if err != nil {
		obs.CountKPIRun("error")
		return nil, fmt.Errorf("sale %d: %w", saleUserID, err)
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// userRun is the outcome of one user's calculation. found is false when the
// user has no paid orders in the month; written is false when the stored row
// already held the same figures; withdrawn is set when a stale row was removed.
type userRun struct {
	result    Commission
	est       Estimate
	found     bool
	written   bool
	withdrawn bool
}

// calculateLocked runs one user's calculation under the (user, month) lock.
func (s *Service) calculateLocked(ctx context.Context, cfg Config, saleID int64, year, month int, tiers []Tier, withdraw bool) (Commission, bool, error) {
	var run userRun
	fn := func(ctx context.Context) error {
		var err error
		run, err = s.calculateUser(ctx, cfg, saleID, year, month, tiers, withdraw)
		return err
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.KPIKey(saleID, year, month), cfg.LockTTL, fn)
	} else {
		err = fn(ctx)
	}
	if err != nil {
		return Commission{}, false, err
	}

	switch {
	case run.withdrawn:
		obs.CountKPIRun("withdrawn")
		s.Logger.Info().Int64("sale_user_id", saleID).Int("year", year).Int("month", month).
			Msg("commission withdrawn, no paid orders left")
		s.dropDashboard(ctx, saleID, year, month)
		return Commission{}, false, nil
	case !run.found:
		obs.CountKPIRun("skipped")
		return Commission{}, false, nil
	case !run.written:
		obs.CountKPIRun("unchanged")
		return run.result, true, nil
	}
	obs.CountKPIRun("written")
	result := run.result
	logEvent := s.Logger.Info().Int64("sale_user_id", saleID).Int("year", year).Int("month", month).
		Int64("revenue", result.TotalRevenue).Int64("total_commission", result.TotalCommission)
	if run.est.Tier != nil {
		logEvent = logEvent.Str("tier", run.est.Tier.Name)
	}
	logEvent.Msg("commission calculated")
	if s.Events != nil {
		aggregate := fmt.Sprintf("%d:%04d-%02d", saleID, year, month)
		if _, err := s.Events.Emit(ctx, events.TopicKPICalculated, aggregate, result); err != nil {
			s.Logger.Warn().Err(err).Int64("sale_user_id", saleID).Msg("emit kpi event")
		}
	}
	return result, true, nil
}

// calculateUser computes and stores one user's commission in a transaction.
// With withdraw set, a month without paid orders removes the stored result.
func (s *Service) calculateUser(ctx context.Context, cfg Config, saleID int64, year, month int, tiers []Tier, withdraw bool) (userRun, error) {
	var run userRun
	now := s.now().Truncate(time.Microsecond)
	err := s.Store.InTx(ctx, func(q Querier) error {
		from, to := monthBounds(year, month)
		orders, err := q.ListPaidOrdersForSale(ctx, db.PaidOrdersParams{SaleID: saleID, From: from, To: to})
		if err != nil {
			return fmt.Errorf("list paid orders: %w", err)
		}
		if len(orders) == 0 {
			if !withdraw {
				return nil
			}
			run.withdrawn, err = withdrawCommission(ctx, q, saleID, year, month, now)
			return err
		}
		run.found = true

		var revenue pricing.Money
		for _, o := range orders {
			revenue = pricing.SafeAdd(revenue, o.TotalPrice)
		}
		target, hasTarget, err := loadTarget(ctx, q, saleID, year, month)
		if err != nil {
			return err
		}
		run.est = Evaluate(revenue, target.TargetRevenue, tiers, cfg.BaseCommissionPercent)
		tierID := pgtype.Int8{}
		if run.est.Tier != nil {
			tierID = pgtype.Int8{Int64: run.est.Tier.ID, Valid: true}
		}
		params := db.UpsertKpiCommissionParams{
			SaleID:          saleID,
			Year:            int32(year),
			Month:           int32(month),
			KpiTierID:       tierID,
			TotalRevenue:    revenue,
			TotalOrders:     int32(len(orders)),
			BaseCommission:  run.est.Base,
			BonusCommission: run.est.Bonus,
			TotalCommission: run.est.Total,
			CalculatedAt:    now,
		}

		row, err := q.GetKpiCommission(ctx, period(saleID, year, month))
		switch {
		case err == nil && sameCommission(row, params):
		case err == nil || errors.Is(err, pgx.ErrNoRows):
			if row, err = q.UpsertKpiCommission(ctx, params); err != nil {
				return fmt.Errorf("upsert commission: %w", err)
			}
			run.written = true
		default:
			return fmt.Errorf("load commission: %w", err)
		}

		if hasTarget && !snapshotMatches(target, row) {
			if _, err := q.UpdateTargetSnapshot(ctx, db.UpdateTargetSnapshotParams{
				ID:            target.ID,
				ActualRevenue: row.TotalRevenue,
				KpiTierID:     row.KpiTierID,
				BonusAmount:   row.BonusCommission,
				CalculatedAt:  row.CalculatedAt,
			}); err != nil {
				return fmt.Errorf("update target snapshot: %w", err)
			}
		}
		run.result = commissionFromRow(row)
		return nil
	})
	return run, err
}

// withdrawCommission deletes the month's commission and zeroes a snapshot
// that still reports it. It reports whether a commission was removed.
func withdrawCommission(ctx context.Context, q Querier, saleID int64, year, month int, now time.Time) (bool, error) {
	n, err := q.DeleteKpiCommission(ctx, period(saleID, year, month))
	if err != nil {
		return false, fmt.Errorf("delete commission: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	target, hasTarget, err := loadTarget(ctx, q, saleID, year, month)
	if err != nil {
		return false, err
	}
	if hasTarget && target.CalculatedAt.Valid {
		if _, err := q.UpdateTargetSnapshot(ctx, db.UpdateTargetSnapshotParams{
			ID:           target.ID,
			CalculatedAt: now,
		}); err != nil {
			return false, fmt.Errorf("reset target snapshot: %w", err)
		}
	}
	return true, nil
}

func loadTarget(ctx context.Context, q Querier, saleID int64, year, month int) (db.SaleKpiTarget, bool, error) {
	row, err := q.GetSaleKpiTarget(ctx, period(saleID, year, month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.SaleKpiTarget{}, false, nil
		}
		return db.SaleKpiTarget{}, false, fmt.Errorf("load target: %w", err)
	}
	return row, true, nil
}

func sameCommission(row db.KpiCommission, p db.UpsertKpiCommissionParams) bool {
	return row.KpiTierID == p.KpiTierID &&
		row.TotalRevenue == p.TotalRevenue &&
		row.TotalOrders == p.TotalOrders &&
		row.BaseCommission == p.BaseCommission &&
		row.BonusCommission == p.BonusCommission &&
		row.TotalCommission == p.TotalCommission
}

func snapshotMatches(t db.SaleKpiTarget, c db.KpiCommission) bool {
	return t.ActualRevenue == c.TotalRevenue &&
		t.KpiTierID == c.KpiTierID &&
		t.BonusAmount == c.BonusCommission &&
		t.CalculatedAt.Valid && t.CalculatedAt.Time.Equal(c.CalculatedAt)
}
