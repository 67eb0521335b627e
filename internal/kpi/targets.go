package kpi

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/pricing"
	"github.com/noah-isme/toko-sales/internal/user"
)

// SetMonthlyTarget creates or replaces a sale user's revenue target. The
// last calculated snapshot is kept.
func (s *Service) SetMonthlyTarget(ctx context.Context, saleUserID int64, year, month int, revenue pricing.Money) (Target, error) {
	if err := s.ready(); err != nil {
		return Target{}, err
	}
	if err := validatePeriod(s.Config.withDefaults(), year, month); err != nil {
		return Target{}, err
	}
	if revenue < 0 || revenue > pricing.MaxAmount {
		return Target{}, common.Errorf(common.KindValidation, "targetRevenue must be between 0 and %d", pricing.MaxAmount)
	}
	if _, err := (user.Directory{Q: s.Store}).RequireSale(ctx, saleUserID); err != nil {
		return Target{}, err
	}
	row, err := s.Store.UpsertSaleKpiTarget(ctx, db.UpsertSaleKpiTargetParams{
		SaleID:        saleUserID,
		Year:          int32(year),
		Month:         int32(month),
		TargetRevenue: revenue,
	})
	if err != nil {
		return Target{}, fmt.Errorf("upsert target: %w", err)
	}
	s.dropDashboard(ctx, saleUserID, year, month)
	s.Logger.Info().Int64("sale_user_id", saleUserID).Int("year", year).Int("month", month).
		Int64("target_revenue", revenue).Msg("kpi target set")
	return targetFromRow(row), nil
}

// GetMonthlyTarget returns the target or a NotFound error.
func (s *Service) GetMonthlyTarget(ctx context.Context, saleUserID int64, year, month int) (Target, error) {
	if err := s.ready(); err != nil {
		return Target{}, err
	}
	row, err := s.Store.GetSaleKpiTarget(ctx, period(saleUserID, year, month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Target{}, common.Wrap(common.KindNotFound, ErrTargetNotFound,
				fmt.Sprintf("no target for sale %d in %04d-%02d", saleUserID, year, month))
		}
		return Target{}, fmt.Errorf("load target: %w", err)
	}
	return targetFromRow(row), nil
}

// ListMonthlyTargets returns every target of the month ordered by sale user.
func (s *Service) ListMonthlyTargets(ctx context.Context, year, month int) ([]Target, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := validatePeriod(s.Config.withDefaults(), year, month); err != nil {
		return nil, err
	}
	rows, err := s.Store.ListSaleKpiTargets(ctx, int32(year), int32(month))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	out := make([]Target, 0, len(rows))
	for _, row := range rows {
		out = append(out, targetFromRow(row))
	}
	return out, nil
}

// GetCommission returns the calculated commission or a NotFound error.
func (s *Service) GetCommission(ctx context.Context, saleUserID int64, year, month int) (Commission, error) {
	if err := s.ready(); err != nil {
		return Commission{}, err
	}
	row, err := s.Store.GetKpiCommission(ctx, period(saleUserID, year, month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Commission{}, common.Wrap(common.KindNotFound, ErrCommissionNotFound,
				fmt.Sprintf("no commission for sale %d in %04d-%02d", saleUserID, year, month))
		}
		return Commission{}, fmt.Errorf("load commission: %w", err)
	}
	return commissionFromRow(row), nil
}

// ListCommissions returns the month's commissions ordered by sale user.
func (s *Service) ListCommissions(ctx context.Context, year, month int) ([]Commission, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := validatePeriod(s.Config.withDefaults(), year, month); err != nil {
		return nil, err
	}
	rows, err := s.Store.ListKpiCommissions(ctx, int32(year), int32(month))
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	out := make([]Commission, 0, len(rows))
	for _, row := range rows {
		out = append(out, commissionFromRow(row))
	}
	return out, nil
}
