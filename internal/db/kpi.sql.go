package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const tierColumns = `id, name, description, min_achieved_percent, bonus_percent, display_order`

func scanTier(row pgx.Row) (KpiTier, error) {
	var t KpiTier
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.MinAchievedPercent, &t.BonusPercent, &t.DisplayOrder)
	return t, err
}

const listKpiTiers = `SELECT ` + tierColumns + ` FROM kpi_tiers ORDER BY display_order, id`

func (q *Queries) ListKpiTiers(ctx context.Context) ([]KpiTier, error) {
	rows, err := q.db.Query(ctx, listKpiTiers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []KpiTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const getKpiTier = `SELECT ` + tierColumns + ` FROM kpi_tiers WHERE id = $1`

func (q *Queries) GetKpiTier(ctx context.Context, id int64) (KpiTier, error) {
	return scanTier(q.db.QueryRow(ctx, getKpiTier, id))
}

type KpiTierParams struct {
	ID                 int64
	Name               string
	Description        pgtype.Text
	MinAchievedPercent int32
	BonusPercent       int32
	DisplayOrder       int32
}

const createKpiTier = `
INSERT INTO kpi_tiers (name, description, min_achieved_percent, bonus_percent, display_order)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + tierColumns

func (q *Queries) CreateKpiTier(ctx context.Context, arg KpiTierParams) (KpiTier, error) {
	return scanTier(q.db.QueryRow(ctx, createKpiTier, arg.Name, arg.Description, arg.MinAchievedPercent, arg.BonusPercent, arg.DisplayOrder))
}

const updateKpiTier = `
UPDATE kpi_tiers
SET name = $2, description = $3, min_achieved_percent = $4, bonus_percent = $5, display_order = $6
WHERE id = $1
RETURNING ` + tierColumns

func (q *Queries) UpdateKpiTier(ctx context.Context, arg KpiTierParams) (KpiTier, error) {
	return scanTier(q.db.QueryRow(ctx, updateKpiTier, arg.ID, arg.Name, arg.Description, arg.MinAchievedPercent, arg.BonusPercent, arg.DisplayOrder))
}

const deleteKpiTier = `DELETE FROM kpi_tiers WHERE id = $1`

func (q *Queries) DeleteKpiTier(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteKpiTier, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PeriodParams identifies one sale user's month.
type PeriodParams struct {
	SaleID int64
	Year   int32
	Month  int32
}

const targetColumns = `id, sale_id, year, month, target_revenue, actual_revenue, kpi_tier_id, bonus_amount, calculated_at, created_at`

func scanTarget(row pgx.Row) (SaleKpiTarget, error) {
	var t SaleKpiTarget
	err := row.Scan(&t.ID, &t.SaleID, &t.Year, &t.Month, &t.TargetRevenue, &t.ActualRevenue, &t.KpiTierID, &t.BonusAmount, &t.CalculatedAt, &t.CreatedAt)
	return t, err
}

const getSaleKpiTarget = `SELECT ` + targetColumns + ` FROM sale_kpi_targets WHERE sale_id = $1 AND year = $2 AND month = $3`

func (q *Queries) GetSaleKpiTarget(ctx context.Context, arg PeriodParams) (SaleKpiTarget, error) {
	return scanTarget(q.db.QueryRow(ctx, getSaleKpiTarget, arg.SaleID, arg.Year, arg.Month))
}

type UpsertSaleKpiTargetParams struct {
	SaleID        int64
	Year          int32
	Month         int32
	TargetRevenue int64
}

const upsertSaleKpiTarget = `
INSERT INTO sale_kpi_targets (sale_id, year, month, target_revenue)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sale_id, year, month) DO UPDATE SET target_revenue = EXCLUDED.target_revenue
RETURNING ` + targetColumns

func (q *Queries) UpsertSaleKpiTarget(ctx context.Context, arg UpsertSaleKpiTargetParams) (SaleKpiTarget, error) {
	return scanTarget(q.db.QueryRow(ctx, upsertSaleKpiTarget, arg.SaleID, arg.Year, arg.Month, arg.TargetRevenue))
}

type UpdateTargetSnapshotParams struct {
	ID            int64
	ActualRevenue int64
	KpiTierID     pgtype.Int8
	BonusAmount   int64
	CalculatedAt  time.Time
}

const updateTargetSnapshot = `
UPDATE sale_kpi_targets
SET actual_revenue = $2, kpi_tier_id = $3, bonus_amount = $4, calculated_at = $5
WHERE id = $1
RETURNING ` + targetColumns

func (q *Queries) UpdateTargetSnapshot(ctx context.Context, arg UpdateTargetSnapshotParams) (SaleKpiTarget, error) {
	return scanTarget(q.db.QueryRow(ctx, updateTargetSnapshot, arg.ID, arg.ActualRevenue, arg.KpiTierID, arg.BonusAmount, arg.CalculatedAt))
}

const listSaleKpiTargets = `SELECT ` + targetColumns + ` FROM sale_kpi_targets WHERE year = $1 AND month = $2 ORDER BY sale_id`

func (q *Queries) ListSaleKpiTargets(ctx context.Context, year, month int32) ([]SaleKpiTarget, error) {
	rows, err := q.db.Query(ctx, listSaleKpiTargets, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SaleKpiTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const commissionColumns = `id, sale_id, year, month, kpi_tier_id, total_revenue, total_orders, base_commission, bonus_commission, total_commission, calculated_at`

func scanCommission(row pgx.Row) (KpiCommission, error) {
	var c KpiCommission
	err := row.Scan(&c.ID, &c.SaleID, &c.Year, &c.Month, &c.KpiTierID, &c.TotalRevenue, &c.TotalOrders, &c.BaseCommission, &c.BonusCommission, &c.TotalCommission, &c.CalculatedAt)
	return c, err
}

const getKpiCommission = `SELECT ` + commissionColumns + ` FROM kpi_commissions WHERE sale_id = $1 AND year = $2 AND month = $3`

func (q *Queries) GetKpiCommission(ctx context.Context, arg PeriodParams) (KpiCommission, error) {
	return scanCommission(q.db.QueryRow(ctx, getKpiCommission, arg.SaleID, arg.Year, arg.Month))
}

type UpsertKpiCommissionParams struct {
	SaleID          int64
	Year            int32
	Month           int32
	KpiTierID       pgtype.Int8
	TotalRevenue    int64
	TotalOrders     int32
	BaseCommission  int64
	BonusCommission int64
	TotalCommission int64
	CalculatedAt    time.Time
}

const upsertKpiCommission = `
INSERT INTO kpi_commissions (sale_id, year, month, kpi_tier_id, total_revenue, total_orders, base_commission, bonus_commission, total_commission, calculated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (sale_id, year, month) DO UPDATE SET
  kpi_tier_id = EXCLUDED.kpi_tier_id,
  total_revenue = EXCLUDED.total_revenue,
  total_orders = EXCLUDED.total_orders,
  base_commission = EXCLUDED.base_commission,
  bonus_commission = EXCLUDED.bonus_commission,
  total_commission = EXCLUDED.total_commission,
  calculated_at = EXCLUDED.calculated_at
RETURNING ` + commissionColumns

func (q *Queries) UpsertKpiCommission(ctx context.Context, arg UpsertKpiCommissionParams) (KpiCommission, error) {
	return scanCommission(q.db.QueryRow(ctx, upsertKpiCommission,
		arg.SaleID, arg.Year, arg.Month, arg.KpiTierID, arg.TotalRevenue, arg.TotalOrders,
		arg.BaseCommission, arg.BonusCommission, arg.TotalCommission, arg.CalculatedAt))
}

const deleteKpiCommission = `DELETE FROM kpi_commissions WHERE sale_id = $1 AND year = $2 AND month = $3`

func (q *Queries) DeleteKpiCommission(ctx context.Context, arg PeriodParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteKpiCommission, arg.SaleID, arg.Year, arg.Month)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listKpiCommissions = `SELECT ` + commissionColumns + ` FROM kpi_commissions WHERE year = $1 AND month = $2 ORDER BY sale_id`

func (q *Queries) ListKpiCommissions(ctx context.Context, year, month int32) ([]KpiCommission, error) {
	rows, err := q.db.Query(ctx, listKpiCommissions, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []KpiCommission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
