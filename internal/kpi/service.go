package kpi

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/pricing"
	"github.com/noah-isme/toko-sales/internal/user"
)

var (
	// ErrInvalidPeriod is returned for a year or month outside the accepted range.
	ErrInvalidPeriod = errors.New("kpi: invalid period")
	// ErrTierNotFound is returned when a tier does not exist.
	ErrTierNotFound = errors.New("kpi: tier not found")
	// ErrTargetNotFound is returned when no target is set for the period.
	ErrTargetNotFound = errors.New("kpi: target not found")
	// ErrCommissionNotFound is returned when no commission was calculated for the period.
	ErrCommissionNotFound = errors.New("kpi: commission not found")
	// ErrTierInUse is returned when deleting a tier still referenced by results.
	ErrTierInUse = errors.New("kpi: tier is referenced by calculated results")
)

// Querier captures every store method the KPI package touches.
type Querier interface {
	user.Querier
	ListPaidOrdersForSale(ctx context.Context, arg db.PaidOrdersParams) ([]db.Order, error)

	ListKpiTiers(ctx context.Context) ([]db.KpiTier, error)
	GetKpiTier(ctx context.Context, id int64) (db.KpiTier, error)
	CreateKpiTier(ctx context.Context, arg db.KpiTierParams) (db.KpiTier, error)
	UpdateKpiTier(ctx context.Context, arg db.KpiTierParams) (db.KpiTier, error)
	DeleteKpiTier(ctx context.Context, id int64) (int64, error)

	GetSaleKpiTarget(ctx context.Context, arg db.PeriodParams) (db.SaleKpiTarget, error)
	UpsertSaleKpiTarget(ctx context.Context, arg db.UpsertSaleKpiTargetParams) (db.SaleKpiTarget, error)
	UpdateTargetSnapshot(ctx context.Context, arg db.UpdateTargetSnapshotParams) (db.SaleKpiTarget, error)
	ListSaleKpiTargets(ctx context.Context, year, month int32) ([]db.SaleKpiTarget, error)

	GetKpiCommission(ctx context.Context, arg db.PeriodParams) (db.KpiCommission, error)
	UpsertKpiCommission(ctx context.Context, arg db.UpsertKpiCommissionParams) (db.KpiCommission, error)
	DeleteKpiCommission(ctx context.Context, arg db.PeriodParams) (int64, error)
	ListKpiCommissions(ctx context.Context, year, month int32) ([]db.KpiCommission, error)
}

// Store adds transactional execution to Querier.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(Querier) error) error
}

type pgStore struct{ *db.Store }

// NewStore adapts the postgres store for the KPI service.
func NewStore(s *db.Store) Store { return pgStore{s} }

func (p pgStore) InTx(ctx context.Context, fn func(Querier) error) error {
	return p.ExecTx(ctx, func(q *db.Queries) error { return fn(q) })
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes domain events after a change is committed.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (db.DomainEvent, error)
}

// Cache stores JSON snapshots.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Config tunes the calculator.
type Config struct {
	BaseCommissionPercent int
	MinYear               int
	MaxYear               int
	Concurrency           int
	LockTTL               time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseCommissionPercent <= 0 {
		c.BaseCommissionPercent = 10
	}
	if c.MinYear <= 0 {
		c.MinYear = 2000
	}
	if c.MaxYear <= 0 {
		c.MaxYear = 2100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}

// Service calculates commissions and manages tiers and targets.
type Service struct {
	Store  Store
	Locker Locker
	Events Emitter
	Cache  Cache
	Config Config
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
		return errors.New("kpi service not configured")
	}
	return nil
}

// Tier is one bonus band.
type Tier struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	MinAchievedPercent int    `json:"minAchievedPercent"`
	BonusPercent       int    `json:"bonusPercent"`
	DisplayOrder       int    `json:"displayOrder"`
}

// Target is a sale user's revenue goal for a month with its last calculated snapshot.
type Target struct {
	ID            int64         `json:"id"`
	SaleUserID    int64         `json:"saleUserId"`
	Year          int           `json:"year"`
	Month         int           `json:"month"`
	TargetRevenue pricing.Money `json:"targetRevenue"`
	ActualRevenue pricing.Money `json:"actualRevenue"`
	TierID        *int64        `json:"tierId"`
	BonusAmount   pricing.Money `json:"bonusAmount"`
	CalculatedAt  *time.Time    `json:"calculatedAt"`
}

// Commission is the calculated result for one sale user and month.
type Commission struct {
	ID              int64         `json:"id"`
	SaleUserID      int64         `json:"saleUserId"`
	Year            int           `json:"year"`
	Month           int           `json:"month"`
	TierID          *int64        `json:"tierId"`
	TotalRevenue    pricing.Money `json:"totalRevenue"`
	TotalOrders     int           `json:"totalOrders"`
	BaseCommission  pricing.Money `json:"baseCommission"`
	BonusCommission pricing.Money `json:"bonusCommission"`
	TotalCommission pricing.Money `json:"totalCommission"`
	CalculatedAt    time.Time     `json:"calculatedAt"`
}

func tierFromRow(row db.KpiTier) Tier {
	return Tier{
		ID:                 row.ID,
		Name:               row.Name,
		Description:        row.Description.String,
		MinAchievedPercent: int(row.MinAchievedPercent),
		BonusPercent:       int(row.BonusPercent),
		DisplayOrder:       int(row.DisplayOrder),
	}
}

func targetFromRow(row db.SaleKpiTarget) Target {
	t := Target{
		ID:            row.ID,
		SaleUserID:    row.SaleID,
		Year:          int(row.Year),
		Month:         int(row.Month),
		TargetRevenue: row.TargetRevenue,
		ActualRevenue: row.ActualRevenue,
		TierID:        int8Ptr(row.KpiTierID),
		BonusAmount:   row.BonusAmount,
	}
	if row.CalculatedAt.Valid {
		at := row.CalculatedAt.Time.UTC()
		t.CalculatedAt = &at
	}
	return t
}

func commissionFromRow(row db.KpiCommission) Commission {
	return Commission{
		ID:              row.ID,
		SaleUserID:      row.SaleID,
		Year:            int(row.Year),
		Month:           int(row.Month),
		TierID:          int8Ptr(row.KpiTierID),
		TotalRevenue:    row.TotalRevenue,
		TotalOrders:     int(row.TotalOrders),
		BaseCommission:  row.BaseCommission,
		BonusCommission: row.BonusCommission,
		TotalCommission: row.TotalCommission,
		CalculatedAt:    row.CalculatedAt.UTC(),
	}
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func period(saleUserID int64, year, month int) db.PeriodParams {
	return db.PeriodParams{SaleID: saleUserID, Year: int32(year), Month: int32(month)}
}

// monthBounds returns [start of month, start of next month) in UTC.
func monthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
