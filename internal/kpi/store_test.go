package kpi

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-sales/internal/db"
)

// memStore is an in-memory Store. InTx runs one transaction at a time and
// discards its writes when fn fails.
type memStore struct {
	mu sync.Mutex

	users       map[int64]db.User
	orders      []db.Order
	tiers       map[int64]db.KpiTier
	targets     map[db.PeriodParams]db.SaleKpiTarget
	commissions map[db.PeriodParams]db.KpiCommission

	nextID      int64
	upserts     int
	snapshots   int
	referenced  map[int64]bool
	failPaidFor int64
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[int64]db.User{},
		tiers:       map[int64]db.KpiTier{},
		targets:     map[db.PeriodParams]db.SaleKpiTarget{},
		commissions: map[db.PeriodParams]db.KpiCommission{},
		referenced:  map[int64]bool{},
	}
}

func (m *memStore) InTx(_ context.Context, fn func(Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := maps.Clone(m.targets)
	commissions := maps.Clone(m.commissions)
	if err := fn(m); err != nil {
		m.targets, m.commissions = targets, commissions
		return err
	}
	return nil
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addOrder(saleID int64, status db.OrderStatus, total int64, createdAt time.Time) {
	m.orders = append(m.orders, db.Order{
		ID: m.id(), SaleID: saleID, Status: status, TotalPrice: total, CreatedAt: createdAt, UpdatedAt: createdAt, Version: 1,
	})
}

func (m *memStore) GetUser(_ context.Context, id int64) (db.User, error) {
	u, ok := m.users[id]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memStore) ListUsersByRole(_ context.Context, role string) ([]db.User, error) {
	var out []db.User
	for _, u := range m.users {
		if slices.Contains(u.Roles, role) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CustomerExists(context.Context, int64) (bool, error) { return false, nil }

func (m *memStore) ListPaidOrdersForSale(_ context.Context, arg db.PaidOrdersParams) ([]db.Order, error) {
	if m.failPaidFor == arg.SaleID {
		return nil, errors.New("connection reset")
	}
	var out []db.Order
	for _, o := range m.orders {
		if o.SaleID == arg.SaleID && o.Status == db.OrderStatusPaid &&
			!o.CreatedAt.Before(arg.From) && o.CreatedAt.Before(arg.To) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListKpiTiers(context.Context) ([]db.KpiTier, error) {
	out := make([]db.KpiTier, 0, len(m.tiers))
	for _, t := range m.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) GetKpiTier(_ context.Context, id int64) (db.KpiTier, error) {
	t, ok := m.tiers[id]
	if !ok {
		return db.KpiTier{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *memStore) CreateKpiTier(_ context.Context, arg db.KpiTierParams) (db.KpiTier, error) {
	t := db.KpiTier{
		ID: m.id(), Name: arg.Name, Description: arg.Description, MinAchievedPercent: arg.MinAchievedPercent,
		BonusPercent: arg.BonusPercent, DisplayOrder: arg.DisplayOrder,
	}
	m.tiers[t.ID] = t
	return t, nil
}

func (m *memStore) UpdateKpiTier(_ context.Context, arg db.KpiTierParams) (db.KpiTier, error) {
	if _, ok := m.tiers[arg.ID]; !ok {
		return db.KpiTier{}, pgx.ErrNoRows
	}
	t := db.KpiTier{
		ID: arg.ID, Name: arg.Name, Description: arg.Description, MinAchievedPercent: arg.MinAchievedPercent,
		BonusPercent: arg.BonusPercent, DisplayOrder: arg.DisplayOrder,
	}
	m.tiers[t.ID] = t
	return t, nil
}

func (m *memStore) DeleteKpiTier(_ context.Context, id int64) (int64, error) {
	if m.referenced[id] {
		return 0, &pgconn.PgError{Code: "23503"}
	}
	if _, ok := m.tiers[id]; !ok {
		return 0, nil
	}
	delete(m.tiers, id)
	return 1, nil
}

func (m *memStore) GetSaleKpiTarget(_ context.Context, arg db.PeriodParams) (db.SaleKpiTarget, error) {
	t, ok := m.targets[arg]
	if !ok {
		return db.SaleKpiTarget{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *memStore) UpsertSaleKpiTarget(_ context.Context, arg db.UpsertSaleKpiTargetParams) (db.SaleKpiTarget, error) {
	key := db.PeriodParams{SaleID: arg.SaleID, Year: arg.Year, Month: arg.Month}
	t, ok := m.targets[key]
	if !ok {
		t = db.SaleKpiTarget{ID: m.id(), SaleID: arg.SaleID, Year: arg.Year, Month: arg.Month}
	}
	t.TargetRevenue = arg.TargetRevenue
	m.targets[key] = t
	return t, nil
}

func (m *memStore) UpdateTargetSnapshot(_ context.Context, arg db.UpdateTargetSnapshotParams) (db.SaleKpiTarget, error) {
	for key, t := range m.targets {
		if t.ID != arg.ID {
			continue
		}
		t.ActualRevenue, t.KpiTierID, t.BonusAmount = arg.ActualRevenue, arg.KpiTierID, arg.BonusAmount
		t.CalculatedAt = pgtype.Timestamptz{Time: arg.CalculatedAt, Valid: true}
		m.targets[key] = t
		m.snapshots++
		return t, nil
	}
	return db.SaleKpiTarget{}, pgx.ErrNoRows
}

func (m *memStore) ListSaleKpiTargets(_ context.Context, year, month int32) ([]db.SaleKpiTarget, error) {
	var out []db.SaleKpiTarget
	for key, t := range m.targets {
		if key.Year == year && key.Month == month {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleID < out[j].SaleID })
	return out, nil
}

func (m *memStore) GetKpiCommission(_ context.Context, arg db.PeriodParams) (db.KpiCommission, error) {
	c, ok := m.commissions[arg]
	if !ok {
		return db.KpiCommission{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memStore) UpsertKpiCommission(_ context.Context, arg db.UpsertKpiCommissionParams) (db.KpiCommission, error) {
	key := db.PeriodParams{SaleID: arg.SaleID, Year: arg.Year, Month: arg.Month}
	c, ok := m.commissions[key]
	if !ok {
		c = db.KpiCommission{ID: m.id(), SaleID: arg.SaleID, Year: arg.Year, Month: arg.Month}
	}
	c.KpiTierID, c.TotalRevenue, c.TotalOrders = arg.KpiTierID, arg.TotalRevenue, arg.TotalOrders
	c.BaseCommission, c.BonusCommission, c.TotalCommission = arg.BaseCommission, arg.BonusCommission, arg.TotalCommission
	c.CalculatedAt = arg.CalculatedAt
	m.commissions[key] = c
	m.upserts++
	return c, nil
}

func (m *memStore) DeleteKpiCommission(_ context.Context, arg db.PeriodParams) (int64, error) {
	if _, ok := m.commissions[arg]; !ok {
		return 0, nil
	}
	delete(m.commissions, arg)
	return 1, nil
}

func (m *memStore) ListKpiCommissions(_ context.Context, year, month int32) ([]db.KpiCommission, error) {
	var out []db.KpiCommission
	for key, c := range m.commissions {
		if key.Year == year && key.Month == month {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleID < out[j].SaleID })
	return out, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (db.DomainEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic+"#"+aggregateID)
	return db.DomainEvent{Topic: topic, AggregateID: aggregateID}, nil
}
