package kpi

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/lock"
)

const (
	adminID    int64 = 1
	saleHit    int64 = 2 // reaches the target
	saleNoGoal int64 = 3 // no target row
	saleIdle   int64 = 4 // no paid orders
	saleShort  int64 = 5 // below target
)

var (
	march     = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	midMarch  = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	earlyApr  = time.Date(2025, 4, 10, 8, 30, 0, 0, time.UTC)
	tierBase  int64
	tierHigh  int64
	tierGiant int64
)

type kpiFixture struct {
	svc    *Service
	store  *memStore
	events *captureEmitter
	redis  *miniredis.Miniredis
	client *redis.Client
	clock  time.Time
}

func newKPIFixture(t *testing.T) *kpiFixture {
	t.Helper()
	store := newMemStore()
	store.users[adminID] = db.User{ID: adminID, Username: "admin", FullName: "Admin", Roles: []string{"admin"}}
	for _, id := range []int64{saleHit, saleNoGoal, saleIdle, saleShort} {
		store.users[id] = db.User{ID: id, Username: "sale", FullName: "Sale", Roles: []string{"sale"}}
	}

	ctx := context.Background()
	mk := func(name string, minPct, bonus, order int32) int64 {
		row, err := store.CreateKpiTier(ctx, db.KpiTierParams{Name: name, MinAchievedPercent: minPct, BonusPercent: bonus, DisplayOrder: order})
		require.NoError(t, err)
		return row.ID
	}
	tierBase = mk("Base", 100, 2, 1)
	tierHigh = mk("High", 120, 5, 2)
	mk("High twin", 120, 7, 3)
	tierGiant = mk("Giant", 1000, 20, 4)

	_, err := store.UpsertSaleKpiTarget(ctx, db.UpsertSaleKpiTargetParams{SaleID: saleHit, Year: 2025, Month: 3, TargetRevenue: 1_000_000})
	require.NoError(t, err)
	_, err = store.UpsertSaleKpiTarget(ctx, db.UpsertSaleKpiTargetParams{SaleID: saleShort, Year: 2025, Month: 3, TargetRevenue: 1_000_000})
	require.NoError(t, err)

	store.addOrder(saleHit, db.OrderStatusPaid, 600_000, march.Add(2*time.Hour))
	store.addOrder(saleHit, db.OrderStatusPaid, 500_000, march.AddDate(0, 1, 0).Add(-time.Second))
	store.addOrder(saleHit, db.OrderStatusCreated, 900_000, march.AddDate(0, 0, 3))
	store.addOrder(saleHit, db.OrderStatusPaid, 900_000, march.Add(-time.Second))
	store.addOrder(saleHit, db.OrderStatusPaid, 900_000, march.AddDate(0, 1, 0))
	store.addOrder(saleNoGoal, db.OrderStatusPaid, 300_000, march.AddDate(0, 0, 10))
	store.addOrder(saleIdle, db.OrderStatusCancelled, 300_000, march.AddDate(0, 0, 10))
	store.addOrder(saleShort, db.OrderStatusPaid, 999_999, march.AddDate(0, 0, 11))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &kpiFixture{store: store, events: &captureEmitter{}, redis: mr, client: client, clock: earlyApr}
	f.svc = &Service{
		Store:  store,
		Locker: lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		Events: f.events,
		Config: Config{Concurrency: 2, LockTTL: time.Second},
		Now:    func() time.Time { return f.clock },
	}
	return f
}

func TestSelectTier(t *testing.T) {
	tiers := []Tier{
		{ID: 1, MinAchievedPercent: 100, BonusPercent: 2, DisplayOrder: 1},
		{ID: 2, MinAchievedPercent: 120, BonusPercent: 5, DisplayOrder: 3},
		{ID: 3, MinAchievedPercent: 120, BonusPercent: 7, DisplayOrder: 2},
	}
	_, ok := SelectTier(tiers, 99)
	require.False(t, ok)

	got, ok := SelectTier(tiers, 100)
	require.True(t, ok)
	require.Equal(t, int64(1), got.ID)

	got, ok = SelectTier(tiers, 500)
	require.True(t, ok)
	require.Equal(t, int64(3), got.ID)

	_, ok = SelectTier(nil, 500)
	require.False(t, ok)
}

func TestAchievedPercentFloors(t *testing.T) {
	require.Equal(t, 99, AchievedPercent(1_999, 2_000))
	require.Equal(t, 100, AchievedPercent(2_000, 2_000))
	require.Equal(t, 0, AchievedPercent(2_000, 0))
	require.Equal(t, 0, AchievedPercent(0, 2_000))
}

func TestEvaluate(t *testing.T) {
	tiers := []Tier{{ID: 9, MinAchievedPercent: 100, BonusPercent: 3, DisplayOrder: 1}}

	est := Evaluate(1_000, 0, tiers, 10)
	require.Nil(t, est.Tier)
	require.Equal(t, int64(100), est.Base)
	require.Equal(t, int64(100), est.Total)

	est = Evaluate(999, 1_000, tiers, 10)
	require.Nil(t, est.Tier)
	require.Equal(t, 99, est.AchievedPercent)

	est = Evaluate(1_000, 1_000, tiers, 10)
	require.NotNil(t, est.Tier)
	require.Equal(t, int64(30), est.Bonus)
	require.Equal(t, int64(130), est.Total)
}

func TestCalculateMonthlyAllSales(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	results, err := f.svc.CalculateMonthly(ctx, 2025, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, []int64{saleHit, saleNoGoal, saleShort}, []int64{results[0].SaleUserID, results[1].SaleUserID, results[2].SaleUserID})

	hit := results[0]
	require.Equal(t, int64(1_100_000), hit.TotalRevenue)
	require.Equal(t, 2, hit.TotalOrders)
	require.NotNil(t, hit.TierID)
	require.Equal(t, tierBase, *hit.TierID)
	require.Equal(t, int64(110_000), hit.BaseCommission)
	require.Equal(t, int64(22_000), hit.BonusCommission)
	require.Equal(t, int64(132_000), hit.TotalCommission)
	require.Equal(t, earlyApr, hit.CalculatedAt)

	noGoal := results[1]
	require.Nil(t, noGoal.TierID)
	require.Equal(t, int64(30_000), noGoal.TotalCommission)

	short := results[2]
	require.Nil(t, short.TierID)
	require.Zero(t, short.BonusCommission)
	require.Equal(t, int64(99_999), short.TotalCommission)

	target := f.store.targets[period(saleHit, 2025, 3)]
	require.Equal(t, int64(1_100_000), target.ActualRevenue)
	require.Equal(t, tierBase, target.KpiTierID.Int64)
	require.Equal(t, int64(22_000), target.BonusAmount)
	require.True(t, target.CalculatedAt.Time.Equal(earlyApr))

	require.ElementsMatch(t, []string{
		"kpi.calculated#2:2025-03", "kpi.calculated#3:2025-03", "kpi.calculated#5:2025-03",
	}, f.events.topics)
	require.False(t, f.redis.Exists(lock.KPIKey(saleHit, 2025, 3)))
}

func TestCalculateMonthlyRerunIsStable(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	first, err := f.svc.CalculateMonthly(ctx, 2025, 3, nil)
	require.NoError(t, err)
	upserts, snapshots := f.store.upserts, f.store.snapshots

	f.clock = earlyApr.Add(48 * time.Hour)
	second, err := f.svc.CalculateMonthly(ctx, 2025, 3, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, upserts, f.store.upserts)
	require.Equal(t, snapshots, f.store.snapshots)
	require.Len(t, f.events.topics, 3)

	// A late payment changes the figures and the timestamp.
	f.store.addOrder(saleHit, db.OrderStatusPaid, 100_000, march.AddDate(0, 0, 15))
	hit := saleHit
	third, err := f.svc.CalculateMonthly(ctx, 2025, 3, &hit)
	require.NoError(t, err)
	require.Len(t, third, 1)
	require.Equal(t, int64(1_200_000), third[0].TotalRevenue)
	require.Equal(t, tierHigh, *third[0].TierID)
	require.Equal(t, int64(60_000), third[0].BonusCommission)
	require.Equal(t, f.clock, third[0].CalculatedAt)
	require.Equal(t, first[0].ID, third[0].ID)
}

func TestCalculateMonthlyValidation(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	_, err := f.svc.CalculateMonthly(ctx, 1999, 3, nil)
	require.Equal(t, common.KindValidation, common.KindOf(err))
	_, err = f.svc.CalculateMonthly(ctx, 2101, 3, nil)
	require.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = f.svc.CalculateMonthly(ctx, 2025, 13, nil)
	require.Equal(t, common.KindValidation, common.KindOf(err))

	missing := int64(99)
	_, err = f.svc.CalculateMonthly(ctx, 2025, 3, &missing)
	require.Equal(t, common.KindNotFound, common.KindOf(err))

	admin := adminID
	_, err = f.svc.CalculateMonthly(ctx, 2025, 3, &admin)
	require.Equal(t, common.KindValidation, common.KindOf(err))

	idle := saleIdle
	results, err := f.svc.CalculateMonthly(ctx, 2025, 3, &idle)
	require.NoError(t, err)
	require.Empty(t, results)
	require.Empty(t, f.store.commissions)
}

func TestCalculateMonthlyWaitsForLock(t *testing.T) {
	f := newKPIFixture(t)
	require.NoError(t, f.redis.Set(lock.KPIKey(saleHit, 2025, 3), "other-worker"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	hit := saleHit
	_, err := f.svc.CalculateMonthly(ctx, 2025, 3, &hit)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, f.store.commissions)
}

func TestCalculateMonthlyStoreFailure(t *testing.T) {
	f := newKPIFixture(t)
	f.store.failPaidFor = saleNoGoal

	_, err := f.svc.CalculateMonthly(context.Background(), 2025, 3, nil)
	require.Error(t, err)
	require.Equal(t, common.KindInternal, common.KindOf(err))
}

func TestCalculateMonthlyWithoutLocker(t *testing.T) {
	f := newKPIFixture(t)
	f.svc.Locker = nil
	f.svc.Config.BaseCommissionPercent = 5

	hit := saleHit
	results, err := f.svc.CalculateMonthly(context.Background(), 2025, 3, &hit)
	require.NoError(t, err)
	require.Equal(t, int64(55_000), results[0].BaseCommission)
}
