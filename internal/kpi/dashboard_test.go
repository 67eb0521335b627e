package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-sales/internal/cache"
	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/obs"
)

func TestDashboardProgressAndCache(t *testing.T) {
	obs.MustRegisterDomainMetrics("toko_sales_test", prometheus.NewRegistry())
	f := newKPIFixture(t)
	f.clock = midMarch
	f.svc.Cache = cache.NewJSON(f.client, time.Minute)
	ctx := context.Background()
	missesBefore := testutil.ToFloat64(obs.DashboardCacheTotal.WithLabelValues("miss"))
	hitsBefore := testutil.ToFloat64(obs.DashboardCacheTotal.WithLabelValues("hit"))

	d, err := f.svc.Dashboard(ctx, saleHit)
	require.NoError(t, err)
	require.Equal(t, 2025, d.Year)
	require.Equal(t, 3, d.Month)
	require.Equal(t, 2, d.OrderCount)
	require.Equal(t, int64(1_100_000), d.Revenue)
	require.NotNil(t, d.TargetRevenue)
	require.Equal(t, 110, d.ProgressPercent)
	require.Zero(t, d.RemainingRevenue)
	require.NotNil(t, d.Tier)
	require.Equal(t, "Base", d.Tier.Name)
	require.Equal(t, int64(132_000), d.Total)
	require.True(t, f.redis.Exists(cache.KPIDashboardKey(saleHit, 2025, 3)))

	f.store.addOrder(saleHit, db.OrderStatusPaid, 400_000, midMarch.Add(-time.Hour))
	cached, err := f.svc.Dashboard(ctx, saleHit)
	require.NoError(t, err)
	require.Equal(t, int64(1_100_000), cached.Revenue)

	require.NoError(t, f.svc.InvalidateDashboard(ctx, saleHit, 2025, 3))
	fresh, err := f.svc.Dashboard(ctx, saleHit)
	require.NoError(t, err)
	require.Equal(t, int64(1_500_000), fresh.Revenue)
	require.Equal(t, 150, fresh.ProgressPercent)
	require.Equal(t, tierHigh, fresh.Tier.ID)

	require.Equal(t, missesBefore+2, testutil.ToFloat64(obs.DashboardCacheTotal.WithLabelValues("miss")))
	require.Equal(t, hitsBefore+1, testutil.ToFloat64(obs.DashboardCacheTotal.WithLabelValues("hit")))
}

func TestDashboardBelowTargetAndCap(t *testing.T) {
	f := newKPIFixture(t)
	f.clock = midMarch
	ctx := context.Background()

	short, err := f.svc.Dashboard(ctx, saleShort)
	require.NoError(t, err)
	require.Equal(t, 99, short.ProgressPercent)
	require.Equal(t, int64(1), short.RemainingRevenue)
	require.Nil(t, short.Tier)

	noGoal, err := f.svc.Dashboard(ctx, saleNoGoal)
	require.NoError(t, err)
	require.Nil(t, noGoal.TargetRevenue)
	require.Zero(t, noGoal.ProgressPercent)
	require.Equal(t, int64(30_000), noGoal.Total)

	_, err = f.svc.SetMonthlyTarget(ctx, saleNoGoal, 2025, 3, 1_000)
	require.NoError(t, err)
	capped, err := f.svc.Dashboard(ctx, saleNoGoal)
	require.NoError(t, err)
	require.Equal(t, 1000, capped.ProgressPercent)
	require.Equal(t, tierGiant, capped.Tier.ID)

	_, err = f.svc.Dashboard(ctx, adminID)
	require.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestDashboardRechecksRoleBeforeCache(t *testing.T) {
	f := newKPIFixture(t)
	f.clock = midMarch
	f.svc.Cache = cache.NewJSON(f.client, time.Minute)
	ctx := context.Background()

	_, err := f.svc.Dashboard(ctx, saleHit)
	require.NoError(t, err)
	require.True(t, f.redis.Exists(cache.KPIDashboardKey(saleHit, 2025, 3)))

	demoted := f.store.users[saleHit]
	demoted.Roles = []string{"warehouse"}
	f.store.users[saleHit] = demoted

	_, err = f.svc.Dashboard(ctx, saleHit)
	require.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestDashboardDroppedOnTargetAndTierChanges(t *testing.T) {
	f := newKPIFixture(t)
	f.clock = midMarch
	f.svc.Cache = cache.NewJSON(f.client, time.Minute)
	ctx := context.Background()
	noGoalKey := cache.KPIDashboardKey(saleNoGoal, 2025, 3)
	hitKey := cache.KPIDashboardKey(saleHit, 2025, 3)

	before, err := f.svc.Dashboard(ctx, saleNoGoal)
	require.NoError(t, err)
	require.Nil(t, before.TargetRevenue)
	_, err = f.svc.Dashboard(ctx, saleHit)
	require.NoError(t, err)

	_, err = f.svc.SetMonthlyTarget(ctx, saleNoGoal, 2025, 3, 300_000)
	require.NoError(t, err)
	require.False(t, f.redis.Exists(noGoalKey))
	require.True(t, f.redis.Exists(hitKey))

	after, err := f.svc.Dashboard(ctx, saleNoGoal)
	require.NoError(t, err)
	require.NotNil(t, after.TargetRevenue)
	require.Equal(t, 100, after.ProgressPercent)
	require.Equal(t, tierBase, after.Tier.ID)

	tier, err := f.svc.CreateTier(ctx, TierInput{Name: "Exact", MinAchievedPercent: 100, BonusPercent: 3, DisplayOrder: 1})
	require.NoError(t, err)
	require.False(t, f.redis.Exists(noGoalKey))
	require.False(t, f.redis.Exists(hitKey))

	_, err = f.svc.Dashboard(ctx, saleHit)
	require.NoError(t, err)
	_, err = f.svc.UpdateTier(ctx, tier.ID, TierInput{Name: "Exact", MinAchievedPercent: 100, BonusPercent: 4, DisplayOrder: 1})
	require.NoError(t, err)
	require.False(t, f.redis.Exists(hitKey))

	_, err = f.svc.Dashboard(ctx, saleHit)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteTier(ctx, tier.ID))
	require.False(t, f.redis.Exists(hitKey))
}
