package kpi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-sales/internal/common"
)

func TestTierLifecycle(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	tier, err := f.svc.CreateTier(ctx, TierInput{Name: "  Silver ", MinAchievedPercent: 110, BonusPercent: 3, DisplayOrder: 5})
	require.NoError(t, err)
	require.Equal(t, "Silver", tier.Name)

	tier, err = f.svc.UpdateTier(ctx, tier.ID, TierInput{Name: "Silver", Description: "mid band", MinAchievedPercent: 115, BonusPercent: 4, DisplayOrder: 5})
	require.NoError(t, err)
	require.Equal(t, 115, tier.MinAchievedPercent)
	require.Equal(t, "mid band", tier.Description)

	tiers, err := f.svc.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 5)
	require.Equal(t, "Base", tiers[0].Name)
	require.Equal(t, "Silver", tiers[4].Name)

	require.NoError(t, f.svc.DeleteTier(ctx, tier.ID))
	err = f.svc.DeleteTier(ctx, tier.ID)
	require.ErrorIs(t, err, ErrTierNotFound)

	_, err = f.svc.UpdateTier(ctx, 999, TierInput{Name: "x", DisplayOrder: 1})
	require.Equal(t, common.KindNotFound, common.KindOf(err))

	f.store.referenced[tierBase] = true
	err = f.svc.DeleteTier(ctx, tierBase)
	require.ErrorIs(t, err, ErrTierInUse)
	require.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestTierValidation(t *testing.T) {
	f := newKPIFixture(t)
	cases := map[string]TierInput{
		"blank name":    {Name: " ", DisplayOrder: 1},
		"zero order":    {Name: "a", DisplayOrder: 0},
		"min too big":   {Name: "a", DisplayOrder: 1, MinAchievedPercent: 1001},
		"negative min":  {Name: "a", DisplayOrder: 1, MinAchievedPercent: -1},
		"bonus too big": {Name: "a", DisplayOrder: 1, BonusPercent: 101},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateTier(context.Background(), in)
			require.Equal(t, common.KindValidation, common.KindOf(err))
		})
	}
}

func TestMonthlyTargets(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	target, err := f.svc.SetMonthlyTarget(ctx, saleNoGoal, 2025, 3, 250_000)
	require.NoError(t, err)
	require.Equal(t, int64(250_000), target.TargetRevenue)
	require.Nil(t, target.CalculatedAt)

	target, err = f.svc.SetMonthlyTarget(ctx, saleNoGoal, 2025, 3, 0)
	require.NoError(t, err)
	require.Zero(t, target.TargetRevenue)

	got, err := f.svc.GetMonthlyTarget(ctx, saleNoGoal, 2025, 3)
	require.NoError(t, err)
	require.Equal(t, target.ID, got.ID)

	list, err := f.svc.ListMonthlyTargets(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, saleHit, list[0].SaleUserID)

	_, err = f.svc.GetMonthlyTarget(ctx, saleIdle, 2025, 3)
	require.ErrorIs(t, err, ErrTargetNotFound)

	_, err = f.svc.SetMonthlyTarget(ctx, adminID, 2025, 3, 10)
	require.Equal(t, common.KindValidation, common.KindOf(err))
	_, err = f.svc.SetMonthlyTarget(ctx, 404, 2025, 3, 10)
	require.Equal(t, common.KindNotFound, common.KindOf(err))
	_, err = f.svc.SetMonthlyTarget(ctx, saleIdle, 2025, 3, -1)
	require.Equal(t, common.KindValidation, common.KindOf(err))
	_, err = f.svc.SetMonthlyTarget(ctx, saleIdle, 2025, 0, 10)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCommissionQueries(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetCommission(ctx, saleHit, 2025, 3)
	require.ErrorIs(t, err, ErrCommissionNotFound)

	_, err = f.svc.CalculateMonthly(ctx, 2025, 3, nil)
	require.NoError(t, err)

	c, err := f.svc.GetCommission(ctx, saleHit, 2025, 3)
	require.NoError(t, err)
	require.Equal(t, int64(132_000), c.TotalCommission)

	list, err := f.svc.ListCommissions(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)

	empty, err := f.svc.ListCommissions(ctx, 2025, 2)
	require.NoError(t, err)
	require.Empty(t, empty)
}
