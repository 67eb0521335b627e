package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceItemsStackedScopes(t *testing.T) {
	products := map[int64]Product{1: {ID: 1, SalePrice: 100_000, CategoryID: 9}}
	lines, subtotal, err := PriceItems([]LineRequest{{ProductID: 1, Quantity: 1}}, products, map[int64]int{1: 20})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, Money(80_000), lines[0].UnitPrice)
	require.Equal(t, Money(80_000), subtotal)

	discount := OrderDiscount(subtotal, 5)
	require.Equal(t, Money(4_000), discount)
	require.Equal(t, Money(76_000), subtotal-discount)
}

func TestPriceItemsRejectsBadInput(t *testing.T) {
	products := map[int64]Product{1: {ID: 1, SalePrice: 10}}

	_, _, err := PriceItems([]LineRequest{{ProductID: 1, Quantity: 0}}, products, nil)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, _, err = PriceItems([]LineRequest{{ProductID: 2, Quantity: 1}}, products, nil)
	require.ErrorIs(t, err, ErrUnknownProduct)
}

func TestPriceItemsOverflow(t *testing.T) {
	products := map[int64]Product{1: {ID: 1, SalePrice: MaxAmount / 2}}
	_, _, err := PriceItems([]LineRequest{{ProductID: 1, Quantity: 3}}, products, nil)
	require.ErrorIs(t, err, ErrOverflow)

	_, _, err = PriceItems([]LineRequest{{ProductID: 1, Quantity: 2}, {ProductID: 1, Quantity: 1}}, products, nil)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestPriceItemsKeepsDuplicateLines(t *testing.T) {
	products := map[int64]Product{1: {ID: 1, SalePrice: 100}}
	lines, subtotal, err := PriceItems([]LineRequest{{ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 2}}, products, nil)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, Money(300), subtotal)
}

func TestOrderDiscountNeverExceedsSubtotal(t *testing.T) {
	require.Equal(t, Money(50), OrderDiscount(50, 100))
	require.Equal(t, Money(0), OrderDiscount(0, 100))
	require.Equal(t, Money(0), OrderDiscount(50, -5))
}

func TestDeriveBreakdownIsConsistent(t *testing.T) {
	cases := []struct {
		items []Money
		total Money
	}{
		{[]Money{80_000}, 76_000},
		{[]Money{100, 200}, 300},
		{[]Money{100, 200}, 350},
		{[]Money{100}, -10},
		{nil, 0},
	}
	for _, tc := range cases {
		first := DeriveBreakdown(tc.items, tc.total)
		second := DeriveBreakdown(tc.items, tc.total)
		require.Equal(t, first, second)
		require.GreaterOrEqual(t, first.DiscountAmount, Money(0))
		require.LessOrEqual(t, first.DiscountAmount, first.Subtotal)
		if tc.total >= 0 && tc.total <= first.Subtotal {
			require.Equal(t, tc.total, first.Subtotal-first.DiscountAmount)
		}
	}

	b := DeriveBreakdown([]Money{80_000}, 76_000)
	require.Equal(t, Money(4_000), b.DiscountAmount)
	require.Equal(t, 5, b.DiscountPercent)
}
