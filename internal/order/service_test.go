package order

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/events"
	"github.com/noah-isme/toko-sales/internal/pricing"
)

const (
	saleID     int64 = 2
	customerID int64 = 50

	productA int64 = 1 // 100,000 in category 7
	productB int64 = 2 // 1,000 in category 8
	productC int64 = 3 // 500 in category 9, never discounted

	promoCategory10 int64 = 10
	promoProduct20  int64 = 20
	promoProductB15 int64 = 30
	promoOrder5     int64 = 40
	promoOrderOld   int64 = 41
)

var (
	march1  = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	march5  = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	march10 = time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC)
	march11 = time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	march31 = time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
)

type fixture struct {
	svc    *Service
	store  *memStore
	events *captureEmitter
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	store.users[saleID] = db.User{ID: saleID, Username: "sale", FullName: "Sale One", Roles: []string{"sale"}}
	store.customers[customerID] = "Customer"
	store.products[productA] = db.Product{ID: productA, SalePrice: 100_000, CategoryID: 7}
	store.products[productB] = db.Product{ID: productB, SalePrice: 1_000, CategoryID: 8}
	store.products[productC] = db.Product{ID: productC, SalePrice: 500, CategoryID: 9}

	add := func(id int64, pct int32, scope db.PromotionScope, start, end time.Time) {
		store.promotions[id] = db.Promotion{ID: id, Name: "promo", DiscountPercent: pct, Scope: scope, StartDate: start, EndDate: end}
	}
	add(promoCategory10, 10, db.PromotionScopeCategory, march1, march31)
	add(promoProduct20, 20, db.PromotionScopeProduct, march1, march31)
	add(promoProductB15, 15, db.PromotionScopeProduct, march1, march10)
	add(promoOrder5, 5, db.PromotionScopeOrder, march1, march31)
	add(promoOrderOld, 50, db.PromotionScopeOrder, march1.AddDate(0, -1, 0), march1.Add(-time.Second))
	store.categoryPromos[7] = []int64{promoCategory10}
	store.productPromos[productA] = []int64{promoProduct20}
	store.productPromos[productB] = []int64{promoProductB15}

	f := &fixture{store: store, events: &captureEmitter{}, clock: march5}
	f.svc = &Service{Store: store, Events: f.events, Now: func() time.Time { return f.clock }}
	return f
}

func (f *fixture) create(t *testing.T, in CreateInput) Detail {
	t.Helper()
	if in.SaleUserID == 0 {
		in.SaleUserID = saleID
	}
	d, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return d
}

func TestCreateStackedScopes(t *testing.T) {
	f := newFixture(t)
	cust := customerID
	d := f.create(t, CreateInput{
		CustomerID:   &cust,
		Items:        []ItemInput{{ProductID: productA, Quantity: 1}},
		PromotionIDs: []int64{promoOrder5, promoOrder5, 0},
	})

	require.Equal(t, StatusCreated, d.Status)
	require.Len(t, d.Items, 1)
	require.Equal(t, pricing.Money(80_000), d.Items[0].UnitPrice)
	require.Equal(t, pricing.Money(80_000), d.Subtotal)
	require.Equal(t, pricing.Money(4_000), d.DiscountAmount)
	require.Equal(t, 5, d.DiscountPercent)
	require.Equal(t, pricing.Money(76_000), d.Total)
	require.Equal(t, []int64{promoCategory10, promoProduct20, promoOrder5}, d.PromotionIDs)
	require.Equal(t, []int64{promoOrder5}, f.store.orderPromos[d.ID])
	require.Equal(t, []string{events.TopicOrderCreated}, f.events.topics)
	require.Equal(t, int32(1), d.Version)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := int64(999)

	cases := map[string]struct {
		in   CreateInput
		kind common.Kind
	}{
		"no items":          {CreateInput{SaleUserID: saleID}, common.KindValidation},
		"unknown sale":      {CreateInput{SaleUserID: 77, Items: []ItemInput{{ProductID: productA, Quantity: 1}}}, common.KindNotFound},
		"unknown customer":  {CreateInput{SaleUserID: saleID, CustomerID: &missing, Items: []ItemInput{{ProductID: productA, Quantity: 1}}}, common.KindNotFound},
		"zero quantity":     {CreateInput{SaleUserID: saleID, Items: []ItemInput{{ProductID: productA, Quantity: 0}}}, common.KindValidation},
		"unknown product":   {CreateInput{SaleUserID: saleID, Items: []ItemInput{{ProductID: 404, Quantity: 1}}}, common.KindNotFound},
		"expired promotion": {CreateInput{SaleUserID: saleID, Items: []ItemInput{{ProductID: productC, Quantity: 1}}, PromotionIDs: []int64{promoOrderOld}}, common.KindValidation},
		"wrong scope":       {CreateInput{SaleUserID: saleID, Items: []ItemInput{{ProductID: productC, Quantity: 1}}, PromotionIDs: []int64{promoProduct20}}, common.KindValidation},
		"missing promotion": {CreateInput{SaleUserID: saleID, Items: []ItemInput{{ProductID: productC, Quantity: 1}}, PromotionIDs: []int64{12345}}, common.KindNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.in)
			require.Equal(t, tc.kind, common.KindOf(err))
		})
	}
	require.Empty(t, f.store.orders)
	require.Empty(t, f.events.topics)
}

func TestCreateOverflow(t *testing.T) {
	f := newFixture(t)
	f.store.products[99] = db.Product{ID: 99, SalePrice: pricing.MaxAmount / 2, CategoryID: 1}
	_, err := f.svc.Create(context.Background(), CreateInput{SaleUserID: saleID, Items: []ItemInput{{ProductID: 99, Quantity: 3}}})
	require.Equal(t, common.KindOverflow, common.KindOf(err))

	_, err = f.svc.Create(context.Background(), CreateInput{SaleUserID: saleID, Items: []ItemInput{{ProductID: 99, Quantity: math.MaxInt32 + 1}}})
	require.Equal(t, common.KindValidation, common.KindOf(err))
	require.Empty(t, f.store.orders)
}

func TestPayRejectsExpiredPromotion(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productB, Quantity: 2}, {ProductID: productC, Quantity: 1}}})
	require.Equal(t, pricing.Money(850), d.Items[0].UnitPrice)

	f.clock = march11
	_, err := f.svc.Pay(context.Background(), d.ID, nil)
	require.Equal(t, common.KindPromotionExpired, common.KindOf(err))
	require.ErrorIs(t, err, ErrPromotionExpired)

	stored := f.store.orders[d.ID]
	require.Equal(t, db.OrderStatusCreated, stored.Status)
	require.Equal(t, int32(1), stored.Version)
}

func TestPayAcceptsEquivalentPromotion(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productB, Quantity: 1}}})

	// A different, stronger promotion still backs the frozen price.
	f.store.promotions[31] = db.Promotion{ID: 31, DiscountPercent: 20, Scope: db.PromotionScopeCategory, StartDate: march1, EndDate: march31}
	f.store.categoryPromos[8] = []int64{31}
	f.clock = march11

	paid, err := f.svc.Pay(context.Background(), d.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderUpdated, events.TopicOrderPaid}, f.events.topics)
}

func TestPayUndiscountedItemsExempt(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productC, Quantity: 4}}})
	f.clock = march31.AddDate(1, 0, 0)

	paid, err := f.svc.Pay(context.Background(), d.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, int32(2), paid.Version)

	_, err = f.svc.Pay(context.Background(), d.ID, nil)
	require.Equal(t, common.KindInvalidTransition, common.KindOf(err))

	_, err = f.svc.Update(context.Background(), d.ID, UpdateInput{Items: []ItemInput{{ProductID: productC, Quantity: 1}}})
	require.ErrorIs(t, err, ErrOrderNotEditable)
}

func TestCancelAndTransitions(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productC, Quantity: 1}}})

	cancelled := StatusCancelled
	out, err := f.svc.Update(context.Background(), d.ID, UpdateInput{Status: &cancelled})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)
	require.Contains(t, f.events.topics, events.TopicOrderCancelled)

	paid := StatusPaid
	_, err = f.svc.Update(context.Background(), d.ID, UpdateInput{Status: &paid})
	require.Equal(t, common.KindInvalidTransition, common.KindOf(err))

	require.True(t, CanTransition(StatusCreated, StatusPaid))
	require.False(t, CanTransition(StatusPaid, StatusCancelled))
	require.False(t, CanTransition(StatusCreated, StatusCreated))
}

func TestUpdateReplacesItemsAndPromotions(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productC, Quantity: 1}}, PromotionIDs: []int64{promoOrder5}})
	require.Equal(t, pricing.Money(475), d.Total)

	out, err := f.svc.Update(context.Background(), d.ID, UpdateInput{
		Items: []ItemInput{{ProductID: productA, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	require.Equal(t, pricing.Money(160_000), out.Subtotal)
	require.Equal(t, pricing.Money(152_000), out.Total)

	out, err = f.svc.Update(context.Background(), d.ID, UpdateInput{PromotionIDs: []int64{}})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(160_000), out.Total)
	require.Zero(t, out.DiscountAmount)
	require.Empty(t, f.store.orderPromos[d.ID])

	_, err = f.svc.Update(context.Background(), d.ID, UpdateInput{Items: []ItemInput{}})
	require.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestUpdateExplainsPromotionsAtPricingTime(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productC, Quantity: 1}}})
	require.Empty(t, d.PromotionIDs)

	// promoProductB15 ended the day before the items are replaced.
	f.clock = march11
	out, err := f.svc.Update(context.Background(), d.ID, UpdateInput{Items: []ItemInput{{ProductID: productB, Quantity: 1}}})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(1_000), out.Items[0].UnitPrice)
	require.Zero(t, out.DiscountAmount)
	require.Empty(t, out.PromotionIDs)
	require.Equal(t, march11, f.store.orders[d.ID].PricedAt)

	got, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Empty(t, got.PromotionIDs)
}

func TestUpdatePromotionsKeepsItemPricingTime(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productB, Quantity: 1}}})
	require.Equal(t, pricing.Money(850), d.Items[0].UnitPrice)
	require.Equal(t, []int64{promoProductB15}, d.PromotionIDs)

	f.clock = march11
	out, err := f.svc.Update(context.Background(), d.ID, UpdateInput{PromotionIDs: []int64{promoOrder5}})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(850), out.Items[0].UnitPrice)
	require.Equal(t, []int64{promoProductB15, promoOrder5}, out.PromotionIDs)

	stored := f.store.orders[d.ID]
	require.Equal(t, march5, stored.PricedAt)
	require.Equal(t, march11, stored.DiscountedAt)
}

func TestUpdatePromotionsOnlyKeepsFrozenPrices(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productA, Quantity: 1}}})
	require.Equal(t, pricing.Money(80_000), d.Total)

	// Catalog price changes must not reprice existing items.
	p := f.store.products[productA]
	p.SalePrice = 200_000
	f.store.products[productA] = p

	out, err := f.svc.Update(context.Background(), d.ID, UpdateInput{PromotionIDs: []int64{promoOrder5}})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(80_000), out.Items[0].UnitPrice)
	require.Equal(t, pricing.Money(76_000), out.Total)

	// Resending the same set is not a change, even after the promotion ended.
	f.clock = march31.AddDate(0, 1, 0)
	out, err = f.svc.Update(context.Background(), d.ID, UpdateInput{PromotionIDs: []int64{promoOrder5}})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(76_000), out.Total)
}

func TestUpdateConcurrency(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productC, Quantity: 1}}})
	cust := customerID

	stale := int32(7)
	_, err := f.svc.Update(context.Background(), d.ID, UpdateInput{CustomerID: &cust, Version: &stale})
	require.Equal(t, common.KindConcurrentModification, common.KindOf(err))

	f.store.beforeUpdate = func(id int64) {
		o := f.store.orders[id]
		o.Version++
		f.store.orders[id] = o
	}
	current := d.Version
	_, err = f.svc.Update(context.Background(), d.ID, UpdateInput{CustomerID: &cust, Version: &current})
	require.ErrorIs(t, err, ErrConcurrentModification)

	_, err = f.svc.Update(context.Background(), 999, UpdateInput{})
	require.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestGetRederivesBreakdown(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productA, Quantity: 1}}, PromotionIDs: []int64{promoOrder5}})

	// Promotions ending later must not change the stored view.
	f.store.promotions[promoOrder5] = db.Promotion{ID: promoOrder5, DiscountPercent: 50, Scope: db.PromotionScopeOrder, StartDate: march1, EndDate: march31}
	got, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, d.Total, got.Total)
	require.Equal(t, got.Subtotal-got.DiscountAmount, got.Total)
	require.Equal(t, 5, got.DiscountPercent)

	missing, err := f.svc.Get(context.Background(), 12345)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productC, Quantity: 1}}, PromotionIDs: []int64{promoOrder5}})
	_, err := f.svc.Pay(context.Background(), d.ID, nil)
	require.NoError(t, err)

	ok, err := f.svc.Delete(context.Background(), d.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, f.store.items[d.ID])
	require.Empty(t, f.store.orderPromos[d.ID])
	require.Contains(t, f.events.topics, events.TopicOrderDeleted)

	ok, err = f.svc.Delete(context.Background(), d.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListFiltersAndOrdering(t *testing.T) {
	f := newFixture(t)
	cust := customerID
	f.clock = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	first := f.create(t, CreateInput{CustomerID: &cust, Items: []ItemInput{{ProductID: productC, Quantity: 2}}})
	f.clock = time.Date(2025, 3, 3, 23, 59, 0, 0, time.UTC)
	second := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productA, Quantity: 1}}, PromotionIDs: []int64{promoOrder5}})
	f.clock = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	third := f.create(t, CreateInput{Items: []ItemInput{{ProductID: productC, Quantity: 1}}})

	ctx := context.Background()
	all, err := f.svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Equal(t, []int64{third.ID, second.ID, first.ID}, summaryIDs(all.Items))
	require.Equal(t, 10, all.Pagination.PageSize)
	require.Equal(t, pricing.Money(4_000), all.Items[1].DiscountAmount)
	require.Equal(t, int64(1), all.Items[1].ItemsCount)

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	window, err := f.svc.List(ctx, ListQuery{FromDate: &from, ToDate: &to})
	require.NoError(t, err)
	require.Equal(t, []int64{second.ID, first.ID}, summaryIDs(window.Items))

	byCustomer, err := f.svc.List(ctx, ListQuery{CustomerID: &cust})
	require.NoError(t, err)
	require.Equal(t, []int64{first.ID}, summaryIDs(byCustomer.Items))
	require.Equal(t, "Customer", byCustomer.Items[0].CustomerName)

	created := StatusCreated
	paged, err := f.svc.List(ctx, ListQuery{Page: 2, PageSize: 2, Status: &created})
	require.NoError(t, err)
	require.Equal(t, []int64{first.ID}, summaryIDs(paged.Items))
	require.Equal(t, 2, paged.Pagination.TotalPages)

	_, err = f.svc.List(ctx, ListQuery{FromDate: &to, ToDate: &from})
	require.Equal(t, common.KindValidation, common.KindOf(err))
}

func summaryIDs(items []Summary) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
