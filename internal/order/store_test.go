package order

import (
	"context"
	"maps"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-sales/internal/db"
)

// memStore is an in-memory Store. InTx restores order state when fn fails.
type memStore struct {
	users          map[int64]db.User
	customers      map[int64]string
	products       map[int64]db.Product
	promotions     map[int64]db.Promotion
	productPromos  map[int64][]int64
	categoryPromos map[int64][]int64

	orders      map[int64]db.Order
	items       map[int64][]db.OrderItem
	orderPromos map[int64][]int64
	nextOrder   int64
	nextItem    int64

	// beforeUpdate runs inside UpdateOrder, letting tests simulate a racing writer.
	beforeUpdate func(id int64)
}

func newMemStore() *memStore {
	return &memStore{
		users:          map[int64]db.User{},
		customers:      map[int64]string{},
		products:       map[int64]db.Product{},
		promotions:     map[int64]db.Promotion{},
		productPromos:  map[int64][]int64{},
		categoryPromos: map[int64][]int64{},
		orders:         map[int64]db.Order{},
		items:          map[int64][]db.OrderItem{},
		orderPromos:    map[int64][]int64{},
	}
}

func (m *memStore) InTx(_ context.Context, fn func(Querier) error) error {
	orders := maps.Clone(m.orders)
	items := maps.Clone(m.items)
	promos := maps.Clone(m.orderPromos)
	if err := fn(m); err != nil {
		m.orders, m.items, m.orderPromos = orders, items, promos
		return err
	}
	return nil
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
		for _, r := range u.Roles {
			if r == role {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CustomerExists(_ context.Context, id int64) (bool, error) {
	_, ok := m.customers[id]
	return ok, nil
}

func (m *memStore) GetProductsByIDs(_ context.Context, ids []int64) ([]db.Product, error) {
	var out []db.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) targets(links map[int64][]int64, arg db.ActivePromotionsParams) []db.PromotionTargetRow {
	var out []db.PromotionTargetRow
	for _, target := range arg.TargetIDs {
		for _, pid := range links[target] {
			p, ok := m.promotions[pid]
			if !ok || p.StartDate.After(arg.At) || p.EndDate.Before(arg.At) {
				continue
			}
			out = append(out, db.PromotionTargetRow{
				TargetID: target, PromotionID: p.ID, DiscountPercent: p.DiscountPercent,
				Scope: p.Scope, StartDate: p.StartDate, EndDate: p.EndDate,
			})
		}
	}
	return out
}

func (m *memStore) ListActiveProductPromotions(_ context.Context, arg db.ActivePromotionsParams) ([]db.PromotionTargetRow, error) {
	return m.targets(m.productPromos, arg), nil
}

func (m *memStore) ListActiveCategoryPromotions(_ context.Context, arg db.ActivePromotionsParams) ([]db.PromotionTargetRow, error) {
	return m.targets(m.categoryPromos, arg), nil
}

func (m *memStore) GetPromotionsByIDs(_ context.Context, ids []int64) ([]db.Promotion, error) {
	var out []db.Promotion
	for _, id := range ids {
		if p, ok := m.promotions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreateOrder(_ context.Context, arg db.CreateOrderParams) (db.Order, error) {
	m.nextOrder++
	o := db.Order{
		ID: m.nextOrder, CustomerID: arg.CustomerID, SaleID: arg.SaleID, Status: arg.Status,
		CreatedAt: arg.CreatedAt, UpdatedAt: arg.CreatedAt, TotalPrice: arg.TotalPrice, Version: 1,
		PricedAt: arg.CreatedAt, DiscountedAt: arg.CreatedAt,
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) GetOrder(_ context.Context, id int64) (db.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return db.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) UpdateOrder(_ context.Context, arg db.UpdateOrderParams) (db.Order, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(arg.ID)
	}
	o, ok := m.orders[arg.ID]
	if !ok || o.Version != arg.Version {
		return db.Order{}, pgx.ErrNoRows
	}
	o.CustomerID, o.Status, o.TotalPrice, o.UpdatedAt = arg.CustomerID, arg.Status, arg.TotalPrice, arg.UpdatedAt
	if !arg.PricedAt.IsZero() {
		o.PricedAt = arg.PricedAt
	}
	if !arg.DiscountedAt.IsZero() {
		o.DiscountedAt = arg.DiscountedAt
	}
	o.Version++
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) DeleteOrder(_ context.Context, id int64) (int64, error) {
	if _, ok := m.orders[id]; !ok {
		return 0, nil
	}
	delete(m.orders, id)
	return 1, nil
}

func (m *memStore) InsertOrderItem(_ context.Context, arg db.InsertOrderItemParams) (db.OrderItem, error) {
	m.nextItem++
	it := db.OrderItem{
		ID: m.nextItem, OrderID: arg.OrderID, ProductID: arg.ProductID, Quantity: arg.Quantity,
		UnitPrice: arg.UnitPrice, TotalPrice: arg.TotalPrice,
	}
	m.items[arg.OrderID] = append(append([]db.OrderItem(nil), m.items[arg.OrderID]...), it)
	return it, nil
}

func (m *memStore) ListOrderItems(_ context.Context, orderID int64) ([]db.OrderItem, error) {
	return append([]db.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memStore) DeleteOrderItems(_ context.Context, orderID int64) error {
	delete(m.items, orderID)
	return nil
}

func (m *memStore) InsertOrderPromotion(_ context.Context, orderID, promotionID int64) error {
	m.orderPromos[orderID] = append(append([]int64(nil), m.orderPromos[orderID]...), promotionID)
	return nil
}

func (m *memStore) ListOrderPromotionIDs(_ context.Context, orderID int64) ([]int64, error) {
	return append([]int64(nil), m.orderPromos[orderID]...), nil
}

func (m *memStore) DeleteOrderPromotions(_ context.Context, orderID int64) error {
	delete(m.orderPromos, orderID)
	return nil
}

func (m *memStore) filterOrders(arg db.ListOrdersParams) []db.Order {
	var out []db.Order
	for _, o := range m.orders {
		if arg.CustomerID.Valid && (!o.CustomerID.Valid || o.CustomerID.Int64 != arg.CustomerID.Int64) {
			continue
		}
		if arg.SaleID.Valid && o.SaleID != arg.SaleID.Int64 {
			continue
		}
		if arg.Status.Valid && string(o.Status) != arg.Status.String {
			continue
		}
		if arg.From.Valid && o.CreatedAt.Before(arg.From.Time) {
			continue
		}
		if arg.To.Valid && !o.CreatedAt.Before(arg.To.Time) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *memStore) ListOrders(_ context.Context, arg db.ListOrdersParams) ([]db.OrderSummaryRow, error) {
	all := m.filterOrders(arg)
	start := int(arg.Offset)
	if start > len(all) {
		start = len(all)
	}
	end := start + int(arg.Limit)
	if end > len(all) {
		end = len(all)
	}
	var out []db.OrderSummaryRow
	for _, o := range all[start:end] {
		row := db.OrderSummaryRow{Order: o, SaleName: m.users[o.SaleID].FullName}
		if o.CustomerID.Valid {
			row.CustomerName.String, row.CustomerName.Valid = m.customers[o.CustomerID.Int64], true
		}
		for _, it := range m.items[o.ID] {
			row.ItemsCount++
			row.Subtotal += it.TotalPrice
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memStore) CountOrders(_ context.Context, arg db.ListOrdersParams) (int64, error) {
	return int64(len(m.filterOrders(arg))), nil
}

type captureEmitter struct {
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic, aggregateID string, payload any) (db.DomainEvent, error) {
	c.topics = append(c.topics, topic)
	return db.DomainEvent{Topic: topic, AggregateID: aggregateID}, nil
}
