package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/events"
	"github.com/noah-isme/toko-sales/internal/obs"
	"github.com/noah-isme/toko-sales/internal/pricing"
	"github.com/noah-isme/toko-sales/internal/promotion"
	"github.com/noah-isme/toko-sales/internal/user"
)

var (
	// ErrOrderNotFound is returned when the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotEditable is returned when mutating an order that is no longer Created.
	ErrOrderNotEditable = errors.New("order is not editable")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrEmptyItems is returned when an order would have no items.
	ErrEmptyItems = errors.New("order must contain at least one item")
	// ErrInvalidQuantity is returned for a non-positive or oversized quantity.
	ErrInvalidQuantity = errors.New("item quantity must be greater than zero")
	// ErrProductNotFound is returned when an item references a missing product.
	ErrProductNotFound = errors.New("product not found")
	// ErrPromotionExpired is returned when a frozen discounted price is no longer backed by an active promotion.
	ErrPromotionExpired = errors.New("promotion behind the item price has expired")
	// ErrConcurrentModification is returned when the order changed since it was read.
	ErrConcurrentModification = errors.New("order was modified concurrently")
	// ErrInvalidDateRange is returned when the listing window is reversed.
	ErrInvalidDateRange = errors.New("fromDate is after toDate")
)

// Querier captures every store method the order lifecycle touches.
type Querier interface {
	promotion.Querier
	user.Querier
	GetProductsByIDs(ctx context.Context, ids []int64) ([]db.Product, error)
	CreateOrder(ctx context.Context, arg db.CreateOrderParams) (db.Order, error)
	GetOrder(ctx context.Context, id int64) (db.Order, error)
	UpdateOrder(ctx context.Context, arg db.UpdateOrderParams) (db.Order, error)
	DeleteOrder(ctx context.Context, id int64) (int64, error)
	InsertOrderItem(ctx context.Context, arg db.InsertOrderItemParams) (db.OrderItem, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]db.OrderItem, error)
	DeleteOrderItems(ctx context.Context, orderID int64) error
	InsertOrderPromotion(ctx context.Context, orderID, promotionID int64) error
	ListOrderPromotionIDs(ctx context.Context, orderID int64) ([]int64, error)
	DeleteOrderPromotions(ctx context.Context, orderID int64) error
	ListOrders(ctx context.Context, arg db.ListOrdersParams) ([]db.OrderSummaryRow, error)
	CountOrders(ctx context.Context, arg db.ListOrdersParams) (int64, error)
}

// Store adds transactional execution to Querier.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(Querier) error) error
}

type pgStore struct{ *db.Store }

// NewStore adapts the postgres store for the order service.
func NewStore(s *db.Store) Store { return pgStore{s} }

func (p pgStore) InTx(ctx context.Context, fn func(Querier) error) error {
	return p.ExecTx(ctx, func(q *db.Queries) error { return fn(q) })
}

// Emitter publishes domain events after a change is committed.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (db.DomainEvent, error)
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID int64
	Quantity  int
}

// CreateInput carries the fields of a new order.
type CreateInput struct {
	SaleUserID   int64
	CustomerID   *int64
	Items        []ItemInput
	PromotionIDs []int64
}

// UpdateInput carries a partial update. Nil Items or PromotionIDs keep the
// current values; a non-nil slice replaces them. Version, when set, must match
// the stored version.
type UpdateInput struct {
	CustomerID   *int64
	Status       *Status
	Items        []ItemInput
	PromotionIDs []int64
	Version      *int32
}

// Item is a stored order line.
type Item struct {
	ID         int64         `json:"id"`
	ProductID  int64         `json:"productId"`
	Quantity   int           `json:"quantity"`
	UnitPrice  pricing.Money `json:"unitPrice"`
	TotalPrice pricing.Money `json:"totalPrice"`
}

// Detail is an order with its items, explaining promotions and re-derived breakdown.
type Detail struct {
	ID           int64     `json:"id"`
	CustomerID   *int64    `json:"customerId"`
	SaleUserID   int64     `json:"saleUserId"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int32     `json:"version"`
	Items        []Item    `json:"items"`
	PromotionIDs []int64   `json:"promotionIds"`
	pricing.Breakdown
}

// Summary is one row of the order listing.
type Summary struct {
	ID           int64     `json:"id"`
	CustomerID   *int64    `json:"customerId"`
	CustomerName string    `json:"customerName,omitempty"`
	SaleUserID   int64     `json:"saleUserId"`
	SaleName     string    `json:"saleName"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	ItemsCount   int64     `json:"itemsCount"`
	pricing.Breakdown
}

// ListQuery filters the order listing. Dates are whole days in UTC.
type ListQuery struct {
	Page       int
	PageSize   int
	CustomerID *int64
	SaleUserID *int64
	Status     *Status
	FromDate   *time.Time
	ToDate     *time.Time
}

// Config holds listing defaults.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Service runs the order lifecycle.
type Service struct {
	Store  Store
	Events Emitter
	Config Config
	Now    func() time.Time
	Logger zerolog.Logger
}

type eventPayload struct {
	OrderID    int64         `json:"orderId"`
	SaleUserID int64         `json:"saleUserId"`
	Status     string        `json:"status"`
	Total      pricing.Money `json:"total"`
	CreatedAt  time.Time     `json:"createdAt"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("order service not configured")
	}
	return nil
}

// Create prices and stores a new order in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (Detail, error) {
	if err := s.ready(); err != nil {
		return Detail{}, err
	}
	ctx, span := obs.StartSpan(ctx, "order.create", attribute.Int64("order.sale_user_id", in.SaleUserID))
	defer span.End()

	if len(in.Items) == 0 {
		return Detail{}, common.Wrap(common.KindValidation, ErrEmptyItems, "order must contain at least one item")
	}
	now := s.now()
	var detail Detail
	err := s.Store.InTx(ctx, func(q Querier) error {
		dir := user.Directory{Q: q}
		if _, err := dir.Get(ctx, in.SaleUserID); err != nil {
			return err
		}
		customer := pgtype.Int8{}
		if in.CustomerID != nil {
			if err := dir.RequireCustomer(ctx, *in.CustomerID); err != nil {
				return err
			}
			customer = pgtype.Int8{Int64: *in.CustomerID, Valid: true}
		}
		lines, subtotal, err := s.priceItems(ctx, q, in.Items, now)
		if err != nil {
			return err
		}
		promoIDs, err := promotion.Resolver{Q: q}.ValidateOrderPromotionIDs(ctx, in.PromotionIDs, now)
		if err != nil {
			return err
		}
		total, err := s.applyOrderDiscount(ctx, q, subtotal, promoIDs, now)
		if err != nil {
			return err
		}
		row, err := q.CreateOrder(ctx, db.CreateOrderParams{
			CustomerID: customer,
			SaleID:     in.SaleUserID,
			Status:     StatusCreated.column(),
			CreatedAt:  now,
			TotalPrice: total,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		items, err := insertItems(ctx, q, row.ID, lines)
		if err != nil {
			return err
		}
		if err := attachPromotions(ctx, q, row.ID, promoIDs); err != nil {
			return err
		}
		detail, err = s.detail(ctx, q, row, items, promoIDs)
		return err
	})
	if err != nil {
		return Detail{}, err
	}
	s.Logger.Info().Int64("order_id", detail.ID).Int64("sale_user_id", detail.SaleUserID).
		Int64("subtotal", detail.Subtotal).Int64("total", detail.Total).Msg("order created")
	s.emit(ctx, events.TopicOrderCreated, detail)
	return detail, nil
}

// Update applies a partial change to an order that is still Created.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Detail, error) {
	if err := s.ready(); err != nil {
		return Detail{}, err
	}
	ctx, span := obs.StartSpan(ctx, "order.update", attribute.Int64("order.id", id))
	defer span.End()

	now := s.now()
	var (
		detail Detail
		topics []string
	)
	err := s.Store.InTx(ctx, func(q Querier) error {
		current, err := loadOrder(ctx, q, id)
		if err != nil {
			return err
		}
		if in.Version != nil && *in.Version != current.Version {
			return common.Wrap(common.KindConcurrentModification, ErrConcurrentModification,
				fmt.Sprintf("order %d is at version %d", id, current.Version))
		}
		status := statusFromColumn(current.Status)
		if !status.Editable() {
			return common.Wrap(common.KindInvalidTransition, ErrOrderNotEditable,
				fmt.Sprintf("order %d is %s and cannot be changed", id, status))
		}

		customer := current.CustomerID
		if in.CustomerID != nil {
			if err := (user.Directory{Q: q}).RequireCustomer(ctx, *in.CustomerID); err != nil {
				return err
			}
			customer = pgtype.Int8{Int64: *in.CustomerID, Valid: true}
		}

		items, err := q.ListOrderItems(ctx, id)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		attached, err := q.ListOrderPromotionIDs(ctx, id)
		if err != nil {
			return fmt.Errorf("list order promotions: %w", err)
		}
		promoIDs := promotion.NormalizeIDs(attached)
		promosChanged := false
		if in.PromotionIDs != nil {
			requested := promotion.NormalizeIDs(in.PromotionIDs)
			if !promotion.SameIDs(requested, promoIDs) {
				validated, err := promotion.Resolver{Q: q}.ValidateOrderPromotionIDs(ctx, requested, now)
				if err != nil {
					return err
				}
				promoIDs = validated
				promosChanged = true
			}
		}

		total := current.TotalPrice
		var pricedAt, discountedAt time.Time
		switch {
		case in.Items != nil:
			if len(in.Items) == 0 {
				return common.Wrap(common.KindValidation, ErrEmptyItems, "order must contain at least one item")
			}
			lines, subtotal, err := s.priceItems(ctx, q, in.Items, now)
			if err != nil {
				return err
			}
			if total, err = s.applyOrderDiscount(ctx, q, subtotal, promoIDs, now); err != nil {
				return err
			}
			if err := q.DeleteOrderItems(ctx, id); err != nil {
				return fmt.Errorf("clear order items: %w", err)
			}
			if items, err = insertItems(ctx, q, id, lines); err != nil {
				return err
			}
			pricedAt, discountedAt = now, now
		case promosChanged:
			subtotal, err := itemSubtotal(items)
			if err != nil {
				return err
			}
			if total, err = s.applyOrderDiscount(ctx, q, subtotal, promoIDs, now); err != nil {
				return err
			}
			discountedAt = now
		}
		if promosChanged {
			if err := q.DeleteOrderPromotions(ctx, id); err != nil {
				return fmt.Errorf("clear order promotions: %w", err)
			}
			if err := attachPromotions(ctx, q, id, promoIDs); err != nil {
				return err
			}
		}

		target := status
		if in.Status != nil && *in.Status != status {
			if !CanTransition(status, *in.Status) {
				return common.Wrap(common.KindInvalidTransition, ErrInvalidTransition,
					fmt.Sprintf("order %d cannot move from %s to %s", id, status, *in.Status))
			}
			if *in.Status == StatusPaid {
				if err := s.revalidatePrices(ctx, q, items, now); err != nil {
					return err
				}
			}
			target = *in.Status
		}

		updated, err := q.UpdateOrder(ctx, db.UpdateOrderParams{
			ID:         id,
			Version:    current.Version,
			CustomerID: customer,
			Status:     target.column(),
			TotalPrice: total,
			UpdatedAt:  now,

			PricedAt:     pricedAt,
			DiscountedAt: discountedAt,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.Wrap(common.KindConcurrentModification, ErrConcurrentModification,
					fmt.Sprintf("order %d was modified concurrently", id))
			}
			return fmt.Errorf("update order: %w", err)
		}
		topics = []string{events.TopicOrderUpdated}
		if target != status {
			switch target {
			case StatusPaid:
				topics = append(topics, events.TopicOrderPaid)
			case StatusCancelled:
				topics = append(topics, events.TopicOrderCancelled)
			case StatusCreated:
			}
		}
		detail, err = s.detail(ctx, q, updated, items, promoIDs)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrPromotionExpired) {
			obs.CountPaymentRejected("promotion_expired")
		}
		return Detail{}, err
	}
	s.Logger.Info().Int64("order_id", id).Str("status", detail.Status.String()).
		Int32("version", detail.Version).Int64("total", detail.Total).Msg("order updated")
	for _, topic := range topics {
		s.emit(ctx, topic, detail)
	}
	return detail, nil
}

// Pay moves a Created order to Paid after re-validating its frozen prices.
func (s *Service) Pay(ctx context.Context, id int64, version *int32) (Detail, error) {
	paid := StatusPaid
	return s.Update(ctx, id, UpdateInput{Status: &paid, Version: version})
}

// Delete removes the order with its items and promotion links regardless of
// status. It reports false when the order does not exist.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	var removed db.Order
	deleted := false
	err := s.Store.InTx(ctx, func(q Querier) error {
		row, err := q.GetOrder(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("load order: %w", err)
		}
		if err := q.DeleteOrderPromotions(ctx, id); err != nil {
			return fmt.Errorf("delete order promotions: %w", err)
		}
		if err := q.DeleteOrderItems(ctx, id); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		n, err := q.DeleteOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		removed, deleted = row, n > 0
		return nil
	})
	if err != nil || !deleted {
		return false, err
	}
	s.Logger.Info().Int64("order_id", id).Str("status", string(removed.Status)).Msg("order deleted")
	s.emit(ctx, events.TopicOrderDeleted, Detail{
		ID:         removed.ID,
		SaleUserID: removed.SaleID,
		Status:     statusFromColumn(removed.Status),
		CreatedAt:  removed.CreatedAt,
		Breakdown:  pricing.Breakdown{Total: removed.TotalPrice},
	})
	return true, nil
}

// Get returns the order detail, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	items, err := s.Store.ListOrderItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	attached, err := s.Store.ListOrderPromotionIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order promotions: %w", err)
	}
	detail, err := s.detail(ctx, s.Store, row, items, attached)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns a filtered page of order summaries, newest first.
func (s *Service) List(ctx context.Context, query ListQuery) (common.Paged[Summary], error) {
	if err := s.ready(); err != nil {
		return common.Paged[Summary]{}, err
	}
	defSize, maxSize := s.Config.DefaultPageSize, s.Config.MaxPageSize
	if defSize <= 0 {
		defSize = 10
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	page, size := common.NormalizePage(query.Page, query.PageSize, defSize, maxSize)
	params := db.ListOrdersParams{Limit: int32(size), Offset: int32((page - 1) * size)}
	if query.CustomerID != nil {
		params.CustomerID = pgtype.Int8{Int64: *query.CustomerID, Valid: true}
	}
	if query.SaleUserID != nil {
		params.SaleID = pgtype.Int8{Int64: *query.SaleUserID, Valid: true}
	}
	if query.Status != nil {
		params.Status = pgtype.Text{String: query.Status.String(), Valid: true}
	}
	if query.FromDate != nil {
		params.From = pgtype.Timestamptz{Time: startOfDay(*query.FromDate), Valid: true}
	}
	if query.ToDate != nil {
		params.To = pgtype.Timestamptz{Time: startOfDay(*query.ToDate).AddDate(0, 0, 1), Valid: true}
	}
	if params.From.Valid && params.To.Valid && !params.From.Time.Before(params.To.Time) {
		return common.Paged[Summary]{}, common.Wrap(common.KindValidation, ErrInvalidDateRange, "fromDate is after toDate")
	}

	total, err := s.Store.CountOrders(ctx, params)
	if err != nil {
		return common.Paged[Summary]{}, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.Store.ListOrders(ctx, params)
	if err != nil {
		return common.Paged[Summary]{}, fmt.Errorf("list orders: %w", err)
	}
	items := make([]Summary, 0, len(rows))
	for _, row := range rows {
		items = append(items, Summary{
			ID:           row.ID,
			CustomerID:   int8Ptr(row.CustomerID),
			CustomerName: row.CustomerName.String,
			SaleUserID:   row.SaleID,
			SaleName:     row.SaleName,
			Status:       statusFromColumn(row.Status),
			CreatedAt:    row.CreatedAt,
			ItemsCount:   row.ItemsCount,
			Breakdown:    pricing.BreakdownFromSubtotal(row.Subtotal, row.TotalPrice),
		})
	}
	return common.Paged[Summary]{Items: items, Pagination: common.NewPagination(page, size, total)}, nil
}

// priceItems resolves discounts at at and prices the requested lines.
func (s *Service) priceItems(ctx context.Context, q Querier, in []ItemInput, at time.Time) ([]pricing.Line, pricing.Money, error) {
	requests := make([]pricing.LineRequest, 0, len(in))
	ids := make([]int64, 0, len(in))
	for _, it := range in {
		if it.Quantity <= 0 || it.Quantity > math.MaxInt32 {
			return nil, 0, common.Wrap(common.KindValidation, ErrInvalidQuantity,
				fmt.Sprintf("product %d: quantity must be between 1 and %d", it.ProductID, math.MaxInt32))
		}
		requests = append(requests, pricing.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		ids = append(ids, it.ProductID)
	}
	products, err := loadProducts(ctx, q, ids, true)
	if err != nil {
		return nil, 0, err
	}
	discounts, err := promotion.Resolver{Q: q}.ResolveBestDiscounts(ctx, productList(products), at)
	if err != nil {
		return nil, 0, err
	}
	lines, subtotal, err := pricing.PriceItems(requests, products, discounts)
	if err != nil {
		return nil, 0, mapPricingError(err)
	}
	return lines, subtotal, nil
}

// applyOrderDiscount returns the order total after the best attached order promotion.
func (s *Service) applyOrderDiscount(ctx context.Context, q Querier, subtotal pricing.Money, promoIDs []int64, at time.Time) (pricing.Money, error) {
	pct, err := promotion.Resolver{Q: q}.ResolveBestOrderDiscount(ctx, promoIDs, at)
	if err != nil {
		return 0, err
	}
	return subtotal - pricing.OrderDiscount(subtotal, pct), nil
}

// revalidatePrices checks that every discounted item is still backed by a
// promotion active at at. Items priced at or above the catalog price are exempt.
func (s *Service) revalidatePrices(ctx context.Context, q Querier, items []db.OrderItem, at time.Time) error {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := loadProducts(ctx, q, ids, true)
	if err != nil {
		return err
	}
	discounts, err := promotion.Resolver{Q: q}.ResolveBestDiscounts(ctx, productList(products), at)
	if err != nil {
		return err
	}
	for _, it := range items {
		product := products[it.ProductID]
		if it.UnitPrice >= product.SalePrice {
			continue
		}
		if pricing.ApplyDiscount(product.SalePrice, discounts[it.ProductID]) > it.UnitPrice {
			return common.Wrap(common.KindPromotionExpired, ErrPromotionExpired,
				fmt.Sprintf("product %d: price %d is no longer backed by an active promotion", it.ProductID, it.UnitPrice))
		}
	}
	return nil
}

// detail assembles the read view. The promotions shown are those that explain
// the stored prices: item promotions at the time the lines were priced and the
// order promotion at the time it was applied. The breakdown is re-derived from
// the stored total and item totals.
func (s *Service) detail(ctx context.Context, q Querier, row db.Order, items []db.OrderItem, attached []int64) (Detail, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := loadProducts(ctx, q, ids, false)
	if err != nil {
		return Detail{}, err
	}
	explained := make([]pricing.Product, 0, len(items))
	totals := make([]pricing.Money, 0, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if p, ok := products[it.ProductID]; ok {
			explained = append(explained, p)
		}
		totals = append(totals, it.TotalPrice)
		out = append(out, Item{
			ID:         it.ID,
			ProductID:  it.ProductID,
			Quantity:   int(it.Quantity),
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
		})
	}
	promoIDs, err := promotion.Resolver{Q: q}.ExplainOrder(ctx, attached, row.DiscountedAt, explained, row.PricedAt)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		ID:           row.ID,
		CustomerID:   int8Ptr(row.CustomerID),
		SaleUserID:   row.SaleID,
		Status:       statusFromColumn(row.Status),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Version:      row.Version,
		Items:        out,
		PromotionIDs: promoIDs,
		Breakdown:    pricing.DeriveBreakdown(totals, row.TotalPrice),
	}, nil
}

func (s *Service) emit(ctx context.Context, topic string, d Detail) {
	obs.CountOrderEvent(strings.TrimPrefix(topic, "order."))
	if s.Events == nil {
		return
	}
	payload := eventPayload{OrderID: d.ID, SaleUserID: d.SaleUserID, Status: d.Status.String(), Total: d.Total, CreatedAt: d.CreatedAt}
	if _, err := s.Events.Emit(ctx, topic, strconv.FormatInt(d.ID, 10), payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Int64("order_id", d.ID).Msg("emit order event")
	}
}

func loadOrder(ctx context.Context, q Querier, id int64) (db.Order, error) {
	row, err := q.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Order{}, common.Wrap(common.KindNotFound, ErrOrderNotFound, fmt.Sprintf("order %d not found", id))
		}
		return db.Order{}, fmt.Errorf("load order: %w", err)
	}
	return row, nil
}

// loadProducts fetches the distinct products. With strict set, a missing id is NotFound.
func loadProducts(ctx context.Context, q Querier, ids []int64, strict bool) (map[int64]pricing.Product, error) {
	distinct := promotion.NormalizeIDs(ids)
	out := make(map[int64]pricing.Product, len(distinct))
	if len(distinct) == 0 {
		if strict && len(ids) > 0 {
			return nil, common.Wrap(common.KindNotFound, ErrProductNotFound, fmt.Sprintf("product %d not found", ids[0]))
		}
		return out, nil
	}
	rows, err := q.GetProductsByIDs(ctx, distinct)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, p := range rows {
		out[p.ID] = pricing.Product{ID: p.ID, SalePrice: p.SalePrice, CategoryID: p.CategoryID}
	}
	if strict {
		for _, id := range ids {
			if _, ok := out[id]; !ok {
				return nil, common.Wrap(common.KindNotFound, ErrProductNotFound, fmt.Sprintf("product %d not found", id))
			}
		}
	}
	return out, nil
}

func productList(m map[int64]pricing.Product) []pricing.Product {
	out := make([]pricing.Product, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

func insertItems(ctx context.Context, q Querier, orderID int64, lines []pricing.Line) ([]db.OrderItem, error) {
	items := make([]db.OrderItem, 0, len(lines))
	for _, line := range lines {
		it, err := q.InsertOrderItem(ctx, db.InsertOrderItemParams{
			OrderID:    orderID,
			ProductID:  line.ProductID,
			Quantity:   int32(line.Quantity),
			UnitPrice:  line.UnitPrice,
			TotalPrice: line.TotalPrice,
		})
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

func attachPromotions(ctx context.Context, q Querier, orderID int64, ids []int64) error {
	for _, id := range ids {
		if err := q.InsertOrderPromotion(ctx, orderID, id); err != nil {
			return fmt.Errorf("attach promotion %d: %w", id, err)
		}
	}
	return nil
}

func itemSubtotal(items []db.OrderItem) (pricing.Money, error) {
	totals := make([]pricing.Money, 0, len(items))
	for _, it := range items {
		totals = append(totals, it.TotalPrice)
	}
	sum, err := pricing.Sum(totals...)
	if err != nil {
		return 0, common.Wrap(common.KindOverflow, err, "order subtotal overflows")
	}
	return sum, nil
}

func mapPricingError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrOverflow):
		return common.Wrap(common.KindOverflow, err, "order amount exceeds the supported range")
	case errors.Is(err, pricing.ErrInvalidQuantity):
		return common.Wrap(common.KindValidation, ErrInvalidQuantity, err.Error())
	case errors.Is(err, pricing.ErrUnknownProduct):
		return common.Wrap(common.KindNotFound, ErrProductNotFound, err.Error())
	}
	return err
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
