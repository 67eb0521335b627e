package analytics

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/pricing"
)

// Querier defines the database access required for analytics operations.
type Querier interface {
	CountProducts(ctx context.Context) (int64, error)
	GetOrdersOverview(ctx context.Context, arg db.RangeParams) (db.OrdersOverviewRow, error)
	ListTopProducts(ctx context.Context, arg db.TopProductsParams) ([]db.TopProductRow, error)
	ListOrders(ctx context.Context, arg db.ListOrdersParams) ([]db.OrderSummaryRow, error)
	ListDailyRevenue(ctx context.Context, arg db.RangeParams) ([]db.DailyRevenueRow, error)
	ListPaidItemFacts(ctx context.Context, arg db.PaidItemFactsParams) ([]db.PaidItemFact, error)
}

// Cache stores JSON snapshots.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

const (
	defaultTop       = 5
	defaultSeriesTop = 10
	maxTop           = 100
	defaultRecent    = 3
	maxRecent        = 50
)

// Service reports on paid orders. Read results are cached for a short while.
type Service struct {
	Q            Querier
	Cache        Cache
	DefaultRange int
	Now          func() time.Time
	Logger       zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ready() error {
	if s == nil || s.Q == nil {
		return errors.New("analytics service not configured")
	}
	return nil
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case time.Time:
			formatted = append(formatted, v.Format("2006-01-02"))
		case nil:
			formatted = append(formatted, "-")
		default:
			formatted = append(formatted, fmt.Sprint(part))
		}
	}
	return strings.Join(formatted, ":")
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.Cache == nil {
		return false
	}
	found, err := s.Cache.Get(ctx, key, dst)
	if err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("read analytics cache")
		return false
	}
	return found
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, key, value); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("write analytics cache")
	}
}

// DefaultDays resolves an optional inclusive day range. Missing bounds fall
// back to the last DefaultRange days ending today.
func (s *Service) DefaultDays(from, to *time.Time) (Range, error) {
	days := s.DefaultRange
	if days <= 0 {
		days = 30
	}
	last := s.now()
	if to != nil {
		last = *to
	}
	first := startOfDay(last).AddDate(0, 0, -(days - 1))
	if from != nil {
		first = *from
	}
	return DayRange(first, last)
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

// Overview summarises today's activity.
type Overview struct {
	Date            string        `json:"date"`
	TotalProducts   int64         `json:"totalProducts"`
	OrdersToday     int64         `json:"ordersToday"`
	PaidOrdersToday int64         `json:"paidOrdersToday"`
	RevenueToday    pricing.Money `json:"revenueToday"`
}

// Overview counts the catalogue and today's orders. Revenue covers paid orders only.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	if err := s.ready(); err != nil {
		return Overview{}, err
	}
	today := startOfDay(s.now())
	key := cacheKey("an", "overview", today)
	var out Overview
	if s.load(ctx, key, &out) {
		return out, nil
	}
	products, err := s.Q.CountProducts(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("count products: %w", err)
	}
	row, err := s.Q.GetOrdersOverview(ctx, db.RangeParams{From: today, To: today.AddDate(0, 0, 1)})
	if err != nil {
		return Overview{}, fmt.Errorf("orders overview: %w", err)
	}
	out = Overview{
		Date:            today.Format("2006-01-02"),
		TotalProducts:   products,
		OrdersToday:     row.Orders,
		PaidOrdersToday: row.PaidOrders,
		RevenueToday:    row.Revenue,
	}
	s.store(ctx, key, out)
	return out, nil
}

// TopProduct is a product ranked by paid quantity.
type TopProduct struct {
	ProductID   int64         `json:"productId"`
	ProductName string        `json:"productName"`
	Quantity    int64         `json:"quantity"`
	Revenue     pricing.Money `json:"revenue"`
}

// TopProducts ranks products by quantity sold on paid orders, then by
// revenue. Optional bounds are inclusive calendar days.
func (s *Service) TopProducts(ctx context.Context, from, to *time.Time, limit int) ([]TopProduct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultTop, maxTop)
	params := db.TopProductsParams{Limit: int32(limit)}
	var lo, hi any
	if from != nil {
		day := startOfDay(*from)
		params.From = pgtype.Timestamptz{Time: day, Valid: true}
		lo = day
	}
	if to != nil {
		day := startOfDay(*to)
		params.To = pgtype.Timestamptz{Time: day.AddDate(0, 0, 1), Valid: true}
		hi = day
	}
	if params.From.Valid && params.To.Valid && !params.From.Time.Before(params.To.Time) {
		return nil, common.Errorf(common.KindValidation, "from must not be after to")
	}
	key := cacheKey("an", "top", lo, hi, limit)
	var out []TopProduct
	if s.load(ctx, key, &out) {
		return out, nil
	}
	rows, err := s.Q.ListTopProducts(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list top products: %w", err)
	}
	out = make([]TopProduct, 0, len(rows))
	for _, r := range rows {
		out = append(out, TopProduct{ProductID: r.ProductID, ProductName: r.ProductName, Quantity: r.Quantity, Revenue: r.Revenue})
	}
	s.store(ctx, key, out)
	return out, nil
}

// RecentOrder is a row of the newest orders list.
type RecentOrder struct {
	ID           int64          `json:"id"`
	CustomerName *string        `json:"customerName"`
	SaleName     string         `json:"saleName"`
	Status       db.OrderStatus `json:"status"`
	TotalPrice   pricing.Money  `json:"totalPrice"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// RecentOrders returns the newest orders of any status. It is never cached.
func (s *Service) RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultRecent, maxRecent)
	rows, err := s.Q.ListOrders(ctx, db.ListOrdersParams{Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("list recent orders: %w", err)
	}
	out := make([]RecentOrder, 0, len(rows))
	for _, r := range rows {
		ro := RecentOrder{
			ID:         r.ID,
			SaleName:   r.SaleName,
			Status:     r.Status,
			TotalPrice: r.TotalPrice,
			CreatedAt:  r.CreatedAt,
		}
		if r.CustomerName.Valid {
			name := r.CustomerName.String
			ro.CustomerName = &name
		}
		out = append(out, ro)
	}
	return out, nil
}

// DailyRevenue is one calendar day of paid revenue.
type DailyRevenue struct {
	Date    string        `json:"date"`
	Orders  int64         `json:"orders"`
	Revenue pricing.Money `json:"revenue"`
}

// DailyRevenue lists every day of the month with its paid orders and
// revenue. Days without sales are reported as zero. A zero year or month
// means the current one.
func (s *Service) DailyRevenue(ctx context.Context, year, month int) ([]DailyRevenue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	now := s.now()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		return nil, common.Errorf(common.KindValidation, "invalid period %d-%02d", year, month)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	key := cacheKey("an", "daily", fmt.Sprintf("%04d-%02d", year, month))
	var out []DailyRevenue
	if s.load(ctx, key, &out) {
		return out, nil
	}
	rows, err := s.Q.ListDailyRevenue(ctx, db.RangeParams{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list daily revenue: %w", err)
	}
	byDay := make(map[string]db.DailyRevenueRow, len(rows))
	for _, r := range rows {
		byDay[r.Day.Format("2006-01-02")] = r
	}
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		r := byDay[date]
		out = append(out, DailyRevenue{Date: date, Orders: r.Orders, Revenue: r.Revenue})
	}
	s.store(ctx, key, out)
	return out, nil
}

// SalesPoint is one bucket of a product's sales.
type SalesPoint struct {
	Period   time.Time     `json:"period"`
	Quantity int64         `json:"quantity"`
	Revenue  pricing.Money `json:"revenue"`
}

// ProductSeries is a top product with its sales per bucket.
type ProductSeries struct {
	ProductID   int64         `json:"productId"`
	ProductName string        `json:"productName"`
	Quantity    int64         `json:"quantity"`
	Revenue     pricing.Money `json:"revenue"`
	Points      []SalesPoint  `json:"points"`
}

// SeriesQuery selects the paid order lines a series is built from.
type SeriesQuery struct {
	Range      Range
	GroupBy    Granularity
	CategoryID *int64
	Top        int
}

func (q SeriesQuery) validate() error {
	if !q.Range.From.Before(q.Range.To) {
		return common.Errorf(common.KindValidation, "from must not be after to")
	}
	n := 0
	for b := q.GroupBy.Start(q.Range.From); b.Before(q.Range.To); b = q.GroupBy.next(b) {
		if n++; n > maxSeriesBuckets {
			return common.Errorf(common.KindValidation, "range spans more than %d %s buckets", maxSeriesBuckets, q.GroupBy)
		}
	}
	return nil
}

func (s *Service) facts(ctx context.Context, q SeriesQuery) ([]db.PaidItemFact, error) {
	params := db.PaidItemFactsParams{From: q.Range.From, To: q.Range.To}
	if q.CategoryID != nil {
		params.CategoryID = pgtype.Int8{Int64: *q.CategoryID, Valid: true}
	}
	rows, err := s.Q.ListPaidItemFacts(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list paid items: %w", err)
	}
	return rows, nil
}

// ProductSalesSeries picks the Top products by quantity within the range and
// returns their sales per bucket, zero-filled across the range.
func (s *Service) ProductSalesSeries(ctx context.Context, q SeriesQuery) ([]ProductSeries, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if q.GroupBy == "" {
		q.GroupBy = Day
	}
	q.Top = clampLimit(q.Top, defaultSeriesTop, maxTop)
	if err := q.validate(); err != nil {
		return nil, err
	}
	var category any
	if q.CategoryID != nil {
		category = *q.CategoryID
	}
	key := cacheKey("an", "product-sales", q.Range.From, q.Range.To, q.GroupBy, category, q.Top)
	var out []ProductSeries
	if s.load(ctx, key, &out) {
		return out, nil
	}
	rows, err := s.facts(ctx, q)
	if err != nil {
		return nil, err
	}

	totals := map[int64]*ProductSeries{}
	for _, r := range rows {
		p, ok := totals[r.ProductID]
		if !ok {
			p = &ProductSeries{ProductID: r.ProductID, ProductName: r.ProductName}
			totals[r.ProductID] = p
		}
		p.Quantity += int64(r.Quantity)
		p.Revenue += r.Revenue
	}
	ranked := make([]*ProductSeries, 0, len(totals))
	for _, p := range totals {
		ranked = append(ranked, p)
	}
	slices.SortFunc(ranked, func(a, b *ProductSeries) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Revenue, a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if len(ranked) > q.Top {
		ranked = ranked[:q.Top]
	}

	buckets := q.GroupBy.buckets(q.Range)
	index := make(map[time.Time]int, len(buckets))
	for i, b := range buckets {
		index[b] = i
	}
	chosen := make(map[int64]*ProductSeries, len(ranked))
	for _, p := range ranked {
		p.Points = make([]SalesPoint, len(buckets))
		for i, b := range buckets {
			p.Points[i].Period = b
		}
		chosen[p.ProductID] = p
	}
	for _, r := range rows {
		p, ok := chosen[r.ProductID]
		if !ok {
			continue
		}
		pt := &p.Points[index[q.GroupBy.Start(r.CreatedAt)]]
		pt.Quantity += int64(r.Quantity)
		pt.Revenue += r.Revenue
	}

	out = make([]ProductSeries, 0, len(ranked))
	for _, p := range ranked {
		out = append(out, *p)
	}
	s.store(ctx, key, out)
	return out, nil
}

// ProfitPoint is one bucket of revenue against the cost of goods sold.
type ProfitPoint struct {
	Period  time.Time     `json:"period"`
	Revenue pricing.Money `json:"revenue"`
	Cost    pricing.Money `json:"cost"`
	Profit  pricing.Money `json:"profit"`
}

// RevenueProfitSeries sums line revenue per bucket and subtracts the cost of
// goods, taken as the product's import price times the quantity sold.
// Profit may be negative.
func (s *Service) RevenueProfitSeries(ctx context.Context, r Range, groupBy Granularity) ([]ProfitPoint, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if groupBy == "" {
		groupBy = Day
	}
	q := SeriesQuery{Range: r, GroupBy: groupBy}
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := cacheKey("an", "revenue-profit", r.From, r.To, groupBy)
	var out []ProfitPoint
	if s.load(ctx, key, &out) {
		return out, nil
	}
	rows, err := s.facts(ctx, q)
	if err != nil {
		return nil, err
	}
	buckets := groupBy.buckets(r)
	index := make(map[time.Time]int, len(buckets))
	out = make([]ProfitPoint, len(buckets))
	for i, b := range buckets {
		index[b] = i
		out[i].Period = b
	}
	for _, row := range rows {
		// Both factors are bounded by the money range, so the product fits in int64.
		cost := row.ImportPrice * int64(row.Quantity)
		pt := &out[index[groupBy.Start(row.CreatedAt)]]
		pt.Revenue += row.Revenue
		pt.Cost += cost
	}
	for i := range out {
		out[i].Profit = out[i].Revenue - out[i].Cost
	}
	s.store(ctx, key, out)
	return out, nil
}
