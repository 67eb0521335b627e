package analytics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/toko-sales/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) configured(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return false
	}
	return true
}

func optionalDates(r *http.Request) (*time.Time, *time.Time, error) {
	q := r.URL.Query()
	from, err := common.OptionalDate(q.Get("from"))
	if err != nil {
		return nil, nil, err
	}
	to, err := common.OptionalDate(q.Get("to"))
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func optionalInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, common.Errorf(common.KindValidation, "%s must be an integer", name)
	}
	return n, nil
}

// seriesRange resolves from/to for the series endpoints, defaulting to the recent window.
func (h *Handler) seriesRange(r *http.Request) (Range, Granularity, error) {
	from, to, err := optionalDates(r)
	if err != nil {
		return Range{}, "", err
	}
	rng, err := h.Svc.DefaultDays(from, to)
	if err != nil {
		return Range{}, "", err
	}
	g, err := ParseGranularity(r.URL.Query().Get("groupBy"))
	if err != nil {
		return Range{}, "", err
	}
	return rng, g, nil
}

// Overview handles GET /api/v1/admin/reports/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	out, err := h.Svc.Overview(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "overview retrieved", out)
}

// TopProducts handles GET /api/v1/admin/reports/top-products.
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	from, to, err := optionalDates(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	limit, err := optionalInt(r, "limit")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.TopProducts(r.Context(), from, to, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "top products retrieved", rows)
}

// RecentOrders handles GET /api/v1/admin/reports/recent-orders.
func (h *Handler) RecentOrders(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	limit, err := optionalInt(r, "limit")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.RecentOrders(r.Context(), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "recent orders retrieved", rows)
}

// DailyRevenue handles GET /api/v1/admin/reports/daily-revenue.
func (h *Handler) DailyRevenue(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	year, err := optionalInt(r, "year")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	month, err := optionalInt(r, "month")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.DailyRevenue(r.Context(), year, month)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "daily revenue retrieved", rows)
}

// ProductSales handles GET /api/v1/admin/reports/product-sales.
func (h *Handler) ProductSales(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	rng, g, err := h.seriesRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	category, err := common.OptionalID(r.URL.Query().Get("categoryId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	top, err := optionalInt(r, "top")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.ProductSalesSeries(r.Context(), SeriesQuery{Range: rng, GroupBy: g, CategoryID: category, Top: top})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "product sales retrieved", rows)
}

// RevenueProfit handles GET /api/v1/admin/reports/revenue-profit.
func (h *Handler) RevenueProfit(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	rng, g, err := h.seriesRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.RevenueProfitSeries(r.Context(), rng, g)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "revenue and profit retrieved", rows)
}
