package kpi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-sales/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes KPI endpoints.
type Handler struct {
	Svc *Service
}

type tierRequest struct {
	Name               string `json:"name" validate:"required,max=100"`
	Description        string `json:"description" validate:"max=1000"`
	MinAchievedPercent int    `json:"minAchievedPercent" validate:"min=0,max=1000"`
	BonusPercent       int    `json:"bonusPercent" validate:"min=0,max=100"`
	DisplayOrder       int    `json:"displayOrder" validate:"required,gt=0"`
}

func (req tierRequest) input() TierInput {
	return TierInput{
		Name:               req.Name,
		Description:        req.Description,
		MinAchievedPercent: req.MinAchievedPercent,
		BonusPercent:       req.BonusPercent,
		DisplayOrder:       req.DisplayOrder,
	}
}

type targetRequest struct {
	SaleUserID    int64 `json:"saleUserId" validate:"required,gt=0"`
	Year          int   `json:"year" validate:"required"`
	Month         int   `json:"month" validate:"required,min=1,max=12"`
	TargetRevenue int64 `json:"targetRevenue" validate:"min=0"`
}

type calculateRequest struct {
	Year       int    `json:"year" validate:"required"`
	Month      int    `json:"month" validate:"required,min=1,max=12"`
	SaleUserID *int64 `json:"saleUserId" validate:"omitempty,gt=0"`
}

func (h *Handler) configured(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "kpi service not configured", nil)
		return false
	}
	return true
}

func parsePeriod(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	year, err := strconv.Atoi(strings.TrimSpace(q.Get("year")))
	if err != nil {
		return 0, 0, common.Errorf(common.KindValidation, "year query parameter is required")
	}
	month, err := strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if err != nil {
		return 0, 0, common.Errorf(common.KindValidation, "month query parameter is required")
	}
	return year, month, nil
}

// Dashboard handles GET /api/v1/kpi/dashboard for the calling sale user.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	uid, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, string(common.KindUnauthorized), "authentication required", nil)
		return
	}
	d, err := h.Svc.Dashboard(r.Context(), uid)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "dashboard retrieved", d)
}

// ListTiers handles GET /api/v1/admin/kpi/tiers.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	tiers, err := h.Svc.ListTiers(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "tiers retrieved", tiers)
}

// CreateTier handles POST /api/v1/admin/kpi/tiers.
func (h *Handler) CreateTier(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var req tierRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	tier, err := h.Svc.CreateTier(r.Context(), req.input())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusCreated, "tier created", tier)
}

// UpdateTier handles PUT /api/v1/admin/kpi/tiers/{id}.
func (h *Handler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req tierRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	tier, err := h.Svc.UpdateTier(r.Context(), id, req.input())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "tier updated", tier)
}

// DeleteTier handles DELETE /api/v1/admin/kpi/tiers/{id}.
func (h *Handler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Svc.DeleteTier(r.Context(), id); err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "tier deleted", nil)
}

// SetTarget handles PUT /api/v1/admin/kpi/targets.
func (h *Handler) SetTarget(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var req targetRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	target, err := h.Svc.SetMonthlyTarget(r.Context(), req.SaleUserID, req.Year, req.Month, req.TargetRevenue)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "target saved", target)
}

// ListTargets handles GET /api/v1/admin/kpi/targets?year=&month=[&saleUserId=].
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	year, month, err := parsePeriod(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	saleUserID, err := common.OptionalID(r.URL.Query().Get("saleUserId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if saleUserID != nil {
		target, err := h.Svc.GetMonthlyTarget(r.Context(), *saleUserID, year, month)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Respond(w, http.StatusOK, "target retrieved", target)
		return
	}
	targets, err := h.Svc.ListMonthlyTargets(r.Context(), year, month)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "targets retrieved", targets)
}

// Calculate handles POST /api/v1/admin/kpi/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var req calculateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	results, err := h.Svc.CalculateMonthly(r.Context(), req.Year, req.Month, req.SaleUserID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "commissions calculated", results)
}

// Commissions handles GET /api/v1/admin/kpi/commissions?year=&month=. With
// saleUserId it returns one commission; with format=xlsx it downloads the month.
func (h *Handler) Commissions(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	year, month, err := parsePeriod(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	query := r.URL.Query()
	if strings.EqualFold(query.Get("format"), "xlsx") {
		name, data, err := h.Svc.ExportCommissions(r.Context(), year, month)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	saleUserID, err := common.OptionalID(query.Get("saleUserId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if saleUserID != nil {
		c, err := h.Svc.GetCommission(r.Context(), *saleUserID, year, month)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Respond(w, http.StatusOK, "commission retrieved", c)
		return
	}
	list, err := h.Svc.ListCommissions(r.Context(), year, month)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "commissions retrieved", list)
}
