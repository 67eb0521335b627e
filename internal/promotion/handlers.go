package promotion

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-sales/internal/common"
)

// Handler exposes administrative promotion endpoints.
type Handler struct {
	Svc *Service
}

type promotionRequest struct {
	Name            string    `json:"name" validate:"required,max=200"`
	Description     string    `json:"description" validate:"max=2000"`
	DiscountPercent int       `json:"discountPercent" validate:"min=0,max=100"`
	StartDate       time.Time `json:"startDate" validate:"required"`
	EndDate         time.Time `json:"endDate" validate:"required"`
	Scope           Scope     `json:"scope" validate:"required"`
	ProductIDs      []int64   `json:"productIds" validate:"omitempty,dive,gt=0"`
	CategoryIDs     []int64   `json:"categoryIds" validate:"omitempty,dive,gt=0"`
}

func (req promotionRequest) input() Input {
	return Input{
		Name:            req.Name,
		Description:     req.Description,
		DiscountPercent: req.DiscountPercent,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Scope:           req.Scope,
		ProductIDs:      req.ProductIDs,
		CategoryIDs:     req.CategoryIDs,
	}
}

// Create handles POST /api/v1/admin/promotions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	var req promotionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	detail, err := h.Svc.Create(r.Context(), req.input())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusCreated, "promotion created", detail)
}

// Update handles PUT /api/v1/admin/promotions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req promotionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	detail, err := h.Svc.Update(r.Context(), id, req.input())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "promotion updated", detail)
}

// Delete handles DELETE /api/v1/admin/promotions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	deleted, err := h.Svc.Delete(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !deleted {
		common.JSONError(w, http.StatusNotFound, string(common.KindNotFound), "promotion not found", nil)
		return
	}
	common.Respond(w, http.StatusOK, "promotion deleted", nil)
}

// Get handles GET /api/v1/admin/promotions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	detail, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if detail == nil {
		common.JSONError(w, http.StatusNotFound, string(common.KindNotFound), "promotion not found", nil)
		return
	}
	common.Respond(w, http.StatusOK, "promotion retrieved", detail)
}

// List handles GET /api/v1/admin/promotions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	page, size := common.ParsePagination(r, 10)
	query := ListQuery{
		Page:       page,
		PageSize:   size,
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Search:     r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("scope"); raw != "" {
		scope, err := ParseScope(raw)
		if err != nil {
			common.WriteError(w, common.Wrap(common.KindValidation, err, "invalid scope"))
			return
		}
		query.Scope = &scope
	}
	result, err := h.Svc.List(r.Context(), query)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "promotions retrieved", result)
}
