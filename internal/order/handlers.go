package order

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/user"
)

// Handler exposes the order lifecycle over HTTP.
type Handler struct {
	Svc *Service
}

type itemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type createRequest struct {
	SaleUserID   *int64        `json:"saleUserId" validate:"omitempty,gt=0"`
	CustomerID   *int64        `json:"customerId" validate:"omitempty,gt=0"`
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
	PromotionIDs []int64       `json:"promotionIds"`
}

type updateRequest struct {
	CustomerID   *int64        `json:"customerId" validate:"omitempty,gt=0"`
	Status       *Status       `json:"status"`
	Items        []itemRequest `json:"items" validate:"omitempty,dive"`
	PromotionIDs []int64       `json:"promotionIds"`
	Version      *int32        `json:"version" validate:"omitempty,gt=0"`
}

type payRequest struct {
	Version *int32 `json:"version" validate:"omitempty,gt=0"`
}

func toItemInputs(in []itemRequest) []ItemInput {
	if in == nil {
		return nil
	}
	out := make([]ItemInput, 0, len(in))
	for _, it := range in {
		out = append(out, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func (h *Handler) configured(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return false
	}
	return true
}

// Create handles POST /api/v1/orders. The caller is the sale user unless an
// admin names another one.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, string(common.KindUnauthorized), "authentication required", nil)
		return
	}
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	saleUserID := principal.UserID
	if req.SaleUserID != nil && *req.SaleUserID != principal.UserID {
		if !principal.HasRole(user.RoleAdmin.String()) {
			common.JSONError(w, http.StatusForbidden, string(common.KindForbidden), "only admins may create orders for another sale", nil)
			return
		}
		saleUserID = *req.SaleUserID
	}
	detail, err := h.Svc.Create(r.Context(), CreateInput{
		SaleUserID:   saleUserID,
		CustomerID:   req.CustomerID,
		Items:        toItemInputs(req.Items),
		PromotionIDs: req.PromotionIDs,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusCreated, "order created", detail)
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	page, size := common.ParsePagination(r, h.Svc.Config.DefaultPageSize)
	values := r.URL.Query()
	query := ListQuery{Page: page, PageSize: size}
	var err error
	if query.CustomerID, err = common.OptionalID(values.Get("customerId")); err != nil {
		common.WriteError(w, err)
		return
	}
	if query.SaleUserID, err = common.OptionalID(values.Get("saleUserId")); err != nil {
		common.WriteError(w, err)
		return
	}
	if raw := values.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			common.WriteError(w, common.Wrap(common.KindValidation, err, "invalid status"))
			return
		}
		query.Status = &status
	}
	if query.FromDate, err = common.OptionalDate(values.Get("fromDate")); err != nil {
		common.WriteError(w, err)
		return
	}
	if query.ToDate, err = common.OptionalDate(values.Get("toDate")); err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.Svc.List(r.Context(), query)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "orders retrieved", result)
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
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
		common.JSONError(w, http.StatusNotFound, string(common.KindNotFound), "order not found", nil)
		return
	}
	common.Respond(w, http.StatusOK, "order retrieved", detail)
}

// Update handles PATCH /api/v1/orders/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req updateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	detail, err := h.Svc.Update(r.Context(), id, UpdateInput{
		CustomerID:   req.CustomerID,
		Status:       req.Status,
		Items:        toItemInputs(req.Items),
		PromotionIDs: req.PromotionIDs,
		Version:      req.Version,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "order updated", detail)
}

// Pay handles POST /api/v1/orders/{id}/pay. The body is optional.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req payRequest
	if err := common.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		common.WriteError(w, err)
		return
	}
	detail, err := h.Svc.Pay(r.Context(), id, req.Version)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Respond(w, http.StatusOK, "order paid", detail)
}

// Delete handles DELETE /api/v1/orders/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
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
		common.JSONError(w, http.StatusNotFound, string(common.KindNotFound), "order not found", nil)
		return
	}
	common.Respond(w, http.StatusOK, "order deleted", nil)
}
