package order

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Post("/{id}/pay", h.Pay)
		r.Delete("/{id}", h.Delete)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, principal *common.Principal) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if principal != nil {
		req = req.WithContext(common.WithPrincipal(req.Context(), *principal))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestOrderHandlersLifecycle(t *testing.T) {
	f := newFixture(t)
	router := newRouter(&Handler{Svc: f.svc})
	sale := &common.Principal{UserID: saleID, Roles: []string{"sale"}}

	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/orders",
		`{"customerId":50,"items":[{"productId":1,"quantity":1}],"promotionIds":[40]}`, sale)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.True(t, env.Success)

	var created struct {
		ID         int64  `json:"id"`
		SaleUserID int64  `json:"saleUserId"`
		Status     string `json:"status"`
		Total      int64  `json:"total"`
		Version    int32  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, saleID, created.SaleUserID)
	require.Equal(t, "created", created.Status)
	require.Equal(t, int64(76_000), created.Total)

	rec, env = doRequest(t, router, http.MethodGet, "/api/v1/orders/1", "", sale)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = doRequest(t, router, http.MethodPatch, "/api/v1/orders/1", `{"version":9,"customerId":50}`, sale)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(common.KindConcurrentModification), env.Error.Code)

	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/orders/1/pay", "", sale)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, db.OrderStatusPaid, f.store.orders[1].Status)

	rec, env = doRequest(t, router, http.MethodPatch, "/api/v1/orders/1", `{"status":"cancelled"}`, sale)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(common.KindInvalidTransition), env.Error.Code)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/orders?status=paid&saleUserId=2", "", sale)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, router, http.MethodDelete, "/api/v1/orders/1", "", sale)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = doRequest(t, router, http.MethodDelete, "/api/v1/orders/1", "", sale)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, string(common.KindNotFound), env.Error.Code)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/orders/1", "", sale)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderHandlersRejectBadInput(t *testing.T) {
	f := newFixture(t)
	router := newRouter(&Handler{Svc: f.svc})
	sale := &common.Principal{UserID: saleID, Roles: []string{"sale"}}

	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/orders", `{"items":[{"productId":1,"quantity":1}]}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/orders", `{"items":[]}`, sale)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(common.KindValidation), env.Error.Code)

	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/orders", `{"items":[{"productId":1,"quantity":1}],"bogus":true}`, sale)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/orders", `{"saleUserId":9,"items":[{"productId":1,"quantity":1}]}`, sale)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/orders/abc", "", sale)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/orders?status=shipped", "", sale)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/orders?fromDate=2025-03-05&toDate=2025-03-01", "", sale)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Empty(t, f.store.orders)
}

func TestOrderHandlerAdminCreatesForSale(t *testing.T) {
	f := newFixture(t)
	f.store.users[1] = db.User{ID: 1, Username: "admin", Roles: []string{"admin"}}
	router := newRouter(&Handler{Svc: f.svc})
	admin := &common.Principal{UserID: 1, Roles: []string{"admin"}}

	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/orders", `{"saleUserId":2,"items":[{"productId":3,"quantity":2}]}`, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		SaleUserID int64 `json:"saleUserId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, saleID, created.SaleUserID)
}

func TestOrderHandlerUnconfigured(t *testing.T) {
	router := newRouter(&Handler{})
	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/orders", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
