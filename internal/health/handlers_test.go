package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-sales/internal/health"
)

func ok(context.Context) error { return nil }

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	health.Handler{}.Live(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReady(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	cases := []struct {
		name   string
		probes map[string]health.Probe
		status int
		db     string
	}{
		{"all healthy", map[string]health.Probe{"db": ok, "redis": ok}, http.StatusOK, "ok"},
		{"db down", map[string]health.Probe{"db": func(context.Context) error { return errors.New("db down") }, "redis": ok}, http.StatusServiceUnavailable, "db down"},
		{"db slow", map[string]health.Probe{"db": slow}, http.StatusServiceUnavailable, context.DeadlineExceeded.Error()},
		{"no probes", nil, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h := health.Handler{Probes: tc.probes, Timeout: 20 * time.Millisecond}
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.db == "" {
				return
			}
			var body struct {
				Data  map[string]string `json:"data"`
				Error *struct {
					Details map[string]string `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			got := body.Data
			if body.Error != nil {
				got = body.Error.Details
			}
			require.Equal(t, tc.db, got["db"])
		})
	}
}

func TestReadinessAfterShutdown(t *testing.T) {
	h := health.Handler{Probes: map[string]health.Probe{"db": ok}}
	t.Cleanup(func() { health.SetReady(true) })

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	health.SetReady(false)
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
