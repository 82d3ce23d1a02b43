package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/observability"
	_ "github.com/meridian-books/meridian/internal/testing/guard"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(RouterParams{
		Logger:  NewLogger(nil),
		Metrics: observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpointExposed(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "meridian_http_requests_total")
}

func TestAPIRequiresIdentity(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/journals", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIAcceptsForwardedIdentity(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/journals", nil)
	req.Header.Set("X-Tenant-ID", "1")
	req.Header.Set("X-Company-ID", "1")
	req.Header.Set("X-Actor-ID", "7")
	req.Header.Set("X-Actor-Role", "accountant")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// No journals handler is mounted here, so the route falls through.
	require.Equal(t, http.StatusNotFound, rec.Code)
}
