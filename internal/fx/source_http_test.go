package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPSourceFetchRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "USD", r.URL.Query().Get("base"))
		require.Equal(t, "EUR", r.URL.Query().Get("symbols"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"EUR":0.9214}}`))
	}))
	defer srv.Close()

	src := NewHTTPSource("test", srv.URL)
	rate, err := src.FetchRate(context.Background(), "USD", "EUR")
	require.NoError(t, err)
	require.Equal(t, "0.9214", rate.String())
}

func TestHTTPSourceRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPSource("test", srv.URL)
	_, err := src.FetchRate(context.Background(), "USD", "EUR")
	require.Error(t, err)
}

func TestHTTPSourceRejectsMissingQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates":{}}`))
	}))
	defer srv.Close()

	src := NewHTTPSource("test", srv.URL)
	_, err := src.FetchRate(context.Background(), "USD", "EUR")
	require.Error(t, err)
}
