package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/shared"
)

// HTTPSource fetches quotes from a frankfurter-compatible rate API
// (GET /latest?base=X&symbols=Y returning {"rates":{"Y":n}}).
type HTTPSource struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSource(name, baseURL string) *HTTPSource {
	return &HTTPSource{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *HTTPSource) Name() string { return s.name }

type latestResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *HTTPSource) FetchRate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/latest?base=%s&symbols=%s", s.baseURL, url.QueryEscape(base), url.QueryEscape(quote))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return decimal.Zero, fmt.Errorf("fx source %s returned status %d", s.name, resp.StatusCode)
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}
	rate, ok := payload.Rates[quote]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, shared.Errorf(shared.CodeInvalidInput, "fx source %s returned no usable %s/%s rate", s.name, base, quote)
	}
	return rate, nil
}
