package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource quotes prices from the market price API:
// GET {base}?product={name} returning {"price": "42.50"}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPSource) Quote(ctx context.Context, productName string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.baseURL+"?product="+url.QueryEscape(productName), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, ErrNoQuote
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("market quote status %d", resp.StatusCode)
	}

	var body struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("market quote body: %w", err)
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market quote price %q: %w", body.Price, err)
	}
	return price, nil
}
