package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Oracle supplies the current unit price of a native currency in USD.
// Implementations must return a price strictly greater than zero or
// ErrPriceUnavailable; a zero or stale default never leaves this package.
type Oracle interface {
	CurrentPrice(ctx context.Context, priceID string) (decimal.Decimal, error)
}

var ErrPriceUnavailable = errors.New("price unavailable")

const defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoClient reads spot prices from the CoinGecko simple-price endpoint.
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewCoinGeckoClient(cfg CoinGeckoConfig) *CoinGeckoClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultCoinGeckoBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoClient{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *CoinGeckoClient) CurrentPrice(ctx context.Context, priceID string) (decimal.Decimal, error) {
	if priceID == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price id", ErrPriceUnavailable)
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(priceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: coingecko status %d", ErrPriceUnavailable, resp.StatusCode)
	}

	var payload map[string]struct {
		USD json.Number `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %v", ErrPriceUnavailable, err)
	}

	entry, ok := payload[priceID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no quote for %s", ErrPriceUnavailable, priceID)
	}

	price, err := decimal.NewFromString(entry.USD.String())
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bad quote %q for %s", ErrPriceUnavailable, entry.USD.String(), priceID)
	}
	return price, nil
}
