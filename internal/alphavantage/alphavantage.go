// Package alphavantage adapts the Alpha Vantage GLOBAL_QUOTE endpoint to the
// quote provider contract. It is the secondary generic provider.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// Name identifies quotes produced by this provider.
const Name = "alphavantage"

// Client queries Alpha Vantage. Without an API key every call fails with
// ErrProviderUnavailable so the waterfall moves on.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates an Alpha Vantage client. A nil httpClient uses a default one.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
	}
}

func (c *Client) Name() string { return Name }

// GetQuote returns the GLOBAL_QUOTE price of the instrument's ticker.
func (c *Client) GetQuote(ctx context.Context, inst model.Instrument) (model.Quote, error) {
	symbol := strings.ToUpper(strings.TrimSpace(inst.Ticker))
	if symbol == "" {
		return model.Quote{}, fmt.Errorf("%w: no ticker for %s", apperrors.ErrUnsupportedInstrument, inst.ID)
	}
	q, err := c.GetSymbolQuote(ctx, symbol)
	if err != nil {
		return model.Quote{}, err
	}
	q.Currency = inst.Currency
	return q, nil
}

// GetSymbolQuote fetches GLOBAL_QUOTE for a raw symbol. The quote carries
// no currency because the endpoint does not report one.
func (c *Client) GetSymbolQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if c.apiKey == "" {
		return model.Quote{}, fmt.Errorf("%w: ALPHAVANTAGE_API_KEY not set", apperrors.ErrProviderUnavailable)
	}

	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return model.Quote{}, err
	}
	req.Header.Set("User-Agent", "portfolio-valuation/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: %w", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("%w: alphavantage http %d", apperrors.ErrProviderUnavailable, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.Quote{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidQuote, err)
	}
	return parseGlobalQuote(symbol, raw)
}

// parseGlobalQuote reads "05. price" and "07. latest trading day". A "Note"
// or "Information" member means the free tier quota was hit.
func parseGlobalQuote(symbol string, raw map[string]any) (model.Quote, error) {
	if _, ok := raw["Note"]; ok {
		return model.Quote{}, apperrors.ErrRateLimited
	}
	if _, ok := raw["Information"]; ok {
		return model.Quote{}, apperrors.ErrRateLimited
	}
	gq, ok := raw["Global Quote"].(map[string]any)
	if !ok || len(gq) == 0 {
		return model.Quote{}, fmt.Errorf("%w: no global quote for %s", apperrors.ErrInvalidQuote, symbol)
	}

	price, err := field(gq, "05. price")
	if err != nil || price == nil || !price.IsPositive() {
		return model.Quote{}, fmt.Errorf("%w: no positive price for %s", apperrors.ErrInvalidQuote, symbol)
	}

	day, _ := gq["07. latest trading day"].(string)
	asOf, err := time.Parse("2006-01-02", day)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: bad trading day %q for %s", apperrors.ErrInvalidQuote, day, symbol)
	}

	q := model.Quote{
		Symbol: symbol,
		Price:  *price,
		AsOf:   asOf.UTC(),
		Source: Name,
	}
	q.Open, _ = field(gq, "02. open")
	q.High, _ = field(gq, "03. high")
	q.Low, _ = field(gq, "04. low")
	q.PreviousClose, _ = field(gq, "08. previous close")
	if pct, ok := gq["10. change percent"].(string); ok {
		if d, err := decimal.NewFromString(strings.TrimSuffix(pct, "%")); err == nil {
			q.ChangePercent = &d
		}
	}
	return q, nil
}

func field(m map[string]any, key string) (*decimal.Decimal, error) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
