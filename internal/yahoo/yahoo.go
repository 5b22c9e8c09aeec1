// Package yahoo adapts the Yahoo Finance chart API to the quote provider
// contract. It is the primary generic provider and the primary source of
// benchmark index levels.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// Name identifies quotes produced by this provider.
const Name = "yahoo"

// FinanceClient provides methods for fetching quotes from the Yahoo Finance API.
// It wraps an HTTP client and a base URL so tests can point it at a local server.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewFinanceClient creates a new Yahoo Finance client.
//
// Parameters:
//   - baseURL: API root, e.g. "https://query1.finance.yahoo.com"
//   - httpClient: client to use; nil uses a default client
//
// Returns:
//   - *FinanceClient: A new client instance ready for use
func NewFinanceClient(baseURL string, httpClient *http.Client) *FinanceClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &FinanceClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name implements quote.Provider.
func (c *FinanceClient) Name() string { return Name }

// GetQuote returns the latest regular market price of an instrument.
// The instrument's ticker is used as the Yahoo symbol.
func (c *FinanceClient) GetQuote(ctx context.Context, inst model.Instrument) (model.Quote, error) {
	symbol := strings.TrimSpace(inst.Ticker)
	if symbol == "" {
		return model.Quote{}, fmt.Errorf("%w: no ticker for %s", apperrors.ErrUnsupportedInstrument, inst.ID)
	}
	q, err := c.GetSymbolQuote(ctx, symbol)
	if err != nil {
		return model.Quote{}, err
	}
	if q.Currency == "" {
		q.Currency = inst.Currency
	}
	return q, nil
}

// GetQuotes fetches several instruments concurrently. Instruments that fail
// are absent from the result; an error is returned only if all of them fail.
func (c *FinanceClient) GetQuotes(ctx context.Context, insts []model.Instrument) (map[string]model.Quote, error) {
	results := make([]model.Quote, len(insts))
	ok := make([]bool, len(insts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, inst := range insts {
		i, inst := i, inst
		g.Go(func() error {
			q, err := c.GetQuote(gctx, inst)
			if err == nil {
				results[i], ok[i] = q, true
			}
			return nil
		})
	}
	_ = g.Wait()

	quotes := make(map[string]model.Quote, len(insts))
	for i, inst := range insts {
		if ok[i] {
			quotes[inst.ID] = results[i]
		}
	}
	if len(quotes) == 0 && len(insts) > 0 {
		return nil, fmt.Errorf("%w: yahoo returned no quotes", apperrors.ErrProviderUnavailable)
	}
	return quotes, nil
}

// GetSymbolQuote returns the latest quote of a raw Yahoo symbol such as
// "AAPL", "SAP.DE" or "^GSPC".
func (c *FinanceClient) GetSymbolQuote(ctx context.Context, symbol string) (model.Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", c.baseURL, url.PathEscape(symbol))
	resp, err := c.queryYahoo(ctx, endpoint)
	if err != nil {
		return model.Quote{}, err
	}
	return ParseQuote(resp)
}

// ParseQuote converts a chart response into a quote.
//
// The price is meta.regularMarketPrice stamped with meta.regularMarketTime.
// When the meta price is missing, the last non-null close and its timestamp
// are used instead.
//
// Returns:
//   - model.Quote: the latest quote
//   - error: wrapping apperrors.ErrInvalidQuote when no positive price exists
func ParseQuote(resp Response) (model.Quote, error) {
	if len(resp.Chart.Result) == 0 {
		return model.Quote{}, fmt.Errorf("%w: no results returned", apperrors.ErrInvalidQuote)
	}
	result := resp.Chart.Result[0]
	meta := result.Meta

	var price float64
	var asOf time.Time
	if meta.RegularMarketPrice != nil && *meta.RegularMarketPrice > 0 {
		price = *meta.RegularMarketPrice
		if meta.RegularMarketTime > 0 {
			asOf = time.Unix(meta.RegularMarketTime, 0).UTC()
		}
	}

	var open, high, low *decimal.Decimal
	if len(result.Indicators.Quote) > 0 {
		ind := result.Indicators.Quote[0]
		for i := len(result.Timestamp) - 1; i >= 0; i-- {
			if i >= len(ind.Close) || ind.Close[i] == nil || *ind.Close[i] <= 0 {
				continue
			}
			if price <= 0 {
				price = *ind.Close[i]
				asOf = time.Unix(result.Timestamp[i], 0).UTC()
			}
			open = pick(ind.Open, i)
			high = pick(ind.High, i)
			low = pick(ind.Low, i)
			break
		}
	}

	if price <= 0 {
		return model.Quote{}, fmt.Errorf("%w: no positive price for %s", apperrors.ErrInvalidQuote, meta.Symbol)
	}
	if asOf.IsZero() {
		return model.Quote{}, fmt.Errorf("%w: no timestamp for %s", apperrors.ErrInvalidQuote, meta.Symbol)
	}

	q := model.Quote{
		Symbol:   meta.Symbol,
		Price:    decimal.NewFromFloat(price),
		Currency: strings.ToUpper(meta.Currency),
		AsOf:     asOf,
		Source:   Name,
		Open:     open,
		High:     high,
		Low:      low,
	}
	if meta.RegularMarketDayHigh != nil {
		h := decimal.NewFromFloat(*meta.RegularMarketDayHigh)
		q.High = &h
	}
	if meta.RegularMarketDayLow != nil {
		l := decimal.NewFromFloat(*meta.RegularMarketDayLow)
		q.Low = &l
	}

	prev := meta.PreviousClose
	if prev == nil {
		prev = meta.ChartPreviousClose
	}
	if prev != nil && *prev > 0 {
		pc := decimal.NewFromFloat(*prev)
		change := q.Price.Sub(pc).Div(pc).Mul(decimal.NewFromInt(100)).Round(4)
		q.PreviousClose = &pc
		q.ChangePercent = &change
	}
	return q, nil
}

func pick(values []*float64, i int) *decimal.Decimal {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	d := decimal.NewFromFloat(*values[i])
	return &d
}

// queryYahoo executes a request against the Yahoo Finance API.
//
// The method sets required headers:
//   - User-Agent: Mimics a browser to avoid API blocking
//   - Accept: Requests JSON response format
//
// Returns:
//   - Response: Parsed API response
//   - error: wrapping apperrors.ErrProviderUnavailable for transport failures,
//     non-2xx statuses and Yahoo API errors
func (c *FinanceClient) queryYahoo(ctx context.Context, endpoint string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", apperrors.ErrProviderUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, apperrors.ErrRateLimited
	}

	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		if resp.StatusCode/100 != 2 {
			return Response{}, fmt.Errorf("%w: yahoo http %d", apperrors.ErrProviderUnavailable, resp.StatusCode)
		}
		return Response{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidQuote, err)
	}

	if response.Chart.Error != nil {
		return Response{}, fmt.Errorf("%w: yahoo error: %s", apperrors.ErrProviderUnavailable, response.Chart.Error.Description)
	}
	if resp.StatusCode/100 != 2 {
		return Response{}, fmt.Errorf("%w: yahoo http %d", apperrors.ErrProviderUnavailable, resp.StatusCode)
	}

	return response, nil
}
