// Package binance adapts the Binance spot 24h ticker to the quote provider
// contract. It is the first choice for crypto instruments.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// Name identifies quotes produced by this provider.
const Name = "binance"

// invalidSymbolCode is returned by Binance for unknown trading pairs.
const invalidSymbolCode = -1121

var stableQuotes = map[string]bool{"USDT": true, "USDC": true, "BUSD": true, "FDUSD": true}

var knownQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "EUR", "BTC", "ETH"}

// Client wraps the go-binance REST client. Only public market data
// endpoints are used, so the API key is optional.
type Client struct {
	client     *binance.Client
	quoteAsset string
}

// NewClient creates a Binance client.
//
// Parameters:
//   - baseURL: REST root; empty keeps the library default
//   - apiKey: optional, only raises rate limits
//   - quoteAsset: asset USD-denominated tickers are priced in, e.g. "USDT"
//   - httpClient: nil keeps the library default
func NewClient(baseURL, apiKey, quoteAsset string, httpClient *http.Client) *Client {
	c := binance.NewClient(apiKey, "")
	if baseURL != "" {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		c.HTTPClient = httpClient
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Client{client: c, quoteAsset: strings.ToUpper(quoteAsset)}
}

func (c *Client) Name() string { return Name }

// Symbol maps an instrument ticker to a Binance trading pair:
// "BTC-USD" becomes "BTCUSDT", "ETH-EUR" becomes "ETHEUR", "SOL" becomes
// "SOLUSDT" and pairs already in Binance form are kept.
func (c *Client) Symbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if base, quoteCcy, ok := strings.Cut(t, "-"); ok {
		if quoteCcy == "USD" {
			quoteCcy = c.quoteAsset
		}
		return base + quoteCcy
	}
	for _, q := range knownQuotes {
		if strings.HasSuffix(t, q) && len(t) > len(q) {
			return t
		}
	}
	return t + c.quoteAsset
}

// GetQuote returns the last price of the instrument's trading pair.
func (c *Client) GetQuote(ctx context.Context, inst model.Instrument) (model.Quote, error) {
	if strings.TrimSpace(inst.Ticker) == "" {
		return model.Quote{}, fmt.Errorf("%w: no ticker for %s", apperrors.ErrUnsupportedInstrument, inst.ID)
	}
	symbol := c.Symbol(inst.Ticker)

	stats, err := c.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return model.Quote{}, wrapError(symbol, err)
	}
	if len(stats) == 0 {
		return model.Quote{}, fmt.Errorf("%w: no ticker data for %s", apperrors.ErrInvalidQuote, symbol)
	}
	return toQuote(stats[0])
}

// GetQuotes fetches every instrument's pair in one request.
func (c *Client) GetQuotes(ctx context.Context, insts []model.Instrument) (map[string]model.Quote, error) {
	bySymbol := make(map[string][]string, len(insts))
	symbols := make([]string, 0, len(insts))
	for _, inst := range insts {
		if strings.TrimSpace(inst.Ticker) == "" {
			continue
		}
		s := c.Symbol(inst.Ticker)
		if _, seen := bySymbol[s]; !seen {
			symbols = append(symbols, s)
		}
		bySymbol[s] = append(bySymbol[s], inst.ID)
	}

	quotes := make(map[string]model.Quote, len(insts))
	if len(symbols) == 0 {
		return quotes, nil
	}

	stats, err := c.client.NewListPriceChangeStatsService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, wrapError(strings.Join(symbols, ","), err)
	}
	for _, st := range stats {
		q, err := toQuote(st)
		if err != nil {
			continue
		}
		for _, id := range bySymbol[st.Symbol] {
			quotes[id] = q
		}
	}
	return quotes, nil
}

func toQuote(st *binance.PriceChangeStats) (model.Quote, error) {
	price, err := decimal.NewFromString(st.LastPrice)
	if err != nil || !price.IsPositive() {
		return model.Quote{}, fmt.Errorf("%w: last price %q for %s", apperrors.ErrInvalidQuote, st.LastPrice, st.Symbol)
	}
	if st.CloseTime <= 0 {
		return model.Quote{}, fmt.Errorf("%w: no close time for %s", apperrors.ErrInvalidQuote, st.Symbol)
	}

	q := model.Quote{
		Symbol:        st.Symbol,
		Price:         price,
		Currency:      currencyOf(st.Symbol),
		AsOf:          time.UnixMilli(st.CloseTime).UTC(),
		Source:        Name,
		Open:          optional(st.OpenPrice),
		High:          optional(st.HighPrice),
		Low:           optional(st.LowPrice),
		PreviousClose: optional(st.PrevClosePrice),
	}
	if pct, err := decimal.NewFromString(st.PriceChangePercent); err == nil {
		q.ChangePercent = &pct
	}
	return q, nil
}

// currencyOf reports stablecoin pairs as USD and other pairs in their quote asset.
func currencyOf(symbol string) string {
	for _, q := range knownQuotes {
		if strings.HasSuffix(symbol, q) {
			if stableQuotes[q] {
				return "USD"
			}
			return q
		}
	}
	return ""
}

func optional(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return nil
	}
	return &d
}

func wrapError(symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == invalidSymbolCode {
		return fmt.Errorf("%w: %s: %s", apperrors.ErrUnsupportedInstrument, symbol, apiErr.Message)
	}
	return fmt.Errorf("%w: binance %s: %w", apperrors.ErrProviderUnavailable, symbol, err)
}
