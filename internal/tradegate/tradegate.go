// Package tradegate reads the Tradegate exchange refresh feed, the direct
// domestic quote source for German listed securities.
package tradegate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
)

// Name identifies quotes produced by this provider.
const Name = "tradegate"

// emptyValue is how the feed renders a field with no value.
const emptyValue = "./."

// Client queries https://www.tradegate.de/refresh.php?isin=...
// The feed carries no timestamp, so quotes are stamped with the fetch time.
type Client struct {
	httpClient *http.Client
	baseURL    string
	now        quote.Clock
}

// NewClient creates a Tradegate client. A nil httpClient uses a default one
// and a nil clock uses the wall clock.
func NewClient(baseURL string, httpClient *http.Client, now quote.Clock) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	if now == nil {
		now = quote.SystemClock
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        now,
	}
}

func (c *Client) Name() string { return Name }

// GetQuote returns the last traded price of the instrument's ISIN in EUR.
// When "last" is empty the current bid is used instead.
func (c *Client) GetQuote(ctx context.Context, inst model.Instrument) (model.Quote, error) {
	if inst.ISIN == "" {
		return model.Quote{}, fmt.Errorf("%w: no ISIN for %s", apperrors.ErrUnsupportedInstrument, inst.ID)
	}

	endpoint := c.baseURL + "/refresh.php?isin=" + url.QueryEscape(inst.ISIN)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: %w", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("%w: tradegate http %d", apperrors.ErrProviderUnavailable, resp.StatusCode)
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return model.Quote{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidQuote, err)
	}

	price, err := readPrice(doc, "$.last")
	if err != nil || !price.IsPositive() {
		price, err = readPrice(doc, "$.bid")
	}
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: %s: %w", apperrors.ErrInvalidQuote, inst.ISIN, err)
	}
	if !price.IsPositive() {
		return model.Quote{}, fmt.Errorf("%w: %s: no positive last or bid", apperrors.ErrInvalidQuote, inst.ISIN)
	}

	q := model.Quote{
		Symbol:   inst.ISIN,
		Price:    price,
		Currency: "EUR",
		AsOf:     c.now(),
		Source:   Name,
	}
	if high, err := readPrice(doc, "$.high"); err == nil && high.IsPositive() {
		q.High = &high
	}
	if low, err := readPrice(doc, "$.low"); err == nil && low.IsPositive() {
		q.Low = &low
	}
	if delta, err := readPrice(doc, "$.delta"); err == nil {
		q.ChangePercent = &delta
	}
	return q, nil
}

// readPrice extracts a numeric field. The feed returns numbers either as
// JSON numbers or as strings with a decimal comma and optional sign or
// percent suffix, e.g. "1.234,50" or "+0,85%".
func readPrice(doc any, path string) (decimal.Decimal, error) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return decimal.Zero, err
	}
	// jsonpath may wrap single results in a list
	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}

	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" || s == emptyValue {
			return decimal.Zero, fmt.Errorf("%s is empty", path)
		}
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, " ", "")
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		s = strings.TrimPrefix(s, "+")
		return decimal.NewFromString(s)
	default:
		return decimal.Zero, fmt.Errorf("%s has unexpected type %T", path, v)
	}
}
