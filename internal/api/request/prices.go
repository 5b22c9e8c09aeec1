package request

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxIDsPerRequest bounds the ids list of a single price request.
const maxIDsPerRequest = 200

// PriceQuery is the parsed query of GET /api/prices.
type PriceQuery struct {
	IDs        []string
	MaxAge     time.Duration
	ForceFresh bool
}

// ParsePriceQuery extracts the price query from raw parameters.
//
// Validation rules:
//   - ids: comma-separated, at least one, at most 200; blanks are dropped
//   - maxAge: seconds (integer) or a Go duration ("90s"); optional
//   - fresh: boolean; optional
func ParsePriceQuery(idsParam, maxAgeParam, freshParam string) (PriceQuery, error) {
	var q PriceQuery
	for _, id := range strings.Split(idsParam, ",") {
		if id = strings.TrimSpace(id); id != "" {
			q.IDs = append(q.IDs, id)
		}
	}
	if len(q.IDs) == 0 {
		return PriceQuery{}, fmt.Errorf("ids is required")
	}
	if len(q.IDs) > maxIDsPerRequest {
		return PriceQuery{}, fmt.Errorf("at most %d ids per request", maxIDsPerRequest)
	}

	maxAge, err := ParseMaxAge(maxAgeParam)
	if err != nil {
		return PriceQuery{}, err
	}
	q.MaxAge = maxAge

	if freshParam != "" {
		fresh, err := strconv.ParseBool(freshParam)
		if err != nil {
			return PriceQuery{}, fmt.Errorf("invalid fresh: must be true or false")
		}
		q.ForceFresh = fresh
	}
	return q, nil
}

// ParseMaxAge reads a maxAge parameter given in seconds or as a duration.
// An empty value returns zero, meaning the service default.
func ParseMaxAge(param string) (time.Duration, error) {
	if param == "" {
		return 0, nil
	}
	var d time.Duration
	if secs, err := strconv.Atoi(param); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(param); err != nil {
		return 0, fmt.Errorf("invalid maxAge: must be seconds or a duration")
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid maxAge: must not be negative")
	}
	return d, nil
}

// ParseDateRange parses optional from/to parameters given as YYYY-MM-DD or
// RFC3339. A date-only to covers the whole day.
func ParseDateRange(fromParam, toParam string) (from, to time.Time, err error) {
	if fromParam != "" {
		if from, err = parseTime(fromParam); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from format: %w", err)
		}
	}
	if toParam != "" {
		if to, err = parseTime(toParam); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to format: %w", err)
		}
		if len(toParam) == len("2006-01-02") {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return from, to, nil
}

// parseTime accepts YYYY-MM-DD, RFC3339, and RFC3339 with fractional seconds.
func parseTime(str string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date or datetime", str)
}
