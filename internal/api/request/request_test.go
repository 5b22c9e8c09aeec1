package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/portfolio-valuation/internal/model"
)

func TestParsePriceQuery(t *testing.T) {
	t.Run("parses ids and options", func(t *testing.T) {
		q, err := ParsePriceQuery(" a, b ,,c", "90", "true")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, q.IDs)
		assert.Equal(t, 90*time.Second, q.MaxAge)
		assert.True(t, q.ForceFresh)
	})

	t.Run("accepts duration maxAge", func(t *testing.T) {
		q, err := ParsePriceQuery("a", "2m", "")
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, q.MaxAge)
		assert.False(t, q.ForceFresh)
	})

	for name, args := range map[string][3]string{
		"missing ids":     {"", "", ""},
		"blank ids":       {" , ", "", ""},
		"bad maxAge":      {"a", "soon", ""},
		"negative maxAge": {"a", "-5", ""},
		"bad fresh":       {"a", "", "maybe"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePriceQuery(args[0], args[1], args[2])
			assert.Error(t, err)
		})
	}
}

func TestParseDateRange(t *testing.T) {
	from, to, err := ParseDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), to)

	from, to, err = ParseDateRange("", "")
	require.NoError(t, err)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())

	_, _, err = ParseDateRange("01/02/2024", "")
	assert.Error(t, err)
}

func TestCreateTradeRequest_ToTrade(t *testing.T) {
	req := CreateTradeRequest{
		InstrumentID: " 550e8400-e29b-41d4-a716-446655440000 ",
		Side:         "sell",
		Currency:     "eur",
		ExecutedAt:   "2024-03-01T10:15:00Z",
	}
	tr, err := req.ToTrade("p1")
	require.NoError(t, err)
	assert.Equal(t, model.SideSell, tr.Side)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", tr.InstrumentID)
	assert.True(t, tr.Fees.IsZero())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), tr.ExecutedAt)

	req.ExecutedAt = "yesterday"
	_, err = req.ToTrade("p1")
	assert.Error(t, err)
}
