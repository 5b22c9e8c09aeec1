package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

func TestValidateISIN(t *testing.T) {
	tests := []struct {
		name  string
		isin  string
		valid bool
	}{
		{"SAP", "DE0007164600", true},
		{"Apple", "US0378331005", true},
		{"iShares Core MSCI World", "IE00B4L5Y983", true},
		{"Siemens", "DE0007236101", true},
		{"wrong check digit", "DE0007164601", false},
		{"too short", "DE000716460", false},
		{"lowercase prefix", "de0007164600", false},
		{"numeric prefix", "120007164600", false},
		{"symbol", "DE00071646-0", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateISIN(tt.isin)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidISIN)
			}
		})
	}

	assert.Equal(t, "DE", ISINCountry("DE0007164600"))
	assert.Equal(t, "", ISINCountry("BTC-USD"))
}

func TestValidateInstrumentID(t *testing.T) {
	assert.NoError(t, ValidateInstrumentID("0b6a1b52-8a7a-4a8e-9d57-4b6f1c1b2f10"))
	assert.ErrorIs(t, ValidateInstrumentID(""), apperrors.ErrInvalidInstrumentID)
	assert.ErrorIs(t, ValidateInstrumentID("AAPL"), apperrors.ErrInvalidInstrumentID)
	assert.ErrorIs(t, ValidatePortfolioID("nope"), apperrors.ErrInvalidPortfolioID)
}

func TestValidateTrade(t *testing.T) {
	valid := model.Trade{
		PortfolioID:  "5d1e7c4e-2a4a-4a2b-8d5b-0c3f2b1a9e01",
		InstrumentID: "0b6a1b52-8a7a-4a8e-9d57-4b6f1c1b2f10",
		Side:         model.SideBuy,
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(100),
		Fees:         decimal.Zero,
		Currency:     "EUR",
		ExecutedAt:   time.Now(),
	}

	t.Run("valid trade", func(t *testing.T) {
		assert.NoError(t, ValidateTrade(valid))
	})

	t.Run("collects every invalid field", func(t *testing.T) {
		bad := valid
		bad.Side = "HOLD"
		bad.Quantity = decimal.Zero
		bad.Price = decimal.NewFromInt(-1)
		bad.Fees = decimal.NewFromInt(-1)
		bad.Currency = ""
		bad.ExecutedAt = time.Time{}

		err := ValidateTrade(bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTrade)

		var verr *Error
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Fields, 6)
		assert.Contains(t, verr.Fields, "side")
		assert.Contains(t, verr.Fields, "fees")
	})
}
