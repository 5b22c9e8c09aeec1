// Package pricing decides which quote providers serve an instrument and
// walks them in order until one returns an acceptable quote.
package pricing

import (
	"strings"

	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/validation"
)

// Class is the provider routing class of an instrument.
type Class string

const (
	ClassCrypto   Class = "crypto"
	ClassDomestic Class = "domestic"
	ClassGeneric  Class = "generic"
)

// DefaultCryptoTickers are the base assets recognised as crypto by ticker alone.
var DefaultCryptoTickers = []string{
	"BTC", "ETH", "SOL", "XRP", "ADA", "DOGE", "DOT", "LTC", "BNB", "AVAX",
	"LINK", "MATIC", "TRX", "XLM", "ATOM", "UNI", "BCH", "ETC", "SHIB", "USDT", "USDC",
}

// cryptoQuoteSuffixes are the pair forms accepted after a known base asset.
var cryptoQuoteSuffixes = []string{"-USD", "-EUR", "-USDT", "-BTC", "USDT", "USDC", "EUR", "BUSD"}

// Classifier routes instruments by identifier pattern rules.
type Classifier struct {
	crypto           map[string]bool
	domesticPrefixes map[string]bool
}

// NewClassifier creates a classifier. domesticPrefixes are ISIN country
// codes served by the domestic exchange feed; a nil cryptoTickers uses
// DefaultCryptoTickers.
func NewClassifier(domesticPrefixes, cryptoTickers []string) *Classifier {
	if cryptoTickers == nil {
		cryptoTickers = DefaultCryptoTickers
	}
	c := &Classifier{
		crypto:           make(map[string]bool, len(cryptoTickers)),
		domesticPrefixes: make(map[string]bool, len(domesticPrefixes)),
	}
	for _, t := range cryptoTickers {
		c.crypto[strings.ToUpper(t)] = true
	}
	for _, p := range domesticPrefixes {
		c.domesticPrefixes[strings.ToUpper(strings.TrimSpace(p))] = true
	}
	return c
}

// Classify applies, in order:
//  1. known crypto ticker, alone or as a pair such as BTC-USD or ETHUSDT
//  2. directory kind crypto
//  3. valid ISIN with a domestic country prefix, unless the ticker carries a
//     foreign exchange suffix such as ".L" or ".PA"
//  4. everything else is generic
func (c *Classifier) Classify(inst model.Instrument) Class {
	if c.isCryptoTicker(inst.Ticker) || inst.Kind == model.KindCrypto {
		return ClassCrypto
	}
	if country := validation.ISINCountry(inst.ISIN); country != "" && c.domesticPrefixes[country] {
		if !hasForeignSuffix(inst.Ticker, country) {
			return ClassDomestic
		}
	}
	return ClassGeneric
}

func (c *Classifier) isCryptoTicker(ticker string) bool {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return false
	}
	if c.crypto[t] {
		return true
	}
	for _, suffix := range cryptoQuoteSuffixes {
		if base, ok := strings.CutSuffix(t, suffix); ok && c.crypto[base] {
			return true
		}
	}
	return false
}

// domesticSuffixes are Yahoo exchange suffixes of German venues.
var domesticSuffixes = map[string]map[string]bool{
	"DE": {"DE": true, "F": true, "DU": true, "HM": true, "MU": true, "SG": true, "BE": true, "HA": true},
}

// hasForeignSuffix reports whether a ticker carries an exchange suffix that
// is not a venue of country.
func hasForeignSuffix(ticker, country string) bool {
	i := strings.LastIndex(ticker, ".")
	if i < 0 || i == len(ticker)-1 {
		return false
	}
	suffix := strings.ToUpper(ticker[i+1:])
	venues, ok := domesticSuffixes[country]
	if !ok {
		return suffix != country
	}
	return !venues[suffix]
}
