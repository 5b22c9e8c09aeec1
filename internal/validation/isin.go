package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidISIN is returned for identifiers that are not well-formed ISINs.
var ErrInvalidISIN = fmt.Errorf("invalid ISIN")

// ValidateISIN checks the ISO 6166 structure of an ISIN: a two letter
// country prefix, nine alphanumeric characters and a Luhn check digit
// computed over the letter-expanded code.
func ValidateISIN(isin string) error {
	if len(isin) != 12 {
		return fmt.Errorf("%w: %q must be 12 characters", ErrInvalidISIN, isin)
	}
	for i, r := range isin {
		switch {
		case i < 2 && !(r >= 'A' && r <= 'Z'):
			return fmt.Errorf("%w: %q country prefix must be letters", ErrInvalidISIN, isin)
		case i == 11 && !unicode.IsDigit(r):
			return fmt.Errorf("%w: %q check digit must be numeric", ErrInvalidISIN, isin)
		case !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9'):
			return fmt.Errorf("%w: %q contains %q", ErrInvalidISIN, isin, r)
		}
	}

	var digits strings.Builder
	for _, r := range isin[:11] {
		if r >= 'A' && r <= 'Z' {
			fmt.Fprintf(&digits, "%d", r-'A'+10)
		} else {
			digits.WriteRune(r)
		}
	}

	// Luhn: double every second digit from the right of the payload.
	s := digits.String()
	sum := 0
	double := true
	for i := len(s) - 1; i >= 0; i-- {
		d := int(s[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	check := (10 - sum%10) % 10
	if int(isin[11]-'0') != check {
		return fmt.Errorf("%w: %q check digit mismatch", ErrInvalidISIN, isin)
	}
	return nil
}

// IsISIN reports whether s is a well-formed ISIN.
func IsISIN(s string) bool {
	return ValidateISIN(s) == nil
}

// ISINCountry returns the two letter country prefix of a valid ISIN, or ""
// if s is not one.
func ISINCountry(s string) string {
	if !IsISIN(s) {
		return ""
	}
	return s[:2]
}
