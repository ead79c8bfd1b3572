package normalizer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyGlyphs are removed before a number is searched for.
var currencyGlyphs = strings.NewReplacer(
	"₹", "",
	"Rs.", "",
	"INR", "",
	"$", "",
	"€", "",
	"£", "",
	"¥", "",
)

// amountPattern accepts an optional leading minus, either comma-grouped
// thousands or a plain digit run, and an optional one or two digit fraction.
var amountPattern = regexp.MustCompile(`-?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?`)

// ParseAmount extracts the first signed decimal number from s.
func ParseAmount(s string) (decimal.Decimal, bool) {
	cleaned := currencyGlyphs.Replace(s)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, false
	}

	match := amountPattern.FindString(cleaned)
	if match == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
