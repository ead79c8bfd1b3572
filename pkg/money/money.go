// Package money converts parsed decimal amounts into integer minor units
// tagged with an ISO-4217 currency, the form transactions are stored in.
package money

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	INR = "INR" // Indian Rupee
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
	GBP = "GBP" // British Pound
	JPY = "JPY" // Japanese Yen (no decimal places)
)

// Money represents a monetary value with currency.
// It wraps go-money for safe arithmetic and shopspring/decimal for precision calculations.
type Money struct {
	m *money.Money
}

// New creates a new Money value from minor units and currency code.
// For JPY and other zero-decimal currencies, amount is the actual value.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{
		m: money.New(amountMinor, strings.ToUpper(currencyCode)),
	}
}

// IsKnownCurrency reports whether code is a currency go-money knows the
// fraction digits for.
func IsKnownCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// FromDecimal creates Money from a decimal amount, rounding half away from
// zero to the currency's minor unit.
func FromDecimal(amount decimal.Decimal, currencyCode string) (*Money, error) {
	code := strings.ToUpper(currencyCode)
	currency := money.GetCurrency(code)
	if currency == nil {
		return nil, fmt.Errorf("unknown currency %q", currencyCode)
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	minor := amount.Mul(multiplier).Round(0)
	if !minor.IsInteger() || minor.Abs().GreaterThan(decimal.NewFromInt(maxMinor)) {
		return nil, fmt.Errorf("amount %s out of range", amount)
	}

	return New(minor.IntPart(), code), nil
}

// maxMinor keeps conversions well inside int64.
const maxMinor = int64(1) << 53

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}
