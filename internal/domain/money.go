package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept for balances and amounts.
const MoneyScale = 2

// RoundAmount rounds to the stored precision (half away from zero).
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	if d.Exponent() >= -MoneyScale {
		return d
	}
	return d.Round(MoneyScale)
}

// IsMoneyScale reports whether d carries no precision below a cent.
// "10.10" and "10.100" qualify, "10.125" does not.
func IsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// FormatBalance renders a balance with exactly two fractional digits, e.g. "520.00".
func FormatBalance(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// FormatAmount renders an amount at the scale it was supplied with, so 20 stays "20"
// and 20.50 stays "20.50".
func FormatAmount(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
