package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a strictly positive decimal amount that fits in the
// given number of fractional digits.
func ParseAmount(amount string, decimals int32) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	if !d.Equal(d.Truncate(decimals)) {
		return decimal.Zero, fmt.Errorf("amount %s exceeds %d fractional digits", amount, decimals)
	}
	return d, nil
}

// ToSmallestUnit converts a decimal token amount into its integer base unit,
// e.g. "12.5" with 6 decimals -> 12500000. Fractions below one base unit are
// rejected instead of rounded.
func ToSmallestUnit(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d fractional digits", amount.String(), decimals)
	}
	return scaled.BigInt(), nil
}

// FromSmallestUnit is the inverse of ToSmallestUnit.
func FromSmallestUnit(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// FormatAmount renders a ledger counter with the fixed 18 fractional digits
// used by persisted totals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(LedgerScale)
}
