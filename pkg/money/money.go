// Package money converts between human decimal amounts and the ledger's
// integer minor units.
package money

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerDecimals is the fixed-point precision of the native ledger currency.
const LedgerDecimals int32 = 18

var errEmptyAmount = errors.New("amount is required")

// ToMinorUnits parses a decimal string and scales it to integer minor units,
// truncating toward zero any precision beyond decimals.
func ToMinorUnits(amount string, decimals int32) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, errEmptyAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return value.Shift(decimals).Truncate(0).BigInt(), nil
}

// FromMinorUnits scales integer minor units back to a decimal amount.
func FromMinorUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}

// Format renders minor units as a trimmed decimal string ("0.05", "1").
func Format(units *big.Int, decimals int32) string {
	return FromMinorUnits(units, decimals).String()
}

// PercentOf returns pct% of total, truncated toward zero.
func PercentOf(total *big.Int, pct uint8) *big.Int {
	if total == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(total, big.NewInt(int64(pct)))
	return out.Quo(out, big.NewInt(100))
}

// UnixSeconds converts a timestamp to whole Unix seconds using floor division
// of its millisecond value.
func UnixSeconds(t time.Time) int64 {
	ms := t.UnixMilli()
	sec := ms / 1000
	if ms%1000 < 0 {
		sec--
	}
	return sec
}
