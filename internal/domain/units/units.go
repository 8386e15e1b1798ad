// Package units converts between raw on-chain integers and decimal strings.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNegative      = errors.New("negative amount")
	ErrTooPrecise    = errors.New("amount exceeds token precision")
)

// FormatUnits renders raw as a decimal string scaled down by decimals.
// Trailing fractional zeros are dropped, "0" for nil.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// ParseUnits is the inverse of FormatUnits. It rejects negative values and
// values with more fractional digits than decimals allows.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, ErrNegative
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, ErrTooPrecise
	}
	return scaled.BigInt(), nil
}

// FormatFixed renders raw scaled down by decimals with exactly places
// fractional digits, rounding half away from zero.
func FormatFixed(raw *big.Int, decimals uint8, places int32) string {
	if raw == nil {
		raw = new(big.Int)
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).StringFixed(places)
}
