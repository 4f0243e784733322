// Package emath implements the checked 256-bit fixed-point arithmetic used
// by every value-moving operation in the asset engine.
//
// All quantities are unsigned 18-decimal fixed point (WAD). Division
// truncates toward zero. Multiplication is always performed before
// division (mul-then-div) to preserve precision, and every multiply is
// checked for 256-bit overflow — an overflowing conversion aborts the
// enclosing operation, it never wraps or saturates.
//
// All monetary values use holiman/uint256 — never float64 for money.
package emath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	// ErrOverflow is returned when an intermediate product exceeds the
	// 256-bit unsigned range.
	ErrOverflow = errors.New("emath: arithmetic overflow")

	// ErrZeroDivisor is returned when a conversion would divide by zero,
	// e.g. an unset oracle price.
	ErrZeroDivisor = errors.New("emath: division by zero")

	// ErrNotWad is returned when a decimal amount cannot be represented
	// as a non-negative WAD integer.
	ErrNotWad = errors.New("emath: amount not representable at 18 decimals")
)

// WAD returns the 18-decimal fixed-point unit, 1e18.
func WAD() *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
}

var wad = WAD()

// MulDiv computes a*b/denom with overflow checking on the product.
func MulDiv(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrZeroDivisor
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, denom), nil
}

// WadMul computes a*b/1e18, the canonical fixed-point multiplication.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDiv(a, b, wad)
}

// WadDiv computes a*1e18/b, the canonical fixed-point division.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDiv(a, wad, b)
}

// Wad returns n*1e18 as a uint256. Panics on overflow; intended for
// constants and test fixtures.
func Wad(n uint64) *uint256.Int {
	out, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(n), wad)
	if overflow {
		panic("emath: Wad overflow")
	}
	return out
}

// FromDecimal parses a decimal-string integer (base 10) into a uint256.
func FromDecimal(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("emath: parse %q: %w", s, err)
	}
	return v, nil
}

// WadFromDecimal converts a human-denominated amount ("0.005") into its
// WAD representation. Fails on negative amounts and on amounts with more
// than 18 fractional digits.
func WadFromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrNotWad, d)
	}
	scaled := d.Shift(18)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s", ErrNotWad, d)
	}
	v, err := uint256.FromDecimal(scaled.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotWad, d)
	}
	return v, nil
}

// DecimalFromWad renders a WAD amount as a human-denominated decimal.
func DecimalFromWad(v *uint256.Int) decimal.Decimal {
	d, _ := decimal.NewFromString(v.Dec())
	return d.Shift(-18)
}
