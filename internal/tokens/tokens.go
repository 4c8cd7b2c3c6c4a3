// Package tokens converts between human-scale token amounts and the
// ledger's 18-decimal fixed-point representation.
package tokens

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const Decimals = 18

var (
	ErrNegative  = errors.New("negative token amount")
	ErrPrecision = errors.New("token amount has more than 18 fractional digits")
	ErrRange     = errors.New("token amount does not fit in uint256")
)

// maxDigits is the number of decimal digits of the largest uint256.
const maxDigits = 78

var (
	unit       = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// FromWhole scales an integer token count to base units.
func FromWhole(n int64) (*big.Int, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegative, n)
	}
	return new(big.Int).Mul(big.NewInt(n), unit), nil
}

// FromDecimal scales a decimal token amount to base units. Amounts that
// cannot be represented exactly are rejected instead of rounded.
func FromDecimal(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegative, d.String())
	}
	if d.IsZero() {
		return new(big.Int), nil
	}
	// Bound the mantissa and exponent before any big.Int arithmetic so a
	// short input like "1e50000000" cannot expand into millions of digits.
	digits, exp := d.NumDigits(), int(d.Exponent())
	if digits+exp+Decimals > maxDigits {
		return nil, fmt.Errorf("%w: %s", ErrRange, d.String())
	}
	if digits > maxDigits+Decimals || exp < -(maxDigits+Decimals) {
		return nil, fmt.Errorf("%w: %s", ErrPrecision, d.String())
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrPrecision, d.String())
	}
	v := scaled.BigInt()
	if v.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRange, d.String())
	}
	return v, nil
}

// ToDecimal converts base units back to a human-scale amount.
func ToDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}

// ToWhole converts base units to whole tokens, truncating any fraction.
func ToWhole(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Quo(v, unit)
}
