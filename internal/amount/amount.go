// Package amount converts between on-chain integer token amounts and their
// human-readable decimal representation.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// DisplayPrecision is the number of fraction digits used for display.
const DisplayPrecision = 2

// MaxBits is the width of an on-chain uint256 amount.
const MaxBits = 256

// Zero returns a fresh zero amount.
func Zero() *big.Int { return new(big.Int) }

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// Copy returns an independent copy of v; nil becomes zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return Zero()
	}
	return new(big.Int).Set(v)
}

// ToDecimal scales v down by decimals.
func ToDecimal(v *big.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}

// Format renders v scaled by decimals with DisplayPrecision fraction digits.
func Format(v *big.Int, decimals uint8) string {
	return FormatPrecision(v, decimals, DisplayPrecision)
}

// FormatPrecision renders v scaled by decimals with the given number of
// fraction digits.
func FormatPrecision(v *big.Int, decimals uint8, precision int32) string {
	return ToDecimal(v, decimals).StringFixed(precision)
}

// FormatInput renders v scaled by decimals without trailing zeros, the form
// shown back inside an input field.
func FormatInput(v *big.Int, decimals uint8) string {
	return ToDecimal(v, decimals).String()
}

// Parse converts user text into an integer amount scaled by decimals. Empty
// input is zero. Only plain decimal notation is accepted. Negative values,
// malformed numbers, values with more fraction digits than decimals and
// values that do not fit a uint256 are rejected with domain.ErrInvalidAmount.
func Parse(text string, decimals uint8) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Zero(), nil
	}
	// An exponent would be expanded into a power of ten of unbounded size.
	if strings.ContainsAny(text, "eE") {
		return nil, fmt.Errorf("amount: %w: %q uses exponent notation", domain.ErrInvalidAmount, text)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("amount: %w: %q is not a number", domain.ErrInvalidAmount, text)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount: %w: %q is negative", domain.ErrInvalidAmount, text)
	}
	if !d.Equal(d.Truncate(int32(decimals))) {
		return nil, fmt.Errorf("amount: %w: %q has more than %d decimals", domain.ErrInvalidAmount, text, decimals)
	}
	v := d.Shift(int32(decimals)).BigInt()
	if v.BitLen() > MaxBits {
		return nil, fmt.Errorf("amount: %w: %q exceeds %d bits", domain.ErrInvalidAmount, text, MaxBits)
	}
	return v, nil
}

// Div returns a/b as a float. A nil or zero divisor yields 0; callers that
// need to distinguish that case use Percentage.
func Div(a, b *big.Int) float64 {
	if IsZero(b) {
		return 0
	}
	num := decimal.NewFromBigInt(Copy(a), 0)
	den := decimal.NewFromBigInt(b, 0)
	f, _ := num.DivRound(den, 18).Float64()
	return f
}

// Percentage returns 100*part/total, or nil when total is zero.
func Percentage(part, total *big.Int) *float64 {
	if IsZero(total) {
		return nil
	}
	p := 100 * Div(part, total)
	return &p
}

// FormatPercentage renders p with DisplayPrecision digits; nil renders empty.
func FormatPercentage(p *float64) string {
	if p == nil {
		return ""
	}
	return decimal.NewFromFloat(*p).StringFixed(DisplayPrecision)
}
