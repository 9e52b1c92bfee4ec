package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 USDC
	PriceConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001
)

// BasisPointScale is the denominator for all basis-point arithmetic
// (10_000 bp = 1.0x). Tier rates, utilization/volatility multipliers and
// split ratios all use this scale.
const BasisPointScale int64 = 10_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	// Apply rounding
	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			// remainder > half: round up
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			// remainder == half and even denominator: round to even
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator through an int128 intermediate,
// truncating toward zero. All premium, utilization and gap arithmetic
// routes through here so no intermediate product can overflow int64.
func MulDiv(a, b, denominator int64) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, RoundDown)
	putInt128(num)
	return result
}

// ApplyBp scales value by a basis-point factor: value * bp / 10_000.
func ApplyBp(value, bp int64) int64 {
	return MulDiv(value, bp, BasisPointScale)
}

// AbsDiff returns |a - b| for non-negative fixed-point inputs.
func AbsDiff(a, b int64) int64 {
	if a >= b {
		return a - b
	}
	return b - a
}

// GapBp computes the absolute percentage move between a reference price
// and an observed price, in basis points of the reference. The reference
// must be positive.
func GapBp(reference, observed int64) int64 {
	return MulDiv(AbsDiff(observed, reference), BasisPointScale, reference)
}
