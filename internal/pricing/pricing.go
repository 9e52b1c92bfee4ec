// Package pricing computes gap-insurance premiums. All rates and multipliers
// are basis points (10_000 = 1.0x); amounts are fixed-point with 6 decimals.
package pricing

import (
	"errors"
	"fmt"

	fpmath "GapLedger/internal/math"
)

// Threshold tiers, in basis points of the recorded close. Only these two are
// supported; the tight tier triggers on a 5% move, the wide tier on 10%.
const (
	TierTightBp = 500
	TierWideBp  = 1_000
)

// Weekly tier rates in basis points of coverage. The tight tier is far more
// likely to trigger and carries a materially higher rate.
const (
	tierTightRateBp = 1_080 // 10.8% of coverage per week
	tierWideRateBp  = 60    // 0.6% of coverage per week
)

const (
	// utilizationCapBp caps utilization for the multiplier ramp.
	utilizationCapBp = 9_500

	// MinPremiumDivisor floors every premium at coverage/1000 (0.1%).
	MinPremiumDivisor = 1_000

	// maxPremiumBp rejects premiums above 95% of coverage.
	maxPremiumBp = 9_500

	// MaxCoverage is the global per-policy cap: 1,000,000 units at 6 decimals.
	MaxCoverage int64 = 1_000_000 * 1_000_000
)

var (
	ErrInvalidTier         = errors.New("pricing: unsupported threshold tier")
	ErrInvalidCoverage     = errors.New("pricing: coverage zero or above per-policy cap")
	ErrLiquidityExhausted  = errors.New("pricing: premium exceeds 95% of coverage")
	ErrInvalidVolatility   = errors.New("pricing: volatility average must be positive")
)

// TierRate returns the weekly premium rate for a threshold tier, in basis
// points of coverage.
func TierRate(thresholdBp int64) (int64, error) {
	switch thresholdBp {
	case TierTightBp:
		return tierTightRateBp, nil
	case TierWideBp:
		return tierWideRateBp, nil
	default:
		return 0, fmt.Errorf("%w: %dbp", ErrInvalidTier, thresholdBp)
	}
}

// UtilizationMultiplier returns the premium multiplier in basis points for the
// pool utilization that would result from adding newCoverage. The ramp is
// linear-quadratic: 10000 + U/2 + U²/20000, with U capped at 9500bp, so
// premiums stay moderate below ~50% utilization and escalate as the pool
// saturates. An empty pool prices at 1.0x.
func UtilizationMultiplier(totalCoverage, newCoverage, totalStaked int64) int64 {
	if totalStaked == 0 {
		return fpmath.BasisPointScale
	}

	u := fpmath.MulDiv(totalCoverage+newCoverage, fpmath.BasisPointScale, totalStaked)
	if u > utilizationCapBp {
		u = utilizationCapBp
	}

	return fpmath.BasisPointScale + u/2 + fpmath.MulDiv(u, u, 20_000)
}

// VolatilityMultiplier returns current/average in basis points.
func VolatilityMultiplier(current, average int64) (int64, error) {
	if average <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidVolatility, average)
	}
	return fpmath.MulDiv(current, fpmath.BasisPointScale, average), nil
}

// Premium prices one gap's coverage at the given tier and pool state.
// utilizationBp and volatilityBp are the multipliers from
// UtilizationMultiplier and VolatilityMultiplier.
func Premium(coverage, thresholdBp, utilizationBp, volatilityBp int64) (int64, error) {
	if coverage <= 0 || coverage > MaxCoverage {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCoverage, coverage)
	}

	rateBp, err := TierRate(thresholdBp)
	if err != nil {
		return 0, err
	}

	base := fpmath.ApplyBp(coverage, rateBp)

	// base * util * vol / 1e8, both multipliers in bp
	premium := fpmath.MulDiv(base, utilizationBp, fpmath.BasisPointScale)
	premium = fpmath.MulDiv(premium, volatilityBp, fpmath.BasisPointScale)

	if floor := coverage / MinPremiumDivisor; premium < floor {
		premium = floor
	}
	if premium > fpmath.ApplyBp(coverage, maxPremiumBp) {
		return 0, fmt.Errorf("%w: premium %d for coverage %d", ErrLiquidityExhausted, premium, coverage)
	}

	return premium, nil
}

// Quote bundles the inputs and result of one premium computation, for
// logging and the policy record.
type Quote struct {
	Coverage      int64
	ThresholdBp   int64
	UtilizationBp int64
	VolatilityBp  int64
	Premium       int64
}

// QuotePremium computes the full quote from raw pool state.
func QuotePremium(coverage, thresholdBp, totalCoverage, totalStaked, volatilityBp int64) (Quote, error) {
	util := UtilizationMultiplier(totalCoverage, coverage, totalStaked)
	premium, err := Premium(coverage, thresholdBp, util, volatilityBp)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Coverage:      coverage,
		ThresholdBp:   thresholdBp,
		UtilizationBp: util,
		VolatilityBp:  volatilityBp,
		Premium:       premium,
	}, nil
}
