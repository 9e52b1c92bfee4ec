package pricing_test

import (
	"GapLedger/internal/pricing"
	"errors"
	"testing"

	fpmath "GapLedger/internal/math"
)

const unit = 1_000_000 // 6-decimal fixed point

func TestTierRate(t *testing.T) {
	rate, err := pricing.TierRate(pricing.TierTightBp)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 1_080 {
		t.Errorf("tight tier rate: got %d, want 1080", rate)
	}

	rate, err = pricing.TierRate(pricing.TierWideBp)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 60 {
		t.Errorf("wide tier rate: got %d, want 60", rate)
	}

	if _, err := pricing.TierRate(750); !errors.Is(err, pricing.ErrInvalidTier) {
		t.Errorf("expected ErrInvalidTier, got %v", err)
	}
}

func TestUtilizationMultiplier_EmptyPool(t *testing.T) {
	if got := pricing.UtilizationMultiplier(0, 10_000*unit, 0); got != 10_000 {
		t.Errorf("empty pool: got %d, want 10000", got)
	}
}

func TestUtilizationMultiplier_Ramp(t *testing.T) {
	staked := int64(100_000 * unit)

	// 10% utilization: 10000 + 500 + 50 = 10550
	if got := pricing.UtilizationMultiplier(0, 10_000*unit, staked); got != 10_550 {
		t.Errorf("10%% util: got %d, want 10550", got)
	}

	// 50% utilization: 10000 + 2500 + 1250 = 13750
	if got := pricing.UtilizationMultiplier(0, 50_000*unit, staked); got != 13_750 {
		t.Errorf("50%% util: got %d, want 13750", got)
	}

	// Above the 95% cap: 10000 + 4750 + 4512 = 19262
	capped := pricing.UtilizationMultiplier(0, 100_000*unit, staked)
	if capped != 10_000+4_750+9_500*9_500/20_000 {
		t.Errorf("capped util: got %d", capped)
	}

	// 200% requested utilization prices identically to 95%
	if got := pricing.UtilizationMultiplier(0, 200_000*unit, staked); got != capped {
		t.Errorf("beyond cap: got %d, want %d", got, capped)
	}
}

func TestVolatilityMultiplier(t *testing.T) {
	got, err := pricing.VolatilityMultiplier(150, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got != 15_000 {
		t.Errorf("got %d, want 15000", got)
	}

	if _, err := pricing.VolatilityMultiplier(100, 0); err == nil {
		t.Error("zero average should fail")
	}
}

func TestPremium_InvalidCoverage(t *testing.T) {
	if _, err := pricing.Premium(0, pricing.TierTightBp, 10_000, 10_000); !errors.Is(err, pricing.ErrInvalidCoverage) {
		t.Errorf("zero coverage: got %v", err)
	}
	if _, err := pricing.Premium(pricing.MaxCoverage+1, pricing.TierTightBp, 10_000, 10_000); !errors.Is(err, pricing.ErrInvalidCoverage) {
		t.Errorf("over cap: got %v", err)
	}
}

func TestPremium_BaseRates(t *testing.T) {
	coverage := int64(10_000 * unit)

	// Neutral multipliers: premium = coverage * 10.8%
	p, err := pricing.Premium(coverage, pricing.TierTightBp, 10_000, 10_000)
	if err != nil {
		t.Fatal(err)
	}
	if p != fpmath.ApplyBp(coverage, 1_080) {
		t.Errorf("tight premium: got %d, want %d", p, fpmath.ApplyBp(coverage, 1_080))
	}

	pw, err := pricing.Premium(coverage, pricing.TierWideBp, 10_000, 10_000)
	if err != nil {
		t.Fatal(err)
	}
	if pw != fpmath.ApplyBp(coverage, 60) {
		t.Errorf("wide premium: got %d, want %d", pw, fpmath.ApplyBp(coverage, 60))
	}

	// Tight tier is at least 10x the wide tier for identical coverage
	if p < 10*pw {
		t.Errorf("tight premium %d not >= 10x wide premium %d", p, pw)
	}
}

func TestPremium_MonotonicInCoverage(t *testing.T) {
	staked := int64(1_000_000 * unit)
	prev := int64(0)
	for _, coverage := range []int64{1_000 * unit, 5_000 * unit, 20_000 * unit, 100_000 * unit} {
		q, err := pricing.QuotePremium(coverage, pricing.TierTightBp, 0, staked, 10_000)
		if err != nil {
			t.Fatal(err)
		}
		if q.Premium <= prev {
			t.Errorf("premium not strictly increasing: coverage %d -> premium %d (prev %d)", coverage, q.Premium, prev)
		}
		prev = q.Premium
	}
}

func TestPremium_Bounds(t *testing.T) {
	staked := int64(100_000 * unit)
	for _, tier := range []int64{pricing.TierTightBp, pricing.TierWideBp} {
		for _, coverage := range []int64{1 * unit, 500 * unit, 10_000 * unit, 90_000 * unit} {
			q, err := pricing.QuotePremium(coverage, tier, 0, staked, 10_000)
			if err != nil {
				t.Fatalf("tier %d coverage %d: %v", tier, coverage, err)
			}
			if q.Premium < coverage/1_000 {
				t.Errorf("premium %d below floor for coverage %d", q.Premium, coverage)
			}
			if q.Premium > coverage*95/100 {
				t.Errorf("premium %d above 95%% ceiling for coverage %d", q.Premium, coverage)
			}
		}
	}
}

func TestPremium_Floor(t *testing.T) {
	// Wide tier with a crushed volatility multiplier lands below the floor.
	coverage := int64(10_000 * unit)
	p, err := pricing.Premium(coverage, pricing.TierWideBp, 10_000, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if p != coverage/1_000 {
		t.Errorf("floored premium: got %d, want %d", p, coverage/1_000)
	}
}

func TestPremium_CeilingRejected(t *testing.T) {
	// Tight tier at max utilization and extreme volatility blows the ceiling:
	// 1080bp * 1.9262 * 15x > 95%.
	coverage := int64(10_000 * unit)
	util := pricing.UtilizationMultiplier(0, coverage*20, coverage*20)
	_, err := pricing.Premium(coverage, pricing.TierTightBp, util, 60_000)
	if !errors.Is(err, pricing.ErrLiquidityExhausted) {
		t.Errorf("expected ErrLiquidityExhausted, got %v", err)
	}
}
