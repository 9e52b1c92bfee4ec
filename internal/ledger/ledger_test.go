package ledger_test

import (
	"GapLedger/internal/ledger"
	"testing"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_StakerPath(t *testing.T) {
	staker := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewStakerAccountKey(staker, ledger.SubTypeStaked, ledger.QuoteAsset())

	path := key.AccountPath()
	expected := "staker:550e8400-e29b-41d4-a716-446655440000:staked:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	key := ledger.NewSystemAccountKey(ledger.SubTypeSystemClaimReserve, ledger.QuoteAsset())
	if got := key.AccountPath(); got != "system:claim_reserve:USDC" {
		t.Errorf("got %q, want %q", got, "system:claim_reserve:USDC")
	}

	key = ledger.NewSystemAccountKey(ledger.SubTypeSystemBlackSwanReserve, ledger.QuoteAsset())
	if got := key.AccountPath(); got != "system:black_swan_reserve:USDC" {
		t.Errorf("got %q, want %q", got, "system:black_swan_reserve:USDC")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiums, ledger.QuoteAsset())
	if got := key.AccountPath(); got != "external:premiums:USDC" {
		t.Errorf("got %q, want %q", got, "external:premiums:USDC")
	}
}

func TestGetAssetID(t *testing.T) {
	id, ok := ledger.GetAssetID("USDC")
	if !ok || id == 0 {
		t.Fatal("USDC should be a known asset with non-zero ID")
	}
	if _, ok := ledger.GetAssetID("DOGE"); ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: Premium split
// ============================================================================

func TestSplitPremium_SumsExactly(t *testing.T) {
	for _, premium := range []int64{1, 99, 1_000_000, 1_080_000_000, 7} {
		split := ledger.SplitPremium(premium)
		sum := split.ClaimReserve + split.BlackSwan + split.ProtocolFee + split.WorkingCapital
		if sum != premium {
			t.Errorf("premium %d: split sums to %d", premium, sum)
		}
	}
}

func TestSplitPremium_Shares(t *testing.T) {
	split := ledger.SplitPremium(1_000_000)
	if split.ClaimReserve != 770_000 {
		t.Errorf("claim reserve: got %d, want 770000", split.ClaimReserve)
	}
	if split.ProtocolFee != 30_000 {
		t.Errorf("protocol fee: got %d, want 30000", split.ProtocolFee)
	}
	if split.BlackSwan != 20_000 {
		t.Errorf("black swan: got %d, want 20000", split.BlackSwan)
	}
	if split.WorkingCapital != 180_000 {
		t.Errorf("working capital: got %d, want 180000", split.WorkingCapital)
	}
}

// ============================================================================
// Test: BalanceTracker + generator round trips
// ============================================================================

func TestStakeThenWithdraw_ZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0)
	staker := uuid.New()

	if err := bt.ApplyBatch(jg.GenerateStake(staker, "stake-1", 1_000_000, 1)); err != nil {
		t.Fatal(err)
	}
	if got := bt.GetStakerStaked(staker, ledger.QuoteAsset()); got != 1_000_000 {
		t.Errorf("staked after deposit: got %d", got)
	}

	if err := bt.ApplyBatch(jg.GenerateWithdrawalImmediate(staker, "wd-1", 400_000, 2)); err != nil {
		t.Fatal(err)
	}
	if got := bt.GetStakerStaked(staker, ledger.QuoteAsset()); got != 600_000 {
		t.Errorf("staked after withdrawal: got %d", got)
	}

	for asset, total := range bt.ComputeGlobalBalance() {
		if total != 0 {
			t.Errorf("asset %d not zero-sum: %d", asset, total)
		}
	}
}

func TestQueuedWithdrawalLifecycle(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0)
	staker := uuid.New()
	asset := ledger.QuoteAsset()

	bt.ApplyBatch(jg.GenerateStake(staker, "stake-1", 1_000_000, 1))
	bt.ApplyBatch(jg.GenerateWithdrawalQueued(staker, "wd-1", 700_000, 2))

	if got := bt.GetStakerStaked(staker, asset); got != 300_000 {
		t.Errorf("staked after queue: got %d", got)
	}
	if got := bt.GetStakerPendingWithdrawal(staker, asset); got != 700_000 {
		t.Errorf("pending after queue: got %d", got)
	}

	// Cancel restores availability
	bt.ApplyBatch(jg.GenerateWithdrawalCancelled(staker, "cancel-1", 700_000, 3))
	if got := bt.GetStakerStaked(staker, asset); got != 1_000_000 {
		t.Errorf("staked after cancel: got %d", got)
	}
	if got := bt.GetStakerPendingWithdrawal(staker, asset); got != 0 {
		t.Errorf("pending after cancel: got %d", got)
	}
}

func TestPremiumAllocation_FillsReserves(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0)
	asset := ledger.QuoteAsset()

	split := ledger.SplitPremium(1_000_000)
	if err := bt.ApplyBatch(jg.GeneratePremiumAllocation("buy-1", split, 1)); err != nil {
		t.Fatal(err)
	}

	if got := bt.GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemClaimReserve, asset)); got != 770_000 {
		t.Errorf("claim reserve: got %d", got)
	}
	if got := bt.GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemBlackSwanReserve, asset)); got != 20_000 {
		t.Errorf("black swan reserve: got %d", got)
	}
	if got := bt.GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemWorkingCapital, asset)); got != 180_000 {
		t.Errorf("working capital: got %d", got)
	}

	v := ledger.NewInvariantValidator(bt)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance: %v", err)
	}
	if err := v.ValidateReservesNonNegative(); err != nil {
		t.Errorf("reserves: %v", err)
	}
}

func TestBatchValidate_RejectsMalformed(t *testing.T) {
	batchID := uuid.New()
	asset := ledger.QuoteAsset()
	staker := uuid.New()

	// Non-positive amount
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.NewStakerAccountKey(staker, ledger.SubTypeStaked, asset),
			CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalStakes, asset),
			Amount:        0,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("zero amount should be rejected")
	}

	// Self-transfer
	key := ledger.NewStakerAccountKey(staker, ledger.SubTypeStaked, asset)
	b = &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  key,
			CreditAccount: key,
			Amount:        100,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("self-transfer should be rejected")
	}

	// Empty batch
	b = &ledger.Batch{BatchID: batchID}
	if err := b.Validate(); err == nil {
		t.Error("empty batch should be rejected")
	}
}
