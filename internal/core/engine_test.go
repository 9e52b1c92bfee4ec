package core

import (
	"errors"
	"testing"
	"time"

	"GapLedger/internal/calendar"
	"GapLedger/internal/event"
	"GapLedger/internal/state"

	"github.com/google/uuid"
)

const (
	oneUnit      = int64(1_000_000) // 6-decimal fixed point
	stakeAmount  = 100_000 * oneUnit
	coverAmount  = 10_000 * oneUnit
	closePrice   = 250 * oneUnit
	tierTightBp  = int64(500)
	testWeek     = int64(80) // deep inside the calendar, no epoch edge effects
	testDay      = 0
)

// harness wires an engine with buffered output channels and hands out
// contiguous source sequences, mimicking the upstream relay.
type harness struct {
	t       *testing.T
	eng     *Engine
	persist chan CoreOutput
	proj    chan CoreOutput

	approver uuid.UUID
	treasury uuid.UUID
	nextSeq  int64
	feedSeq  int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	persist := make(chan CoreOutput, 1024)
	proj := make(chan CoreOutput, 1024)
	approver := uuid.New()
	treasury := uuid.New()
	return &harness{
		t:        t,
		eng:      NewEngine(0, approver, treasury, persist, proj, nil, nil),
		persist:  persist,
		proj:     proj,
		approver: approver,
		treasury: treasury,
	}
}

func (h *harness) seq() int64 {
	s := h.nextSeq
	h.nextSeq++
	return s
}

func (h *harness) mustProcess(evt event.Event) {
	h.t.Helper()
	if err := h.eng.ProcessEvent(evt); err != nil {
		h.t.Fatalf("process %T: %v", evt, err)
	}
}

func (h *harness) pushPrice(price int64, at time.Time) {
	h.t.Helper()
	h.feedSeq++
	h.mustProcess(&event.PriceUpdate{Price: price, PriceSequence: h.feedSeq, Timestamp: at})
}

func (h *harness) stake(staker uuid.UUID, amount int64, at time.Time) {
	h.t.Helper()
	h.mustProcess(&event.StakeDeposit{
		DepositID: uuid.New(), Staker: staker, Amount: amount,
		Sequence: h.seq(), Timestamp: at,
	})
}

func (h *harness) buyPolicy(buyer uuid.UUID, coverage, thresholdBp int64, week int64, day int, at time.Time) uuid.UUID {
	h.t.Helper()
	id := uuid.New()
	h.mustProcess(&event.PolicyPurchase{
		PurchaseID: id, Buyer: buyer, Coverage: coverage, ThresholdBp: thresholdBp,
		Week: week, Day: day, Sequence: h.seq(), Timestamp: at,
	})
	return id
}

func (h *harness) approveWeek(week, ratioBp int64, at time.Time) {
	h.t.Helper()
	h.mustProcess(&event.WeekApprove{
		ApprovalID: uuid.New(), Actor: h.approver, Week: week,
		SplitRatioBp: ratioBp, Reason: "test", Sequence: h.seq(), Timestamp: at,
	})
}

func (h *harness) settle(policyID uuid.UUID, at time.Time) error {
	return h.eng.ProcessEvent(&event.PolicySettle{
		SettleID: uuid.New(), PolicyID: policyID, Caller: uuid.New(),
		Sequence: h.seq(), Timestamp: at,
	})
}

// drainOutputs empties the persist channel and returns everything seen.
func (h *harness) drainOutputs() []CoreOutput {
	var outs []CoreOutput
	for {
		select {
		case o := <-h.persist:
			outs = append(outs, o)
		default:
			return outs
		}
	}
}

func gapTimes(t *testing.T, week int64, day int) (close, open time.Time) {
	t.Helper()
	c, err := calendar.MarketClose(week, day)
	if err != nil {
		t.Fatal(err)
	}
	o, err := calendar.NextMarketOpen(week, day)
	if err != nil {
		t.Fatal(err)
	}
	return c, o
}

// setupOpenPolicy stakes, prices the feed and issues one policy against the
// (testWeek, testDay) gap. Returns the policy id and the gap's next-open.
func setupOpenPolicy(t *testing.T, h *harness) (uuid.UUID, time.Time) {
	t.Helper()
	close, open := gapTimes(t, testWeek, testDay)
	preClose := close.Add(-2 * time.Hour)

	h.pushPrice(closePrice, preClose)
	h.stake(uuid.New(), stakeAmount, preClose)
	policyID := h.buyPolicy(uuid.New(), coverAmount, tierTightBp, testWeek, testDay, preClose.Add(time.Minute))
	return policyID, open
}

func TestScenarioNoGap(t *testing.T) {
	h := newHarness(t)
	policyID, open := setupOpenPolicy(t, h)

	h.pushPrice(closePrice, open.Add(time.Minute))
	h.approveWeek(testWeek, state.DefaultSplitRatioBp, open.Add(time.Minute))
	if err := h.settle(policyID, open.Add(2*time.Minute)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	p, _ := h.eng.Book().GetPolicy(policyID)
	if !p.Settled || p.PaidOut {
		t.Fatalf("policy flags: settled %v paid %v", p.Settled, p.PaidOut)
	}
	if h.eng.Pool().TotalStaked() != stakeAmount {
		t.Fatalf("staked = %d, want unchanged %d", h.eng.Pool().TotalStaked(), stakeAmount)
	}
	if h.eng.Pool().TotalCoverage() != 0 {
		t.Fatalf("coverage = %d, want 0 after settle", h.eng.Pool().TotalCoverage())
	}
}

func TestScenarioGapTriggers(t *testing.T) {
	h := newHarness(t)
	policyID, open := setupOpenPolicy(t, h)

	// Open 8% below the recorded close: 250 -> 230.
	h.pushPrice(230*oneUnit, open.Add(time.Minute))
	h.approveWeek(testWeek, state.DefaultSplitRatioBp, open.Add(time.Minute))
	if err := h.settle(policyID, open.Add(2*time.Minute)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	p, _ := h.eng.Book().GetPolicy(policyID)
	if !p.Settled || !p.PaidOut {
		t.Fatalf("policy flags: settled %v paid %v", p.Settled, p.PaidOut)
	}
	if got := h.eng.Pool().TotalStaked(); got != stakeAmount-coverAmount {
		t.Fatalf("staked = %d, want %d reduced by full coverage", got, stakeAmount-coverAmount)
	}

	var settlement *SettlementResult
	for _, o := range h.drainOutputs() {
		if o.Settlement != nil {
			settlement = o.Settlement
		}
	}
	if settlement == nil || settlement.Payout != coverAmount {
		t.Fatalf("settlement output = %+v, want payout %d", settlement, coverAmount)
	}
	if settlement.GapBp != 800 {
		t.Fatalf("gap = %d bp, want 800", settlement.GapBp)
	}
}

func TestScenarioSplitAdjusted(t *testing.T) {
	h := newHarness(t)
	policyID, open := setupOpenPolicy(t, h)

	// 2:1 split: open halves to 125 but governance records the 0.5x ratio,
	// so the adjusted close matches and no gap is seen.
	h.pushPrice(125*oneUnit, open.Add(time.Minute))
	h.approveWeek(testWeek, 5_000, open.Add(time.Minute))
	if err := h.settle(policyID, open.Add(2*time.Minute)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	p, _ := h.eng.Book().GetPolicy(policyID)
	if p.PaidOut {
		t.Fatal("split-adjusted settlement paid out")
	}
	var settlement *SettlementResult
	for _, o := range h.drainOutputs() {
		if o.Settlement != nil {
			settlement = o.Settlement
		}
	}
	if settlement.AdjustedClose != 125*oneUnit || settlement.GapBp != 0 {
		t.Fatalf("adjusted %d gap %d, want 125e6 and 0", settlement.AdjustedClose, settlement.GapBp)
	}
}

func TestScenarioFailsafeFalsePositive(t *testing.T) {
	h := newHarness(t)
	policyID, open := setupOpenPolicy(t, h)

	// Same 2:1 split, but governance never approves the week.
	h.pushPrice(125*oneUnit, open.Add(time.Minute))

	failsafeAt := calendar.WeekStart(testWeek).Add(state.FailsafeDelay)

	// Before the failsafe window elapses, settlement is blocked.
	early := open.Add(2 * time.Minute)
	if early.Before(failsafeAt) {
		if err := h.settle(policyID, early); !errors.Is(err, ErrWeekNotApproved) {
			t.Fatalf("err = %v, want ErrWeekNotApproved", err)
		}
	}

	at := failsafeAt
	if at.Before(open) {
		at = open.Add(time.Hour)
	}
	if err := h.settle(policyID, at); err != nil {
		t.Fatalf("failsafe settle: %v", err)
	}

	// The 1.0x default misreads the split as a 50% crash and pays out.
	p, _ := h.eng.Book().GetPolicy(policyID)
	if !p.PaidOut {
		t.Fatal("failsafe settlement did not pay out")
	}

	var settlement *SettlementResult
	var failsafeEnvelope bool
	for _, o := range h.drainOutputs() {
		if o.Settlement != nil && o.Settlement.Failsafe {
			settlement = o.Settlement
		}
		if o.Envelope != nil && o.Envelope.EventType == event.EventTypeFailsafeApplied {
			failsafeEnvelope = true
		}
	}
	if settlement == nil {
		t.Fatal("no failsafe settlement output")
	}
	if settlement.GapBp != 5_000 {
		t.Fatalf("gap = %d bp, want 5000", settlement.GapBp)
	}
	if settlement.SplitRatioBp != state.DefaultSplitRatioBp {
		t.Fatalf("ratio = %d, want failsafe default", settlement.SplitRatioBp)
	}
	if !failsafeEnvelope {
		t.Fatal("no FailsafeApplied envelope emitted")
	}
}

func TestScenarioQueueFairness(t *testing.T) {
	h := newHarness(t)
	close, _ := gapTimes(t, testWeek, testDay)
	at := close.Add(-3 * time.Hour)

	first, second := uuid.New(), uuid.New()
	h.pushPrice(closePrice, at)
	h.stake(first, 60_000*oneUnit, at)
	h.stake(second, 40_000*oneUnit, at)

	// Fully utilize the pool so both withdrawals must queue.
	h.buyPolicy(uuid.New(), 100_000*oneUnit, tierTightBp, testWeek, testDay, at.Add(time.Minute))

	h.mustProcess(&event.WithdrawalRequest{
		RequestID: uuid.New(), Staker: first, Amount: 30_000 * oneUnit,
		Sequence: h.seq(), Timestamp: at.Add(2 * time.Minute),
	})
	h.mustProcess(&event.WithdrawalRequest{
		RequestID: uuid.New(), Staker: second, Amount: 20_000 * oneUnit,
		Sequence: h.seq(), Timestamp: at.Add(3 * time.Minute),
	})
	if h.eng.Pool().QueueDepth() != 2 {
		t.Fatalf("queue depth = %d, want 2", h.eng.Pool().QueueDepth())
	}

	// Free exactly the first staker's amount. Auto-drain after the stake
	// must pay the first request and leave the second pending, in order.
	h.stake(uuid.New(), 30_000*oneUnit, at.Add(4*time.Minute))

	if h.eng.Pool().QueueDepth() != 1 {
		t.Fatalf("queue depth = %d, want second staker still pending", h.eng.Pool().QueueDepth())
	}
	if got := h.eng.Pool().StakerBalance(first); got != 30_000*oneUnit {
		t.Fatalf("first staker balance = %d, want 30000e6 after payout", got)
	}
	if got := h.eng.Pool().StakerBalance(second); got != 40_000*oneUnit {
		t.Fatalf("second staker balance = %d, want untouched", got)
	}

	var paid []state.PaidWithdrawal
	for _, o := range h.drainOutputs() {
		paid = append(paid, o.Paid...)
	}
	if len(paid) != 1 || paid[0].Staker != first {
		t.Fatalf("paid = %+v, want exactly the first staker", paid)
	}
}

func TestDuplicateEventIsNoOp(t *testing.T) {
	h := newHarness(t)
	close, _ := gapTimes(t, testWeek, testDay)
	at := close.Add(-time.Hour)

	staker := uuid.New()
	dep := &event.StakeDeposit{
		DepositID: uuid.New(), Staker: staker, Amount: stakeAmount,
		Sequence: h.seq(), Timestamp: at,
	}
	h.mustProcess(dep)
	// Same idempotency key, redelivered with its old sequence.
	h.mustProcess(dep)

	if h.eng.Pool().TotalStaked() != stakeAmount {
		t.Fatalf("staked = %d, duplicate was applied", h.eng.Pool().TotalStaked())
	}
	if h.eng.GetSequence() != 1 {
		t.Fatalf("core sequence = %d, want 1", h.eng.GetSequence())
	}
}

func TestOutOfOrderCommandRejected(t *testing.T) {
	h := newHarness(t)
	close, _ := gapTimes(t, testWeek, testDay)
	at := close.Add(-time.Hour)

	h.stake(uuid.New(), stakeAmount, at) // consumes sequence 0

	err := h.eng.ProcessEvent(&event.StakeDeposit{
		DepositID: uuid.New(), Staker: uuid.New(), Amount: oneUnit,
		Sequence: 5, Timestamp: at, // gap: expected 1
	})
	if err == nil {
		t.Fatal("sequence gap accepted")
	}
}

func TestPauseBlocksStakingAndIssuanceOnly(t *testing.T) {
	h := newHarness(t)
	close, open := gapTimes(t, testWeek, testDay)
	at := close.Add(-2 * time.Hour)

	staker := uuid.New()
	h.pushPrice(closePrice, at)
	h.stake(staker, stakeAmount, at)
	policyID := h.buyPolicy(uuid.New(), coverAmount, tierTightBp, testWeek, testDay, at.Add(time.Minute))

	h.mustProcess(&event.Pause{ActionID: uuid.New(), Actor: h.approver, Sequence: h.seq(), Timestamp: at.Add(2 * time.Minute)})

	if err := h.eng.ProcessEvent(&event.StakeDeposit{
		DepositID: uuid.New(), Staker: staker, Amount: oneUnit,
		Sequence: h.seq(), Timestamp: at.Add(3 * time.Minute),
	}); !errors.Is(err, state.ErrPaused) {
		t.Fatalf("stake during pause: %v, want ErrPaused", err)
	}
	if err := h.eng.ProcessEvent(&event.PolicyPurchase{
		PurchaseID: uuid.New(), Buyer: uuid.New(), Coverage: coverAmount, ThresholdBp: tierTightBp,
		Week: testWeek, Day: 2, Sequence: h.seq(), Timestamp: at.Add(4 * time.Minute),
	}); !errors.Is(err, state.ErrPaused) {
		t.Fatalf("purchase during pause: %v, want ErrPaused", err)
	}

	// Withdrawal and settlement stay open.
	h.mustProcess(&event.WithdrawalRequest{
		RequestID: uuid.New(), Staker: staker, Amount: 1_000 * oneUnit,
		Sequence: h.seq(), Timestamp: at.Add(5 * time.Minute),
	})
	h.pushPrice(closePrice, open.Add(time.Minute))
	h.approveWeek(testWeek, state.DefaultSplitRatioBp, open.Add(time.Minute))
	if err := h.settle(policyID, open.Add(2*time.Minute)); err != nil {
		t.Fatalf("settle during pause: %v", err)
	}
}

func TestSettlePreconditions(t *testing.T) {
	h := newHarness(t)
	policyID, open := setupOpenPolicy(t, h)

	// Too early: before next open.
	if err := h.settle(policyID, open.Add(-time.Minute)); !errors.Is(err, ErrSettleTooEarly) {
		t.Fatalf("err = %v, want ErrSettleTooEarly", err)
	}

	// Approved week but feed price still pre-open: StaleFeed.
	h.approveWeek(testWeek, state.DefaultSplitRatioBp, open)
	if err := h.settle(policyID, open.Add(time.Minute)); !errors.Is(err, ErrStaleFeed) {
		t.Fatalf("err = %v, want ErrStaleFeed", err)
	}

	h.pushPrice(closePrice, open.Add(2*time.Minute))
	if err := h.settle(policyID, open.Add(3*time.Minute)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Double settle is rejected while state is untouched.
	if err := h.settle(policyID, open.Add(4*time.Minute)); !errors.Is(err, state.ErrAlreadySettled) {
		t.Fatalf("err = %v, want ErrAlreadySettled", err)
	}
}

func TestIssuanceFreshnessBounds(t *testing.T) {
	h := newHarness(t)
	close, _ := gapTimes(t, testWeek, 4)
	at := close.Add(-30 * time.Hour)

	h.pushPrice(closePrice, at)
	h.stake(uuid.New(), stakeAmount, at)

	// Advance path tolerates a 20h-old price; the same-week path does not
	// tolerate 2h.
	h.mustProcess(&event.PolicyPurchase{
		PurchaseID: uuid.New(), Buyer: uuid.New(), Coverage: coverAmount, ThresholdBp: tierTightBp,
		Week: testWeek, Day: 4, Sequence: h.seq(), Timestamp: at.Add(20 * time.Hour),
	})
	err := h.eng.ProcessEvent(&event.PolicyPurchaseLegacy{
		PurchaseID: uuid.New(), Buyer: uuid.New(), Coverage: coverAmount, ThresholdBp: tierTightBp,
		Sequence: h.seq(), Timestamp: at.Add(2 * time.Hour),
	})
	if !errors.Is(err, ErrStaleFeed) {
		t.Fatalf("legacy path with 2h-old price: %v, want ErrStaleFeed", err)
	}

	// Fresh price unblocks the legacy path.
	h.pushPrice(closePrice, at.Add(21*time.Hour))
	h.mustProcess(&event.PolicyPurchaseLegacy{
		PurchaseID: uuid.New(), Buyer: uuid.New(), Coverage: coverAmount, ThresholdBp: tierTightBp,
		Sequence: h.seq(), Timestamp: at.Add(21*time.Hour + 30*time.Minute),
	})
}

func TestIssuanceSolvencyBound(t *testing.T) {
	h := newHarness(t)
	close, _ := gapTimes(t, testWeek, testDay)
	at := close.Add(-time.Hour)

	h.pushPrice(closePrice, at)
	h.stake(uuid.New(), 10_000*oneUnit, at)

	err := h.eng.ProcessEvent(&event.PolicyPurchase{
		PurchaseID: uuid.New(), Buyer: uuid.New(), Coverage: 10_001 * oneUnit, ThresholdBp: tierTightBp,
		Week: testWeek, Day: testDay, Sequence: h.seq(), Timestamp: at,
	})
	if !errors.Is(err, state.ErrInsufficientLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientLiquidity", err)
	}
	if h.eng.Pool().TotalCoverage() != 0 {
		t.Fatal("rejected purchase locked coverage")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	h := newHarness(t)

	buyer := uuid.New()
	startWeek := testWeek
	weekStart := calendar.WeekStart(startWeek)
	at := weekStart.Add(10 * time.Hour) // Monday, before the day-0 close

	h.pushPrice(closePrice, at)
	h.stake(uuid.New(), stakeAmount, at)

	subID := uuid.New()
	h.mustProcess(&event.SubscriptionPurchase{
		PurchaseID: subID, Buyer: buyer, Coverage: 1_000 * oneUnit, ThresholdBp: tierTightBp,
		Weeks: 4, Sequence: h.seq(), Timestamp: at,
	})

	sub, ok := h.eng.Book().GetSubscription(subID)
	if !ok {
		t.Fatal("subscription not recorded")
	}
	if sub.GapsMinted != 1 || sub.TotalGaps() != 20 {
		t.Fatalf("minted %d of %d, want 1 of 20", sub.GapsMinted, sub.TotalGaps())
	}
	if h.eng.Pool().TotalCoverage() != 1_000*oneUnit {
		t.Fatalf("coverage = %d, want one gap locked", h.eng.Pool().TotalCoverage())
	}

	// Second gap (week, day 1) cannot mint before its close.
	day1Close, _ := gapTimes(t, startWeek, 1)
	if err := h.eng.ProcessEvent(&event.GapMint{
		MintID: uuid.New(), SubscriptionID: subID, Caller: uuid.New(),
		Sequence: h.seq(), Timestamp: day1Close.Add(-time.Hour),
	}); !errors.Is(err, state.ErrTooEarly) {
		t.Fatalf("early mint: %v, want ErrTooEarly", err)
	}

	h.pushPrice(closePrice, day1Close)
	h.mustProcess(&event.GapMint{
		MintID: uuid.New(), SubscriptionID: subID, Caller: uuid.New(),
		Sequence: h.seq(), Timestamp: day1Close.Add(time.Minute),
	})
	if sub.GapsMinted != 2 {
		t.Fatalf("minted = %d, want 2", sub.GapsMinted)
	}
	if h.eng.Pool().TotalCoverage() != 2_000*oneUnit {
		t.Fatalf("coverage = %d, want two gaps locked", h.eng.Pool().TotalCoverage())
	}

	// Minted gap policy carries the prepaid per-gap premium and the
	// subscription linkage.
	var minted *state.Policy
	for _, p := range h.eng.Book().AllPolicies() {
		if p.SubscriptionID != nil && p.Week == startWeek && p.Day == 1 {
			minted = p
		}
	}
	if minted == nil {
		t.Fatal("day-1 gap policy missing")
	}
	if minted.Premium != sub.PerGapPremium() {
		t.Fatalf("minted premium = %d, want %d", minted.Premium, sub.PerGapPremium())
	}
}

func TestGapMintAllMintedIsNoOpError(t *testing.T) {
	h := newHarness(t)
	weekStart := calendar.WeekStart(testWeek)
	at := weekStart.Add(10 * time.Hour)

	h.pushPrice(closePrice, at)
	h.stake(uuid.New(), stakeAmount, at)

	subID := uuid.New()
	h.mustProcess(&event.SubscriptionPurchase{
		PurchaseID: subID, Buyer: uuid.New(), Coverage: 100 * oneUnit, ThresholdBp: tierTightBp,
		Weeks: 1, Sequence: h.seq(), Timestamp: at,
	})

	// Mint the remaining four gaps of the single week.
	for day := 1; day < calendar.TradingDays; day++ {
		dayClose, _ := gapTimes(t, testWeek, day)
		h.pushPrice(closePrice, dayClose)
		h.mustProcess(&event.GapMint{
			MintID: uuid.New(), SubscriptionID: subID, Caller: uuid.New(),
			Sequence: h.seq(), Timestamp: dayClose.Add(time.Minute),
		})
	}

	sub, _ := h.eng.Book().GetSubscription(subID)
	coverageBefore := h.eng.Pool().TotalCoverage()

	err := h.eng.ProcessEvent(&event.GapMint{
		MintID: uuid.New(), SubscriptionID: subID, Caller: uuid.New(),
		Sequence: h.seq(), Timestamp: weekStart.Add(10 * 24 * time.Hour),
	})
	if !errors.Is(err, state.ErrAllMinted) {
		t.Fatalf("err = %v, want ErrAllMinted", err)
	}
	if sub.GapsMinted != sub.TotalGaps() || h.eng.Pool().TotalCoverage() != coverageBefore {
		t.Fatal("terminal mint changed state")
	}
}

func TestTransferMovesPayoutAndChargesFee(t *testing.T) {
	h := newHarness(t)
	policyID, open := setupOpenPolicy(t, h)

	p, _ := h.eng.Book().GetPolicy(policyID)
	buyer := p.Buyer
	recipient := uuid.New()
	claimBefore := h.eng.Pool().ClaimReserve()

	h.mustProcess(&event.PolicyTransfer{
		TransferID: uuid.New(), PolicyID: policyID, From: buyer, To: recipient,
		Sequence: h.seq(), Timestamp: open.Add(-time.Hour),
	})

	wantFee := p.Premium * 5 / 100
	if got := h.eng.Pool().ClaimReserve() - claimBefore; got != wantFee {
		t.Fatalf("transfer fee = %d, want %d", got, wantFee)
	}

	// Settle a triggered gap: payout goes to the new owner.
	h.pushPrice(230*oneUnit, open.Add(time.Minute))
	h.approveWeek(testWeek, state.DefaultSplitRatioBp, open.Add(time.Minute))
	if err := h.settle(policyID, open.Add(2*time.Minute)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	var settlement *SettlementResult
	for _, o := range h.drainOutputs() {
		if o.Settlement != nil {
			settlement = o.Settlement
		}
	}
	if settlement.Owner != recipient {
		t.Fatalf("payout owner = %s, want transfer recipient", settlement.Owner)
	}
}

func TestGovernanceRequiresApprover(t *testing.T) {
	h := newHarness(t)
	at := calendar.WeekStart(testWeek)

	stranger := uuid.New()
	cases := []event.Event{
		&event.WeekApprove{ApprovalID: uuid.New(), Actor: stranger, Week: testWeek, SplitRatioBp: 10_000, Sequence: h.seq(), Timestamp: at},
		&event.VolatilityQueue{ChangeID: uuid.New(), Actor: stranger, ValueBp: 12_000, Sequence: h.seq(), Timestamp: at},
		&event.Pause{ActionID: uuid.New(), Actor: stranger, Sequence: h.seq(), Timestamp: at},
		&event.TreasuryUpdate{UpdateID: uuid.New(), Actor: stranger, Treasury: uuid.New(), Sequence: h.seq(), Timestamp: at},
	}
	for _, evt := range cases {
		if err := h.eng.ProcessEvent(evt); !errors.Is(err, state.ErrNotApprover) {
			t.Fatalf("%T: err = %v, want ErrNotApprover", evt, err)
		}
	}
}

func TestVolatilityChangesPricingAfterTimelock(t *testing.T) {
	h := newHarness(t)
	close, _ := gapTimes(t, testWeek, testDay)
	at := close.Add(-40 * time.Hour)

	h.pushPrice(closePrice, at)
	h.stake(uuid.New(), stakeAmount, at)
	base := h.buyPolicy(uuid.New(), coverAmount, tierTightBp, testWeek, testDay, at)

	h.mustProcess(&event.VolatilityQueue{
		ChangeID: uuid.New(), Actor: h.approver, ValueBp: 15_000, Reason: "vol spike",
		Sequence: h.seq(), Timestamp: at,
	})
	if err := h.eng.ProcessEvent(&event.VolatilityExecute{
		ExecuteID: uuid.New(), Actor: h.approver,
		Sequence: h.seq(), Timestamp: at.Add(time.Hour),
	}); !errors.Is(err, state.ErrTimelockNotElapsed) {
		t.Fatalf("early execute: %v", err)
	}
	h.mustProcess(&event.VolatilityExecute{
		ExecuteID: uuid.New(), Actor: h.approver,
		Sequence: h.seq(), Timestamp: at.Add(state.VolatilityTimelock),
	})

	h.pushPrice(closePrice, at.Add(25*time.Hour))
	raised := h.buyPolicy(uuid.New(), coverAmount, tierTightBp, testWeek, 1, at.Add(25*time.Hour))

	basePolicy, _ := h.eng.Book().GetPolicy(base)
	raisedPolicy, _ := h.eng.Book().GetPolicy(raised)
	if raisedPolicy.Premium <= basePolicy.Premium {
		t.Fatalf("premium did not rise with volatility: %d vs %d",
			raisedPolicy.Premium, basePolicy.Premium)
	}
}

func TestExplicitDrainOnEmptyQueue(t *testing.T) {
	h := newHarness(t)
	at := calendar.WeekStart(testWeek)

	err := h.eng.ProcessEvent(&event.QueueDrain{
		DrainID: uuid.New(), Caller: uuid.New(), MaxEntries: 10,
		Sequence: h.seq(), Timestamp: at,
	})
	if !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("err = %v, want ErrQueueEmpty", err)
	}
}

func TestSnapshotRestoreResumesProcessing(t *testing.T) {
	h := newHarness(t)
	policyID, open := setupOpenPolicy(t, h)
	h.pushPrice(closePrice, open.Add(time.Minute))
	h.approveWeek(testWeek, state.DefaultSplitRatioBp, open.Add(time.Minute))

	snap := h.eng.CreateSnapshotState()

	h2 := newHarness(t)
	if err := h2.eng.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	h2.nextSeq = h.nextSeq
	h2.feedSeq = h.feedSeq

	if h2.eng.GetStateHash() != h.eng.GetStateHash() {
		t.Fatal("restored hash chain tip differs")
	}
	if h2.eng.Pool().TotalStaked() != h.eng.Pool().TotalStaked() {
		t.Fatal("restored pool differs")
	}

	// The restored engine settles the carried-over policy.
	if err := h2.settle(policyID, open.Add(2*time.Minute)); err != nil {
		t.Fatalf("settle after restore: %v", err)
	}
	p, _ := h2.eng.Book().GetPolicy(policyID)
	if !p.Settled {
		t.Fatal("policy not settled after restore")
	}
}

func TestStalePriceUpdateIgnored(t *testing.T) {
	h := newHarness(t)
	at := calendar.WeekStart(testWeek)

	h.pushPrice(closePrice, at)
	// Regression: lower feed sequence silently dropped, price retained.
	h.mustProcess(&event.PriceUpdate{Price: 1, PriceSequence: h.feedSeq - 1, Timestamp: at.Add(time.Minute)})

	price, _, err := h.eng.Feed().LatestPrice()
	if err != nil || price != closePrice {
		t.Fatalf("price = %d, %v; stale update applied", price, err)
	}
}
