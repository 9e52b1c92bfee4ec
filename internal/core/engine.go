package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"GapLedger/internal/calendar"
	"GapLedger/internal/event"
	"GapLedger/internal/ledger"
	fpmath "GapLedger/internal/math"
	"GapLedger/internal/observability"
	"GapLedger/internal/pricing"
	"GapLedger/internal/state"

	"github.com/google/uuid"
)

// Engine-level errors. Input-validation and resource errors surface from the
// state and pricing packages; these cover the temporal preconditions the
// engine itself evaluates.
var (
	ErrStaleFeed       = errors.New("core: feed price missing or too old")
	ErrWeekNotApproved = errors.New("core: settlement week not approved and failsafe window open")
	ErrSettleTooEarly  = errors.New("core: gap next-open time has not passed")
	ErrQueueEmpty      = errors.New("core: withdrawal queue is empty")
	ErrInvalidWeek     = errors.New("core: week index out of range")
)

// Explicit queue drains are clamped to this range; automatic drains after
// stake and settle use the upper bound.
const (
	MinDrainEntries = 1
	MaxDrainEntries = 50
)

// Engine is the single-threaded deterministic processor. Every state
// transition flows through ProcessEvent; nothing else mutates the pool,
// the policy book, governance, or the ledger. Time-based preconditions are
// evaluated against the event's versioned timestamp, never the wall clock.
type Engine struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	pool              *state.Pool
	book              *state.PolicyBook
	registry          *state.OwnershipRegistry
	governance        *state.Governance
	feed              *state.FeedState
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// SettlementResult carries the outcome of one settle for projections and
// outbound publication.
type SettlementResult struct {
	PolicyID      uuid.UUID
	Owner         uuid.UUID
	Week          int64
	Day           int
	RecordedClose int64
	AdjustedClose int64
	OpenPrice     int64
	GapBp         int64
	SplitRatioBp  int64
	Payout        int64
	PaidOut       bool
	Failsafe      bool
	Funding       state.PayoutFunding
}

// CoreOutput is one processed event fanned out to persistence and
// projections.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte

	// Set on issuance events, for the policy-history projection.
	Policy *state.Policy

	// Set on PolicySettle events.
	Settlement *SettlementResult

	// Queue payments made by this event (drain, stake, settle).
	Paid []state.PaidWithdrawal

	// Pool scalars after applying this event, for the read model.
	PoolStats state.PoolStats
}

func NewEngine(
	startSequence int64,
	approver, treasury uuid.UUID,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *Engine {
	balanceTracker := ledger.NewBalanceTracker()

	return &Engine{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        ledger.NewJournalGenerator(startSequence),
		validator:         ledger.NewInvariantValidator(balanceTracker),
		pool:              state.NewPool(),
		book:              state.NewPolicyBook(),
		registry:          state.NewOwnershipRegistry(),
		governance:        state.NewGovernance(approver, treasury),
		feed:              state.NewFeedState(),
		idempotency:       NewIdempotencyChecker(1_000_000, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent runs the full pipeline: idempotency, ordering, dispatch,
// journal application, invariant post-checks, state hashing, and fan-out.
func (c *Engine) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Price updates carry the feed's own sequence; regressions are dropped
	// silently so a delayed relay replay cannot roll the price back. All
	// command events share the global ordered partition.
	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if c.sequenceValidator.FeedSequenceStale(priceEvt.PriceSequence) {
			return nil
		}
	} else {
		if err := c.sequenceValidator.ValidateSequence(partitionGlobal, evt.SourceSequence(), isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	result, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	if len(result.batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(result.batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(result.batch); err != nil {
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	stateDigest := c.computeStateDigest(result.batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	output := CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       c.sequence,
			IdempotencyKey: idempotencyKey,
			EventType:      evt.EventType(),
			Timestamp:      evt.OccurredAt(),
			SourceSequence: evt.SourceSequence(),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		},
		Batch:      result.batch,
		StateDelta: stateDigest,
		Policy:     result.policy,
		Settlement: result.settlement,
		Paid:       result.paid,
		PoolStats:  c.pool.Stats(),
	}
	c.sequence++

	// Persistence gets a blocking send: the core stalls rather than lose an
	// event. Projections get a non-blocking send and rebuild from the event
	// log if they fall behind.
	c.persistChan <- output
	select {
	case c.projectionChan <- output:
	default:
	}

	// The failsafe path must be visible to operators, not just implied by a
	// settlement that happened without an approval on record.
	if result.settlement != nil && result.settlement.Failsafe {
		c.emitFailsafeApplied(result.settlement, evt.OccurredAt())
	}

	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		if result.policy != nil {
			c.metrics.PoliciesIssued.WithLabelValues(eventType).Inc()
			c.metrics.PremiumVolume.Add(float64(result.policy.Premium))
		}
		if result.settlement != nil && result.settlement.Payout > 0 {
			c.metrics.PayoutVolume.Add(float64(result.settlement.Payout))
		}
		if len(result.paid) > 0 {
			c.metrics.WithdrawalsPaid.WithLabelValues("drain").Add(float64(len(result.paid)))
		}
		c.observePoolGauges()
	}

	return nil
}

// dispatchResult bundles a handler's outputs.
type dispatchResult struct {
	batch      *ledger.Batch
	policy     *state.Policy
	settlement *SettlementResult
	paid       []state.PaidWithdrawal
}

func (c *Engine) dispatchEvent(evt event.Event) (dispatchResult, error) {
	switch e := evt.(type) {
	case *event.StakeDeposit:
		return c.handleStakeDeposit(e)
	case *event.WithdrawalRequest:
		return c.handleWithdrawalRequest(e)
	case *event.WithdrawalCancel:
		return c.handleWithdrawalCancel(e)
	case *event.QueueDrain:
		return c.handleQueueDrain(e)
	case *event.PolicyPurchase:
		return c.handlePolicyPurchase(e)
	case *event.PolicyPurchaseLegacy:
		return c.handlePolicyPurchaseLegacy(e)
	case *event.SubscriptionPurchase:
		return c.handleSubscriptionPurchase(e)
	case *event.GapMint:
		return c.handleGapMint(e)
	case *event.PolicyTransfer:
		return c.handlePolicyTransfer(e)
	case *event.PolicySettle:
		return c.handlePolicySettle(e)
	case *event.PriceUpdate:
		return c.handlePriceUpdate(e)
	case *event.WeekApprove:
		return c.handleWeekApprove(e)
	case *event.VolatilityQueue:
		return c.handleVolatilityQueue(e)
	case *event.VolatilityExecute:
		return c.handleVolatilityExecute(e)
	case *event.VolatilityCancel:
		return c.handleVolatilityCancel(e)
	case *event.Pause:
		return c.handlePause(e)
	case *event.Unpause:
		return c.handleUnpause(e)
	case *event.TreasuryUpdate:
		return c.handleTreasuryUpdate(e)
	default:
		return dispatchResult{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

// === Pool operations ===

func (c *Engine) handleStakeDeposit(evt *event.StakeDeposit) (dispatchResult, error) {
	if c.governance.Paused() {
		return dispatchResult{}, state.ErrPaused
	}
	if err := c.pool.Stake(evt.Staker, evt.Amount); err != nil {
		return dispatchResult{}, err
	}

	batch := c.journalGen.GenerateStake(evt.Staker, evt.IdempotencyKey(), evt.Amount, evt.Timestamp.UnixMicro())
	c.pool.RecordLiquidityFreed(evt.Timestamp)

	// New liquidity may unblock queued exits.
	paid := c.drainInto(batch, MaxDrainEntries)

	return dispatchResult{batch: batch, paid: paid}, nil
}

func (c *Engine) handleWithdrawalRequest(evt *event.WithdrawalRequest) (dispatchResult, error) {
	// Withdrawal stays open during a pause: stakers must always be able
	// to exit.
	req := &state.WithdrawalRequest{
		RequestID:   evt.RequestID,
		Staker:      evt.Staker,
		Amount:      evt.Amount,
		RequestedAt: evt.Timestamp,
	}
	outcome, err := c.pool.RequestWithdrawal(req)
	if err != nil {
		return dispatchResult{}, err
	}

	var batch *ledger.Batch
	if outcome.Immediate {
		batch = c.journalGen.GenerateWithdrawalImmediate(evt.Staker, evt.IdempotencyKey(), evt.Amount, evt.Timestamp.UnixMicro())
		if c.metrics != nil {
			c.metrics.WithdrawalsPaid.WithLabelValues("immediate").Inc()
		}
	} else {
		batch = c.journalGen.GenerateWithdrawalQueued(evt.Staker, evt.IdempotencyKey(), evt.Amount, evt.Timestamp.UnixMicro())
	}
	return dispatchResult{batch: batch}, nil
}

func (c *Engine) handleWithdrawalCancel(evt *event.WithdrawalCancel) (dispatchResult, error) {
	amount, err := c.pool.CancelWithdrawal(evt.RequestID, evt.Staker)
	if err != nil {
		return dispatchResult{}, err
	}
	batch := c.journalGen.GenerateWithdrawalCancelled(evt.Staker, evt.IdempotencyKey(), amount, evt.Timestamp.UnixMicro())
	return dispatchResult{batch: batch}, nil
}

func (c *Engine) handleQueueDrain(evt *event.QueueDrain) (dispatchResult, error) {
	if c.pool.QueueDepth() == 0 {
		return dispatchResult{}, ErrQueueEmpty
	}

	max := evt.MaxEntries
	if max < MinDrainEntries {
		max = MinDrainEntries
	}
	if max > MaxDrainEntries {
		max = MaxDrainEntries
	}

	batch := c.journalGen.EmptyBatch(evt.IdempotencyKey(), evt.Timestamp.UnixMicro())
	paid := c.drainInto(batch, max)
	return dispatchResult{batch: batch, paid: paid}, nil
}

// drainInto pays what fits from the queue head and appends the payment legs
// to the event's batch.
func (c *Engine) drainInto(batch *ledger.Batch, maxEntries int) []state.PaidWithdrawal {
	paid := c.pool.Drain(maxEntries)
	for _, p := range paid {
		c.journalGen.AppendWithdrawalPaid(batch, p.Staker, p.Amount)
	}
	return paid
}

// === Issuance ===

func (c *Engine) handlePolicyPurchase(evt *event.PolicyPurchase) (dispatchResult, error) {
	if evt.Week < 0 {
		return dispatchResult{}, fmt.Errorf("%w: %d", ErrInvalidWeek, evt.Week)
	}
	if _, err := calendar.MarketClose(evt.Week, evt.Day); err != nil {
		return dispatchResult{}, err
	}
	return c.issuePaidPolicy(evt.PurchaseID, evt.Buyer, evt.Coverage, evt.ThresholdBp,
		evt.Week, evt.Day, state.AdvanceFreshness, evt.Timestamp, evt.IdempotencyKey())
}

// handlePolicyPurchaseLegacy is the two-argument convenience path: it always
// targets the current week's final gap and demands a much fresher feed price,
// since that gap opens within hours.
func (c *Engine) handlePolicyPurchaseLegacy(evt *event.PolicyPurchaseLegacy) (dispatchResult, error) {
	week, err := calendar.WeekNumber(evt.Timestamp)
	if err != nil {
		return dispatchResult{}, err
	}
	return c.issuePaidPolicy(evt.PurchaseID, evt.Buyer, evt.Coverage, evt.ThresholdBp,
		week, calendar.TradingDays-1, state.SameWeekFreshness, evt.Timestamp, evt.IdempotencyKey())
}

// issuePaidPolicy runs the full single-gap issuance: pause gate, feed
// freshness, premium quote, coverage lock, four-way premium allocation,
// policy record, ownership mint.
func (c *Engine) issuePaidPolicy(
	policyID, buyer uuid.UUID,
	coverage, thresholdBp, week int64, day int,
	maxFeedAge time.Duration,
	ts time.Time,
	eventRef string,
) (dispatchResult, error) {
	if c.governance.Paused() {
		return dispatchResult{}, state.ErrPaused
	}
	price, err := c.freshPrice(ts, maxFeedAge)
	if err != nil {
		return dispatchResult{}, err
	}

	quote, err := pricing.QuotePremium(coverage, thresholdBp,
		c.pool.TotalCoverage(), c.pool.TotalStaked(), c.governance.VolatilityBp())
	if err != nil {
		return dispatchResult{}, err
	}
	if err := c.pool.LockCoverage(coverage); err != nil {
		return dispatchResult{}, err
	}

	split := ledger.SplitPremium(quote.Premium)
	c.pool.AddClaimReserve(split.ClaimReserve)
	c.pool.AddBlackSwanReserve(split.BlackSwan)
	batch := c.journalGen.GeneratePremiumAllocation(eventRef, split, ts.UnixMicro())

	policy := &state.Policy{
		PolicyID:      policyID,
		Buyer:         buyer,
		Coverage:      coverage,
		ThresholdBp:   thresholdBp,
		Premium:       quote.Premium,
		IssuedAt:      ts,
		RecordedClose: price,
		Week:          week,
		Day:           day,
	}
	c.book.AddPolicy(policy)
	if err := c.registry.Mint(policy.PolicyID, buyer); err != nil {
		panic(fmt.Sprintf("FATAL: ownership mint for fresh policy: %v", err))
	}

	return dispatchResult{batch: batch, policy: policy}, nil
}

func (c *Engine) handleSubscriptionPurchase(evt *event.SubscriptionPurchase) (dispatchResult, error) {
	if c.governance.Paused() {
		return dispatchResult{}, state.ErrPaused
	}
	discountBp, err := state.PlanDiscountBp(evt.Weeks)
	if err != nil {
		return dispatchResult{}, err
	}
	price, err := c.freshPrice(evt.Timestamp, state.AdvanceFreshness)
	if err != nil {
		return dispatchResult{}, err
	}
	startWeek, err := calendar.WeekNumber(evt.Timestamp)
	if err != nil {
		return dispatchResult{}, err
	}

	quote, err := pricing.QuotePremium(evt.Coverage, evt.ThresholdBp,
		c.pool.TotalCoverage(), c.pool.TotalStaked(), c.governance.VolatilityBp())
	if err != nil {
		return dispatchResult{}, err
	}

	// One week covers five gaps; the plan discount applies to the weekly
	// total and the full discounted amount is charged up front.
	weekly := fpmath.ApplyBp(quote.Premium*calendar.TradingDays, fpmath.BasisPointScale-discountBp)
	total := weekly * int64(evt.Weeks)

	// Coverage is locked per gap at mint time; only the first gap locks now.
	if err := c.pool.LockCoverage(evt.Coverage); err != nil {
		return dispatchResult{}, err
	}

	split := ledger.SplitPremium(total)
	c.pool.AddClaimReserve(split.ClaimReserve)
	c.pool.AddBlackSwanReserve(split.BlackSwan)
	batch := c.journalGen.GeneratePremiumAllocation(evt.IdempotencyKey(), split, evt.Timestamp.UnixMicro())

	sub := &state.Subscription{
		SubscriptionID: evt.PurchaseID,
		Owner:          evt.Buyer,
		Coverage:       evt.Coverage,
		ThresholdBp:    evt.ThresholdBp,
		WeeklyPremium:  weekly,
		StartWeek:      startWeek,
		TotalWeeks:     evt.Weeks,
	}
	c.book.AddSubscription(sub)

	policy := c.mintSubscriptionGap(sub, price, evt.Timestamp)
	return dispatchResult{batch: batch, policy: policy}, nil
}

// handleGapMint progressively mints the next prepaid gap of a subscription.
// Permissionless; the premium was collected at purchase, so no money moves.
func (c *Engine) handleGapMint(evt *event.GapMint) (dispatchResult, error) {
	if c.governance.Paused() {
		return dispatchResult{}, state.ErrPaused
	}
	sub, ok := c.book.GetSubscription(evt.SubscriptionID)
	if !ok {
		return dispatchResult{}, fmt.Errorf("%w: %s", state.ErrUnknownSubscription, evt.SubscriptionID)
	}
	if sub.GapsMinted >= sub.TotalGaps() {
		return dispatchResult{}, state.ErrAllMinted
	}

	week, day := sub.NextGap()
	close, err := calendar.MarketClose(week, day)
	if err != nil {
		return dispatchResult{}, err
	}
	if evt.Timestamp.Before(close) {
		return dispatchResult{}, fmt.Errorf("%w: gap (%d,%d) closes at %s",
			state.ErrTooEarly, week, day, close.Format(time.RFC3339))
	}

	price, err := c.freshPrice(evt.Timestamp, state.AdvanceFreshness)
	if err != nil {
		return dispatchResult{}, err
	}
	if err := c.pool.LockCoverage(sub.Coverage); err != nil {
		return dispatchResult{}, err
	}

	policy := c.mintSubscriptionGap(sub, price, evt.Timestamp)
	batch := c.journalGen.EmptyBatch(evt.IdempotencyKey(), evt.Timestamp.UnixMicro())
	return dispatchResult{batch: batch, policy: policy}, nil
}

// mintSubscriptionGap creates the policy record for the subscription's next
// gap and advances the mint counter. The caller has already locked coverage.
func (c *Engine) mintSubscriptionGap(sub *state.Subscription, price int64, ts time.Time) *state.Policy {
	week, day := sub.NextGap()
	subID := sub.SubscriptionID

	// Deterministic per-gap id so replays and duplicates converge.
	policyID := uuid.NewSHA1(sub.SubscriptionID, []byte(fmt.Sprintf("gap:%d", sub.GapsMinted)))

	policy := &state.Policy{
		PolicyID:       policyID,
		Buyer:          sub.Owner,
		Coverage:       sub.Coverage,
		ThresholdBp:    sub.ThresholdBp,
		Premium:        sub.PerGapPremium(),
		IssuedAt:       ts,
		RecordedClose:  price,
		Week:           week,
		Day:            day,
		SubscriptionID: &subID,
	}
	c.book.AddPolicy(policy)
	if err := c.registry.Mint(policy.PolicyID, sub.Owner); err != nil {
		panic(fmt.Sprintf("FATAL: ownership mint for subscription gap: %v", err))
	}
	sub.GapsMinted++
	return policy
}

// === Transfer and settlement ===

func (c *Engine) handlePolicyTransfer(evt *event.PolicyTransfer) (dispatchResult, error) {
	policy, ok := c.book.GetPolicy(evt.PolicyID)
	if !ok {
		return dispatchResult{}, fmt.Errorf("%w: %s", state.ErrUnknownPolicy, evt.PolicyID)
	}
	if err := c.registry.Transfer(evt.PolicyID, evt.From, evt.To); err != nil {
		return dispatchResult{}, err
	}

	// The transferring party pays the fee on top, into the claim reserve.
	fee := fpmath.ApplyBp(policy.Premium, ledger.TransferFeeBp)
	c.pool.AddClaimReserve(fee)
	batch := c.journalGen.GenerateTransferFee(evt.IdempotencyKey(), fee, evt.Timestamp.UnixMicro())

	return dispatchResult{batch: batch}, nil
}

func (c *Engine) handlePolicySettle(evt *event.PolicySettle) (dispatchResult, error) {
	policy, ok := c.book.GetPolicy(evt.PolicyID)
	if !ok {
		return dispatchResult{}, fmt.Errorf("%w: %s", state.ErrUnknownPolicy, evt.PolicyID)
	}
	if policy.Settled {
		return dispatchResult{}, fmt.Errorf("%w: %s", state.ErrAlreadySettled, evt.PolicyID)
	}

	nextOpen, err := calendar.NextMarketOpen(policy.Week, policy.Day)
	if err != nil {
		return dispatchResult{}, err
	}
	if evt.Timestamp.Before(nextOpen) {
		return dispatchResult{}, fmt.Errorf("%w: opens at %s", ErrSettleTooEarly, nextOpen.Format(time.RFC3339))
	}

	ratioBp, approved, failsafe := c.governance.EffectiveApproval(
		policy.Week, calendar.WeekStart(policy.Week), evt.Timestamp)
	if !approved {
		return dispatchResult{}, fmt.Errorf("%w: week %d", ErrWeekNotApproved, policy.Week)
	}

	// The settlement price must be an observation from at or after the open,
	// not a leftover pre-gap tick.
	openPrice, observedAt, err := c.feed.LatestPrice()
	if err != nil {
		return dispatchResult{}, fmt.Errorf("%w: %v", ErrStaleFeed, err)
	}
	if observedAt.Before(nextOpen) {
		return dispatchResult{}, fmt.Errorf("%w: last observation %s precedes open %s",
			ErrStaleFeed, observedAt.Format(time.RFC3339), nextOpen.Format(time.RFC3339))
	}

	adjustedClose := fpmath.ApplyBp(policy.RecordedClose, ratioBp)
	gapBp := fpmath.GapBp(adjustedClose, openPrice)

	var payout int64
	if gapBp >= policy.ThresholdBp {
		payout = policy.Coverage
	}

	var funding state.PayoutFunding
	if payout > 0 {
		funding, err = c.pool.FundPayout(payout)
		if err != nil {
			return dispatchResult{}, err
		}
	}

	c.pool.ReleaseCoverage(policy.Coverage)
	if err := c.book.MarkSettled(policy.PolicyID, payout > 0); err != nil {
		panic(fmt.Sprintf("FATAL: settle flag after precondition check: %v", err))
	}

	owner, ok := c.registry.OwnerOf(policy.PolicyID)
	if !ok {
		owner = policy.Buyer
	}

	var batch *ledger.Batch
	if payout > 0 {
		batch = c.journalGen.GenerateClaimPayout(evt.IdempotencyKey(),
			funding.FromStaked, funding.FromBlackSwan, funding.FromClaimReserve,
			evt.Timestamp.UnixMicro())
	} else {
		batch = c.journalGen.EmptyBatch(evt.IdempotencyKey(), evt.Timestamp.UnixMicro())
	}

	// Released coverage frees liquidity for the exit queue.
	c.pool.RecordLiquidityFreed(evt.Timestamp)
	paid := c.drainInto(batch, MaxDrainEntries)

	result := &SettlementResult{
		PolicyID:      policy.PolicyID,
		Owner:         owner,
		Week:          policy.Week,
		Day:           policy.Day,
		RecordedClose: policy.RecordedClose,
		AdjustedClose: adjustedClose,
		OpenPrice:     openPrice,
		GapBp:         gapBp,
		SplitRatioBp:  ratioBp,
		Payout:        payout,
		PaidOut:       payout > 0,
		Failsafe:      failsafe,
		Funding:       funding,
	}

	if c.metrics != nil {
		outcome := "unpaid"
		if payout > 0 {
			outcome = "paid"
		}
		c.metrics.SettlementsTotal.WithLabelValues(outcome).Inc()
		if failsafe {
			c.metrics.FailsafeSettlements.Inc()
		}
	}

	return dispatchResult{batch: batch, settlement: result, paid: paid}, nil
}

// === Feed and governance ===

func (c *Engine) handlePriceUpdate(evt *event.PriceUpdate) (dispatchResult, error) {
	err := c.feed.Update(evt.Price, uint64(evt.PriceSequence), evt.Timestamp)
	if err != nil {
		return dispatchResult{}, err
	}
	c.sequenceValidator.AdvanceFeedSequence(evt.PriceSequence)
	batch := c.journalGen.EmptyBatch(evt.IdempotencyKey(), evt.Timestamp.UnixMicro())
	return dispatchResult{batch: batch}, nil
}

func (c *Engine) handleWeekApprove(evt *event.WeekApprove) (dispatchResult, error) {
	if err := c.governance.CheckApprover(evt.Actor); err != nil {
		return dispatchResult{}, err
	}
	ratio := evt.SplitRatioBp
	if ratio == 0 {
		ratio = state.DefaultSplitRatioBp
	}
	if err := c.governance.ApproveWeek(evt.Week, ratio, evt.Timestamp, evt.Reason); err != nil {
		return dispatchResult{}, err
	}
	return c.stateOnly(evt.IdempotencyKey(), evt.Timestamp)
}

func (c *Engine) handleVolatilityQueue(evt *event.VolatilityQueue) (dispatchResult, error) {
	if err := c.governance.CheckApprover(evt.Actor); err != nil {
		return dispatchResult{}, err
	}
	if err := c.governance.QueueVolatility(evt.ValueBp, evt.Timestamp, evt.Reason); err != nil {
		return dispatchResult{}, err
	}
	return c.stateOnly(evt.IdempotencyKey(), evt.Timestamp)
}

func (c *Engine) handleVolatilityExecute(evt *event.VolatilityExecute) (dispatchResult, error) {
	if err := c.governance.CheckApprover(evt.Actor); err != nil {
		return dispatchResult{}, err
	}
	if _, err := c.governance.ExecuteVolatility(evt.Timestamp); err != nil {
		return dispatchResult{}, err
	}
	return c.stateOnly(evt.IdempotencyKey(), evt.Timestamp)
}

func (c *Engine) handleVolatilityCancel(evt *event.VolatilityCancel) (dispatchResult, error) {
	if err := c.governance.CheckApprover(evt.Actor); err != nil {
		return dispatchResult{}, err
	}
	if err := c.governance.CancelVolatility(); err != nil {
		return dispatchResult{}, err
	}
	return c.stateOnly(evt.IdempotencyKey(), evt.Timestamp)
}

func (c *Engine) handlePause(evt *event.Pause) (dispatchResult, error) {
	if err := c.governance.CheckApprover(evt.Actor); err != nil {
		return dispatchResult{}, err
	}
	c.governance.Pause()
	return c.stateOnly(evt.IdempotencyKey(), evt.Timestamp)
}

func (c *Engine) handleUnpause(evt *event.Unpause) (dispatchResult, error) {
	if err := c.governance.CheckApprover(evt.Actor); err != nil {
		return dispatchResult{}, err
	}
	c.governance.Unpause()
	return c.stateOnly(evt.IdempotencyKey(), evt.Timestamp)
}

func (c *Engine) handleTreasuryUpdate(evt *event.TreasuryUpdate) (dispatchResult, error) {
	if err := c.governance.CheckApprover(evt.Actor); err != nil {
		return dispatchResult{}, err
	}
	if err := c.governance.SetTreasury(evt.Treasury); err != nil {
		return dispatchResult{}, err
	}
	return c.stateOnly(evt.IdempotencyKey(), evt.Timestamp)
}

func (c *Engine) stateOnly(eventRef string, ts time.Time) (dispatchResult, error) {
	return dispatchResult{batch: c.journalGen.EmptyBatch(eventRef, ts.UnixMicro())}, nil
}

// freshPrice returns the latest feed price, rejecting missing or aged
// observations.
func (c *Engine) freshPrice(now time.Time, maxAge time.Duration) (int64, error) {
	price, observedAt, err := c.feed.LatestPrice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStaleFeed, err)
	}
	if now.Sub(observedAt) > maxAge {
		return 0, fmt.Errorf("%w: observed %s, bound %s", ErrStaleFeed,
			observedAt.Format(time.RFC3339), maxAge)
	}
	return price, nil
}

// emitFailsafeApplied publishes a derived envelope recording that the 48h
// failsafe substituted for a missing governance approval. Allocates its own
// sequence in the event log.
func (c *Engine) emitFailsafeApplied(result *SettlementResult, ts time.Time) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}

	seq := c.sequence
	c.sequence++

	stateDigest := c.computeStateDigest(nil)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(seq, stateDigest)

	output := CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       seq,
			IdempotencyKey: fmt.Sprintf("failsafe:%s", result.PolicyID),
			EventType:      event.EventTypeFailsafeApplied,
			Timestamp:      ts,
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		},
		Settlement: result,
		PoolStats:  c.pool.Stats(),
	}

	c.persistChan <- output
	select {
	case c.projectionChan <- output:
	default:
	}
}

// === Invariants and digest ===

// postCheckInvariants runs after every applied batch. Violations are
// programming errors, not rejectable inputs, so the caller panics.
func (c *Engine) postCheckInvariants(evt event.Event) error {
	switch evt.(type) {
	case *event.PolicyPurchase, *event.PolicyPurchaseLegacy,
		*event.SubscriptionPurchase, *event.GapMint:
		// Solvency bound: issuance must never lock more coverage than
		// staked capital backs.
		if c.pool.TotalCoverage() > c.pool.TotalStaked() {
			return fmt.Errorf("coverage %d exceeds staked %d",
				c.pool.TotalCoverage(), c.pool.TotalStaked())
		}

	case *event.PolicySettle:
		if err := c.validator.ValidateReservesNonNegative(); err != nil {
			return err
		}
		// The pool aggregate and the ledger must agree on both reserves.
		asset := ledger.QuoteAsset()
		if got := c.balanceTracker.GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemClaimReserve, asset)); got != c.pool.ClaimReserve() {
			return fmt.Errorf("claim reserve drift: ledger %d, pool %d", got, c.pool.ClaimReserve())
		}
		if got := c.balanceTracker.GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemBlackSwanReserve, asset)); got != c.pool.BlackSwanReserve() {
			return fmt.Errorf("black swan reserve drift: ledger %d, pool %d", got, c.pool.BlackSwanReserve())
		}
	}

	if c.pool.TotalStaked() < 0 || c.pool.TotalCoverage() < 0 {
		return fmt.Errorf("negative pool totals: staked %d, coverage %d",
			c.pool.TotalStaked(), c.pool.TotalCoverage())
	}

	// Periodic zero-sum sweep over the whole ledger.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balanceTracker.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("global balance non-zero for asset %d: %d (at seq %d)",
					assetID, total, c.sequence)
			}
		}
	}

	return nil
}

// computeStateDigest builds the canonical bytes hashed into the state chain:
// pool scalars first, then every account the batch touched, sorted by path.
func (c *Engine) computeStateDigest(batch *ledger.Batch) []byte {
	digest := make([]byte, 0, 256)
	digest = appendInt64LE(digest, c.pool.TotalStaked())
	digest = appendInt64LE(digest, c.pool.TotalCoverage())
	digest = appendInt64LE(digest, c.pool.ClaimReserve())
	digest = appendInt64LE(digest, c.pool.BlackSwanReserve())

	if batch == nil {
		return digest
	}

	affected := make(map[ledger.AccountKey]bool)
	for _, j := range batch.Journals {
		affected[j.DebitAccount] = true
		affected[j.CreditAccount] = true
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, c.balanceTracker.GetBalance(key))
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func (c *Engine) observePoolGauges() {
	c.metrics.PoolStaked.Set(float64(c.pool.TotalStaked()))
	c.metrics.PoolCoverage.Set(float64(c.pool.TotalCoverage()))
	c.metrics.ClaimReserve.Set(float64(c.pool.ClaimReserve()))
	c.metrics.BlackSwanReserve.Set(float64(c.pool.BlackSwanReserve()))
	c.metrics.QueueDepth.Set(float64(c.pool.QueueDepth()))
	c.metrics.QueuePendingAmount.Set(float64(c.pool.PendingAmount()))
}

// === Read accessors for the query layer ===

// Pool exposes the aggregate for side-effect-free reads. Read from the query
// goroutine only via the serialized command path or accept torn reads on
// monotonic counters; the HTTP layer routes reads through the query service.
func (c *Engine) Pool() *state.Pool            { return c.pool }
func (c *Engine) Book() *state.PolicyBook      { return c.book }
func (c *Engine) Governance() *state.Governance { return c.governance }
func (c *Engine) Feed() *state.FeedState        { return c.feed }

// GetSequence returns the next global sequence to assign.
func (c *Engine) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the chain tip.
func (c *Engine) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// === Snapshot support ===

// SnapshotState is the full serializable in-memory state.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Pool            *state.PoolSnapshot
	Policies        []*state.Policy
	Subscriptions   []*state.Subscription
	Owners          map[uuid.UUID]uuid.UUID
	Governance      state.GovernanceSnapshot
	Feed            state.FeedSnapshot
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// CreateSnapshotState captures current in-memory state for persistence.
func (c *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Pool:            c.pool.Snapshot(),
		Policies:        c.book.AllPolicies(),
		Subscriptions:   c.book.AllSubscriptions(),
		Owners:          c.registry.Snapshot(),
		Governance:      c.governance.Snapshot(),
		Feed:            c.feed.Snapshot(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// RestoreFromSnapshot loads a snapshot; the caller then replays the event
// log tail.
func (c *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)

	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	pool, err := state.RestorePool(snap.Pool)
	if err != nil {
		return fmt.Errorf("restore pool: %w", err)
	}
	c.pool = pool

	c.book = state.NewPolicyBook()
	for _, p := range snap.Policies {
		c.book.AddPolicy(p)
	}
	for _, s := range snap.Subscriptions {
		c.book.AddSubscription(s)
	}

	c.registry = state.RestoreRegistry(snap.Owners)
	c.governance = state.RestoreGovernance(snap.Governance)
	c.feed = state.RestoreFeed(snap.Feed)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}
	c.journalGen.SetSequence(snap.Sequence)
	return nil
}

// WarmLRU preloads recent idempotency keys so restarts avoid cold-path
// database lookups.
func (c *Engine) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}
