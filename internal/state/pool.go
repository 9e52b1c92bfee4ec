package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount         = errors.New("pool: amount must be positive")
	ErrInsufficientBalance   = errors.New("pool: amount exceeds staker balance")
	ErrInsufficientLiquidity = errors.New("pool: coverage would exceed staked capital")
	ErrInsolvent             = errors.New("pool: reserves insufficient to honor payout")
	ErrUnknownRequest        = errors.New("pool: unknown withdrawal request")
	ErrNotRequestOwner       = errors.New("pool: caller does not own this request")
	ErrAlreadyProcessed      = errors.New("pool: request already processed")
)

// WithdrawalRequest is one entry in the FIFO exit queue. Entries are never
// removed; the head pointer skips past processed ones.
type WithdrawalRequest struct {
	RequestID   uuid.UUID
	Staker      uuid.UUID
	Amount      int64
	RequestedAt time.Time
	Processed   bool
}

// Pool is the singleton liquidity aggregate: staked capital, locked coverage,
// the two reserve buffers, per-staker balances and the withdrawal queue.
// Holds the solvency invariant totalCoverage <= totalStaked after every
// issuance. Not thread-safe; mutated only by the single-threaded core.
type Pool struct {
	totalStaked      int64
	totalCoverage    int64
	claimReserve     int64
	blackSwanReserve int64

	balances map[uuid.UUID]int64 // staked balance, including queued reservations
	reserved map[uuid.UUID]int64 // portion of balance reserved in the queue

	queue []*WithdrawalRequest
	byID  map[uuid.UUID]int
	head  int

	// Liquidity-freeing cadence, for queue wait estimates.
	lastFreedAt      time.Time
	freedEvents      int64
	freedIntervalSum time.Duration
}

func NewPool() *Pool {
	return &Pool{
		balances: make(map[uuid.UUID]int64),
		reserved: make(map[uuid.UUID]int64),
		byID:     make(map[uuid.UUID]int),
	}
}

// === Accessors ===

func (p *Pool) TotalStaked() int64      { return p.totalStaked }
func (p *Pool) TotalCoverage() int64    { return p.totalCoverage }
func (p *Pool) ClaimReserve() int64     { return p.claimReserve }
func (p *Pool) BlackSwanReserve() int64 { return p.blackSwanReserve }

// FreeLiquidity is staked capital not locked as coverage: the ceiling for
// immediate withdrawal.
func (p *Pool) FreeLiquidity() int64 {
	return p.totalStaked - p.totalCoverage
}

// PoolStats is a point-in-time scalar summary for read models.
type PoolStats struct {
	TotalStaked      int64 `json:"total_staked"`
	TotalCoverage    int64 `json:"total_coverage"`
	ClaimReserve     int64 `json:"claim_reserve"`
	BlackSwanReserve int64 `json:"black_swan_reserve"`
	QueueDepth       int   `json:"queue_depth"`
	PendingAmount    int64 `json:"pending_amount"`
	FreeLiquidity    int64 `json:"free_liquidity"`
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		TotalStaked:      p.totalStaked,
		TotalCoverage:    p.totalCoverage,
		ClaimReserve:     p.claimReserve,
		BlackSwanReserve: p.blackSwanReserve,
		QueueDepth:       p.QueueDepth(),
		PendingAmount:    p.PendingAmount(),
		FreeLiquidity:    p.FreeLiquidity(),
	}
}

// StakerBalance returns a staker's full balance, including queued reservations.
func (p *Pool) StakerBalance(staker uuid.UUID) int64 {
	return p.balances[staker]
}

// StakerAvailable returns the balance a staker can still request against.
func (p *Pool) StakerAvailable(staker uuid.UUID) int64 {
	return p.balances[staker] - p.reserved[staker]
}

// === Staking ===

// Stake credits a staker and the pool total. The emergency-pause check
// belongs to the engine; the pool only validates the amount.
func (p *Pool) Stake(staker uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	p.balances[staker] += amount
	p.totalStaked += amount
	return nil
}

// === Coverage locking ===

// LockCoverage reserves coverage for a new policy. Fails when the solvency
// invariant would break; issuance must never be allowed to violate it.
func (p *Pool) LockCoverage(coverage int64) error {
	if p.totalCoverage+coverage > p.totalStaked {
		return fmt.Errorf("%w: coverage %d + %d > staked %d",
			ErrInsufficientLiquidity, p.totalCoverage, coverage, p.totalStaked)
	}
	p.totalCoverage += coverage
	return nil
}

// ReleaseCoverage frees locked coverage at settlement.
func (p *Pool) ReleaseCoverage(coverage int64) {
	p.totalCoverage -= coverage
	if p.totalCoverage < 0 {
		p.totalCoverage = 0
	}
}

// === Premium and reserves ===

// AddClaimReserve credits the claim reserve (premium share or transfer fee).
func (p *Pool) AddClaimReserve(amount int64) {
	p.claimReserve += amount
}

// AddBlackSwanReserve credits the black-swan reserve (premium share only).
func (p *Pool) AddBlackSwanReserve(amount int64) {
	p.blackSwanReserve += amount
}

// PayoutFunding is the three-way sourcing of one settled payout.
type PayoutFunding struct {
	FromStaked       int64
	FromBlackSwan    int64
	FromClaimReserve int64
}

// FundPayout sources a payout: staked capital first, then the black-swan
// reserve, then the claim reserve. Returns ErrInsolvent without mutating
// anything when both reserves together cannot cover the shortfall.
func (p *Pool) FundPayout(payout int64) (PayoutFunding, error) {
	fromStaked := payout
	if p.totalStaked < fromStaked {
		fromStaked = p.totalStaked
	}

	shortfall := payout - fromStaked
	fromSwan := shortfall
	if p.blackSwanReserve < fromSwan {
		fromSwan = p.blackSwanReserve
	}

	fromClaim := shortfall - fromSwan
	if p.claimReserve < fromClaim {
		return PayoutFunding{}, fmt.Errorf("%w: payout %d, staked %d, reserves %d+%d",
			ErrInsolvent, payout, p.totalStaked, p.blackSwanReserve, p.claimReserve)
	}

	p.totalStaked -= fromStaked
	p.blackSwanReserve -= fromSwan
	p.claimReserve -= fromClaim

	return PayoutFunding{
		FromStaked:       fromStaked,
		FromBlackSwan:    fromSwan,
		FromClaimReserve: fromClaim,
	}, nil
}

// === Withdrawal queue ===

// WithdrawalOutcome describes how a withdrawal request was handled.
type WithdrawalOutcome struct {
	Immediate     bool
	QueuePosition int           // pending entries ahead, when queued
	EstimatedWait time.Duration // position x average liquidity-freeing interval
}

// RequestWithdrawal pays immediately when the amount fits inside free
// liquidity, otherwise reserves the amount and appends to the FIFO queue.
func (p *Pool) RequestWithdrawal(req *WithdrawalRequest) (WithdrawalOutcome, error) {
	if req.Amount <= 0 {
		return WithdrawalOutcome{}, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}
	if req.Amount > p.StakerAvailable(req.Staker) {
		return WithdrawalOutcome{}, fmt.Errorf("%w: requested %d, available %d",
			ErrInsufficientBalance, req.Amount, p.StakerAvailable(req.Staker))
	}

	// A request record is only created when liquidity is short; immediate
	// payments never enter the queue.
	if req.Amount <= p.FreeLiquidity() {
		p.balances[req.Staker] -= req.Amount
		p.totalStaked -= req.Amount
		req.Processed = true
		return WithdrawalOutcome{Immediate: true}, nil
	}

	position := p.pendingCount()
	p.reserved[req.Staker] += req.Amount
	p.queue = append(p.queue, req)
	p.byID[req.RequestID] = len(p.queue) - 1

	return WithdrawalOutcome{
		QueuePosition: position,
		EstimatedWait: p.estimateWait(position + 1),
	}, nil
}

// PaidWithdrawal is one queue entry settled by a drain pass.
type PaidWithdrawal struct {
	RequestID uuid.UUID
	Staker    uuid.UUID
	Amount    int64
}

// Drain walks from the queue head, paying pending entries that fit within
// free liquidity, skipping and advancing past processed ones. Strict FIFO:
// the first entry that does not fit stops the pass. At most maxEntries are
// paid.
func (p *Pool) Drain(maxEntries int) []PaidWithdrawal {
	var paid []PaidWithdrawal

	for p.head < len(p.queue) && len(paid) < maxEntries {
		req := p.queue[p.head]
		if req.Processed {
			p.head++
			continue
		}

		if req.Amount > p.FreeLiquidity() {
			break
		}

		p.reserved[req.Staker] -= req.Amount
		p.balances[req.Staker] -= req.Amount
		p.totalStaked -= req.Amount
		req.Processed = true
		p.head++

		paid = append(paid, PaidWithdrawal{
			RequestID: req.RequestID,
			Staker:    req.Staker,
			Amount:    req.Amount,
		})
	}

	return paid
}

// CancelWithdrawal voids an unprocessed request owned by the caller and
// returns its amount to availability.
func (p *Pool) CancelWithdrawal(requestID, caller uuid.UUID) (int64, error) {
	idx, ok := p.byID[requestID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	req := p.queue[idx]
	if req.Staker != caller {
		return 0, fmt.Errorf("%w: %s", ErrNotRequestOwner, requestID)
	}
	if req.Processed {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyProcessed, requestID)
	}

	req.Processed = true
	p.reserved[req.Staker] -= req.Amount
	p.advanceHead()

	return req.Amount, nil
}

// GetRequest returns a queue entry by id.
func (p *Pool) GetRequest(requestID uuid.UUID) (*WithdrawalRequest, bool) {
	idx, ok := p.byID[requestID]
	if !ok {
		return nil, false
	}
	return p.queue[idx], true
}

// QueueDepth returns the number of pending (unprocessed) entries.
func (p *Pool) QueueDepth() int {
	return p.pendingCount()
}

// PendingAmount returns the total amount reserved in the queue.
func (p *Pool) PendingAmount() int64 {
	var total int64
	for i := p.head; i < len(p.queue); i++ {
		if !p.queue[i].Processed {
			total += p.queue[i].Amount
		}
	}
	return total
}

func (p *Pool) pendingCount() int {
	n := 0
	for i := p.head; i < len(p.queue); i++ {
		if !p.queue[i].Processed {
			n++
		}
	}
	return n
}

func (p *Pool) advanceHead() {
	for p.head < len(p.queue) && p.queue[p.head].Processed {
		p.head++
	}
}

// === Liquidity-freeing cadence ===

// RecordLiquidityFreed notes a liquidity-freeing event (stake or settlement)
// for the queue wait estimate.
func (p *Pool) RecordLiquidityFreed(at time.Time) {
	if !p.lastFreedAt.IsZero() && at.After(p.lastFreedAt) {
		p.freedIntervalSum += at.Sub(p.lastFreedAt)
		p.freedEvents++
	}
	p.lastFreedAt = at
}

func (p *Pool) estimateWait(position int) time.Duration {
	if p.freedEvents == 0 {
		return 0 // no cadence data yet
	}
	avg := p.freedIntervalSum / time.Duration(p.freedEvents)
	return time.Duration(position) * avg
}

// === Snapshot support ===

// PoolSnapshot is the serializable pool state.
type PoolSnapshot struct {
	TotalStaked      int64                `json:"total_staked"`
	TotalCoverage    int64                `json:"total_coverage"`
	ClaimReserve     int64                `json:"claim_reserve"`
	BlackSwanReserve int64                `json:"black_swan_reserve"`
	Balances         map[string]int64     `json:"balances"`
	Reserved         map[string]int64     `json:"reserved"`
	Queue            []WithdrawalRequest  `json:"queue"`
	Head             int                  `json:"head"`
	LastFreedAtUs    int64                `json:"last_freed_at_us"`
	FreedEvents      int64                `json:"freed_events"`
	FreedIntervalUs  int64                `json:"freed_interval_us"`
}

func (p *Pool) Snapshot() *PoolSnapshot {
	snap := &PoolSnapshot{
		TotalStaked:      p.totalStaked,
		TotalCoverage:    p.totalCoverage,
		ClaimReserve:     p.claimReserve,
		BlackSwanReserve: p.blackSwanReserve,
		Balances:         make(map[string]int64, len(p.balances)),
		Reserved:         make(map[string]int64, len(p.reserved)),
		Queue:            make([]WithdrawalRequest, 0, len(p.queue)),
		Head:             p.head,
		FreedEvents:      p.freedEvents,
		FreedIntervalUs:  p.freedIntervalSum.Microseconds(),
	}
	if !p.lastFreedAt.IsZero() {
		snap.LastFreedAtUs = p.lastFreedAt.UnixMicro()
	}
	for k, v := range p.balances {
		snap.Balances[k.String()] = v
	}
	for k, v := range p.reserved {
		if v != 0 {
			snap.Reserved[k.String()] = v
		}
	}
	for _, req := range p.queue {
		snap.Queue = append(snap.Queue, *req)
	}
	return snap
}

func RestorePool(snap *PoolSnapshot) (*Pool, error) {
	p := NewPool()
	p.totalStaked = snap.TotalStaked
	p.totalCoverage = snap.TotalCoverage
	p.claimReserve = snap.ClaimReserve
	p.blackSwanReserve = snap.BlackSwanReserve
	p.head = snap.Head
	p.freedEvents = snap.FreedEvents
	p.freedIntervalSum = time.Duration(snap.FreedIntervalUs) * time.Microsecond
	if snap.LastFreedAtUs != 0 {
		p.lastFreedAt = time.UnixMicro(snap.LastFreedAtUs)
	}

	for k, v := range snap.Balances {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("restore pool balance key: %w", err)
		}
		p.balances[id] = v
	}
	for k, v := range snap.Reserved {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("restore pool reserved key: %w", err)
		}
		p.reserved[id] = v
	}
	for i := range snap.Queue {
		req := snap.Queue[i]
		p.queue = append(p.queue, &req)
		p.byID[req.RequestID] = len(p.queue) - 1
	}

	return p, nil
}
