package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// VolatilityTimelock is the delay between queueing and executing a
	// volatility multiplier change.
	VolatilityTimelock = 24 * time.Hour

	// FailsafeDelay is how long after a week's market close settlement may
	// proceed without an explicit approval, at the default split ratio.
	FailsafeDelay = 48 * time.Hour

	MinVolatilityBp = 1_000  // 0.10x
	MaxVolatilityBp = 15_000 // 1.50x

	// DefaultSplitRatioBp is the 1.0x corporate-action ratio used by the
	// failsafe path.
	DefaultSplitRatioBp = 10_000
	MaxSplitRatioBp     = 50_000
)

var (
	ErrNotApprover         = errors.New("governance: caller is not the approver")
	ErrVolatilityBounds    = errors.New("governance: volatility multiplier out of bounds")
	ErrNoPendingChange     = errors.New("governance: no pending volatility change")
	ErrTimelockNotElapsed  = errors.New("governance: timelock has not elapsed")
	ErrChangeAlreadyQueued = errors.New("governance: a volatility change is already queued")
	ErrInvalidSplitRatio   = errors.New("governance: split ratio out of bounds")
	ErrWeekAlreadyApproved = errors.New("governance: week already approved")
	ErrZeroTreasury        = errors.New("governance: treasury cannot be zero")
	ErrPaused              = errors.New("governance: protocol is paused")
)

// WeekApproval records an explicit settlement approval for one week.
type WeekApproval struct {
	SplitRatioBp int64
	ApprovedAt   time.Time
	Reason       string
}

// PendingChange is a queued volatility multiplier awaiting its timelock.
type PendingChange struct {
	ValueBp      int64
	QueuedAt     time.Time
	ExecuteAfter time.Time
	Reason       string
}

// Governance holds approver-controlled parameters: the volatility
// multiplier (timelocked), per-week settlement approvals, the pause flag,
// and the treasury address.
type Governance struct {
	approver     uuid.UUID
	treasury     uuid.UUID
	volatilityBp int64
	pending      *PendingChange
	approvals    map[int64]*WeekApproval
	paused       bool
}

func NewGovernance(approver, treasury uuid.UUID) *Governance {
	return &Governance{
		approver:     approver,
		treasury:     treasury,
		volatilityBp: DefaultSplitRatioBp, // 1.0x until governance tunes it
		approvals:    make(map[int64]*WeekApproval),
	}
}

// CheckApprover rejects any caller other than the configured approver.
func (g *Governance) CheckApprover(caller uuid.UUID) error {
	if caller != g.approver {
		return fmt.Errorf("%w: %s", ErrNotApprover, caller)
	}
	return nil
}

// VolatilityBp returns the active multiplier.
func (g *Governance) VolatilityBp() int64 { return g.volatilityBp }

// Treasury returns the protocol fee recipient.
func (g *Governance) Treasury() uuid.UUID { return g.treasury }

// Paused reports whether staking and issuance are blocked.
func (g *Governance) Paused() bool { return g.paused }

// Pending returns the queued volatility change, if any.
func (g *Governance) Pending() *PendingChange { return g.pending }

// QueueVolatility stages a multiplier change behind the timelock. Only one
// change may be pending at a time.
func (g *Governance) QueueVolatility(valueBp int64, now time.Time, reason string) error {
	if valueBp < MinVolatilityBp || valueBp > MaxVolatilityBp {
		return fmt.Errorf("%w: %d bp", ErrVolatilityBounds, valueBp)
	}
	if g.pending != nil {
		return ErrChangeAlreadyQueued
	}
	g.pending = &PendingChange{
		ValueBp:      valueBp,
		QueuedAt:     now,
		ExecuteAfter: now.Add(VolatilityTimelock),
		Reason:       reason,
	}
	return nil
}

// ExecuteVolatility applies the pending change once the timelock elapses.
func (g *Governance) ExecuteVolatility(now time.Time) (int64, error) {
	if g.pending == nil {
		return 0, ErrNoPendingChange
	}
	if now.Before(g.pending.ExecuteAfter) {
		return 0, fmt.Errorf("%w: executable at %s", ErrTimelockNotElapsed,
			g.pending.ExecuteAfter.UTC().Format(time.RFC3339))
	}
	g.volatilityBp = g.pending.ValueBp
	g.pending = nil
	return g.volatilityBp, nil
}

// CancelVolatility discards the pending change without applying it.
func (g *Governance) CancelVolatility() error {
	if g.pending == nil {
		return ErrNoPendingChange
	}
	g.pending = nil
	return nil
}

// ApproveWeek records a settlement approval with its corporate-action
// split ratio. A week may be approved only once.
func (g *Governance) ApproveWeek(week int64, splitRatioBp int64, now time.Time, reason string) error {
	if splitRatioBp <= 0 || splitRatioBp > MaxSplitRatioBp {
		return fmt.Errorf("%w: %d bp", ErrInvalidSplitRatio, splitRatioBp)
	}
	if _, ok := g.approvals[week]; ok {
		return fmt.Errorf("%w: week %d", ErrWeekAlreadyApproved, week)
	}
	g.approvals[week] = &WeekApproval{
		SplitRatioBp: splitRatioBp,
		ApprovedAt:   now,
		Reason:       reason,
	}
	return nil
}

// WeekApproval returns the explicit approval for a week, if one exists.
func (g *Governance) WeekApproval(week int64) (*WeekApproval, bool) {
	a, ok := g.approvals[week]
	return a, ok
}

// EffectiveApproval resolves the split ratio usable for settling a week's
// policies at time now. Explicit approval wins; otherwise, once
// FailsafeDelay has passed since the week's reference anchor, settlement
// proceeds at the default 1.0x ratio and failsafe is reported true.
func (g *Governance) EffectiveApproval(week int64, anchor, now time.Time) (ratioBp int64, ok bool, failsafe bool) {
	if a, found := g.approvals[week]; found {
		return a.SplitRatioBp, true, false
	}
	if !now.Before(anchor.Add(FailsafeDelay)) {
		return DefaultSplitRatioBp, true, true
	}
	return 0, false, false
}

// Pause blocks staking and new issuance. Withdrawals and settlement stay
// open so stakers and holders are never trapped.
func (g *Governance) Pause() { g.paused = true }

// Unpause lifts the pause.
func (g *Governance) Unpause() { g.paused = false }

// SetTreasury updates the protocol fee recipient.
func (g *Governance) SetTreasury(t uuid.UUID) error {
	if t == uuid.Nil {
		return ErrZeroTreasury
	}
	g.treasury = t
	return nil
}

// GovernanceSnapshot is the serializable governance state.
type GovernanceSnapshot struct {
	Approver     uuid.UUID              `json:"approver"`
	Treasury     uuid.UUID              `json:"treasury"`
	VolatilityBp int64                  `json:"volatility_bp"`
	Pending      *PendingChange         `json:"pending,omitempty"`
	Approvals    map[int64]WeekApproval `json:"approvals"`
	Paused       bool                   `json:"paused"`
}

func (g *Governance) Snapshot() GovernanceSnapshot {
	snap := GovernanceSnapshot{
		Approver:     g.approver,
		Treasury:     g.treasury,
		VolatilityBp: g.volatilityBp,
		Pending:      g.pending,
		Approvals:    make(map[int64]WeekApproval, len(g.approvals)),
		Paused:       g.paused,
	}
	for w, a := range g.approvals {
		snap.Approvals[w] = *a
	}
	return snap
}

// RestoreGovernance rebuilds governance state from a snapshot.
func RestoreGovernance(snap GovernanceSnapshot) *Governance {
	g := NewGovernance(snap.Approver, snap.Treasury)
	g.volatilityBp = snap.VolatilityBp
	g.pending = snap.Pending
	g.paused = snap.Paused
	for w, a := range snap.Approvals {
		cp := a
		g.approvals[w] = &cp
	}
	return g
}
