package event

import (
	"time"

	"github.com/google/uuid"
)

// WeekApprove records the governance settlement approval for a week,
// optionally carrying a corporate-action split ratio (bp, 10000 = 1.0x).
type WeekApprove struct {
	ApprovalID   uuid.UUID
	Actor        uuid.UUID
	Week         int64
	SplitRatioBp int64
	Reason       string
	Sequence     int64
	Timestamp    time.Time
}

func (w *WeekApprove) IdempotencyKey() string { return w.ApprovalID.String() }
func (w *WeekApprove) EventType() EventType   { return EventTypeWeekApprove }
func (w *WeekApprove) SourceSequence() int64  { return w.Sequence }
func (w *WeekApprove) OccurredAt() time.Time  { return w.Timestamp }

// VolatilityQueue stages a timelocked volatility multiplier change.
type VolatilityQueue struct {
	ChangeID  uuid.UUID
	Actor     uuid.UUID
	ValueBp   int64
	Reason    string
	Sequence  int64
	Timestamp time.Time
}

func (v *VolatilityQueue) IdempotencyKey() string { return v.ChangeID.String() }
func (v *VolatilityQueue) EventType() EventType   { return EventTypeVolatilityQueue }
func (v *VolatilityQueue) SourceSequence() int64  { return v.Sequence }
func (v *VolatilityQueue) OccurredAt() time.Time  { return v.Timestamp }

// VolatilityExecute applies the pending change once its timelock elapses.
type VolatilityExecute struct {
	ExecuteID uuid.UUID
	Actor     uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (v *VolatilityExecute) IdempotencyKey() string { return v.ExecuteID.String() }
func (v *VolatilityExecute) EventType() EventType   { return EventTypeVolatilityExecute }
func (v *VolatilityExecute) SourceSequence() int64  { return v.Sequence }
func (v *VolatilityExecute) OccurredAt() time.Time  { return v.Timestamp }

// VolatilityCancel discards the pending change with no effect.
type VolatilityCancel struct {
	CancelID  uuid.UUID
	Actor     uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (v *VolatilityCancel) IdempotencyKey() string { return v.CancelID.String() }
func (v *VolatilityCancel) EventType() EventType   { return EventTypeVolatilityCancel }
func (v *VolatilityCancel) SourceSequence() int64  { return v.Sequence }
func (v *VolatilityCancel) OccurredAt() time.Time  { return v.Timestamp }

// Pause blocks new staking and issuance. Settlement and withdrawal stay open.
type Pause struct {
	ActionID  uuid.UUID
	Actor     uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (p *Pause) IdempotencyKey() string { return p.ActionID.String() }
func (p *Pause) EventType() EventType   { return EventTypePause }
func (p *Pause) SourceSequence() int64  { return p.Sequence }
func (p *Pause) OccurredAt() time.Time  { return p.Timestamp }

// Unpause lifts an emergency pause.
type Unpause struct {
	ActionID  uuid.UUID
	Actor     uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (u *Unpause) IdempotencyKey() string { return u.ActionID.String() }
func (u *Unpause) EventType() EventType   { return EventTypeUnpause }
func (u *Unpause) SourceSequence() int64  { return u.Sequence }
func (u *Unpause) OccurredAt() time.Time  { return u.Timestamp }

// TreasuryUpdate redirects future protocol-fee transfers.
type TreasuryUpdate struct {
	UpdateID  uuid.UUID
	Actor     uuid.UUID
	Treasury  uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (t *TreasuryUpdate) IdempotencyKey() string { return t.UpdateID.String() }
func (t *TreasuryUpdate) EventType() EventType   { return EventTypeTreasuryUpdate }
func (t *TreasuryUpdate) SourceSequence() int64  { return t.Sequence }
func (t *TreasuryUpdate) OccurredAt() time.Time  { return t.Timestamp }
