package event

import (
	"time"

	"github.com/google/uuid"
)

// StakeDeposit credits a staker's pool balance.
type StakeDeposit struct {
	DepositID uuid.UUID
	Staker    uuid.UUID
	Amount    int64 // Fixed-point, 6 decimals
	Sequence  int64
	Timestamp time.Time
}

func (s *StakeDeposit) IdempotencyKey() string  { return s.DepositID.String() }
func (s *StakeDeposit) EventType() EventType    { return EventTypeStakeDeposit }
func (s *StakeDeposit) SourceSequence() int64   { return s.Sequence }
func (s *StakeDeposit) OccurredAt() time.Time   { return s.Timestamp }

// WithdrawalRequest asks for a stake withdrawal. Paid immediately when it
// fits inside free liquidity, otherwise appended to the FIFO queue.
type WithdrawalRequest struct {
	RequestID uuid.UUID
	Staker    uuid.UUID
	Amount    int64
	Sequence  int64
	Timestamp time.Time
}

func (w *WithdrawalRequest) IdempotencyKey() string { return w.RequestID.String() }
func (w *WithdrawalRequest) EventType() EventType   { return EventTypeWithdrawalRequest }
func (w *WithdrawalRequest) SourceSequence() int64  { return w.Sequence }
func (w *WithdrawalRequest) OccurredAt() time.Time  { return w.Timestamp }

// WithdrawalCancel voids a queued, unprocessed withdrawal request and
// returns the reserved balance to availability.
type WithdrawalCancel struct {
	CancelID  uuid.UUID
	RequestID uuid.UUID
	Staker    uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (w *WithdrawalCancel) IdempotencyKey() string { return w.CancelID.String() }
func (w *WithdrawalCancel) EventType() EventType   { return EventTypeWithdrawalCancel }
func (w *WithdrawalCancel) SourceSequence() int64  { return w.Sequence }
func (w *WithdrawalCancel) OccurredAt() time.Time  { return w.Timestamp }

// QueueDrain is the permissionless explicit drain of the withdrawal queue.
// MaxEntries is clamped to [1, 50] by the core.
type QueueDrain struct {
	DrainID    uuid.UUID
	Caller     uuid.UUID
	MaxEntries int
	Sequence   int64
	Timestamp  time.Time
}

func (q *QueueDrain) IdempotencyKey() string { return q.DrainID.String() }
func (q *QueueDrain) EventType() EventType   { return EventTypeQueueDrain }
func (q *QueueDrain) SourceSequence() int64  { return q.Sequence }
func (q *QueueDrain) OccurredAt() time.Time  { return q.Timestamp }
