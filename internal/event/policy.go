package event

import (
	"time"

	"github.com/google/uuid"
)

// PolicyPurchase issues a single-gap policy for an explicit (week, day) gap.
// The feed price must be fresher than 24h on this path.
type PolicyPurchase struct {
	PurchaseID  uuid.UUID
	Buyer       uuid.UUID
	Coverage    int64 // Fixed-point, 6 decimals
	ThresholdBp int64
	Week        int64
	Day         int
	Sequence    int64
	Timestamp   time.Time
}

func (p *PolicyPurchase) IdempotencyKey() string { return p.PurchaseID.String() }
func (p *PolicyPurchase) EventType() EventType   { return EventTypePolicyPurchase }
func (p *PolicyPurchase) SourceSequence() int64  { return p.Sequence }
func (p *PolicyPurchase) OccurredAt() time.Time  { return p.Timestamp }

// PolicyPurchaseLegacy is the two-argument convenience form: it targets the
// current week's day-4 gap and enforces the stricter 1h feed-freshness bound.
type PolicyPurchaseLegacy struct {
	PurchaseID  uuid.UUID
	Buyer       uuid.UUID
	Coverage    int64
	ThresholdBp int64
	Sequence    int64
	Timestamp   time.Time
}

func (p *PolicyPurchaseLegacy) IdempotencyKey() string { return p.PurchaseID.String() }
func (p *PolicyPurchaseLegacy) EventType() EventType   { return EventTypePolicyPurchaseLegacy }
func (p *PolicyPurchaseLegacy) SourceSequence() int64  { return p.Sequence }
func (p *PolicyPurchaseLegacy) OccurredAt() time.Time  { return p.Timestamp }

// PolicyTransfer moves a policy's payout ownership to a new holder.
// The transferring party pays 5% of the policy premium into the claim reserve.
type PolicyTransfer struct {
	TransferID uuid.UUID
	PolicyID   uuid.UUID
	From       uuid.UUID
	To         uuid.UUID
	Sequence   int64
	Timestamp  time.Time
}

func (p *PolicyTransfer) IdempotencyKey() string { return p.TransferID.String() }
func (p *PolicyTransfer) EventType() EventType   { return EventTypePolicyTransfer }
func (p *PolicyTransfer) SourceSequence() int64  { return p.Sequence }
func (p *PolicyTransfer) OccurredAt() time.Time  { return p.Timestamp }

// PolicySettle settles one policy's gap on or after its next-open time.
// Permissionless; the payout, if any, goes to the current owner.
type PolicySettle struct {
	SettleID  uuid.UUID
	PolicyID  uuid.UUID
	Caller    uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (p *PolicySettle) IdempotencyKey() string { return p.SettleID.String() }
func (p *PolicySettle) EventType() EventType   { return EventTypePolicySettle }
func (p *PolicySettle) SourceSequence() int64  { return p.Sequence }
func (p *PolicySettle) OccurredAt() time.Time  { return p.Timestamp }
