package event

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPurchase buys a prepaid multi-week plan (1, 4 or 8 weeks).
// The full discounted total is charged up front and the first gap-policy
// is minted immediately.
type SubscriptionPurchase struct {
	PurchaseID  uuid.UUID
	Buyer       uuid.UUID
	Coverage    int64
	ThresholdBp int64
	Weeks       int
	Sequence    int64
	Timestamp   time.Time
}

func (s *SubscriptionPurchase) IdempotencyKey() string { return s.PurchaseID.String() }
func (s *SubscriptionPurchase) EventType() EventType   { return EventTypeSubscriptionPurchase }
func (s *SubscriptionPurchase) SourceSequence() int64  { return s.Sequence }
func (s *SubscriptionPurchase) OccurredAt() time.Time  { return s.Timestamp }

// GapMint progressively mints the next gap-policy of a subscription once
// that gap's market close has passed. Permissionless.
type GapMint struct {
	MintID         uuid.UUID
	SubscriptionID uuid.UUID
	Caller         uuid.UUID
	Sequence       int64
	Timestamp      time.Time
}

func (g *GapMint) IdempotencyKey() string { return g.MintID.String() }
func (g *GapMint) EventType() EventType   { return EventTypeGapMint }
func (g *GapMint) SourceSequence() int64  { return g.Sequence }
func (g *GapMint) OccurredAt() time.Time  { return g.Timestamp }
