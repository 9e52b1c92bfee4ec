package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeStakeDeposit
	EventTypeWithdrawalRequest
	EventTypeWithdrawalCancel
	EventTypeQueueDrain
	EventTypePolicyPurchase
	EventTypePolicyPurchaseLegacy
	EventTypeSubscriptionPurchase
	EventTypeGapMint
	EventTypePolicyTransfer
	EventTypePolicySettle
	EventTypePriceUpdate
	EventTypeWeekApprove
	EventTypeVolatilityQueue
	EventTypeVolatilityExecute
	EventTypeVolatilityCancel
	EventTypePause
	EventTypeUnpause
	EventTypeTreasuryUpdate

	// Outbound-only: emitted by the core when the 48h settlement failsafe
	// substitutes for a missing governance approval.
	EventTypeFailsafeApplied
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// OccurredAt returns the versioned input timestamp. The core evaluates
	// every time-based precondition against this, never the wall clock.
	OccurredAt() time.Time
}

func (et EventType) String() string {
	switch et {
	case EventTypeStakeDeposit:
		return "StakeDeposit"
	case EventTypeWithdrawalRequest:
		return "WithdrawalRequest"
	case EventTypeWithdrawalCancel:
		return "WithdrawalCancel"
	case EventTypeQueueDrain:
		return "QueueDrain"
	case EventTypePolicyPurchase:
		return "PolicyPurchase"
	case EventTypePolicyPurchaseLegacy:
		return "PolicyPurchaseLegacy"
	case EventTypeSubscriptionPurchase:
		return "SubscriptionPurchase"
	case EventTypeGapMint:
		return "GapMint"
	case EventTypePolicyTransfer:
		return "PolicyTransfer"
	case EventTypePolicySettle:
		return "PolicySettle"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeWeekApprove:
		return "WeekApprove"
	case EventTypeVolatilityQueue:
		return "VolatilityQueue"
	case EventTypeVolatilityExecute:
		return "VolatilityExecute"
	case EventTypeVolatilityCancel:
		return "VolatilityCancel"
	case EventTypePause:
		return "Pause"
	case EventTypeUnpause:
		return "Unpause"
	case EventTypeTreasuryUpdate:
		return "TreasuryUpdate"
	case EventTypeFailsafeApplied:
		return "FailsafeApplied"
	default:
		return "Unknown"
	}
}
