package event

import (
	"fmt"
	"time"
)

// PriceUpdate refreshes the engine's view of the reference asset price.
// Gaps in PriceSequence are tolerated (the feed may drop ticks); regressions
// are not.
type PriceUpdate struct {
	Price         int64 // Signed fixed-point, 6 decimals
	PriceSequence int64
	Timestamp     time.Time
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%d", p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType  { return EventTypePriceUpdate }
func (p *PriceUpdate) SourceSequence() int64 { return p.PriceSequence }
func (p *PriceUpdate) OccurredAt() time.Time { return p.Timestamp }
