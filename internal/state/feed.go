package state

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStaleSequence = errors.New("feed: price sequence regression")
	ErrNoPrice       = errors.New("feed: no price observed yet")
	ErrInvalidPrice  = errors.New("feed: price must be positive")
)

// Freshness bounds for the two issuance paths. Same-week issuance prices
// a gap opening within hours, so it demands a much tighter bound.
const (
	AdvanceFreshness  = 24 * time.Hour
	SameWeekFreshness = time.Hour
)

// FeedState tracks the most recent index price pushed by the oracle
// relay. Sequence numbers must be monotonic; gaps are tolerated,
// regressions are not.
type FeedState struct {
	price      int64
	observedAt time.Time
	sequence   uint64
	hasPrice   bool
}

func NewFeedState() *FeedState {
	return &FeedState{}
}

// Update records a new observation. Out-of-order updates are rejected so
// a delayed relay cannot roll the price back.
func (f *FeedState) Update(price int64, sequence uint64, observedAt time.Time) error {
	if price <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	if f.hasPrice && sequence <= f.sequence {
		return fmt.Errorf("%w: got %d, have %d", ErrStaleSequence, sequence, f.sequence)
	}
	f.price = price
	f.sequence = sequence
	f.observedAt = observedAt
	f.hasPrice = true
	return nil
}

// LatestPrice returns the current observation.
func (f *FeedState) LatestPrice() (int64, time.Time, error) {
	if !f.hasPrice {
		return 0, time.Time{}, ErrNoPrice
	}
	return f.price, f.observedAt, nil
}

// Fresh reports whether the latest observation is within maxAge of now.
func (f *FeedState) Fresh(now time.Time, maxAge time.Duration) bool {
	if !f.hasPrice {
		return false
	}
	return now.Sub(f.observedAt) <= maxAge
}

// Sequence returns the last accepted relay sequence.
func (f *FeedState) Sequence() uint64 { return f.sequence }

// FeedSnapshot is the serializable feed state.
type FeedSnapshot struct {
	Price      int64     `json:"price"`
	Sequence   uint64    `json:"sequence"`
	ObservedAt time.Time `json:"observed_at"`
	HasPrice   bool      `json:"has_price"`
}

func (f *FeedState) Snapshot() FeedSnapshot {
	return FeedSnapshot{Price: f.price, Sequence: f.sequence, ObservedAt: f.observedAt, HasPrice: f.hasPrice}
}

// RestoreFeed rebuilds feed state from a snapshot.
func RestoreFeed(snap FeedSnapshot) *FeedState {
	return &FeedState{price: snap.Price, sequence: snap.Sequence, observedAt: snap.ObservedAt, hasPrice: snap.HasPrice}
}
