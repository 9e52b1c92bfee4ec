package state

import (
	"errors"
	"fmt"
	"time"

	"GapLedger/internal/calendar"

	"github.com/google/uuid"
)

var (
	ErrUnknownPolicy       = errors.New("policy: unknown policy id")
	ErrAlreadySettled      = errors.New("policy: already settled")
	ErrUnknownSubscription = errors.New("policy: unknown subscription id")
	ErrInvalidPlan         = errors.New("policy: plan must be 1, 4 or 8 weeks")
	ErrAllMinted           = errors.New("policy: all subscription gaps minted")
	ErrTooEarly            = errors.New("policy: gap close has not yet passed")
)

// Policy is one gap's coverage contract. Retained forever as history;
// Settled transitions false→true exactly once.
type Policy struct {
	PolicyID       uuid.UUID
	Buyer          uuid.UUID // original purchaser; payout goes to current owner
	Coverage       int64
	ThresholdBp    int64
	Premium        int64
	IssuedAt       time.Time
	RecordedClose  int64 // feed price recorded at issuance
	Week           int64
	Day            int
	Settled        bool
	PaidOut        bool
	SubscriptionID *uuid.UUID // set when minted from a subscription
}

// Subscription is a prepaid multi-week plan that progressively mints one
// gap-policy per trading close.
type Subscription struct {
	SubscriptionID uuid.UUID
	Owner          uuid.UUID
	Coverage       int64
	ThresholdBp    int64
	WeeklyPremium  int64 // discounted per-week premium
	StartWeek      int64
	TotalWeeks     int
	GapsMinted     int
}

// Subscription plan discounts in basis points, keyed by week count.
var planDiscountBp = map[int]int64{
	1: 0,
	4: 400,   // 4%
	8: 1_000, // 10%
}

// PlanDiscountBp returns the discount for a plan length.
func PlanDiscountBp(weeks int) (int64, error) {
	d, ok := planDiscountBp[weeks]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPlan, weeks)
	}
	return d, nil
}

// TotalGaps returns the number of gaps the subscription will mint.
func (s *Subscription) TotalGaps() int {
	return s.TotalWeeks * calendar.TradingDays
}

// NextGap returns the (week, day) of the next unminted gap.
func (s *Subscription) NextGap() (int64, int) {
	week := s.StartWeek + int64(s.GapsMinted/calendar.TradingDays)
	day := s.GapsMinted % calendar.TradingDays
	return week, day
}

// PerGapPremium is the prepaid premium attributed to one gap.
func (s *Subscription) PerGapPremium() int64 {
	return s.WeeklyPremium / calendar.TradingDays
}

// PolicyBook holds all policies and subscriptions, never deleting either.
type PolicyBook struct {
	policies      map[uuid.UUID]*Policy
	policyOrder   []uuid.UUID
	subscriptions map[uuid.UUID]*Subscription
	subOrder      []uuid.UUID
}

func NewPolicyBook() *PolicyBook {
	return &PolicyBook{
		policies:      make(map[uuid.UUID]*Policy),
		subscriptions: make(map[uuid.UUID]*Subscription),
	}
}

// AddPolicy registers a newly issued policy.
func (b *PolicyBook) AddPolicy(p *Policy) {
	b.policies[p.PolicyID] = p
	b.policyOrder = append(b.policyOrder, p.PolicyID)
}

// GetPolicy looks up a policy by id.
func (b *PolicyBook) GetPolicy(id uuid.UUID) (*Policy, bool) {
	p, ok := b.policies[id]
	return p, ok
}

// MarkSettled transitions a policy to its terminal state. Irreversible.
func (b *PolicyBook) MarkSettled(id uuid.UUID, paidOut bool) error {
	p, ok := b.policies[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}
	if p.Settled {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, id)
	}
	p.Settled = true
	p.PaidOut = paidOut
	return nil
}

// AddSubscription registers a new subscription.
func (b *PolicyBook) AddSubscription(s *Subscription) {
	b.subscriptions[s.SubscriptionID] = s
	b.subOrder = append(b.subOrder, s.SubscriptionID)
}

// GetSubscription looks up a subscription by id.
func (b *PolicyBook) GetSubscription(id uuid.UUID) (*Subscription, bool) {
	s, ok := b.subscriptions[id]
	return s, ok
}

// PolicyCount returns how many policies exist (history included).
func (b *PolicyBook) PolicyCount() int {
	return len(b.policyOrder)
}

// AllPolicies returns policies in issuance order.
func (b *PolicyBook) AllPolicies() []*Policy {
	out := make([]*Policy, 0, len(b.policyOrder))
	for _, id := range b.policyOrder {
		out = append(out, b.policies[id])
	}
	return out
}

// AllSubscriptions returns subscriptions in purchase order.
func (b *PolicyBook) AllSubscriptions() []*Subscription {
	out := make([]*Subscription, 0, len(b.subOrder))
	for _, id := range b.subOrder {
		out = append(out, b.subscriptions[id])
	}
	return out
}
