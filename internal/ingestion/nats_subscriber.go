package ingestion

import (
	"context"
	"fmt"
	"time"

	"GapLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber consumes JetStream subjects and feeds raw events into the
// ingestion shell, which validates and converts them before handing typed
// events to the deterministic core.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is a parsed-but-untyped message off NATS.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the core accepts or rejects deterministically
	NakFunc   func() // NAK on transient failure for redelivery
}

// SubjectConfig maps one NATS subject to one event type.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects is the standard subject layout. Each event type gets its
// own durable consumer so redelivery on one type never blocks another.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "gap.pool.stakes.>", EventType: "StakeDeposit", ConsumerName: "gap-stakes", StreamName: "GAP_POOL"},
		{Subject: "gap.pool.withdrawals.requested.>", EventType: "WithdrawalRequest", ConsumerName: "gap-wd-request", StreamName: "GAP_POOL"},
		{Subject: "gap.pool.withdrawals.cancelled.>", EventType: "WithdrawalCancel", ConsumerName: "gap-wd-cancel", StreamName: "GAP_POOL"},
		{Subject: "gap.pool.drain.>", EventType: "QueueDrain", ConsumerName: "gap-drain", StreamName: "GAP_POOL"},
		{Subject: "gap.policies.purchase.>", EventType: "PolicyPurchase", ConsumerName: "gap-purchase", StreamName: "GAP_POLICIES"},
		{Subject: "gap.policies.purchase_legacy.>", EventType: "PolicyPurchaseLegacy", ConsumerName: "gap-purchase-legacy", StreamName: "GAP_POLICIES"},
		{Subject: "gap.policies.subscriptions.>", EventType: "SubscriptionPurchase", ConsumerName: "gap-subscriptions", StreamName: "GAP_POLICIES"},
		{Subject: "gap.policies.mint.>", EventType: "GapMint", ConsumerName: "gap-mint", StreamName: "GAP_POLICIES"},
		{Subject: "gap.policies.transfer.>", EventType: "PolicyTransfer", ConsumerName: "gap-transfer", StreamName: "GAP_POLICIES"},
		{Subject: "gap.policies.settle.>", EventType: "PolicySettle", ConsumerName: "gap-settle", StreamName: "GAP_POLICIES"},
		{Subject: "gap.prices.>", EventType: "PriceUpdate", ConsumerName: "gap-prices", StreamName: "GAP_PRICES"},
		{Subject: "gap.governance.week_approve.>", EventType: "WeekApprove", ConsumerName: "gap-week-approve", StreamName: "GAP_GOVERNANCE"},
		{Subject: "gap.governance.volatility.queued.>", EventType: "VolatilityQueue", ConsumerName: "gap-vol-queue", StreamName: "GAP_GOVERNANCE"},
		{Subject: "gap.governance.volatility.executed.>", EventType: "VolatilityExecute", ConsumerName: "gap-vol-execute", StreamName: "GAP_GOVERNANCE"},
		{Subject: "gap.governance.volatility.cancelled.>", EventType: "VolatilityCancel", ConsumerName: "gap-vol-cancel", StreamName: "GAP_GOVERNANCE"},
		{Subject: "gap.governance.pause.>", EventType: "Pause", ConsumerName: "gap-pause", StreamName: "GAP_GOVERNANCE"},
		{Subject: "gap.governance.unpause.>", EventType: "Unpause", ConsumerName: "gap-unpause", StreamName: "GAP_GOVERNANCE"},
		{Subject: "gap.governance.treasury.>", EventType: "TreasuryUpdate", ConsumerName: "gap-treasury", StreamName: "GAP_GOVERNANCE"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates durable JetStream consumers for all configured subjects.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	log := observability.NewLogger("ingestion")

	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Info().
			Str("subject", cfg.Subject).
			Str("consumer", cfg.ConsumerName).
			Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the inbound JetStream streams if missing.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("ingestion")

	streams := []jetstream.StreamConfig{
		{
			Name:      "GAP_POOL",
			Subjects:  []string{"gap.pool.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GAP_POLICIES",
			Subjects:  []string{"gap.policies.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GAP_PRICES",
			Subjects:  []string{"gap.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GAP_GOVERNANCE",
			Subjects:  []string{"gap.governance.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log := observability.NewLogger("ingestion")
	log.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
