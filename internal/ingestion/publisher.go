package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"GapLedger/internal/core"
	"GapLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher republishes processed events for downstream consumers.
// Every envelope goes to gap.ledger.events.{event_type}; settlements
// additionally go to a dedicated subject so claim-notification consumers
// don't have to filter the full event firehose.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
}

// publishedEvent is the outbound wire format.
type publishedEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      []byte          `json:"state_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// publishedSettlement is the wire format for settlement subjects.
type publishedSettlement struct {
	PolicyID      string `json:"policy_id"`
	Owner         string `json:"owner"`
	Week          int64  `json:"week"`
	Day           int    `json:"day"`
	RecordedClose int64  `json:"recorded_close"`
	AdjustedClose int64  `json:"adjusted_close"`
	OpenPrice     int64  `json:"open_price"`
	GapBp         int64  `json:"gap_bp"`
	SplitRatioBp  int64  `json:"split_ratio_bp"`
	Payout        int64  `json:"payout"`
	PaidOut       bool   `json:"paid_out"`
	Failsafe      bool   `json:"failsafe"`
	Sequence      int64  `json:"sequence"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("publisher"),
	}
}

// Run blocks until ctx is cancelled or the input channel closes. Publish
// failures are non-fatal: downstream consumers can read the event log.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, output); err != nil {
				op.log.Warn().
					Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Msg("outbound publish failed")
				if op.metrics != nil {
					op.metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, output core.CoreOutput) error {
	env := output.Envelope

	data, err := json.Marshal(publishedEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		Timestamp:      env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("gap.ledger.events.%s", env.EventType.String())
	if _, err := op.js.Publish(ctx, subject, data); err != nil {
		return err
	}

	if output.Settlement != nil {
		return op.publishSettlement(ctx, output.Settlement, env.Sequence)
	}
	return nil
}

func (op *OutboundPublisher) publishSettlement(ctx context.Context, s *core.SettlementResult, sequence int64) error {
	data, err := json.Marshal(publishedSettlement{
		PolicyID:      s.PolicyID.String(),
		Owner:         s.Owner.String(),
		Week:          s.Week,
		Day:           s.Day,
		RecordedClose: s.RecordedClose,
		AdjustedClose: s.AdjustedClose,
		OpenPrice:     s.OpenPrice,
		GapBp:         s.GapBp,
		SplitRatioBp:  s.SplitRatioBp,
		Payout:        s.Payout,
		PaidOut:       s.PaidOut,
		Failsafe:      s.Failsafe,
		Sequence:      sequence,
	})
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}

	subject := "gap.settlements.completed"
	if s.Failsafe {
		subject = "gap.settlements.failsafe"
	}
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound streams if missing.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "GAP_LEDGER_EVENTS",
			Subjects:  []string{"gap.ledger.events.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "GAP_SETTLEMENTS",
			Subjects:  []string{"gap.settlements.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	log := observability.NewLogger("publisher")
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured outbound stream")
	}
	return nil
}
