package projection

import (
	"context"
	"database/sql"
	"encoding/json"

	"GapLedger/internal/core"
	"GapLedger/internal/state"
)

// upsertPolicy records an issued gap policy in the read model. Issuance
// rows are written once; re-processing the same sequence is a no-op.
func upsertPolicy(ctx context.Context, tx *sql.Tx, p *state.Policy, sequence int64) error {
	var subscriptionID interface{}
	if p.SubscriptionID != nil {
		subscriptionID = p.SubscriptionID.String()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.policies
			(policy_id, buyer, coverage, threshold_bp, premium, recorded_close,
			 week, day, subscription_id, settled, paid_out, issued_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, FALSE, $10, $11)
		ON CONFLICT (policy_id) DO NOTHING
	`, p.PolicyID, p.Buyer, p.Coverage, p.ThresholdBp, p.Premium, p.RecordedClose,
		p.Week, p.Day, subscriptionID, p.IssuedAt, sequence)
	return err
}

// recordSettlement appends the settlement outcome and flips the policy row
// to its terminal state.
func recordSettlement(ctx context.Context, tx *sql.Tx, s *core.SettlementResult, sequence int64, timestamp int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.settlements
			(policy_id, owner, week, day, recorded_close, adjusted_close, open_price,
			 gap_bp, split_ratio_bp, payout, paid_out, failsafe,
			 funded_from_staked, funded_from_black_swan, funded_from_claim_reserve,
			 sequence, settled_at_micros)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (policy_id) DO NOTHING
	`, s.PolicyID, s.Owner, s.Week, s.Day, s.RecordedClose, s.AdjustedClose, s.OpenPrice,
		s.GapBp, s.SplitRatioBp, s.Payout, s.PaidOut, s.Failsafe,
		s.Funding.FromStaked, s.Funding.FromBlackSwan, s.Funding.FromClaimReserve,
		sequence, timestamp)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE projections.policies
		SET settled = TRUE, paid_out = $2, last_sequence = $3
		WHERE policy_id = $1
	`, s.PolicyID, s.PaidOut, sequence)
	return err
}

// upsertPoolStats maintains the single-row pool summary.
func upsertPoolStats(ctx context.Context, tx *sql.Tx, stats state.PoolStats, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pool_stats
			(id, total_staked, total_coverage, claim_reserve, black_swan_reserve,
			 queue_depth, pending_amount, free_liquidity, last_sequence)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			total_staked = $1, total_coverage = $2, claim_reserve = $3,
			black_swan_reserve = $4, queue_depth = $5, pending_amount = $6,
			free_liquidity = $7, last_sequence = $8
	`, stats.TotalStaked, stats.TotalCoverage, stats.ClaimReserve, stats.BlackSwanReserve,
		stats.QueueDepth, stats.PendingAmount, stats.FreeLiquidity, sequence)
	return err
}

// recordWeekApproval stores the governance split ratio for a week. The
// payload is the WeekApprove command the core applied.
func recordWeekApproval(ctx context.Context, tx *sql.Tx, payload []byte, sequence int64) error {
	var approval struct {
		Week         int64  `json:"Week"`
		SplitRatioBp int64  `json:"SplitRatioBp"`
		Reason       string `json:"Reason"`
	}
	if err := json.Unmarshal(payload, &approval); err != nil {
		return err
	}

	ratioBp := approval.SplitRatioBp
	if ratioBp == 0 {
		ratioBp = state.DefaultSplitRatioBp
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.week_approvals (week, split_ratio_bp, reason, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (week) DO NOTHING
	`, approval.Week, ratioBp, approval.Reason, sequence)
	return err
}

// recordQueuePayments appends FIFO queue payments made by this event.
func recordQueuePayments(ctx context.Context, tx *sql.Tx, paid []state.PaidWithdrawal, sequence int64, timestamp int64) error {
	for _, p := range paid {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.queue_payments
				(request_id, staker, amount, sequence, paid_at_micros)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (request_id) DO NOTHING
		`, p.RequestID, p.Staker, p.Amount, sequence, timestamp); err != nil {
			return err
		}
	}
	return nil
}
