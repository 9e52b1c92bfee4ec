package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"GapLedger/internal/calendar"
	"GapLedger/internal/math"
	"GapLedger/internal/state"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// QueryService serves read-only API queries from the projection tables.
// Every response carries as_of_sequence so callers can reason about
// staleness relative to the event log.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetPoolStats returns the pool summary with derived utilization.
func (qs *QueryService) GetPoolStats(ctx context.Context) (*PoolStatsResponse, error) {
	var r PoolStatsResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT total_staked, total_coverage, claim_reserve, black_swan_reserve,
		       queue_depth, pending_amount, free_liquidity, last_sequence
		FROM projections.pool_stats WHERE id = 1
	`).Scan(&r.TotalStaked, &r.TotalCoverage, &r.ClaimReserve, &r.BlackSwanReserve,
		&r.QueueDepth, &r.PendingAmount, &r.FreeLiquidity, &r.AsOfSequence)
	if err == sql.ErrNoRows {
		return &PoolStatsResponse{}, nil
	}
	if err != nil {
		return nil, err
	}

	if r.TotalStaked > 0 {
		r.UtilizationBp = math.MulDiv(r.TotalCoverage, math.BasisPointScale, r.TotalStaked)
	}
	return &r, nil
}

// GetWeekStatus reports the ratio a settlement of the given week would use:
// the explicit approval when one exists, otherwise the failsafe default once
// 48h have elapsed from the week's reference start.
func (qs *QueryService) GetWeekStatus(ctx context.Context, week int64, now time.Time) (*WeekStatusResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	failsafeAt := calendar.WeekStart(week).Add(state.FailsafeDelay)
	r := &WeekStatusResponse{
		Week:         week,
		FailsafeAt:   failsafeAt.Format(time.RFC3339),
		AsOfSequence: asOfSeq,
	}

	var ratioBp int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT split_ratio_bp FROM projections.week_approvals WHERE week = $1
	`, week).Scan(&ratioBp)
	switch {
	case err == sql.ErrNoRows:
		r.FailsafeEligible = !now.Before(failsafeAt)
		if r.FailsafeEligible {
			r.SplitRatioBp = state.DefaultSplitRatioBp
		}
	case err != nil:
		return nil, err
	default:
		r.Approved = true
		r.SplitRatioBp = ratioBp
	}
	return r, nil
}

// GetPolicy returns one policy by ID.
func (qs *QueryService) GetPolicy(ctx context.Context, policyID uuid.UUID) (*PolicyResponse, error) {
	policies, err := qs.GetPolicies(ctx, []uuid.UUID{policyID})
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, sql.ErrNoRows
	}
	return &policies[0], nil
}

// GetPolicies returns the requested policies in one round trip.
func (qs *QueryService) GetPolicies(ctx context.Context, policyIDs []uuid.UUID) ([]PolicyResponse, error) {
	if len(policyIDs) == 0 {
		return nil, nil
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(policyIDs))
	for i, id := range policyIDs {
		ids[i] = id.String()
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT policy_id, buyer, coverage, threshold_bp, premium, recorded_close,
		       week, day, subscription_id, settled, paid_out
		FROM projections.policies
		WHERE policy_id = ANY($1)
		ORDER BY week, day
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPolicies(rows, asOfSeq)
}

// GetPoliciesByBuyer returns a buyer's policies, newest gap first.
func (qs *QueryService) GetPoliciesByBuyer(ctx context.Context, buyer uuid.UUID, limit int) ([]PolicyResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT policy_id, buyer, coverage, threshold_bp, premium, recorded_close,
		       week, day, subscription_id, settled, paid_out
		FROM projections.policies
		WHERE buyer = $1
		ORDER BY week DESC, day DESC
		LIMIT $2
	`, buyer, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPolicies(rows, asOfSeq)
}

// GetSettlement returns the settlement outcome for a policy, if settled.
func (qs *QueryService) GetSettlement(ctx context.Context, policyID uuid.UUID) (*SettlementResponse, error) {
	var r SettlementResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT policy_id, owner, week, day, recorded_close, adjusted_close, open_price,
		       gap_bp, split_ratio_bp, payout, paid_out, failsafe, sequence
		FROM projections.settlements
		WHERE policy_id = $1
	`, policyID).Scan(&r.PolicyID, &r.Owner, &r.Week, &r.Day, &r.RecordedClose,
		&r.AdjustedClose, &r.OpenPrice, &r.GapBp, &r.SplitRatioBp, &r.Payout,
		&r.PaidOut, &r.Failsafe, &r.Sequence)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetStaker returns a staker's pool position from the balance projection.
func (qs *QueryService) GetStaker(ctx context.Context, staker uuid.UUID) (*StakerResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	stakedPath := fmt.Sprintf("staker:%s:staked:USDC", staker)
	staked, err := qs.getProjectedBalance(ctx, stakedPath)
	if err != nil {
		return nil, err
	}

	return &StakerResponse{
		Staker:       staker,
		Staked:       staked,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetQueuePayments returns recent FIFO queue payments for a staker.
func (qs *QueryService) GetQueuePayments(ctx context.Context, staker uuid.UUID, limit int) ([]QueuePaymentResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT request_id, staker, amount, sequence, paid_at_micros
		FROM projections.queue_payments
		WHERE staker = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, staker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []QueuePaymentResponse
	for rows.Next() {
		var p QueuePaymentResponse
		if err := rows.Scan(&p.RequestID, &p.Staker, &p.Amount, &p.Sequence, &p.PaidAtMicros); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetJournalHistory returns a staker's journal entries with cursor-based
// pagination on sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	staker uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("staker:%s:%%", staker)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the event log and the
// zero-sum invariant across projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func scanPolicies(rows *sql.Rows, asOfSeq int64) ([]PolicyResponse, error) {
	var policies []PolicyResponse
	for rows.Next() {
		var p PolicyResponse
		var subscriptionID sql.NullString
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PolicyID, &p.Buyer, &p.Coverage, &p.ThresholdBp, &p.Premium,
			&p.RecordedClose, &p.Week, &p.Day, &subscriptionID, &p.Settled, &p.PaidOut,
		); err != nil {
			return nil, err
		}
		if subscriptionID.Valid {
			id, err := uuid.Parse(subscriptionID.String)
			if err == nil {
				p.SubscriptionID = &id
			}
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
