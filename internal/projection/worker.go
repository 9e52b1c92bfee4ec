package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"GapLedger/internal/core"
	"GapLedger/internal/event"
	"GapLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Worker maintains the read model from processed events. The core feeds it
// over a non-blocking channel: drops are acceptable because every table here
// can be rebuilt from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run blocks until ctx is cancelled or the input channel closes. Outputs at
// or below the stored watermark are skipped so that startup replay cannot
// double-apply incremental balance updates.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&w.lastSeq); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("load watermark: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if output.Envelope.Sequence <= w.lastSeq {
				continue
			}

			start := time.Now()
			if err := w.apply(ctx, output); err != nil {
				// Eventually consistent: log and move on, a rebuild
				// recovers anything missed.
				w.log.Warn().
					Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Msg("projection update failed")
			}
			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues("main").
					Observe(time.Since(start).Seconds())
			}
			w.lastSeq = output.Envelope.Sequence
		}
	}
}

func (w *Worker) apply(ctx context.Context, output core.CoreOutput) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence
	ts := output.Envelope.Timestamp.UnixMicro()

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := w.applyBalance(ctx, tx,
				j.DebitAccount.AccountPath(), j.CreditAccount.AccountPath(),
				uint16(j.AssetID), j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	if output.Policy != nil {
		if err := upsertPolicy(ctx, tx, output.Policy, seq); err != nil {
			return fmt.Errorf("policy projection: %w", err)
		}
	}
	if output.Settlement != nil {
		if err := recordSettlement(ctx, tx, output.Settlement, seq, ts); err != nil {
			return fmt.Errorf("settlement projection: %w", err)
		}
	}
	if len(output.Paid) > 0 {
		if err := recordQueuePayments(ctx, tx, output.Paid, seq, ts); err != nil {
			return fmt.Errorf("queue payment projection: %w", err)
		}
	}

	if err := upsertPoolStats(ctx, tx, output.PoolStats, seq); err != nil {
		return fmt.Errorf("pool stats projection: %w", err)
	}

	if output.Envelope.EventType == event.EventTypeWeekApprove {
		if err := recordWeekApproval(ctx, tx, output.Envelope.Payload, seq); err != nil {
			return fmt.Errorf("week approval projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// applyBalance moves amount from the credit account to the debit account,
// matching the in-memory balance tracker convention.
func (w *Worker) applyBalance(ctx context.Context, tx *sql.Tx, debit, credit string, assetID uint16, amount, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, debit, assetID, amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, credit, assetID, amount, seq); err != nil {
		return err
	}

	return nil
}

// Rebuild truncates the read model and reconstructs account balances from
// the journal. Policy and settlement tables rebuild on the next replay.
func Rebuild(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.policies`,
		`TRUNCATE projections.settlements`,
		`TRUNCATE projections.queue_payments`,
		`TRUNCATE projections.pool_stats`,
		`TRUNCATE projections.week_approvals`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log := observability.NewLogger("projection")
	log.Info().Msg("projection rebuild complete")
	return nil
}
