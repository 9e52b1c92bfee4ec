package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for GapLedger.
type Metrics struct {
	// Core processing
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreSequence       prometheus.Gauge

	// Issuance and settlement
	PoliciesIssued      *prometheus.CounterVec
	PremiumVolume       prometheus.Counter
	SettlementsTotal    *prometheus.CounterVec
	FailsafeSettlements prometheus.Counter
	PayoutVolume        prometheus.Counter

	// Pool state
	PoolStaked         prometheus.Gauge
	PoolCoverage       prometheus.Gauge
	ClaimReserve       prometheus.Gauge
	BlackSwanReserve   prometheus.Gauge
	QueueDepth         prometheus.Gauge
	QueuePendingAmount prometheus.Gauge
	WithdrawalsPaid    *prometheus.CounterVec

	// Ingestion
	IngestEventsReceived *prometheus.CounterVec
	IngestParseFailures  *prometheus.CounterVec
	PublishDrops         prometheus.Counter

	// Persistence
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// Snapshot and recovery
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// Projections
	ProjectionUpdateDur *prometheus.HistogramVec
	ProjectionDrops     *prometheus.CounterVec

	// Query API
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}
	ioBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_core_events_applied_total",
			Help: "Events successfully applied by the core",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_core_events_rejected_total",
			Help: "Events rejected (dedup, ordering, validation)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gap_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in the core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_core_sequence",
			Help: "Current global sequence number",
		}),

		PoliciesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_policies_issued_total",
			Help: "Gap policies issued",
		}, []string{"path"}),

		PremiumVolume: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_premium_volume_total",
			Help: "Premium collected, fixed-point 6dp units",
		}),

		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_settlements_total",
			Help: "Settled policies by outcome",
		}, []string{"outcome"}),

		FailsafeSettlements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_failsafe_settlements_total",
			Help: "Settlements approved by the 48h failsafe instead of governance",
		}),

		PayoutVolume: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_payout_volume_total",
			Help: "Claim payouts, fixed-point 6dp units",
		}),

		PoolStaked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_pool_staked",
			Help: "Total staked capital",
		}),

		PoolCoverage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_pool_coverage_locked",
			Help: "Total locked coverage",
		}),

		ClaimReserve: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_pool_claim_reserve",
			Help: "Claim reserve balance",
		}),

		BlackSwanReserve: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_pool_black_swan_reserve",
			Help: "Black-swan reserve balance",
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_withdrawal_queue_depth",
			Help: "Pending entries in the withdrawal queue",
		}),

		QueuePendingAmount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_withdrawal_queue_pending_amount",
			Help: "Total amount reserved in the withdrawal queue",
		}),

		WithdrawalsPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_withdrawals_paid_total",
			Help: "Withdrawals paid, by path (immediate/drain)",
		}, []string{"path"}),

		IngestEventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_ingest_events_received_total",
			Help: "Events received from NATS, by subject",
		}, []string{"subject"}),

		IngestParseFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_ingest_parse_failures_total",
			Help: "Messages rejected by the wire parser",
		}, []string{"subject"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_publish_drops_total",
			Help: "Outbound events dropped due to a full publish channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_persist_events_written_total",
			Help: "Event envelopes committed to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_persist_journals_written_total",
			Help: "Journal rows committed to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gap_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: ioBuckets,
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gap_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_persist_errors_total",
			Help: "Persistence failures by operation",
		}, []string{"op"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_persist_last_sequence",
			Help: "Last sequence durably committed",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_snapshots_taken_total",
			Help: "State snapshots written",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gap_snapshot_duration_seconds",
			Help:    "Snapshot serialization and write duration",
			Buckets: ioBuckets,
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gap_snapshot_last_sequence",
			Help: "Sequence covered by the latest snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gap_replay_events_total",
			Help: "Events replayed from the log on startup",
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gap_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: ioBuckets,
		}, []string{"projection"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_projection_drops_total",
			Help: "Events dropped due to a full projection channel",
		}, []string{"projection"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_query_requests_total",
			Help: "Read API requests by endpoint",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gap_query_duration_seconds",
			Help:    "Read API request duration",
			Buckets: ioBuckets,
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gap_query_errors_total",
			Help: "Read API failures by endpoint",
		}, []string{"endpoint"}),
	}
}
