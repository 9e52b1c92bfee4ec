package query

import "github.com/google/uuid"

// PoolStatsResponse is the pool summary for API queries. UtilizationBp is
// derived at query time from the projected scalars.
type PoolStatsResponse struct {
	TotalStaked      int64 `json:"total_staked"`
	TotalCoverage    int64 `json:"total_coverage"`
	UtilizationBp    int64 `json:"utilization_bp"`
	ClaimReserve     int64 `json:"claim_reserve"`
	BlackSwanReserve int64 `json:"black_swan_reserve"`
	QueueDepth       int   `json:"queue_depth"`
	PendingAmount    int64 `json:"pending_amount"`
	FreeLiquidity    int64 `json:"free_liquidity"`
	AsOfSequence     int64 `json:"as_of_sequence"`
}

// WeekStatusResponse reports the settlement ratio a week would use.
type WeekStatusResponse struct {
	Week             int64  `json:"week"`
	Approved         bool   `json:"approved"`
	SplitRatioBp     int64  `json:"split_ratio_bp"`
	FailsafeEligible bool   `json:"failsafe_eligible"`
	FailsafeAt       string `json:"failsafe_at"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// PolicyResponse is one gap policy for API queries.
type PolicyResponse struct {
	PolicyID       uuid.UUID  `json:"policy_id"`
	Buyer          uuid.UUID  `json:"buyer"`
	Coverage       int64      `json:"coverage"`
	ThresholdBp    int64      `json:"threshold_bp"`
	Premium        int64      `json:"premium"`
	RecordedClose  int64      `json:"recorded_close"`
	Week           int64      `json:"week"`
	Day            int        `json:"day"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	Settled        bool       `json:"settled"`
	PaidOut        bool       `json:"paid_out"`
	AsOfSequence   int64      `json:"as_of_sequence"`
}

// SettlementResponse is a settled policy's outcome for API queries.
type SettlementResponse struct {
	PolicyID      uuid.UUID `json:"policy_id"`
	Owner         uuid.UUID `json:"owner"`
	Week          int64     `json:"week"`
	Day           int       `json:"day"`
	RecordedClose int64     `json:"recorded_close"`
	AdjustedClose int64     `json:"adjusted_close"`
	OpenPrice     int64     `json:"open_price"`
	GapBp         int64     `json:"gap_bp"`
	SplitRatioBp  int64     `json:"split_ratio_bp"`
	Payout        int64     `json:"payout"`
	PaidOut       bool      `json:"paid_out"`
	Failsafe      bool      `json:"failsafe"`
	Sequence      int64     `json:"sequence"`
}

// StakerResponse is a staker's pool position for API queries.
type StakerResponse struct {
	Staker       uuid.UUID `json:"staker"`
	Staked       int64     `json:"staked"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// QueuePaymentResponse is one paid FIFO queue entry.
type QueuePaymentResponse struct {
	RequestID     uuid.UUID `json:"request_id"`
	Staker        uuid.UUID `json:"staker"`
	Amount        int64     `json:"amount"`
	Sequence      int64     `json:"sequence"`
	PaidAtMicros  int64     `json:"paid_at_micros"`
}

// JournalHistoryEntry is one double-entry record for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an asset whose global balance sum is non-zero.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
