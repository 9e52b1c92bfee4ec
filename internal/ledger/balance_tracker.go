package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// SetBalance overwrites an account balance (snapshot restore only)
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// === Staker Balance Queries ===

// GetStakerStaked returns a staker's staked (withdrawable) audit balance
func (bt *BalanceTracker) GetStakerStaked(staker uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewStakerAccountKey(staker, SubTypeStaked, assetID))
}

// GetStakerPendingWithdrawal returns the amount reserved in the queue
func (bt *BalanceTracker) GetStakerPendingWithdrawal(staker uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewStakerAccountKey(staker, SubTypePendingWithdrawal, assetID))
}

// === Invariant Checks ===

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ValidateStakerNonNegative checks both staker accounts are >= 0
func (bt *BalanceTracker) ValidateStakerNonNegative(staker uuid.UUID, assetID AssetID) error {
	if err := bt.ValidateNonNegative(NewStakerAccountKey(staker, SubTypeStaked, assetID)); err != nil {
		return err
	}
	return bt.ValidateNonNegative(NewStakerAccountKey(staker, SubTypePendingWithdrawal, assetID))
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing and persistence)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
