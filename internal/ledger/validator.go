package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateReservesNonNegative checks the claim reserve, black-swan reserve
// and working capital never go below zero. Reserves only decrease when drawn
// to cover a payout shortfall, and a shortfall beyond both reserves must be
// rejected before any journal is generated.
func (v *InvariantValidator) ValidateReservesNonNegative() error {
	asset := QuoteAsset()
	for _, subType := range []AccountSubType{
		SubTypeSystemClaimReserve,
		SubTypeSystemBlackSwanReserve,
		SubTypeSystemWorkingCapital,
	} {
		if err := v.tracker.ValidateNonNegative(NewSystemAccountKey(subType, asset)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateGlobalBalance verifies the ledger is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
