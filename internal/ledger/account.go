package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeStaker AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Staker sub-types
	SubTypeStaked AccountSubType = iota
	SubTypePendingWithdrawal

	// System sub-types
	SubTypeSystemWorkingCapital
	SubTypeSystemClaimReserve
	SubTypeSystemBlackSwanReserve
	SubTypeSystemLossPool

	// External sub-types (boundary accounts)
	SubTypeExternalStakes
	SubTypeExternalPremiums
	SubTypeExternalClaims
	SubTypeExternalProtocolFees
	SubTypeExternalTransferFees
)

// AssetID maps asset strings to numeric IDs. The engine is single-currency;
// the indirection is kept so the journal schema stays asset-qualified.
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDC": 1,
	}
	idToAsset = map[AssetID]string{
		1: "USDC",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// QuoteAsset is the pool currency.
func QuoteAsset() AssetID {
	id, _ := GetAssetID("USDC")
	return id
}

// AccountKey is the in-memory key for balance tracking (20 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for stakers, zero for system/external accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewStakerAccountKey creates a key for staker accounts
func NewStakerAccountKey(staker uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeStaker,
		EntityID: staker,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeStaker:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("staker:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// MarshalText lets AccountKey serve as a JSON map key in snapshots.
func (k AccountKey) MarshalText() ([]byte, error) {
	return []byte(k.AccountPath()), nil
}

func (k *AccountKey) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountPath(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseAccountPath inverts AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch {
	case len(parts) == 4 && parts[0] == "staker":
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		subType, ok := subTypeFromName(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown sub-type", path)
		}
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset", path)
		}
		return NewStakerAccountKey(uid, subType, assetID), nil

	case len(parts) == 3 && (parts[0] == "system" || parts[0] == "external"):
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown sub-type", path)
		}
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset", path)
		}
		if parts[0] == "system" {
			return NewSystemAccountKey(subType, assetID), nil
		}
		return NewExternalAccountKey(subType, assetID), nil
	}

	return AccountKey{}, fmt.Errorf("account path %q: unrecognized form", path)
}

func subTypeFromName(name string) (AccountSubType, bool) {
	switch name {
	case "staked":
		return SubTypeStaked, true
	case "pending_withdrawal":
		return SubTypePendingWithdrawal, true
	case "working_capital":
		return SubTypeSystemWorkingCapital, true
	case "claim_reserve":
		return SubTypeSystemClaimReserve, true
	case "black_swan_reserve":
		return SubTypeSystemBlackSwanReserve, true
	case "loss_pool":
		return SubTypeSystemLossPool, true
	case "stakes":
		return SubTypeExternalStakes, true
	case "premiums":
		return SubTypeExternalPremiums, true
	case "claims":
		return SubTypeExternalClaims, true
	case "protocol_fees":
		return SubTypeExternalProtocolFees, true
	case "transfer_fees":
		return SubTypeExternalTransferFees, true
	}
	return 0, false
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeStaked:
		return "staked"
	case SubTypePendingWithdrawal:
		return "pending_withdrawal"
	case SubTypeSystemWorkingCapital:
		return "working_capital"
	case SubTypeSystemClaimReserve:
		return "claim_reserve"
	case SubTypeSystemBlackSwanReserve:
		return "black_swan_reserve"
	case SubTypeSystemLossPool:
		return "loss_pool"
	case SubTypeExternalStakes:
		return "stakes"
	case SubTypeExternalPremiums:
		return "premiums"
	case SubTypeExternalClaims:
		return "claims"
	case SubTypeExternalProtocolFees:
		return "protocol_fees"
	case SubTypeExternalTransferFees:
		return "transfer_fees"
	default:
		return "unknown"
	}
}
