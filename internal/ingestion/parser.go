package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"GapLedger/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes plus the subject-derived
// event type) into a typed event.Event for the core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "StakeDeposit":
		return parseStakeDeposit(raw.Data)
	case "WithdrawalRequest":
		return parseWithdrawalRequest(raw.Data)
	case "WithdrawalCancel":
		return parseWithdrawalCancel(raw.Data)
	case "QueueDrain":
		return parseQueueDrain(raw.Data)
	case "PolicyPurchase":
		return parsePolicyPurchase(raw.Data)
	case "PolicyPurchaseLegacy":
		return parsePolicyPurchaseLegacy(raw.Data)
	case "SubscriptionPurchase":
		return parseSubscriptionPurchase(raw.Data)
	case "GapMint":
		return parseGapMint(raw.Data)
	case "PolicyTransfer":
		return parsePolicyTransfer(raw.Data)
	case "PolicySettle":
		return parsePolicySettle(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "WeekApprove":
		return parseWeekApprove(raw.Data)
	case "VolatilityQueue":
		return parseVolatilityQueue(raw.Data)
	case "VolatilityExecute":
		return parseVolatilityExecute(raw.Data)
	case "VolatilityCancel":
		return parseVolatilityCancel(raw.Data)
	case "Pause":
		return parsePause(raw.Data)
	case "Unpause":
		return parseUnpause(raw.Data)
	case "TreasuryUpdate":
		return parseTreasuryUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Timestamps arrive
// as epoch microseconds.

type stakeDepositJSON struct {
	DepositID   string `json:"deposit_id"`
	Staker      string `json:"staker"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStakeDeposit(data []byte) (*event.StakeDeposit, error) {
	var j stakeDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeDeposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	staker, err := uuid.Parse(j.Staker)
	if err != nil {
		return nil, fmt.Errorf("parse staker: %w", err)
	}
	return &event.StakeDeposit{
		DepositID: depositID,
		Staker:    staker,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type withdrawalRequestJSON struct {
	RequestID   string `json:"request_id"`
	Staker      string `json:"staker"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdrawalRequest(data []byte) (*event.WithdrawalRequest, error) {
	var j withdrawalRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalRequest: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	staker, err := uuid.Parse(j.Staker)
	if err != nil {
		return nil, fmt.Errorf("parse staker: %w", err)
	}
	return &event.WithdrawalRequest{
		RequestID: requestID,
		Staker:    staker,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type withdrawalCancelJSON struct {
	CancelID    string `json:"cancel_id"`
	RequestID   string `json:"request_id"`
	Staker      string `json:"staker"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdrawalCancel(data []byte) (*event.WithdrawalCancel, error) {
	var j withdrawalCancelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalCancel: %w", err)
	}
	cancelID, err := uuid.Parse(j.CancelID)
	if err != nil {
		return nil, fmt.Errorf("parse cancel_id: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	staker, err := uuid.Parse(j.Staker)
	if err != nil {
		return nil, fmt.Errorf("parse staker: %w", err)
	}
	return &event.WithdrawalCancel{
		CancelID:  cancelID,
		RequestID: requestID,
		Staker:    staker,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type queueDrainJSON struct {
	DrainID     string `json:"drain_id"`
	Caller      string `json:"caller"`
	MaxEntries  int    `json:"max_entries"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseQueueDrain(data []byte) (*event.QueueDrain, error) {
	var j queueDrainJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse QueueDrain: %w", err)
	}
	drainID, err := uuid.Parse(j.DrainID)
	if err != nil {
		return nil, fmt.Errorf("parse drain_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.QueueDrain{
		DrainID:    drainID,
		Caller:     caller,
		MaxEntries: j.MaxEntries,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type policyPurchaseJSON struct {
	PurchaseID  string `json:"purchase_id"`
	Buyer       string `json:"buyer"`
	Coverage    int64  `json:"coverage"`
	ThresholdBp int64  `json:"threshold_bp"`
	Week        int64  `json:"week"`
	Day         int    `json:"day"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePolicyPurchase(data []byte) (*event.PolicyPurchase, error) {
	var j policyPurchaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyPurchase: %w", err)
	}
	purchaseID, err := uuid.Parse(j.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("parse purchase_id: %w", err)
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	return &event.PolicyPurchase{
		PurchaseID:  purchaseID,
		Buyer:       buyer,
		Coverage:    j.Coverage,
		ThresholdBp: j.ThresholdBp,
		Week:        j.Week,
		Day:         j.Day,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

func parsePolicyPurchaseLegacy(data []byte) (*event.PolicyPurchaseLegacy, error) {
	var j policyPurchaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyPurchaseLegacy: %w", err)
	}
	purchaseID, err := uuid.Parse(j.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("parse purchase_id: %w", err)
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	return &event.PolicyPurchaseLegacy{
		PurchaseID:  purchaseID,
		Buyer:       buyer,
		Coverage:    j.Coverage,
		ThresholdBp: j.ThresholdBp,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type subscriptionPurchaseJSON struct {
	PurchaseID  string `json:"purchase_id"`
	Buyer       string `json:"buyer"`
	Coverage    int64  `json:"coverage"`
	ThresholdBp int64  `json:"threshold_bp"`
	Weeks       int    `json:"weeks"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSubscriptionPurchase(data []byte) (*event.SubscriptionPurchase, error) {
	var j subscriptionPurchaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SubscriptionPurchase: %w", err)
	}
	purchaseID, err := uuid.Parse(j.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("parse purchase_id: %w", err)
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	return &event.SubscriptionPurchase{
		PurchaseID:  purchaseID,
		Buyer:       buyer,
		Coverage:    j.Coverage,
		ThresholdBp: j.ThresholdBp,
		Weeks:       j.Weeks,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type gapMintJSON struct {
	MintID         string `json:"mint_id"`
	SubscriptionID string `json:"subscription_id"`
	Caller         string `json:"caller"`
	Sequence       int64  `json:"sequence"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseGapMint(data []byte) (*event.GapMint, error) {
	var j gapMintJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GapMint: %w", err)
	}
	mintID, err := uuid.Parse(j.MintID)
	if err != nil {
		return nil, fmt.Errorf("parse mint_id: %w", err)
	}
	subscriptionID, err := uuid.Parse(j.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.GapMint{
		MintID:         mintID,
		SubscriptionID: subscriptionID,
		Caller:         caller,
		Sequence:       j.Sequence,
		Timestamp:      time.UnixMicro(j.TimestampUs),
	}, nil
}

type policyTransferJSON struct {
	TransferID  string `json:"transfer_id"`
	PolicyID    string `json:"policy_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePolicyTransfer(data []byte) (*event.PolicyTransfer, error) {
	var j policyTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyTransfer: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	policyID, err := uuid.Parse(j.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("parse policy_id: %w", err)
	}
	from, err := uuid.Parse(j.From)
	if err != nil {
		return nil, fmt.Errorf("parse from: %w", err)
	}
	to, err := uuid.Parse(j.To)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	return &event.PolicyTransfer{
		TransferID: transferID,
		PolicyID:   policyID,
		From:       from,
		To:         to,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type policySettleJSON struct {
	SettleID    string `json:"settle_id"`
	PolicyID    string `json:"policy_id"`
	Caller      string `json:"caller"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePolicySettle(data []byte) (*event.PolicySettle, error) {
	var j policySettleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicySettle: %w", err)
	}
	settleID, err := uuid.Parse(j.SettleID)
	if err != nil {
		return nil, fmt.Errorf("parse settle_id: %w", err)
	}
	policyID, err := uuid.Parse(j.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("parse policy_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.PolicySettle{
		SettleID:  settleID,
		PolicyID:  policyID,
		Caller:    caller,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceUpdateJSON struct {
	Price         int64 `json:"price"`
	PriceSequence int64 `json:"price_sequence"`
	TimestampUs   int64 `json:"timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	return &event.PriceUpdate{
		Price:         j.Price,
		PriceSequence: j.PriceSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type weekApproveJSON struct {
	ApprovalID   string `json:"approval_id"`
	Actor        string `json:"actor"`
	Week         int64  `json:"week"`
	SplitRatioBp int64  `json:"split_ratio_bp"`
	Reason       string `json:"reason,omitempty"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseWeekApprove(data []byte) (*event.WeekApprove, error) {
	var j weekApproveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WeekApprove: %w", err)
	}
	approvalID, err := uuid.Parse(j.ApprovalID)
	if err != nil {
		return nil, fmt.Errorf("parse approval_id: %w", err)
	}
	actor, err := uuid.Parse(j.Actor)
	if err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}
	return &event.WeekApprove{
		ApprovalID:   approvalID,
		Actor:        actor,
		Week:         j.Week,
		SplitRatioBp: j.SplitRatioBp,
		Reason:       j.Reason,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type volatilityQueueJSON struct {
	ChangeID    string `json:"change_id"`
	Actor       string `json:"actor"`
	ValueBp     int64  `json:"value_bp"`
	Reason      string `json:"reason,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseVolatilityQueue(data []byte) (*event.VolatilityQueue, error) {
	var j volatilityQueueJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VolatilityQueue: %w", err)
	}
	changeID, err := uuid.Parse(j.ChangeID)
	if err != nil {
		return nil, fmt.Errorf("parse change_id: %w", err)
	}
	actor, err := uuid.Parse(j.Actor)
	if err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}
	return &event.VolatilityQueue{
		ChangeID:  changeID,
		Actor:     actor,
		ValueBp:   j.ValueBp,
		Reason:    j.Reason,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type governanceActionJSON struct {
	ActionID    string `json:"action_id"`
	Actor       string `json:"actor"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseVolatilityExecute(data []byte) (*event.VolatilityExecute, error) {
	var j governanceActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VolatilityExecute: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	actor, err := uuid.Parse(j.Actor)
	if err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}
	return &event.VolatilityExecute{
		ExecuteID: actionID,
		Actor:     actor,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseVolatilityCancel(data []byte) (*event.VolatilityCancel, error) {
	var j governanceActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VolatilityCancel: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	actor, err := uuid.Parse(j.Actor)
	if err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}
	return &event.VolatilityCancel{
		CancelID:  actionID,
		Actor:     actor,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parsePause(data []byte) (*event.Pause, error) {
	var j governanceActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Pause: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	actor, err := uuid.Parse(j.Actor)
	if err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}
	return &event.Pause{
		ActionID:  actionID,
		Actor:     actor,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUnpause(data []byte) (*event.Unpause, error) {
	var j governanceActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Unpause: %w", err)
	}
	actionID, err := uuid.Parse(j.ActionID)
	if err != nil {
		return nil, fmt.Errorf("parse action_id: %w", err)
	}
	actor, err := uuid.Parse(j.Actor)
	if err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}
	return &event.Unpause{
		ActionID:  actionID,
		Actor:     actor,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type treasuryUpdateJSON struct {
	UpdateID    string `json:"update_id"`
	Actor       string `json:"actor"`
	Treasury    string `json:"treasury"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseTreasuryUpdate(data []byte) (*event.TreasuryUpdate, error) {
	var j treasuryUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TreasuryUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	actor, err := uuid.Parse(j.Actor)
	if err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}
	treasury, err := uuid.Parse(j.Treasury)
	if err != nil {
		return nil, fmt.Errorf("parse treasury: %w", err)
	}
	return &event.TreasuryUpdate{
		UpdateID:  updateID,
		Actor:     actor,
		Treasury:  treasury,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
