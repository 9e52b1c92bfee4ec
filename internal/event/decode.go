package event

import (
	"encoding/json"
	"fmt"
)

// Decode reconstructs a typed event from a stored envelope payload. Payloads
// in the event log are the JSON encoding of the event structs themselves, so
// this is the inverse of the marshal done when the envelope was built.
//
// FailsafeApplied envelopes are derived outputs with no command payload and
// cannot be decoded back into a command.
func Decode(typeName string, payload []byte) (Event, error) {
	var evt Event
	switch typeName {
	case "StakeDeposit":
		evt = &StakeDeposit{}
	case "WithdrawalRequest":
		evt = &WithdrawalRequest{}
	case "WithdrawalCancel":
		evt = &WithdrawalCancel{}
	case "QueueDrain":
		evt = &QueueDrain{}
	case "PolicyPurchase":
		evt = &PolicyPurchase{}
	case "PolicyPurchaseLegacy":
		evt = &PolicyPurchaseLegacy{}
	case "SubscriptionPurchase":
		evt = &SubscriptionPurchase{}
	case "GapMint":
		evt = &GapMint{}
	case "PolicyTransfer":
		evt = &PolicyTransfer{}
	case "PolicySettle":
		evt = &PolicySettle{}
	case "PriceUpdate":
		evt = &PriceUpdate{}
	case "WeekApprove":
		evt = &WeekApprove{}
	case "VolatilityQueue":
		evt = &VolatilityQueue{}
	case "VolatilityExecute":
		evt = &VolatilityExecute{}
	case "VolatilityCancel":
		evt = &VolatilityCancel{}
	case "Pause":
		evt = &Pause{}
	case "Unpause":
		evt = &Unpause{}
	case "TreasuryUpdate":
		evt = &TreasuryUpdate{}
	default:
		return nil, fmt.Errorf("decode: unknown event type %q", typeName)
	}

	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", typeName, err)
	}
	return evt, nil
}
