package ledger

import (
	fpmath "GapLedger/internal/math"

	"github.com/google/uuid"
)

// Premium allocation shares in basis points. The staker-yield share has no
// explicit bp constant: it is the remainder left in working capital, which
// also absorbs integer-division dust so the four legs always sum to the
// premium exactly.
const (
	PremiumClaimReserveBp = 7_700 // 77%
	PremiumProtocolFeeBp  = 300   // 3%
	PremiumBlackSwanBp    = 200   // 2%
)

// TransferFeeBp is charged on owner-to-owner policy transfers, as a share of
// the policy premium, paid by the transferring party into the claim reserve.
const TransferFeeBp = 500 // 5%

// JournalGenerator creates balanced journal batches from engine operations
type JournalGenerator struct {
	sequence int64
	asset    AssetID
}

func NewJournalGenerator(startSequence int64) *JournalGenerator {
	return &JournalGenerator{
		sequence: startSequence,
		asset:    QuoteAsset(),
	}
}

// SetSequence resets the generator sequence (snapshot restore only)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 4),
	}
}

func (jg *JournalGenerator) append(b *Batch, debit, credit AccountKey, amount int64, jt JournalType) {
	if amount == 0 {
		return
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       jg.asset,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateStake records a stake deposit: external:stakes → staker:staked.
func (jg *JournalGenerator) GenerateStake(staker uuid.UUID, eventRef string, amount, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	jg.append(b,
		NewStakerAccountKey(staker, SubTypeStaked, jg.asset),
		NewExternalAccountKey(SubTypeExternalStakes, jg.asset),
		amount, JournalTypeStake)
	jg.sequence++
	return b
}

// GenerateWithdrawalImmediate pays a withdrawal straight out of free
// liquidity: staker:staked → external:stakes.
func (jg *JournalGenerator) GenerateWithdrawalImmediate(staker uuid.UUID, eventRef string, amount, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	jg.append(b,
		NewExternalAccountKey(SubTypeExternalStakes, jg.asset),
		NewStakerAccountKey(staker, SubTypeStaked, jg.asset),
		amount, JournalTypeWithdrawalImmediate)
	jg.sequence++
	return b
}

// GenerateWithdrawalQueued reserves a queued amount:
// staker:staked → staker:pending_withdrawal.
func (jg *JournalGenerator) GenerateWithdrawalQueued(staker uuid.UUID, eventRef string, amount, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	jg.append(b,
		NewStakerAccountKey(staker, SubTypePendingWithdrawal, jg.asset),
		NewStakerAccountKey(staker, SubTypeStaked, jg.asset),
		amount, JournalTypeWithdrawalQueued)
	jg.sequence++
	return b
}

// AppendWithdrawalPaid adds a queue-drain payment leg to an existing batch:
// staker:pending_withdrawal → external:stakes. Draining pays multiple
// requests under one event, so the caller owns the batch.
func (jg *JournalGenerator) AppendWithdrawalPaid(b *Batch, staker uuid.UUID, amount int64) {
	jg.append(b,
		NewExternalAccountKey(SubTypeExternalStakes, jg.asset),
		NewStakerAccountKey(staker, SubTypePendingWithdrawal, jg.asset),
		amount, JournalTypeWithdrawalPaid)
}

// GenerateWithdrawalCancelled returns a reserved amount to availability:
// staker:pending_withdrawal → staker:staked.
func (jg *JournalGenerator) GenerateWithdrawalCancelled(staker uuid.UUID, eventRef string, amount, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	jg.append(b,
		NewStakerAccountKey(staker, SubTypeStaked, jg.asset),
		NewStakerAccountKey(staker, SubTypePendingWithdrawal, jg.asset),
		amount, JournalTypeWithdrawalCancelled)
	jg.sequence++
	return b
}

// PremiumSplit is the four-way allocation of one premium.
type PremiumSplit struct {
	ClaimReserve   int64
	BlackSwan      int64
	ProtocolFee    int64
	WorkingCapital int64 // implicit staker yield, made explicit
}

// SplitPremium computes the four-way allocation. The working-capital share is
// the remainder, so the legs always sum to premium.
func SplitPremium(premium int64) PremiumSplit {
	claim := fpmath.ApplyBp(premium, PremiumClaimReserveBp)
	fee := fpmath.ApplyBp(premium, PremiumProtocolFeeBp)
	swan := fpmath.ApplyBp(premium, PremiumBlackSwanBp)
	return PremiumSplit{
		ClaimReserve:   claim,
		BlackSwan:      swan,
		ProtocolFee:    fee,
		WorkingCapital: premium - claim - fee - swan,
	}
}

// GeneratePremiumAllocation journals the four-way premium split against the
// external premium boundary. The protocol fee leaves immediately for the
// treasury; the other three shares stay inside the system.
func (jg *JournalGenerator) GeneratePremiumAllocation(eventRef string, split PremiumSplit, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	premiums := NewExternalAccountKey(SubTypeExternalPremiums, jg.asset)

	jg.append(b, NewSystemAccountKey(SubTypeSystemClaimReserve, jg.asset), premiums,
		split.ClaimReserve, JournalTypePremiumClaimReserve)
	jg.append(b, NewSystemAccountKey(SubTypeSystemWorkingCapital, jg.asset), premiums,
		split.WorkingCapital, JournalTypePremiumWorkingCapital)
	jg.append(b, NewExternalAccountKey(SubTypeExternalProtocolFees, jg.asset), premiums,
		split.ProtocolFee, JournalTypePremiumProtocolFee)
	jg.append(b, NewSystemAccountKey(SubTypeSystemBlackSwanReserve, jg.asset), premiums,
		split.BlackSwan, JournalTypePremiumBlackSwan)

	jg.sequence++
	return b
}

// GenerateClaimPayout journals a settled payout. The staked-capital share is
// credited to the loss pool (socialized across stakers); reserve draws come
// out of the black-swan and claim reserves in that order.
func (jg *JournalGenerator) GenerateClaimPayout(eventRef string, fromStaked, fromBlackSwan, fromClaimReserve, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	claims := NewExternalAccountKey(SubTypeExternalClaims, jg.asset)

	jg.append(b, claims, NewSystemAccountKey(SubTypeSystemLossPool, jg.asset),
		fromStaked, JournalTypeClaimPayout)
	jg.append(b, claims, NewSystemAccountKey(SubTypeSystemBlackSwanReserve, jg.asset),
		fromBlackSwan, JournalTypeReserveDraw)
	jg.append(b, claims, NewSystemAccountKey(SubTypeSystemClaimReserve, jg.asset),
		fromClaimReserve, JournalTypeReserveDraw)

	jg.sequence++
	return b
}

// GenerateTransferFee journals the 5% transfer fee paid by the transferring
// party into the claim reserve.
func (jg *JournalGenerator) GenerateTransferFee(eventRef string, fee, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	jg.append(b,
		NewSystemAccountKey(SubTypeSystemClaimReserve, jg.asset),
		NewExternalAccountKey(SubTypeExternalTransferFees, jg.asset),
		fee, JournalTypeTransferFee)
	jg.sequence++
	return b
}

// EmptyBatch returns a journal-free batch for state-only events
// (price updates, governance actions) that still need an envelope.
func (jg *JournalGenerator) EmptyBatch(eventRef string, timestamp int64) *Batch {
	b := jg.newBatch(eventRef, timestamp)
	jg.sequence++
	return b
}
