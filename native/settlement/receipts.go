package settlement

import (
	"encoding/binary"
	"errors"

	"lukechampine.com/blake3"

	"capchain/core/types"
	"capchain/crypto"
)

var (
	// ErrReceiptUsed marks replayed receipt uids.
	ErrReceiptUsed = errors.New("settlement: receipt uid already used")
	// ErrReceiptSignerUnknown marks receipts signed outside the venue set.
	ErrReceiptSignerUnknown = errors.New("settlement: signer not authorized by venue")
	// ErrReceiptSignatureInvalid marks signatures that do not recover to the signer.
	ErrReceiptSignatureInvalid = errors.New("settlement: receipt signature invalid")
	// ErrReceiptLegMismatch marks receipts attached to non off-chain legs.
	ErrReceiptLegMismatch = errors.New("settlement: leg does not take a receipt")
	// ErrNoReceipt marks unclaims of legs without a receipt.
	ErrNoReceipt = errors.New("settlement: leg has no receipt")
)

// receiptDigest binds a receipt to one leg of one instruction.
func receiptDigest(instructionID uint64, receipt *ReceiptDetails) [32]byte {
	buf := make([]byte, 0, 8+4+8+20+len(receipt.Metadata))
	buf = binary.BigEndian.AppendUint64(buf, instructionID)
	buf = binary.BigEndian.AppendUint32(buf, receipt.LegIndex)
	buf = binary.BigEndian.AppendUint64(buf, receipt.UID)
	buf = append(buf, receipt.Signer[:]...)
	buf = append(buf, receipt.Metadata...)
	return blake3.Sum256(buf)
}

// SignReceipt produces the signature AffirmWithReceipts verifies. Used by
// venues off-chain and by tests.
func SignReceipt(key *crypto.PrivateKey, instructionID uint64, receipt *ReceiptDetails) ([]byte, error) {
	digest := receiptDigest(instructionID, receipt)
	return crypto.SignDigest(key, digest[:])
}

func (e *Engine) verifyReceipt(instructionID uint64, venue *Venue, receipt *ReceiptDetails) error {
	if !venue.HasSigner(receipt.Signer) {
		return ErrReceiptSignerUnknown
	}
	used, err := e.state.ReceiptUsed(receipt.Signer, receipt.UID)
	if err != nil {
		return err
	}
	if used {
		return ErrReceiptUsed
	}
	digest := receiptDigest(instructionID, receipt)
	recovered, err := crypto.RecoverSigner(digest[:], receipt.Signature)
	if err != nil {
		return ErrReceiptSignatureInvalid
	}
	if types.AccountKey(recovered) != receipt.Signer {
		return ErrReceiptSignatureInvalid
	}
	return nil
}

// AffirmWithReceipts affirms portfolios and settles their off-chain legs by
// venue-signed receipts. Receipted legs skip execution.
func (e *Engine) AffirmWithReceipts(caller types.IdentityID, id uint64, portfolios []types.PortfolioID, receipts []*ReceiptDetails) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.portfolios == nil {
		return errNilPortfolios
	}
	instruction, legs, statuses, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	venue, ok, err := e.state.Venue(instruction.Venue)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchVenue
	}
	type receiptKey struct {
		signer types.AccountKey
		uid    uint64
	}
	// Uids are only marked used after the whole batch verifies, so duplicates
	// within one call have to be caught here.
	batch := make(map[receiptKey]struct{}, len(receipts))
	for _, receipt := range receipts {
		if int(receipt.LegIndex) >= len(legs) || legs[receipt.LegIndex].Kind != LegOffChain {
			return ErrReceiptLegMismatch
		}
		key := receiptKey{signer: receipt.Signer, uid: receipt.UID}
		if _, ok := batch[key]; ok {
			return ErrReceiptUsed
		}
		batch[key] = struct{}{}
		if err := e.verifyReceipt(id, venue, receipt); err != nil {
			return err
		}
	}
	for _, pid := range portfolios {
		if err := e.requireCustody(caller, pid); err != nil {
			return err
		}
		if !isParty(legs, pid) {
			return ErrPortfolioNotParty
		}
		if err := e.markAffirmed(id, pid); err != nil {
			return err
		}
		for i, leg := range legs {
			if leg.From != pid || statuses[i] != LegPendingLock {
				continue
			}
			if leg.Kind == LegOnChain {
				if err := e.portfolios.Lock(leg.From, leg.Asset, leg.Amount); err != nil {
					return err
				}
			}
			statuses[i] = LegExecutionPending
		}
	}
	for _, receipt := range receipts {
		statuses[receipt.LegIndex] = LegExecutionToBeSkipped
		if err := e.state.ReceiptUsedPut(receipt.Signer, receipt.UID, true); err != nil {
			return err
		}
		clone := *receipt
		clone.Signature = append([]byte(nil), receipt.Signature...)
		if err := e.state.LegReceiptPut(id, receipt.LegIndex, &clone); err != nil {
			return err
		}
		e.emit(newReceiptClaimedEvent(id, receipt))
	}
	if err := e.state.LegStatusesPut(id, statuses); err != nil {
		return err
	}
	e.emit(newAffirmedEvent(id, caller, len(portfolios)))
	return e.maybeSettleOnAffirmation(instruction)
}

// ClaimReceipt settles one off-chain leg by a venue-signed receipt without
// affirming any portfolios.
func (e *Engine) ClaimReceipt(caller types.IdentityID, id uint64, receipt *ReceiptDetails) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	instruction, legs, statuses, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	if int(receipt.LegIndex) >= len(legs) || legs[receipt.LegIndex].Kind != LegOffChain {
		return ErrReceiptLegMismatch
	}
	if statuses[receipt.LegIndex] == LegExecutionToBeSkipped {
		return ErrReceiptUsed
	}
	if err := e.requireCustody(caller, legs[receipt.LegIndex].From); err != nil {
		return err
	}
	venue, ok, err := e.state.Venue(instruction.Venue)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchVenue
	}
	if err := e.verifyReceipt(id, venue, receipt); err != nil {
		return err
	}
	if err := e.state.ReceiptUsedPut(receipt.Signer, receipt.UID, true); err != nil {
		return err
	}
	clone := *receipt
	clone.Signature = append([]byte(nil), receipt.Signature...)
	if err := e.state.LegReceiptPut(id, receipt.LegIndex, &clone); err != nil {
		return err
	}
	statuses[receipt.LegIndex] = LegExecutionToBeSkipped
	if err := e.state.LegStatusesPut(id, statuses); err != nil {
		return err
	}
	e.emit(newReceiptClaimedEvent(id, receipt))
	return nil
}

// UnclaimReceipt detaches a receipt before execution, freeing its uid and
// returning the leg to pending execution.
func (e *Engine) UnclaimReceipt(caller types.IdentityID, id uint64, legIndex uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	_, legs, statuses, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	if int(legIndex) >= len(legs) {
		return ErrReceiptLegMismatch
	}
	if err := e.requireCustody(caller, legs[legIndex].From); err != nil {
		return err
	}
	receipt, ok, err := e.state.LegReceipt(id, legIndex)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoReceipt
	}
	if err := e.state.ReceiptUsedPut(receipt.Signer, receipt.UID, false); err != nil {
		return err
	}
	if err := e.state.LegReceiptDelete(id, legIndex); err != nil {
		return err
	}
	statuses[legIndex] = LegExecutionPending
	if err := e.state.LegStatusesPut(id, statuses); err != nil {
		return err
	}
	e.emit(newReceiptUnclaimedEvent(id, legIndex))
	return nil
}

// SetReceiptValidity lets a signer burn or revive one of its own uids.
func (e *Engine) SetReceiptValidity(signer types.AccountKey, uid uint64, used bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.ReceiptUsedPut(signer, uid, used)
}
