package settlement

import (
	"errors"

	"capchain/core/types"
)

var (
	// ErrNotConfidentialLeg marks proofs posted to plain legs.
	ErrNotConfidentialLeg = errors.New("settlement: leg is not confidential")
	// ErrProofOutOfOrder marks proofs posted out of stage order.
	ErrProofOutOfOrder = errors.New("settlement: proof posted out of order")
	// ErrEmptyProof marks empty proof payloads.
	ErrEmptyProof = errors.New("settlement: empty proof")
	// ErrLegHasNoMediator marks mediator proofs on unmediated legs.
	ErrLegHasNoMediator = errors.New("settlement: leg has no mediator")
)

// confidentialLeg fetches one confidential leg and its proof record.
func (e *Engine) confidentialLeg(id uint64, legIndex uint32) (Leg, *LegProofs, error) {
	legs, err := e.state.Legs(id)
	if err != nil {
		return Leg{}, nil, err
	}
	if int(legIndex) >= len(legs) {
		return Leg{}, nil, ErrNoSuchInstruction
	}
	leg := legs[legIndex]
	if leg.Kind != LegConfidential {
		return Leg{}, nil, ErrNotConfidentialLeg
	}
	proofs, err := e.state.LegProofs(id, legIndex)
	if err != nil {
		return Leg{}, nil, err
	}
	if proofs == nil {
		proofs = &LegProofs{Stage: StageNone}
	}
	return leg, proofs, nil
}

// PostSenderProof starts the proof chain for a confidential leg. Only the
// custodian of the sending portfolio may post it.
func (e *Engine) PostSenderProof(caller types.IdentityID, id uint64, legIndex uint32, proof []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(proof) == 0 {
		return ErrEmptyProof
	}
	if _, _, _, err := e.loadInstruction(id); err != nil {
		return err
	}
	leg, proofs, err := e.confidentialLeg(id, legIndex)
	if err != nil {
		return err
	}
	if err := e.requireCustody(caller, leg.From); err != nil {
		return err
	}
	if proofs.Stage != StageNone {
		return ErrProofOutOfOrder
	}
	proofs.Stage = StageSenderInitialized
	proofs.SenderProof = append([]byte(nil), proof...)
	if err := e.state.LegProofsPut(id, legIndex, proofs); err != nil {
		return err
	}
	e.emit(newProofPostedEvent(id, legIndex, StageSenderInitialized))
	return nil
}

// PostReceiverProof confirms the sender's proof. Only the custodian of the
// receiving portfolio may post it.
func (e *Engine) PostReceiverProof(caller types.IdentityID, id uint64, legIndex uint32, proof []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(proof) == 0 {
		return ErrEmptyProof
	}
	if _, _, _, err := e.loadInstruction(id); err != nil {
		return err
	}
	leg, proofs, err := e.confidentialLeg(id, legIndex)
	if err != nil {
		return err
	}
	if err := e.requireCustody(caller, leg.To); err != nil {
		return err
	}
	if proofs.Stage != StageSenderInitialized {
		return ErrProofOutOfOrder
	}
	proofs.Stage = StageReceiverFinalized
	proofs.ReceiverProof = append([]byte(nil), proof...)
	if err := e.state.LegProofsPut(id, legIndex, proofs); err != nil {
		return err
	}
	e.emit(newProofPostedEvent(id, legIndex, StageReceiverFinalized))
	return nil
}

// PostMediatorProof completes the chain. Unmediated legs finalize at the
// receiver stage instead and reject this call.
func (e *Engine) PostMediatorProof(caller types.IdentityID, id uint64, legIndex uint32, proof []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(proof) == 0 {
		return ErrEmptyProof
	}
	if _, _, _, err := e.loadInstruction(id); err != nil {
		return err
	}
	leg, proofs, err := e.confidentialLeg(id, legIndex)
	if err != nil {
		return err
	}
	if !leg.HasMediator {
		return ErrLegHasNoMediator
	}
	if caller != leg.Mediator {
		return ErrNotMediator
	}
	if proofs.Stage != StageReceiverFinalized {
		return ErrProofOutOfOrder
	}
	proofs.Stage = StageMediatorJustified
	proofs.MediatorProof = append([]byte(nil), proof...)
	if err := e.state.LegProofsPut(id, legIndex, proofs); err != nil {
		return err
	}
	e.emit(newProofPostedEvent(id, legIndex, StageMediatorJustified))
	return nil
}

// ProofStateOf returns the current proof record for a confidential leg.
func (e *Engine) ProofStateOf(id uint64, legIndex uint32) (*LegProofs, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, _, _, err := e.loadInstruction(id); err != nil {
		return nil, err
	}
	_, proofs, err := e.confidentialLeg(id, legIndex)
	if err != nil {
		return nil, err
	}
	return proofs.Clone(), nil
}
