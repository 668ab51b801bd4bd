package settlement

import (
	"errors"
	"fmt"

	"capchain/native/compliance"
)

var (
	// ErrProofChainIncomplete marks execution with unjustified confidential legs.
	ErrProofChainIncomplete = errors.New("settlement: confidential proof chain incomplete")
	// ErrNotReadyToExecute marks scheduled execution with outstanding affirmations.
	ErrNotReadyToExecute = errors.New("settlement: affirmations outstanding")
)

// ExecuteScheduled settles every instruction queued for the block. Each runs
// in its own nested transaction; a failure marks that instruction failed and
// leaves the rest untouched.
func (e *Engine) ExecuteScheduled(block uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	ids, err := e.state.ScheduledInstructions(block)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := e.state.ScheduledInstructionsPut(block, nil); err != nil {
		return err
	}
	for _, id := range ids {
		instruction, ok, err := e.state.Instruction(id)
		if err != nil {
			return err
		}
		if !ok || instruction.Status != StatusPending || instruction.SettleBlock != block {
			continue
		}
		e.txn.Begin()
		if err := e.executeReady(id); err != nil {
			if rbErr := e.txn.Rollback(); rbErr != nil {
				return rbErr
			}
			if err := e.markFailed(id, err); err != nil {
				return err
			}
			continue
		}
		if err := e.txn.Commit(); err != nil {
			return err
		}
		if err := e.finishExecution(id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) executeReady(id uint64) error {
	pending, err := e.state.AffirmsPending(id)
	if err != nil {
		return err
	}
	if pending != 0 {
		return ErrNotReadyToExecute
	}
	return e.executeLegs(id)
}

// executeLegs moves every affirmed leg. On-chain legs unlock and transfer
// through compliance; receipt-settled legs are skipped; confidential legs
// require a justified proof chain.
func (e *Engine) executeLegs(id uint64) error {
	if e.compliance == nil {
		return errNilCompliance
	}
	legs, err := e.state.Legs(id)
	if err != nil {
		return err
	}
	statuses, err := e.state.LegStatuses(id)
	if err != nil {
		return err
	}
	for i, leg := range legs {
		switch statuses[i] {
		case LegExecutionToBeSkipped:
			continue
		case LegExecutionPending:
		default:
			return fmt.Errorf("settlement: leg %d not affirmed", i)
		}
		if leg.Kind == LegConfidential {
			proofs, err := e.state.LegProofs(id, uint32(i))
			if err != nil {
				return err
			}
			required := StageReceiverFinalized
			if leg.HasMediator {
				required = StageMediatorJustified
			}
			if proofs == nil || proofs.Stage < required {
				return ErrProofChainIncomplete
			}
			continue
		}
		if err := e.executeOnChainLeg(leg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) executeOnChainLeg(leg Leg) error {
	if err := e.portfolios.Unlock(leg.From, leg.Asset, leg.Amount); err != nil {
		return err
	}
	fromBefore, err := e.portfolios.IdentityBalance(leg.Asset, leg.From.DID)
	if err != nil {
		return err
	}
	toBefore, err := e.portfolios.IdentityBalance(leg.Asset, leg.To.DID)
	if err != nil {
		return err
	}
	supply, err := e.portfolios.Supply(leg.Asset)
	if err != nil {
		return err
	}
	meter := compliance.NewWeightMeter(e.weightLimit)
	from, to := leg.From.DID, leg.To.DID
	if err := e.compliance.VerifyTransfer(leg.Asset, &from, &to, leg.Amount, fromBefore, toBefore, supply, meter); err != nil {
		return err
	}
	if err := e.portfolios.Transfer(leg.From, leg.To, leg.Asset, leg.Amount); err != nil {
		return err
	}
	// Intra-identity portfolio moves do not change holder aggregates.
	if from == to {
		return nil
	}
	return e.compliance.UpdateStats(leg.Asset, &from, &to, leg.Amount, fromBefore, toBefore, meter)
}

// finishExecution removes the settled instruction and its side tables.
func (e *Engine) finishExecution(id uint64) error {
	legs, err := e.state.Legs(id)
	if err != nil {
		return err
	}
	if err := e.clearInstruction(id, legs); err != nil {
		return err
	}
	e.emit(newExecutedEvent(id))
	return nil
}

func (e *Engine) markFailed(id uint64, cause error) error {
	instruction, ok, err := e.state.Instruction(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchInstruction
	}
	instruction.Status = StatusFailed
	if err := e.state.InstructionPut(instruction); err != nil {
		return err
	}
	e.emit(newFailedEvent(id, cause))
	return nil
}

func (e *Engine) clearInstruction(id uint64, legs []Leg) error {
	for i := range legs {
		if err := e.state.LegReceiptDelete(id, uint32(i)); err != nil {
			return err
		}
		if err := e.state.LegProofsDelete(id, uint32(i)); err != nil {
			return err
		}
	}
	if err := e.state.LegStatusesDelete(id); err != nil {
		return err
	}
	if err := e.state.LegsDelete(id); err != nil {
		return err
	}
	if err := e.state.AffirmedPortfoliosDelete(id); err != nil {
		return err
	}
	if err := e.state.AffirmsPendingPut(id, 0); err != nil {
		return err
	}
	return e.state.InstructionDelete(id)
}
