package governance

import (
	"math/big"

	"capchain/core/types"
)

// FastTrackProposal promotes a live proposal straight to referendum,
// skipping the rest of the vote. Committee only. All deposits are released
// on the state exit.
func (e *Engine) FastTrackProposal(caller types.IdentityID, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.deposits == nil {
		return errNilDeposits
	}
	if err := e.requireCommittee(caller); err != nil {
		return err
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	return e.openReferendum(mip, ReferendumFastTracked)
}

// EmergencyReferendum creates a referendum directly, without a community
// vote or deposit. Committee only.
func (e *Engine) EmergencyReferendum(caller types.IdentityID, call types.Command, url, description string, beneficiaries []Beneficiary, now uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := e.requireCommittee(caller); err != nil {
		return 0, err
	}
	id, err := e.state.MipNextID()
	if err != nil {
		return 0, err
	}
	mip := &Mip{
		ID:           id,
		Proposer:     caller,
		Call:         call,
		URL:          url,
		Description:  description,
		CoolOffUntil: now,
		VotingEnd:    now,
		State:        MipReferendum,
		AyesStake:    big.NewInt(0),
		NaysStake:    big.NewInt(0),
	}
	for _, b := range beneficiaries {
		mip.Beneficiaries = append(mip.Beneficiaries, b.Clone())
	}
	if err := e.state.MipPut(mip); err != nil {
		return 0, err
	}
	referendum := &Referendum{Mip: id, Kind: ReferendumEmergency, State: ReferendumPending}
	if err := e.state.ReferendumPut(referendum); err != nil {
		return 0, err
	}
	e.emit(newReferendumOpenedEvent(id, ReferendumEmergency))
	return id, nil
}

func (e *Engine) loadPendingReferendum(id uint64) (*Referendum, error) {
	referendum, ok, err := e.state.Referendum(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchReferendum
	}
	if referendum.State != ReferendumPending {
		return nil, ErrReferendumImmutable
	}
	return referendum, nil
}

// enactmentPeriod reads the configured block delay, defaulting when unset.
func (e *Engine) enactmentPeriod() (uint64, error) {
	period, ok, err := e.state.EnactmentPeriod()
	if err != nil {
		return 0, err
	}
	if !ok || period == 0 {
		return DefaultEnactmentPeriod, nil
	}
	return period, nil
}

// SetReferendumEnactmentPeriod updates the default enactment delay.
// Committee only.
func (e *Engine) SetReferendumEnactmentPeriod(caller types.IdentityID, blocks uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireCommittee(caller); err != nil {
		return err
	}
	return e.state.EnactmentPeriodPut(blocks)
}

// EnactReferendum schedules a pending referendum for dispatch. Committee
// only.
func (e *Engine) EnactReferendum(caller types.IdentityID, id uint64, currentBlock uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireCommittee(caller); err != nil {
		return err
	}
	referendum, err := e.loadPendingReferendum(id)
	if err != nil {
		return err
	}
	period, err := e.enactmentPeriod()
	if err != nil {
		return err
	}
	referendum.State = ReferendumScheduled
	referendum.HasEnactAt = true
	referendum.EnactAt = currentBlock + period
	if err := e.state.ReferendumPut(referendum); err != nil {
		return err
	}
	queued, err := e.state.ScheduledReferendums(referendum.EnactAt)
	if err != nil {
		return err
	}
	if err := e.state.ScheduledReferendumsPut(referendum.EnactAt, append(queued, id)); err != nil {
		return err
	}
	e.emit(newScheduledEvent(id, referendum.EnactAt))
	return nil
}

// RejectReferendum refuses a pending referendum. Committee only.
func (e *Engine) RejectReferendum(caller types.IdentityID, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireCommittee(caller); err != nil {
		return err
	}
	referendum, err := e.loadPendingReferendum(id)
	if err != nil {
		return err
	}
	referendum.State = ReferendumRejected
	if err := e.state.ReferendumPut(referendum); err != nil {
		return err
	}
	e.emit(newReferendumStateEvent(id, ReferendumRejected))
	return nil
}

// ReferendumOf returns one referendum.
func (e *Engine) ReferendumOf(id uint64) (*Referendum, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	referendum, ok, err := e.state.Referendum(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchReferendum
	}
	return referendum, nil
}

// EnactScheduled dispatches every referendum queued for the block. The
// treasury must cover the beneficiary total before dispatch; a failed call
// rolls back its own effects only.
func (e *Engine) EnactScheduled(block uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.treasury == nil {
		return errNilTreasury
	}
	if e.dispatcher == nil {
		return errNilDispatcher
	}
	ids, err := e.state.ScheduledReferendums(block)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := e.state.ScheduledReferendumsPut(block, nil); err != nil {
		return err
	}
	for _, id := range ids {
		referendum, ok, err := e.state.Referendum(id)
		if err != nil {
			return err
		}
		if !ok || referendum.State != ReferendumScheduled || referendum.EnactAt != block {
			continue
		}
		if err := e.enactOne(referendum); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) enactOne(referendum *Referendum) error {
	mip, ok, err := e.state.Mip(referendum.Mip)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchProposal
	}

	total := big.NewInt(0)
	for _, b := range mip.Beneficiaries {
		if b.Amount != nil {
			total.Add(total, b.Amount)
		}
	}
	balance, err := e.treasury.Balance()
	if err != nil {
		return err
	}
	if balance.Cmp(total) < 0 {
		referendum.State = ReferendumFailedDisbursement
		if err := e.state.ReferendumPut(referendum); err != nil {
			return err
		}
		e.emit(newReferendumStateEvent(referendum.Mip, ReferendumFailedDisbursement))
		return nil
	}

	e.txn.Begin()
	if err := e.dispatcher.DispatchAsRoot(mip.Call); err != nil {
		if rbErr := e.txn.Rollback(); rbErr != nil {
			return rbErr
		}
		referendum.State = ReferendumFailedExecution
		if err := e.state.ReferendumPut(referendum); err != nil {
			return err
		}
		e.emit(newReferendumStateEvent(referendum.Mip, ReferendumFailedExecution))
		return nil
	}
	if err := e.txn.Commit(); err != nil {
		return err
	}

	for _, b := range mip.Beneficiaries {
		if b.Amount == nil || b.Amount.Sign() == 0 {
			continue
		}
		if err := e.treasury.Pay(b.To, b.Amount); err != nil {
			return err
		}
	}
	referendum.State = ReferendumExecuted
	if err := e.state.ReferendumPut(referendum); err != nil {
		return err
	}
	e.emit(newReferendumStateEvent(referendum.Mip, ReferendumExecuted))
	return nil
}
