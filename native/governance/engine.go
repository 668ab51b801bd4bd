package governance

import (
	"errors"
	"math/big"

	"capchain/core/events"
	"capchain/core/types"
)

var (
	errNilState      = errors.New("governance engine: state not configured")
	errNilDeposits   = errors.New("governance engine: deposit bridge not configured")
	errNilTreasury   = errors.New("governance engine: treasury bridge not configured")
	errNilDispatcher = errors.New("governance engine: dispatcher not configured")

	// ErrNoSuchProposal marks lookups of unknown proposals.
	ErrNoSuchProposal = errors.New("governance: no such proposal")
	// ErrNoSuchReferendum marks committee calls without a referendum.
	ErrNoSuchReferendum = errors.New("governance: no such referendum")
	// ErrInsufficientDeposit enforces the proposal deposit floor.
	ErrInsufficientDeposit = errors.New("governance: deposit below minimum")
	// ErrNotProposer marks cool-off mutations by other identities.
	ErrNotProposer = errors.New("governance: caller is not the proposer")
	// ErrProposalImmutable marks mutations of settled proposals.
	ErrProposalImmutable = errors.New("governance: proposal is immutable")
	// ErrProposalOnCoolOff marks votes before the window opens.
	ErrProposalOnCoolOff = errors.New("governance: proposal in cool-off period")
	// ErrVotingClosed marks votes after the deadline.
	ErrVotingClosed = errors.New("governance: voting closed")
	// ErrNotEnded marks close calls before the deadline.
	ErrNotEnded = errors.New("governance: voting has not ended")
	// ErrDuplicateVote marks a second vote by the same identity.
	ErrDuplicateVote = errors.New("governance: duplicate vote")
	// ErrNotCommitteeMember marks committee calls by outsiders.
	ErrNotCommitteeMember = errors.New("governance: caller is not a committee member")
	// ErrReferendumImmutable marks enact calls on settled referendums.
	ErrReferendumImmutable = errors.New("governance: referendum is immutable")
	// ErrProposalStillActive marks pruning of live proposals.
	ErrProposalStillActive = errors.New("governance: proposal still active")
	// ErrZeroVoteDeposit marks votes without stake.
	ErrZeroVoteDeposit = errors.New("governance: vote deposit must be positive")
)

// Default timing parameters, overridable at wiring time.
const (
	// DefaultCoolOffPeriod is one day of proposer-only amendments (millis).
	DefaultCoolOffPeriod = 24 * 60 * 60 * 1000
	// DefaultVotingPeriod is the seven day community vote window (millis).
	DefaultVotingPeriod = 7 * 24 * 60 * 60 * 1000
	// DefaultEnactmentPeriod is the block delay between enact and dispatch.
	DefaultEnactmentPeriod = 100
)

type engineState interface {
	MipNextID() (uint64, error)
	Mip(id uint64) (*Mip, bool, error)
	MipPut(mip *Mip) error
	MipDelete(id uint64) error
	Depositors(id uint64) ([]types.IdentityID, error)
	DepositorsPut(id uint64, dids []types.IdentityID) error
	Deposit(id uint64, did types.IdentityID) (*big.Int, error)
	DepositPut(id uint64, did types.IdentityID, amount *big.Int) error
	Voters(id uint64) ([]types.IdentityID, error)
	VotersPut(id uint64, dids []types.IdentityID) error
	Vote(id uint64, did types.IdentityID) (*MipVote, bool, error)
	VotePut(id uint64, did types.IdentityID, vote *MipVote) error
	Referendum(id uint64) (*Referendum, bool, error)
	ReferendumPut(referendum *Referendum) error
	ReferendumDelete(id uint64) error
	IsCommitteeMember(did types.IdentityID) (bool, error)
	EnactmentPeriod() (uint64, bool, error)
	EnactmentPeriodPut(blocks uint64) error
	ScheduledReferendums(block uint64) ([]uint64, error)
	ScheduledReferendumsPut(block uint64, ids []uint64) error
}

// Deposits reserves and releases native balance held against proposals and
// votes.
type Deposits interface {
	Reserve(did types.IdentityID, amount *big.Int) error
	Unreserve(did types.IdentityID, amount *big.Int) error
}

// Treasury covers beneficiary payouts of executed referendums.
type Treasury interface {
	Balance() (*big.Int, error)
	Pay(to types.IdentityID, amount *big.Int) error
}

// Dispatcher executes an enacted referendum's call with root authority.
type Dispatcher interface {
	DispatchAsRoot(call types.Command) error
}

// Txn nests a transaction scope around referendum dispatch so a failed call
// rolls back without undoing the state transition.
type Txn interface {
	Begin()
	Commit() error
	Rollback() error
}

type noopTxn struct{}

func (noopTxn) Begin()          {}
func (noopTxn) Commit() error   { return nil }
func (noopTxn) Rollback() error { return nil }

// Engine runs the improvement-proposal pipeline: deposits, cool-off, the
// community vote, referendums and scheduled enactment.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	deposits      Deposits
	treasury      Treasury
	dispatcher    Dispatcher
	txn           Txn
	minDeposit    *big.Int
	quorum        *big.Int
	coolOffPeriod uint64
	votingPeriod  uint64
}

// NewEngine constructs a governance engine with default parameters.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		txn:           noopTxn{},
		minDeposit:    big.NewInt(0),
		quorum:        big.NewInt(0),
		coolOffPeriod: DefaultCoolOffPeriod,
		votingPeriod:  DefaultVotingPeriod,
	}
}

// SetState wires the engine to its state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetDeposits wires the balance-reservation bridge.
func (e *Engine) SetDeposits(deposits Deposits) { e.deposits = deposits }

// SetTreasury wires the treasury bridge.
func (e *Engine) SetTreasury(treasury Treasury) { e.treasury = treasury }

// SetDispatcher wires the root command dispatch bridge.
func (e *Engine) SetDispatcher(dispatcher Dispatcher) { e.dispatcher = dispatcher }

// SetTxn wires the nested-transaction hook. Nil resets to a no-op.
func (e *Engine) SetTxn(txn Txn) {
	if txn == nil {
		e.txn = noopTxn{}
		return
	}
	e.txn = txn
}

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMinDeposit sets the proposal deposit floor.
func (e *Engine) SetMinDeposit(amount *big.Int) {
	if amount != nil {
		e.minDeposit = new(big.Int).Set(amount)
	}
}

// SetQuorum sets the aye-stake threshold for passing.
func (e *Engine) SetQuorum(amount *big.Int) {
	if amount != nil {
		e.quorum = new(big.Int).Set(amount)
	}
}

// SetPeriods overrides the cool-off and voting windows (millis).
func (e *Engine) SetPeriods(coolOff, voting uint64) {
	if coolOff > 0 {
		e.coolOffPeriod = coolOff
	}
	if voting > 0 {
		e.votingPeriod = voting
	}
}

func (e *Engine) requireCommittee(did types.IdentityID) error {
	member, err := e.state.IsCommitteeMember(did)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotCommitteeMember
	}
	return nil
}

// Propose opens a new improvement proposal, reserving the deposit.
func (e *Engine) Propose(proposer types.IdentityID, call types.Command, url, description string, deposit *big.Int, beneficiaries []Beneficiary, now uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if e.deposits == nil {
		return 0, errNilDeposits
	}
	if deposit == nil || deposit.Cmp(e.minDeposit) < 0 {
		return 0, ErrInsufficientDeposit
	}
	if err := e.deposits.Reserve(proposer, deposit); err != nil {
		return 0, err
	}
	id, err := e.state.MipNextID()
	if err != nil {
		return 0, err
	}
	mip := &Mip{
		ID:           id,
		Proposer:     proposer,
		Call:         call,
		URL:          url,
		Description:  description,
		CoolOffUntil: now + e.coolOffPeriod,
		State:        MipProposed,
		AyesStake:    big.NewInt(0),
		NaysStake:    big.NewInt(0),
	}
	mip.VotingEnd = mip.CoolOffUntil + e.votingPeriod
	for _, b := range beneficiaries {
		mip.Beneficiaries = append(mip.Beneficiaries, b.Clone())
	}
	if err := e.state.MipPut(mip); err != nil {
		return 0, err
	}
	if err := e.addDeposit(id, proposer, deposit); err != nil {
		return 0, err
	}
	e.emit(newProposedEvent(mip, deposit))
	return id, nil
}

func (e *Engine) addDeposit(id uint64, did types.IdentityID, amount *big.Int) error {
	current, err := e.state.Deposit(id, did)
	if err != nil {
		return err
	}
	if current == nil || current.Sign() == 0 {
		depositors, err := e.state.Depositors(id)
		if err != nil {
			return err
		}
		if err := e.state.DepositorsPut(id, append(depositors, did)); err != nil {
			return err
		}
		current = big.NewInt(0)
	}
	return e.state.DepositPut(id, did, new(big.Int).Add(current, amount))
}

func (e *Engine) loadProposed(id uint64) (*Mip, error) {
	mip, ok, err := e.state.Mip(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchProposal
	}
	if mip.State != MipProposed {
		return nil, ErrProposalImmutable
	}
	return mip, nil
}

// AmendProposal updates metadata during cool-off. Proposer only.
func (e *Engine) AmendProposal(caller types.IdentityID, id uint64, url, description string, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	if mip.Proposer != caller {
		return ErrNotProposer
	}
	if !mip.InCoolOff(now) {
		return ErrProposalImmutable
	}
	mip.URL = url
	mip.Description = description
	if err := e.state.MipPut(mip); err != nil {
		return err
	}
	e.emit(newAmendedEvent(id))
	return nil
}

// BondAdditionalDeposit adds stake during cool-off. Proposer only.
func (e *Engine) BondAdditionalDeposit(caller types.IdentityID, id uint64, amount *big.Int, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.deposits == nil {
		return errNilDeposits
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInsufficientDeposit
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	if mip.Proposer != caller {
		return ErrNotProposer
	}
	if !mip.InCoolOff(now) {
		return ErrProposalImmutable
	}
	if err := e.deposits.Reserve(caller, amount); err != nil {
		return err
	}
	return e.addDeposit(id, caller, amount)
}

// UnbondDeposit releases part of the proposer's stake during cool-off, never
// below the minimum.
func (e *Engine) UnbondDeposit(caller types.IdentityID, id uint64, amount *big.Int, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.deposits == nil {
		return errNilDeposits
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInsufficientDeposit
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	if mip.Proposer != caller {
		return ErrNotProposer
	}
	if !mip.InCoolOff(now) {
		return ErrProposalImmutable
	}
	current, err := e.state.Deposit(id, caller)
	if err != nil {
		return err
	}
	if current == nil {
		current = big.NewInt(0)
	}
	remaining := new(big.Int).Sub(current, amount)
	if remaining.Cmp(e.minDeposit) < 0 {
		return ErrInsufficientDeposit
	}
	if err := e.deposits.Unreserve(caller, amount); err != nil {
		return err
	}
	return e.state.DepositPut(id, caller, remaining)
}

// CancelProposal withdraws the proposal during cool-off, refunding all
// deposits. Proposer only.
func (e *Engine) CancelProposal(caller types.IdentityID, id uint64, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	if mip.Proposer != caller {
		return ErrNotProposer
	}
	if !mip.InCoolOff(now) {
		return ErrProposalImmutable
	}
	return e.closeProposal(mip, MipCancelled)
}

// KillProposal terminates a live proposal, refunding all deposits.
// Committee only.
func (e *Engine) KillProposal(caller types.IdentityID, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireCommittee(caller); err != nil {
		return err
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	return e.closeProposal(mip, MipKilled)
}

// closeProposal moves the proposal out of Proposed and unreserves every
// deposit and vote stake.
func (e *Engine) closeProposal(mip *Mip, state MipState) error {
	if e.deposits == nil {
		return errNilDeposits
	}
	if err := e.refundDeposits(mip.ID); err != nil {
		return err
	}
	if err := e.refundVoteStakes(mip.ID); err != nil {
		return err
	}
	mip.State = state
	if err := e.state.MipPut(mip); err != nil {
		return err
	}
	e.emit(newStateChangedEvent(mip.ID, state))
	return nil
}

func (e *Engine) refundDeposits(id uint64) error {
	depositors, err := e.state.Depositors(id)
	if err != nil {
		return err
	}
	for _, did := range depositors {
		amount, err := e.state.Deposit(id, did)
		if err != nil {
			return err
		}
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		if err := e.deposits.Unreserve(did, amount); err != nil {
			return err
		}
		if err := e.state.DepositPut(id, did, big.NewInt(0)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) refundVoteStakes(id uint64) error {
	voters, err := e.state.Voters(id)
	if err != nil {
		return err
	}
	for _, did := range voters {
		vote, ok, err := e.state.Vote(id, did)
		if err != nil {
			return err
		}
		if !ok || vote.Deposit == nil || vote.Deposit.Sign() == 0 {
			continue
		}
		if err := e.deposits.Unreserve(did, vote.Deposit); err != nil {
			return err
		}
	}
	return nil
}

// Vote casts one aye/nay vote with a locked stake during the voting window.
func (e *Engine) Vote(voter types.IdentityID, id uint64, aye bool, deposit *big.Int, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.deposits == nil {
		return errNilDeposits
	}
	if deposit == nil || deposit.Sign() <= 0 {
		return ErrZeroVoteDeposit
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	if mip.InCoolOff(now) {
		return ErrProposalOnCoolOff
	}
	if now >= mip.VotingEnd {
		return ErrVotingClosed
	}
	if _, ok, err := e.state.Vote(id, voter); err != nil {
		return err
	} else if ok {
		return ErrDuplicateVote
	}
	if err := e.deposits.Reserve(voter, deposit); err != nil {
		return err
	}
	voters, err := e.state.Voters(id)
	if err != nil {
		return err
	}
	if err := e.state.VotersPut(id, append(voters, voter)); err != nil {
		return err
	}
	if err := e.state.VotePut(id, voter, &MipVote{Aye: aye, Deposit: new(big.Int).Set(deposit)}); err != nil {
		return err
	}
	if aye {
		mip.AyesStake = new(big.Int).Add(mip.AyesStake, deposit)
	} else {
		mip.NaysStake = new(big.Int).Add(mip.NaysStake, deposit)
	}
	if err := e.state.MipPut(mip); err != nil {
		return err
	}
	e.emit(newVotedEvent(id, voter, aye, deposit))
	return nil
}

// CloseVote tallies the community vote after the deadline. A passing tally
// needs ayes strictly above nays and at or above the quorum.
func (e *Engine) CloseVote(id uint64, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	mip, err := e.loadProposed(id)
	if err != nil {
		return err
	}
	if now < mip.VotingEnd {
		return ErrNotEnded
	}
	passed := mip.AyesStake.Cmp(mip.NaysStake) > 0 && mip.AyesStake.Cmp(e.quorum) >= 0
	if !passed {
		return e.closeProposal(mip, MipRejected)
	}
	return e.openReferendum(mip, ReferendumCommunity)
}

// openReferendum moves the proposal to referendum, releasing every deposit.
func (e *Engine) openReferendum(mip *Mip, kind ReferendumKind) error {
	if err := e.refundDeposits(mip.ID); err != nil {
		return err
	}
	if err := e.refundVoteStakes(mip.ID); err != nil {
		return err
	}
	mip.State = MipReferendum
	if err := e.state.MipPut(mip); err != nil {
		return err
	}
	referendum := &Referendum{Mip: mip.ID, Kind: kind, State: ReferendumPending}
	if err := e.state.ReferendumPut(referendum); err != nil {
		return err
	}
	e.emit(newReferendumOpenedEvent(mip.ID, kind))
	return nil
}

// MipOf returns one proposal.
func (e *Engine) MipOf(id uint64) (*Mip, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	mip, ok, err := e.state.Mip(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchProposal
	}
	return mip, nil
}

// PruneHistoricalMips deletes finished proposals and their referendums.
func (e *Engine) PruneHistoricalMips(caller types.IdentityID, ids []uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireCommittee(caller); err != nil {
		return err
	}
	for _, id := range ids {
		mip, ok, err := e.state.Mip(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoSuchProposal
		}
		done := mip.State.Terminal()
		if mip.State == MipReferendum {
			referendum, ok, err := e.state.Referendum(id)
			if err != nil {
				return err
			}
			done = ok && referendum.State.Terminal()
		}
		if !done {
			return ErrProposalStillActive
		}
		if err := e.state.ReferendumDelete(id); err != nil {
			return err
		}
		if err := e.state.MipDelete(id); err != nil {
			return err
		}
		e.emit(newPrunedEvent(id))
	}
	return nil
}
