package multisig

import (
	"encoding/binary"
	"errors"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"capchain/core/events"
	"capchain/core/types"
)

var (
	errNilState      = errors.New("multisig engine: state not configured")
	errNilDispatcher = errors.New("multisig engine: dispatcher not configured")
	errNilAuthorizer = errors.New("multisig engine: authorizer not configured")

	// ErrNoSuchMultisig marks lookups of unknown multi-sig accounts.
	ErrNoSuchMultisig = errors.New("multisig: no such multisig")
	// ErrNoSuchProposal marks votes on unknown proposals.
	ErrNoSuchProposal = errors.New("multisig: no such proposal")
	// ErrRequiredOutOfRange enforces 0 < required <= signer count.
	ErrRequiredOutOfRange = errors.New("multisig: required signatures out of range")
	// ErrNotSigner marks calls by keys outside the signer set.
	ErrNotSigner = errors.New("multisig: key is not a signer")
	// ErrAlreadySigner marks duplicate signer additions.
	ErrAlreadySigner = errors.New("multisig: key is already a signer")
	// ErrProposalExpired marks votes at or after expires_at.
	ErrProposalExpired = errors.New("multisig: proposal expired")
	// ErrProposalClosed marks votes on settled proposals.
	ErrProposalClosed = errors.New("multisig: proposal closed")
	// ErrAlreadyVoted marks a signer changing an existing vote.
	ErrAlreadyVoted = errors.New("multisig: signer already voted")
)

type engineState interface {
	Multisig(account types.AccountKey) (*Multisig, bool, error)
	MultisigPut(multisig *Multisig) error
	MultisigNonce(creator types.IdentityID) (uint64, error)
	MultisigNoncePut(creator types.IdentityID, nonce uint64) error
	Proposal(account types.AccountKey, id uint64) (*Proposal, bool, error)
	ProposalPut(account types.AccountKey, proposal *Proposal) error
	Vote(account types.AccountKey, id uint64, signer types.AccountKey) (VoteKind, error)
	VotePut(account types.AccountKey, id uint64, signer types.AccountKey, vote VoteKind) error
}

// Authorizer issues the join invitation a prospective signer accepts.
type Authorizer interface {
	InviteSigner(multisig, signer types.AccountKey) error
}

// Dispatcher executes an approved proposal's call under the authority of the
// multi-sig account.
type Dispatcher interface {
	DispatchAsMultisig(account types.AccountKey, call types.Command) error
}

// Engine manages threshold-controlled accounts and their proposals.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	authorizer Authorizer
	dispatcher Dispatcher
}

// NewEngine constructs a multisig engine.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to its state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAuthorizer wires the signer-invitation bridge.
func (e *Engine) SetAuthorizer(authorizer Authorizer) { e.authorizer = authorizer }

// SetDispatcher wires the command dispatch bridge.
func (e *Engine) SetDispatcher(dispatcher Dispatcher) { e.dispatcher = dispatcher }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// DeriveAccount computes the multi-sig account for a creator and nonce.
func DeriveAccount(creator types.IdentityID, nonce uint64) types.AccountKey {
	buf := make([]byte, 0, 40)
	buf = append(buf, creator[:]...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	digest := gethcrypto.Keccak256(buf)
	var account types.AccountKey
	copy(account[:], digest[12:])
	return account
}

// CreateMultisig derives a fresh account and invites the signer set. Signers
// become active only after accepting their invitation.
func (e *Engine) CreateMultisig(creator types.IdentityID, signers []types.AccountKey, required uint64) (types.AccountKey, error) {
	if e == nil || e.state == nil {
		return types.AccountKey{}, errNilState
	}
	if e.authorizer == nil {
		return types.AccountKey{}, errNilAuthorizer
	}
	if required == 0 || required > uint64(len(signers)) {
		return types.AccountKey{}, ErrRequiredOutOfRange
	}
	nonce, err := e.state.MultisigNonce(creator)
	if err != nil {
		return types.AccountKey{}, err
	}
	if err := e.state.MultisigNoncePut(creator, nonce+1); err != nil {
		return types.AccountKey{}, err
	}
	account := DeriveAccount(creator, nonce)
	multisig := &Multisig{Account: account, Creator: creator, Required: required}
	if err := e.state.MultisigPut(multisig); err != nil {
		return types.AccountKey{}, err
	}
	for _, signer := range signers {
		if err := e.authorizer.InviteSigner(account, signer); err != nil {
			return types.AccountKey{}, err
		}
	}
	e.emit(newMultisigCreatedEvent(multisig, len(signers)))
	return account, nil
}

// SignerAccepted activates an invited signer. Called when the invitation
// authorization is consumed.
func (e *Engine) SignerAccepted(account, signer types.AccountKey) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	multisig, ok, err := e.state.Multisig(account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchMultisig
	}
	if multisig.HasSigner(signer) {
		return ErrAlreadySigner
	}
	multisig.Signers = append(multisig.Signers, signer)
	if err := e.state.MultisigPut(multisig); err != nil {
		return err
	}
	e.emit(newSignerAddedEvent(account, signer))
	return nil
}

// MultisigOf returns one multi-sig account record.
func (e *Engine) MultisigOf(account types.AccountKey) (*Multisig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	multisig, ok, err := e.state.Multisig(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchMultisig
	}
	return multisig, nil
}

// CreateProposal stores a new proposal and counts the creator's approval.
func (e *Engine) CreateProposal(creator types.AccountKey, account types.AccountKey, call types.Command, expiresAt *uint64, autoClose bool, now uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	multisig, ok, err := e.state.Multisig(account)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoSuchMultisig
	}
	if !multisig.HasSigner(creator) {
		return 0, ErrNotSigner
	}
	id := multisig.ProposalSeq
	multisig.ProposalSeq++
	if err := e.state.MultisigPut(multisig); err != nil {
		return 0, err
	}
	proposal := &Proposal{
		ID:        id,
		Creator:   creator,
		Call:      call,
		AutoClose: autoClose,
		Status:    ProposalActive,
	}
	if expiresAt != nil {
		proposal.HasExpiry = true
		proposal.ExpiresAt = *expiresAt
	}
	if err := e.state.ProposalPut(account, proposal); err != nil {
		return 0, err
	}
	e.emit(newProposalCreatedEvent(account, proposal))
	if err := e.Approve(creator, account, id, now); err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) loadVoteContext(signer, account types.AccountKey, id uint64, now uint64) (*Multisig, *Proposal, error) {
	multisig, ok, err := e.state.Multisig(account)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNoSuchMultisig
	}
	if !multisig.HasSigner(signer) {
		return nil, nil, ErrNotSigner
	}
	proposal, ok, err := e.state.Proposal(account, id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNoSuchProposal
	}
	if proposal.Expired(now) {
		return nil, nil, ErrProposalExpired
	}
	return multisig, proposal, nil
}

// Approve records a signer's approval. Repeated approvals are no-ops. Once
// approvals reach the threshold on an active proposal the call dispatches
// under the multi-sig account. A rejected proposal with auto_close refuses
// the vote; without auto_close the approval is recorded but the status stays
// rejected.
func (e *Engine) Approve(signer, account types.AccountKey, id uint64, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	multisig, proposal, err := e.loadVoteContext(signer, account, id, now)
	if err != nil {
		return err
	}
	switch proposal.Status {
	case ProposalActive:
	case ProposalRejected:
		if proposal.AutoClose {
			return ErrProposalClosed
		}
	default:
		return ErrProposalClosed
	}
	vote, err := e.state.Vote(account, id, signer)
	if err != nil {
		return err
	}
	if vote == VoteApprove {
		return nil
	}
	if vote == VoteReject {
		return ErrAlreadyVoted
	}
	if err := e.state.VotePut(account, id, signer, VoteApprove); err != nil {
		return err
	}
	proposal.Approvals++
	if err := e.state.ProposalPut(account, proposal); err != nil {
		return err
	}
	e.emit(newApprovedEvent(account, id, signer, proposal.Approvals))
	if proposal.Status != ProposalActive || proposal.Approvals < multisig.Required {
		return nil
	}
	return e.dispatch(account, proposal)
}

func (e *Engine) dispatch(account types.AccountKey, proposal *Proposal) error {
	if e.dispatcher == nil {
		return errNilDispatcher
	}
	if err := e.dispatcher.DispatchAsMultisig(account, proposal.Call); err != nil {
		proposal.Status = ProposalExecutionFailed
		if putErr := e.state.ProposalPut(account, proposal); putErr != nil {
			return putErr
		}
		e.emit(newExecutedEvent(account, proposal.ID, false))
		return nil
	}
	proposal.Status = ProposalExecutionSuccessful
	if err := e.state.ProposalPut(account, proposal); err != nil {
		return err
	}
	e.emit(newExecutedEvent(account, proposal.ID, true))
	return nil
}

// Reject records a signer's rejection. When rejections reach
// signers - required + 1 no approval path remains and the proposal closes
// rejected.
func (e *Engine) Reject(signer, account types.AccountKey, id uint64, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	multisig, proposal, err := e.loadVoteContext(signer, account, id, now)
	if err != nil {
		return err
	}
	if proposal.Status != ProposalActive {
		return ErrProposalClosed
	}
	vote, err := e.state.Vote(account, id, signer)
	if err != nil {
		return err
	}
	if vote == VoteReject {
		return nil
	}
	if vote == VoteApprove {
		return ErrAlreadyVoted
	}
	if err := e.state.VotePut(account, id, signer, VoteReject); err != nil {
		return err
	}
	proposal.Rejections++
	if proposal.Rejections >= multisig.RejectionThreshold() {
		proposal.Status = ProposalRejected
	}
	if err := e.state.ProposalPut(account, proposal); err != nil {
		return err
	}
	e.emit(newRejectedEvent(account, id, signer, proposal.Status == ProposalRejected))
	return nil
}

// ProposalOf returns one proposal.
func (e *Engine) ProposalOf(account types.AccountKey, id uint64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	proposal, ok, err := e.state.Proposal(account, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchProposal
	}
	return proposal, nil
}

// ChangeSigsRequired updates the threshold. Only the multi-sig account
// itself may call this, which routes the change through a proposal.
func (e *Engine) ChangeSigsRequired(origin types.AccountKey, required uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	multisig, ok, err := e.state.Multisig(origin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchMultisig
	}
	if required == 0 || required > uint64(len(multisig.Signers)) {
		return ErrRequiredOutOfRange
	}
	multisig.Required = required
	if err := e.state.MultisigPut(multisig); err != nil {
		return err
	}
	e.emit(newSigsRequiredChangedEvent(origin, required))
	return nil
}

// AddSigner invites a new signer. Only the multi-sig account itself may
// call this.
func (e *Engine) AddSigner(origin types.AccountKey, signer types.AccountKey) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.authorizer == nil {
		return errNilAuthorizer
	}
	multisig, ok, err := e.state.Multisig(origin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchMultisig
	}
	if multisig.HasSigner(signer) {
		return ErrAlreadySigner
	}
	return e.authorizer.InviteSigner(origin, signer)
}

// RemoveSigner drops a signer. Refused when the remaining set would violate
// the required threshold.
func (e *Engine) RemoveSigner(origin types.AccountKey, signer types.AccountKey) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	multisig, ok, err := e.state.Multisig(origin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchMultisig
	}
	if !multisig.HasSigner(signer) {
		return ErrNotSigner
	}
	if uint64(len(multisig.Signers))-1 < multisig.Required {
		return ErrRequiredOutOfRange
	}
	kept := multisig.Signers[:0]
	for _, existing := range multisig.Signers {
		if existing != signer {
			kept = append(kept, existing)
		}
	}
	multisig.Signers = kept
	if err := e.state.MultisigPut(multisig); err != nil {
		return err
	}
	e.emit(newSignerRemovedEvent(origin, signer))
	return nil
}
