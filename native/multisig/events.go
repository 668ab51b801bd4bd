package multisig

import (
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypeCreated is emitted for every new multi-sig account.
	EventTypeCreated = "multisig.created"
	// EventTypeSignerAdded is emitted when an invited signer accepts.
	EventTypeSignerAdded = "multisig.signer_added"
	// EventTypeSignerRemoved is emitted when a signer is removed.
	EventTypeSignerRemoved = "multisig.signer_removed"
	// EventTypeProposalCreated is emitted for every new proposal.
	EventTypeProposalCreated = "multisig.proposal_created"
	// EventTypeApproved is emitted per approval.
	EventTypeApproved = "multisig.approved"
	// EventTypeRejected is emitted per rejection.
	EventTypeRejected = "multisig.rejected"
	// EventTypeExecuted is emitted when a proposal dispatches.
	EventTypeExecuted = "multisig.executed"
	// EventTypeSigsRequiredChanged is emitted when the threshold changes.
	EventTypeSigsRequiredChanged = "multisig.sigs_required_changed"
)

type multisigEvent struct {
	evt *types.Event
}

func (e multisigEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e multisigEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(multisigEvent{evt: event})
}

func newMultisigCreatedEvent(multisig *Multisig, invited int) *types.Event {
	return &types.Event{Type: EventTypeCreated, Attributes: map[string]string{
		"account":  multisig.Account.String(),
		"creator":  multisig.Creator.String(),
		"required": strconv.FormatUint(multisig.Required, 10),
		"invited":  strconv.Itoa(invited),
	}}
}

func newSignerAddedEvent(account, signer types.AccountKey) *types.Event {
	return &types.Event{Type: EventTypeSignerAdded, Attributes: map[string]string{
		"account": account.String(),
		"signer":  signer.String(),
	}}
}

func newSignerRemovedEvent(account, signer types.AccountKey) *types.Event {
	return &types.Event{Type: EventTypeSignerRemoved, Attributes: map[string]string{
		"account": account.String(),
		"signer":  signer.String(),
	}}
}

func newProposalCreatedEvent(account types.AccountKey, proposal *Proposal) *types.Event {
	return &types.Event{Type: EventTypeProposalCreated, Attributes: map[string]string{
		"account":  account.String(),
		"proposal": strconv.FormatUint(proposal.ID, 10),
		"creator":  proposal.Creator.String(),
		"call":     proposal.Call.Kind.String(),
	}}
}

func newApprovedEvent(account types.AccountKey, id uint64, signer types.AccountKey, approvals uint64) *types.Event {
	return &types.Event{Type: EventTypeApproved, Attributes: map[string]string{
		"account":   account.String(),
		"proposal":  strconv.FormatUint(id, 10),
		"signer":    signer.String(),
		"approvals": strconv.FormatUint(approvals, 10),
	}}
}

func newRejectedEvent(account types.AccountKey, id uint64, signer types.AccountKey, closed bool) *types.Event {
	return &types.Event{Type: EventTypeRejected, Attributes: map[string]string{
		"account":  account.String(),
		"proposal": strconv.FormatUint(id, 10),
		"signer":   signer.String(),
		"closed":   strconv.FormatBool(closed),
	}}
}

func newExecutedEvent(account types.AccountKey, id uint64, success bool) *types.Event {
	return &types.Event{Type: EventTypeExecuted, Attributes: map[string]string{
		"account":  account.String(),
		"proposal": strconv.FormatUint(id, 10),
		"success":  strconv.FormatBool(success),
	}}
}

func newSigsRequiredChangedEvent(account types.AccountKey, required uint64) *types.Event {
	return &types.Event{Type: EventTypeSigsRequiredChanged, Attributes: map[string]string{
		"account":  account.String(),
		"required": strconv.FormatUint(required, 10),
	}}
}
