package governance

import (
	"math/big"
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypeProposed is emitted for every new proposal.
	EventTypeProposed = "governance.proposed"
	// EventTypeAmended is emitted on cool-off metadata changes.
	EventTypeAmended = "governance.amended"
	// EventTypeVoted is emitted per community vote.
	EventTypeVoted = "governance.voted"
	// EventTypeStateChanged is emitted on proposal state transitions.
	EventTypeStateChanged = "governance.state_changed"
	// EventTypeReferendumOpened is emitted when a referendum is created.
	EventTypeReferendumOpened = "governance.referendum_opened"
	// EventTypeScheduled is emitted when enactment is queued.
	EventTypeScheduled = "governance.scheduled"
	// EventTypeReferendumState is emitted on referendum transitions.
	EventTypeReferendumState = "governance.referendum_state"
	// EventTypePruned is emitted when a historical proposal is deleted.
	EventTypePruned = "governance.pruned"
)

type governanceEvent struct {
	evt *types.Event
}

func (e governanceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e governanceEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(governanceEvent{evt: event})
}

func newProposedEvent(mip *Mip, deposit *big.Int) *types.Event {
	return &types.Event{Type: EventTypeProposed, Attributes: map[string]string{
		"mip":        strconv.FormatUint(mip.ID, 10),
		"proposer":   mip.Proposer.String(),
		"call":       mip.Call.Kind.String(),
		"deposit":    deposit.String(),
		"voting_end": strconv.FormatUint(mip.VotingEnd, 10),
	}}
}

func newAmendedEvent(id uint64) *types.Event {
	return &types.Event{Type: EventTypeAmended, Attributes: map[string]string{
		"mip": strconv.FormatUint(id, 10),
	}}
}

func newVotedEvent(id uint64, voter types.IdentityID, aye bool, deposit *big.Int) *types.Event {
	return &types.Event{Type: EventTypeVoted, Attributes: map[string]string{
		"mip":     strconv.FormatUint(id, 10),
		"voter":   voter.String(),
		"aye":     strconv.FormatBool(aye),
		"deposit": deposit.String(),
	}}
}

func newStateChangedEvent(id uint64, state MipState) *types.Event {
	return &types.Event{Type: EventTypeStateChanged, Attributes: map[string]string{
		"mip":   strconv.FormatUint(id, 10),
		"state": state.String(),
	}}
}

func newReferendumOpenedEvent(id uint64, kind ReferendumKind) *types.Event {
	return &types.Event{Type: EventTypeReferendumOpened, Attributes: map[string]string{
		"mip":  strconv.FormatUint(id, 10),
		"kind": kind.String(),
	}}
}

func newScheduledEvent(id, enactAt uint64) *types.Event {
	return &types.Event{Type: EventTypeScheduled, Attributes: map[string]string{
		"mip":      strconv.FormatUint(id, 10),
		"enact_at": strconv.FormatUint(enactAt, 10),
	}}
}

func newReferendumStateEvent(id uint64, state ReferendumState) *types.Event {
	return &types.Event{Type: EventTypeReferendumState, Attributes: map[string]string{
		"mip":   strconv.FormatUint(id, 10),
		"state": state.String(),
	}}
}

func newPrunedEvent(id uint64) *types.Event {
	return &types.Event{Type: EventTypePruned, Attributes: map[string]string{
		"mip": strconv.FormatUint(id, 10),
	}}
}
