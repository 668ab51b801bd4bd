package settlement

import (
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypeVenueCreated is emitted for every new venue.
	EventTypeVenueCreated = "settlement.venue_created"
	// EventTypeVenueSignersUpdated is emitted when a venue's signer set changes.
	EventTypeVenueSignersUpdated = "settlement.venue_signers_updated"
	// EventTypeInstructionCreated is emitted when an instruction is added.
	EventTypeInstructionCreated = "settlement.instruction_created"
	// EventTypeAffirmed is emitted per affirmation call.
	EventTypeAffirmed = "settlement.affirmed"
	// EventTypeAffirmationWithdrawn is emitted when an affirmation is undone.
	EventTypeAffirmationWithdrawn = "settlement.affirmation_withdrawn"
	// EventTypeRejected is emitted when an instruction is rejected.
	EventTypeRejected = "settlement.rejected"
	// EventTypeRescheduled is emitted when a failed instruction is requeued.
	EventTypeRescheduled = "settlement.rescheduled"
	// EventTypeExecuted is emitted when an instruction settles.
	EventTypeExecuted = "settlement.executed"
	// EventTypeFailed is emitted when execution fails.
	EventTypeFailed = "settlement.failed"
	// EventTypeReceiptClaimed is emitted when a receipt settles a leg.
	EventTypeReceiptClaimed = "settlement.receipt_claimed"
	// EventTypeReceiptUnclaimed is emitted when a receipt is detached.
	EventTypeReceiptUnclaimed = "settlement.receipt_unclaimed"
	// EventTypeProofPosted is emitted per confidential proof stage.
	EventTypeProofPosted = "settlement.proof_posted"
)

type settlementEvent struct {
	evt *types.Event
}

func (e settlementEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e settlementEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(settlementEvent{evt: event})
}

func newVenueCreatedEvent(id uint64, venue *Venue) *types.Event {
	return &types.Event{Type: EventTypeVenueCreated, Attributes: map[string]string{
		"venue":   strconv.FormatUint(id, 10),
		"creator": venue.Creator.String(),
		"kind":    venue.Kind.String(),
	}}
}

func newVenueSignersUpdatedEvent(id uint64, count int) *types.Event {
	return &types.Event{Type: EventTypeVenueSignersUpdated, Attributes: map[string]string{
		"venue":   strconv.FormatUint(id, 10),
		"signers": strconv.Itoa(count),
	}}
}

func newInstructionCreatedEvent(instruction *Instruction, legs int) *types.Event {
	return &types.Event{Type: EventTypeInstructionCreated, Attributes: map[string]string{
		"instruction": strconv.FormatUint(instruction.ID, 10),
		"venue":       strconv.FormatUint(instruction.Venue, 10),
		"legs":        strconv.Itoa(legs),
	}}
}

func newAffirmedEvent(id uint64, caller types.IdentityID, portfolios int) *types.Event {
	return &types.Event{Type: EventTypeAffirmed, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"caller":      caller.String(),
		"portfolios":  strconv.Itoa(portfolios),
	}}
}

func newAffirmationWithdrawnEvent(id uint64, caller types.IdentityID) *types.Event {
	return &types.Event{Type: EventTypeAffirmationWithdrawn, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"caller":      caller.String(),
	}}
}

func newRejectedEvent(id uint64, caller types.IdentityID) *types.Event {
	return &types.Event{Type: EventTypeRejected, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"caller":      caller.String(),
	}}
}

func newRescheduledEvent(id, block uint64) *types.Event {
	return &types.Event{Type: EventTypeRescheduled, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"block":       strconv.FormatUint(block, 10),
	}}
}

func newExecutedEvent(id uint64) *types.Event {
	return &types.Event{Type: EventTypeExecuted, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
	}}
}

func newFailedEvent(id uint64, cause error) *types.Event {
	return &types.Event{Type: EventTypeFailed, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"reason":      cause.Error(),
	}}
}

func newReceiptClaimedEvent(id uint64, receipt *ReceiptDetails) *types.Event {
	return &types.Event{Type: EventTypeReceiptClaimed, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"leg":         strconv.FormatUint(uint64(receipt.LegIndex), 10),
		"uid":         strconv.FormatUint(receipt.UID, 10),
		"signer":      receipt.Signer.String(),
	}}
}

func newReceiptUnclaimedEvent(id uint64, legIndex uint32) *types.Event {
	return &types.Event{Type: EventTypeReceiptUnclaimed, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"leg":         strconv.FormatUint(uint64(legIndex), 10),
	}}
}

func newProofPostedEvent(id uint64, legIndex uint32, stage ProofStage) *types.Event {
	return &types.Event{Type: EventTypeProofPosted, Attributes: map[string]string{
		"instruction": strconv.FormatUint(id, 10),
		"leg":         strconv.FormatUint(uint64(legIndex), 10),
		"stage":       strconv.FormatUint(uint64(stage), 10),
	}}
}
