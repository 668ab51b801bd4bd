package corporate

import (
	"math/big"
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypeAgentChanged is emitted when agency is accepted or reset.
	EventTypeAgentChanged = "corporate.agent_changed"
	// EventTypeCAInitiated is emitted for every declared corporate action.
	EventTypeCAInitiated = "corporate.ca_initiated"
	// EventTypeRecordDateChanged is emitted on record date changes.
	EventTypeRecordDateChanged = "corporate.record_date_changed"
	// EventTypeCARemoved is emitted when a CA is torn down.
	EventTypeCARemoved = "corporate.ca_removed"
	// EventTypeDocumentsAdded is emitted when asset documents are registered.
	EventTypeDocumentsAdded = "corporate.documents_added"
	// EventTypeDocsLinked is emitted when documents are linked to a CA.
	EventTypeDocsLinked = "corporate.docs_linked"
	// EventTypeBallotAttached is emitted when a ballot is attached.
	EventTypeBallotAttached = "corporate.ballot_attached"
	// EventTypeVoteCast is emitted for every accepted vote.
	EventTypeVoteCast = "corporate.vote_cast"
	// EventTypeVoteWithdrawn is emitted when a vote is withdrawn.
	EventTypeVoteWithdrawn = "corporate.vote_withdrawn"
	// EventTypeDistributionCreated is emitted when a distribution attaches.
	EventTypeDistributionCreated = "corporate.distribution_created"
	// EventTypeBenefitClaimed is emitted for every paid benefit.
	EventTypeBenefitClaimed = "corporate.benefit_claimed"
	// EventTypeDistributionReclaimed is emitted on reclaim.
	EventTypeDistributionReclaimed = "corporate.distribution_reclaimed"
)

type corporateEvent struct {
	evt *types.Event
}

func (e corporateEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e corporateEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(corporateEvent{evt: event})
}

func newAgentChangedEvent(ticker types.Ticker, agent types.IdentityID) *types.Event {
	return &types.Event{Type: EventTypeAgentChanged, Attributes: map[string]string{
		"ticker": ticker.String(),
		"agent":  agent.String(),
	}}
}

func newCAInitiatedEvent(id types.CAID, ca *CorporateAction) *types.Event {
	attrs := map[string]string{
		"ca":        id.String(),
		"kind":      ca.Kind.String(),
		"decl_date": strconv.FormatUint(ca.DeclDate, 10),
	}
	if ca.HasRecordDate {
		attrs["record_date"] = strconv.FormatUint(ca.RecordDate.Date, 10)
	}
	return &types.Event{Type: EventTypeCAInitiated, Attributes: attrs}
}

func newRecordDateChangedEvent(id types.CAID, ca *CorporateAction) *types.Event {
	attrs := map[string]string{"ca": id.String()}
	if ca.HasRecordDate {
		attrs["record_date"] = strconv.FormatUint(ca.RecordDate.Date, 10)
	}
	return &types.Event{Type: EventTypeRecordDateChanged, Attributes: attrs}
}

func newCARemovedEvent(id types.CAID) *types.Event {
	return &types.Event{Type: EventTypeCARemoved, Attributes: map[string]string{
		"ca": id.String(),
	}}
}

func newDocumentsAddedEvent(ticker types.Ticker, count int) *types.Event {
	return &types.Event{Type: EventTypeDocumentsAdded, Attributes: map[string]string{
		"ticker":    ticker.String(),
		"documents": strconv.Itoa(count),
	}}
}

func newDocsLinkedEvent(id types.CAID, count int) *types.Event {
	return &types.Event{Type: EventTypeDocsLinked, Attributes: map[string]string{
		"ca":        id.String(),
		"documents": strconv.Itoa(count),
	}}
}

func newBallotAttachedEvent(id types.CAID, ballot *Ballot) *types.Event {
	return &types.Event{Type: EventTypeBallotAttached, Attributes: map[string]string{
		"ca":    id.String(),
		"start": strconv.FormatUint(ballot.Start, 10),
		"end":   strconv.FormatUint(ballot.End, 10),
	}}
}

func newVoteCastEvent(id types.CAID, voter types.IdentityID) *types.Event {
	return &types.Event{Type: EventTypeVoteCast, Attributes: map[string]string{
		"ca":    id.String(),
		"voter": voter.String(),
	}}
}

func newVoteWithdrawnEvent(id types.CAID, voter types.IdentityID) *types.Event {
	return &types.Event{Type: EventTypeVoteWithdrawn, Attributes: map[string]string{
		"ca":    id.String(),
		"voter": voter.String(),
	}}
}

func newDistributionCreatedEvent(id types.CAID, dist *Distribution) *types.Event {
	return &types.Event{Type: EventTypeDistributionCreated, Attributes: map[string]string{
		"ca":         id.String(),
		"currency":   dist.Currency.String(),
		"amount":     dist.Amount.String(),
		"payment_at": strconv.FormatUint(dist.PaymentAt, 10),
	}}
}

func newBenefitClaimedEvent(id types.CAID, holder types.IdentityID, net *big.Int) *types.Event {
	return &types.Event{Type: EventTypeBenefitClaimed, Attributes: map[string]string{
		"ca":     id.String(),
		"holder": holder.String(),
		"amount": net.String(),
	}}
}

func newDistributionReclaimedEvent(id types.CAID, remainder *big.Int) *types.Event {
	return &types.Event{Type: EventTypeDistributionReclaimed, Attributes: map[string]string{
		"ca":        id.String(),
		"remainder": remainder.String(),
	}}
}
