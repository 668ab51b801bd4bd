package portfolio

import (
	"math/big"
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypePortfolioCreated is emitted when a user portfolio is created.
	EventTypePortfolioCreated = "portfolio.created"
	// EventTypePortfolioDeleted is emitted when a user portfolio is deleted.
	EventTypePortfolioDeleted = "portfolio.deleted"
	// EventTypePortfolioRenamed is emitted on rename.
	EventTypePortfolioRenamed = "portfolio.renamed"
	// EventTypeFundsMoved is emitted when funds move between portfolios of
	// one identity.
	EventTypeFundsMoved = "portfolio.funds_moved"
	// EventTypeTransfer is emitted on cross-portfolio asset transfers.
	EventTypeTransfer = "portfolio.transfer"
	// EventTypeCustodyChanged is emitted when custody changes hands.
	EventTypeCustodyChanged = "portfolio.custody_changed"
)

type portfolioEvent struct {
	evt *types.Event
}

func (e portfolioEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e portfolioEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(portfolioEvent{evt: event})
}

func newPortfolioCreatedEvent(pid types.PortfolioID, name string) *types.Event {
	return &types.Event{Type: EventTypePortfolioCreated, Attributes: map[string]string{
		"portfolio": pid.String(),
		"name":      name,
	}}
}

func newPortfolioDeletedEvent(pid types.PortfolioID) *types.Event {
	return &types.Event{Type: EventTypePortfolioDeleted, Attributes: map[string]string{
		"portfolio": pid.String(),
	}}
}

func newPortfolioRenamedEvent(pid types.PortfolioID, name string) *types.Event {
	return &types.Event{Type: EventTypePortfolioRenamed, Attributes: map[string]string{
		"portfolio": pid.String(),
		"name":      name,
	}}
}

func newFundsMovedEvent(from, to types.PortfolioID, funds []Fund) *types.Event {
	return &types.Event{Type: EventTypeFundsMoved, Attributes: map[string]string{
		"from":  from.String(),
		"to":    to.String(),
		"funds": strconv.Itoa(len(funds)),
	}}
}

func newTransferEvent(from, to types.PortfolioID, asset types.AssetID, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"from":   from.String(),
		"to":     to.String(),
		"asset":  asset.String(),
		"amount": amount.String(),
	}}
}

func newCustodyEvent(pid types.PortfolioID, custodian types.IdentityID) *types.Event {
	return &types.Event{Type: EventTypeCustodyChanged, Attributes: map[string]string{
		"portfolio": pid.String(),
		"custodian": custodian.String(),
	}}
}
