package settlement

import (
	"errors"
	"math/big"

	"capchain/core/events"
	"capchain/core/types"
	"capchain/native/compliance"
)

var (
	errNilState      = errors.New("settlement engine: state not configured")
	errNilPortfolios = errors.New("settlement engine: portfolio bridge not configured")
	errNilCompliance = errors.New("settlement engine: compliance bridge not configured")

	// ErrNoSuchVenue marks instructions on unknown venues.
	ErrNoSuchVenue = errors.New("settlement: no such venue")
	// ErrNotVenueCreator marks venue mutations by other identities.
	ErrNotVenueCreator = errors.New("settlement: caller did not create venue")
	// ErrNoSuchAsset marks filtering calls on unknown assets.
	ErrNoSuchAsset = errors.New("settlement: no such asset")
	// ErrNotAssetOwner marks venue allow-listing by non-owners.
	ErrNotAssetOwner = errors.New("settlement: caller does not own asset")
	// ErrVenueUnauthorized marks legs on venues the asset disallows.
	ErrVenueUnauthorized = errors.New("settlement: venue not allowed for asset")
	// ErrNoSuchInstruction marks lookups of unknown instructions.
	ErrNoSuchInstruction = errors.New("settlement: no such instruction")
	// ErrNoLegs marks instructions without any leg.
	ErrNoLegs = errors.New("settlement: instruction has no legs")
	// ErrLegLimitReached bounds the leg count.
	ErrLegLimitReached = errors.New("settlement: too many legs")
	// ErrBadLeg marks zero amounts or self-transfers.
	ErrBadLeg = errors.New("settlement: invalid leg")
	// ErrSettleOnPastBlock marks scheduled blocks at or behind the head.
	ErrSettleOnPastBlock = errors.New("settlement: settlement block in the past")
	// ErrUnauthorizedCustodian marks affirmations without custody.
	ErrUnauthorizedCustodian = errors.New("settlement: caller lacks custody")
	// ErrPortfolioNotParty marks affirmations of uninvolved portfolios.
	ErrPortfolioNotParty = errors.New("settlement: portfolio not part of instruction")
	// ErrAlreadyAffirmed marks double affirmations per portfolio.
	ErrAlreadyAffirmed = errors.New("settlement: portfolio already affirmed")
	// ErrNotAffirmed marks withdrawals without a prior affirmation.
	ErrNotAffirmed = errors.New("settlement: portfolio has not affirmed")
	// ErrInstructionNotFailed marks reschedules of non-failed instructions.
	ErrInstructionNotFailed = errors.New("settlement: instruction has not failed")
	// ErrNotMediator marks mediator calls by other identities.
	ErrNotMediator = errors.New("settlement: caller is not a mediator")
)

// Bounds and budgets.
const (
	MaxLegsPerInstruction = 10
	// DefaultLegWeightLimit is the compliance work budget per executed leg.
	DefaultLegWeightLimit = 10_000
)

type engineState interface {
	AssetOwner(asset types.AssetID) (types.IdentityID, bool, error)
	VenueNextID() (uint64, error)
	Venue(id uint64) (*Venue, bool, error)
	VenuePut(id uint64, venue *Venue) error
	VenueFiltering(asset types.AssetID) (bool, error)
	VenueFilteringPut(asset types.AssetID, enabled bool) error
	VenueAllowed(asset types.AssetID, venue uint64) (bool, error)
	VenueAllowedPut(asset types.AssetID, venue uint64, allowed bool) error
	InstructionNextID() (uint64, error)
	Instruction(id uint64) (*Instruction, bool, error)
	InstructionPut(instruction *Instruction) error
	InstructionDelete(id uint64) error
	Legs(id uint64) ([]Leg, error)
	LegsPut(id uint64, legs []Leg) error
	LegsDelete(id uint64) error
	LegStatuses(id uint64) ([]LegStatus, error)
	LegStatusesPut(id uint64, statuses []LegStatus) error
	LegStatusesDelete(id uint64) error
	AffirmsPending(id uint64) (uint64, error)
	AffirmsPendingPut(id uint64, n uint64) error
	AffirmedPortfolios(id uint64) ([]types.PortfolioID, error)
	AffirmedPortfoliosPut(id uint64, pids []types.PortfolioID) error
	AffirmedPortfoliosDelete(id uint64) error
	MediatorAffirmed(id uint64, did types.IdentityID) (bool, error)
	MediatorAffirmedPut(id uint64, did types.IdentityID, affirmed bool) error
	ReceiptUsed(signer types.AccountKey, uid uint64) (bool, error)
	ReceiptUsedPut(signer types.AccountKey, uid uint64, used bool) error
	LegReceipt(id uint64, leg uint32) (*ReceiptDetails, bool, error)
	LegReceiptPut(id uint64, leg uint32, receipt *ReceiptDetails) error
	LegReceiptDelete(id uint64, leg uint32) error
	LegProofs(id uint64, leg uint32) (*LegProofs, error)
	LegProofsPut(id uint64, leg uint32, proofs *LegProofs) error
	LegProofsDelete(id uint64, leg uint32) error
	ScheduledInstructions(block uint64) ([]uint64, error)
	ScheduledInstructionsPut(block uint64, ids []uint64) error
}

// Portfolios is the slice of the portfolio engine settlement moves assets
// through.
type Portfolios interface {
	Custodian(pid types.PortfolioID) (types.IdentityID, error)
	EnsureExists(pid types.PortfolioID) error
	Lock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error
	Unlock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error
	Transfer(from, to types.PortfolioID, asset types.AssetID, amount *big.Int) error
	IsPreApproved(pid types.PortfolioID, asset types.AssetID) (bool, error)
	IdentityBalance(asset types.AssetID, did types.IdentityID) (*big.Int, error)
	Supply(asset types.AssetID) (*big.Int, error)
}

// Compliance is the transfer-restriction slice consulted per executed leg.
type Compliance interface {
	VerifyTransfer(asset types.AssetID, from, to *types.IdentityID, amount, fromBefore, toBefore, supply *big.Int, meter *compliance.WeightMeter) error
	UpdateStats(asset types.AssetID, from, to *types.IdentityID, amount, fromBefore, toBefore *big.Int, meter *compliance.WeightMeter) error
}

// Txn nests a transaction scope around settle-on-affirmation execution so a
// failed execution keeps the affirmation.
type Txn interface {
	Begin()
	Commit() error
	Rollback() error
}

type noopTxn struct{}

func (noopTxn) Begin()          {}
func (noopTxn) Commit() error   { return nil }
func (noopTxn) Rollback() error { return nil }

// Engine settles multi-leg asset exchanges: venues, instructions,
// affirmations, off-chain receipts and confidential proof chains.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	portfolios  Portfolios
	compliance  Compliance
	txn         Txn
	weightLimit uint64
}

// NewEngine constructs a settlement engine.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		txn:         noopTxn{},
		weightLimit: DefaultLegWeightLimit,
	}
}

// SetState wires the engine to its state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPortfolios wires the portfolio bridge.
func (e *Engine) SetPortfolios(portfolios Portfolios) { e.portfolios = portfolios }

// SetCompliance wires the transfer-restriction bridge.
func (e *Engine) SetCompliance(bridge Compliance) { e.compliance = bridge }

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

// SetLegWeightLimit overrides the per-leg compliance budget.
func (e *Engine) SetLegWeightLimit(limit uint64) {
	if limit > 0 {
		e.weightLimit = limit
	}
}

// CreateVenue registers a venue and returns its id.
func (e *Engine) CreateVenue(creator types.IdentityID, signers []types.AccountKey, kind VenueType, details string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	id, err := e.state.VenueNextID()
	if err != nil {
		return 0, err
	}
	venue := &Venue{Creator: creator, Signers: append([]types.AccountKey(nil), signers...), Kind: kind, Details: details}
	if err := e.state.VenuePut(id, venue); err != nil {
		return 0, err
	}
	e.emit(newVenueCreatedEvent(id, venue))
	return id, nil
}

// UpdateVenueSigners adds or removes off-chain receipt signers.
func (e *Engine) UpdateVenueSigners(caller types.IdentityID, id uint64, signers []types.AccountKey, add bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	venue, ok, err := e.state.Venue(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchVenue
	}
	if venue.Creator != caller {
		return ErrNotVenueCreator
	}
	if add {
		for _, signer := range signers {
			if !venue.HasSigner(signer) {
				venue.Signers = append(venue.Signers, signer)
			}
		}
	} else {
		kept := venue.Signers[:0]
		for _, existing := range venue.Signers {
			remove := false
			for _, signer := range signers {
				if existing == signer {
					remove = true
					break
				}
			}
			if !remove {
				kept = append(kept, existing)
			}
		}
		venue.Signers = kept
	}
	if err := e.state.VenuePut(id, venue); err != nil {
		return err
	}
	e.emit(newVenueSignersUpdatedEvent(id, len(venue.Signers)))
	return nil
}

// VenueOf returns one venue.
func (e *Engine) VenueOf(id uint64) (*Venue, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	venue, ok, err := e.state.Venue(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchVenue
	}
	return venue, nil
}

func (e *Engine) requireAssetOwner(caller types.IdentityID, asset types.AssetID) error {
	owner, ok, err := e.state.AssetOwner(asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchAsset
	}
	if owner != caller {
		return ErrNotAssetOwner
	}
	return nil
}

// SetVenueFiltering opts the asset in or out of venue allow-listing.
func (e *Engine) SetVenueFiltering(caller types.IdentityID, asset types.AssetID, enabled bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAssetOwner(caller, asset); err != nil {
		return err
	}
	return e.state.VenueFilteringPut(asset, enabled)
}

// AllowVenues whitelists venues for the asset.
func (e *Engine) AllowVenues(caller types.IdentityID, asset types.AssetID, venues []uint64) error {
	return e.setVenuesAllowed(caller, asset, venues, true)
}

// DisallowVenues removes venues from the asset's whitelist.
func (e *Engine) DisallowVenues(caller types.IdentityID, asset types.AssetID, venues []uint64) error {
	return e.setVenuesAllowed(caller, asset, venues, false)
}

func (e *Engine) setVenuesAllowed(caller types.IdentityID, asset types.AssetID, venues []uint64, allowed bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAssetOwner(caller, asset); err != nil {
		return err
	}
	for _, venue := range venues {
		if err := e.state.VenueAllowedPut(asset, venue, allowed); err != nil {
			return err
		}
	}
	return nil
}

// AddInstruction declares a new exchange on a venue. Receiving portfolios
// that pre-approved every asset they receive are affirmed automatically.
func (e *Engine) AddInstruction(
	caller types.IdentityID,
	venueID uint64,
	settleType SettlementType,
	settleBlock uint64,
	tradeDate, valueDate *uint64,
	legs []Leg,
	memo string,
	now uint64,
	currentBlock uint64,
) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if e.portfolios == nil {
		return 0, errNilPortfolios
	}
	venue, ok, err := e.state.Venue(venueID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoSuchVenue
	}
	if venue.Creator != caller {
		return 0, ErrNotVenueCreator
	}
	if len(legs) == 0 {
		return 0, ErrNoLegs
	}
	if len(legs) > MaxLegsPerInstruction {
		return 0, ErrLegLimitReached
	}
	if settleType == SettleOnBlock && settleBlock <= currentBlock {
		return 0, ErrSettleOnPastBlock
	}
	for _, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() <= 0 || leg.From == leg.To {
			return 0, ErrBadLeg
		}
		filtering, err := e.state.VenueFiltering(leg.Asset)
		if err != nil {
			return 0, err
		}
		if filtering {
			allowed, err := e.state.VenueAllowed(leg.Asset, venueID)
			if err != nil {
				return 0, err
			}
			if !allowed {
				return 0, ErrVenueUnauthorized
			}
		}
	}

	id, err := e.state.InstructionNextID()
	if err != nil {
		return 0, err
	}
	instruction := &Instruction{
		ID:          id,
		Venue:       venueID,
		Status:      StatusPending,
		SettleType:  settleType,
		SettleBlock: settleBlock,
		CreatedAt:   now,
		Memo:        memo,
	}
	if tradeDate != nil {
		instruction.HasTradeDate = true
		instruction.TradeDate = *tradeDate
	}
	if valueDate != nil {
		instruction.HasValueDate = true
		instruction.ValueDate = *valueDate
	}

	stored := make([]Leg, len(legs))
	statuses := make([]LegStatus, len(legs))
	for i, leg := range legs {
		stored[i] = leg.Clone()
		statuses[i] = LegPendingLock
	}
	if err := e.state.InstructionPut(instruction); err != nil {
		return 0, err
	}
	if err := e.state.LegsPut(id, stored); err != nil {
		return 0, err
	}
	if err := e.state.LegStatusesPut(id, statuses); err != nil {
		return 0, err
	}

	pending := uint64(len(distinctParties(stored)) + len(distinctMediators(stored)))
	if err := e.state.AffirmsPendingPut(id, pending); err != nil {
		return 0, err
	}
	if err := e.autoAffirmPreApproved(id, stored); err != nil {
		return 0, err
	}
	if settleType == SettleOnBlock {
		queued, err := e.state.ScheduledInstructions(settleBlock)
		if err != nil {
			return 0, err
		}
		if err := e.state.ScheduledInstructionsPut(settleBlock, append(queued, id)); err != nil {
			return 0, err
		}
	}
	e.emit(newInstructionCreatedEvent(instruction, len(stored)))
	return id, nil
}

// distinctParties lists each from/to portfolio once.
func distinctParties(legs []Leg) []types.PortfolioID {
	seen := make(map[types.PortfolioID]bool)
	out := make([]types.PortfolioID, 0, len(legs)*2)
	for _, leg := range legs {
		for _, pid := range []types.PortfolioID{leg.From, leg.To} {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	return out
}

func distinctMediators(legs []Leg) []types.IdentityID {
	seen := make(map[types.IdentityID]bool)
	var out []types.IdentityID
	for _, leg := range legs {
		if leg.HasMediator && !seen[leg.Mediator] {
			seen[leg.Mediator] = true
			out = append(out, leg.Mediator)
		}
	}
	return out
}

// autoAffirmPreApproved satisfies the receiver side for portfolios that
// pre-approved every asset they receive and send nothing.
func (e *Engine) autoAffirmPreApproved(id uint64, legs []Leg) error {
	receivers := make(map[types.PortfolioID][]types.AssetID)
	senders := make(map[types.PortfolioID]bool)
	for _, leg := range legs {
		senders[leg.From] = true
		receivers[leg.To] = append(receivers[leg.To], leg.Asset)
	}
	for pid, assets := range receivers {
		if senders[pid] {
			continue
		}
		approved := true
		for _, asset := range assets {
			ok, err := e.portfolios.IsPreApproved(pid, asset)
			if err != nil {
				return err
			}
			if !ok {
				approved = false
				break
			}
		}
		if !approved {
			continue
		}
		if err := e.markAffirmed(id, pid); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) markAffirmed(id uint64, pid types.PortfolioID) error {
	affirmed, err := e.state.AffirmedPortfolios(id)
	if err != nil {
		return err
	}
	for _, existing := range affirmed {
		if existing == pid {
			return ErrAlreadyAffirmed
		}
	}
	if err := e.state.AffirmedPortfoliosPut(id, append(affirmed, pid)); err != nil {
		return err
	}
	pending, err := e.state.AffirmsPending(id)
	if err != nil {
		return err
	}
	if pending > 0 {
		pending--
	}
	return e.state.AffirmsPendingPut(id, pending)
}

func (e *Engine) unmarkAffirmed(id uint64, pid types.PortfolioID) error {
	affirmed, err := e.state.AffirmedPortfolios(id)
	if err != nil {
		return err
	}
	for i, existing := range affirmed {
		if existing != pid {
			continue
		}
		if err := e.state.AffirmedPortfoliosPut(id, append(affirmed[:i], affirmed[i+1:]...)); err != nil {
			return err
		}
		pending, err := e.state.AffirmsPending(id)
		if err != nil {
			return err
		}
		return e.state.AffirmsPendingPut(id, pending+1)
	}
	return ErrNotAffirmed
}

func (e *Engine) loadInstruction(id uint64) (*Instruction, []Leg, []LegStatus, error) {
	instruction, ok, err := e.state.Instruction(id)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrNoSuchInstruction
	}
	legs, err := e.state.Legs(id)
	if err != nil {
		return nil, nil, nil, err
	}
	statuses, err := e.state.LegStatuses(id)
	if err != nil {
		return nil, nil, nil, err
	}
	return instruction, legs, statuses, nil
}

func (e *Engine) requireCustody(caller types.IdentityID, pid types.PortfolioID) error {
	custodian, err := e.portfolios.Custodian(pid)
	if err != nil {
		return err
	}
	if custodian != caller {
		return ErrUnauthorizedCustodian
	}
	return nil
}

// AffirmInstruction affirms the given portfolios. Sending legs lock their
// amount; once every party affirmed a settle-on-affirmation instruction
// executes in the same call.
func (e *Engine) AffirmInstruction(caller types.IdentityID, id uint64, portfolios []types.PortfolioID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.portfolios == nil {
		return errNilPortfolios
	}
	instruction, legs, statuses, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	for _, pid := range portfolios {
		if err := e.requireCustody(caller, pid); err != nil {
			return err
		}
		if !isParty(legs, pid) {
			return ErrPortfolioNotParty
		}
		if err := e.markAffirmed(id, pid); err != nil {
			return err
		}
		for i, leg := range legs {
			if leg.From != pid || statuses[i] != LegPendingLock {
				continue
			}
			if leg.Kind == LegOnChain {
				if err := e.portfolios.Lock(leg.From, leg.Asset, leg.Amount); err != nil {
					return err
				}
			}
			statuses[i] = LegExecutionPending
		}
	}
	if err := e.state.LegStatusesPut(id, statuses); err != nil {
		return err
	}
	e.emit(newAffirmedEvent(id, caller, len(portfolios)))
	return e.maybeSettleOnAffirmation(instruction)
}

// AffirmAsMediator records a mediator's approval.
func (e *Engine) AffirmAsMediator(caller types.IdentityID, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	instruction, legs, _, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	if !isMediator(legs, caller) {
		return ErrNotMediator
	}
	affirmed, err := e.state.MediatorAffirmed(id, caller)
	if err != nil {
		return err
	}
	if affirmed {
		return ErrAlreadyAffirmed
	}
	if err := e.state.MediatorAffirmedPut(id, caller, true); err != nil {
		return err
	}
	pending, err := e.state.AffirmsPending(id)
	if err != nil {
		return err
	}
	if pending > 0 {
		pending--
	}
	if err := e.state.AffirmsPendingPut(id, pending); err != nil {
		return err
	}
	e.emit(newAffirmedEvent(id, caller, 0))
	return e.maybeSettleOnAffirmation(instruction)
}

func (e *Engine) maybeSettleOnAffirmation(instruction *Instruction) error {
	if instruction.SettleType != SettleOnAffirmation {
		return nil
	}
	pending, err := e.state.AffirmsPending(instruction.ID)
	if err != nil {
		return err
	}
	if pending != 0 {
		return nil
	}
	// Execution failure keeps the affirmation; the instruction is marked
	// failed and may be rescheduled.
	e.txn.Begin()
	if err := e.executeLegs(instruction.ID); err != nil {
		if rbErr := e.txn.Rollback(); rbErr != nil {
			return rbErr
		}
		return e.markFailed(instruction.ID, err)
	}
	if err := e.txn.Commit(); err != nil {
		return err
	}
	return e.finishExecution(instruction.ID)
}

// WithdrawAffirmation reverses an affirmation before execution, unlocking
// any sending legs.
func (e *Engine) WithdrawAffirmation(caller types.IdentityID, id uint64, portfolios []types.PortfolioID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.portfolios == nil {
		return errNilPortfolios
	}
	_, legs, statuses, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	for _, pid := range portfolios {
		if err := e.requireCustody(caller, pid); err != nil {
			return err
		}
		if err := e.unmarkAffirmed(id, pid); err != nil {
			return err
		}
		for i, leg := range legs {
			if leg.From != pid || statuses[i] != LegExecutionPending {
				continue
			}
			if leg.Kind == LegOnChain {
				if err := e.portfolios.Unlock(leg.From, leg.Asset, leg.Amount); err != nil {
					return err
				}
			}
			statuses[i] = LegPendingLock
		}
	}
	if err := e.state.LegStatusesPut(id, statuses); err != nil {
		return err
	}
	e.emit(newAffirmationWithdrawnEvent(id, caller))
	return nil
}

// RejectInstruction clears the instruction entirely. Any counterparty may
// reject; all locks are released.
func (e *Engine) RejectInstruction(caller types.IdentityID, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.portfolios == nil {
		return errNilPortfolios
	}
	_, legs, statuses, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	party := false
	for _, pid := range distinctParties(legs) {
		custodian, err := e.portfolios.Custodian(pid)
		if err != nil {
			return err
		}
		if custodian == caller {
			party = true
			break
		}
	}
	if !party && !isMediator(legs, caller) {
		return ErrPortfolioNotParty
	}
	for i, leg := range legs {
		if statuses[i] == LegExecutionPending && leg.Kind == LegOnChain {
			if err := e.portfolios.Unlock(leg.From, leg.Asset, leg.Amount); err != nil {
				return err
			}
		}
	}
	if err := e.clearInstruction(id, legs); err != nil {
		return err
	}
	e.emit(newRejectedEvent(id, caller))
	return nil
}

// RescheduleInstruction re-queues a failed instruction at a future block.
func (e *Engine) RescheduleInstruction(caller types.IdentityID, id uint64, newBlock, currentBlock uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	instruction, legs, _, err := e.loadInstruction(id)
	if err != nil {
		return err
	}
	if instruction.Status != StatusFailed {
		return ErrInstructionNotFailed
	}
	if newBlock <= currentBlock {
		return ErrSettleOnPastBlock
	}
	party := false
	for _, pid := range distinctParties(legs) {
		custodian, err := e.portfolios.Custodian(pid)
		if err != nil {
			return err
		}
		if custodian == caller {
			party = true
			break
		}
	}
	if !party {
		return ErrPortfolioNotParty
	}
	instruction.Status = StatusPending
	instruction.SettleType = SettleOnBlock
	instruction.SettleBlock = newBlock
	if err := e.state.InstructionPut(instruction); err != nil {
		return err
	}
	queued, err := e.state.ScheduledInstructions(newBlock)
	if err != nil {
		return err
	}
	if err := e.state.ScheduledInstructionsPut(newBlock, append(queued, id)); err != nil {
		return err
	}
	e.emit(newRescheduledEvent(id, newBlock))
	return nil
}

// StatusOf reports the stored status; deleted instructions are unknown.
func (e *Engine) StatusOf(id uint64) (InstructionStatus, error) {
	if e == nil || e.state == nil {
		return StatusUnknown, errNilState
	}
	instruction, ok, err := e.state.Instruction(id)
	if err != nil {
		return StatusUnknown, err
	}
	if !ok {
		return StatusUnknown, nil
	}
	return instruction.Status, nil
}

func isParty(legs []Leg, pid types.PortfolioID) bool {
	for _, leg := range legs {
		if leg.From == pid || leg.To == pid {
			return true
		}
	}
	return false
}

func isMediator(legs []Leg, did types.IdentityID) bool {
	for _, leg := range legs {
		if leg.HasMediator && leg.Mediator == did {
			return true
		}
	}
	return false
}
