package corporate

import (
	"errors"
	"math"
	"math/big"

	"capchain/core/events"
	"capchain/core/types"
)

var (
	errNilState       = errors.New("corporate engine: state not configured")
	errNilCheckpoints = errors.New("corporate engine: checkpoint bridge not configured")
	errNilAuths       = errors.New("corporate engine: authorization bridge not configured")
	errNilFunds       = errors.New("corporate engine: funds bridge not configured")

	// ErrNoSuchAsset marks operations on unknown tickers.
	ErrNoSuchAsset = errors.New("corporate: no such asset")
	// ErrNoSuchCA marks lookups of unknown corporate actions.
	ErrNoSuchCA = errors.New("corporate: no such corporate action")
	// ErrNoSuchDoc marks document links to unknown documents.
	ErrNoSuchDoc = errors.New("corporate: no such document")
	// ErrUnauthorizedAgent marks callers that are not the asset's CAA.
	ErrUnauthorizedAgent = errors.New("corporate: caller is not the corporate action agent")
	// ErrNotOwner marks owner-only calls from other identities.
	ErrNotOwner = errors.New("corporate: caller is not the asset owner")
	// ErrDetailsTooLong marks oversized free-text details.
	ErrDetailsTooLong = errors.New("corporate: details too long")
	// ErrDeclDateInFuture marks declaration dates after now.
	ErrDeclDateInFuture = errors.New("corporate: declaration date in the future")
	// ErrDeclDateAfterRecordDate marks inverted declaration/record dates.
	ErrDeclDateAfterRecordDate = errors.New("corporate: declaration date after record date")
	// ErrDuplicateDidTax marks withholding overrides listing a DID twice.
	ErrDuplicateDidTax = errors.New("corporate: duplicate withholding override")
	// ErrLocalIDOverflow marks exhaustion of the per-ticker CA id space.
	ErrLocalIDOverflow = errors.New("corporate: local CA id overflow")
	// ErrNoRecordDate marks operations needing a record date the CA lacks.
	ErrNoRecordDate = errors.New("corporate: no record date")
	// ErrRecordDateUnresolved marks record dates whose scheduled checkpoint
	// has not fired yet.
	ErrRecordDateUnresolved = errors.New("corporate: record date checkpoint not yet created")
	// ErrTaxTooHigh marks withholding rates above 100%.
	ErrTaxTooHigh = errors.New("corporate: withholding above 100%")
	// ErrTargetLimitReached bounds target identity lists.
	ErrTargetLimitReached = errors.New("corporate: target list too long")
	// ErrCAStarted marks record-date changes after an attachment began.
	ErrCAStarted = errors.New("corporate: attached ballot or distribution already started")
	// ErrRecordDateAfterStart marks record dates behind an attachment start.
	ErrRecordDateAfterStart = errors.New("corporate: record date after start")
	// ErrExistingScheduleRemovable marks reuse of a schedule that was
	// created removable.
	ErrExistingScheduleRemovable = errors.New("corporate: existing schedule is removable")
)

// Bounds on caller-supplied containers.
const (
	MaxDetailsLength = 1024
	MaxDidTaxes      = 64
	MaxTargets       = 256
	MaxDocuments     = 128
)

type engineState interface {
	AssetOwner(ticker types.Ticker) (types.IdentityID, bool, error)
	Agent(ticker types.Ticker) (types.IdentityID, bool, error)
	AgentPut(ticker types.Ticker, did types.IdentityID) error
	AgentDelete(ticker types.Ticker) error
	DefaultTargets(ticker types.Ticker) (TargetIdentities, bool, error)
	DefaultTargetsPut(ticker types.Ticker, targets TargetIdentities) error
	DefaultWithholding(ticker types.Ticker) (Tax, error)
	DefaultWithholdingPut(ticker types.Ticker, tax Tax) error
	DidWithholding(ticker types.Ticker) ([]DidTax, error)
	DidWithholdingPut(ticker types.Ticker, taxes []DidTax) error
	CACount(ticker types.Ticker) (uint32, error)
	CACountPut(ticker types.Ticker, count uint32) error
	CA(id types.CAID) (*CorporateAction, bool, error)
	CAPut(id types.CAID, ca *CorporateAction) error
	CADelete(id types.CAID) error
	Documents(ticker types.Ticker) ([]Document, error)
	DocumentsPut(ticker types.Ticker, docs []Document) error
	DocLinks(id types.CAID) ([]uint32, error)
	DocLinksPut(id types.CAID, links []uint32) error
	DocLinksDelete(id types.CAID) error
	Ballot(id types.CAID) (*Ballot, bool, error)
	BallotPut(id types.CAID, ballot *Ballot) error
	BallotDelete(id types.CAID) error
	BallotVote(id types.CAID, did types.IdentityID) (*BallotVote, bool, error)
	BallotVotePut(id types.CAID, did types.IdentityID, vote *BallotVote) error
	BallotVoteDelete(id types.CAID, did types.IdentityID) error
	BallotResults(id types.CAID) ([]*big.Int, error)
	BallotResultsPut(id types.CAID, results []*big.Int) error
	BallotResultsDelete(id types.CAID) error
	Distribution(id types.CAID) (*Distribution, bool, error)
	DistributionPut(id types.CAID, dist *Distribution) error
	DistributionDelete(id types.CAID) error
	DistributionClaimed(id types.CAID, did types.IdentityID) (bool, error)
	DistributionClaimedPut(id types.CAID, did types.IdentityID) error
}

// Checkpoints is the slice of the checkpoint engine corporate actions need.
type Checkpoints interface {
	CreatePinnedSchedule(asset types.AssetID, at, now uint64) (uint64, error)
	PinSchedule(asset types.AssetID, id uint64) error
	UnpinSchedule(asset types.AssetID, id uint64) error
	ScheduleInfo(asset types.AssetID, id uint64) (nextAt uint64, removable bool, err error)
	CheckpointTimestamp(asset types.AssetID, id uint64) (uint64, error)
	ScheduledCheckpoint(asset types.AssetID, schedule, date uint64) (uint64, bool, error)
	BalanceAt(asset types.AssetID, checkpoint uint64, did types.IdentityID) (*big.Int, error)
	SupplyAt(asset types.AssetID, checkpoint uint64) (*big.Int, error)
}

// AuthConsumer is the identity-engine slice consuming agency transfers.
type AuthConsumer interface {
	ConsumeAgencyTransfer(did types.IdentityID, authID uint64) (types.Ticker, error)
}

// FundsMover is the portfolio-engine slice distributions pay through.
type FundsMover interface {
	Transfer(from, to types.PortfolioID, asset types.AssetID, amount *big.Int) error
	Lock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error
	Unlock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error
	BalanceOf(pid types.PortfolioID, asset types.AssetID) (*big.Int, error)
}

// Engine runs the corporate action lifecycle: agent delegation, declarations
// with record dates, document links, ballots and capital distributions.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	checkpoints Checkpoints
	auths       AuthConsumer
	funds       FundsMover
}

// NewEngine constructs a corporate actions engine.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to its state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCheckpoints wires the checkpoint bridge.
func (e *Engine) SetCheckpoints(checkpoints Checkpoints) { e.checkpoints = checkpoints }

// SetAuthConsumer wires the identity authorization bridge.
func (e *Engine) SetAuthConsumer(auths AuthConsumer) { e.auths = auths }

// SetFundsMover wires the portfolio bridge used by distributions.
func (e *Engine) SetFundsMover(funds FundsMover) { e.funds = funds }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// AgentOf returns the acting corporate action agent: the delegated agent if
// set, otherwise the asset owner.
func (e *Engine) AgentOf(ticker types.Ticker) (types.IdentityID, error) {
	if e == nil || e.state == nil {
		return types.IdentityID{}, errNilState
	}
	agent, ok, err := e.state.Agent(ticker)
	if err != nil {
		return types.IdentityID{}, err
	}
	if ok {
		return agent, nil
	}
	owner, ok, err := e.state.AssetOwner(ticker)
	if err != nil {
		return types.IdentityID{}, err
	}
	if !ok {
		return types.IdentityID{}, ErrNoSuchAsset
	}
	return owner, nil
}

func (e *Engine) requireAgent(caller types.IdentityID, ticker types.Ticker) error {
	agent, err := e.AgentOf(ticker)
	if err != nil {
		return err
	}
	if agent != caller {
		return ErrUnauthorizedAgent
	}
	return nil
}

func (e *Engine) requireOwner(caller types.IdentityID, ticker types.Ticker) error {
	owner, ok, err := e.state.AssetOwner(ticker)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchAsset
	}
	if owner != caller {
		return ErrNotOwner
	}
	return nil
}

// AcceptAgency consumes a pending agency-transfer authorization and installs
// the caller as the ticker's agent.
func (e *Engine) AcceptAgency(caller types.IdentityID, authID uint64) (types.Ticker, error) {
	if e == nil || e.state == nil {
		return types.Ticker{}, errNilState
	}
	if e.auths == nil {
		return types.Ticker{}, errNilAuths
	}
	ticker, err := e.auths.ConsumeAgencyTransfer(caller, authID)
	if err != nil {
		return types.Ticker{}, err
	}
	if err := e.state.AgentPut(ticker, caller); err != nil {
		return types.Ticker{}, err
	}
	e.emit(newAgentChangedEvent(ticker, caller))
	return ticker, nil
}

// ResetAgent clears the delegation so the owner acts as agent again.
func (e *Engine) ResetAgent(caller types.IdentityID, ticker types.Ticker) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller, ticker); err != nil {
		return err
	}
	if err := e.state.AgentDelete(ticker); err != nil {
		return err
	}
	e.emit(newAgentChangedEvent(ticker, caller))
	return nil
}

// SetDefaultTargets replaces the ticker's default target set.
func (e *Engine) SetDefaultTargets(caller types.IdentityID, ticker types.Ticker, targets TargetIdentities) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAgent(caller, ticker); err != nil {
		return err
	}
	if len(targets.Identities) > MaxTargets {
		return ErrTargetLimitReached
	}
	return e.state.DefaultTargetsPut(ticker, targets.Normalize())
}

// SetDefaultWithholdingTax replaces the ticker's default withholding rate.
func (e *Engine) SetDefaultWithholdingTax(caller types.IdentityID, ticker types.Ticker, tax Tax) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAgent(caller, ticker); err != nil {
		return err
	}
	if tax > TaxMax {
		return ErrTaxTooHigh
	}
	return e.state.DefaultWithholdingPut(ticker, tax)
}

// SetDidWithholdingTax upserts or removes one identity's withholding
// override. A nil tax removes it.
func (e *Engine) SetDidWithholdingTax(caller types.IdentityID, ticker types.Ticker, did types.IdentityID, tax *Tax) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAgent(caller, ticker); err != nil {
		return err
	}
	if tax != nil && *tax > TaxMax {
		return ErrTaxTooHigh
	}
	taxes, err := e.state.DidWithholding(ticker)
	if err != nil {
		return err
	}
	filtered := taxes[:0]
	for _, entry := range taxes {
		if entry.DID != did {
			filtered = append(filtered, entry)
		}
	}
	if tax != nil {
		if len(filtered) >= MaxDidTaxes {
			return ErrTargetLimitReached
		}
		filtered = append(filtered, DidTax{DID: did, Tax: *tax})
		sortDidTaxes(filtered)
	}
	return e.state.DidWithholdingPut(ticker, filtered)
}

// InitiateCA declares a corporate action. Nil targets, defaultWHT and didWHT
// fall back to the ticker defaults.
func (e *Engine) InitiateCA(
	caller types.IdentityID,
	ticker types.Ticker,
	kind CAKind,
	declDate uint64,
	spec *RecordDateSpec,
	details string,
	targets *TargetIdentities,
	defaultWHT *Tax,
	didWHT []DidTax,
	now uint64,
) (types.CAID, error) {
	if e == nil || e.state == nil {
		return types.CAID{}, errNilState
	}
	if err := e.requireAgent(caller, ticker); err != nil {
		return types.CAID{}, err
	}
	if len(details) > MaxDetailsLength {
		return types.CAID{}, ErrDetailsTooLong
	}
	if declDate > now {
		return types.CAID{}, ErrDeclDateInFuture
	}
	for i := range didWHT {
		if didWHT[i].Tax > TaxMax {
			return types.CAID{}, ErrTaxTooHigh
		}
		for j := i + 1; j < len(didWHT); j++ {
			if didWHT[i].DID == didWHT[j].DID {
				return types.CAID{}, ErrDuplicateDidTax
			}
		}
	}

	count, err := e.state.CACount(ticker)
	if err != nil {
		return types.CAID{}, err
	}
	if count == math.MaxUint32 {
		return types.CAID{}, ErrLocalIDOverflow
	}

	ca := &CorporateAction{Kind: kind, DeclDate: declDate, Details: details}
	if targets != nil {
		if len(targets.Identities) > MaxTargets {
			return types.CAID{}, ErrTargetLimitReached
		}
		ca.Targets = targets.Normalize()
	} else {
		stored, ok, err := e.state.DefaultTargets(ticker)
		if err != nil {
			return types.CAID{}, err
		}
		if ok {
			ca.Targets = stored
		} else {
			ca.Targets = EveryoneTargets()
		}
	}
	if defaultWHT != nil {
		if *defaultWHT > TaxMax {
			return types.CAID{}, ErrTaxTooHigh
		}
		ca.DefaultWHT = *defaultWHT
	} else {
		stored, err := e.state.DefaultWithholding(ticker)
		if err != nil {
			return types.CAID{}, err
		}
		ca.DefaultWHT = stored
	}
	if didWHT != nil {
		overrides := append([]DidTax(nil), didWHT...)
		sortDidTaxes(overrides)
		ca.DidWHT = overrides
	} else {
		stored, err := e.state.DidWithholding(ticker)
		if err != nil {
			return types.CAID{}, err
		}
		ca.DidWHT = stored
	}

	if spec != nil {
		recordDate, err := e.resolveRecordDate(ticker, *spec, now)
		if err != nil {
			return types.CAID{}, err
		}
		if declDate > recordDate.Date {
			e.releaseRecordDate(ticker, recordDate)
			return types.CAID{}, ErrDeclDateAfterRecordDate
		}
		ca.HasRecordDate = true
		ca.RecordDate = recordDate
	}

	id := types.CAID{Ticker: ticker, Local: count}
	if err := e.state.CACountPut(ticker, count+1); err != nil {
		return types.CAID{}, err
	}
	if err := e.state.CAPut(id, ca); err != nil {
		return types.CAID{}, err
	}
	e.emit(newCAInitiatedEvent(id, ca))
	return id, nil
}

func (e *Engine) resolveRecordDate(ticker types.Ticker, spec RecordDateSpec, now uint64) (RecordDate, error) {
	if e.checkpoints == nil {
		return RecordDate{}, errNilCheckpoints
	}
	asset := types.TickerAsset(ticker)
	switch spec.Kind {
	case SpecScheduled:
		scheduleID, err := e.checkpoints.CreatePinnedSchedule(asset, spec.Timestamp, now)
		if err != nil {
			return RecordDate{}, err
		}
		return RecordDate{Date: spec.Timestamp, Kind: SourceScheduled, ScheduleID: scheduleID}, nil
	case SpecExistingSchedule:
		nextAt, removable, err := e.checkpoints.ScheduleInfo(asset, spec.ScheduleID)
		if err != nil {
			return RecordDate{}, err
		}
		if removable {
			return RecordDate{}, ErrExistingScheduleRemovable
		}
		if err := e.checkpoints.PinSchedule(asset, spec.ScheduleID); err != nil {
			return RecordDate{}, err
		}
		return RecordDate{Date: nextAt, Kind: SourceScheduled, ScheduleID: spec.ScheduleID}, nil
	case SpecExisting:
		ts, err := e.checkpoints.CheckpointTimestamp(asset, spec.Checkpoint)
		if err != nil {
			return RecordDate{}, err
		}
		return RecordDate{Date: ts, Kind: SourceExisting, Checkpoint: spec.Checkpoint}, nil
	default:
		return RecordDate{}, ErrNoRecordDate
	}
}

// releaseRecordDate undoes the schedule pin of a resolved record date.
func (e *Engine) releaseRecordDate(ticker types.Ticker, recordDate RecordDate) {
	if recordDate.Kind != SourceScheduled || e.checkpoints == nil {
		return
	}
	_ = e.checkpoints.UnpinSchedule(types.TickerAsset(ticker), recordDate.ScheduleID)
}

// ChangeRecordDate replays record date resolution on an existing CA. When a
// ballot or distribution is attached, neither may have started and the new
// date must precede its start.
func (e *Engine) ChangeRecordDate(caller types.IdentityID, id types.CAID, spec *RecordDateSpec, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAgent(caller, id.Ticker); err != nil {
		return err
	}
	ca, ok, err := e.state.CA(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchCA
	}

	var newDate *RecordDate
	if spec != nil {
		resolved, err := e.resolveRecordDate(id.Ticker, *spec, now)
		if err != nil {
			return err
		}
		if ca.DeclDate > resolved.Date {
			e.releaseRecordDate(id.Ticker, resolved)
			return ErrDeclDateAfterRecordDate
		}
		newDate = &resolved
	}

	if err := e.checkAttachmentsForDateChange(id, newDate, now); err != nil {
		if newDate != nil {
			e.releaseRecordDate(id.Ticker, *newDate)
		}
		return err
	}

	if ca.HasRecordDate {
		e.releaseRecordDate(id.Ticker, ca.RecordDate)
	}
	ca.HasRecordDate = newDate != nil
	if newDate != nil {
		ca.RecordDate = *newDate
	} else {
		ca.RecordDate = RecordDate{}
	}
	if err := e.state.CAPut(id, ca); err != nil {
		return err
	}
	e.emit(newRecordDateChangedEvent(id, ca))
	return nil
}

func (e *Engine) checkAttachmentsForDateChange(id types.CAID, newDate *RecordDate, now uint64) error {
	ballot, hasBallot, err := e.state.Ballot(id)
	if err != nil {
		return err
	}
	if hasBallot {
		if now >= ballot.Start {
			return ErrCAStarted
		}
		if newDate == nil || newDate.Date > ballot.Start {
			return ErrRecordDateAfterStart
		}
	}
	dist, hasDist, err := e.state.Distribution(id)
	if err != nil {
		return err
	}
	if hasDist {
		if now >= dist.PaymentAt {
			return ErrCAStarted
		}
		if newDate == nil || newDate.Date > dist.PaymentAt {
			return ErrRecordDateAfterStart
		}
	}
	return nil
}

// RemoveCA tears down any attached ballot or distribution, unlinks documents
// and deletes the CA.
func (e *Engine) RemoveCA(caller types.IdentityID, id types.CAID, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAgent(caller, id.Ticker); err != nil {
		return err
	}
	ca, ok, err := e.state.CA(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchCA
	}
	if _, hasBallot, err := e.state.Ballot(id); err != nil {
		return err
	} else if hasBallot {
		if err := e.removeBallot(id, now); err != nil {
			return err
		}
	}
	if _, hasDist, err := e.state.Distribution(id); err != nil {
		return err
	} else if hasDist {
		if err := e.removeDistribution(id, now); err != nil {
			return err
		}
	}
	if ca.HasRecordDate {
		e.releaseRecordDate(id.Ticker, ca.RecordDate)
	}
	if err := e.state.DocLinksDelete(id); err != nil {
		return err
	}
	if err := e.state.CADelete(id); err != nil {
		return err
	}
	e.emit(newCARemovedEvent(id))
	return nil
}

// CorporateActionOf returns one stored CA.
func (e *Engine) CorporateActionOf(id types.CAID) (*CorporateAction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ca, ok, err := e.state.CA(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchCA
	}
	return ca, nil
}

// AddDocuments appends to the asset's document registry and returns the ids
// assigned.
func (e *Engine) AddDocuments(caller types.IdentityID, ticker types.Ticker, docs []Document) ([]uint32, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireOwner(caller, ticker); err != nil {
		return nil, err
	}
	stored, err := e.state.Documents(ticker)
	if err != nil {
		return nil, err
	}
	if len(stored)+len(docs) > MaxDocuments {
		return nil, ErrTargetLimitReached
	}
	ids := make([]uint32, 0, len(docs))
	for i := range docs {
		ids = append(ids, uint32(len(stored)+i))
	}
	if err := e.state.DocumentsPut(ticker, append(stored, docs...)); err != nil {
		return nil, err
	}
	e.emit(newDocumentsAddedEvent(ticker, len(docs)))
	return ids, nil
}

// LinkCADoc replaces the CA's document links. Every id must name a document
// in the asset registry.
func (e *Engine) LinkCADoc(caller types.IdentityID, id types.CAID, docIDs []uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAgent(caller, id.Ticker); err != nil {
		return err
	}
	if _, ok, err := e.state.CA(id); err != nil {
		return err
	} else if !ok {
		return ErrNoSuchCA
	}
	docs, err := e.state.Documents(id.Ticker)
	if err != nil {
		return err
	}
	for _, docID := range docIDs {
		if int(docID) >= len(docs) {
			return ErrNoSuchDoc
		}
	}
	if err := e.state.DocLinksPut(id, append([]uint32(nil), docIDs...)); err != nil {
		return err
	}
	e.emit(newDocsLinkedEvent(id, len(docIDs)))
	return nil
}

// recordDateCheckpoint resolves the CA's record date to a concrete
// checkpoint id.
func (e *Engine) recordDateCheckpoint(id types.CAID, ca *CorporateAction) (uint64, error) {
	if !ca.HasRecordDate {
		return 0, ErrNoRecordDate
	}
	if ca.RecordDate.Kind == SourceExisting {
		return ca.RecordDate.Checkpoint, nil
	}
	if e.checkpoints == nil {
		return 0, errNilCheckpoints
	}
	cp, ok, err := e.checkpoints.ScheduledCheckpoint(types.TickerAsset(id.Ticker), ca.RecordDate.ScheduleID, ca.RecordDate.Date)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrRecordDateUnresolved
	}
	return cp, nil
}
