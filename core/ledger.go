package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"capchain/core/events"
	"capchain/core/state"
	"capchain/core/types"
	"capchain/native/checkpoint"
	"capchain/native/compliance"
	"capchain/native/corporate"
	"capchain/native/governance"
	"capchain/native/identity"
	"capchain/native/multisig"
	"capchain/native/portfolio"
	"capchain/native/settlement"
	"capchain/storage"
)

var (
	// ErrCommandNotPermitted is returned when a dispatched command is not
	// available to the dispatching authority.
	ErrCommandNotPermitted = errors.New("ledger: command not permitted for origin")
	// ErrUnknownCommand is returned for command kinds the dispatcher does
	// not recognise.
	ErrUnknownCommand = errors.New("ledger: unknown command kind")
)

// Runtime parameter keys understood by CommandParamUpdate. Values are
// big-endian byte strings.
const (
	ParamGovMinDeposit       = "gov.min_deposit"
	ParamGovQuorum           = "gov.quorum"
	ParamGovCoolOffPeriod    = "gov.cool_off_period"
	ParamGovVotingPeriod     = "gov.voting_period"
	ParamLegWeightLimit      = "settlement.leg_weight_limit"
	ParamMaxStatsPerAsset    = "compliance.max_stats"
	ParamMaxConditionsPerSet = "compliance.max_conditions"
)

// Ledger is the block-driven runtime. It owns the state manager, wires every
// native engine with its capability bridges, and applies commands one
// transaction at a time. The ledger is single-threaded: one goroutine drives
// BeginBlock, the command stream, and EndBlock.
type Ledger struct {
	state    *state.Manager
	recorder *events.Recorder

	identity    *identity.Engine
	portfolio   *portfolio.Engine
	compliance  *compliance.Engine
	checkpoints *checkpoint.Engine
	corporate   *corporate.Engine
	settlement  *settlement.Engine
	multisig    *multisig.Engine
	governance  *governance.Engine

	height uint64
	now    uint64
	events []*types.Event
}

// NewLedger builds a fully wired ledger over the given database.
func NewLedger(db storage.Database) (*Ledger, error) {
	manager, err := state.NewManager(db)
	if err != nil {
		return nil, err
	}
	if err := manager.EnsureStateVersion(false); err != nil {
		return nil, err
	}

	l := &Ledger{
		state:       manager,
		recorder:    &events.Recorder{},
		identity:    identity.NewEngine(),
		portfolio:   portfolio.NewEngine(),
		compliance:  compliance.NewEngine(),
		checkpoints: checkpoint.NewEngine(),
		corporate:   corporate.NewEngine(),
		settlement:  settlement.NewEngine(),
		multisig:    multisig.NewEngine(),
		governance:  governance.NewEngine(),
	}

	l.identity.SetState(manager.Identity())
	l.identity.SetNowFunc(func() uint64 { return l.now })

	l.portfolio.SetState(manager.Portfolio())
	l.portfolio.SetAuthConsumer(l.identity)
	l.portfolio.SetCheckpointRecorder(l.checkpoints)

	l.compliance.SetState(manager.Compliance())
	l.compliance.SetClaimReader(l.identity)

	l.checkpoints.SetState(manager.Checkpoint())
	l.checkpoints.SetBalanceReader(balanceReader{l.portfolio})

	l.corporate.SetState(manager.Corporate())
	l.corporate.SetCheckpoints(checkpointBridge{l.checkpoints})
	l.corporate.SetAuthConsumer(agencyAuths{l.identity})
	l.corporate.SetFundsMover(l.portfolio)

	l.settlement.SetState(manager.Settlement())
	l.settlement.SetPortfolios(portfolioBridge{l.portfolio})
	l.settlement.SetCompliance(l.compliance)
	l.settlement.SetTxn(manager)

	l.multisig.SetState(manager.Multisig())
	l.multisig.SetAuthorizer(multisigAuthorizer{l})
	l.multisig.SetDispatcher(l)

	l.governance.SetState(manager.Governance())
	l.governance.SetDeposits(manager.Bank())
	l.governance.SetTreasury(treasuryBridge{manager.Bank()})
	l.governance.SetDispatcher(l)
	l.governance.SetTxn(manager)

	for _, engine := range []interface{ SetEmitter(events.Emitter) }{
		l.identity, l.portfolio, l.compliance, l.checkpoints,
		l.corporate, l.settlement, l.multisig, l.governance,
	} {
		engine.SetEmitter(l.recorder)
	}

	l.height = manager.Height()
	if err := l.reloadParams(); err != nil {
		return nil, err
	}
	return l, nil
}

// State exposes the underlying manager for genesis setup and queries.
func (l *Ledger) State() *state.Manager { return l.state }

// Height returns the height of the block being processed, or the last
// committed height between blocks.
func (l *Ledger) Height() uint64 { return l.height }

// BeginBlock starts processing a block: it advances the clock and drains
// every due queue before any command applies. Each drain runs in its own
// transaction so one poisoned queue cannot take the others down.
func (l *Ledger) BeginBlock(height, nowMillis uint64) error {
	l.height = height
	l.now = nowMillis
	hooks := []func() error{
		func() error { return l.checkpoints.FireAllDue(nowMillis) },
		func() error { return l.settlement.ExecuteScheduled(height) },
		func() error { return l.governance.EnactScheduled(height) },
	}
	for _, hook := range hooks {
		l.state.Begin()
		if err := hook(); err != nil {
			l.recorder.Discard()
			if rbErr := l.state.Rollback(); rbErr != nil {
				return rbErr
			}
			return err
		}
		if err := l.state.Commit(); err != nil {
			return err
		}
		l.events = append(l.events, l.recorder.Drain()...)
	}
	return nil
}

// EndBlock flushes the block's mutations, advances the commit root and
// returns it along with the events emitted during the block.
func (l *Ledger) EndBlock() ([32]byte, []*types.Event, error) {
	root, err := l.state.Flush(l.height)
	if err != nil {
		return [32]byte{}, nil, err
	}
	emitted := l.events
	l.events = nil
	return root, emitted, nil
}

// apply resolves the origin, checks call permission and runs fn inside one
// transaction. Events are kept only when the operation commits.
func (l *Ledger) apply(origin types.AccountKey, pallet, extrinsic string, fn func(caller types.IdentityID) error) error {
	caller, _, err := l.identity.Resolve(origin)
	if err != nil {
		return err
	}
	if err := l.identity.CheckCall(caller, origin, pallet, extrinsic); err != nil {
		return err
	}
	return l.transact(func() error { return fn(caller) })
}

// applyKey runs fn for origins that are not yet linked to any identity, such
// as a key accepting a join invitation.
func (l *Ledger) applyKey(origin types.AccountKey, fn func(key types.AccountKey) error) error {
	if origin.IsZero() {
		return identity.ErrBadOrigin
	}
	return l.transact(func() error { return fn(origin) })
}

func (l *Ledger) transact(fn func() error) error {
	l.state.Begin()
	if err := fn(); err != nil {
		l.recorder.Discard()
		if rbErr := l.state.Rollback(); rbErr != nil {
			return rbErr
		}
		return err
	}
	if err := l.state.Commit(); err != nil {
		return err
	}
	l.events = append(l.events, l.recorder.Drain()...)
	return nil
}

// DispatchAsRoot executes a command with root authority. Governance
// referendums dispatch through here.
func (l *Ledger) DispatchAsRoot(call types.Command) error {
	switch call.Kind {
	case types.CommandNoop:
		return nil
	case types.CommandParamUpdate:
		var args types.ParamUpdateArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		if err := l.state.ParamPut(args.Key, args.Value); err != nil {
			return err
		}
		return l.reloadParams()
	case types.CommandTreasuryTransfer:
		var args types.TreasuryTransferArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		return l.state.Bank().TreasuryPay(args.To, args.Amount)
	case types.CommandChangeSigsRequired:
		var args types.SigsRequiredArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		return l.multisig.ChangeSigsRequired(args.Multisig, args.Required)
	case types.CommandAddMultisigSigner:
		var args types.MultisigSignerArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		return l.multisig.AddSigner(args.Multisig, args.Signer)
	case types.CommandRemoveMultisigSigner:
		var args types.MultisigSignerArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		return l.multisig.RemoveSigner(args.Multisig, args.Signer)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCommand, call.Kind)
	}
}

// DispatchAsMultisig executes a command on behalf of a threshold account.
// Only self-administration and no-op commands are available to multisigs.
func (l *Ledger) DispatchAsMultisig(account types.AccountKey, call types.Command) error {
	switch call.Kind {
	case types.CommandNoop:
		return nil
	case types.CommandChangeSigsRequired:
		var args types.SigsRequiredArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		if args.Multisig != account {
			return ErrCommandNotPermitted
		}
		return l.multisig.ChangeSigsRequired(account, args.Required)
	case types.CommandAddMultisigSigner:
		var args types.MultisigSignerArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		if args.Multisig != account {
			return ErrCommandNotPermitted
		}
		return l.multisig.AddSigner(account, args.Signer)
	case types.CommandRemoveMultisigSigner:
		var args types.MultisigSignerArgs
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		if args.Multisig != account {
			return ErrCommandNotPermitted
		}
		return l.multisig.RemoveSigner(account, args.Signer)
	case types.CommandParamUpdate, types.CommandTreasuryTransfer:
		return ErrCommandNotPermitted
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCommand, call.Kind)
	}
}

// reloadParams pushes stored runtime parameters into the engines that cache
// them. Absent parameters leave the engine defaults in place.
func (l *Ledger) reloadParams() error {
	if v, ok, err := l.paramBigInt(ParamGovMinDeposit); err != nil {
		return err
	} else if ok {
		l.governance.SetMinDeposit(v)
	}
	if v, ok, err := l.paramBigInt(ParamGovQuorum); err != nil {
		return err
	} else if ok {
		l.governance.SetQuorum(v)
	}
	coolOff, haveCoolOff, err := l.paramUint64(ParamGovCoolOffPeriod)
	if err != nil {
		return err
	}
	voting, haveVoting, err := l.paramUint64(ParamGovVotingPeriod)
	if err != nil {
		return err
	}
	if haveCoolOff || haveVoting {
		if !haveCoolOff {
			coolOff = governance.DefaultCoolOffPeriod
		}
		if !haveVoting {
			voting = governance.DefaultVotingPeriod
		}
		l.governance.SetPeriods(coolOff, voting)
	}
	if v, ok, err := l.paramUint64(ParamLegWeightLimit); err != nil {
		return err
	} else if ok {
		l.settlement.SetLegWeightLimit(v)
	}
	maxStats, haveStats, err := l.paramUint64(ParamMaxStatsPerAsset)
	if err != nil {
		return err
	}
	maxConds, haveConds, err := l.paramUint64(ParamMaxConditionsPerSet)
	if err != nil {
		return err
	}
	if haveStats || haveConds {
		if !haveStats {
			maxStats = compliance.DefaultMaxStatsPerAsset
		}
		if !haveConds {
			maxConds = compliance.DefaultMaxConditionsPerAsset
		}
		l.compliance.SetBounds(int(maxStats), int(maxConds))
	}
	return nil
}

func (l *Ledger) paramUint64(key string) (uint64, bool, error) {
	raw, ok, err := l.state.Param(key)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(raw) > 8 {
		return 0, false, fmt.Errorf("ledger: parameter %s overflows uint64", key)
	}
	var buf [8]byte
	copy(buf[8-len(raw):], raw)
	return binary.BigEndian.Uint64(buf[:]), true, nil
}

func (l *Ledger) paramBigInt(key string) (*big.Int, bool, error) {
	raw, ok, err := l.state.Param(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return new(big.Int).SetBytes(raw), true, nil
}

// --- capability adapters ---

// balanceReader flips the portfolio engine's argument order to the shape the
// checkpoint engine expects.
type balanceReader struct {
	p *portfolio.Engine
}

func (r balanceReader) IdentityBalance(asset types.AssetID, did types.IdentityID) (*big.Int, error) {
	return r.p.IdentityBalance(did, asset)
}

func (r balanceReader) Supply(asset types.AssetID) (*big.Int, error) {
	return r.p.Supply(asset)
}

// portfolioBridge adapts the portfolio engine to the settlement Portfolios
// interface.
type portfolioBridge struct {
	p *portfolio.Engine
}

func (b portfolioBridge) Custodian(pid types.PortfolioID) (types.IdentityID, error) {
	return b.p.Custodian(pid)
}

func (b portfolioBridge) EnsureExists(pid types.PortfolioID) error {
	return b.p.EnsureExists(pid)
}

func (b portfolioBridge) Lock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	return b.p.Lock(pid, asset, amount)
}

func (b portfolioBridge) Unlock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	return b.p.Unlock(pid, asset, amount)
}

func (b portfolioBridge) Transfer(from, to types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	return b.p.Transfer(from, to, asset, amount)
}

func (b portfolioBridge) IsPreApproved(pid types.PortfolioID, asset types.AssetID) (bool, error) {
	return b.p.IsPreApproved(pid, asset)
}

func (b portfolioBridge) IdentityBalance(asset types.AssetID, did types.IdentityID) (*big.Int, error) {
	return b.p.IdentityBalance(did, asset)
}

func (b portfolioBridge) Supply(asset types.AssetID) (*big.Int, error) {
	return b.p.Supply(asset)
}

// checkpointBridge adapts the checkpoint engine to the corporate Checkpoints
// interface.
type checkpointBridge struct {
	cp *checkpoint.Engine
}

func (b checkpointBridge) CreatePinnedSchedule(asset types.AssetID, at, now uint64) (uint64, error) {
	schedule, err := b.cp.CreateSchedule(asset, at, 0, 1, false, now)
	if err != nil {
		return 0, err
	}
	if err := b.cp.PinSchedule(asset, schedule.ID); err != nil {
		return 0, err
	}
	return schedule.ID, nil
}

func (b checkpointBridge) PinSchedule(asset types.AssetID, id uint64) error {
	return b.cp.PinSchedule(asset, id)
}

func (b checkpointBridge) UnpinSchedule(asset types.AssetID, id uint64) error {
	return b.cp.UnpinSchedule(asset, id)
}

func (b checkpointBridge) ScheduleInfo(asset types.AssetID, id uint64) (uint64, bool, error) {
	schedule, err := b.cp.ScheduleOf(asset, id)
	if err != nil {
		return 0, false, err
	}
	return schedule.NextAt, schedule.Removable(), nil
}

func (b checkpointBridge) CheckpointTimestamp(asset types.AssetID, id uint64) (uint64, error) {
	return b.cp.TimestampOf(asset, id)
}

func (b checkpointBridge) ScheduledCheckpoint(asset types.AssetID, schedule, date uint64) (uint64, bool, error) {
	return b.cp.ScheduledCheckpoint(asset, schedule, date)
}

func (b checkpointBridge) BalanceAt(asset types.AssetID, cp uint64, did types.IdentityID) (*big.Int, error) {
	return b.cp.BalanceAt(asset, cp, did)
}

func (b checkpointBridge) SupplyAt(asset types.AssetID, cp uint64) (*big.Int, error) {
	return b.cp.SupplyAt(asset, cp)
}

// agencyAuths adapts the identity engine's authorization consumption to the
// corporate engine's agency-transfer acceptance.
type agencyAuths struct {
	ids *identity.Engine
}

func (a agencyAuths) ConsumeAgencyTransfer(did types.IdentityID, authID uint64) (types.Ticker, error) {
	auth, err := a.ids.ConsumeAuthorization(did, types.AccountKey{}, authID, identity.AuthTransferCorporateActionAgent)
	if err != nil {
		return types.Ticker{}, err
	}
	return auth.Data.Ticker, nil
}

// multisigAuthorizer issues signer invitations as identity authorizations
// from the multisig's creator.
type multisigAuthorizer struct {
	l *Ledger
}

func (a multisigAuthorizer) InviteSigner(account, signer types.AccountKey) error {
	rec, ok, err := a.l.state.Multisig().Multisig(account)
	if err != nil {
		return err
	}
	if !ok {
		return multisig.ErrNoSuchMultisig
	}
	_, err = a.l.identity.AddAuthorization(
		rec.Creator,
		types.AccountSignatory(signer),
		identity.AuthorizationData{Kind: identity.AuthMultisigSigner, Multisig: account},
		false, 0,
	)
	return err
}

// treasuryBridge narrows the bank accessor to the governance Treasury
// interface.
type treasuryBridge struct {
	bank *state.BankState
}

func (b treasuryBridge) Balance() (*big.Int, error) {
	return b.bank.TreasuryBalance()
}

func (b treasuryBridge) Pay(to types.IdentityID, amount *big.Int) error {
	return b.bank.TreasuryPay(to, amount)
}
