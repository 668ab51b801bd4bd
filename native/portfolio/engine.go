package portfolio

import (
	"errors"
	"math/big"

	"capchain/core/events"
	"capchain/core/types"
	"capchain/native/identity"
)

var (
	errNilState = errors.New("portfolio engine: state not configured")

	// ErrNameInUse marks portfolio names already taken within the identity.
	ErrNameInUse = errors.New("portfolio: name in use")
	// ErrEmptyName marks empty portfolio names.
	ErrEmptyName = errors.New("portfolio: name must not be empty")
	// ErrNoSuchPortfolio marks unknown portfolio ids.
	ErrNoSuchPortfolio = errors.New("portfolio: no such portfolio")
	// ErrPortfolioNotEmpty marks deletion of a portfolio holding assets.
	ErrPortfolioNotEmpty = errors.New("portfolio: not empty")
	// ErrDefaultPortfolio marks operations user portfolios only support.
	ErrDefaultPortfolio = errors.New("portfolio: default portfolio is implicit")
	// ErrSamePortfolio marks moves whose source equals the destination.
	ErrSamePortfolio = errors.New("portfolio: destination is same portfolio")
	// ErrDifferentIdentity marks moves across identities.
	ErrDifferentIdentity = errors.New("portfolio: portfolios belong to different identities")
	// ErrDuplicateAsset marks move lists naming an asset twice.
	ErrDuplicateAsset = errors.New("portfolio: duplicate asset in move")
	// ErrEmptyTransfer marks zero-amount movements.
	ErrEmptyTransfer = errors.New("portfolio: empty transfer")
	// ErrInsufficientBalance marks movements exceeding the free balance.
	ErrInsufficientBalance = errors.New("portfolio: insufficient balance")
	// ErrInsufficientLocked marks unlocks exceeding the locked balance.
	ErrInsufficientLocked = errors.New("portfolio: insufficient tokens locked")
	// ErrNotCustodian marks calls from identities without custody.
	ErrNotCustodian = errors.New("portfolio: caller is not the custodian")
	// ErrNFTNotFound marks NFTs absent from the source portfolio.
	ErrNFTNotFound = errors.New("portfolio: nft not found in portfolio")
	// ErrNFTAlreadyLocked marks moves of locked NFTs.
	ErrNFTAlreadyLocked = errors.New("portfolio: nft already locked")
	// ErrDuplicateNFT marks move lists naming an NFT twice.
	ErrDuplicateNFT = errors.New("portfolio: duplicate nft in move")
	// ErrNFTNotLocked marks unlocks of NFTs that are not locked.
	ErrNFTNotLocked = errors.New("portfolio: nft not locked")
)

type engineState interface {
	PortfolioNameGet(pid types.PortfolioID) (string, bool, error)
	PortfolioNamePut(pid types.PortfolioID, name string) error
	PortfolioNameDelete(pid types.PortfolioID) error
	PortfolioNumberByName(did types.IdentityID, name string) (uint64, bool, error)
	PortfolioNameIndexPut(did types.IdentityID, name string, number uint64) error
	PortfolioNameIndexDelete(did types.IdentityID, name string) error
	PortfolioNextNumber(did types.IdentityID) (uint64, error)

	PortfolioBalance(pid types.PortfolioID, asset types.AssetID) (*big.Int, error)
	PortfolioBalancePut(pid types.PortfolioID, asset types.AssetID, v *big.Int) error
	PortfolioLocked(pid types.PortfolioID, asset types.AssetID) (*big.Int, error)
	PortfolioLockedPut(pid types.PortfolioID, asset types.AssetID, v *big.Int) error
	PortfolioAssetCount(pid types.PortfolioID) (uint64, error)
	PortfolioAssetCountPut(pid types.PortfolioID, v uint64) error

	PortfolioNFTs(pid types.PortfolioID, asset types.AssetID) ([]uint64, error)
	PortfolioNFTsPut(pid types.PortfolioID, asset types.AssetID, ids []uint64) error
	PortfolioNFTsLocked(pid types.PortfolioID, asset types.AssetID) ([]uint64, error)
	PortfolioNFTsLockedPut(pid types.PortfolioID, asset types.AssetID, ids []uint64) error

	PortfolioCustodian(pid types.PortfolioID) (types.IdentityID, bool, error)
	PortfolioCustodianPut(pid types.PortfolioID, did types.IdentityID) error
	PortfolioCustodianDelete(pid types.PortfolioID) error

	PortfolioPreApproved(pid types.PortfolioID, asset types.AssetID) (bool, error)
	PortfolioPreApprovedPut(pid types.PortfolioID, asset types.AssetID, v bool) error

	AssetSupply(asset types.AssetID) (*big.Int, error)
	AssetSupplyPut(asset types.AssetID, v *big.Int) error
	IdentityAssetBalance(did types.IdentityID, asset types.AssetID) (*big.Int, error)
	IdentityAssetBalancePut(did types.IdentityID, asset types.AssetID, v *big.Int) error
}

// AuthConsumer is the slice of the identity engine the portfolio module needs
// to accept custody authorizations.
type AuthConsumer interface {
	ConsumeAuthorization(did types.IdentityID, key types.AccountKey, id uint64, kind identity.AuthorizationKind) (*identity.Authorization, error)
}

// CheckpointRecorder is invoked before an identity's aggregate balance of an
// asset changes, so pending checkpoints can capture the pre-change balance.
type CheckpointRecorder interface {
	RecordBalance(asset types.AssetID, did types.IdentityID, current *big.Int) error
}

type noopRecorder struct{}

func (noopRecorder) RecordBalance(types.AssetID, types.IdentityID, *big.Int) error { return nil }

// Engine partitions identity holdings into named sub-accounts and owns the
// authoritative balance and lock accounting for every asset.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	auths      AuthConsumer
	checkpoint CheckpointRecorder
}

// NewEngine constructs a portfolio engine with no-op dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, checkpoint: noopRecorder{}}
}

// SetState wires the engine to its state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAuthConsumer wires the identity engine's authorization acceptance.
func (e *Engine) SetAuthConsumer(a AuthConsumer) { e.auths = a }

// SetCheckpointRecorder wires the checkpoint engine's lazy snapshot hook.
func (e *Engine) SetCheckpointRecorder(c CheckpointRecorder) {
	if c == nil {
		e.checkpoint = noopRecorder{}
		return
	}
	e.checkpoint = c
}

// CreatePortfolio allocates the next numbered portfolio under the identity.
func (e *Engine) CreatePortfolio(did types.IdentityID, name string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if name == "" {
		return 0, ErrEmptyName
	}
	if _, taken, err := e.state.PortfolioNumberByName(did, name); err != nil {
		return 0, err
	} else if taken {
		return 0, ErrNameInUse
	}
	number, err := e.state.PortfolioNextNumber(did)
	if err != nil {
		return 0, err
	}
	pid := types.UserPortfolio(did, number)
	if err := e.state.PortfolioNamePut(pid, name); err != nil {
		return 0, err
	}
	if err := e.state.PortfolioNameIndexPut(did, name, number); err != nil {
		return 0, err
	}
	e.emit(newPortfolioCreatedEvent(pid, name))
	return number, nil
}

// DeletePortfolio removes an empty user portfolio.
func (e *Engine) DeletePortfolio(caller types.IdentityID, pid types.PortfolioID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if pid.Kind != types.PortfolioUser {
		return ErrDefaultPortfolio
	}
	name, ok, err := e.state.PortfolioNameGet(pid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchPortfolio
	}
	if err := e.requireCustodian(caller, pid); err != nil {
		return err
	}
	count, err := e.state.PortfolioAssetCount(pid)
	if err != nil {
		return err
	}
	if count != 0 {
		return ErrPortfolioNotEmpty
	}
	if err := e.state.PortfolioNameDelete(pid); err != nil {
		return err
	}
	if err := e.state.PortfolioNameIndexDelete(pid.DID, name); err != nil {
		return err
	}
	if err := e.state.PortfolioCustodianDelete(pid); err != nil {
		return err
	}
	e.emit(newPortfolioDeletedEvent(pid))
	return nil
}

// RenamePortfolio changes a user portfolio's name, re-checking uniqueness.
func (e *Engine) RenamePortfolio(caller types.IdentityID, pid types.PortfolioID, newName string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if pid.Kind != types.PortfolioUser {
		return ErrDefaultPortfolio
	}
	if newName == "" {
		return ErrEmptyName
	}
	if pid.DID != caller {
		return ErrNotCustodian
	}
	oldName, ok, err := e.state.PortfolioNameGet(pid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchPortfolio
	}
	if _, taken, err := e.state.PortfolioNumberByName(pid.DID, newName); err != nil {
		return err
	} else if taken {
		return ErrNameInUse
	}
	if err := e.state.PortfolioNameIndexDelete(pid.DID, oldName); err != nil {
		return err
	}
	if err := e.state.PortfolioNamePut(pid, newName); err != nil {
		return err
	}
	if err := e.state.PortfolioNameIndexPut(pid.DID, newName, pid.Number); err != nil {
		return err
	}
	e.emit(newPortfolioRenamedEvent(pid, newName))
	return nil
}

// EnsureExists validates that the portfolio id addresses a live portfolio.
// Default portfolios exist implicitly.
func (e *Engine) EnsureExists(pid types.PortfolioID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if pid.Kind == types.PortfolioDefault {
		return nil
	}
	_, ok, err := e.state.PortfolioNameGet(pid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchPortfolio
	}
	return nil
}

// Custodian returns the effective custodian: the stored delegate, or the
// owner when none is set.
func (e *Engine) Custodian(pid types.PortfolioID) (types.IdentityID, error) {
	if e == nil || e.state == nil {
		return types.IdentityID{}, errNilState
	}
	custodian, ok, err := e.state.PortfolioCustodian(pid)
	if err != nil {
		return types.IdentityID{}, err
	}
	if ok {
		return custodian, nil
	}
	return pid.DID, nil
}

func (e *Engine) requireCustodian(caller types.IdentityID, pid types.PortfolioID) error {
	custodian, err := e.Custodian(pid)
	if err != nil {
		return err
	}
	if custodian != caller {
		return ErrNotCustodian
	}
	return nil
}

// MoveFunds moves fungible amounts and NFTs between two portfolios of the
// same identity. All validators run before any write; any failure leaves the
// portfolios untouched (the enclosing transaction rolls partial writes back).
func (e *Engine) MoveFunds(caller types.IdentityID, from, to types.PortfolioID, funds []Fund) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if from == to {
		return ErrSamePortfolio
	}
	if from.DID != to.DID {
		return ErrDifferentIdentity
	}
	if err := e.EnsureExists(from); err != nil {
		return err
	}
	if err := e.EnsureExists(to); err != nil {
		return err
	}
	if err := e.requireCustodian(caller, from); err != nil {
		return err
	}

	seen := make(map[types.AssetID]struct{}, len(funds))
	for _, fund := range funds {
		if _, dup := seen[fund.Asset]; dup {
			return ErrDuplicateAsset
		}
		seen[fund.Asset] = struct{}{}
		if len(fund.NFTs) > 0 {
			held, err := e.state.PortfolioNFTs(from, fund.Asset)
			if err != nil {
				return err
			}
			locked, err := e.state.PortfolioNFTsLocked(from, fund.Asset)
			if err != nil {
				return err
			}
			// moveNFTs appends one destination entry per listed id, so a
			// repeated id would mint a copy.
			seenIDs := make(map[uint64]struct{}, len(fund.NFTs))
			for _, id := range fund.NFTs {
				if _, dup := seenIDs[id]; dup {
					return ErrDuplicateNFT
				}
				seenIDs[id] = struct{}{}
				if !containsID(held, id) {
					return ErrNFTNotFound
				}
				if containsID(locked, id) {
					return ErrNFTAlreadyLocked
				}
			}
			continue
		}
		if fund.Amount == nil || fund.Amount.Sign() <= 0 {
			return ErrEmptyTransfer
		}
		free, err := e.freeBalance(from, fund.Asset)
		if err != nil {
			return err
		}
		if free.Cmp(fund.Amount) < 0 {
			return ErrInsufficientBalance
		}
	}

	for _, fund := range funds {
		if len(fund.NFTs) > 0 {
			if err := e.moveNFTs(from, to, fund.Asset, fund.NFTs); err != nil {
				return err
			}
			continue
		}
		if err := e.adjustBalance(from, fund.Asset, fund.Amount, false); err != nil {
			return err
		}
		if err := e.adjustBalance(to, fund.Asset, fund.Amount, true); err != nil {
			return err
		}
	}
	e.emit(newFundsMovedEvent(from, to, funds))
	return nil
}

func (e *Engine) moveNFTs(from, to types.PortfolioID, asset types.AssetID, ids []uint64) error {
	held, err := e.state.PortfolioNFTs(from, asset)
	if err != nil {
		return err
	}
	dest, err := e.state.PortfolioNFTs(to, asset)
	if err != nil {
		return err
	}
	for _, id := range ids {
		held = removeID(held, id)
		dest = append(dest, id)
	}
	if err := e.state.PortfolioNFTsPut(from, asset, held); err != nil {
		return err
	}
	if err := e.state.PortfolioNFTsPut(to, asset, dest); err != nil {
		return err
	}
	// NFT holdings count towards portfolio emptiness through asset counts.
	if len(held) == 0 {
		if err := e.bumpAssetCount(from, -1); err != nil {
			return err
		}
	}
	if len(dest) == len(ids) {
		if err := e.bumpAssetCount(to, +1); err != nil {
			return err
		}
	}
	return nil
}

// freeBalance returns balance - locked for the pair.
func (e *Engine) freeBalance(pid types.PortfolioID, asset types.AssetID) (*big.Int, error) {
	balance, err := e.state.PortfolioBalance(pid, asset)
	if err != nil {
		return nil, err
	}
	locked, err := e.state.PortfolioLocked(pid, asset)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(balance, locked), nil
}

// adjustBalance applies a single-sided balance delta, maintaining the asset
// count on 0→positive and positive→0 transitions.
func (e *Engine) adjustBalance(pid types.PortfolioID, asset types.AssetID, amount *big.Int, credit bool) error {
	balance, err := e.state.PortfolioBalance(pid, asset)
	if err != nil {
		return err
	}
	var next *big.Int
	if credit {
		next = new(big.Int).Add(balance, amount)
	} else {
		next = new(big.Int).Sub(balance, amount)
		if next.Sign() < 0 {
			return ErrInsufficientBalance
		}
	}
	if err := e.state.PortfolioBalancePut(pid, asset, next); err != nil {
		return err
	}
	if balance.Sign() == 0 && next.Sign() > 0 {
		return e.bumpAssetCount(pid, +1)
	}
	if balance.Sign() > 0 && next.Sign() == 0 {
		return e.bumpAssetCount(pid, -1)
	}
	return nil
}

func (e *Engine) bumpAssetCount(pid types.PortfolioID, delta int) error {
	count, err := e.state.PortfolioAssetCount(pid)
	if err != nil {
		return err
	}
	if delta > 0 {
		count++
	} else if count > 0 {
		count--
	}
	return e.state.PortfolioAssetCountPut(pid, count)
}

// Lock reserves amount in the portfolio for an in-flight settlement. Locks
// stack additively.
func (e *Engine) Lock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrEmptyTransfer
	}
	free, err := e.freeBalance(pid, asset)
	if err != nil {
		return err
	}
	if free.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	locked, err := e.state.PortfolioLocked(pid, asset)
	if err != nil {
		return err
	}
	return e.state.PortfolioLockedPut(pid, asset, new(big.Int).Add(locked, amount))
}

// Unlock releases a previously taken lock.
func (e *Engine) Unlock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrEmptyTransfer
	}
	locked, err := e.state.PortfolioLocked(pid, asset)
	if err != nil {
		return err
	}
	if locked.Cmp(amount) < 0 {
		return ErrInsufficientLocked
	}
	return e.state.PortfolioLockedPut(pid, asset, new(big.Int).Sub(locked, amount))
}

// Transfer moves amount between portfolios of (possibly) different
// identities, keeping per-identity aggregates and checkpoint snapshots
// current. Compliance is the caller's concern; settlement verifies transfer
// restrictions before invoking this.
func (e *Engine) Transfer(from, to types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrEmptyTransfer
	}
	if from == to {
		return ErrSamePortfolio
	}
	free, err := e.freeBalance(from, asset)
	if err != nil {
		return err
	}
	if free.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.adjustBalance(from, asset, amount, false); err != nil {
		return err
	}
	if err := e.adjustBalance(to, asset, amount, true); err != nil {
		return err
	}
	if from.DID != to.DID {
		if err := e.adjustIdentityBalance(from.DID, asset, amount, false); err != nil {
			return err
		}
		if err := e.adjustIdentityBalance(to.DID, asset, amount, true); err != nil {
			return err
		}
	}
	e.emit(newTransferEvent(from, to, asset, amount))
	return nil
}

// Mint credits freshly issued tokens to the portfolio and grows the supply.
func (e *Engine) Mint(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrEmptyTransfer
	}
	if err := e.adjustBalance(pid, asset, amount, true); err != nil {
		return err
	}
	if err := e.adjustIdentityBalance(pid.DID, asset, amount, true); err != nil {
		return err
	}
	supply, err := e.state.AssetSupply(asset)
	if err != nil {
		return err
	}
	return e.state.AssetSupplyPut(asset, new(big.Int).Add(supply, amount))
}

// Burn removes tokens from the portfolio and shrinks the supply.
func (e *Engine) Burn(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrEmptyTransfer
	}
	free, err := e.freeBalance(pid, asset)
	if err != nil {
		return err
	}
	if free.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.adjustBalance(pid, asset, amount, false); err != nil {
		return err
	}
	if err := e.adjustIdentityBalance(pid.DID, asset, amount, false); err != nil {
		return err
	}
	supply, err := e.state.AssetSupply(asset)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(supply, amount)
	if next.Sign() < 0 {
		return ErrInsufficientBalance
	}
	return e.state.AssetSupplyPut(asset, next)
}

func (e *Engine) adjustIdentityBalance(did types.IdentityID, asset types.AssetID, amount *big.Int, credit bool) error {
	current, err := e.state.IdentityAssetBalance(did, asset)
	if err != nil {
		return err
	}
	// Let pending checkpoints capture the pre-change balance first.
	if err := e.checkpoint.RecordBalance(asset, did, current); err != nil {
		return err
	}
	var next *big.Int
	if credit {
		next = new(big.Int).Add(current, amount)
	} else {
		next = new(big.Int).Sub(current, amount)
		if next.Sign() < 0 {
			return ErrInsufficientBalance
		}
	}
	return e.state.IdentityAssetBalancePut(did, asset, next)
}

// AcceptCustody consumes a PortfolioCustody authorization and installs the
// caller as custodian of the referenced portfolio.
func (e *Engine) AcceptCustody(did types.IdentityID, key types.AccountKey, authID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.auths == nil {
		return errors.New("portfolio engine: auth consumer not configured")
	}
	auth, err := e.auths.ConsumeAuthorization(did, key, authID, identity.AuthPortfolioCustody)
	if err != nil {
		return err
	}
	pid := auth.Data.Portfolio
	if pid.DID != auth.From {
		return ErrNotCustodian
	}
	if err := e.EnsureExists(pid); err != nil {
		return err
	}
	if err := e.state.PortfolioCustodianPut(pid, did); err != nil {
		return err
	}
	e.emit(newCustodyEvent(pid, did))
	return nil
}

// QuitCustody returns custody of the portfolio to its owner.
func (e *Engine) QuitCustody(caller types.IdentityID, pid types.PortfolioID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	custodian, ok, err := e.state.PortfolioCustodian(pid)
	if err != nil {
		return err
	}
	if !ok || custodian != caller {
		return ErrNotCustodian
	}
	if err := e.state.PortfolioCustodianDelete(pid); err != nil {
		return err
	}
	e.emit(newCustodyEvent(pid, pid.DID))
	return nil
}

// PreApprove marks the asset as exempt from the incoming-affirmation
// requirement for the portfolio.
func (e *Engine) PreApprove(caller types.IdentityID, pid types.PortfolioID, asset types.AssetID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.EnsureExists(pid); err != nil {
		return err
	}
	if err := e.requireCustodian(caller, pid); err != nil {
		return err
	}
	return e.state.PortfolioPreApprovedPut(pid, asset, true)
}

// RemovePreApproval clears a portfolio pre-approval.
func (e *Engine) RemovePreApproval(caller types.IdentityID, pid types.PortfolioID, asset types.AssetID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireCustodian(caller, pid); err != nil {
		return err
	}
	return e.state.PortfolioPreApprovedPut(pid, asset, false)
}

// IsPreApproved reports whether incoming legs into the portfolio for the
// asset auto-affirm.
func (e *Engine) IsPreApproved(pid types.PortfolioID, asset types.AssetID) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.PortfolioPreApproved(pid, asset)
}

// BalanceOf returns the portfolio's balance of the asset.
func (e *Engine) BalanceOf(pid types.PortfolioID, asset types.AssetID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.PortfolioBalance(pid, asset)
}

// LockedOf returns the portfolio's locked balance of the asset.
func (e *Engine) LockedOf(pid types.PortfolioID, asset types.AssetID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.PortfolioLocked(pid, asset)
}

// IdentityBalance returns the identity's aggregate balance of the asset.
func (e *Engine) IdentityBalance(did types.IdentityID, asset types.AssetID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.IdentityAssetBalance(did, asset)
}

// Supply returns the asset's total supply.
func (e *Engine) Supply(asset types.AssetID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AssetSupply(asset)
}

// AssetCount returns the number of assets with non-zero holdings in the
// portfolio.
func (e *Engine) AssetCount(pid types.PortfolioID) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.PortfolioAssetCount(pid)
}
