package identity

import (
	"encoding/binary"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"capchain/core/events"
	"capchain/core/types"
)

var (
	errNilState = errors.New("identity engine: state not configured")

	// ErrBadOrigin marks unsigned or malformed origins.
	ErrBadOrigin = errors.New("identity: bad origin")
	// ErrKeyNotFound marks keys not linked to any identity.
	ErrKeyNotFound = errors.New("identity: key not found")
	// ErrKeyFrozen marks calls from frozen secondary keys.
	ErrKeyFrozen = errors.New("identity: secondary keys frozen")
	// ErrUnauthorized marks permission failures.
	ErrUnauthorized = errors.New("identity: unauthorized")
	// ErrAuthNotFound marks missing authorizations.
	ErrAuthNotFound = errors.New("identity: authorization not found")
	// ErrAuthExpired marks authorizations accepted after their expiry.
	ErrAuthExpired = errors.New("identity: authorization expired")
	// ErrAuthBadTarget marks acceptance by a signatory the authorization was
	// not addressed to.
	ErrAuthBadTarget = errors.New("identity: authorization addressed to another signatory")
	// ErrAuthKindMismatch marks acceptance through the wrong operation.
	ErrAuthKindMismatch = errors.New("identity: authorization kind mismatch")
	// ErrAlreadyLinked marks keys already bound to an identity.
	ErrAlreadyLinked = errors.New("identity: key already linked")
	// ErrNoSuchIdentity marks unknown DIDs.
	ErrNoSuchIdentity = errors.New("identity: no such identity")
	// ErrNotCDDProvider marks CDD-only operations invoked by others.
	ErrNotCDDProvider = errors.New("identity: caller is not a CDD provider")
	// ErrNoSuchClaim marks revocation of a claim that was never issued.
	ErrNoSuchClaim = errors.New("identity: no such claim")
)

type engineState interface {
	IdentityGet(did types.IdentityID) (*Record, bool, error)
	IdentityPut(did types.IdentityID, rec *Record) error
	KeyRecordGet(key types.AccountKey) (*KeyRecord, bool, error)
	KeyRecordPut(key types.AccountKey, rec *KeyRecord) error
	KeyRecordDelete(key types.AccountKey) error
	IdentityNextNonce() (uint64, error)
	AuthorizationNextID() (uint64, error)
	AuthorizationPut(auth *Authorization) error
	AuthorizationGet(id uint64) (*Authorization, bool, error)
	AuthorizationDelete(id uint64) error
	ClaimPut(did types.IdentityID, claim *types.Claim) error
	ClaimGet(did types.IdentityID, key types.ClaimKey, scope types.AssetID) (*types.Claim, bool, error)
	ClaimDelete(did types.IdentityID, key types.ClaimKey, scope types.AssetID) error
	CDDProviderSet(did types.IdentityID, enabled bool) error
	CDDProviderIs(did types.IdentityID) (bool, error)
}

// Engine resolves signing keys to identities, enforces permission sets, and
// mediates the out-of-band authorization flows every other module leans on.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() uint64
}

// NewEngine constructs an identity engine with no-op dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
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

// SetNowFunc injects the millisecond block clock.
func (e *Engine) SetNowFunc(now func() uint64) { e.nowFn = now }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return 0
	}
	return e.nowFn()
}

// CreateIdentity registers a fresh identity bound to the given primary key.
// Keys already linked to an identity are refused.
func (e *Engine) CreateIdentity(primary types.AccountKey) (types.IdentityID, error) {
	if e == nil || e.state == nil {
		return types.IdentityID{}, errNilState
	}
	if _, linked, err := e.state.KeyRecordGet(primary); err != nil {
		return types.IdentityID{}, err
	} else if linked {
		return types.IdentityID{}, ErrAlreadyLinked
	}
	nonce, err := e.state.IdentityNextNonce()
	if err != nil {
		return types.IdentityID{}, err
	}
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], nonce)
	var did types.IdentityID
	copy(did[:], ethcrypto.Keccak256(primary[:], seed[:]))

	if err := e.state.IdentityPut(did, &Record{Primary: primary}); err != nil {
		return types.IdentityID{}, err
	}
	if err := e.state.KeyRecordPut(primary, &KeyRecord{DID: did, IsPrimary: true}); err != nil {
		return types.IdentityID{}, err
	}
	e.emit(newIdentityCreatedEvent(did, primary))
	return did, nil
}

// CDDRegisterIdentity lets a registered CDD provider create an identity for a
// customer key.
func (e *Engine) CDDRegisterIdentity(provider types.IdentityID, primary types.AccountKey) (types.IdentityID, error) {
	if e == nil || e.state == nil {
		return types.IdentityID{}, errNilState
	}
	isProvider, err := e.state.CDDProviderIs(provider)
	if err != nil {
		return types.IdentityID{}, err
	}
	if !isProvider {
		return types.IdentityID{}, ErrNotCDDProvider
	}
	return e.CreateIdentity(primary)
}

// SetCDDProvider grants or revokes CDD-provider status. Root-only; the ledger
// exposes it through genesis and governance.
func (e *Engine) SetCDDProvider(did types.IdentityID, enabled bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.IdentityGet(did); err != nil {
		return err
	} else if !ok {
		return ErrNoSuchIdentity
	}
	return e.state.CDDProviderSet(did, enabled)
}

// Resolve maps a signing key to its identity. Unlinked keys fail with
// ErrKeyNotFound.
func (e *Engine) Resolve(key types.AccountKey) (types.IdentityID, *KeyRecord, error) {
	if e == nil || e.state == nil {
		return types.IdentityID{}, nil, errNilState
	}
	if key.IsZero() {
		return types.IdentityID{}, nil, ErrBadOrigin
	}
	rec, ok, err := e.state.KeyRecordGet(key)
	if err != nil {
		return types.IdentityID{}, nil, err
	}
	if !ok {
		return types.IdentityID{}, nil, ErrKeyNotFound
	}
	return rec.DID, rec, nil
}

// CheckCall verifies the key may invoke the named operation on behalf of the
// identity. Primary keys pass unconditionally; secondary keys must hold the
// extrinsic permission and the identity must not be frozen.
func (e *Engine) CheckCall(did types.IdentityID, key types.AccountKey, pallet, extrinsic string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	rec, ok, err := e.state.IdentityGet(did)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchIdentity
	}
	if rec.Primary == key {
		return nil
	}
	if rec.Frozen {
		return ErrKeyFrozen
	}
	idx := rec.SecondaryIndex(key)
	if idx < 0 {
		return ErrKeyNotFound
	}
	if !rec.Secondary[idx].Perms.AllowsCall(pallet, extrinsic) {
		return ErrUnauthorized
	}
	return nil
}

// CheckPortfolioPermission verifies the key may act on the given portfolio.
func (e *Engine) CheckPortfolioPermission(did types.IdentityID, key types.AccountKey, portfolio types.PortfolioID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	rec, ok, err := e.state.IdentityGet(did)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchIdentity
	}
	if rec.Primary == key {
		return nil
	}
	if rec.Frozen {
		return ErrKeyFrozen
	}
	idx := rec.SecondaryIndex(key)
	if idx < 0 {
		return ErrKeyNotFound
	}
	if !rec.Secondary[idx].Perms.AllowsPortfolio(portfolio) {
		return ErrUnauthorized
	}
	return nil
}

// AddAuthorization issues a single-use authorization from the caller identity
// to a signatory. Expiry of zero with hasExpiry false means no expiry.
func (e *Engine) AddAuthorization(from types.IdentityID, target types.Signatory, data AuthorizationData, hasExpiry bool, expiry uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	id, err := e.state.AuthorizationNextID()
	if err != nil {
		return 0, err
	}
	auth := &Authorization{
		ID:        id,
		From:      from,
		Target:    target,
		Data:      data,
		HasExpiry: hasExpiry,
		Expiry:    expiry,
	}
	if err := e.state.AuthorizationPut(auth); err != nil {
		return 0, err
	}
	e.emit(newAuthAddedEvent(auth))
	return id, nil
}

// RevokeAuthorization removes a pending authorization. Only the issuer may
// revoke.
func (e *Engine) RevokeAuthorization(caller types.IdentityID, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	auth, ok, err := e.state.AuthorizationGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuthNotFound
	}
	if auth.From != caller {
		return ErrUnauthorized
	}
	if err := e.state.AuthorizationDelete(id); err != nil {
		return err
	}
	e.emit(newAuthRevokedEvent(auth))
	return nil
}

// ConsumeAuthorization validates and removes an authorization on acceptance.
// The accepting signatory must match the target, the kind must match, and the
// authorization must not be expired. Deletion makes every authorization
// single-use.
func (e *Engine) ConsumeAuthorization(did types.IdentityID, key types.AccountKey, id uint64, kind AuthorizationKind) (*Authorization, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	auth, ok, err := e.state.AuthorizationGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuthNotFound
	}
	if auth.Data.Kind != kind {
		return nil, ErrAuthKindMismatch
	}
	if !auth.Target.Matches(did, key) {
		return nil, ErrAuthBadTarget
	}
	if auth.HasExpiry && e.now() >= auth.Expiry {
		return nil, ErrAuthExpired
	}
	if err := e.state.AuthorizationDelete(id); err != nil {
		return nil, err
	}
	e.emit(newAuthConsumedEvent(auth))
	return auth.Clone(), nil
}

// JoinIdentityAsKey accepts a JoinIdentity authorization, linking the calling
// key to the issuing identity as a secondary key with the granted permissions.
func (e *Engine) JoinIdentityAsKey(key types.AccountKey, authID uint64) (types.IdentityID, error) {
	if e == nil || e.state == nil {
		return types.IdentityID{}, errNilState
	}
	if _, linked, err := e.state.KeyRecordGet(key); err != nil {
		return types.IdentityID{}, err
	} else if linked {
		return types.IdentityID{}, ErrAlreadyLinked
	}
	auth, err := e.ConsumeAuthorization(types.IdentityID{}, key, authID, AuthJoinIdentity)
	if err != nil {
		return types.IdentityID{}, err
	}
	rec, ok, err := e.state.IdentityGet(auth.From)
	if err != nil {
		return types.IdentityID{}, err
	}
	if !ok {
		return types.IdentityID{}, ErrNoSuchIdentity
	}
	rec.Secondary = append(rec.Secondary, SecondaryKey{Key: key, Perms: auth.Data.Perms})
	if err := e.state.IdentityPut(auth.From, rec); err != nil {
		return types.IdentityID{}, err
	}
	if err := e.state.KeyRecordPut(key, &KeyRecord{DID: auth.From}); err != nil {
		return types.IdentityID{}, err
	}
	e.emit(newSecondaryKeyAddedEvent(auth.From, key))
	return auth.From, nil
}

// AddSecondaryKeys links unclaimed keys directly as secondaries. Caller must
// act through the primary key.
func (e *Engine) AddSecondaryKeys(did types.IdentityID, caller types.AccountKey, items []SecondaryKey) error {
	rec, err := e.requirePrimary(did, caller)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, linked, err := e.state.KeyRecordGet(item.Key); err != nil {
			return err
		} else if linked {
			return ErrAlreadyLinked
		}
		if rec.SecondaryIndex(item.Key) >= 0 {
			return ErrAlreadyLinked
		}
		rec.Secondary = append(rec.Secondary, item)
		if err := e.state.KeyRecordPut(item.Key, &KeyRecord{DID: did}); err != nil {
			return err
		}
		e.emit(newSecondaryKeyAddedEvent(did, item.Key))
	}
	return e.state.IdentityPut(did, rec)
}

// RemoveSecondaryKeys unlinks secondary keys from the identity.
func (e *Engine) RemoveSecondaryKeys(did types.IdentityID, caller types.AccountKey, keys []types.AccountKey) error {
	rec, err := e.requirePrimary(did, caller)
	if err != nil {
		return err
	}
	for _, key := range keys {
		idx := rec.SecondaryIndex(key)
		if idx < 0 {
			return ErrKeyNotFound
		}
		rec.Secondary = append(rec.Secondary[:idx], rec.Secondary[idx+1:]...)
		if err := e.state.KeyRecordDelete(key); err != nil {
			return err
		}
		e.emit(newSecondaryKeyRemovedEvent(did, key))
	}
	return e.state.IdentityPut(did, rec)
}

// SetPermissions replaces the permission set of one secondary key.
func (e *Engine) SetPermissions(did types.IdentityID, caller types.AccountKey, key types.AccountKey, perms types.Permissions) error {
	rec, err := e.requirePrimary(did, caller)
	if err != nil {
		return err
	}
	idx := rec.SecondaryIndex(key)
	if idx < 0 {
		return ErrKeyNotFound
	}
	rec.Secondary[idx].Perms = perms
	return e.state.IdentityPut(did, rec)
}

// FreezeSecondaryKeys temporarily disables all secondary keys.
func (e *Engine) FreezeSecondaryKeys(did types.IdentityID, caller types.AccountKey) error {
	rec, err := e.requirePrimary(did, caller)
	if err != nil {
		return err
	}
	rec.Frozen = true
	if err := e.state.IdentityPut(did, rec); err != nil {
		return err
	}
	e.emit(newFrozenEvent(did, true))
	return nil
}

// UnfreezeSecondaryKeys re-enables the secondary keys.
func (e *Engine) UnfreezeSecondaryKeys(did types.IdentityID, caller types.AccountKey) error {
	rec, err := e.requirePrimary(did, caller)
	if err != nil {
		return err
	}
	rec.Frozen = false
	if err := e.state.IdentityPut(did, rec); err != nil {
		return err
	}
	e.emit(newFrozenEvent(did, false))
	return nil
}

// RotatePrimaryKey rebinds the identity to the calling key. The rotation
// needs two authorizations addressed to the new key: the owner-approved
// rotation and a CDD provider's attestation. Both are consumed atomically.
func (e *Engine) RotatePrimaryKey(newKey types.AccountKey, ownerAuthID, cddAuthID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, linked, err := e.state.KeyRecordGet(newKey); err != nil {
		return err
	} else if linked {
		return ErrAlreadyLinked
	}
	ownerAuth, err := e.ConsumeAuthorization(types.IdentityID{}, newKey, ownerAuthID, AuthRotatePrimaryKey)
	if err != nil {
		return err
	}
	cddAuth, err := e.ConsumeAuthorization(types.IdentityID{}, newKey, cddAuthID, AuthAttestPrimaryKeyRotation)
	if err != nil {
		return err
	}
	isProvider, err := e.state.CDDProviderIs(cddAuth.From)
	if err != nil {
		return err
	}
	if !isProvider {
		return ErrNotCDDProvider
	}
	did := ownerAuth.From
	rec, ok, err := e.state.IdentityGet(did)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchIdentity
	}
	oldKey := rec.Primary
	rec.Primary = newKey
	if err := e.state.IdentityPut(did, rec); err != nil {
		return err
	}
	if err := e.state.KeyRecordDelete(oldKey); err != nil {
		return err
	}
	if err := e.state.KeyRecordPut(newKey, &KeyRecord{DID: did, IsPrimary: true}); err != nil {
		return err
	}
	e.emit(newPrimaryRotatedEvent(did, oldKey, newKey))
	return nil
}

// AddClaim records an attestation about the target identity.
func (e *Engine) AddClaim(issuer, target types.IdentityID, claimType types.ClaimType, scope types.AssetID, value string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.IdentityGet(target); err != nil {
		return err
	} else if !ok {
		return ErrNoSuchIdentity
	}
	claim := &types.Claim{Type: claimType, Issuer: issuer, Scope: scope, Value: value}
	if err := e.state.ClaimPut(target, claim); err != nil {
		return err
	}
	e.emit(newClaimEvent(target, claim, "identity.claim_added"))
	return nil
}

// RevokeClaim removes an attestation previously issued by the caller.
func (e *Engine) RevokeClaim(issuer, target types.IdentityID, claimType types.ClaimType, scope types.AssetID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	key := types.ClaimKey{Type: claimType, Issuer: issuer}
	claim, ok, err := e.state.ClaimGet(target, key, scope)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchClaim
	}
	if err := e.state.ClaimDelete(target, key, scope); err != nil {
		return err
	}
	e.emit(newClaimEvent(target, claim, "identity.claim_revoked"))
	return nil
}

// FetchClaim exposes claim lookup to the compliance engine.
func (e *Engine) FetchClaim(did types.IdentityID, key types.ClaimKey, scope types.AssetID) (*types.Claim, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.ClaimGet(did, key, scope)
}

func (e *Engine) requirePrimary(did types.IdentityID, caller types.AccountKey) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	rec, ok, err := e.state.IdentityGet(did)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchIdentity
	}
	if rec.Primary != caller {
		return nil, ErrUnauthorized
	}
	return rec, nil
}
