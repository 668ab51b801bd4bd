package identity

import (
	"errors"
	"fmt"
	"testing"

	"capchain/core/types"
)

type mockState struct {
	identities map[types.IdentityID]*Record
	keys       map[types.AccountKey]*KeyRecord
	auths      map[uint64]*Authorization
	claims     map[string]*types.Claim
	providers  map[types.IdentityID]bool
	nextNonce  uint64
	nextAuthID uint64
}

func newMockState() *mockState {
	return &mockState{
		identities: make(map[types.IdentityID]*Record),
		keys:       make(map[types.AccountKey]*KeyRecord),
		auths:      make(map[uint64]*Authorization),
		claims:     make(map[string]*types.Claim),
		providers:  make(map[types.IdentityID]bool),
	}
}

func claimMapKey(did types.IdentityID, key types.ClaimKey, scope types.AssetID) string {
	return fmt.Sprintf("%s|%d|%s|%s", did, key.Type, key.Issuer, scope)
}

func (m *mockState) IdentityGet(did types.IdentityID) (*Record, bool, error) {
	rec, ok := m.identities[did]
	return rec.Clone(), ok, nil
}

func (m *mockState) IdentityPut(did types.IdentityID, rec *Record) error {
	m.identities[did] = rec.Clone()
	return nil
}

func (m *mockState) KeyRecordGet(key types.AccountKey) (*KeyRecord, bool, error) {
	rec, ok := m.keys[key]
	if !ok {
		return nil, false, nil
	}
	clone := *rec
	return &clone, true, nil
}

func (m *mockState) KeyRecordPut(key types.AccountKey, rec *KeyRecord) error {
	clone := *rec
	m.keys[key] = &clone
	return nil
}

func (m *mockState) KeyRecordDelete(key types.AccountKey) error {
	delete(m.keys, key)
	return nil
}

func (m *mockState) IdentityNextNonce() (uint64, error) {
	nonce := m.nextNonce
	m.nextNonce++
	return nonce, nil
}

func (m *mockState) AuthorizationNextID() (uint64, error) {
	id := m.nextAuthID
	m.nextAuthID++
	return id, nil
}

func (m *mockState) AuthorizationPut(auth *Authorization) error {
	m.auths[auth.ID] = auth.Clone()
	return nil
}

func (m *mockState) AuthorizationGet(id uint64) (*Authorization, bool, error) {
	auth, ok := m.auths[id]
	return auth.Clone(), ok, nil
}

func (m *mockState) AuthorizationDelete(id uint64) error {
	delete(m.auths, id)
	return nil
}

func (m *mockState) ClaimPut(did types.IdentityID, claim *types.Claim) error {
	key := types.ClaimKey{Type: claim.Type, Issuer: claim.Issuer}
	clone := *claim
	m.claims[claimMapKey(did, key, claim.Scope)] = &clone
	return nil
}

func (m *mockState) ClaimGet(did types.IdentityID, key types.ClaimKey, scope types.AssetID) (*types.Claim, bool, error) {
	claim, ok := m.claims[claimMapKey(did, key, scope)]
	if !ok {
		return nil, false, nil
	}
	clone := *claim
	return &clone, true, nil
}

func (m *mockState) ClaimDelete(did types.IdentityID, key types.ClaimKey, scope types.AssetID) error {
	delete(m.claims, claimMapKey(did, key, scope))
	return nil
}

func (m *mockState) CDDProviderSet(did types.IdentityID, enabled bool) error {
	if enabled {
		m.providers[did] = true
		return nil
	}
	delete(m.providers, did)
	return nil
}

func (m *mockState) CDDProviderIs(did types.IdentityID) (bool, error) {
	return m.providers[did], nil
}

func testKey(n byte) types.AccountKey {
	var key types.AccountKey
	key[19] = n
	return key
}

func newTestEngine(now uint64) (*Engine, *mockState) {
	engine := NewEngine()
	state := newMockState()
	engine.SetState(state)
	engine.SetNowFunc(func() uint64 { return now })
	return engine, state
}

func TestCreateIdentityLinksPrimary(t *testing.T) {
	engine, _ := newTestEngine(0)

	did, err := engine.CreateIdentity(testKey(1))
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	resolved, rec, err := engine.Resolve(testKey(1))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != did || !rec.IsPrimary {
		t.Fatalf("resolved %s primary=%v, want %s primary", resolved, rec.IsPrimary, did)
	}

	if _, err := engine.CreateIdentity(testKey(1)); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("second create = %v, want ErrAlreadyLinked", err)
	}
}

func TestJoinIdentityConsumesAuthorization(t *testing.T) {
	engine, _ := newTestEngine(0)

	did, err := engine.CreateIdentity(testKey(1))
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	perms := types.Permissions{
		Assets:     types.WholeSubset[types.AssetID](),
		Extrinsics: types.TheseSubset(types.PalletExtrinsic{Pallet: "portfolio", Extrinsic: "move_funds"}),
		Portfolios: types.WholeSubset[types.PortfolioID](),
	}
	authID, err := engine.AddAuthorization(did, types.AccountSignatory(testKey(2)),
		AuthorizationData{Kind: AuthJoinIdentity, Perms: perms}, false, 0)
	if err != nil {
		t.Fatalf("add authorization: %v", err)
	}

	joined, err := engine.JoinIdentityAsKey(testKey(2), authID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined != did {
		t.Fatalf("joined %s, want %s", joined, did)
	}
	if err := engine.CheckCall(did, testKey(2), "portfolio", "move_funds"); err != nil {
		t.Fatalf("granted call refused: %v", err)
	}
	if err := engine.CheckCall(did, testKey(2), "settlement", "add_instruction"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ungranted call = %v, want ErrUnauthorized", err)
	}

	// Authorizations are single use.
	if _, err := engine.JoinIdentityAsKey(testKey(3), authID); !errors.Is(err, ErrAuthNotFound) {
		t.Fatalf("replay = %v, want ErrAuthNotFound", err)
	}
}

func TestFreezeBlocksSecondaryKeys(t *testing.T) {
	engine, _ := newTestEngine(0)

	did, err := engine.CreateIdentity(testKey(1))
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	secondary := SecondaryKey{Key: testKey(2), Perms: types.WholePermissions()}
	if err := engine.AddSecondaryKeys(did, testKey(1), []SecondaryKey{secondary}); err != nil {
		t.Fatalf("add secondary: %v", err)
	}
	if err := engine.FreezeSecondaryKeys(did, testKey(1)); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	if err := engine.CheckCall(did, testKey(2), "portfolio", "move_funds"); !errors.Is(err, ErrKeyFrozen) {
		t.Fatalf("frozen secondary = %v, want ErrKeyFrozen", err)
	}
	if err := engine.CheckCall(did, testKey(1), "portfolio", "move_funds"); err != nil {
		t.Fatalf("primary blocked by freeze: %v", err)
	}

	if err := engine.UnfreezeSecondaryKeys(did, testKey(1)); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if err := engine.CheckCall(did, testKey(2), "portfolio", "move_funds"); err != nil {
		t.Fatalf("unfrozen secondary refused: %v", err)
	}
}

func TestRotatePrimaryKeyNeedsAttestation(t *testing.T) {
	engine, _ := newTestEngine(0)

	did, err := engine.CreateIdentity(testKey(1))
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	provider, err := engine.CreateIdentity(testKey(5))
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	impostor, err := engine.CreateIdentity(testKey(6))
	if err != nil {
		t.Fatalf("create impostor: %v", err)
	}
	if err := engine.SetCDDProvider(provider, true); err != nil {
		t.Fatalf("set provider: %v", err)
	}

	newKey := testKey(9)
	ownerAuth, err := engine.AddAuthorization(did, types.AccountSignatory(newKey),
		AuthorizationData{Kind: AuthRotatePrimaryKey}, false, 0)
	if err != nil {
		t.Fatalf("owner auth: %v", err)
	}
	badAttest, err := engine.AddAuthorization(impostor, types.AccountSignatory(newKey),
		AuthorizationData{Kind: AuthAttestPrimaryKeyRotation}, false, 0)
	if err != nil {
		t.Fatalf("impostor attest: %v", err)
	}
	if err := engine.RotatePrimaryKey(newKey, ownerAuth, badAttest); !errors.Is(err, ErrNotCDDProvider) {
		t.Fatalf("rotate with impostor attestation = %v, want ErrNotCDDProvider", err)
	}

	ownerAuth, err = engine.AddAuthorization(did, types.AccountSignatory(newKey),
		AuthorizationData{Kind: AuthRotatePrimaryKey}, false, 0)
	if err != nil {
		t.Fatalf("owner auth: %v", err)
	}
	attest, err := engine.AddAuthorization(provider, types.AccountSignatory(newKey),
		AuthorizationData{Kind: AuthAttestPrimaryKeyRotation}, false, 0)
	if err != nil {
		t.Fatalf("attest: %v", err)
	}
	if err := engine.RotatePrimaryKey(newKey, ownerAuth, attest); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, _, err := engine.Resolve(testKey(1)); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("old key = %v, want ErrKeyNotFound", err)
	}
	resolved, rec, err := engine.Resolve(newKey)
	if err != nil {
		t.Fatalf("resolve new key: %v", err)
	}
	if resolved != did || !rec.IsPrimary {
		t.Fatalf("new key resolved %s primary=%v, want %s primary", resolved, rec.IsPrimary, did)
	}
}

func TestConsumeExpiredAuthorization(t *testing.T) {
	engine, _ := newTestEngine(1_000)

	did, err := engine.CreateIdentity(testKey(1))
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	authID, err := engine.AddAuthorization(did, types.AccountSignatory(testKey(2)),
		AuthorizationData{Kind: AuthJoinIdentity}, true, 1_000)
	if err != nil {
		t.Fatalf("add authorization: %v", err)
	}

	if _, err := engine.JoinIdentityAsKey(testKey(2), authID); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expired accept = %v, want ErrAuthExpired", err)
	}
	// Expiry does not consume; the issuer can still revoke.
	if err := engine.RevokeAuthorization(did, authID); err != nil {
		t.Fatalf("revoke after expiry: %v", err)
	}
}

func TestClaimLifecycle(t *testing.T) {
	engine, _ := newTestEngine(0)

	issuer, err := engine.CreateIdentity(testKey(1))
	if err != nil {
		t.Fatalf("create issuer: %v", err)
	}
	target, err := engine.CreateIdentity(testKey(2))
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	scope := types.TickerAsset(types.MustTicker("ACME"))

	if err := engine.AddClaim(issuer, target, types.ClaimAccredited, scope, ""); err != nil {
		t.Fatalf("add claim: %v", err)
	}
	claim, ok, err := engine.FetchClaim(target, types.ClaimKey{Type: types.ClaimAccredited, Issuer: issuer}, scope)
	if err != nil || !ok {
		t.Fatalf("fetch claim: ok=%v err=%v", ok, err)
	}
	if claim.Issuer != issuer {
		t.Fatalf("claim issuer %s, want %s", claim.Issuer, issuer)
	}

	if err := engine.RevokeClaim(issuer, target, types.ClaimAccredited, scope); err != nil {
		t.Fatalf("revoke claim: %v", err)
	}
	if err := engine.RevokeClaim(issuer, target, types.ClaimAccredited, scope); !errors.Is(err, ErrNoSuchClaim) {
		t.Fatalf("double revoke = %v, want ErrNoSuchClaim", err)
	}
}
