package state

import (
	"capchain/core/types"
	"capchain/native/identity"
)

// IdentityState is the identity engine's view of the manager.
type IdentityState struct {
	m *Manager
}

// Identity returns the identity accessor.
func (m *Manager) Identity() *IdentityState { return &IdentityState{m: m} }

func (s *IdentityState) IdentityGet(did types.IdentityID) (*identity.Record, bool, error) {
	rec := new(identity.Record)
	ok, err := s.m.getRLP(MakeKey(prefixIdentityRecord, did.Bytes()), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *IdentityState) IdentityPut(did types.IdentityID, rec *identity.Record) error {
	return s.m.putRLP(MakeKey(prefixIdentityRecord, did.Bytes()), rec)
}

func (s *IdentityState) KeyRecordGet(key types.AccountKey) (*identity.KeyRecord, bool, error) {
	rec := new(identity.KeyRecord)
	ok, err := s.m.getRLP(MakeKey(prefixKeyRecord, key.Bytes()), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *IdentityState) KeyRecordPut(key types.AccountKey, rec *identity.KeyRecord) error {
	return s.m.putRLP(MakeKey(prefixKeyRecord, key.Bytes()), rec)
}

func (s *IdentityState) KeyRecordDelete(key types.AccountKey) error {
	return s.m.Delete(MakeKey(prefixKeyRecord, key.Bytes()))
}

func (s *IdentityState) IdentityNextNonce() (uint64, error) {
	key := MakeKey(prefixIdentityNonce)
	nonce, err := s.m.getUint64(key)
	if err != nil {
		return 0, err
	}
	if err := s.m.putUint64(key, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (s *IdentityState) AuthorizationNextID() (uint64, error) {
	key := MakeKey(prefixAuthSeq)
	id, err := s.m.getUint64(key)
	if err != nil {
		return 0, err
	}
	if err := s.m.putUint64(key, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *IdentityState) AuthorizationPut(auth *identity.Authorization) error {
	return s.m.putRLP(MakeKey(prefixAuth, u64b(auth.ID)), auth)
}

func (s *IdentityState) AuthorizationGet(id uint64) (*identity.Authorization, bool, error) {
	auth := new(identity.Authorization)
	ok, err := s.m.getRLP(MakeKey(prefixAuth, u64b(id)), auth)
	if err != nil || !ok {
		return nil, false, err
	}
	return auth, true, nil
}

func (s *IdentityState) AuthorizationDelete(id uint64) error {
	return s.m.Delete(MakeKey(prefixAuth, u64b(id)))
}

func claimStorageKey(did types.IdentityID, key types.ClaimKey, scope types.AssetID) []byte {
	return MakeKey(prefixClaim, did.Bytes(), []byte{byte(key.Type)}, key.Issuer.Bytes(), scope.ScopeBytes())
}

func (s *IdentityState) ClaimPut(did types.IdentityID, claim *types.Claim) error {
	key := types.ClaimKey{Type: claim.Type, Issuer: claim.Issuer}
	return s.m.putRLP(claimStorageKey(did, key, claim.Scope), claim)
}

func (s *IdentityState) ClaimGet(did types.IdentityID, key types.ClaimKey, scope types.AssetID) (*types.Claim, bool, error) {
	claim := new(types.Claim)
	ok, err := s.m.getRLP(claimStorageKey(did, key, scope), claim)
	if err != nil || !ok {
		return nil, false, err
	}
	return claim, true, nil
}

func (s *IdentityState) ClaimDelete(did types.IdentityID, key types.ClaimKey, scope types.AssetID) error {
	return s.m.Delete(claimStorageKey(did, key, scope))
}

func (s *IdentityState) CDDProviderSet(did types.IdentityID, enabled bool) error {
	return s.m.putRLP(MakeKey(prefixCDDProvider, did.Bytes()), enabled)
}

func (s *IdentityState) CDDProviderIs(did types.IdentityID) (bool, error) {
	var enabled bool
	if _, err := s.m.getRLP(MakeKey(prefixCDDProvider, did.Bytes()), &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}
