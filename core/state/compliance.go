package state

import (
	"math/big"

	"capchain/core/types"
	"capchain/native/compliance"
)

// ComplianceState is the compliance engine's view of the manager.
type ComplianceState struct {
	m *Manager
}

// Compliance returns the compliance accessor.
func (m *Manager) Compliance() *ComplianceState { return &ComplianceState{m: m} }

// statTypeBytes serializes a stat type into a stable key fragment.
func statTypeBytes(stat compliance.StatType) []byte {
	buf := make([]byte, 0, 2+1+32)
	buf = append(buf, byte(stat.Op))
	if stat.HasClaim {
		buf = append(buf, 1, byte(stat.Claim.Type))
		buf = append(buf, stat.Claim.Issuer.Bytes()...)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func (s *ComplianceState) ActiveStats(asset types.AssetID) ([]compliance.StatType, error) {
	var stats []compliance.StatType
	if _, err := s.m.getRLP(MakeKey(prefixActiveStats, asset.ScopeBytes()), &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *ComplianceState) ActiveStatsPut(asset types.AssetID, stats []compliance.StatType) error {
	key := MakeKey(prefixActiveStats, asset.ScopeBytes())
	if len(stats) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, stats)
}

func (s *ComplianceState) StatValue(asset types.AssetID, stat compliance.StatType, bucket string) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixStatValue, asset.ScopeBytes(), statTypeBytes(stat), []byte(bucket)))
}

func (s *ComplianceState) StatValuePut(asset types.AssetID, stat compliance.StatType, bucket string, v *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixStatValue, asset.ScopeBytes(), statTypeBytes(stat), []byte(bucket)), v)
}

func (s *ComplianceState) Requirements(asset types.AssetID) (*compliance.Requirements, error) {
	reqs := new(compliance.Requirements)
	if _, err := s.m.getRLP(MakeKey(prefixRequirement, asset.ScopeBytes()), reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (s *ComplianceState) RequirementsPut(asset types.AssetID, reqs *compliance.Requirements) error {
	return s.m.putRLP(MakeKey(prefixRequirement, asset.ScopeBytes()), reqs)
}

func exemptKey(asset types.AssetID, op compliance.StatOp, claim types.ClaimType, did types.IdentityID) []byte {
	return MakeKey(prefixExempt, asset.ScopeBytes(), []byte{byte(op), byte(claim)}, did.Bytes())
}

func (s *ComplianceState) Exempt(asset types.AssetID, op compliance.StatOp, claim types.ClaimType, did types.IdentityID) (bool, error) {
	var v bool
	if _, err := s.m.getRLP(exemptKey(asset, op, claim, did), &v); err != nil {
		return false, err
	}
	return v, nil
}

func (s *ComplianceState) ExemptPut(asset types.AssetID, op compliance.StatOp, claim types.ClaimType, did types.IdentityID, v bool) error {
	key := exemptKey(asset, op, claim, did)
	if !v {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, v)
}
