package state

import (
	"math/big"

	"capchain/core/types"
)

// PortfolioState is the portfolio engine's view of the manager.
type PortfolioState struct {
	m *Manager
}

// Portfolio returns the portfolio accessor.
func (m *Manager) Portfolio() *PortfolioState { return &PortfolioState{m: m} }

func (s *PortfolioState) PortfolioNameGet(pid types.PortfolioID) (string, bool, error) {
	var name string
	ok, err := s.m.getRLP(MakeKey(prefixPortfolioName, pid.Bytes()), &name)
	if err != nil || !ok {
		return "", false, err
	}
	return name, true, nil
}

func (s *PortfolioState) PortfolioNamePut(pid types.PortfolioID, name string) error {
	return s.m.putRLP(MakeKey(prefixPortfolioName, pid.Bytes()), name)
}

func (s *PortfolioState) PortfolioNameDelete(pid types.PortfolioID) error {
	return s.m.Delete(MakeKey(prefixPortfolioName, pid.Bytes()))
}

func (s *PortfolioState) PortfolioNumberByName(did types.IdentityID, name string) (uint64, bool, error) {
	var number uint64
	ok, err := s.m.getRLP(MakeKey(prefixPortfolioNameIdx, did.Bytes(), []byte(name)), &number)
	if err != nil || !ok {
		return 0, false, err
	}
	return number, true, nil
}

func (s *PortfolioState) PortfolioNameIndexPut(did types.IdentityID, name string, number uint64) error {
	return s.m.putUint64(MakeKey(prefixPortfolioNameIdx, did.Bytes(), []byte(name)), number)
}

func (s *PortfolioState) PortfolioNameIndexDelete(did types.IdentityID, name string) error {
	return s.m.Delete(MakeKey(prefixPortfolioNameIdx, did.Bytes(), []byte(name)))
}

func (s *PortfolioState) PortfolioNextNumber(did types.IdentityID) (uint64, error) {
	key := MakeKey(prefixPortfolioNext, did.Bytes())
	number, err := s.m.getUint64(key)
	if err != nil {
		return 0, err
	}
	// Number zero addresses the implicit default portfolio.
	if number == 0 {
		number = 1
	}
	if err := s.m.putUint64(key, number+1); err != nil {
		return 0, err
	}
	return number, nil
}

func (s *PortfolioState) PortfolioBalance(pid types.PortfolioID, asset types.AssetID) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixPortfolioBalance, pid.Bytes(), asset.ScopeBytes()))
}

func (s *PortfolioState) PortfolioBalancePut(pid types.PortfolioID, asset types.AssetID, v *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixPortfolioBalance, pid.Bytes(), asset.ScopeBytes()), v)
}

func (s *PortfolioState) PortfolioLocked(pid types.PortfolioID, asset types.AssetID) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixPortfolioLocked, pid.Bytes(), asset.ScopeBytes()))
}

func (s *PortfolioState) PortfolioLockedPut(pid types.PortfolioID, asset types.AssetID, v *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixPortfolioLocked, pid.Bytes(), asset.ScopeBytes()), v)
}

func (s *PortfolioState) PortfolioAssetCount(pid types.PortfolioID) (uint64, error) {
	return s.m.getUint64(MakeKey(prefixPortfolioAssets, pid.Bytes()))
}

func (s *PortfolioState) PortfolioAssetCountPut(pid types.PortfolioID, v uint64) error {
	return s.m.putUint64(MakeKey(prefixPortfolioAssets, pid.Bytes()), v)
}

func (s *PortfolioState) PortfolioNFTs(pid types.PortfolioID, asset types.AssetID) ([]uint64, error) {
	var ids []uint64
	if _, err := s.m.getRLP(MakeKey(prefixPortfolioNFTs, pid.Bytes(), asset.ScopeBytes()), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PortfolioState) PortfolioNFTsPut(pid types.PortfolioID, asset types.AssetID, ids []uint64) error {
	key := MakeKey(prefixPortfolioNFTs, pid.Bytes(), asset.ScopeBytes())
	if len(ids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, ids)
}

func (s *PortfolioState) PortfolioNFTsLocked(pid types.PortfolioID, asset types.AssetID) ([]uint64, error) {
	var ids []uint64
	if _, err := s.m.getRLP(MakeKey(prefixPortfolioNFTLock, pid.Bytes(), asset.ScopeBytes()), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PortfolioState) PortfolioNFTsLockedPut(pid types.PortfolioID, asset types.AssetID, ids []uint64) error {
	key := MakeKey(prefixPortfolioNFTLock, pid.Bytes(), asset.ScopeBytes())
	if len(ids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, ids)
}

func (s *PortfolioState) PortfolioCustodian(pid types.PortfolioID) (types.IdentityID, bool, error) {
	var did types.IdentityID
	raw, ok, err := s.m.Get(MakeKey(prefixPortfolioCustody, pid.Bytes()))
	if err != nil || !ok {
		return types.IdentityID{}, false, err
	}
	copy(did[:], raw)
	return did, true, nil
}

func (s *PortfolioState) PortfolioCustodianPut(pid types.PortfolioID, did types.IdentityID) error {
	return s.m.Put(MakeKey(prefixPortfolioCustody, pid.Bytes()), did.Bytes())
}

func (s *PortfolioState) PortfolioCustodianDelete(pid types.PortfolioID) error {
	return s.m.Delete(MakeKey(prefixPortfolioCustody, pid.Bytes()))
}

func (s *PortfolioState) PortfolioPreApproved(pid types.PortfolioID, asset types.AssetID) (bool, error) {
	var v bool
	if _, err := s.m.getRLP(MakeKey(prefixPortfolioPreApp, pid.Bytes(), asset.ScopeBytes()), &v); err != nil {
		return false, err
	}
	return v, nil
}

func (s *PortfolioState) PortfolioPreApprovedPut(pid types.PortfolioID, asset types.AssetID, v bool) error {
	return s.m.putRLP(MakeKey(prefixPortfolioPreApp, pid.Bytes(), asset.ScopeBytes()), v)
}

func (s *PortfolioState) AssetSupply(asset types.AssetID) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixAssetSupply, asset.ScopeBytes()))
}

func (s *PortfolioState) AssetSupplyPut(asset types.AssetID, v *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixAssetSupply, asset.ScopeBytes()), v)
}

func (s *PortfolioState) IdentityAssetBalance(did types.IdentityID, asset types.AssetID) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixIdentityAssetBal, did.Bytes(), asset.ScopeBytes()))
}

func (s *PortfolioState) IdentityAssetBalancePut(did types.IdentityID, asset types.AssetID, v *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixIdentityAssetBal, did.Bytes(), asset.ScopeBytes()), v)
}
