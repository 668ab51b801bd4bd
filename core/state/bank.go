package state

import (
	"errors"
	"math/big"

	"capchain/core/types"
)

// Bank errors.
var (
	ErrInsufficientFree     = errors.New("bank: insufficient free balance")
	ErrInsufficientReserved = errors.New("bank: insufficient reserved balance")
	ErrInsufficientTreasury = errors.New("bank: insufficient treasury balance")
	ErrInvalidAmount        = errors.New("bank: invalid amount")
)

// checkAmount rejects nil and negative amounts before any balance math. A
// negative amount would flip Sub/Add into value creation.
func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// BankState holds native-token balances: per-identity free and reserved
// amounts plus the treasury pot governance pays beneficiaries from.
type BankState struct {
	m *Manager
}

// Bank returns the native balance accessor.
func (m *Manager) Bank() *BankState { return &BankState{m: m} }

func (s *BankState) Balance(did types.IdentityID) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixNativeBalance, did.Bytes()))
}

func (s *BankState) BalancePut(did types.IdentityID, v *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixNativeBalance, did.Bytes()), v)
}

func (s *BankState) Reserved(did types.IdentityID) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixNativeReserved, did.Bytes()))
}

func (s *BankState) ReservedPut(did types.IdentityID, v *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixNativeReserved, did.Bytes()), v)
}

// Reserve moves amount from an identity's free balance into its reserved
// balance.
func (s *BankState) Reserve(did types.IdentityID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := s.Balance(did)
	if err != nil {
		return err
	}
	reserved, err := s.Reserved(did)
	if err != nil {
		return err
	}
	free := new(big.Int).Sub(balance, reserved)
	if free.Cmp(amount) < 0 {
		return ErrInsufficientFree
	}
	return s.ReservedPut(did, reserved.Add(reserved, amount))
}

// Unreserve releases amount back to the free balance.
func (s *BankState) Unreserve(did types.IdentityID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	reserved, err := s.Reserved(did)
	if err != nil {
		return err
	}
	if reserved.Cmp(amount) < 0 {
		return ErrInsufficientReserved
	}
	return s.ReservedPut(did, reserved.Sub(reserved, amount))
}

// Transfer moves free native balance between identities.
func (s *BankState) Transfer(from, to types.IdentityID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := s.Balance(from)
	if err != nil {
		return err
	}
	reserved, err := s.Reserved(from)
	if err != nil {
		return err
	}
	free := new(big.Int).Sub(balance, reserved)
	if free.Cmp(amount) < 0 {
		return ErrInsufficientFree
	}
	if err := s.BalancePut(from, balance.Sub(balance, amount)); err != nil {
		return err
	}
	toBalance, err := s.Balance(to)
	if err != nil {
		return err
	}
	return s.BalancePut(to, toBalance.Add(toBalance, amount))
}

func (s *BankState) TreasuryBalance() (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixTreasury))
}

func (s *BankState) TreasuryDeposit(amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := s.TreasuryBalance()
	if err != nil {
		return err
	}
	return s.m.putBigInt(MakeKey(prefixTreasury), balance.Add(balance, amount))
}

// TreasuryPay disburses amount from the treasury into an identity's free
// balance.
func (s *BankState) TreasuryPay(to types.IdentityID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := s.TreasuryBalance()
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientTreasury
	}
	if err := s.m.putBigInt(MakeKey(prefixTreasury), balance.Sub(balance, amount)); err != nil {
		return err
	}
	toBalance, err := s.Balance(to)
	if err != nil {
		return err
	}
	return s.BalancePut(to, toBalance.Add(toBalance, amount))
}

// assetOwner is shared by the settlement and corporate accessors, which key
// ownership by asset and by ticker respectively.
func (m *Manager) assetOwner(asset types.AssetID) (types.IdentityID, bool, error) {
	var did types.IdentityID
	raw, ok, err := m.Get(MakeKey(prefixAssetOwner, asset.ScopeBytes()))
	if err != nil || !ok {
		return types.IdentityID{}, false, err
	}
	copy(did[:], raw)
	return did, true, nil
}

// AssetOwnerSet records the owning identity of an asset. Genesis and asset
// issuance go through here.
func (m *Manager) AssetOwnerSet(asset types.AssetID, did types.IdentityID) error {
	return m.Put(MakeKey(prefixAssetOwner, asset.ScopeBytes()), did.Bytes())
}

// AssetOwner reports the owning identity of an asset.
func (m *Manager) AssetOwner(asset types.AssetID) (types.IdentityID, bool, error) {
	return m.assetOwner(asset)
}
