package state

import (
	"math/big"

	"capchain/core/types"
	"capchain/native/governance"
)

// GovernanceState is the governance engine's view of the manager.
type GovernanceState struct {
	m *Manager
}

// Governance returns the governance accessor.
func (m *Manager) Governance() *GovernanceState { return &GovernanceState{m: m} }

func (s *GovernanceState) MipNextID() (uint64, error) {
	key := MakeKey(prefixMipSeq)
	id, err := s.m.getUint64(key)
	if err != nil {
		return 0, err
	}
	if err := s.m.putUint64(key, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *GovernanceState) Mip(id uint64) (*governance.Mip, bool, error) {
	mip := new(governance.Mip)
	ok, err := s.m.getRLP(MakeKey(prefixMip, u64b(id)), mip)
	if err != nil || !ok {
		return nil, false, err
	}
	return mip, true, nil
}

func (s *GovernanceState) MipPut(mip *governance.Mip) error {
	return s.m.putRLP(MakeKey(prefixMip, u64b(mip.ID)), mip)
}

func (s *GovernanceState) MipDelete(id uint64) error {
	return s.m.Delete(MakeKey(prefixMip, u64b(id)))
}

func (s *GovernanceState) Depositors(id uint64) ([]types.IdentityID, error) {
	var dids []types.IdentityID
	if _, err := s.m.getRLP(MakeKey(prefixMipDepositors, u64b(id)), &dids); err != nil {
		return nil, err
	}
	return dids, nil
}

func (s *GovernanceState) DepositorsPut(id uint64, dids []types.IdentityID) error {
	key := MakeKey(prefixMipDepositors, u64b(id))
	if len(dids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, dids)
}

func (s *GovernanceState) Deposit(id uint64, did types.IdentityID) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixMipDeposit, u64b(id), did.Bytes()))
}

func (s *GovernanceState) DepositPut(id uint64, did types.IdentityID, amount *big.Int) error {
	key := MakeKey(prefixMipDeposit, u64b(id), did.Bytes())
	if amount == nil || amount.Sign() == 0 {
		return s.m.Delete(key)
	}
	return s.m.putBigInt(key, amount)
}

func (s *GovernanceState) Voters(id uint64) ([]types.IdentityID, error) {
	var dids []types.IdentityID
	if _, err := s.m.getRLP(MakeKey(prefixMipVoters, u64b(id)), &dids); err != nil {
		return nil, err
	}
	return dids, nil
}

func (s *GovernanceState) VotersPut(id uint64, dids []types.IdentityID) error {
	key := MakeKey(prefixMipVoters, u64b(id))
	if len(dids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, dids)
}

func (s *GovernanceState) Vote(id uint64, did types.IdentityID) (*governance.MipVote, bool, error) {
	vote := new(governance.MipVote)
	ok, err := s.m.getRLP(MakeKey(prefixMipVote, u64b(id), did.Bytes()), vote)
	if err != nil || !ok {
		return nil, false, err
	}
	return vote, true, nil
}

func (s *GovernanceState) VotePut(id uint64, did types.IdentityID, vote *governance.MipVote) error {
	return s.m.putRLP(MakeKey(prefixMipVote, u64b(id), did.Bytes()), vote)
}

func (s *GovernanceState) Referendum(id uint64) (*governance.Referendum, bool, error) {
	referendum := new(governance.Referendum)
	ok, err := s.m.getRLP(MakeKey(prefixReferendum, u64b(id)), referendum)
	if err != nil || !ok {
		return nil, false, err
	}
	return referendum, true, nil
}

func (s *GovernanceState) ReferendumPut(referendum *governance.Referendum) error {
	return s.m.putRLP(MakeKey(prefixReferendum, u64b(referendum.Mip)), referendum)
}

func (s *GovernanceState) ReferendumDelete(id uint64) error {
	return s.m.Delete(MakeKey(prefixReferendum, u64b(id)))
}

func (s *GovernanceState) IsCommitteeMember(did types.IdentityID) (bool, error) {
	var member bool
	if _, err := s.m.getRLP(MakeKey(prefixCommittee, did.Bytes()), &member); err != nil {
		return false, err
	}
	return member, nil
}

// CommitteeMemberSet adds or removes a committee membership. Genesis and
// parameter updates go through here.
func (s *GovernanceState) CommitteeMemberSet(did types.IdentityID, member bool) error {
	key := MakeKey(prefixCommittee, did.Bytes())
	if !member {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, member)
}

func (s *GovernanceState) EnactmentPeriod() (uint64, bool, error) {
	var blocks uint64
	ok, err := s.m.getRLP(MakeKey(prefixEnactPeriod), &blocks)
	if err != nil || !ok {
		return 0, false, err
	}
	return blocks, true, nil
}

func (s *GovernanceState) EnactmentPeriodPut(blocks uint64) error {
	return s.m.putRLP(MakeKey(prefixEnactPeriod), blocks)
}

func (s *GovernanceState) ScheduledReferendums(block uint64) ([]uint64, error) {
	var ids []uint64
	if _, err := s.m.getRLP(MakeKey(prefixScheduledRefs, u64b(block)), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GovernanceState) ScheduledReferendumsPut(block uint64, ids []uint64) error {
	key := MakeKey(prefixScheduledRefs, u64b(block))
	if len(ids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, ids)
}
