package state

import (
	"capchain/core/types"
	"capchain/native/multisig"
)

// MultisigState is the multisig engine's view of the manager.
type MultisigState struct {
	m *Manager
}

// Multisig returns the multisig accessor.
func (m *Manager) Multisig() *MultisigState { return &MultisigState{m: m} }

func (s *MultisigState) Multisig(account types.AccountKey) (*multisig.Multisig, bool, error) {
	rec := new(multisig.Multisig)
	ok, err := s.m.getRLP(MakeKey(prefixMultisig, account.Bytes()), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *MultisigState) MultisigPut(rec *multisig.Multisig) error {
	return s.m.putRLP(MakeKey(prefixMultisig, rec.Account.Bytes()), rec)
}

func (s *MultisigState) MultisigNonce(creator types.IdentityID) (uint64, error) {
	return s.m.getUint64(MakeKey(prefixMultisigNonce, creator.Bytes()))
}

func (s *MultisigState) MultisigNoncePut(creator types.IdentityID, nonce uint64) error {
	return s.m.putUint64(MakeKey(prefixMultisigNonce, creator.Bytes()), nonce)
}

func (s *MultisigState) Proposal(account types.AccountKey, id uint64) (*multisig.Proposal, bool, error) {
	proposal := new(multisig.Proposal)
	ok, err := s.m.getRLP(MakeKey(prefixMsProposal, account.Bytes(), u64b(id)), proposal)
	if err != nil || !ok {
		return nil, false, err
	}
	return proposal, true, nil
}

func (s *MultisigState) ProposalPut(account types.AccountKey, proposal *multisig.Proposal) error {
	return s.m.putRLP(MakeKey(prefixMsProposal, account.Bytes(), u64b(proposal.ID)), proposal)
}

func (s *MultisigState) Vote(account types.AccountKey, id uint64, signer types.AccountKey) (multisig.VoteKind, error) {
	var vote uint8
	if _, err := s.m.getRLP(MakeKey(prefixMsVote, account.Bytes(), u64b(id), signer.Bytes()), &vote); err != nil {
		return multisig.VoteNone, err
	}
	return multisig.VoteKind(vote), nil
}

func (s *MultisigState) VotePut(account types.AccountKey, id uint64, signer types.AccountKey, vote multisig.VoteKind) error {
	return s.m.putRLP(MakeKey(prefixMsVote, account.Bytes(), u64b(id), signer.Bytes()), uint8(vote))
}
