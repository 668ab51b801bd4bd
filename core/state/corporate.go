package state

import (
	"math/big"

	"capchain/core/types"
	"capchain/native/corporate"
)

// CorporateState is the corporate actions engine's view of the manager.
type CorporateState struct {
	m *Manager
}

// Corporate returns the corporate actions accessor.
func (m *Manager) Corporate() *CorporateState { return &CorporateState{m: m} }

func (s *CorporateState) AssetOwner(ticker types.Ticker) (types.IdentityID, bool, error) {
	return s.m.assetOwner(types.TickerAsset(ticker))
}

func (s *CorporateState) Agent(ticker types.Ticker) (types.IdentityID, bool, error) {
	var did types.IdentityID
	raw, ok, err := s.m.Get(MakeKey(prefixCAAgent, ticker[:]))
	if err != nil || !ok {
		return types.IdentityID{}, false, err
	}
	copy(did[:], raw)
	return did, true, nil
}

func (s *CorporateState) AgentPut(ticker types.Ticker, did types.IdentityID) error {
	return s.m.Put(MakeKey(prefixCAAgent, ticker[:]), did.Bytes())
}

func (s *CorporateState) AgentDelete(ticker types.Ticker) error {
	return s.m.Delete(MakeKey(prefixCAAgent, ticker[:]))
}

func (s *CorporateState) DefaultTargets(ticker types.Ticker) (corporate.TargetIdentities, bool, error) {
	var targets corporate.TargetIdentities
	ok, err := s.m.getRLP(MakeKey(prefixCATargets, ticker[:]), &targets)
	if err != nil || !ok {
		return corporate.TargetIdentities{}, false, err
	}
	return targets, true, nil
}

func (s *CorporateState) DefaultTargetsPut(ticker types.Ticker, targets corporate.TargetIdentities) error {
	return s.m.putRLP(MakeKey(prefixCATargets, ticker[:]), targets)
}

func (s *CorporateState) DefaultWithholding(ticker types.Ticker) (corporate.Tax, error) {
	var tax corporate.Tax
	if _, err := s.m.getRLP(MakeKey(prefixCAWHT, ticker[:]), &tax); err != nil {
		return 0, err
	}
	return tax, nil
}

func (s *CorporateState) DefaultWithholdingPut(ticker types.Ticker, tax corporate.Tax) error {
	return s.m.putRLP(MakeKey(prefixCAWHT, ticker[:]), tax)
}

func (s *CorporateState) DidWithholding(ticker types.Ticker) ([]corporate.DidTax, error) {
	var taxes []corporate.DidTax
	if _, err := s.m.getRLP(MakeKey(prefixCAWHTDid, ticker[:]), &taxes); err != nil {
		return nil, err
	}
	return taxes, nil
}

func (s *CorporateState) DidWithholdingPut(ticker types.Ticker, taxes []corporate.DidTax) error {
	key := MakeKey(prefixCAWHTDid, ticker[:])
	if len(taxes) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, taxes)
}

func (s *CorporateState) CACount(ticker types.Ticker) (uint32, error) {
	count, err := s.m.getUint64(MakeKey(prefixCACount, ticker[:]))
	return uint32(count), err
}

func (s *CorporateState) CACountPut(ticker types.Ticker, count uint32) error {
	return s.m.putUint64(MakeKey(prefixCACount, ticker[:]), uint64(count))
}

func (s *CorporateState) CA(id types.CAID) (*corporate.CorporateAction, bool, error) {
	ca := new(corporate.CorporateAction)
	ok, err := s.m.getRLP(MakeKey(prefixCARecord, id.Bytes()), ca)
	if err != nil || !ok {
		return nil, false, err
	}
	return ca, true, nil
}

func (s *CorporateState) CAPut(id types.CAID, ca *corporate.CorporateAction) error {
	return s.m.putRLP(MakeKey(prefixCARecord, id.Bytes()), ca)
}

func (s *CorporateState) CADelete(id types.CAID) error {
	return s.m.Delete(MakeKey(prefixCARecord, id.Bytes()))
}

func (s *CorporateState) Documents(ticker types.Ticker) ([]corporate.Document, error) {
	var docs []corporate.Document
	if _, err := s.m.getRLP(MakeKey(prefixCADocuments, ticker[:]), &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *CorporateState) DocumentsPut(ticker types.Ticker, docs []corporate.Document) error {
	return s.m.putRLP(MakeKey(prefixCADocuments, ticker[:]), docs)
}

func (s *CorporateState) DocLinks(id types.CAID) ([]uint32, error) {
	var links []uint32
	if _, err := s.m.getRLP(MakeKey(prefixCADocLinks, id.Bytes()), &links); err != nil {
		return nil, err
	}
	return links, nil
}

func (s *CorporateState) DocLinksPut(id types.CAID, links []uint32) error {
	return s.m.putRLP(MakeKey(prefixCADocLinks, id.Bytes()), links)
}

func (s *CorporateState) DocLinksDelete(id types.CAID) error {
	return s.m.Delete(MakeKey(prefixCADocLinks, id.Bytes()))
}

func (s *CorporateState) Ballot(id types.CAID) (*corporate.Ballot, bool, error) {
	ballot := new(corporate.Ballot)
	ok, err := s.m.getRLP(MakeKey(prefixCABallot, id.Bytes()), ballot)
	if err != nil || !ok {
		return nil, false, err
	}
	return ballot, true, nil
}

func (s *CorporateState) BallotPut(id types.CAID, ballot *corporate.Ballot) error {
	return s.m.putRLP(MakeKey(prefixCABallot, id.Bytes()), ballot)
}

func (s *CorporateState) BallotDelete(id types.CAID) error {
	return s.m.Delete(MakeKey(prefixCABallot, id.Bytes()))
}

func (s *CorporateState) BallotVote(id types.CAID, did types.IdentityID) (*corporate.BallotVote, bool, error) {
	vote := new(corporate.BallotVote)
	ok, err := s.m.getRLP(MakeKey(prefixCABallotVote, id.Bytes(), did.Bytes()), vote)
	if err != nil || !ok {
		return nil, false, err
	}
	return vote, true, nil
}

func (s *CorporateState) BallotVotePut(id types.CAID, did types.IdentityID, vote *corporate.BallotVote) error {
	return s.m.putRLP(MakeKey(prefixCABallotVote, id.Bytes(), did.Bytes()), vote)
}

func (s *CorporateState) BallotVoteDelete(id types.CAID, did types.IdentityID) error {
	return s.m.Delete(MakeKey(prefixCABallotVote, id.Bytes(), did.Bytes()))
}

func (s *CorporateState) BallotResults(id types.CAID) ([]*big.Int, error) {
	var results []*big.Int
	if _, err := s.m.getRLP(MakeKey(prefixCABallotRes, id.Bytes()), &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *CorporateState) BallotResultsPut(id types.CAID, results []*big.Int) error {
	return s.m.putRLP(MakeKey(prefixCABallotRes, id.Bytes()), results)
}

func (s *CorporateState) BallotResultsDelete(id types.CAID) error {
	return s.m.Delete(MakeKey(prefixCABallotRes, id.Bytes()))
}

func (s *CorporateState) Distribution(id types.CAID) (*corporate.Distribution, bool, error) {
	dist := new(corporate.Distribution)
	ok, err := s.m.getRLP(MakeKey(prefixCADistribution, id.Bytes()), dist)
	if err != nil || !ok {
		return nil, false, err
	}
	return dist, true, nil
}

func (s *CorporateState) DistributionPut(id types.CAID, dist *corporate.Distribution) error {
	return s.m.putRLP(MakeKey(prefixCADistribution, id.Bytes()), dist)
}

func (s *CorporateState) DistributionDelete(id types.CAID) error {
	return s.m.Delete(MakeKey(prefixCADistribution, id.Bytes()))
}

func (s *CorporateState) DistributionClaimed(id types.CAID, did types.IdentityID) (bool, error) {
	var claimed bool
	if _, err := s.m.getRLP(MakeKey(prefixCADistClaimed, id.Bytes(), did.Bytes()), &claimed); err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *CorporateState) DistributionClaimedPut(id types.CAID, did types.IdentityID) error {
	return s.m.putRLP(MakeKey(prefixCADistClaimed, id.Bytes(), did.Bytes()), true)
}
