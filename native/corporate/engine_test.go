package corporate

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"capchain/core/types"
)

type mockState struct {
	owners  map[string]types.IdentityID
	agents  map[string]types.IdentityID
	targets map[string]TargetIdentities
	wht     map[string]Tax
	didWht  map[string][]DidTax
	counts  map[string]uint32
	cas     map[string]*CorporateAction
	docs    map[string][]Document
	links   map[string][]uint32
	ballots map[string]*Ballot
	votes   map[string]*BallotVote
	results map[string][]*big.Int
	dists   map[string]*Distribution
	claimed map[string]bool
}

func newMockState() *mockState {
	return &mockState{
		owners:  make(map[string]types.IdentityID),
		agents:  make(map[string]types.IdentityID),
		targets: make(map[string]TargetIdentities),
		wht:     make(map[string]Tax),
		didWht:  make(map[string][]DidTax),
		counts:  make(map[string]uint32),
		cas:     make(map[string]*CorporateAction),
		docs:    make(map[string][]Document),
		links:   make(map[string][]uint32),
		ballots: make(map[string]*Ballot),
		votes:   make(map[string]*BallotVote),
		results: make(map[string][]*big.Int),
		dists:   make(map[string]*Distribution),
		claimed: make(map[string]bool),
	}
}

func (m *mockState) AssetOwner(ticker types.Ticker) (types.IdentityID, bool, error) {
	owner, ok := m.owners[ticker.String()]
	return owner, ok, nil
}

func (m *mockState) Agent(ticker types.Ticker) (types.IdentityID, bool, error) {
	agent, ok := m.agents[ticker.String()]
	return agent, ok, nil
}

func (m *mockState) AgentPut(ticker types.Ticker, did types.IdentityID) error {
	m.agents[ticker.String()] = did
	return nil
}

func (m *mockState) AgentDelete(ticker types.Ticker) error {
	delete(m.agents, ticker.String())
	return nil
}

func (m *mockState) DefaultTargets(ticker types.Ticker) (TargetIdentities, bool, error) {
	t, ok := m.targets[ticker.String()]
	return t.Clone(), ok, nil
}

func (m *mockState) DefaultTargetsPut(ticker types.Ticker, targets TargetIdentities) error {
	m.targets[ticker.String()] = targets.Clone()
	return nil
}

func (m *mockState) DefaultWithholding(ticker types.Ticker) (Tax, error) {
	return m.wht[ticker.String()], nil
}

func (m *mockState) DefaultWithholdingPut(ticker types.Ticker, tax Tax) error {
	m.wht[ticker.String()] = tax
	return nil
}

func (m *mockState) DidWithholding(ticker types.Ticker) ([]DidTax, error) {
	return append([]DidTax(nil), m.didWht[ticker.String()]...), nil
}

func (m *mockState) DidWithholdingPut(ticker types.Ticker, taxes []DidTax) error {
	m.didWht[ticker.String()] = append([]DidTax(nil), taxes...)
	return nil
}

func (m *mockState) CACount(ticker types.Ticker) (uint32, error) {
	return m.counts[ticker.String()], nil
}

func (m *mockState) CACountPut(ticker types.Ticker, count uint32) error {
	m.counts[ticker.String()] = count
	return nil
}

func (m *mockState) CA(id types.CAID) (*CorporateAction, bool, error) {
	ca, ok := m.cas[id.String()]
	return ca.Clone(), ok, nil
}

func (m *mockState) CAPut(id types.CAID, ca *CorporateAction) error {
	m.cas[id.String()] = ca.Clone()
	return nil
}

func (m *mockState) CADelete(id types.CAID) error {
	delete(m.cas, id.String())
	return nil
}

func (m *mockState) Documents(ticker types.Ticker) ([]Document, error) {
	return append([]Document(nil), m.docs[ticker.String()]...), nil
}

func (m *mockState) DocumentsPut(ticker types.Ticker, docs []Document) error {
	m.docs[ticker.String()] = append([]Document(nil), docs...)
	return nil
}

func (m *mockState) DocLinks(id types.CAID) ([]uint32, error) {
	return append([]uint32(nil), m.links[id.String()]...), nil
}

func (m *mockState) DocLinksPut(id types.CAID, links []uint32) error {
	m.links[id.String()] = append([]uint32(nil), links...)
	return nil
}

func (m *mockState) DocLinksDelete(id types.CAID) error {
	delete(m.links, id.String())
	return nil
}

func (m *mockState) Ballot(id types.CAID) (*Ballot, bool, error) {
	b, ok := m.ballots[id.String()]
	return b.Clone(), ok, nil
}

func (m *mockState) BallotPut(id types.CAID, ballot *Ballot) error {
	m.ballots[id.String()] = ballot.Clone()
	return nil
}

func (m *mockState) BallotDelete(id types.CAID) error {
	delete(m.ballots, id.String())
	return nil
}

func voteKey(id types.CAID, did types.IdentityID) string {
	return id.String() + "|" + did.String()
}

func (m *mockState) BallotVote(id types.CAID, did types.IdentityID) (*BallotVote, bool, error) {
	v, ok := m.votes[voteKey(id, did)]
	return v.Clone(), ok, nil
}

func (m *mockState) BallotVotePut(id types.CAID, did types.IdentityID, vote *BallotVote) error {
	m.votes[voteKey(id, did)] = vote.Clone()
	return nil
}

func (m *mockState) BallotVoteDelete(id types.CAID, did types.IdentityID) error {
	delete(m.votes, voteKey(id, did))
	return nil
}

func (m *mockState) BallotResults(id types.CAID) ([]*big.Int, error) {
	stored := m.results[id.String()]
	out := make([]*big.Int, len(stored))
	for i, v := range stored {
		out[i] = new(big.Int).Set(v)
	}
	return out, nil
}

func (m *mockState) BallotResultsPut(id types.CAID, results []*big.Int) error {
	out := make([]*big.Int, len(results))
	for i, v := range results {
		out[i] = new(big.Int).Set(v)
	}
	m.results[id.String()] = out
	return nil
}

func (m *mockState) BallotResultsDelete(id types.CAID) error {
	delete(m.results, id.String())
	return nil
}

func (m *mockState) Distribution(id types.CAID) (*Distribution, bool, error) {
	d, ok := m.dists[id.String()]
	return d.Clone(), ok, nil
}

func (m *mockState) DistributionPut(id types.CAID, dist *Distribution) error {
	m.dists[id.String()] = dist.Clone()
	return nil
}

func (m *mockState) DistributionDelete(id types.CAID) error {
	delete(m.dists, id.String())
	return nil
}

func (m *mockState) DistributionClaimed(id types.CAID, did types.IdentityID) (bool, error) {
	return m.claimed[voteKey(id, did)], nil
}

func (m *mockState) DistributionClaimedPut(id types.CAID, did types.IdentityID) error {
	m.claimed[voteKey(id, did)] = true
	return nil
}

type mockSchedule struct {
	nextAt    uint64
	removable bool
	refs      int
}

type mockCheckpoints struct {
	nextSched  uint64
	schedules  map[uint64]*mockSchedule
	points     map[uint64][]uint64
	timestamps map[uint64]uint64
	balances   map[string]*big.Int
	supplies   map[uint64]*big.Int
}

func newMockCheckpoints() *mockCheckpoints {
	return &mockCheckpoints{
		schedules:  make(map[uint64]*mockSchedule),
		points:     make(map[uint64][]uint64),
		timestamps: make(map[uint64]uint64),
		balances:   make(map[string]*big.Int),
		supplies:   make(map[uint64]*big.Int),
	}
}

func (m *mockCheckpoints) addCheckpoint(id, ts uint64, supply int64) {
	m.timestamps[id] = ts
	m.supplies[id] = big.NewInt(supply)
}

func (m *mockCheckpoints) setBalance(cp uint64, did types.IdentityID, v int64) {
	m.balances[fmt.Sprintf("%d|%s", cp, did.String())] = big.NewInt(v)
}

func (m *mockCheckpoints) CreatePinnedSchedule(asset types.AssetID, at, now uint64) (uint64, error) {
	m.nextSched++
	m.schedules[m.nextSched] = &mockSchedule{nextAt: at, refs: 1}
	return m.nextSched, nil
}

func (m *mockCheckpoints) PinSchedule(asset types.AssetID, id uint64) error {
	s, ok := m.schedules[id]
	if !ok {
		return errors.New("no schedule")
	}
	s.refs++
	return nil
}

func (m *mockCheckpoints) UnpinSchedule(asset types.AssetID, id uint64) error {
	s, ok := m.schedules[id]
	if !ok {
		return errors.New("no schedule")
	}
	s.refs--
	return nil
}

func (m *mockCheckpoints) ScheduleInfo(asset types.AssetID, id uint64) (uint64, bool, error) {
	s, ok := m.schedules[id]
	if !ok {
		return 0, false, errors.New("no schedule")
	}
	return s.nextAt, s.removable, nil
}

func (m *mockCheckpoints) CheckpointTimestamp(asset types.AssetID, id uint64) (uint64, error) {
	ts, ok := m.timestamps[id]
	if !ok {
		return 0, errors.New("no checkpoint")
	}
	return ts, nil
}

func (m *mockCheckpoints) ScheduledCheckpoint(asset types.AssetID, schedule, date uint64) (uint64, bool, error) {
	for _, id := range m.points[schedule] {
		if m.timestamps[id] >= date {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (m *mockCheckpoints) BalanceAt(asset types.AssetID, checkpoint uint64, did types.IdentityID) (*big.Int, error) {
	if v, ok := m.balances[fmt.Sprintf("%d|%s", checkpoint, did.String())]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockCheckpoints) SupplyAt(asset types.AssetID, checkpoint uint64) (*big.Int, error) {
	if v, ok := m.supplies[checkpoint]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

type mockAuths struct {
	tickers map[uint64]types.Ticker
}

func (m *mockAuths) ConsumeAgencyTransfer(did types.IdentityID, authID uint64) (types.Ticker, error) {
	ticker, ok := m.tickers[authID]
	if !ok {
		return types.Ticker{}, errors.New("no authorization")
	}
	delete(m.tickers, authID)
	return ticker, nil
}

type mockFunds struct {
	balances map[string]*big.Int
	locked   map[string]*big.Int
}

func newMockFunds() *mockFunds {
	return &mockFunds{balances: make(map[string]*big.Int), locked: make(map[string]*big.Int)}
}

func fundKey(pid types.PortfolioID, asset types.AssetID) string {
	return pid.String() + "|" + asset.String()
}

func (m *mockFunds) set(pid types.PortfolioID, asset types.AssetID, v int64) {
	m.balances[fundKey(pid, asset)] = big.NewInt(v)
}

func (m *mockFunds) balance(pid types.PortfolioID, asset types.AssetID) *big.Int {
	if v, ok := m.balances[fundKey(pid, asset)]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (m *mockFunds) lockedOf(pid types.PortfolioID, asset types.AssetID) *big.Int {
	if v, ok := m.locked[fundKey(pid, asset)]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (m *mockFunds) BalanceOf(pid types.PortfolioID, asset types.AssetID) (*big.Int, error) {
	return new(big.Int).Sub(m.balance(pid, asset), m.lockedOf(pid, asset)), nil
}

func (m *mockFunds) Lock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	m.locked[fundKey(pid, asset)] = new(big.Int).Add(m.lockedOf(pid, asset), amount)
	return nil
}

func (m *mockFunds) Unlock(pid types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	next := new(big.Int).Sub(m.lockedOf(pid, asset), amount)
	if next.Sign() < 0 {
		return errors.New("unlock underflow")
	}
	m.locked[fundKey(pid, asset)] = next
	return nil
}

func (m *mockFunds) Transfer(from, to types.PortfolioID, asset types.AssetID, amount *big.Int) error {
	have := m.balance(from, asset)
	if have.Cmp(amount) < 0 {
		return errors.New("insufficient balance")
	}
	m.balances[fundKey(from, asset)] = have.Sub(have, amount)
	m.balances[fundKey(to, asset)] = new(big.Int).Add(m.balance(to, asset), amount)
	return nil
}

func did(last byte) types.IdentityID {
	var out types.IdentityID
	out[31] = last
	return out
}

type fixture struct {
	state       *mockState
	checkpoints *mockCheckpoints
	auths       *mockAuths
	funds       *mockFunds
	engine      *Engine
	ticker      types.Ticker
	owner       types.IdentityID
}

func newFixture() *fixture {
	f := &fixture{
		state:       newMockState(),
		checkpoints: newMockCheckpoints(),
		auths:       &mockAuths{tickers: make(map[uint64]types.Ticker)},
		funds:       newMockFunds(),
		ticker:      types.MustTicker("ACME"),
		owner:       did(0x10),
	}
	f.state.owners[f.ticker.String()] = f.owner
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetCheckpoints(f.checkpoints)
	f.engine.SetAuthConsumer(f.auths)
	f.engine.SetFundsMover(f.funds)
	return f
}

func TestAgentDelegation(t *testing.T) {
	f := newFixture()
	agent := did(0x20)

	got, err := f.engine.AgentOf(f.ticker)
	if err != nil || got != f.owner {
		t.Fatalf("expected owner as default agent, got %v err %v", got, err)
	}

	f.auths.tickers[7] = f.ticker
	ticker, err := f.engine.AcceptAgency(agent, 7)
	if err != nil || ticker != f.ticker {
		t.Fatalf("accept agency: %v", err)
	}
	if got, _ := f.engine.AgentOf(f.ticker); got != agent {
		t.Fatalf("expected delegated agent, got %v", got)
	}

	if err := f.engine.ResetAgent(agent, f.ticker); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected owner-only reset, got %v", err)
	}
	if err := f.engine.ResetAgent(f.owner, f.ticker); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got, _ := f.engine.AgentOf(f.ticker); got != f.owner {
		t.Fatalf("expected owner after reset, got %v", got)
	}
}

func TestInitiateCAFromExistingCheckpoint(t *testing.T) {
	f := newFixture()
	f.checkpoints.addCheckpoint(7, 1000, 500)

	spec := &RecordDateSpec{Kind: SpecExisting, Checkpoint: 7}
	id, err := f.engine.InitiateCA(f.owner, f.ticker, KindPredictableBenefit, 900, spec, "dividend", nil, nil, nil, 950)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if id.Local != 0 {
		t.Fatalf("expected first local id 0, got %d", id.Local)
	}
	ca, err := f.engine.CorporateActionOf(id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ca.HasRecordDate || ca.RecordDate.Date != 1000 {
		t.Fatalf("expected record date 1000, got %+v", ca.RecordDate)
	}

	next, err := f.engine.InitiateCA(f.owner, f.ticker, KindOther, 900, nil, "", nil, nil, nil, 950)
	if err != nil {
		t.Fatalf("second initiate: %v", err)
	}
	if next.Local != 1 {
		t.Fatalf("expected local id to advance to 1, got %d", next.Local)
	}
}

func TestInitiateCAValidations(t *testing.T) {
	f := newFixture()
	stranger := did(0x30)

	if _, err := f.engine.InitiateCA(stranger, f.ticker, KindOther, 100, nil, "", nil, nil, nil, 200); !errors.Is(err, ErrUnauthorizedAgent) {
		t.Fatalf("expected agent check, got %v", err)
	}
	if _, err := f.engine.InitiateCA(f.owner, f.ticker, KindOther, 300, nil, "", nil, nil, nil, 200); !errors.Is(err, ErrDeclDateInFuture) {
		t.Fatalf("expected future decl rejection, got %v", err)
	}
	long := make([]byte, MaxDetailsLength+1)
	if _, err := f.engine.InitiateCA(f.owner, f.ticker, KindOther, 100, nil, string(long), nil, nil, nil, 200); !errors.Is(err, ErrDetailsTooLong) {
		t.Fatalf("expected details bound, got %v", err)
	}
	dup := []DidTax{{DID: did(1), Tax: 100}, {DID: did(1), Tax: 200}}
	if _, err := f.engine.InitiateCA(f.owner, f.ticker, KindOther, 100, nil, "", nil, nil, dup, 200); !errors.Is(err, ErrDuplicateDidTax) {
		t.Fatalf("expected duplicate wht rejection, got %v", err)
	}

	// Declaration after record date is refused.
	f.checkpoints.addCheckpoint(1, 150, 500)
	spec := &RecordDateSpec{Kind: SpecExisting, Checkpoint: 1}
	if _, err := f.engine.InitiateCA(f.owner, f.ticker, KindOther, 180, spec, "", nil, nil, nil, 200); !errors.Is(err, ErrDeclDateAfterRecordDate) {
		t.Fatalf("expected date order check, got %v", err)
	}
}

func TestTargetsSemantics(t *testing.T) {
	everyone := EveryoneTargets()
	if !everyone.Targets(did(1)) {
		t.Fatalf("empty exclusion should target everyone")
	}

	include := TargetIdentities{Treatment: TreatmentInclude, Identities: []types.IdentityID{did(3), did(1), did(3)}}.Normalize()
	if len(include.Identities) != 2 {
		t.Fatalf("expected dedup, got %d entries", len(include.Identities))
	}
	if !include.Targets(did(1)) || include.Targets(did(2)) {
		t.Fatalf("include semantics broken")
	}

	exclude := TargetIdentities{Treatment: TreatmentExclude, Identities: []types.IdentityID{did(2)}}.Normalize()
	if exclude.Targets(did(2)) || !exclude.Targets(did(4)) {
		t.Fatalf("exclude semantics broken")
	}
}

func TestBallotVoteFlow(t *testing.T) {
	f := newFixture()
	f.checkpoints.addCheckpoint(1, 100, 1000)
	spec := &RecordDateSpec{Kind: SpecExisting, Checkpoint: 1}
	id, err := f.engine.InitiateCA(f.owner, f.ticker, KindIssuerNotice, 100, spec, "agm", nil, nil, nil, 150)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	meta := BallotMeta{Title: "agm", Motions: []Motion{{Title: "q1", Choices: []string{"aye", "nay"}}}}
	if err := f.engine.AttachBallot(f.owner, id, 200, 300, meta, false); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := f.engine.AttachBallot(f.owner, id, 200, 300, meta, false); !errors.Is(err, ErrBallotExists) {
		t.Fatalf("expected single ballot, got %v", err)
	}

	voter := did(0x40)
	f.checkpoints.setBalance(1, voter, 100)

	votes := []*big.Int{big.NewInt(60), big.NewInt(40)}
	if err := f.engine.Vote(voter, id, votes, 150); !errors.Is(err, ErrVoteOutsideWindow) {
		t.Fatalf("expected window check, got %v", err)
	}
	over := []*big.Int{big.NewInt(80), big.NewInt(40)}
	if err := f.engine.Vote(voter, id, over, 250); !errors.Is(err, ErrInsufficientVotingPower) {
		t.Fatalf("expected weight check, got %v", err)
	}
	if err := f.engine.Vote(voter, id, votes, 250); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.engine.Vote(voter, id, votes, 251); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected double vote rejection, got %v", err)
	}

	// Withdraw and replace within the window.
	if err := f.engine.WithdrawVote(voter, id, 260); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	replacement := []*big.Int{big.NewInt(0), big.NewInt(100)}
	if err := f.engine.Vote(voter, id, replacement, 260); err != nil {
		t.Fatalf("replacement vote: %v", err)
	}

	results, err := f.engine.BallotResultsOf(id)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results[0].Sign() != 0 || results[1].Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected results %v", results)
	}
}

func TestBallotRequiresIssuerNotice(t *testing.T) {
	f := newFixture()
	f.checkpoints.addCheckpoint(1, 100, 1000)
	spec := &RecordDateSpec{Kind: SpecExisting, Checkpoint: 1}
	id, err := f.engine.InitiateCA(f.owner, f.ticker, KindPredictableBenefit, 100, spec, "", nil, nil, nil, 150)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	meta := BallotMeta{Motions: []Motion{{Choices: []string{"a"}}}}
	if err := f.engine.AttachBallot(f.owner, id, 200, 300, meta, false); !errors.Is(err, ErrNotIssuerNotice) {
		t.Fatalf("expected kind check, got %v", err)
	}
}

func TestDistributionLifecycle(t *testing.T) {
	f := newFixture()
	f.checkpoints.addCheckpoint(1, 100, 1000)
	alice, bob := did(1), did(2)
	f.checkpoints.setBalance(1, alice, 250)
	f.checkpoints.setBalance(1, bob, 750)

	spec := &RecordDateSpec{Kind: SpecExisting, Checkpoint: 1}
	wht := []DidTax{{DID: bob, Tax: 100_000}}
	id, err := f.engine.InitiateCA(f.owner, f.ticker, KindPredictableBenefit, 100, spec, "dividend", nil, nil, wht, 150)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	payout := types.TickerAsset(types.MustTicker("USDD"))
	source := types.DefaultPortfolio(f.owner)
	f.funds.set(source, payout, 10_000)

	expiry := uint64(1000)
	if err := f.engine.Distribute(f.owner, id, source, payout, big.NewInt(4000), big.NewInt(4000), 200, &expiry, 150); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := f.funds.lockedOf(source, payout); got.Cmp(big.NewInt(4000)) != 0 {
		t.Fatalf("expected pool locked, got %s", got)
	}

	if _, err := f.engine.ClaimBenefit(alice, id, 150); !errors.Is(err, ErrNotInPaymentWindow) {
		t.Fatalf("expected window check, got %v", err)
	}

	// alice: 250/1000 of 4000 = 1000, no withholding.
	net, err := f.engine.ClaimBenefit(alice, id, 250)
	if err != nil {
		t.Fatalf("claim alice: %v", err)
	}
	if net.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000, got %s", net)
	}
	if _, err := f.engine.ClaimBenefit(alice, id, 260); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected single claim, got %v", err)
	}
	if got := f.funds.balance(types.DefaultPortfolio(alice), payout); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("alice portfolio: got %s", got)
	}

	// bob is pushed his share by the agent: 750/1000 of 4000 = 3000, minus
	// 10% withholding = 2700.
	net, err = f.engine.PushBenefit(f.owner, id, bob, 300)
	if err != nil {
		t.Fatalf("push bob: %v", err)
	}
	if net.Cmp(big.NewInt(2700)) != 0 {
		t.Fatalf("expected 2700, got %s", net)
	}

	// The withheld 300 remains and is reclaimed after expiry.
	if _, err := f.engine.Reclaim(f.owner, id, 500); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected expiry check, got %v", err)
	}
	remainder, err := f.engine.Reclaim(f.owner, id, 1000)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if remainder.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected remainder 300, got %s", remainder)
	}
	if got := f.funds.lockedOf(source, payout); got.Sign() != 0 {
		t.Fatalf("expected all unlocked, got %s", got)
	}
	if _, err := f.engine.ClaimBenefit(did(3), id, 1001); !errors.Is(err, ErrAlreadyReclaimed) {
		t.Fatalf("expected reclaimed state, got %v", err)
	}
}

func TestDistributionValidations(t *testing.T) {
	f := newFixture()
	f.checkpoints.addCheckpoint(1, 100, 1000)
	spec := &RecordDateSpec{Kind: SpecExisting, Checkpoint: 1}
	notice, err := f.engine.InitiateCA(f.owner, f.ticker, KindIssuerNotice, 100, spec, "", nil, nil, nil, 150)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	payout := types.TickerAsset(types.MustTicker("USDD"))
	source := types.DefaultPortfolio(f.owner)
	f.funds.set(source, payout, 100)

	if err := f.engine.Distribute(f.owner, notice, source, payout, big.NewInt(10), big.NewInt(10), 200, nil, 150); !errors.Is(err, ErrNotBenefit) {
		t.Fatalf("expected benefit kind check, got %v", err)
	}

	benefit, err := f.engine.InitiateCA(f.owner, f.ticker, KindPredictableBenefit, 100, spec, "", nil, nil, nil, 150)
	if err != nil {
		t.Fatalf("initiate benefit: %v", err)
	}
	if err := f.engine.Distribute(f.owner, benefit, source, payout, big.NewInt(10), big.NewInt(10), 50, nil, 150); !errors.Is(err, ErrPaymentBeforeRecordDate) {
		t.Fatalf("expected record date order, got %v", err)
	}
	bad := uint64(150)
	if err := f.engine.Distribute(f.owner, benefit, source, payout, big.NewInt(10), big.NewInt(10), 200, &bad, 150); !errors.Is(err, ErrExpiryBeforePayment) {
		t.Fatalf("expected expiry order, got %v", err)
	}
	if err := f.engine.Distribute(f.owner, benefit, source, payout, big.NewInt(500), big.NewInt(500), 200, nil, 150); !errors.Is(err, ErrInsufficientDistributionFunds) {
		t.Fatalf("expected funding check, got %v", err)
	}
	other := types.DefaultPortfolio(did(0x50))
	if err := f.engine.Distribute(f.owner, benefit, other, payout, big.NewInt(10), big.NewInt(10), 200, nil, 150); !errors.Is(err, ErrNotDistributionSource) {
		t.Fatalf("expected source ownership check, got %v", err)
	}
}

func TestDocumentsAndLinks(t *testing.T) {
	f := newFixture()
	id, err := f.engine.InitiateCA(f.owner, f.ticker, KindOther, 100, nil, "", nil, nil, nil, 150)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	ids, err := f.engine.AddDocuments(f.owner, f.ticker, []Document{{Name: "prospectus"}, {Name: "notice"}})
	if err != nil {
		t.Fatalf("add docs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("unexpected doc ids %v", ids)
	}

	if err := f.engine.LinkCADoc(f.owner, id, []uint32{0, 1}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := f.engine.LinkCADoc(f.owner, id, []uint32{2}); !errors.Is(err, ErrNoSuchDoc) {
		t.Fatalf("expected missing doc, got %v", err)
	}
}

func TestRemoveCACleansUp(t *testing.T) {
	f := newFixture()
	f.checkpoints.addCheckpoint(1, 100, 1000)
	spec := &RecordDateSpec{Kind: SpecExisting, Checkpoint: 1}
	id, err := f.engine.InitiateCA(f.owner, f.ticker, KindPredictableBenefit, 100, spec, "", nil, nil, nil, 150)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	payout := types.TickerAsset(types.MustTicker("USDD"))
	source := types.DefaultPortfolio(f.owner)
	f.funds.set(source, payout, 100)
	if err := f.engine.Distribute(f.owner, id, source, payout, big.NewInt(50), big.NewInt(50), 200, nil, 150); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// Started distributions block removal.
	if err := f.engine.RemoveCA(f.owner, id, 250); !errors.Is(err, ErrDistributionStarted) {
		t.Fatalf("expected started check, got %v", err)
	}
	if err := f.engine.RemoveCA(f.owner, id, 180); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := f.funds.lockedOf(source, payout); got.Sign() != 0 {
		t.Fatalf("expected pool released, got %s", got)
	}
	if _, err := f.engine.CorporateActionOf(id); !errors.Is(err, ErrNoSuchCA) {
		t.Fatalf("expected CA gone, got %v", err)
	}
}
