package governance

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"capchain/core/types"
)

type mockState struct {
	mipSeq     uint64
	mips       map[uint64]*Mip
	depositors map[uint64][]types.IdentityID
	deposits   map[string]*big.Int
	voters     map[uint64][]types.IdentityID
	votes      map[string]*MipVote
	refs       map[uint64]*Referendum
	committee  map[types.IdentityID]bool
	enactment  uint64
	scheduled  map[uint64][]uint64
}

func newMockState() *mockState {
	return &mockState{
		mips:       make(map[uint64]*Mip),
		depositors: make(map[uint64][]types.IdentityID),
		deposits:   make(map[string]*big.Int),
		voters:     make(map[uint64][]types.IdentityID),
		votes:      make(map[string]*MipVote),
		refs:       make(map[uint64]*Referendum),
		committee:  make(map[types.IdentityID]bool),
		scheduled:  make(map[uint64][]uint64),
	}
}

func mipDidKey(id uint64, did types.IdentityID) string {
	return fmt.Sprintf("%d|%s", id, did.String())
}

func (m *mockState) MipNextID() (uint64, error) {
	id := m.mipSeq
	m.mipSeq++
	return id, nil
}

func (m *mockState) Mip(id uint64) (*Mip, bool, error) {
	mip, ok := m.mips[id]
	if !ok {
		return nil, false, nil
	}
	return mip.Clone(), true, nil
}

func (m *mockState) MipPut(mip *Mip) error {
	m.mips[mip.ID] = mip.Clone()
	return nil
}

func (m *mockState) MipDelete(id uint64) error {
	delete(m.mips, id)
	return nil
}

func (m *mockState) Depositors(id uint64) ([]types.IdentityID, error) {
	return append([]types.IdentityID(nil), m.depositors[id]...), nil
}

func (m *mockState) DepositorsPut(id uint64, dids []types.IdentityID) error {
	m.depositors[id] = append([]types.IdentityID(nil), dids...)
	return nil
}

func (m *mockState) Deposit(id uint64, did types.IdentityID) (*big.Int, error) {
	if amount, ok := m.deposits[mipDidKey(id, did)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) DepositPut(id uint64, did types.IdentityID, amount *big.Int) error {
	m.deposits[mipDidKey(id, did)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) Voters(id uint64) ([]types.IdentityID, error) {
	return append([]types.IdentityID(nil), m.voters[id]...), nil
}

func (m *mockState) VotersPut(id uint64, dids []types.IdentityID) error {
	m.voters[id] = append([]types.IdentityID(nil), dids...)
	return nil
}

func (m *mockState) Vote(id uint64, did types.IdentityID) (*MipVote, bool, error) {
	vote, ok := m.votes[mipDidKey(id, did)]
	if !ok {
		return nil, false, nil
	}
	return vote.Clone(), true, nil
}

func (m *mockState) VotePut(id uint64, did types.IdentityID, vote *MipVote) error {
	m.votes[mipDidKey(id, did)] = vote.Clone()
	return nil
}

func (m *mockState) Referendum(id uint64) (*Referendum, bool, error) {
	referendum, ok := m.refs[id]
	if !ok {
		return nil, false, nil
	}
	return referendum.Clone(), true, nil
}

func (m *mockState) ReferendumPut(referendum *Referendum) error {
	m.refs[referendum.Mip] = referendum.Clone()
	return nil
}

func (m *mockState) ReferendumDelete(id uint64) error {
	delete(m.refs, id)
	return nil
}

func (m *mockState) IsCommitteeMember(did types.IdentityID) (bool, error) {
	return m.committee[did], nil
}

func (m *mockState) EnactmentPeriod() (uint64, bool, error) {
	return m.enactment, m.enactment != 0, nil
}

func (m *mockState) EnactmentPeriodPut(blocks uint64) error {
	m.enactment = blocks
	return nil
}

func (m *mockState) ScheduledReferendums(block uint64) ([]uint64, error) {
	return append([]uint64(nil), m.scheduled[block]...), nil
}

func (m *mockState) ScheduledReferendumsPut(block uint64, ids []uint64) error {
	if len(ids) == 0 {
		delete(m.scheduled, block)
		return nil
	}
	m.scheduled[block] = append([]uint64(nil), ids...)
	return nil
}

type mockDeposits struct {
	reserved map[types.IdentityID]*big.Int
}

func newMockDeposits() *mockDeposits {
	return &mockDeposits{reserved: make(map[types.IdentityID]*big.Int)}
}

func (m *mockDeposits) reservedOf(did types.IdentityID) *big.Int {
	if r, ok := m.reserved[did]; ok {
		return r
	}
	return big.NewInt(0)
}

func (m *mockDeposits) Reserve(did types.IdentityID, amount *big.Int) error {
	m.reserved[did] = new(big.Int).Add(m.reservedOf(did), amount)
	return nil
}

func (m *mockDeposits) Unreserve(did types.IdentityID, amount *big.Int) error {
	next := new(big.Int).Sub(m.reservedOf(did), amount)
	if next.Sign() < 0 {
		return errors.New("mock: unreserve exceeds reserved")
	}
	m.reserved[did] = next
	return nil
}

type mockTreasury struct {
	balance  *big.Int
	payments map[types.IdentityID]*big.Int
}

func newMockTreasury(balance int64) *mockTreasury {
	return &mockTreasury{balance: big.NewInt(balance), payments: make(map[types.IdentityID]*big.Int)}
}

func (m *mockTreasury) Balance() (*big.Int, error) {
	return new(big.Int).Set(m.balance), nil
}

func (m *mockTreasury) Pay(to types.IdentityID, amount *big.Int) error {
	if m.balance.Cmp(amount) < 0 {
		return errors.New("mock: treasury overdrawn")
	}
	m.balance.Sub(m.balance, amount)
	paid := m.payments[to]
	if paid == nil {
		paid = big.NewInt(0)
	}
	m.payments[to] = new(big.Int).Add(paid, amount)
	return nil
}

type mockDispatcher struct {
	calls    []types.Command
	failWith error
}

func (m *mockDispatcher) DispatchAsRoot(call types.Command) error {
	m.calls = append(m.calls, call)
	return m.failWith
}

func did(b byte) types.IdentityID {
	var id types.IdentityID
	id[0] = b
	return id
}

type fixture struct {
	engine     *Engine
	state      *mockState
	deposits   *mockDeposits
	treasury   *mockTreasury
	dispatcher *mockDispatcher
	proposer   types.IdentityID
	member     types.IdentityID
}

// newFixture configures short windows: cool-off [now, now+100), voting
// [now+100, now+1100), min deposit 50, quorum 200.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:      newMockState(),
		deposits:   newMockDeposits(),
		treasury:   newMockTreasury(10_000),
		dispatcher: &mockDispatcher{},
		proposer:   did(0x01),
		member:     did(0x0f),
	}
	f.state.committee[f.member] = true
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetDeposits(f.deposits)
	f.engine.SetTreasury(f.treasury)
	f.engine.SetDispatcher(f.dispatcher)
	f.engine.SetMinDeposit(big.NewInt(50))
	f.engine.SetQuorum(big.NewInt(200))
	f.engine.SetPeriods(100, 1000)
	return f
}

func (f *fixture) propose(t *testing.T, beneficiaries []Beneficiary) uint64 {
	t.Helper()
	id, err := f.engine.Propose(f.proposer, types.Command{Kind: types.CommandNoop}, "", "", big.NewInt(100), beneficiaries, 0)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return id
}

func TestProposalDepositFloor(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Propose(f.proposer, types.Command{}, "", "", big.NewInt(49), nil, 0); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected ErrInsufficientDeposit, got %v", err)
	}
	id := f.propose(t, nil)
	if got := f.deposits.reservedOf(f.proposer); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("reserved = %s, want 100", got)
	}
	if _, err := f.engine.MipOf(id); err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestCoolOffMutations(t *testing.T) {
	f := newFixture(t)
	id := f.propose(t, nil)

	if err := f.engine.AmendProposal(did(0x02), id, "u", "d", 10); !errors.Is(err, ErrNotProposer) {
		t.Fatalf("expected ErrNotProposer, got %v", err)
	}
	if err := f.engine.AmendProposal(f.proposer, id, "u", "d", 10); err != nil {
		t.Fatalf("amend: %v", err)
	}
	if err := f.engine.AmendProposal(f.proposer, id, "u", "d", 100); !errors.Is(err, ErrProposalImmutable) {
		t.Fatalf("expected ErrProposalImmutable after cool-off, got %v", err)
	}

	if err := f.engine.BondAdditionalDeposit(f.proposer, id, big.NewInt(40), 10); err != nil {
		t.Fatalf("bond: %v", err)
	}
	if got := f.deposits.reservedOf(f.proposer); got.Cmp(big.NewInt(140)) != 0 {
		t.Fatalf("reserved = %s, want 140", got)
	}
	// Unbonding may not cross the minimum.
	if err := f.engine.UnbondDeposit(f.proposer, id, big.NewInt(100), 10); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected ErrInsufficientDeposit, got %v", err)
	}
	if err := f.engine.UnbondDeposit(f.proposer, id, big.NewInt(90), 10); err != nil {
		t.Fatalf("unbond: %v", err)
	}
	if got := f.deposits.reservedOf(f.proposer); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("reserved = %s, want 50", got)
	}

	if err := f.engine.CancelProposal(f.proposer, id, 10); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.deposits.reservedOf(f.proposer); got.Sign() != 0 {
		t.Fatalf("deposit not refunded, still %s", got)
	}
	mip, _ := f.engine.MipOf(id)
	if mip.State != MipCancelled {
		t.Fatalf("state = %v, want cancelled", mip.State)
	}
	if err := f.engine.AmendProposal(f.proposer, id, "", "", 10); !errors.Is(err, ErrProposalImmutable) {
		t.Fatalf("expected ErrProposalImmutable after cancel, got %v", err)
	}
}

func TestVoteWindow(t *testing.T) {
	f := newFixture(t)
	id := f.propose(t, nil)
	voter := did(0x03)

	if err := f.engine.Vote(voter, id, true, big.NewInt(10), 50); !errors.Is(err, ErrProposalOnCoolOff) {
		t.Fatalf("expected ErrProposalOnCoolOff, got %v", err)
	}
	if err := f.engine.Vote(voter, id, true, big.NewInt(0), 150); !errors.Is(err, ErrZeroVoteDeposit) {
		t.Fatalf("expected ErrZeroVoteDeposit, got %v", err)
	}
	if err := f.engine.Vote(voter, id, true, big.NewInt(10), 150); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.engine.Vote(voter, id, false, big.NewInt(10), 160); !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
	if err := f.engine.Vote(did(0x04), id, false, big.NewInt(10), 1100); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}
	if got := f.deposits.reservedOf(voter); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("vote stake = %s, want 10", got)
	}
}

func TestCloseVoteOutcomes(t *testing.T) {
	f := newFixture(t)

	// Passing: ayes 250 > nays 40, ayes >= quorum 200.
	pass := f.propose(t, nil)
	if err := f.engine.Vote(did(0x03), pass, true, big.NewInt(250), 150); err != nil {
		t.Fatalf("aye vote: %v", err)
	}
	if err := f.engine.Vote(did(0x04), pass, false, big.NewInt(40), 150); err != nil {
		t.Fatalf("nay vote: %v", err)
	}
	if err := f.engine.CloseVote(pass, 500); !errors.Is(err, ErrNotEnded) {
		t.Fatalf("expected ErrNotEnded, got %v", err)
	}
	if err := f.engine.CloseVote(pass, 1100); err != nil {
		t.Fatalf("close: %v", err)
	}
	mip, _ := f.engine.MipOf(pass)
	if mip.State != MipReferendum {
		t.Fatalf("state = %v, want referendum", mip.State)
	}
	referendum, err := f.engine.ReferendumOf(pass)
	if err != nil || referendum.State != ReferendumPending || referendum.Kind != ReferendumCommunity {
		t.Fatalf("referendum = %+v (%v)", referendum, err)
	}
	// Every stake is released on the state exit.
	for _, voter := range []types.IdentityID{f.proposer, did(0x03), did(0x04)} {
		if got := f.deposits.reservedOf(voter); got.Sign() != 0 {
			t.Fatalf("stake of %s not released: %s", voter, got)
		}
	}

	// Failing on quorum: ayes 150 > nays 40 but below quorum 200.
	fail := f.propose(t, nil)
	if err := f.engine.Vote(did(0x05), fail, true, big.NewInt(150), 150); err != nil {
		t.Fatalf("aye vote: %v", err)
	}
	if err := f.engine.Vote(did(0x06), fail, false, big.NewInt(40), 150); err != nil {
		t.Fatalf("nay vote: %v", err)
	}
	if err := f.engine.CloseVote(fail, 1100); err != nil {
		t.Fatalf("close: %v", err)
	}
	mip, _ = f.engine.MipOf(fail)
	if mip.State != MipRejected {
		t.Fatalf("state = %v, want rejected", mip.State)
	}
	if _, err := f.engine.ReferendumOf(fail); !errors.Is(err, ErrNoSuchReferendum) {
		t.Fatalf("expected ErrNoSuchReferendum, got %v", err)
	}
}

func TestCommitteeGates(t *testing.T) {
	f := newFixture(t)
	id := f.propose(t, nil)

	if err := f.engine.KillProposal(did(0x02), id); !errors.Is(err, ErrNotCommitteeMember) {
		t.Fatalf("expected ErrNotCommitteeMember, got %v", err)
	}
	if err := f.engine.FastTrackProposal(did(0x02), id); !errors.Is(err, ErrNotCommitteeMember) {
		t.Fatalf("expected ErrNotCommitteeMember, got %v", err)
	}
	if _, err := f.engine.EmergencyReferendum(did(0x02), types.Command{}, "", "", nil, 0); !errors.Is(err, ErrNotCommitteeMember) {
		t.Fatalf("expected ErrNotCommitteeMember, got %v", err)
	}

	if err := f.engine.FastTrackProposal(f.member, id); err != nil {
		t.Fatalf("fast track: %v", err)
	}
	referendum, err := f.engine.ReferendumOf(id)
	if err != nil || referendum.Kind != ReferendumFastTracked {
		t.Fatalf("referendum = %+v (%v)", referendum, err)
	}
	// Fast-tracking releases the proposal deposit.
	if got := f.deposits.reservedOf(f.proposer); got.Sign() != 0 {
		t.Fatalf("deposit not released on fast track: %s", got)
	}

	killed := f.propose(t, nil)
	if err := f.engine.KillProposal(f.member, killed); err != nil {
		t.Fatalf("kill: %v", err)
	}
	mip, _ := f.engine.MipOf(killed)
	if mip.State != MipKilled {
		t.Fatalf("state = %v, want killed", mip.State)
	}
}

func TestEnactmentExecutesAndPays(t *testing.T) {
	f := newFixture(t)
	beneficiary := did(0x07)
	id, err := f.engine.EmergencyReferendum(f.member, types.Command{Kind: types.CommandNoop}, "", "",
		[]Beneficiary{{To: beneficiary, Amount: big.NewInt(1_000)}}, 0)
	if err != nil {
		t.Fatalf("emergency referendum: %v", err)
	}

	if err := f.engine.SetReferendumEnactmentPeriod(f.member, 5); err != nil {
		t.Fatalf("set enactment period: %v", err)
	}
	if err := f.engine.EnactReferendum(f.member, id, 50); err != nil {
		t.Fatalf("enact: %v", err)
	}
	referendum, _ := f.engine.ReferendumOf(id)
	if referendum.State != ReferendumScheduled || referendum.EnactAt != 55 {
		t.Fatalf("referendum = %+v, want scheduled at 55", referendum)
	}
	if err := f.engine.EnactReferendum(f.member, id, 50); !errors.Is(err, ErrReferendumImmutable) {
		t.Fatalf("expected ErrReferendumImmutable, got %v", err)
	}

	if err := f.engine.EnactScheduled(55); err != nil {
		t.Fatalf("enact scheduled: %v", err)
	}
	referendum, _ = f.engine.ReferendumOf(id)
	if referendum.State != ReferendumExecuted {
		t.Fatalf("state = %v, want executed", referendum.State)
	}
	if len(f.dispatcher.calls) != 1 {
		t.Fatalf("dispatch count = %d, want 1", len(f.dispatcher.calls))
	}
	if paid := f.treasury.payments[beneficiary]; paid == nil || paid.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("beneficiary paid %s, want 1000", paid)
	}
}

func TestEnactmentFailedDisbursement(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.EmergencyReferendum(f.member, types.Command{Kind: types.CommandNoop}, "", "",
		[]Beneficiary{{To: did(0x07), Amount: big.NewInt(50_000)}}, 0)
	if err != nil {
		t.Fatalf("emergency referendum: %v", err)
	}
	if err := f.engine.EnactReferendum(f.member, id, 10); err != nil {
		t.Fatalf("enact: %v", err)
	}
	referendum, _ := f.engine.ReferendumOf(id)
	if err := f.engine.EnactScheduled(referendum.EnactAt); err != nil {
		t.Fatalf("enact scheduled: %v", err)
	}
	referendum, _ = f.engine.ReferendumOf(id)
	if referendum.State != ReferendumFailedDisbursement {
		t.Fatalf("state = %v, want failed disbursement", referendum.State)
	}
	if len(f.dispatcher.calls) != 0 {
		t.Fatalf("dispatched despite short treasury")
	}
}

func TestEnactmentFailedExecution(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.failWith = errors.New("call reverted")
	beneficiary := did(0x07)
	id, err := f.engine.EmergencyReferendum(f.member, types.Command{Kind: types.CommandNoop}, "", "",
		[]Beneficiary{{To: beneficiary, Amount: big.NewInt(100)}}, 0)
	if err != nil {
		t.Fatalf("emergency referendum: %v", err)
	}
	if err := f.engine.EnactReferendum(f.member, id, 10); err != nil {
		t.Fatalf("enact: %v", err)
	}
	referendum, _ := f.engine.ReferendumOf(id)
	if err := f.engine.EnactScheduled(referendum.EnactAt); err != nil {
		t.Fatalf("enact scheduled: %v", err)
	}
	referendum, _ = f.engine.ReferendumOf(id)
	if referendum.State != ReferendumFailedExecution {
		t.Fatalf("state = %v, want failed execution", referendum.State)
	}
	if f.treasury.payments[beneficiary] != nil {
		t.Fatalf("paid beneficiaries on failed execution")
	}
}

func TestPruneHistoricalMips(t *testing.T) {
	f := newFixture(t)
	active := f.propose(t, nil)
	if err := f.engine.PruneHistoricalMips(f.member, []uint64{active}); !errors.Is(err, ErrProposalStillActive) {
		t.Fatalf("expected ErrProposalStillActive, got %v", err)
	}
	if err := f.engine.CancelProposal(f.proposer, active, 10); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.engine.PruneHistoricalMips(did(0x02), []uint64{active}); !errors.Is(err, ErrNotCommitteeMember) {
		t.Fatalf("expected ErrNotCommitteeMember, got %v", err)
	}
	if err := f.engine.PruneHistoricalMips(f.member, []uint64{active}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := f.engine.MipOf(active); !errors.Is(err, ErrNoSuchProposal) {
		t.Fatalf("expected ErrNoSuchProposal, got %v", err)
	}
}
