package compliance

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"capchain/core/types"
)

type mockState struct {
	active     map[string][]StatType
	stats      map[string]*big.Int
	reqs       map[string]*Requirements
	exemptions map[string]bool
}

func newMockState() *mockState {
	return &mockState{
		active:     make(map[string][]StatType),
		stats:      make(map[string]*big.Int),
		reqs:       make(map[string]*Requirements),
		exemptions: make(map[string]bool),
	}
}

func statKey(asset types.AssetID, stat StatType, bucket string) string {
	return fmt.Sprintf("%s|%d|%t|%d|%s|%s", asset.String(), stat.Op, stat.HasClaim, stat.Claim.Type, stat.Claim.Issuer.String(), bucket)
}

func (m *mockState) ActiveStats(asset types.AssetID) ([]StatType, error) {
	return append([]StatType(nil), m.active[asset.String()]...), nil
}

func (m *mockState) ActiveStatsPut(asset types.AssetID, stats []StatType) error {
	m.active[asset.String()] = append([]StatType(nil), stats...)
	return nil
}

func (m *mockState) StatValue(asset types.AssetID, stat StatType, bucket string) (*big.Int, error) {
	if v, ok := m.stats[statKey(asset, stat, bucket)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) StatValuePut(asset types.AssetID, stat StatType, bucket string, v *big.Int) error {
	m.stats[statKey(asset, stat, bucket)] = new(big.Int).Set(v)
	return nil
}

func (m *mockState) Requirements(asset types.AssetID) (*Requirements, error) {
	if r, ok := m.reqs[asset.String()]; ok {
		return r.Clone(), nil
	}
	return &Requirements{}, nil
}

func (m *mockState) RequirementsPut(asset types.AssetID, reqs *Requirements) error {
	m.reqs[asset.String()] = reqs.Clone()
	return nil
}

func exemptKey(asset types.AssetID, op StatOp, claim types.ClaimType, did types.IdentityID) string {
	return fmt.Sprintf("%s|%d|%d|%s", asset.String(), op, claim, did.String())
}

func (m *mockState) Exempt(asset types.AssetID, op StatOp, claim types.ClaimType, did types.IdentityID) (bool, error) {
	return m.exemptions[exemptKey(asset, op, claim, did)], nil
}

func (m *mockState) ExemptPut(asset types.AssetID, op StatOp, claim types.ClaimType, did types.IdentityID, v bool) error {
	if !v {
		delete(m.exemptions, exemptKey(asset, op, claim, did))
		return nil
	}
	m.exemptions[exemptKey(asset, op, claim, did)] = true
	return nil
}

type mockClaims struct {
	claims map[string]*types.Claim
}

func newMockClaims() *mockClaims {
	return &mockClaims{claims: make(map[string]*types.Claim)}
}

func claimKey(did types.IdentityID, key types.ClaimKey) string {
	return did.String() + "|" + key.Issuer.String() + "|" + key.Type.String()
}

func (m *mockClaims) add(did types.IdentityID, key types.ClaimKey, value string) {
	m.claims[claimKey(did, key)] = &types.Claim{Type: key.Type, Issuer: key.Issuer, Value: value}
}

func (m *mockClaims) FetchClaim(did types.IdentityID, key types.ClaimKey, scope types.AssetID) (*types.Claim, bool, error) {
	claim, ok := m.claims[claimKey(did, key)]
	if !ok {
		return nil, false, nil
	}
	clone := *claim
	return &clone, true, nil
}

func did(last byte) types.IdentityID {
	var out types.IdentityID
	out[31] = last
	return out
}

func testAsset() types.AssetID {
	return types.TickerAsset(types.MustTicker("ACME"))
}

func newTestEngine(state *mockState, claims *mockClaims) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetClaimReader(claims)
	return engine
}

func TestMaxInvestorCountBlocksNewHolder(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	countStat := StatType{Op: StatCount}
	if err := engine.SetActiveAssetStats(asset, []StatType{countStat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	if err := engine.SetTransferCompliance(asset, []TransferCondition{{Kind: CondMaxInvestorCount, CountMax: 2}}); err != nil {
		t.Fatalf("set compliance: %v", err)
	}
	if err := state.StatValuePut(asset, countStat, totalBucketKey, big.NewInt(2)); err != nil {
		t.Fatalf("seed count: %v", err)
	}

	sender, receiver := did(1), did(2)
	// Receiver rises from zero, sender keeps a remainder: count would hit 3.
	err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter())
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected invalid transfer, got %v", err)
	}

	// Sender empties out in the same movement: count stays at 2.
	if err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(100), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter()); err != nil {
		t.Fatalf("expected replacement transfer to pass: %v", err)
	}

	// Receiver already holds: no new investor, condition not consulted.
	if err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(5), big.NewInt(1000), UnlimitedMeter()); err != nil {
		t.Fatalf("expected existing-holder transfer to pass: %v", err)
	}
}

func TestOwnershipCapUsesProposedBalance(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	if err := engine.SetActiveAssetStats(asset, []StatType{{Op: StatBalance}}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	// 25% cap.
	if err := engine.SetTransferCompliance(asset, []TransferCondition{{Kind: CondMaxInvestorOwnership, OwnershipMax: 250_000}}); err != nil {
		t.Fatalf("set compliance: %v", err)
	}

	sender, receiver := did(1), did(2)
	supply := big.NewInt(1000)

	// 200 + 100 = 300 of 1000 exceeds the cap.
	err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(100), big.NewInt(500), big.NewInt(200), supply, UnlimitedMeter())
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected ownership breach, got %v", err)
	}

	// 200 + 50 = 250 of 1000 sits exactly on the cap.
	if err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(50), big.NewInt(500), big.NewInt(200), supply, UnlimitedMeter()); err != nil {
		t.Fatalf("expected transfer at cap to pass: %v", err)
	}

	// Burns have no receiver and never breach ownership.
	if err := engine.VerifyTransfer(asset, &sender, nil, big.NewInt(400), big.NewInt(500), nil, supply, UnlimitedMeter()); err != nil {
		t.Fatalf("expected burn to pass: %v", err)
	}
}

func TestClaimCountFloor(t *testing.T) {
	state := newMockState()
	claims := newMockClaims()
	engine := newTestEngine(state, claims)
	asset := testAsset()

	issuer := did(0xAA)
	key := types.ClaimKey{Type: types.ClaimAccredited, Issuer: issuer}
	stat := StatType{Op: StatCount, HasClaim: true, Claim: key}
	if err := engine.SetActiveAssetStats(asset, []StatType{stat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	// At least one accredited investor must remain.
	cond := TransferCondition{Kind: CondClaimCount, Claim: key, ClaimValue: "", Min: 1}
	if err := engine.SetTransferCompliance(asset, []TransferCondition{cond}); err != nil {
		t.Fatalf("set compliance: %v", err)
	}

	accredited, plain := did(1), did(2)
	claims.add(accredited, key, "")
	bucket := Bucket{HasClaim: true}
	if err := state.StatValuePut(asset, stat, bucket.Key(), big.NewInt(1)); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}

	// The only accredited holder empties into a plain holder: bucket drops to 0.
	err := engine.VerifyTransfer(asset, &accredited, &plain, big.NewInt(100), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter())
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected floor breach, got %v", err)
	}

	// Partial sale keeps the accredited holder in the bucket.
	if err := engine.VerifyTransfer(asset, &accredited, &plain, big.NewInt(40), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter()); err != nil {
		t.Fatalf("expected partial sale to pass: %v", err)
	}
}

func TestExemptionBypassesFailedCondition(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	countStat := StatType{Op: StatCount}
	if err := engine.SetActiveAssetStats(asset, []StatType{countStat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	if err := engine.SetTransferCompliance(asset, []TransferCondition{{Kind: CondMaxInvestorCount, CountMax: 1}}); err != nil {
		t.Fatalf("set compliance: %v", err)
	}
	if err := state.StatValuePut(asset, countStat, totalBucketKey, big.NewInt(1)); err != nil {
		t.Fatalf("seed count: %v", err)
	}

	sender, receiver := did(1), did(2)
	err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter())
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected breach before exemption, got %v", err)
	}

	// Count conditions honour sender exemptions.
	if err := engine.SetEntitiesExempt(asset, true, StatCount, 0, []types.IdentityID{sender}); err != nil {
		t.Fatalf("set exemption: %v", err)
	}
	if err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter()); err != nil {
		t.Fatalf("expected exempt sender to pass: %v", err)
	}

	// A receiver exemption does not help a count condition.
	other, fresh := did(3), did(4)
	if err := engine.SetEntitiesExempt(asset, true, StatCount, 0, []types.IdentityID{fresh}); err != nil {
		t.Fatalf("set exemption: %v", err)
	}
	err = engine.VerifyTransfer(asset, &other, &fresh, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter())
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected exempt receiver not to bypass count condition, got %v", err)
	}

	// Revoking the sender exemption restores the breach.
	if err := engine.SetEntitiesExempt(asset, false, StatCount, 0, []types.IdentityID{sender}); err != nil {
		t.Fatalf("clear exemption: %v", err)
	}
	err = engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter())
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected breach after exemption revoked, got %v", err)
	}
}

func TestPausedSkipsEvaluation(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	if err := engine.SetActiveAssetStats(asset, []StatType{{Op: StatCount}}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	if err := engine.SetTransferCompliance(asset, []TransferCondition{{Kind: CondMaxInvestorCount, CountMax: 0}}); err != nil {
		t.Fatalf("set compliance: %v", err)
	}
	if err := engine.SetPaused(asset, true); err != nil {
		t.Fatalf("pause: %v", err)
	}

	sender, receiver := did(1), did(2)
	if err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter()); err != nil {
		t.Fatalf("paused asset should accept any transfer: %v", err)
	}

	if err := engine.SetPaused(asset, false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), UnlimitedMeter())
	if !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected breach after resume, got %v", err)
	}
}

func TestSetActiveAssetStatsGuards(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	countStat := StatType{Op: StatCount}
	if err := engine.SetActiveAssetStats(asset, []StatType{countStat, countStat}); !errors.Is(err, ErrDuplicateStatType) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	engine.SetBounds(1, 0)
	if err := engine.SetActiveAssetStats(asset, []StatType{countStat, {Op: StatBalance}}); !errors.Is(err, ErrStatTypeLimitReached) {
		t.Fatalf("expected limit breach, got %v", err)
	}
	engine.SetBounds(DefaultMaxStatsPerAsset, 0)

	if err := engine.SetActiveAssetStats(asset, []StatType{countStat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	if err := engine.SetTransferCompliance(asset, []TransferCondition{{Kind: CondMaxInvestorCount, CountMax: 5}}); err != nil {
		t.Fatalf("set compliance: %v", err)
	}
	// The count stat backs a live condition now.
	if err := engine.SetActiveAssetStats(asset, nil); !errors.Is(err, ErrCannotRemoveStatTypeInUse) {
		t.Fatalf("expected in-use rejection, got %v", err)
	}
}

func TestSetTransferComplianceRequiresStat(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	err := engine.SetTransferCompliance(asset, []TransferCondition{{Kind: CondMaxInvestorCount, CountMax: 5}})
	if !errors.Is(err, ErrStatTypeMissing) {
		t.Fatalf("expected missing stat, got %v", err)
	}

	engine.SetBounds(0, 1)
	if err := engine.SetActiveAssetStats(asset, []StatType{{Op: StatCount}, {Op: StatBalance}}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	err = engine.SetTransferCompliance(asset, []TransferCondition{
		{Kind: CondMaxInvestorCount, CountMax: 5},
		{Kind: CondMaxInvestorOwnership, OwnershipMax: 100_000},
	})
	if !errors.Is(err, ErrConditionLimitReached) {
		t.Fatalf("expected condition limit breach, got %v", err)
	}
}

func TestUpdateStatsIncrementalRule(t *testing.T) {
	state := newMockState()
	claims := newMockClaims()
	engine := newTestEngine(state, claims)
	asset := testAsset()

	issuer := did(0xAA)
	key := types.ClaimKey{Type: types.ClaimAccredited, Issuer: issuer}
	countStat := StatType{Op: StatCount}
	claimStat := StatType{Op: StatCount, HasClaim: true, Claim: key}
	balStat := StatType{Op: StatBalance}
	if err := engine.SetActiveAssetStats(asset, []StatType{countStat, claimStat, balStat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}

	alice, bob := did(1), did(2)
	claims.add(alice, key, "")

	// Mint 100 to alice: investor count 1, accredited bucket 1, balance 100.
	if err := engine.UpdateStats(asset, nil, &alice, big.NewInt(100), nil, big.NewInt(0), UnlimitedMeter()); err != nil {
		t.Fatalf("mint update: %v", err)
	}
	assertStat(t, engine, asset, countStat, Bucket{}, 1)
	assertStat(t, engine, asset, claimStat, Bucket{HasClaim: true}, 1)
	assertStat(t, engine, asset, balStat, Bucket{}, 100)

	// Alice sends 40 to bob: count 2, accredited bucket unchanged, total
	// balance unchanged by a pure transfer.
	if err := engine.UpdateStats(asset, &alice, &bob, big.NewInt(40), big.NewInt(100), big.NewInt(0), UnlimitedMeter()); err != nil {
		t.Fatalf("transfer update: %v", err)
	}
	assertStat(t, engine, asset, countStat, Bucket{}, 2)
	assertStat(t, engine, asset, claimStat, Bucket{HasClaim: true}, 1)
	assertStat(t, engine, asset, balStat, Bucket{}, 100)

	// Alice empties the rest to bob: count back to 1, accredited bucket 0,
	// unaccredited bucket 1.
	if err := engine.UpdateStats(asset, &alice, &bob, big.NewInt(60), big.NewInt(60), big.NewInt(40), UnlimitedMeter()); err != nil {
		t.Fatalf("emptying update: %v", err)
	}
	assertStat(t, engine, asset, countStat, Bucket{}, 1)
	assertStat(t, engine, asset, claimStat, Bucket{HasClaim: true}, 0)
	assertStat(t, engine, asset, claimStat, Bucket{}, 1)

	// Burn everything from bob: count 0, balance 0.
	if err := engine.UpdateStats(asset, &bob, nil, big.NewInt(100), big.NewInt(100), nil, UnlimitedMeter()); err != nil {
		t.Fatalf("burn update: %v", err)
	}
	assertStat(t, engine, asset, countStat, Bucket{}, 0)
	assertStat(t, engine, asset, balStat, Bucket{}, 0)
}

func TestUpdateStatsZeroAmountIsNoop(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	countStat := StatType{Op: StatCount}
	if err := engine.SetActiveAssetStats(asset, []StatType{countStat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	alice, bob := did(1), did(2)
	if err := engine.UpdateStats(asset, &alice, &bob, big.NewInt(0), big.NewInt(0), big.NewInt(0), UnlimitedMeter()); err != nil {
		t.Fatalf("zero-amount update: %v", err)
	}
	assertStat(t, engine, asset, countStat, Bucket{}, 0)
}

func TestWeightMeterExhaustion(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	countStat := StatType{Op: StatCount}
	if err := engine.SetActiveAssetStats(asset, []StatType{countStat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	if err := engine.SetTransferCompliance(asset, []TransferCondition{{Kind: CondMaxInvestorCount, CountMax: 100}}); err != nil {
		t.Fatalf("set compliance: %v", err)
	}

	sender, receiver := did(1), did(2)
	meter := NewWeightMeter(10)
	err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), meter)
	if !errors.Is(err, ErrWeightLimitExceeded) {
		t.Fatalf("expected weight exhaustion, got %v", err)
	}

	generous := NewWeightMeter(10_000)
	if err := engine.VerifyTransfer(asset, &sender, &receiver, big.NewInt(10), big.NewInt(100), big.NewInt(0), big.NewInt(1000), generous); err != nil {
		t.Fatalf("expected budgeted verify to pass: %v", err)
	}
	if generous.Used() == 0 {
		t.Fatalf("expected meter consumption")
	}
}

func TestBatchUpdateRequiresActiveStat(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state, newMockClaims())
	asset := testAsset()

	countStat := StatType{Op: StatCount}
	err := engine.BatchUpdateAssetStats(asset, countStat, []StatUpdate{{Value: 3}})
	if !errors.Is(err, ErrStatTypeMissing) {
		t.Fatalf("expected missing stat, got %v", err)
	}

	if err := engine.SetActiveAssetStats(asset, []StatType{countStat}); err != nil {
		t.Fatalf("enable stats: %v", err)
	}
	if err := engine.BatchUpdateAssetStats(asset, countStat, []StatUpdate{{Value: 3}}); err != nil {
		t.Fatalf("batch update: %v", err)
	}
	assertStat(t, engine, asset, countStat, Bucket{}, 3)
}

func assertStat(t *testing.T, engine *Engine, asset types.AssetID, stat StatType, bucket Bucket, want int64) {
	t.Helper()
	got, err := engine.StatValueOf(asset, stat, bucket)
	if err != nil {
		t.Fatalf("read stat: %v", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("stat %s bucket %q: got %s want %d", stat.Op, bucket.Key(), got, want)
	}
}
