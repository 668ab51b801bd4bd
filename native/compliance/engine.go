package compliance

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"capchain/core/events"
	"capchain/core/types"
)

var (
	errNilState  = errors.New("compliance engine: state not configured")
	errNilClaims = errors.New("compliance engine: claim reader not configured")

	// ErrInvalidTransfer marks movements violating a transfer condition.
	ErrInvalidTransfer = errors.New("compliance: invalid transfer")
	// ErrStatTypeMissing marks conditions referencing a stat that is not
	// enabled on the asset.
	ErrStatTypeMissing = errors.New("compliance: stat type missing")
	// ErrCannotRemoveStatTypeInUse marks removal of a stat a condition reads.
	ErrCannotRemoveStatTypeInUse = errors.New("compliance: cannot remove stat type in use")
	// ErrStatTypeLimitReached marks active-stat sets over the bound.
	ErrStatTypeLimitReached = errors.New("compliance: stat type limit reached")
	// ErrConditionLimitReached marks condition sets over the bound.
	ErrConditionLimitReached = errors.New("compliance: transfer condition limit reached")
	// ErrDuplicateStatType marks duplicate entries in a stat set.
	ErrDuplicateStatType = errors.New("compliance: duplicate stat type")
)

// Default bounds on per-asset configuration. Bounded containers limit
// per-call work.
const (
	DefaultMaxStatsPerAsset      = 10
	DefaultMaxConditionsPerAsset = 4
)

type engineState interface {
	ActiveStats(asset types.AssetID) ([]StatType, error)
	ActiveStatsPut(asset types.AssetID, stats []StatType) error
	StatValue(asset types.AssetID, stat StatType, bucket string) (*big.Int, error)
	StatValuePut(asset types.AssetID, stat StatType, bucket string, v *big.Int) error
	Requirements(asset types.AssetID) (*Requirements, error)
	RequirementsPut(asset types.AssetID, reqs *Requirements) error
	Exempt(asset types.AssetID, op StatOp, claim types.ClaimType, did types.IdentityID) (bool, error)
	ExemptPut(asset types.AssetID, op StatOp, claim types.ClaimType, did types.IdentityID, v bool) error
}

// ClaimReader is the slice of the identity engine compliance needs: claim
// lookup for bucketing holders.
type ClaimReader interface {
	FetchClaim(did types.IdentityID, key types.ClaimKey, scope types.AssetID) (*types.Claim, bool, error)
}

// Engine maintains per-asset investor statistics incrementally and decides
// whether proposed transfers satisfy the asset's condition set.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	claims        ClaimReader
	maxStats      int
	maxConditions int
}

// NewEngine constructs a compliance engine with default bounds.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		maxStats:      DefaultMaxStatsPerAsset,
		maxConditions: DefaultMaxConditionsPerAsset,
	}
}

// SetState wires the engine to its state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetClaimReader wires the identity engine's claim lookup.
func (e *Engine) SetClaimReader(claims ClaimReader) { e.claims = claims }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetBounds overrides the container bounds. Zero keeps the current value.
func (e *Engine) SetBounds(maxStats, maxConditions int) {
	if maxStats > 0 {
		e.maxStats = maxStats
	}
	if maxConditions > 0 {
		e.maxConditions = maxConditions
	}
}

// SetActiveAssetStats replaces the enabled statistics of an asset. Stats a
// live condition depends on cannot be removed.
func (e *Engine) SetActiveAssetStats(asset types.AssetID, stats []StatType) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(stats) > e.maxStats {
		return ErrStatTypeLimitReached
	}
	for i := range stats {
		for j := i + 1; j < len(stats); j++ {
			if stats[i].Equal(stats[j]) {
				return ErrDuplicateStatType
			}
		}
	}
	reqs, err := e.state.Requirements(asset)
	if err != nil {
		return err
	}
	for _, cond := range reqs.Conditions {
		if !statEnabled(stats, cond.RequiredStat()) {
			return ErrCannotRemoveStatTypeInUse
		}
	}
	if err := e.state.ActiveStatsPut(asset, stats); err != nil {
		return err
	}
	e.emit(newStatsSetEvent(asset, len(stats)))
	return nil
}

// ActiveAssetStats returns the enabled statistics of the asset.
func (e *Engine) ActiveAssetStats(asset types.AssetID) ([]StatType, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ActiveStats(asset)
}

// BatchUpdateAssetStats applies manual aggregate corrections, e.g. to seed
// investor counts when statistics are first enabled.
func (e *Engine) BatchUpdateAssetStats(asset types.AssetID, stat StatType, updates []StatUpdate) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	active, err := e.state.ActiveStats(asset)
	if err != nil {
		return err
	}
	if !statEnabled(active, stat) {
		return ErrStatTypeMissing
	}
	for _, update := range updates {
		key := update.Bucket.Key()
		if !stat.HasClaim {
			key = totalBucketKey
		}
		if err := e.state.StatValuePut(asset, stat, key, new(big.Int).SetUint64(update.Value)); err != nil {
			return err
		}
	}
	e.emit(newStatsUpdatedEvent(asset, stat, len(updates)))
	return nil
}

// SetTransferCompliance replaces the asset's transfer condition set. Every
// condition's required stat must already be enabled.
func (e *Engine) SetTransferCompliance(asset types.AssetID, conditions []TransferCondition) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(conditions) > e.maxConditions {
		return ErrConditionLimitReached
	}
	active, err := e.state.ActiveStats(asset)
	if err != nil {
		return err
	}
	for _, cond := range conditions {
		if !statEnabled(active, cond.RequiredStat()) {
			return ErrStatTypeMissing
		}
	}
	reqs, err := e.state.Requirements(asset)
	if err != nil {
		return err
	}
	reqs.Conditions = conditions
	if err := e.state.RequirementsPut(asset, reqs); err != nil {
		return err
	}
	e.emit(newComplianceSetEvent(asset, len(conditions)))
	return nil
}

// SetPaused toggles condition evaluation for the asset.
func (e *Engine) SetPaused(asset types.AssetID, paused bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	reqs, err := e.state.Requirements(asset)
	if err != nil {
		return err
	}
	reqs.Paused = paused
	if err := e.state.RequirementsPut(asset, reqs); err != nil {
		return err
	}
	e.emit(newPausedEvent(asset, paused))
	return nil
}

// TransferCompliance returns the asset's condition set and paused flag.
func (e *Engine) TransferCompliance(asset types.AssetID) (*Requirements, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Requirements(asset)
}

// SetEntitiesExempt grants or revokes exemptions from conditions of the
// given stat op and claim type.
func (e *Engine) SetEntitiesExempt(asset types.AssetID, exempt bool, op StatOp, claim types.ClaimType, dids []types.IdentityID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	for _, did := range dids {
		if err := e.state.ExemptPut(asset, op, claim, did, exempt); err != nil {
			return err
		}
	}
	e.emit(newExemptEvent(asset, exempt, len(dids)))
	return nil
}

type transferSides struct {
	from        *types.IdentityID
	to          *types.IdentityID
	amount      *big.Int
	fromBefore  *big.Int
	toBefore    *big.Int
	fromDropped bool
	toRose      bool
}

func makeSides(from, to *types.IdentityID, amount, fromBefore, toBefore *big.Int) transferSides {
	s := transferSides{from: from, to: to, amount: amount, fromBefore: fromBefore, toBefore: toBefore}
	if amount == nil || amount.Sign() == 0 {
		return s
	}
	if from != nil && fromBefore != nil && fromBefore.Cmp(amount) == 0 {
		s.fromDropped = true
	}
	if to != nil && toBefore != nil && toBefore.Sign() == 0 {
		s.toRose = true
	}
	return s
}

// VerifyTransfer evaluates every condition of the asset against the proposed
// movement. from/to are nil for mint/burn. Balances are the pre-transfer
// balances; supply is the current total supply. Every evaluation step charges
// the meter.
func (e *Engine) VerifyTransfer(asset types.AssetID, from, to *types.IdentityID, amount, fromBefore, toBefore, supply *big.Int, meter *WeightMeter) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	reqs, err := e.state.Requirements(asset)
	if err != nil {
		return err
	}
	if reqs.Paused || len(reqs.Conditions) == 0 {
		return nil
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	sides := makeSides(from, to, amount, fromBefore, toBefore)
	for _, cond := range reqs.Conditions {
		if err := meter.Consume(weightCondition); err != nil {
			return err
		}
		ok, err := e.evaluate(asset, cond, sides, supply, meter)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		exempted, err := e.exempted(asset, cond, sides, meter)
		if err != nil {
			return err
		}
		if !exempted {
			return ErrInvalidTransfer
		}
	}
	return nil
}

func (e *Engine) evaluate(asset types.AssetID, cond TransferCondition, sides transferSides, supply *big.Int, meter *WeightMeter) (bool, error) {
	switch cond.Kind {
	case CondMaxInvestorCount:
		if !sides.toRose {
			return true, nil
		}
		if err := meter.Consume(weightStatRead); err != nil {
			return false, err
		}
		current, err := e.state.StatValue(asset, StatType{Op: StatCount}, totalBucketKey)
		if err != nil {
			return false, err
		}
		next := new(big.Int).Add(current, big.NewInt(1))
		if sides.fromDropped {
			next.Sub(next, big.NewInt(1))
		}
		return next.Cmp(new(big.Int).SetUint64(cond.CountMax)) <= 0, nil

	case CondMaxInvestorOwnership:
		if sides.to == nil {
			return true, nil
		}
		next := new(big.Int).Add(sides.toBefore, sides.amount)
		return shareWithin(next, supply, 0, cond.OwnershipMax), nil

	case CondClaimCount:
		bucket := Bucket{HasClaim: true, Value: cond.ClaimValue}
		senderIn, err := e.inBucket(sides.from, cond, bucket, asset, meter)
		if err != nil {
			return false, err
		}
		receiverIn, err := e.inBucket(sides.to, cond, bucket, asset, meter)
		if err != nil {
			return false, err
		}
		if err := meter.Consume(weightStatRead); err != nil {
			return false, err
		}
		current, err := e.state.StatValue(asset, StatType{Op: StatCount, HasClaim: true, Claim: cond.Claim}, bucket.Key())
		if err != nil {
			return false, err
		}
		next := new(big.Int).Set(current)
		if sides.fromDropped && senderIn {
			next.Sub(next, big.NewInt(1))
		}
		if sides.toRose && receiverIn {
			next.Add(next, big.NewInt(1))
		}
		if next.Sign() < 0 {
			next.SetUint64(0)
		}
		if next.Cmp(new(big.Int).SetUint64(cond.Min)) < 0 {
			return false, nil
		}
		if cond.HasMax && next.Cmp(new(big.Int).SetUint64(cond.Max)) > 0 {
			return false, nil
		}
		return true, nil

	case CondClaimOwnership:
		bucket := Bucket{HasClaim: true, Value: cond.ClaimValue}
		senderIn, err := e.inBucket(sides.from, cond, bucket, asset, meter)
		if err != nil {
			return false, err
		}
		receiverIn, err := e.inBucket(sides.to, cond, bucket, asset, meter)
		if err != nil {
			return false, err
		}
		if err := meter.Consume(weightStatRead); err != nil {
			return false, err
		}
		current, err := e.state.StatValue(asset, StatType{Op: StatBalance, HasClaim: true, Claim: cond.Claim}, bucket.Key())
		if err != nil {
			return false, err
		}
		next := new(big.Int).Set(current)
		if senderIn {
			next.Sub(next, sides.amount)
		}
		if receiverIn {
			next.Add(next, sides.amount)
		}
		if next.Sign() < 0 {
			next.SetUint64(0)
		}
		return shareWithin(next, supply, cond.MinShare, cond.MaxShare), nil

	default:
		return true, nil
	}
}

// inBucket reports whether the holder carries the condition's claim with the
// bucket's value. Mint/burn sides (nil) are never in a bucket.
func (e *Engine) inBucket(did *types.IdentityID, cond TransferCondition, bucket Bucket, asset types.AssetID, meter *WeightMeter) (bool, error) {
	if did == nil {
		return false, nil
	}
	if e.claims == nil {
		return false, errNilClaims
	}
	if err := meter.Consume(weightClaimFetch); err != nil {
		return false, err
	}
	claim, ok, err := e.claims.FetchClaim(*did, cond.Claim, asset)
	if err != nil {
		return false, err
	}
	if !ok {
		return !bucket.HasClaim, nil
	}
	return bucket.HasClaim && claim.Value == bucket.Value, nil
}

// shareWithin checks min·supply ≤ value·PermillMax ≤ max·supply using 256-bit
// integer multiply to avoid overflow on 128-bit balances.
func shareWithin(value, supply *big.Int, min, max Permill) bool {
	if supply == nil || supply.Sign() == 0 {
		return true
	}
	v, overflow := uint256.FromBig(value)
	if overflow {
		return false
	}
	s, overflow := uint256.FromBig(supply)
	if overflow {
		return false
	}
	scaled := new(uint256.Int).Mul(v, uint256.NewInt(uint64(PermillMax)))
	lower := new(uint256.Int).Mul(s, uint256.NewInt(uint64(min)))
	upper := new(uint256.Int).Mul(s, uint256.NewInt(uint64(max)))
	if scaled.Lt(lower) {
		return false
	}
	return !scaled.Gt(upper)
}

func (e *Engine) exempted(asset types.AssetID, cond TransferCondition, sides transferSides, meter *WeightMeter) (bool, error) {
	stat := cond.RequiredStat()
	var subject *types.IdentityID
	// Count conditions are satisfied by a sender exemption, balance
	// conditions by a receiver exemption.
	if stat.Op == StatCount {
		subject = sides.from
	} else {
		subject = sides.to
	}
	if subject == nil {
		return false, nil
	}
	if err := meter.Consume(weightExemptProbe); err != nil {
		return false, err
	}
	var claimType types.ClaimType
	if stat.HasClaim {
		claimType = stat.Claim.Type
	}
	return e.state.Exempt(asset, stat.Op, claimType, *subject)
}

// UpdateStats applies the incremental update rule after a committed movement.
// Balances passed are the pre-transfer balances; nil from/to marks mint/burn.
func (e *Engine) UpdateStats(asset types.AssetID, from, to *types.IdentityID, amount, fromBefore, toBefore *big.Int, meter *WeightMeter) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	active, err := e.state.ActiveStats(asset)
	if err != nil {
		return err
	}
	sides := makeSides(from, to, amount, fromBefore, toBefore)
	for _, stat := range active {
		if err := e.updateStat(asset, stat, sides, meter); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) updateStat(asset types.AssetID, stat StatType, sides transferSides, meter *WeightMeter) error {
	switch {
	case stat.Op == StatCount && !stat.HasClaim:
		delta := 0
		if sides.toRose {
			delta++
		}
		if sides.fromDropped {
			delta--
		}
		if delta == 0 {
			return nil
		}
		return e.statAdd(asset, stat, totalBucketKey, big.NewInt(int64(delta)), meter)

	case stat.Op == StatCount && stat.HasClaim:
		cond := TransferCondition{Claim: stat.Claim}
		fromBucket, err := e.holderBucket(sides.from, cond, asset, meter)
		if err != nil {
			return err
		}
		toBucket, err := e.holderBucket(sides.to, cond, asset, meter)
		if err != nil {
			return err
		}
		if sides.fromDropped && sides.toRose && fromBucket == toBucket {
			return nil
		}
		if sides.fromDropped {
			if err := e.statAdd(asset, stat, fromBucket.Key(), big.NewInt(-1), meter); err != nil {
				return err
			}
		}
		if sides.toRose {
			if err := e.statAdd(asset, stat, toBucket.Key(), big.NewInt(1), meter); err != nil {
				return err
			}
		}
		return nil

	case stat.Op == StatBalance && !stat.HasClaim:
		// Pure transfers leave the total unchanged; only mint/burn move it.
		if sides.from == nil && sides.to != nil {
			return e.statAdd(asset, stat, totalBucketKey, sides.amount, meter)
		}
		if sides.to == nil && sides.from != nil {
			return e.statAdd(asset, stat, totalBucketKey, new(big.Int).Neg(sides.amount), meter)
		}
		return nil

	default: // StatBalance keyed by claim
		cond := TransferCondition{Claim: stat.Claim}
		fromBucket, err := e.holderBucket(sides.from, cond, asset, meter)
		if err != nil {
			return err
		}
		toBucket, err := e.holderBucket(sides.to, cond, asset, meter)
		if err != nil {
			return err
		}
		if sides.from != nil && sides.to != nil && fromBucket == toBucket {
			return nil
		}
		if sides.from != nil {
			if err := e.statAdd(asset, stat, fromBucket.Key(), new(big.Int).Neg(sides.amount), meter); err != nil {
				return err
			}
		}
		if sides.to != nil {
			if err := e.statAdd(asset, stat, toBucket.Key(), sides.amount, meter); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e *Engine) holderBucket(did *types.IdentityID, cond TransferCondition, asset types.AssetID, meter *WeightMeter) (Bucket, error) {
	if did == nil {
		return Bucket{}, nil
	}
	if e.claims == nil {
		return Bucket{}, errNilClaims
	}
	if err := meter.Consume(weightClaimFetch); err != nil {
		return Bucket{}, err
	}
	claim, ok, err := e.claims.FetchClaim(*did, cond.Claim, asset)
	if err != nil {
		return Bucket{}, err
	}
	if !ok {
		return Bucket{HasClaim: false}, nil
	}
	return Bucket{HasClaim: true, Value: claim.Value}, nil
}

// statAdd applies a saturating delta to one aggregate bucket.
func (e *Engine) statAdd(asset types.AssetID, stat StatType, bucket string, delta *big.Int, meter *WeightMeter) error {
	if err := meter.Consume(weightStatWrite); err != nil {
		return err
	}
	current, err := e.state.StatValue(asset, stat, bucket)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		next.SetUint64(0)
	}
	return e.state.StatValuePut(asset, stat, bucket, next)
}

// StatValueOf exposes a single aggregate for queries and tests.
func (e *Engine) StatValueOf(asset types.AssetID, stat StatType, bucket Bucket) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	key := bucket.Key()
	if !stat.HasClaim {
		key = totalBucketKey
	}
	return e.state.StatValue(asset, stat, key)
}

func statEnabled(stats []StatType, want StatType) bool {
	for _, s := range stats {
		if s.Equal(want) {
			return true
		}
	}
	return false
}
