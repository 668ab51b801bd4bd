package compliance

import (
	"capchain/core/types"
)

// StatOp discriminates counting statistics from balance-sum statistics.
type StatOp uint8

const (
	// StatCount counts investors (holders with a non-zero balance).
	StatCount StatOp = iota + 1
	// StatBalance sums holder balances.
	StatBalance
)

func (o StatOp) String() string {
	switch o {
	case StatCount:
		return "count"
	case StatBalance:
		return "balance"
	default:
		return "unknown"
	}
}

// StatType is one enabled statistic on an asset: a count or balance
// aggregate, optionally bucketed by a claim-type/issuer pair.
type StatType struct {
	Op       StatOp
	HasClaim bool
	Claim    types.ClaimKey
}

// Equal reports whether two stat types address the same aggregate.
func (s StatType) Equal(o StatType) bool { return s == o }

// Bucket names one aggregation bucket within a claim-keyed statistic.
// For boolean claims the buckets are "with claim" and "without claim"; for
// valued claims (jurisdiction) each value has its own "with" bucket.
type Bucket struct {
	HasClaim bool
	Value    string
}

// totalBucketKey is the single bucket of an unkeyed statistic.
const totalBucketKey = "all"

// Key renders the bucket as a storage-stable string.
func (b Bucket) Key() string {
	if b.HasClaim {
		return "y:" + b.Value
	}
	return "n"
}

// Permill is a fraction in parts per million, used by ownership conditions.
type Permill uint32

// PermillMax is the whole (100%).
const PermillMax Permill = 1_000_000

// ConditionKind enumerates the supported transfer conditions.
type ConditionKind uint8

const (
	// CondMaxInvestorCount caps the total investor count.
	CondMaxInvestorCount ConditionKind = iota + 1
	// CondMaxInvestorOwnership caps one holder's share of the supply.
	CondMaxInvestorOwnership
	// CondClaimCount bounds the investor count within a claim bucket.
	CondClaimCount
	// CondClaimOwnership bounds a claim bucket's share of the supply.
	CondClaimOwnership
)

func (k ConditionKind) String() string {
	switch k {
	case CondMaxInvestorCount:
		return "max_investor_count"
	case CondMaxInvestorOwnership:
		return "max_investor_ownership"
	case CondClaimCount:
		return "claim_count"
	case CondClaimOwnership:
		return "claim_ownership"
	default:
		return "unknown"
	}
}

// TransferCondition is one rule evaluated on every movement of the asset.
// Only the fields relevant to the kind carry meaning.
type TransferCondition struct {
	Kind ConditionKind

	// CondMaxInvestorCount
	CountMax uint64

	// CondMaxInvestorOwnership
	OwnershipMax Permill

	// CondClaimCount / CondClaimOwnership
	Claim      types.ClaimKey
	ClaimValue string
	Min        uint64
	Max        uint64
	HasMax     bool
	MinShare   Permill
	MaxShare   Permill
}

// RequiredStat returns the stat type the condition reads.
func (c TransferCondition) RequiredStat() StatType {
	switch c.Kind {
	case CondMaxInvestorCount:
		return StatType{Op: StatCount}
	case CondMaxInvestorOwnership:
		return StatType{Op: StatBalance}
	case CondClaimCount:
		return StatType{Op: StatCount, HasClaim: true, Claim: c.Claim}
	case CondClaimOwnership:
		return StatType{Op: StatBalance, HasClaim: true, Claim: c.Claim}
	default:
		return StatType{}
	}
}

// Requirements is the full transfer-compliance configuration of one asset.
type Requirements struct {
	Paused     bool
	Conditions []TransferCondition
}

// Clone returns a deep copy of the requirements.
func (r *Requirements) Clone() *Requirements {
	if r == nil {
		return nil
	}
	return &Requirements{
		Paused:     r.Paused,
		Conditions: append([]TransferCondition(nil), r.Conditions...),
	}
}

// StatUpdate is one manual correction applied by the asset agent.
type StatUpdate struct {
	Bucket Bucket
	Value  uint64
}
