package governance

import (
	"math/big"

	"capchain/core/types"
)

// MipState is the lifecycle state of an improvement proposal.
type MipState uint8

const (
	// MipProposed collects deposits and votes.
	MipProposed MipState = iota + 1
	// MipCancelled was withdrawn by its proposer during cool-off.
	MipCancelled
	// MipKilled was terminated by the governance committee.
	MipKilled
	// MipRejected failed its community vote.
	MipRejected
	// MipReferendum passed and carries a live referendum.
	MipReferendum
)

func (s MipState) String() string {
	switch s {
	case MipProposed:
		return "proposed"
	case MipCancelled:
		return "cancelled"
	case MipKilled:
		return "killed"
	case MipRejected:
		return "rejected"
	case MipReferendum:
		return "referendum"
	}
	return "unknown"
}

// Terminal reports whether the proposal can never change state again.
// A proposal in referendum terminates through its referendum instead.
func (s MipState) Terminal() bool {
	switch s {
	case MipCancelled, MipKilled, MipRejected:
		return true
	}
	return false
}

// Beneficiary receives a treasury payment when the referendum executes.
type Beneficiary struct {
	To     types.IdentityID
	Amount *big.Int
}

// Clone returns a deep copy.
func (b Beneficiary) Clone() Beneficiary {
	clone := b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	}
	return clone
}

// Mip is one improvement proposal.
type Mip struct {
	ID            uint64
	Proposer      types.IdentityID
	Call          types.Command
	URL           string
	Description   string
	CoolOffUntil  uint64
	VotingEnd     uint64
	State         MipState
	Beneficiaries []Beneficiary
	AyesStake     *big.Int
	NaysStake     *big.Int
}

// InCoolOff reports whether the proposer-only amendment window is open.
func (m *Mip) InCoolOff(now uint64) bool {
	return now < m.CoolOffUntil
}

// VotingOpen reports whether community votes are accepted.
func (m *Mip) VotingOpen(now uint64) bool {
	return now >= m.CoolOffUntil && now < m.VotingEnd
}

// Clone returns a deep copy.
func (m *Mip) Clone() *Mip {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Call.Payload = append([]byte(nil), m.Call.Payload...)
	clone.Beneficiaries = make([]Beneficiary, len(m.Beneficiaries))
	for i, b := range m.Beneficiaries {
		clone.Beneficiaries[i] = b.Clone()
	}
	if m.AyesStake != nil {
		clone.AyesStake = new(big.Int).Set(m.AyesStake)
	}
	if m.NaysStake != nil {
		clone.NaysStake = new(big.Int).Set(m.NaysStake)
	}
	return &clone
}

// MipVote is one community vote with its locked stake.
type MipVote struct {
	Aye     bool
	Deposit *big.Int
}

// Clone returns a deep copy.
func (v *MipVote) Clone() *MipVote {
	if v == nil {
		return nil
	}
	clone := *v
	if v.Deposit != nil {
		clone.Deposit = new(big.Int).Set(v.Deposit)
	}
	return &clone
}

// ReferendumKind says how the referendum came to exist.
type ReferendumKind uint8

const (
	// ReferendumCommunity passed the regular community vote.
	ReferendumCommunity ReferendumKind = iota + 1
	// ReferendumFastTracked was promoted by the committee mid-vote.
	ReferendumFastTracked
	// ReferendumEmergency skipped the community vote entirely.
	ReferendumEmergency
)

func (k ReferendumKind) String() string {
	switch k {
	case ReferendumCommunity:
		return "community"
	case ReferendumFastTracked:
		return "fast_tracked"
	case ReferendumEmergency:
		return "emergency"
	}
	return "unknown"
}

// ReferendumState is the enactment-side lifecycle.
type ReferendumState uint8

const (
	// ReferendumPending awaits the committee's enact or reject call.
	ReferendumPending ReferendumState = iota + 1
	// ReferendumScheduled is queued for an enactment block.
	ReferendumScheduled
	// ReferendumRejected was refused by the committee.
	ReferendumRejected
	// ReferendumFailedDisbursement could not cover its beneficiaries.
	ReferendumFailedDisbursement
	// ReferendumFailedExecution dispatched and the call failed.
	ReferendumFailedExecution
	// ReferendumExecuted dispatched successfully and paid out.
	ReferendumExecuted
)

func (s ReferendumState) String() string {
	switch s {
	case ReferendumPending:
		return "pending"
	case ReferendumScheduled:
		return "scheduled"
	case ReferendumRejected:
		return "rejected"
	case ReferendumFailedDisbursement:
		return "failed_disbursement"
	case ReferendumFailedExecution:
		return "failed_execution"
	case ReferendumExecuted:
		return "executed"
	}
	return "unknown"
}

// Terminal reports whether the referendum has finished.
func (s ReferendumState) Terminal() bool {
	switch s {
	case ReferendumRejected, ReferendumFailedDisbursement, ReferendumFailedExecution, ReferendumExecuted:
		return true
	}
	return false
}

// Referendum is the enactment record of a passed proposal.
type Referendum struct {
	Mip        uint64
	Kind       ReferendumKind
	State      ReferendumState
	HasEnactAt bool
	EnactAt    uint64
}

// Clone returns a copy.
func (r *Referendum) Clone() *Referendum {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
