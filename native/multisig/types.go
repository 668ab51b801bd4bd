package multisig

import (
	"capchain/core/types"
)

// Multisig is a derived account controlled by a threshold of signer keys.
type Multisig struct {
	Account     types.AccountKey
	Creator     types.IdentityID
	Signers     []types.AccountKey
	Required    uint64
	ProposalSeq uint64
}

// HasSigner reports whether the key is an accepted signer.
func (m *Multisig) HasSigner(key types.AccountKey) bool {
	for _, signer := range m.Signers {
		if signer == key {
			return true
		}
	}
	return false
}

// RejectionThreshold is the rejection count after which no approval path
// remains.
func (m *Multisig) RejectionThreshold() uint64 {
	return uint64(len(m.Signers)) - m.Required + 1
}

// Clone returns a deep copy.
func (m *Multisig) Clone() *Multisig {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Signers = append([]types.AccountKey(nil), m.Signers...)
	return &clone
}

// ProposalStatus is the lifecycle state of a multi-sig proposal.
type ProposalStatus uint8

const (
	// ProposalActive collects votes.
	ProposalActive ProposalStatus = iota + 1
	// ProposalExecutionSuccessful dispatched its call successfully.
	ProposalExecutionSuccessful
	// ProposalExecutionFailed dispatched its call and the call failed.
	ProposalExecutionFailed
	// ProposalRejected accumulated enough rejections to close.
	ProposalRejected
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalActive:
		return "active"
	case ProposalExecutionSuccessful:
		return "execution_successful"
	case ProposalExecutionFailed:
		return "execution_failed"
	case ProposalRejected:
		return "rejected"
	}
	return "unknown"
}

// Proposal is one serialized call put to the signer set.
type Proposal struct {
	ID         uint64
	Creator    types.AccountKey
	Call       types.Command
	HasExpiry  bool
	ExpiresAt  uint64
	AutoClose  bool
	Status     ProposalStatus
	Approvals  uint64
	Rejections uint64
}

// Expired reports whether voting has closed by wall clock. The boundary is
// strict: a vote at expires_at fails, one at expires_at-1 is valid.
func (p *Proposal) Expired(now uint64) bool {
	return p.HasExpiry && now >= p.ExpiresAt
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Call.Payload = append([]byte(nil), p.Call.Payload...)
	return &clone
}

// VoteKind records one signer's stance on a proposal.
type VoteKind uint8

const (
	// VoteNone means the signer has not voted.
	VoteNone VoteKind = iota
	// VoteApprove counts toward the approval threshold.
	VoteApprove
	// VoteReject counts toward the rejection threshold.
	VoteReject
)
