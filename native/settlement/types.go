package settlement

import (
	"math/big"

	"capchain/core/types"
)

// VenueType classifies a settlement venue.
type VenueType uint8

const (
	// VenueOther is an uncategorised venue.
	VenueOther VenueType = iota + 1
	// VenueDistribution handles primary distributions.
	VenueDistribution
	// VenueSto handles security token offerings.
	VenueSto
	// VenueExchange handles secondary trading.
	VenueExchange
)

func (v VenueType) String() string {
	switch v {
	case VenueOther:
		return "other"
	case VenueDistribution:
		return "distribution"
	case VenueSto:
		return "sto"
	case VenueExchange:
		return "exchange"
	}
	return "unknown"
}

// Venue is a permissioned scope instructions settle under. Signers are the
// off-chain keys whose receipts the venue accepts.
type Venue struct {
	Creator types.IdentityID
	Signers []types.AccountKey
	Kind    VenueType
	Details string
}

// HasSigner reports whether the key is an authorized venue signer.
func (v *Venue) HasSigner(key types.AccountKey) bool {
	for _, signer := range v.Signers {
		if signer == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (v *Venue) Clone() *Venue {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Signers = append([]types.AccountKey(nil), v.Signers...)
	return &clone
}

// SettlementType says when an instruction executes.
type SettlementType uint8

const (
	// SettleOnAffirmation executes in the call completing affirmation.
	SettleOnAffirmation SettlementType = iota + 1
	// SettleOnBlock queues execution for a specific block.
	SettleOnBlock
)

// InstructionStatus is the stored lifecycle state. Executed instructions are
// deleted; lookups then report unknown.
type InstructionStatus uint8

const (
	// StatusUnknown marks deleted or never-created instructions.
	StatusUnknown InstructionStatus = iota
	// StatusPending marks instructions collecting affirmations.
	StatusPending
	// StatusFailed marks instructions whose execution failed.
	StatusFailed
)

func (s InstructionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LegKind discriminates how a leg is backed.
type LegKind uint8

const (
	// LegOnChain moves ledger balances backed by a portfolio lock.
	LegOnChain LegKind = iota + 1
	// LegOffChain is paid by an off-chain signed receipt.
	LegOffChain
	// LegConfidential carries encrypted amounts and a proof chain.
	LegConfidential
)

// LegStatus tracks one leg through affirmation.
type LegStatus uint8

const (
	// LegPendingLock awaits the sender's affirmation.
	LegPendingLock LegStatus = iota + 1
	// LegExecutionPending is affirmed and locked, ready to execute.
	LegExecutionPending
	// LegExecutionToBeSkipped is settled off-chain by a receipt.
	LegExecutionToBeSkipped
)

// Leg is one asset movement within an instruction.
type Leg struct {
	Kind        LegKind
	From        types.PortfolioID
	To          types.PortfolioID
	Asset       types.AssetID
	Amount      *big.Int
	HasMediator bool
	Mediator    types.IdentityID
}

// Clone returns a deep copy.
func (l Leg) Clone() Leg {
	clone := l
	if l.Amount != nil {
		clone.Amount = new(big.Int).Set(l.Amount)
	}
	return clone
}

// Instruction is the stored exchange declaration. Legs and per-leg statuses
// are stored separately.
type Instruction struct {
	ID           uint64
	Venue        uint64
	Status       InstructionStatus
	SettleType   SettlementType
	SettleBlock  uint64
	CreatedAt    uint64
	HasTradeDate bool
	TradeDate    uint64
	HasValueDate bool
	ValueDate    uint64
	Memo         string
}

// Clone returns a copy.
func (in *Instruction) Clone() *Instruction {
	if in == nil {
		return nil
	}
	clone := *in
	return &clone
}

// ReceiptDetails is the caller-supplied proof that a leg was paid off-chain.
type ReceiptDetails struct {
	UID       uint64
	LegIndex  uint32
	Signer    types.AccountKey
	Signature []byte
	Metadata  string
}

// ProofStage orders the confidential-leg proof chain.
type ProofStage uint8

const (
	// StageNone means no proof has been posted.
	StageNone ProofStage = iota
	// StageSenderInitialized holds the sender's encrypted amount proof.
	StageSenderInitialized
	// StageReceiverFinalized adds the receiver's confirmation.
	StageReceiverFinalized
	// StageMediatorJustified completes the chain.
	StageMediatorJustified
)

// LegProofs stores the latest proof per role for one confidential leg.
type LegProofs struct {
	Stage         ProofStage
	SenderProof   []byte
	ReceiverProof []byte
	MediatorProof []byte
}

// Clone returns a deep copy.
func (p *LegProofs) Clone() *LegProofs {
	if p == nil {
		return nil
	}
	clone := *p
	clone.SenderProof = append([]byte(nil), p.SenderProof...)
	clone.ReceiverProof = append([]byte(nil), p.ReceiverProof...)
	clone.MediatorProof = append([]byte(nil), p.MediatorProof...)
	return &clone
}
