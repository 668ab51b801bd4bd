package corporate

import (
	"bytes"
	"math/big"
	"sort"

	"capchain/core/types"
)

// CAKind classifies a corporate action.
type CAKind uint8

const (
	// KindPredictableBenefit is a benefit with a known amount (dividend).
	KindPredictableBenefit CAKind = iota + 1
	// KindUnpredictableBenefit is a benefit with an amount known late.
	KindUnpredictableBenefit
	// KindIssuerNotice is an announcement, optionally with a ballot.
	KindIssuerNotice
	// KindReorganization covers splits, mergers and the like.
	KindReorganization
	// KindOther is a catch-all.
	KindOther
)

func (k CAKind) String() string {
	switch k {
	case KindPredictableBenefit:
		return "predictable_benefit"
	case KindUnpredictableBenefit:
		return "unpredictable_benefit"
	case KindIssuerNotice:
		return "issuer_notice"
	case KindReorganization:
		return "reorganization"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// IsBenefit reports whether the kind may carry a capital distribution.
func (k CAKind) IsBenefit() bool {
	return k == KindPredictableBenefit || k == KindUnpredictableBenefit
}

// TargetTreatment says how the target identity list is interpreted.
type TargetTreatment uint8

const (
	// TreatmentInclude targets exactly the listed identities.
	TreatmentInclude TargetTreatment = iota + 1
	// TreatmentExclude targets everyone but the listed identities. An
	// empty exclusion list targets everyone.
	TreatmentExclude
)

// TargetIdentities scopes a corporate action to a set of holders. The list
// is kept sorted and deduplicated so membership is a binary search.
type TargetIdentities struct {
	Identities []types.IdentityID
	Treatment  TargetTreatment
}

// EveryoneTargets targets all holders.
func EveryoneTargets() TargetIdentities {
	return TargetIdentities{Treatment: TreatmentExclude}
}

// Normalize sorts and deduplicates the identity list.
func (t TargetIdentities) Normalize() TargetIdentities {
	ids := append([]types.IdentityID(nil), t.Identities...)
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	dedup := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		dedup = append(dedup, id)
	}
	return TargetIdentities{Identities: dedup, Treatment: t.Treatment}
}

// Targets reports whether the identity is covered.
func (t TargetIdentities) Targets(did types.IdentityID) bool {
	idx := sort.Search(len(t.Identities), func(i int) bool {
		return bytes.Compare(t.Identities[i][:], did[:]) >= 0
	})
	listed := idx < len(t.Identities) && t.Identities[idx] == did
	if t.Treatment == TreatmentInclude {
		return listed
	}
	return !listed
}

// Clone returns a deep copy.
func (t TargetIdentities) Clone() TargetIdentities {
	return TargetIdentities{
		Identities: append([]types.IdentityID(nil), t.Identities...),
		Treatment:  t.Treatment,
	}
}

// Tax is a withholding fraction in parts per million.
type Tax uint32

// TaxMax is full withholding (100%).
const TaxMax Tax = 1_000_000

// DidTax binds a withholding override to one identity.
type DidTax struct {
	DID types.IdentityID
	Tax Tax
}

func sortDidTaxes(taxes []DidTax) {
	sort.Slice(taxes, func(i, j int) bool {
		return bytes.Compare(taxes[i].DID[:], taxes[j].DID[:]) < 0
	})
}

func lookupDidTax(taxes []DidTax, did types.IdentityID) (Tax, bool) {
	idx := sort.Search(len(taxes), func(i int) bool {
		return bytes.Compare(taxes[i].DID[:], did[:]) >= 0
	})
	if idx < len(taxes) && taxes[idx].DID == did {
		return taxes[idx].Tax, true
	}
	return 0, false
}

// RecordDateSpecKind discriminates how a record date is supplied.
type RecordDateSpecKind uint8

const (
	// SpecScheduled creates a fresh one-shot schedule at the timestamp.
	SpecScheduled RecordDateSpecKind = iota + 1
	// SpecExistingSchedule pins an already pinned schedule.
	SpecExistingSchedule
	// SpecExisting uses a checkpoint that already exists.
	SpecExisting
)

// RecordDateSpec is the caller-supplied record date request.
type RecordDateSpec struct {
	Kind       RecordDateSpecKind
	Timestamp  uint64
	ScheduleID uint64
	Checkpoint uint64
}

// CheckpointSourceKind says where a resolved record date draws balances from.
type CheckpointSourceKind uint8

const (
	// SourceExisting points at a concrete checkpoint id.
	SourceExisting CheckpointSourceKind = iota + 1
	// SourceScheduled points at a pinned schedule whose firing at Date
	// produces the checkpoint.
	SourceScheduled
)

// RecordDate is a resolved record date stored on the corporate action.
type RecordDate struct {
	Date       uint64
	Kind       CheckpointSourceKind
	Checkpoint uint64
	ScheduleID uint64
}

// CorporateAction is the stored declaration.
type CorporateAction struct {
	Kind          CAKind
	DeclDate      uint64
	HasRecordDate bool
	RecordDate    RecordDate
	Details       string
	Targets       TargetIdentities
	DefaultWHT    Tax
	DidWHT        []DidTax
}

// TaxOf returns the withholding applied to the identity.
func (ca *CorporateAction) TaxOf(did types.IdentityID) Tax {
	if tax, ok := lookupDidTax(ca.DidWHT, did); ok {
		return tax
	}
	return ca.DefaultWHT
}

// Clone returns a deep copy.
func (ca *CorporateAction) Clone() *CorporateAction {
	if ca == nil {
		return nil
	}
	clone := *ca
	clone.Targets = ca.Targets.Clone()
	clone.DidWHT = append([]DidTax(nil), ca.DidWHT...)
	return &clone
}

// Document is one entry of an asset's document registry.
type Document struct {
	Name        string
	URI         string
	ContentHash []byte
}

// Motion is one question on a ballot.
type Motion struct {
	Title   string
	InfoURI string
	Choices []string
}

// BallotMeta describes a ballot's questions.
type BallotMeta struct {
	Title   string
	Motions []Motion
}

// ChoiceCount sums choices across motions; votes are flattened in motion
// order.
func (m BallotMeta) ChoiceCount() int {
	total := 0
	for _, motion := range m.Motions {
		total += len(motion.Choices)
	}
	return total
}

// Clone returns a deep copy.
func (m BallotMeta) Clone() BallotMeta {
	motions := make([]Motion, len(m.Motions))
	for i, motion := range m.Motions {
		motions[i] = Motion{
			Title:   motion.Title,
			InfoURI: motion.InfoURI,
			Choices: append([]string(nil), motion.Choices...),
		}
	}
	return BallotMeta{Title: m.Title, Motions: motions}
}

// Ballot is a vote attached to an issuer-notice corporate action.
type Ballot struct {
	Start uint64
	End   uint64
	Meta  BallotMeta
	RCV   bool
}

// Clone returns a deep copy.
func (b *Ballot) Clone() *Ballot {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Meta = b.Meta.Clone()
	return &clone
}

// BallotVote is one voter's flattened choice weights.
type BallotVote struct {
	Powers []*big.Int
}

// Clone returns a deep copy.
func (v *BallotVote) Clone() *BallotVote {
	if v == nil {
		return nil
	}
	powers := make([]*big.Int, len(v.Powers))
	for i, p := range v.Powers {
		if p != nil {
			powers[i] = new(big.Int).Set(p)
		}
	}
	return &BallotVote{Powers: powers}
}

// Distribution is a capital distribution attached to a benefit corporate
// action.
type Distribution struct {
	From      types.PortfolioID
	Currency  types.AssetID
	PerShare  *big.Int
	Amount    *big.Int
	Remaining *big.Int
	Reclaimed bool
	PaymentAt uint64
	HasExpiry bool
	ExpiresAt uint64
}

// Clone returns a deep copy.
func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return nil
	}
	clone := *d
	if d.PerShare != nil {
		clone.PerShare = new(big.Int).Set(d.PerShare)
	}
	if d.Amount != nil {
		clone.Amount = new(big.Int).Set(d.Amount)
	}
	if d.Remaining != nil {
		clone.Remaining = new(big.Int).Set(d.Remaining)
	}
	return &clone
}

// Expired reports whether the claim window has closed.
func (d *Distribution) Expired(now uint64) bool {
	return d.HasExpiry && now >= d.ExpiresAt
}
