package identity

import (
	"capchain/core/types"
)

// Record is the on-chain identity: one primary key plus a set of secondary
// keys with scoped permissions. Secondary keys are kept sorted by key bytes
// so lookups and encodings stay deterministic.
type Record struct {
	Primary   types.AccountKey
	Secondary []SecondaryKey
	Frozen    bool
}

// SecondaryKey pairs an account key with the permissions it was granted.
type SecondaryKey struct {
	Key   types.AccountKey
	Perms types.Permissions
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := &Record{Primary: r.Primary, Frozen: r.Frozen}
	clone.Secondary = append([]SecondaryKey(nil), r.Secondary...)
	return clone
}

// SecondaryIndex returns the position of the key in the secondary set, or -1.
func (r *Record) SecondaryIndex(key types.AccountKey) int {
	for i := range r.Secondary {
		if r.Secondary[i].Key == key {
			return i
		}
	}
	return -1
}

// KeyRecord maps an account key back to the identity it signs for.
type KeyRecord struct {
	DID       types.IdentityID
	IsPrimary bool
}

// AuthorizationKind tags the typed variants of two-step authorizations.
type AuthorizationKind uint8

const (
	// AuthTransferTicker transfers asset ownership of a ticker.
	AuthTransferTicker AuthorizationKind = iota + 1
	// AuthTransferCorporateActionAgent delegates corporate-action agency.
	AuthTransferCorporateActionAgent
	// AuthPortfolioCustody transfers custody of one portfolio.
	AuthPortfolioCustody
	// AuthJoinIdentity invites a key to join an identity as secondary.
	AuthJoinIdentity
	// AuthRotatePrimaryKey approves rebinding the identity to a new key.
	AuthRotatePrimaryKey
	// AuthAttestPrimaryKeyRotation is the CDD provider's attestation that a
	// rotation may proceed.
	AuthAttestPrimaryKeyRotation
	// AuthMultisigSigner invites a key to become a multi-sig signer.
	AuthMultisigSigner
)

func (k AuthorizationKind) String() string {
	switch k {
	case AuthTransferTicker:
		return "transfer_ticker"
	case AuthTransferCorporateActionAgent:
		return "transfer_caa"
	case AuthPortfolioCustody:
		return "portfolio_custody"
	case AuthJoinIdentity:
		return "join_identity"
	case AuthRotatePrimaryKey:
		return "rotate_primary_key"
	case AuthAttestPrimaryKeyRotation:
		return "attest_rotation"
	case AuthMultisigSigner:
		return "multisig_signer"
	default:
		return "unknown"
	}
}

// AuthorizationData carries the kind-specific payload of an authorization.
// Only the fields relevant to the kind are populated.
type AuthorizationData struct {
	Kind      AuthorizationKind
	Ticker    types.Ticker
	Portfolio types.PortfolioID
	Perms     types.Permissions
	Multisig  types.AccountKey
}

// Authorization is a single-use grant addressed to a signatory. It expires at
// Expiry (unix milliseconds) when HasExpiry is set.
type Authorization struct {
	ID        uint64
	From      types.IdentityID
	Target    types.Signatory
	Data      AuthorizationData
	HasExpiry bool
	Expiry    uint64
}

// Clone returns a deep copy of the authorization.
func (a *Authorization) Clone() *Authorization {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Data.Perms.Assets.Elems = append([]types.AssetID(nil), a.Data.Perms.Assets.Elems...)
	clone.Data.Perms.Extrinsics.Elems = append([]types.PalletExtrinsic(nil), a.Data.Perms.Extrinsics.Elems...)
	clone.Data.Perms.Portfolios.Elems = append([]types.PortfolioID(nil), a.Data.Perms.Portfolios.Elems...)
	return &clone
}
