package types

// ClaimType enumerates the attestation categories compliance conditions can
// key off. The set mirrors common regulated-market attestations.
type ClaimType uint8

const (
	// ClaimAccredited marks accredited-investor status.
	ClaimAccredited ClaimType = iota + 1
	// ClaimAffiliate marks issuer affiliates.
	ClaimAffiliate
	// ClaimJurisdiction carries a country code in the claim value.
	ClaimJurisdiction
	// ClaimKYC marks completed know-your-customer checks.
	ClaimKYC
	// ClaimExempted marks identities exempted from ownership conditions.
	ClaimExempted
)

func (c ClaimType) String() string {
	switch c {
	case ClaimAccredited:
		return "accredited"
	case ClaimAffiliate:
		return "affiliate"
	case ClaimJurisdiction:
		return "jurisdiction"
	case ClaimKYC:
		return "kyc"
	case ClaimExempted:
		return "exempted"
	default:
		return "unknown"
	}
}

// Claim is a typed attestation about an identity, issued by a trusted party
// and scoped to one asset. Value carries claim-specific data (e.g. the
// jurisdiction code); empty for boolean claims.
type Claim struct {
	Type   ClaimType
	Issuer IdentityID
	Scope  AssetID
	Value  string
}

// ClaimKey identifies the claim a statistic or condition is keyed by: the
// claim type together with its trusted issuer.
type ClaimKey struct {
	Type   ClaimType
	Issuer IdentityID
}
