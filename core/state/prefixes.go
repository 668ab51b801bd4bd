package state

import "encoding/binary"

// Storage key prefixes, one namespace per module. Keys are
// MakeKey(prefix, parts...) and therefore keccak-uniform; the prefix only
// has to be unique, not compact.
const (
	prefixIdentityRecord = "id/rec"
	prefixKeyRecord      = "id/key"
	prefixIdentityNonce  = "id/nonce"
	prefixAuthSeq        = "id/auth-seq"
	prefixAuth           = "id/auth"
	prefixClaim          = "id/claim"
	prefixCDDProvider    = "id/cdd"

	prefixPortfolioName     = "pf/name"
	prefixPortfolioNameIdx  = "pf/name-idx"
	prefixPortfolioNext     = "pf/next"
	prefixPortfolioBalance  = "pf/bal"
	prefixPortfolioLocked   = "pf/lock"
	prefixPortfolioAssets   = "pf/assets"
	prefixPortfolioNFTs     = "pf/nft"
	prefixPortfolioNFTLock  = "pf/nft-lock"
	prefixPortfolioCustody  = "pf/cust"
	prefixPortfolioPreApp   = "pf/preapp"
	prefixAssetSupply       = "asset/supply"
	prefixAssetOwner        = "asset/owner"
	prefixIdentityAssetBal  = "asset/holder-bal"

	prefixActiveStats = "cmp/active"
	prefixStatValue   = "cmp/stat"
	prefixRequirement = "cmp/req"
	prefixExempt      = "cmp/exempt"

	prefixCheckpointCount   = "cp/count"
	prefixCheckpointTS      = "cp/ts"
	prefixCheckpointSupply  = "cp/supply"
	prefixCheckpointBalance = "cp/bal"
	prefixBalanceUpdates    = "cp/bal-updates"
	prefixScheduleSeq       = "cp/sched-seq"
	prefixSchedules         = "cp/scheds"
	prefixSchedulePoints    = "cp/points"
	prefixScheduledAssets   = "cp/sched-assets"

	prefixCAAgent        = "ca/agent"
	prefixCATargets      = "ca/targets"
	prefixCAWHT          = "ca/wht"
	prefixCAWHTDid       = "ca/wht-did"
	prefixCACount        = "ca/count"
	prefixCARecord       = "ca/rec"
	prefixCADocuments    = "ca/docs"
	prefixCADocLinks     = "ca/doc-links"
	prefixCABallot       = "ca/ballot"
	prefixCABallotVote   = "ca/ballot-vote"
	prefixCABallotRes    = "ca/ballot-res"
	prefixCADistribution = "ca/dist"
	prefixCADistClaimed  = "ca/dist-claimed"

	prefixVenueSeq       = "stl/venue-seq"
	prefixVenue          = "stl/venue"
	prefixVenueFiltering = "stl/filter"
	prefixVenueAllowed   = "stl/allowed"
	prefixInstructionSeq = "stl/instr-seq"
	prefixInstruction    = "stl/instr"
	prefixLegs           = "stl/legs"
	prefixLegStatus      = "stl/leg-status"
	prefixAffirmsPending = "stl/affirms"
	prefixAffirmed       = "stl/affirmed"
	prefixMediatorAffirm = "stl/mediator"
	prefixReceiptUsed    = "stl/receipt-used"
	prefixLegReceipt     = "stl/leg-receipt"
	prefixLegProofs      = "stl/leg-proofs"
	prefixScheduledInstr = "stl/sched"

	prefixMultisig      = "ms/rec"
	prefixMultisigNonce = "ms/nonce"
	prefixMsProposal    = "ms/prop"
	prefixMsVote        = "ms/vote"

	prefixMipSeq        = "gov/seq"
	prefixMip           = "gov/mip"
	prefixMipDepositors = "gov/depositors"
	prefixMipDeposit    = "gov/deposit"
	prefixMipVoters     = "gov/voters"
	prefixMipVote       = "gov/vote"
	prefixReferendum    = "gov/ref"
	prefixCommittee     = "gov/committee"
	prefixEnactPeriod   = "gov/enact-period"
	prefixScheduledRefs = "gov/sched"

	prefixNativeBalance  = "bank/balance"
	prefixNativeReserved = "bank/reserved"
	prefixTreasury       = "bank/treasury"

	prefixStorageVersion = "meta/version"
)

func u64b(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func u32b(v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return buf[:]
}
