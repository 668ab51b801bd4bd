package core

import (
	"errors"
	"math/big"

	"capchain/core/state"
	"capchain/core/types"
	"capchain/native/compliance"
	"capchain/native/corporate"
	"capchain/native/governance"
	"capchain/native/identity"
	"capchain/native/portfolio"
	"capchain/native/settlement"
)

// ErrNotAssetOwner is returned when a compliance command originates from an
// identity that does not own the asset.
var ErrNotAssetOwner = errors.New("ledger: caller does not own asset")

// Every exported method in this file is one externally-submittable command:
// it resolves the origin key to an identity, checks the call permission and
// runs the engine operation inside a single transaction.

// --- identity (C1) ---

func (l *Ledger) AddAuthorization(origin types.AccountKey, target types.Signatory, data identity.AuthorizationData, hasExpiry bool, expiry uint64) (uint64, error) {
	var id uint64
	err := l.apply(origin, "identity", "add_authorization", func(caller types.IdentityID) error {
		var err error
		id, err = l.identity.AddAuthorization(caller, target, data, hasExpiry, expiry)
		return err
	})
	return id, err
}

func (l *Ledger) RevokeAuthorization(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "identity", "revoke_authorization", func(caller types.IdentityID) error {
		return l.identity.RevokeAuthorization(caller, id)
	})
}

// JoinIdentityAsKey accepts a join invitation. The origin key is unlinked by
// definition, so no origin resolution happens.
func (l *Ledger) JoinIdentityAsKey(origin types.AccountKey, authID uint64) (types.IdentityID, error) {
	var did types.IdentityID
	err := l.applyKey(origin, func(key types.AccountKey) error {
		var err error
		did, err = l.identity.JoinIdentityAsKey(key, authID)
		return err
	})
	return did, err
}

func (l *Ledger) AddSecondaryKeys(origin types.AccountKey, items []identity.SecondaryKey) error {
	return l.apply(origin, "identity", "add_secondary_keys", func(caller types.IdentityID) error {
		return l.identity.AddSecondaryKeys(caller, origin, items)
	})
}

func (l *Ledger) RemoveSecondaryKeys(origin types.AccountKey, keys []types.AccountKey) error {
	return l.apply(origin, "identity", "remove_secondary_keys", func(caller types.IdentityID) error {
		return l.identity.RemoveSecondaryKeys(caller, origin, keys)
	})
}

func (l *Ledger) SetPermissions(origin types.AccountKey, key types.AccountKey, perms types.Permissions) error {
	return l.apply(origin, "identity", "set_permissions", func(caller types.IdentityID) error {
		return l.identity.SetPermissions(caller, origin, key, perms)
	})
}

func (l *Ledger) FreezeSecondaryKeys(origin types.AccountKey) error {
	return l.apply(origin, "identity", "freeze_secondary_keys", func(caller types.IdentityID) error {
		return l.identity.FreezeSecondaryKeys(caller, origin)
	})
}

func (l *Ledger) UnfreezeSecondaryKeys(origin types.AccountKey) error {
	return l.apply(origin, "identity", "unfreeze_secondary_keys", func(caller types.IdentityID) error {
		return l.identity.UnfreezeSecondaryKeys(caller, origin)
	})
}

// RotatePrimaryKey rebinds an identity to the origin key. The new key holds
// both the owner's and the CDD provider's authorizations.
func (l *Ledger) RotatePrimaryKey(origin types.AccountKey, ownerAuthID, cddAuthID uint64) error {
	return l.applyKey(origin, func(key types.AccountKey) error {
		return l.identity.RotatePrimaryKey(key, ownerAuthID, cddAuthID)
	})
}

func (l *Ledger) AddClaim(origin types.AccountKey, target types.IdentityID, claimType types.ClaimType, scope types.AssetID, value string) error {
	return l.apply(origin, "identity", "add_claim", func(caller types.IdentityID) error {
		return l.identity.AddClaim(caller, target, claimType, scope, value)
	})
}

func (l *Ledger) RevokeClaim(origin types.AccountKey, target types.IdentityID, claimType types.ClaimType, scope types.AssetID) error {
	return l.apply(origin, "identity", "revoke_claim", func(caller types.IdentityID) error {
		return l.identity.RevokeClaim(caller, target, claimType, scope)
	})
}

func (l *Ledger) CDDRegisterIdentity(origin types.AccountKey, primary types.AccountKey) (types.IdentityID, error) {
	var did types.IdentityID
	err := l.apply(origin, "identity", "cdd_register_identity", func(caller types.IdentityID) error {
		var err error
		did, err = l.identity.CDDRegisterIdentity(caller, primary)
		return err
	})
	return did, err
}

// AcceptMultisigSigner consumes a signer invitation and activates the key on
// the multisig. Invited keys need not be linked to any identity.
func (l *Ledger) AcceptMultisigSigner(origin types.AccountKey, authID uint64) error {
	return l.applyKey(origin, func(key types.AccountKey) error {
		auth, err := l.identity.ConsumeAuthorization(types.IdentityID{}, key, authID, identity.AuthMultisigSigner)
		if err != nil {
			return err
		}
		return l.multisig.SignerAccepted(auth.Data.Multisig, key)
	})
}

// --- portfolio (C2) ---

func (l *Ledger) CreatePortfolio(origin types.AccountKey, name string) (uint64, error) {
	var number uint64
	err := l.apply(origin, "portfolio", "create_portfolio", func(caller types.IdentityID) error {
		var err error
		number, err = l.portfolio.CreatePortfolio(caller, name)
		return err
	})
	return number, err
}

func (l *Ledger) DeletePortfolio(origin types.AccountKey, pid types.PortfolioID) error {
	return l.apply(origin, "portfolio", "delete_portfolio", func(caller types.IdentityID) error {
		if err := l.identity.CheckPortfolioPermission(caller, origin, pid); err != nil {
			return err
		}
		return l.portfolio.DeletePortfolio(caller, pid)
	})
}

func (l *Ledger) RenamePortfolio(origin types.AccountKey, pid types.PortfolioID, newName string) error {
	return l.apply(origin, "portfolio", "rename_portfolio", func(caller types.IdentityID) error {
		if err := l.identity.CheckPortfolioPermission(caller, origin, pid); err != nil {
			return err
		}
		return l.portfolio.RenamePortfolio(caller, pid, newName)
	})
}

func (l *Ledger) MoveFunds(origin types.AccountKey, from, to types.PortfolioID, funds []portfolio.Fund) error {
	return l.apply(origin, "portfolio", "move_funds", func(caller types.IdentityID) error {
		if err := l.identity.CheckPortfolioPermission(caller, origin, from); err != nil {
			return err
		}
		if err := l.identity.CheckPortfolioPermission(caller, origin, to); err != nil {
			return err
		}
		return l.portfolio.MoveFunds(caller, from, to, funds)
	})
}

func (l *Ledger) AcceptPortfolioCustody(origin types.AccountKey, authID uint64) error {
	return l.apply(origin, "portfolio", "accept_portfolio_custody", func(caller types.IdentityID) error {
		return l.portfolio.AcceptCustody(caller, origin, authID)
	})
}

func (l *Ledger) QuitPortfolioCustody(origin types.AccountKey, pid types.PortfolioID) error {
	return l.apply(origin, "portfolio", "quit_portfolio_custody", func(caller types.IdentityID) error {
		return l.portfolio.QuitCustody(caller, pid)
	})
}

func (l *Ledger) PreApprovePortfolio(origin types.AccountKey, pid types.PortfolioID, asset types.AssetID) error {
	return l.apply(origin, "portfolio", "pre_approve_portfolio", func(caller types.IdentityID) error {
		return l.portfolio.PreApprove(caller, pid, asset)
	})
}

func (l *Ledger) RemovePortfolioPreApproval(origin types.AccountKey, pid types.PortfolioID, asset types.AssetID) error {
	return l.apply(origin, "portfolio", "remove_portfolio_pre_approval", func(caller types.IdentityID) error {
		return l.portfolio.RemovePreApproval(caller, pid, asset)
	})
}

// --- compliance (C3) ---

func (l *Ledger) requireAssetOwner(caller types.IdentityID, asset types.AssetID) error {
	owner, ok, err := l.state.AssetOwner(asset)
	if err != nil {
		return err
	}
	if !ok || owner != caller {
		return ErrNotAssetOwner
	}
	return nil
}

func (l *Ledger) SetActiveAssetStats(origin types.AccountKey, asset types.AssetID, stats []compliance.StatType) error {
	return l.apply(origin, "compliance", "set_active_asset_stats", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		return l.compliance.SetActiveAssetStats(asset, stats)
	})
}

func (l *Ledger) BatchUpdateAssetStats(origin types.AccountKey, asset types.AssetID, stat compliance.StatType, updates []compliance.StatUpdate) error {
	return l.apply(origin, "compliance", "batch_update_asset_stats", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		return l.compliance.BatchUpdateAssetStats(asset, stat, updates)
	})
}

func (l *Ledger) SetAssetTransferCompliance(origin types.AccountKey, asset types.AssetID, conditions []compliance.TransferCondition) error {
	return l.apply(origin, "compliance", "set_asset_transfer_compliance", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		return l.compliance.SetTransferCompliance(asset, conditions)
	})
}

func (l *Ledger) SetCompliancePaused(origin types.AccountKey, asset types.AssetID, paused bool) error {
	return l.apply(origin, "compliance", "set_compliance_paused", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		return l.compliance.SetPaused(asset, paused)
	})
}

func (l *Ledger) SetEntitiesExempt(origin types.AccountKey, asset types.AssetID, exempt bool, op compliance.StatOp, claim types.ClaimType, dids []types.IdentityID) error {
	return l.apply(origin, "compliance", "set_entities_exempt", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		return l.compliance.SetEntitiesExempt(asset, exempt, op, claim, dids)
	})
}

// --- checkpoints (C4) ---

func (l *Ledger) CreateCheckpoint(origin types.AccountKey, asset types.AssetID) (uint64, error) {
	var id uint64
	err := l.apply(origin, "checkpoint", "create_checkpoint", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		var err error
		id, err = l.checkpoints.CreateCheckpoint(asset, l.now)
		return err
	})
	return id, err
}

func (l *Ledger) CreateCheckpointSchedule(origin types.AccountKey, asset types.AssetID, at, period uint64, remaining uint32) (uint64, error) {
	var id uint64
	err := l.apply(origin, "checkpoint", "create_checkpoint_schedule", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		schedule, err := l.checkpoints.CreateSchedule(asset, at, period, remaining, true, l.now)
		if err != nil {
			return err
		}
		id = schedule.ID
		return nil
	})
	return id, err
}

func (l *Ledger) RemoveCheckpointSchedule(origin types.AccountKey, asset types.AssetID, id uint64) error {
	return l.apply(origin, "checkpoint", "remove_checkpoint_schedule", func(caller types.IdentityID) error {
		if err := l.requireAssetOwner(caller, asset); err != nil {
			return err
		}
		return l.checkpoints.RemoveSchedule(asset, id)
	})
}

// --- corporate actions (C4) ---

func (l *Ledger) AcceptCAAgency(origin types.AccountKey, authID uint64) (types.Ticker, error) {
	var ticker types.Ticker
	err := l.apply(origin, "corporate", "accept_ca_agency", func(caller types.IdentityID) error {
		var err error
		ticker, err = l.corporate.AcceptAgency(caller, authID)
		return err
	})
	return ticker, err
}

func (l *Ledger) ResetCAA(origin types.AccountKey, ticker types.Ticker) error {
	return l.apply(origin, "corporate", "reset_caa", func(caller types.IdentityID) error {
		return l.corporate.ResetAgent(caller, ticker)
	})
}

func (l *Ledger) SetDefaultTargets(origin types.AccountKey, ticker types.Ticker, targets corporate.TargetIdentities) error {
	return l.apply(origin, "corporate", "set_default_targets", func(caller types.IdentityID) error {
		return l.corporate.SetDefaultTargets(caller, ticker, targets)
	})
}

func (l *Ledger) SetDefaultWithholdingTax(origin types.AccountKey, ticker types.Ticker, tax corporate.Tax) error {
	return l.apply(origin, "corporate", "set_default_withholding_tax", func(caller types.IdentityID) error {
		return l.corporate.SetDefaultWithholdingTax(caller, ticker, tax)
	})
}

func (l *Ledger) SetDidWithholdingTax(origin types.AccountKey, ticker types.Ticker, did types.IdentityID, tax *corporate.Tax) error {
	return l.apply(origin, "corporate", "set_did_withholding_tax", func(caller types.IdentityID) error {
		return l.corporate.SetDidWithholdingTax(caller, ticker, did, tax)
	})
}

func (l *Ledger) InitiateCorporateAction(
	origin types.AccountKey,
	ticker types.Ticker,
	kind corporate.CAKind,
	declDate uint64,
	spec *corporate.RecordDateSpec,
	details string,
	targets *corporate.TargetIdentities,
	defaultWHT *corporate.Tax,
	didWHT []corporate.DidTax,
) (types.CAID, error) {
	var id types.CAID
	err := l.apply(origin, "corporate", "initiate_corporate_action", func(caller types.IdentityID) error {
		var err error
		id, err = l.corporate.InitiateCA(caller, ticker, kind, declDate, spec, details, targets, defaultWHT, didWHT, l.now)
		return err
	})
	return id, err
}

func (l *Ledger) ChangeRecordDate(origin types.AccountKey, id types.CAID, spec *corporate.RecordDateSpec) error {
	return l.apply(origin, "corporate", "change_record_date", func(caller types.IdentityID) error {
		return l.corporate.ChangeRecordDate(caller, id, spec, l.now)
	})
}

func (l *Ledger) RemoveCA(origin types.AccountKey, id types.CAID) error {
	return l.apply(origin, "corporate", "remove_ca", func(caller types.IdentityID) error {
		return l.corporate.RemoveCA(caller, id, l.now)
	})
}

func (l *Ledger) AddDocuments(origin types.AccountKey, ticker types.Ticker, docs []corporate.Document) ([]uint32, error) {
	var ids []uint32
	err := l.apply(origin, "corporate", "add_documents", func(caller types.IdentityID) error {
		var err error
		ids, err = l.corporate.AddDocuments(caller, ticker, docs)
		return err
	})
	return ids, err
}

func (l *Ledger) LinkCADoc(origin types.AccountKey, id types.CAID, docIDs []uint32) error {
	return l.apply(origin, "corporate", "link_ca_doc", func(caller types.IdentityID) error {
		return l.corporate.LinkCADoc(caller, id, docIDs)
	})
}

func (l *Ledger) AttachBallot(origin types.AccountKey, id types.CAID, start, end uint64, meta corporate.BallotMeta, rcv bool) error {
	return l.apply(origin, "corporate", "attach_ballot", func(caller types.IdentityID) error {
		return l.corporate.AttachBallot(caller, id, start, end, meta, rcv)
	})
}

func (l *Ledger) VoteOnBallot(origin types.AccountKey, id types.CAID, powers []*big.Int) error {
	return l.apply(origin, "corporate", "vote_on_ballot", func(caller types.IdentityID) error {
		return l.corporate.Vote(caller, id, powers, l.now)
	})
}

func (l *Ledger) WithdrawBallotVote(origin types.AccountKey, id types.CAID) error {
	return l.apply(origin, "corporate", "withdraw_ballot_vote", func(caller types.IdentityID) error {
		return l.corporate.WithdrawVote(caller, id, l.now)
	})
}

func (l *Ledger) Distribute(
	origin types.AccountKey,
	id types.CAID,
	from types.PortfolioID,
	currency types.AssetID,
	perShare, amount *big.Int,
	paymentAt uint64,
	expiresAt *uint64,
) error {
	return l.apply(origin, "corporate", "distribute", func(caller types.IdentityID) error {
		return l.corporate.Distribute(caller, id, from, currency, perShare, amount, paymentAt, expiresAt, l.now)
	})
}

func (l *Ledger) ClaimBenefit(origin types.AccountKey, id types.CAID) (*big.Int, error) {
	var paid *big.Int
	err := l.apply(origin, "corporate", "claim_benefit", func(caller types.IdentityID) error {
		var err error
		paid, err = l.corporate.ClaimBenefit(caller, id, l.now)
		return err
	})
	return paid, err
}

func (l *Ledger) PushBenefit(origin types.AccountKey, id types.CAID, holder types.IdentityID) (*big.Int, error) {
	var paid *big.Int
	err := l.apply(origin, "corporate", "push_benefit", func(caller types.IdentityID) error {
		var err error
		paid, err = l.corporate.PushBenefit(caller, id, holder, l.now)
		return err
	})
	return paid, err
}

func (l *Ledger) ReclaimDistribution(origin types.AccountKey, id types.CAID) (*big.Int, error) {
	var reclaimed *big.Int
	err := l.apply(origin, "corporate", "reclaim_distribution", func(caller types.IdentityID) error {
		var err error
		reclaimed, err = l.corporate.Reclaim(caller, id, l.now)
		return err
	})
	return reclaimed, err
}

// --- settlement (C5) ---

func (l *Ledger) CreateVenue(origin types.AccountKey, signers []types.AccountKey, kind settlement.VenueType, details string) (uint64, error) {
	var id uint64
	err := l.apply(origin, "settlement", "create_venue", func(caller types.IdentityID) error {
		var err error
		id, err = l.settlement.CreateVenue(caller, signers, kind, details)
		return err
	})
	return id, err
}

func (l *Ledger) UpdateVenueSigners(origin types.AccountKey, id uint64, signers []types.AccountKey, add bool) error {
	return l.apply(origin, "settlement", "update_venue_signers", func(caller types.IdentityID) error {
		return l.settlement.UpdateVenueSigners(caller, id, signers, add)
	})
}

func (l *Ledger) SetVenueFiltering(origin types.AccountKey, asset types.AssetID, enabled bool) error {
	return l.apply(origin, "settlement", "set_venue_filtering", func(caller types.IdentityID) error {
		return l.settlement.SetVenueFiltering(caller, asset, enabled)
	})
}

func (l *Ledger) AllowVenues(origin types.AccountKey, asset types.AssetID, venues []uint64) error {
	return l.apply(origin, "settlement", "allow_venues", func(caller types.IdentityID) error {
		return l.settlement.AllowVenues(caller, asset, venues)
	})
}

func (l *Ledger) DisallowVenues(origin types.AccountKey, asset types.AssetID, venues []uint64) error {
	return l.apply(origin, "settlement", "disallow_venues", func(caller types.IdentityID) error {
		return l.settlement.DisallowVenues(caller, asset, venues)
	})
}

func (l *Ledger) AddInstruction(
	origin types.AccountKey,
	venueID uint64,
	settleType settlement.SettlementType,
	settleBlock uint64,
	tradeDate, valueDate *uint64,
	legs []settlement.Leg,
	memo string,
) (uint64, error) {
	var id uint64
	err := l.apply(origin, "settlement", "add_instruction", func(caller types.IdentityID) error {
		var err error
		id, err = l.settlement.AddInstruction(caller, venueID, settleType, settleBlock, tradeDate, valueDate, legs, memo, l.now, l.height)
		return err
	})
	return id, err
}

// AddAndAffirmInstruction creates an instruction and affirms the caller's
// portfolios in the same transaction.
func (l *Ledger) AddAndAffirmInstruction(
	origin types.AccountKey,
	venueID uint64,
	settleType settlement.SettlementType,
	settleBlock uint64,
	tradeDate, valueDate *uint64,
	legs []settlement.Leg,
	memo string,
	portfolios []types.PortfolioID,
) (uint64, error) {
	var id uint64
	err := l.apply(origin, "settlement", "add_and_affirm_instruction", func(caller types.IdentityID) error {
		var err error
		id, err = l.settlement.AddInstruction(caller, venueID, settleType, settleBlock, tradeDate, valueDate, legs, memo, l.now, l.height)
		if err != nil {
			return err
		}
		return l.settlement.AffirmInstruction(caller, id, portfolios)
	})
	return id, err
}

func (l *Ledger) AffirmInstruction(origin types.AccountKey, id uint64, portfolios []types.PortfolioID) error {
	return l.apply(origin, "settlement", "affirm_instruction", func(caller types.IdentityID) error {
		return l.settlement.AffirmInstruction(caller, id, portfolios)
	})
}

func (l *Ledger) AffirmAsMediator(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "settlement", "affirm_as_mediator", func(caller types.IdentityID) error {
		return l.settlement.AffirmAsMediator(caller, id)
	})
}

func (l *Ledger) AffirmWithReceipts(origin types.AccountKey, id uint64, portfolios []types.PortfolioID, receipts []*settlement.ReceiptDetails) error {
	return l.apply(origin, "settlement", "affirm_with_receipts", func(caller types.IdentityID) error {
		return l.settlement.AffirmWithReceipts(caller, id, portfolios, receipts)
	})
}

func (l *Ledger) WithdrawAffirmation(origin types.AccountKey, id uint64, portfolios []types.PortfolioID) error {
	return l.apply(origin, "settlement", "withdraw_affirmation", func(caller types.IdentityID) error {
		return l.settlement.WithdrawAffirmation(caller, id, portfolios)
	})
}

func (l *Ledger) RejectInstruction(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "settlement", "reject_instruction", func(caller types.IdentityID) error {
		return l.settlement.RejectInstruction(caller, id)
	})
}

func (l *Ledger) ClaimReceipt(origin types.AccountKey, id uint64, receipt *settlement.ReceiptDetails) error {
	return l.apply(origin, "settlement", "claim_receipt", func(caller types.IdentityID) error {
		return l.settlement.ClaimReceipt(caller, id, receipt)
	})
}

func (l *Ledger) UnclaimReceipt(origin types.AccountKey, id uint64, legIndex uint32) error {
	return l.apply(origin, "settlement", "unclaim_receipt", func(caller types.IdentityID) error {
		return l.settlement.UnclaimReceipt(caller, id, legIndex)
	})
}

// ChangeReceiptValidity lets a receipt signer invalidate or revive an unused
// receipt UID. Venue signer keys need not be linked to an identity.
func (l *Ledger) ChangeReceiptValidity(origin types.AccountKey, uid uint64, used bool) error {
	return l.applyKey(origin, func(key types.AccountKey) error {
		return l.settlement.SetReceiptValidity(key, uid, used)
	})
}

func (l *Ledger) RescheduleInstruction(origin types.AccountKey, id uint64, newBlock uint64) error {
	return l.apply(origin, "settlement", "reschedule_instruction", func(caller types.IdentityID) error {
		return l.settlement.RescheduleInstruction(caller, id, newBlock, l.height)
	})
}

func (l *Ledger) PostSenderProof(origin types.AccountKey, id uint64, legIndex uint32, proof []byte) error {
	return l.apply(origin, "settlement", "post_sender_proof", func(caller types.IdentityID) error {
		return l.settlement.PostSenderProof(caller, id, legIndex, proof)
	})
}

func (l *Ledger) PostReceiverProof(origin types.AccountKey, id uint64, legIndex uint32, proof []byte) error {
	return l.apply(origin, "settlement", "post_receiver_proof", func(caller types.IdentityID) error {
		return l.settlement.PostReceiverProof(caller, id, legIndex, proof)
	})
}

func (l *Ledger) PostMediatorProof(origin types.AccountKey, id uint64, legIndex uint32, proof []byte) error {
	return l.apply(origin, "settlement", "post_mediator_proof", func(caller types.IdentityID) error {
		return l.settlement.PostMediatorProof(caller, id, legIndex, proof)
	})
}

// --- multisig (C6) ---

func (l *Ledger) CreateMultisig(origin types.AccountKey, signers []types.AccountKey, required uint64) (types.AccountKey, error) {
	var account types.AccountKey
	err := l.apply(origin, "multisig", "create_multisig", func(caller types.IdentityID) error {
		var err error
		account, err = l.multisig.CreateMultisig(caller, signers, required)
		return err
	})
	return account, err
}

// CreateMultisigProposal opens a proposal. Signer keys act directly, without
// identity resolution.
func (l *Ledger) CreateMultisigProposal(origin types.AccountKey, account types.AccountKey, call types.Command, expiresAt *uint64, autoClose bool) (uint64, error) {
	var id uint64
	err := l.applyKey(origin, func(key types.AccountKey) error {
		var err error
		id, err = l.multisig.CreateProposal(key, account, call, expiresAt, autoClose, l.now)
		return err
	})
	return id, err
}

func (l *Ledger) ApproveMultisigProposal(origin types.AccountKey, account types.AccountKey, id uint64) error {
	return l.applyKey(origin, func(key types.AccountKey) error {
		return l.multisig.Approve(key, account, id, l.now)
	})
}

func (l *Ledger) RejectMultisigProposal(origin types.AccountKey, account types.AccountKey, id uint64) error {
	return l.applyKey(origin, func(key types.AccountKey) error {
		return l.multisig.Reject(key, account, id, l.now)
	})
}

// --- governance (C7) ---

func (l *Ledger) Propose(origin types.AccountKey, call types.Command, url, description string, deposit *big.Int, beneficiaries []governance.Beneficiary) (uint64, error) {
	var id uint64
	err := l.apply(origin, "governance", "propose", func(caller types.IdentityID) error {
		var err error
		id, err = l.governance.Propose(caller, call, url, description, deposit, beneficiaries, l.now)
		return err
	})
	return id, err
}

func (l *Ledger) AmendProposal(origin types.AccountKey, id uint64, url, description string) error {
	return l.apply(origin, "governance", "amend_proposal", func(caller types.IdentityID) error {
		return l.governance.AmendProposal(caller, id, url, description, l.now)
	})
}

func (l *Ledger) BondAdditionalDeposit(origin types.AccountKey, id uint64, amount *big.Int) error {
	return l.apply(origin, "governance", "bond_additional_deposit", func(caller types.IdentityID) error {
		return l.governance.BondAdditionalDeposit(caller, id, amount, l.now)
	})
}

func (l *Ledger) UnbondDeposit(origin types.AccountKey, id uint64, amount *big.Int) error {
	return l.apply(origin, "governance", "unbond_deposit", func(caller types.IdentityID) error {
		return l.governance.UnbondDeposit(caller, id, amount, l.now)
	})
}

func (l *Ledger) CancelProposal(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "governance", "cancel_proposal", func(caller types.IdentityID) error {
		return l.governance.CancelProposal(caller, id, l.now)
	})
}

func (l *Ledger) KillProposal(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "governance", "kill_proposal", func(caller types.IdentityID) error {
		return l.governance.KillProposal(caller, id)
	})
}

func (l *Ledger) VoteOnProposal(origin types.AccountKey, id uint64, aye bool, deposit *big.Int) error {
	return l.apply(origin, "governance", "vote", func(caller types.IdentityID) error {
		return l.governance.Vote(caller, id, aye, deposit, l.now)
	})
}

// CloseVote tallies a proposal whose voting window has ended. Permissionless,
// but the origin must still resolve to an identity.
func (l *Ledger) CloseVote(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "governance", "close_vote", func(types.IdentityID) error {
		return l.governance.CloseVote(id, l.now)
	})
}

func (l *Ledger) FastTrackProposal(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "governance", "fast_track_proposal", func(caller types.IdentityID) error {
		return l.governance.FastTrackProposal(caller, id)
	})
}

func (l *Ledger) EmergencyReferendum(origin types.AccountKey, call types.Command, url, description string, beneficiaries []governance.Beneficiary) (uint64, error) {
	var id uint64
	err := l.apply(origin, "governance", "emergency_referendum", func(caller types.IdentityID) error {
		var err error
		id, err = l.governance.EmergencyReferendum(caller, call, url, description, beneficiaries, l.now)
		return err
	})
	return id, err
}

func (l *Ledger) EnactReferendum(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "governance", "enact_referendum", func(caller types.IdentityID) error {
		return l.governance.EnactReferendum(caller, id, l.height)
	})
}

func (l *Ledger) RejectReferendum(origin types.AccountKey, id uint64) error {
	return l.apply(origin, "governance", "reject_referendum", func(caller types.IdentityID) error {
		return l.governance.RejectReferendum(caller, id)
	})
}

func (l *Ledger) SetReferendumEnactmentPeriod(origin types.AccountKey, blocks uint64) error {
	return l.apply(origin, "governance", "set_referendum_enactment_period", func(caller types.IdentityID) error {
		return l.governance.SetReferendumEnactmentPeriod(caller, blocks)
	})
}

func (l *Ledger) PruneHistoricalMips(origin types.AccountKey, ids []uint64) error {
	return l.apply(origin, "governance", "prune_historical_mips", func(caller types.IdentityID) error {
		return l.governance.PruneHistoricalMips(caller, ids)
	})
}

// DepositTreasury moves free native balance from the caller into the
// treasury pot.
func (l *Ledger) DepositTreasury(origin types.AccountKey, amount *big.Int) error {
	return l.apply(origin, "governance", "deposit_treasury", func(caller types.IdentityID) error {
		if amount == nil || amount.Sign() <= 0 {
			return state.ErrInvalidAmount
		}
		bank := l.state.Bank()
		balance, err := bank.Balance(caller)
		if err != nil {
			return err
		}
		reserved, err := bank.Reserved(caller)
		if err != nil {
			return err
		}
		free := new(big.Int).Sub(balance, reserved)
		if free.Cmp(amount) < 0 {
			return state.ErrInsufficientFree
		}
		if err := bank.BalancePut(caller, new(big.Int).Sub(balance, amount)); err != nil {
			return err
		}
		return bank.TreasuryDeposit(amount)
	})
}
