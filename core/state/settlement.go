package state

import (
	"capchain/core/types"
	"capchain/native/settlement"
)

// SettlementState is the settlement engine's view of the manager.
type SettlementState struct {
	m *Manager
}

// Settlement returns the settlement accessor.
func (m *Manager) Settlement() *SettlementState { return &SettlementState{m: m} }

func (s *SettlementState) AssetOwner(asset types.AssetID) (types.IdentityID, bool, error) {
	return s.m.assetOwner(asset)
}

func (s *SettlementState) VenueNextID() (uint64, error) {
	key := MakeKey(prefixVenueSeq)
	id, err := s.m.getUint64(key)
	if err != nil {
		return 0, err
	}
	if err := s.m.putUint64(key, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SettlementState) Venue(id uint64) (*settlement.Venue, bool, error) {
	venue := new(settlement.Venue)
	ok, err := s.m.getRLP(MakeKey(prefixVenue, u64b(id)), venue)
	if err != nil || !ok {
		return nil, false, err
	}
	return venue, true, nil
}

func (s *SettlementState) VenuePut(id uint64, venue *settlement.Venue) error {
	return s.m.putRLP(MakeKey(prefixVenue, u64b(id)), venue)
}

func (s *SettlementState) VenueFiltering(asset types.AssetID) (bool, error) {
	var enabled bool
	if _, err := s.m.getRLP(MakeKey(prefixVenueFiltering, asset.ScopeBytes()), &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (s *SettlementState) VenueFilteringPut(asset types.AssetID, enabled bool) error {
	return s.m.putRLP(MakeKey(prefixVenueFiltering, asset.ScopeBytes()), enabled)
}

func (s *SettlementState) VenueAllowed(asset types.AssetID, venue uint64) (bool, error) {
	var allowed bool
	if _, err := s.m.getRLP(MakeKey(prefixVenueAllowed, asset.ScopeBytes(), u64b(venue)), &allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

func (s *SettlementState) VenueAllowedPut(asset types.AssetID, venue uint64, allowed bool) error {
	key := MakeKey(prefixVenueAllowed, asset.ScopeBytes(), u64b(venue))
	if !allowed {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, allowed)
}

func (s *SettlementState) InstructionNextID() (uint64, error) {
	key := MakeKey(prefixInstructionSeq)
	id, err := s.m.getUint64(key)
	if err != nil {
		return 0, err
	}
	if err := s.m.putUint64(key, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SettlementState) Instruction(id uint64) (*settlement.Instruction, bool, error) {
	instruction := new(settlement.Instruction)
	ok, err := s.m.getRLP(MakeKey(prefixInstruction, u64b(id)), instruction)
	if err != nil || !ok {
		return nil, false, err
	}
	return instruction, true, nil
}

func (s *SettlementState) InstructionPut(instruction *settlement.Instruction) error {
	return s.m.putRLP(MakeKey(prefixInstruction, u64b(instruction.ID)), instruction)
}

func (s *SettlementState) InstructionDelete(id uint64) error {
	return s.m.Delete(MakeKey(prefixInstruction, u64b(id)))
}

func (s *SettlementState) Legs(id uint64) ([]settlement.Leg, error) {
	var legs []settlement.Leg
	if _, err := s.m.getRLP(MakeKey(prefixLegs, u64b(id)), &legs); err != nil {
		return nil, err
	}
	return legs, nil
}

func (s *SettlementState) LegsPut(id uint64, legs []settlement.Leg) error {
	return s.m.putRLP(MakeKey(prefixLegs, u64b(id)), legs)
}

func (s *SettlementState) LegsDelete(id uint64) error {
	return s.m.Delete(MakeKey(prefixLegs, u64b(id)))
}

func (s *SettlementState) LegStatuses(id uint64) ([]settlement.LegStatus, error) {
	var statuses []settlement.LegStatus
	if _, err := s.m.getRLP(MakeKey(prefixLegStatus, u64b(id)), &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (s *SettlementState) LegStatusesPut(id uint64, statuses []settlement.LegStatus) error {
	return s.m.putRLP(MakeKey(prefixLegStatus, u64b(id)), statuses)
}

func (s *SettlementState) LegStatusesDelete(id uint64) error {
	return s.m.Delete(MakeKey(prefixLegStatus, u64b(id)))
}

func (s *SettlementState) AffirmsPending(id uint64) (uint64, error) {
	return s.m.getUint64(MakeKey(prefixAffirmsPending, u64b(id)))
}

func (s *SettlementState) AffirmsPendingPut(id uint64, n uint64) error {
	key := MakeKey(prefixAffirmsPending, u64b(id))
	if n == 0 {
		return s.m.Delete(key)
	}
	return s.m.putUint64(key, n)
}

func (s *SettlementState) AffirmedPortfolios(id uint64) ([]types.PortfolioID, error) {
	var pids []types.PortfolioID
	if _, err := s.m.getRLP(MakeKey(prefixAffirmed, u64b(id)), &pids); err != nil {
		return nil, err
	}
	return pids, nil
}

func (s *SettlementState) AffirmedPortfoliosPut(id uint64, pids []types.PortfolioID) error {
	key := MakeKey(prefixAffirmed, u64b(id))
	if len(pids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, pids)
}

func (s *SettlementState) AffirmedPortfoliosDelete(id uint64) error {
	return s.m.Delete(MakeKey(prefixAffirmed, u64b(id)))
}

func (s *SettlementState) MediatorAffirmed(id uint64, did types.IdentityID) (bool, error) {
	var affirmed bool
	if _, err := s.m.getRLP(MakeKey(prefixMediatorAffirm, u64b(id), did.Bytes()), &affirmed); err != nil {
		return false, err
	}
	return affirmed, nil
}

func (s *SettlementState) MediatorAffirmedPut(id uint64, did types.IdentityID, affirmed bool) error {
	key := MakeKey(prefixMediatorAffirm, u64b(id), did.Bytes())
	if !affirmed {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, affirmed)
}

func (s *SettlementState) ReceiptUsed(signer types.AccountKey, uid uint64) (bool, error) {
	var used bool
	if _, err := s.m.getRLP(MakeKey(prefixReceiptUsed, signer.Bytes(), u64b(uid)), &used); err != nil {
		return false, err
	}
	return used, nil
}

func (s *SettlementState) ReceiptUsedPut(signer types.AccountKey, uid uint64, used bool) error {
	key := MakeKey(prefixReceiptUsed, signer.Bytes(), u64b(uid))
	if !used {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, used)
}

func (s *SettlementState) LegReceipt(id uint64, leg uint32) (*settlement.ReceiptDetails, bool, error) {
	receipt := new(settlement.ReceiptDetails)
	ok, err := s.m.getRLP(MakeKey(prefixLegReceipt, u64b(id), u32b(leg)), receipt)
	if err != nil || !ok {
		return nil, false, err
	}
	return receipt, true, nil
}

func (s *SettlementState) LegReceiptPut(id uint64, leg uint32, receipt *settlement.ReceiptDetails) error {
	return s.m.putRLP(MakeKey(prefixLegReceipt, u64b(id), u32b(leg)), receipt)
}

func (s *SettlementState) LegReceiptDelete(id uint64, leg uint32) error {
	return s.m.Delete(MakeKey(prefixLegReceipt, u64b(id), u32b(leg)))
}

func (s *SettlementState) LegProofs(id uint64, leg uint32) (*settlement.LegProofs, error) {
	proofs := new(settlement.LegProofs)
	ok, err := s.m.getRLP(MakeKey(prefixLegProofs, u64b(id), u32b(leg)), proofs)
	if err != nil || !ok {
		return nil, err
	}
	return proofs, nil
}

func (s *SettlementState) LegProofsPut(id uint64, leg uint32, proofs *settlement.LegProofs) error {
	return s.m.putRLP(MakeKey(prefixLegProofs, u64b(id), u32b(leg)), proofs)
}

func (s *SettlementState) LegProofsDelete(id uint64, leg uint32) error {
	return s.m.Delete(MakeKey(prefixLegProofs, u64b(id), u32b(leg)))
}

func (s *SettlementState) ScheduledInstructions(block uint64) ([]uint64, error) {
	var ids []uint64
	if _, err := s.m.getRLP(MakeKey(prefixScheduledInstr, u64b(block)), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SettlementState) ScheduledInstructionsPut(block uint64, ids []uint64) error {
	key := MakeKey(prefixScheduledInstr, u64b(block))
	if len(ids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, ids)
}
