package state

import (
	"math/big"

	"capchain/core/types"
	"capchain/native/checkpoint"
)

// CheckpointState is the checkpoint engine's view of the manager.
type CheckpointState struct {
	m *Manager
}

// Checkpoint returns the checkpoint accessor.
func (m *Manager) Checkpoint() *CheckpointState { return &CheckpointState{m: m} }

func (s *CheckpointState) CheckpointCount(asset types.AssetID) (uint64, error) {
	return s.m.getUint64(MakeKey(prefixCheckpointCount, asset.ScopeBytes()))
}

func (s *CheckpointState) CheckpointCountPut(asset types.AssetID, count uint64) error {
	return s.m.putUint64(MakeKey(prefixCheckpointCount, asset.ScopeBytes()), count)
}

func (s *CheckpointState) CheckpointTimestamp(asset types.AssetID, id uint64) (uint64, bool, error) {
	var ts uint64
	ok, err := s.m.getRLP(MakeKey(prefixCheckpointTS, asset.ScopeBytes(), u64b(id)), &ts)
	if err != nil || !ok {
		return 0, false, err
	}
	return ts, true, nil
}

func (s *CheckpointState) CheckpointTimestampPut(asset types.AssetID, id uint64, ts uint64) error {
	return s.m.putRLP(MakeKey(prefixCheckpointTS, asset.ScopeBytes(), u64b(id)), ts)
}

func (s *CheckpointState) CheckpointSupply(asset types.AssetID, id uint64) (*big.Int, error) {
	return s.m.getBigInt(MakeKey(prefixCheckpointSupply, asset.ScopeBytes(), u64b(id)))
}

func (s *CheckpointState) CheckpointSupplyPut(asset types.AssetID, id uint64, supply *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixCheckpointSupply, asset.ScopeBytes(), u64b(id)), supply)
}

func (s *CheckpointState) CheckpointBalance(asset types.AssetID, id uint64, did types.IdentityID) (*big.Int, bool, error) {
	balance := new(big.Int)
	ok, err := s.m.getRLP(MakeKey(prefixCheckpointBalance, asset.ScopeBytes(), u64b(id), did.Bytes()), balance)
	if err != nil || !ok {
		return nil, false, err
	}
	return balance, true, nil
}

func (s *CheckpointState) CheckpointBalancePut(asset types.AssetID, id uint64, did types.IdentityID, balance *big.Int) error {
	return s.m.putBigInt(MakeKey(prefixCheckpointBalance, asset.ScopeBytes(), u64b(id), did.Bytes()), balance)
}

func (s *CheckpointState) BalanceUpdates(asset types.AssetID, did types.IdentityID) ([]uint64, error) {
	var ids []uint64
	if _, err := s.m.getRLP(MakeKey(prefixBalanceUpdates, asset.ScopeBytes(), did.Bytes()), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *CheckpointState) BalanceUpdatesPut(asset types.AssetID, did types.IdentityID, ids []uint64) error {
	key := MakeKey(prefixBalanceUpdates, asset.ScopeBytes(), did.Bytes())
	if len(ids) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, ids)
}

func (s *CheckpointState) ScheduleNextID(asset types.AssetID) (uint64, error) {
	key := MakeKey(prefixScheduleSeq, asset.ScopeBytes())
	id, err := s.m.getUint64(key)
	if err != nil {
		return 0, err
	}
	id++
	if err := s.m.putUint64(key, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *CheckpointState) Schedules(asset types.AssetID) ([]*checkpoint.Schedule, error) {
	var schedules []*checkpoint.Schedule
	if _, err := s.m.getRLP(MakeKey(prefixSchedules, asset.ScopeBytes()), &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *CheckpointState) SchedulesPut(asset types.AssetID, schedules []*checkpoint.Schedule) error {
	key := MakeKey(prefixSchedules, asset.ScopeBytes())
	if len(schedules) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, schedules)
}

func (s *CheckpointState) SchedulePoints(asset types.AssetID, schedule uint64) ([]uint64, error) {
	var points []uint64
	if _, err := s.m.getRLP(MakeKey(prefixSchedulePoints, asset.ScopeBytes(), u64b(schedule)), &points); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *CheckpointState) SchedulePointsPut(asset types.AssetID, schedule uint64, points []uint64) error {
	key := MakeKey(prefixSchedulePoints, asset.ScopeBytes(), u64b(schedule))
	if len(points) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, points)
}

func (s *CheckpointState) ScheduledAssets() ([]types.AssetID, error) {
	var assets []types.AssetID
	if _, err := s.m.getRLP(MakeKey(prefixScheduledAssets), &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *CheckpointState) ScheduledAssetsPut(assets []types.AssetID) error {
	key := MakeKey(prefixScheduledAssets)
	if len(assets) == 0 {
		return s.m.Delete(key)
	}
	return s.m.putRLP(key, assets)
}
