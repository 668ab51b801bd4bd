package checkpoint

import (
	"errors"
	"math/big"
	"sort"

	"capchain/core/events"
	"capchain/core/types"
)

var (
	errNilState    = errors.New("checkpoint engine: state not configured")
	errNilBalances = errors.New("checkpoint engine: balance reader not configured")

	// ErrNoSuchCheckpoint marks lookups of unknown checkpoint ids.
	ErrNoSuchCheckpoint = errors.New("checkpoint: no such checkpoint")
	// ErrNoSuchSchedule marks lookups of unknown schedule ids.
	ErrNoSuchSchedule = errors.New("checkpoint: no such schedule")
	// ErrScheduleNotRemovable marks removal of a schedule a corporate action
	// is pinned to.
	ErrScheduleNotRemovable = errors.New("checkpoint: schedule not removable")
	// ErrScheduleRemovable marks pinning attempts that require an already
	// pinned schedule.
	ErrScheduleRemovable = errors.New("checkpoint: schedule is removable")
	// ErrScheduleLimitReached marks per-asset schedule sets over the bound.
	ErrScheduleLimitReached = errors.New("checkpoint: schedule limit reached")
	// ErrSchedulePast marks schedules anchored before the current time.
	ErrSchedulePast = errors.New("checkpoint: schedule in the past")
	// ErrZeroRemaining marks recurring schedules with no firings left.
	ErrZeroRemaining = errors.New("checkpoint: zero remaining firings")
)

// DefaultMaxSchedulesPerAsset bounds the per-asset schedule set.
const DefaultMaxSchedulesPerAsset = 8

type engineState interface {
	CheckpointCount(asset types.AssetID) (uint64, error)
	CheckpointCountPut(asset types.AssetID, count uint64) error
	CheckpointTimestamp(asset types.AssetID, id uint64) (uint64, bool, error)
	CheckpointTimestampPut(asset types.AssetID, id uint64, ts uint64) error
	CheckpointSupply(asset types.AssetID, id uint64) (*big.Int, error)
	CheckpointSupplyPut(asset types.AssetID, id uint64, supply *big.Int) error
	CheckpointBalance(asset types.AssetID, id uint64, did types.IdentityID) (*big.Int, bool, error)
	CheckpointBalancePut(asset types.AssetID, id uint64, did types.IdentityID, balance *big.Int) error
	BalanceUpdates(asset types.AssetID, did types.IdentityID) ([]uint64, error)
	BalanceUpdatesPut(asset types.AssetID, did types.IdentityID, ids []uint64) error
	ScheduleNextID(asset types.AssetID) (uint64, error)
	Schedules(asset types.AssetID) ([]*Schedule, error)
	SchedulesPut(asset types.AssetID, schedules []*Schedule) error
	SchedulePoints(asset types.AssetID, schedule uint64) ([]uint64, error)
	SchedulePointsPut(asset types.AssetID, schedule uint64, points []uint64) error
	ScheduledAssets() ([]types.AssetID, error)
	ScheduledAssetsPut(assets []types.AssetID) error
}

// BalanceReader is the slice of the portfolio engine the checkpoint engine
// needs: per-identity aggregate balances and supply.
type BalanceReader interface {
	IdentityBalance(asset types.AssetID, did types.IdentityID) (*big.Int, error)
	Supply(asset types.AssetID) (*big.Int, error)
}

// Engine snapshots holder balances per asset. Snapshots are lazy: creating a
// checkpoint records only the timestamp and total supply; a holder's balance
// is captured on the first balance change after the checkpoint, and reads
// fall back to the live balance when no change happened since.
type Engine struct {
	state        engineState
	emitter      events.Emitter
	balances     BalanceReader
	maxSchedules int
}

// NewEngine constructs a checkpoint engine with default bounds.
func NewEngine() *Engine {
	return &Engine{
		emitter:      events.NoopEmitter{},
		maxSchedules: DefaultMaxSchedulesPerAsset,
	}
}

// SetState wires the engine to its state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBalanceReader wires the portfolio engine's balance lookup.
func (e *Engine) SetBalanceReader(balances BalanceReader) { e.balances = balances }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// CreateCheckpoint takes a snapshot of the asset at the given time and
// returns the new checkpoint id. Ids start at 1 and are dense.
func (e *Engine) CreateCheckpoint(asset types.AssetID, now uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if e.balances == nil {
		return 0, errNilBalances
	}
	count, err := e.state.CheckpointCount(asset)
	if err != nil {
		return 0, err
	}
	id := count + 1
	if err := e.state.CheckpointCountPut(asset, id); err != nil {
		return 0, err
	}
	if err := e.state.CheckpointTimestampPut(asset, id, now); err != nil {
		return 0, err
	}
	supply, err := e.balances.Supply(asset)
	if err != nil {
		return 0, err
	}
	if err := e.state.CheckpointSupplyPut(asset, id, supply); err != nil {
		return 0, err
	}
	e.emit(newCheckpointCreatedEvent(asset, id, now))
	return id, nil
}

// RecordBalance captures the holder's pre-change balance for the newest
// checkpoint, once. Called by the portfolio engine before every balance
// mutation.
func (e *Engine) RecordBalance(asset types.AssetID, did types.IdentityID, current *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	latest, err := e.state.CheckpointCount(asset)
	if err != nil {
		return err
	}
	if latest == 0 {
		return nil
	}
	updates, err := e.state.BalanceUpdates(asset, did)
	if err != nil {
		return err
	}
	if len(updates) > 0 && updates[len(updates)-1] >= latest {
		return nil
	}
	if err := e.state.CheckpointBalancePut(asset, latest, did, current); err != nil {
		return err
	}
	return e.state.BalanceUpdatesPut(asset, did, append(updates, latest))
}

// BalanceAt returns the holder's balance as of the checkpoint. Holders whose
// balance never changed since the checkpoint resolve to the live balance.
func (e *Engine) BalanceAt(asset types.AssetID, id uint64, did types.IdentityID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.balances == nil {
		return nil, errNilBalances
	}
	count, err := e.state.CheckpointCount(asset)
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, ErrNoSuchCheckpoint
	}
	updates, err := e.state.BalanceUpdates(asset, did)
	if err != nil {
		return nil, err
	}
	// The first recorded update at or after the checkpoint carries the
	// balance as it stood at the checkpoint.
	idx := sort.Search(len(updates), func(i int) bool { return updates[i] >= id })
	if idx < len(updates) {
		balance, ok, err := e.state.CheckpointBalance(asset, updates[idx], did)
		if err != nil {
			return nil, err
		}
		if ok {
			return balance, nil
		}
	}
	return e.balances.IdentityBalance(asset, did)
}

// SupplyAt returns the total supply recorded at the checkpoint.
func (e *Engine) SupplyAt(asset types.AssetID, id uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.TimestampOf(asset, id); err != nil {
		return nil, err
	}
	return e.state.CheckpointSupply(asset, id)
}

// TimestampOf returns the time a checkpoint was taken at.
func (e *Engine) TimestampOf(asset types.AssetID, id uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	ts, ok, err := e.state.CheckpointTimestamp(asset, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoSuchCheckpoint
	}
	return ts, nil
}

// Latest returns the newest checkpoint id, zero when none exists.
func (e *Engine) Latest(asset types.AssetID) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.CheckpointCount(asset)
}

// CreateSchedule registers a firing plan. One-shot schedules pass a zero
// period; recurring ones fire every period until remaining hits zero. The
// removable flag is permanent; corporate actions only attach to schedules
// created non-removable.
func (e *Engine) CreateSchedule(asset types.AssetID, at, period uint64, remaining uint32, removable bool, now uint64) (*Schedule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if at <= now {
		return nil, ErrSchedulePast
	}
	if remaining == 0 {
		return nil, ErrZeroRemaining
	}
	if period == 0 {
		remaining = 1
	}
	schedules, err := e.state.Schedules(asset)
	if err != nil {
		return nil, err
	}
	if len(schedules) >= e.maxSchedules {
		return nil, ErrScheduleLimitReached
	}
	id, err := e.state.ScheduleNextID(asset)
	if err != nil {
		return nil, err
	}
	schedule := &Schedule{ID: id, NextAt: at, Period: period, Remaining: remaining, UserRemovable: removable}
	if err := e.state.SchedulesPut(asset, append(schedules, schedule)); err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		if err := e.trackAsset(asset); err != nil {
			return nil, err
		}
	}
	e.emit(newScheduleCreatedEvent(asset, schedule))
	return schedule.Clone(), nil
}

// RemoveSchedule deletes a schedule unless a corporate action is pinned to it.
func (e *Engine) RemoveSchedule(asset types.AssetID, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	schedules, err := e.state.Schedules(asset)
	if err != nil {
		return err
	}
	for i, schedule := range schedules {
		if schedule.ID != id {
			continue
		}
		if !schedule.Removable() {
			return ErrScheduleNotRemovable
		}
		schedules = append(schedules[:i], schedules[i+1:]...)
		if err := e.state.SchedulesPut(asset, schedules); err != nil {
			return err
		}
		if len(schedules) == 0 {
			if err := e.untrackAsset(asset); err != nil {
				return err
			}
		}
		e.emit(newScheduleRemovedEvent(asset, id))
		return nil
	}
	return ErrNoSuchSchedule
}

// ScheduleOf returns one schedule.
func (e *Engine) ScheduleOf(asset types.AssetID, id uint64) (*Schedule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	schedules, err := e.state.Schedules(asset)
	if err != nil {
		return nil, err
	}
	for _, schedule := range schedules {
		if schedule.ID == id {
			return schedule.Clone(), nil
		}
	}
	return nil, ErrNoSuchSchedule
}

// PinSchedule marks the schedule referenced by a corporate action, making it
// non-removable until unpinned.
func (e *Engine) PinSchedule(asset types.AssetID, id uint64) error {
	return e.adjustRefs(asset, id, 1)
}

// UnpinSchedule releases one corporate-action reference.
func (e *Engine) UnpinSchedule(asset types.AssetID, id uint64) error {
	return e.adjustRefs(asset, id, -1)
}

func (e *Engine) adjustRefs(asset types.AssetID, id uint64, delta int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	schedules, err := e.state.Schedules(asset)
	if err != nil {
		return err
	}
	for _, schedule := range schedules {
		if schedule.ID != id {
			continue
		}
		if delta < 0 && schedule.Refs == 0 {
			return ErrScheduleRemovable
		}
		if delta < 0 {
			schedule.Refs--
		} else {
			schedule.Refs++
		}
		return e.state.SchedulesPut(asset, schedules)
	}
	return ErrNoSuchSchedule
}

// ScheduledCheckpoint resolves the checkpoint a pinned schedule created at or
// after the given record date.
func (e *Engine) ScheduledCheckpoint(asset types.AssetID, schedule uint64, date uint64) (uint64, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, errNilState
	}
	points, err := e.state.SchedulePoints(asset, schedule)
	if err != nil {
		return 0, false, err
	}
	for _, id := range points {
		ts, ok, err := e.state.CheckpointTimestamp(asset, id)
		if err != nil {
			return 0, false, err
		}
		if ok && ts >= date {
			return id, true, nil
		}
	}
	return 0, false, nil
}

// FireDue creates checkpoints for every schedule of the asset whose next
// firing time has passed. Exhausted unpinned schedules are dropped.
func (e *Engine) FireDue(asset types.AssetID, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	schedules, err := e.state.Schedules(asset)
	if err != nil {
		return err
	}
	changed := false
	kept := schedules[:0]
	for _, schedule := range schedules {
		for schedule.Remaining > 0 && schedule.NextAt <= now {
			// The checkpoint carries the scheduled time, not the
			// block time, so late blocks stay deterministic.
			id, err := e.CreateCheckpoint(asset, schedule.NextAt)
			if err != nil {
				return err
			}
			points, err := e.state.SchedulePoints(asset, schedule.ID)
			if err != nil {
				return err
			}
			if err := e.state.SchedulePointsPut(asset, schedule.ID, append(points, id)); err != nil {
				return err
			}
			schedule.Remaining--
			schedule.NextAt += schedule.Period
			changed = true
			if schedule.Period == 0 {
				break
			}
		}
		if schedule.Exhausted() && schedule.Refs == 0 {
			changed = true
			continue
		}
		kept = append(kept, schedule)
	}
	if !changed {
		return nil
	}
	if err := e.state.SchedulesPut(asset, kept); err != nil {
		return err
	}
	if len(kept) == 0 {
		return e.untrackAsset(asset)
	}
	return nil
}

// FireAllDue runs FireDue for every asset carrying schedules.
func (e *Engine) FireAllDue(now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	assets, err := e.state.ScheduledAssets()
	if err != nil {
		return err
	}
	for _, asset := range assets {
		if err := e.FireDue(asset, now); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) trackAsset(asset types.AssetID) error {
	assets, err := e.state.ScheduledAssets()
	if err != nil {
		return err
	}
	for _, a := range assets {
		if a == asset {
			return nil
		}
	}
	return e.state.ScheduledAssetsPut(append(assets, asset))
}

func (e *Engine) untrackAsset(asset types.AssetID) error {
	assets, err := e.state.ScheduledAssets()
	if err != nil {
		return err
	}
	for i, a := range assets {
		if a == asset {
			return e.state.ScheduledAssetsPut(append(assets[:i], assets[i+1:]...))
		}
	}
	return nil
}
