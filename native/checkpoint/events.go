package checkpoint

import (
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypeCheckpointCreated is emitted for every new checkpoint.
	EventTypeCheckpointCreated = "checkpoint.created"
	// EventTypeScheduleCreated is emitted when a firing plan is registered.
	EventTypeScheduleCreated = "checkpoint.schedule_created"
	// EventTypeScheduleRemoved is emitted when a schedule is removed.
	EventTypeScheduleRemoved = "checkpoint.schedule_removed"
)

type checkpointEvent struct {
	evt *types.Event
}

func (e checkpointEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e checkpointEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(checkpointEvent{evt: event})
}

func newCheckpointCreatedEvent(asset types.AssetID, id, ts uint64) *types.Event {
	return &types.Event{Type: EventTypeCheckpointCreated, Attributes: map[string]string{
		"asset":      asset.String(),
		"checkpoint": strconv.FormatUint(id, 10),
		"timestamp":  strconv.FormatUint(ts, 10),
	}}
}

func newScheduleCreatedEvent(asset types.AssetID, schedule *Schedule) *types.Event {
	return &types.Event{Type: EventTypeScheduleCreated, Attributes: map[string]string{
		"asset":     asset.String(),
		"schedule":  strconv.FormatUint(schedule.ID, 10),
		"next_at":   strconv.FormatUint(schedule.NextAt, 10),
		"period":    strconv.FormatUint(schedule.Period, 10),
		"remaining": strconv.FormatUint(uint64(schedule.Remaining), 10),
	}}
}

func newScheduleRemovedEvent(asset types.AssetID, id uint64) *types.Event {
	return &types.Event{Type: EventTypeScheduleRemoved, Attributes: map[string]string{
		"asset":    asset.String(),
		"schedule": strconv.FormatUint(id, 10),
	}}
}
