package compliance

import (
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypeStatsSet is emitted when an asset's active stats change.
	EventTypeStatsSet = "compliance.stats_set"
	// EventTypeStatsUpdated is emitted on manual aggregate corrections.
	EventTypeStatsUpdated = "compliance.stats_updated"
	// EventTypeComplianceSet is emitted when the condition set changes.
	EventTypeComplianceSet = "compliance.requirements_set"
	// EventTypePaused is emitted when evaluation is paused or resumed.
	EventTypePaused = "compliance.paused"
	// EventTypeExemptionsSet is emitted when exemptions change.
	EventTypeExemptionsSet = "compliance.exemptions_set"
)

type complianceEvent struct {
	evt *types.Event
}

func (e complianceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e complianceEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(complianceEvent{evt: event})
}

func newStatsSetEvent(asset types.AssetID, count int) *types.Event {
	return &types.Event{Type: EventTypeStatsSet, Attributes: map[string]string{
		"asset": asset.String(),
		"stats": strconv.Itoa(count),
	}}
}

func newStatsUpdatedEvent(asset types.AssetID, stat StatType, count int) *types.Event {
	return &types.Event{Type: EventTypeStatsUpdated, Attributes: map[string]string{
		"asset":   asset.String(),
		"op":      stat.Op.String(),
		"updates": strconv.Itoa(count),
	}}
}

func newComplianceSetEvent(asset types.AssetID, count int) *types.Event {
	return &types.Event{Type: EventTypeComplianceSet, Attributes: map[string]string{
		"asset":      asset.String(),
		"conditions": strconv.Itoa(count),
	}}
}

func newPausedEvent(asset types.AssetID, paused bool) *types.Event {
	return &types.Event{Type: EventTypePaused, Attributes: map[string]string{
		"asset":  asset.String(),
		"paused": strconv.FormatBool(paused),
	}}
}

func newExemptEvent(asset types.AssetID, exempt bool, count int) *types.Event {
	return &types.Event{Type: EventTypeExemptionsSet, Attributes: map[string]string{
		"asset":    asset.String(),
		"exempt":   strconv.FormatBool(exempt),
		"entities": strconv.Itoa(count),
	}}
}
