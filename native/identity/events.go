package identity

import (
	"strconv"

	"capchain/core/types"
)

const (
	// EventTypeIdentityCreated is emitted when a new identity is registered.
	EventTypeIdentityCreated = "identity.created"
	// EventTypeAuthAdded is emitted when an authorization is issued.
	EventTypeAuthAdded = "identity.auth_added"
	// EventTypeAuthConsumed is emitted when an authorization is accepted.
	EventTypeAuthConsumed = "identity.auth_consumed"
	// EventTypeAuthRevoked is emitted when an authorization is revoked.
	EventTypeAuthRevoked = "identity.auth_revoked"
	// EventTypeSecondaryKeyAdded is emitted when a secondary key links.
	EventTypeSecondaryKeyAdded = "identity.secondary_key_added"
	// EventTypeSecondaryKeyRemoved is emitted when a secondary key unlinks.
	EventTypeSecondaryKeyRemoved = "identity.secondary_key_removed"
	// EventTypeFrozen is emitted when secondary keys freeze or unfreeze.
	EventTypeFrozen = "identity.frozen"
	// EventTypePrimaryRotated is emitted on primary key rotation.
	EventTypePrimaryRotated = "identity.primary_rotated"
)

type identityEvent struct {
	evt *types.Event
}

func (e identityEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e identityEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(identityEvent{evt: event})
}

func newIdentityCreatedEvent(did types.IdentityID, primary types.AccountKey) *types.Event {
	return &types.Event{Type: EventTypeIdentityCreated, Attributes: map[string]string{
		"did":     did.String(),
		"primary": primary.String(),
	}}
}

func newAuthAddedEvent(auth *Authorization) *types.Event {
	return &types.Event{Type: EventTypeAuthAdded, Attributes: map[string]string{
		"id":     strconv.FormatUint(auth.ID, 10),
		"from":   auth.From.String(),
		"target": auth.Target.String(),
		"kind":   auth.Data.Kind.String(),
	}}
}

func newAuthConsumedEvent(auth *Authorization) *types.Event {
	return &types.Event{Type: EventTypeAuthConsumed, Attributes: map[string]string{
		"id":   strconv.FormatUint(auth.ID, 10),
		"kind": auth.Data.Kind.String(),
	}}
}

func newAuthRevokedEvent(auth *Authorization) *types.Event {
	return &types.Event{Type: EventTypeAuthRevoked, Attributes: map[string]string{
		"id":   strconv.FormatUint(auth.ID, 10),
		"from": auth.From.String(),
	}}
}

func newSecondaryKeyAddedEvent(did types.IdentityID, key types.AccountKey) *types.Event {
	return &types.Event{Type: EventTypeSecondaryKeyAdded, Attributes: map[string]string{
		"did": did.String(),
		"key": key.String(),
	}}
}

func newSecondaryKeyRemovedEvent(did types.IdentityID, key types.AccountKey) *types.Event {
	return &types.Event{Type: EventTypeSecondaryKeyRemoved, Attributes: map[string]string{
		"did": did.String(),
		"key": key.String(),
	}}
}

func newFrozenEvent(did types.IdentityID, frozen bool) *types.Event {
	return &types.Event{Type: EventTypeFrozen, Attributes: map[string]string{
		"did":    did.String(),
		"frozen": strconv.FormatBool(frozen),
	}}
}

func newPrimaryRotatedEvent(did types.IdentityID, oldKey, newKey types.AccountKey) *types.Event {
	return &types.Event{Type: EventTypePrimaryRotated, Attributes: map[string]string{
		"did": did.String(),
		"old": oldKey.String(),
		"new": newKey.String(),
	}}
}

func newClaimEvent(target types.IdentityID, claim *types.Claim, eventType string) *types.Event {
	attrs := map[string]string{
		"did":    target.String(),
		"issuer": claim.Issuer.String(),
		"claim":  claim.Type.String(),
		"scope":  claim.Scope.String(),
	}
	if claim.Value != "" {
		attrs["value"] = claim.Value
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
