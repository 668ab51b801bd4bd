package events

import "capchain/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (indexers, test hooks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Engines default to it so event emission stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers emitted events in order. The ledger attaches one per
// operation so events from rolled-back operations can be discarded.
type Recorder struct {
	buf []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(e Event) {
	if r == nil || e == nil {
		return
	}
	if evt := e.Event(); evt != nil {
		r.buf = append(r.buf, evt)
	}
}

// Drain returns the buffered events and resets the recorder.
func (r *Recorder) Drain() []*types.Event {
	out := r.buf
	r.buf = nil
	return out
}

// Discard drops any buffered events.
func (r *Recorder) Discard() { r.buf = nil }

// Len reports the number of buffered events.
func (r *Recorder) Len() int { return len(r.buf) }
