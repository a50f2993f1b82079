package events

import "sync"

// Event represents a structured state change emitted by the settlement core.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter buffers emitted events in order. Subscribers drain the buffer
// with Drain; the indexer and tests both consume events through it.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEmitter constructs an empty buffering emitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

// Emit appends the event to the buffer.
func (m *MemoryEmitter) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

// Drain returns all buffered events and resets the buffer.
func (m *MemoryEmitter) Drain() []Event {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	drained := m.events
	m.events = nil
	return drained
}

// FanoutEmitter forwards each event to every registered emitter.
type FanoutEmitter struct {
	sinks []Emitter
}

// NewFanoutEmitter constructs a fan-out over the provided sinks. Nil sinks are
// skipped.
func NewFanoutEmitter(sinks ...Emitter) *FanoutEmitter {
	filtered := make([]Emitter, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &FanoutEmitter{sinks: filtered}
}

// Emit implements the Emitter interface.
func (f *FanoutEmitter) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	for _, sink := range f.sinks {
		sink.Emit(evt)
	}
}
