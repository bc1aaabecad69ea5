package bridge

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event names published by the service.
const (
	EventPromptQueued    = "prompt_queued"
	EventGateAcquired    = "gate_acquired"
	EventGateReleased    = "gate_released"
	EventGenerationStart = "generation_start"
	EventGenerationDone  = "generation_done"
	EventStreamCompleted = "stream_completed"
	EventStreamAborted   = "stream_aborted"
)

// Event is a bridge lifecycle event for one generation.
type Event struct {
	Name         string
	Seq          uint64
	GenerationID string
	At           time.Time
	Fields       map[string]any
}

// EventPublisher receives events. Implementations must be lightweight and
// non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes each event as a debug log line.
type LogPublisher struct{ log zerolog.Logger }

func NewLogPublisher(l zerolog.Logger) LogPublisher { return LogPublisher{log: l} }

func (p LogPublisher) Publish(e Event) {
	ev := p.log.Debug().Str("event", e.Name).Uint64("seq", e.Seq).Str("generation_id", e.GenerationID)
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("bridge event")
}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Named returns the events with the given name, in publish order.
func (p *MemoryPublisher) Named(name string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
