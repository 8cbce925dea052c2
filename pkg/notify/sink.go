package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink pushes events toward subscribed clients. Implementations must
// treat delivery as best-effort; the engine logs publish failures and
// moves on.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NoopSink discards every event. Useful for embedded runs without a bus.
type NoopSink struct{}

// Publish discards the event.
func (NoopSink) Publish(context.Context, Event) error { return nil }

// MemorySink records events in order for inspection by tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish records the event.
func (m *MemorySink) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns the recorded events of one type.
func (m *MemorySink) ByType(t EventType) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Emit publishes through the sink and logs failures instead of
// returning them. This is the engine's fire-and-forget path.
func Emit(ctx context.Context, sink Sink, logger *zap.Logger, event Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish notification",
			zap.String("type", string(event.Type)),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	}
}
