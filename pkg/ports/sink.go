package ports

import (
	"context"
	"sync"

	"github.com/aretw0/quartet/pkg/domain"
)

// EventSink receives the ordered stream events of one in-flight request.
// Emit is called from the request's own goroutine; implementations only
// need to be safe for that single caller.
type EventSink interface {
	// Emit delivers one event. A non-nil error tells the relay the
	// consumer is gone; the relay stops emitting further events.
	Emit(ctx context.Context, ev domain.Event) error
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(ctx context.Context, ev domain.Event) error

// Emit calls f(ctx, ev).
func (f SinkFunc) Emit(ctx context.Context, ev domain.Event) error {
	return f(ctx, ev)
}

// Collector is an EventSink that buffers every event in memory. It is
// used by non-streaming consumers (the MCP adapter, tests) that only care
// about the terminal result.
type Collector struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit appends the event to the buffer.
func (c *Collector) Emit(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of everything emitted so far.
func (c *Collector) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Done returns the terminal success payload, if one was emitted.
func (c *Collector) Done() (domain.DonePayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Type == domain.EventDone {
			if p, ok := ev.Data.(domain.DonePayload); ok {
				return p, true
			}
		}
	}
	return domain.DonePayload{}, false
}

// Err returns the terminal failure payload, if one was emitted.
func (c *Collector) Err() (domain.ErrorPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Type == domain.EventError {
			if p, ok := ev.Data.(domain.ErrorPayload); ok {
				return p, true
			}
		}
	}
	return domain.ErrorPayload{}, false
}
