package llm

import (
	"context"
	"encoding/json"
)

// EventType discriminates the variants of Event.
type EventType string

const (
	// EventText carries a chunk of streamed assistant text.
	EventText EventType = "text"
	// EventToolUse carries a tool invocation requested by the model.
	EventToolUse EventType = "tool_use"
	// EventDone terminates a stream after a successful turn.
	EventDone EventType = "done"
	// EventError terminates a stream after a transport or protocol failure.
	EventError EventType = "error"
)

// ToolUse is a model-requested tool invocation.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Usage reports token counts when a backend supplies them.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Event is one unit of streamed provider output. Every stream carries zero or
// more Text/ToolUse events followed by exactly one terminal event, either
// Done or Error. Nothing follows a terminal event.
type Event struct {
	Type    EventType
	Text    string
	ToolUse *ToolUse
	// Usage is only set on Done events, and only when the backend reports
	// token counts for the turn.
	Usage *Usage
	Err   string
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// EventQueue is the consumer handle for one in-flight provider call. A single
// worker goroutine produces into it; a single consumer polls it. Poll never
// blocks, so a foreground loop can drain it on every iteration and stay
// responsive. A consumer that walks away must call Close first: that flips
// the sink into discard mode, so a worker mid-stream finishes immediately
// instead of blocking on a buffer nobody drains.
type EventQueue struct {
	ch   chan Event
	done chan struct{}
}

const eventQueueDepth = 256

// NewEventQueue creates a queue and returns it with its producer side.
func NewEventQueue() (*EventQueue, *EventSink) {
	q := &EventQueue{
		ch:   make(chan Event, eventQueueDepth),
		done: make(chan struct{}),
	}
	return q, &EventSink{ch: q.ch, done: q.done}
}

// Close releases the producer: every emit after this point is discarded
// rather than sent, including one currently blocked on a full buffer. Safe to
// call more than once; only the consumer goroutine may call it.
func (q *EventQueue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// Poll returns the next event without blocking. The second return value is
// false when no event is ready or the stream has been closed.
func (q *EventQueue) Poll() (Event, bool) {
	select {
	case ev, ok := <-q.ch:
		if !ok {
			return Event{}, false
		}
		return ev, true
	default:
		return Event{}, false
	}
}

// Recv blocks until an event arrives, the stream closes, or the context is
// canceled. Used only on deliberately blocking paths such as compaction.
func (q *EventQueue) Recv(ctx context.Context) (Event, bool, error) {
	select {
	case ev, ok := <-q.ch:
		if !ok {
			return Event{}, false, nil
		}
		return ev, true, nil
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	}
}

// EventSink is the producer side of an EventQueue. It enforces the terminal
// invariant: after Done or Error has been emitted every further emit is a
// no-op and the channel is closed. Once the consumer has called Close on the
// queue, emits are discarded instead of sent.
type EventSink struct {
	ch     chan Event
	done   chan struct{}
	closed bool
}

// Text emits a streamed text chunk.
func (s *EventSink) Text(text string) {
	s.emit(Event{Type: EventText, Text: text})
}

// ToolUse emits a tool invocation request.
func (s *EventSink) ToolUse(id, name string, input json.RawMessage) {
	s.emit(Event{Type: EventToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}})
}

// Done emits the successful terminal event. usage may be nil when the backend
// reports no token counts.
func (s *EventSink) Done(usage *Usage) {
	s.emit(Event{Type: EventDone, Usage: usage})
	s.close()
}

// Error emits the failure terminal event.
func (s *EventSink) Error(msg string) {
	s.emit(Event{Type: EventError, Err: msg})
	s.close()
}

// Closed reports whether a terminal event has been emitted.
func (s *EventSink) Closed() bool {
	return s.closed
}

func (s *EventSink) emit(ev Event) {
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
		// Consumer is gone. Stop producing so the worker can finish.
		s.closed = true
	}
}

func (s *EventSink) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
