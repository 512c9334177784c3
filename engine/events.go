package engine

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart EventKind = "session_start"
	EventRoundStart   EventKind = "round_start"
	EventCallStart    EventKind = "call_start"
	EventCallSkipped  EventKind = "call_skipped"
	EventCallEnd      EventKind = "call_end"
	EventRecovery     EventKind = "recovery"
	EventDirective    EventKind = "directive"
	EventSessionEnd   EventKind = "session_end"
)

// Event is emitted by the round controller for host integrations.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Round     int            `json:"round,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events on a buffered channel. A full channel drops
// events rather than stall the session.
type EventEmitter struct {
	sessionID string
	ch        chan Event
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{sessionID: sessionID, ch: make(chan Event, bufferSize)}
}

// Emit sends an event unless the emitter is closed or the buffer is full.
func (e *EventEmitter) Emit(kind EventKind, round int, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- Event{Kind: kind, Timestamp: time.Now(), SessionID: e.sessionID, Round: round, Data: data}:
	default:
	}
}

// Events returns the read side of the channel.
func (e *EventEmitter) Events() <-chan Event { return e.ch }

// Close closes the channel. Safe to call more than once.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
