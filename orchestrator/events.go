package orchestrator

import (
	"sync"
	"time"
)

// EventKind identifies the type of task event.
type EventKind string

const (
	EventTaskStart     EventKind = "task_start"
	EventTaskEnd       EventKind = "task_end"
	EventStateChange   EventKind = "state_change"
	EventIteration     EventKind = "iteration"
	EventEvaluation    EventKind = "evaluation"
	EventSteering      EventKind = "steering"
	EventAssistantText EventKind = "assistant_text"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventCompaction    EventKind = "compaction"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
)

// Event is a typed event emitted by the execution loop.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	TaskID    string                 `json:"task_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers typed events to the host application via a channel.
type EventEmitter struct {
	taskID string
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(taskID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		taskID: taskID,
		ch:     make(chan Event, bufferSize),
	}
}

// Emit sends an event to the channel. If the emitter is closed or the
// channel is full, the event is dropped rather than blocking the loop.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		TaskID:    e.taskID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
