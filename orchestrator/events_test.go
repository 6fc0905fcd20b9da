package orchestrator

import "testing"

func TestEventEmitterDelivers(t *testing.T) {
	e := NewEventEmitter("t1", 8)
	e.Emit(EventIteration, map[string]interface{}{"iteration": 1})
	e.Close()

	ev, ok := <-e.Events()
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.Kind != EventIteration || ev.TaskID != "t1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Data["iteration"] != 1 {
		t.Errorf("unexpected data: %+v", ev.Data)
	}
	if _, ok := <-e.Events(); ok {
		t.Error("expected channel closed")
	}
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("t1", 1)
	e.Emit(EventIteration, nil)
	// Channel is full; this must not block.
	e.Emit(EventIteration, nil)
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("expected 1 delivered event, got %d", count)
	}
}

func TestEventEmitterNilSafe(t *testing.T) {
	var e *EventEmitter
	e.Emit(EventIteration, nil) // must not panic
}

func TestEventEmitterCloseIdempotent(t *testing.T) {
	e := NewEventEmitter("t1", 1)
	e.Close()
	e.Close()
	e.Emit(EventIteration, nil) // after close, silently dropped
}
