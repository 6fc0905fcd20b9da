package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskhelm/taskhelm/llm"
	"github.com/taskhelm/taskhelm/toolservice"
	"github.com/taskhelm/taskhelm/transcript"
)

// failedToolResult is the generic tool result recorded when every attempt
// fails. The raw error stays out of the model's context; it is carried in
// the ToolFailure record instead.
const failedToolResult = "Tool execution failed"

// ToolFailure describes an unsuccessful tool call for the caller and the
// event log. It is not surfaced into the transcript.
type ToolFailure struct {
	Tool     string
	Args     map[string]interface{}
	LastErr  error
	Attempts int
}

func (f *ToolFailure) Error() string {
	return fmt.Sprintf("tool %s failed after %d attempt(s): %v", f.Tool, f.Attempts, f.LastErr)
}

// Dispatcher executes model-requested tool calls against the remote tool
// service with bounded retries.
type Dispatcher struct {
	service  toolservice.Service
	attempts int
	events   *EventEmitter
}

// NewDispatcher creates a Dispatcher. attempts <= 0 uses the default of 3.
func NewDispatcher(service toolservice.Service, attempts int, events *EventEmitter) *Dispatcher {
	if attempts <= 0 {
		attempts = 3
	}
	return &Dispatcher{service: service, attempts: attempts, events: events}
}

// Execute runs one tool call, appending exactly one tool result entry to
// the transcript regardless of outcome. It returns nil on success, or a
// ToolFailure describing what went wrong.
//
// A malformed argument payload is a caller/model bug, not a transient
// fault: it is terminal for the call and is not retried. Remote failures
// are retried immediately up to the attempt budget.
func (d *Dispatcher) Execute(ctx context.Context, tr *transcript.Transcript, call llm.ToolCall) *ToolFailure {
	args, err := parseToolArgs(call.Arguments)
	if err != nil {
		tr.AppendToolResult(call.ID, fmt.Sprintf("Error: invalid tool arguments (%v)", err))
		return &ToolFailure{Tool: call.Name, Args: map[string]interface{}{}, LastErr: err}
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		d.events.Emit(EventToolCallStart, map[string]interface{}{
			"tool":    call.Name,
			"call_id": call.ID,
			"attempt": attempt,
		})

		result, err := d.service.CallTool(ctx, call.Name, args)
		if err == nil {
			tr.AppendToolResult(call.ID, result)
			d.events.Emit(EventToolCallEnd, map[string]interface{}{
				"tool":    call.Name,
				"call_id": call.ID,
			})
			return nil
		}

		lastErr = err
		d.events.Emit(EventWarning, map[string]interface{}{
			"tool":    call.Name,
			"call_id": call.ID,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}

	tr.AppendToolResult(call.ID, failedToolResult)
	d.events.Emit(EventToolCallEnd, map[string]interface{}{
		"tool":    call.Name,
		"call_id": call.ID,
		"error":   lastErr.Error(),
	})
	return &ToolFailure{Tool: call.Name, Args: args, LastErr: lastErr, Attempts: d.attempts}
}

func parseToolArgs(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}
