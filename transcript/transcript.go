// Package transcript implements the ordered conversation log the agent
// accumulates while working on a task, together with its token-budget
// estimation and model-assisted compaction.
//
// A Transcript is exclusively owned by the execution loop of the active
// task; entries are immutable once appended and insertion order is
// load-bearing (it is the model's context window).
package transcript

import (
	"fmt"
	"strings"

	"github.com/taskhelm/taskhelm/llm"
)

// EntryKind discriminates between entry types.
type EntryKind string

const (
	EntryUser       EntryKind = "user"
	EntryAssistant  EntryKind = "assistant"
	EntryToolResult EntryKind = "tool_result"
	EntrySystem     EntryKind = "system"
)

// Entry is a single record in the conversation log.
type Entry struct {
	Kind       EntryKind      `json:"kind"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"` // correlates a tool_result to its call
}

// Transcript owns an ordered sequence of entries. It also carries the
// original task statement, which survives compaction.
type Transcript struct {
	entries     []Entry
	lastRequest string
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// AppendUser appends a user entry.
func (t *Transcript) AppendUser(content string) {
	t.entries = append(t.entries, Entry{Kind: EntryUser, Content: content})
}

// AppendSystem appends a system entry.
func (t *Transcript) AppendSystem(content string) {
	t.entries = append(t.entries, Entry{Kind: EntrySystem, Content: content})
}

// AppendAssistant appends an assistant entry with optional content and
// optional requested tool calls.
func (t *Transcript) AppendAssistant(content string, toolCalls []llm.ToolCall) {
	t.entries = append(t.entries, Entry{Kind: EntryAssistant, Content: content, ToolCalls: toolCalls})
}

// AppendToolResult appends a tool result entry correlated to callID.
func (t *Transcript) AppendToolResult(callID, content string) {
	t.entries = append(t.entries, Entry{Kind: EntryToolResult, Content: content, ToolCallID: callID})
}

// Clear removes all entries. The last request is preserved until the next
// SetLastRequest.
func (t *Transcript) Clear() {
	t.entries = t.entries[:0]
}

// SetLastRequest records the original task statement. It is set once per
// task and preserved across compaction.
func (t *Transcript) SetLastRequest(text string) {
	t.lastRequest = text
}

// LastRequest returns the recorded task statement.
func (t *Transcript) LastRequest() string {
	return t.lastRequest
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entry sequence.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Last returns the most recent entry, or a zero Entry if empty.
func (t *Transcript) Last() (Entry, bool) {
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Clone creates a deep, order-preserving copy.
func (t *Transcript) Clone() *Transcript {
	clone := &Transcript{
		entries:     make([]Entry, len(t.entries)),
		lastRequest: t.lastRequest,
	}
	for i, e := range t.entries {
		copied := e
		if e.ToolCalls != nil {
			copied.ToolCalls = make([]llm.ToolCall, len(e.ToolCalls))
			copy(copied.ToolCalls, e.ToolCalls)
		}
		clone.entries[i] = copied
	}
	return clone
}

// RenderForModel converts the transcript into the message structure the
// model endpoint expects.
func (t *Transcript) RenderForModel() []llm.Message {
	var messages []llm.Message
	for _, e := range t.entries {
		switch e.Kind {
		case EntryUser:
			messages = append(messages, llm.UserMessage(e.Content))
		case EntrySystem:
			messages = append(messages, llm.SystemMessage(e.Content))
		case EntryAssistant:
			msg := llm.AssistantMessage(e.Content)
			for _, tc := range e.ToolCalls {
				msg.Content = append(msg.Content, llm.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
			}
			messages = append(messages, msg)
		case EntryToolResult:
			messages = append(messages, llm.ToolResultMessage(e.ToolCallID, e.Content, false))
		}
	}
	return messages
}

// SummarizeAsText produces a human-readable linearization of the
// conversation. It doubles as the input to compaction.
func (t *Transcript) SummarizeAsText() string {
	var lines []string
	for _, e := range t.entries {
		switch e.Kind {
		case EntryUser:
			lines = append(lines, "USER: "+e.Content)
		case EntrySystem:
			lines = append(lines, "SYSTEM: "+e.Content)
		case EntryAssistant:
			if len(e.ToolCalls) > 0 {
				names := make([]string, len(e.ToolCalls))
				for i, tc := range e.ToolCalls {
					names[i] = tc.Name
				}
				lines = append(lines, "ASSISTANT: Used tools: "+strings.Join(names, ", "))
			}
			if e.Content != "" {
				lines = append(lines, "ASSISTANT: "+e.Content)
			}
		case EntryToolResult:
			lines = append(lines, "TOOL_RESULT: "+e.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// tokenCharRatio is the characters-per-token proxy used for budget checks.
// The estimate only gates a soft threshold; tokenizer accuracy is not the
// contract.
const tokenCharRatio = 4

// EstimateTokenCount returns a cheap token estimate for the transcript.
func (t *Transcript) EstimateTokenCount() int {
	return len(t.SummarizeAsText()) / tokenCharRatio
}

// Validate checks that every tool_result entry correlates to a tool call
// requested by an earlier assistant entry.
func (t *Transcript) Validate() error {
	seen := make(map[string]bool)
	for i, e := range t.entries {
		switch e.Kind {
		case EntryAssistant:
			for _, tc := range e.ToolCalls {
				seen[tc.ID] = true
			}
		case EntryToolResult:
			if !seen[e.ToolCallID] {
				return fmt.Errorf("entry %d: tool result %q has no preceding tool call", i, e.ToolCallID)
			}
		}
	}
	return nil
}
