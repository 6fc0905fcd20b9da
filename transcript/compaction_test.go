package transcript

import (
	"context"
	"strings"
	"testing"

	"github.com/taskhelm/taskhelm/llm"
)

// mockAdapter is a test double for llm.ProviderAdapter.
type mockAdapter struct {
	text     string
	err      error
	requests []llm.Request
}

func (m *mockAdapter) Name() string { return "mock" }

func (m *mockAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Message: llm.AssistantMessage(m.text)}, nil
}

func newMockClient(adapter *mockAdapter) *llm.Client {
	return llm.NewClient(llm.WithProvider("mock", adapter))
}

func TestCompactShortTranscriptClones(t *testing.T) {
	adapter := &mockAdapter{text: "should not be called"}
	client := newMockClient(adapter)

	tr := New()
	tr.SetLastRequest("the goal")
	tr.AppendUser("a")
	tr.AppendAssistant("b", nil)

	compacted := tr.Compact(context.Background(), client, "m")
	if len(adapter.requests) != 0 {
		t.Errorf("expected no model call for short transcript, got %d", len(adapter.requests))
	}
	if compacted == tr {
		t.Error("expected a copy, not the same transcript")
	}
	if compacted.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", compacted.Len())
	}
	want := tr.Entries()
	got := compacted.Entries()
	for i := range want {
		if got[i].Kind != want[i].Kind || got[i].Content != want[i].Content {
			t.Errorf("entry %d differs: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestCompactReplacesWithSingleEntry(t *testing.T) {
	adapter := &mockAdapter{text: "Searched three sites, found the answer on the second."}
	client := newMockClient(adapter)

	tr := New()
	tr.SetLastRequest("find the release date")
	tr.AppendUser("a")
	tr.AppendAssistant("b", nil)
	tr.AppendUser("c")
	tr.AppendAssistant("d", nil)

	compacted := tr.Compact(context.Background(), client, "m")
	if len(adapter.requests) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(adapter.requests))
	}
	if compacted.Len() != 1 {
		t.Fatalf("expected a single entry after compaction, got %d", compacted.Len())
	}

	entry, _ := compacted.Last()
	if entry.Kind != EntryUser {
		t.Errorf("expected user entry, got %q", entry.Kind)
	}
	if !strings.Contains(entry.Content, "find the release date") {
		t.Error("compacted entry does not restate the original request verbatim")
	}
	if !strings.Contains(entry.Content, adapter.text) {
		t.Error("compacted entry does not carry the progress narrative")
	}
	if !strings.Contains(entry.Content, "Continue working on the task from this point.") {
		t.Error("compacted entry missing continuation instruction")
	}
	if compacted.LastRequest() != "find the release date" {
		t.Errorf("last request not preserved: %q", compacted.LastRequest())
	}
}

func TestCompactFallsBackOnModelError(t *testing.T) {
	adapter := &mockAdapter{err: &llm.ServerError{ProviderError: llm.ProviderError{
		ClientError: llm.ClientError{Message: "unavailable"}, Retryable: true,
	}}}
	client := newMockClient(adapter)

	tr := New()
	tr.SetLastRequest("goal")
	tr.AppendUser("a")
	tr.AppendAssistant("b", nil)
	tr.AppendUser("c")

	compacted := tr.Compact(context.Background(), client, "m")
	if compacted.Len() != 3 {
		t.Errorf("expected original entries preserved on failure, got %d", compacted.Len())
	}
}

func TestCompactFallsBackOnEmptyNarrative(t *testing.T) {
	adapter := &mockAdapter{text: "   \n"}
	client := newMockClient(adapter)

	tr := New()
	tr.SetLastRequest("goal")
	tr.AppendUser("a")
	tr.AppendAssistant("b", nil)
	tr.AppendUser("c")

	compacted := tr.Compact(context.Background(), client, "m")
	if compacted.Len() != 3 {
		t.Errorf("expected original entries preserved on empty narrative, got %d", compacted.Len())
	}
}

func TestCompactIfOver(t *testing.T) {
	adapter := &mockAdapter{text: "progress summary"}
	client := newMockClient(adapter)

	tr := New()
	tr.SetLastRequest("goal")
	tr.AppendUser("short")

	same, compacted := tr.CompactIfOver(context.Background(), client, "m", 1000)
	if compacted {
		t.Error("expected no compaction under threshold")
	}
	if same != tr {
		t.Error("expected the same transcript back under threshold")
	}

	tr.AppendAssistant(strings.Repeat("x", 400), nil)
	tr.AppendUser("more")
	replaced, compacted := tr.CompactIfOver(context.Background(), client, "m", 50)
	if !compacted {
		t.Fatal("expected compaction over threshold")
	}
	if replaced.Len() != 1 {
		t.Errorf("expected compacted transcript, got %d entries", replaced.Len())
	}
}
