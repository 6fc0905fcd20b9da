package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/taskhelm/taskhelm/llm"
	"github.com/taskhelm/taskhelm/toolservice"
)

// mockModel is a test double for llm.ProviderAdapter driven by a handler
// function.
type mockModel struct {
	mu       sync.Mutex
	handler  func(req llm.Request) (*llm.Response, error)
	requests []llm.Request
}

func (m *mockModel) Name() string { return "mock" }

func (m *mockModel) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return textResponse("ok"), nil
	}
	return handler(req)
}

func (m *mockModel) recorded() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func newMockClient(m *mockModel) *llm.Client {
	return llm.NewClient(llm.WithProvider("mock", m))
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Message: llm.AssistantMessage(text)}
}

func toolCallResponse(text string, calls ...llm.ToolCall) *llm.Response {
	msg := llm.AssistantMessage(text)
	for _, c := range calls {
		msg.Content = append(msg.Content, llm.ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	return &llm.Response{Message: msg}
}

// isEvaluationRequest distinguishes the evaluator's out-of-band query from
// the loop's completion requests.
func isEvaluationRequest(req llm.Request) bool {
	if len(req.Messages) != 1 {
		return false
	}
	return strings.HasPrefix(req.Messages[0].TextContent(), "You are a task progress evaluator")
}

func evalJSON(progress int, complete bool, accomplished, next string) string {
	return fmt.Sprintf(`{"accomplished":%q,"progress_percentage":%d,"next_step":%q,"is_complete":%v,"reasoning":"test"}`,
		accomplished, progress, next, complete)
}

type toolCallRecord struct {
	Name string
	Args map[string]interface{}
}

// fakeToolService is an in-memory toolservice.Service.
type fakeToolService struct {
	mu      sync.Mutex
	tools   []toolservice.ToolSpec
	callFn  func(name string, args map[string]interface{}) (string, error)
	calls   []toolCallRecord
	pingErr error
}

func newFakeToolService(toolNames ...string) *fakeToolService {
	s := &fakeToolService{}
	for _, name := range toolNames {
		s.tools = append(s.tools, toolservice.ToolSpec{Name: name, Description: name})
	}
	return s
}

func (s *fakeToolService) ListTools(ctx context.Context) ([]toolservice.ToolSpec, error) {
	return s.tools, nil
}

func (s *fakeToolService) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, toolCallRecord{Name: name, Args: args})
	fn := s.callFn
	s.mu.Unlock()
	if fn == nil {
		return "result of " + name, nil
	}
	return fn(name, args)
}

func (s *fakeToolService) Ping(ctx context.Context) error { return s.pingErr }

func (s *fakeToolService) Close() error { return nil }

func (s *fakeToolService) recordedCalls() []toolCallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]toolCallRecord, len(s.calls))
	copy(out, s.calls)
	return out
}
