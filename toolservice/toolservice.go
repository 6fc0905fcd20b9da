// Package toolservice connects the agent to a remote tool-execution
// service speaking the Model Context Protocol. The rest of the system
// treats it as an opaque RPC surface: list the tools once per task, call
// them by name, ping to check liveness.
package toolservice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhelm/taskhelm/llm"
)

// ToolSpec describes one tool offered by the remote service.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Service is the remote tool-execution contract.
type Service interface {
	ListTools(ctx context.Context) ([]ToolSpec, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// MCPService implements Service over an MCP client session.
type MCPService struct {
	session *mcpsdk.ClientSession
	cmd     *exec.Cmd // non-nil for command transports
}

// ConnectStreamable connects to an MCP server over streamable HTTP.
func ConnectStreamable(ctx context.Context, url string) (*MCPService, error) {
	client := newSDKClient()
	session, err := client.Connect(ctx, mcpsdk.NewStreamableClientTransport(url, nil))
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server at %s: %w", url, err)
	}
	return &MCPService{session: session}, nil
}

// ConnectCommand starts an MCP server subprocess and connects over stdio.
func ConnectCommand(ctx context.Context, command string, args []string) (*MCPService, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	client := newSDKClient()
	session, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("connecting to MCP server %q: %w", command, err)
	}
	return &MCPService{session: session, cmd: cmd}, nil
}

func newSDKClient() *mcpsdk.Client {
	return mcpsdk.NewClient(&mcpsdk.Implementation{Name: "taskhelm", Version: "v0.1.0"}, nil)
}

// ListTools returns every tool the server offers, following pagination.
func (s *MCPService) ListTools(ctx context.Context) ([]ToolSpec, error) {
	var specs []ToolSpec
	params := &mcpsdk.ListToolsParams{}
	for {
		result, err := s.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		for _, t := range result.Tools {
			specs = append(specs, ToolSpec{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaToMap(t.InputSchema),
			})
		}
		if result.NextCursor == "" {
			break
		}
		params.Cursor = result.NextCursor
	}
	return specs, nil
}

// CallTool invokes a tool and returns the concatenated text content of the
// result.
func (s *MCPService) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := s.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		msg := err.Error()
		if strings.Contains(strings.ToLower(msg), "session") || strings.Contains(strings.ToLower(msg), "terminated") {
			return "", fmt.Errorf("tool session terminated: %w", err)
		}
		return "", fmt.Errorf("tool call failed: %w", err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s reported an error: %s", name, sb.String())
	}
	return sb.String(), nil
}

// Ping checks server liveness.
func (s *MCPService) Ping(ctx context.Context) error {
	return s.session.Ping(ctx, nil)
}

// Close terminates the session and, for command transports, the server
// subprocess.
func (s *MCPService) Close() error {
	var err error
	if s.session != nil {
		err = s.session.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if killErr := s.cmd.Process.Kill(); err == nil {
			err = killErr
		}
	}
	return err
}

// schemaToMap converts the SDK's schema representation into the generic
// JSON-schema map the model endpoint expects.
func schemaToMap(schema any) map[string]interface{} {
	fallback := map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	if schema == nil {
		return fallback
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil || len(m) == 0 {
		return fallback
	}
	return m
}

// ToolDefinitions converts tool specs into the model-facing schema.
func ToolDefinitions(specs []ToolSpec) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(specs))
	for i, spec := range specs {
		params := spec.InputSchema
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		defs[i] = llm.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		}
	}
	return defs
}

// ToolNames extracts the name catalog from tool specs.
func ToolNames(specs []ToolSpec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}
