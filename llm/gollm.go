package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// It serves providers without an OpenAI-compatible endpoint. gollm has no
// native tool-call channel, so tool definitions ride along in the prompt
// and tool calls are parsed back out of the response text.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(provider string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled by llm.Retry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.model != "" {
		gollmOpts = append(gollmOpts, gollm.SetModel(cfg.model))
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	inner, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: "failed to create gollm LLM for provider " + provider,
			Cause:   err,
		}}
	}

	return &GollmAdapter{
		provider: provider,
		llm:      inner,
		model:    cfg.model,
	}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		// No structured output mode; the caller falls back to free text.
		return nil, &UnsupportedResponseFormatError{ClientError: ClientError{
			Message: "gollm adapter does not support json_object response format",
		}}
	}

	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	return a.buildResponse(req, text), nil
}

// translateRequest converts a unified Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.TextContent() + "\n"
		case RoleUser:
			userParts = append(userParts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				userParts = append(userParts, "[Assistant]: "+text)
			}
			for _, tc := range msg.ToolCalls() {
				userParts = append(userParts, "[Assistant called tool]: "+tc.Name)
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					prefix := "[Tool Result]"
					if part.ToolResult.IsError {
						prefix = "[Tool Error]"
					}
					userParts = append(userParts, prefix+": "+part.ToolResult.Content)
				}
			}
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}

	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	if len(req.ToolDefs) > 0 && (req.ToolChoice == nil || req.ToolChoice.Mode != "none") {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		if req.ToolChoice != nil {
			promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
		}
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a unified Response from the generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	var contentParts []ContentPart
	toolCalls := parseEmbeddedToolCalls(text)
	for i := range toolCalls {
		contentParts = append(contentParts, ContentPart{
			Kind:     ContentToolCall,
			ToolCall: &toolCalls[i],
		})
	}

	cleanedText := removeToolCallJSON(text, toolCalls)
	if cleanedText != "" {
		contentParts = append([]ContentPart{TextPart(cleanedText)}, contentParts...)
	}
	if len(contentParts) == 0 {
		contentParts = []ContentPart{TextPart(text)}
	}

	finishReason := FinishReason{Reason: "stop", Raw: "stop"}
	if len(toolCalls) > 0 {
		finishReason = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm does not expose usage; estimate from text length.
	inputTokens := estimateRequestTokens(req)
	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: a.provider,
		Message: Message{
			Role:    RoleAssistant,
			Content: contentParts,
		},
		FinishReason: finishReason,
		Usage: Usage{
			InputTokens:  inputTokens,
			OutputTokens: len(text) / 4,
			TotalTokens:  inputTokens + len(text)/4,
		},
	}
}

// parseEmbeddedToolCalls attempts to extract tool calls that gollm returns
// as JSON embedded in the response text.
func parseEmbeddedToolCalls(text string) []ToolCallData {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	var calls []ToolCallData
	for _, rc := range rawCalls {
		calls = append(calls, ToolCallData{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
	}
	return calls
}

// removeToolCallJSON removes parsed tool call JSON from the text.
func removeToolCallJSON(text string, calls []ToolCallData) string {
	if len(calls) == 0 {
		return text
	}
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// translateError converts a gollm error into the llm error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	msg := err.Error()
	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 401,
		}}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 413,
		}}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 500, Retryable: true,
		}}
	default:
		return &ProviderError{
			ClientError: ClientError{Message: msg, Cause: err},
			Provider:    a.provider,
			Retryable:   true,
		}
	}
}

// estimateRequestTokens provides a rough token count from request messages.
func estimateRequestTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Kind == ContentText {
				total += len(part.Text) / 4
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
