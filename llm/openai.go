package llm

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter implements ProviderAdapter on top of the OpenAI chat
// completions API. With a custom base URL it also serves OpenRouter,
// Gemini's compatibility endpoint, and other OpenAI-compatible gateways.
type OpenAIAdapter struct {
	provider string
	client   *openai.Client
}

// NewOpenAIAdapter creates an adapter for the named OpenAI-compatible
// provider. If apiKey is empty it is read from the provider's environment
// variable; if baseURL is empty the provider's known endpoint is used.
func NewOpenAIAdapter(provider, apiKey, baseURL string) (*OpenAIAdapter, error) {
	entry := FindProvider(provider)
	if entry == nil && baseURL == "" {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: "unknown OpenAI-compatible provider: " + provider,
		}}
	}

	if apiKey == "" && entry != nil {
		apiKey = os.Getenv(entry.EnvKey)
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: "API key is required for provider " + provider,
		}}
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	} else if entry != nil {
		cfg.BaseURL = entry.APIURL
	}

	return &OpenAIAdapter{
		provider: provider,
		client:   openai.NewClientWithConfig(cfg),
	}, nil
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	oaReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: translateMessages(req.Messages),
	}

	if len(req.ToolDefs) > 0 {
		for _, td := range req.ToolDefs {
			oaReq.Tools = append(oaReq.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        td.Name,
					Description: td.Description,
					Parameters:  td.Parameters,
				},
			})
		}
	}
	// tool_choice is only valid alongside a tool list; "none" with no
	// tools is expressed by omitting both.
	if req.ToolChoice != nil && len(oaReq.Tools) > 0 {
		oaReq.ToolChoice = req.ToolChoice.Mode
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		oaReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if req.Temperature != nil {
		oaReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		oaReq.MaxTokens = *req.MaxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, oaReq)
	if err != nil {
		return nil, a.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			ClientError: ClientError{Message: "response contained no choices"},
			Provider:    a.provider,
			Retryable:   true,
		}
	}

	choice := resp.Choices[0]

	var parts []ContentPart
	if choice.Message.Content != "" {
		parts = append(parts, TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, ToolCallPart(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}

	return &Response{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.provider,
		Message: Message{
			Role:    RoleAssistant,
			Content: parts,
		},
		FinishReason: FinishReason{
			Reason: string(choice.FinishReason),
			Raw:    string(choice.FinishReason),
		},
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// translateMessages converts unified messages to the OpenAI wire format.
func translateMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.TextContent(),
			})
		case RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.TextContent(),
			})
		case RoleAssistant:
			oaMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.TextContent(),
			}
			for _, tc := range msg.ToolCalls() {
				oaMsg.ToolCalls = append(oaMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, oaMsg)
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					out = append(out, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    part.ToolResult.Content,
						ToolCallID: part.ToolResult.ToolCallID,
					})
				}
			}
		}
	}
	return out
}

// translateError converts a go-openai error into the llm error hierarchy.
func (a *OpenAIAdapter) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, a.provider, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ErrorFromStatusCode(reqErr.HTTPStatusCode, reqErr.Error(), a.provider, nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{ClientError: ClientError{Message: "request cancelled", Cause: err}}
	}
	return &NetworkError{ClientError: ClientError{Message: "request failed", Cause: err}}
}
