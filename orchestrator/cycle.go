package orchestrator

import (
	"context"
	"time"

	"github.com/taskhelm/taskhelm/llm"
	"github.com/taskhelm/taskhelm/transcript"
)

// Cycle performs one completion round-trip with the model, auto-executing
// any requested tools and folding the results back in as a second
// round-trip so the model can react to the tool output.
type Cycle struct {
	client     *llm.Client
	model      string
	dispatcher *Dispatcher
	events     *EventEmitter
	retry      llm.RetryPolicy
}

// NewCycle creates a Cycle. The dispatcher may be nil only if the model is
// never offered tools.
func NewCycle(client *llm.Client, model string, dispatcher *Dispatcher, events *EventEmitter) *Cycle {
	c := &Cycle{
		client:     client,
		model:      model,
		dispatcher: dispatcher,
		events:     events,
		retry:      llm.DefaultRetryPolicy(),
	}
	c.retry.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.events.Emit(EventWarning, map[string]interface{}{
			"stage":   "completion",
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	}
	return c
}

// Run issues a completion request over the transcript with the tool
// catalog attached. The model's reply is appended as an assistant entry.
// If it requested tools they are dispatched strictly in emission order,
// then a second request with tool use disabled forces a natural-language
// reaction to the tool output. The returned string is the final reply's
// content.
//
// The transcript grows by one assistant entry, or by N tool results
// bracketed by two assistant entries when N tools ran.
func (c *Cycle) Run(ctx context.Context, tr *transcript.Transcript, toolDefs []llm.ToolDefinition) (string, error) {
	req := llm.Request{
		Model:    c.model,
		Messages: tr.RenderForModel(),
	}
	if len(toolDefs) > 0 {
		req.ToolDefs = toolDefs
		req.ToolChoice = &llm.ToolChoice{Mode: "auto"}
	}

	resp, err := llm.Retry(ctx, c.retry, func(ctx context.Context) (*llm.Response, error) {
		return c.client.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}

	toolCalls := resp.ToolCallsFromResponse()
	tr.AppendAssistant(resp.Text(), toolCalls)
	c.events.Emit(EventAssistantText, map[string]interface{}{"text": resp.Text()})

	if len(toolCalls) == 0 {
		return resp.Text(), nil
	}

	if c.dispatcher == nil {
		// The model asked for tools but nothing can run them. This is a
		// wiring bug, not a model condition; fail loudly.
		return "", &llm.ConfigurationError{ClientError: llm.ClientError{
			Message: "model requested tool calls but no dispatcher is registered",
		}}
	}

	// Each result must be in context before the next call's result is
	// interpreted, and the remote session does not tolerate concurrent
	// operations.
	for _, call := range toolCalls {
		c.dispatcher.Execute(ctx, tr, call)
	}

	followUp := llm.Request{
		Model:      c.model,
		Messages:   tr.RenderForModel(),
		ToolChoice: &llm.ToolChoice{Mode: "none"},
	}
	finalResp, err := llm.Retry(ctx, c.retry, func(ctx context.Context) (*llm.Response, error) {
		return c.client.Complete(ctx, followUp)
	})
	if err != nil {
		return "", err
	}

	tr.AppendAssistant(finalResp.Text(), nil)
	c.events.Emit(EventAssistantText, map[string]interface{}{"text": finalResp.Text()})
	return finalResp.Text(), nil
}
