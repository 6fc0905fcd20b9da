package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/taskhelm/taskhelm/llm"
	"github.com/taskhelm/taskhelm/transcript"
)

// Evaluation is the model's structured self-assessment of task progress.
// It is produced fresh each iteration and consumed immediately; it is
// never appended to the transcript.
type Evaluation struct {
	Accomplished       string `json:"accomplished"`
	ProgressPercentage int    `json:"progress_percentage"`
	NextStep           string `json:"next_step"`
	SuggestedTool      string `json:"suggested_tool,omitempty"`
	IsComplete         bool   `json:"is_complete"`
	Reasoning          string `json:"reasoning"`
}

// Evaluator asks the model, out of band, to assess progress against the
// original goal. Malformed model output never causes an error; only the
// model call itself can fail.
type Evaluator struct {
	client    *llm.Client
	model     string
	threshold int
	events    *EventEmitter
}

// NewEvaluator creates an Evaluator. threshold <= 0 uses the default
// compaction threshold of 100000 estimated tokens.
func NewEvaluator(client *llm.Client, model string, threshold int, events *EventEmitter) *Evaluator {
	if threshold <= 0 {
		threshold = 100000
	}
	return &Evaluator{client: client, model: model, threshold: threshold, events: events}
}

// Evaluate runs the auto-compaction check, then issues the evaluation
// request. It returns the transcript to use for subsequent work (a
// replacement when compaction fired) along with the parsed evaluation.
//
// Evaluation time is the budget-enforcement choke point: it runs once per
// loop iteration regardless of which branch the loop takes afterwards.
func (e *Evaluator) Evaluate(ctx context.Context, tr *transcript.Transcript, userRequest string, toolNames []string) (*transcript.Transcript, Evaluation, error) {
	before := tr.EstimateTokenCount()
	tr, compacted := tr.CompactIfOver(ctx, e.client, e.model, e.threshold)
	if compacted {
		e.events.Emit(EventCompaction, map[string]interface{}{
			"tokens_before": before,
			"tokens_after":  tr.EstimateTokenCount(),
		})
	}

	prompt := buildEvaluationPrompt(userRequest, toolNames, tr.SummarizeAsText())
	req := llm.Request{
		Model:          e.model,
		Messages:       []llm.Message{llm.UserMessage(prompt)},
		ToolChoice:     &llm.ToolChoice{Mode: "none"},
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	}

	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		if !formatRejected(err) {
			return tr, Evaluation{}, err
		}
		// Structured output support is optional; retry in free-text mode.
		req.ResponseFormat = nil
		resp, err = e.client.Complete(ctx, req)
		if err != nil {
			return tr, Evaluation{}, err
		}
	}

	eval := parseEvaluation(resp.Text())
	e.events.Emit(EventEvaluation, map[string]interface{}{
		"progress":     eval.ProgressPercentage,
		"accomplished": eval.Accomplished,
		"next_step":    eval.NextStep,
		"is_complete":  eval.IsComplete,
	})
	return tr, eval, nil
}

// formatRejected reports whether the provider refused the structured
// output request itself, rather than failing the query. Adapters without
// a JSON mode signal UnsupportedResponseFormatError; OpenAI-compatible
// gateways reject an unsupported response_format as a 400.
func formatRejected(err error) bool {
	switch err.(type) {
	case *llm.UnsupportedResponseFormatError, *llm.InvalidRequestError:
		return true
	}
	return false
}

func buildEvaluationPrompt(userRequest string, toolNames []string, summary string) string {
	return fmt.Sprintf(`You are a task progress evaluator. Analyze the current state and provide guidance.

ORIGINAL USER REQUEST: %s

AVAILABLE TOOLS: %s

CONVERSATION HISTORY:
%s

Please evaluate:
1. What has been accomplished so far?
2. What percentage complete is the task (0-100%%)?
3. What specific step should happen next?
4. Which tool should be used for the next step?
5. Is the task complete? (yes/no)

Respond in JSON format:
{
    "accomplished": "description of what's done",
    "progress_percentage": 0-100,
    "next_step": "specific next action needed",
    "suggested_tool": "tool_name or null",
    "is_complete": true/false,
    "reasoning": "explanation of assessment"
}

Do not wrap the response in a code fence.`,
		userRequest, strings.Join(toolNames, ", "), summary)
}

var percentPattern = regexp.MustCompile(`(\d+)%`)

// parseEvaluation turns whatever the model sent back into a usable
// Evaluation. It never fails: empty content yields a conservative
// default, unparsable content falls back to keyword and percentage
// scanning.
func parseEvaluation(content string) Evaluation {
	if strings.TrimSpace(content) == "" {
		return Evaluation{
			Accomplished:       "No evaluation content received",
			ProgressPercentage: 10,
			NextStep:           "Continue with original request",
			IsComplete:         false,
			Reasoning:          "empty evaluation response",
		}
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &eval); err == nil {
		if eval.ProgressPercentage < 0 {
			eval.ProgressPercentage = 0
		} else if eval.ProgressPercentage > 100 {
			eval.ProgressPercentage = 100
		}
		return eval
	}

	progress := 20
	complete := false
	lower := strings.ToLower(content)
	if strings.Contains(lower, "complete") || strings.Contains(lower, "done") {
		progress = 100
		complete = true
	} else if m := percentPattern.FindStringSubmatch(content); m != nil {
		if p, err := strconv.Atoi(m[1]); err == nil && p <= 100 {
			progress = p
		}
	}

	accomplished := content
	if len(accomplished) > 100 {
		accomplished = accomplished[:100] + "..."
	}

	return Evaluation{
		Accomplished:       accomplished,
		ProgressPercentage: progress,
		NextStep:           "Continue with task execution",
		IsComplete:         complete,
		Reasoning:          "parsed from unstructured text response",
	}
}
