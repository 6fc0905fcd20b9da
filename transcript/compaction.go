package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskhelm/taskhelm/llm"
)

// compactionTargetWords bounds the length of the requested progress
// narrative.
const compactionTargetWords = 5000

// Compact produces a smaller replacement transcript by asking the model to
// summarize the conversation so far. The result is a brand-new transcript
// containing a single user entry that restates the task, the progress
// narrative, and a continuation instruction.
//
// Compaction is lossy: exact wording of prior turns is not recoverable,
// only its gist. It never fails: a transcript of two or fewer entries, or
// any model-call error, degrades to a deep copy of the current transcript.
func (t *Transcript) Compact(ctx context.Context, client *llm.Client, model string) *Transcript {
	if len(t.entries) <= 2 {
		return t.Clone()
	}

	prompt := fmt.Sprintf(`Summarize the progress of the following task conversation.

ORIGINAL TASK: %s

CONVERSATION:
%s

Write a progress narrative of at most %d words covering: what has been done,
what was learned, and what remains. Plain text only.`,
		t.lastRequest, t.SummarizeAsText(), compactionTargetWords)

	resp, err := client.Complete(ctx, llm.Request{
		Model:    model,
		Messages: []llm.Message{llm.UserMessage(prompt)},
	})
	if err != nil {
		return t.Clone()
	}
	narrative := strings.TrimSpace(resp.Text())
	if narrative == "" {
		return t.Clone()
	}

	compacted := New()
	compacted.SetLastRequest(t.lastRequest)
	compacted.AppendUser(fmt.Sprintf(
		"Task: %s\n\nProgress so far:\n%s\n\nContinue working on the task from this point.",
		t.lastRequest, narrative))
	return compacted
}

// CompactIfOver runs Compact when the estimated token count exceeds
// threshold. It returns the transcript to use next and whether compaction
// replaced it.
func (t *Transcript) CompactIfOver(ctx context.Context, client *llm.Client, model string, threshold int) (*Transcript, bool) {
	if t.EstimateTokenCount() <= threshold {
		return t, false
	}
	return t.Compact(ctx, client, model), true
}
