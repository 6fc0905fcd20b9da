package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskhelm/taskhelm/llm"
	"github.com/taskhelm/taskhelm/toolservice"
	"github.com/taskhelm/taskhelm/transcript"
)

// State is the lifecycle state of the execution loop.
type State string

const (
	StatePreparing   State = "preparing"
	StateIterating   State = "iterating"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateCancelled   State = "cancelled"
	StateExhausted   State = "exhausted"
)

// Config holds the loop's tunables.
type Config struct {
	MaxIterations  int // iteration budget per task
	TokenThreshold int // estimated-token threshold that triggers compaction
	ToolAttempts   int // attempts per tool call
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  25,
		TokenThreshold: 100000,
		ToolAttempts:   3,
	}
}

// iterationYield is the deliberate pause at the end of each iteration so
// an external cancellation signal is observed promptly.
const iterationYield = 100 * time.Millisecond

// Result is the terminal outcome of one task execution.
type Result struct {
	State           State
	Message         string
	Iterations      int
	FinalEvaluation Evaluation
}

// Loop is the orchestrator: it owns one transcript per task and drives
// repeated evaluate/cycle rounds until a terminal state.
type Loop struct {
	client  *llm.Client
	model   string
	service toolservice.Service
	config  Config
	events  *EventEmitter
	tr      *transcript.Transcript
}

// NewLoop creates a Loop with its own fresh transcript.
func NewLoop(client *llm.Client, model string, service toolservice.Service, config Config, events *EventEmitter) *Loop {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.TokenThreshold <= 0 {
		config.TokenThreshold = DefaultConfig().TokenThreshold
	}
	if config.ToolAttempts <= 0 {
		config.ToolAttempts = DefaultConfig().ToolAttempts
	}
	return &Loop{
		client:  client,
		model:   model,
		service: service,
		config:  config,
		events:  events,
		tr:      transcript.New(),
	}
}

// Transcript returns the loop's transcript. Used by reconnect flows to
// transfer ownership explicitly before the loop is discarded.
func (l *Loop) Transcript() *transcript.Transcript {
	return l.tr
}

// SetTranscript injects a preserved transcript, replacing the loop's own.
func (l *Loop) SetTranscript(tr *transcript.Transcript) {
	if tr != nil {
		l.tr = tr
	}
}

// Run executes the task without a cancellation predicate.
func (l *Loop) Run(ctx context.Context, userRequest string) (Result, error) {
	return l.RunWithCancel(ctx, userRequest, nil)
}

// RunWithCancel executes the task, polling shouldStop at iteration
// boundaries. The predicate must be side-effect-free and cheap; a nil
// predicate never stops.
func (l *Loop) RunWithCancel(ctx context.Context, userRequest string, shouldStop func() bool) (Result, error) {
	if shouldStop == nil {
		shouldStop = func() bool { return false }
	}

	l.events.Emit(EventTaskStart, map[string]interface{}{"request": userRequest})
	l.setState(StatePreparing)

	dispatcher := NewDispatcher(l.service, l.config.ToolAttempts, l.events)
	cycle := NewCycle(l.client, l.model, dispatcher, l.events)
	evaluator := NewEvaluator(l.client, l.model, l.config.TokenThreshold, l.events)

	specs, err := l.service.ListTools(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetching tool catalog: %w", err)
	}
	toolDefs := toolservice.ToolDefinitions(specs)
	toolNames := toolservice.ToolNames(specs)

	l.tr.Clear()
	l.tr.SetLastRequest(userRequest)
	l.tr.AppendUser(fmt.Sprintf(`Task: %s

You have access to the following tools. Execute this task step by step.
Available tools include: %s

Please start by taking the first necessary action to complete this task.`,
		userRequest, strings.Join(toolNames, ", ")))

	l.setState(StateIterating)

	var lastEval Evaluation
	for iteration := 1; iteration <= l.config.MaxIterations; iteration++ {
		l.events.Emit(EventIteration, map[string]interface{}{"iteration": iteration})

		if shouldStop() {
			eval := l.finalEvaluation(ctx, evaluator, userRequest, toolNames, lastEval)
			return l.finish(StateInterrupted, eval, iteration,
				fmt.Sprintf("Task interrupted at %d%% completion: %s", eval.ProgressPercentage, eval.Accomplished)), nil
		}

		tr, eval, err := evaluator.Evaluate(ctx, l.tr, userRequest, toolNames)
		l.tr = tr
		if err != nil {
			if isCancellation(ctx, err) {
				eval := l.finalEvaluation(ctx, evaluator, userRequest, toolNames, lastEval)
				return l.finish(StateCancelled, eval, iteration,
					fmt.Sprintf("Task cancelled at %d%% completion: %s", eval.ProgressPercentage, eval.Accomplished)), nil
			}
			return Result{}, fmt.Errorf("progress evaluation: %w", err)
		}
		lastEval = eval

		if eval.IsComplete {
			return l.finish(StateCompleted, eval, iteration, eval.Accomplished), nil
		}

		// Second checkpoint before committing to a potentially long tool
		// round.
		if shouldStop() {
			return l.finish(StateInterrupted, eval, iteration,
				fmt.Sprintf("Task interrupted at %d%% completion: %s", eval.ProgressPercentage, eval.Accomplished)), nil
		}

		steering := fmt.Sprintf("You should make your own decision without asking the user's help, but you could use %s as a reference", eval.NextStep)
		l.tr.AppendUser(steering)
		l.events.Emit(EventSteering, map[string]interface{}{"next_step": eval.NextStep})

		if _, err := cycle.Run(ctx, l.tr, toolDefs); err != nil {
			if isCancellation(ctx, err) {
				eval := l.finalEvaluation(ctx, evaluator, userRequest, toolNames, lastEval)
				return l.finish(StateCancelled, eval, iteration,
					fmt.Sprintf("Task cancelled at %d%% completion: %s", eval.ProgressPercentage, eval.Accomplished)), nil
			}
			return Result{}, fmt.Errorf("completion cycle: %w", err)
		}

		// Cooperative scheduling point.
		select {
		case <-ctx.Done():
			eval := l.finalEvaluation(ctx, evaluator, userRequest, toolNames, lastEval)
			return l.finish(StateCancelled, eval, iteration,
				fmt.Sprintf("Task cancelled at %d%% completion: %s", eval.ProgressPercentage, eval.Accomplished)), nil
		case <-time.After(iterationYield):
		}
	}

	eval := l.finalEvaluation(ctx, evaluator, userRequest, toolNames, lastEval)
	return l.finish(StateExhausted, eval, l.config.MaxIterations,
		fmt.Sprintf("Task partially completed (%d%%): %s", eval.ProgressPercentage, eval.Accomplished)), nil
}

// finalEvaluation attempts one best-effort evaluation for a terminal
// report. When the original context is no longer usable the call runs on
// a short detached deadline; if that fails too, the last known evaluation
// stands.
func (l *Loop) finalEvaluation(ctx context.Context, evaluator *Evaluator, userRequest string, toolNames []string, lastKnown Evaluation) Evaluation {
	evalCtx := ctx
	var cancel context.CancelFunc
	if ctx.Err() != nil {
		evalCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
	}
	tr, eval, err := evaluator.Evaluate(evalCtx, l.tr, userRequest, toolNames)
	if err != nil {
		return lastKnown
	}
	l.tr = tr
	return eval
}

func (l *Loop) finish(state State, eval Evaluation, iterations int, message string) Result {
	l.setState(state)
	l.events.Emit(EventTaskEnd, map[string]interface{}{
		"state":   string(state),
		"message": message,
	})
	return Result{
		State:           state,
		Message:         message,
		Iterations:      iterations,
		FinalEvaluation: eval,
	}
}

func (l *Loop) setState(state State) {
	l.events.Emit(EventStateChange, map[string]interface{}{"state": string(state)})
}

// isCancellation distinguishes context-cancellation causes from genuine
// model errors at the loop boundary.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if _, ok := err.(*llm.AbortError); ok {
		return true
	}
	return false
}
