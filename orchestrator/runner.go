package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskhelm/taskhelm/llm"
	"github.com/taskhelm/taskhelm/toolservice"
)

// defaultSettleTimeout bounds how long a new task waits for the previous
// one to observe its cancellation request.
const defaultSettleTimeout = 2 * time.Second

// TaskRunner enforces single-flight task execution: no two tasks may run
// concurrently against the same transcript and tool session. Starting a
// new task first requests cancellation of the running one and waits,
// bounded, for it to settle.
type TaskRunner struct {
	client        *llm.Client
	model         string
	config        Config
	events        *EventEmitter
	SettleTimeout time.Duration

	mu       sync.Mutex
	service  toolservice.Service
	loop     *Loop
	done     chan struct{}
	stopFlag atomic.Bool
}

// NewTaskRunner creates a TaskRunner.
func NewTaskRunner(client *llm.Client, model string, service toolservice.Service, config Config, events *EventEmitter) *TaskRunner {
	if events == nil {
		events = NewEventEmitter(uuid.New().String(), 256)
	}
	return &TaskRunner{
		client:        client,
		model:         model,
		service:       service,
		config:        config,
		events:        events,
		SettleTimeout: defaultSettleTimeout,
	}
}

// Events returns the runner's event channel.
func (r *TaskRunner) Events() <-chan Event {
	return r.events.Events()
}

// Cancel requests cooperative cancellation of the running task, if any.
func (r *TaskRunner) Cancel() {
	r.stopFlag.Store(true)
}

// Running reports whether a task is currently executing.
func (r *TaskRunner) Running() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return false
	}
	return !settled(done)
}

// Start executes a task. If another task is running it is cancelled first
// and the runner waits for it to settle before resetting shared state.
func (r *TaskRunner) Start(ctx context.Context, request string) (Result, error) {
	done := make(chan struct{})
	loop, err := r.reserve(done)
	if err != nil {
		return Result{}, err
	}
	defer close(done)

	if err := r.service.Ping(ctx); err != nil {
		return Result{}, fmt.Errorf("tool service unreachable: %w", err)
	}

	return loop.RunWithCancel(ctx, request, r.stopFlag.Load)
}

// reserve installs done as the active task slot and returns the loop to
// run. The idle check and the reservation happen in one critical section,
// so concurrent Start calls serialize: the loser cancels the holder, waits
// for it to settle, and tries again.
func (r *TaskRunner) reserve(done chan struct{}) (*Loop, error) {
	for {
		r.mu.Lock()
		prev := r.done
		if prev == nil || settled(prev) {
			if r.loop == nil {
				r.loop = NewLoop(r.client, r.model, r.service, r.config, r.events)
			}
			loop := r.loop
			r.done = done
			r.stopFlag.Store(false)
			r.mu.Unlock()
			return loop, nil
		}
		r.mu.Unlock()

		r.stopFlag.Store(true)
		timeout := r.SettleTimeout
		if timeout <= 0 {
			timeout = defaultSettleTimeout
		}
		select {
		case <-prev:
		case <-time.After(timeout):
			return nil, fmt.Errorf("previous task did not settle within %v", timeout)
		}
	}
}

func settled(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// SetModel changes the model for subsequent tasks. The current loop is
// rebuilt around the new model with its transcript carried over.
func (r *TaskRunner) SetModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = model
	if r.loop != nil {
		replacement := NewLoop(r.client, r.model, r.service, r.config, r.events)
		replacement.SetTranscript(r.loop.Transcript())
		r.loop = replacement
	}
}

// Model returns the model used for subsequent tasks.
func (r *TaskRunner) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

// ReconnectPreservingTranscript swaps in a replacement tool service while
// explicitly transferring the transcript from the old loop to a new one,
// so conversation memory survives a tool-session restart. The old service
// is not closed here; the caller owns its lifecycle.
func (r *TaskRunner) ReconnectPreservingTranscript(service toolservice.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.service = service
	if r.loop != nil {
		preserved := r.loop.Transcript()
		replacement := NewLoop(r.client, r.model, service, r.config, r.events)
		replacement.SetTranscript(preserved)
		r.loop = replacement
	}
}

// Reset discards the current loop and its transcript; the next task
// starts from a clean slate.
func (r *TaskRunner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loop = nil
}
