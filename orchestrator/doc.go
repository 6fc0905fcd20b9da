// Package orchestrator implements the agent execution loop: the
// iteration/evaluation/tool-dispatch cycle that drives a task to
// completion against a remote tool service.
//
// The package is organized around these core concepts:
//
//   - Dispatcher: executes one model-requested tool call with bounded
//     retries and uniform success/failure reporting into the transcript.
//   - Cycle: one or two round-trips with the model, auto-executing any
//     requested tools in between.
//   - Evaluator: out-of-band progress self-assessment, tolerant of
//     malformed model output. Evaluation time is also the choke point for
//     transcript compaction.
//   - Loop: the state machine driving repeated Evaluator -> Cycle rounds
//     until completion, cancellation, or budget exhaustion.
//   - TaskRunner: single-flight task ownership, cancel-and-wait handoff
//     between tasks, and the transcript-preserving reconnect flow.
//
// All work runs on one logical thread of control. Tool calls within a
// cycle are dispatched strictly sequentially: the remote service is
// assumed to hold serialized session state (a single browser session)
// that does not tolerate concurrent operations.
package orchestrator
