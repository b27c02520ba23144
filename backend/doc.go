// Package backend defines the compute backend abstraction for executing
// bound workflow graphs, and a registry for managing adapter instances.
//
// An [Adapter] submits a bound graph and reports on the resulting job:
//
//   - Submit: hand the graph to the backend, returning a [Handle]
//   - Poll: read the job's current [Status]
//   - FetchOutput: collect the produced [Artifacts]
//   - Cancel: best-effort job cancellation
//
// Backends with a push-style completion stream additionally implement
// [Waiter]; the orchestrator prefers Wait over a poll loop when available.
//
// # Status Vocabulary
//
// Every adapter maps its backend's native job states onto the common
// [Status] enum (pending, running, succeeded, failed, timed_out,
// cancelled), so the orchestrator's state machine is backend-agnostic.
//
// # Failure Classification
//
// A backend that ran the graph and reported a failure surfaces an
// [ExecutionError] (matching [ErrExecutionFailed]); communication
// failures are returned as ordinary wrapped transport errors and are
// eligible for retry by the orchestrator.
package backend
