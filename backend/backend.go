package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/flowtool/workflow"
)

// Common errors for backend operations.
var (
	// ErrExecutionFailed indicates the backend ran the graph and
	// reported a failure. Not retryable.
	ErrExecutionFailed = errors.New("backend execution failed")

	// ErrUnknownHandle indicates a handle that no longer (or never)
	// identifies a job on the adapter.
	ErrUnknownHandle = errors.New("unknown job handle")

	// ErrAdapterExists is returned when registering a duplicate adapter.
	ErrAdapterExists = errors.New("adapter already registered")

	// ErrAdapterNotFound is returned when no adapter matches a lookup.
	ErrAdapterNotFound = errors.New("adapter not found")
)

// Kind identifies the execution model of a backend.
type Kind string

const (
	// KindLocal is a persistent local execution service reached over a
	// queue/streaming connection.
	KindLocal Kind = "local"

	// KindCloud is a remote asynchronous job API reached over HTTP
	// polling.
	KindCloud Kind = "cloud"
)

// Status is the backend-independent job status vocabulary.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// Handle identifies one submitted job on its adapter.
type Handle struct {
	// ID is the backend's job identifier (prompt ID, task ID).
	ID string

	// Adapter is the instance name of the adapter that owns the job.
	Adapter string
}

// Submission is the unit handed to an adapter: the bound graph, the
// parameter writes that produced it, and the cloud workflow reference for
// backends that execute pre-registered workflows by ID.
type Submission struct {
	// Workflow is the bound graph snapshot.
	Workflow *workflow.Workflow

	// Bindings are the parameter writes applied during binding. Cloud
	// adapters submit these as field overrides instead of the graph.
	Bindings []workflow.Binding

	// RemoteID is the pre-registered workflow identifier, when the
	// template originates from a cloud backend.
	RemoteID string
}

// Adapter executes bound workflow graphs on one backend instance.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods must honor cancellation/deadlines.
// - Errors: backend-reported execution failures surface as
//   ExecutionError; transport failures as ordinary wrapped errors.
// - Status: Poll maps native states onto the common Status enum and
//   never reverts a terminal status.
type Adapter interface {
	// Kind returns the adapter's execution model.
	Kind() Kind

	// Name returns the unique instance name for this adapter.
	Name() string

	// Submit hands a bound graph to the backend for execution.
	Submit(ctx context.Context, sub Submission) (Handle, error)

	// Poll reports the job's current status.
	Poll(ctx context.Context, h Handle) (Status, error)

	// FetchOutput collects the artifacts of a completed job.
	FetchOutput(ctx context.Context, h Handle) (Artifacts, error)

	// Cancel requests best-effort cancellation of an in-flight job.
	Cancel(ctx context.Context, h Handle) error
}

// Waiter is implemented by adapters whose backend pushes completion over a
// stream. Wait blocks until the job reaches a terminal status or the
// context is done.
type Waiter interface {
	Wait(ctx context.Context, h Handle) (Status, error)
}

// ExecutionError carries a backend-reported execution failure.
type ExecutionError struct {
	// Handle identifies the failed job.
	Handle Handle

	// Message is the backend's diagnostic, verbatim.
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s job %s: %s", e.Handle.Adapter, e.Handle.ID, e.Message)
}

// Is reports whether this error matches ErrExecutionFailed.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }

// Config describes one backend instance: its kind and connection
// parameters. It is supplied by the embedding application and consumed by
// adapter factories.
type Config struct {
	// Kind selects the adapter implementation.
	Kind Kind

	// Name is the adapter instance name; defaults to the kind.
	Name string

	// BaseURL is the backend's API base URL.
	BaseURL string

	// APIKey authorizes requests where the backend requires it.
	APIKey string

	// Options carries adapter-specific settings (slot counts, cookies).
	Options map[string]string
}

// Factory creates an adapter instance from a Config.
type Factory func(cfg Config) (Adapter, error)
