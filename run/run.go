package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jonwraymond/flowtool/backend"
	"github.com/jonwraymond/flowtool/workflow"
)

// Errors returned by Execute after a job was submitted.
var (
	// ErrTimeout is returned when a job exceeds the configured timeout.
	// The job is cancelled on its adapter before the error is returned.
	ErrTimeout = errors.New("run: execution timed out")

	// ErrCancelled is returned when the caller's context is cancelled
	// while a job is in flight. The job is cancelled on its adapter
	// before the error is returned.
	ErrCancelled = errors.New("run: execution cancelled")
)

// Runner drives one submission through an adapter to a terminal result.
//
// Contract:
// - Concurrency: a Runner is safe for concurrent use; each Execute call
//   is independent.
// - Retries: transient transport failures on submit and poll are retried
//   up to MaxAttempts; execution failures reported by the service are
//   final.
// - Timeouts: when the configured timeout expires the job is cancelled
//   on its adapter and ErrTimeout is returned.
// - Cancellation: when the caller's context is cancelled mid-flight the
//   job is cancelled on its adapter and ErrCancelled is returned.
type Runner struct {
	cfg Config
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts ...ConfigOption) *Runner {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()
	return &Runner{cfg: cfg}
}

// Execute submits the bound graph, waits for a terminal status, and maps
// the artifacts onto the declared outputs. The returned Result is non-nil
// whenever a handle was obtained, including on failure and timeout.
func (r *Runner) Execute(ctx context.Context, adapter backend.Adapter, sub backend.Submission, outputs []workflow.OutputSpec) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	start := time.Now()

	h, err := r.submit(ctx, adapter, sub)
	if err != nil {
		return nil, err
	}
	r.cfg.Logger.Info("job submitted", "job_id", h.ID, "adapter", adapter.Name())

	status, waitErr := r.await(ctx, adapter, h)
	dur := time.Since(start)

	if waitErr != nil && ctx.Err() != nil && errors.Is(waitErr, context.DeadlineExceeded) {
		r.cancelJob(adapter, h)
		r.cfg.Logger.Warn("job timed out", "job_id", h.ID, "after", dur)
		res := &Result{JobID: h.ID, Status: backend.StatusTimedOut, Duration: dur}
		return res, fmt.Errorf("%w: job %s after %s", ErrTimeout, h.ID, dur.Round(time.Millisecond))
	}
	if waitErr != nil && ctx.Err() != nil && errors.Is(waitErr, context.Canceled) {
		r.cancelJob(adapter, h)
		r.cfg.Logger.Warn("job cancelled", "job_id", h.ID, "after", dur)
		res := &Result{JobID: h.ID, Status: backend.StatusCancelled, Duration: dur}
		return res, fmt.Errorf("%w: job %s", ErrCancelled, h.ID)
	}
	if waitErr != nil && !errors.Is(waitErr, backend.ErrExecutionFailed) {
		return nil, waitErr
	}
	if status == backend.StatusFailed || errors.Is(waitErr, backend.ErrExecutionFailed) {
		r.cfg.Logger.Error("job failed", "job_id", h.ID, "error", waitErr)
		res := &Result{JobID: h.ID, Status: backend.StatusFailed, Duration: dur}
		if waitErr == nil {
			waitErr = &backend.ExecutionError{Handle: h, Message: "job failed"}
		}
		return res, waitErr
	}

	arts, err := adapter.FetchOutput(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("fetch output for job %s: %w", h.ID, err)
	}
	res := buildResult(h.ID, status, dur, arts, outputs)
	r.cfg.Logger.Info("job finished", "job_id", h.ID, "status", status, "duration", res.Duration)
	return res, nil
}

// submit queues the submission, retrying transient transport failures.
func (r *Runner) submit(ctx context.Context, adapter backend.Adapter, sub backend.Submission) (backend.Handle, error) {
	var h backend.Handle
	op := func() error {
		var err error
		h, err = adapter.Submit(ctx, sub)
		if err != nil && errors.Is(err, backend.ErrExecutionFailed) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, r.retryPolicy(ctx)); err != nil {
		return backend.Handle{}, fmt.Errorf("submit: %w", err)
	}
	return h, nil
}

// await blocks until the job is terminal. Adapters with an event stream
// are waited on directly; others are polled with exponential delay.
func (r *Runner) await(ctx context.Context, adapter backend.Adapter, h backend.Handle) (backend.Status, error) {
	if w, ok := adapter.(backend.Waiter); ok {
		return w.Wait(ctx, h)
	}

	delays := r.pollDelays()
	failures := 0
	for {
		status, err := adapter.Poll(ctx, h)
		switch {
		case err != nil && errors.Is(err, backend.ErrExecutionFailed):
			return status, err
		case err != nil:
			failures++
			if failures >= r.cfg.MaxAttempts {
				return "", fmt.Errorf("poll job %s: %w", h.ID, err)
			}
			r.cfg.Logger.Warn("poll failed", "job_id", h.ID, "attempt", failures, "error", err)
		default:
			failures = 0
			if status.Terminal() {
				return status, nil
			}
		}

		select {
		case <-time.After(delays.NextBackOff()):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// cancelJob is a best-effort cancel decoupled from the expired context.
func (r *Runner) cancelJob(adapter backend.Adapter, h backend.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adapter.Cancel(ctx, h); err != nil {
		r.cfg.Logger.Warn("cancel failed", "job_id", h.ID, "error", err)
	}
}

func (r *Runner) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
}

func (r *Runner) pollDelays() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.PollInitialInterval
	b.MaxInterval = r.cfg.PollMaxInterval
	b.MaxElapsedTime = 0
	return b
}
