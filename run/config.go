package run

import (
	"time"
)

// Defaults for Config fields.
const (
	// DefaultMaxAttempts is the number of tries for transient transport
	// failures on submit and poll.
	DefaultMaxAttempts = 3

	// DefaultPollInitialInterval is the first poll delay for adapters
	// without an event stream.
	DefaultPollInitialInterval = 1 * time.Second

	// DefaultPollMaxInterval caps the poll delay growth.
	DefaultPollMaxInterval = 10 * time.Second

	// DefaultTimeout bounds one execution end to end.
	DefaultTimeout = 30 * time.Minute
)

// Logger is the interface for logging.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Config controls retry, polling, and timeout behavior.
type Config struct {
	// MaxAttempts is the number of tries for transient transport failures
	// on submit and poll. Execution failures reported by the service are
	// never retried. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// PollInitialInterval is the first delay between polls. The delay
	// grows exponentially up to PollMaxInterval. Defaults to
	// DefaultPollInitialInterval.
	PollInitialInterval time.Duration

	// PollMaxInterval caps the delay between polls. Defaults to
	// DefaultPollMaxInterval.
	PollMaxInterval time.Duration

	// Timeout bounds one execution end to end; on expiry the job is
	// cancelled on its adapter. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger is an optional logger for execution events.
	Logger Logger
}

// applyDefaults sets default values for unset Config fields.
func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollInitialInterval <= 0 {
		c.PollInitialInterval = DefaultPollInitialInterval
	}
	if c.PollMaxInterval <= 0 {
		c.PollMaxInterval = DefaultPollMaxInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
}

// ConfigOption is a functional option for configuring a Runner.
type ConfigOption func(*Config)

// WithMaxAttempts sets the number of tries for transient failures.
func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithPollInterval sets the initial and maximum poll delays.
func WithPollInterval(initial, max time.Duration) ConfigOption {
	return func(c *Config) {
		c.PollInitialInterval = initial
		c.PollMaxInterval = max
	}
}

// WithTimeout sets the end-to-end execution timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithLogger sets the logger for execution events.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}
