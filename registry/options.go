package registry

import (
	"errors"

	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/tooldiscovery/tooldoc"

	"github.com/jonwraymond/flowtool/backend"
	"github.com/jonwraymond/flowtool/run"
	"github.com/jonwraymond/flowtool/workflow"
)

// DefaultNamespace is the namespace tools are indexed under.
const DefaultNamespace = "workflow"

// Errors returned by Options validation and lookup.
var (
	// ErrAdaptersRequired is returned when no adapter registry is
	// configured.
	ErrAdaptersRequired = errors.New("registry: Adapters is required")

	// ErrNotFound is returned when no tool with the requested name is
	// registered.
	ErrNotFound = errors.New("registry: tool not found")
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

// Options configures a Registry.
type Options struct {
	// Adapters resolves descriptor backend names to execution adapters.
	// Required.
	Adapters *backend.Registry

	// Runner drives executions. Defaults to run.NewRunner().
	Runner *run.Runner

	// Index publishes registered tools for discovery.
	// Defaults to an in-memory index.
	Index index.Index

	// Docs publishes tool documentation.
	// Defaults to an in-memory store over Index.
	Docs tooldoc.Store

	// Compile configures template compilation, e.g. extra output node
	// types. Optional.
	Compile []workflow.CompileOption

	// Namespace is the discovery namespace tools are indexed under.
	// Defaults to DefaultNamespace.
	Namespace string

	// Logger is an optional logger for registry events.
	Logger Logger
}

// validate checks that required fields are set.
func (o *Options) validate() error {
	if o.Adapters == nil {
		return ErrAdaptersRequired
	}
	return nil
}

// applyDefaults sets default values for unset optional fields.
func (o *Options) applyDefaults() {
	if o.Runner == nil {
		o.Runner = run.NewRunner()
	}
	if o.Index == nil {
		o.Index = index.NewInMemoryIndex()
	}
	if o.Docs == nil {
		o.Docs = tooldoc.NewInMemoryStore(tooldoc.StoreOptions{Index: o.Index})
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
}
