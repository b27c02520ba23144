package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonwraymond/tooldiscovery/tooldoc"
	"github.com/jonwraymond/toolfoundation/model"

	"github.com/jonwraymond/flowtool/backend"
	"github.com/jonwraymond/flowtool/run"
	"github.com/jonwraymond/flowtool/workflow"
)

// Registry holds compiled workflow tools and dispatches invocations.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Registration: registering a name twice replaces the earlier tool.
// - Dispatch: Invoke resolves the tool's backend adapter at call time,
//   so adapters registered after the tool are picked up.
type Registry struct {
	opts Options

	mu    sync.RWMutex
	tools map[string]*workflow.Descriptor
}

// New creates a Registry with the given options.
func New(opts Options) (*Registry, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()
	return &Registry{
		opts:  opts,
		tools: make(map[string]*workflow.Descriptor),
	}, nil
}

// Register adds a compiled tool and publishes it for discovery. A tool
// with the same name replaces the earlier registration. The tool is
// published to the index first, so a failed registration leaves it
// neither indexed nor invocable.
func (r *Registry) Register(d *workflow.Descriptor) error {
	tool := exportTool(d, r.opts.Namespace)
	if err := r.opts.Index.RegisterTool(tool, model.NewLocalBackend(d.Name())); err != nil {
		return fmt.Errorf("registry: index %s: %w", d.Name(), err)
	}
	if store, ok := r.opts.Docs.(*tooldoc.InMemoryStore); ok {
		_ = store.RegisterDoc(toolID(r.opts.Namespace, d.Name()), tooldoc.DocEntry{
			Summary: d.Description(),
			Notes:   parameterNotes(d),
		})
	}

	r.mu.Lock()
	_, replaced := r.tools[d.Name()]
	r.tools[d.Name()] = d
	r.mu.Unlock()

	if replaced {
		r.opts.Logger.Info("tool replaced", "name", d.Name())
	} else {
		r.opts.Logger.Info("tool registered", "name", d.Name())
	}
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*workflow.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke executes the named tool with the given arguments: the tool's
// template is bound, routed to its backend adapter, and driven to a
// terminal result. Argument errors are reported before any backend call.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (*run.Result, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	adapter, err := r.opts.Adapters.Get(d.Backend())
	if err != nil {
		return nil, fmt.Errorf("registry: tool %s: %w", name, err)
	}

	var bindOpts []workflow.BindOption
	if stager, ok := adapter.(workflow.Stager); ok {
		bindOpts = append(bindOpts, workflow.WithStager(stager))
	}
	bound, bindings, err := d.Bind(ctx, args, bindOpts...)
	if err != nil {
		return nil, fmt.Errorf("registry: tool %s: %w", name, err)
	}

	r.opts.Logger.Info("invoking tool", "name", name, "adapter", adapter.Name())
	sub := backend.Submission{
		Workflow: bound,
		Bindings: bindings,
		RemoteID: bound.RemoteID(),
	}
	return r.opts.Runner.Execute(ctx, adapter, sub, d.Outputs())
}

// Describe returns the tool's documentation at the given detail level.
func (r *Registry) Describe(name string, level tooldoc.DetailLevel) (tooldoc.ToolDoc, error) {
	return r.opts.Docs.DescribeTool(toolID(r.opts.Namespace, name), level)
}

func toolID(namespace, name string) string {
	return namespace + ":" + name
}

// parameterNotes renders a short per-parameter summary for the doc store.
func parameterNotes(d *workflow.Descriptor) string {
	notes := ""
	for _, p := range d.Parameters() {
		req := "optional"
		if p.Required {
			req = "required"
		}
		notes += fmt.Sprintf("%s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
	}
	return notes
}
