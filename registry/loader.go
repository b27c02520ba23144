package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonwraymond/flowtool/workflow"
)

// graphFetcher is implemented by adapters that can download the graph of
// a hosted workflow.
type graphFetcher interface {
	WorkflowJSON(ctx context.Context, workflowID string) ([]byte, error)
}

// templateEnvelope is the optional wrapper form of a template file,
// used to pin a template to a named backend or to a hosted workflow id.
// A file whose top level is neither key is treated as a raw graph.
type templateEnvelope struct {
	Backend    string          `json:"backend"`
	WorkflowID string          `json:"workflow_id"`
	Workflow   json.RawMessage `json:"workflow"`
}

// LoadFile compiles one template file and registers the resulting tool.
// The tool name is the file's base name without extension.
func (r *Registry) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	wf, opts, err := r.parseTemplate(ctx, name, data)
	if err != nil {
		return fmt.Errorf("registry: %s: %w", path, err)
	}
	d, err := workflow.Compile(wf, opts...)
	if err != nil {
		return fmt.Errorf("registry: %s: %w", path, err)
	}
	return r.Register(d)
}

// LoadDir loads every .json template in dir. Files that fail to compile
// are skipped with a warning so one bad template cannot block the rest.
func (r *Registry) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := r.LoadFile(ctx, path); err != nil {
			r.opts.Logger.Warn("template skipped", "path", path, "error", err)
			continue
		}
		loaded++
	}
	r.opts.Logger.Info("templates loaded", "dir", dir, "count", loaded)
	return nil
}

// parseTemplate resolves a template file into a graph plus compile
// options, unwrapping the envelope form when present.
func (r *Registry) parseTemplate(ctx context.Context, name string, data []byte) (*workflow.Workflow, []workflow.CompileOption, error) {
	opts := append([]workflow.CompileOption(nil), r.opts.Compile...)

	var env templateEnvelope
	if err := json.Unmarshal(data, &env); err == nil && (len(env.Workflow) > 0 || env.WorkflowID != "") {
		graph := []byte(env.Workflow)
		if len(graph) == 0 {
			fetched, err := r.fetchGraph(ctx, env.Backend, env.WorkflowID)
			if err != nil {
				return nil, nil, err
			}
			graph = fetched
		}
		wf, err := workflow.Parse(name, graph)
		if err != nil {
			return nil, nil, err
		}
		wf.SetRemoteID(env.WorkflowID)
		if env.Backend != "" {
			opts = append(opts, workflow.WithBackend(env.Backend))
		}
		return wf, opts, nil
	}

	wf, err := workflow.Parse(name, data)
	if err != nil {
		return nil, nil, err
	}
	return wf, opts, nil
}

// fetchGraph downloads a hosted workflow's graph through its adapter.
func (r *Registry) fetchGraph(ctx context.Context, backendName, workflowID string) ([]byte, error) {
	adapter, err := r.opts.Adapters.Get(backendName)
	if err != nil {
		return nil, err
	}
	fetcher, ok := adapter.(graphFetcher)
	if !ok {
		return nil, fmt.Errorf("adapter %s cannot fetch hosted workflow %s", adapter.Name(), workflowID)
	}
	return fetcher.WorkflowJSON(ctx, workflowID)
}
