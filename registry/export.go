package registry

import (
	"sort"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/flowtool/workflow"
)

// Tools exports every registered tool in wire form, sorted by name.
func (r *Registry) Tools() []model.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]model.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, exportTool(r.tools[name], r.opts.Namespace))
	}
	return out
}

// exportTool renders a descriptor as a callable tool definition.
func exportTool(d *workflow.Descriptor, namespace string) model.Tool {
	description := d.Description()
	if description == "" {
		description = d.Title()
	}
	return model.Tool{
		Tool: mcp.Tool{
			Name:        d.Name(),
			Description: description,
			InputSchema: inputSchema(d),
		},
		Namespace: namespace,
	}
}

// inputSchema builds the JSON Schema for the tool's parameters.
func inputSchema(d *workflow.Descriptor) map[string]any {
	properties := make(map[string]any)
	var required []string
	for _, p := range d.Parameters() {
		prop := map[string]any{
			"type": p.Type.JSONType(),
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if !p.Required && p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
