package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Node is a single computation unit in a workflow graph.
type Node struct {
	// ClassType identifies the node kind (e.g. "KSampler", "SaveImage").
	ClassType string `json:"class_type"`

	// Inputs maps input field names to values. A value that is a JSON
	// array is an inbound connection from another node rather than a
	// literal default.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Meta carries authoring metadata, including the title the DSL is
	// embedded in.
	Meta NodeMeta `json:"_meta,omitempty"`
}

// NodeMeta is the authoring metadata attached to a node.
type NodeMeta struct {
	Title string `json:"title,omitempty"`
}

// Title returns the node's trimmed title.
func (n *Node) Title() string {
	return strings.TrimSpace(n.Meta.Title)
}

// HasInput reports whether the named input field exists on the node.
func (n *Node) HasInput(field string) bool {
	_, ok := n.Inputs[field]
	return ok
}

// InputConnected reports whether the named input receives its value from
// an inbound graph edge. Connections are encoded as JSON arrays of
// [sourceNodeID, outputIndex].
func (n *Node) InputConnected(field string) bool {
	switch n.Inputs[field].(type) {
	case []any:
		return true
	default:
		return false
	}
}

// InputValue returns the literal default of the named input, or nil if the
// field is absent or fed by a connection.
func (n *Node) InputValue(field string) any {
	if n.InputConnected(field) {
		return nil
	}
	return n.Inputs[field]
}

func (n *Node) clone() *Node {
	out := &Node{
		ClassType: n.ClassType,
		Meta:      n.Meta,
	}
	if n.Inputs != nil {
		out.Inputs = make(map[string]any, len(n.Inputs))
		for k, v := range n.Inputs {
			out.Inputs[k] = deepCopyValue(v)
		}
	}
	return out
}

// deepCopyValue copies JSON-shaped values (maps, slices, scalars).
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}

// Workflow is an immutable graph template. It is safe for concurrent use;
// binding always operates on a fresh [Workflow.Clone].
type Workflow struct {
	name     string
	remoteID string
	nodes    map[string]*Node
}

// Parse decodes a workflow template from its JSON prompt representation.
// The name typically comes from the template's file stem and becomes the
// compiled tool name.
func Parse(name string, data []byte) (*Workflow, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}
	nodes := make(map[string]*Node, len(raw))
	for id, msg := range raw {
		var node Node
		if err := json.Unmarshal(msg, &node); err != nil {
			return nil, fmt.Errorf("workflow %q: node %s: %w", name, id, err)
		}
		nodes[id] = &node
	}
	return &Workflow{name: name, nodes: nodes}, nil
}

// ParseFile reads and decodes a workflow template file. The tool name is
// taken from the file stem.
func ParseFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(stem, data)
}

// Name returns the template name.
func (w *Workflow) Name() string { return w.name }

// RemoteID returns the cloud workflow identifier for templates that are
// pre-registered on a cloud backend, or "" for self-contained templates.
func (w *Workflow) RemoteID() string { return w.remoteID }

// SetRemoteID associates a cloud workflow identifier with the template.
// Intended for use during template loading, before the workflow is shared.
func (w *Workflow) SetRemoteID(id string) { w.remoteID = id }

// Len returns the number of nodes in the graph.
func (w *Workflow) Len() int { return len(w.nodes) }

// Node returns the node with the given ID.
func (w *Workflow) Node(id string) (*Node, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

// NodeIDs returns all node IDs in a deterministic order: numeric IDs sort
// numerically (the ComfyUI convention), any others lexically after them.
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.nodes))
	for id := range w.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.Atoi(ids[i])
		b, berr := strconv.Atoi(ids[j])
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// Clone returns a deep copy of the workflow. The clone is mutable and
// invocation-local; the receiver is untouched.
func (w *Workflow) Clone() *Workflow {
	nodes := make(map[string]*Node, len(w.nodes))
	for id, n := range w.nodes {
		nodes[id] = n.clone()
	}
	return &Workflow{name: w.name, remoteID: w.remoteID, nodes: nodes}
}

// MarshalJSON encodes the graph back into the prompt wire format.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	out := make(map[string]*Node, len(w.nodes))
	for id, n := range w.nodes {
		out[id] = n
	}
	return json.Marshal(out)
}

// setInput writes a literal value into a node input on a (cloned) workflow.
func (w *Workflow) setInput(nodeID, field string, value any) {
	node, ok := w.nodes[nodeID]
	if !ok {
		return
	}
	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}
	node.Inputs[field] = value
}
