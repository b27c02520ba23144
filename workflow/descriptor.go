package workflow

// ParameterSpec describes one exposed tool parameter and the field path it
// binds to.
type ParameterSpec struct {
	// Name is the parameter name, unique within a descriptor.
	Name string

	// NodeID and Field locate the bound input in the graph.
	NodeID string
	Field  string

	// Type is the primitive type inferred from the field's default.
	Type Type

	// Required marks parameters that must be supplied at call time.
	Required bool

	// Upload marks parameters whose remote-reference values must be
	// staged into backend storage before binding.
	Upload bool

	// Description is the author-supplied parameter description.
	Description string

	// Default is the authored default applied when an optional
	// parameter is omitted. Nil for required parameters.
	Default any
}

// OutputMode distinguishes how an output node was resolved.
type OutputMode string

const (
	// OutputManual marks a node carrying an explicit $output marker.
	OutputManual OutputMode = "manual"

	// OutputAuto marks a node matched by the terminal-type allow-list.
	OutputAuto OutputMode = "auto"
)

// OutputSpec identifies a node whose artifacts form (part of) the tool
// output.
type OutputSpec struct {
	// NodeID is the producing node.
	NodeID string

	// Var is the output variable name: the marker's token for manual
	// outputs, the node ID for auto-detected ones.
	Var string

	// Mode records how the output was resolved.
	Mode OutputMode
}

// Descriptor is the compiled, immutable interface of one workflow tool.
// It is created by [Compile], shared read-only across invocations, and
// identified by name in a registry.
type Descriptor struct {
	name        string
	title       string
	description string
	params      []ParameterSpec
	outputs     []OutputSpec
	template    *Workflow
	backend     string
}

// Name returns the tool name (the template name).
func (d *Descriptor) Name() string { return d.name }

// Title returns the human-readable display title.
func (d *Descriptor) Title() string { return d.title }

// Description returns the tool description, from the MCP node when present.
func (d *Descriptor) Description() string { return d.description }

// Parameters returns the ordered parameter list: required parameters
// first, optional after, each group in template declaration order. The
// returned slice is a copy.
func (d *Descriptor) Parameters() []ParameterSpec {
	out := make([]ParameterSpec, len(d.params))
	copy(out, d.params)
	return out
}

// Parameter returns the spec with the given name.
func (d *Descriptor) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range d.params {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Outputs returns every resolved output node in declaration order. The
// returned slice is a copy.
func (d *Descriptor) Outputs() []OutputSpec {
	out := make([]OutputSpec, len(d.outputs))
	copy(out, d.outputs)
	return out
}

// Output returns the primary output spec. A manual marker always wins over
// auto-detected candidates; among several candidates of the same mode the
// last one in declaration order is used, which is also the documented
// policy for multi-artifact outputs.
func (d *Descriptor) Output() OutputSpec {
	for i := len(d.outputs) - 1; i >= 0; i-- {
		if d.outputs[i].Mode == OutputManual {
			return d.outputs[i]
		}
	}
	return d.outputs[len(d.outputs)-1]
}

// Template returns the underlying graph template. The template is shared
// and must not be mutated; use [Workflow.Clone] (or [Descriptor.Bind]).
func (d *Descriptor) Template() *Workflow { return d.template }

// Backend returns the preferred backend instance name, or "" to use the
// process default.
func (d *Descriptor) Backend() string { return d.backend }
