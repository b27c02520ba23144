package workflow

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultOutputNodeTypes is the allow-list of terminal node kinds whose
// artifacts are treated as tool output when no $output marker exists.
// Extending the list is a configuration change on [CompileConfig].
var DefaultOutputNodeTypes = []string{
	"SaveImage",
	"SaveVideo",
	"SaveAudio",
	"VHS_SaveVideo",
	"VHS_SaveAudio",
}

// DefaultUploadNodeTypes lists node kinds that are well-known upload
// carriers: their annotated fields are uploadRequired even without the ~
// marker.
var DefaultUploadNodeTypes = []string{
	"LoadImage",
	"VHS_LoadAudioUpload",
	"VHS_LoadVideo",
}

// CompileConfig configures compilation of one template.
type CompileConfig struct {
	// OutputNodeTypes overrides the terminal-type allow-list.
	// Default: DefaultOutputNodeTypes.
	OutputNodeTypes []string

	// UploadNodeTypes overrides the implicit upload-carrier list.
	// Default: DefaultUploadNodeTypes.
	UploadNodeTypes []string

	// Backend names the preferred backend adapter instance for tools
	// compiled from this template. Empty means the process default.
	Backend string
}

func (c *CompileConfig) applyDefaults() {
	if c.OutputNodeTypes == nil {
		c.OutputNodeTypes = DefaultOutputNodeTypes
	}
	if c.UploadNodeTypes == nil {
		c.UploadNodeTypes = DefaultUploadNodeTypes
	}
}

// CompileOption is a functional option for Compile.
type CompileOption func(*CompileConfig)

// WithOutputNodeTypes sets the terminal-type allow-list.
func WithOutputNodeTypes(types ...string) CompileOption {
	return func(c *CompileConfig) {
		c.OutputNodeTypes = types
	}
}

// WithUploadNodeTypes sets the implicit upload-carrier list.
func WithUploadNodeTypes(types ...string) CompileOption {
	return func(c *CompileConfig) {
		c.UploadNodeTypes = types
	}
}

// WithBackend sets the preferred backend instance name on the descriptor.
func WithBackend(name string) CompileOption {
	return func(c *CompileConfig) {
		c.Backend = name
	}
}

var titleCaser = cases.Title(language.English)

// Compile turns a workflow template into an immutable tool descriptor.
//
// Contract:
// - Purity: identical templates yield structurally identical descriptors.
// - Errors: all failures match ErrInvalidTemplate; the template never
//   becomes invocable.
// - Ownership: the template is referenced, not copied; it must not be
//   mutated after compilation.
func Compile(wf *Workflow, opts ...CompileOption) (*Descriptor, error) {
	var cfg CompileConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()

	outputTypes := toSet(cfg.OutputNodeTypes)
	uploadTypes := toSet(cfg.UploadNodeTypes)

	var (
		required []ParameterSpec
		optional []ParameterSpec
		outputs  []OutputSpec
		seen     = map[string]string{} // param name -> node id
		mcpNodes int
		desc     string
	)

	for _, id := range wf.NodeIDs() {
		node, _ := wf.Node(id)
		title := node.Title()

		if title == mcpTitle {
			mcpNodes++
			if mcpNodes == 1 {
				desc = mcpDescription(node)
			}
			continue
		}

		if v, err := ParseOutputMarker(title); err != nil {
			return nil, err
		} else if v != "" {
			outputs = append(outputs, OutputSpec{NodeID: id, Var: v, Mode: OutputManual})
			continue
		}

		if outputTypes[node.ClassType] {
			outputs = append(outputs, OutputSpec{NodeID: id, Var: id, Mode: OutputAuto})
			continue
		}

		ann, err := ParseAnnotation(title)
		if err != nil {
			return nil, err
		}
		if ann == nil {
			continue
		}

		if prev, ok := seen[ann.Name]; ok {
			return nil, fmt.Errorf("%w: %q declared on nodes %s and %s",
				ErrDuplicateParameter, ann.Name, prev, id)
		}
		seen[ann.Name] = id

		spec, err := compileParam(node, id, ann, uploadTypes)
		if err != nil {
			return nil, err
		}
		if spec.Required {
			required = append(required, spec)
		} else {
			optional = append(optional, spec)
		}
	}

	if mcpNodes > 1 {
		// Multiple MCP nodes are ambiguous; the description is dropped
		// and the tool compiles without one.
		desc = ""
	}

	if len(outputs) == 0 {
		return nil, &NoOutputError{Workflow: wf.Name()}
	}

	return &Descriptor{
		name:        wf.Name(),
		title:       titleCaser.String(strings.ReplaceAll(wf.Name(), "_", " ")),
		description: desc,
		params:      append(required, optional...),
		outputs:     outputs,
		template:    wf,
		backend:     cfg.Backend,
	}, nil
}

func compileParam(node *Node, nodeID string, ann *Annotation, uploadTypes map[string]bool) (ParameterSpec, error) {
	if !node.HasInput(ann.Field) {
		return ParameterSpec{}, &UnknownFieldError{Param: ann.Name, Field: ann.Field, NodeID: nodeID}
	}
	if node.InputConnected(ann.Field) {
		return ParameterSpec{}, &BoundFieldConflictError{Param: ann.Name, Field: ann.Field, NodeID: nodeID}
	}

	def := node.InputValue(ann.Field)
	if !ann.Required && def == nil {
		return ParameterSpec{}, &MissingDefaultError{Param: ann.Name, Field: ann.Field, NodeID: nodeID}
	}

	typ := TypeString
	if def != nil {
		typ = InferType(def)
	}

	spec := ParameterSpec{
		Name:        ann.Name,
		NodeID:      nodeID,
		Field:       ann.Field,
		Type:        typ,
		Required:    ann.Required,
		Upload:      ann.Upload || uploadTypes[node.ClassType],
		Description: ann.Description,
	}
	if !ann.Required {
		spec.Default = def
	}
	return spec, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
