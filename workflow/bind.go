package workflow

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Stager resolves a remote file reference into a backend-local reference.
// Backend adapters implement it by downloading the source and uploading it
// into the backend's own storage.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Stage must honor cancellation/deadlines.
type Stager interface {
	Stage(ctx context.Context, uri string) (string, error)
}

// Binding records one resolved parameter write performed during Bind:
// which node input received which final value. Cloud adapters that submit
// parameter diffs instead of whole graphs consume these directly.
type Binding struct {
	NodeID string
	Field  string
	Value  any
}

// BindConfig configures argument binding.
type BindConfig struct {
	// Stager resolves remote references for upload parameters.
	// Required when any upload parameter receives an http(s) value.
	Stager Stager

	// RandomizeSeeds controls whether node inputs named "seed" with a
	// zero default receive a fresh 63-bit random seed. Default: true.
	RandomizeSeeds *bool
}

func (c *BindConfig) randomizeSeeds() bool {
	return c.RandomizeSeeds == nil || *c.RandomizeSeeds
}

// BindOption is a functional option for Bind.
type BindOption func(*BindConfig)

// WithStager sets the stager for upload parameters.
func WithStager(s Stager) BindOption {
	return func(c *BindConfig) { c.Stager = s }
}

// WithSeedRandomization toggles zero-seed randomization.
func WithSeedRandomization(enabled bool) BindOption {
	return func(c *BindConfig) { c.RandomizeSeeds = &enabled }
}

// Bind validates the arguments against the descriptor and writes the
// resolved values into a fresh clone of the template, producing the bound
// graph for one invocation plus the list of parameter writes applied.
//
// Contract:
// - Ownership: the shared template is never mutated; the returned
//   workflow is exclusively the caller's.
// - Errors: every failure matches ErrInvalidArguments and is raised
//   before any backend submission.
// - Staging: an upload parameter whose value is an http(s) reference is
//   replaced by the staged local reference; the original URI never
//   reaches the graph.
func (d *Descriptor) Bind(ctx context.Context, args map[string]any, opts ...BindOption) (*Workflow, []Binding, error) {
	var cfg BindConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	resolved := make([]Binding, 0, len(d.params))
	for _, spec := range d.params {
		value, supplied := args[spec.Name]
		if !supplied {
			if spec.Required {
				return nil, nil, &MissingArgumentError{Param: spec.Name}
			}
			value = spec.Default
		}

		coerced, err := Coerce(value, spec.Type)
		if err != nil {
			return nil, nil, &CoercionError{Param: spec.Name, Type: spec.Type, Value: value}
		}

		if spec.Upload {
			coerced, err = stageIfRemote(ctx, cfg.Stager, coerced)
			if err != nil {
				return nil, nil, fmt.Errorf("stage %q: %w", spec.Name, err)
			}
		}

		resolved = append(resolved, Binding{NodeID: spec.NodeID, Field: spec.Field, Value: coerced})
	}

	bound := d.template.Clone()
	for _, b := range resolved {
		bound.setInput(b.NodeID, b.Field, b.Value)
	}
	if cfg.randomizeSeeds() {
		randomizeSeeds(bound)
	}
	return bound, resolved, nil
}

// stageIfRemote routes http(s) values through the stager; local names and
// non-string values pass through untouched.
func stageIfRemote(ctx context.Context, stager Stager, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return value, nil
	}
	if stager == nil {
		return nil, ErrNoStager
	}
	local, err := stager.Stage(ctx, s)
	if err != nil {
		return nil, err
	}
	return local, nil
}

var seedLimit = new(big.Int).Lsh(big.NewInt(1), 63)

// randomizeSeeds replaces every node input named "seed" whose value is 0
// (int or "0" string) with a fresh random 63-bit seed, so that authored
// zero seeds mean "sample freshly" rather than a fixed seed.
func randomizeSeeds(wf *Workflow) {
	for _, id := range wf.NodeIDs() {
		node, _ := wf.Node(id)
		v, ok := node.Inputs["seed"]
		if !ok || node.InputConnected("seed") {
			continue
		}
		if !isZeroSeed(v) {
			continue
		}
		n, err := rand.Int(rand.Reader, seedLimit)
		if err != nil {
			continue
		}
		node.Inputs["seed"] = n.Int64()
	}
}

func isZeroSeed(v any) bool {
	switch val := v.(type) {
	case float64:
		return val == 0
	case int:
		return val == 0
	case int64:
		return val == 0
	case string:
		return strings.TrimSpace(val) == "0"
	default:
		return false
	}
}
