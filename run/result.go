package run

import (
	"time"

	"github.com/jonwraymond/flowtool/backend"
	"github.com/jonwraymond/flowtool/workflow"
)

// Result is the outcome of one execution.
type Result struct {
	// JobID is the adapter-assigned handle id.
	JobID string

	// Status is the terminal status the job reached.
	Status backend.Status

	// Duration is the wall time from submit to terminal status.
	Duration time.Duration

	// Outputs holds artifacts keyed by declared output variable.
	Outputs map[string]backend.NodeOutput

	// Images, Videos, Audios, and Texts flatten the declared outputs in
	// declaration order.
	Images []string
	Videos []string
	Audios []string
	Texts  []string

	// Raw holds every artifact the adapter returned, keyed by node id,
	// including nodes not bound to a declared output.
	Raw backend.Artifacts
}

// FirstImage returns the first image reference, or "" when there is none.
func (r *Result) FirstImage() string { return first(r.Images) }

// FirstText returns the first text output, or "" when there is none.
func (r *Result) FirstText() string { return first(r.Texts) }

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// buildResult maps raw artifacts onto the declared outputs.
func buildResult(jobID string, status backend.Status, dur time.Duration, arts backend.Artifacts, outputs []workflow.OutputSpec) *Result {
	res := &Result{
		JobID:    jobID,
		Status:   status,
		Duration: dur,
		Outputs:  make(map[string]backend.NodeOutput, len(outputs)),
		Raw:      arts,
	}
	for _, spec := range outputs {
		no, ok := arts[spec.NodeID]
		if !ok {
			continue
		}
		res.Outputs[spec.Var] = no
		res.Images = append(res.Images, no.Images...)
		res.Videos = append(res.Videos, no.Videos...)
		res.Audios = append(res.Audios, no.Audios...)
		res.Texts = append(res.Texts, no.Texts...)
	}
	return res
}
