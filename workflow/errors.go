package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for error classification.
var (
	// ErrInvalidTemplate groups compile-time template errors. Every
	// syntax, field, default, and output resolution failure matches it
	// via errors.Is.
	ErrInvalidTemplate = errors.New("invalid workflow template")

	// ErrInvalidArguments groups invocation-time argument errors raised
	// before any backend is contacted.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrDuplicateParameter indicates two nodes declared the same
	// parameter name in one template.
	ErrDuplicateParameter = errors.New("duplicate parameter name")

	// ErrNoStager indicates an upload parameter received a remote
	// reference but no Stager was configured to resolve it.
	ErrNoStager = errors.New("no stager configured for upload parameter")
)

// SyntaxError reports a node title that matches the DSL prefix loosely but
// violates the grammar.
type SyntaxError struct {
	// Title is the offending node title, verbatim.
	Title string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed DSL annotation %q", e.Title)
}

// Is reports whether this error matches ErrInvalidTemplate.
func (e *SyntaxError) Is(target error) bool { return target == ErrInvalidTemplate }

// UnknownFieldError reports an annotation referencing an input field that
// does not exist on its node.
type UnknownFieldError struct {
	Param  string
	Field  string
	NodeID string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("parameter %q references unknown field %q on node %s", e.Param, e.Field, e.NodeID)
}

// Is reports whether this error matches ErrInvalidTemplate.
func (e *UnknownFieldError) Is(target error) bool { return target == ErrInvalidTemplate }

// MissingDefaultError reports an optional parameter whose field carries no
// authored default. Optional parameters fall back to their default at call
// time, so a default must exist at compile time.
type MissingDefaultError struct {
	Param  string
	Field  string
	NodeID string
}

func (e *MissingDefaultError) Error() string {
	return fmt.Sprintf("parameter %q is optional but field %q on node %s has no default value", e.Param, e.Field, e.NodeID)
}

// Is reports whether this error matches ErrInvalidTemplate.
func (e *MissingDefaultError) Is(target error) bool { return target == ErrInvalidTemplate }

// BoundFieldConflictError reports an annotation on a field that already
// receives its value from an inbound graph edge. Connected fields can never
// become parameters.
type BoundFieldConflictError struct {
	Param  string
	Field  string
	NodeID string
}

func (e *BoundFieldConflictError) Error() string {
	return fmt.Sprintf("parameter %q conflicts with graph connection feeding field %q on node %s", e.Param, e.Field, e.NodeID)
}

// Is reports whether this error matches ErrInvalidTemplate.
func (e *BoundFieldConflictError) Is(target error) bool { return target == ErrInvalidTemplate }

// NoOutputError reports a template with neither a $output marker nor a node
// whose class type is in the terminal allow-list.
type NoOutputError struct {
	Workflow string
}

func (e *NoOutputError) Error() string {
	return fmt.Sprintf("workflow %q has no output node", e.Workflow)
}

// Is reports whether this error matches ErrInvalidTemplate.
func (e *NoOutputError) Is(target error) bool { return target == ErrInvalidTemplate }

// MissingArgumentError reports a required parameter with no supplied value.
type MissingArgumentError struct {
	Param string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing required argument %q", e.Param)
}

// Is reports whether this error matches ErrInvalidArguments.
func (e *MissingArgumentError) Is(target error) bool { return target == ErrInvalidArguments }

// CoercionError reports an argument value that could not be coerced to its
// parameter's inferred type.
type CoercionError struct {
	Param string
	Type  Type
	Value any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("argument %q: cannot coerce %v (%T) to %s", e.Param, e.Value, e.Value, e.Type)
}

// Is reports whether this error matches ErrInvalidArguments.
func (e *CoercionError) Is(target error) bool { return target == ErrInvalidArguments }
