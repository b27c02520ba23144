// Package workflow provides the graph template model and the compiler that
// turns an annotated template into a callable tool descriptor.
//
// A workflow template is a node graph in the ComfyUI prompt format: a JSON
// object mapping node IDs to nodes, each with a class type, an input map,
// and a human-readable title. Authors expose inputs as tool parameters by
// embedding a small DSL in node titles:
//
//	$<param>.[~]<field>[!][:<description>]
//
// where ~ marks a field whose value must be staged into backend storage
// before use, and ! marks the parameter as required. A node titled
// $output.<var> marks its artifacts as the tool output under <var>, and a
// node titled exactly MCP carries the tool-level description in its first
// text input.
//
// # Compilation
//
// [Compile] parses every node title, infers a primitive type for each
// parameter from the field's authored default, resolves the output node,
// and freezes the result into an immutable [Descriptor]. Compilation is a
// pure function of the template: the same template always yields the same
// descriptor, with node IDs visited in a deterministic order.
//
// # Binding
//
// [Descriptor.Bind] validates and coerces call arguments, stages remote
// file references through a [Stager], and writes the resolved values into a
// fresh clone of the template. The shared template is never mutated; every
// invocation gets its own bound graph.
package workflow
