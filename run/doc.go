// Package run drives bound graphs through backend adapters.
//
// A [Runner] owns the execution policy: transient transport failures on
// submit and poll are retried with exponential backoff, adapters that
// expose an event stream are waited on directly while the rest are
// polled, and every job is bounded by an end-to-end timeout that cancels
// the job on its adapter when it expires.
//
// The terminal outcome is a [Result]: the raw artifacts keyed by node,
// plus the same artifacts mapped onto the graph's declared output
// variables and flattened per media class.
package run
