// Package runninghub provides the cloud job adapter.
//
// The adapter submits hosted workflows to a RunningHub-compatible API and
// tracks them by task id over plain HTTP polling. It implements
// [backend.Adapter] with [backend.KindCloud]; there is no event stream, so
// callers drive progress through Poll.
//
// # Protocol
//
// Every call is a JSON POST carrying the account API key in the request
// body. Responses share one envelope: a numeric code (zero on success), a
// message, and a data payload. Non-zero codes surface as [*APIError].
//
// # Staging
//
// Remote media inputs are staged through the upload endpoint before
// submission; the adapter implements [workflow.Stager] and returns the
// provider-side file name for use as a node input value.
package runninghub
