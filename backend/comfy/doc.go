// Package comfy provides the local queue adapter: it executes bound
// workflow graphs on a persistent ComfyUI-compatible execution service.
//
// Graphs are queued via POST /prompt and completion is observed over the
// service's websocket stream rather than by polling, so the adapter
// implements [backend.Waiter]. A bounded slot pool caps concurrent
// executions; excess submissions queue FIFO until a slot frees.
//
// Input staging downloads a remote reference and re-uploads it through
// POST /upload/image, returning the backend-local name that LoadImage-style
// nodes expect. Produced artifacts are exposed as /view URLs on the
// service's HTTP base.
package comfy
