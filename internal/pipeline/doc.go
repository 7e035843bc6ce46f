// Package pipeline orchestrates media task execution. The Dispatcher owns a
// worker pool that pulls admitted tasks off an in-process queue; each worker
// drives a Runner through the fixed stage chain, committing a progress
// checkpoint after every stage and retrying transient failures with capped
// exponential backoff. Execution state per job handle is tracked in the
// Registry and optionally mirrored to Redis for other processes.
package pipeline
