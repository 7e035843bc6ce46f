// Package stages implements the fixed media pipeline: validate, thumbnail,
// convert, watermark, publish, finalize.
//
// Each stage is a pure context-in/context-out function over Context. A stage
// may only read fields produced by earlier stages and only writes the fields
// it owns; the orchestrator threads the returned Context into the next stage
// and commits a checkpoint after each success. Failures are classified with
// the services error markers: validation failures are permanent, external
// tool failures are transient and retried.
package stages
