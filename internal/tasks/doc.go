// Package tasks persists media task state in SQLite and exposes helpers for
// driving the task lifecycle.
//
// The Store manages database connections, schema initialization, admission
// counting, stats queries, and partial updates. Apply is the single write
// path for in-flight tasks: it bumps updated_at, never lowers progress, and
// silently ignores writes against tasks that already reached a terminal
// status. That absorbing rule is what makes duplicate or late-arriving stage
// completions from at-least-once job delivery harmless, so treat this package
// as the single source of truth for task lifecycle semantics.
package tasks
