// Package storage holds committed snapshots of synchronized documents.
//
// A [Store] keeps, per stream, a head snapshot and a bounded history of
// earlier snapshots. Committing a representation that is structurally equal
// to the head is a no-op and returns the head; any other commit mints a new
// snapshot id. Patches can be computed from any snapshot still in history to
// the head.
//
// # History
//
// History is a ring of the last HistoryLimit snapshots of each stream (the
// head included). A diff requested from an evicted snapshot, or from a
// snapshot of a disposed stream, fails with [api.ErrUnknownAnchor]. A limit of
// zero keeps every snapshot until the stream is disposed.
//
// # Concurrency
//
// Streams are independent: each has its own lock and operations on
// different streams run in parallel. Within a stream, the engine has a single
// writer, the stream's worker, so the per-stream lock is uncontended in
// normal operation.
package storage
