// Package store provides revisioned key-value backends for persisted form definitions.
//
// Every value is an opaque JSON document stored under a flat string key. Each key carries a
// revision counter that increases on every successful write, which lets callers perform
// optimistic read-modify-write cycles: read a record, change it, and write it back with the
// revision that was read. A write against a stale revision fails with ErrConflict instead of
// silently overwriting a concurrent change.
//
// Backends:
//   - MemoryStore: in-process map, used by tests and ephemeral sessions
//   - SQLiteStore: a single-file database through modernc.org/sqlite
//   - RedisStore: a shared Redis instance, with compare-and-swap through WATCH/MULTI
//
// Typed access:
//
//   - GetJSON[T]() decodes the stored document into T and reports ErrCorrupt (together with
//     the stored revision) when the bytes are not valid JSON for T
//   - PutJSON[T]() encodes T and writes it with the expected revision
//   - TypeSchema() describes the JSON shape of a stored Go type as a JSON Schema document
package store
