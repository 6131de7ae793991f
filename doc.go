// Package formstage defines per-category workflow stages and the versioned form each
// stage collects.
//
// formstage keeps an ordered list of stages for every project category and, for every
// stage, a list of typed form fields. Published forms are kept as numbered, immutable
// snapshots that can be rolled back into an editable draft.
//
// Core components include:
//   - StageStore: categories and their stages, always numbered 1..N
//   - FieldStore: the editable field draft of each stage being configured
//   - VersionStore: publish, list and roll back form snapshots
//   - Session: the admin workflow moving between browsing, configuring, previewing and versions
//   - Repository: revisioned persistence over a store.Backend (memory, SQLite or Redis)
//
// Every mutating operation runs through a middleware chain, so logging, auditing,
// Prometheus metrics and OpenTelemetry tracing can be added with Engine.Use or options.
package formstage
