// Package store provides SQLite-backed persistence for weft runs.
//
// Two append-only tables are kept:
//   - results: every value that reached the default aggregator, with its
//     wave token, node, logical seq, provenance trail and content hash
//   - snapshots: exported engine documents, looked up by ID or by name
//
// # Ordering
//
// All ordering uses the logical seq column and UUIDv7 record IDs, never
// timestamps. Queries end with ORDER BY seq ASC, id ASC COLLATE BINARY so
// repeated reads return identical results.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Values and documents are stored as canonical JSON and hashed with the
// functions in internal/ir.
package store
