// Package audit records the provenance of every value that moves through
// the engine.
//
// An Audit pairs a value with the node that produced it (its Source) and the
// audits it was computed from (its Parents). Audits are built once and never
// mutated afterwards, so they are shared freely between joins, the queue and
// the default aggregator without locking.
//
// # Parents
//
// A parent entry is either a single *Audit or a MergeGroup. A MergeGroup is a
// single synthetic entry holding one audit list per independent predecessor.
// The distinction matters when reading lineage back:
//
//	Record(g, v, []*Audit{a, b})      // one predecessor list: parents a, b
//	Record(g, v, []*Audit{a}, {b})    // join of two predecessors: one MergeGroup
//
// # Trails
//
// Trail walks the lineage depth first, parents before children. A MergeGroup
// contributes exactly one element to the trail: a []any holding one sub-trail
// per predecessor. Nesting is structural and must not be flattened.
//
// # Tables
//
// Flatten turns an audit DAG into a Table of records addressed by integer
// handle. Shared ancestors appear once. Unflatten rebuilds the DAG. Tables are
// the wire format used by engine snapshots.
package audit
