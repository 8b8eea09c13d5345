// Package harness runs scenario files against the engine.
//
// A scenario builds a graph from the builtin catalog, drives the engine
// through its Call surface, and checks the resulting node results.
//
// # Scenario Format
//
//	name: sort_lines
//	description: "lines feeds sort through a sequence join"
//	graph: ../graphs/sort-lines.yaml   # or an inline schema:
//	schema:
//	  name: sort-lines
//	  nodes:
//	    - {name: cat, kind: lines, inputs: ["a\nc\nb"]}
//	    - {name: sort, kind: sort}
//	  joins:
//	    - {kind: sequence, sources: [0], targets: [1]}
//	flow:
//	  - invoke: engine.run
//	  - invoke: engine.execute
//	    args: [sort, [b, a]]
//	    expect:
//	      result: [a, b]
//	assertions:
//	  - type: collected
//	    values: [[a, b, c]]
//	  - type: trace_order
//	    nodes: [cat, sort]
//	  - type: final_state
//	    table: results
//	    where: { node: sort }
//	    expect: { value: '["a","b","c"]' }
//
// # Assertion Types
//
//   - collected: the default aggregator holds exactly these values, in order
//   - trace_contains: a node produced a result (optionally a given value)
//   - trace_order: nodes first produced results in this order
//   - trace_count: a node produced exactly N results
//   - engine_state: fields of the engine's inspect report
//   - final_state: a row of the results table, persisted through the store
//
// # Deterministic Testing
//
// Every scenario runs on a fresh engine with a numbered wave counter
// (testutil.WaveCounter) and a fresh logical clock, and persists results
// into an in-memory SQLite store. The trace is ordered by logical sequence,
// so the same scenario always yields byte-identical canonical JSON for
// golden comparison.
package harness
