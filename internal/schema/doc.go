// Package schema describes a workflow graph as plain data.
//
// A Schema lists node specs (catalog kind plus arguments), join specs that
// connect nodes by index, and rounds: groups of nodes enqueued together
// when the graph is built. Schemas are loaded from YAML files or CUE
// directories and checked by Validate before an engine builds them.
//
// Example YAML:
//
//	name: sort-lines
//	nodes:
//	  - name: cat
//	    kind: cat
//	    inputs: ["a\nc\nb"]
//	  - name: sort
//	    kind: sort
//	joins:
//	  - kind: sequence
//	    sources: [0]
//	    targets: [1]
package schema
