// Package engine implements the weft task dispatch engine.
//
// Nodes are queued with their inputs, dequeued by a single run loop,
// invoked through a middleware stack, and connected into graphs by join
// connectors that forward each result to downstream nodes.
//
// ARCHITECTURE:
//
// Run Loop:
// One goroutine drains the queue at a time. Enqueue and Unshift are safe
// from any goroutine; Run is not reentrant. A node that calls Run from its
// own callable gets an immediate no-op.
//
// Dispatch Flow:
//  1. Engine.Run() dequeues (node, inputs)
//  2. the Stack passes the call through every middleware layer
//  3. the base dispatcher resolves the node's dependencies
//  4. inputs are unwrapped; raw values become leaf audits
//  5. the callable runs and its value is wrapped in a result audit
//  6. the result goes to the node's join, the default joins, or the
//     default aggregator
//
// Joins either execute their targets synchronously (depth first, before
// control returns to the loop) or enqueue them when stacked.
//
// State Machine:
//
//	READY -> RUN -> READY
//	RUN -> STOP -> READY        (queue kept for the next Run)
//	RUN -> TERMINATE -> READY   (in-flight entry re-queued at the front)
//
// Termination is cooperative: long-running nodes call CheckTerminate and
// return the TerminateError it produces.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every audit minted by the engine is stamped with Clock.Next(). Stored
// results and snapshots are ordered by this seq, never by wall time.
//
// Waves:
// Each top-level Run draws a wave token. Outside a run every top-level
// Execute is its own scope. Aggregate joins never combine results from two
// scopes into one batch, and the step quota counts each scope separately.
package engine
