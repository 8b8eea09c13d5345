package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/weft/internal/audit"
)

// Func is the callable behind a node. args are the unwrapped input values.
type Func func(ctx context.Context, args ...any) (any, error)

// Join receives a node's result audit when the node completes.
type Join interface {
	Fire(ctx context.Context, result *audit.Audit) error
}

// NodeOption configures a node at construction.
type NodeOption func(*Node)

// WithKind records the catalog kind and arguments a node was built from.
// Only nodes with a kind can be exported in a snapshot.
func WithKind(kind string, args []any) NodeOption {
	return func(n *Node) {
		n.kind = kind
		n.args = args
	}
}

// Node is a schedulable unit of work: a callable plus its dependencies and
// an optional completion join.
//
// Thread-safety: dependency and join bookkeeping is guarded by an internal
// mutex. The callable itself is invoked without holding it.
type Node struct {
	id     string
	kind   string
	args   []any
	fn     Func
	engine *Engine

	mu   sync.Mutex
	deps []*Node
	join Join

	// Memoized result of this node when resolved as someone's dependency.
	resolved bool
	result   any
}

// ID returns the node's registry name.
func (n *Node) ID() string { return n.id }

// Kind returns the catalog kind, or "" for nodes built from a bare Func.
func (n *Node) Kind() string { return n.kind }

// Args returns the catalog arguments the node was built with.
func (n *Node) Args() []any { return n.args }

// Engine returns the engine the node belongs to.
func (n *Node) Engine() *Engine { return n.engine }

// String implements fmt.Stringer.
func (n *Node) String() string { return n.id }

// DependsOn declares that other must be resolved before n runs.
// Declaring the same dependency twice is a no-op.
func (n *Node) DependsOn(other *Node) error {
	if other == nil {
		return NewNotExecutableError(other)
	}
	if other == n {
		return NewSelfDependencyError(n.id)
	}

	n.mu.Lock()
	if slices.Contains(n.deps, other) {
		n.mu.Unlock()
		return nil
	}
	n.deps = append(n.deps, other)
	n.mu.Unlock()

	n.engine.trackDependency(other)
	return nil
}

// Dependencies returns the declared dependencies in declaration order.
func (n *Node) Dependencies() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.deps)
}

// OnComplete routes the node's results to j, replacing any previous join.
// A nil join restores default routing.
func (n *Node) OnComplete(j Join) {
	n.mu.Lock()
	prev := n.join
	n.join = j
	n.mu.Unlock()

	if prev != nil && j != nil {
		n.engine.logger.Debug("completion join replaced", "node", n.id)
	}
}

// Join returns the node's completion join, or nil.
func (n *Node) Join() Join {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.join
}

// Result returns the memoized value of this node from its last resolution
// as a dependency.
func (n *Node) Result() (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result, n.resolved
}

// Dependency returns the resolved result of the named dependency.
func (n *Node) Dependency(id string) (any, bool) {
	for _, d := range n.Dependencies() {
		if d.id == id {
			return d.Result()
		}
	}
	return nil, false
}

// ResolveDependencies runs every unresolved dependency depth first and
// memoizes its result. A dependency shared by several paths runs once.
//
// The chain of nodes currently being resolved travels in ctx, so a node that
// is reached again while still in progress fails with
// CircularDependencyError instead of recursing forever.
func (n *Node) ResolveDependencies(ctx context.Context) error {
	path := resolutionPath(ctx)
	if i := slices.Index(path, n.id); i >= 0 {
		cycle := append(slices.Clone(path[i:]), n.id)
		return &CircularDependencyError{Cycle: cycle}
	}

	deps := n.Dependencies()
	if len(deps) == 0 {
		return nil
	}
	ctx = withResolutionPath(ctx, append(slices.Clone(path), n.id))

	for _, dep := range deps {
		if _, ok := dep.Result(); ok {
			continue
		}
		if err := dep.ResolveDependencies(ctx); err != nil {
			return err
		}
		result, err := dep.call(ctx, nil)
		if err != nil {
			return fmt.Errorf("resolve dependency %s of %s: %w", dep.id, n.id, err)
		}
		dep.mu.Lock()
		dep.resolved = true
		dep.result = result
		dep.mu.Unlock()

		n.engine.logger.Debug("dependency resolved", "node", n.id, "dependency", dep.id)
	}
	return nil
}

// ResetDependencies clears the memoized results of n's dependencies,
// transitively, so the next resolution runs them again. The dependency
// list itself is kept.
func (n *Node) ResetDependencies() {
	seen := make(map[*Node]bool)
	var reset func(*Node)
	reset = func(x *Node) {
		for _, d := range x.Dependencies() {
			if seen[d] {
				continue
			}
			seen[d] = true
			d.forget()
			reset(d)
		}
	}
	reset(n)
}

func (n *Node) forget() {
	n.mu.Lock()
	n.resolved = false
	n.result = nil
	n.mu.Unlock()
}

// Enqueue schedules the node on its engine's queue.
func (n *Node) Enqueue(inputs ...any) error {
	return n.engine.Enqueue(n, inputs...)
}

// Execute dispatches the node immediately through the engine's stack.
func (n *Node) Execute(ctx context.Context, inputs ...any) (*audit.Audit, error) {
	return n.engine.Execute(ctx, n, inputs...)
}

// call invokes the callable with the node and engine available from ctx.
func (n *Node) call(ctx context.Context, args []any) (any, error) {
	return n.fn(withNode(ctx, n), args...)
}
