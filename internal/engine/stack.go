package engine

import (
	"context"
	"sync"

	"github.com/roach88/weft/internal/audit"
)

// Dispatcher invokes a node with its inputs and returns the result audit.
type Dispatcher interface {
	Call(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error)

// Call implements Dispatcher.
func (f DispatcherFunc) Call(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error) {
	return f(ctx, node, inputs)
}

// Middleware wraps the next dispatcher in the chain. A middleware must call
// next.Call exactly once unless it deliberately short-circuits.
type Middleware func(next Dispatcher) Dispatcher

// Stack is the ordered middleware chain in front of the engine's base
// dispatcher. The most recently installed middleware runs first.
//
// Stack is configured before Run starts; swapping layers during an active
// run is not supported.
type Stack struct {
	mu     sync.RWMutex
	base   Dispatcher
	top    Dispatcher
	layers int
}

func newStack(base Dispatcher) *Stack {
	return &Stack{base: base, top: base}
}

// Use wraps the current top of the stack and returns the new top so callers
// can introspect the instantiated middleware.
func (s *Stack) Use(m Middleware) Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top = m(s.top)
	s.layers++
	return s.top
}

// Reset discards every installed middleware.
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top = s.base
	s.layers = 0
}

// Depth returns the number of installed middleware layers.
func (s *Stack) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layers
}

// Call dispatches through the current top of the stack.
func (s *Stack) Call(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error) {
	s.mu.RLock()
	top := s.top
	s.mu.RUnlock()
	return top.Call(ctx, node, inputs)
}

// invoke is the base dispatcher:
//  1. resolve the node's dependencies
//  2. unwrap inputs, minting leaf audits for raw values
//  3. call the node
//  4. mint the result audit
//  5. route it to the node's join or the engine's default routing
func (e *Engine) invoke(ctx context.Context, node *Node, inputs []any) (*audit.Audit, error) {
	if node == nil {
		return nil, NewNotExecutableError(node)
	}
	if err := node.ResolveDependencies(ctx); err != nil {
		return nil, err
	}

	args, parents := e.unwrap(inputs)

	value, err := node.call(ctx, args)
	if err != nil {
		return nil, err
	}

	if e.auditDisabled {
		parents = nil
	}
	result := audit.Derive(audit.NodeSource(node.id), value, parents)
	result.Seq = e.clock.Next()

	if j := node.Join(); j != nil {
		if err := j.Fire(ctx, result); err != nil {
			return result, err
		}
		return result, nil
	}
	return result, e.routeDefault(ctx, result)
}

// unwrap converts dispatcher inputs to callable arguments and the parent
// entries of the result audit.
func (e *Engine) unwrap(inputs []any) ([]any, []audit.Parent) {
	args := make([]any, 0, len(inputs))
	parents := make([]audit.Parent, 0, len(inputs))
	for _, in := range inputs {
		switch v := in.(type) {
		case *audit.Audit:
			args = append(args, v.Value)
			parents = append(parents, v)
		case audit.MergeGroup:
			for _, m := range v.Audits() {
				args = append(args, m.Value)
			}
			parents = append(parents, v)
		default:
			if e.auditDisabled {
				args = append(args, v)
				continue
			}
			leaf := audit.New(nil, v)
			leaf.Seq = e.clock.Next()
			args = append(args, v)
			parents = append(parents, leaf)
		}
	}
	return args, parents
}
