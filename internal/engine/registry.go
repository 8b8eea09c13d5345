package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/weft/internal/audit"
)

// EngineObject is the reserved registry name the engine answers to in Call.
const EngineObject = "engine"

// Signaler is implemented by registered objects that answer named signals
// through Engine.Call.
type Signaler interface {
	Signal(ctx context.Context, signal string, args ...any) (any, error)
}

// Inspection is a point-in-time view of the engine, returned by the
// "inspect" signal.
type Inspection struct {
	State    string   `json:"state"`
	Wave     string   `json:"wave,omitempty"`
	QueueLen int      `json:"queue_len"`
	Objects  []string `json:"objects"`
	Depth    int      `json:"middleware_depth"`
	Joins    int      `json:"joins"`
	Results  int      `json:"results"`
	Seq      int64    `json:"seq"`
}

// NewNode creates a node around fn and registers it under id. An empty id
// picks a free generated name.
func (e *Engine) NewNode(id string, fn Func, opts ...NodeOption) (*Node, error) {
	if fn == nil {
		return nil, NewNotExecutableError(fn)
	}
	if id == "" {
		id = e.freeName()
	}
	n := &Node{id: id, fn: fn, engine: e}
	for _, opt := range opts {
		opt(n)
	}
	if err := e.Set(id, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Wrap turns a bare callable into a registered node with a generated name.
func (e *Engine) Wrap(fn Func) *Node {
	n, err := e.NewNode("", fn)
	if err != nil {
		// Only a nil fn fails with a generated name.
		panic(err)
	}
	return n
}

func (e *Engine) freeName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		e.nodeSeq++
		name := fmt.Sprintf("node-%d", e.nodeSeq)
		if _, taken := e.objects[name]; !taken {
			return name
		}
	}
}

// Set registers obj under name, replacing any previous object.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Set(name string, obj any) error {
	if name == "" || name == EngineObject {
		return fmt.Errorf("cannot register object as %q: reserved name", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.objects[name]; exists {
		e.logger.Debug("registry entry replaced", "name", name)
	} else {
		e.order = append(e.order, name)
	}
	e.objects[name] = obj
	return nil
}

// Get returns the object registered under name. The reserved name
// "engine" returns the engine itself.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Get(name string) (any, bool) {
	if name == EngineObject {
		return e, true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[name]
	return obj, ok
}

// Names returns the registered names in registration order.
func (e *Engine) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.order)
}

// Node returns the node registered under name.
func (e *Engine) Node(name string) (*Node, error) {
	obj, ok := e.Get(name)
	if !ok {
		return nil, NewUnknownObjectError(name)
	}
	n, ok := obj.(*Node)
	if !ok {
		return nil, NewNotExecutableError(obj)
	}
	return n, nil
}

// Nodes returns the registered nodes in registration order.
func (e *Engine) Nodes() []*Node {
	var nodes []*Node
	for _, name := range e.Names() {
		if obj, ok := e.Get(name); ok {
			if n, ok := obj.(*Node); ok {
				nodes = append(nodes, n)
			}
		}
	}
	return nodes
}

// nodeArg accepts a *Node or a registered node name.
func (e *Engine) nodeArg(arg any) (*Node, error) {
	switch v := arg.(type) {
	case *Node:
		if v == nil {
			return nil, NewNotExecutableError(v)
		}
		return v, nil
	case string:
		return e.Node(v)
	default:
		return nil, NewNotExecutableError(arg)
	}
}

// Call sends signal to the named object. The engine itself answers as
// "engine"; other objects must implement Signaler.
func (e *Engine) Call(ctx context.Context, object, signal string, args ...any) (any, error) {
	if object == EngineObject {
		return e.Signal(ctx, signal, args...)
	}
	obj, ok := e.Get(object)
	if !ok {
		return nil, NewUnknownObjectError(object)
	}
	s, ok := obj.(Signaler)
	if !ok {
		return nil, NewUnknownSignalError(object, signal)
	}
	return s.Signal(ctx, signal, args...)
}

// Signal implements Signaler for the engine. Every run-loop transition is
// reachable from here:
//
//	enqueue   <node> [inputs...]   -> nil
//	unshift   <node> [inputs...]   -> nil
//	execute   <node> [inputs...]   -> *audit.Audit
//	run                            -> nil
//	stop, terminate, reset         -> nil
//	inspect                        -> Inspection
//	build     <*schema.Schema> <Catalog> -> []*Node
//	export                         -> *Snapshot
func (e *Engine) Signal(ctx context.Context, signal string, args ...any) (any, error) {
	switch signal {
	case "enqueue", "unshift", "execute":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing node argument", signal)
		}
		n, err := e.nodeArg(args[0])
		if err != nil {
			return nil, err
		}
		switch signal {
		case "enqueue":
			return nil, e.Enqueue(n, args[1:]...)
		case "unshift":
			return nil, e.Unshift(n, args[1:]...)
		default:
			return e.Execute(ctx, n, args[1:]...)
		}
	case "run":
		return nil, e.Run(ctx)
	case "stop":
		e.Stop()
		return nil, nil
	case "terminate":
		e.Terminate()
		return nil, nil
	case "reset":
		e.Reset()
		return nil, nil
	case "inspect":
		return e.Inspect(), nil
	case "build":
		return e.buildSignal(ctx, args)
	case "export":
		return e.Export()
	default:
		return nil, NewUnknownSignalError(EngineObject, signal)
	}
}

// Inspect reports the engine's current state.
func (e *Engine) Inspect() Inspection {
	e.mu.Lock()
	objects := slices.Clone(e.order)
	joins := len(e.joins)
	results := len(e.collected)
	wave := e.wave
	e.mu.Unlock()

	if objects == nil {
		objects = []string{}
	}
	return Inspection{
		State:    e.State().String(),
		Wave:     wave,
		QueueLen: e.queue.Size(),
		Objects:  objects,
		Depth:    e.stack.Depth(),
		Joins:    joins,
		Results:  results,
		Seq:      e.clock.Current(),
	}
}

// Signal implements Signaler for nodes.
//
//	execute [inputs...]   -> *audit.Audit
//	enqueue [inputs...]   -> nil
//	unshift [inputs...]   -> nil
//	reset-dependencies    -> nil
func (n *Node) Signal(ctx context.Context, signal string, args ...any) (any, error) {
	switch signal {
	case "execute":
		return n.Execute(ctx, args...)
	case "enqueue":
		return nil, n.Enqueue(args...)
	case "unshift":
		return nil, n.engine.Unshift(n, args...)
	case "reset-dependencies":
		n.ResetDependencies()
		return nil, nil
	default:
		return nil, NewUnknownSignalError(n.id, signal)
	}
}

var (
	_ Signaler = (*Engine)(nil)
	_ Signaler = (*Node)(nil)
	_ Join     = (*port)(nil)
	_ Join     = JoinFunc(nil)
)

// JoinFunc adapts a function to Join.
type JoinFunc func(ctx context.Context, result *audit.Audit) error

// Fire implements Join.
func (f JoinFunc) Fire(ctx context.Context, result *audit.Audit) error {
	return f(ctx, result)
}
