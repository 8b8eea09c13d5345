package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/weft/internal/schema"
)

// Catalog turns schema kinds and selector names into callables.
type Catalog interface {
	// NodeFunc returns the callable for a node kind built with args.
	NodeFunc(kind string, args []any) (Func, error)
	// Selector returns the named switch selector.
	Selector(name string) (Selector, error)
}

// Build instantiates a schema on the engine: nodes are created through cat
// and registered by name, dependencies and joins are wired, then each
// initial round is enqueued in order with its nodes' inputs.
//
// The schema is validated first; every validation error is returned joined.
// Build returns the created nodes in schema order.
func (e *Engine) Build(ctx context.Context, s *schema.Schema, cat Catalog) ([]*Node, error) {
	if verrs := schema.Validate(s); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, fmt.Errorf("invalid graph %q: %w", s.Name, errors.Join(errs...))
	}

	nodes, err := e.wire(s, cat)
	if err != nil {
		return nil, err
	}

	for r, round := range s.InitialRounds() {
		for _, i := range round {
			if err := e.Enqueue(nodes[i], s.Nodes[i].Inputs...); err != nil {
				return nil, fmt.Errorf("enqueue round %d: %w", r, err)
			}
		}
		e.Log(ctx, slog.LevelDebug, "round enqueued", "graph", s.Name, "round", r, "nodes", len(round))
	}

	e.Log(ctx, slog.LevelInfo, "graph built",
		"graph", s.Name,
		"nodes", len(nodes),
		"joins", len(s.Joins),
		"queue_len", e.queue.Size(),
	)
	return nodes, nil
}

// wire creates the schema's nodes and connects them without enqueueing. On
// failure the registry, the joins and the tracked dependencies are put back
// as they were.
func (e *Engine) wire(s *schema.Schema, cat Catalog) (_ []*Node, err error) {
	saved := e.saveWiring()
	defer func() {
		if err != nil {
			e.restoreWiring(saved)
		}
	}()

	nodes := make([]*Node, len(s.Nodes))
	for i, spec := range s.Nodes {
		fn, err := cat.NodeFunc(spec.Kind, spec.Args)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", s.NodeName(i), err)
		}
		n, err := e.NewNode(s.NodeName(i), fn, WithKind(spec.Kind, spec.Args))
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}

	for i, spec := range s.Nodes {
		for _, d := range spec.DependsOn {
			if err := nodes[i].DependsOn(nodes[d]); err != nil {
				return nil, err
			}
		}
	}

	for j, js := range s.Joins {
		if _, err := e.connectSpec(js, nodes, cat); err != nil {
			return nil, fmt.Errorf("join %d: %w", j, err)
		}
	}
	return nodes, nil
}

// wiring is the part of the engine a Build adds to.
type wiring struct {
	objects map[string]any
	order   []string
	joins   int
	deps    int
}

func (e *Engine) saveWiring() wiring {
	e.mu.Lock()
	defer e.mu.Unlock()
	return wiring{
		objects: maps.Clone(e.objects),
		order:   slices.Clone(e.order),
		joins:   len(e.joins),
		deps:    len(e.deps),
	}
}

func (e *Engine) restoreWiring(w wiring) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects = w.objects
	e.order = w.order
	e.joins = e.joins[:w.joins]
	e.deps = e.deps[:w.deps]
}

func (e *Engine) connectSpec(js schema.JoinSpec, nodes []*Node, cat Catalog) (*Connector, error) {
	pick := func(idx []int) []*Node {
		out := make([]*Node, len(idx))
		for k, i := range idx {
			out[k] = nodes[i]
		}
		return out
	}

	var opts []JoinOption
	if js.Iterate {
		opts = append(opts, Iterate())
	}
	if js.Splat {
		opts = append(opts, Splat())
	}
	if js.Stack {
		opts = append(opts, Stacked())
	}
	if js.Aggregate {
		opts = append(opts, Aggregate())
	}

	sources, targets := pick(js.Sources), pick(js.Targets)
	if js.Kind == schema.JoinSwitch {
		sel, err := cat.Selector(js.Selector)
		if err != nil {
			return nil, err
		}
		opts = append(opts, SelectorName(js.Selector))
		return e.Switch(sources[0], sel, targets, opts...)
	}
	return e.Connect(JoinKind(js.Kind), sources, targets, opts...)
}

// Spec describes the connector as a schema join, numbering nodes through
// index. Every source and target must be present in index.
func (c *Connector) Spec(index map[*Node]int) (schema.JoinSpec, error) {
	pick := func(ns []*Node) ([]int, error) {
		out := make([]int, len(ns))
		for k, n := range ns {
			i, ok := index[n]
			if !ok {
				return nil, fmt.Errorf("%s join: node %s is not registered", c.kind, n.id)
			}
			out[k] = i
		}
		return out, nil
	}
	sources, err := pick(c.sources)
	if err != nil {
		return schema.JoinSpec{}, err
	}
	targets, err := pick(c.targets)
	if err != nil {
		return schema.JoinSpec{}, err
	}
	return schema.JoinSpec{
		Kind:      string(c.kind),
		Sources:   sources,
		Targets:   targets,
		Iterate:   c.iterate,
		Splat:     c.splat,
		Stack:     c.stack,
		Aggregate: c.aggregate && c.kind != KindSync,
		Selector:  c.selectorName,
	}, nil
}

func (e *Engine) buildSignal(ctx context.Context, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("build: want schema and catalog, got %d args", len(args))
	}
	s, ok := args[0].(*schema.Schema)
	if !ok {
		return nil, fmt.Errorf("build: want *schema.Schema, got %T", args[0])
	}
	cat, ok := args[1].(Catalog)
	if !ok {
		return nil, fmt.Errorf("build: want Catalog, got %T", args[1])
	}
	return e.Build(ctx, s, cat)
}
