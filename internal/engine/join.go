package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/weft/internal/audit"
)

// JoinKind names the connector shapes.
type JoinKind string

const (
	// KindSequence forwards one source to one target.
	KindSequence JoinKind = "sequence"
	// KindFork forwards one source to several targets, in order.
	KindFork JoinKind = "fork"
	// KindMerge forwards each of several sources to one target independently.
	KindMerge JoinKind = "merge"
	// KindSync waits for every source in the batch, then fires the target once.
	KindSync JoinKind = "sync"
	// KindSwitch picks one target per result with a selector.
	KindSwitch JoinKind = "switch"
)

// Selector picks a switch target for a result. Returning false selects no
// target and the result falls through to default routing.
type Selector func(result *audit.Audit) (int, bool)

// JoinOption sets a connector modifier.
type JoinOption func(*Connector)

// Iterate expands a collection result and dispatches once per element.
func Iterate() JoinOption { return func(c *Connector) { c.iterate = true } }

// Splat spreads collection values into separate target arguments.
func Splat() JoinOption { return func(c *Connector) { c.splat = true } }

// Stacked enqueues targets instead of calling them synchronously.
func Stacked() JoinOption { return func(c *Connector) { c.stack = true } }

// Aggregate waits for every source before firing, once per batch.
func Aggregate() JoinOption { return func(c *Connector) { c.aggregate = true } }

// SelectorName records the catalog name of a switch selector for export.
func SelectorName(name string) JoinOption { return func(c *Connector) { c.selectorName = name } }

// Connector subscribes to source completions and re-dispatches to targets.
//
// Dispatch order for a single completion follows the configured target
// order. With Stacked targets are enqueued; otherwise they run depth first
// before control returns to the run loop.
type Connector struct {
	engine  *Engine
	kind    JoinKind
	sources []*Node
	targets []*Node

	iterate   bool
	splat     bool
	stack     bool
	aggregate bool

	selector     Selector
	selectorName string

	mu    sync.Mutex
	batch *batch
}

// batch accumulates results per source for an aggregate connector. It is
// bound to the wave, or the direct dispatch, it started in. A slot holds
// more than one result only when the connector iterates.
type batch struct {
	scope string
	slots [][]*audit.Audit
}

func (b *batch) filled() int {
	n := 0
	for _, s := range b.slots {
		if len(s) > 0 {
			n++
		}
	}
	return n
}

// take pops the oldest result of every slot.
func (b *batch) take() []*audit.Audit {
	heads := make([]*audit.Audit, len(b.slots))
	for i, s := range b.slots {
		heads[i] = s[0]
		b.slots[i] = s[1:]
	}
	return heads
}

// port is the Join installed on one source; it remembers the source slot.
type port struct {
	c     *Connector
	index int
}

// Fire implements Join.
func (p *port) Fire(ctx context.Context, result *audit.Audit) error {
	return p.c.fire(ctx, p.index, result)
}

// Connect builds a connector and installs it as the completion join of every
// source.
func (e *Engine) Connect(kind JoinKind, sources, targets []*Node, opts ...JoinOption) (*Connector, error) {
	c := &Connector{
		engine:  e,
		kind:    kind,
		sources: sources,
		targets: targets,
	}
	for _, opt := range opts {
		opt(c)
	}
	if kind == KindSync {
		c.aggregate = true
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%s join: no sources", kind)
	}
	for _, n := range append(append([]*Node{}, sources...), targets...) {
		if n == nil {
			return nil, NewNotExecutableError(n)
		}
	}
	switch kind {
	case KindSequence:
		if len(sources) != 1 || len(targets) != 1 {
			return nil, fmt.Errorf("sequence join: want 1 source and 1 target, got %d and %d", len(sources), len(targets))
		}
	case KindFork:
		if len(sources) != 1 || len(targets) == 0 {
			return nil, fmt.Errorf("fork join: want 1 source and at least 1 target, got %d and %d", len(sources), len(targets))
		}
	case KindMerge, KindSync:
		if len(targets) != 1 {
			return nil, fmt.Errorf("%s join: want 1 target, got %d", kind, len(targets))
		}
	case KindSwitch:
		if len(sources) != 1 {
			return nil, fmt.Errorf("switch join: want 1 source, got %d", len(sources))
		}
		if c.selector == nil {
			return nil, fmt.Errorf("switch join: no selector")
		}
	default:
		return nil, fmt.Errorf("unknown join kind %q", kind)
	}

	for i, src := range sources {
		src.OnComplete(&port{c: c, index: i})
	}
	e.mu.Lock()
	e.joins = append(e.joins, c)
	e.mu.Unlock()
	return c, nil
}

// Sequence connects src to dst.
func (e *Engine) Sequence(src, dst *Node, opts ...JoinOption) (*Connector, error) {
	return e.Connect(KindSequence, []*Node{src}, []*Node{dst}, opts...)
}

// Fork connects src to every target.
func (e *Engine) Fork(src *Node, targets []*Node, opts ...JoinOption) (*Connector, error) {
	return e.Connect(KindFork, []*Node{src}, targets, opts...)
}

// Merge connects each source to dst; every source result fires dst on its own.
func (e *Engine) Merge(sources []*Node, dst *Node, opts ...JoinOption) (*Connector, error) {
	return e.Connect(KindMerge, sources, []*Node{dst}, opts...)
}

// SyncMerge fires dst once per batch, after every source has reported.
func (e *Engine) SyncMerge(sources []*Node, dst *Node, opts ...JoinOption) (*Connector, error) {
	return e.Connect(KindSync, sources, []*Node{dst}, opts...)
}

// Switch routes each result of src to the target chosen by sel.
func (e *Engine) Switch(src *Node, sel Selector, targets []*Node, opts ...JoinOption) (*Connector, error) {
	opts = append([]JoinOption{func(c *Connector) { c.selector = sel }}, opts...)
	return e.Connect(KindSwitch, []*Node{src}, targets, opts...)
}

// Kind returns the connector shape.
func (c *Connector) Kind() JoinKind { return c.kind }

// Sources returns the source nodes.
func (c *Connector) Sources() []*Node { return c.sources }

// Targets returns the target nodes.
func (c *Connector) Targets() []*Node { return c.targets }

func (c *Connector) fire(ctx context.Context, index int, result *audit.Audit) error {
	items := []*audit.Audit{result}
	if c.iterate {
		items = result.Splat()
	}
	for _, item := range items {
		if err := c.handle(ctx, index, item); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) handle(ctx context.Context, index int, item *audit.Audit) error {
	if c.aggregate {
		slots, ready := c.collect(ctx, index, item)
		if !ready {
			return nil
		}
		return c.route(ctx, item, c.mergedInputs(slots))
	}

	inputs := []any{item}
	if c.splat && !c.iterate {
		inputs = inputs[:0]
		for _, el := range item.Splat() {
			inputs = append(inputs, el)
		}
	}
	return c.route(ctx, item, inputs)
}

// collect records item in the current batch and reports whether every
// source has now reported. A batch from another wave or direct dispatch is
// discarded and a fresh batch starts with item. Without iterate, a source
// reporting again into an open batch also starts a fresh batch; with
// iterate its elements queue up and pair, in order, with the other sources'
// elements.
func (c *Connector) collect(ctx context.Context, index int, item *audit.Audit) ([]*audit.Audit, bool) {
	scope := c.engine.scopeKey(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.batch != nil {
		switch {
		case c.batch.scope != scope:
			c.discard("scope changed", scope)
		case len(c.batch.slots[index]) > 0 && !c.iterate:
			c.discard("source reported twice", scope)
		}
	}
	if c.batch == nil {
		c.batch = &batch{scope: scope, slots: make([][]*audit.Audit, len(c.sources))}
	}

	c.batch.slots[index] = append(c.batch.slots[index], item)
	if c.batch.filled() < len(c.sources) {
		return nil, false
	}
	heads := c.batch.take()
	if c.batch.filled() == 0 {
		c.batch = nil
	}
	return heads, true
}

func (c *Connector) discard(reason, scope string) {
	if filled := c.batch.filled(); filled > 0 {
		c.engine.logger.Info("discarding partial batch",
			"join", string(c.kind),
			"reason", reason,
			"filled", filled,
			"sources", len(c.sources),
			"batch_scope", c.batch.scope,
			"scope", scope,
		)
	}
	c.batch = nil
}

// Pending reports how many sources have reported into the open batch.
func (c *Connector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batch == nil {
		return 0
	}
	return c.batch.filled()
}

func (c *Connector) mergedInputs(slots []*audit.Audit) []any {
	lists := make([][]*audit.Audit, len(slots))
	for i, s := range slots {
		if c.splat {
			lists[i] = s.Splat()
		} else {
			lists[i] = []*audit.Audit{s}
		}
	}
	if len(lists) == 1 {
		inputs := make([]any, len(lists[0]))
		for i, a := range lists[0] {
			inputs[i] = a
		}
		return inputs
	}
	return []any{audit.MergeGroup(lists)}
}

func (c *Connector) route(ctx context.Context, item *audit.Audit, inputs []any) error {
	if c.kind != KindSwitch {
		return c.dispatch(ctx, c.targets, inputs)
	}

	idx, ok := c.selector(item)
	if !ok {
		return c.engine.routeDefault(ctx, item)
	}
	if idx < 0 || idx >= len(c.targets) {
		return NewUnknownJoinTargetError(item.Node(), idx, len(c.targets))
	}
	return c.dispatch(ctx, c.targets[idx:idx+1], inputs)
}

func (c *Connector) dispatch(ctx context.Context, targets []*Node, inputs []any) error {
	for _, t := range targets {
		var err error
		if c.stack {
			err = c.engine.Enqueue(t, inputs...)
		} else {
			_, err = c.engine.Execute(ctx, t, inputs...)
		}
		if err != nil {
			return fmt.Errorf("%s join to %s: %w", c.kind, t.ID(), err)
		}
	}
	return nil
}
