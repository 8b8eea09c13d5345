package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/builtin"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/ir"
	"github.com/roach88/weft/internal/schema"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/testutil"
)

// directWave labels results produced outside any run, e.g. by execute.
const directWave = "direct"

// Harness is the scenario execution context: one engine, one in-memory
// store and the results observed so far.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	catalog engine.Catalog
	logger  *slog.Logger

	mu     sync.Mutex
	events []observed
}

type observed struct {
	wave  string
	audit *audit.Audit
}

// Option configures a harness run.
type Option func(*options)

type options struct {
	catalog engine.Catalog
	logger  *slog.Logger
}

// WithCatalog replaces the builtin catalog.
func WithCatalog(cat engine.Catalog) Option {
	return func(o *options) { o.catalog = cat }
}

// WithLogger routes engine logs to logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh engine and a fresh in-memory database.
//
// Execution flow:
//  1. Open an in-memory store
//  2. Build the graph from the builtin catalog (enqueues initial rounds)
//  3. Execute flow steps through engine.Call, checking expect clauses
//  4. Persist every observed result to the store
//  5. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{catalog: builtin.New(), logger: testutil.DiscardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	g, err := graphOf(scenario)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:   st,
		catalog: o.catalog,
		logger:  o.logger,
	}
	h.engine = engine.New(
		engine.WithLogger(o.logger),
		engine.WithDebug(scenario.Debug),
		engine.WithWaveGenerator(testutil.NewWaveCounter(scenario.WavePrefix)),
		engine.WithClock(engine.NewClock()),
	)
	h.engine.Use(engine.Recover())
	h.engine.Use(engine.Intercept(h.observe))

	if _, err := h.engine.Call(ctx, engine.EngineObject, "build", g, h.catalog); err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	if err := h.persist(ctx); err != nil {
		return nil, fmt.Errorf("failed to persist results: %w", err)
	}
	h.fillResult(result)

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func graphOf(scenario *Scenario) (*schema.Schema, error) {
	if scenario.Schema != nil {
		return scenario.Schema, nil
	}
	g, err := schema.Load(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	return g, nil
}

// observe records a node result together with the wave it belongs to.
func (h *Harness) observe(_ context.Context, node *engine.Node, result *audit.Audit) {
	wave := node.Engine().Wave()
	if wave == "" {
		wave = directWave
	}
	h.mu.Lock()
	h.events = append(h.events, observed{wave: wave, audit: result})
	h.mu.Unlock()
}

// executeFlow runs every flow step. Failures are recorded on result and
// do not stop the flow.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		object, signal, err := step.Target()
		if err != nil {
			result.AddError(fmt.Sprintf("flow[%d]: %v", i, err))
			continue
		}

		got, err := h.engine.Call(ctx, object, signal, step.Args...)
		h.logger.Debug("flow step completed",
			"step", i,
			"invoke", step.Invoke,
			"error", err,
		)

		expect := step.Expect
		if expect == nil {
			expect = &ExpectClause{}
		}
		if msg := checkExpect(step.Invoke, got, err, expect); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s", i, msg))
		}
	}
}

func checkExpect(invoke string, got any, err error, expect *ExpectClause) string {
	switch {
	case expect.Error != "" && err == nil:
		return fmt.Sprintf("%s: expected error containing %q, got success", invoke, expect.Error)
	case expect.Error != "" && !containsError(err, expect.Error):
		return fmt.Sprintf("%s: expected error containing %q, got %v", invoke, expect.Error, err)
	case expect.Error == "" && err != nil:
		return fmt.Sprintf("%s: %v", invoke, err)
	}

	if expect.Result == nil {
		return ""
	}
	equal, cerr := canonicalEqual(plainResult(got), expect.Result)
	if cerr != nil {
		return fmt.Sprintf("%s: comparing result: %v", invoke, cerr)
	}
	if !equal {
		return fmt.Sprintf("%s: result = %v, expected %v", invoke, plainResult(got), expect.Result)
	}
	return ""
}

// plainResult turns a signal's result into plain data: audits become
// their values, nodes their names, an inspect report a map.
func plainResult(v any) any {
	switch x := v.(type) {
	case *audit.Audit:
		if x == nil {
			return nil
		}
		return x.Value
	case []*engine.Node:
		names := make([]any, len(x))
		for i, n := range x {
			names[i] = n.ID()
		}
		return names
	case engine.Inspection:
		return inspectionMap(x)
	default:
		return v
	}
}

func inspectionMap(in engine.Inspection) map[string]any {
	objects := make([]any, len(in.Objects))
	for i, o := range in.Objects {
		objects[i] = o
	}
	return map[string]any{
		"state":            in.State,
		"wave":             in.Wave,
		"queue_len":        in.QueueLen,
		"objects":          objects,
		"middleware_depth": in.Depth,
		"joins":            in.Joins,
		"results":          in.Results,
		"seq":              in.Seq,
	}
}

// persist writes every observed result to the store, one transaction per
// wave in first-seen order.
func (h *Harness) persist(ctx context.Context) error {
	h.mu.Lock()
	events := append([]observed(nil), h.events...)
	h.mu.Unlock()

	var waves []string
	byWave := make(map[string][]*audit.Audit)
	for _, ev := range events {
		if _, ok := byWave[ev.wave]; !ok {
			waves = append(waves, ev.wave)
		}
		byWave[ev.wave] = append(byWave[ev.wave], ev.audit)
	}
	for _, w := range waves {
		if _, err := h.store.WriteResults(ctx, w, byWave[w]); err != nil {
			return err
		}
	}
	return nil
}

// fillResult copies the trace, the collected values and the final engine
// state into result.
func (h *Harness) fillResult(result *Result) {
	h.mu.Lock()
	events := append([]observed(nil), h.events...)
	h.mu.Unlock()

	// Joins without stacking dispatch their targets before the source's
	// middleware returns, so observation order is not completion order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].audit.Seq < events[j].audit.Seq
	})
	for _, ev := range events {
		wave := ev.wave
		if wave == directWave {
			wave = ""
		}
		result.Trace = append(result.Trace, TraceEvent{
			Seq:   ev.audit.Seq,
			Wave:  wave,
			Node:  ev.audit.Node(),
			Value: ev.audit.Value,
			Trail: ev.audit.Trail(audit.SourceValue),
		})
	}

	for _, a := range h.engine.Collected() {
		result.Collected = append(result.Collected, a.Value)
	}
	result.State = inspectionMap(h.engine.Inspect())
}

func canonicalEqual(a, b any) (bool, error) {
	ja, err := ir.MarshalCanonical(a)
	if err != nil {
		return false, err
	}
	jb, err := ir.MarshalCanonical(b)
	if err != nil {
		return false, err
	}
	return string(ja) == string(jb), nil
}
