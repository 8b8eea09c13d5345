package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/weft/internal/audit"
)

// State is the run-loop state.
type State int32

const (
	// StateReady means no run loop is active.
	StateReady State = iota
	// StateRun means a run loop is draining the queue.
	StateRun
	// StateStop asks the run loop to exit after the current entry.
	StateStop
	// StateTerminate asks running nodes to abort at their next CheckTerminate.
	StateTerminate
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRun:
		return "RUN"
	case StateStop:
		return "STOP"
	case StateTerminate:
		return "TERMINATE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ResultHandler is a default join: it receives every result whose node has
// no completion join of its own.
type ResultHandler func(ctx context.Context, result *audit.Audit) error

// Engine owns the queue, the middleware stack, the named-object registry and
// the run-loop state machine.
//
// Thread-safety model:
//   - Enqueue(), Unshift(), Set(), Get(): safe from any goroutine
//   - Run(): one active drain loop at a time; a second call while one is
//     active (nested in a node, or from another goroutine) returns at once
//   - Stack configuration: before Run starts
type Engine struct {
	logger        *slog.Logger
	debug         bool
	quiet         bool
	verbose       bool
	auditDisabled bool
	maxSteps      int

	clock   *Clock
	waveGen WaveGenerator
	queue   *Queue
	stack   *Stack

	// stateMu serializes the transitions that touch both state and running.
	// Reads go through the atomics.
	stateMu   sync.Mutex
	state     atomic.Int32
	running   atomic.Bool
	directSeq atomic.Uint64

	mu           sync.Mutex
	objects      map[string]any
	order        []string
	defaultJoins []ResultHandler
	results      map[string][]*audit.Audit
	collected    []*audit.Audit
	deps         []*Node
	joins        []*Connector
	nodeSeq      int
	wave         string
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDebug makes Run return the first node failure immediately instead of
// logging it and draining the rest of the queue.
func WithDebug(debug bool) EngineOption {
	return func(e *Engine) {
		e.debug = debug
	}
}

// WithQuiet limits Log to warnings and errors.
func WithQuiet(quiet bool) EngineOption {
	return func(e *Engine) {
		e.quiet = quiet
	}
}

// WithVerbose lets Log emit debug messages.
func WithVerbose(verbose bool) EngineOption {
	return func(e *Engine) {
		e.verbose = verbose
	}
}

// WithAuditDisabled skips provenance bookkeeping: result audits carry no
// parents and raw inputs are not wrapped.
func WithAuditDisabled(disabled bool) EngineOption {
	return func(e *Engine) {
		e.auditDisabled = disabled
	}
}

// WithWaveGenerator sets the wave token source. Default: UUIDv7Generator.
func WithWaveGenerator(gen WaveGenerator) EngineOption {
	return func(e *Engine) {
		e.waveGen = gen
	}
}

// WithClock sets the logical clock that stamps audit sequence numbers.
// Used by Restore to continue numbering after the exported position.
func WithClock(clock *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithMaxSteps caps the node calls per wave. The cap sits below every
// middleware layer and survives Reset. Zero disables it.
//
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// New creates an Engine in state READY with an empty queue and an identity
// middleware stack.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:  slog.Default(),
		clock:   NewClock(),
		waveGen: UUIDv7Generator{},
		queue:   NewQueue(),
		objects: make(map[string]any),
		results: make(map[string][]*audit.Audit),
	}

	for _, opt := range opts {
		opt(e)
	}

	var base Dispatcher = DispatcherFunc(e.invoke)
	if e.maxSteps > 0 {
		base = Quota(e.maxSteps)(base)
	}
	e.stack = newStack(base)
	return e
}

// State returns the current run-loop state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Running reports whether a run loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Debug reports whether the engine propagates the first failure.
func (e *Engine) Debug() bool { return e.debug }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Clock returns the logical clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Queue returns the engine's work queue.
func (e *Engine) Queue() *Queue { return e.queue }

// Stack returns the engine's middleware stack.
func (e *Engine) Stack() *Stack { return e.stack }

// Use installs m on top of the middleware stack.
func (e *Engine) Use(m Middleware) Dispatcher {
	return e.stack.Use(m)
}

// Log emits a message if the level passes the quiet/verbose gate: quiet
// allows warnings and above, verbose allows everything, otherwise info and
// above.
func (e *Engine) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	floor := slog.LevelInfo
	switch {
	case e.quiet:
		floor = slog.LevelWarn
	case e.verbose:
		floor = slog.LevelDebug
	}
	if level < floor {
		return
	}
	e.logger.Log(ctx, level, msg, args...)
}

// Enqueue appends (node, inputs) to the back of the queue.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Enqueue(node *Node, inputs ...any) error {
	if err := e.queue.Enqueue(node, inputs); err != nil {
		return err
	}
	e.logger.Debug("enqueued", "node", node.id, "inputs", len(inputs), "queue_len", e.queue.Size())
	return nil
}

// Unshift places (node, inputs) at the front of the queue.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Unshift(node *Node, inputs ...any) error {
	if err := e.queue.Unshift(node, inputs); err != nil {
		return err
	}
	e.logger.Debug("unshifted", "node", node.id, "inputs", len(inputs), "queue_len", e.queue.Size())
	return nil
}

// Execute dispatches node through the middleware stack immediately,
// bypassing the queue.
//
// Outside a run every top-level Execute is its own dispatch: step quotas and
// aggregate batches started by it do not carry over to the next one.
func (e *Engine) Execute(ctx context.Context, node *Node, inputs ...any) (*audit.Audit, error) {
	if node == nil {
		return nil, NewNotExecutableError(node)
	}
	if _, ok := dispatchFromContext(ctx); !ok && e.Wave() == "" {
		ctx = withDispatch(ctx, fmt.Sprintf("direct-%d", e.directSeq.Add(1)))
	}
	return e.stack.Call(ctx, node, inputs)
}

// scopeKey names the unit of work a call belongs to: the wave of the active
// run, or the top-level direct dispatch outside a run.
func (e *Engine) scopeKey(ctx context.Context) string {
	if wave := e.Wave(); wave != "" {
		return wave
	}
	key, _ := dispatchFromContext(ctx)
	return key
}

// Run drains the queue through the middleware stack until it is empty, the
// state is set to STOP or TERMINATE, or ctx is cancelled.
//
// A call made while another drain loop is active is a no-op that returns
// nil. A node failing with TerminateError is put back at the front of the
// queue with its original inputs. Other failures are returned at once in
// debug mode; otherwise they are logged, the loop keeps draining, and all
// of them are returned joined. The state is READY again when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.begin() {
		e.logger.Debug("run ignored: already running")
		return nil
	}
	wave := e.beginWave()
	e.logger.Debug("run started", "wave", wave, "queue_len", e.queue.Size())

	defer func() {
		e.endWave()
		e.finish()
	}()

	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("run stopping: context cancelled", "wave", wave, "queue_len", e.queue.Size())
			return errors.Join(append(errs, err)...)
		}

		entry, ok := e.queue.Dequeue()
		if !ok {
			break
		}
		e.logger.Debug("dequeued", "node", entry.Node.id, "queue_len", e.queue.Size())

		if _, err := e.stack.Call(ctx, entry.Node, entry.Inputs); err != nil {
			if IsTerminateError(err) {
				if uerr := e.queue.Unshift(entry.Node, entry.Inputs); uerr != nil {
					return uerr
				}
				e.logger.Info("run terminated", "node", entry.Node.id, "wave", wave, "queue_len", e.queue.Size())
				return errors.Join(errs...)
			}
			if e.debug {
				return fmt.Errorf("node %s: %w", entry.Node.id, err)
			}
			e.logger.Error("node failed",
				"node", entry.Node.id,
				"wave", wave,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("node %s: %w", entry.Node.id, err))
		}

		if s := e.State(); s == StateStop || s == StateTerminate {
			e.logger.Info("run interrupted", "state", s.String(), "wave", wave, "queue_len", e.queue.Size())
			break
		}
	}
	return errors.Join(errs...)
}

// begin claims the run loop. The state is RUN before running is published.
func (e *Engine) begin() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.running.Load() {
		return false
	}
	e.setState(StateRun)
	e.running.Store(true)
	return true
}

// finish releases the run loop and puts the state back to READY.
func (e *Engine) finish() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.setState(StateReady)
	e.running.Store(false)
}

// Stop asks the active run loop to exit after the current entry. The rest
// of the queue is kept for a later Run. Without an active run it does
// nothing.
func (e *Engine) Stop() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.running.Load() && e.State() == StateRun {
		e.setState(StateStop)
		e.logger.Debug("stop requested")
	}
}

// Terminate asks running nodes to abort at their next CheckTerminate.
// Without an active run it does nothing.
func (e *Engine) Terminate() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if !e.running.Load() {
		return
	}
	e.setState(StateTerminate)
	e.logger.Debug("terminate requested")
}

// CheckTerminate is the cooperative cancellation checkpoint for long-running
// nodes. If termination was requested it runs cleanup and returns a
// TerminateError, which the node should return unchanged.
func (e *Engine) CheckTerminate(ctx context.Context, cleanup ...func()) error {
	if e.State() != StateTerminate {
		return nil
	}
	for _, fn := range cleanup {
		fn()
	}
	te := &TerminateError{}
	if n, ok := NodeFromContext(ctx); ok {
		te.Node = n.id
	}
	return te
}

// Wave returns the token of the active run, or "" outside a run.
func (e *Engine) Wave() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wave
}

func (e *Engine) beginWave() string {
	wave := e.waveGen.Generate()
	e.mu.Lock()
	e.wave = wave
	e.mu.Unlock()
	return wave
}

func (e *Engine) endWave() {
	e.mu.Lock()
	e.wave = ""
	e.mu.Unlock()
}

// OnResult registers a default join. Once any is registered, results of
// nodes without a completion join go to the handlers instead of the
// default aggregator.
func (e *Engine) OnResult(h ResultHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultJoins = append(e.defaultJoins, h)
}

// routeDefault delivers a result that no join claimed.
func (e *Engine) routeDefault(ctx context.Context, result *audit.Audit) error {
	e.mu.Lock()
	handlers := append([]ResultHandler(nil), e.defaultJoins...)
	if len(handlers) == 0 {
		node := result.Node()
		e.results[node] = append(e.results[node], result)
		e.collected = append(e.collected, result)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Results returns the aggregated results of one node in completion order.
func (e *Engine) Results(node string) []*audit.Audit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*audit.Audit(nil), e.results[node]...)
}

// Collected returns every aggregated result in completion order.
func (e *Engine) Collected() []*audit.Audit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*audit.Audit(nil), e.collected...)
}

// ClearResults empties the default aggregator.
func (e *Engine) ClearResults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = make(map[string][]*audit.Audit)
	e.collected = nil
}

func (e *Engine) trackDependency(n *Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.deps {
		if d == n {
			return
		}
	}
	e.deps = append(e.deps, n)
}

// ResetDependencies clears the memoized result of every node that was ever
// declared as a dependency, so the next resolution runs them again.
func (e *Engine) ResetDependencies() {
	e.mu.Lock()
	deps := append([]*Node(nil), e.deps...)
	e.mu.Unlock()

	for _, d := range deps {
		d.forget()
	}
}

// Joins returns the connectors built on this engine in creation order.
func (e *Engine) Joins() []*Connector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Connector(nil), e.joins...)
}

// Reset clears the named objects, the queue, the default aggregator and
// every installed middleware layer. Registered default joins and options
// are kept.
func (e *Engine) Reset() {
	dropped := e.queue.Clear()
	e.stack.Reset()

	e.mu.Lock()
	e.objects = make(map[string]any)
	e.order = nil
	e.results = make(map[string][]*audit.Audit)
	e.collected = nil
	e.deps = nil
	e.joins = nil
	e.nodeSeq = 0
	e.mu.Unlock()

	e.logger.Debug("engine reset", "dropped_entries", len(dropped))
}
