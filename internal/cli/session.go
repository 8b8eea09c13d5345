package cli

import (
	"context"
	"io"
	"sync"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/store"
)

// directWave labels results produced outside a run, e.g. by an execute
// signal.
const directWave = "direct"

// recorder observes every node result with the wave it belongs to so the
// results can be reported and persisted after the run.
type recorder struct {
	mu     sync.Mutex
	waves  []string
	byWave map[string][]*audit.Audit
	waveOf map[*audit.Audit]string
}

func newRecorder() *recorder {
	return &recorder{
		byWave: make(map[string][]*audit.Audit),
		waveOf: make(map[*audit.Audit]string),
	}
}

func (r *recorder) observe(_ context.Context, node *engine.Node, result *audit.Audit) {
	wave := node.Engine().Wave()
	if wave == "" {
		wave = directWave
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byWave[wave]; !ok {
		r.waves = append(r.waves, wave)
	}
	r.byWave[wave] = append(r.byWave[wave], result)
	r.waveOf[result] = wave
}

// Waves returns the observed waves in first-seen order.
func (r *recorder) Waves() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.waves...)
}

// Count returns the number of observed results.
func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waveOf)
}

// persist writes every observed result, one transaction per wave.
func (r *recorder) persist(ctx context.Context, st *store.Store) (int, error) {
	written := 0
	for _, wave := range r.Waves() {
		r.mu.Lock()
		audits := append([]*audit.Audit(nil), r.byWave[wave]...)
		r.mu.Unlock()

		rows, err := st.WriteResults(ctx, wave, audits)
		if err != nil {
			return written, err
		}
		written += len(rows)
	}
	return written, nil
}

// ResultView is one reported node result.
type ResultView struct {
	Node  string `json:"node"`
	Seq   int64  `json:"seq"`
	Wave  string `json:"wave,omitempty"`
	Value any    `json:"value"`
	Trail []any  `json:"trail,omitempty"`
}

// view renders audits with their waves; trails are included when
// withTrail is set.
func (r *recorder) view(audits []*audit.Audit, withTrail bool) []ResultView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ResultView, 0, len(audits))
	for _, a := range audits {
		v := ResultView{
			Node:  a.Node(),
			Seq:   a.Seq,
			Wave:  r.waveOf[a],
			Value: a.Value,
		}
		if withTrail {
			v.Trail = a.Trail(audit.SourceValue)
		}
		out = append(out, v)
	}
	return out
}

// engineOptions returns the options every command engine starts from:
// a logger on errOut plus extra.
func engineOptions(opts *RootOptions, errOut io.Writer, extra ...engine.EngineOption) []engine.EngineOption {
	return append([]engine.EngineOption{
		engine.WithLogger(newLogger(opts.Verbose, opts.LogFormat, errOut)),
		engine.WithVerbose(opts.Verbose),
	}, extra...)
}

// instrument installs panic recovery, call logging when verbose, and a
// recorder on the middleware stack of eng.
func instrument(eng *engine.Engine, verbose bool) *recorder {
	rec := newRecorder()
	eng.Use(engine.Recover())
	if verbose {
		eng.Use(engine.Logging(eng.Logger()))
	}
	eng.Use(engine.Intercept(rec.observe))
	return rec
}

// newEngine creates an instrumented engine logging to errOut.
func newEngine(opts *RootOptions, errOut io.Writer, extra ...engine.EngineOption) (*engine.Engine, *recorder) {
	eng := engine.New(engineOptions(opts, errOut, extra...)...)
	return eng, instrument(eng, opts.Verbose)
}

// openStore opens the database at path as a command error on failure.
func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
