package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/builtin"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/ir"
	"github.com/roach88/weft/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DBPath   string
	Debug    bool
	MaxSteps int
	Timeout  time.Duration
	Trail    bool
}

// RunResult is the outcome of a run or resume.
type RunResult struct {
	Graph    string       `json:"graph"`
	Waves    []string     `json:"waves"`
	Results  []ResultView `json:"results"`
	Pending  int          `json:"pending"`
	Stored   int          `json:"stored,omitempty"`
	Snapshot string       `json:"snapshot,omitempty"`
	Errors   []string     `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Build a graph and run it to completion",
		Long: `Load a YAML or CUE graph, build it with the builtin catalog, drain the
queue and print the results collected by the default aggregator.

With --db every node result is stored by wave. If the run is interrupted
(SIGINT/SIGTERM) with work still queued, the remaining queue is stored as
a snapshot named after the graph so it can be continued with 'weft resume'.

Examples:
  weft run ./graphs/sort.yaml
  weft run ./graphs/merge.cue --db ./weft.db
  weft run ./graphs --debug --max-steps 1000 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "store results and pending snapshots in this SQLite database")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "stop at the first node failure")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "maximum node calls per wave (0 = unlimited)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "abort the run after this duration (0 = none)")
	cmd.Flags().BoolVar(&opts.Trail, "trail", false, "include provenance trails in the output")

	return cmd
}

func runGraph(cmd *cobra.Command, opts *RunOptions, path string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	g, err := loadGraph(path)
	if err != nil {
		return reportError(out, err)
	}

	var st *store.Store
	if opts.DBPath != "" {
		if st, err = openStore(opts.DBPath); err != nil {
			return reportError(out, err)
		}
		defer st.Close()
	}

	eng, rec := newEngine(opts.RootOptions, cmd.ErrOrStderr(),
		engine.WithDebug(opts.Debug),
		engine.WithMaxSteps(opts.MaxSteps),
	)

	ctx := commandContext(cmd)
	if _, err := eng.Build(ctx, g, builtin.New()); err != nil {
		return reportError(out, WrapExitError(ExitFailure, "failed to build graph", err))
	}
	out.VerboseLog("Built graph %s: %d nodes, %d joins, %d queued", g.Name, len(g.Nodes), len(g.Joins), eng.Queue().Size())

	result, runErr := drive(ctx, eng, rec, st, g.Name, opts)
	if err := writeRunResult(out, result); err != nil {
		return err
	}
	return runFailure(runErr)
}

// drive runs eng until its queue is drained or the run is interrupted,
// then stores what it produced when st is set.
func drive(ctx context.Context, eng *engine.Engine, rec *recorder, st *store.Store, name string, opts *RunOptions) (*RunResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			eng.Terminate()
		case <-done:
		}
	}()

	runErr := eng.Run(ctx)

	result := &RunResult{
		Graph:   name,
		Waves:   rec.Waves(),
		Results: rec.view(eng.Collected(), opts.Trail),
		Pending: eng.Queue().Size(),
	}
	if runErr != nil {
		result.Errors = splitErrors(runErr)
	}
	if st == nil {
		return result, runErr
	}

	// Storage uses a fresh context so an expired --timeout still persists.
	storeCtx := context.WithoutCancel(ctx)
	stored, err := rec.persist(storeCtx, st)
	if err != nil {
		return result, WrapExitError(ExitCommandError, "failed to store results", err)
	}
	result.Stored = stored

	if result.Pending > 0 {
		snap, err := saveSnapshot(storeCtx, eng, st, name)
		if err != nil {
			return result, WrapExitError(ExitCommandError, "failed to store pending queue", err)
		}
		result.Snapshot = snap.ID
	}
	return result, runErr
}

// runFailure maps a drive error to an exit error. Storage failures already
// carry their own code.
func runFailure(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitFailure, "run failed", err)
}

// saveSnapshot exports eng and stores the document under name.
func saveSnapshot(ctx context.Context, eng *engine.Engine, st *store.Store, name string) (store.Snapshot, error) {
	snap, err := eng.Export()
	if err != nil {
		return store.Snapshot{}, err
	}
	snap.Name = name
	snap.Graph.Name = name
	doc, err := snap.Document()
	if err != nil {
		return store.Snapshot{}, err
	}
	return st.WriteSnapshot(ctx, name, doc, snap.Seq)
}

func writeRunResult(out *OutputFormatter, r *RunResult) error {
	return out.Emit(r, func(w io.Writer) {
		for _, v := range r.Results {
			fmt.Fprintf(w, "%s\t%s\n", v.Node, formatValue(v.Value))
			if v.Trail != nil {
				fmt.Fprintf(w, "  trail: %s\n", formatValue(v.Trail))
			}
		}
		fmt.Fprintf(w, "\n%d result(s) in %d wave(s), %d pending\n", len(r.Results), len(r.Waves), r.Pending)
		if r.Stored > 0 {
			fmt.Fprintf(w, "Stored %d result(s)\n", r.Stored)
		}
		if r.Snapshot != "" {
			fmt.Fprintf(w, "Pending queue saved as snapshot %s (%s)\n", r.Snapshot, r.Graph)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "Error: %s\n", e)
		}
	})
}

// formatValue renders v as canonical JSON. Structs that the canonical
// encoder does not accept go through encoding/json.
func formatValue(v any) string {
	if data, err := ir.MarshalCanonical(v); err == nil {
		return string(data)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

// splitErrors unpacks an errors.Join result into its messages.
func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

// reportError writes err to the formatter and returns it for the exit
// code.
func reportError(out *OutputFormatter, err error) error {
	code := errorCode(err)
	if code == "" {
		code = "E000"
	}
	if ferr := out.Error(code, err.Error(), nil); ferr != nil {
		return ferr
	}
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
