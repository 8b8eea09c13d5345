package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/builtin"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/ir"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Debug bool
}

// CallResult is the output of call.
type CallResult struct {
	Invoke  string            `json:"invoke"`
	Result  any               `json:"result,omitempty"`
	Results []ResultView      `json:"results"`
	Engine  engine.Inspection `json:"engine"`
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <graph> <object.signal> [args...]",
		Short: "Build a graph and send one signal",
		Long: `Build a graph, then send a signal to a registered object: the engine
itself ("engine") or a node by name. Each argument is parsed as JSON and
passed as-is when it is not valid JSON.

The answer is printed together with the results collected so far and the
engine state afterwards.

Engine signals: enqueue, unshift, execute, run, stop, terminate, reset,
inspect, export. Node signals: execute, enqueue, unshift,
reset-dependencies.

Examples:
  weft call ./graphs/sort.yaml engine.run
  weft call ./graphs/sort.yaml sort.execute '["b","a"]'
  weft call ./graphs/sort.yaml engine.inspect --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts, args[0], args[1], args[2:])
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "stop at the first node failure")

	return cmd
}

func runCall(cmd *cobra.Command, opts *CallOptions, path, invoke string, rawArgs []string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	object, signal, ok := strings.Cut(invoke, ".")
	if !ok || object == "" || signal == "" {
		return reportError(out, NewExitError(ExitCommandError, fmt.Sprintf("invalid target %q: expected object.signal", invoke)))
	}
	args := make([]any, len(rawArgs))
	for i, raw := range rawArgs {
		args[i] = parseArg(raw)
	}

	g, err := loadGraph(path)
	if err != nil {
		return reportError(out, err)
	}

	ctx := commandContext(cmd)
	eng, rec := newEngine(opts.RootOptions, cmd.ErrOrStderr(), engine.WithDebug(opts.Debug))
	if _, err := eng.Build(ctx, g, builtin.New()); err != nil {
		return reportError(out, WrapExitError(ExitFailure, "failed to build graph", err))
	}

	got, err := eng.Call(ctx, object, signal, args...)
	if err != nil {
		return reportError(out, WrapExitError(ExitFailure, invoke+" failed", err))
	}

	result := CallResult{
		Invoke:  invoke,
		Result:  callValue(rec, got),
		Results: rec.view(eng.Collected(), false),
		Engine:  eng.Inspect(),
	}
	return out.Emit(result, func(w io.Writer) {
		if result.Result != nil {
			fmt.Fprintf(w, "%s -> %s\n", invoke, formatValue(result.Result))
		} else {
			fmt.Fprintf(w, "%s -> ok\n", invoke)
		}
		for _, v := range result.Results {
			fmt.Fprintf(w, "%s\t%s\n", v.Node, formatValue(v.Value))
		}
		fmt.Fprintf(w, "engine: %s, %d queued, seq %d\n", result.Engine.State, result.Engine.QueueLen, result.Engine.Seq)
	})
}

// parseArg decodes raw as JSON, or keeps it as a string.
func parseArg(raw string) any {
	v, err := ir.Decode([]byte(raw))
	if err != nil {
		return raw
	}
	return v
}

// callValue turns a signal answer into printable data.
func callValue(rec *recorder, v any) any {
	switch x := v.(type) {
	case *audit.Audit:
		return rec.view([]*audit.Audit{x}, true)[0]
	case []*engine.Node:
		names := make([]string, len(x))
		for i, n := range x {
			names[i] = n.ID()
		}
		return names
	default:
		return v
	}
}
