package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	DBPath string
	Wave   string
	Node   string
}

// TraceResult is the output of trace for one wave.
type TraceResult struct {
	Wave    string         `json:"wave"`
	Results []store.Result `json:"results"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show stored results and their provenance",
		Long: `Print the results stored by 'weft run --db' for one wave, each with the
trail of source node names and values that produced it.

Without --wave, the stored waves are listed.

Examples:
  weft trace --db ./weft.db
  weft trace --db ./weft.db --wave 019355f0-...
  weft trace --db ./weft.db --wave 019355f0-... --node sort --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "database path (required)")
	cmd.Flags().StringVar(&opts.Wave, "wave", "", "wave token to show")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only show results of this node")
	cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openStore(opts.DBPath)
	if err != nil {
		return reportError(out, err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	if opts.Wave == "" {
		waves, err := st.ReadWaves(ctx)
		if err != nil {
			return reportError(out, WrapExitError(ExitCommandError, "failed to read waves", err))
		}
		return out.Emit(waves, func(w io.Writer) {
			if len(waves) == 0 {
				fmt.Fprintln(w, "No stored waves")
				return
			}
			for _, ws := range waves {
				fmt.Fprintf(w, "%s\t%d result(s)\t%d node(s)\n", ws.Wave, ws.Results, ws.Nodes)
			}
		})
	}

	results, err := st.ReadResults(ctx, opts.Wave)
	if err != nil {
		return reportError(out, WrapExitError(ExitCommandError, "failed to read results", err))
	}
	if opts.Node != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Node == opts.Node {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) == 0 {
		return reportError(out, NewExitError(ExitFailure, fmt.Sprintf("no results for wave %s", opts.Wave)))
	}

	trace := TraceResult{Wave: opts.Wave, Results: results}
	return out.Emit(trace, func(w io.Writer) {
		fmt.Fprintf(w, "Wave %s\n", trace.Wave)
		for _, r := range trace.Results {
			fmt.Fprintf(w, "  #%d %s = %s\n", r.Seq, r.Node, formatValue(r.Value))
			for _, step := range r.Trail {
				fmt.Fprintf(w, "      <- %s\n", formatValue(step))
			}
		}
	})
}
