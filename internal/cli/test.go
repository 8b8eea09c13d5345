package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against their golden traces",
		Long: `Run every YAML scenario under a directory. Each scenario builds a graph,
drives the engine through a flow of signals and checks its assertions.
When <dir>/golden/<scenario>.golden exists, the recorded trace must match
it byte for byte.

Examples:
  weft test ./testdata/scenarios
  weft test ./testdata/scenarios --filter 'sort*'
  weft test ./testdata/scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	logger := newLogger(opts.Verbose, opts.LogFormat, cmd.ErrOrStderr())
	suite, err := harness.RunSuite(commandContext(cmd), dir, harness.SuiteOptions{
		Filter:  opts.Filter,
		Update:  opts.Update,
		Options: []harness.Option{harness.WithLogger(logger)},
	})
	if err != nil {
		return reportError(out, WrapExitError(ExitCommandError, "failed to run scenarios", err))
	}

	if err := out.Emit(suite, func(w io.Writer) { writeSuite(w, suite) }); err != nil {
		return err
	}
	if suite.Total == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", dir))
	}
	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", suite.Failed, suite.Total))
	}
	return nil
}

func writeSuite(w io.Writer, suite *harness.SuiteResult) {
	for _, s := range suite.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		if s.Golden != "" {
			fmt.Fprintf(w, "%s %s (golden: %s)\n", mark, s.Name, s.Golden)
		} else {
			fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		}
		for _, e := range s.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
}
