package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/builtin"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	NoBuild bool
}

// ValidationResult is the output of validate.
type ValidationResult struct {
	Graph    string                   `json:"graph"`
	Valid    bool                     `json:"valid"`
	Nodes    int                      `json:"nodes"`
	Joins    int                      `json:"joins"`
	Errors   []schema.ValidationError `json:"errors,omitempty"`
	Warnings []schema.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <graph>",
		Short: "Check a graph for errors without running it",
		Long: `Load a YAML or CUE graph and report every structural error with its
code. Unless --no-build is given, a valid graph is also wired into a
scratch engine with the builtin catalog, which catches unknown kinds,
unknown selectors and bad constructor arguments (E301).

Loops formed by joins are reported as warnings: a switch may legitimately
route back upstream.

Examples:
  weft validate ./graphs/sort.yaml
  weft validate ./graphs --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.NoBuild, "no-build", false, "skip the catalog build check")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, path string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	g, err := schema.Load(path)
	if err != nil {
		return reportError(out, WrapExitError(ExitCommandError, "failed to load graph", err))
	}

	result := ValidationResult{
		Graph: g.Name,
		Nodes: len(g.Nodes),
		Joins: len(g.Joins),
	}
	if result.Graph == "" {
		result.Graph = graphName(path)
	}

	result.Errors = schema.Validate(g)
	if len(result.Errors) == 0 {
		result.Warnings = schema.AnalyzeJoinCycles(g)
		if !opts.NoBuild {
			if err := buildCheck(cmd, opts.RootOptions, g); err != nil {
				result.Errors = append(result.Errors, schema.ValidationError{
					Field:   "graph",
					Message: err.Error(),
					Code:    ErrCodeBuildFailed,
				})
			}
		}
	}
	result.Valid = len(result.Errors) == 0

	if err := writeValidation(out, result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("graph %s is invalid: %d error(s)", result.Graph, len(result.Errors)))
	}
	return nil
}

// buildCheck wires g into an engine that is never run.
func buildCheck(cmd *cobra.Command, opts *RootOptions, g *schema.Schema) error {
	eng := engine.New(engine.WithLogger(newLogger(opts.Verbose, opts.LogFormat, cmd.ErrOrStderr())))
	_, err := eng.Build(commandContext(cmd), g, builtin.New())
	return err
}

func writeValidation(out *OutputFormatter, r ValidationResult) error {
	if !r.Valid && out.Format == "json" {
		return out.Error(r.Errors[0].Code, fmt.Sprintf("graph %s is invalid", r.Graph), r)
	}
	return out.Emit(r, func(w io.Writer) {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s: %d node(s), %d join(s)\n", r.Graph, r.Nodes, r.Joins)
		} else {
			fmt.Fprintf(w, "✗ %s: %d error(s)\n", r.Graph, len(r.Errors))
			for _, e := range r.Errors {
				fmt.Fprintf(w, "  [%s] %s: %s\n", e.Code, e.Field, e.Message)
			}
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  warning: %s (%s)\n", warn.Message, strings.Join(warn.Path, " -> "))
		}
	})
}
