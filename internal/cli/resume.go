package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/builtin"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/store"
)

// ResumeOptions holds flags for the resume command.
type ResumeOptions struct {
	RunOptions
	Name string
	ID   string
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResumeOptions{RunOptions: RunOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Restore a stored snapshot and run it",
		Long: `Restore the latest snapshot stored under --name (or the one with --id),
rebuild its nodes with the builtin catalog and drain its queue. Results
are stored in the same database. If the run is interrupted again, the
remaining queue is stored as a new snapshot under the same name.

Examples:
  weft resume --db ./weft.db --name sort
  weft resume --db ./weft.db --id 019355f0-... --debug`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "database path (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "resume the latest snapshot with this name")
	cmd.Flags().StringVar(&opts.ID, "id", "", "resume the snapshot with this ID")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "stop at the first node failure")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "maximum node calls per wave (0 = unlimited)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "abort the run after this duration (0 = none)")
	cmd.Flags().BoolVar(&opts.Trail, "trail", false, "include provenance trails in the output")
	cmd.MarkFlagRequired("db")
	cmd.MarkFlagsOneRequired("name", "id")
	cmd.MarkFlagsMutuallyExclusive("name", "id")

	return cmd
}

func runResume(cmd *cobra.Command, opts *ResumeOptions) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openStore(opts.DBPath)
	if err != nil {
		return reportError(out, err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	stored, err := findSnapshot(cmd, st, opts)
	if err != nil {
		return reportError(out, err)
	}

	snap, err := engine.SnapshotFromDocument(stored.Document)
	if err != nil {
		return reportError(out, WrapExitError(ExitCommandError, "failed to decode snapshot", err))
	}

	eng, err := engine.Restore(ctx, snap, builtin.New(), engineOptions(opts.RootOptions, cmd.ErrOrStderr(),
		engine.WithDebug(opts.Debug),
		engine.WithMaxSteps(opts.MaxSteps),
	)...)
	if err != nil {
		return reportError(out, WrapExitError(ExitFailure, "failed to restore snapshot", err))
	}
	rec := instrument(eng, opts.Verbose)
	out.VerboseLog("Restored snapshot %s (%s): %d queued, seq %d", stored.Name, stored.ID, eng.Queue().Size(), snap.Seq)

	result, runErr := drive(ctx, eng, rec, st, stored.Name, &opts.RunOptions)
	if err := writeRunResult(out, result); err != nil {
		return err
	}
	return runFailure(runErr)
}

func findSnapshot(cmd *cobra.Command, st *store.Store, opts *ResumeOptions) (store.Snapshot, error) {
	ctx := commandContext(cmd)
	var (
		snap store.Snapshot
		err  error
		what string
	)
	if opts.ID != "" {
		snap, err = st.ReadSnapshot(ctx, opts.ID)
		what = "id " + opts.ID
	} else {
		snap, err = st.LatestSnapshot(ctx, opts.Name)
		what = "name " + opts.Name
	}
	if errors.Is(err, sql.ErrNoRows) {
		return snap, NewExitError(ExitCommandError, fmt.Sprintf("no snapshot with %s", what))
	}
	if err != nil {
		return snap, WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	return snap, nil
}
