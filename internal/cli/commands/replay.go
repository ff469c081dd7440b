package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/dumpimport/internal/importer"
	"github.com/leapstack-labs/dumpimport/internal/state"
	"github.com/spf13/cobra"
)

// ReplayOptions holds options for the replay command.
type ReplayOptions struct {
	Start         int
	Resume        bool
	KeepNamespace bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand() *cobra.Command {
	opts := &ReplayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <dump>",
		Short: "Import a dump serially, one batch at a time",
		Long: `Replay the whole dump in file order on a single connection.

Without --start the namespace is removed first so the replay starts from an
empty database. The first failed batch aborts the replay and is written to
dump.json in the dump directory; the error reports the statement index to
pass to --start.`,
		Example: `  # Replay from the beginning
  dumpimport replay export.surql

  # Continue after the first 120000 statements
  dumpimport replay export.surql --start 120000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.Start, "start", 0, "Number of statements to skip")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Start after the statements committed by a previous replay")
	cmd.Flags().BoolVar(&opts.KeepNamespace, "keep-namespace", false, "Do not remove the namespace before a replay from the beginning")
	cmd.Flags().Int("batch-bytes", 0, "Target size of a data batch in bytes (default 1000000)")
	cmd.MarkFlagsMutuallyExclusive("start", "resume")

	return cmd
}

func runReplay(cmd *cobra.Command, path string, opts *ReplayOptions) error {
	if opts.Start < 0 {
		return fmt.Errorf("--start must not be negative, got %d", opts.Start)
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	source := sourceKey(path, cc.Cfg)

	start := opts.Start
	if opts.Resume {
		if cc.Store == nil {
			return errors.New("--resume needs a state_path")
		}
		if start, err = cc.Store.ReplayProgress(ctx, source); err != nil {
			return err
		}
		cc.Logger.Info("resuming replay", "start", start)
	}

	if !cmd.Flags().Changed("start") && !opts.Resume && !opts.KeepNamespace {
		cc.Logger.Info("removing namespace", "namespace", cc.Client.Namespace())
		if err := cc.Client.RemoveNamespace(ctx); err != nil {
			return fmt.Errorf("failed to remove namespace: %w", err)
		}
	}

	iopts := []importer.Option{
		importer.WithLogger(cc.Logger),
		importer.WithProgress(cc.Progress),
	}
	if cc.Store != nil {
		iopts = append(iopts, importer.WithCheckpoints(cc.Store))
	}

	run, err := startRun(cc, cmd, source, "replay")
	if err != nil {
		return err
	}

	im := importer.New(cc.Cfg.ImporterConfig(source, false), cc.Client, iopts...)
	sum, runErr := im.Replay(ctx, path, start)
	cc.finishRun(ctx, run, runErr)

	printSummary(cmd.OutOrStdout(), sum)

	var re *importer.ReplayError
	if errors.As(runErr, &re) {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\nContinue with: %s replay %s --start %d\n",
			cmd.Root().Name(), path, re.Completed)
	}
	return runErr
}

func startRun(cc *CommandContext, cmd *cobra.Command, source, mode string) (*state.Run, error) {
	if cc.Store == nil {
		return nil, nil
	}
	run, err := cc.Store.StartRun(cmd.Context(), source, mode)
	if err != nil {
		return nil, err
	}
	cc.Logger.Debug("started run", "id", run.ID, "mode", mode)
	return run, nil
}
