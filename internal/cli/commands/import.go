package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/dumpimport/internal/importer"
	"github.com/spf13/cobra"
)

// ImportOptions holds options for the import command.
type ImportOptions struct {
	Fresh  bool
	Resume bool
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import <dump>",
		Short: "Import a dump with tables loaded in parallel",
		Long: `Import a SurrealDB export into the configured namespace and database.

Definition statements are imported first as a single transaction. Each table's
data is then loaded by its own worker, with at most --workers tables in flight.
A failing table does not stop the others; every failed batch is written to
the dump directory for inspection.`,
		Example: `  # Import into an empty namespace
  dumpimport import export.surql --fresh

  # Continue after a failure, skipping batches that were committed
  dumpimport import export.surql --resume`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().Int("workers", importer.DefaultWorkers, "Maximum number of tables imported concurrently")
	cmd.Flags().Int("batch-bytes", 0, "Target size of a data batch in bytes (default 1000000)")
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "Remove the namespace before importing")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Skip statements committed by a previous run")
	cmd.MarkFlagsMutuallyExclusive("fresh", "resume")

	return cmd
}

func runImport(cmd *cobra.Command, path string, opts *ImportOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	source := sourceKey(path, cc.Cfg)

	if opts.Fresh {
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
		if !opts.Resume {
			if err := cc.Store.Reset(ctx, source); err != nil {
				return err
			}
		}
		iopts = append(iopts, importer.WithCheckpoints(cc.Store))
	}

	run, err := startRun(cc, cmd, source, "import")
	if err != nil {
		return err
	}

	im := importer.New(cc.Cfg.ImporterConfig(source, opts.Resume), cc.Client, iopts...)
	sum, runErr := im.Run(ctx, path)
	cc.finishRun(ctx, run, runErr)

	printSummary(cmd.OutOrStdout(), sum)

	var te *importer.TablesError
	if errors.As(runErr, &te) {
		w := cmd.ErrOrStderr()
		for _, f := range te.Failures {
			_, _ = fmt.Fprintf(w, "\n%s (segment %d):\n%v\n", f.Table, f.Segment, f.Err)
		}
		if cc.Store != nil {
			_, _ = fmt.Fprintf(w, "\nRerun with --resume to retry the failed tables.\n")
		}
	}
	return runErr
}

func printSummary(w io.Writer, sum *importer.Summary) {
	if sum == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Imported %s of %s statements in %d batches (%s skipped) in %s\n",
		humanize.Comma(int64(sum.Imported)),
		humanize.Comma(int64(sum.Total)),
		sum.Batches,
		humanize.Comma(int64(sum.Skipped)),
		sum.Elapsed.Round(time.Millisecond))
	if n := len(sum.Failures); n > 0 {
		_, _ = fmt.Fprintf(w, "%d of %d tables failed\n", n, sum.Tables)
	}
}
