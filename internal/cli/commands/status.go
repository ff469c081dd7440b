package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dumpimport/internal/cli/config"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <dump>",
		Short: "Show the checkpoints recorded for a dump",
		Long: `Show the last run and the per-table progress recorded in the checkpoint
store for a dump and the configured namespace and database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0])
		},
	}
}

func runStatus(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	cfg := config.GetConfig(ctx)
	if cfg.StatePath == "" {
		return errors.New("no state_path configured")
	}

	store, err := openStore(cfg.StatePath, config.GetLogger(ctx))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	source := sourceKey(path, cfg)
	w := cmd.OutOrStdout()

	run, err := store.LatestRun(ctx, source)
	if err != nil {
		return err
	}
	if run == nil {
		_, _ = fmt.Fprintf(w, "No runs recorded for %s\n", source)
		return nil
	}
	_, _ = fmt.Fprintf(w, "Last %s run %s: %s (started %s)\n", run.Mode, run.ID, run.Status, run.StartedAt.Local().Format(time.DateTime))
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error: %s\n", run.Error)
	}

	done, err := store.DefinitionsDone(ctx, source)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Definitions imported: %t\n", done)

	if completed, err := store.ReplayProgress(ctx, source); err != nil {
		return err
	} else if completed > 0 {
		_, _ = fmt.Fprintf(w, "Replay committed: %d statements\n", completed)
	}

	tables, err := store.ListTableProgress(ctx, source)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Table", "Completed", "Total", "Done"})
	for _, p := range tables {
		t.AppendRow(table.Row{p.Segment, p.Table, p.Completed, p.Total, p.Done()})
	}
	t.Render()
	return nil
}
