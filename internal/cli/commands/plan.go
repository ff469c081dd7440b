package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dumpimport/internal/cli/config"
	"github.com/leapstack-labs/dumpimport/internal/importer"
	"github.com/leapstack-labs/dumpimport/pkg/dump"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// PlanOptions holds options for the plan command.
type PlanOptions struct {
	Format string
}

// Plan is the machine-readable form of a dump index.
type Plan struct {
	Path        string              `json:"path" yaml:"path"`
	Statements  int                 `json:"statements" yaml:"statements"`
	Definitions int                 `json:"definitions" yaml:"definitions"`
	Segments    []dump.TableSegment `json:"segments" yaml:"segments"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	opts := &PlanOptions{}

	cmd := &cobra.Command{
		Use:   "plan <dump>",
		Short: "Show how a dump would be split into table segments",
		Long: `Index a dump without contacting the database.

Prints every table data segment with its byte offset and statement count, the
units the import command loads in parallel.`,
		Example: `  dumpimport plan export.surql
  dumpimport plan export.surql --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format (table|json|yaml)")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runPlan(cmd *cobra.Command, path string, opts *PlanOptions) error {
	logger := config.GetLogger(cmd.Context())
	im := importer.New(importer.Config{}, nil, importer.WithLogger(logger))

	ix, err := im.Plan(path)
	if err != nil {
		return err
	}

	plan := Plan{
		Path:        path,
		Statements:  ix.Total,
		Definitions: len(ix.Definitions),
		Segments:    ix.Segments,
	}
	if plan.Segments == nil {
		plan.Segments = []dump.TableSegment{}
	}

	w := cmd.OutOrStdout()
	switch opts.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		renderPlan(w, plan)
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected table, json or yaml)", opts.Format)
	}
}

func renderPlan(w io.Writer, plan Plan) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Table", "Offset", "Statements"})
	for i, seg := range plan.Segments {
		t.AppendRow(table.Row{i, seg.Name, humanize.Comma(seg.Offset), humanize.Comma(int64(seg.Statements))})
	}
	t.AppendFooter(table.Row{"", "definitions", "", humanize.Comma(int64(plan.Definitions))})
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d segments, %s statements)\n", len(plan.Segments), humanize.Comma(int64(plan.Statements)))
}
