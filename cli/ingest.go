package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/spf13/cobra"

	"github.com/celluledoc/docflow/ingest"
)

func newIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the latest extract of every format",
		Long: `For each format (performance history, full backlog, navy check) the most
recently modified file of its source directory whose name carries the
format tag is read, normalized and merged into the documents table.

A format without an extract is skipped. A format whose extract cannot be
processed is reported and the run continues; the command then exits
non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.runner().Run(cmd.Context())
			if err != nil {
				return err
			}
			writeSummary(cmd.OutOrStdout(), sum)
			if n := sum.Failed(); n > 0 {
				return fmt.Errorf("%d extract(s) could not be ingested", n)
			}
			return nil
		},
	}
}

// writeSummary prints one line per format and the run duration.
func writeSummary(w io.Writer, sum ingest.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row{"Format", "File", "Status", "Read", "Kept", "Ineligible", "Rejected", "Inserted", "Updated", "Issues"})
	for _, f := range sum.Files {
		file := "-"
		if f.Source != "" {
			file = filepath.Base(f.Source)
		}
		t.AppendRow(table.Row{
			f.Kind, file, f.Status,
			f.Batch.Read, len(f.Batch.Rows), f.Batch.Ineligible, f.Batch.Rejected,
			f.Applied.Inserted, f.Applied.Updated, len(f.Issues),
		})
	}
	t.Render()

	for _, f := range sum.Files {
		if f.Err != nil {
			fmt.Fprintf(w, "%s: %v\n", f.Kind, f.Err)
		}
	}
	fmt.Fprintf(w, "\nRun %s, execution time: %s\n", sum.RunID, sum.Duration.Round(time.Millisecond))
}
