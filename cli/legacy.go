package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"

	"github.com/celluledoc/docflow/catalog"
)

func newImportLegacyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy <workbook.xlsx>",
		Short: "Append the historical tracking workbook",
		Long: `Reads the tracking workbook kept before the database existed and appends
its lines to the documents table. Lines already stored are left untouched,
so the import can be repeated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.catalog(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.ImportLegacy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, issue := range report.Issues {
				a.log.Warn(issue.Error())
			}
			writeLegacyReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func writeLegacyReport(w io.Writer, r catalog.LegacyReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Read", "Skipped", "Inserted", "Issues"})
	t.AppendRow(table.Row{r.Source, r.Read, r.Skipped, r.Inserted, len(r.Issues)})
	t.Render()
	if already := r.Read - r.Skipped - r.Inserted; already > 0 {
		fmt.Fprintf(w, "%d line(s) were already stored\n", already)
	}
}
