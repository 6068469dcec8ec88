/*
Package cli defines the docflow commands.

COMMANDS:
  docflow
  ├── ingest          Ingest the latest extract of every format
  ├── serve           Serve the review API, with the optional scheduler
  ├── import-legacy   Append the historical tracking workbook
  ├── formats         Print the effective adapter declarations as YAML
  └── version         Print build information

CONFIGURATION:
  Every command reads its settings from the environment (see
  config/config.go). `ingest` takes no flags or arguments.

EXIT STATUS:
  Non-zero when the command fails, or when `ingest` could not process at
  least one extract that was present.

SEE ALSO:
  - cmd/docflow/main.go: entry point
  - ingest/runner.go: the ingestion run
*/
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "docflow",
		Short: "Purchase-order documentation tracker",
		Long: `docflow ingests the periodic ERP extracts (performance history, full
backlog, navy check) into the documents table and serves the review API
used by the document cell.

Example Usage:
  docflow ingest                   # ingest the latest extract of each format
  docflow serve                    # serve the API on DOCFLOW_HTTP_PORT
  docflow import-legacy suivi.xlsx # append the historical workbook`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.AddCommand(
		newIngestCommand(),
		newServeCommand(),
		newImportLegacyCommand(),
		newFormatsCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
