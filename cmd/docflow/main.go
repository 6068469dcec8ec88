/*
main.go - Application entry point

PURPOSE:
  Runs the docflow command tree.

USAGE:
  docflow ingest          Ingest the latest extracts
  docflow serve           Serve the review API
  docflow import-legacy   Append the historical workbook
  docflow formats         Print adapter declarations
  docflow version         Print build information

ENVIRONMENT:
  See config/config.go. A .env file in the working directory is read.

SEE ALSO:
  - cli/root.go: command definitions
*/
package main

import "github.com/celluledoc/docflow/cli"

func main() {
	cli.Execute()
}
