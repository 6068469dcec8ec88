package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/celluledoc/docflow/reconcile"
)

// utf8BOM lets spreadsheet tools detect the encoding of exported files.
const utf8BOM = "\ufeff"

// ExportCSV writes every row of the view as UTF-8 CSV with a header line.
// Columns follow table order; ID is written only if the view shows it.
func (s *Service) ExportCSV(ctx context.Context, view string, w io.Writer) error {
	res, err := s.GetAll(ctx, view)
	if err != nil {
		return err
	}
	return WriteCSV(w, res)
}

// WriteCSV renders a read result as CSV.
func WriteCSV(w io.Writer, res Result) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	cw := csv.NewWriter(w)

	header := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = string(c)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	record := make([]string, len(res.Columns))
	for _, r := range res.Rows {
		for i, c := range res.Columns {
			if c == reconcile.ColID {
				record[i] = r.ID
				continue
			}
			record[i] = r.Field(c).String()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
