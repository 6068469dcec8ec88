package catalog

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/celluledoc/docflow/extract"
	"github.com/celluledoc/docflow/reconcile"
)

// =============================================================================
// LEGACY IMPORT - The tracking workbook kept before the database existed
// =============================================================================

// legacyKey is the identifier column of the legacy workbook.
const legacyKey = "Clé"

// legacyHeaders maps the workbook's French headers to canonical columns.
var legacyHeaders = []struct {
	header string
	column reconcile.Column
}{
	{legacyKey, reconcile.ColID},
	{"Consultant", reconcile.ColConsultant},
	{"Numéro de projet", reconcile.ColProjectNumber},
	{"Numéro de commande", reconcile.ColOrderNumber},
	{"Numéro de Ligne", reconcile.ColLine},
	{"Release", reconcile.ColRelease},
	{"Origine de la documentation", reconcile.ColDocOrigin},
	{"Fournisseur", reconcile.ColSupplier},
	{"Date de réception matériel (format JJ/MM/AAAA)", reconcile.ColReceptionDate},
	{"Date d'obtention de la documentation (format JJ/MM/AAAA)", reconcile.ColDocObtainedDate},
	{"Date de fin de contrôle de la documentation (format JJ/MM/AAAA) - Automatique", reconcile.ColValidatedBySystem},
	{"Date de fin de contrôle de la documentation (format JJ/MM/AAAA) - Cellule Doc", reconcile.ColValidatedByDocCell},
	{"Date de relance fournisseur", reconcile.ColAwaitingSupplier},
	{"Nature du contrôle", reconcile.ColStatus},
}

// LegacyReport summarises a legacy import.
type LegacyReport struct {
	Source   string
	Read     int
	Skipped  int // blank or repeated identifiers
	Inserted int
	Issues   []*reconcile.RowIssue
}

// ImportLegacy appends the rows of the legacy tracking workbook at path.
// Rows already stored are left alone, so the import can be re-run. Columns
// outside legacyHeaders, such as the form timestamp "Horod", are ignored.
func (s *Service) ImportLegacy(ctx context.Context, path string) (LegacyReport, error) {
	raw, err := extract.NewReader().ReadFile(path)
	if err != nil {
		return LegacyReport{}, err
	}
	return s.ImportLegacyBatch(ctx, raw)
}

// ImportLegacyBatch appends an already read legacy workbook.
func (s *Service) ImportLegacyBatch(ctx context.Context, raw reconcile.RawBatch) (LegacyReport, error) {
	report := LegacyReport{Source: raw.Source, Read: len(raw.Rows)}
	if !raw.HasColumn(legacyKey) {
		return report, &reconcile.SchemaMismatchError{Format: "legacy", Source: raw.Source, Missing: []string{legacyKey}}
	}

	seen := make(map[string]bool, len(raw.Rows))
	var rows []reconcile.Row
	for _, src := range raw.Rows {
		id := strings.TrimSpace(src[legacyKey].String())
		if id == "" || seen[id] {
			report.Skipped++
			continue
		}
		seen[id] = true

		row := reconcile.NewRow(id)
		for _, h := range legacyHeaders {
			v, ok := src[h.header]
			if !ok || h.column == reconcile.ColID {
				continue
			}
			row.Set(h.column, v)
		}
		if c := row.Field(reconcile.ColConsultant); c.Valid() {
			row.Set(reconcile.ColConsultant, reconcile.Text(FoldName(c.String())))
		}
		rows = append(rows, row)
	}

	plan := reconcile.Partition(rows, reconcile.NewIDSet())
	report.Issues = plan.Issues
	n, err := s.gw.Append(ctx, s.table, plan.ToInsert)
	report.Inserted = n
	if err != nil {
		return report, err
	}
	s.log.WithField("source", raw.Source).WithField("inserted", n).Info("legacy workbook imported")
	return report, nil
}

// FoldName strips accents and anything outside ASCII, then upper-cases:
// "Aurélie " becomes "AURELIE".
func FoldName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToUpper(strings.TrimSpace(folded))
}
