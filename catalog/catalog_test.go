package catalog_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celluledoc/docflow/catalog"
	"github.com/celluledoc/docflow/formats"
	"github.com/celluledoc/docflow/reconcile"
	"github.com/celluledoc/docflow/reconcile/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const docs = "documents"

var today = time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) reconcile.Value {
	return reconcile.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func newService(t *testing.T) (*catalog.Service, *store.Memory) {
	t.Helper()
	gw := store.NewMemory()
	require.NoError(t, gw.EnsureTable(context.Background(), docs))
	logger, _ := test.NewNullLogger()
	svc := catalog.NewService(gw, docs, catalog.NewViews("thomas", "Karen", " "), reconcile.FixedClock(today), logger)
	return svc, gw
}

func seeded(t *testing.T) (*catalog.Service, *store.Memory) {
	t.Helper()
	svc, gw := newService(t)
	rows := []map[reconcile.Column]reconcile.Value{
		{
			reconcile.ColID:            reconcile.Text("1"),
			reconcile.ColOrderNumber:   reconcile.Int(439089107),
			reconcile.ColProjectNumber: reconcile.Text("SMP0390"),
			reconcile.ColSupplier:      reconcile.Text("Acme Industries"),
			reconcile.ColStatus:        reconcile.Text(catalog.StatusAwaitingDoc),
			reconcile.ColConsultant:    reconcile.Text("THOMAS"),
			reconcile.ColReceptionDate: day(2024, time.May, 1),
		},
		{
			reconcile.ColID:              reconcile.Text("2"),
			reconcile.ColOrderNumber:     reconcile.Int(439089200),
			reconcile.ColProjectNumber:   reconcile.Text("1PE0039"),
			reconcile.ColSupplier:        reconcile.Text("Zobel"),
			reconcile.ColReceptionDate:   day(2024, time.June, 1),
			reconcile.ColDocObtainedDate: day(2024, time.June, 1),
		},
		{
			reconcile.ColID:              reconcile.Text("3"),
			reconcile.ColOrderNumber:     reconcile.Int(500),
			reconcile.ColProjectNumber:   reconcile.Text("NAV01"),
			reconcile.ColSupplier:        reconcile.Text("ACME SAS"),
			reconcile.ColStatus:          reconcile.Text(catalog.StatusInProgress),
			reconcile.ColConsultant:      reconcile.Text("KAREN"),
			reconcile.ColDocObtainedDate: day(2024, time.June, 10),
		},
		{
			reconcile.ColID:            reconcile.Text("4"),
			reconcile.ColSupplier:      reconcile.Text("Other"),
			reconcile.ColStatus:        reconcile.Text(catalog.StatusAwaitingDoc),
			reconcile.ColReceptionDate: day(2024, time.April, 1),
		},
	}
	var batch []reconcile.Row
	for _, fields := range rows {
		r := reconcile.NewRow(fields[reconcile.ColID].String())
		for c, v := range fields {
			if c != reconcile.ColID {
				r.Set(c, v)
			}
		}
		batch = append(batch, r)
	}
	_, err := gw.Append(context.Background(), docs, batch)
	require.NoError(t, err)
	return svc, gw
}

func ids(res catalog.Result) []string {
	out := make([]string, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = r.ID
	}
	return out
}

func fieldNames(err error) []string {
	var ve *reconcile.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	var out []string
	for _, f := range ve.Fields {
		out = append(out, f.Field)
	}
	return out
}

// =============================================================================
// VIEWS
// =============================================================================

func TestViews(t *testing.T) {
	svc, _ := newService(t)

	var names []string
	for _, v := range svc.Views() {
		names = append(names, v.Name)
	}

	assert.Equal(t, []string{catalog.ViewAll, catalog.ViewUnassigned, "THOMAS", "KAREN"}, names)
}

func TestGetAll_ViewsRestrictRowsAndColumns(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	all, err := svc.GetAll(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(all))
	assert.Equal(t, reconcile.ColID, all.Columns[0])

	unassigned, err := svc.GetAll(ctx, catalog.ViewUnassigned)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "4"}, ids(unassigned))
	assert.NotContains(t, unassigned.Columns, reconcile.ColID)
	assert.Len(t, unassigned.Columns, len(reconcile.Schema)-1)

	thomas, err := svc.GetAll(ctx, "THOMAS")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(thomas))

	_, err = svc.GetAll(ctx, "NOBODY")
	assert.ErrorIs(t, err, reconcile.ErrUnknownView)
}

// =============================================================================
// SEARCH AND FILTERS
// =============================================================================

func TestSearch_InterpretsTerm(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	cases := []struct {
		term, view string
		want       []string
	}{
		{"439089107", "", []string{"1"}},
		{"1pe", "", []string{"2"}},
		{"acme", "", []string{"1", "3"}},
		{"acme", "KAREN", []string{"3"}},
		{"  ", "", []string{"1", "2", "3", "4"}},
		// 2^64 + 439089107: past int64, must not wrap onto order 439089107
		{"18446744074148640723", "", []string{}},
	}
	for _, tc := range cases {
		res, err := svc.Search(ctx, tc.term, tc.view)
		require.NoError(t, err, tc.term)
		assert.Equal(t, tc.want, ids(res), "term %q view %q", tc.term, tc.view)
	}
}

func TestFilterByStatus_InProgressIncludesNull(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	res, err := svc.FilterByStatus(ctx, catalog.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids(res))

	res, err = svc.FilterByStatus(ctx, catalog.StatusAwaitingDoc, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4"}, ids(res))

	_, err = svc.FilterByStatus(ctx, "", "")
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

func TestPriorityPresets(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	// GIVEN: documentation obtained 11 and 2 days ago on lines in progress
	// WHEN: asking for lines whose documentation is at least a week old
	res, err := svc.Priority(ctx, catalog.PriorityDocumentation, "")

	// THEN: only the older one
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(res))

	// Lines waiting for documentation, oldest reception first.
	res, err = svc.Priority(ctx, catalog.PriorityReminder, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "1"}, ids(res))

	_, err = svc.Priority(ctx, "prio_unknown", "")
	assert.ErrorIs(t, err, catalog.ErrUnknownPreset)
}

func TestFilterByDate_ReverseAndValidation(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()
	days := 30

	res, err := svc.FilterByDate(ctx, catalog.DateFilter{
		Column: reconcile.ColReceptionDate, DaysLimit: &days, Reverse: true,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(res))

	res, err = svc.FilterByDate(ctx, catalog.DateFilter{Column: reconcile.ColReceptionDate, Reverse: true}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1", "4", "3"}, ids(res))

	_, err = svc.FilterByDate(ctx, catalog.DateFilter{Column: reconcile.ColSupplier}, "")
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

func TestStatusValues(t *testing.T) {
	svc, _ := seeded(t)

	values, err := svc.StatusValues(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{catalog.StatusAwaitingDoc, catalog.StatusInProgress}, values)
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_BuildsIDAndStampsMilestone(t *testing.T) {
	svc, gw := newService(t)
	ctx := context.Background()

	// GIVEN: a line typed in with a status that has a milestone
	req := catalog.CreateRequest{
		OrderNumber:   "0439",
		Line:          "2",
		Release:       "1",
		ProjectNumber: "SMP",
		ReceptionDate: "2024-06-03",
		Status:        catalog.StatusAwaitingSupplier,
		Consultant:    "thomas",
	}

	// WHEN: creating it
	id, err := svc.Create(ctx, req)

	// THEN: the id matches what ingestion would build, milestone stamped today
	require.NoError(t, err)
	assert.Equal(t, "43921SMP", id)
	rows, err := gw.Select(ctx, docs, reconcile.Where(reconcile.Eq(reconcile.ColID, reconcile.Text(id))))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	r := rows[0]
	assert.True(t, decimal.NewFromInt(2).Equal(r.Field(reconcile.ColLine).Decimal()))
	assert.Equal(t, "THOMAS", r.Field(reconcile.ColConsultant).String())
	assert.Equal(t, "2024-06-03", r.Field(reconcile.ColReceptionDate).String())
	assert.Equal(t, "2024-06-12", r.Field(reconcile.ColAwaitingSupplier).String())
	assert.True(t, r.Field(reconcile.ColAwaitingInternal).IsNull())

	// A second create of the same line is refused.
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, reconcile.ErrDuplicateID)
}

func TestCreate_IDMatchesEveryExtractFormat(t *testing.T) {
	svc, _ := newService(t)

	// GIVEN: a line typed with zero-padded release and project numbers
	req := catalog.CreateRequest{OrderNumber: "439089107", Line: "2", Release: "01", ProjectNumber: "0390"}

	// WHEN: creating it
	id, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	// THEN: every extract format builds the same identifier for that line
	assert.Equal(t, "43908910721390", id)
	for kind, decl := range formats.Declarations() {
		src := reconcile.RawRow{
			decl.IDColumns[0].Name: reconcile.Number(decimal.RequireFromString("439089107.0")),
			decl.IDColumns[1].Name: reconcile.Text("2"),
			decl.IDColumns[2].Name: reconcile.Text("01"),
			decl.IDColumns[3].Name: reconcile.Text("0390"),
		}
		got, issue := reconcile.BuildID(decl.IDColumns, src)
		require.Nil(t, issue, kind)
		assert.Equal(t, id, got, kind)
	}
}

func TestCreate_ReportsEveryInvalidField(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), catalog.CreateRequest{
		OrderNumber:   "12a",
		ReceptionDate: "31/12/2024",
	})

	assert.ErrorIs(t, err, reconcile.ErrValidation)
	assert.Equal(t, []string{"NUMERO_PROJET", "NUMERO_COMMANDE", "LIGNE", "RELEASE", "DATE_RECEPTION_MATERIEL"}, fieldNames(err))
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_StatusStampsItsMilestone(t *testing.T) {
	svc, gw := seeded(t)
	ctx := context.Background()

	found, err := svc.Update(ctx, "1", map[reconcile.Column]reconcile.Value{
		reconcile.ColStatus:     reconcile.Text(catalog.StatusValidatedByDocCell),
		reconcile.ColComments:   reconcile.Text("OK"),
		reconcile.ColConsultant: reconcile.Null(),
	})

	require.NoError(t, err)
	assert.True(t, found)
	rows, err := gw.Select(ctx, docs, reconcile.Where(reconcile.Eq(reconcile.ColID, reconcile.Text("1"))))
	require.NoError(t, err)
	r := rows[0]
	assert.Equal(t, catalog.StatusValidatedByDocCell, r.Field(reconcile.ColStatus).String())
	assert.Equal(t, "2024-06-12", r.Field(reconcile.ColValidatedByDocCell).String())
	assert.Equal(t, "OK", r.Field(reconcile.ColComments).String())
	assert.True(t, r.Field(reconcile.ColConsultant).IsNull())
	// Untouched columns stay.
	assert.Equal(t, "Acme Industries", r.Field(reconcile.ColSupplier).String())
}

func TestUpdate_Rejections(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	found, err := svc.Update(ctx, "missing", map[reconcile.Column]reconcile.Value{
		reconcile.ColComments: reconcile.Text("x"),
	})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = svc.Update(ctx, "1", map[reconcile.Column]reconcile.Value{
		reconcile.ColID:            reconcile.Text("2"),
		"NOPE":                     reconcile.Text("x"),
		reconcile.ColReceptionDate: reconcile.Text("soon"),
	})
	assert.ErrorIs(t, err, reconcile.ErrValidation)
	assert.Equal(t, []string{"DATE_RECEPTION_MATERIEL", "ID", "NOPE"}, fieldNames(err))
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExportCSV(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, catalog.ViewUnassigned, &buf))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"))
	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, string(reconcile.ColProjectNumber), records[0][0])
	assert.Equal(t, "1PE0039", records[1][0])
	assert.Equal(t, "2024-06-01", records[1][5])

	buf.Reset()
	require.NoError(t, svc.ExportCSV(ctx, catalog.ViewAll, &buf))
	records, err = csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "ID", records[0][0])
	assert.Equal(t, "1", records[1][0])
}

// =============================================================================
// LEGACY IMPORT
// =============================================================================

func legacyBatch() reconcile.RawBatch {
	received := "Date de réception matériel (format JJ/MM/AAAA)"
	return reconcile.RawBatch{
		Source:  "suivi.xlsx",
		Columns: []string{"Clé", "Consultant", "Numéro de commande", received, "Horod"},
		Rows: []reconcile.RawRow{
			{"Clé": reconcile.Text("A1"), "Consultant": reconcile.Text("Aurélie "), "Numéro de commande": reconcile.Int(439),
				received: reconcile.Number(decimal.NewFromInt(45444)), "Horod": reconcile.Text("x")},
			{"Clé": reconcile.Null(), "Consultant": reconcile.Text("Élodie")},
			{"Clé": reconcile.Text("A1"), "Consultant": reconcile.Text("Florent")},
			{"Clé": reconcile.Text("A2"), received: reconcile.Text("garbage")},
		},
	}
}

func TestImportLegacy(t *testing.T) {
	svc, gw := newService(t)
	ctx := context.Background()

	// WHEN: importing the legacy workbook
	report, err := svc.ImportLegacyBatch(ctx, legacyBatch())

	// THEN: blank and repeated keys skipped, bad dates stored as null
	require.NoError(t, err)
	assert.Equal(t, 4, report.Read)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 2, report.Inserted)
	assert.Len(t, report.Issues, 1)

	rows, err := gw.SelectAll(ctx, docs)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AURELIE", rows[0].Field(reconcile.ColConsultant).String())
	assert.Equal(t, "2024-06-01", rows[0].Field(reconcile.ColReceptionDate).String())
	assert.True(t, rows[1].Field(reconcile.ColReceptionDate).IsNull())

	// Re-running inserts nothing.
	report, err = svc.ImportLegacyBatch(ctx, legacyBatch())
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
}

func TestImportLegacy_MissingKeyColumn(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.ImportLegacyBatch(context.Background(), reconcile.RawBatch{Columns: []string{"Consultant"}})

	assert.ErrorIs(t, err, reconcile.ErrSchemaMismatch)
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "ELODIE", catalog.FoldName("Élodie"))
	assert.Equal(t, "RAPHAEL", catalog.FoldName(" Raphaël"))
}
