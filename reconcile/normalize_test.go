package reconcile_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celluledoc/docflow/reconcile"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testToday = time.Date(2024, time.June, 12, 9, 30, 0, 0, time.UTC)

func testDeclaration() reconcile.Declaration {
	return reconcile.Declaration{
		Kind:          "test",
		Tag:           "Test",
		ColumnsToDrop: []string{"NOISE", "ABSENT_NOISE"},
		IDColumns: [4]reconcile.IDColumn{
			{Name: "PO", Numeric: true},
			{Name: "LINE", Numeric: true},
			{Name: "REL"},
			{Name: "PROJ"},
		},
		Rename: map[string]reconcile.Column{
			"PO":     reconcile.ColOrderNumber,
			"LINE":   reconcile.ColLine,
			"REL":    reconcile.ColRelease,
			"PROJ":   reconcile.ColProjectNumber,
			"VENDOR": reconcile.ColSupplier,
		},
	}
}

// stampingAdapter stamps unknown rows as awaiting documentation.
type stampingAdapter struct {
	reconcile.Declared
}

func (stampingAdapter) Stamp(row *reconcile.Row, known bool, today time.Time) {
	if !known {
		row.Set(reconcile.ColAwaitingDoc, reconcile.Date(today))
	}
}

func newTestAdapter() reconcile.Adapter {
	return stampingAdapter{Declared: reconcile.Declared{Decl: testDeclaration()}}
}

var testHeader = []string{"PO", "LINE", "REL", "PROJ", "VENDOR", "NOISE"}

func rawBatch(rows ...[]reconcile.Value) reconcile.RawBatch {
	b := reconcile.RawBatch{Source: "test.xlsx", Columns: testHeader}
	for _, vals := range rows {
		r := reconcile.RawRow{}
		for i, v := range vals {
			r[testHeader[i]] = v
		}
		b.Rows = append(b.Rows, r)
	}
	return b
}

func line(po, ln, rel, proj, vendor string) []reconcile.Value {
	return []reconcile.Value{
		reconcile.Text(po), reconcile.Text(ln), reconcile.Text(rel),
		reconcile.Text(proj), reconcile.Text(vendor), reconcile.Text("noise"),
	}
}

func normalize(t *testing.T, raw reconcile.RawBatch, known reconcile.IDSet) reconcile.Batch {
	t.Helper()
	n := reconcile.NewNormalizer(reconcile.FixedClock(testToday))
	batch, err := n.Normalize(raw, newTestAdapter(), known)
	require.NoError(t, err)
	return batch
}

func ids(rows []reconcile.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

// =============================================================================
// IDENTIFIER
// =============================================================================

func TestNormalize_BuildsCompositeID(t *testing.T) {
	// GIVEN: id components as numbers, decimal text and plain text
	raw := rawBatch([]reconcile.Value{
		reconcile.Number(decimal.RequireFromString("439089107")),
		reconcile.Text("67.0"),
		reconcile.Text("110"),
		reconcile.Text("SMP0390"),
		reconcile.Text("CORREGE 916115"),
		reconcile.Null(),
	})

	// WHEN: Normalizing
	batch := normalize(t, raw, nil)

	// THEN: numeric parts lose their decimal artifacts, text is kept
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "43908910767110SMP0390", batch.Rows[0].ID)
}

func TestNormalize_NumericPartsStripLeadingZerosAndExponent(t *testing.T) {
	batch := normalize(t, rawBatch(
		line("0439089107", "4.1E1", "0151", "1PE0039", "H ZOBEL SAS"),
	), nil)

	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "439089107411511PE0039", batch.Rows[0].ID)
}

func TestNormalize_NullTrailingComponentContributesNothing(t *testing.T) {
	raw := rawBatch(line("439089107", "67", "", "SMP0390", "ACME"))

	batch := normalize(t, raw, nil)

	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "43908910767SMP0390", batch.Rows[0].ID)
}

func TestNormalize_IDIsDeterministicAcrossRowOrder(t *testing.T) {
	// GIVEN: the same rows in two different orders
	rows := [][]reconcile.Value{
		line("1", "1", "A", "P1", "S1"),
		line("2", "3", "B", "P2", "S2"),
		line("4.0", "5", "C", "P3", "S3"),
		line("6", "07", "D", "P4", "S4"),
	}
	shuffled := append([][]reconcile.Value(nil), rows...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	// WHEN: Normalizing both
	a := normalize(t, rawBatch(rows...), nil)
	b := normalize(t, rawBatch(shuffled...), nil)

	// THEN: the same set of ids comes out
	assert.ElementsMatch(t, ids(a.Rows), ids(b.Rows))
	assert.ElementsMatch(t, []string{"11AP1", "23BP2", "45CP3", "67DP4"}, ids(a.Rows))
}

// =============================================================================
// ROW FILTERING
// =============================================================================

func TestNormalize_DiscardsBlankFirstComponent(t *testing.T) {
	batch := normalize(t, rawBatch(
		line("", "1", "A", "P1", "S1"),
		line("   ", "1", "A", "P1", "S1"),
		line("5", "1", "A", "P1", "S1"),
	), nil)

	assert.Equal(t, 3, batch.Read)
	assert.Equal(t, 2, batch.Discarded)
	assert.Equal(t, []string{"51AP1"}, ids(batch.Rows))
}

func TestNormalize_NonNumericIDComponentRejectsRowOnly(t *testing.T) {
	// GIVEN: a line number that is not a number
	batch := normalize(t, rawBatch(
		line("5", "L1", "A", "P1", "S1"),
		line("6", "2", "A", "P1", "S1"),
	), nil)

	// THEN: the row is dropped and reported, the batch continues
	assert.Equal(t, []string{"62AP1"}, ids(batch.Rows))
	assert.Equal(t, 1, batch.Rejected)
	require.Len(t, batch.Issues, 1)
	assert.Equal(t, 1, batch.Issues[0].Line)
	assert.Equal(t, "LINE", batch.Issues[0].Column)
	assert.True(t, errors.Is(batch.Issues[0], reconcile.ErrSchemaMismatch))
}

func TestNormalize_DeduplicatesKeepingFirstOccurrence(t *testing.T) {
	// GIVEN: the same id twice with different suppliers
	raw := rawBatch(
		line("5", "1", "A", "P1", "FIRST"),
		line("5.0", "01", "A", "P1", "SECOND"),
	)

	// WHEN: Normalizing twice
	once := normalize(t, raw, nil)
	twice := normalize(t, raw, nil)

	// THEN: each id appears once, first occurrence kept, same result both times
	require.Len(t, once.Rows, 1)
	assert.Equal(t, 1, once.Duplicates)
	assert.Equal(t, "FIRST", once.Rows[0].Field(reconcile.ColSupplier).String())
	assert.Equal(t, ids(once.Rows), ids(twice.Rows))
}

// =============================================================================
// PROJECTION
// =============================================================================

func TestNormalize_DropsAndRenamesColumns(t *testing.T) {
	batch := normalize(t, rawBatch(line("5", "1", "A", "P1", "ACME")), nil)

	require.Len(t, batch.Rows, 1)
	row := batch.Rows[0]
	assert.False(t, row.Has("NOISE"))
	assert.False(t, row.Has("VENDOR"))
	assert.Equal(t, "ACME", row.Field(reconcile.ColSupplier).String())
	assert.Equal(t, "P1", row.Field(reconcile.ColProjectNumber).String())
	assert.Empty(t, batch.Unmapped)
}

func TestNormalize_MissingRequiredColumnAbortsFile(t *testing.T) {
	// GIVEN: a file without the VENDOR column
	raw := reconcile.RawBatch{Source: "broken.xlsx", Columns: []string{"PO", "LINE", "REL", "PROJ"}}

	// WHEN: Normalizing
	n := reconcile.NewNormalizer(reconcile.FixedClock(testToday))
	_, err := n.Normalize(raw, newTestAdapter(), nil)

	// THEN: SchemaMismatchError naming the column
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrSchemaMismatch)
	var mismatch *reconcile.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"VENDOR"}, mismatch.Missing)
	assert.Equal(t, "broken.xlsx", mismatch.Source)
}

func TestNormalize_ToleratesMissingDropColumns(t *testing.T) {
	// ABSENT_NOISE is declared dropped but never present in the header.
	batch := normalize(t, rawBatch(line("5", "1", "A", "P1", "ACME")), nil)
	assert.Len(t, batch.Rows, 1)
}

func TestNormalize_ReportsUnmappedColumns(t *testing.T) {
	raw := rawBatch(line("5", "1", "A", "P1", "ACME"))
	raw.Columns = append(raw.Columns, "EXTRA")

	batch := normalize(t, raw, nil)

	assert.Equal(t, []string{"EXTRA"}, batch.Unmapped)
}

func TestNormalize_StampsOnlyUnknownRows(t *testing.T) {
	batch := normalize(t, rawBatch(
		line("5", "1", "A", "P1", "NEW"),
		line("6", "1", "A", "P1", "KNOWN"),
	), reconcile.NewIDSet("61AP1"))

	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "2024-06-12", batch.Rows[0].Field(reconcile.ColAwaitingDoc).String())
	assert.False(t, batch.Rows[1].Has(reconcile.ColAwaitingDoc))
}

// =============================================================================
// DECLARATIONS
// =============================================================================

func TestDeclaration_Validate(t *testing.T) {
	require.NoError(t, testDeclaration().Validate())

	dropped := testDeclaration()
	dropped.ColumnsToDrop = append(dropped.ColumnsToDrop, "PO")
	assert.Error(t, dropped.Validate(), "id column cannot be dropped")

	unknown := testDeclaration()
	unknown.Rename["VENDOR"] = "NOT_A_COLUMN"
	assert.Error(t, unknown.Validate(), "rename target must be canonical")

	empty := testDeclaration()
	empty.IDColumns[2].Name = ""
	assert.Error(t, empty.Validate(), "all four id columns are required")
}
