package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celluledoc/docflow/reconcile"
	"github.com/celluledoc/docflow/store/sqlite"
	"github.com/celluledoc/docflow/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const docs = "documents"

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureTable(context.Background(), docs))
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func row(id string, fields map[reconcile.Column]reconcile.Value) reconcile.Row {
	r := reconcile.NewRow(id)
	for c, v := range fields {
		r.Set(c, v)
	}
	return r
}

func ids(rows []reconcile.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func get(t *testing.T, store *sqlstore.Store, id string) reconcile.Row {
	t.Helper()
	rows, err := store.Select(context.Background(), docs, reconcile.Where(reconcile.Eq(reconcile.ColID, reconcile.Text(id))))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

// =============================================================================
// TABLE LAYOUT
// =============================================================================

func TestEnsureTable_CanonicalColumns(t *testing.T) {
	store := newStore(t)

	cols, err := store.Columns(context.Background(), docs)

	require.NoError(t, err)
	assert.Equal(t, reconcile.ColumnNames(), cols)

	// Idempotent.
	assert.NoError(t, store.EnsureTable(context.Background(), docs))
}

func TestUnknownTable_IsPersistenceError(t *testing.T) {
	store := newStore(t)

	_, err := store.SelectAll(context.Background(), "missing")

	assert.ErrorIs(t, err, reconcile.ErrPersistence)
}

// =============================================================================
// APPEND
// =============================================================================

func TestAppend_RoundTripsTypedValues(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// GIVEN: a row carrying text, integer and date columns
	in := row("4390891071110SMP0390", map[reconcile.Column]reconcile.Value{
		reconcile.ColOrderNumber:   reconcile.Int(439089107),
		reconcile.ColLine:          reconcile.Int(1),
		reconcile.ColRelease:       reconcile.Text("110"),
		reconcile.ColProjectNumber: reconcile.Text("SMP0390"),
		reconcile.ColReceptionDate: reconcile.Date(day(2024, time.June, 1)),
	})

	// WHEN: appending and reading back
	n, err := store.Append(ctx, docs, []reconcile.Row{in})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// THEN: every value comes back with its kind, absent columns are NULL
	got := get(t, store, in.ID)
	for c, v := range in.Fields {
		assert.True(t, v.Equal(got.Field(c)), "%s: want %s got %s", c, v, got.Field(c))
	}
	assert.True(t, got.Has(reconcile.ColStatus))
	assert.True(t, got.Field(reconcile.ColStatus).IsNull())
	assert.Equal(t, reconcile.KindDate, got.Field(reconcile.ColReceptionDate).Kind())
}

func TestAppend_SkipsStoredIDs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	first := row("1", map[reconcile.Column]reconcile.Value{reconcile.ColSupplier: reconcile.Text("Acme")})

	_, err := store.Append(ctx, docs, []reconcile.Row{first})
	require.NoError(t, err)

	// WHEN: re-running the same batch plus one new row
	again := row("1", map[reconcile.Column]reconcile.Value{reconcile.ColSupplier: reconcile.Text("Other")})
	n, err := store.Append(ctx, docs, []reconcile.Row{again, row("2", nil)})

	// THEN: only the new row is inserted, the stored row is untouched
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Acme", get(t, store, "1").Field(reconcile.ColSupplier).String())
}

func TestInsert_DuplicateID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, docs, row("1", nil)))

	err := store.Insert(ctx, docs, row("1", nil))

	assert.ErrorIs(t, err, reconcile.ErrDuplicateID)
	assert.ErrorIs(t, err, reconcile.ErrPersistence)
}

// =============================================================================
// UPDATE PROTOCOL
// =============================================================================

func TestUpdateByID_FollowsColumnClasses(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// GIVEN: a curated row with a status and a stamped milestone
	_, err := store.Append(ctx, docs, []reconcile.Row{row("1", map[reconcile.Column]reconcile.Value{
		reconcile.ColStatus:      reconcile.Text("En attente de la documentation"),
		reconcile.ColSupplier:    reconcile.Text("Acme"),
		reconcile.ColAwaitingDoc: reconcile.Date(day(2024, time.May, 2)),
	})})
	require.NoError(t, err)

	// WHEN: an extract brings a null status, a null supplier and new stamps
	n, err := store.UpdateByID(ctx, docs, []reconcile.Row{row("1", map[reconcile.Column]reconcile.Value{
		reconcile.ColStatus:            reconcile.Null(),
		reconcile.ColSupplier:          reconcile.Null(),
		reconcile.ColAwaitingDoc:       reconcile.Date(day(2024, time.June, 12)),
		reconcile.ColValidatedBySystem: reconcile.Date(day(2024, time.June, 12)),
	})})

	// THEN: operator kept, source overwritten, stamp kept, empty milestone filled
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got := get(t, store, "1")
	assert.Equal(t, "En attente de la documentation", got.Field(reconcile.ColStatus).String())
	assert.True(t, got.Field(reconcile.ColSupplier).IsNull())
	assert.Equal(t, "2024-05-02", got.Field(reconcile.ColAwaitingDoc).String())
	assert.Equal(t, "2024-06-12", got.Field(reconcile.ColValidatedBySystem).String())
}

func TestUpdateByID_AllOrNothing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Append(ctx, docs, []reconcile.Row{
		row("1", map[reconcile.Column]reconcile.Value{reconcile.ColSupplier: reconcile.Text("Acme")}),
		row("2", nil),
	})
	require.NoError(t, err)

	// WHEN: the second row of the batch cannot be stored
	_, err = store.UpdateByID(ctx, docs, []reconcile.Row{
		row("1", map[reconcile.Column]reconcile.Value{reconcile.ColSupplier: reconcile.Text("Zobel")}),
		row("2", map[reconcile.Column]reconcile.Value{reconcile.ColReceptionDate: reconcile.Text("not a date")}),
	})

	// THEN: the first row is rolled back too
	assert.ErrorIs(t, err, reconcile.ErrPersistence)
	assert.Equal(t, "Acme", get(t, store, "1").Field(reconcile.ColSupplier).String())
}

func TestUpdateByID_UnknownIDUpdatesNothing(t *testing.T) {
	store := newStore(t)

	n, err := store.UpdateByID(context.Background(), docs, []reconcile.Row{
		row("missing", map[reconcile.Column]reconcile.Value{reconcile.ColSupplier: reconcile.Text("Acme")}),
	})

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconciler_EndToEnd(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Append(ctx, docs, []reconcile.Row{row("1", map[reconcile.Column]reconcile.Value{
		reconcile.ColStatus: reconcile.Text("Validé"),
	})})
	require.NoError(t, err)
	rec := reconcile.NewReconciler(store)

	// GIVEN: a batch with one known and one new row
	plan, err := rec.Reconcile(ctx, []reconcile.Row{
		row("1", map[reconcile.Column]reconcile.Value{reconcile.ColSupplier: reconcile.Text("Acme")}),
		row("2", map[reconcile.Column]reconcile.Value{reconcile.ColReceptionDate: reconcile.Text("2024-06-01")}),
	}, docs)
	require.NoError(t, err)

	// WHEN: applying the plan
	applied, err := rec.Apply(ctx, docs, plan)

	// THEN: one insert, one update, curated status intact
	require.NoError(t, err)
	assert.Equal(t, reconcile.Applied{Inserted: 1, Updated: 1}, applied)
	assert.Equal(t, "Validé", get(t, store, "1").Field(reconcile.ColStatus).String())
	assert.Equal(t, "2024-06-01", get(t, store, "2").Field(reconcile.ColReceptionDate).String())
}

// =============================================================================
// PATCH
// =============================================================================

func TestPatch(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Append(ctx, docs, []reconcile.Row{row("1", map[reconcile.Column]reconcile.Value{
		reconcile.ColStatus: reconcile.Text("En cours"),
	})})
	require.NoError(t, err)

	found, err := store.Patch(ctx, docs, "1", map[reconcile.Column]reconcile.Value{
		reconcile.ColStatus:   reconcile.Null(),
		reconcile.ColComments: reconcile.Text("relancé"),
	})
	require.NoError(t, err)
	assert.True(t, found)
	got := get(t, store, "1")
	assert.True(t, got.Field(reconcile.ColStatus).IsNull())
	assert.Equal(t, "relancé", got.Field(reconcile.ColComments).String())

	found, err = store.Patch(ctx, docs, "missing", map[reconcile.Column]reconcile.Value{
		reconcile.ColComments: reconcile.Text("x"),
	})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Patch(ctx, docs, "1", map[reconcile.Column]reconcile.Value{"NOPE": reconcile.Text("x")})
	assert.ErrorIs(t, err, reconcile.ErrUnknownColumn)
}

// =============================================================================
// QUERIES
// =============================================================================

func seed(t *testing.T) *sqlstore.Store {
	t.Helper()
	store := newStore(t)
	_, err := store.Append(context.Background(), docs, []reconcile.Row{
		row("1", map[reconcile.Column]reconcile.Value{
			reconcile.ColStatus:        reconcile.Text("En attente de la documentation"),
			reconcile.ColSupplier:      reconcile.Text("Acme Industries"),
			reconcile.ColOrderNumber:   reconcile.Int(439089107),
			reconcile.ColReceptionDate: reconcile.Date(day(2024, time.May, 1)),
		}),
		row("2", map[reconcile.Column]reconcile.Value{
			reconcile.ColSupplier:      reconcile.Text("Zobel 100%"),
			reconcile.ColReceptionDate: reconcile.Date(day(2024, time.June, 1)),
		}),
		row("3", map[reconcile.Column]reconcile.Value{
			reconcile.ColStatus:   reconcile.Text("En cours"),
			reconcile.ColSupplier: reconcile.Text("ACME SAS"),
		}),
	})
	require.NoError(t, err)
	return store
}

func TestSelect_Conditions(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	cases := map[string]struct {
		query reconcile.Query
		want  []string
	}{
		"eq or null": {
			reconcile.Where(reconcile.EqOrNull(reconcile.ColStatus, reconcile.Text("En cours"))),
			[]string{"2", "3"},
		},
		"contains ignores case": {
			reconcile.Where(reconcile.Contains(reconcile.ColSupplier, "acme")),
			[]string{"1", "3"},
		},
		"contains escapes wildcards": {
			reconcile.Where(reconcile.Contains(reconcile.ColSupplier, "0%")),
			[]string{"2"},
		},
		"integer column from text": {
			reconcile.Where(reconcile.Eq(reconcile.ColOrderNumber, reconcile.Text("439089107"))),
			[]string{"1"},
		},
		"date bound skips nulls": {
			reconcile.Where(reconcile.OnOrBefore(reconcile.ColReceptionDate, day(2024, time.May, 15))),
			[]string{"1"},
		},
		"is null": {
			reconcile.Where(reconcile.IsNull(reconcile.ColReceptionDate)),
			[]string{"3"},
		},
		"sorted descending, nulls last": {
			reconcile.Query{}.Sorted(reconcile.ColReceptionDate, true),
			[]string{"2", "1", "3"},
		},
		"sorted ascending, nulls last": {
			reconcile.Query{}.Sorted(reconcile.ColReceptionDate, false),
			[]string{"1", "2", "3"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rows, err := store.Select(ctx, docs, tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(rows))
		})
	}
}

func TestSelect_UnknownColumn(t *testing.T) {
	store := seed(t)

	_, err := store.Select(context.Background(), docs, reconcile.Where(reconcile.IsNull("NOPE")))

	assert.ErrorIs(t, err, reconcile.ErrUnknownColumn)
}

func TestDistinct_IncludesNull(t *testing.T) {
	store := seed(t)

	values, err := store.Distinct(context.Background(), docs, reconcile.ColStatus)

	require.NoError(t, err)
	var got []string
	nulls := 0
	for _, v := range values {
		if v.IsNull() {
			nulls++
			continue
		}
		got = append(got, v.String())
	}
	assert.Equal(t, 1, nulls)
	assert.ElementsMatch(t, []string{"En attente de la documentation", "En cours"}, got)
}

// =============================================================================
// INGESTION RUNS
// =============================================================================

func TestRuns_SaveAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	start := time.Date(2024, time.June, 12, 6, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, sqlstore.IngestionRun{
		ID: "a", RunID: "r1", Format: "histo_perfo", Status: sqlstore.RunCompleted,
		Read: 10, Inserted: 4, Updated: 6, StartedAt: start, FinishedAt: start.Add(time.Second),
	}))
	require.NoError(t, store.SaveRun(ctx, sqlstore.IngestionRun{
		ID: "b", RunID: "r2", Format: "navy_check", Status: sqlstore.RunFailed, Error: "boom",
		StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour),
	}))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, 4, runs[1].Inserted)
	assert.True(t, start.Equal(runs[1].StartedAt))

	limited, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRuns_CorruptTimestampIsReported(t *testing.T) {
	// GIVEN: a run record whose start time was mangled outside docflow
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store, err := sqlstore.Open(db, sqlstore.SQLite)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	start := time.Date(2024, time.June, 12, 6, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(ctx, sqlstore.IngestionRun{
		ID: "a", RunID: "r1", Format: "histo_perfo", Status: sqlstore.RunCompleted,
		StartedAt: start, FinishedAt: start,
	}))
	_, err = db.Exec(`UPDATE ingestion_runs SET started_at = '12/06/2024' WHERE id = 'a'`)
	require.NoError(t, err)

	// WHEN: listing runs
	runs, err := store.ListRuns(ctx, 0)

	// THEN: the bad value surfaces instead of a zero time
	require.Error(t, err)
	assert.Contains(t, err.Error(), "started_at")
	assert.Nil(t, runs)
}
