/*
store.go - Persistence interface for the documents table

PURPOSE:
  Defines the Store Gateway: the only component touching persistent state.
  The engine and the catalog talk to it; SQL and in-memory implementations
  live under store/ and reconcile/store/.

KEY INTERFACES:
  Gateway: append, keyed update, full and filtered read-back, plus the
           single-row operations the interactive shell needs

WRITE SEMANTICS:
  - Append():     inserts rows whose ID is absent, silently skips the rest.
                  Re-running a half-completed batch never double-appends.
  - UpdateByID(): one keyed update per row, all rows in one transaction.
                  Columns follow the class rules of schema.go (see Assignments).
  - Insert():     strict single-row insert, ErrDuplicateID on conflict.
  - Patch():      interactive edit, any non-key column, NULL allowed.
  Rows are never deleted.

ERRORS:
  Every fault is returned as *PersistenceError (errors.Is ErrPersistence).

IMPLEMENTATIONS:
  - store/sqlstore/sqlstore.go: database/sql (SQLite, PostgreSQL)
  - reconcile/store/memory.go: in-memory for testing

SEE ALSO:
  - query.go: Query evaluation shared by in-memory implementations
*/
package reconcile

import (
	"context"
	"time"
)

// =============================================================================
// GATEWAY
// =============================================================================

// Gateway persists canonical rows in a named table.
type Gateway interface {
	// EnsureTable creates the table with the canonical layout if missing.
	EnsureTable(ctx context.Context, table string) error

	// Columns returns the columns the table actually has.
	Columns(ctx context.Context, table string) ([]Column, error)

	// Append inserts rows whose ID is not already stored and returns how
	// many were inserted. Existing rows are never touched.
	Append(ctx context.Context, table string, rows []Row) (int, error)

	// SelectAll returns every row of the table.
	SelectAll(ctx context.Context, table string) ([]Row, error)

	// Select returns the rows matching q.
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	// UpdateByID applies the ingestion update protocol to each row, matched
	// on ID. All-or-nothing: any failure rolls back every row of the call.
	UpdateByID(ctx context.Context, table string, rows []Row) (int, error)

	// Insert stores a single new row. ErrDuplicateID if the ID exists.
	Insert(ctx context.Context, table string, row Row) error

	// Patch sets the given columns of one row. Returns false if the ID is
	// not stored.
	Patch(ctx context.Context, table, id string, fields map[Column]Value) (bool, error)

	// Distinct returns the distinct values of a column, NULL included.
	Distinct(ctx context.Context, table string, col Column) ([]Value, error)
}

// =============================================================================
// UPDATE PROTOCOL - Column class rules for ingestion updates
// =============================================================================

// AssignMode tells an implementation how to write one column.
type AssignMode int

const (
	// AssignSet overwrites the stored value, NULL included.
	AssignSet AssignMode = iota
	// AssignFill writes only when the stored value is NULL.
	AssignFill
)

// Assignment is one column write of an ingestion update.
type Assignment struct {
	Column Column
	Value  Value
	Mode   AssignMode
}

// Assignments turns an incoming row into column writes, restricted to the
// columns for which has returns true.
//
//	key        never written
//	source     overwritten, NULL included
//	operator   written only when the incoming value is not null
//	milestone  filled only when stored NULL, never cleared
//
// Non-canonical table columns are treated as source columns.
func Assignments(row Row, has func(Column) bool) []Assignment {
	var out []Assignment
	for _, c := range row.Columns() {
		if c == ColID || !has(c) {
			continue
		}
		v := row.Fields[c]
		class := ClassSource
		if def, ok := schemaIndex[c]; ok {
			class = def.Class
		}
		switch class {
		case ClassKey:
			continue
		case ClassOperator:
			if v.IsNull() {
				continue
			}
			out = append(out, Assignment{Column: c, Value: v, Mode: AssignSet})
		case ClassMilestone:
			if v.IsNull() {
				continue
			}
			out = append(out, Assignment{Column: c, Value: v, Mode: AssignFill})
		default:
			out = append(out, Assignment{Column: c, Value: v, Mode: AssignSet})
		}
	}
	return out
}

// ColumnSet returns a membership test over cols.
func ColumnSet(cols []Column) func(Column) bool {
	set := make(map[Column]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return func(c Column) bool { return set[c] }
}

// =============================================================================
// QUERY - Filtered reads
// =============================================================================

// Op is a comparison operator of a Cond.
type Op int

const (
	OpEq       Op = iota // column = value
	OpContains           // case-insensitive substring
	OpIsNull             // column IS NULL
	OpNotNull            // column IS NOT NULL
	OpLte                // column <= value
	OpGte                // column >= value
)

// Cond is one predicate. OrNull also accepts rows where the column is NULL.
type Cond struct {
	Column Column
	Op     Op
	Value  Value
	OrNull bool
}

func Eq(c Column, v Value) Cond             { return Cond{Column: c, Op: OpEq, Value: v} }
func EqOrNull(c Column, v Value) Cond       { return Cond{Column: c, Op: OpEq, Value: v, OrNull: true} }
func Contains(c Column, s string) Cond      { return Cond{Column: c, Op: OpContains, Value: Text(s)} }
func IsNull(c Column) Cond                  { return Cond{Column: c, Op: OpIsNull} }
func NotNull(c Column) Cond                 { return Cond{Column: c, Op: OpNotNull} }
func OnOrBefore(c Column, t time.Time) Cond { return Cond{Column: c, Op: OpLte, Value: Date(t)} }
func OnOrAfter(c Column, t time.Time) Cond  { return Cond{Column: c, Op: OpGte, Value: Date(t)} }

// Query is a conjunction of conditions with an optional single-column sort.
// Rows are always returned in a deterministic order: the sort column with
// NULLs last, then ID.
type Query struct {
	Where   []Cond
	OrderBy Column
	Desc    bool
}

// Where starts a query from conditions.
func Where(conds ...Cond) Query {
	return Query{Where: conds}
}

// And returns q with more conditions.
func (q Query) And(conds ...Cond) Query {
	where := make([]Cond, 0, len(q.Where)+len(conds))
	where = append(where, q.Where...)
	q.Where = append(where, conds...)
	return q
}

// Sorted returns q ordered by c.
func (q Query) Sorted(c Column, desc bool) Query {
	q.OrderBy = c
	q.Desc = desc
	return q
}

// ReferencedColumns lists every column the query mentions.
func (q Query) ReferencedColumns() []Column {
	var out []Column
	for _, c := range q.Where {
		out = append(out, c.Column)
	}
	if q.OrderBy != "" {
		out = append(out, q.OrderBy)
	}
	return out
}
