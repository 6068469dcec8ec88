/*
Package sqlstore provides a database/sql implementation of reconcile.Gateway.

PURPOSE:
  Persists canonical document rows in a relational table. The same code
  serves SQLite (store/sqlite) and PostgreSQL (store/postgres); only the
  placeholder syntax differs between the two dialects.

TABLES:
  <documents>:     canonical rows, created by EnsureTable from reconcile.Schema
  ingestion_runs:  one record per processed extract (see runs.go)

WRITE SEMANTICS:
  Append:      INSERT ... ON CONFLICT ("ID") DO NOTHING, one transaction
  UpdateByID:  one UPDATE per row, one transaction. Milestones are written
               through COALESCE so a stored stamp is never replaced.
  Insert:      conflict means ErrDuplicateID
  Rows are never deleted.

QUERIES:
  Conditions use SQL NULL semantics. Results are ordered by the query's
  sort column with NULLs last, then by ID.

CONCURRENCY:
  Uses sync.RWMutex around database access, like every store in this repo.
  The SQLite constructor also pins the pool to one connection so ":memory:"
  databases stay a single database.

SEE ALSO:
  - reconcile/store.go: Gateway contract and column class rules
  - reconcile/store/memory.go: in-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/celluledoc/docflow/reconcile"
)

var _ reconcile.Gateway = (*Store)(nil)

// =============================================================================
// DIALECT
// =============================================================================

// Dialect captures the SQL differences between supported engines.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// bind rewrites ? placeholders for engines that number them.
func (d Dialect) bind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// =============================================================================
// STORE
// =============================================================================

// Store implements reconcile.Gateway over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
}

// Open wraps an open database and creates the bookkeeping tables.
func Open(db *sql.DB, dialect Dialect) (*Store, error) {
	store := &Store{db: db, dialect: dialect}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(runsSchema)
	return err
}

// EnsureTable creates the documents table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs := make([]string, 0, len(reconcile.Schema))
	for _, def := range reconcile.Schema {
		col := quote(string(def.Name)) + " " + columnType(def)
		if def.Name == reconcile.ColID {
			col += " PRIMARY KEY"
		}
		defs = append(defs, col)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(table), strings.Join(defs, ",\n\t"))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return reconcile.Persistence("create table", table, err)
	}
	return nil
}

func columnType(def reconcile.ColumnDef) string {
	switch def.Kind {
	case reconcile.StoreInt:
		return "BIGINT"
	case reconcile.StoreDate:
		return "DATE"
	}
	if def.MaxLen > 0 {
		return fmt.Sprintf("VARCHAR(%d)", def.MaxLen)
	}
	return "TEXT"
}

// Columns returns the columns the table actually has.
func (s *Store) Columns(ctx context.Context, table string) ([]reconcile.Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cols, err := s.columns(ctx, table)
	if err != nil {
		return nil, reconcile.Persistence("columns", table, err)
	}
	return cols, nil
}

func (s *Store) columns(ctx context.Context, table string) ([]reconcile.Column, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quote(table)+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.Column, len(names))
	for i, n := range names {
		out[i] = reconcile.Column(n)
	}
	return out, rows.Err()
}

// =============================================================================
// WRITES
// =============================================================================

// Append inserts rows whose ID is absent and returns how many were inserted.
func (s *Store) Append(ctx context.Context, table string, rows []reconcile.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(rows) == 0 {
		return 0, nil
	}
	cols, err := s.columns(ctx, table)
	if err != nil {
		return 0, reconcile.Persistence("append", table, err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, reconcile.Persistence("append", table, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	inserted := 0
	for _, r := range rows {
		n, err := s.insertRow(ctx, sqlTx, table, cols, r)
		if err != nil {
			return 0, reconcile.Persistence("append", table, fmt.Errorf("row %s: %w", r.ID, err))
		}
		inserted += n
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, reconcile.Persistence("append", table, err)
	}
	return inserted, nil
}

// Insert stores a single new row.
func (s *Store) Insert(ctx context.Context, table string, row reconcile.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols, err := s.columns(ctx, table)
	if err != nil {
		return reconcile.Persistence("insert", table, err)
	}
	n, err := s.insertRow(ctx, s.db, table, cols, row)
	if err != nil {
		return reconcile.Persistence("insert", table, err)
	}
	if n == 0 {
		return reconcile.Persistence("insert", table, fmt.Errorf("%w: %s", reconcile.ErrDuplicateID, row.ID))
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertRow writes the table's columns of r. Columns r does not carry are
// left NULL. Returns 0 when the ID is already stored.
func (s *Store) insertRow(ctx context.Context, db execer, table string, cols []reconcile.Column, r reconcile.Row) (int, error) {
	names := []string{quote(string(reconcile.ColID))}
	marks := []string{"?"}
	args := []any{r.ID}
	for _, c := range cols {
		v, ok := r.Get(c)
		if c == reconcile.ColID || !ok {
			continue
		}
		arg, err := bindValue(c, v)
		if err != nil {
			return 0, err
		}
		names = append(names, quote(string(c)))
		marks = append(marks, "?")
		args = append(args, arg)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`,
		quote(table), strings.Join(names, ", "), strings.Join(marks, ", "), quote(string(reconcile.ColID)))
	res, err := db.ExecContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// UpdateByID applies the ingestion update protocol, all rows in one
// transaction. Rows with nothing to write are skipped.
func (s *Store) UpdateByID(ctx context.Context, table string, rows []reconcile.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(rows) == 0 {
		return 0, nil
	}
	cols, err := s.columns(ctx, table)
	if err != nil {
		return 0, reconcile.Persistence("update", table, err)
	}
	has := reconcile.ColumnSet(cols)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, reconcile.Persistence("update", table, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	updated := 0
	for _, r := range rows {
		assignments := reconcile.Assignments(r, has)
		if len(assignments) == 0 {
			continue
		}
		sets := make([]string, 0, len(assignments))
		args := make([]any, 0, len(assignments)+1)
		for _, a := range assignments {
			arg, err := bindValue(a.Column, a.Value)
			if err != nil {
				return 0, reconcile.Persistence("update", table, fmt.Errorf("row %s: %w", r.ID, err))
			}
			col := quote(string(a.Column))
			if a.Mode == reconcile.AssignFill {
				sets = append(sets, col+" = COALESCE("+col+", ?)")
			} else {
				sets = append(sets, col+" = ?")
			}
			args = append(args, arg)
		}
		args = append(args, r.ID)

		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
			quote(table), strings.Join(sets, ", "), quote(string(reconcile.ColID)))
		res, err := sqlTx.ExecContext(ctx, s.dialect.bind(query), args...)
		if err != nil {
			return 0, reconcile.Persistence("update", table, fmt.Errorf("row %s: %w", r.ID, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, reconcile.Persistence("update", table, err)
		}
		updated += int(n)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, reconcile.Persistence("update", table, err)
	}
	return updated, nil
}

// Patch sets the given columns of one row, NULL allowed.
func (s *Store) Patch(ctx context.Context, table, id string, fields map[reconcile.Column]reconcile.Value) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols, err := s.columns(ctx, table)
	if err != nil {
		return false, reconcile.Persistence("patch", table, err)
	}
	has := reconcile.ColumnSet(cols)

	patch := reconcile.Row{ID: id, Fields: fields}
	var sets []string
	var args []any
	for _, c := range patch.Columns() {
		if c == reconcile.ColID {
			continue
		}
		if !has(c) {
			return false, reconcile.Persistence("patch", table, fmt.Errorf("%w: %s", reconcile.ErrUnknownColumn, c))
		}
		arg, err := bindValue(c, fields[c])
		if err != nil {
			return false, reconcile.Persistence("patch", table, err)
		}
		sets = append(sets, quote(string(c))+" = ?")
		args = append(args, arg)
	}

	var query string
	if len(sets) == 0 {
		query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", quote(table), quote(string(reconcile.ColID)))
		var count int
		if err := s.db.QueryRowContext(ctx, s.dialect.bind(query), id).Scan(&count); err != nil {
			return false, reconcile.Persistence("patch", table, err)
		}
		return count > 0, nil
	}

	query = fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(table), strings.Join(sets, ", "), quote(string(reconcile.ColID)))
	res, err := s.db.ExecContext(ctx, s.dialect.bind(query), append(args, id)...)
	if err != nil {
		return false, reconcile.Persistence("patch", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, reconcile.Persistence("patch", table, err)
	}
	return n > 0, nil
}

// =============================================================================
// READS
// =============================================================================

// SelectAll returns every row of the table ordered by ID.
func (s *Store) SelectAll(ctx context.Context, table string) ([]reconcile.Row, error) {
	return s.Select(ctx, table, reconcile.Query{})
}

// Select returns the rows matching q.
func (s *Store) Select(ctx context.Context, table string, q reconcile.Query) ([]reconcile.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cols, err := s.columns(ctx, table)
	if err != nil {
		return nil, reconcile.Persistence("select", table, err)
	}
	has := reconcile.ColumnSet(cols)
	for _, c := range q.ReferencedColumns() {
		if !has(c) {
			return nil, reconcile.Persistence("select", table, fmt.Errorf("%w: %s", reconcile.ErrUnknownColumn, c))
		}
	}

	where, args, err := whereClause(q.Where)
	if err != nil {
		return nil, reconcile.Persistence("select", table, err)
	}
	query := "SELECT * FROM " + quote(table) + where + orderClause(q)

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return nil, reconcile.Persistence("select", table, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, reconcile.Persistence("select", table, err)
	}
	return out, nil
}

// Distinct returns the distinct values of col, NULL included.
func (s *Store) Distinct(ctx context.Context, table string, col reconcile.Column) ([]reconcile.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s", quote(string(col)), quote(table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, reconcile.Persistence("distinct", table, err)
	}
	defer rows.Close()

	var out []reconcile.Value
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, reconcile.Persistence("distinct", table, err)
		}
		out = append(out, scanValue(col, raw))
	}
	if err := rows.Err(); err != nil {
		return nil, reconcile.Persistence("distinct", table, err)
	}
	return out, nil
}

func whereClause(conds []reconcile.Cond) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		col := quote(string(c.Column))
		var expr string
		switch c.Op {
		case reconcile.OpIsNull:
			parts = append(parts, col+" IS NULL")
			continue
		case reconcile.OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
			continue
		case reconcile.OpContains:
			expr = "UPPER(CAST(" + col + " AS TEXT)) LIKE UPPER(?) ESCAPE '\\'"
			args = append(args, "%"+escapeLike(c.Value.String())+"%")
		default:
			arg, err := bindValue(c.Column, c.Value)
			if err != nil {
				// A value the column cannot hold never matches.
				expr = "1 = 0"
				break
			}
			op := map[reconcile.Op]string{reconcile.OpEq: "=", reconcile.OpLte: "<=", reconcile.OpGte: ">="}[c.Op]
			if op == "" {
				return "", nil, fmt.Errorf("unsupported operator %d", c.Op)
			}
			expr = col + " " + op + " ?"
			args = append(args, arg)
		}
		if c.OrNull {
			expr = "(" + expr + " OR " + col + " IS NULL)"
		}
		parts = append(parts, expr)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func orderClause(q reconcile.Query) string {
	id := quote(string(reconcile.ColID))
	if q.OrderBy == "" || q.OrderBy == reconcile.ColID {
		if q.OrderBy == reconcile.ColID && q.Desc {
			return " ORDER BY " + id + " DESC"
		}
		return " ORDER BY " + id
	}
	col := quote(string(q.OrderBy))
	dir := ""
	if q.Desc {
		dir = " DESC"
	}
	return fmt.Sprintf(" ORDER BY (%s IS NULL), %s%s, %s", col, col, dir, id)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// VALUE CONVERSION
// =============================================================================

// bindValue converts v to a driver argument for column c.
func bindValue(c reconcile.Column, v reconcile.Value) (any, error) {
	v, err := reconcile.Coerce(c, v)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case reconcile.KindText:
		return v.Raw(), nil
	case reconcile.KindNumber:
		if d := v.Decimal(); d.IsInteger() {
			return d.IntPart(), nil
		}
		return v.String(), nil
	case reconcile.KindDate:
		return v.String(), nil
	}
	return nil, nil
}

func scanRows(rows *sql.Rows) ([]reconcile.Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []reconcile.Row
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := reconcile.Row{Fields: make(map[reconcile.Column]reconcile.Value, len(names))}
		for i, n := range names {
			c := reconcile.Column(n)
			v := scanValue(c, raw[i])
			if c == reconcile.ColID {
				r.ID = v.String()
				continue
			}
			r.Set(c, v)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanValue converts a driver value of column c into a Value. Drivers hand
// dates back either as time.Time or as text depending on the engine.
func scanValue(c reconcile.Column, raw any) reconcile.Value {
	def, canonical := reconcile.Lookup(c)
	var v reconcile.Value
	switch x := raw.(type) {
	case nil:
		return reconcile.Null()
	case time.Time:
		v = reconcile.Date(x)
	case []byte:
		v = reconcile.Text(string(x))
	case string:
		v = reconcile.Text(x)
	case int64:
		v = reconcile.Int(x)
	case float64:
		v = reconcile.Number(decimal.NewFromFloat(x))
	case bool:
		v = reconcile.Text(strconv.FormatBool(x))
	default:
		v = reconcile.Text(fmt.Sprint(x))
	}
	if !canonical {
		return v
	}
	if def.Kind == reconcile.StoreText && v.Kind() == reconcile.KindDate {
		return reconcile.Text(v.String())
	}
	if cv, err := reconcile.Coerce(c, v); err == nil {
		return cv
	}
	return v
}
