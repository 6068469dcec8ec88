// Package store provides an in-memory Gateway.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/celluledoc/docflow/reconcile"
)

// =============================================================================
// MEMORY STORE - In-memory Gateway (for testing/dev)
// =============================================================================

var _ reconcile.Gateway = (*Memory)(nil)

// ErrNoSuchTable is wrapped when a table was never created.
var ErrNoSuchTable = errors.New("no such table")

type table struct {
	columns []reconcile.Column
	rows    map[string]reconcile.Row
	order   []string
}

type Memory struct {
	mu     sync.RWMutex
	tables map[string]*table

	// FailUpdateOn makes UpdateByID fail when it reaches this ID. Tests use
	// it to check all-or-nothing updates.
	FailUpdateOn string
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*table)}
}

// EnsureTable creates the table with the canonical layout.
func (m *Memory) EnsureTable(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = &table{columns: reconcile.ColumnNames(), rows: make(map[string]reconcile.Row)}
	}
	return nil
}

// CreateTable creates a table restricted to cols. ID is always present.
func (m *Memory) CreateTable(name string, cols ...reconcile.Column) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append([]reconcile.Column{reconcile.ColID}, cols...)
	m.tables[name] = &table{columns: all, rows: make(map[string]reconcile.Row)}
}

func (m *Memory) lookup(op, name string) (*table, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, reconcile.Persistence(op, name, ErrNoSuchTable)
	}
	return t, nil
}

func (m *Memory) Columns(_ context.Context, name string) ([]reconcile.Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.lookup("columns", name)
	if err != nil {
		return nil, err
	}
	return append([]reconcile.Column(nil), t.columns...), nil
}

// Append adds rows whose ID is not stored yet. All-or-nothing.
func (m *Memory) Append(_ context.Context, name string, rows []reconcile.Row) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup("append", name)
	if err != nil {
		return 0, err
	}
	staged := make([]reconcile.Row, 0, len(rows))
	batch := make(map[string]bool, len(rows))
	for _, r := range rows {
		if _, ok := t.rows[r.ID]; ok || batch[r.ID] {
			continue
		}
		stored, err := storable(r, t.columns)
		if err != nil {
			return 0, reconcile.Persistence("append", name, err)
		}
		batch[r.ID] = true
		staged = append(staged, stored)
	}
	for _, r := range staged {
		t.put(r)
	}
	return len(staged), nil
}

func (m *Memory) SelectAll(ctx context.Context, name string) ([]reconcile.Row, error) {
	return m.Select(ctx, name, reconcile.Query{})
}

func (m *Memory) Select(_ context.Context, name string, q reconcile.Query) ([]reconcile.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.lookup("select", name)
	if err != nil {
		return nil, err
	}
	has := reconcile.ColumnSet(t.columns)
	for _, c := range q.ReferencedColumns() {
		if !has(c) {
			return nil, reconcile.Persistence("select", name, fmt.Errorf("%w: %s", reconcile.ErrUnknownColumn, c))
		}
	}
	var out []reconcile.Row
	for _, id := range t.order {
		r := t.rows[id]
		if q.Match(r) {
			out = append(out, r.Clone())
		}
	}
	q.Sort(out)
	return out, nil
}

// UpdateByID applies the ingestion update protocol. Changes are computed on
// copies and committed only if every row succeeds.
func (m *Memory) UpdateByID(_ context.Context, name string, rows []reconcile.Row) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup("update", name)
	if err != nil {
		return 0, err
	}
	has := reconcile.ColumnSet(t.columns)
	staged := make(map[string]reconcile.Row, len(rows))
	for _, in := range rows {
		if in.ID == m.FailUpdateOn && m.FailUpdateOn != "" {
			return 0, reconcile.Persistence("update", name, fmt.Errorf("injected failure on %s", in.ID))
		}
		assignments := reconcile.Assignments(in, has)
		if len(assignments) == 0 {
			continue
		}
		cur, ok := staged[in.ID]
		if !ok {
			stored, found := t.rows[in.ID]
			if !found {
				continue
			}
			cur = stored.Clone()
		}
		for _, a := range assignments {
			v, err := reconcile.Coerce(a.Column, a.Value)
			if err != nil {
				return 0, reconcile.Persistence("update", name, err)
			}
			if a.Mode == reconcile.AssignFill && cur.Field(a.Column).Valid() {
				continue
			}
			cur.Set(a.Column, v)
		}
		staged[in.ID] = cur
	}
	for _, r := range staged {
		t.rows[r.ID] = r
	}
	return len(staged), nil
}

func (m *Memory) Insert(_ context.Context, name string, row reconcile.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup("insert", name)
	if err != nil {
		return err
	}
	if _, ok := t.rows[row.ID]; ok {
		return reconcile.Persistence("insert", name, fmt.Errorf("%w: %s", reconcile.ErrDuplicateID, row.ID))
	}
	stored, err := storable(row, t.columns)
	if err != nil {
		return reconcile.Persistence("insert", name, err)
	}
	t.put(stored)
	return nil
}

func (m *Memory) Patch(_ context.Context, name, id string, fields map[reconcile.Column]reconcile.Value) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup("patch", name)
	if err != nil {
		return false, err
	}
	cur, ok := t.rows[id]
	if !ok {
		return false, nil
	}
	has := reconcile.ColumnSet(t.columns)
	next := cur.Clone()
	for c, v := range fields {
		if c == reconcile.ColID {
			continue
		}
		if !has(c) {
			return false, reconcile.Persistence("patch", name, fmt.Errorf("%w: %s", reconcile.ErrUnknownColumn, c))
		}
		cv, err := reconcile.Coerce(c, v)
		if err != nil {
			return false, reconcile.Persistence("patch", name, err)
		}
		next.Set(c, cv)
	}
	t.rows[id] = next
	return true, nil
}

func (m *Memory) Distinct(_ context.Context, name string, col reconcile.Column) ([]reconcile.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.lookup("distinct", name)
	if err != nil {
		return nil, err
	}
	var out []reconcile.Value
	for _, id := range t.order {
		v := t.rows[id].Field(col)
		dup := false
		for _, seen := range out {
			if seen.Equal(v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

func (t *table) put(r reconcile.Row) {
	t.rows[r.ID] = r
	t.order = append(t.order, r.ID)
}

// storable keeps the table's columns of r, coerced to their storage kind.
// Missing columns are stored as NULL.
func storable(r reconcile.Row, cols []reconcile.Column) (reconcile.Row, error) {
	has := reconcile.ColumnSet(cols)
	out := reconcile.NewRow(r.ID)
	for _, c := range cols {
		if c != reconcile.ColID {
			out.Set(c, reconcile.Null())
		}
	}
	for c, v := range r.Fields {
		if c == reconcile.ColID || !has(c) {
			continue
		}
		cv, err := reconcile.Coerce(c, v)
		if err != nil {
			return reconcile.Row{}, err
		}
		out.Set(c, cv)
	}
	return out, nil
}
