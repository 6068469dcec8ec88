/*
Package reconcile provides the ingestion and reconciliation engine.

PURPOSE:
  Turns raw spreadsheet batches into canonical rows keyed by a composite
  identifier and merges them into the documents table. The package knows
  nothing about file formats (see formats/) or databases (see store/):
  adapters describe formats, a Gateway describes persistence.

KEY CONCEPTS IN THIS FILE (types.go):
  - Value:  an explicit optional cell value (null, text, number, date)
  - Column: a canonical column name of the documents table
  - Row:    one canonical row, the ID plus the columns actually supplied
  - IDSet:  the identifiers already present in a table

PRESENCE VS NULL:
  A column missing from Row.Fields was not supplied: updates leave it alone.
  A column mapped to Null() was supplied empty: updates may clear it,
  subject to the column class rules in schema.go.

SEE ALSO:
  - schema.go: canonical table layout and column classes
  - normalize.go: raw batch -> canonical rows
  - reconcile.go: new/known partition
*/
package reconcile

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VALUE - Optional cell value
// =============================================================================

// Kind identifies what a Value carries.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is a single cell. The zero Value is null.
type Value struct {
	kind Kind
	text string
	num  decimal.Decimal
	date time.Time
}

func Null() Value { return Value{} }

// Text returns a text value. Blank strings are null.
func Text(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Value{}
	}
	return Value{kind: KindText, text: s}
}

func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }
func Int(n int64) Value              { return Value{kind: KindNumber, num: decimal.NewFromInt(n)} }

// Date returns a date value truncated to the calendar day.
func Date(t time.Time) Value {
	if t.IsZero() {
		return Value{}
	}
	return Value{kind: KindDate, date: Day(t)}
}

func (v Value) Kind() Kind               { return v.kind }
func (v Value) IsNull() bool             { return v.kind == KindNull }
func (v Value) Valid() bool              { return v.kind != KindNull }
func (v Value) Raw() string              { return v.text }
func (v Value) Decimal() decimal.Decimal { return v.num }
func (v Value) Time() time.Time          { return v.date }

// String renders the value the way it is exported and concatenated.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num.String()
	case KindDate:
		return v.date.Format(DateLayout)
	default:
		return ""
	}
}

// Equal reports whether two values carry the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.num.Equal(o.num)
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return true
	}
}

// AsDate coerces the value to a date. Text is parsed with the accepted
// layouts, numbers are read as spreadsheet serial dates.
func (v Value) AsDate() (Value, bool) {
	switch v.kind {
	case KindNull:
		return v, true
	case KindDate:
		return v, true
	case KindText:
		t, ok := ParseDate(v.text)
		if !ok {
			return Null(), false
		}
		return Date(t), true
	case KindNumber:
		t, ok := SerialDate(v.num)
		if !ok {
			return Null(), false
		}
		return Date(t), true
	}
	return Null(), false
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// AsInt coerces the value to an integer, truncating any fraction. Values
// outside the int64 range do not coerce.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindNumber:
		return intPart(v.num)
	case KindText:
		d, err := decimal.NewFromString(strings.TrimSpace(v.text))
		if err != nil {
			return 0, false
		}
		return intPart(d)
	}
	return 0, false
}

func intPart(d decimal.Decimal) (int64, bool) {
	d = d.Truncate(0)
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		return 0, false
	}
	return d.IntPart(), true
}

// =============================================================================
// ROWS
// =============================================================================

// Column is a column name, canonical or as found in a source file.
type Column string

// Row is one canonical row.
type Row struct {
	ID     string
	Fields map[Column]Value
}

func NewRow(id string) Row {
	return Row{ID: id, Fields: make(map[Column]Value)}
}

// Get returns the value and whether the column was supplied.
func (r Row) Get(c Column) (Value, bool) {
	v, ok := r.Fields[c]
	return v, ok
}

// Field returns the column value, null when absent.
func (r Row) Field(c Column) Value { return r.Fields[c] }

func (r Row) Has(c Column) bool {
	_, ok := r.Fields[c]
	return ok
}

func (r *Row) Set(c Column, v Value) {
	if r.Fields == nil {
		r.Fields = make(map[Column]Value)
	}
	r.Fields[c] = v
}

func (r *Row) Delete(c Column) { delete(r.Fields, c) }

// Columns returns the supplied columns in canonical table order, followed by
// any non-canonical columns sorted by name.
func (r Row) Columns() []Column {
	cols := make([]Column, 0, len(r.Fields))
	for _, def := range Schema {
		if def.Name == ColID {
			continue
		}
		if _, ok := r.Fields[def.Name]; ok {
			cols = append(cols, def.Name)
		}
	}
	var extra []Column
	for c := range r.Fields {
		if _, ok := schemaIndex[c]; !ok {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(cols, extra...)
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := Row{ID: r.ID, Fields: make(map[Column]Value, len(r.Fields))}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// IDSet is the set of identifiers present in a table.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func IDsOf(rows []Row) IDSet {
	s := make(IDSet, len(rows))
	for _, r := range rows {
		s[r.ID] = struct{}{}
	}
	return s
}

func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// =============================================================================
// RAW BATCH - What a spreadsheet reader delivers
// =============================================================================

// RawRow is one source line keyed by source column name.
type RawRow map[string]Value

// RawBatch is a parsed source file: its header and its rows in file order.
type RawBatch struct {
	Source  string
	Columns []string
	Rows    []RawRow
}

// HasColumn reports whether the header contains name.
func (b RawBatch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}
