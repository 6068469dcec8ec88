/*
normalize.go - Row Normalizer: raw batch -> canonical rows

PURPOSE:
  Applies one Adapter to one raw batch. Per row, in this order:

    1. drop the adapter's noise columns
    2. discard rows whose first ID component is blank
    3. build the composite ID from the four ID components
    4. Prepare (format-specific reformatting on source names)
    5. rename source columns to canonical ones
    6. Eligible filter, Stamp, remove helper columns
    7. keep the first occurrence of each ID

ID COMPONENTS:
  A numeric-looking component (439089107, "439089107.0", "0067", 4.39E8)
  contributes its integer part in base 10. Anything else contributes its
  trimmed text. A null component after the first contributes nothing.
  Components are concatenated in declaration order without separator.

ERRORS:
  A missing required column aborts the whole file (*SchemaMismatchError).
  A bad row is dropped and reported in Batch.Issues; it never aborts the
  batch.

SEE ALSO:
  - adapter.go: what an adapter declares
  - reconcile.go: what happens to the batch next
*/
package reconcile

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Batch is the outcome of normalizing one raw batch.
type Batch struct {
	Format string
	Source string
	Rows   []Row
	Issues []*RowIssue

	// Unmapped lists surviving source columns that are not canonical.
	// Gateways ignore them.
	Unmapped []string

	Read       int // data rows in the source
	Discarded  int // blank first ID component
	Rejected   int // dropped with an issue
	Ineligible int // filtered out by the format rule
	Duplicates int // ID already seen earlier in the batch
}

// Normalizer applies adapters to raw batches.
type Normalizer struct {
	Clock Clock
}

func NewNormalizer(clock Clock) *Normalizer {
	return &Normalizer{Clock: clock}
}

// Normalize runs the adapter over raw. known holds the IDs already stored;
// adapters use it to decide stamping. It may be nil.
func (n *Normalizer) Normalize(raw RawBatch, a Adapter, known IDSet) (Batch, error) {
	decl := a.Declaration()
	batch := Batch{Format: decl.Kind, Source: raw.Source, Read: len(raw.Rows)}

	var missing []string
	for _, col := range decl.Required() {
		if !raw.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return batch, &SchemaMismatchError{Format: decl.Kind, Source: raw.Source, Missing: missing}
	}

	drop := make(map[string]bool, len(decl.ColumnsToDrop))
	for _, c := range decl.ColumnsToDrop {
		drop[c] = true
	}
	batch.Unmapped = unmappedColumns(raw.Columns, decl, drop)

	today := n.Clock.Today()
	seen := make(map[string]bool, len(raw.Rows))

	for i, src := range raw.Rows {
		line := i + 1

		if src[decl.IDColumns[0].Name].IsNull() {
			batch.Discarded++
			continue
		}

		id, issue := BuildID(decl.IDColumns, src)
		if issue != nil {
			issue.Line = line
			batch.Issues = append(batch.Issues, issue)
			batch.Rejected++
			continue
		}
		if len(id) > schemaIndex[ColID].MaxLen {
			batch.Issues = append(batch.Issues, &RowIssue{
				Line: line, Column: decl.IDColumns[0].Name, Value: id,
				Reason: "identifier longer than 25 characters",
			})
			batch.Rejected++
			continue
		}

		row := NewRow(id)
		for name, v := range src {
			if !drop[name] {
				row.Fields[Column(name)] = v
			}
		}

		if err := a.Prepare(&row); err != nil {
			batch.Issues = append(batch.Issues, &RowIssue{Line: line, Reason: err.Error()})
			batch.Rejected++
			continue
		}

		row = rename(row, decl.Rename)

		if !a.Eligible(row, today) {
			batch.Ineligible++
			continue
		}
		a.Stamp(&row, known.Contains(id), today)
		for _, h := range decl.Helpers {
			row.Delete(Column(h))
		}

		if seen[id] {
			batch.Duplicates++
			continue
		}
		seen[id] = true
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

// BuildID concatenates the identifier components of a source row.
func BuildID(cols [4]IDColumn, src RawRow) (string, *RowIssue) {
	var b strings.Builder
	for _, col := range cols {
		v := src[col.Name]
		part, numeric := idPart(v)
		if v.Valid() && col.Numeric && !numeric {
			return "", &RowIssue{
				Column: col.Name, Value: v.String(),
				Reason: "identifier component is not numeric",
			}
		}
		b.WriteString(part)
	}
	return b.String(), nil
}

// idPart renders one identifier component and reports whether it was
// numeric.
func idPart(v Value) (string, bool) {
	switch v.Kind() {
	case KindNull:
		return "", false
	case KindNumber:
		return v.Decimal().Truncate(0).String(), true
	case KindDate:
		return v.String(), false
	}
	s := strings.TrimSpace(v.Raw())
	if d, err := decimal.NewFromString(s); err == nil {
		return d.Truncate(0).String(), true
	}
	return s, false
}

// rename moves source columns to their canonical names. A renamed column
// wins over a source column that already carries the canonical name.
func rename(row Row, m map[string]Column) Row {
	out := NewRow(row.ID)
	for c, v := range row.Fields {
		if _, ok := m[string(c)]; !ok {
			out.Fields[c] = v
		}
	}
	for src, dst := range m {
		if v, ok := row.Fields[Column(src)]; ok {
			out.Fields[dst] = v
		}
	}
	return out
}

func unmappedColumns(header []string, decl Declaration, drop map[string]bool) []string {
	helpers := make(map[string]bool, len(decl.Helpers))
	for _, h := range decl.Helpers {
		helpers[h] = true
	}
	var out []string
	for _, name := range header {
		if drop[name] || helpers[name] {
			continue
		}
		if _, ok := decl.Rename[name]; ok {
			continue
		}
		if IsCanonical(Column(name)) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
