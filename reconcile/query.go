package reconcile

import (
	"sort"
	"strings"
)

// Match reports whether row satisfies every condition of q.
func (q Query) Match(row Row) bool {
	for _, c := range q.Where {
		if !c.Match(row) {
			return false
		}
	}
	return true
}

// Match evaluates the condition with SQL NULL semantics: a NULL column only
// matches OpIsNull, or any operator when OrNull is set.
func (c Cond) Match(row Row) bool {
	v := row.Field(c.Column)
	if c.Column == ColID {
		v = Text(row.ID)
	}
	switch c.Op {
	case OpIsNull:
		return v.IsNull()
	case OpNotNull:
		return v.Valid()
	}
	if v.IsNull() {
		return c.OrNull
	}
	switch c.Op {
	case OpEq:
		return compare(v, c.Value) == 0
	case OpContains:
		return strings.Contains(strings.ToUpper(v.String()), strings.ToUpper(c.Value.String()))
	case OpLte:
		return compare(v, c.Value) <= 0
	case OpGte:
		return compare(v, c.Value) >= 0
	}
	return false
}

// Sort orders rows the way Query promises: OrderBy with NULLs last, then ID.
func (q Query) Sort(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			a, b := rows[i].Field(q.OrderBy), rows[j].Field(q.OrderBy)
			switch {
			case a.IsNull() && b.IsNull():
			case a.IsNull():
				return false
			case b.IsNull():
				return true
			default:
				if cmp := compare(a, b); cmp != 0 {
					if q.Desc {
						return cmp > 0
					}
					return cmp < 0
				}
			}
		}
		return rows[i].ID < rows[j].ID
	})
}

// compare orders two non-null values. Mixed kinds are compared through
// their canonical forms: dates and numbers first, text last.
func compare(a, b Value) int {
	switch {
	case a.kind == KindNumber && b.kind == KindNumber:
		return a.num.Cmp(b.num)
	case a.kind == KindDate || b.kind == KindDate:
		ad, aok := a.AsDate()
		bd, bok := b.AsDate()
		if aok && bok && ad.Valid() && bd.Valid() {
			return ad.date.Compare(bd.date)
		}
	case a.kind == KindNumber || b.kind == KindNumber:
		an, aok := a.AsInt()
		bn, bok := b.AsInt()
		if aok && bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(a.String(), b.String())
}
