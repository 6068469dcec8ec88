package reconcile

import (
	"fmt"
	"unicode/utf8"
)

// Coerce converts v to the storage kind of column c. Unknown columns pass
// through unchanged. Text longer than the column width is cut at the width.
func Coerce(c Column, v Value) (Value, error) {
	def, ok := schemaIndex[c]
	if !ok || v.IsNull() {
		return v, nil
	}
	switch def.Kind {
	case StoreDate:
		d, ok := v.AsDate()
		if !ok {
			return Null(), fmt.Errorf("%s: %q is not a date", c, v.String())
		}
		return d, nil
	case StoreInt:
		n, ok := v.AsInt()
		if !ok {
			return Null(), fmt.Errorf("%s: %q is not an integer", c, v.String())
		}
		return Int(n), nil
	default:
		s := v.String()
		if def.MaxLen > 0 && utf8.RuneCountInString(s) > def.MaxLen {
			s = string([]rune(s)[:def.MaxLen])
		}
		return Text(s), nil
	}
}

// CoerceRow coerces every canonical column of row. Columns that cannot be
// coerced are handed to bad, which decides what the row keeps.
func CoerceRow(row Row, bad func(c Column, v Value, err error) (Value, bool)) Row {
	out := Row{ID: row.ID, Fields: make(map[Column]Value, len(row.Fields))}
	for c, v := range row.Fields {
		cv, err := Coerce(c, v)
		if err != nil {
			if cv, ok := bad(c, v, err); ok {
				out.Fields[c] = cv
			}
			continue
		}
		out.Fields[c] = cv
	}
	return out
}
