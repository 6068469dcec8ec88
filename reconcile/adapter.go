/*
adapter.go - Schema adapters: per-format projection rules

PURPOSE:
  An Adapter describes one source format: which columns are noise, which
  four columns form the composite ID, how source columns map to canonical
  ones, and the format's eligibility and stamping rules. The Normalizer is
  format-agnostic; it is handed one Adapter per file and never branches on
  the format itself.

DECLARATIONS ARE DATA:
  Declaration holds the static part and performs no I/O. Malformed
  declarations are caught once by Validate at startup (see factory/).

SEE ALSO:
  - formats/: the three concrete adapters
  - normalize.go: applies an adapter to a raw batch
*/
package reconcile

import (
	"fmt"
	"sort"
	"time"
)

// IDColumn is one component of the composite identifier. A Numeric
// component that does not parse as a number rejects the row.
type IDColumn struct {
	Name    string
	Numeric bool
}

// CanonicalID is the identifier shape over canonical column names: order
// and line numbers are numeric, release and project are taken as they
// come. Every format declares this shape over its own source names.
var CanonicalID = [4]IDColumn{
	{Name: string(ColOrderNumber), Numeric: true},
	{Name: string(ColLine), Numeric: true},
	{Name: string(ColRelease)},
	{Name: string(ColProjectNumber)},
}

// Declaration is the static description of a source format.
type Declaration struct {
	Kind          string
	Tag           string
	ColumnsToDrop []string
	IDColumns     [4]IDColumn
	Rename        map[string]Column
	// Helpers are source columns read by the eligibility rule and removed
	// from the row afterwards.
	Helpers []string
}

// Required lists the source columns a file must carry: ID components,
// rename sources and helpers. Drop-list columns are optional.
func (d Declaration) Required() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, c := range d.IDColumns {
		add(c.Name)
	}
	for _, src := range sortedKeys(d.Rename) {
		add(src)
	}
	for _, h := range d.Helpers {
		add(h)
	}
	return out
}

// Validate checks the declaration is usable.
func (d Declaration) Validate() error {
	if d.Kind == "" {
		return fmt.Errorf("declaration: kind is required")
	}
	if d.Tag == "" {
		return fmt.Errorf("declaration %s: tag is required", d.Kind)
	}
	drop := make(map[string]bool, len(d.ColumnsToDrop))
	for _, c := range d.ColumnsToDrop {
		drop[c] = true
	}
	ids := make(map[string]bool, len(d.IDColumns))
	for i, c := range d.IDColumns {
		if c.Name == "" {
			return fmt.Errorf("declaration %s: id column %d is empty", d.Kind, i+1)
		}
		if ids[c.Name] {
			return fmt.Errorf("declaration %s: id column %s listed twice", d.Kind, c.Name)
		}
		if drop[c.Name] {
			return fmt.Errorf("declaration %s: id column %s is also dropped", d.Kind, c.Name)
		}
		ids[c.Name] = true
	}
	if len(d.Rename) == 0 {
		return fmt.Errorf("declaration %s: rename map is empty", d.Kind)
	}
	targets := make(map[Column]string, len(d.Rename))
	for _, src := range sortedKeys(d.Rename) {
		dst := d.Rename[src]
		if drop[src] {
			return fmt.Errorf("declaration %s: renamed column %s is also dropped", d.Kind, src)
		}
		if !IsCanonical(dst) || dst == ColID {
			return fmt.Errorf("declaration %s: %s renamed to unknown column %s", d.Kind, src, dst)
		}
		if prev, ok := targets[dst]; ok {
			return fmt.Errorf("declaration %s: %s and %s both rename to %s", d.Kind, prev, src, dst)
		}
		targets[dst] = src
	}
	for _, h := range d.Helpers {
		if drop[h] {
			return fmt.Errorf("declaration %s: helper column %s is also dropped", d.Kind, h)
		}
	}
	return nil
}

// Adapter is one source format.
type Adapter interface {
	Declaration() Declaration

	// Prepare reformats source values before renaming. Keys are source
	// column names. An error rejects the row.
	Prepare(row *Row) error

	// Eligible decides, after renaming, whether the row is kept.
	Eligible(row Row, today time.Time) bool

	// Stamp sets milestone columns on a kept row. known reports whether
	// the row's ID is already stored.
	Stamp(row *Row, known bool, today time.Time)
}

// Declared is an Adapter with no rules beyond its declaration. Concrete
// formats embed it and override what they need.
type Declared struct {
	Decl Declaration
}

func (d Declared) Declaration() Declaration   { return d.Decl }
func (Declared) Prepare(*Row) error           { return nil }
func (Declared) Eligible(Row, time.Time) bool { return true }
func (Declared) Stamp(*Row, bool, time.Time)  {}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
