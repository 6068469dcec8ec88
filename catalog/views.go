package catalog

import (
	"fmt"
	"strings"

	"github.com/celluledoc/docflow/reconcile"
)

// =============================================================================
// VIEWS - Named subsets of the documents table
// =============================================================================

const (
	ViewAll        = "Tous les documents"
	ViewUnassigned = "Aucun consultant affecté"
)

// View is a named row subset. Every operation of the service runs inside
// one view.
type View struct {
	Name       string `json:"name"`
	Consultant string `json:"consultant,omitempty"`
	Unassigned bool   `json:"unassigned,omitempty"`
}

// IncludesID reports whether rows of the view carry their identifier.
// Only the all-documents view shows it.
func (v View) IncludesID() bool {
	return v.Consultant == "" && !v.Unassigned
}

// Conditions restricts a query to the view.
func (v View) Conditions() []reconcile.Cond {
	switch {
	case v.Unassigned:
		return []reconcile.Cond{reconcile.IsNull(reconcile.ColConsultant)}
	case v.Consultant != "":
		return []reconcile.Cond{reconcile.Eq(reconcile.ColConsultant, reconcile.Text(v.Consultant))}
	}
	return nil
}

// Views is the ordered set of views: all documents, unassigned, then one
// per consultant.
type Views struct {
	order  []View
	byName map[string]View
}

// NewViews builds the view set. Consultant names are upper-cased the way
// they are stored; blanks and repeats are ignored.
func NewViews(consultants ...string) *Views {
	vs := &Views{byName: make(map[string]View)}
	vs.add(View{Name: ViewAll})
	vs.add(View{Name: ViewUnassigned, Unassigned: true})
	for _, c := range consultants {
		name := strings.ToUpper(strings.TrimSpace(c))
		if name == "" {
			continue
		}
		if _, ok := vs.byName[name]; ok {
			continue
		}
		vs.add(View{Name: name, Consultant: name})
	}
	return vs
}

func (vs *Views) add(v View) {
	vs.order = append(vs.order, v)
	vs.byName[v.Name] = v
}

// Get resolves a view name. Empty means ViewAll.
func (vs *Views) Get(name string) (View, error) {
	if name == "" {
		name = ViewAll
	}
	v, ok := vs.byName[name]
	if !ok {
		return View{}, fmt.Errorf("%w: %q", reconcile.ErrUnknownView, name)
	}
	return v, nil
}

// All returns the views in display order.
func (vs *Views) All() []View {
	return append([]View(nil), vs.order...)
}
