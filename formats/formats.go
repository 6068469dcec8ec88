/*
Package formats declares the three extract formats the document cell
receives.

PURPOSE:
  Each format is a reconcile.Adapter: a static Declaration plus the
  format's eligibility and stamping rules. The ingestion runner looks up
  one adapter per discovered file and hands it to the Normalizer.

AVAILABLE FORMATS:
  Histo    performance history   (kind histo_perfo, file tag "Histo")
  Backlog  full backlog          (kind full_backlog_data, file tag "Backlog")
  Navy     navy check            (kind navy_check, file tag "Navy")

SEE ALSO:
  - reconcile/adapter.go: Adapter contract
  - factory/adapter.go: YAML overrides of the declarations
*/
package formats

import (
	"fmt"

	"github.com/celluledoc/docflow/reconcile"
)

// Kinds in processing order.
const (
	KindHisto   = "histo_perfo"
	KindBacklog = "full_backlog_data"
	KindNavy    = "navy_check"
)

// Kinds lists the formats in the order a run processes them.
var Kinds = []string{KindHisto, KindBacklog, KindNavy}

// Declarations returns the built-in declaration of every format.
func Declarations() map[string]reconcile.Declaration {
	return map[string]reconcile.Declaration{
		KindHisto:   HistoDeclaration(),
		KindBacklog: BacklogDeclaration(),
		KindNavy:    NavyDeclaration(),
	}
}

// New builds the adapter of kind from decl. decl usually comes from
// Declarations, possibly overridden by configuration.
func New(kind string, decl reconcile.Declaration) (reconcile.Adapter, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	base := reconcile.Declared{Decl: decl}
	switch kind {
	case KindHisto:
		return &Histo{Declared: base}, nil
	case KindBacklog:
		return &Backlog{Declared: base}, nil
	case KindNavy:
		return &Navy{Declared: base}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", kind)
	}
}

// ForKind returns the built-in adapter of kind.
func ForKind(kind string) (reconcile.Adapter, error) {
	decl, ok := Declarations()[kind]
	if !ok {
		return nil, fmt.Errorf("unknown format %q", kind)
	}
	return New(kind, decl)
}

func idColumns(order, line, release, project string) [4]reconcile.IDColumn {
	cols := reconcile.CanonicalID
	for i, name := range []string{order, line, release, project} {
		cols[i].Name = name
	}
	return cols
}
