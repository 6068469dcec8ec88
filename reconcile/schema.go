/*
schema.go - Canonical documents table

PURPOSE:
  Declares every column of the documents table, its storage kind and its
  class. The class decides what automated ingestion may do to the column
  once a row exists:

    ClassKey        ID, matched on, never written by an update
    ClassSource     comes from the extracts, overwritten by ingestion
    ClassOperator   curated by the document cell, written by ingestion
                    only when the incoming value is not null
    ClassMilestone  stamped once; ingestion only fills it when empty

SEE ALSO:
  - store/sqlstore/sqlstore.go: turns classes into UPDATE clauses
  - catalog/status.go: status -> milestone mapping for manual edits
*/
package reconcile

// Storage kinds of canonical columns.
type StorageKind int

const (
	StoreText StorageKind = iota
	StoreInt
	StoreDate
)

// Class groups columns by who owns them.
type Class int

const (
	ClassKey Class = iota
	ClassSource
	ClassOperator
	ClassMilestone
)

// Canonical columns.
const (
	ColID                 Column = "ID"
	ColProjectNumber      Column = "NUMERO_PROJET"
	ColOrderNumber        Column = "NUMERO_COMMANDE"
	ColLine               Column = "LIGNE"
	ColRelease            Column = "RELEASE"
	ColSupplier           Column = "FOURNISSEUR"
	ColReceptionDate      Column = "DATE_RECEPTION_MATERIEL"
	ColDocObtainedDate    Column = "DATE_OBTENTION_DOC"
	ColDescription        Column = "DESCRIPTION"
	ColItemCode           Column = "ITEM_CODE"
	ColStatus             Column = "STATUT"
	ColComments           Column = "COMMENTAIRES"
	ColConsultant         Column = "CONSULTANT"
	ColDocOrigin          Column = "ORIGINE_DOC"
	ColValidatedBySystem  Column = "HOROD_CONTROLE_VALIDE_SYSTEME"
	ColValidatedByDocCell Column = "HOROD_CONTROLE_VALIDE_CELLULE_DOC"
	ColAwaitingSupplier   Column = "HOROD_ATTENTE_RETOUR_FOURNISSEUR"
	ColAwaitingDoc        Column = "HOROD_ATTENTE_DOC"
	ColAwaitingInternal   Column = "HOROD_ATTENTE_RETOUR_INTERNE"
	ColNonInvalidatable   Column = "HOROD_LIGNE_INVALIDABLE"
)

// ColumnDef describes one column of the documents table.
type ColumnDef struct {
	Name   Column
	Kind   StorageKind
	Class  Class
	MaxLen int // text columns only, 0 = unbounded
}

// Schema lists the documents table columns in table order.
var Schema = []ColumnDef{
	{Name: ColID, Kind: StoreText, Class: ClassKey, MaxLen: 25},
	{Name: ColProjectNumber, Kind: StoreText, Class: ClassSource, MaxLen: 20},
	{Name: ColOrderNumber, Kind: StoreInt, Class: ClassSource},
	{Name: ColLine, Kind: StoreInt, Class: ClassSource},
	{Name: ColRelease, Kind: StoreText, Class: ClassSource, MaxLen: 5},
	{Name: ColSupplier, Kind: StoreText, Class: ClassSource, MaxLen: 100},
	{Name: ColReceptionDate, Kind: StoreDate, Class: ClassSource},
	{Name: ColDocObtainedDate, Kind: StoreDate, Class: ClassSource},
	{Name: ColDescription, Kind: StoreText, Class: ClassSource, MaxLen: 150},
	{Name: ColItemCode, Kind: StoreText, Class: ClassSource, MaxLen: 30},
	{Name: ColStatus, Kind: StoreText, Class: ClassOperator, MaxLen: 50},
	{Name: ColComments, Kind: StoreText, Class: ClassOperator, MaxLen: 100},
	{Name: ColConsultant, Kind: StoreText, Class: ClassOperator, MaxLen: 30},
	{Name: ColDocOrigin, Kind: StoreText, Class: ClassOperator, MaxLen: 10},
	{Name: ColValidatedBySystem, Kind: StoreDate, Class: ClassMilestone},
	{Name: ColValidatedByDocCell, Kind: StoreDate, Class: ClassMilestone},
	{Name: ColAwaitingSupplier, Kind: StoreDate, Class: ClassMilestone},
	{Name: ColAwaitingDoc, Kind: StoreDate, Class: ClassMilestone},
	{Name: ColAwaitingInternal, Kind: StoreDate, Class: ClassMilestone},
	{Name: ColNonInvalidatable, Kind: StoreDate, Class: ClassMilestone},
}

var schemaIndex = func() map[Column]ColumnDef {
	m := make(map[Column]ColumnDef, len(Schema))
	for _, def := range Schema {
		m[def.Name] = def
	}
	return m
}()

// Lookup returns the definition of a canonical column.
func Lookup(c Column) (ColumnDef, bool) {
	def, ok := schemaIndex[c]
	return def, ok
}

// IsCanonical reports whether c is a documents table column.
func IsCanonical(c Column) bool {
	_, ok := schemaIndex[c]
	return ok
}

// DateColumns returns the date-typed canonical columns in table order.
func DateColumns() []Column {
	var out []Column
	for _, def := range Schema {
		if def.Kind == StoreDate {
			out = append(out, def.Name)
		}
	}
	return out
}

// Milestones returns the milestone columns in table order.
func Milestones() []Column {
	var out []Column
	for _, def := range Schema {
		if def.Class == ClassMilestone {
			out = append(out, def.Name)
		}
	}
	return out
}

// ColumnNames returns every canonical column in table order.
func ColumnNames() []Column {
	out := make([]Column, len(Schema))
	for i, def := range Schema {
		out[i] = def.Name
	}
	return out
}
