package formats

import (
	"time"

	"github.com/celluledoc/docflow/reconcile"
)

// BacklogDeclaration is the full backlog layout.
func BacklogDeclaration() reconcile.Declaration {
	return reconcile.Declaration{
		Kind: KindBacklog,
		Tag:  "Backlog",
		ColumnsToDrop: []string{
			"TRACKING_TYPE", "QP", "QCP_CODE_EXPECTED", "QCP_DESCRIPTION", "ISP_COMMENTS",
			"ITEM", "PO_LINE_DESCRIPTION", "SITU_RETARD", "PO_STATUS", "ACT_ISP",
			"PROMISED_MATERIAL_DATE", "ISP_DOC_STATUS", "SHIPMENT_CLOSURE_STATUS", "SHIPMENT",
		},
		IDColumns: idColumns("PO", "LINE", "RELEASE", "PROJECT_NUM"),
		Rename: map[string]reconcile.Column{
			"PO":                       reconcile.ColOrderNumber,
			"LINE":                     reconcile.ColLine,
			"PROJECT_NUM":              reconcile.ColProjectNumber,
			"VENDOR_NAME":              reconcile.ColSupplier,
			"ACTUAL_MAT_DELIVERY_DATE": reconcile.ColReceptionDate,
		},
	}
}

// Backlog keeps lines whose material has been received. Lines seen for the
// first time start waiting for their documentation today; known lines keep
// whatever stamp the store already holds.
type Backlog struct {
	reconcile.Declared
}

func (b *Backlog) Eligible(row reconcile.Row, _ time.Time) bool {
	return row.Field(reconcile.ColReceptionDate).Valid()
}

func (b *Backlog) Stamp(row *reconcile.Row, known bool, today time.Time) {
	if !known {
		row.Set(reconcile.ColAwaitingDoc, reconcile.Date(today))
	}
}
