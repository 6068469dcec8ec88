package formats

import (
	"fmt"
	"time"

	"github.com/celluledoc/docflow/reconcile"
)

// Columns of the navy check extract read by its rules.
const (
	NavyMaxReceiving      = "MAX_RECEIVING_DATE"
	NavyFirstPOApproved   = "FIRST_PO_APPROVED_DATE"
	NavyFirstLineApproved = "PO_REL_LINE_FIRST_APPRO_DATE"
)

// NavyDeclaration is the navy check layout.
func NavyDeclaration() reconcile.Declaration {
	return reconcile.Declaration{
		Kind: KindNavy,
		Tag:  "Navy",
		ColumnsToDrop: []string{
			"PO_CURRENT_BUYER", "PO_CURRENT_SPA_SFM", "PO_CREATION_DATE", "CURRENT_PO_REVISION_NUM",
			"PO_LAST_CONTRACTUAL_REV_NUM", "PO_LAST_CONTRACTUAL_DATE", "PO_CANCELLED", "TYPE",
			"RELEASE_CURRENT_BUYER", "PO_LAST_COMMENTS", "RELEASE_CANCELLED",
			"PO_REL_LINE_FIRST_REVISION", "CURR_VENDOR_CODE", "PO_LINE_CLOSURE_STATUS", "RCP",
			"LINE_CANCELLED", "ITEM_CODE", "LINE_DESCRIPTION", "CURR_CONTRACTUAL_DATE",
			"CURR_PROMISED_DATE", "MIN_ARRIVAL_DATE", "MAX_ARRIVAL_DATE", "MIN_RECEIVING_DATE",
			"SHIP_CANCELLED", "INFO_NIMA", "SHIP_QUANTITY", "SHIP_UNIT_MEAS_LOOKUP_CODE",
			"SHIP_QUANTITY_RECEIVED", "SHIP_QUANTITY_ACCEPTED", "SHIP_QUANTITY_REJECTED",
			"SHIP_QUANTITY_BILLED", "SHIP_QUANTITY_CANCELLED", "DISTRIBUTION_NUM",
			"PROJ_QUANTITY_ORDERED", "PROJ_QUANTITY_DELIVERED", "PROJ_QUANTITY_CANCELLED",
			"PROJ_QUANTITY_BILLED", "KEY", "KEY2", "CURRENT_PO_APPROVAL_STATUS",
			"SHIP_CLOSURE_STATUS", "SHIPMENT_NUM",
		},
		IDColumns: idColumns("PO", "LINE_NUM", "RELEASE_NUM", "DIST_PROJECT"),
		Rename: map[string]reconcile.Column{
			"PO":               reconcile.ColOrderNumber,
			"LINE_NUM":         reconcile.ColLine,
			"RELEASE_NUM":      reconcile.ColRelease,
			"DIST_PROJECT":     reconcile.ColProjectNumber,
			"CURR_VENDOR_NAME": reconcile.ColSupplier,
			NavyMaxReceiving:   reconcile.ColReceptionDate,
		},
		Helpers: []string{NavyFirstPOApproved, NavyFirstLineApproved},
	}
}

// Navy keeps lines approved at both order and line level. The receiving
// date arrives as dd/mm/yyyy text and is rewritten as yyyy-mm-dd.
type Navy struct {
	reconcile.Declared
}

func (n *Navy) Prepare(row *reconcile.Row) error {
	v, ok := row.Get(NavyMaxReceiving)
	if !ok || v.IsNull() {
		return nil
	}
	var day time.Time
	switch v.Kind() {
	case reconcile.KindText:
		t, ok := reconcile.ParseDayMonthYear(v.Raw())
		if !ok {
			return fmt.Errorf("%s: %q is not a dd/mm/yyyy date", NavyMaxReceiving, v.Raw())
		}
		day = t
	default:
		d, ok := v.AsDate()
		if !ok {
			return fmt.Errorf("%s: %q is not a date", NavyMaxReceiving, v.String())
		}
		day = d.Time()
	}
	row.Set(NavyMaxReceiving, reconcile.Text(day.Format(reconcile.DateLayout)))
	return nil
}

func (n *Navy) Eligible(row reconcile.Row, _ time.Time) bool {
	return row.Field(NavyFirstPOApproved).Valid() && row.Field(NavyFirstLineApproved).Valid()
}
