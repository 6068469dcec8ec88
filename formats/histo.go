package formats

import (
	"strings"
	"time"

	"github.com/celluledoc/docflow/reconcile"
)

// Helper columns of the performance history extract.
const (
	HistoStatus         = "CURRENT_STATUS"
	HistoLastManagement = "LAST_EDM_MANAGEMENT_DATE"
)

// Status values of CURRENT_STATUS, compared case-insensitively.
const (
	histoInApproval = "In Approval"
	histoApproved   = "APPROVED"
)

// HistoApprovalWindow is how far back an approval may date and still be
// picked up.
const HistoApprovalWindow = 14 * 24 * time.Hour

// HistoDeclaration is the performance history layout.
func HistoDeclaration() reconcile.Declaration {
	return reconcile.Declaration{
		Kind: KindHisto,
		Tag:  "Histo",
		ColumnsToDrop: []string{
			"CURR_PO_SUPPLIER_CODE", "EDM_TABLE_JOB", "REQUIREMENT_CODE", "LAST_ISP", "NB_ENTRY",
			"INFO_IN", "FIRST_EDM_MANAGEMENT_DATE", "NB_OUT", "INFO_OUT", "PO_SHIPMENT_NUMBER",
		},
		IDColumns: idColumns("PO_NUMBER", "PO_LINE_NUMBER", "RELEASE_NUMBER", "PO_JOB"),
		Rename: map[string]reconcile.Column{
			"PO_NUMBER":               reconcile.ColOrderNumber,
			"PO_LINE_NUMBER":          reconcile.ColLine,
			"RELEASE_NUMBER":          reconcile.ColRelease,
			"PO_JOB":                  reconcile.ColProjectNumber,
			"CURR_PO_SUPPLIER":        reconcile.ColSupplier,
			"PO_LINE_DESCRIPTION":     reconcile.ColDescription,
			"FIRST_MAT_DELIVERY_DATE": reconcile.ColReceptionDate,
			"FIRST_ISP":               reconcile.ColDocObtainedDate,
		},
		Helpers: []string{HistoStatus, HistoLastManagement},
	}
}

// Histo keeps lines still in approval, and lines approved within the
// approval window. Approved lines are stamped as validated by the system.
type Histo struct {
	reconcile.Declared
}

func (h *Histo) Eligible(row reconcile.Row, today time.Time) bool {
	status := row.Field(HistoStatus)
	if status.IsNull() || strings.EqualFold(strings.TrimSpace(status.String()), histoInApproval) {
		return true
	}
	if !isApproved(status) {
		return false
	}
	managed, ok := row.Field(HistoLastManagement).AsDate()
	if !ok || managed.IsNull() {
		return false
	}
	return !managed.Time().Before(today.Add(-HistoApprovalWindow))
}

func (h *Histo) Stamp(row *reconcile.Row, _ bool, today time.Time) {
	if isApproved(row.Field(HistoStatus)) {
		row.Set(reconcile.ColValidatedBySystem, reconcile.Date(today))
	}
}

func isApproved(v reconcile.Value) bool {
	return strings.EqualFold(strings.TrimSpace(v.String()), histoApproved)
}
