package catalog

import "github.com/celluledoc/docflow/reconcile"

// Document statuses. A NULL status reads as StatusInProgress.
const (
	StatusInProgress         = "En cours"
	StatusAwaitingDoc        = "En attente de la documentation"
	StatusAwaitingInternal   = "En attente de retour interne"
	StatusAwaitingSupplier   = "En attente de retour fournisseur"
	StatusAwaitingInspection = "En attente d'inspection"
	StatusValidatedByDocCell = "Contrôle validé par la cellule doc"
	StatusValidatedBySystem  = "Contrôle validé par le système"
	StatusMarineOpen         = "Ligne Marine OPEN"
	StatusNonInvalidatable   = "Ligne Invalidable"
)

// EditableStatuses are the statuses an operator may pick.
var EditableStatuses = []string{
	StatusInProgress,
	StatusAwaitingInternal,
	StatusValidatedByDocCell,
	StatusMarineOpen,
	StatusAwaitingInspection,
	StatusAwaitingSupplier,
	StatusNonInvalidatable,
}

// statusMilestones maps a manually chosen status to the milestone it stamps.
var statusMilestones = map[string]reconcile.Column{
	StatusValidatedByDocCell: reconcile.ColValidatedByDocCell,
	StatusAwaitingSupplier:   reconcile.ColAwaitingSupplier,
	StatusAwaitingInternal:   reconcile.ColAwaitingInternal,
	StatusNonInvalidatable:   reconcile.ColNonInvalidatable,
}

// MilestoneFor returns the milestone stamped when a row moves to status.
func MilestoneFor(status string) (reconcile.Column, bool) {
	c, ok := statusMilestones[status]
	return c, ok
}

// statusCond matches status, treating NULL as StatusInProgress.
func statusCond(status string) reconcile.Cond {
	if status == StatusInProgress {
		return reconcile.EqOrNull(reconcile.ColStatus, reconcile.Text(status))
	}
	return reconcile.Eq(reconcile.ColStatus, reconcile.Text(status))
}
