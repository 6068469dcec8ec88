/*
reconcile.go - Reconciler: new vs known rows

PURPOSE:
  Splits a normalized batch against a snapshot of the stored IDs and hands
  each half to the Gateway: new rows are appended, known rows go through
  the keyed update protocol.

PARTITION:
  ToInsert and ToUpdate are disjoint and together hold exactly the batch.
  A row is in ToInsert iff its ID is absent from the snapshot.

COERCION:
  Canonical columns are converted to their storage kind before handoff.
    ToInsert: a value that does not convert becomes NULL.
    ToUpdate: a value that does not convert is removed from the row, so
              the stored value is left untouched. Both cases are reported.

SNAPSHOT:
  No locking against concurrent writers. Ingestion is a single-writer batch
  job; Append is idempotent so a re-run against a stale snapshot is safe.

SEE ALSO:
  - normalize.go: produces the batch
  - store.go: Gateway and the update protocol
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// Plan is a partitioned batch ready to persist.
type Plan struct {
	ToInsert []Row
	ToUpdate []Row
	Issues   []*RowIssue
}

// Applied counts what a Plan changed.
type Applied struct {
	Inserted int
	Updated  int
}

// Reconciler merges normalized batches into a table.
type Reconciler struct {
	Gateway Gateway
}

func NewReconciler(gw Gateway) *Reconciler {
	return &Reconciler{Gateway: gw}
}

// Snapshot returns the IDs currently stored in table.
func (r *Reconciler) Snapshot(ctx context.Context, table string) (IDSet, error) {
	rows, err := r.Gateway.SelectAll(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", table, err)
	}
	return IDsOf(rows), nil
}

// Reconcile snapshots table and partitions rows against it.
func (r *Reconciler) Reconcile(ctx context.Context, rows []Row, table string) (Plan, error) {
	ids, err := r.Snapshot(ctx, table)
	if err != nil {
		return Plan{}, err
	}
	return Partition(rows, ids), nil
}

// Partition splits rows into new and known IDs and coerces their values.
func Partition(rows []Row, ids IDSet) Plan {
	var plan Plan
	for _, row := range rows {
		if ids.Contains(row.ID) {
			plan.ToUpdate = append(plan.ToUpdate, CoerceRow(row, func(c Column, v Value, err error) (Value, bool) {
				plan.Issues = append(plan.Issues, coercionIssue(row.ID, c, v, err, "left unchanged"))
				return Value{}, false
			}))
			continue
		}
		plan.ToInsert = append(plan.ToInsert, CoerceRow(row, func(c Column, v Value, err error) (Value, bool) {
			plan.Issues = append(plan.Issues, coercionIssue(row.ID, c, v, err, "stored as null"))
			return Null(), true
		}))
	}
	return plan
}

// Apply appends ToInsert then updates ToUpdate. The two halves touch
// disjoint rows, so a failed append does not prevent the update; both
// errors are returned joined.
func (r *Reconciler) Apply(ctx context.Context, table string, plan Plan) (Applied, error) {
	var applied Applied
	var errs []error
	if len(plan.ToInsert) > 0 {
		n, err := r.Gateway.Append(ctx, table, plan.ToInsert)
		if err != nil {
			errs = append(errs, err)
		}
		applied.Inserted = n
	}
	if len(plan.ToUpdate) > 0 {
		n, err := r.Gateway.UpdateByID(ctx, table, plan.ToUpdate)
		if err != nil {
			errs = append(errs, err)
		}
		applied.Updated = n
	}
	return applied, errors.Join(errs...)
}

func coercionIssue(id string, c Column, v Value, err error, outcome string) *RowIssue {
	return &RowIssue{
		Column: string(c),
		Value:  v.String(),
		Reason: fmt.Sprintf("row %s: %v, %s", id, err, outcome),
	}
}
