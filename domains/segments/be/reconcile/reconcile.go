// Package reconcile computes the membership diff between the records currently
// assigned to a segment and the target set derived from its rule predicate.
// It is a pure set computation with no store dependency, so the hard part of
// clear-others reconciliation stays directly property-testable.
package reconcile

import "github.com/google/uuid"

// Diff is the outcome of comparing current membership against the target set.
type Diff struct {
	// ToAssign holds target members not currently assigned.
	ToAssign []uuid.UUID
	// ToUnassign holds current members no longer in the target set.
	ToUnassign []uuid.UUID
}

// Compute returns the diff taking membership from current to target. Order of
// the inputs is preserved in the outputs so bulk updates stay deterministic.
func Compute(current, target []uuid.UUID) Diff {
	inCurrent := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		inCurrent[id] = struct{}{}
	}
	inTarget := make(map[uuid.UUID]struct{}, len(target))
	for _, id := range target {
		inTarget[id] = struct{}{}
	}

	diff := Diff{}
	for _, id := range target {
		if _, ok := inCurrent[id]; !ok {
			diff.ToAssign = append(diff.ToAssign, id)
		}
	}
	for _, id := range current {
		if _, ok := inTarget[id]; !ok {
			diff.ToUnassign = append(diff.ToUnassign, id)
		}
	}
	return diff
}
