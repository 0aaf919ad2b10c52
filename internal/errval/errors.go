package errval

import (
	"errors"
	"fmt"
)

var (
	ErrInternal = errors.New("internal server error")
	ErrNotFound = errors.New("not found")

	// State machine guards.
	ErrNoOpTransition        = errors.New("task is already in this status")
	ErrSystemControlledState = errors.New("Blocked status is system controlled")
	ErrInvalidStatus         = errors.New("invalid status value")

	// Dependency graph structural failures.
	ErrSelfDependency         = errors.New("task cannot depend on itself")
	ErrDuplicateDependency    = errors.New("duplicate task dependencies are not allowed")
	ErrCrossProjectDependency = errors.New("dependent tasks must belong to the same project")
	ErrCycleDetected          = errors.New("circular dependency detected")

	// Hierarchy and lifecycle failures.
	ErrStateFrozen            = errors.New("record is completed and no longer accepts changes")
	ErrSprintNameTaken        = errors.New("sprint with same name already exists in this project")
	ErrSprintOverlap          = errors.New("sprint dates overlap with an existing planned or active sprint")
	ErrActiveSprintDates      = errors.New("cannot modify dates of an active sprint")
	ErrSprintNotPlanned       = errors.New("only planned sprints can be deleted")
	ErrSprintHasTasks         = errors.New("cannot delete sprint with assigned tasks")
	ErrSprintTasksIncomplete  = errors.New("cannot complete sprint while some tasks are still incomplete")
	ErrSprintProjectMismatch  = errors.New("task and sprint must belong to the same project")
	ErrTaskAlreadyInSprint    = errors.New("task is already assigned to a sprint")
	ErrTaskNotInSprint        = errors.New("task is not assigned to any sprint")
	ErrTaskHasDependents      = errors.New("cannot delete task because other tasks depend on it")
	ErrManualHoursOutOfRange  = errors.New("manualHours must be between 0 and 24")
	ErrProjectBusy            = errors.New("another change to this project is in progress, try again")
	ErrSprintAlreadyComplete  = errors.New("sprint is already completed")
	ErrMissingRequiredFields  = errors.New("required fields are missing")
)

// InvalidTransitionError reports a status change outside the allowed table.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// PendingDependency describes one incomplete dependency blocking a transition.
type PendingDependency struct {
	ID     int32  `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// DependenciesPendingError rejects a transition while dependencies are not all
// Completed, listing exactly the incomplete ones.
type DependenciesPendingError struct {
	Pending []PendingDependency
}

func (e *DependenciesPendingError) Error() string {
	return fmt.Sprintf("cannot move task, all dependent tasks must be completed first (%d pending)", len(e.Pending))
}

// HoursExceededError rejects an hour allocation above the available budget of
// the date range.
type HoursExceededError struct {
	Allocated int32
	Available int32
}

func (e *HoursExceededError) Error() string {
	return fmt.Sprintf("allocated hours (%d) cannot exceed available hours (%d)", e.Allocated, e.Available)
}

// DateRangeViolationError rejects a child date range that does not nest inside
// its parent range, or a range whose end precedes its start.
type DateRangeViolationError struct {
	Reason string
}

func (e *DateRangeViolationError) Error() string {
	return e.Reason
}

// MisalignedChildError rejects a parent date edit that would leave an existing
// child outside the new range. The caller must update the child first.
type MisalignedChildError struct {
	ChildKind string
	ChildID   int32
	ChildName string
}

func (e *MisalignedChildError) Error() string {
	return fmt.Sprintf("date change would misalign existing %s dates (%s #%d), update %ss first",
		e.ChildKind, e.ChildName, e.ChildID, e.ChildKind)
}
