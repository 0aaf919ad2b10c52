// Package schedule holds the pure date-range and hour-budget validators used
// by the project, sprint and task editors.
package schedule

import (
	"fmt"
	"time"

	"github.com/mshirdel/projectflow/internal/errval"
)

// HoursPerDay is a fixed weekly capacity heuristic used purely as an upper
// bound on allocations, not an actual scheduling calendar.
const HoursPerDay = 7

// AvailableHours returns the hour budget of an inclusive date range. A missing
// date or a range whose end precedes its start yields 0.
func AvailableHours(start, end *time.Time) int32 {
	if start == nil || end == nil {
		return 0
	}
	if end.Before(*start) {
		return 0
	}

	days := int32(end.Sub(*start).Hours()/24) + 1
	return days * HoursPerDay
}

// ValidateHours fails when the allocation exceeds the available budget.
func ValidateHours(allocated, available int32) error {
	if allocated > available {
		return &errval.HoursExceededError{Allocated: allocated, Available: available}
	}

	return nil
}

// ValidateOrder fails when end precedes start. Nil bounds are skipped.
func ValidateOrder(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return &errval.DateRangeViolationError{Reason: "endDate cannot be earlier than startDate"}
	}

	return nil
}

// ValidateContainment fails unless the child range nests inside the parent
// range. Nil bounds on either side are treated as unbounded and skipped.
func ValidateContainment(childStart, childEnd, parentStart, parentEnd *time.Time, parentKind string) error {
	if childStart != nil && parentStart != nil && childStart.Before(*parentStart) {
		return &errval.DateRangeViolationError{
			Reason: fmt.Sprintf("start date cannot be before %s start date", parentKind),
		}
	}

	if childEnd != nil && parentEnd != nil && childEnd.After(*parentEnd) {
		return &errval.DateRangeViolationError{
			Reason: fmt.Sprintf("end date cannot be after %s end date", parentKind),
		}
	}

	return nil
}
