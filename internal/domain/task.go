package domain

import "time"

type TaskStatus string

const (
	TaskBlocked    TaskStatus = "Blocked"
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "In Progress"
	TaskTesting    TaskStatus = "Testing"
	TaskCompleted  TaskStatus = "Completed"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskBlocked, TaskPending, TaskInProgress, TaskTesting, TaskCompleted:
		return true
	default:
		return false
	}
}

// CanTransitionTo implements the explicit transition table. Blocked is not a
// drivable state: nothing transitions out of it explicitly, the engine restores
// the last active status when dependencies clear.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	switch s {
	case TaskPending:
		return target == TaskInProgress
	case TaskInProgress:
		return target == TaskTesting
	case TaskTesting:
		return target == TaskCompleted || target == TaskInProgress
	default:
		return false
	}
}

type Task struct {
	ID               int32      `json:"id"`
	ProjectID        int32      `json:"project_id"`
	SprintID         *int32     `json:"sprint_id"`
	AssignedTo       *int32     `json:"assigned_to"`
	CreatedBy        int32      `json:"created_by"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Status           TaskStatus `json:"status"`
	LastActiveStatus TaskStatus `json:"last_active_status"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
	ActualStartDate  *time.Time `json:"actual_start_date"`
	ActualEndDate    *time.Time `json:"actual_end_date"`
	AllocatedHours   int32      `json:"allocated_hours"`
	DependsOn        []int32    `json:"depends_on"`
	CreatedAtStamp   int64      `json:"created_at_stamp"`
	UpdatedAtStamp   int64      `json:"updated_at_stamp"`
}

// ActiveStatus returns the status the task would be in if it were not Blocked.
// LastActiveStatus is never itself Blocked; an empty value falls back to Pending.
func (t *Task) ActiveStatus() TaskStatus {
	if t.Status != TaskBlocked {
		return t.Status
	}
	if t.LastActiveStatus == "" || t.LastActiveStatus == TaskBlocked {
		return TaskPending
	}
	return t.LastActiveStatus
}
