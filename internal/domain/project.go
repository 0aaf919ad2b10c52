package domain

import "time"

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectOnHold    ProjectStatus = "on-hold"
)

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectOnHold:
		return true
	default:
		return false
	}
}

type Project struct {
	ID             int32         `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	ManagerID      int32         `json:"manager_id"`
	CreatedBy      int32         `json:"created_by"`
	Budget         int32         `json:"budget"`
	AllocatedHours int32         `json:"allocated_hours"`
	StartDate      *time.Time    `json:"start_date"`
	EndDate        *time.Time    `json:"end_date"`
	ActualEndDate  *time.Time    `json:"actual_end_date"`
	Status         ProjectStatus `json:"status"`
	CreatedAtStamp int64         `json:"created_at_stamp"`
	UpdatedAtStamp int64         `json:"updated_at_stamp"`
}
