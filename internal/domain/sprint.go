package domain

import "time"

type SprintStatus string

const (
	SprintPlanned   SprintStatus = "Planned"
	SprintActive    SprintStatus = "Active"
	SprintCompleted SprintStatus = "Completed"
	SprintExpired   SprintStatus = "Expired"
)

func (s SprintStatus) IsValid() bool {
	switch s {
	case SprintPlanned, SprintActive, SprintCompleted, SprintExpired:
		return true
	default:
		return false
	}
}

type Sprint struct {
	ID             int32        `json:"id"`
	ProjectID      int32        `json:"project_id"`
	Name           string       `json:"name"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	ActualEndDate  *time.Time   `json:"actual_end_date"`
	Status         SprintStatus `json:"status"`
	CreatedAtStamp int64        `json:"created_at_stamp"`
	UpdatedAtStamp int64        `json:"updated_at_stamp"`
}
