package domain

// TaskStatusHistory is an append-only record of one accepted status transition,
// including transitions the engine performs itself (cascade unblocks).
type TaskStatusHistory struct {
	ID             int32      `json:"-"`
	TaskID         int32      `json:"task_id"`
	ProjectID      int32      `json:"project_id"`
	SprintID       *int32     `json:"sprint_id"`
	FromStatus     TaskStatus `json:"from_status"`
	ToStatus       TaskStatus `json:"to_status"`
	ManualHours    int32      `json:"manual_hours"`
	ChangedBy      int32      `json:"changed_by"`
	ChangedAtStamp int64      `json:"changed_at_stamp"`
}

// TaskStatusEvent is the message published to the status events queue after a
// transition has been committed.
type TaskStatusEvent struct {
	TaskID         int32      `json:"task_id"`
	ProjectID      int32      `json:"project_id"`
	SprintID       *int32     `json:"sprint_id"`
	Title          string     `json:"title"`
	FromStatus     TaskStatus `json:"from_status"`
	ToStatus       TaskStatus `json:"to_status"`
	ChangedBy      int32      `json:"changed_by"`
	ChangedAtStamp int64      `json:"changed_at_stamp"`
}
