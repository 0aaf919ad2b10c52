package domain

// Router request bindings. Dates travel as "2006-01-02" strings and are parsed
// by the HTTP layer before reaching the engine.

type RouterRequestCreateProject struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	ManagerID      int32  `json:"manager_id" binding:"required"`
	Budget         int32  `json:"budget"`
	AllocatedHours int32  `json:"allocated_hours"`
	StartDate      string `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate        string `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
	Status         string `json:"status" binding:"omitempty,validate_project_status"`
}

type RouterRequestUpdateProject struct {
	ManagerID      *int32 `json:"manager_id"`
	Budget         *int32 `json:"budget"`
	AllocatedHours *int32 `json:"allocated_hours"`
	StartDate      string `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate        string `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
}

type RouterRequestCreateSprint struct {
	ProjectID int32  `json:"project_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	StartDate string `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" binding:"required,datetime=2006-01-02"`
}

type RouterRequestUpdateSprint struct {
	Name      *string `json:"name"`
	StartDate string  `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string  `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
}

type RouterRequestAssignTaskToSprint struct {
	SprintID int32 `json:"sprint_id" binding:"required"`
	TaskID   int32 `json:"task_id" binding:"required"`
}

type RouterRequestCreateTask struct {
	ProjectID      int32   `json:"project_id" binding:"required"`
	SprintID       *int32  `json:"sprint_id"`
	AssignedTo     *int32  `json:"assigned_to"`
	Title          string  `json:"title" binding:"required"`
	Description    string  `json:"description"`
	DependsOn      []int32 `json:"depends_on"`
	StartDate      string  `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate        string  `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
	AllocatedHours int32   `json:"allocated_hours"`
	Status         string  `json:"status" binding:"omitempty,validate_task_status"`
}

type RouterRequestUpdateTask struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	AssignedTo     *int32  `json:"assigned_to"`
	DependsOn      []int32 `json:"depends_on"`
	StartDate      string  `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate        string  `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
	AllocatedHours *int32  `json:"allocated_hours"`
	Status         *string `json:"status" binding:"omitempty,validate_task_status"`
}

type RouterRequestTransitionTask struct {
	Status      string `json:"status" binding:"required"`
	ManualHours int32  `json:"manual_hours"`
}

type RouterRequestDependencies struct {
	DependsOn []int32 `json:"depends_on" binding:"required"`
}
