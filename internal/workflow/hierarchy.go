package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/errval"
	"github.com/mshirdel/projectflow/pkg/schedule"
)

type CreateProjectParams struct {
	Name           string
	Description    string
	ManagerID      int32
	Budget         int32
	AllocatedHours int32
	StartDate      *time.Time
	EndDate        *time.Time
	Status         domain.ProjectStatus
}

func (e *Engine) CreateProject(ctx context.Context, params CreateProjectParams, actor domain.Actor) (*domain.Project, error) {
	status := params.Status
	if status == "" {
		status = domain.ProjectActive
	}
	if !status.IsValid() {
		return nil, errval.ErrInvalidStatus
	}

	if err := schedule.ValidateOrder(params.StartDate, params.EndDate); err != nil {
		return nil, err
	}
	if err := schedule.ValidateHours(params.AllocatedHours, schedule.AvailableHours(params.StartDate, params.EndDate)); err != nil {
		return nil, err
	}

	project := &domain.Project{
		Name:           params.Name,
		Description:    params.Description,
		ManagerID:      params.ManagerID,
		CreatedBy:      actor.ID,
		Budget:         params.Budget,
		AllocatedHours: params.AllocatedHours,
		StartDate:      params.StartDate,
		EndDate:        params.EndDate,
		Status:         status,
	}

	return e.storage.InsertProject(ctx, project)
}

type UpdateProjectParams struct {
	ManagerID      *int32
	Budget         *int32
	AllocatedHours *int32
	StartDate      *time.Time
	EndDate        *time.Time
}

// UpdateProject edits project dates and budgets. A date change is rejected
// while any child sprint would fall outside the new range; the caller must
// realign sprints first.
func (e *Engine) UpdateProject(ctx context.Context, projectID int32, params UpdateProjectParams, actor domain.Actor) (*domain.Project, error) {
	unlock, err := e.lockProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := e.storage.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == domain.ProjectCompleted {
		return nil, errval.ErrStateFrozen
	}

	finalStart := project.StartDate
	if params.StartDate != nil {
		finalStart = params.StartDate
	}
	finalEnd := project.EndDate
	if params.EndDate != nil {
		finalEnd = params.EndDate
	}
	finalHours := project.AllocatedHours
	if params.AllocatedHours != nil {
		finalHours = *params.AllocatedHours
	}

	if err := schedule.ValidateOrder(finalStart, finalEnd); err != nil {
		return nil, err
	}
	if err := schedule.ValidateHours(finalHours, schedule.AvailableHours(finalStart, finalEnd)); err != nil {
		return nil, err
	}

	if params.StartDate != nil || params.EndDate != nil {
		sprints, err := e.storage.GetSprintsByProjectID(ctx, projectID)
		if err != nil {
			return nil, err
		}
		for _, sprint := range sprints {
			if schedule.ValidateContainment(&sprint.StartDate, &sprint.EndDate, finalStart, finalEnd, "project") != nil {
				return nil, &errval.MisalignedChildError{ChildKind: "sprint", ChildID: sprint.ID, ChildName: sprint.Name}
			}
		}
	}

	if params.ManagerID != nil {
		project.ManagerID = *params.ManagerID
	}
	if params.Budget != nil {
		project.Budget = *params.Budget
	}
	project.StartDate = finalStart
	project.EndDate = finalEnd
	project.AllocatedHours = finalHours

	if err := e.storage.UpdateProject(ctx, project); err != nil {
		return nil, err
	}

	return project, nil
}

type CreateSprintParams struct {
	ProjectID int32
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

func (e *Engine) CreateSprint(ctx context.Context, params CreateSprintParams, actor domain.Actor) (*domain.Sprint, error) {
	if params.Name == "" || params.ProjectID == 0 || params.StartDate.IsZero() || params.EndDate.IsZero() {
		return nil, errval.ErrMissingRequiredFields
	}
	if !params.StartDate.Before(params.EndDate) {
		return nil, &errval.DateRangeViolationError{Reason: "end date must be after start date"}
	}

	unlock, err := e.lockProject(ctx, params.ProjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := e.storage.GetProjectByID(ctx, params.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status == domain.ProjectCompleted {
		return nil, errval.ErrStateFrozen
	}

	if err := schedule.ValidateContainment(&params.StartDate, &params.EndDate, project.StartDate, project.EndDate, "project"); err != nil {
		return nil, err
	}

	existing, err := e.storage.FindSprintByName(ctx, params.ProjectID, params.Name)
	if err != nil && !errors.Is(err, errval.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, errval.ErrSprintNameTaken
	}

	overlapping, err := e.storage.FindOverlappingSprint(ctx, params.ProjectID, params.StartDate, params.EndDate,
		[]domain.SprintStatus{domain.SprintPlanned, domain.SprintActive})
	if err != nil && !errors.Is(err, errval.ErrNotFound) {
		return nil, err
	}
	if overlapping != nil {
		return nil, errval.ErrSprintOverlap
	}

	sprint := &domain.Sprint{
		ProjectID: params.ProjectID,
		Name:      params.Name,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
		Status:    domain.SprintPlanned,
	}

	return e.storage.InsertSprint(ctx, sprint)
}

type UpdateSprintParams struct {
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
}

// UpdateSprint edits a sprint. Completed sprints are immutable, active sprints
// may only be renamed, and a planned sprint's date change is rejected while
// any child task would fall outside the new range.
func (e *Engine) UpdateSprint(ctx context.Context, sprintID int32, params UpdateSprintParams, actor domain.Actor) (*domain.Sprint, error) {
	probe, err := e.storage.GetSprintByID(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockProject(ctx, probe.ProjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sprint, err := e.storage.GetSprintByID(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	project, err := e.storage.GetProjectByID(ctx, sprint.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status == domain.ProjectCompleted {
		return nil, errval.ErrStateFrozen
	}
	if sprint.Status == domain.SprintCompleted {
		return nil, errval.ErrStateFrozen
	}

	if sprint.Status == domain.SprintActive {
		if params.StartDate != nil || params.EndDate != nil {
			return nil, errval.ErrActiveSprintDates
		}
		if params.Name != nil {
			sprint.Name = *params.Name
		}
		if err := e.storage.UpdateSprint(ctx, sprint); err != nil {
			return nil, err
		}
		return sprint, nil
	}

	finalStart := sprint.StartDate
	if params.StartDate != nil {
		finalStart = *params.StartDate
	}
	finalEnd := sprint.EndDate
	if params.EndDate != nil {
		finalEnd = *params.EndDate
	}

	if finalStart.After(finalEnd) {
		return nil, &errval.DateRangeViolationError{Reason: "sprint startDate must be before endDate"}
	}
	if err := schedule.ValidateContainment(&finalStart, &finalEnd, project.StartDate, project.EndDate, "project"); err != nil {
		return nil, err
	}

	if params.StartDate != nil || params.EndDate != nil {
		tasks, err := e.storage.GetTasksBySprintID(ctx, sprintID)
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			if schedule.ValidateContainment(task.StartDate, task.EndDate, &finalStart, &finalEnd, "sprint") != nil {
				return nil, &errval.MisalignedChildError{ChildKind: "task", ChildID: task.ID, ChildName: task.Title}
			}
		}
	}

	if params.Name != nil {
		sprint.Name = *params.Name
	}
	sprint.StartDate = finalStart
	sprint.EndDate = finalEnd

	if err := e.storage.UpdateSprint(ctx, sprint); err != nil {
		return nil, err
	}

	return sprint, nil
}

// CompleteSprint marks a sprint Completed once every child task is Completed,
// stamping the actual end date. A completed sprint is frozen afterwards.
func (e *Engine) CompleteSprint(ctx context.Context, sprintID int32, actor domain.Actor) (*domain.Sprint, error) {
	probe, err := e.storage.GetSprintByID(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockProject(ctx, probe.ProjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sprint, err := e.storage.GetSprintByID(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	if sprint.Status == domain.SprintCompleted {
		return nil, errval.ErrSprintAlreadyComplete
	}

	tasks, err := e.storage.GetTasksBySprintID(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if task.Status != domain.TaskCompleted {
			return nil, errval.ErrSprintTasksIncomplete
		}
	}

	now := e.now()
	sprint.Status = domain.SprintCompleted
	sprint.ActualEndDate = &now

	if err := e.storage.UpdateSprint(ctx, sprint); err != nil {
		return nil, err
	}

	return sprint, nil
}

// DeleteSprint removes a planned sprint with no child tasks.
func (e *Engine) DeleteSprint(ctx context.Context, sprintID int32, actor domain.Actor) error {
	sprint, err := e.storage.GetSprintByID(ctx, sprintID)
	if err != nil {
		return err
	}

	unlock, err := e.lockProject(ctx, sprint.ProjectID)
	if err != nil {
		return err
	}
	defer unlock()

	if sprint.Status != domain.SprintPlanned {
		return errval.ErrSprintNotPlanned
	}

	tasks, err := e.storage.GetTasksBySprintID(ctx, sprintID)
	if err != nil {
		return err
	}
	if len(tasks) > 0 {
		return errval.ErrSprintHasTasks
	}

	return e.storage.DeleteSprint(ctx, sprintID)
}

// AssignTaskToSprint attaches an unassigned task to a sprint of the same
// project, validating date containment when the task already has dates.
func (e *Engine) AssignTaskToSprint(ctx context.Context, sprintID, taskID int32, actor domain.Actor) (*domain.Task, error) {
	probe, err := e.storage.GetSprintByID(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockProject(ctx, probe.ProjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sprint, err := e.storage.GetSprintByID(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	if sprint.Status == domain.SprintCompleted {
		return nil, errval.ErrStateFrozen
	}

	task, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ProjectID != sprint.ProjectID {
		return nil, errval.ErrSprintProjectMismatch
	}

	project, err := e.storage.GetProjectByID(ctx, sprint.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status == domain.ProjectCompleted {
		return nil, errval.ErrStateFrozen
	}

	if task.SprintID != nil {
		return nil, errval.ErrTaskAlreadyInSprint
	}

	if err := schedule.ValidateOrder(task.StartDate, task.EndDate); err != nil {
		return nil, err
	}
	if err := schedule.ValidateContainment(task.StartDate, task.EndDate, &sprint.StartDate, &sprint.EndDate, "sprint"); err != nil {
		return nil, err
	}

	task.SprintID = &sprint.ID
	if err := e.storage.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// RemoveTaskFromSprint detaches a task from its sprint unless either parent is
// frozen.
func (e *Engine) RemoveTaskFromSprint(ctx context.Context, taskID int32, actor domain.Actor) (*domain.Task, error) {
	probe, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockProject(ctx, probe.ProjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	task, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.SprintID == nil {
		return nil, errval.ErrTaskNotInSprint
	}

	sprint, err := e.storage.GetSprintByID(ctx, *task.SprintID)
	if err != nil {
		return nil, err
	}
	if sprint.Status == domain.SprintCompleted {
		return nil, errval.ErrStateFrozen
	}

	project, err := e.storage.GetProjectByID(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status == domain.ProjectCompleted {
		return nil, errval.ErrStateFrozen
	}

	task.SprintID = nil
	if err := e.storage.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}
