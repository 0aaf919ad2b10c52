// Package workflow implements the task dependency and status workflow engine:
// it keeps the per-project dependency graph acyclic, owns the task status
// state machine including the system-only Blocked overlay, and validates date
// and hour containment through the project/sprint/task hierarchy.
package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/errval"
	"github.com/mshirdel/projectflow/pkg/schedule"
)

type Engine struct {
	storage         domain.Storage
	locker          domain.DistributedLock
	events          domain.Queue
	eventsQueueName string
	lockTTL         time.Duration
	now             func() time.Time
}

func NewEngine(storage domain.Storage, locker domain.DistributedLock, events domain.Queue, eventsQueueName string, lockTTL time.Duration) *Engine {
	return &Engine{
		storage:         storage,
		locker:          locker,
		events:          events,
		eventsQueueName: eventsQueueName,
		lockTTL:         lockTTL,
		now:             time.Now,
	}
}

// lockProject serializes mutating operations on one project's hierarchy and
// dependency graph. Interleaved cycle checks across two concurrent dependency
// edits are unsafe because each reads a snapshot of the persisted edges.
func (e *Engine) lockProject(ctx context.Context, projectID int32) (unlock func(), err error) {
	if e.locker == nil {
		return func() {}, nil
	}

	lockKey := "project_lock:" + strconv.FormatInt(int64(projectID), 10)
	operation := func() error {
		locked, lockErr := e.locker.Lock(ctx, lockKey, e.lockTTL)
		if lockErr != nil {
			return backoff.Permanent(lockErr)
		}
		if !locked {
			return errval.ErrProjectBusy
		}
		return nil
	}

	err = backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 5))
	if err != nil {
		return nil, err
	}

	return func() {
		if unlockErr := e.locker.Unlock(ctx, lockKey); unlockErr != nil {
			slog.Error("error while unlocking project lock", "lock_key", lockKey, "error", unlockErr.Error())
		}
	}, nil
}

type CreateTaskParams struct {
	ProjectID       int32
	SprintID        *int32
	AssignedTo      *int32
	Title           string
	Description     string
	DependsOn       []int32
	StartDate       *time.Time
	EndDate         *time.Time
	AllocatedHours  int32
	RequestedStatus domain.TaskStatus
}

// CreateTask validates and persists a new task. When any dependency is not yet
// Completed the stored status is forced to Blocked and the otherwise-requested
// status is preserved in lastActiveStatus.
func (e *Engine) CreateTask(ctx context.Context, params CreateTaskParams, actor domain.Actor) (*domain.Task, error) {
	requested := params.RequestedStatus
	if requested == "" {
		requested = domain.TaskPending
	}
	if requested == domain.TaskBlocked {
		return nil, errval.ErrSystemControlledState
	}
	if !requested.IsValid() {
		return nil, errval.ErrInvalidStatus
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

	if params.SprintID != nil {
		sprint, err := e.storage.GetSprintByID(ctx, *params.SprintID)
		if err != nil {
			return nil, err
		}
		if sprint.ProjectID != params.ProjectID {
			return nil, errval.ErrSprintProjectMismatch
		}
		if sprint.Status == domain.SprintCompleted {
			return nil, errval.ErrStateFrozen
		}
		if err := schedule.ValidateContainment(params.StartDate, params.EndDate, &sprint.StartDate, &sprint.EndDate, "sprint"); err != nil {
			return nil, err
		}
	}

	if err := e.validateDependencySet(ctx, params.ProjectID, 0, params.DependsOn); err != nil {
		return nil, err
	}

	if err := schedule.ValidateOrder(params.StartDate, params.EndDate); err != nil {
		return nil, err
	}
	if err := schedule.ValidateContainment(params.StartDate, params.EndDate, project.StartDate, project.EndDate, "project"); err != nil {
		return nil, err
	}
	if params.StartDate != nil && params.EndDate != nil {
		if err := schedule.ValidateHours(params.AllocatedHours, schedule.AvailableHours(params.StartDate, params.EndDate)); err != nil {
			return nil, err
		}
	}

	finalStatus := requested
	if len(params.DependsOn) > 0 {
		pending, err := e.pendingDependencies(ctx, params.DependsOn)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			finalStatus = domain.TaskBlocked
		}
	}

	task := &domain.Task{
		ProjectID:        params.ProjectID,
		SprintID:         params.SprintID,
		AssignedTo:       params.AssignedTo,
		CreatedBy:        actor.ID,
		Title:            params.Title,
		Description:      params.Description,
		Status:           finalStatus,
		LastActiveStatus: requested,
		StartDate:        params.StartDate,
		EndDate:          params.EndDate,
		AllocatedHours:   params.AllocatedHours,
		DependsOn:        params.DependsOn,
	}

	return e.storage.InsertTask(ctx, task)
}

type UpdateTaskParams struct {
	Title          *string
	Description    *string
	AssignedTo     *int32
	DependsOn      []int32 // nil leaves the dependency set unchanged
	StartDate      *time.Time
	EndDate        *time.Time
	AllocatedHours *int32
	Status         *domain.TaskStatus
}

// UpdateTask applies a general edit. Dependency changes go through the full
// structural and cycle validation, date changes through containment, and the
// Blocked overlay is recomputed afterwards: unmet dependencies force Blocked,
// a Blocked task whose dependencies have all completed is restored to its last
// active status.
func (e *Engine) UpdateTask(ctx context.Context, taskID int32, params UpdateTaskParams, actor domain.Actor) (*domain.Task, error) {
	if params.Status != nil {
		if *params.Status == domain.TaskBlocked {
			return nil, errval.ErrSystemControlledState
		}
		if !params.Status.IsValid() {
			return nil, errval.ErrInvalidStatus
		}
	}

	probe, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockProject(ctx, probe.ProjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under the lock so validation runs against a stable snapshot.
	task, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	project, err := e.storage.GetProjectByID(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status == domain.ProjectCompleted {
		return nil, errval.ErrStateFrozen
	}

	var sprint *domain.Sprint
	if task.SprintID != nil {
		sprint, err = e.storage.GetSprintByID(ctx, *task.SprintID)
		if err != nil {
			return nil, err
		}
		if sprint.Status == domain.SprintCompleted {
			return nil, errval.ErrStateFrozen
		}
	}

	deps := task.DependsOn
	if params.DependsOn != nil {
		deps = params.DependsOn
		if err := e.validateDependencySet(ctx, task.ProjectID, task.ID, deps); err != nil {
			return nil, err
		}
		if len(deps) > 0 {
			cyclic, err := e.detectCycle(ctx, task.ID, deps)
			if err != nil {
				return nil, err
			}
			if cyclic {
				return nil, errval.ErrCycleDetected
			}
		}
	}

	finalStart := task.StartDate
	if params.StartDate != nil {
		finalStart = params.StartDate
	}
	finalEnd := task.EndDate
	if params.EndDate != nil {
		finalEnd = params.EndDate
	}
	finalHours := task.AllocatedHours
	if params.AllocatedHours != nil {
		finalHours = *params.AllocatedHours
	}

	if err := schedule.ValidateOrder(finalStart, finalEnd); err != nil {
		return nil, err
	}
	if err := schedule.ValidateContainment(finalStart, finalEnd, project.StartDate, project.EndDate, "project"); err != nil {
		return nil, err
	}
	if sprint != nil {
		if err := schedule.ValidateContainment(finalStart, finalEnd, &sprint.StartDate, &sprint.EndDate, "sprint"); err != nil {
			return nil, err
		}
	}
	if finalStart != nil && finalEnd != nil {
		if err := schedule.ValidateHours(finalHours, schedule.AvailableHours(finalStart, finalEnd)); err != nil {
			return nil, err
		}
	}

	finalStatus := task.Status
	if params.Status != nil {
		finalStatus = *params.Status
	}

	lastActive := task.LastActiveStatus
	if task.Status != domain.TaskBlocked {
		lastActive = task.Status
	}

	pending, err := e.pendingDependencies(ctx, deps)
	if err != nil {
		return nil, err
	}
	if len(deps) > 0 && len(pending) > 0 {
		if finalStatus != domain.TaskBlocked && finalStatus != task.Status {
			// An explicitly requested status survives the blocking as the
			// status the task returns to once its dependencies complete.
			lastActive = finalStatus
		}
		finalStatus = domain.TaskBlocked
	} else if task.Status == domain.TaskBlocked {
		finalStatus = lastActive
		if finalStatus == "" || finalStatus == domain.TaskBlocked {
			finalStatus = domain.TaskPending
		}
	}

	if params.Title != nil {
		task.Title = *params.Title
	}
	if params.Description != nil {
		task.Description = *params.Description
	}
	if params.AssignedTo != nil {
		task.AssignedTo = params.AssignedTo
	}
	task.DependsOn = deps
	task.StartDate = finalStart
	task.EndDate = finalEnd
	task.AllocatedHours = finalHours
	task.Status = finalStatus
	task.LastActiveStatus = lastActive

	if err := e.storage.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// AddDependencyEdges replaces the task's dependency set after structural and
// cycle validation, then recomputes the Blocked overlay.
func (e *Engine) AddDependencyEdges(ctx context.Context, taskID int32, candidateDeps []int32, actor domain.Actor) (*domain.Task, error) {
	return e.UpdateTask(ctx, taskID, UpdateTaskParams{DependsOn: candidateDeps}, actor)
}

// TransitionResult reports a committed explicit transition together with the
// dependents the completion cascade unblocked.
type TransitionResult struct {
	Task      *domain.Task   `json:"task"`
	Unblocked []*domain.Task `json:"unblocked"`
}

// TransitionTaskStatus performs an explicit, actor-requested status change.
// Guards run in order: Blocked is never requestable, no-op transitions fail,
// the transition table is enforced, dependency completeness is re-validated,
// and manualHours must stay within a day. The task update, its history row and
// any cascade updates commit as one transaction.
func (e *Engine) TransitionTaskStatus(ctx context.Context, taskID int32, toStatus domain.TaskStatus, manualHours int32, actor domain.Actor) (*TransitionResult, error) {
	if toStatus == domain.TaskBlocked {
		return nil, errval.ErrSystemControlledState
	}
	if !toStatus.IsValid() {
		return nil, errval.ErrInvalidStatus
	}

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

	fromStatus := task.Status
	if fromStatus == toStatus {
		return nil, errval.ErrNoOpTransition
	}
	if !fromStatus.CanTransitionTo(toStatus) {
		return nil, &errval.InvalidTransitionError{From: string(fromStatus), To: string(toStatus)}
	}

	// Defensive re-validation: blocking should already have kept dependent
	// tasks in Blocked, but the dependency set is re-checked before commit.
	pending, err := e.pendingDependencies(ctx, task.DependsOn)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, &errval.DependenciesPendingError{Pending: pending}
	}

	if manualHours < 0 || manualHours > 24 {
		return nil, errval.ErrManualHoursOutOfRange
	}

	now := e.now()
	if toStatus == domain.TaskInProgress && task.ActualStartDate == nil {
		task.ActualStartDate = &now
	}
	if toStatus == domain.TaskCompleted && task.ActualEndDate == nil {
		task.ActualEndDate = &now
	}
	task.Status = toStatus
	task.LastActiveStatus = toStatus

	updates := []*domain.Task{task}
	history := []*domain.TaskStatusHistory{{
		TaskID:         task.ID,
		ProjectID:      task.ProjectID,
		SprintID:       task.SprintID,
		FromStatus:     fromStatus,
		ToStatus:       toStatus,
		ManualHours:    manualHours,
		ChangedBy:      actor.ID,
		ChangedAtStamp: now.Unix(),
	}}
	eventTasks := []*domain.Task{task}

	var unblocked []*domain.Task
	if toStatus == domain.TaskCompleted {
		unblocked, err = e.cascadeUnblock(ctx, task)
		if err != nil {
			return nil, err
		}
		for _, depTask := range unblocked {
			updates = append(updates, depTask)
			eventTasks = append(eventTasks, depTask)
			history = append(history, &domain.TaskStatusHistory{
				TaskID:         depTask.ID,
				ProjectID:      depTask.ProjectID,
				SprintID:       depTask.SprintID,
				FromStatus:     domain.TaskBlocked,
				ToStatus:       depTask.Status,
				ManualHours:    0,
				ChangedBy:      actor.ID,
				ChangedAtStamp: now.Unix(),
			})
		}
	}

	if err := e.storage.CommitTransition(ctx, updates, history); err != nil {
		return nil, err
	}

	for i, record := range history {
		e.publishStatusEvent(eventTasks[i], record)
	}

	return &TransitionResult{Task: task, Unblocked: unblocked}, nil
}

// cascadeUnblock scans the direct dependents of a just-completed task that are
// currently Blocked and restores those whose dependencies are now all
// Completed. The pass is single-hop: dependents of the newly-unblocked tasks
// are not re-checked within the same operation; a later update, transition or
// recovery sweep propagates further down a chain.
func (e *Engine) cascadeUnblock(ctx context.Context, completed *domain.Task) ([]*domain.Task, error) {
	dependents, err := e.storage.GetBlockedTasksDependingOn(ctx, completed.ID)
	if err != nil {
		return nil, err
	}

	var unblocked []*domain.Task
	for _, depTask := range dependents {
		stillPending, err := e.pendingDependencies(ctx, depTask.DependsOn)
		if err != nil {
			return nil, err
		}

		// The triggering task commits as Completed in the same transaction,
		// so it never counts as pending here.
		satisfied := true
		for _, p := range stillPending {
			if p.ID != completed.ID {
				satisfied = false
				break
			}
		}
		if !satisfied {
			continue
		}

		depTask.Status = depTask.ActiveStatus()
		unblocked = append(unblocked, depTask)
	}

	return unblocked, nil
}

// DeleteTask removes a task that nothing depends on, unless its project is
// frozen.
func (e *Engine) DeleteTask(ctx context.Context, taskID int32, actor domain.Actor) error {
	task, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return err
	}

	unlock, err := e.lockProject(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	defer unlock()

	project, err := e.storage.GetProjectByID(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	if project.Status == domain.ProjectCompleted {
		return errval.ErrStateFrozen
	}

	dependents, err := e.storage.GetTasksDependingOn(ctx, taskID)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return errval.ErrTaskHasDependents
	}

	return e.storage.DeleteTask(ctx, taskID)
}

func (e *Engine) GetTask(ctx context.Context, taskID int32) (*domain.Task, error) {
	return e.storage.GetTaskByID(ctx, taskID)
}

func (e *Engine) GetTaskStatusHistory(ctx context.Context, taskID int32) ([]*domain.TaskStatusHistory, error) {
	return e.storage.GetTaskStatusHistory(ctx, taskID)
}

// ReconcileBlockedTasks sweeps every Blocked task and restores those whose
// dependencies have all completed. It picks up cascades missed across crashes
// and the deeper chain levels the single-hop completion cascade leaves behind.
func (e *Engine) ReconcileBlockedTasks(ctx context.Context, actor domain.Actor) (int, error) {
	blockedTasks, err := e.storage.GetTasksByStatus(ctx, domain.TaskBlocked)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, task := range blockedTasks {
		count, err := e.reconcileOne(ctx, task.ID, actor)
		if err != nil {
			slog.Error("error while reconciling blocked task", "task_id", task.ID, "error", err.Error())
			continue
		}
		reconciled += count
	}

	return reconciled, nil
}

func (e *Engine) reconcileOne(ctx context.Context, taskID int32, actor domain.Actor) (int, error) {
	probe, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return 0, err
	}

	unlock, err := e.lockProject(ctx, probe.ProjectID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	task, err := e.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if task.Status != domain.TaskBlocked {
		return 0, nil
	}

	pending, err := e.pendingDependencies(ctx, task.DependsOn)
	if err != nil {
		return 0, err
	}
	if len(pending) > 0 {
		return 0, nil
	}

	now := e.now()
	restored := task.ActiveStatus()
	record := &domain.TaskStatusHistory{
		TaskID:         task.ID,
		ProjectID:      task.ProjectID,
		SprintID:       task.SprintID,
		FromStatus:     domain.TaskBlocked,
		ToStatus:       restored,
		ManualHours:    0,
		ChangedBy:      actor.ID,
		ChangedAtStamp: now.Unix(),
	}
	task.Status = restored

	if err := e.storage.CommitTransition(ctx, []*domain.Task{task}, []*domain.TaskStatusHistory{record}); err != nil {
		return 0, err
	}

	e.publishStatusEvent(task, record)
	return 1, nil
}

// publishStatusEvent pushes a committed transition to the status events queue.
// Failures are logged and swallowed: the notification stream is best effort
// and must never fail an already-committed operation.
func (e *Engine) publishStatusEvent(task *domain.Task, record *domain.TaskStatusHistory) {
	if e.events == nil {
		return
	}

	event := domain.TaskStatusEvent{
		TaskID:         record.TaskID,
		ProjectID:      record.ProjectID,
		SprintID:       record.SprintID,
		Title:          task.Title,
		FromStatus:     record.FromStatus,
		ToStatus:       record.ToStatus,
		ChangedBy:      record.ChangedBy,
		ChangedAtStamp: record.ChangedAtStamp,
	}

	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("error while marshalling status event", "task_id", record.TaskID, "error", err.Error())
		return
	}

	if err := e.events.PublishMessage(e.eventsQueueName, string(body)); err != nil {
		slog.Error("error while publishing status event", "task_id", record.TaskID, "error", err.Error())
	}
}
