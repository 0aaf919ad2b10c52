package workflow

import (
	"context"
	"errors"

	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/errval"
)

// validateDependencySet runs the structural checks that precede cycle
// detection. Each failure is independent: self reference, duplicates, then
// existence within the pivot's project. pivotID is 0 when the pivot task has
// not been created yet.
func (e *Engine) validateDependencySet(ctx context.Context, projectID, pivotID int32, deps []int32) error {
	if len(deps) == 0 {
		return nil
	}

	seen := make(map[int32]struct{}, len(deps))
	for _, depID := range deps {
		if pivotID != 0 && depID == pivotID {
			return errval.ErrSelfDependency
		}

		if _, dup := seen[depID]; dup {
			return errval.ErrDuplicateDependency
		}
		seen[depID] = struct{}{}
	}

	depTasks, err := e.storage.GetTasksByIDs(ctx, deps)
	if err != nil {
		return err
	}

	if len(depTasks) != len(deps) {
		return errval.ErrCrossProjectDependency
	}
	for _, depTask := range depTasks {
		if depTask.ProjectID != projectID {
			return errval.ErrCrossProjectDependency
		}
	}

	return nil
}

// detectCycle reports whether accepting candidateDeps as the dependency set of
// pivotID, combined with the edges already persisted for all other tasks,
// creates a cycle reachable back to pivotID. The traversal is rebuilt from
// stored edges on every call; the visited set is scoped to this call only.
func (e *Engine) detectCycle(ctx context.Context, pivotID int32, candidateDeps []int32) (bool, error) {
	visited := make(map[int32]struct{})

	var visit func(taskID int32) (bool, error)
	visit = func(taskID int32) (bool, error) {
		if taskID == pivotID {
			return true, nil
		}

		if _, done := visited[taskID]; done {
			return false, nil
		}
		visited[taskID] = struct{}{}

		task, err := e.storage.GetTaskByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				return false, nil
			}
			return false, err
		}

		for _, depID := range task.DependsOn {
			found, err := visit(depID)
			if err != nil || found {
				return found, err
			}
		}

		return false, nil
	}

	for _, depID := range candidateDeps {
		found, err := visit(depID)
		if err != nil || found {
			return found, err
		}
	}

	return false, nil
}

// pendingDependencies returns the dependencies of the given set that are not
// yet Completed, with enough detail to render a useful rejection message.
func (e *Engine) pendingDependencies(ctx context.Context, deps []int32) ([]errval.PendingDependency, error) {
	if len(deps) == 0 {
		return nil, nil
	}

	depTasks, err := e.storage.GetTasksByIDs(ctx, deps)
	if err != nil {
		return nil, err
	}

	var pending []errval.PendingDependency
	for _, depTask := range depTasks {
		if depTask.Status != domain.TaskCompleted {
			pending = append(pending, errval.PendingDependency{
				ID:     depTask.ID,
				Title:  depTask.Title,
				Status: string(depTask.Status),
			})
		}
	}

	return pending, nil
}
