// Package memstore is an in-memory implementation of domain.Storage used by
// tests and local development. It mirrors the postgres adapter's semantics:
// not-found lookups return errval.ErrNotFound and CommitTransition applies all
// of its writes under one critical section.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/errval"
)

type Storage struct {
	mu           sync.Mutex
	projects     map[int32]*domain.Project
	sprints      map[int32]*domain.Sprint
	tasks        map[int32]*domain.Task
	history      []*domain.TaskStatusHistory
	nextID       int32
	nextRecordID int32
}

func New() *Storage {
	return &Storage{
		projects: map[int32]*domain.Project{},
		sprints:  map[int32]*domain.Sprint{},
		tasks:    map[int32]*domain.Task{},
		nextID:   1,
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) allocateID() int32 {
	id := s.nextID
	s.nextID++
	return id
}

func copyProject(p *domain.Project) *domain.Project {
	clone := *p
	return &clone
}

func copySprint(sp *domain.Sprint) *domain.Sprint {
	clone := *sp
	return &clone
}

func copyTask(t *domain.Task) *domain.Task {
	clone := *t
	clone.DependsOn = append([]int32(nil), t.DependsOn...)
	return &clone
}

func (s *Storage) GetProjectByID(ctx context.Context, ID int32) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[ID]
	if !ok {
		return nil, errval.ErrNotFound
	}
	return copyProject(project), nil
}

func (s *Storage) InsertProject(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowStamp := time.Now().UTC().Unix()
	clone := copyProject(project)
	clone.ID = s.allocateID()
	clone.CreatedAtStamp = nowStamp
	clone.UpdatedAtStamp = nowStamp
	s.projects[clone.ID] = clone
	return copyProject(clone), nil
}

func (s *Storage) UpdateProject(ctx context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[project.ID]; !ok {
		return errval.ErrNotFound
	}
	clone := copyProject(project)
	clone.UpdatedAtStamp = time.Now().UTC().Unix()
	s.projects[project.ID] = clone
	return nil
}

func (s *Storage) GetSprintByID(ctx context.Context, ID int32) (*domain.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sprint, ok := s.sprints[ID]
	if !ok {
		return nil, errval.ErrNotFound
	}
	return copySprint(sprint), nil
}

func (s *Storage) GetSprintsByProjectID(ctx context.Context, projectID int32) ([]*domain.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sprints []*domain.Sprint
	for _, sprint := range s.sprints {
		if sprint.ProjectID == projectID {
			sprints = append(sprints, copySprint(sprint))
		}
	}
	sort.Slice(sprints, func(i, j int) bool { return sprints[i].ID < sprints[j].ID })
	return sprints, nil
}

func (s *Storage) FindSprintByName(ctx context.Context, projectID int32, name string) (*domain.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sprint := range s.sprints {
		if sprint.ProjectID == projectID && strings.EqualFold(sprint.Name, name) {
			return copySprint(sprint), nil
		}
	}
	return nil, errval.ErrNotFound
}

func (s *Storage) FindOverlappingSprint(ctx context.Context, projectID int32, start, end time.Time, statuses []domain.SprintStatus) (*domain.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sprint := range s.sprints {
		if sprint.ProjectID != projectID {
			continue
		}
		matched := false
		for _, status := range statuses {
			if sprint.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if !sprint.StartDate.After(end) && !sprint.EndDate.Before(start) {
			return copySprint(sprint), nil
		}
	}
	return nil, errval.ErrNotFound
}

func (s *Storage) InsertSprint(ctx context.Context, sprint *domain.Sprint) (*domain.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowStamp := time.Now().UTC().Unix()
	clone := copySprint(sprint)
	clone.ID = s.allocateID()
	clone.CreatedAtStamp = nowStamp
	clone.UpdatedAtStamp = nowStamp
	s.sprints[clone.ID] = clone
	return copySprint(clone), nil
}

func (s *Storage) UpdateSprint(ctx context.Context, sprint *domain.Sprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sprints[sprint.ID]; !ok {
		return errval.ErrNotFound
	}
	clone := copySprint(sprint)
	clone.UpdatedAtStamp = time.Now().UTC().Unix()
	s.sprints[sprint.ID] = clone
	return nil
}

func (s *Storage) DeleteSprint(ctx context.Context, ID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sprints[ID]; !ok {
		return errval.ErrNotFound
	}
	delete(s.sprints, ID)
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, ID int32) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[ID]
	if !ok {
		return nil, errval.ErrNotFound
	}
	return copyTask(task), nil
}

func (s *Storage) GetTasksByIDs(ctx context.Context, IDs []int32) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*domain.Task
	for _, id := range IDs {
		if task, ok := s.tasks[id]; ok {
			tasks = append(tasks, copyTask(task))
		}
	}
	return tasks, nil
}

func (s *Storage) GetTasksBySprintID(ctx context.Context, sprintID int32) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if task.SprintID != nil && *task.SprintID == sprintID {
			tasks = append(tasks, copyTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (s *Storage) GetTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if task.Status == status {
			tasks = append(tasks, copyTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (s *Storage) GetTasksDependingOn(ctx context.Context, taskID int32) ([]*domain.Task, error) {
	return s.dependents(taskID, false)
}

func (s *Storage) GetBlockedTasksDependingOn(ctx context.Context, taskID int32) ([]*domain.Task, error) {
	return s.dependents(taskID, true)
}

func (s *Storage) dependents(taskID int32, blockedOnly bool) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if blockedOnly && task.Status != domain.TaskBlocked {
			continue
		}
		for _, depID := range task.DependsOn {
			if depID == taskID {
				tasks = append(tasks, copyTask(task))
				break
			}
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (s *Storage) InsertTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowStamp := time.Now().UTC().Unix()
	clone := copyTask(task)
	clone.ID = s.allocateID()
	clone.CreatedAtStamp = nowStamp
	clone.UpdatedAtStamp = nowStamp
	s.tasks[clone.ID] = clone
	return copyTask(clone), nil
}

func (s *Storage) UpdateTask(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateTaskLocked(task)
}

func (s *Storage) updateTaskLocked(task *domain.Task) error {
	if _, ok := s.tasks[task.ID]; !ok {
		return errval.ErrNotFound
	}
	clone := copyTask(task)
	clone.UpdatedAtStamp = time.Now().UTC().Unix()
	s.tasks[task.ID] = clone
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, ID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[ID]; !ok {
		return errval.ErrNotFound
	}
	delete(s.tasks, ID)
	return nil
}

func (s *Storage) GetTaskStatusHistory(ctx context.Context, taskID int32) ([]*domain.TaskStatusHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*domain.TaskStatusHistory
	for _, record := range s.history {
		if record.TaskID == taskID {
			clone := *record
			records = append(records, &clone)
		}
	}
	if len(records) == 0 {
		return nil, errval.ErrNotFound
	}
	return records, nil
}

func (s *Storage) CommitTransition(ctx context.Context, tasks []*domain.Task, history []*domain.TaskStatusHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		if _, ok := s.tasks[task.ID]; !ok {
			return errval.ErrNotFound
		}
	}

	for _, task := range tasks {
		if err := s.updateTaskLocked(task); err != nil {
			return err
		}
	}
	for _, record := range history {
		s.nextRecordID++
		clone := *record
		clone.ID = s.nextRecordID
		s.history = append(s.history, &clone)
	}
	return nil
}
