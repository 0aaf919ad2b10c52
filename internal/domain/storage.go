package domain

import (
	"context"
	"time"
)

type Storage interface {
	Ping(ctx context.Context) (err error)

	GetProjectByID(ctx context.Context, ID int32) (*Project, error)
	InsertProject(ctx context.Context, project *Project) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	GetSprintByID(ctx context.Context, ID int32) (*Sprint, error)
	GetSprintsByProjectID(ctx context.Context, projectID int32) ([]*Sprint, error)
	FindSprintByName(ctx context.Context, projectID int32, name string) (*Sprint, error)
	FindOverlappingSprint(ctx context.Context, projectID int32, start, end time.Time, statuses []SprintStatus) (*Sprint, error)
	InsertSprint(ctx context.Context, sprint *Sprint) (*Sprint, error)
	UpdateSprint(ctx context.Context, sprint *Sprint) error
	DeleteSprint(ctx context.Context, ID int32) error

	GetTaskByID(ctx context.Context, ID int32) (*Task, error)
	GetTasksByIDs(ctx context.Context, IDs []int32) ([]*Task, error)
	GetTasksBySprintID(ctx context.Context, sprintID int32) ([]*Task, error)
	GetTasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error)
	GetTasksDependingOn(ctx context.Context, taskID int32) ([]*Task, error)
	GetBlockedTasksDependingOn(ctx context.Context, taskID int32) ([]*Task, error)
	InsertTask(ctx context.Context, task *Task) (*Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, ID int32) error

	GetTaskStatusHistory(ctx context.Context, taskID int32) ([]*TaskStatusHistory, error)

	// CommitTransition persists the given task updates together with their
	// history rows in one transaction: either all of it commits or none.
	CommitTransition(ctx context.Context, tasks []*Task, history []*TaskStatusHistory) error
}
