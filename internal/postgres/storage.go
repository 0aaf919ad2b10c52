package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/errval"
)

const uniqueViolationCode = "23505"

type storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*storage, error) {
	var pool *pgxpool.Pool

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	err = backoff.Retry(func() error {
		if pool, err = pgxpool.ConnectConfig(ctx, config); err != nil {
			slog.ErrorContext(ctx, "failed to connect to postgres database.. retrying...", "error", err)
			return err
		}

		if err = pool.Ping(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ping postgres database connection.. retrying...", "error", err)
			return err
		}

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5))

	if err != nil {
		return nil, err
	}

	return &storage{pool: pool}, nil
}

func (s *storage) Ping(ctx context.Context) (err error) {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func mapQueryError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errval.ErrNotFound
	}

	return err
}

func nullableInt32(value *int32) sql.NullInt32 {
	if value == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *value, Valid: true}
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func fromNullInt32(value sql.NullInt32) *int32 {
	if !value.Valid {
		return nil
	}
	v := value.Int32
	return &v
}

func fromNullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

const projectColumns = `id, name, description, manager_id, created_by, budget, allocated_hours,
	start_date, end_date, actual_end_date, status, created_at, updated_at`

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		project              domain.Project
		status               string
		start, end, actual   sql.NullTime
		createdAt, updatedAt time.Time
	)

	err := row.Scan(&project.ID, &project.Name, &project.Description, &project.ManagerID, &project.CreatedBy,
		&project.Budget, &project.AllocatedHours, &start, &end, &actual, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapQueryError(err)
	}

	project.StartDate = fromNullTime(start)
	project.EndDate = fromNullTime(end)
	project.ActualEndDate = fromNullTime(actual)
	project.Status = domain.ProjectStatus(status)
	project.CreatedAtStamp = createdAt.Unix()
	project.UpdatedAtStamp = updatedAt.Unix()

	return &project, nil
}

func (s *storage) GetProjectByID(ctx context.Context, ID int32) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, ID)
	return scanProject(row)
}

func (s *storage) InsertProject(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, description, manager_id, created_by, budget, allocated_hours, start_date, end_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+projectColumns,
		project.Name, project.Description, project.ManagerID, project.CreatedBy, project.Budget,
		project.AllocatedHours, nullableTime(project.StartDate), nullableTime(project.EndDate), string(project.Status))
	return scanProject(row)
}

func (s *storage) UpdateProject(ctx context.Context, project *domain.Project) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $2, description = $3, manager_id = $4, budget = $5, allocated_hours = $6,
		 start_date = $7, end_date = $8, actual_end_date = $9, status = $10, updated_at = now()
		 WHERE id = $1`,
		project.ID, project.Name, project.Description, project.ManagerID, project.Budget, project.AllocatedHours,
		nullableTime(project.StartDate), nullableTime(project.EndDate), nullableTime(project.ActualEndDate), string(project.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}

	return nil
}

const sprintColumns = `id, project_id, name, start_date, end_date, actual_end_date, status, created_at, updated_at`

func scanSprint(row rowScanner) (*domain.Sprint, error) {
	var (
		sprint               domain.Sprint
		status               string
		actual               sql.NullTime
		createdAt, updatedAt time.Time
	)

	err := row.Scan(&sprint.ID, &sprint.ProjectID, &sprint.Name, &sprint.StartDate, &sprint.EndDate,
		&actual, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapQueryError(err)
	}

	sprint.ActualEndDate = fromNullTime(actual)
	sprint.Status = domain.SprintStatus(status)
	sprint.CreatedAtStamp = createdAt.Unix()
	sprint.UpdatedAtStamp = updatedAt.Unix()

	return &sprint, nil
}

func (s *storage) GetSprintByID(ctx context.Context, ID int32) (*domain.Sprint, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = $1`, ID)
	return scanSprint(row)
}

func (s *storage) GetSprintsByProjectID(ctx context.Context, projectID int32) ([]*domain.Sprint, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sprints []*domain.Sprint
	for rows.Next() {
		sprint, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		sprints = append(sprints, sprint)
	}

	return sprints, rows.Err()
}

func (s *storage) FindSprintByName(ctx context.Context, projectID int32, name string) (*domain.Sprint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = $1 AND lower(name) = lower($2)`,
		projectID, name)
	return scanSprint(row)
}

func (s *storage) FindOverlappingSprint(ctx context.Context, projectID int32, start, end time.Time, statuses []domain.SprintStatus) (*domain.Sprint, error) {
	statusValues := make([]string, 0, len(statuses))
	for _, status := range statuses {
		statusValues = append(statusValues, string(status))
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+sprintColumns+` FROM sprints
		 WHERE project_id = $1 AND status::text = ANY($2) AND start_date <= $3 AND end_date >= $4
		 LIMIT 1`,
		projectID, statusValues, end, start)
	return scanSprint(row)
}

func (s *storage) InsertSprint(ctx context.Context, sprint *domain.Sprint) (*domain.Sprint, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sprints (project_id, name, start_date, end_date, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+sprintColumns,
		sprint.ProjectID, sprint.Name, sprint.StartDate, sprint.EndDate, string(sprint.Status))

	created, err := scanSprint(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, errval.ErrSprintNameTaken
		}
		return nil, err
	}

	return created, nil
}

func (s *storage) UpdateSprint(ctx context.Context, sprint *domain.Sprint) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sprints SET name = $2, start_date = $3, end_date = $4, actual_end_date = $5, status = $6, updated_at = now()
		 WHERE id = $1`,
		sprint.ID, sprint.Name, sprint.StartDate, sprint.EndDate, nullableTime(sprint.ActualEndDate), string(sprint.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}

	return nil
}

func (s *storage) DeleteSprint(ctx context.Context, ID int32) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sprints WHERE id = $1`, ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}

	return nil
}

const taskColumns = `id, project_id, sprint_id, assigned_to, created_by, title, description, status,
	last_active_status, start_date, end_date, actual_start_date, actual_end_date, allocated_hours,
	depends_on, created_at, updated_at`

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task                               domain.Task
		sprintID, assignedTo               sql.NullInt32
		status, lastActive                 string
		start, end, actualStart, actualEnd sql.NullTime
		dependsOn                          pgtype.Int4Array
		createdAt, updatedAt               time.Time
	)

	err := row.Scan(&task.ID, &task.ProjectID, &sprintID, &assignedTo, &task.CreatedBy, &task.Title,
		&task.Description, &status, &lastActive, &start, &end, &actualStart, &actualEnd,
		&task.AllocatedHours, &dependsOn, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapQueryError(err)
	}

	task.SprintID = fromNullInt32(sprintID)
	task.AssignedTo = fromNullInt32(assignedTo)
	task.Status = domain.TaskStatus(status)
	task.LastActiveStatus = domain.TaskStatus(lastActive)
	task.StartDate = fromNullTime(start)
	task.EndDate = fromNullTime(end)
	task.ActualStartDate = fromNullTime(actualStart)
	task.ActualEndDate = fromNullTime(actualEnd)
	task.CreatedAtStamp = createdAt.Unix()
	task.UpdatedAtStamp = updatedAt.Unix()

	var deps []int32
	if err := dependsOn.AssignTo(&deps); err != nil {
		return nil, err
	}
	task.DependsOn = deps

	return &task, nil
}

func dependsOnArray(deps []int32) (pgtype.Int4Array, error) {
	var array pgtype.Int4Array
	if deps == nil {
		deps = []int32{}
	}
	err := array.Set(deps)
	return array, err
}

func (s *storage) GetTaskByID(ctx context.Context, ID int32) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, ID)
	return scanTask(row)
}

func (s *storage) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

func (s *storage) GetTasksByIDs(ctx context.Context, IDs []int32) ([]*domain.Task, error) {
	if len(IDs) == 0 {
		return nil, nil
	}

	ids, err := dependsOnArray(IDs)
	if err != nil {
		return nil, err
	}

	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ANY($1) ORDER BY id`, ids)
}

func (s *storage) GetTasksBySprintID(ctx context.Context, sprintID int32) ([]*domain.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE sprint_id = $1 ORDER BY id`, sprintID)
}

func (s *storage) GetTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY id`, string(status))
}

func (s *storage) GetTasksDependingOn(ctx context.Context, taskID int32) ([]*domain.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE depends_on @> ARRAY[$1]::int4[] ORDER BY id`, taskID)
}

func (s *storage) GetBlockedTasksDependingOn(ctx context.Context, taskID int32) ([]*domain.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE depends_on @> ARRAY[$1]::int4[] AND status = $2 ORDER BY id`,
		taskID, string(domain.TaskBlocked))
}

func (s *storage) InsertTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	deps, err := dependsOnArray(task.DependsOn)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (project_id, sprint_id, assigned_to, created_by, title, description, status,
		 last_active_status, start_date, end_date, allocated_hours, depends_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+taskColumns,
		task.ProjectID, nullableInt32(task.SprintID), nullableInt32(task.AssignedTo), task.CreatedBy,
		task.Title, task.Description, string(task.Status), string(task.LastActiveStatus),
		nullableTime(task.StartDate), nullableTime(task.EndDate), task.AllocatedHours, deps)
	return scanTask(row)
}

const updateTaskQuery = `UPDATE tasks SET sprint_id = $2, assigned_to = $3, title = $4, description = $5,
	status = $6, last_active_status = $7, start_date = $8, end_date = $9, actual_start_date = $10,
	actual_end_date = $11, allocated_hours = $12, depends_on = $13, updated_at = now()
	WHERE id = $1`

func taskUpdateArgs(task *domain.Task) ([]interface{}, error) {
	deps, err := dependsOnArray(task.DependsOn)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		task.ID, nullableInt32(task.SprintID), nullableInt32(task.AssignedTo), task.Title, task.Description,
		string(task.Status), string(task.LastActiveStatus), nullableTime(task.StartDate), nullableTime(task.EndDate),
		nullableTime(task.ActualStartDate), nullableTime(task.ActualEndDate), task.AllocatedHours, deps,
	}, nil
}

func (s *storage) UpdateTask(ctx context.Context, task *domain.Task) error {
	args, err := taskUpdateArgs(task)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, updateTaskQuery, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}

	return nil
}

func (s *storage) DeleteTask(ctx context.Context, ID int32) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}

	return nil
}

func (s *storage) GetTaskStatusHistory(ctx context.Context, taskID int32) ([]*domain.TaskStatusHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, project_id, sprint_id, from_status, to_status, manual_hours, changed_by, changed_at
		 FROM task_status_history WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TaskStatusHistory
	for rows.Next() {
		var (
			record               domain.TaskStatusHistory
			sprintID             sql.NullInt32
			fromStatus, toStatus string
			changedAt            time.Time
		)
		err := rows.Scan(&record.ID, &record.TaskID, &record.ProjectID, &sprintID, &fromStatus, &toStatus,
			&record.ManualHours, &record.ChangedBy, &changedAt)
		if err != nil {
			return nil, err
		}
		record.SprintID = fromNullInt32(sprintID)
		record.FromStatus = domain.TaskStatus(fromStatus)
		record.ToStatus = domain.TaskStatus(toStatus)
		record.ChangedAtStamp = changedAt.Unix()
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, errval.ErrNotFound
	}

	return records, nil
}

// CommitTransition applies the task updates and appends the history rows in
// one transaction, so a transition and its cascade either land together or
// not at all.
func (s *storage) CommitTransition(ctx context.Context, tasks []*domain.Task, history []*domain.TaskStatusHistory) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				slog.Error("Error occurred while rolling back transaction", "error", rbErr.Error())
			}
		}
	}()

	for _, task := range tasks {
		args, argErr := taskUpdateArgs(task)
		if argErr != nil {
			err = argErr
			return err
		}

		tag, execErr := tx.Exec(ctx, updateTaskQuery, args...)
		if execErr != nil {
			err = execErr
			return err
		}
		if tag.RowsAffected() == 0 {
			err = errval.ErrNotFound
			return err
		}
	}

	for _, record := range history {
		_, execErr := tx.Exec(ctx,
			`INSERT INTO task_status_history (task_id, project_id, sprint_id, from_status, to_status, manual_hours, changed_by, changed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8))`,
			record.TaskID, record.ProjectID, nullableInt32(record.SprintID), string(record.FromStatus),
			string(record.ToStatus), record.ManualHours, record.ChangedBy, record.ChangedAtStamp)
		if execErr != nil {
			err = execErr
			return err
		}
	}

	return tx.Commit(ctx)
}
