package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/memstore"
	"github.com/mshirdel/projectflow/internal/workflow"
)

type fakeQueue struct{}

func (q *fakeQueue) IsHealthy() bool                          { return true }
func (q *fakeQueue) PublishMessage(queueName, b string) error { return nil }
func (q *fakeQueue) ConsumeMessages(consumerName, queueName string, handler func(string)) error {
	return nil
}
func (q *fakeQueue) Close() error { return nil }

type fakeLocker struct{}

func (l *fakeLocker) Ping(ctx context.Context) error { return nil }
func (l *fakeLocker) Lock(ctx context.Context, lockKey string, d time.Duration) (bool, error) {
	return true, nil
}
func (l *fakeLocker) Unlock(ctx context.Context, lockKey string) error { return nil }
func (l *fakeLocker) Close() error                                     { return nil }

func runTestServer(t *testing.T) (*httptest.Server, *memstore.Storage) {
	t.Helper()
	postgresIsReady, rabbitIsReady, redisIsReady = true, true, true

	store := memstore.New()
	queue := &fakeQueue{}
	locker := &fakeLocker{}
	engine := workflow.NewEngine(store, locker, queue, "task-status-events-test", time.Second)

	return httptest.NewServer(setupHTTPServer(engine, store, queue, locker)), store
}

func doJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "42")
	req.Header.Set("X-Actor-Role", "manager")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	decoded := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func seedHierarchy(t *testing.T, store *memstore.Storage) (*domain.Project, *domain.Sprint) {
	t.Helper()
	ctx := context.Background()

	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)
	project, err := store.InsertProject(ctx, &domain.Project{
		Name:      "Falcon",
		ManagerID: 7,
		StartDate: &start,
		EndDate:   &end,
		Status:    domain.ProjectActive,
	})
	require.NoError(t, err)

	sprint, err := store.InsertSprint(ctx, &domain.Sprint{
		ProjectID: project.ID,
		Name:      "Sprint 1",
		StartDate: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.February, 14, 0, 0, 0, 0, time.UTC),
		Status:    domain.SprintActive,
	})
	require.NoError(t, err)

	return project, sprint
}

func Test_liveness_api(t *testing.T) {
	ts, _ := runTestServer(t)
	defer ts.Close()

	t.Run("it should return 200 when health is ok", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/liveness", ts.URL))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})
}

func Test_readiness_api(t *testing.T) {
	ts, _ := runTestServer(t)
	defer ts.Close()

	t.Run("it should return 200 when dependencies are initialized", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/readiness", ts.URL))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})
}

func Test_create_project_api(t *testing.T) {
	ts, _ := runTestServer(t)
	defer ts.Close()

	t.Run("it should create a project", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.URL+"/projects", map[string]any{
			"name":            "Falcon",
			"manager_id":      7,
			"allocated_hours": 100,
			"start_date":      "2026-01-01",
			"end_date":        "2026-06-30",
		})

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		body := decodeBody(t, resp)
		data := body["data"].(map[string]any)
		assert.Equal(t, "active", data["status"])
	})

	t.Run("it should reject a missing name", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.URL+"/projects", map[string]any{
			"manager_id": 7,
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("it should reject a malformed date", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.URL+"/projects", map[string]any{
			"name":       "Falcon",
			"manager_id": 7,
			"start_date": "01/01/2026",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("it should require the actor header", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]any{"name": "Falcon", "manager_id": 7})
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/projects", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func Test_create_task_api(t *testing.T) {
	t.Run("it should create a pending task", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)

		resp := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{
			"project_id": project.ID,
			"title":      "write the parser",
		})

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		body := decodeBody(t, resp)
		data := body["data"].(map[string]any)
		assert.Equal(t, "Pending", data["status"])
	})

	t.Run("it should reject a requested Blocked status", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)

		resp := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{
			"project_id": project.ID,
			"title":      "write the parser",
			"status":     "Blocked",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("it should return 404 for an unknown project", func(t *testing.T) {
		ts, _ := runTestServer(t)
		defer ts.Close()

		resp := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{
			"project_id": 9999,
			"title":      "write the parser",
		})

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func Test_transition_task_api(t *testing.T) {
	t.Run("it should drive a task through its lifecycle", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)
		task, err := store.InsertTask(context.Background(), &domain.Task{
			ProjectID:        project.ID,
			Title:            "write the parser",
			Status:           domain.TaskPending,
			LastActiveStatus: domain.TaskPending,
		})
		require.NoError(t, err)

		for _, target := range []string{"In Progress", "Testing", "Completed"} {
			resp := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/tasks/%d/status", ts.URL, task.ID), map[string]any{
				"status":       target,
				"manual_hours": 2,
			})
			assert.Equal(t, http.StatusOK, resp.StatusCode, "transition to %s", target)
			resp.Body.Close()
		}

		stored, err := store.GetTaskByID(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskCompleted, stored.Status)

		history, err := store.GetTaskStatusHistory(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})

	t.Run("it should report pending dependencies on a premature start", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)
		ctx := context.Background()
		dep, err := store.InsertTask(ctx, &domain.Task{
			ProjectID:        project.ID,
			Title:            "schema design",
			Status:           domain.TaskInProgress,
			LastActiveStatus: domain.TaskInProgress,
		})
		require.NoError(t, err)
		task, err := store.InsertTask(ctx, &domain.Task{
			ProjectID:        project.ID,
			Title:            "write the parser",
			Status:           domain.TaskPending,
			LastActiveStatus: domain.TaskPending,
			DependsOn:        []int32{dep.ID},
		})
		require.NoError(t, err)

		resp := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/tasks/%d/status", ts.URL, task.ID), map[string]any{
			"status": "In Progress",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		pending := body["pending_dependencies"].([]any)
		require.Len(t, pending, 1)
		first := pending[0].(map[string]any)
		assert.Equal(t, "schema design", first["title"])
	})

	t.Run("it should reject an out of table transition", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)
		task, err := store.InsertTask(context.Background(), &domain.Task{
			ProjectID:        project.ID,
			Title:            "write the parser",
			Status:           domain.TaskPending,
			LastActiveStatus: domain.TaskPending,
		})
		require.NoError(t, err)

		resp := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/tasks/%d/status", ts.URL, task.ID), map[string]any{
			"status": "Completed",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func Test_dependencies_api(t *testing.T) {
	t.Run("it should block the task when an incomplete dependency is attached", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)
		ctx := context.Background()
		dep, err := store.InsertTask(ctx, &domain.Task{
			ProjectID:        project.ID,
			Title:            "schema design",
			Status:           domain.TaskPending,
			LastActiveStatus: domain.TaskPending,
		})
		require.NoError(t, err)
		task, err := store.InsertTask(ctx, &domain.Task{
			ProjectID:        project.ID,
			Title:            "write the parser",
			Status:           domain.TaskPending,
			LastActiveStatus: domain.TaskPending,
		})
		require.NoError(t, err)

		resp := doJSON(t, http.MethodPut, fmt.Sprintf("%s/tasks/%d/dependencies", ts.URL, task.ID), map[string]any{
			"depends_on": []int32{dep.ID},
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		data := body["data"].(map[string]any)
		assert.Equal(t, "Blocked", data["status"])
		assert.Equal(t, "Pending", data["last_active_status"])
	})

	t.Run("it should reject a cycle", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)
		ctx := context.Background()
		a, err := store.InsertTask(ctx, &domain.Task{ProjectID: project.ID, Title: "a", Status: domain.TaskPending, LastActiveStatus: domain.TaskPending})
		require.NoError(t, err)
		b, err := store.InsertTask(ctx, &domain.Task{ProjectID: project.ID, Title: "b", Status: domain.TaskPending, LastActiveStatus: domain.TaskPending, DependsOn: []int32{a.ID}})
		require.NoError(t, err)

		resp := doJSON(t, http.MethodPut, fmt.Sprintf("%s/tasks/%d/dependencies", ts.URL, a.ID), map[string]any{
			"depends_on": []int32{b.ID},
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func Test_sprint_api(t *testing.T) {
	t.Run("it should reject a duplicate sprint name with 409", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)

		resp := doJSON(t, http.MethodPost, ts.URL+"/sprints", map[string]any{
			"project_id": project.ID,
			"name":       "sprint 1",
			"start_date": "2026-03-01",
			"end_date":   "2026-03-14",
		})

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("it should complete a sprint whose tasks are all done", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, sprint := seedHierarchy(t, store)
		_, err := store.InsertTask(context.Background(), &domain.Task{
			ProjectID:        project.ID,
			SprintID:         &sprint.ID,
			Title:            "done work",
			Status:           domain.TaskCompleted,
			LastActiveStatus: domain.TaskCompleted,
		})
		require.NoError(t, err)

		resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sprints/%d/complete", ts.URL, sprint.ID), nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		data := body["data"].(map[string]any)
		assert.Equal(t, "Completed", data["status"])
	})

	t.Run("it should assign a task to a sprint", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, sprint := seedHierarchy(t, store)
		task, err := store.InsertTask(context.Background(), &domain.Task{
			ProjectID:        project.ID,
			Title:            "write the parser",
			Status:           domain.TaskPending,
			LastActiveStatus: domain.TaskPending,
		})
		require.NoError(t, err)

		resp := doJSON(t, http.MethodPost, ts.URL+"/sprints/assign-task", map[string]any{
			"sprint_id": sprint.ID,
			"task_id":   task.ID,
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		stored, err := store.GetTaskByID(context.Background(), task.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.SprintID)
		assert.Equal(t, sprint.ID, *stored.SprintID)
	})
}

func Test_task_history_api(t *testing.T) {
	t.Run("it should return 404 for a task with no history", func(t *testing.T) {
		ts, store := runTestServer(t)
		defer ts.Close()
		project, _ := seedHierarchy(t, store)
		task, err := store.InsertTask(context.Background(), &domain.Task{
			ProjectID:        project.ID,
			Title:            "write the parser",
			Status:           domain.TaskPending,
			LastActiveStatus: domain.TaskPending,
		})
		require.NoError(t, err)

		resp, err := http.Get(fmt.Sprintf("%s/tasks/%d/history", ts.URL, task.ID))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
