package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/memstore"
)

// fakeQueue records published messages so tests can assert on the status event
// stream without a broker.
type fakeQueue struct {
	mu        sync.Mutex
	published []string
}

func (q *fakeQueue) IsHealthy() bool { return true }

func (q *fakeQueue) PublishMessage(queueName, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, body)
	return nil
}

func (q *fakeQueue) ConsumeMessages(consumerName, queueName string, handler func(string)) error {
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) publishedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published)
}

var testActor = domain.Actor{ID: 42, Role: domain.RoleManager}

func newTestEngine(t *testing.T) (*Engine, *memstore.Storage, *fakeQueue) {
	t.Helper()
	store := memstore.New()
	queue := &fakeQueue{}
	return NewEngine(store, nil, queue, "task-status-events", time.Second), store, queue
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := date(year, month, day)
	return &d
}

func seedProject(t *testing.T, store *memstore.Storage) *domain.Project {
	t.Helper()
	project, err := store.InsertProject(context.Background(), &domain.Project{
		Name:           "Falcon",
		ManagerID:      7,
		CreatedBy:      testActor.ID,
		AllocatedHours: 200,
		StartDate:      datePtr(2026, time.January, 1),
		EndDate:        datePtr(2026, time.June, 30),
		Status:         domain.ProjectActive,
	})
	if err != nil {
		t.Fatalf("seeding project: %v", err)
	}
	return project
}

func seedSprint(t *testing.T, store *memstore.Storage, projectID int32, name string, status domain.SprintStatus) *domain.Sprint {
	t.Helper()
	sprint, err := store.InsertSprint(context.Background(), &domain.Sprint{
		ProjectID: projectID,
		Name:      name,
		StartDate: date(2026, time.February, 1),
		EndDate:   date(2026, time.February, 14),
		Status:    status,
	})
	if err != nil {
		t.Fatalf("seeding sprint: %v", err)
	}
	return sprint
}

func seedTask(t *testing.T, store *memstore.Storage, task *domain.Task) *domain.Task {
	t.Helper()
	if task.Status == "" {
		task.Status = domain.TaskPending
	}
	if task.LastActiveStatus == "" {
		task.LastActiveStatus = task.ActiveStatus()
	}
	inserted, err := store.InsertTask(context.Background(), task)
	if err != nil {
		t.Fatalf("seeding task: %v", err)
	}
	return inserted
}
