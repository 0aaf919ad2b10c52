package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshirdel/projectflow/internal/domain"
)

func Test_detect_cycle(t *testing.T) {
	ctx := context.Background()

	t.Run("it should find a cycle through a chain of stored edges", func(t *testing.T) {
		engine, store, _ := newTestEngine(t)
		project := seedProject(t, store)
		a := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "a"})
		b := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "b", DependsOn: []int32{a.ID}})
		c := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "c", DependsOn: []int32{b.ID}})

		cyclic, err := engine.detectCycle(ctx, a.ID, []int32{c.ID})

		require.NoError(t, err)
		assert.True(t, cyclic)
	})

	t.Run("it should accept shared ancestors", func(t *testing.T) {
		engine, store, _ := newTestEngine(t)
		project := seedProject(t, store)
		root := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "root"})
		left := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "left", DependsOn: []int32{root.ID}})
		right := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "right", DependsOn: []int32{root.ID}})
		join := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "join"})

		cyclic, err := engine.detectCycle(ctx, join.ID, []int32{left.ID, right.ID})

		require.NoError(t, err)
		assert.False(t, cyclic)
	})

	t.Run("it should skip dangling edges to deleted tasks", func(t *testing.T) {
		engine, store, _ := newTestEngine(t)
		project := seedProject(t, store)
		a := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "a", DependsOn: []int32{9999}})
		b := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "b"})

		cyclic, err := engine.detectCycle(ctx, b.ID, []int32{a.ID})

		require.NoError(t, err)
		assert.False(t, cyclic)
	})
}

func Test_pending_dependencies(t *testing.T) {
	ctx := context.Background()

	t.Run("it should list only the incomplete dependencies", func(t *testing.T) {
		engine, store, _ := newTestEngine(t)
		project := seedProject(t, store)
		done := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "done", Status: domain.TaskCompleted})
		testing_ := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "in testing", Status: domain.TaskTesting})
		blocked := seedTask(t, store, &domain.Task{ProjectID: project.ID, Title: "blocked", Status: domain.TaskBlocked})

		pending, err := engine.pendingDependencies(ctx, []int32{done.ID, testing_.ID, blocked.ID})

		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, testing_.ID, pending[0].ID)
		assert.Equal(t, string(domain.TaskTesting), pending[0].Status)
		assert.Equal(t, blocked.ID, pending[1].ID)
	})

	t.Run("it should return nothing for an empty set", func(t *testing.T) {
		engine, _, _ := newTestEngine(t)

		pending, err := engine.pendingDependencies(ctx, nil)

		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
