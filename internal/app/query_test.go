package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/radial/internal/task"
)

func TestShow_ResolvesTaskThenGoal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		q := NewQueryApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b", a.ID)

		e, err := q.Show(ctx, a.ID)
		require.NoError(t, err)
		te, ok := e.(*TaskEntity)
		require.True(t, ok, "expected a task, got %T", e)
		assert.Equal(t, "task", te.Kind())
		assert.Equal(t, a.ID, te.EntityID())

		e, err = q.Show(ctx, g.ID)
		require.NoError(t, err)
		ge, ok := e.(*GoalEntity)
		require.True(t, ok, "expected a goal, got %T", e)
		require.Len(t, ge.Tasks, 2)
		assert.Equal(t, a.ID, ge.Tasks[0].ID)
		assert.Equal(t, b.ID, ge.Tasks[1].ID)

		_, err = q.Show(ctx, b.ID[:7]+"?")
		require.ErrorIs(t, err, task.ErrNotFound)
		assert.Equal(t, b.ID, task.Suggestion(err))

		_, err = q.Show(ctx, "zzzzzzzzzzzz")
		require.ErrorIs(t, err, task.ErrNotFound)
		assert.Empty(t, task.Suggestion(err))
	})
}

func TestStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		q := NewQueryApp(ac)
		g1 := mustGoal(t, ac, "one")
		mustGoal(t, ac, "two")
		a := mustTask(t, ac, g1.ID, "a")
		startAndComplete(t, ac, a.ID)

		all, err := q.Status(ctx, "", "")
		require.NoError(t, err)
		assert.Len(t, all.Goals, 2)

		byGoal, err := q.Status(ctx, g1.ID, "")
		require.NoError(t, err)
		assert.Equal(t, task.GoalCompleted, byGoal.Goal.State)
		assert.Equal(t, 1, byGoal.Goal.Metrics.TasksCompleted)
		assert.Len(t, byGoal.Tasks, 1)

		byTask, err := q.Status(ctx, "", a.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StateCompleted, byTask.Task.State)

		_, err = q.Status(ctx, g1.ID, a.ID)
		assert.ErrorIs(t, err, task.ErrValidation)

		_, err = q.Status(ctx, g1.ID[:7]+"-", "")
		require.ErrorIs(t, err, task.ErrNotFound)
		assert.Equal(t, g1.ID, task.Suggestion(err))
	})
}

func TestReady(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		g := mustGoal(t, ac, "g")
		withC := mustTask(t, ac, g.ID, "with contract")
		mustTask(t, ac, g.ID, "blocked", withC.ID)
		_, err := NewTaskApp(ac).Create(ctx, CreateTaskInput{GoalID: g.ID, Description: "no contract"})
		require.NoError(t, err)

		ready, err := NewQueryApp(ac).Ready(ctx, g.ID)
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, withC.ID, ready[0].ID)
	})
}

func TestListAll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		g1 := mustGoal(t, ac, "one")
		g2 := mustGoal(t, ac, "two")
		mustTask(t, ac, g2.ID, "x")

		all, err := NewQueryApp(ac).ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, g1.ID, all[0].Goal.ID)
		assert.Empty(t, all[0].Tasks)
		assert.Len(t, all[1].Tasks, 1)
	})
}

func TestGoalApp(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		goals := NewGoalApp(ac)

		_, err := goals.Create(ctx, "")
		assert.ErrorIs(t, err, task.ErrValidation)

		g := mustGoal(t, ac, "first")
		edited, err := goals.Edit(ctx, g.ID, "renamed")
		require.NoError(t, err)
		assert.Equal(t, "renamed", edited.Description)
		assert.Equal(t, g.State, edited.State)

		_, err = goals.Edit(ctx, g.ID, " ")
		assert.ErrorIs(t, err, task.ErrValidation)

		mustTask(t, ac, g.ID, "a")
		mustTask(t, ac, g.ID, "b")
		_, err = goals.Delete(ctx, g.ID, false)
		assert.ErrorIs(t, err, task.ErrValidation)

		removed, err := goals.Delete(ctx, g.ID, true)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		_, err = goals.Get(ctx, g.ID)
		assert.ErrorIs(t, err, task.ErrNotFound)
	})
}

func TestClean(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		goals := NewGoalApp(ac)
		done := mustGoal(t, ac, "done")
		a := mustTask(t, ac, done.ID, "a")
		startAndComplete(t, ac, a.ID)
		open := mustGoal(t, ac, "open")

		candidates, err := goals.CleanCandidates(ctx, false)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, done.ID, candidates[0].ID)

		res, err := goals.Clean(ctx, candidates)
		require.NoError(t, err)
		assert.Len(t, res.Goals, 1)
		assert.Equal(t, 1, res.TasksRemoved)

		// A second pass over the same list skips what is already gone.
		res, err = goals.Clean(ctx, candidates)
		require.NoError(t, err)
		assert.Empty(t, res.Goals)

		candidates, err = goals.CleanCandidates(ctx, true)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, open.ID, candidates[0].ID)
	})
}
