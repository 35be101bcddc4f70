package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/radial/internal/memory"
	"github.com/josephgoksu/radial/internal/task"
)

func newTestContext(t *testing.T, backend string) *Context {
	t.Helper()
	s, err := memory.Open(memory.Options{Backend: backend, Dir: t.TempDir(), LockTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewContext(s)
}

func forEachBackend(t *testing.T, fn func(t *testing.T, ac *Context)) {
	for _, b := range []string{memory.BackendSQLite, memory.BackendJSONL} {
		t.Run(b, func(t *testing.T) { fn(t, newTestContext(t, b)) })
	}
}

func strPtr(s string) *string { return &s }

func withContract() task.ContractPatch {
	return task.ContractPatch{Verify: strPtr("go test ./...")}
}

func mustGoal(t *testing.T, ac *Context, desc string) *task.Goal {
	t.Helper()
	g, err := NewGoalApp(ac).Create(context.Background(), desc)
	require.NoError(t, err)
	return g
}

func mustTask(t *testing.T, ac *Context, goalID, desc string, blockedBy ...string) *task.Task {
	t.Helper()
	tk, err := NewTaskApp(ac).Create(context.Background(), CreateTaskInput{
		GoalID: goalID, Description: desc, Contract: withContract(), BlockedBy: blockedBy,
	})
	require.NoError(t, err)
	return tk
}

func startAndComplete(t *testing.T, ac *Context, id string) *CompleteResult {
	t.Helper()
	ctx := context.Background()
	tasks := NewTaskApp(ac)
	_, err := tasks.Start(ctx, id)
	require.NoError(t, err)
	res, err := tasks.Complete(ctx, CompleteTaskInput{TaskID: id, Summary: "done"})
	require.NoError(t, err)
	return res
}

func TestShipV1Scenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)

		goal := mustGoal(t, ac, "Ship v1")
		assert.Equal(t, task.GoalPending, goal.State)

		writeTests, err := tasks.Create(ctx, CreateTaskInput{GoalID: goal.ID, Description: "write tests"})
		require.NoError(t, err)
		assert.Equal(t, task.StatePending, writeTests.State)
		assert.Nil(t, writeTests.Contract)

		deploy, err := tasks.Create(ctx, CreateTaskInput{GoalID: goal.ID, Description: "deploy", BlockedBy: []string{writeTests.ID}})
		require.NoError(t, err)
		assert.Equal(t, task.StateBlocked, deploy.State)

		g, err := NewGoalApp(ac).Get(ctx, goal.ID)
		require.NoError(t, err)
		assert.Equal(t, task.GoalInProgress, g.State)

		_, err = tasks.Start(ctx, writeTests.ID)
		require.ErrorIs(t, err, task.ErrInvalidState)
		assert.ErrorIs(t, err, task.ErrContractRequired)

		_, err = tasks.Edit(ctx, EditTaskInput{TaskID: writeTests.ID, Contract: task.ContractPatch{
			Receives: strPtr("source tree"),
			Produces: strPtr("test suite"),
			Verify:   strPtr("go test ./..."),
		}})
		require.NoError(t, err)

		started, err := tasks.Start(ctx, writeTests.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StateInProgress, started.State)

		res, err := tasks.Complete(ctx, CompleteTaskInput{TaskID: writeTests.ID, Summary: "done"})
		require.NoError(t, err)
		assert.Equal(t, task.StateCompleted, res.Task.State)
		require.NotNil(t, res.Task.Result)
		assert.Equal(t, "done", res.Task.Result.Summary)
		assert.Equal(t, []string{deploy.ID}, res.Unblocked)
		assert.Equal(t, task.GoalInProgress, res.Goal.State)

		d, err := tasks.Get(ctx, deploy.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatePending, d.State)
	})
}

func TestCreate_InitialState(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b", a.ID, a.ID)

		assert.Equal(t, task.StatePending, a.State)
		assert.Equal(t, task.StateBlocked, b.State)
		assert.Equal(t, []string{a.ID}, b.BlockedBy, "duplicates are dropped")
	})
}

func TestCreate_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		other := mustGoal(t, ac, "other")
		a := mustTask(t, ac, g.ID, "a")
		foreign := mustTask(t, ac, other.ID, "foreign")

		_, err := tasks.Create(ctx, CreateTaskInput{GoalID: g.ID, Description: "   "})
		var ve *task.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "description", ve.Field)

		_, err = tasks.Create(ctx, CreateTaskInput{GoalID: g.ID + "x", Description: "d"})
		assert.ErrorIs(t, err, task.ErrNotFound)

		_, err = tasks.Create(ctx, CreateTaskInput{GoalID: g.ID, Description: "d", BlockedBy: []string{foreign.ID}})
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "blocked_by", ve.Field)

		typo := a.ID[:7] + "!"
		_, err = tasks.Create(ctx, CreateTaskInput{GoalID: g.ID, Description: "d", BlockedBy: []string{typo}})
		require.ErrorIs(t, err, task.ErrValidation)
		assert.Equal(t, a.ID, task.Suggestion(err))
	})
}

func TestCreate_RetriesDuplicateID(t *testing.T) {
	ac := newTestContext(t, memory.BackendSQLite)
	g := mustGoal(t, ac, "g")

	ids := []string{g.ID, g.ID, "fresh001"}
	ac.NewID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	g2, err := NewGoalApp(ac).Create(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "fresh001", g2.ID)

	ac.NewID = func() (string, error) { return g.ID, nil }
	_, err = NewGoalApp(ac).Create(context.Background(), "third")
	assert.ErrorIs(t, err, task.ErrStorage)
}

func TestStart_Guards(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b", a.ID)

		_, err := tasks.Start(ctx, b.ID)
		var ise *task.InvalidStateError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, []string{a.ID}, ise.Blockers)
		assert.Contains(t, err.Error(), a.ID)

		_, err = tasks.Start(ctx, a.ID)
		require.NoError(t, err)
		_, err = tasks.Start(ctx, a.ID)
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, string(task.StateInProgress), ise.Current)

		_, err = tasks.Start(ctx, "nope0000")
		assert.ErrorIs(t, err, task.ErrNotFound)
	})
}

func TestStart_EmptyContractFieldCounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")

		tk, err := tasks.Create(ctx, CreateTaskInput{
			GoalID: g.ID, Description: "a", Contract: task.ContractPatch{Verify: strPtr("")},
		})
		require.NoError(t, err)
		require.NotNil(t, tk.Contract)

		started, err := tasks.Start(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StateInProgress, started.State)
	})
}

// staleStore serves a fixed snapshot of one task to simulate a reader that lost a race.
type staleStore struct {
	memory.Store
	stale *task.Task
}

func (s *staleStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	if id == s.stale.ID {
		cp := *s.stale
		return &cp, nil
	}
	return s.Store.GetTask(ctx, id)
}

func TestStart_ConcurrentConflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")

		racer := &Context{Store: &staleStore{Store: ac.Store, stale: a}, NewID: ac.NewID}

		_, first := NewTaskApp(ac).Start(ctx, a.ID)
		_, second := NewTaskApp(racer).Start(ctx, a.ID)

		require.NoError(t, first)
		require.ErrorIs(t, second, task.ErrConflict)
		var ce *task.ConflictError
		require.ErrorAs(t, second, &ce)
		assert.Equal(t, string(task.StateInProgress), ce.Actual)
	})
}

func TestComplete_TwoBlockers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b")
		c := mustTask(t, ac, g.ID, "c", a.ID, b.ID)

		res := startAndComplete(t, ac, a.ID)
		assert.Empty(t, res.Unblocked)
		got, err := NewTaskApp(ac).Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StateBlocked, got.State)

		res = startAndComplete(t, ac, b.ID)
		assert.Equal(t, []string{c.ID}, res.Unblocked)
	})
}

func TestComplete_GoalRollup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b", a.ID)

		startAndComplete(t, ac, a.ID)
		res := startAndComplete(t, ac, b.ID)
		assert.Equal(t, task.GoalCompleted, res.Goal.State)
		require.NotNil(t, res.Goal.CompletedAt)
		assert.Equal(t, 2, res.Goal.Metrics.TasksCompleted)

		again, err := tasks.Reconcile(ctx, g.ID)
		require.NoError(t, err)
		assert.Empty(t, again.Unblocked)
		assert.Equal(t, task.GoalCompleted, again.Goal.State)
		assert.True(t, again.Goal.CompletedAt.Equal(*res.Goal.CompletedAt), "completed_at must not move")
	})
}

func TestComplete_FailedSiblingFailsGoal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b")

		_, err := tasks.Start(ctx, a.ID)
		require.NoError(t, err)
		_, err = tasks.Fail(ctx, a.ID)
		require.NoError(t, err)

		res := startAndComplete(t, ac, b.ID)
		assert.Equal(t, task.GoalFailed, res.Goal.State)

		_, err = tasks.Retry(ctx, a.ID)
		require.NoError(t, err)
		res, err = tasks.Complete(ctx, CompleteTaskInput{TaskID: a.ID, Summary: "fixed"})
		require.NoError(t, err)
		assert.Equal(t, task.GoalCompleted, res.Goal.State, "all completed wins over an earlier failure")
	})
}

func TestComplete_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")

		_, err := tasks.Complete(ctx, CompleteTaskInput{TaskID: a.ID, Summary: "done"})
		assert.ErrorIs(t, err, task.ErrInvalidState)

		_, err = tasks.Start(ctx, a.ID)
		require.NoError(t, err)
		_, err = tasks.Complete(ctx, CompleteTaskInput{TaskID: a.ID, Summary: "  "})
		var ve *task.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "result", ve.Field)

		_, err = tasks.Complete(ctx, CompleteTaskInput{TaskID: a.ID, Summary: "ok", Tokens: -1})
		assert.ErrorIs(t, err, task.ErrValidation)

		res, err := tasks.Complete(ctx, CompleteTaskInput{
			TaskID: a.ID, Summary: "ok", Artifacts: []string{"main.go", "main_test.go"}, Tokens: 1500, ElapsedMs: 30000,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"main.go", "main_test.go"}, res.Task.Result.Artifacts)
		assert.Equal(t, int64(1500), res.Goal.Metrics.TotalTokens)
		assert.Equal(t, int64(30000), res.Goal.Metrics.ElapsedMs)
	})
}

func TestFailAndRetry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")

		_, err := tasks.Fail(ctx, a.ID)
		assert.ErrorIs(t, err, task.ErrInvalidState, "pending task cannot fail")
		_, err = tasks.Retry(ctx, a.ID)
		assert.ErrorIs(t, err, task.ErrInvalidState, "retry only from failed")

		for i := 1; i <= 2; i++ {
			if i == 1 {
				_, err = tasks.Start(ctx, a.ID)
				require.NoError(t, err)
			}
			failed, err := tasks.Fail(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, task.StateFailed, failed.State)

			retried, err := tasks.Retry(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, task.StateInProgress, retried.State)
			assert.Equal(t, i, retried.Metrics.RetryCount)
		}
	})
}

func TestEdit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b")

		edited, err := tasks.Edit(ctx, EditTaskInput{
			TaskID: b.ID, Description: strPtr("b2"), Contract: task.ContractPatch{Produces: strPtr("binary")},
		})
		require.NoError(t, err)
		assert.Equal(t, "b2", edited.Description)
		assert.Equal(t, "binary", edited.Contract.Produces)
		assert.Equal(t, "go test ./...", edited.Contract.Verify, "unsupplied contract fields are kept")

		edited, err = tasks.Edit(ctx, EditTaskInput{TaskID: b.ID, BlockedBy: []string{a.ID}, SetBlockedBy: true})
		require.NoError(t, err)
		assert.Equal(t, task.StateBlocked, edited.State)
		assert.Equal(t, []string{a.ID}, edited.BlockedBy)

		_, err = tasks.Edit(ctx, EditTaskInput{TaskID: a.ID, BlockedBy: []string{b.ID}, SetBlockedBy: true})
		require.ErrorIs(t, err, task.ErrValidation)
		assert.ErrorIs(t, err, task.ErrCycle)

		_, err = tasks.Edit(ctx, EditTaskInput{TaskID: a.ID, BlockedBy: []string{a.ID}, SetBlockedBy: true})
		assert.ErrorIs(t, err, task.ErrValidation)

		edited, err = tasks.Edit(ctx, EditTaskInput{TaskID: b.ID, SetBlockedBy: true})
		require.NoError(t, err)
		assert.Equal(t, task.StatePending, edited.State)
		assert.Empty(t, edited.BlockedBy)

		_, err = tasks.Edit(ctx, EditTaskInput{TaskID: b.ID})
		assert.ErrorIs(t, err, task.ErrValidation)
	})
}

// racingStore runs before once, right after the first ListTasks snapshot is
// taken, so the caller acts on a list that is already out of date.
type racingStore struct {
	memory.Store
	before func()
	fired  bool
}

func (s *racingStore) ListTasks(ctx context.Context, goalID string) ([]task.Task, error) {
	tasks, err := s.Store.ListTasks(ctx, goalID)
	if !s.fired {
		s.fired = true
		s.before()
	}
	return tasks, err
}

func TestEdit_BlockerCompletesDuringEdit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		g := mustGoal(t, ac, "g")
		x := mustTask(t, ac, g.ID, "x")
		d := mustTask(t, ac, g.ID, "d")
		_, err := NewTaskApp(ac).Start(ctx, x.ID)
		require.NoError(t, err)

		racer := &racingStore{Store: ac.Store, before: func() {
			_, err := NewTaskApp(ac).Complete(ctx, CompleteTaskInput{TaskID: x.ID, Summary: "done"})
			require.NoError(t, err)
		}}
		edited, err := NewTaskApp(&Context{Store: racer, NewID: ac.NewID}).Edit(ctx,
			EditTaskInput{TaskID: d.ID, BlockedBy: []string{x.ID}, SetBlockedBy: true})
		require.NoError(t, err)
		assert.True(t, racer.fired)
		assert.Equal(t, []string{x.ID}, edited.BlockedBy)
		assert.Equal(t, task.StatePending, edited.State)

		got, err := NewTaskApp(ac).Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatePending, got.State)
	})
}

func TestDelete_RollsGoalUp(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b")
		res := startAndComplete(t, ac, a.ID)
		assert.Equal(t, task.GoalInProgress, res.Goal.State)

		require.NoError(t, NewTaskApp(ac).Delete(ctx, b.ID))

		goal, err := NewGoalApp(ac).Get(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, task.GoalCompleted, goal.State, "only completed tasks remain")
	})
}

func TestCommentAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		tasks := NewTaskApp(ac)
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		b := mustTask(t, ac, g.ID, "b", a.ID)

		for i := 0; i < 2; i++ {
			_, err := tasks.Comment(ctx, a.ID, fmt.Sprintf("note %d", i))
			require.NoError(t, err)
		}
		got, err := tasks.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, got.Comments, 2)
		assert.Equal(t, "note 0", got.Comments[0].Text)

		_, err = tasks.Comment(ctx, a.ID, " ")
		assert.ErrorIs(t, err, task.ErrValidation)

		assert.ErrorIs(t, tasks.Delete(ctx, a.ID), task.ErrValidation, "a blocker cannot be deleted")
		assert.ErrorIs(t, tasks.Delete(ctx, b.ID), task.ErrInvalidState, "only pending tasks are deleted")

		_, err = tasks.Edit(ctx, EditTaskInput{TaskID: b.ID, SetBlockedBy: true})
		require.NoError(t, err)
		require.NoError(t, tasks.Delete(ctx, b.ID))
		require.NoError(t, tasks.Delete(ctx, a.ID))

		_, err = tasks.Get(ctx, a.ID)
		assert.True(t, errors.Is(err, task.ErrNotFound))
	})
}

func TestReconcile_ReleasesLateBlocked(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ac *Context) {
		ctx := context.Background()
		g := mustGoal(t, ac, "g")
		a := mustTask(t, ac, g.ID, "a")
		startAndComplete(t, ac, a.ID)

		late := mustTask(t, ac, g.ID, "late", a.ID)
		assert.Equal(t, task.StateBlocked, late.State)

		res, err := NewTaskApp(ac).Reconcile(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{late.ID}, res.Unblocked)
		assert.Equal(t, task.GoalInProgress, res.Goal.State, "goal reopened by the new task")
	})
}

func TestList_TopologicalOrder(t *testing.T) {
	ac := newTestContext(t, memory.BackendSQLite)
	ctx := context.Background()
	g := mustGoal(t, ac, "g")

	c := mustTask(t, ac, g.ID, "C")
	b := mustTask(t, ac, g.ID, "B")
	a := mustTask(t, ac, g.ID, "A")
	tasks := NewTaskApp(ac)
	_, err := tasks.Edit(ctx, EditTaskInput{TaskID: b.ID, BlockedBy: []string{a.ID}, SetBlockedBy: true})
	require.NoError(t, err)
	_, err = tasks.Edit(ctx, EditTaskInput{TaskID: c.ID, BlockedBy: []string{a.ID, b.ID}, SetBlockedBy: true})
	require.NoError(t, err)

	list, err := tasks.List(ctx, g.ID)
	require.NoError(t, err)
	var got []string
	for _, tk := range list {
		got = append(got, tk.Description)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
}
