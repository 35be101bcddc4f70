package app

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/josephgoksu/radial/internal/task"
)

// ReconcileResult reports what a reconcile pass changed.
type ReconcileResult struct {
	Unblocked []string   `json:"unblocked"`
	Goal      *task.Goal `json:"goal"`
}

// cascade releases the dependents of a just-completed task and rolls up its goal.
func (a *TaskApp) cascade(ctx context.Context, done *task.Task) ([]string, *task.Goal, error) {
	tasks, err := a.ctx.Store.ListTasks(ctx, done.GoalID)
	if err != nil {
		return nil, nil, err
	}
	unblocked, err := a.unblock(ctx, tasks, func(t task.Task) bool {
		return slices.Contains(t.BlockedBy, done.ID)
	})
	if err != nil {
		return nil, nil, err
	}
	goal, err := a.rollup(ctx, done.GoalID)
	if err != nil {
		return unblocked, nil, err
	}
	if len(unblocked) > 0 {
		slog.Info("tasks unblocked", "by", done.ID, "tasks", unblocked)
	}
	return unblocked, goal, nil
}

// Reconcile re-runs the cascade for every blocked task of a goal and rolls the goal up.
// It repairs state left behind by an interrupted completion. Running it twice is a no-op.
func (a *TaskApp) Reconcile(ctx context.Context, goalID string) (*ReconcileResult, error) {
	if _, err := a.ctx.getGoal(ctx, goalID); err != nil {
		return nil, err
	}
	tasks, err := a.ctx.Store.ListTasks(ctx, goalID)
	if err != nil {
		return nil, err
	}
	unblocked, err := a.unblock(ctx, tasks, func(task.Task) bool { return true })
	if err != nil {
		return nil, err
	}
	goal, err := a.rollup(ctx, goalID)
	if err != nil {
		return nil, err
	}
	slog.Info("goal reconciled", "goal_id", goalID, "unblocked", len(unblocked), "state", goal.State)
	return &ReconcileResult{Unblocked: unblocked, Goal: goal}, nil
}

// unblock moves each selected blocked task to pending once all its blockers are completed
// in the snapshot. A task another process already released is skipped.
func (a *TaskApp) unblock(ctx context.Context, tasks []task.Task, selected func(task.Task) bool) ([]string, error) {
	states := stateIndex(tasks)
	unblocked := []string{}
	for _, t := range tasks {
		if t.State != task.StateBlocked || !selected(t) || !allCompleted(t.BlockedBy, states) {
			continue
		}
		_, err := a.ctx.Store.TransitionTask(ctx, t.ID, []task.TaskState{task.StateBlocked}, task.StatePending)
		if errors.Is(err, task.ErrConflict) || isNotFound(err) {
			slog.Debug("skip unblock", "task_id", t.ID, "error", err)
			continue
		}
		if err != nil {
			return unblocked, err
		}
		unblocked = append(unblocked, t.ID)
	}
	return unblocked, nil
}

// rollup derives the goal state from a fresh read of its tasks:
// all completed wins over any failed; otherwise only updated_at moves.
func (a *TaskApp) rollup(ctx context.Context, goalID string) (*task.Goal, error) {
	tasks, err := a.ctx.Store.ListTasks(ctx, goalID)
	if err != nil {
		return nil, err
	}
	goal, err := a.ctx.Store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}

	m := task.ComputeGoalMetrics(tasks)
	var (
		target task.GoalState
		from   []task.GoalState
	)
	switch {
	case m.TaskCount > 0 && m.TasksCompleted == m.TaskCount:
		target = task.GoalCompleted
		from = []task.GoalState{task.GoalPending, task.GoalInProgress, task.GoalFailed}
	case m.TasksFailed > 0:
		target = task.GoalFailed
		from = []task.GoalState{task.GoalPending, task.GoalInProgress}
	}

	if target == "" || goal.State == target || !slices.Contains(from, goal.State) {
		if err := a.ctx.Store.TouchGoal(ctx, goalID); err != nil {
			return nil, err
		}
		return a.ctx.Store.GetGoal(ctx, goalID)
	}

	updated, err := a.ctx.Store.TransitionGoal(ctx, goalID, from, target)
	if errors.Is(err, task.ErrConflict) {
		slog.Debug("goal rolled up concurrently", "goal_id", goalID, "error", err)
		return a.ctx.Store.GetGoal(ctx, goalID)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("goal state changed", "goal_id", goalID, "from", goal.State, "to", target)
	return updated, nil
}
