package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/josephgoksu/radial/internal/memory"
	"github.com/josephgoksu/radial/internal/task"
	"github.com/josephgoksu/radial/internal/util"
)

// CreateTaskInput configures a new task.
type CreateTaskInput struct {
	GoalID      string             `json:"goal_id" validate:"required"`
	Description string             `json:"description" validate:"required"`
	Contract    task.ContractPatch `json:"-"`
	BlockedBy   []string           `json:"blocked_by"`
}

// CompleteTaskInput records the outcome of an in-progress task.
type CompleteTaskInput struct {
	TaskID    string   `json:"task_id" validate:"required"`
	Summary   string   `json:"result" validate:"required"`
	Artifacts []string `json:"artifacts"`
	Tokens    int64    `json:"tokens" validate:"gte=0"`
	ElapsedMs int64    `json:"elapsed" validate:"gte=0"`
}

// EditTaskInput carries the fields to change. Nil or unset fields are left alone.
type EditTaskInput struct {
	TaskID      string             `json:"task_id" validate:"required"`
	Description *string            `json:"description"`
	Contract    task.ContractPatch `json:"-"`
	// BlockedBy replaces the dependency list when SetBlockedBy is true.
	BlockedBy    []string `json:"blocked_by"`
	SetBlockedBy bool     `json:"-"`
}

// CompleteResult is what a completion changed.
type CompleteResult struct {
	Task      *task.Task `json:"task"`
	Unblocked []string   `json:"unblocked"`
	Goal      *task.Goal `json:"goal"`
}

// TaskApp provides task lifecycle operations.
// This is THE implementation - the CLI only renders what these methods return.
type TaskApp struct {
	ctx *Context
}

// NewTaskApp creates a new task application service.
func NewTaskApp(ctx *Context) *TaskApp {
	return &TaskApp{ctx: ctx}
}

// Create adds a task to a goal. A task with blockers starts blocked, otherwise pending.
// Creating a task moves a pending goal to in_progress and reopens a completed one.
func (a *TaskApp) Create(ctx context.Context, in CreateTaskInput) (*task.Task, error) {
	in.GoalID = strings.TrimSpace(in.GoalID)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	goal, err := a.ctx.getGoal(ctx, in.GoalID)
	if err != nil {
		return nil, err
	}

	blockedBy := task.DedupIDs(in.BlockedBy)
	if len(blockedBy) > 0 {
		siblings, err := a.ctx.Store.ListTasks(ctx, goal.ID)
		if err != nil {
			return nil, err
		}
		if err := checkBlockers(goal.ID, "", blockedBy, siblings); err != nil {
			return nil, err
		}
	}

	t := &task.Task{
		GoalID:      goal.ID,
		Description: in.Description,
		Contract:    task.NewContract(in.Contract),
		State:       task.InitialState(blockedBy),
		BlockedBy:   blockedBy,
	}
	id, err := a.ctx.insertWithFreshID(func(id string) error {
		t.ID = id
		return a.ctx.Store.CreateTask(ctx, t)
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	slog.Debug("task created", "task_id", id, "goal_id", goal.ID, "state", t.State)

	if goal.State == task.GoalPending || goal.State == task.GoalCompleted {
		_, err := a.ctx.Store.TransitionGoal(ctx, goal.ID,
			[]task.GoalState{task.GoalPending, task.GoalCompleted}, task.GoalInProgress)
		switch {
		case errors.Is(err, task.ErrConflict):
			slog.Debug("goal state changed concurrently", "goal_id", goal.ID, "error", err)
		case err != nil:
			return nil, fmt.Errorf("activate goal %s: %w", goal.ID, err)
		}
	}

	return a.ctx.Store.GetTask(ctx, id)
}

// checkBlockers rejects blocked_by entries that are not tasks of the goal.
// self is the id of the task being edited, or "" on create.
func checkBlockers(goalID, self string, blockedBy []string, siblings []task.Task) error {
	ids := taskIDs(siblings)
	for _, dep := range blockedBy {
		if dep == self {
			return &task.ValidationError{Field: "blocked_by", Message: fmt.Sprintf("task %s cannot block itself", self)}
		}
		if slices.Contains(ids, dep) {
			continue
		}
		candidates := slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == self })
		suggestion, _ := util.FindSimilarID(dep, candidates)
		return &task.ValidationError{
			Field:      "blocked_by",
			Message:    fmt.Sprintf("task %s not found in goal %s", dep, goalID),
			Suggestion: suggestion,
		}
	}
	return nil
}

// List returns a goal's tasks in dependency order.
func (a *TaskApp) List(ctx context.Context, goalID string) ([]task.Task, error) {
	if _, err := a.ctx.getGoal(ctx, goalID); err != nil {
		return nil, err
	}
	tasks, err := a.ctx.Store.ListTasks(ctx, goalID)
	if err != nil {
		return nil, err
	}
	return orderTasks(goalID, tasks), nil
}

// Get returns one task.
func (a *TaskApp) Get(ctx context.Context, id string) (*task.Task, error) {
	return a.ctx.getTask(ctx, id)
}

// Start claims a pending task. The task must have a contract.
func (a *TaskApp) Start(ctx context.Context, id string) (*task.Task, error) {
	t, err := a.ctx.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.HasContract() {
		return nil, &task.InvalidStateError{Entity: "task", ID: id, Op: "start", Current: string(t.State), NeedsContract: true}
	}
	if t.State == task.StateBlocked {
		blockers, err := a.openBlockers(ctx, t)
		if err != nil {
			return nil, err
		}
		return nil, &task.InvalidStateError{Entity: "task", ID: id, Op: "start", Current: string(t.State), Blockers: blockers}
	}
	if t.State != task.StatePending {
		return nil, &task.InvalidStateError{Entity: "task", ID: id, Op: "start", Current: string(t.State)}
	}

	started, err := a.ctx.Store.TransitionTask(ctx, id, []task.TaskState{task.StatePending}, task.StateInProgress)
	if err != nil {
		return nil, err
	}
	slog.Debug("task started", "task_id", id)
	return started, nil
}

// openBlockers lists the blockers of t that are not completed yet.
func (a *TaskApp) openBlockers(ctx context.Context, t *task.Task) ([]string, error) {
	siblings, err := a.ctx.Store.ListTasks(ctx, t.GoalID)
	if err != nil {
		return nil, err
	}
	states := stateIndex(siblings)
	var open []string
	for _, dep := range t.BlockedBy {
		if states[dep] != task.StateCompleted {
			open = append(open, dep)
		}
	}
	if len(open) == 0 {
		return t.BlockedBy, nil
	}
	return open, nil
}

// Complete records the outcome of an in-progress task, unblocks its dependents and
// rolls the goal up.
func (a *TaskApp) Complete(ctx context.Context, in CompleteTaskInput) (*CompleteResult, error) {
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.Summary = strings.TrimSpace(in.Summary)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	t, err := a.ctx.getTask(ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	if t.State != task.StateInProgress {
		return nil, &task.InvalidStateError{Entity: "task", ID: t.ID, Op: "complete", Current: string(t.State)}
	}

	artifacts := in.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	done, err := a.ctx.Store.CompleteTask(ctx, t.ID, memory.Completion{
		Outcome:   task.Outcome{Summary: in.Summary, Artifacts: artifacts},
		Tokens:    in.Tokens,
		ElapsedMs: in.ElapsedMs,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("task completed", "task_id", t.ID)

	unblocked, goal, err := a.cascade(ctx, done)
	if err != nil {
		return nil, fmt.Errorf("task %s completed but cascade failed (run `rd task reconcile %s`): %w", t.ID, t.GoalID, err)
	}
	return &CompleteResult{Task: done, Unblocked: unblocked, Goal: goal}, nil
}

// Fail marks an in-progress or verifying task as failed.
func (a *TaskApp) Fail(ctx context.Context, id string) (*task.Task, error) {
	from := []task.TaskState{task.StateInProgress, task.StateVerifying}
	t, err := a.ctx.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(from, t.State) {
		return nil, &task.InvalidStateError{Entity: "task", ID: id, Op: "fail", Current: string(t.State)}
	}
	failed, err := a.ctx.Store.TransitionTask(ctx, id, from, task.StateFailed)
	if err != nil {
		return nil, err
	}
	slog.Debug("task failed", "task_id", id)
	return failed, nil
}

// Retry moves a failed task back to in_progress and counts the attempt.
func (a *TaskApp) Retry(ctx context.Context, id string) (*task.Task, error) {
	t, err := a.ctx.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.State != task.StateFailed {
		return nil, &task.InvalidStateError{Entity: "task", ID: id, Op: "retry", Current: string(t.State)}
	}
	retried, err := a.ctx.Store.RetryTask(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Debug("task retried", "task_id", id, "retry_count", retried.Metrics.RetryCount)
	return retried, nil
}

// Edit changes a task's description, contract or dependencies.
// Replacing blocked_by on a pending or blocked task re-derives which of the two it is in.
func (a *TaskApp) Edit(ctx context.Context, in EditTaskInput) (*task.Task, error) {
	in.TaskID = strings.TrimSpace(in.TaskID)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Description == nil && in.Contract.Empty() && !in.SetBlockedBy {
		return nil, &task.ValidationError{Message: "nothing to edit: pass a description, contract field or blocked_by"}
	}

	t, err := a.ctx.getTask(ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	patch := memory.TaskPatch{Expect: t.State}

	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			return nil, &task.ValidationError{Field: "description", Message: "must not be empty"}
		}
		patch.Description = &desc
	}
	if !in.Contract.Empty() {
		patch.Contract = in.Contract.Apply(t.Contract)
	}
	if in.SetBlockedBy {
		blockedBy := task.DedupIDs(in.BlockedBy)
		siblings, err := a.ctx.Store.ListTasks(ctx, t.GoalID)
		if err != nil {
			return nil, err
		}
		if err := checkBlockers(t.GoalID, t.ID, blockedBy, siblings); err != nil {
			return nil, err
		}

		proposed := slices.Clone(siblings)
		for i := range proposed {
			if proposed[i].ID == t.ID {
				proposed[i].BlockedBy = blockedBy
			}
		}
		if err := task.VerifyDAG(proposed); err != nil {
			return nil, &task.ValidationError{Field: "blocked_by", Message: err.Error(), Err: err}
		}

		patch.BlockedBy = blockedBy
		patch.SetBlockedBy = true
		if t.State == task.StatePending || t.State == task.StateBlocked {
			next := task.StatePending
			if !allCompleted(blockedBy, stateIndex(siblings)) {
				next = task.StateBlocked
			}
			if next != t.State {
				patch.State = &next
			}
		}
	}

	edited, err := a.ctx.Store.UpdateTask(ctx, t.ID, patch)
	if err != nil {
		return nil, err
	}
	if patch.SetBlockedBy && edited.State == task.StateBlocked {
		// A blocker may have completed after siblings was read; its cascade
		// saw the old blocked_by and skipped this task.
		if edited, err = a.releaseIfReady(ctx, edited); err != nil {
			return nil, err
		}
	}
	slog.Debug("task edited", "task_id", t.ID, "state", edited.State)
	return edited, nil
}

// releaseIfReady moves a blocked task to pending when a fresh read shows all
// its blockers completed.
func (a *TaskApp) releaseIfReady(ctx context.Context, t *task.Task) (*task.Task, error) {
	tasks, err := a.ctx.Store.ListTasks(ctx, t.GoalID)
	if err != nil {
		return nil, err
	}
	released, err := a.unblock(ctx, tasks, func(x task.Task) bool { return x.ID == t.ID })
	if err != nil {
		return nil, err
	}
	if len(released) == 0 {
		return t, nil
	}
	slog.Info("tasks unblocked", "by", "edit", "tasks", released)
	return a.ctx.Store.GetTask(ctx, t.ID)
}

// Comment appends a note to a task.
func (a *TaskApp) Comment(ctx context.Context, id, text string) (*task.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &task.ValidationError{Field: "comment", Message: "must not be empty"}
	}
	if _, err := a.ctx.getTask(ctx, id); err != nil {
		return nil, err
	}
	return a.ctx.Store.AddComment(ctx, id, text)
}

// Delete removes a pending task that no other task depends on.
func (a *TaskApp) Delete(ctx context.Context, id string) error {
	t, err := a.ctx.getTask(ctx, id)
	if err != nil {
		return err
	}
	if t.State != task.StatePending {
		return &task.InvalidStateError{Entity: "task", ID: id, Op: "delete", Current: string(t.State)}
	}
	if err := a.ctx.Store.DeleteTask(ctx, id); err != nil {
		return err
	}
	slog.Info("task deleted", "task_id", id, "goal_id", t.GoalID)
	// The deleted task may have been the last one keeping the goal open.
	if _, err := a.rollup(ctx, t.GoalID); err != nil {
		return err
	}
	return nil
}

func stateIndex(tasks []task.Task) map[string]task.TaskState {
	states := make(map[string]task.TaskState, len(tasks))
	for _, t := range tasks {
		states[t.ID] = t.State
	}
	return states
}

// allCompleted reports whether every id is a completed task. Unknown ids count as open.
func allCompleted(ids []string, states map[string]task.TaskState) bool {
	for _, id := range ids {
		if states[id] != task.StateCompleted {
			return false
		}
	}
	return true
}

// orderTasks sorts tasks for display. Stored cycles are logged and the full list is kept.
func orderTasks(goalID string, tasks []task.Task) []task.Task {
	sorted, err := task.TopologicalSort(tasks)
	if err != nil {
		slog.Warn("tasks contain a dependency cycle", "goal_id", goalID, "error", err)
	}
	return sorted
}
