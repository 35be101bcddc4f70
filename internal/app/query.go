package app

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/josephgoksu/radial/internal/task"
	"github.com/josephgoksu/radial/internal/util"
)

// Entity is the result of resolving an id that may name either a task or a goal.
// It is implemented only by *TaskEntity and *GoalEntity.
type Entity interface {
	Kind() string
	EntityID() string
	isEntity()
}

// TaskEntity is a resolved task.
type TaskEntity struct {
	Task *task.Task `json:"task"`
}

func (*TaskEntity) Kind() string       { return "task" }
func (e *TaskEntity) EntityID() string { return e.Task.ID }
func (*TaskEntity) isEntity()          {}

// GoalEntity is a resolved goal with its tasks in dependency order.
type GoalEntity struct {
	Goal  *task.Goal  `json:"goal"`
	Tasks []task.Task `json:"tasks"`
}

func (*GoalEntity) Kind() string       { return "goal" }
func (e *GoalEntity) EntityID() string { return e.Goal.ID }
func (*GoalEntity) isEntity()          {}

// GoalWithTasks pairs a goal with its ordered tasks.
type GoalWithTasks struct {
	Goal  task.Goal   `json:"goal"`
	Tasks []task.Task `json:"tasks"`
}

// StatusReport is the answer to `status`: one task, one goal with its tasks, or all goals.
type StatusReport struct {
	Task  *task.Task  `json:"task,omitempty"`
	Goal  *task.Goal  `json:"goal,omitempty"`
	Tasks []task.Task `json:"tasks,omitempty"`
	Goals []task.Goal `json:"goals,omitempty"`
}

// QueryApp provides read-only views across goals and tasks.
type QueryApp struct {
	ctx *Context
}

// NewQueryApp creates a new query service.
func NewQueryApp(ctx *Context) *QueryApp {
	return &QueryApp{ctx: ctx}
}

// Show resolves id as a task first, then as a goal.
func (a *QueryApp) Show(ctx context.Context, id string) (Entity, error) {
	id = strings.TrimSpace(id)
	t, err := a.ctx.Store.GetTask(ctx, id)
	if err == nil {
		return &TaskEntity{Task: t}, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	g, err := a.ctx.Store.GetGoal(ctx, id)
	if err == nil {
		tasks, err := a.ctx.Store.ListTasks(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		return &GoalEntity{Goal: g, Tasks: orderTasks(g.ID, tasks)}, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	nf := &task.NotFoundError{Kind: "entity", ID: id}
	goalIDs, gerr := a.ctx.goalIDs(ctx)
	taskIDs, terr := a.ctx.Store.ListTaskIDs(ctx)
	if err := errors.Join(gerr, terr); err == nil {
		nf.Suggestion, _ = util.FindSimilarID(id, slices.Concat(taskIDs, goalIDs))
	}
	return nil, nf
}

// ListAll returns every goal with its ordered tasks.
func (a *QueryApp) ListAll(ctx context.Context) ([]GoalWithTasks, error) {
	goals, err := a.ctx.Store.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GoalWithTasks, 0, len(goals))
	for _, g := range goals {
		tasks, err := a.ctx.Store.ListTasks(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, GoalWithTasks{Goal: g, Tasks: orderTasks(g.ID, tasks)})
	}
	return out, nil
}

// Status reports on a task, a goal, or every goal when both ids are empty.
func (a *QueryApp) Status(ctx context.Context, goalID, taskID string) (*StatusReport, error) {
	goalID, taskID = strings.TrimSpace(goalID), strings.TrimSpace(taskID)
	switch {
	case goalID != "" && taskID != "":
		return nil, &task.ValidationError{Message: "pass either a goal or a task, not both"}
	case taskID != "":
		t, err := a.ctx.getTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		return &StatusReport{Task: t}, nil
	case goalID != "":
		g, err := a.ctx.getGoal(ctx, goalID)
		if err != nil {
			return nil, err
		}
		tasks, err := a.ctx.Store.ListTasks(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		return &StatusReport{Goal: g, Tasks: orderTasks(g.ID, tasks)}, nil
	}
	goals, err := a.ctx.Store.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusReport{Goals: goals}, nil
}

// Ready lists the tasks of a goal that can be started now: pending with a contract.
func (a *QueryApp) Ready(ctx context.Context, goalID string) ([]task.Task, error) {
	g, err := a.ctx.getGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	tasks, err := a.ctx.Store.ListTasks(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	ready := []task.Task{}
	for _, t := range orderTasks(g.ID, tasks) {
		if t.State == task.StatePending && t.HasContract() {
			ready = append(ready, t)
		}
	}
	return ready, nil
}
