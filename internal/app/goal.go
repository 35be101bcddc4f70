package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/josephgoksu/radial/internal/task"
)

// GoalApp provides goal operations.
type GoalApp struct {
	ctx *Context
}

// NewGoalApp creates a new goal application service.
func NewGoalApp(ctx *Context) *GoalApp {
	return &GoalApp{ctx: ctx}
}

// Create adds a new pending goal.
func (a *GoalApp) Create(ctx context.Context, description string) (*task.Goal, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, &task.ValidationError{Field: "description", Message: "must not be empty"}
	}

	g := &task.Goal{Description: description, State: task.GoalPending}
	id, err := a.ctx.insertWithFreshID(func(id string) error {
		g.ID = id
		return a.ctx.Store.CreateGoal(ctx, g)
	})
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	slog.Debug("goal created", "goal_id", id)
	return a.ctx.Store.GetGoal(ctx, id)
}

// List returns all goals, oldest first.
func (a *GoalApp) List(ctx context.Context) ([]task.Goal, error) {
	return a.ctx.Store.ListGoals(ctx)
}

// Get returns one goal.
func (a *GoalApp) Get(ctx context.Context, id string) (*task.Goal, error) {
	return a.ctx.getGoal(ctx, id)
}

// Edit replaces a goal's description.
func (a *GoalApp) Edit(ctx context.Context, id, description string) (*task.Goal, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, &task.ValidationError{Field: "description", Message: "must not be empty"}
	}
	if _, err := a.ctx.getGoal(ctx, id); err != nil {
		return nil, err
	}
	return a.ctx.Store.UpdateGoalDescription(ctx, id, description)
}

// Delete removes a goal. A goal that still has tasks is only removed when cascade is set.
// It returns the number of tasks removed with the goal.
func (a *GoalApp) Delete(ctx context.Context, id string, cascade bool) (int, error) {
	g, err := a.ctx.getGoal(ctx, id)
	if err != nil {
		return 0, err
	}
	if !cascade && g.Metrics.TaskCount > 0 {
		return 0, &task.ValidationError{
			Field:   "cascade",
			Message: fmt.Sprintf("goal %s has %d task(s); delete with cascade to remove them", id, g.Metrics.TaskCount),
		}
	}
	removed, err := a.ctx.Store.DeleteGoal(ctx, id)
	if err != nil {
		return 0, err
	}
	slog.Info("goal deleted", "goal_id", id, "tasks_removed", removed)
	return removed, nil
}

// CleanCandidates lists the goals `clean` would remove: completed goals, or every
// goal when force is set.
func (a *GoalApp) CleanCandidates(ctx context.Context, force bool) ([]task.Goal, error) {
	goals, err := a.ctx.Store.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	if force {
		return goals, nil
	}
	var out []task.Goal
	for _, g := range goals {
		if g.State == task.GoalCompleted {
			out = append(out, g)
		}
	}
	return out, nil
}

// CleanResult reports what Clean removed.
type CleanResult struct {
	Goals        []task.Goal `json:"goals"`
	TasksRemoved int         `json:"tasks_removed"`
}

// Clean removes the given goals with their tasks. Goals already gone are skipped.
func (a *GoalApp) Clean(ctx context.Context, goals []task.Goal) (*CleanResult, error) {
	res := &CleanResult{Goals: []task.Goal{}}
	for _, g := range goals {
		n, err := a.ctx.Store.DeleteGoal(ctx, g.ID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return res, err
		}
		res.Goals = append(res.Goals, g)
		res.TasksRemoved += n
	}
	return res, nil
}
