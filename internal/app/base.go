// Package app provides the application layer that orchestrates business logic.
// It sits between the CLI and the store: every goal/task operation is implemented
// here once, and the CLI is a thin adapter that renders the results.
// The app layer performs no output.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/josephgoksu/radial/internal/memory"
	"github.com/josephgoksu/radial/internal/task"
	"github.com/josephgoksu/radial/internal/util"
)

// Context holds shared dependencies for all app services.
type Context struct {
	Store memory.Store
	// NewID generates entity ids. Tests replace it to force collisions.
	NewID func() (string, error)
}

// NewContext creates an app context over store.
func NewContext(store memory.Store) *Context {
	return &Context{Store: store, NewID: util.NewID}
}

// insertWithFreshID retries insert with a new id while the store reports a collision.
func (c *Context) insertWithFreshID(insert func(id string) error) (string, error) {
	for attempt := 0; attempt < util.MaxIDAttempts; attempt++ {
		id, err := c.NewID()
		if err != nil {
			return "", err
		}
		err = insert(id)
		if errors.Is(err, task.ErrDuplicateID) {
			continue
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: no free id after %d attempts", task.ErrStorage, util.MaxIDAttempts)
}

// getTask loads a task, enriching a miss with a "did you mean" from all task ids.
func (c *Context) getTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := c.Store.GetTask(ctx, id)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, task.ErrNotFound) {
		return nil, err
	}
	nf := &task.NotFoundError{Kind: "task", ID: id}
	if ids, lerr := c.Store.ListTaskIDs(ctx); lerr == nil {
		nf.Suggestion, _ = util.FindSimilarID(id, ids)
	}
	return nil, nf
}

// getGoal loads a goal, enriching a miss with a "did you mean" from all goal ids.
func (c *Context) getGoal(ctx context.Context, id string) (*task.Goal, error) {
	g, err := c.Store.GetGoal(ctx, id)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, task.ErrNotFound) {
		return nil, err
	}
	nf := &task.NotFoundError{Kind: "goal", ID: id}
	if ids, lerr := c.goalIDs(ctx); lerr == nil {
		nf.Suggestion, _ = util.FindSimilarID(id, ids)
	}
	return nil, nf
}

func (c *Context) goalIDs(ctx context.Context) ([]string, error) {
	goals, err := c.Store.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}
	return ids, nil
}

func taskIDs(tasks []task.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
