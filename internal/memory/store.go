package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/josephgoksu/radial/internal/task"
)

// Store is the persistence layer for goals and tasks.
//
// Lifecycle state changes only through the conditional methods (Transition*,
// CompleteTask, RetryTask, UpdateTask, DeleteTask). Each one applies atomically
// when the entity is still in an expected state and otherwise returns
// *task.ConflictError, or *task.NotFoundError if the entity is gone.
// I/O failures match task.ErrStorage.
type Store interface {
	// === Goals ===

	// CreateGoal inserts g. Returns task.ErrDuplicateID if the id is taken.
	CreateGoal(ctx context.Context, g *task.Goal) error

	// GetGoal returns a goal with metrics derived from its tasks.
	GetGoal(ctx context.Context, id string) (*task.Goal, error)

	// ListGoals returns all goals in creation order.
	ListGoals(ctx context.Context) ([]task.Goal, error)

	// UpdateGoalDescription replaces the description and bumps updated_at.
	UpdateGoalDescription(ctx context.Context, id, description string) (*task.Goal, error)

	// TransitionGoal moves a goal to `to` if its state is one of `from`.
	// completed_at is stamped when `to` is completed and cleared otherwise.
	TransitionGoal(ctx context.Context, id string, from []task.GoalState, to task.GoalState) (*task.Goal, error)

	// TouchGoal bumps updated_at without changing state.
	TouchGoal(ctx context.Context, id string) error

	// DeleteGoal removes a goal with all its tasks and returns how many tasks were removed.
	DeleteGoal(ctx context.Context, id string) (int, error)

	// === Tasks ===

	// CreateTask inserts t under an existing goal. Returns task.ErrDuplicateID if the id is taken.
	CreateTask(ctx context.Context, t *task.Task) error

	// GetTask returns a task with its blocked_by edges and comments.
	GetTask(ctx context.Context, id string) (*task.Task, error)

	// ListTasks returns the tasks of a goal in creation order.
	ListTasks(ctx context.Context, goalID string) ([]task.Task, error)

	// ListTaskIDs returns every task id across all goals.
	ListTaskIDs(ctx context.Context) ([]string, error)

	// TransitionTask moves a task to `to` if its state is one of `from`.
	TransitionTask(ctx context.Context, id string, from []task.TaskState, to task.TaskState) (*task.Task, error)

	// CompleteTask moves an in_progress task to completed and records its outcome.
	CompleteTask(ctx context.Context, id string, c Completion) (*task.Task, error)

	// RetryTask moves a failed task back to in_progress and increments retry_count.
	RetryTask(ctx context.Context, id string) (*task.Task, error)

	// UpdateTask applies an edit if the task is still in patch.Expect.
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*task.Task, error)

	// AddComment appends a comment and bumps updated_at.
	AddComment(ctx context.Context, id, text string) (*task.Task, error)

	// DeleteTask removes a pending task.
	DeleteTask(ctx context.Context, id string) error

	Close() error
}

// Completion carries the fields recorded when a task completes.
type Completion struct {
	Outcome   task.Outcome
	Tokens    int64
	ElapsedMs int64
}

// TaskPatch is a partial task edit guarded by the state the caller observed.
type TaskPatch struct {
	Expect      task.TaskState
	Description *string
	Contract    *task.Contract
	// BlockedBy replaces the edge list when SetBlockedBy is true.
	BlockedBy    []string
	SetBlockedBy bool
	// State, when set, moves the task along with the edit.
	State *task.TaskState
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSONL  = "jsonl"
)

// Options configures Open.
type Options struct {
	Backend     string
	Dir         string
	LockTimeout time.Duration
}

// Open returns the store selected by opts.Backend rooted at opts.Dir.
func Open(opts Options) (Store, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	switch opts.Backend {
	case "", BackendSQLite:
		return NewSQLiteStore(opts.Dir, opts.LockTimeout)
	case BackendJSONL:
		return NewFileStore(opts.Dir, opts.LockTimeout)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// DefaultLockTimeout bounds how long a command waits for another process.
const DefaultLockTimeout = 5 * time.Second

func goalNotFound(id string) error { return &task.NotFoundError{Kind: "goal", ID: id} }
func taskNotFound(id string) error { return &task.NotFoundError{Kind: "task", ID: id} }

func blockerMissing(id, goalID string) error {
	return &task.ValidationError{Field: "blocked_by", Message: fmt.Sprintf("task %s not found in goal %s", id, goalID)}
}
