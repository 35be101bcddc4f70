package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/josephgoksu/radial/internal/task"
)

// File names used by the JSONL backend.
const (
	GoalsFileName = "goals.jsonl"
	TasksFileName = "tasks.jsonl"
	LockFileName  = "radial.lock"
)

const lockRetryDelay = 25 * time.Millisecond

// ErrLockTimeout is returned when another process holds the store lock too long.
var ErrLockTimeout = errors.New("timed out waiting for store lock")

// FileStore implements Store as one JSON record per line per entity type.
//
// Writers hold an exclusive flock on radial.lock while they load both files,
// apply the change and replace each file through write-temp, fsync, rename.
// Readers hold a shared lock, so they always see both files from the same write.
type FileStore struct {
	dir         string
	flk         *flock.Flock
	lockTimeout time.Duration
}

var _ Store = (*FileStore)(nil)

// goalRecord is the persisted form of a goal. Metrics are derived, not stored.
type goalRecord struct {
	ID          string         `json:"id"`
	ParentID    string         `json:"parent_id,omitempty"`
	Description string         `json:"description"`
	State       task.GoalState `json:"state"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// snapshot is the full store contents loaded under the lock.
type snapshot struct {
	goals []goalRecord
	tasks []task.Task
}

// NewFileStore prepares dir for the JSONL backend.
func NewFileStore(dir string, lockTimeout time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, task.StorageErr("create store directory", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &FileStore{
		dir:         dir,
		flk:         flock.New(filepath.Join(dir, LockFileName)),
		lockTimeout: lockTimeout,
	}, nil
}

// Close releases the lock file handle.
func (s *FileStore) Close() error {
	return s.flk.Close()
}

func (s *FileStore) acquire(ctx context.Context, shared bool) error {
	lctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var ok bool
	var err error
	if shared {
		ok, err = s.flk.TryRLockContext(lctx, lockRetryDelay)
	} else {
		ok, err = s.flk.TryLockContext(lctx, lockRetryDelay)
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return task.StorageErr("acquire store lock", err)
	}
	if !ok {
		return task.StorageErr("acquire store lock", ErrLockTimeout)
	}
	return nil
}

// view loads a consistent snapshot under a shared lock.
func (s *FileStore) view(ctx context.Context, fn func(*snapshot) error) error {
	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer func() { _ = s.flk.Unlock() }()

	snap, err := s.load()
	if err != nil {
		return err
	}
	return fn(snap)
}

// update loads, mutates and atomically rewrites the store under an exclusive lock.
// Nothing is written when fn returns an error.
func (s *FileStore) update(ctx context.Context, fn func(*snapshot) error) error {
	if err := s.acquire(ctx, false); err != nil {
		return err
	}
	defer func() { _ = s.flk.Unlock() }()

	snap, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.save(snap)
}

func (s *FileStore) load() (*snapshot, error) {
	snap := &snapshot{}
	if err := readJSONL(filepath.Join(s.dir, GoalsFileName), func(line []byte) error {
		var g goalRecord
		if err := json.Unmarshal(line, &g); err != nil {
			return err
		}
		snap.goals = append(snap.goals, g)
		return nil
	}); err != nil {
		return nil, err
	}

	goalIDs := make(map[string]bool, len(snap.goals))
	for _, g := range snap.goals {
		goalIDs[g.ID] = true
	}
	if err := readJSONL(filepath.Join(s.dir, TasksFileName), func(line []byte) error {
		var t task.Task
		if err := json.Unmarshal(line, &t); err != nil {
			return err
		}
		// Tasks never outlive their goal.
		if !goalIDs[t.GoalID] {
			slog.Warn("dropping task of missing goal", "task_id", t.ID, "goal_id", t.GoalID)
			return nil
		}
		if t.BlockedBy == nil {
			t.BlockedBy = []string{}
		}
		if t.Comments == nil {
			t.Comments = []task.Comment{}
		}
		snap.tasks = append(snap.tasks, t)
		return nil
	}); err != nil {
		return nil, err
	}
	return snap, nil
}

func readJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return task.StorageErr("open "+filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return task.StorageErr(fmt.Sprintf("corrupt record %s:%d", filepath.Base(path), lineNo), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return task.StorageErr("read "+filepath.Base(path), err)
	}
	return nil
}

func (s *FileStore) save(snap *snapshot) error {
	var goals bytes.Buffer
	enc := json.NewEncoder(&goals)
	for _, g := range snap.goals {
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("encode goal %s: %w", g.ID, err)
		}
	}
	var tasks bytes.Buffer
	enc = json.NewEncoder(&tasks)
	for _, t := range snap.tasks {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode task %s: %w", t.ID, err)
		}
	}

	if err := s.writeAtomic(GoalsFileName, goals.Bytes()); err != nil {
		return err
	}
	if err := s.writeAtomic(TasksFileName, tasks.Bytes()); err != nil {
		return err
	}
	return s.syncDir()
}

// writeAtomic replaces name with data via temp file, fsync and rename.
func (s *FileStore) writeAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	defer func() { _ = os.Remove(tmp) }()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return task.StorageErr("create temp "+name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return task.StorageErr("write temp "+name, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return task.StorageErr("sync temp "+name, err)
	}
	if err := f.Close(); err != nil {
		return task.StorageErr("close temp "+name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return task.StorageErr("replace "+name, err)
	}
	return nil
}

func (s *FileStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return task.StorageErr("open store directory", err)
	}
	defer func() { _ = d.Close() }()
	// Some filesystems reject fsync on directories; the renames are already durable there.
	_ = d.Sync()
	return nil
}

// === snapshot helpers ===

func (snap *snapshot) goalIndex(id string) int {
	return slices.IndexFunc(snap.goals, func(g goalRecord) bool { return g.ID == id })
}

func (snap *snapshot) taskIndex(id string) int {
	return slices.IndexFunc(snap.tasks, func(t task.Task) bool { return t.ID == id })
}

// checkBlockers rejects blocked_by ids that are not tasks of goalID.
func (snap *snapshot) checkBlockers(goalID string, blockedBy []string) error {
	for _, dep := range blockedBy {
		i := snap.taskIndex(dep)
		if i < 0 || snap.tasks[i].GoalID != goalID {
			return blockerMissing(dep, goalID)
		}
	}
	return nil
}

func (snap *snapshot) goalTasks(goalID string) []task.Task {
	var out []task.Task
	for _, t := range snap.tasks {
		if t.GoalID == goalID {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

func (snap *snapshot) toGoal(r goalRecord) task.Goal {
	return task.Goal{
		ID:          r.ID,
		ParentID:    r.ParentID,
		Description: r.Description,
		State:       r.State,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
		Metrics:     task.ComputeGoalMetrics(snap.goalTasks(r.ID)),
	}
}

// cloneTask copies the slices and pointers so callers cannot alias snapshot data.
func cloneTask(t task.Task) task.Task {
	out := t
	out.BlockedBy = slices.Clone(t.BlockedBy)
	if out.BlockedBy == nil {
		out.BlockedBy = []string{}
	}
	out.Comments = slices.Clone(t.Comments)
	if out.Comments == nil {
		out.Comments = []task.Comment{}
	}
	if t.Contract != nil {
		c := *t.Contract
		out.Contract = &c
	}
	if t.Result != nil {
		r := *t.Result
		r.Artifacts = slices.Clone(t.Result.Artifacts)
		out.Result = &r
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}

// casTask finds a task and checks it is in one of the expected states.
func (snap *snapshot) casTask(id string, from []task.TaskState) (*task.Task, error) {
	i := snap.taskIndex(id)
	if i < 0 {
		return nil, taskNotFound(id)
	}
	t := &snap.tasks[i]
	if !slices.Contains(from, t.State) {
		return nil, task.NewTaskConflict(id, from, t.State)
	}
	return t, nil
}

// === Goals ===

// CreateGoal inserts a new goal.
func (s *FileStore) CreateGoal(ctx context.Context, g *task.Goal) error {
	ts := now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = ts
	}
	g.UpdatedAt = g.CreatedAt
	if g.State == "" {
		g.State = task.GoalPending
	}
	if err := g.Validate(); err != nil {
		return &task.ValidationError{Field: "goal", Message: err.Error()}
	}
	return s.update(ctx, func(snap *snapshot) error {
		if snap.goalIndex(g.ID) >= 0 {
			return task.ErrDuplicateID
		}
		snap.goals = append(snap.goals, goalRecord{
			ID:          g.ID,
			ParentID:    g.ParentID,
			Description: g.Description,
			State:       g.State,
			CreatedAt:   g.CreatedAt,
			UpdatedAt:   g.UpdatedAt,
			CompletedAt: g.CompletedAt,
		})
		return nil
	})
}

// GetGoal retrieves a goal by ID.
func (s *FileStore) GetGoal(ctx context.Context, id string) (*task.Goal, error) {
	var out *task.Goal
	err := s.view(ctx, func(snap *snapshot) error {
		i := snap.goalIndex(id)
		if i < 0 {
			return goalNotFound(id)
		}
		g := snap.toGoal(snap.goals[i])
		out = &g
		return nil
	})
	return out, err
}

// ListGoals returns all goals in creation order.
func (s *FileStore) ListGoals(ctx context.Context) ([]task.Goal, error) {
	var out []task.Goal
	err := s.view(ctx, func(snap *snapshot) error {
		for _, r := range snap.goals {
			out = append(out, snap.toGoal(r))
		}
		return nil
	})
	return out, err
}

// UpdateGoalDescription replaces a goal's description.
func (s *FileStore) UpdateGoalDescription(ctx context.Context, id, description string) (*task.Goal, error) {
	var out *task.Goal
	err := s.update(ctx, func(snap *snapshot) error {
		i := snap.goalIndex(id)
		if i < 0 {
			return goalNotFound(id)
		}
		snap.goals[i].Description = description
		snap.goals[i].UpdatedAt = now()
		g := snap.toGoal(snap.goals[i])
		out = &g
		return nil
	})
	return out, err
}

// TransitionGoal conditionally moves a goal between states.
func (s *FileStore) TransitionGoal(ctx context.Context, id string, from []task.GoalState, to task.GoalState) (*task.Goal, error) {
	var out *task.Goal
	err := s.update(ctx, func(snap *snapshot) error {
		i := snap.goalIndex(id)
		if i < 0 {
			return goalNotFound(id)
		}
		r := &snap.goals[i]
		if !slices.Contains(from, r.State) {
			return task.NewGoalConflict(id, from, r.State)
		}
		ts := now()
		r.State = to
		r.UpdatedAt = ts
		r.CompletedAt = nil
		if to == task.GoalCompleted {
			r.CompletedAt = &ts
		}
		g := snap.toGoal(*r)
		out = &g
		return nil
	})
	return out, err
}

// TouchGoal bumps a goal's updated_at.
func (s *FileStore) TouchGoal(ctx context.Context, id string) error {
	return s.update(ctx, func(snap *snapshot) error {
		i := snap.goalIndex(id)
		if i < 0 {
			return goalNotFound(id)
		}
		snap.goals[i].UpdatedAt = now()
		return nil
	})
}

// DeleteGoal removes a goal and its tasks.
func (s *FileStore) DeleteGoal(ctx context.Context, id string) (int, error) {
	removed := 0
	err := s.update(ctx, func(snap *snapshot) error {
		i := snap.goalIndex(id)
		if i < 0 {
			return goalNotFound(id)
		}
		snap.goals = slices.Delete(snap.goals, i, i+1)
		kept := snap.tasks[:0]
		for _, t := range snap.tasks {
			if t.GoalID == id {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		snap.tasks = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// === Tasks ===

// CreateTask adds a new task to a goal.
func (s *FileStore) CreateTask(ctx context.Context, t *task.Task) error {
	ts := now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = ts
	}
	t.UpdatedAt = t.CreatedAt
	if t.State == "" {
		t.State = task.InitialState(t.BlockedBy)
	}
	if t.BlockedBy == nil {
		t.BlockedBy = []string{}
	}
	if t.Comments == nil {
		t.Comments = []task.Comment{}
	}
	if err := t.Validate(); err != nil {
		return &task.ValidationError{Field: "task", Message: err.Error()}
	}
	return s.update(ctx, func(snap *snapshot) error {
		if snap.goalIndex(t.GoalID) < 0 {
			return goalNotFound(t.GoalID)
		}
		if snap.taskIndex(t.ID) >= 0 {
			return task.ErrDuplicateID
		}
		if err := snap.checkBlockers(t.GoalID, t.BlockedBy); err != nil {
			return err
		}
		snap.tasks = append(snap.tasks, cloneTask(*t))
		return nil
	})
}

// GetTask retrieves a task by ID.
func (s *FileStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var out *task.Task
	err := s.view(ctx, func(snap *snapshot) error {
		i := snap.taskIndex(id)
		if i < 0 {
			return taskNotFound(id)
		}
		t := cloneTask(snap.tasks[i])
		out = &t
		return nil
	})
	return out, err
}

// ListTasks returns all tasks for a goal in creation order.
func (s *FileStore) ListTasks(ctx context.Context, goalID string) ([]task.Task, error) {
	var out []task.Task
	err := s.view(ctx, func(snap *snapshot) error {
		out = snap.goalTasks(goalID)
		return nil
	})
	return out, err
}

// ListTaskIDs returns all task ids.
func (s *FileStore) ListTaskIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.view(ctx, func(snap *snapshot) error {
		for _, t := range snap.tasks {
			out = append(out, t.ID)
		}
		return nil
	})
	return out, err
}

// TransitionTask conditionally moves a task between states.
func (s *FileStore) TransitionTask(ctx context.Context, id string, from []task.TaskState, to task.TaskState) (*task.Task, error) {
	if to == task.StateCompleted {
		return nil, fmt.Errorf("use CompleteTask to complete task %s", id)
	}
	if len(from) == 0 {
		return nil, fmt.Errorf("transition task %s: no expected state", id)
	}
	var out *task.Task
	err := s.update(ctx, func(snap *snapshot) error {
		t, err := snap.casTask(id, from)
		if err != nil {
			return err
		}
		t.State = to
		t.UpdatedAt = now()
		t.Result = nil
		t.CompletedAt = nil
		c := cloneTask(*t)
		out = &c
		return nil
	})
	return out, err
}

// CompleteTask marks an in_progress task as completed with its outcome.
func (s *FileStore) CompleteTask(ctx context.Context, id string, c Completion) (*task.Task, error) {
	if c.Outcome.Artifacts == nil {
		c.Outcome.Artifacts = []string{}
	}
	var out *task.Task
	err := s.update(ctx, func(snap *snapshot) error {
		t, err := snap.casTask(id, []task.TaskState{task.StateInProgress})
		if err != nil {
			return err
		}
		ts := now()
		outcome := c.Outcome
		outcome.Artifacts = slices.Clone(c.Outcome.Artifacts)
		t.State = task.StateCompleted
		t.Result = &outcome
		t.CompletedAt = &ts
		t.UpdatedAt = ts
		t.Metrics.Tokens += c.Tokens
		t.Metrics.ElapsedMs += c.ElapsedMs
		cp := cloneTask(*t)
		out = &cp
		return nil
	})
	return out, err
}

// RetryTask moves a failed task back to in_progress.
func (s *FileStore) RetryTask(ctx context.Context, id string) (*task.Task, error) {
	var out *task.Task
	err := s.update(ctx, func(snap *snapshot) error {
		t, err := snap.casTask(id, []task.TaskState{task.StateFailed})
		if err != nil {
			return err
		}
		t.State = task.StateInProgress
		t.Metrics.RetryCount++
		t.UpdatedAt = now()
		c := cloneTask(*t)
		out = &c
		return nil
	})
	return out, err
}

// UpdateTask applies an edit guarded by patch.Expect.
func (s *FileStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*task.Task, error) {
	var out *task.Task
	err := s.update(ctx, func(snap *snapshot) error {
		t, err := snap.casTask(id, []task.TaskState{patch.Expect})
		if err != nil {
			return err
		}
		if patch.SetBlockedBy {
			if err := snap.checkBlockers(t.GoalID, patch.BlockedBy); err != nil {
				return err
			}
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Contract != nil {
			c := *patch.Contract
			t.Contract = &c
		}
		if patch.SetBlockedBy {
			t.BlockedBy = slices.Clone(patch.BlockedBy)
			if t.BlockedBy == nil {
				t.BlockedBy = []string{}
			}
		}
		if patch.State != nil {
			t.State = *patch.State
		}
		t.UpdatedAt = now()
		c := cloneTask(*t)
		out = &c
		return nil
	})
	return out, err
}

// AddComment appends a note to a task.
func (s *FileStore) AddComment(ctx context.Context, id, text string) (*task.Task, error) {
	var out *task.Task
	err := s.update(ctx, func(snap *snapshot) error {
		i := snap.taskIndex(id)
		if i < 0 {
			return taskNotFound(id)
		}
		ts := now()
		t := &snap.tasks[i]
		t.Comments = append(t.Comments, task.Comment{Text: text, CreatedAt: ts})
		t.UpdatedAt = ts
		c := cloneTask(*t)
		out = &c
		return nil
	})
	return out, err
}

// DeleteTask removes a pending task that nothing depends on.
func (s *FileStore) DeleteTask(ctx context.Context, id string) error {
	return s.update(ctx, func(snap *snapshot) error {
		dependents := 0
		for _, t := range snap.tasks {
			if slices.Contains(t.BlockedBy, id) {
				dependents++
			}
		}
		if dependents > 0 {
			return &task.ValidationError{
				Field:   "task",
				Message: fmt.Sprintf("task %s is a blocker of %d other task(s)", id, dependents),
			}
		}
		if _, err := snap.casTask(id, []task.TaskState{task.StatePending}); err != nil {
			return err
		}
		i := snap.taskIndex(id)
		snap.tasks = slices.Delete(snap.tasks, i, i+1)
		return nil
	})
}
