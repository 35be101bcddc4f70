package task

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// TaskState represents the lifecycle state of a task
type TaskState string

const (
	StatePending    TaskState = "pending"     // Ready to be started once a contract is set
	StateBlocked    TaskState = "blocked"     // Waiting on blocked_by tasks
	StateInProgress TaskState = "in_progress" // Someone is actively working
	StateVerifying  TaskState = "verifying"   // Work done, external verification running
	StateCompleted  TaskState = "completed"   // Done, result recorded
	StateFailed     TaskState = "failed"      // Failed, can be retried
)

// GoalState represents the lifecycle state of a goal
type GoalState string

const (
	GoalPending    GoalState = "pending"
	GoalInProgress GoalState = "in_progress"
	GoalCompleted  GoalState = "completed"
	GoalFailed     GoalState = "failed"
)

// ParseTaskState converts user input into a TaskState.
func ParseTaskState(s string) (TaskState, error) {
	st := TaskState(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatePending, StateBlocked, StateInProgress, StateVerifying, StateCompleted, StateFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown task state %q", s)
}

// IsTerminal reports whether no further lifecycle transition is expected.
func (s GoalState) IsTerminal() bool {
	return s == GoalCompleted || s == GoalFailed
}

// Contract describes what a task receives, what it produces, and how it is verified.
type Contract struct {
	Receives string `json:"receives"`
	Produces string `json:"produces"`
	Verify   string `json:"verify"`
}

// IsSet reports whether a contract was supplied. Supplying a field with an
// empty value still counts.
func (c *Contract) IsSet() bool {
	return c != nil
}

// ContractPatch carries optional contract fields. A nil field is left untouched.
type ContractPatch struct {
	Receives *string
	Produces *string
	Verify   *string
}

// Empty reports whether the patch supplies nothing.
func (p ContractPatch) Empty() bool {
	return p.Receives == nil && p.Produces == nil && p.Verify == nil
}

// NewContract builds a contract from a patch, or nil when nothing was supplied.
// Unsupplied fields are stored as empty strings.
func NewContract(p ContractPatch) *Contract {
	if p.Empty() {
		return nil
	}
	return p.Apply(nil)
}

// Apply merges the supplied fields into a copy of base (or an empty contract).
func (p ContractPatch) Apply(base *Contract) *Contract {
	out := &Contract{}
	if base != nil {
		*out = *base
	}
	if p.Receives != nil {
		out.Receives = *p.Receives
	}
	if p.Produces != nil {
		out.Produces = *p.Produces
	}
	if p.Verify != nil {
		out.Verify = *p.Verify
	}
	return out
}

// Outcome is the result recorded when a task completes.
type Outcome struct {
	Summary   string   `json:"summary"`
	Artifacts []string `json:"artifacts"`
}

// Comment is an append-only note on a task.
type Comment struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskMetrics are per-task counters.
type TaskMetrics struct {
	Tokens     int64 `json:"tokens"`
	ElapsedMs  int64 `json:"elapsed_ms"`
	RetryCount int   `json:"retry_count"`
}

// GoalMetrics are derived from a goal's tasks on every read.
type GoalMetrics struct {
	TaskCount      int   `json:"task_count"`
	TasksCompleted int   `json:"tasks_completed"`
	TasksFailed    int   `json:"tasks_failed"`
	TotalTokens    int64 `json:"total_tokens"`
	ElapsedMs      int64 `json:"elapsed_ms"`
}

// ComputeGoalMetrics aggregates task counters.
func ComputeGoalMetrics(tasks []Task) GoalMetrics {
	var m GoalMetrics
	for _, t := range tasks {
		m.TaskCount++
		switch t.State {
		case StateCompleted:
			m.TasksCompleted++
		case StateFailed:
			m.TasksFailed++
		}
		m.TotalTokens += t.Metrics.Tokens
		m.ElapsedMs += t.Metrics.ElapsedMs
	}
	return m
}

// Goal is the top-level unit of work.
type Goal struct {
	ID          string      `json:"id"`
	ParentID    string      `json:"parent_id,omitempty"`
	Description string      `json:"description"`
	State       GoalState   `json:"state"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Metrics     GoalMetrics `json:"metrics"`
}

// Validate checks the fields required to persist a goal.
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("goal id required")
	}
	if strings.TrimSpace(g.Description) == "" {
		return fmt.Errorf("goal description required")
	}
	if (g.CompletedAt != nil) != (g.State == GoalCompleted) {
		return fmt.Errorf("goal %s: completed_at must be set only when completed", g.ID)
	}
	return nil
}

// Task is a unit of work under a goal.
type Task struct {
	ID          string      `json:"id"`
	GoalID      string      `json:"goal_id"`
	Description string      `json:"description"`
	Contract    *Contract   `json:"contract,omitempty"`
	State       TaskState   `json:"state"`
	BlockedBy   []string    `json:"blocked_by"`
	Result      *Outcome    `json:"result,omitempty"`
	Comments    []Comment   `json:"comments"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Metrics     TaskMetrics `json:"metrics"`
}

// Validate checks the fields required to persist a task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id required")
	}
	if t.GoalID == "" {
		return fmt.Errorf("task %s: goal id required", t.ID)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("task %s: description required", t.ID)
	}
	if slices.Contains(t.BlockedBy, t.ID) {
		return fmt.Errorf("task %s cannot block itself", t.ID)
	}
	if (t.Result != nil) != (t.State == StateCompleted) {
		return fmt.Errorf("task %s: result must be present only when completed", t.ID)
	}
	return nil
}

// HasContract reports whether the task may be started.
func (t *Task) HasContract() bool {
	return t.Contract.IsSet()
}

// InitialState is the state a freshly created task starts in.
func InitialState(blockedBy []string) TaskState {
	if len(blockedBy) > 0 {
		return StateBlocked
	}
	return StatePending
}

// DedupIDs returns ids with duplicates and blanks removed, preserving first occurrence.
func DedupIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
