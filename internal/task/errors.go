package task

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("concurrency conflict")
	ErrValidation       = errors.New("validation failed")
	ErrStorage          = errors.New("storage error")
	ErrContractRequired = fmt.Errorf("contract required: %w", ErrInvalidState)
	ErrDuplicateID      = errors.New("duplicate id")
	ErrCycle            = errors.New("dependency cycle")
)

// NotFoundError reports an id that does not resolve.
type NotFoundError struct {
	Kind       string // "goal", "task" or "entity"
	ID         string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError reports an operation not permitted from the current state.
type InvalidStateError struct {
	Entity        string
	ID            string
	Op            string
	Current       string
	Blockers      []string
	NeedsContract bool
}

func (e *InvalidStateError) Error() string {
	if e.NeedsContract {
		return fmt.Sprintf("cannot %s %s %s: contract required (set receives, produces or verify first)", e.Op, e.Entity, e.ID)
	}
	msg := fmt.Sprintf("cannot %s %s %s: current state is %s", e.Op, e.Entity, e.ID, e.Current)
	if len(e.Blockers) > 0 {
		msg += fmt.Sprintf(" (blocked by %s)", strings.Join(e.Blockers, ", "))
	}
	return msg
}

func (e *InvalidStateError) Is(target error) bool {
	if target == ErrInvalidState {
		return true
	}
	return e.NeedsContract && target == ErrContractRequired
}

// ConflictError reports a conditional update whose expected state no longer held.
type ConflictError struct {
	Entity   string
	ID       string
	Expected []string
	Actual   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently: expected %s, found %s",
		e.Entity, e.ID, strings.Join(e.Expected, " or "), e.Actual)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ValidationError reports input rejected before any write.
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// StorageErr wraps an I/O failure so it matches ErrStorage.
func StorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Suggestion extracts a "did you mean" hint from err, if any.
func Suggestion(err error) string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Suggestion
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Suggestion
	}
	return ""
}

func taskStates(states []TaskState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// NewTaskConflict builds a ConflictError for a task transition.
func NewTaskConflict(id string, expected []TaskState, actual TaskState) *ConflictError {
	return &ConflictError{Entity: "task", ID: id, Expected: taskStates(expected), Actual: string(actual)}
}

// NewGoalConflict builds a ConflictError for a goal transition.
func NewGoalConflict(id string, expected []GoalState, actual GoalState) *ConflictError {
	exp := make([]string, len(expected))
	for i, s := range expected {
		exp[i] = string(s)
	}
	return &ConflictError{Entity: "goal", ID: id, Expected: exp, Actual: string(actual)}
}
