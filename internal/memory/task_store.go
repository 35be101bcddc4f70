package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/josephgoksu/radial/internal/task"
)

// txExecutor abstracts sql.Tx for statements shared between operations.
type txExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txQuerier is the read side of sql.Tx.
type txQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkBlockersTx rejects blocked_by ids that are not tasks of goalID.
// Runs inside the writing transaction so a blocker deleted after the caller
// validated the list is still caught.
func checkBlockersTx(ctx context.Context, q txExecutor, goalID string, blockedBy []string) error {
	for _, dep := range blockedBy {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ? AND goal_id = ?`, dep, goalID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return blockerMissing(dep, goalID)
		}
		if err != nil {
			return dbErr("check blocker", err)
		}
	}
	return nil
}

func marshalNullJSON(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// insertTaskTx inserts a task and its blocked_by edges within a transaction.
func insertTaskTx(ctx context.Context, tx txExecutor, t *task.Task) error {
	contractJSON, err := marshalNullJSON(t.Contract, t.Contract != nil)
	if err != nil {
		return fmt.Errorf("marshal contract: %w", err)
	}
	resultJSON, err := marshalNullJSON(t.Result, t.Result != nil)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, goal_id, description, contract, state, result,
			tokens, elapsed_ms, retry_count,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.GoalID, t.Description, contractJSON, t.State, resultJSON,
		t.Metrics.Tokens, t.Metrics.ElapsedMs, t.Metrics.RetryCount,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), nullTimeString(t.CompletedAt))
	if err != nil {
		return dbErr("insert task "+t.ID, err)
	}

	return replaceDependenciesTx(ctx, tx, t.ID, t.BlockedBy)
}

func replaceDependenciesTx(ctx context.Context, tx txExecutor, taskID string, blockedBy []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, taskID); err != nil {
		return dbErr("clear dependencies", err)
	}
	for i, dep := range blockedBy {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO task_dependencies (task_id, depends_on, position) VALUES (?, ?, ?)`,
			taskID, dep, i)
		if err != nil {
			return dbErr("insert dependency", err)
		}
	}
	return nil
}

// CreateTask adds a new task to a goal.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *task.Task) error {
	ts := now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = ts
	}
	t.UpdatedAt = t.CreatedAt
	if t.State == "" {
		t.State = task.InitialState(t.BlockedBy)
	}
	if t.Comments == nil {
		t.Comments = []task.Comment{}
	}
	if t.BlockedBy == nil {
		t.BlockedBy = []string{}
	}
	if err := t.Validate(); err != nil {
		return &task.ValidationError{Field: "task", Message: err.Error()}
	}

	return s.withTx(ctx, "create task", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM goals WHERE id = ?`, t.GoalID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return goalNotFound(t.GoalID)
		}
		if err != nil {
			return dbErr("check goal", err)
		}

		err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
		if err == nil {
			return task.ErrDuplicateID
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return dbErr("check task id", err)
		}

		if err := checkBlockersTx(ctx, tx, t.GoalID, t.BlockedBy); err != nil {
			return err
		}
		return insertTaskTx(ctx, tx, t)
	})
}

const taskSelectColumns = `id, goal_id, description, contract, state, result,
       tokens, elapsed_ms, retry_count, created_at, updated_at, completed_at`

// scanTaskRow scans a task row into a Task struct.
func scanTaskRow(row rowScanner) (task.Task, error) {
	var t task.Task
	var contractJSON, resultJSON, completedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID, &t.GoalID, &t.Description, &contractJSON, &t.State, &resultJSON,
		&t.Metrics.Tokens, &t.Metrics.ElapsedMs, &t.Metrics.RetryCount,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return t, err
	}

	if err := parseTimes(createdAt, updatedAt, completedAt, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		return t, fmt.Errorf("task %s: %w", t.ID, err)
	}

	if contractJSON.Valid && contractJSON.String != "" {
		var c task.Contract
		if err := json.Unmarshal([]byte(contractJSON.String), &c); err != nil {
			return t, fmt.Errorf("corrupt contract for task %s: %w", t.ID, err)
		}
		t.Contract = &c
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var o task.Outcome
		if err := json.Unmarshal([]byte(resultJSON.String), &o); err != nil {
			return t, fmt.Errorf("corrupt result for task %s: %w", t.ID, err)
		}
		t.Result = &o
	}
	t.BlockedBy = []string{}
	t.Comments = []task.Comment{}
	return t, nil
}

// GetTask retrieves a task by ID. The row and its relations are read in one
// transaction so a concurrent writer cannot interleave between them.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var tasks []task.Task
	err := s.withTx(ctx, "get task", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+taskSelectColumns+` FROM tasks WHERE id = ?`, id)
		t, err := scanTaskRow(row)
		if errors.Is(err, sql.ErrNoRows) {
			return taskNotFound(id)
		}
		if err != nil {
			return dbErr("query task", err)
		}
		tasks = []task.Task{t}
		return attachRelations(ctx, tx, tasks)
	})
	if err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

// ListTasks returns all tasks for a goal in creation order.
func (s *SQLiteStore) ListTasks(ctx context.Context, goalID string) ([]task.Task, error) {
	var tasks []task.Task
	err := s.withTx(ctx, "list tasks", func(tx *sql.Tx) error {
		var err error
		if tasks, err = queryTasks(ctx, tx, goalID); err != nil {
			return err
		}
		return attachRelations(ctx, tx, tasks)
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func queryTasks(ctx context.Context, q txQuerier, goalID string) ([]task.Task, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+taskSelectColumns+` FROM tasks WHERE goal_id = ? ORDER BY created_at, rowid`, goalID)
	if err != nil {
		return nil, dbErr("query tasks", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, dbErr("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, dbErr("list tasks", err)
	}
	return tasks, nil
}

// ListTaskIDs returns all task ids.
func (s *SQLiteStore) ListTaskIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks ORDER BY created_at, rowid`)
	if err != nil {
		return nil, dbErr("query task ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dbErr("scan task id", err)
		}
		ids = append(ids, id)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, dbErr("list task ids", err)
	}
	return ids, nil
}

// attachRelations batch-loads blocked_by edges and comments for tasks.
func attachRelations(ctx context.Context, q txQuerier, tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]any, len(tasks))
	pos := make(map[string]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		pos[t.ID] = i
	}
	in := placeholders(len(ids))

	rows, err := q.QueryContext(ctx, `
		SELECT task_id, depends_on FROM task_dependencies
		WHERE task_id IN (`+in+`) ORDER BY task_id, position`, ids...)
	if err != nil {
		return dbErr("query dependencies", err)
	}
	for rows.Next() {
		var taskID, dep string
		if err := rows.Scan(&taskID, &dep); err != nil {
			_ = rows.Close()
			return dbErr("scan dependency", err)
		}
		i := pos[taskID]
		tasks[i].BlockedBy = append(tasks[i].BlockedBy, dep)
	}
	if err := checkRowsErr(rows); err != nil {
		_ = rows.Close()
		return dbErr("list dependencies", err)
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT task_id, body, created_at FROM task_comments
		WHERE task_id IN (`+in+`) ORDER BY id`, ids...)
	if err != nil {
		return dbErr("query comments", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var taskID, body, createdAt string
		if err := rows.Scan(&taskID, &body, &createdAt); err != nil {
			return dbErr("scan comment", err)
		}
		ts, err := parseTime(createdAt)
		if err != nil {
			return dbErr("scan comment", fmt.Errorf("task %s: %w", taskID, err))
		}
		i := pos[taskID]
		tasks[i].Comments = append(tasks[i].Comments, task.Comment{Text: body, CreatedAt: ts})
	}
	if err := checkRowsErr(rows); err != nil {
		return dbErr("list comments", err)
	}
	return nil
}

// taskConflict re-reads a task after a conditional update matched no rows and
// reports whether it vanished or moved to another state.
func taskConflict(ctx context.Context, q txExecutor, id string, expected []task.TaskState) error {
	var current task.TaskState
	err := q.QueryRowContext(ctx, `SELECT state FROM tasks WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return taskNotFound(id)
	}
	if err != nil {
		return dbErr("read task state", err)
	}
	return task.NewTaskConflict(id, expected, current)
}

// TransitionTask conditionally moves a task between states.
// Moving out of completed clears the recorded result.
func (s *SQLiteStore) TransitionTask(ctx context.Context, id string, from []task.TaskState, to task.TaskState) (*task.Task, error) {
	if to == task.StateCompleted {
		return nil, fmt.Errorf("use CompleteTask to complete task %s", id)
	}
	if len(from) == 0 {
		return nil, fmt.Errorf("transition task %s: no expected state", id)
	}

	args := []any{to, formatTime(now()), id}
	args = append(args, stringArgs(from)...)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET state = ?, updated_at = ?, result = NULL, completed_at = NULL
		WHERE id = ? AND state IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return nil, dbErr("transition task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, dbErr("transition task rows affected", err)
	}
	if affected == 0 {
		return nil, taskConflict(ctx, s.db, id, from)
	}
	return s.GetTask(ctx, id)
}

// CompleteTask marks an in_progress task as completed with its outcome.
func (s *SQLiteStore) CompleteTask(ctx context.Context, id string, c Completion) (*task.Task, error) {
	if c.Outcome.Artifacts == nil {
		c.Outcome.Artifacts = []string{}
	}
	resultJSON, err := json.Marshal(c.Outcome)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	ts := formatTime(now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET state = ?, result = ?, completed_at = ?, updated_at = ?,
		    tokens = tokens + ?, elapsed_ms = elapsed_ms + ?
		WHERE id = ? AND state = ?
	`, task.StateCompleted, string(resultJSON), ts, ts, c.Tokens, c.ElapsedMs, id, task.StateInProgress)
	if err != nil {
		return nil, dbErr("complete task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, dbErr("complete task rows affected", err)
	}
	if affected == 0 {
		return nil, taskConflict(ctx, s.db, id, []task.TaskState{task.StateInProgress})
	}
	return s.GetTask(ctx, id)
}

// RetryTask moves a failed task back to in_progress.
func (s *SQLiteStore) RetryTask(ctx context.Context, id string) (*task.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET state = ?, retry_count = retry_count + 1, updated_at = ?
		WHERE id = ? AND state = ?
	`, task.StateInProgress, formatTime(now()), id, task.StateFailed)
	if err != nil {
		return nil, dbErr("retry task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, dbErr("retry task rows affected", err)
	}
	if affected == 0 {
		return nil, taskConflict(ctx, s.db, id, []task.TaskState{task.StateFailed})
	}
	return s.GetTask(ctx, id)
}

// UpdateTask applies an edit guarded by patch.Expect.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*task.Task, error) {
	err := s.withTx(ctx, "update task", func(tx *sql.Tx) error {
		sets := "updated_at = ?"
		args := []any{formatTime(now())}
		if patch.Description != nil {
			sets += ", description = ?"
			args = append(args, *patch.Description)
		}
		if patch.Contract != nil {
			contractJSON, err := json.Marshal(patch.Contract)
			if err != nil {
				return fmt.Errorf("marshal contract: %w", err)
			}
			sets += ", contract = ?"
			args = append(args, string(contractJSON))
		}
		if patch.State != nil {
			sets += ", state = ?"
			args = append(args, *patch.State)
		}
		args = append(args, id, patch.Expect)

		res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+sets+` WHERE id = ? AND state = ?`, args...)
		if err != nil {
			return dbErr("update task", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return dbErr("update task rows affected", err)
		}
		if affected == 0 {
			return taskConflict(ctx, tx, id, []task.TaskState{patch.Expect})
		}

		if patch.SetBlockedBy {
			var goalID string
			if err := tx.QueryRowContext(ctx, `SELECT goal_id FROM tasks WHERE id = ?`, id).Scan(&goalID); err != nil {
				return dbErr("read task goal", err)
			}
			if err := checkBlockersTx(ctx, tx, goalID, patch.BlockedBy); err != nil {
				return err
			}
			return replaceDependenciesTx(ctx, tx, id, patch.BlockedBy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// AddComment appends a note to a task.
func (s *SQLiteStore) AddComment(ctx context.Context, id, text string) (*task.Task, error) {
	err := s.withTx(ctx, "add comment", func(tx *sql.Tx) error {
		ts := formatTime(now())
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at = ? WHERE id = ?`, ts, id)
		if err != nil {
			return dbErr("touch task", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return dbErr("touch task rows affected", err)
		}
		if affected == 0 {
			return taskNotFound(id)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO task_comments (task_id, body, created_at) VALUES (?, ?, ?)`, id, text, ts)
		if err != nil {
			return dbErr("insert comment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// DeleteTask removes a pending task that nothing depends on.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	return s.withTx(ctx, "delete task", func(tx *sql.Tx) error {
		var dependents int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_dependencies WHERE depends_on = ?`, id).Scan(&dependents)
		if err != nil {
			return dbErr("count dependents", err)
		}
		if dependents > 0 {
			return &task.ValidationError{
				Field:   "task",
				Message: fmt.Sprintf("task %s is a blocker of %d other task(s)", id, dependents),
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND state = ?`, id, task.StatePending)
		if err != nil {
			return dbErr("delete task", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return dbErr("delete task rows affected", err)
		}
		if affected == 0 {
			return taskConflict(ctx, tx, id, []task.TaskState{task.StatePending})
		}
		return nil
	})
}
