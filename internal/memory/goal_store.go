package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josephgoksu/radial/internal/task"
)

// goalSelect reads goals with metrics aggregated from their tasks.
const goalSelect = `
	SELECT g.id, g.parent_id, g.description, g.state, g.created_at, g.updated_at, g.completed_at,
	       COUNT(t.id),
	       COALESCE(SUM(CASE WHEN t.state = 'completed' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN t.state = 'failed' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(t.tokens), 0),
	       COALESCE(SUM(t.elapsed_ms), 0)
	FROM goals g
	LEFT JOIN tasks t ON t.goal_id = g.id`

// rowScanner abstracts row scanning for reuse between QueryRow and rows.Next()
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoalRow(row rowScanner) (task.Goal, error) {
	var g task.Goal
	var parentID, completedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&g.ID, &parentID, &g.Description, &g.State, &createdAt, &updatedAt, &completedAt,
		&g.Metrics.TaskCount, &g.Metrics.TasksCompleted, &g.Metrics.TasksFailed,
		&g.Metrics.TotalTokens, &g.Metrics.ElapsedMs,
	)
	if err != nil {
		return g, err
	}
	g.ParentID = parentID.String
	if err := parseTimes(createdAt, updatedAt, completedAt, &g.CreatedAt, &g.UpdatedAt, &g.CompletedAt); err != nil {
		return g, fmt.Errorf("goal %s: %w", g.ID, err)
	}
	return g, nil
}

// CreateGoal inserts a new goal.
func (s *SQLiteStore) CreateGoal(ctx context.Context, g *task.Goal) error {
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

	var parentID any
	if g.ParentID != "" {
		parentID = g.ParentID
	}

	return s.withTx(ctx, "create goal", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM goals WHERE id = ?`, g.ID).Scan(&exists)
		if err == nil {
			return task.ErrDuplicateID
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return dbErr("check goal id", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO goals (id, parent_id, description, state, created_at, updated_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, g.ID, parentID, g.Description, g.State, formatTime(g.CreatedAt), formatTime(g.UpdatedAt), nullTimeString(g.CompletedAt))
		if err != nil {
			return dbErr("insert goal", err)
		}
		return nil
	})
}

// GetGoal retrieves a goal by ID.
func (s *SQLiteStore) GetGoal(ctx context.Context, id string) (*task.Goal, error) {
	row := s.db.QueryRowContext(ctx, goalSelect+` WHERE g.id = ? GROUP BY g.id`, id)
	g, err := scanGoalRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goalNotFound(id)
	}
	if err != nil {
		return nil, dbErr("query goal", err)
	}
	return &g, nil
}

// ListGoals returns all goals, oldest first.
func (s *SQLiteStore) ListGoals(ctx context.Context) ([]task.Goal, error) {
	rows, err := s.db.QueryContext(ctx, goalSelect+` GROUP BY g.id ORDER BY g.created_at, g.rowid`)
	if err != nil {
		return nil, dbErr("query goals", err)
	}
	defer func() { _ = rows.Close() }()

	var goals []task.Goal
	for rows.Next() {
		g, err := scanGoalRow(rows)
		if err != nil {
			return nil, dbErr("scan goal", err)
		}
		goals = append(goals, g)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, dbErr("list goals", err)
	}
	return goals, nil
}

// UpdateGoalDescription replaces a goal's description.
func (s *SQLiteStore) UpdateGoalDescription(ctx context.Context, id, description string) (*task.Goal, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE goals SET description = ?, updated_at = ? WHERE id = ?`,
		description, formatTime(now()), id)
	if err != nil {
		return nil, dbErr("update goal", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, dbErr("update goal rows affected", err)
	}
	if affected == 0 {
		return nil, goalNotFound(id)
	}
	return s.GetGoal(ctx, id)
}

// TransitionGoal conditionally moves a goal between states.
func (s *SQLiteStore) TransitionGoal(ctx context.Context, id string, from []task.GoalState, to task.GoalState) (*task.Goal, error) {
	ts := now()
	var completedAt *string
	if to == task.GoalCompleted {
		v := formatTime(ts)
		completedAt = &v
	}

	args := []any{to, formatTime(ts), completedAt, id}
	args = append(args, stringArgs(from)...)
	res, err := s.db.ExecContext(ctx, `
		UPDATE goals SET state = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND state IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return nil, dbErr("transition goal", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, dbErr("transition goal rows affected", err)
	}
	if affected == 0 {
		var current task.GoalState
		err := s.db.QueryRowContext(ctx, `SELECT state FROM goals WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goalNotFound(id)
		}
		if err != nil {
			return nil, dbErr("read goal state", err)
		}
		return nil, task.NewGoalConflict(id, from, current)
	}
	return s.GetGoal(ctx, id)
}

// TouchGoal bumps a goal's updated_at.
func (s *SQLiteStore) TouchGoal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE goals SET updated_at = ? WHERE id = ?`, formatTime(now()), id)
	if err != nil {
		return dbErr("touch goal", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dbErr("touch goal rows affected", err)
	}
	if affected == 0 {
		return goalNotFound(id)
	}
	return nil
}

// DeleteGoal removes a goal; tasks, edges and comments cascade.
func (s *SQLiteStore) DeleteGoal(ctx context.Context, id string) (int, error) {
	var removed int
	err := s.withTx(ctx, "delete goal", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE goal_id = ?`, id).Scan(&removed); err != nil {
			return dbErr("count goal tasks", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
		if err != nil {
			return dbErr("delete goal", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return dbErr("delete goal rows affected", err)
		}
		if affected == 0 {
			return goalNotFound(id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
