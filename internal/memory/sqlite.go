package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/josephgoksu/radial/internal/task"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBFileName is the SQLite file inside the workspace directory.
const DBFileName = "radial.db"

// SQLiteStore implements Store on an embedded SQLite database.
//
// Every connection waits up to the lock timeout for a competing writer
// (busy_timeout) and every transaction starts with BEGIN IMMEDIATE, so two
// processes never interleave a read-check-write sequence.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) radial.db under dir.
func NewSQLiteStore(dir string, lockTimeout time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, task.StorageErr("create store directory", err)
	}
	dbPath := filepath.Join(dir, DBFileName)

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", lockTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	dsn := "file:" + dbPath + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, task.StorageErr("open database", err)
	}
	// One connection per process keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, task.StorageErr("init schema", err)
	}
	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		description TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		description TEXT NOT NULL,
		contract TEXT,                      -- JSON, NULL until a contract is set
		state TEXT NOT NULL DEFAULT 'pending',
		result TEXT,                        -- JSON outcome, NULL unless completed
		tokens INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT,
		FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		depends_on TEXT NOT NULL,
		position INTEGER NOT NULL,          -- preserves blocked_by order
		PRIMARY KEY (task_id, depends_on),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_goal ON tasks(goal_id);
	CREATE INDEX IF NOT EXISTS idx_task_deps_depends_on ON task_dependencies(depends_on);
	CREATE INDEX IF NOT EXISTS idx_task_comments_task ON task_comments(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// withTx runs fn inside an immediate transaction.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return task.StorageErr(op+": begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return task.StorageErr(op+": commit", err)
	}
	return nil
}

// isBusy reports whether err is SQLite giving up on a lock.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// dbErr classifies a driver error as a storage failure.
func dbErr(op string, err error) error {
	if isBusy(err) {
		return task.StorageErr(op+": lock timeout", err)
	}
	return task.StorageErr(op, err)
}
