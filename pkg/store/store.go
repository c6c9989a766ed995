// Package store provides the sqlite-backed task store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskpulse/pkg/logger"
)

// ErrTaskNotFound is returned for lookups, updates and deletes of unknown ids.
var ErrTaskNotFound = errors.New("task not found")

// Task is the durable task record.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskFields carries the values for creating a task.
type TaskFields struct {
	Title       string
	Description string
	Completed   bool
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// Store wraps the sqlite database holding tasks.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (creating if necessary) the task database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task schema: %w", err)
	}

	logger.InfoCF("store", "Task store opened", map[string]interface{}{
		"db_path": path,
	})
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health reports whether the database is reachable.
func (s *Store) Health() error {
	return s.db.Ping()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create inserts a new task and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, fields TaskFields) (*Task, error) {
	if fields.Title == "" {
		return nil, fmt.Errorf("title must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (title, description, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		fields.Title, fields.Description, fields.Completed,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}

	return &Task{
		ID:          id,
		Title:       fields.Title,
		Description: fields.Description,
		Completed:   fields.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Get retrieves a task by id.
func (s *Store) Get(ctx context.Context, id int64) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, description, completed, created_at, updated_at FROM tasks WHERE id = ?", id)
	return scanTask(row)
}

// List returns all tasks ordered by id.
func (s *Store) List(ctx context.Context) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, description, completed, created_at, updated_at FROM tasks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update applies a partial update and returns the resulting task. Fields not
// supplied in the patch keep their current values.
func (s *Store) Update(ctx context.Context, id int64, patch TaskPatch) (*Task, error) {
	s.mu.Lock()

	setClauses := []string{}
	args := []interface{}{}
	if patch.Title != nil {
		setClauses = append(setClauses, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		setClauses = append(setClauses, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Completed != nil {
		setClauses = append(setClauses, "completed = ?")
		args = append(args, *patch.Completed)
	}

	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = ?")
		args = append(args, time.Now().UTC().Format(time.RFC3339))
		args = append(args, id)

		query := "UPDATE tasks SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("update task %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if affected == 0 {
			s.mu.Unlock()
			return nil, ErrTaskNotFound
		}
	}
	s.mu.Unlock()

	return s.Get(ctx, id)
}

// Delete removes a task by id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Stats returns task counts by completion for the dashboard.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{"open": 0, "done": 0}
	rows, err := s.db.QueryContext(ctx, "SELECT completed, COUNT(*) FROM tasks GROUP BY completed")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var completed, count int
		if err := rows.Scan(&completed, &count); err != nil {
			return stats, err
		}
		if completed != 0 {
			stats["done"] = count
		} else {
			stats["open"] = count
		}
		total += count
	}
	stats["total"] = total
	return stats, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var completed int
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Title, &t.Description, &completed, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	t.Completed = completed != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return t, nil
}
