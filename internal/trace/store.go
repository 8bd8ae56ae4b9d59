// Package trace persists task runs and their loop spans to a local
// SQLite database.
package trace

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed task and span log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the trace database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}
	// Best-effort migrations for existing dbs (no-op if column exists).
	_, _ = db.Exec(`ALTER TABLE tasks ADD COLUMN turns INTEGER NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE tasks ADD COLUMN model_name TEXT`)
	_, _ = db.Exec(`ALTER TABLE spans ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0`)

	return &Store{db: db}, nil
}

// OpenWithDB wraps an existing database handle. The caller owns the
// handle's lifetime; tests use this with an alternate driver.
func OpenWithDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new pending task and returns its generated TaskID.
// When idempotencyKey is non-empty and a task with that key already
// exists, the existing task is returned with created=false.
func (s *Store) CreateTask(agentName, contentIn, modelName, idempotencyKey string) (task *TaskRecord, created bool, err error) {
	if idempotencyKey != "" {
		existing, err := s.GetTaskByIdempotencyKey(idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	taskID := uuid.NewString()
	now := time.Now().UTC()
	var key any
	if idempotencyKey != "" {
		key = idempotencyKey
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (task_id, idempotency_key, agent_name, status, content_in, model_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		taskID, key, agentName, TaskStatusPending, contentIn, modelName, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert task: %w", err)
	}

	rec, err := s.GetTask(taskID)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// UpdateTaskStatus transitions the task and records its output or error.
// Completed and failed tasks get a completion timestamp.
func (s *Store) UpdateTaskStatus(taskID, status, contentOut, errorText string, turns int) error {
	now := time.Now().UTC()
	var completedAt any
	if status == TaskStatusCompleted || status == TaskStatusFailed {
		completedAt = now
	}
	res, err := s.db.Exec(`
		UPDATE tasks SET status = ?, content_out = ?, error_text = ?, turns = ?, updated_at = ?, completed_at = ?
		WHERE task_id = ?`,
		status, contentOut, errorText, turns, now, completedAt, taskID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task: no task %s", taskID)
	}
	return nil
}

// GetTask returns the task with the given TaskID, or nil when absent.
func (s *Store) GetTask(taskID string) (*TaskRecord, error) {
	return s.scanTask(`SELECT id, task_id, COALESCE(idempotency_key, ''), agent_name, status,
		COALESCE(content_in, ''), COALESCE(content_out, ''), COALESCE(error_text, ''),
		turns, COALESCE(model_name, ''), created_at, updated_at, completed_at
		FROM tasks WHERE task_id = ?`, taskID)
}

// GetTaskByIdempotencyKey returns the task carrying the key, or nil.
func (s *Store) GetTaskByIdempotencyKey(key string) (*TaskRecord, error) {
	return s.scanTask(`SELECT id, task_id, COALESCE(idempotency_key, ''), agent_name, status,
		COALESCE(content_in, ''), COALESCE(content_out, ''), COALESCE(error_text, ''),
		turns, COALESCE(model_name, ''), created_at, updated_at, completed_at
		FROM tasks WHERE idempotency_key = ?`, key)
}

func (s *Store) scanTask(query string, arg any) (*TaskRecord, error) {
	var rec TaskRecord
	var completedAt sql.NullTime
	err := s.db.QueryRow(query, arg).Scan(
		&rec.ID, &rec.TaskID, &rec.IdempotencyKey, &rec.AgentName, &rec.Status,
		&rec.ContentIn, &rec.ContentOut, &rec.ErrorText,
		&rec.Turns, &rec.ModelName, &rec.CreatedAt, &rec.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return &rec, nil
}

// AddSpan appends a span to the task's trace.
func (s *Store) AddSpan(taskID, spanType, title, detail string, duration time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO spans (task_id, span_type, title, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, spanType, title, detail, duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert span: %w", err)
	}
	return nil
}

// Spans returns the task's spans in insertion order.
func (s *Store) Spans(taskID string) ([]SpanRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, span_type, COALESCE(title, ''), COALESCE(detail, ''), duration_ms, created_at
		FROM spans WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var out []SpanRecord
	for rows.Next() {
		var rec SpanRecord
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.SpanType, &rec.Title, &rec.Detail, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentTasks returns up to limit tasks, newest first.
func (s *Store) RecentTasks(limit int) ([]TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, COALESCE(idempotency_key, ''), agent_name, status,
		COALESCE(content_in, ''), COALESCE(content_out, ''), COALESCE(error_text, ''),
		turns, COALESCE(model_name, ''), created_at, updated_at, completed_at
		FROM tasks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.IdempotencyKey, &rec.AgentName, &rec.Status,
			&rec.ContentIn, &rec.ContentOut, &rec.ErrorText,
			&rec.Turns, &rec.ModelName, &rec.CreatedAt, &rec.UpdatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
