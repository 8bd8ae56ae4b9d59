package trace

import "time"

// TaskRecord tracks one agent task from submission to completion.
type TaskRecord struct {
	ID             int64      `json:"id"`
	TaskID         string     `json:"task_id"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	AgentName      string     `json:"agent_name"`
	Status         string     `json:"status"`
	ContentIn      string     `json:"content_in,omitempty"`
	ContentOut     string     `json:"content_out,omitempty"`
	ErrorText      string     `json:"error_text,omitempty"`
	Turns          int        `json:"turns"`
	ModelName      string     `json:"model_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// SpanRecord is one step inside a task: a model call, an action, a
// compaction, or a hand-off.
type SpanRecord struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	SpanType   string    `json:"span_type"`
	Title      string    `json:"title"`
	Detail     string    `json:"detail,omitempty"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	SpanModelCall  = "MODEL"
	SpanAction     = "ACTION"
	SpanCompaction = "COMPACTION"
	SpanHandoff    = "HANDOFF"
	SpanPlan       = "PLAN"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT UNIQUE NOT NULL,
	idempotency_key TEXT UNIQUE,
	agent_name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	content_in TEXT,
	content_out TEXT,
	error_text TEXT,
	turns INTEGER NOT NULL DEFAULT 0,
	model_name TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_idempotency ON tasks(idempotency_key);
CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent_name);

CREATE TABLE IF NOT EXISTS spans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	span_type TEXT NOT NULL,
	title TEXT,
	detail TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_spans_task ON spans(task_id);
CREATE INDEX IF NOT EXISTS idx_spans_type ON spans(span_type);
`
