package database

import (
	"database/sql"
	"time"
)

// Task priorities, ordered for display only. Scheduling ignores priority.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// TaskState is the lifecycle state of a task, derived from its column and
// publication timestamps rather than stored separately.
type TaskState string

const (
	// StateOnBoard means the task sits in a kanban column. A publish_at
	// carried by a board task is unrelated to the content plan.
	StateOnBoard TaskState = "on_board"
	// StatePendingSlot means the task is in the content plan but has no
	// publication time yet.
	StatePendingSlot TaskState = "pending_slot"
	// StateScheduled means the task is in the content plan with an exact
	// publication instant assigned.
	StateScheduled TaskState = "scheduled"
	// StatePublished means the publish dispatcher already announced the task.
	StatePublished TaskState = "published"
)

// Task represents a kanban card or a content-plan item. A task with a null
// column is "in the content plan"; its publish_at then decides whether it is
// awaiting a slot or scheduled for an exact instant.
type Task struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Title       string        `db:"title"`
	Description string        `db:"description"`
	ColumnID    sql.NullInt64 `db:"column_id"`
	Position    int           `db:"position"`
	AssigneeID  sql.NullInt64 `db:"assignee_id"`

	PublishAt   sql.NullTime `db:"publish_at"`
	PublishedAt sql.NullTime `db:"published_at"`

	PublishTelegram bool `db:"publish_telegram"`
	PublishVK       bool `db:"publish_vk"`
	PublishSite     bool `db:"publish_site"`

	Priority string `db:"priority"`

	// Provenance, set when the task was created via the ingestion channel.
	Source     sql.NullString `db:"source"`
	SourceUser sql.NullString `db:"source_user"`
}

// State derives the task lifecycle state from (column, publish_at, published_at).
func (t *Task) State() TaskState {
	switch {
	case t.ColumnID.Valid:
		return StateOnBoard
	case t.PublishedAt.Valid:
		return StatePublished
	case t.PublishAt.Valid:
		return StateScheduled
	default:
		return StatePendingSlot
	}
}

// Column represents a kanban board column.
type Column struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Title    string `db:"title"`
	Position int    `db:"position"`
}

// User represents a board member a task can be assigned to.
type User struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Name             string `db:"name"`
	TelegramUsername string `db:"telegram_username"`
}

// Attachment represents a file attached to a task. Rows are removed by the
// task's ON DELETE CASCADE; the file bytes live under the configured upload
// directory keyed by StorageKey.
type Attachment struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	TaskID     int64  `db:"task_id"`
	FileName   string `db:"file_name"`
	StorageKey string `db:"storage_key"`
}
