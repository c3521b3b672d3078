package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateTask inserts a new task record and fills in its generated ID.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask retrieves a task by ID. Returns nil, nil if not found.
	GetTask(ctx context.Context, id int64) (*Task, error)

	// ListTasks retrieves all tasks ordered by column position then task position.
	ListTasks(ctx context.Context) ([]Task, error)

	// UpdateTask writes all mutable task fields by ID.
	UpdateTask(ctx context.Context, task *Task) error

	// DeleteTask removes a task; its attachments cascade.
	DeleteTask(ctx context.Context, id int64) error

	// GetPlanTaskAt retrieves the first content-plan task (null column) whose
	// publish_at equals the given instant exactly. Returns nil, nil if the
	// slot is free.
	GetPlanTaskAt(ctx context.Context, at time.Time) (*Task, error)

	// GetPlanTasksBetween retrieves content-plan tasks scheduled in [from, to),
	// ordered chronologically.
	GetPlanTasksBetween(ctx context.Context, from, to time.Time) ([]Task, error)

	// UpdateTaskSchedule sets a task's publish_at and optionally detaches it
	// from its kanban column, in a single update.
	UpdateTaskSchedule(ctx context.Context, id int64, publishAt time.Time, clearColumn bool) error

	// ClearTaskColumn detaches a task from its kanban column.
	ClearTaskColumn(ctx context.Context, id int64) error

	// GetDuePublications retrieves scheduled content-plan tasks whose
	// publish_at has passed and which have not been announced yet.
	GetDuePublications(ctx context.Context, now time.Time) ([]Task, error)

	// MarkTaskPublished records the announcement time for a task.
	MarkTaskPublished(ctx context.Context, id int64, at time.Time) error

	// CreateColumn inserts a new board column.
	CreateColumn(ctx context.Context, column *Column) error

	// ListColumns retrieves all board columns ordered by position.
	ListColumns(ctx context.Context) ([]Column, error)

	// UpdateColumn writes a column's title and position by ID.
	UpdateColumn(ctx context.Context, column *Column) error

	// DeleteColumn removes a column; tasks in it fall back to the content plan.
	DeleteColumn(ctx context.Context, id int64) error

	// CreateUser inserts a new user record and fills in its generated ID.
	CreateUser(ctx context.Context, user *User) error

	// ListUsers retrieves all users.
	ListUsers(ctx context.Context) ([]User, error)

	// CreateAttachment inserts an attachment record for a task.
	CreateAttachment(ctx context.Context, attachment *Attachment) error

	// ListAttachments retrieves all attachments of a task.
	ListAttachments(ctx context.Context, taskID int64) ([]Attachment, error)

	// GetAttachment retrieves an attachment by ID. Returns nil, nil if not found.
	GetAttachment(ctx context.Context, id int64) (*Attachment, error)

	// DeleteAttachment removes an attachment record.
	DeleteAttachment(ctx context.Context, id int64) error

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("cannot save nil task")
	}
	if task.Title == "" {
		return fmt.Errorf("task must have a non-empty title")
	}
	if task.Priority == "" {
		task.Priority = PriorityNormal
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `
        INSERT INTO tasks (
            created_at, updated_at, title, description, column_id, position,
            assignee_id, publish_at, published_at, publish_telegram, publish_vk,
            publish_site, priority, source, source_user
        ) VALUES (
            :created_at, :updated_at, :title, :description, :column_id, :position,
            :assignee_id, :publish_at, :published_at, :publish_telegram, :publish_vk,
            :publish_site, :priority, :source, :source_user
        );
    `

	result, err := s.db.NamedExecContext(ctx, query, task)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving task", "title", task.Title, "error", err)
		return fmt.Errorf("failed to save task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving task", "error", err)
	} else {
		task.ID = id
	}

	s.logger.DebugContext(ctx, "Task saved successfully", "task_id", task.ID, "state", task.State())
	return nil
}

func (s *sqlxStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var task Task
	query := `SELECT * FROM tasks WHERE id = ?;`
	err := s.db.GetContext(ctx, &task, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting task", "task_id", id, "error", err)
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}

	return &task, nil
}

func (s *sqlxStore) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	query := `SELECT * FROM tasks ORDER BY column_id, position, id;`
	if err := s.db.SelectContext(ctx, &tasks, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing tasks", "error", err)
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

func (s *sqlxStore) UpdateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("cannot update nil task")
	}
	task.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE tasks SET
            updated_at = :updated_at,
            title = :title,
            description = :description,
            column_id = :column_id,
            position = :position,
            assignee_id = :assignee_id,
            publish_at = :publish_at,
            published_at = :published_at,
            publish_telegram = :publish_telegram,
            publish_vk = :publish_vk,
            publish_site = :publish_site,
            priority = :priority
        WHERE id = :id;
    `

	result, err := s.db.NamedExecContext(ctx, query, task)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating task", "task_id", task.ID, "error", err)
		return fmt.Errorf("failed to update task %d: %w", task.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	s.logger.DebugContext(ctx, "Task updated successfully", "task_id", task.ID)
	return nil
}

func (s *sqlxStore) DeleteTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?;`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting task", "task_id", id, "error", err)
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	s.logger.DebugContext(ctx, "Task deleted", "task_id", id)
	return nil
}

// GetPlanTaskAt is the slot-occupancy probe used by the publication scheduler.
// Only content-plan tasks count as occupying a slot; board tasks carrying an
// unrelated publish_at do not. Comparison is by exact instant.
func (s *sqlxStore) GetPlanTaskAt(ctx context.Context, at time.Time) (*Task, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var task Task
	query := `SELECT * FROM tasks WHERE publish_at = ? AND column_id IS NULL LIMIT 1;`
	err := s.db.GetContext(ctx, &task, query, at.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error probing slot occupancy", "at", at, "error", err)
		return nil, fmt.Errorf("failed to probe slot at %s: %w", at.Format(time.RFC3339), err)
	}

	return &task, nil
}

func (s *sqlxStore) GetPlanTasksBetween(ctx context.Context, from, to time.Time) ([]Task, error) {
	var tasks []Task
	query := `
        SELECT * FROM tasks
        WHERE column_id IS NULL AND publish_at >= ? AND publish_at < ?
        ORDER BY publish_at;
    `
	if err := s.db.SelectContext(ctx, &tasks, query, from.UTC(), to.UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error listing plan tasks", "from", from, "to", to, "error", err)
		return nil, fmt.Errorf("failed to list plan tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTaskSchedule performs the scheduler's single persisted write: the
// chosen publication instant, plus the optional detach from the kanban board.
func (s *sqlxStore) UpdateTaskSchedule(ctx context.Context, id int64, publishAt time.Time, clearColumn bool) error {
	now := time.Now().UTC()

	var result sql.Result
	var err error
	if clearColumn {
		query := `UPDATE tasks SET publish_at = ?, column_id = NULL, updated_at = ? WHERE id = ?;`
		result, err = s.db.ExecContext(ctx, query, publishAt.UTC(), now, id)
	} else {
		query := `UPDATE tasks SET publish_at = ?, updated_at = ? WHERE id = ?;`
		result, err = s.db.ExecContext(ctx, query, publishAt.UTC(), now, id)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating task schedule", "task_id", id, "publish_at", publishAt, "error", err)
		return fmt.Errorf("failed to update schedule for task %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	s.logger.DebugContext(ctx, "Task schedule updated", "task_id", id, "publish_at", publishAt, "clear_column", clearColumn)
	return nil
}

func (s *sqlxStore) ClearTaskColumn(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `UPDATE tasks SET column_id = NULL, updated_at = ? WHERE id = ?;`, now, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error clearing task column", "task_id", id, "error", err)
		return fmt.Errorf("failed to clear column for task %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	s.logger.DebugContext(ctx, "Task detached from board", "task_id", id)
	return nil
}

func (s *sqlxStore) GetDuePublications(ctx context.Context, now time.Time) ([]Task, error) {
	var tasks []Task
	query := `
        SELECT * FROM tasks
        WHERE column_id IS NULL
          AND publish_at IS NOT NULL AND publish_at <= ?
          AND published_at IS NULL
        ORDER BY publish_at;
    `
	if err := s.db.SelectContext(ctx, &tasks, query, now.UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error listing due publications", "error", err)
		return nil, fmt.Errorf("failed to list due publications: %w", err)
	}

	return tasks, nil
}

func (s *sqlxStore) MarkTaskPublished(ctx context.Context, id int64, at time.Time) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `UPDATE tasks SET published_at = ?, updated_at = ? WHERE id = ?;`, at.UTC(), now, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking task published", "task_id", id, "error", err)
		return fmt.Errorf("failed to mark task %d published: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	s.logger.DebugContext(ctx, "Task marked published", "task_id", id, "published_at", at)
	return nil
}

func (s *sqlxStore) CreateColumn(ctx context.Context, column *Column) error {
	if column == nil {
		return fmt.Errorf("cannot save nil column")
	}
	if column.Title == "" {
		return fmt.Errorf("column must have a non-empty title")
	}

	now := time.Now().UTC()
	column.CreatedAt = now
	column.UpdatedAt = now

	query := `
        INSERT INTO columns (created_at, updated_at, title, position)
        VALUES (:created_at, :updated_at, :title, :position);
    `
	result, err := s.db.NamedExecContext(ctx, query, column)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving column", "title", column.Title, "error", err)
		return fmt.Errorf("failed to save column: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		column.ID = id
	}

	s.logger.DebugContext(ctx, "Column saved successfully", "column_id", column.ID)
	return nil
}

func (s *sqlxStore) ListColumns(ctx context.Context) ([]Column, error) {
	var columns []Column
	query := `SELECT * FROM columns ORDER BY position, id;`
	if err := s.db.SelectContext(ctx, &columns, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing columns", "error", err)
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}

	return columns, nil
}

func (s *sqlxStore) UpdateColumn(ctx context.Context, column *Column) error {
	if column == nil {
		return fmt.Errorf("cannot update nil column")
	}
	column.UpdatedAt = time.Now().UTC()

	query := `UPDATE columns SET updated_at = :updated_at, title = :title, position = :position WHERE id = :id;`
	result, err := s.db.NamedExecContext(ctx, query, column)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating column", "column_id", column.ID, "error", err)
		return fmt.Errorf("failed to update column %d: %w", column.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (s *sqlxStore) DeleteColumn(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM columns WHERE id = ?;`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting column", "column_id", id, "error", err)
		return fmt.Errorf("failed to delete column %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	s.logger.DebugContext(ctx, "Column deleted", "column_id", id)
	return nil
}

func (s *sqlxStore) CreateUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot save nil user")
	}
	if user.Name == "" {
		return fmt.Errorf("user must have a non-empty name")
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
        INSERT INTO users (created_at, updated_at, name, telegram_username)
        VALUES (:created_at, :updated_at, :name, :telegram_username);
    `
	result, err := s.db.NamedExecContext(ctx, query, user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving user", "name", user.Name, "error", err)
		return fmt.Errorf("failed to save user: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		user.ID = id
	}

	s.logger.DebugContext(ctx, "User saved successfully", "user_id", user.ID)
	return nil
}

func (s *sqlxStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	query := `SELECT * FROM users ORDER BY name;`
	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing users", "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

func (s *sqlxStore) CreateAttachment(ctx context.Context, attachment *Attachment) error {
	if attachment == nil {
		return fmt.Errorf("cannot save nil attachment")
	}
	attachment.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO attachments (created_at, task_id, file_name, storage_key)
        VALUES (:created_at, :task_id, :file_name, :storage_key);
    `
	result, err := s.db.NamedExecContext(ctx, query, attachment)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving attachment", "task_id", attachment.TaskID, "error", err)
		return fmt.Errorf("failed to save attachment for task %d: %w", attachment.TaskID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		attachment.ID = id
	}

	return nil
}

func (s *sqlxStore) ListAttachments(ctx context.Context, taskID int64) ([]Attachment, error) {
	var attachments []Attachment
	query := `SELECT * FROM attachments WHERE task_id = ? ORDER BY id;`
	if err := s.db.SelectContext(ctx, &attachments, query, taskID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing attachments", "task_id", taskID, "error", err)
		return nil, fmt.Errorf("failed to list attachments for task %d: %w", taskID, err)
	}

	return attachments, nil
}

func (s *sqlxStore) GetAttachment(ctx context.Context, id int64) (*Attachment, error) {
	var attachment Attachment
	query := `SELECT * FROM attachments WHERE id = ?;`
	err := s.db.GetContext(ctx, &attachment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting attachment", "attachment_id", id, "error", err)
		return nil, fmt.Errorf("failed to get attachment %d: %w", id, err)
	}

	return &attachment, nil
}

func (s *sqlxStore) DeleteAttachment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?;`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting attachment", "attachment_id", id, "error", err)
		return fmt.Errorf("failed to delete attachment %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// RunMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation during VACUUM", "error", err)
		return err
	case err != nil:
		s.logger.ErrorContext(ctx, "Error running VACUUM", "error", err)
		return fmt.Errorf("failed to run database maintenance: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully.")
	return nil
}
