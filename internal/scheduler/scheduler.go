// Package scheduler implements the publication time-slot scheduler: given a
// task headed for the content plan, it finds or assigns a concrete date/time
// slot, avoiding collisions with already-scheduled items while respecting
// weekends and a fixed daily slot grid.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgard/pubplan/internal/database"
	apperrors "github.com/edgard/pubplan/internal/errors"
)

// TaskStore is the subset of the data layer the scheduler depends on.
// database.Store satisfies it.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (*database.Task, error)
	GetPlanTaskAt(ctx context.Context, at time.Time) (*database.Task, error)
	UpdateTaskSchedule(ctx context.Context, id int64, publishAt time.Time, clearColumn bool) error
	ClearTaskColumn(ctx context.Context, id int64) error
}

// PublicationScheduler assigns publication instants to tasks.
type PublicationScheduler struct {
	store  TaskStore
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a PublicationScheduler.
type Option func(*PublicationScheduler)

// WithNow overrides the scheduler's clock. Used by tests to pin the scan
// start to a known day.
func WithNow(now func() time.Time) Option {
	return func(s *PublicationScheduler) {
		s.now = now
	}
}

// NewPublicationScheduler creates a scheduler backed by the given store.
func NewPublicationScheduler(store TaskStore, logger *slog.Logger, opts ...Option) *PublicationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PublicationScheduler{
		store:  store,
		logger: logger.With("component", "publication_scheduler"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SchedulePublication produces a publication time for the task with the given
// ID. A task that already carries a publish time keeps it untouched (an
// explicit user choice is never collision-checked); otherwise the next free
// slot on the grid is assigned and persisted. When removeFromKanban is true
// the task is also detached from its board column.
//
// On success the returned task reflects the persisted state. Failure modes:
// a NotFound error when the task does not exist, a NoAvailableSlot error when
// the whole horizon is occupied (no mutation is performed), and a Database
// error when the store fails.
func (s *PublicationScheduler) SchedulePublication(ctx context.Context, taskID int64, removeFromKanban bool) (*database.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(fmt.Sprintf("failed to load task %d", taskID), err)
	}
	if task == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", taskID))
	}

	// Explicit user-chosen instant: keep it, never collision-check it.
	if task.PublishAt.Valid {
		if removeFromKanban {
			if err := s.clearColumn(ctx, task); err != nil {
				return nil, err
			}
		}
		s.logger.DebugContext(ctx, "Task already scheduled, keeping explicit time",
			"task_id", task.ID, "publish_at", task.PublishAt.Time)
		return task, nil
	}

	chosen, err := s.findFreeSlot(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateTaskSchedule(ctx, task.ID, chosen, removeFromKanban); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", taskID))
		}
		return nil, apperrors.NewDatabaseError(fmt.Sprintf("failed to persist schedule for task %d", taskID), err)
	}

	task.PublishAt = sql.NullTime{Time: chosen, Valid: true}
	if removeFromKanban {
		task.ColumnID = sql.NullInt64{}
	}

	s.logger.InfoContext(ctx, "Task scheduled for publication",
		"task_id", task.ID, "publish_at", chosen, "remove_from_kanban", removeFromKanban)
	return task, nil
}

// findFreeSlot scans the day×slot grid in order and returns the first instant
// no content-plan task occupies. The scan starts at today 00:00 local time
// and covers 30 calendar days, business days only.
func (s *PublicationScheduler) findFreeSlot(ctx context.Context) (time.Time, error) {
	for candidate := range candidateSlots(s.now()) {
		occupant, err := s.store.GetPlanTaskAt(ctx, candidate)
		if err != nil {
			return time.Time{}, apperrors.NewDatabaseError(
				fmt.Sprintf("failed to probe slot %s", candidate.Format(time.RFC3339)), err)
		}
		if occupant == nil {
			return candidate, nil
		}
	}

	s.logger.WarnContext(ctx, "Slot search exhausted horizon", "horizon_days", horizonDays)
	return time.Time{}, apperrors.NewNoAvailableSlotError(
		fmt.Sprintf("no free publication slot within %d days", horizonDays))
}

func (s *PublicationScheduler) clearColumn(ctx context.Context, task *database.Task) error {
	if err := s.store.ClearTaskColumn(ctx, task.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", task.ID))
		}
		return apperrors.NewDatabaseError(fmt.Sprintf("failed to detach task %d from board", task.ID), err)
	}
	task.ColumnID = sql.NullInt64{}
	return nil
}
