package scheduler_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pubplan/internal/database"
	apperrors "github.com/edgard/pubplan/internal/errors"
	"github.com/edgard/pubplan/internal/scheduler"
)

// fakeStore is an in-memory TaskStore for exercising the slot search without
// a database.
type fakeStore struct {
	tasks      map[int64]*database.Task
	writeCount int
	failWrites bool
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[int64]*database.Task), nextID: 1}
}

func (f *fakeStore) add(task database.Task) *database.Task {
	task.ID = f.nextID
	f.nextID++
	f.tasks[task.ID] = &task
	return &task
}

func (f *fakeStore) GetTask(_ context.Context, id int64) (*database.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (f *fakeStore) GetPlanTaskAt(_ context.Context, at time.Time) (*database.Task, error) {
	for _, task := range f.tasks {
		if !task.ColumnID.Valid && task.PublishAt.Valid && task.PublishAt.Time.Equal(at) {
			copied := *task
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateTaskSchedule(_ context.Context, id int64, publishAt time.Time, clearColumn bool) error {
	if f.failWrites {
		return sql.ErrConnDone
	}
	task, ok := f.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.writeCount++
	task.PublishAt = sql.NullTime{Time: publishAt, Valid: true}
	if clearColumn {
		task.ColumnID = sql.NullInt64{}
	}
	return nil
}

func (f *fakeStore) ClearTaskColumn(_ context.Context, id int64) error {
	task, ok := f.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.writeCount++
	task.ColumnID = sql.NullInt64{}
	return nil
}

// monday is an arbitrary Monday used to pin the scan start.
var monday = time.Date(2025, time.March, 3, 10, 30, 0, 0, time.UTC)

func newScheduler(store *fakeStore, now time.Time) *scheduler.PublicationScheduler {
	log := slog.New(slog.DiscardHandler)
	return scheduler.NewPublicationScheduler(store, log, scheduler.WithNow(func() time.Time { return now }))
}

func slotAt(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

// occupyHorizon fills every grid slot on every business day within the
// 30-day horizon starting at the given day.
func occupyHorizon(store *fakeStore, from time.Time) {
	dayStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for offset := 0; offset < 30; offset++ {
		d := dayStart.AddDate(0, 0, offset)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, hour := range []int{9, 13, 15, 17} {
			store.add(database.Task{
				Title:     "occupied",
				PublishAt: sql.NullTime{Time: slotAt(d, hour), Valid: true},
			})
		}
	}
}

func TestSchedulePublicationAssignsFirstFreeSlot(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	task := store.add(database.Task{Title: "post"})

	got, err := newScheduler(store, monday).SchedulePublication(context.Background(), task.ID, false)
	require.NoError(t, err)
	require.True(t, got.PublishAt.Valid)
	assert.Equal(t, slotAt(monday, 9), got.PublishAt.Time)
	assert.Equal(t, 1, store.writeCount)
}

func TestSchedulePublicationIsDeterministicAcrossSequentialCalls(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	first := store.add(database.Task{Title: "first"})
	second := store.add(database.Task{Title: "second"})

	sched := newScheduler(store, monday)

	gotFirst, err := sched.SchedulePublication(context.Background(), first.ID, false)
	require.NoError(t, err)
	gotSecond, err := sched.SchedulePublication(context.Background(), second.ID, false)
	require.NoError(t, err)

	assert.Equal(t, slotAt(monday, 9), gotFirst.PublishAt.Time)
	assert.Equal(t, slotAt(monday, 13), gotSecond.PublishAt.Time)
}

func TestSchedulePublicationKeepsExplicitTime(t *testing.T) {
	t.Parallel()

	explicit := slotAt(monday.AddDate(0, 0, 8), 10) // next Tuesday 10:00, off the grid

	for _, removeFromKanban := range []bool{false, true} {
		store := newFakeStore()
		task := store.add(database.Task{
			Title:     "announcement",
			ColumnID:  sql.NullInt64{Int64: 2, Valid: true},
			PublishAt: sql.NullTime{Time: explicit, Valid: true},
		})

		got, err := newScheduler(store, monday).SchedulePublication(context.Background(), task.ID, removeFromKanban)
		require.NoError(t, err)
		assert.Equal(t, explicit, got.PublishAt.Time, "explicit time must never change")
		assert.Equal(t, removeFromKanban, !got.ColumnID.Valid)
	}
}

func TestSchedulePublicationSkipsOccupiedSlots(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for _, hour := range []int{9, 13, 15} {
		store.add(database.Task{
			Title:     "taken",
			PublishAt: sql.NullTime{Time: slotAt(monday, hour), Valid: true},
		})
	}
	// A board task holding the 17:00 instant does not occupy the slot.
	store.add(database.Task{
		Title:     "board card",
		ColumnID:  sql.NullInt64{Int64: 1, Valid: true},
		PublishAt: sql.NullTime{Time: slotAt(monday, 17), Valid: true},
	})
	task := store.add(database.Task{Title: "post"})

	got, err := newScheduler(store, monday).SchedulePublication(context.Background(), task.ID, false)
	require.NoError(t, err)
	assert.Equal(t, slotAt(monday, 17), got.PublishAt.Time)
}

func TestSchedulePublicationSkipsWeekends(t *testing.T) {
	t.Parallel()

	saturday := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()
	task := store.add(database.Task{Title: "post"})

	got, err := newScheduler(store, saturday).SchedulePublication(context.Background(), task.ID, false)
	require.NoError(t, err)

	assert.Equal(t, time.Monday, got.PublishAt.Time.Weekday())
	assert.Equal(t, slotAt(monday, 9), got.PublishAt.Time)
}

func TestSchedulePublicationFailsWhenHorizonExhausted(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	occupyHorizon(store, monday)
	task := store.add(database.Task{Title: "post"})
	writesBefore := store.writeCount

	_, err := newScheduler(store, monday).SchedulePublication(context.Background(), task.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoAvailableSlot, apperrors.Code(err))
	assert.Equal(t, writesBefore, store.writeCount, "exhaustion must not mutate the store")
	assert.False(t, store.tasks[task.ID].PublishAt.Valid)
}

func TestSchedulePublicationRemoveFromKanban(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		removeFromKanban bool
		wantColumn       bool
	}{
		{name: "remove clears column", removeFromKanban: true, wantColumn: false},
		{name: "keep leaves column", removeFromKanban: false, wantColumn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			task := store.add(database.Task{
				Title:    "card",
				ColumnID: sql.NullInt64{Int64: 5, Valid: true},
			})

			got, err := newScheduler(store, monday).SchedulePublication(context.Background(), task.ID, tt.removeFromKanban)
			require.NoError(t, err)
			assert.Equal(t, tt.wantColumn, got.ColumnID.Valid)
			assert.Equal(t, tt.wantColumn, store.tasks[task.ID].ColumnID.Valid)
		})
	}
}

func TestSchedulePublicationUnknownTask(t *testing.T) {
	t.Parallel()

	store := newFakeStore()

	_, err := newScheduler(store, monday).SchedulePublication(context.Background(), 42, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.Code(err))
}

func TestSchedulePublicationPropagatesWriteFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	task := store.add(database.Task{Title: "post"})
	store.failWrites = true

	_, err := newScheduler(store, monday).SchedulePublication(context.Background(), task.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabase, apperrors.Code(err))
}
