package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pubplan/internal/api"
	"github.com/edgard/pubplan/internal/database"
	apperrors "github.com/edgard/pubplan/internal/errors"
)

// stubStore implements the handful of Store methods the handler tests need.
// Calls to anything else panic via the embedded nil interface.
type stubStore struct {
	database.Store

	pingErr error
	tasks   map[int64]*database.Task
	plan    []database.Task
	columns []database.Column
	users   []database.User
	nextID  int64
}

func newStubStore() *stubStore {
	return &stubStore{tasks: make(map[int64]*database.Task), nextID: 1}
}

func (s *stubStore) Ping(context.Context) error {
	return s.pingErr
}

func (s *stubStore) CreateTask(_ context.Context, task *database.Task) error {
	task.ID = s.nextID
	s.nextID++
	task.CreatedAt = time.Now().UTC()
	task.UpdatedAt = task.CreatedAt
	s.tasks[task.ID] = task
	return nil
}

func (s *stubStore) GetTask(_ context.Context, id int64) (*database.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return task, nil
}

func (s *stubStore) ListTasks(context.Context) ([]database.Task, error) {
	out := make([]database.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (s *stubStore) DeleteTask(_ context.Context, id int64) error {
	if _, ok := s.tasks[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.tasks, id)
	return nil
}

func (s *stubStore) GetPlanTasksBetween(_ context.Context, _, _ time.Time) ([]database.Task, error) {
	return s.plan, nil
}

func (s *stubStore) ListColumns(context.Context) ([]database.Column, error) {
	return s.columns, nil
}

func (s *stubStore) CreateUser(_ context.Context, user *database.User) error {
	user.ID = s.nextID
	s.nextID++
	s.users = append(s.users, *user)
	return nil
}

func (s *stubStore) ListUsers(context.Context) ([]database.User, error) {
	return s.users, nil
}

// stubScheduler returns a canned result or error.
type stubScheduler struct {
	task *database.Task
	err  error

	gotTaskID int64
	gotRemove bool
}

func (s *stubScheduler) SchedulePublication(_ context.Context, taskID int64, removeFromKanban bool) (*database.Task, error) {
	s.gotTaskID = taskID
	s.gotRemove = removeFromKanban
	if s.err != nil {
		return nil, s.err
	}
	return s.task, nil
}

func newTestServer(t *testing.T, store *stubStore, sched *stubScheduler) http.Handler {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	h := api.NewHandlers(store, sched, t.TempDir(), log)
	return api.NewServer(":0", h, log).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		handler := newTestServer(t, newStubStore(), &stubScheduler{})

		rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("database down", func(t *testing.T) {
		t.Parallel()
		store := newStubStore()
		store.pingErr = sql.ErrConnDone
		handler := newTestServer(t, store, &stubScheduler{})

		rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	handler := newTestServer(t, store, &stubScheduler{})

	rec := doJSON(t, handler, http.MethodPost, "/api/tasks", map[string]any{
		"title":           "release post",
		"description":     "announce v2",
		"publishTelegram": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		Priority string `json:"priority"`
		State    string `json:"state"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "release post", resp.Title)
	assert.Equal(t, database.PriorityNormal, resp.Priority)
	assert.Equal(t, string(database.StatePendingSlot), resp.State)
	assert.Contains(t, store.tasks, resp.ID)
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, newStubStore(), &stubScheduler{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing title", body: map[string]any{"description": "no title"}},
		{name: "bad priority", body: map[string]any{"title": "x", "priority": "urgent"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, handler, http.MethodPost, "/api/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, newStubStore(), &stubScheduler{})

	rec := doJSON(t, handler, http.MethodGet, "/api/tasks/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleTask(t *testing.T) {
	t.Parallel()

	publishAt := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		sched := &stubScheduler{task: &database.Task{
			ID:        7,
			Title:     "post",
			Priority:  database.PriorityNormal,
			PublishAt: sql.NullTime{Time: publishAt, Valid: true},
		}}
		handler := newTestServer(t, newStubStore(), sched)

		rec := doJSON(t, handler, http.MethodPost, "/api/tasks/7/schedule", map[string]any{
			"removeFromKanban": true,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(7), sched.gotTaskID)
		assert.True(t, sched.gotRemove)

		var resp struct {
			PublishAt *time.Time `json:"publishAt"`
			State     string     `json:"state"`
		}
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.PublishAt)
		assert.True(t, resp.PublishAt.Equal(publishAt))
		assert.Equal(t, string(database.StateScheduled), resp.State)
	})

	t.Run("no available slot maps to 409", func(t *testing.T) {
		t.Parallel()
		sched := &stubScheduler{err: apperrors.NewNoAvailableSlotError("no free publication slot within 30 days")}
		handler := newTestServer(t, newStubStore(), sched)

		rec := doJSON(t, handler, http.MethodPost, "/api/tasks/7/schedule", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		var resp struct {
			Code string `json:"code"`
		}
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeNoAvailableSlot, resp.Code)
	})

	t.Run("unknown task maps to 404", func(t *testing.T) {
		t.Parallel()
		sched := &stubScheduler{err: apperrors.NewNotFoundError("task 7 not found")}
		handler := newTestServer(t, newStubStore(), sched)

		rec := doJSON(t, handler, http.MethodPost, "/api/tasks/7/schedule", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure maps to 500", func(t *testing.T) {
		t.Parallel()
		sched := &stubScheduler{err: apperrors.NewDatabaseError("failed to persist schedule", sql.ErrConnDone)}
		handler := newTestServer(t, newStubStore(), sched)

		rec := doJSON(t, handler, http.MethodPost, "/api/tasks/7/schedule", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		t.Parallel()
		handler := newTestServer(t, newStubStore(), &stubScheduler{})

		rec := doJSON(t, handler, http.MethodPost, "/api/tasks/abc/schedule", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("chunked body keeps removeFromKanban", func(t *testing.T) {
		t.Parallel()
		sched := &stubScheduler{task: &database.Task{
			ID:        7,
			Title:     "post",
			Priority:  database.PriorityNormal,
			PublishAt: sql.NullTime{Time: publishAt, Valid: true},
		}}
		handler := newTestServer(t, newStubStore(), sched)

		// NopCloser hides the reader's length, so the request goes out
		// without a Content-Length, like a chunked upload.
		body := io.NopCloser(strings.NewReader(`{"removeFromKanban": true}`))
		req := httptest.NewRequest(http.MethodPost, "/api/tasks/7/schedule", body)
		req.Header.Set("Content-Type", "application/json")
		require.Equal(t, int64(-1), req.ContentLength)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, sched.gotRemove)
	})
}

func TestListPlanValidation(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, newStubStore(), &stubScheduler{})

	rec := doJSON(t, handler, http.MethodGet, "/api/plan?from=notatime", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPlan(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	for i, hour := range []int{9, 13} {
		store.plan = append(store.plan, database.Task{
			ID:        int64(i + 1),
			Title:     fmt.Sprintf("post %d", i+1),
			Priority:  database.PriorityNormal,
			PublishAt: sql.NullTime{Time: time.Date(2025, time.March, 3, hour, 0, 0, 0, time.UTC), Valid: true},
		})
	}
	handler := newTestServer(t, store, &stubScheduler{})

	rec := doJSON(t, handler, http.MethodGet, "/api/plan", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []struct {
		Title string `json:"title"`
		State string `json:"state"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, string(database.StateScheduled), resp[0].State)
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		store := newStubStore()
		handler := newTestServer(t, store, &stubScheduler{})

		rec := doJSON(t, handler, http.MethodPost, "/api/users", map[string]any{
			"name":             "Alice",
			"telegramUsername": "alice",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			ID               int64  `json:"id"`
			Name             string `json:"name"`
			TelegramUsername string `json:"telegramUsername"`
		}
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotZero(t, resp.ID)
		assert.Equal(t, "Alice", resp.Name)
		assert.Equal(t, "alice", resp.TelegramUsername)

		rec = doJSON(t, handler, http.MethodGet, "/api/users", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var users []struct {
			Name string `json:"name"`
		}
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &users))
		require.Len(t, users, 1)
		assert.Equal(t, "Alice", users[0].Name)
	})

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()
		handler := newTestServer(t, newStubStore(), &stubScheduler{})

		rec := doJSON(t, handler, http.MethodPost, "/api/users", map[string]any{
			"telegramUsername": "ghost",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	task := &database.Task{Title: "doomed"}
	require.NoError(t, store.CreateTask(context.Background(), task))
	handler := newTestServer(t, store, &stubScheduler{})

	rec := doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
