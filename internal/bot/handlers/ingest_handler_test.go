package handlers_test

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pubplan/internal/bot/handlers"
	"github.com/edgard/pubplan/internal/config"
	"github.com/edgard/pubplan/internal/database"
	apperrors "github.com/edgard/pubplan/internal/errors"
)

// fakeTelegram records the text of every sendMessage call and answers like
// the Bot API.
type fakeTelegram struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.texts = append(f.texts, r.FormValue("text"))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":99}}}`)
}

func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type ingestStore struct {
	database.Store

	created []*database.Task
	nextID  int64
}

func (s *ingestStore) CreateTask(_ context.Context, task *database.Task) error {
	s.nextID++
	task.ID = s.nextID
	s.created = append(s.created, task)
	return nil
}

type ingestScheduler struct {
	err error

	gotTaskID int64
	gotRemove bool
	slot      time.Time
}

func (s *ingestScheduler) SchedulePublication(_ context.Context, taskID int64, removeFromKanban bool) (*database.Task, error) {
	s.gotTaskID = taskID
	s.gotRemove = removeFromKanban
	if s.err != nil {
		return nil, s.err
	}
	return &database.Task{
		ID:        taskID,
		Title:     "post",
		PublishAt: sql.NullTime{Time: s.slot, Valid: true},
	}, nil
}

func newIngestFixture(t *testing.T) (*fakeTelegram, *ingestStore, *ingestScheduler, tgbot.HandlerFunc, *tgbot.Bot) {
	t.Helper()

	tg := &fakeTelegram{}
	srv := httptest.NewServer(http.HandlerFunc(tg.handler))
	t.Cleanup(srv.Close)

	b, err := tgbot.New("test-token", tgbot.WithServerURL(srv.URL), tgbot.WithSkipGetMe())
	require.NoError(t, err)

	store := &ingestStore{}
	sched := &ingestScheduler{slot: time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)}
	deps := handlers.HandlerDeps{
		Logger:    slog.New(slog.DiscardHandler),
		Config:    &config.Config{},
		Store:     store,
		Scheduler: sched,
	}
	return tg, store, sched, handlers.NewIngestHandler(deps), b
}

func textUpdate(text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   1,
			Text: text,
			From: &models.User{ID: 42, Username: "alice"},
			Chat: models.Chat{ID: 99},
		},
	}
}

func TestIngestCreatesAndSchedulesTask(t *testing.T) {
	t.Parallel()

	tg, store, sched, handle, b := newIngestFixture(t)

	handle(context.Background(), b, textUpdate("Launch announcement\nfull text here"))

	require.Len(t, store.created, 1)
	task := store.created[0]
	assert.Equal(t, "Launch announcement", task.Title)
	assert.Equal(t, "Launch announcement\nfull text here", task.Description)
	assert.False(t, task.PublishAt.Valid)
	assert.True(t, task.PublishTelegram)
	require.True(t, task.Source.Valid)
	assert.Equal(t, "telegram", task.Source.String)
	require.True(t, task.SourceUser.Valid)
	assert.Equal(t, "alice", task.SourceUser.String)

	assert.Equal(t, task.ID, sched.gotTaskID)
	assert.False(t, sched.gotRemove)

	replies := tg.sent()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Planned for")
}

func TestIngestKeepsExplicitTime(t *testing.T) {
	t.Parallel()

	_, store, sched, handle, b := newIngestFixture(t)

	handle(context.Background(), b, textUpdate("New year post 31.12.2099 18:30"))

	require.Len(t, store.created, 1)
	task := store.created[0]
	require.True(t, task.PublishAt.Valid)
	want := time.Date(2099, time.December, 31, 18, 30, 0, 0, time.Local)
	assert.True(t, task.PublishAt.Time.Equal(want))

	// Scheduling still runs so the board state honors the request.
	assert.Equal(t, task.ID, sched.gotTaskID)
}

func TestIngestReportsFullHorizon(t *testing.T) {
	t.Parallel()

	tg, store, sched, handle, b := newIngestFixture(t)
	sched.err = apperrors.NewNoAvailableSlotError("no free publication slot within 30 days")

	handle(context.Background(), b, textUpdate("one post too many"))

	require.Len(t, store.created, 1)
	replies := tg.sent()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "slot")
}

func TestIngestIgnoresCommands(t *testing.T) {
	t.Parallel()

	tg, store, _, handle, b := newIngestFixture(t)

	handle(context.Background(), b, textUpdate("/help"))

	assert.Empty(t, store.created)
	assert.Empty(t, tg.sent())
}
